package controller

import (
	"context"
	"sync"
)

type (
	// TurnState is the per-conversation state carried between turns while
	// the controller gathers the attributes an action needs.
	TurnState struct {
		// Slots holds the accumulated attribute values across turns.
		Slots map[string]any `json:"slots"`
		// Awaiting lists the slots the user has already been asked for.
		Awaiting []string `json:"awaiting"`
		// AwaitingQuestion is the clarification currently outstanding.
		AwaitingQuestion string `json:"awaiting_question"`
		// LastMessage is the most recent user-facing response.
		LastMessage string `json:"last_message"`
		// PendingRevisionID is the staged revision waiting for the user's
		// confirmation, if any.
		PendingRevisionID string `json:"pending_revision_id"`
	}

	// TurnStateStore persists TurnState between turns of a conversation.
	TurnStateStore interface {
		Load(ctx context.Context, conversationID string) (*TurnState, error)
		Save(ctx context.Context, conversationID string, state *TurnState) error
	}

	// InMemStateStore is the in-memory TurnStateStore used by tests and
	// single-process deployments.
	InMemStateStore struct {
		mu     sync.RWMutex
		states map[string]*TurnState
	}
)

// NewInMemStateStore returns an empty in-memory state store.
func NewInMemStateStore() *InMemStateStore {
	return &InMemStateStore{states: make(map[string]*TurnState)}
}

// Load returns the conversation's state, or a fresh one if none exists.
// Callers get a copy; mutations are not visible until Save.
func (s *InMemStateStore) Load(_ context.Context, conversationID string) (*TurnState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[conversationID]
	if !ok {
		return &TurnState{Slots: make(map[string]any)}, nil
	}
	return st.clone(), nil
}

// Save stores a copy of the state under the conversation ID.
func (s *InMemStateStore) Save(_ context.Context, conversationID string, state *TurnState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[conversationID] = state.clone()
	return nil
}

func (st *TurnState) clone() *TurnState {
	c := *st
	c.Slots = make(map[string]any, len(st.Slots))
	for k, v := range st.Slots {
		c.Slots[k] = v
	}
	c.Awaiting = append([]string(nil), st.Awaiting...)
	return &c
}

// awaitingContains reports whether the slot was already asked for.
func (st *TurnState) awaitingContains(slot string) bool {
	for _, a := range st.Awaiting {
		if a == slot {
			return true
		}
	}
	return false
}

// clearAction resets slot-gathering state after an action completes or is
// abandoned. The pending revision survives: it is cleared only by the
// confirm flow.
func (st *TurnState) clearAction() {
	st.Slots = make(map[string]any)
	st.Awaiting = nil
	st.AwaitingQuestion = ""
}
