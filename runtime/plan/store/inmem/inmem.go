// Package inmem provides an in-memory implementation of store.Store for
// testing and local development. Rows live in maps guarded by a sync.RWMutex
// with no persistence across restarts; production deployments should use a
// durable backend such as features/planstore/mongo.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stridelabs/stride/runtime/plan"
	"github.com/stridelabs/stride/runtime/plan/revision"
	"github.com/stridelabs/stride/runtime/plan/store"
)

// Store implements store.Store in memory. Sessions and revisions are
// append-only; SaveModified marks originals superseded instead of deleting
// them, matching the durable implementations. Values are defensively copied
// on read and write.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*plan.Session // by session ID
	profiles  map[string]*plan.Profile // by athlete ID
	revisions map[string]storedRevision
	revOrder  []string // revision IDs in insertion order
}

type storedRevision struct {
	athleteID string
	rev       revision.PlanRevision
}

// New constructs an empty Store ready for use.
func New() *Store {
	return &Store{
		sessions:  make(map[string]*plan.Session),
		profiles:  make(map[string]*plan.Profile),
		revisions: make(map[string]storedRevision),
	}
}

// GetByDate returns the single live session for the athlete on date.
func (s *Store) GetByDate(_ context.Context, athleteID string, date time.Time) (*plan.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *plan.Session
	for _, sess := range s.sessions {
		if sess.AthleteID != athleteID || sess.SupersededBy != "" || !plan.SameDay(sess.Date, date) {
			continue
		}
		if found != nil {
			return nil, store.ErrAmbiguousDate
		}
		found = sess
	}
	if found == nil {
		return nil, store.ErrSessionNotFound
	}
	return found.Clone(), nil
}

// GetInRange returns the live sessions in [start, end], date ascending.
func (s *Store) GetInRange(_ context.Context, athleteID string, start, end time.Time) ([]*plan.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, hi := plan.Day(start), plan.Day(end)
	var out []*plan.Session
	for _, sess := range s.sessions {
		if sess.AthleteID != athleteID || sess.SupersededBy != "" {
			continue
		}
		d := plan.Day(sess.Date)
		if d.Before(lo) || d.After(hi) {
			continue
		}
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// SaveModified inserts each replacement row and marks its original
// superseded. The whole batch is applied under one lock acquisition, which
// is the in-memory analogue of the per-invocation transaction.
func (s *Store) SaveModified(_ context.Context, replaced []store.Replacement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range replaced {
		if r.Session == nil {
			continue
		}
		row := r.Session.Clone()
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		s.sessions[row.ID] = row
		if r.OriginalID != "" {
			if orig, ok := s.sessions[r.OriginalID]; ok {
				orig.SupersededBy = row.ID
			}
		}
	}
	return nil
}

// InsertSessions appends brand-new sessions.
func (s *Store) InsertSessions(_ context.Context, sessions []*plan.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range sessions {
		if sess == nil {
			continue
		}
		row := sess.Clone()
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		s.sessions[row.ID] = row
	}
	return nil
}

// CountSessions returns the total row count for the athlete, superseded
// rows included.
func (s *Store) CountSessions(_ context.Context, athleteID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.AthleteID == athleteID {
			n++
		}
	}
	return n, nil
}

// GetProfile returns the athlete's profile.
func (s *Store) GetProfile(_ context.Context, athleteID string) (*plan.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[athleteID]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	cp := *p
	if p.RaceDate != nil {
		d := *p.RaceDate
		cp.RaceDate = &d
	}
	if p.SeasonStart != nil {
		d := *p.SeasonStart
		cp.SeasonStart = &d
	}
	cp.Phases = append([]plan.PhaseSpan(nil), p.Phases...)
	return &cp, nil
}

// SaveProfile inserts or updates the athlete's profile.
func (s *Store) SaveProfile(_ context.Context, profile *plan.Profile) error {
	if profile == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *profile
	cp.Phases = append([]plan.PhaseSpan(nil), profile.Phases...)
	s.profiles[profile.AthleteID] = &cp
	return nil
}

// SaveRevision appends a finalized revision. Writing an id twice is a no-op
// for an identical record and otherwise leaves the first write in place,
// preserving append-only semantics.
func (s *Store) SaveRevision(_ context.Context, athleteID string, rev revision.PlanRevision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revisions[rev.ID]; ok {
		return nil
	}
	s.revisions[rev.ID] = storedRevision{athleteID: athleteID, rev: rev}
	s.revOrder = append(s.revOrder, rev.ID)
	return nil
}

// GetRevision returns a stored revision by id.
func (s *Store) GetRevision(_ context.Context, revisionID string) (revision.PlanRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.revisions[revisionID]
	if !ok {
		return revision.PlanRevision{}, store.ErrRevisionNotFound
	}
	return sr.rev, nil
}

// ListRevisions returns the athlete's revisions, newest first.
func (s *Store) ListRevisions(_ context.Context, athleteID string) ([]revision.PlanRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []revision.PlanRevision
	for i := len(s.revOrder) - 1; i >= 0; i-- {
		sr := s.revisions[s.revOrder[i]]
		if sr.athleteID == athleteID {
			out = append(out, sr.rev)
		}
	}
	return out, nil
}

// ApproveRevision marks a pending revision as applied and approved.
func (s *Store) ApproveRevision(_ context.Context, revisionID, approvedBy string) (revision.PlanRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.revisions[revisionID]
	if !ok {
		return revision.PlanRevision{}, store.ErrRevisionNotFound
	}
	if sr.rev.ApprovedByUser {
		return sr.rev, nil
	}
	sr.rev.ApprovedByUser = true
	sr.rev.ApprovedBy = approvedBy
	sr.rev.Status = string(revision.OutcomeApplied)
	s.revisions[revisionID] = sr
	return sr.rev, nil
}

// Reset clears all stored rows. Tests use this for isolation.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*plan.Session)
	s.profiles = make(map[string]*plan.Profile)
	s.revisions = make(map[string]storedRevision)
	s.revOrder = nil
}

var _ store.Store = (*Store)(nil)
