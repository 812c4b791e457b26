// Package revision implements the immutable audit ledger for plan mutations.
// Every mutation attempt produces exactly one PlanRevision recording the
// field-level deltas, the safety rules that were checked, and the outcome.
// The ledger is the only source of truth for "what changed": later
// explanation or audit features read revisions, never re-derive deltas.
package revision

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	// Severity ranks a safety rule's consequence.
	Severity string

	// Outcome is the final disposition of a mutation attempt.
	Outcome string

	// Delta records one changed field: one row per field per entity.
	Delta struct {
		// EntityType names the changed entity kind ("session", "profile").
		EntityType string `json:"entity_type"`
		// EntityID identifies the changed entity, when it has one.
		EntityID string `json:"entity_id,omitempty"`
		// Date is the calendar date the change applies to, when relevant.
		Date string `json:"date,omitempty"`
		// Field names the changed field.
		Field string `json:"field"`
		// Old and New hold the before/after values.
		Old any `json:"old"`
		New any `json:"new"`
	}

	// Rule records one safety-rule check and whether it fired.
	Rule struct {
		// ID is the stable rule identifier (e.g. "race_week_volume").
		ID string `json:"rule_id"`
		// Description explains the rule in human terms.
		Description string `json:"description"`
		// Severity is the consequence when the rule triggers.
		Severity Severity `json:"severity"`
		// Triggered reports whether the rule fired for this attempt.
		Triggered bool `json:"triggered"`
	}

	// PlanRevision is the immutable record of one mutation attempt.
	PlanRevision struct {
		// ID is the durable revision identifier.
		ID string `json:"id"`
		// CreatedAt records when the attempt was finalized.
		CreatedAt time.Time `json:"created_at"`
		// Scope is the modification family: day, week, season, or race.
		Scope string `json:"scope"`
		// Outcome is computed from the triggered rules at finalize.
		Outcome Outcome `json:"outcome"`
		// UserRequest is the verbatim user request that led here.
		UserRequest string `json:"user_request"`
		// Reason carries the block reason when the outcome is blocked.
		Reason string `json:"reason,omitempty"`
		// Deltas lists every changed field, in application order.
		Deltas []Delta `json:"deltas"`
		// Rules lists every safety rule checked, triggered or not.
		Rules []Rule `json:"rules"`
		// AffectedStart and AffectedEnd bound the touched date range.
		AffectedStart string `json:"affected_start,omitempty"`
		AffectedEnd   string `json:"affected_end,omitempty"`
		// RequiresApproval marks revisions that need explicit user
		// confirmation before they count as applied.
		RequiresApproval bool `json:"requires_approval,omitempty"`
		// ApprovedByUser records that the user confirmed the revision.
		ApprovedByUser bool `json:"approved_by_user,omitempty"`
		// ApprovedBy names who confirmed, when approved.
		ApprovedBy string `json:"approved_by,omitempty"`
		// Status is the persistence lifecycle state: "applied", "blocked",
		// "partially_applied", or "pending_approval".
		Status string `json:"status"`
	}

	// Builder accumulates deltas and rule checks for one mutation attempt
	// and produces the immutable PlanRevision at finalize. A builder is
	// single-use: Finalize panics on reuse because a second revision for
	// the same attempt would corrupt the audit trail.
	Builder struct {
		scope       string
		userRequest string
		deltas      []Delta
		rules       []Rule
		start, end  string
		approval    bool
		now         func() time.Time
		finalized   bool
	}
)

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityBlock   Severity = "block"
)

const (
	OutcomeApplied          Outcome = "applied"
	OutcomePartiallyApplied Outcome = "partially_applied"
	OutcomeBlocked          Outcome = "blocked"
)

// StatusPendingApproval marks a persisted revision awaiting confirmation.
const StatusPendingApproval = "pending_approval"

// NewBuilder starts a revision for one mutation attempt. Scope names the
// modification family; userRequest is the verbatim request text.
func NewBuilder(scope, userRequest string) *Builder {
	return &Builder{
		scope:       scope,
		userRequest: userRequest,
		now:         time.Now,
	}
}

// WithClock overrides the builder's clock. Tests use this for deterministic
// CreatedAt values.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// AddDelta records one changed field.
func (b *Builder) AddDelta(d Delta) *Builder {
	b.deltas = append(b.deltas, d)
	return b
}

// AddRule records one safety-rule check.
func (b *Builder) AddRule(r Rule) *Builder {
	b.rules = append(b.rules, r)
	return b
}

// Triggered is shorthand for recording a rule that fired.
func (b *Builder) Triggered(id, description string, severity Severity) *Builder {
	return b.AddRule(Rule{ID: id, Description: description, Severity: severity, Triggered: true})
}

// Checked is shorthand for recording a rule that was evaluated and passed.
func (b *Builder) Checked(id, description string, severity Severity) *Builder {
	return b.AddRule(Rule{ID: id, Description: description, Severity: severity, Triggered: false})
}

// AffectedRange records the touched date span.
func (b *Builder) AffectedRange(start, end time.Time) *Builder {
	b.start = start.Format("2006-01-02")
	b.end = end.Format("2006-01-02")
	return b
}

// RequireApproval marks the revision as needing user confirmation.
func (b *Builder) RequireApproval() *Builder {
	b.approval = true
	return b
}

// HasBlock reports whether any recorded rule triggered at block severity.
func (b *Builder) HasBlock() bool {
	for _, r := range b.rules {
		if r.Triggered && r.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Finalize computes the outcome and returns the immutable revision.
// Outcome precedence: any triggered block rule forces blocked; otherwise any
// triggered warning forces partially_applied; otherwise applied. The reason
// of a blocked revision is the description of the first triggered block rule.
func (b *Builder) Finalize() PlanRevision {
	if b.finalized {
		panic("revision: builder finalized twice")
	}
	b.finalized = true
	outcome := OutcomeApplied
	reason := ""
	for _, r := range b.rules {
		if !r.Triggered {
			continue
		}
		switch r.Severity {
		case SeverityBlock:
			if outcome != OutcomeBlocked {
				outcome = OutcomeBlocked
				reason = r.Description
			}
		case SeverityWarning:
			if outcome == OutcomeApplied {
				outcome = OutcomePartiallyApplied
			}
		}
	}
	rev := PlanRevision{
		ID:               uuid.NewString(),
		CreatedAt:        b.now().UTC(),
		Scope:            b.scope,
		Outcome:          outcome,
		UserRequest:      b.userRequest,
		Reason:           reason,
		Deltas:           append([]Delta(nil), b.deltas...),
		Rules:            append([]Rule(nil), b.rules...),
		AffectedStart:    b.start,
		AffectedEnd:      b.end,
		RequiresApproval: b.approval,
		Status:           string(outcome),
	}
	if rev.RequiresApproval && outcome != OutcomeBlocked {
		rev.Status = StatusPendingApproval
	}
	return rev
}

// Serialize encodes the revision as canonical JSON. Serialization is stable:
// serializing, deserializing, and serializing again yields identical bytes.
func Serialize(r PlanRevision) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("serialize revision %s: %w", r.ID, err)
	}
	return data, nil
}

// Deserialize decodes a revision from its canonical JSON form.
func Deserialize(data []byte) (PlanRevision, error) {
	var r PlanRevision
	if err := json.Unmarshal(data, &r); err != nil {
		return PlanRevision{}, fmt.Errorf("deserialize revision: %w", err)
	}
	return r, nil
}
