// Package modify implements the plan-modification safety engine: per-scope
// validators and mutators for day, week, season, and race changes. Every
// mutation attempt runs under a revision builder; domain protections are
// recorded as rules, and a triggered block rule stops the mutation before
// anything is persisted. Sessions are never edited in place: mutators clone,
// edit the clone, and persist it as a new row superseding the original.
package modify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/coach/telemetry"
	"github.com/stridelabs/stride/runtime/plan"
	"github.com/stridelabs/stride/runtime/plan/revision"
	"github.com/stridelabs/stride/runtime/plan/store"
)

type (
	// Modifier applies validated modifications to an athlete's plan.
	Modifier struct {
		store   store.Store
		logger  telemetry.Logger
		metrics telemetry.Metrics
		clock   func() time.Time
	}

	// Options configures a Modifier.
	Options struct {
		// Store is the plan persistence layer. Required.
		Store store.Store
		// Logger defaults to a noop logger.
		Logger telemetry.Logger
		// Metrics defaults to a noop recorder.
		Metrics telemetry.Metrics
		// Clock defaults to time.Now. Tests override it.
		Clock func() time.Time
	}

	// Result is the outcome of one mutation attempt, in the shape the
	// controller reports upstream.
	Result struct {
		// Success reports whether the mutation was applied.
		Success bool
		// Message is the short outcome description for applied mutations.
		Message string
		// Error is the human-readable reason when not applied.
		Error string
		// Revision is the finalized audit record for the attempt.
		Revision *revision.PlanRevision
		// ModifiedSessions are the replacement rows that were persisted.
		ModifiedSessions []*plan.Session
		// RequiresApproval marks a mutation held for user confirmation.
		RequiresApproval bool
		// RevisionID is the persisted revision id, for approval lookups.
		RevisionID string
	}
)

// Rule identifiers recorded on revisions. Stable: audit tooling matches on
// these.
const (
	RuleRaceDayProtection = "race_day_protection"
	RuleRaceWeekVolume    = "race_week_volume"
	RuleTaperVolume       = "taper_volume"
	RuleTaperPhaseVolume  = "taper_phase_volume"
	RuleRaceDayShift      = "race_day_shift"
	RulePaceIntentMatch   = "pace_intent_match"
	RuleLongRunFloor      = "long_run_floor"
	RuleEasyFloor         = "easy_floor"
	RuleShiftCollision    = "shift_collision"
	RuleVolumeNotAbsorbed = "volume_not_absorbed"
	RuleRaceDateProximity = "race_date_proximity"
	RuleApprovalRequired  = "approval_required"
	RuleSeasonWeekFailed  = "season_week_failed"
)

// New constructs a Modifier using the supplied options.
func New(opts Options) (*Modifier, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	m := &Modifier{
		store:   opts.Store,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		clock:   opts.Clock,
	}
	if m.logger == nil {
		m.logger = telemetry.NewNoopLogger()
	}
	if m.metrics == nil {
		m.metrics = telemetry.NewNoopMetrics()
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	return m, nil
}

// profile loads the athlete profile, tolerating its absence: without a
// profile no race or taper protection can fire, which is correct for
// athletes who have not set a goal race.
func (m *Modifier) profile(ctx context.Context, athleteID string) (*plan.Profile, error) {
	p, err := m.store.GetProfile(ctx, athleteID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load profile for %s: %w", athleteID, err)
	}
	return p, nil
}

// blocked finalizes the builder as a blocked revision, persists it, and
// returns the matchable policy error alongside the result. Blocked attempts
// persist no session rows; only the audit record is written.
func (m *Modifier) blocked(ctx context.Context, athleteID string, b *revision.Builder, perr *coacherrors.PolicyError) (*Result, error) {
	rev := b.Finalize()
	if err := m.store.SaveRevision(ctx, athleteID, rev); err != nil {
		m.logger.Error(ctx, "persist blocked revision", "revision_id", rev.ID, "err", err)
	}
	m.metrics.IncCounter("plan_mutations", 1, "outcome", "blocked", "scope", rev.Scope)
	m.logger.Info(ctx, "Mutation blocked", "scope", rev.Scope, "rule", perr.Rule, "reason", perr.Message)
	return &Result{
		Success:    false,
		Error:      perr.Message,
		Revision:   &rev,
		RevisionID: rev.ID,
	}, perr
}

// finalizeApplied persists the replacement rows and the revision, then
// assembles the applied (or partially applied) result.
func (m *Modifier) finalizeApplied(
	ctx context.Context,
	athleteID string,
	b *revision.Builder,
	replacements []store.Replacement,
	message string,
) (*Result, error) {
	if err := m.store.SaveModified(ctx, replacements); err != nil {
		m.logger.Error(ctx, "persist modified sessions", "athlete_id", athleteID, "err", err)
		return nil, fmt.Errorf("persist modified sessions: %w", err)
	}
	rev := b.Finalize()
	if err := m.store.SaveRevision(ctx, athleteID, rev); err != nil {
		m.logger.Error(ctx, "persist revision", "revision_id", rev.ID, "err", err)
		return nil, fmt.Errorf("persist revision: %w", err)
	}
	m.metrics.IncCounter("plan_mutations", 1, "outcome", string(rev.Outcome), "scope", rev.Scope)
	sessions := make([]*plan.Session, 0, len(replacements))
	for _, r := range replacements {
		sessions = append(sessions, r.Session)
	}
	m.logger.Info(ctx, "Mutation applied", "scope", rev.Scope, "outcome", string(rev.Outcome), "revision_id", rev.ID, "deltas", len(rev.Deltas))
	return &Result{
		Success:          true,
		Message:          message,
		Revision:         &rev,
		ModifiedSessions: sessions,
		RevisionID:       rev.ID,
	}, nil
}

// supersede produces the replacement row for an edited clone: fresh ID,
// back-reference note to the original, creation timestamp from the clock.
func (m *Modifier) supersede(original *plan.Session, edited *plan.Session) store.Replacement {
	edited.ID = uuid.NewString()
	edited.SupersededBy = ""
	edited.CreatedAt = m.clock().UTC()
	note := fmt.Sprintf("revised from %s", original.ID)
	if edited.Note != "" {
		note = edited.Note + "; " + note
	}
	edited.Note = note
	return store.Replacement{OriginalID: original.ID, Session: edited}
}

// fmtMiles renders a distance for user-facing messages.
func fmtMiles(v float64) string {
	return fmt.Sprintf("%.1fmi", v)
}
