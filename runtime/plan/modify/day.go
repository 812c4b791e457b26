package modify

import (
	"context"
	"errors"
	"fmt"

	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/plan"
	"github.com/stridelabs/stride/runtime/plan/modification"
	"github.com/stridelabs/stride/runtime/plan/revision"
	"github.com/stridelabs/stride/runtime/plan/store"
)

// ModifyDay applies a single-day modification. Exactly the field matching
// the change type is mutated; intent is copied from the original session
// unless the modification carries an explicit override.
func (m *Modifier) ModifyDay(ctx context.Context, athleteID string, mod *modification.Day, userRequest string) (*Result, error) {
	if err := mod.Validate(); err != nil {
		return rejected(err)
	}
	profile, err := m.profile(ctx, athleteID)
	if err != nil {
		return nil, err
	}
	session, err := m.store.GetByDate(ctx, athleteID, mod.Date)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSessionNotFound):
			return rejected(coacherrors.Policyf("no session is planned on %s", mod.Date.Format("2006-01-02")))
		case errors.Is(err, store.ErrAmbiguousDate):
			return rejected(coacherrors.Policyf("more than one session is planned on %s", mod.Date.Format("2006-01-02")))
		default:
			return nil, fmt.Errorf("load session: %w", err)
		}
	}

	b := revision.NewBuilder("day", userRequest).WithClock(m.clock)
	b.AffectedRange(mod.Date, mod.Date)

	replacement, perr, err := m.applyDayChange(ctx, b, profile, session, mod)
	if err != nil {
		return nil, err
	}
	if perr != nil {
		return m.blocked(ctx, athleteID, b, perr)
	}
	return m.finalizeApplied(ctx, athleteID, b, []store.Replacement{replacement},
		fmt.Sprintf("Updated %s session on %s.", session.Intent, mod.Date.Format("Jan 2")))
}

// applyDayChange runs the day validators against one loaded session, edits a
// clone, and records deltas and rule checks on the builder. It returns a
// policy error (with matching block rules already recorded) when a
// protection fires; the caller decides how to finalize. Shared by ModifyDay
// and the week modifier's replace_day path.
func (m *Modifier) applyDayChange(
	ctx context.Context,
	b *revision.Builder,
	profile *plan.Profile,
	session *plan.Session,
	mod *modification.Day,
) (store.Replacement, *coacherrors.PolicyError, error) {
	// Race-day protection: on race day only reducing changes pass without
	// an explicit override.
	if profile.IsRaceDay(mod.Date) && !mod.AllowRaceDay {
		if perr := raceDayViolation(session, mod); perr != nil {
			b.Triggered(RuleRaceDayProtection, perr.Message, revision.SeverityBlock)
			return store.Replacement{}, perr, nil
		}
		b.Checked(RuleRaceDayProtection, "race-day changes limited to reductions", revision.SeverityBlock)
	}

	edited := session.Clone()
	intent := session.Intent
	if mod.IntentOverride != "" && mod.IntentOverride != session.Intent {
		intent = mod.IntentOverride
		edited.Intent = intent
		b.AddDelta(revision.Delta{
			EntityType: "session",
			EntityID:   session.ID,
			Date:       session.Date.Format("2006-01-02"),
			Field:      "intent",
			Old:        string(session.Intent),
			New:        string(intent),
		})
	}

	date := session.Date.Format("2006-01-02")
	switch mod.ChangeType {
	case modification.DayAdjustDistance:
		if session.DistanceMiles == nil {
			return store.Replacement{}, coacherrors.Policyf("the %s session on %s is time-based, not distance-based", session.Intent, date), nil
		}
		old := *session.DistanceMiles
		edited.DistanceMiles = mod.DistanceMiles
		b.AddDelta(revision.Delta{
			EntityType: "session", EntityID: session.ID, Date: date,
			Field: "distance_mi", Old: old, New: *mod.DistanceMiles,
		})
	case modification.DayAdjustDuration:
		if session.DurationMinutes == nil {
			return store.Replacement{}, coacherrors.Policyf("the %s session on %s is distance-based, not time-based", session.Intent, date), nil
		}
		old := *session.DurationMinutes
		edited.DurationMinutes = mod.DurationMinutes
		b.AddDelta(revision.Delta{
			EntityType: "session", EntityID: session.ID, Date: date,
			Field: "duration_min", Old: old, New: *mod.DurationMinutes,
		})
	case modification.DayAdjustPace:
		if !plan.ZoneAllowed(intent, mod.Pace) {
			perr := coacherrors.PolicyRule(RulePaceIntentMatch,
				fmt.Sprintf("pace %q is not allowed for a %s session", mod.Pace, intent))
			b.Triggered(RulePaceIntentMatch, perr.Message, revision.SeverityBlock)
			return store.Replacement{}, perr, nil
		}
		b.Checked(RulePaceIntentMatch, "pace zone must match session intent", revision.SeverityBlock)
		old := string(session.Pace)
		edited.Pace = mod.Pace
		b.AddDelta(revision.Delta{
			EntityType: "session", EntityID: session.ID, Date: date,
			Field: "pace", Old: old, New: string(mod.Pace),
		})
	case modification.DayReplaceMetrics:
		if mod.Pace != "" {
			if !plan.ZoneAllowed(intent, mod.Pace) {
				perr := coacherrors.PolicyRule(RulePaceIntentMatch,
					fmt.Sprintf("pace %q is not allowed for a %s session", mod.Pace, intent))
				b.Triggered(RulePaceIntentMatch, perr.Message, revision.SeverityBlock)
				return store.Replacement{}, perr, nil
			}
			oldPace := string(session.Pace)
			edited.Pace = mod.Pace
			b.AddDelta(revision.Delta{
				EntityType: "session", EntityID: session.ID, Date: date,
				Field: "pace", Old: oldPace, New: string(mod.Pace),
			})
		}
		if mod.DistanceMiles != nil {
			var old any
			if session.DistanceMiles != nil {
				old = *session.DistanceMiles
			}
			edited.DistanceMiles = mod.DistanceMiles
			if session.DurationMinutes != nil {
				b.AddDelta(revision.Delta{
					EntityType: "session", EntityID: session.ID, Date: date,
					Field: "duration_min", Old: *session.DurationMinutes, New: nil,
				})
			}
			edited.DurationMinutes = nil
			b.AddDelta(revision.Delta{
				EntityType: "session", EntityID: session.ID, Date: date,
				Field: "distance_mi", Old: old, New: *mod.DistanceMiles,
			})
		} else if mod.DurationMinutes != nil {
			var old any
			if session.DurationMinutes != nil {
				old = *session.DurationMinutes
			}
			edited.DurationMinutes = mod.DurationMinutes
			if session.DistanceMiles != nil {
				b.AddDelta(revision.Delta{
					EntityType: "session", EntityID: session.ID, Date: date,
					Field: "distance_mi", Old: *session.DistanceMiles, New: nil,
				})
			}
			edited.DistanceMiles = nil
			b.AddDelta(revision.Delta{
				EntityType: "session", EntityID: session.ID, Date: date,
				Field: "duration_min", Old: old, New: *mod.DurationMinutes,
			})
		}
	default:
		return store.Replacement{}, nil, coacherrors.Contractf("day change type %q reached the mutator unvalidated", mod.ChangeType)
	}

	m.logger.Debug(ctx, "Day change staged", "session_id", session.ID, "change_type", string(mod.ChangeType))
	return m.supersede(session, edited), nil, nil
}

// raceDayViolation reports why a change is not permitted on race day, or nil
// when it is a pure reduction.
func raceDayViolation(session *plan.Session, mod *modification.Day) *coacherrors.PolicyError {
	switch mod.ChangeType {
	case modification.DayAdjustDistance:
		if session.DistanceMiles != nil && mod.DistanceMiles != nil && *mod.DistanceMiles < *session.DistanceMiles {
			return nil
		}
		return coacherrors.PolicyRule(RuleRaceDayProtection, "only distance reductions are allowed on race day")
	case modification.DayAdjustDuration:
		if session.DurationMinutes != nil && mod.DurationMinutes != nil && *mod.DurationMinutes < *session.DurationMinutes {
			return nil
		}
		return coacherrors.PolicyRule(RuleRaceDayProtection, "only duration reductions are allowed on race day")
	default:
		return coacherrors.PolicyRule(RuleRaceDayProtection,
			fmt.Sprintf("%s is not allowed on race day", mod.ChangeType))
	}
}

// rejected wraps a user-input validation failure as a rejected-with-reason
// result. No revision is recorded: nothing was attempted against the plan.
func rejected(err error) (*Result, error) {
	return &Result{Success: false, Error: err.Error()}, err
}
