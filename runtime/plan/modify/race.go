package modify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/plan"
	"github.com/stridelabs/stride/runtime/plan/modification"
	"github.com/stridelabs/stride/runtime/plan/revision"
	"github.com/stridelabs/stride/runtime/plan/store"
)

// ModifyRace applies a race-level change to the athlete profile. Taper,
// distance, and priority changes apply immediately. A race-date move is
// staged behind user approval: the revision is persisted pending and the
// profile is only touched once the revision is approved and applied.
func (m *Modifier) ModifyRace(ctx context.Context, athleteID string, mod *modification.Race, userRequest string) (*Result, error) {
	if err := mod.Validate(); err != nil {
		return rejected(err)
	}
	profile, err := m.profile(ctx, athleteID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return rejected(coacherrors.Policy("no goal race is configured yet"))
	}

	b := revision.NewBuilder("race", userRequest).WithClock(m.clock)

	switch mod.ChangeType {
	case modification.RaceChangeTaper:
		old := profile.TaperWeeks
		updated := *profile
		updated.TaperWeeks = *mod.TaperWeeks
		b.AddDelta(revision.Delta{
			EntityType: "profile", EntityID: athleteID,
			Field: "taper_weeks", Old: old, New: *mod.TaperWeeks,
		})
		return m.persistProfileChange(ctx, athleteID, b, &updated,
			fmt.Sprintf("Set the taper to %d week(s).", *mod.TaperWeeks))

	case modification.RaceChangeDistance:
		old := profile.RaceDistance
		updated := *profile
		updated.RaceDistance = strings.ToLower(strings.TrimSpace(*mod.Distance))
		b.AddDelta(revision.Delta{
			EntityType: "profile", EntityID: athleteID,
			Field: "race_distance", Old: old, New: updated.RaceDistance,
		})
		return m.persistProfileChange(ctx, athleteID, b, &updated,
			fmt.Sprintf("Changed the race distance to %s.", updated.RaceDistance))

	case modification.RaceChangePriority:
		old := profile.RacePriority
		updated := *profile
		updated.RacePriority = strings.ToUpper(strings.TrimSpace(*mod.Priority))
		b.AddDelta(revision.Delta{
			EntityType: "profile", EntityID: athleteID,
			Field: "race_priority", Old: old, New: updated.RacePriority,
		})
		return m.persistProfileChange(ctx, athleteID, b, &updated,
			fmt.Sprintf("Changed the race priority to %s.", updated.RacePriority))

	case modification.RaceChangeDate:
		return m.stageRaceDateChange(ctx, athleteID, b, profile, mod)

	default:
		return nil, coacherrors.Contractf("race change type %q reached the mutator unvalidated", mod.ChangeType)
	}
}

// stageRaceDateChange records a pending revision for a race-date move. The
// profile is untouched until the revision is approved; the date move
// restructures every downstream window, so it never applies silently.
func (m *Modifier) stageRaceDateChange(
	ctx context.Context,
	athleteID string,
	b *revision.Builder,
	profile *plan.Profile,
	mod *modification.Race,
) (*Result, error) {
	var old any
	if profile.RaceDate != nil {
		old = profile.RaceDate.Format("2006-01-02")
	}
	newDate := plan.Day(*mod.Date)
	b.AddDelta(revision.Delta{
		EntityType: "profile", EntityID: athleteID,
		Field: "race_date", Old: old, New: newDate.Format("2006-01-02"),
	})
	if profile.TaperWeeks > 0 {
		daysOut := int(newDate.Sub(plan.Day(m.clock())).Hours() / 24)
		if daysOut >= 0 && daysOut < profile.TaperWeeks*7 {
			b.Triggered(RuleRaceDateProximity,
				fmt.Sprintf("the new race date is inside the current %d-week taper", profile.TaperWeeks),
				revision.SeverityWarning)
		} else {
			b.Checked(RuleRaceDateProximity, "new race date leaves room for the taper", revision.SeverityWarning)
		}
	}
	b.Triggered(RuleApprovalRequired, "race date changes require confirmation", revision.SeverityInfo)
	b.RequireApproval()

	rev := b.Finalize()
	if err := m.store.SaveRevision(ctx, athleteID, rev); err != nil {
		return nil, fmt.Errorf("persist pending race revision: %w", err)
	}
	m.metrics.IncCounter("plan_mutations", 1, "outcome", "pending_approval", "scope", "race")
	m.logger.Info(ctx, "Race date change staged", "revision_id", rev.ID, "new_date", newDate.Format("2006-01-02"))
	return &Result{
		Success:          false,
		Message:          fmt.Sprintf("Staged the race date move to %s.", newDate.Format("Jan 2")),
		Revision:         &rev,
		RequiresApproval: true,
		RevisionID:       rev.ID,
	}, nil
}

// ApplyApproved applies the deferred profile deltas of an approved race
// revision. It is the second half of the approval handshake: the revision
// must already be approved in the store.
func (m *Modifier) ApplyApproved(ctx context.Context, athleteID, revisionID string) (*Result, error) {
	rev, err := m.store.GetRevision(ctx, revisionID)
	if err != nil {
		if errors.Is(err, store.ErrRevisionNotFound) {
			return nil, coacherrors.Contractf("approved revision %s does not exist", revisionID)
		}
		return nil, fmt.Errorf("load revision: %w", err)
	}
	if !rev.ApprovedByUser || rev.Status != string(revision.OutcomeApplied) {
		return nil, coacherrors.Contractf("revision %s is not approved", revisionID)
	}
	profile, err := m.profile(ctx, athleteID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, coacherrors.Contractf("revision %s references a missing profile", revisionID)
	}
	updated := *profile
	for _, d := range rev.Deltas {
		if d.EntityType != "profile" {
			continue
		}
		switch d.Field {
		case "race_date":
			s, ok := d.New.(string)
			if !ok {
				return nil, coacherrors.Contractf("revision %s has a malformed race_date delta", revisionID)
			}
			t, err := time.Parse("2006-01-02", s)
			if err != nil {
				return nil, coacherrors.ContractWithCause("malformed race_date delta", err)
			}
			day := plan.Day(t)
			updated.RaceDate = &day
		case "race_distance":
			if s, ok := d.New.(string); ok {
				updated.RaceDistance = s
			}
		case "race_priority":
			if s, ok := d.New.(string); ok {
				updated.RacePriority = s
			}
		case "taper_weeks":
			if v, ok := d.New.(float64); ok {
				updated.TaperWeeks = int(v)
			} else if v, ok := d.New.(int); ok {
				updated.TaperWeeks = v
			}
		}
	}
	if err := m.store.SaveProfile(ctx, &updated); err != nil {
		return nil, fmt.Errorf("persist approved race change: %w", err)
	}
	m.logger.Info(ctx, "Approved race revision applied", "revision_id", revisionID)
	return &Result{
		Success:    true,
		Message:    "Applied the confirmed race change.",
		Revision:   &rev,
		RevisionID: rev.ID,
	}, nil
}

// persistProfileChange saves the updated profile and finalizes the revision
// for the immediate (non-staged) race changes.
func (m *Modifier) persistProfileChange(
	ctx context.Context,
	athleteID string,
	b *revision.Builder,
	updated *plan.Profile,
	message string,
) (*Result, error) {
	if err := m.store.SaveProfile(ctx, updated); err != nil {
		return nil, fmt.Errorf("persist profile change: %w", err)
	}
	rev := b.Finalize()
	if err := m.store.SaveRevision(ctx, athleteID, rev); err != nil {
		return nil, fmt.Errorf("persist race revision: %w", err)
	}
	m.metrics.IncCounter("plan_mutations", 1, "outcome", string(rev.Outcome), "scope", "race")
	return &Result{
		Success:    true,
		Message:    message,
		Revision:   &rev,
		RevisionID: rev.ID,
	}, nil
}
