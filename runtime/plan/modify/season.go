package modify

import (
	"context"
	"fmt"

	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/plan"
	"github.com/stridelabs/stride/runtime/plan/modification"
	"github.com/stridelabs/stride/runtime/plan/revision"
)

// ModifySeason applies a multi-week season modification. Volume changes are
// delegated to the week machinery one week at a time, ascending; the first
// failing week halts the call and is surfaced in the revision. Weeks already
// persisted before the failure stay applied: the season path fails loud and
// leaves partial state visible rather than pretending to atomicity it does
// not have.
func (m *Modifier) ModifySeason(ctx context.Context, athleteID string, mod *modification.Season, userRequest string) (*Result, error) {
	if err := mod.Validate(); err != nil {
		return rejected(err)
	}
	profile, err := m.profile(ctx, athleteID)
	if err != nil {
		return nil, err
	}

	b := revision.NewBuilder("season", userRequest).WithClock(m.clock)

	switch mod.ChangeType {
	case modification.SeasonReduceVolume, modification.SeasonIncreaseVolume:
		return m.applySeasonVolume(ctx, b, athleteID, profile, mod, userRequest)
	case modification.SeasonExtendPhase, modification.SeasonReducePhase:
		return m.applyPhaseChange(ctx, b, athleteID, profile, mod)
	default:
		return nil, coacherrors.Contractf("season change type %q reached the mutator unvalidated", mod.ChangeType)
	}
}

func (m *Modifier) applySeasonVolume(
	ctx context.Context,
	b *revision.Builder,
	athleteID string,
	profile *plan.Profile,
	mod *modification.Season,
	userRequest string,
) (*Result, error) {
	if profile == nil || profile.SeasonStart == nil {
		return rejected(coacherrors.Policy("the season schedule is not configured, so season weeks cannot be resolved"))
	}
	increase := mod.ChangeType == modification.SeasonIncreaseVolume

	// Phase-based taper protection: a volume increase never lands on a
	// taper-phase week, independent of the race-date window the per-week
	// checks also enforce.
	if increase {
		for w := mod.StartWeek; w <= mod.EndWeek; w++ {
			if profile.PhaseForWeek(w) == plan.PhaseTaper {
				perr := coacherrors.PolicyRule(RuleTaperPhaseVolume,
					fmt.Sprintf("Cannot increase volume during the taper phase (week %d)", w))
				b.Triggered(RuleTaperPhaseVolume, perr.Message, revision.SeverityBlock)
				return m.blocked(ctx, athleteID, b, perr)
			}
		}
		b.Checked(RuleTaperPhaseVolume, "no volume increase in a taper phase", revision.SeverityBlock)
	}

	weeks := mod.EndWeek - mod.StartWeek + 1
	weekChange := modification.WeekReduceVolume
	if increase {
		weekChange = modification.WeekIncreaseVolume
	}
	var perWeekMiles *float64
	if mod.Miles != nil {
		v := *mod.Miles / float64(weeks)
		perWeekMiles = &v
	}

	start, _, _ := profile.WeekRange(mod.StartWeek)
	_, end, _ := profile.WeekRange(mod.EndWeek)
	b.AffectedRange(start, end)

	var all []*plan.Session
	for w := mod.StartWeek; w <= mod.EndWeek; w++ {
		weekStart, weekEnd, ok := profile.WeekRange(w)
		if !ok {
			return nil, coacherrors.Contractf("week %d has no date range despite a configured season start", w)
		}
		weekMod := &modification.Week{
			StartDate:  weekStart,
			EndDate:    weekEnd,
			ChangeType: weekChange,
			Percent:    mod.Percent,
			Miles:      perWeekMiles,
		}
		replacements, perr, err := m.applyWeek(ctx, b, athleteID, profile, weekMod)
		if err != nil {
			return nil, fmt.Errorf("season week %d: %w", w, err)
		}
		if perr != nil {
			// Halt at the first failing week. Earlier weeks are already
			// persisted and are not rolled back.
			msg := fmt.Sprintf("week %d: %s", w, perr.Message)
			b.Triggered(RuleSeasonWeekFailed, msg, revision.SeverityBlock)
			return m.blocked(ctx, athleteID, b, coacherrors.PolicyRule(RuleSeasonWeekFailed, msg))
		}
		if err := m.store.SaveModified(ctx, replacements); err != nil {
			return nil, fmt.Errorf("persist season week %d: %w", w, err)
		}
		for _, r := range replacements {
			all = append(all, r.Session)
		}
		m.logger.Info(ctx, "Season week applied", "week", w, "sessions", len(replacements))
	}

	rev := b.Finalize()
	if err := m.store.SaveRevision(ctx, athleteID, rev); err != nil {
		return nil, fmt.Errorf("persist season revision: %w", err)
	}
	m.metrics.IncCounter("plan_mutations", 1, "outcome", string(rev.Outcome), "scope", "season")
	return &Result{
		Success:          true,
		Message:          fmt.Sprintf("Adjusted volume across weeks %d-%d.", mod.StartWeek, mod.EndWeek),
		Revision:         &rev,
		ModifiedSessions: all,
		RevisionID:       rev.ID,
	}, nil
}

// applyPhaseChange extends or shortens a named phase, shifting later phases
// to keep week numbering contiguous.
func (m *Modifier) applyPhaseChange(
	ctx context.Context,
	b *revision.Builder,
	athleteID string,
	profile *plan.Profile,
	mod *modification.Season,
) (*Result, error) {
	if profile == nil || len(profile.Phases) == 0 {
		return rejected(coacherrors.Policy("the season has no configured phases"))
	}
	target := -1
	for i, span := range profile.Phases {
		if string(span.Phase) == mod.PhaseName {
			target = i
			break
		}
	}
	if target < 0 {
		return rejected(coacherrors.Policyf("the season has no %s phase", mod.PhaseName))
	}

	n := *mod.PhaseWeeks
	if mod.ChangeType == modification.SeasonReducePhase {
		span := profile.Phases[target]
		if span.EndWeek-span.StartWeek+1 <= n {
			return rejected(coacherrors.Policyf("the %s phase is only %d week(s) long", mod.PhaseName, span.EndWeek-span.StartWeek+1))
		}
		n = -n
	}

	updated := *profile
	updated.Phases = append([]plan.PhaseSpan(nil), profile.Phases...)
	old := updated.Phases[target]
	updated.Phases[target].EndWeek += n
	b.AddDelta(revision.Delta{
		EntityType: "profile",
		EntityID:   athleteID,
		Field:      fmt.Sprintf("phase.%s.end_week", mod.PhaseName),
		Old:        old.EndWeek,
		New:        updated.Phases[target].EndWeek,
	})
	for i := target + 1; i < len(updated.Phases); i++ {
		b.AddDelta(revision.Delta{
			EntityType: "profile",
			EntityID:   athleteID,
			Field:      fmt.Sprintf("phase.%s.start_week", updated.Phases[i].Phase),
			Old:        updated.Phases[i].StartWeek,
			New:        updated.Phases[i].StartWeek + n,
		})
		updated.Phases[i].StartWeek += n
		updated.Phases[i].EndWeek += n
	}

	if err := m.store.SaveProfile(ctx, &updated); err != nil {
		return nil, fmt.Errorf("persist phase change: %w", err)
	}
	rev := b.Finalize()
	if err := m.store.SaveRevision(ctx, athleteID, rev); err != nil {
		return nil, fmt.Errorf("persist phase revision: %w", err)
	}
	m.metrics.IncCounter("plan_mutations", 1, "outcome", string(rev.Outcome), "scope", "season")
	verb := "Extended"
	if mod.ChangeType == modification.SeasonReducePhase {
		verb = "Shortened"
	}
	return &Result{
		Success:    true,
		Message:    fmt.Sprintf("%s the %s phase by %d week(s).", verb, mod.PhaseName, *mod.PhaseWeeks),
		Revision:   &rev,
		RevisionID: rev.ID,
	}, nil
}
