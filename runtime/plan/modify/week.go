package modify

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/plan"
	"github.com/stridelabs/stride/runtime/plan/modification"
	"github.com/stridelabs/stride/runtime/plan/revision"
	"github.com/stridelabs/stride/runtime/plan/store"
)

// ModifyWeek applies a week-range modification. Volume changes follow the
// absorption order: easy sessions first, long runs only for the remainder of
// an absolute-mile change, rest and quality sessions untouched.
func (m *Modifier) ModifyWeek(ctx context.Context, athleteID string, mod *modification.Week, userRequest string) (*Result, error) {
	if err := mod.Validate(); err != nil {
		return rejected(err)
	}
	profile, err := m.profile(ctx, athleteID)
	if err != nil {
		return nil, err
	}
	b := revision.NewBuilder("week", userRequest).WithClock(m.clock)
	b.AffectedRange(mod.StartDate, mod.EndDate)

	replacements, perr, err := m.applyWeek(ctx, b, athleteID, profile, mod)
	if err != nil {
		return nil, err
	}
	if perr != nil {
		if b.HasBlock() {
			return m.blocked(ctx, athleteID, b, perr)
		}
		return rejected(perr)
	}
	return m.finalizeApplied(ctx, athleteID, b, replacements,
		fmt.Sprintf("Updated %d session(s) between %s and %s.",
			len(replacements), mod.StartDate.Format("Jan 2"), mod.EndDate.Format("Jan 2")))
}

// applyWeek stages one week modification against the builder without
// finalizing, so the season modifier can aggregate several weeks into a
// single revision. Returns the replacements to persist.
func (m *Modifier) applyWeek(
	ctx context.Context,
	b *revision.Builder,
	athleteID string,
	profile *plan.Profile,
	mod *modification.Week,
) ([]store.Replacement, *coacherrors.PolicyError, error) {
	sessions, err := m.store.GetInRange(ctx, athleteID, mod.StartDate, mod.EndDate)
	if err != nil {
		return nil, nil, fmt.Errorf("load sessions in range: %w", err)
	}
	if len(sessions) == 0 {
		return nil, coacherrors.Policyf("no sessions are planned between %s and %s",
			mod.StartDate.Format("2006-01-02"), mod.EndDate.Format("2006-01-02")), nil
	}

	switch mod.ChangeType {
	case modification.WeekReduceVolume, modification.WeekIncreaseVolume:
		if perr := m.checkVolumeProtections(b, profile, mod); perr != nil {
			return nil, perr, nil
		}
		return m.applyWeekVolume(ctx, b, sessions, mod)
	case modification.WeekShiftDays:
		return m.applyShiftDays(ctx, b, athleteID, profile, sessions, mod)
	case modification.WeekReplaceDay:
		session, perr := sessionOn(sessions, mod.ReplaceDay.Date)
		if perr != nil {
			return nil, perr, nil
		}
		replacement, perr, err := m.applyDayChange(ctx, b, profile, session, mod.ReplaceDay)
		if err != nil || perr != nil {
			return nil, perr, err
		}
		return []store.Replacement{replacement}, nil, nil
	default:
		return nil, nil, coacherrors.Contractf("week change type %q reached the mutator unvalidated", mod.ChangeType)
	}
}

// checkVolumeProtections records the race-week and taper gates for a volume
// change and returns the policy error when one blocks.
func (m *Modifier) checkVolumeProtections(b *revision.Builder, profile *plan.Profile, mod *modification.Week) *coacherrors.PolicyError {
	increase := mod.ChangeType == modification.WeekIncreaseVolume
	if raceStart, raceEnd, ok := profile.RaceWeek(); ok && overlaps(mod.StartDate, mod.EndDate, raceStart, raceEnd) {
		if increase {
			perr := coacherrors.PolicyRule(RuleRaceWeekVolume, "Cannot increase volume during race week")
			b.Triggered(RuleRaceWeekVolume, perr.Message, revision.SeverityBlock)
			return perr
		}
		b.Checked(RuleRaceWeekVolume, "no volume increase during race week", revision.SeverityBlock)
	}
	if taperStart, taperEnd, ok := profile.TaperWindow(); ok && overlaps(mod.StartDate, mod.EndDate, taperStart, taperEnd) {
		if increase {
			perr := coacherrors.PolicyRule(RuleTaperVolume, "only volume reductions are allowed during the taper")
			b.Triggered(RuleTaperVolume, perr.Message, revision.SeverityBlock)
			return perr
		}
		b.Checked(RuleTaperVolume, "only volume reductions during the taper", revision.SeverityBlock)
	}
	return nil
}

// applyWeekVolume implements the volume algorithm. Rest and quality sessions
// are untouched. A percent change scales the easy pool by 1±percent with a
// per-session floor of one tenth of the original distance. A miles change is
// absorbed by the easy pool first; whatever the easy floors leave unabsorbed
// moves to the long runs, which never drop below the long-run minimum.
func (m *Modifier) applyWeekVolume(
	ctx context.Context,
	b *revision.Builder,
	sessions []*plan.Session,
	mod *modification.Week,
) ([]store.Replacement, *coacherrors.PolicyError, error) {
	reduce := mod.ChangeType == modification.WeekReduceVolume
	var easy, long []*plan.Session
	for _, s := range sessions {
		if s.DistanceMiles == nil {
			continue
		}
		switch s.Intent {
		case plan.IntentEasy:
			easy = append(easy, s)
		case plan.IntentLong:
			long = append(long, s)
		}
	}
	if len(easy) == 0 && len(long) == 0 {
		return nil, coacherrors.Policy("the selected week has no distance-based easy or long sessions to adjust"), nil
	}

	edits := make(map[string]float64) // session ID -> new distance
	easyClamped := false

	if mod.Percent != nil {
		factor := 1 + *mod.Percent
		if reduce {
			factor = 1 - *mod.Percent
		}
		for _, s := range easy {
			old := *s.DistanceMiles
			next := old * factor
			if reduce {
				if floor := old * plan.EasyFloorFactor; next < floor {
					next = floor
					easyClamped = true
				}
			}
			edits[s.ID] = next
		}
	} else {
		delta := *mod.Miles
		easyTotal := 0.0
		for _, s := range easy {
			easyTotal += *s.DistanceMiles
		}
		if reduce {
			absorbed := 0.0
			if easyTotal > 0 {
				for _, s := range easy {
					old := *s.DistanceMiles
					cut := delta * old / easyTotal
					floor := old * plan.EasyFloorFactor
					next := old - cut
					if next < floor {
						next = floor
						easyClamped = true
					}
					absorbed += old - next
					edits[s.ID] = next
				}
			}
			remaining := delta - absorbed
			if remaining > 1e-9 {
				for _, s := range long {
					if remaining <= 1e-9 {
						break
					}
					old := *s.DistanceMiles
					next := old - remaining
					if next < plan.MinLongRunMiles {
						next = plan.MinLongRunMiles
						b.Triggered(RuleLongRunFloor,
							fmt.Sprintf("long run held at the %s minimum", fmtMiles(plan.MinLongRunMiles)),
							revision.SeverityWarning)
					}
					if next < old {
						remaining -= old - next
						edits[s.ID] = next
					}
				}
				if remaining > 1e-9 {
					b.Triggered(RuleVolumeNotAbsorbed,
						fmt.Sprintf("%s of the requested reduction could not be absorbed", fmtMiles(remaining)),
						revision.SeverityWarning)
				}
			}
		} else {
			if easyTotal > 0 {
				for _, s := range easy {
					old := *s.DistanceMiles
					edits[s.ID] = old + delta*old/easyTotal
				}
			} else {
				share := delta / float64(len(long))
				for _, s := range long {
					edits[s.ID] = *s.DistanceMiles + share
				}
			}
		}
	}

	if easyClamped {
		b.Triggered(RuleEasyFloor, "easy sessions held at their minimum distance", revision.SeverityWarning)
	} else if len(easy) > 0 {
		b.Checked(RuleEasyFloor, "easy sessions keep a minimum distance", revision.SeverityWarning)
	}

	var replacements []store.Replacement
	for _, s := range sessions {
		next, ok := edits[s.ID]
		if !ok {
			continue
		}
		old := *s.DistanceMiles
		if almostEqual(next, old) {
			continue
		}
		next = round1(next)
		clone := s.Clone()
		clone.DistanceMiles = &next
		b.AddDelta(revision.Delta{
			EntityType: "session",
			EntityID:   s.ID,
			Date:       s.Date.Format("2006-01-02"),
			Field:      "distance_mi",
			Old:        old,
			New:        next,
		})
		replacements = append(replacements, m.supersede(s, clone))
	}
	if len(replacements) == 0 {
		return nil, coacherrors.Policy("the requested change would not alter any session"), nil
	}
	m.logger.Debug(ctx, "Week volume staged", "sessions", len(replacements), "reduce", reduce)
	return replacements, nil, nil
}

// applyShiftDays moves the selected sessions by the requested day offset,
// refusing moves that would stack two sessions on one date or collide with a
// session that is staying put.
func (m *Modifier) applyShiftDays(
	ctx context.Context,
	b *revision.Builder,
	athleteID string,
	profile *plan.Profile,
	sessions []*plan.Session,
	mod *modification.Week,
) ([]store.Replacement, *coacherrors.PolicyError, error) {
	offset := *mod.ShiftDays
	moved := sessions
	if len(mod.ShiftDates) > 0 {
		byDate := make(map[string]*plan.Session, len(sessions))
		for _, s := range sessions {
			byDate[plan.Day(s.Date).Format("2006-01-02")] = s
		}
		moved = moved[:0:0]
		for _, d := range mod.ShiftDates {
			s, ok := byDate[plan.Day(d).Format("2006-01-02")]
			if !ok {
				return nil, coacherrors.Policyf("no session is planned on %s", d.Format("2006-01-02")), nil
			}
			moved = append(moved, s)
		}
	}
	if len(moved) == 0 {
		return nil, coacherrors.Policy("there are no sessions to move"), nil
	}

	// Race day stays anchored unless explicitly allowed.
	for _, s := range moved {
		if profile.IsRaceDay(s.Date) && !mod.AllowRaceShift {
			perr := coacherrors.PolicyRule(RuleRaceDayShift, "race day cannot be moved")
			b.Triggered(RuleRaceDayShift, perr.Message, revision.SeverityBlock)
			return nil, perr, nil
		}
	}
	b.Checked(RuleRaceDayShift, "race day stays anchored", revision.SeverityBlock)

	movedIDs := make(map[string]bool, len(moved))
	targets := make(map[string]bool, len(moved))
	minTarget := plan.Day(moved[0].Date).AddDate(0, 0, offset)
	maxTarget := minTarget
	for _, s := range moved {
		movedIDs[s.ID] = true
		target := plan.Day(s.Date).AddDate(0, 0, offset)
		key := target.Format("2006-01-02")
		if targets[key] {
			perr := coacherrors.PolicyRule(RuleShiftCollision, "the shift would place two sessions on the same date")
			b.Triggered(RuleShiftCollision, perr.Message, revision.SeverityBlock)
			return nil, perr, nil
		}
		targets[key] = true
		if target.Before(minTarget) {
			minTarget = target
		}
		if target.After(maxTarget) {
			maxTarget = target
		}
	}

	// Collision check against sessions that are not being moved.
	existing, err := m.store.GetInRange(ctx, athleteID, minTarget, maxTarget)
	if err != nil {
		return nil, nil, fmt.Errorf("load sessions at shift targets: %w", err)
	}
	for _, s := range existing {
		if movedIDs[s.ID] {
			continue
		}
		if targets[plan.Day(s.Date).Format("2006-01-02")] {
			perr := coacherrors.PolicyRule(RuleShiftCollision,
				fmt.Sprintf("a session already exists on %s", plan.Day(s.Date).Format("2006-01-02")))
			b.Triggered(RuleShiftCollision, perr.Message, revision.SeverityBlock)
			return nil, perr, nil
		}
	}
	b.Checked(RuleShiftCollision, "shift targets are free", revision.SeverityBlock)

	replacements := make([]store.Replacement, 0, len(moved))
	for _, s := range moved {
		clone := s.Clone()
		clone.Date = plan.Day(s.Date).AddDate(0, 0, offset)
		b.AddDelta(revision.Delta{
			EntityType: "session",
			EntityID:   s.ID,
			Date:       s.Date.Format("2006-01-02"),
			Field:      "date",
			Old:        s.Date.Format("2006-01-02"),
			New:        clone.Date.Format("2006-01-02"),
		})
		replacements = append(replacements, m.supersede(s, clone))
	}
	m.logger.Debug(ctx, "Shift staged", "sessions", len(replacements), "offset", offset)
	return replacements, nil, nil
}

// sessionOn returns the session on the given date from an already-loaded
// range, mirroring the single-day lookup contract.
func sessionOn(sessions []*plan.Session, date time.Time) (*plan.Session, *coacherrors.PolicyError) {
	var found *plan.Session
	for _, s := range sessions {
		if plan.SameDay(s.Date, date) {
			if found != nil {
				return nil, coacherrors.Policyf("more than one session is planned on %s", date.Format("2006-01-02"))
			}
			found = s
		}
	}
	if found == nil {
		return nil, coacherrors.Policyf("no session is planned on %s", date.Format("2006-01-02"))
	}
	return found, nil
}

// overlaps reports whether [aStart, aEnd] intersects [bStart, bEnd] by
// calendar date.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !plan.Day(aEnd).Before(plan.Day(bStart)) && !plan.Day(aStart).After(plan.Day(bEnd))
}

func almostEqual(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
