package modify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/plan"
	"github.com/stridelabs/stride/runtime/plan/modification"
	"github.com/stridelabs/stride/runtime/plan/modify"
	"github.com/stridelabs/stride/runtime/plan/revision"
)

// weekStart is the Monday of the current week.
var weekStart = plan.Day(now.AddDate(0, 0, -2))

func TestModifyWeekReducePercentSparesLongRun(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	long := seedSession(t, s, weekStart.AddDate(0, 0, 5), plan.IntentLong, 12.0)
	e1 := seedSession(t, s, weekStart, plan.IntentEasy, 6.0)
	e2 := seedSession(t, s, weekStart.AddDate(0, 0, 2), plan.IntentEasy, 4.0)
	seedSession(t, s, weekStart.AddDate(0, 0, 3), plan.IntentQuality, 7.0)

	res, err := m.ModifyWeek(ctx, athlete, &modification.Week{
		StartDate:  weekStart,
		EndDate:    weekStart.AddDate(0, 0, 6),
		ChangeType: modification.WeekReduceVolume,
		Percent:    f(0.5),
	}, "cut this week in half")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Updated 2 session(s) between Sep 7 and Sep 13.", res.Message)
	assert.Equal(t, revision.OutcomeApplied, res.Revision.Outcome)

	// Only the easy sessions scale; long and quality are untouched.
	byOrig := make(map[string]float64)
	for _, d := range res.Revision.Deltas {
		byOrig[d.EntityID] = d.New.(float64)
	}
	assert.Equal(t, 3.0, byOrig[e1.ID])
	assert.Equal(t, 2.0, byOrig[e2.ID])
	_, touched := byOrig[long.ID]
	assert.False(t, touched)

	liveLong, err := s.GetByDate(ctx, athlete, long.Date)
	require.NoError(t, err)
	assert.Equal(t, 12.0, *liveLong.DistanceMiles)
}

func TestModifyWeekReduceMilesClampsLongRun(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	long := seedSession(t, s, weekStart.AddDate(0, 0, 5), plan.IntentLong, 12.0)
	seedSession(t, s, weekStart, plan.IntentEasy, 3.0)

	// 10 miles to cut: the easy run floors at 0.3, absorbing 2.7; the long
	// run takes the remaining 7.3 but stops at the 8-mile floor.
	res, err := m.ModifyWeek(ctx, athlete, &modification.Week{
		StartDate:  weekStart,
		EndDate:    weekStart.AddDate(0, 0, 6),
		ChangeType: modification.WeekReduceVolume,
		Miles:      f(10.0),
	}, "drop ten miles this week")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, revision.OutcomePartiallyApplied, res.Revision.Outcome)

	rules := triggeredRules(res.Revision)
	assert.Contains(t, rules, modify.RuleLongRunFloor)
	assert.Contains(t, rules, modify.RuleEasyFloor)
	assert.Contains(t, rules, modify.RuleVolumeNotAbsorbed)

	liveLong, err := s.GetByDate(ctx, athlete, long.Date)
	require.NoError(t, err)
	assert.Equal(t, plan.MinLongRunMiles, *liveLong.DistanceMiles)
}

func TestModifyWeekIncreaseDuringRaceWeekBlocked(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	race := weekStart.AddDate(0, 0, 6)
	seedProfile(t, s, &plan.Profile{RaceDate: &race, TaperWeeks: 2})
	seedSession(t, s, weekStart, plan.IntentEasy, 4.0)

	res, err := m.ModifyWeek(ctx, athlete, &modification.Week{
		StartDate:  weekStart,
		EndDate:    weekStart.AddDate(0, 0, 6),
		ChangeType: modification.WeekIncreaseVolume,
		Percent:    f(0.2),
	}, "add 20% this week")
	require.Error(t, err)
	assert.True(t, coacherrors.IsPolicy(err))
	require.False(t, res.Success)
	assert.Equal(t, "Cannot increase volume during race week", res.Error)
	require.NotNil(t, res.Revision)
	assert.Equal(t, revision.OutcomeBlocked, res.Revision.Outcome)
	assert.Equal(t, "Cannot increase volume during race week", res.Revision.Reason)
	assert.Contains(t, triggeredRules(res.Revision), modify.RuleRaceWeekVolume)

	// The blocked attempt is still on the ledger.
	revs, err := s.ListRevisions(ctx, athlete)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, "blocked", revs[0].Status)

	// And the plan is unchanged.
	live, err := s.GetByDate(ctx, athlete, weekStart)
	require.NoError(t, err)
	assert.Equal(t, 4.0, *live.DistanceMiles)
}

func TestModifyWeekTaperAllowsReductionsOnly(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	race := weekStart.AddDate(0, 0, 20)
	seedProfile(t, s, &plan.Profile{RaceDate: &race, TaperWeeks: 3})
	seedSession(t, s, weekStart, plan.IntentEasy, 5.0)

	inc := &modification.Week{
		StartDate:  weekStart,
		EndDate:    weekStart.AddDate(0, 0, 6),
		ChangeType: modification.WeekIncreaseVolume,
		Percent:    f(0.1),
	}
	res, err := m.ModifyWeek(ctx, athlete, inc, "bump this week")
	require.Error(t, err)
	require.False(t, res.Success)
	assert.Equal(t, "only volume reductions are allowed during the taper", res.Error)
	assert.Contains(t, triggeredRules(res.Revision), modify.RuleTaperVolume)

	red := &modification.Week{
		StartDate:  weekStart,
		EndDate:    weekStart.AddDate(0, 0, 6),
		ChangeType: modification.WeekReduceVolume,
		Percent:    f(0.2),
	}
	res, err = m.ModifyWeek(ctx, athlete, red, "ease off this week")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestModifyWeekEasyFloorOnPercent(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	seedSession(t, s, weekStart, plan.IntentEasy, 5.0)

	// A 60% cut with a 10% per-session floor cannot clamp; a warning only
	// appears when the floor actually binds, so this one applies cleanly.
	res, err := m.ModifyWeek(ctx, athlete, &modification.Week{
		StartDate:  weekStart,
		EndDate:    weekStart.AddDate(0, 0, 6),
		ChangeType: modification.WeekReduceVolume,
		Percent:    f(0.6),
	}, "big cut")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, revision.OutcomeApplied, res.Revision.Outcome)
	assert.NotContains(t, triggeredRules(res.Revision), modify.RuleEasyFloor)

	live, err := s.GetByDate(ctx, athlete, weekStart)
	require.NoError(t, err)
	assert.Equal(t, 2.0, *live.DistanceMiles)
}

func TestModifyWeekNoAdjustableSessions(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	seedSession(t, s, weekStart, plan.IntentQuality, 7.0)
	seedDurationSession(t, s, weekStart.AddDate(0, 0, 1), plan.IntentEasy, 40)

	res, err := m.ModifyWeek(ctx, athlete, &modification.Week{
		StartDate:  weekStart,
		EndDate:    weekStart.AddDate(0, 0, 6),
		ChangeType: modification.WeekReduceVolume,
		Percent:    f(0.2),
	}, "reduce this week")
	require.Error(t, err)
	assert.True(t, coacherrors.IsPolicy(err))
	require.False(t, res.Success)
	assert.Equal(t, "the selected week has no distance-based easy or long sessions to adjust", res.Error)
	assert.Nil(t, res.Revision)
}

func TestModifyWeekEmptyRange(t *testing.T) {
	m, _ := newModifier(t)

	res, err := m.ModifyWeek(context.Background(), athlete, &modification.Week{
		StartDate:  weekStart,
		EndDate:    weekStart.AddDate(0, 0, 6),
		ChangeType: modification.WeekReduceVolume,
		Percent:    f(0.2),
	}, "reduce this week")
	require.Error(t, err)
	assert.True(t, coacherrors.IsPolicy(err))
	require.False(t, res.Success)
	assert.Equal(t, "no sessions are planned between 2026-09-07 and 2026-09-13", res.Error)
}

func TestModifyWeekShiftDays(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	mon := seedSession(t, s, weekStart, plan.IntentEasy, 5.0)
	seedSession(t, s, weekStart.AddDate(0, 0, 1), plan.IntentQuality, 6.0)

	res, err := m.ModifyWeek(ctx, athlete, &modification.Week{
		StartDate:  weekStart,
		EndDate:    weekStart.AddDate(0, 0, 6),
		ChangeType: modification.WeekShiftDays,
		ShiftDays:  i(1),
	}, "push everything back a day")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.ModifiedSessions, 2)

	moved, err := s.GetByDate(ctx, athlete, weekStart.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, mon.Intent, moved.Intent)

	_, err = s.GetByDate(ctx, athlete, weekStart)
	require.Error(t, err)
}

func TestModifyWeekShiftCollision(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	seedSession(t, s, weekStart, plan.IntentEasy, 5.0)
	seedSession(t, s, weekStart.AddDate(0, 0, 1), plan.IntentQuality, 6.0)

	// Move only Monday: Tuesday stays put, so the target is occupied.
	res, err := m.ModifyWeek(ctx, athlete, &modification.Week{
		StartDate:  weekStart,
		EndDate:    weekStart.AddDate(0, 0, 6),
		ChangeType: modification.WeekShiftDays,
		ShiftDays:  i(1),
		ShiftDates: []time.Time{weekStart},
	}, "move monday to tuesday")
	require.Error(t, err)
	assert.True(t, coacherrors.IsPolicy(err))
	require.False(t, res.Success)
	assert.Equal(t, "a session already exists on 2026-09-08", res.Error)
	assert.Contains(t, triggeredRules(res.Revision), modify.RuleShiftCollision)
}

func TestModifyWeekShiftRaceDayAnchored(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	race := weekStart.AddDate(0, 0, 5)
	seedProfile(t, s, &plan.Profile{RaceDate: &race})
	seedSession(t, s, race, plan.IntentQuality, 26.2)

	res, err := m.ModifyWeek(ctx, athlete, &modification.Week{
		StartDate:  weekStart,
		EndDate:    weekStart.AddDate(0, 0, 6),
		ChangeType: modification.WeekShiftDays,
		ShiftDays:  i(1),
	}, "move everything a day later")
	require.Error(t, err)
	require.False(t, res.Success)
	assert.Equal(t, "race day cannot be moved", res.Error)
	assert.Contains(t, triggeredRules(res.Revision), modify.RuleRaceDayShift)
}

func TestModifyWeekReplaceDayDelegates(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	wed := weekStart.AddDate(0, 0, 2)
	seedSession(t, s, wed, plan.IntentEasy, 5.0)

	res, err := m.ModifyWeek(ctx, athlete, &modification.Week{
		StartDate:  weekStart,
		EndDate:    weekStart.AddDate(0, 0, 6),
		ChangeType: modification.WeekReplaceDay,
		ReplaceDay: &modification.Day{
			Date:          wed,
			ChangeType:    modification.DayAdjustDistance,
			DistanceMiles: f(7.0),
		},
	}, "make wednesday 7 miles")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "week", res.Revision.Scope)

	live, err := s.GetByDate(ctx, athlete, wed)
	require.NoError(t, err)
	assert.Equal(t, 7.0, *live.DistanceMiles)
}
