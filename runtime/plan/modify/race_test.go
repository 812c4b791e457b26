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

func raceProfile(daysOut, taperWeeks int) *plan.Profile {
	d := plan.Day(now.AddDate(0, 0, daysOut))
	return &plan.Profile{RaceDate: &d, RaceDistance: "marathon", RacePriority: "A", TaperWeeks: taperWeeks}
}

func TestModifyRaceTaper(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	seedProfile(t, s, raceProfile(60, 2))

	res, err := m.ModifyRace(ctx, athlete, &modification.Race{
		ChangeType: modification.RaceChangeTaper,
		TaperWeeks: i(3),
	}, "make the taper three weeks")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Set the taper to 3 week(s).", res.Message)
	assert.Equal(t, revision.OutcomeApplied, res.Revision.Outcome)
	assert.Empty(t, triggeredRules(res.Revision))
	require.Len(t, res.Revision.Deltas, 1)
	assert.Equal(t, "taper_weeks", res.Revision.Deltas[0].Field)
	assert.Equal(t, 2, res.Revision.Deltas[0].Old)
	assert.Equal(t, 3, res.Revision.Deltas[0].New)

	p, err := s.GetProfile(ctx, athlete)
	require.NoError(t, err)
	assert.Equal(t, 3, p.TaperWeeks)
}

func TestModifyRaceTaperBounds(t *testing.T) {
	m, s := newModifier(t)
	seedProfile(t, s, raceProfile(60, 2))

	for _, weeks := range []int{0, 7} {
		res, err := m.ModifyRace(context.Background(), athlete, &modification.Race{
			ChangeType: modification.RaceChangeTaper,
			TaperWeeks: i(weeks),
		}, "weird taper")
		require.Error(t, err)
		assert.True(t, coacherrors.IsPolicy(err))
		require.False(t, res.Success)
		assert.Nil(t, res.Revision)
	}
}

func TestModifyRaceDistanceAndPriority(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	seedProfile(t, s, raceProfile(60, 2))

	res, err := m.ModifyRace(ctx, athlete, &modification.Race{
		ChangeType: modification.RaceChangeDistance,
		Distance:   sp(" Half Marathon "),
	}, "switch to the half")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Changed the race distance to half marathon.", res.Message)

	res, err = m.ModifyRace(ctx, athlete, &modification.Race{
		ChangeType: modification.RaceChangePriority,
		Priority:   sp("b"),
	}, "it's a b race now")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Changed the race priority to B.", res.Message)

	p, err := s.GetProfile(ctx, athlete)
	require.NoError(t, err)
	assert.Equal(t, "half marathon", p.RaceDistance)
	assert.Equal(t, "B", p.RacePriority)
}

func TestModifyRaceNoProfile(t *testing.T) {
	m, _ := newModifier(t)

	res, err := m.ModifyRace(context.Background(), athlete, &modification.Race{
		ChangeType: modification.RaceChangeTaper,
		TaperWeeks: i(2),
	}, "set a taper")
	require.Error(t, err)
	assert.True(t, coacherrors.IsPolicy(err))
	require.False(t, res.Success)
	assert.Equal(t, "no goal race is configured yet", res.Error)
}

func TestModifyRaceDateStagedBehindApproval(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	seedProfile(t, s, raceProfile(60, 2))
	oldDate := plan.Day(now.AddDate(0, 0, 60))
	newDate := plan.Day(now.AddDate(0, 0, 74))

	res, err := m.ModifyRace(ctx, athlete, &modification.Race{
		ChangeType: modification.RaceChangeDate,
		Date:       &newDate,
	}, "push the race out two weeks")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.RequiresApproval)
	require.NotEmpty(t, res.RevisionID)
	assert.Equal(t, "Staged the race date move to Nov 22.", res.Message)
	assert.Equal(t, revision.StatusPendingApproval, res.Revision.Status)
	assert.Contains(t, triggeredRules(res.Revision), modify.RuleApprovalRequired)
	assert.NotContains(t, triggeredRules(res.Revision), modify.RuleRaceDateProximity)

	// The profile stays untouched while the revision is pending.
	p, err := s.GetProfile(ctx, athlete)
	require.NoError(t, err)
	require.NotNil(t, p.RaceDate)
	assert.True(t, p.RaceDate.Equal(oldDate))

	// Applying without approval is a programming error.
	_, err = m.ApplyApproved(ctx, athlete, res.RevisionID)
	require.Error(t, err)
	assert.True(t, coacherrors.IsContract(err))

	// Approve, then apply.
	_, err = s.ApproveRevision(ctx, res.RevisionID, athlete)
	require.NoError(t, err)
	applied, err := m.ApplyApproved(ctx, athlete, res.RevisionID)
	require.NoError(t, err)
	require.True(t, applied.Success)
	assert.Equal(t, "Applied the confirmed race change.", applied.Message)

	p, err = s.GetProfile(ctx, athlete)
	require.NoError(t, err)
	require.NotNil(t, p.RaceDate)
	assert.True(t, p.RaceDate.Equal(newDate))
}

func TestModifyRaceDateProximityWarning(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	seedProfile(t, s, raceProfile(60, 3))

	// Ten days out is inside a three-week taper.
	soon := plan.Day(now.AddDate(0, 0, 10))
	res, err := m.ModifyRace(ctx, athlete, &modification.Race{
		ChangeType: modification.RaceChangeDate,
		Date:       &soon,
	}, "actually the race is next week")
	require.NoError(t, err)
	assert.True(t, res.RequiresApproval)
	rules := triggeredRules(res.Revision)
	require.Contains(t, rules, modify.RuleRaceDateProximity)
	assert.Equal(t, revision.SeverityWarning, rules[modify.RuleRaceDateProximity].Severity)
}

func TestModifyRaceExactlyOneField(t *testing.T) {
	m, s := newModifier(t)
	seedProfile(t, s, raceProfile(60, 2))

	d := plan.Day(now.AddDate(0, 0, 30))
	res, err := m.ModifyRace(context.Background(), athlete, &modification.Race{
		ChangeType: modification.RaceChangeDate,
		Date:       &d,
		TaperWeeks: i(2),
	}, "change everything")
	require.Error(t, err)
	assert.True(t, coacherrors.IsPolicy(err))
	require.False(t, res.Success)
	assert.Equal(t, "a race change sets exactly one of date, distance, priority, or taper", res.Error)
}

func TestApplyApprovedUnknownRevision(t *testing.T) {
	m, _ := newModifier(t)

	_, err := m.ApplyApproved(context.Background(), athlete, "rev-missing")
	require.Error(t, err)
	assert.True(t, coacherrors.IsContract(err))
}

func TestApplyApprovedReplaysTaperDelta(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	seedProfile(t, s, raceProfile(60, 2))

	// Revisions round-tripped through JSON carry numbers as float64; the
	// replay must still restore an int taper.
	day := plan.Day(now.AddDate(0, 0, 45))
	res, err := m.ModifyRace(ctx, athlete, &modification.Race{
		ChangeType: modification.RaceChangeDate,
		Date:       &day,
	}, "move the race")
	require.NoError(t, err)
	_, err = s.ApproveRevision(ctx, res.RevisionID, athlete)
	require.NoError(t, err)

	stored, err := s.GetRevision(ctx, res.RevisionID)
	require.NoError(t, err)
	assert.True(t, stored.ApprovedByUser)
	assert.Equal(t, string(revision.OutcomeApplied), stored.Status)

	applied, err := m.ApplyApproved(ctx, athlete, res.RevisionID)
	require.NoError(t, err)
	assert.True(t, applied.Success)

	p, err := s.GetProfile(ctx, athlete)
	require.NoError(t, err)
	assert.True(t, p.RaceDate.Equal(day))
	assert.Equal(t, 2, p.TaperWeeks)
}

func TestRaceDateNormalizedToDay(t *testing.T) {
	m, s := newModifier(t)
	ctx := context.Background()
	seedProfile(t, s, raceProfile(60, 2))

	at := time.Date(2026, 10, 20, 14, 30, 0, 0, time.UTC)
	res, err := m.ModifyRace(ctx, athlete, &modification.Race{
		ChangeType: modification.RaceChangeDate,
		Date:       &at,
	}, "race is oct 20")
	require.NoError(t, err)
	require.Len(t, res.Revision.Deltas, 1)
	assert.Equal(t, "2026-10-20", res.Revision.Deltas[0].New)
}
