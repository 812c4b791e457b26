package modification_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/plan/modification"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }
func s(v string) *string   { return &v }

func date(t *testing.T, iso string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", iso)
	require.NoError(t, err)
	return d
}

func TestWeekVolumeXOR(t *testing.T) {
	t.Parallel()
	base := modification.Week{
		StartDate:  time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 9, 13, 0, 0, 0, 0, time.UTC),
		ChangeType: modification.WeekReduceVolume,
	}

	neither := base
	err := neither.Validate()
	require.Error(t, err)
	assert.True(t, coacherrors.IsPolicy(err))

	both := base
	both.Percent = f(0.2)
	both.Miles = f(5)
	err = both.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not both")

	one := base
	one.Percent = f(0.2)
	require.NoError(t, one.Validate())
}

func TestWeekVolumePercentBounds(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		percent float64
		ok      bool
	}{
		{0.0, false},
		{-0.1, false},
		{0.1, true},
		{0.6, true},
		{0.61, false},
	} {
		w := modification.Week{
			StartDate:  time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
			EndDate:    time.Date(2026, 9, 13, 0, 0, 0, 0, time.UTC),
			ChangeType: modification.WeekIncreaseVolume,
			Percent:    f(tc.percent),
		}
		err := w.Validate()
		if tc.ok {
			assert.NoError(t, err, "percent %v", tc.percent)
		} else {
			assert.Error(t, err, "percent %v", tc.percent)
		}
	}
}

func TestWeekRangeBounds(t *testing.T) {
	t.Parallel()
	w := modification.Week{
		StartDate:  time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		ChangeType: modification.WeekReduceVolume,
		Percent:    f(0.2),
	}
	err := w.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum is 7")

	w.EndDate = w.StartDate.AddDate(0, 0, 6)
	require.NoError(t, w.Validate())
}

func TestDayChangeTypeFieldMatch(t *testing.T) {
	t.Parallel()
	d := modification.Day{
		Date:          time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		ChangeType:    modification.DayAdjustDistance,
		DistanceMiles: f(6),
	}
	require.NoError(t, d.Validate())

	d.DurationMinutes = i(45)
	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "changes only distance")

	replace := modification.Day{
		Date:            time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		ChangeType:      modification.DayReplaceMetrics,
		DistanceMiles:   f(6),
		DurationMinutes: i(45),
	}
	err = replace.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not both")
}

func TestRaceExactlyOneField(t *testing.T) {
	t.Parallel()
	none := modification.Race{ChangeType: modification.RaceChangeDate}
	err := none.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")

	d := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	two := modification.Race{
		ChangeType: modification.RaceChangeDate,
		Date:       &d,
		Distance:   s("marathon"),
	}
	err = two.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")

	one := modification.Race{ChangeType: modification.RaceChangeDate, Date: &d}
	require.NoError(t, one.Validate())
}

func TestRaceTaperBounds(t *testing.T) {
	t.Parallel()
	seven := modification.Race{ChangeType: modification.RaceChangeTaper, TaperWeeks: i(7)}
	err := seven.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "taper_weeks must be <= 6")

	zero := modification.Race{ChangeType: modification.RaceChangeTaper, TaperWeeks: i(0)}
	err = zero.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be >= 1")

	three := modification.Race{ChangeType: modification.RaceChangeTaper, TaperWeeks: i(3)}
	require.NoError(t, three.Validate())
}

func TestSeasonBounds(t *testing.T) {
	t.Parallel()
	zeroBased := modification.Season{
		StartWeek:  0,
		EndWeek:    4,
		ChangeType: modification.SeasonReduceVolume,
		Percent:    f(0.2),
	}
	require.Error(t, zeroBased.Validate())

	tooLong := modification.Season{
		StartWeek:  1,
		EndWeek:    26,
		ChangeType: modification.SeasonReduceVolume,
		Percent:    f(0.2),
	}
	err := tooLong.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum is 24")

	phase := modification.Season{
		StartWeek:  1,
		EndWeek:    4,
		ChangeType: modification.SeasonExtendPhase,
		PhaseName:  "base",
		PhaseWeeks: i(2),
	}
	require.NoError(t, phase.Validate())

	badPhase := phase
	badPhase.PhaseName = "warmup"
	require.Error(t, badPhase.Validate())
}

func TestResolveDate(t *testing.T) {
	t.Parallel()
	// A Wednesday.
	today := time.Date(2026, 9, 9, 15, 30, 0, 0, time.UTC)

	got, err := modification.ResolveDate("2026-10-01", today)
	require.NoError(t, err)
	assert.Equal(t, date(t, "2026-10-01"), got)

	got, err = modification.ResolveDate("today", today)
	require.NoError(t, err)
	assert.Equal(t, date(t, "2026-09-09"), got)

	got, err = modification.ResolveDate("tomorrow", today)
	require.NoError(t, err)
	assert.Equal(t, date(t, "2026-09-10"), got)

	// Next Wednesday, never today.
	got, err = modification.ResolveDate("wednesday", today)
	require.NoError(t, err)
	assert.Equal(t, date(t, "2026-09-16"), got)

	got, err = modification.ResolveDate("friday", today)
	require.NoError(t, err)
	assert.Equal(t, date(t, "2026-09-11"), got)

	_, err = modification.ResolveDate("sometime soon", today)
	require.Error(t, err)
	assert.True(t, coacherrors.IsPolicy(err))
	assert.Contains(t, err.Error(), "cannot resolve date")

	_, err = modification.ResolveDate("", today)
	require.Error(t, err)
}

func TestAdapterBuildsValidatedModifications(t *testing.T) {
	t.Parallel()
	today := time.Date(2026, 9, 9, 0, 0, 0, 0, time.UTC)

	day, err := modification.NewDay(modification.RawDay{
		Date:          "tomorrow",
		ChangeType:    "adjust_distance",
		DistanceMiles: f(6),
	}, today)
	require.NoError(t, err)
	assert.Equal(t, date(t, "2026-09-10"), day.Date)
	assert.Equal(t, modification.DayAdjustDistance, day.ChangeType)

	_, err = modification.NewDay(modification.RawDay{
		Date:       "2026-09-10",
		ChangeType: "repaint",
	}, today)
	require.Error(t, err)
	assert.True(t, coacherrors.IsPolicy(err))

	race, err := modification.NewRace(modification.RawRace{
		ChangeType: "change_taper",
		TaperWeeks: i(3),
	}, today)
	require.NoError(t, err)
	assert.Equal(t, modification.RaceChangeTaper, race.ChangeType)
}
