package modification

// adapter.go converts the partially-null attribute objects produced by the
// external extractor into validated modifications. Extraction never performs
// business validation; everything user-provided is checked here so invalid
// input surfaces as a policy error, not a mutation.

import (
	"strings"
	"time"

	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/plan"
)

type (
	// RawDay is the attribute object returned by the day extractor.
	RawDay struct {
		Date            string   `json:"date"`
		ChangeType      string   `json:"change_type"`
		DistanceMiles   *float64 `json:"distance_miles"`
		DurationMinutes *int     `json:"duration_minutes"`
		Pace            string   `json:"pace"`
		Intent          string   `json:"intent"`
		AllowRaceDay    bool     `json:"allow_race_day"`
	}

	// RawWeek is the attribute object returned by the week extractor.
	RawWeek struct {
		StartDate      string   `json:"start_date"`
		EndDate        string   `json:"end_date"`
		ChangeType     string   `json:"change_type"`
		Percent        *float64 `json:"percent"`
		Miles          *float64 `json:"miles"`
		ShiftDays      *int     `json:"shift_days"`
		ShiftDates     []string `json:"shift_dates"`
		ReplaceDay     *RawDay  `json:"replace_day"`
		AllowRaceShift bool     `json:"allow_race_shift"`
	}

	// RawSeason is the attribute object returned by the season extractor.
	RawSeason struct {
		StartWeek  int      `json:"start_week"`
		EndWeek    int      `json:"end_week"`
		ChangeType string   `json:"change_type"`
		Percent    *float64 `json:"percent"`
		Miles      *float64 `json:"miles"`
		PhaseName  string   `json:"phase_name"`
		PhaseWeeks *int     `json:"phase_weeks"`
	}

	// RawRace is the attribute object returned by the race extractor.
	RawRace struct {
		ChangeType string  `json:"change_type"`
		Date       string  `json:"date"`
		Distance   *string `json:"distance"`
		Priority   *string `json:"priority"`
		TaperWeeks *int    `json:"taper_weeks"`
	}
)

// NewDay builds and validates a day modification from raw attributes.
// Relative dates are resolved against today.
func NewDay(raw RawDay, today time.Time) (*Day, error) {
	date, err := ResolveDate(raw.Date, today)
	if err != nil {
		return nil, err
	}
	d := &Day{
		Date:            date,
		ChangeType:      DayChangeType(strings.TrimSpace(raw.ChangeType)),
		DistanceMiles:   raw.DistanceMiles,
		DurationMinutes: raw.DurationMinutes,
		Pace:            plan.PaceZone(strings.TrimSpace(raw.Pace)),
		IntentOverride:  plan.Intent(strings.TrimSpace(raw.Intent)),
		AllowRaceDay:    raw.AllowRaceDay,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewWeek builds and validates a week modification from raw attributes.
func NewWeek(raw RawWeek, today time.Time) (*Week, error) {
	start, err := ResolveDate(raw.StartDate, today)
	if err != nil {
		return nil, err
	}
	end, err := ResolveDate(raw.EndDate, today)
	if err != nil {
		return nil, err
	}
	w := &Week{
		StartDate:      start,
		EndDate:        end,
		ChangeType:     WeekChangeType(strings.TrimSpace(raw.ChangeType)),
		Percent:        raw.Percent,
		Miles:          raw.Miles,
		ShiftDays:      raw.ShiftDays,
		AllowRaceShift: raw.AllowRaceShift,
	}
	for _, s := range raw.ShiftDates {
		d, err := ResolveDate(s, today)
		if err != nil {
			return nil, err
		}
		w.ShiftDates = append(w.ShiftDates, d)
	}
	if raw.ReplaceDay != nil {
		day, err := NewDay(*raw.ReplaceDay, today)
		if err != nil {
			return nil, err
		}
		w.ReplaceDay = day
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// NewSeason builds and validates a season modification from raw attributes.
func NewSeason(raw RawSeason) (*Season, error) {
	s := &Season{
		StartWeek:  raw.StartWeek,
		EndWeek:    raw.EndWeek,
		ChangeType: SeasonChangeType(strings.TrimSpace(raw.ChangeType)),
		Percent:    raw.Percent,
		Miles:      raw.Miles,
		PhaseName:  strings.ToLower(strings.TrimSpace(raw.PhaseName)),
		PhaseWeeks: raw.PhaseWeeks,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewRace builds and validates a race modification from raw attributes.
func NewRace(raw RawRace, today time.Time) (*Race, error) {
	r := &Race{
		ChangeType: RaceChangeType(strings.TrimSpace(raw.ChangeType)),
		Distance:   raw.Distance,
		Priority:   raw.Priority,
		TaperWeeks: raw.TaperWeeks,
	}
	if strings.TrimSpace(raw.Date) != "" {
		date, err := ResolveDate(raw.Date, today)
		if err != nil {
			return nil, err
		}
		r.Date = &date
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// ResolveDate parses an extracted date attribute. Accepts ISO dates plus the
// small set of relative forms the extractor is allowed to pass through
// verbatim (today, tomorrow, yesterday, weekday names meaning the next such
// weekday). Anything else is an unresolvable user-input error.
func ResolveDate(s string, today time.Time) (time.Time, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return time.Time{}, coacherrors.Policy("a date is required")
	}
	switch v {
	case "today":
		return plan.Day(today), nil
	case "tomorrow":
		return plan.Day(today).AddDate(0, 0, 1), nil
	case "yesterday":
		return plan.Day(today).AddDate(0, 0, -1), nil
	}
	if wd, ok := weekdays[v]; ok {
		d := plan.Day(today)
		offset := (int(wd) - int(d.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7
		}
		return d.AddDate(0, 0, offset), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, coacherrors.Policyf("cannot resolve date %q", s)
	}
	return plan.Day(t), nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
