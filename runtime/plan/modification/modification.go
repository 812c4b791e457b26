// Package modification defines the typed plan-change requests consumed by
// the per-scope mutators. Each modification carries a change type plus
// exactly the fields that change type requires; the XOR constraints are
// enforced by Validate before any mutation runs. Modifications are built
// once from raw extracted attributes and are immutable afterwards.
package modification

import (
	"fmt"
	"strings"
	"time"

	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/plan"
)

type (
	// DayChangeType enumerates single-day change kinds.
	DayChangeType string

	// WeekChangeType enumerates week-range change kinds.
	WeekChangeType string

	// SeasonChangeType enumerates multi-week season change kinds.
	SeasonChangeType string

	// RaceChangeType enumerates race-level change kinds.
	RaceChangeType string

	// Day is a validated single-day change request.
	Day struct {
		// Date is the calendar date of the session to change.
		Date time.Time
		// ChangeType selects which field of the session changes.
		ChangeType DayChangeType
		// DistanceMiles is the new distance for adjust_distance or
		// replace_metrics.
		DistanceMiles *float64
		// DurationMinutes is the new duration for adjust_duration or
		// replace_metrics.
		DurationMinutes *int
		// Pace is the new pace zone for adjust_pace or replace_metrics.
		Pace plan.PaceZone
		// IntentOverride, when set, replaces the session intent. Absent an
		// override the original intent is always preserved.
		IntentOverride plan.Intent
		// AllowRaceDay explicitly overrides the race-day protection.
		AllowRaceDay bool
	}

	// Week is a validated week-range change request.
	Week struct {
		// StartDate and EndDate bound the affected range (inclusive, ≤7 days).
		StartDate time.Time
		EndDate   time.Time
		// ChangeType selects the week algorithm.
		ChangeType WeekChangeType
		// Percent is the volume change fraction, exclusive with Miles.
		Percent *float64
		// Miles is the absolute volume delta, exclusive with Percent.
		Miles *float64
		// ShiftDays moves sessions by this many days for shift_days.
		ShiftDays *int
		// ShiftDates limits shift_days to these dates; empty means every
		// session in range.
		ShiftDates []time.Time
		// ReplaceDay is the delegated single-day change for replace_day.
		ReplaceDay *Day
		// AllowRaceShift explicitly permits moving the race-day session.
		AllowRaceShift bool
	}

	// Season is a validated multi-week season change request. Week numbers
	// are 1-based and season-relative.
	Season struct {
		StartWeek int
		EndWeek   int
		// ChangeType selects the season algorithm.
		ChangeType SeasonChangeType
		// Percent is applied uniformly to every week in range.
		Percent *float64
		// Miles is divided evenly across the weeks in range.
		Miles *float64
		// PhaseName names the phase for extend_phase/reduce_phase.
		PhaseName string
		// PhaseWeeks is the positive week count for phase changes.
		PhaseWeeks *int
	}

	// Race is a validated race-level change request. Exactly one of the
	// four fields is set, matching ChangeType.
	Race struct {
		ChangeType RaceChangeType
		// Date is the new race date for change_date.
		Date *time.Time
		// Distance is the new race distance for change_distance.
		Distance *string
		// Priority is the new race priority for change_priority.
		Priority *string
		// TaperWeeks is the new taper length for change_taper.
		TaperWeeks *int
	}
)

const (
	DayAdjustDistance DayChangeType = "adjust_distance"
	DayAdjustDuration DayChangeType = "adjust_duration"
	DayAdjustPace     DayChangeType = "adjust_pace"
	DayReplaceMetrics DayChangeType = "replace_metrics"
)

const (
	WeekReduceVolume   WeekChangeType = "reduce_volume"
	WeekIncreaseVolume WeekChangeType = "increase_volume"
	WeekShiftDays      WeekChangeType = "shift_days"
	WeekReplaceDay     WeekChangeType = "replace_day"
)

const (
	SeasonReduceVolume   SeasonChangeType = "reduce_volume"
	SeasonIncreaseVolume SeasonChangeType = "increase_volume"
	SeasonExtendPhase    SeasonChangeType = "extend_phase"
	SeasonReducePhase    SeasonChangeType = "reduce_phase"
)

const (
	RaceChangeDate     RaceChangeType = "change_date"
	RaceChangeDistance RaceChangeType = "change_distance"
	RaceChangePriority RaceChangeType = "change_priority"
	RaceChangeTaper    RaceChangeType = "change_taper"
)

// MaxVolumePercent bounds a single volume change. A cut or bump beyond 60%
// in one step is outside safe progression and is rejected as user input.
const MaxVolumePercent = 0.6

// MaxSeasonWeeks bounds the span of a single season modification.
const MaxSeasonWeeks = 24

// MaxTaperWeeks bounds the configurable taper length.
const MaxTaperWeeks = 6

// Validate checks the day modification's structural invariants.
func (d *Day) Validate() error {
	if d == nil {
		return coacherrors.Policy("no day modification provided")
	}
	if d.Date.IsZero() {
		return coacherrors.Policy("a date is required")
	}
	switch d.ChangeType {
	case DayAdjustDistance:
		if d.DistanceMiles == nil {
			return coacherrors.Policy("adjust_distance requires a distance")
		}
		if *d.DistanceMiles <= 0 {
			return coacherrors.Policy("distance must be positive")
		}
		if d.DurationMinutes != nil || d.Pace != "" {
			return coacherrors.Policy("adjust_distance changes only distance")
		}
	case DayAdjustDuration:
		if d.DurationMinutes == nil {
			return coacherrors.Policy("adjust_duration requires a duration")
		}
		if *d.DurationMinutes <= 0 {
			return coacherrors.Policy("duration must be positive")
		}
		if d.DistanceMiles != nil || d.Pace != "" {
			return coacherrors.Policy("adjust_duration changes only duration")
		}
	case DayAdjustPace:
		if d.Pace == "" {
			return coacherrors.Policy("adjust_pace requires a pace zone")
		}
		if d.DistanceMiles != nil || d.DurationMinutes != nil {
			return coacherrors.Policy("adjust_pace changes only pace")
		}
	case DayReplaceMetrics:
		if d.DistanceMiles == nil && d.DurationMinutes == nil {
			return coacherrors.Policy("replace_metrics requires a distance or duration")
		}
		if d.DistanceMiles != nil && d.DurationMinutes != nil {
			return coacherrors.Policy("replace_metrics takes distance or duration, not both")
		}
	default:
		return coacherrors.Policyf("unknown day change type %q", d.ChangeType)
	}
	if d.IntentOverride != "" && !plan.ValidIntent(string(d.IntentOverride)) {
		return coacherrors.Policyf("unknown workout intent %q", d.IntentOverride)
	}
	return nil
}

// Validate checks the week modification's structural invariants, including
// the percent-xor-miles constraint for volume changes.
func (w *Week) Validate() error {
	if w == nil {
		return coacherrors.Policy("no week modification provided")
	}
	if w.StartDate.IsZero() || w.EndDate.IsZero() {
		return coacherrors.Policy("a start and end date are required")
	}
	if w.EndDate.Before(w.StartDate) {
		return coacherrors.Policy("end date precedes start date")
	}
	if days := int(plan.Day(w.EndDate).Sub(plan.Day(w.StartDate)).Hours()/24) + 1; days > 7 {
		return coacherrors.Policyf("week range spans %d days, maximum is 7", days)
	}
	switch w.ChangeType {
	case WeekReduceVolume, WeekIncreaseVolume:
		if err := validateVolumeFields(w.Percent, w.Miles); err != nil {
			return err
		}
	case WeekShiftDays:
		if w.ShiftDays == nil || *w.ShiftDays == 0 {
			return coacherrors.Policy("shift_days requires a non-zero day offset")
		}
	case WeekReplaceDay:
		if w.ReplaceDay == nil {
			return coacherrors.Policy("replace_day requires a day modification")
		}
		if !plan.SameDay(w.ReplaceDay.Date, plan.Day(w.ReplaceDay.Date)) {
			return coacherrors.Policy("replace_day date is not a calendar date")
		}
		if w.ReplaceDay.Date.Before(plan.Day(w.StartDate)) || w.ReplaceDay.Date.After(plan.Day(w.EndDate)) {
			return coacherrors.Policy("replace_day date falls outside the week range")
		}
		if err := w.ReplaceDay.Validate(); err != nil {
			return err
		}
	default:
		return coacherrors.Policyf("unknown week change type %q", w.ChangeType)
	}
	return nil
}

// Validate checks the season modification's structural invariants.
func (s *Season) Validate() error {
	if s == nil {
		return coacherrors.Policy("no season modification provided")
	}
	if s.StartWeek < 1 {
		return coacherrors.Policy("season weeks are 1-based")
	}
	if s.EndWeek < s.StartWeek {
		return coacherrors.Policy("end week precedes start week")
	}
	if n := s.EndWeek - s.StartWeek + 1; n > MaxSeasonWeeks {
		return coacherrors.Policyf("season range spans %d weeks, maximum is %d", n, MaxSeasonWeeks)
	}
	switch s.ChangeType {
	case SeasonReduceVolume, SeasonIncreaseVolume:
		if err := validateVolumeFields(s.Percent, s.Miles); err != nil {
			return err
		}
	case SeasonExtendPhase, SeasonReducePhase:
		if !plan.ValidPhase(s.PhaseName) {
			return coacherrors.Policyf("unknown phase %q", s.PhaseName)
		}
		if s.PhaseWeeks == nil || *s.PhaseWeeks <= 0 {
			return coacherrors.Policy("phase changes require a positive week count")
		}
	default:
		return coacherrors.Policyf("unknown season change type %q", s.ChangeType)
	}
	return nil
}

// Validate checks that exactly the field matching ChangeType is set and that
// taper bounds hold.
func (r *Race) Validate() error {
	if r == nil {
		return coacherrors.Policy("no race modification provided")
	}
	set := 0
	if r.Date != nil {
		set++
	}
	if r.Distance != nil {
		set++
	}
	if r.Priority != nil {
		set++
	}
	if r.TaperWeeks != nil {
		set++
	}
	if set != 1 {
		return coacherrors.Policy("a race change sets exactly one of date, distance, priority, or taper")
	}
	switch r.ChangeType {
	case RaceChangeDate:
		if r.Date == nil {
			return coacherrors.Policy("change_date requires a date")
		}
	case RaceChangeDistance:
		if r.Distance == nil || strings.TrimSpace(*r.Distance) == "" {
			return coacherrors.Policy("change_distance requires a distance")
		}
	case RaceChangePriority:
		if r.Priority == nil {
			return coacherrors.Policy("change_priority requires a priority")
		}
		switch strings.ToUpper(*r.Priority) {
		case "A", "B", "C":
		default:
			return coacherrors.Policyf("unknown race priority %q", *r.Priority)
		}
	case RaceChangeTaper:
		if r.TaperWeeks == nil {
			return coacherrors.Policy("change_taper requires a week count")
		}
		if *r.TaperWeeks < 1 {
			return coacherrors.Policy("taper_weeks must be >= 1")
		}
		if *r.TaperWeeks > MaxTaperWeeks {
			return coacherrors.Policyf("taper_weeks must be <= %d", MaxTaperWeeks)
		}
	default:
		return coacherrors.Policyf("unknown race change type %q", r.ChangeType)
	}
	return nil
}

// validateVolumeFields enforces the percent-xor-miles constraint shared by
// week and season volume changes.
func validateVolumeFields(percent, miles *float64) error {
	if percent == nil && miles == nil {
		return coacherrors.Policy("a volume change requires percent or miles")
	}
	if percent != nil && miles != nil {
		return coacherrors.Policy("a volume change takes percent or miles, not both")
	}
	if percent != nil && (*percent <= 0 || *percent > MaxVolumePercent) {
		return coacherrors.Policyf("percent must be in (0, %.1f]", MaxVolumePercent)
	}
	if miles != nil && *miles <= 0 {
		return coacherrors.Policy("miles must be positive")
	}
	return nil
}

// Scope names the modification family for revision records.
func (d *Day) Scope() string    { return "day" }
func (w *Week) Scope() string   { return "week" }
func (s *Season) Scope() string { return "season" }
func (r *Race) Scope() string   { return "race" }

// Summary renders a short human-readable description of the change, used in
// revision records and log lines.
func (d *Day) Summary() string {
	return fmt.Sprintf("%s on %s", d.ChangeType, d.Date.Format("2006-01-02"))
}

// Summary renders a short human-readable description of the change.
func (w *Week) Summary() string {
	return fmt.Sprintf("%s %s..%s", w.ChangeType, w.StartDate.Format("2006-01-02"), w.EndDate.Format("2006-01-02"))
}

// Summary renders a short human-readable description of the change.
func (s *Season) Summary() string {
	return fmt.Sprintf("%s weeks %d-%d", s.ChangeType, s.StartWeek, s.EndWeek)
}

// Summary renders a short human-readable description of the change.
func (r *Race) Summary() string {
	return string(r.ChangeType)
}
