// Package plan defines the training-plan domain primitives shared by the
// execution core: planned sessions, workout intents, pace zones, and the
// athlete profile with its race and taper windows.
//
// Sessions follow clone-then-append semantics: a mutation never edits a
// persisted session in place. The mutator clones the original, edits the
// clone, and persists it as a new row carrying a back-reference note; the
// original row is retained so every revision stays auditable.
package plan

import (
	"fmt"
	"time"
)

type (
	// Intent is the purpose of a training session, distinct from its pace
	// or intensity. Intent is session-level and authoritative: once set it
	// is preserved across modifications unless an explicit override is
	// supplied, and it is never re-inferred from pace or metrics.
	Intent string

	// PaceZone is a named pace/intensity band for a session.
	PaceZone string

	// Phase is a named season training phase.
	Phase string

	// Session is one planned training session. Exactly one of DistanceMiles
	// or DurationMinutes is the primary metric; pace fields are optional.
	Session struct {
		// ID is the durable identifier of this session row.
		ID string
		// AthleteID identifies the owning athlete.
		AthleteID string
		// Date is the session's calendar date (normalized, midnight UTC).
		Date time.Time
		// Intent is the authoritative workout intent.
		Intent Intent
		// DistanceMiles is the primary distance metric, when distance-based.
		DistanceMiles *float64
		// DurationMinutes is the primary duration metric, when time-based.
		DurationMinutes *int
		// Pace is the optional target pace zone.
		Pace PaceZone
		// PaceSecondsPerMile is the optional numeric pace target.
		PaceSecondsPerMile *int
		// Note carries free-form annotations. Sessions produced by a
		// modification carry a back-reference to the superseded row here.
		Note string
		// SupersededBy holds the ID of the replacement row once a
		// modification produces one. Empty for live rows.
		SupersededBy string
		// CreatedAt records when this row was created.
		CreatedAt time.Time
	}

	// Profile carries the athlete-level facts the safety validators need:
	// the goal race and the taper configuration.
	Profile struct {
		// AthleteID identifies the athlete.
		AthleteID string
		// RaceDate is the goal race date, when one is set.
		RaceDate *time.Time
		// RaceDistance names the goal race distance (e.g. "marathon").
		RaceDistance string
		// RacePriority ranks the race ("A", "B", "C").
		RacePriority string
		// TaperWeeks is the length of the taper window in weeks.
		TaperWeeks int
		// SeasonStart anchors 1-based season week numbering, when known.
		SeasonStart *time.Time
		// Phases maps 1-based season weeks to their training phase.
		Phases []PhaseSpan
	}

	// PhaseSpan assigns a phase to an inclusive range of season weeks.
	PhaseSpan struct {
		Phase     Phase
		StartWeek int
		EndWeek   int
	}
)

const (
	IntentRest    Intent = "rest"
	IntentEasy    Intent = "easy"
	IntentLong    Intent = "long"
	IntentQuality Intent = "quality"
)

const (
	ZoneRecovery   PaceZone = "recovery"
	ZoneEasy       PaceZone = "easy"
	ZoneMarathon   PaceZone = "marathon"
	ZoneTempo      PaceZone = "tempo"
	ZoneThreshold  PaceZone = "threshold"
	ZoneInterval   PaceZone = "interval"
	ZoneRepetition PaceZone = "repetition"
	ZoneZ1         PaceZone = "z1"
	ZoneZ2         PaceZone = "z2"
	ZoneZ3         PaceZone = "z3"
	ZoneZ4         PaceZone = "z4"
	ZoneZ5         PaceZone = "z5"
)

const (
	PhaseBase     Phase = "base"
	PhaseBuild    Phase = "build"
	PhasePeak     Phase = "peak"
	PhaseTaper    Phase = "taper"
	PhaseRecovery Phase = "recovery"
)

// MinLongRunMiles is the floor below which a long run is never reduced by a
// volume change. Cutting a long run further destroys the stimulus the week
// is built around, so the remainder of a reduction is absorbed elsewhere.
const MinLongRunMiles = 8.0

// EasyFloorFactor is the per-session floor for easy-run scaling, expressed
// as a fraction of the session's original distance.
const EasyFloorFactor = 0.1

// ValidIntent reports whether s names a known workout intent.
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentRest, IntentEasy, IntentLong, IntentQuality:
		return true
	}
	return false
}

// ValidPhase reports whether s names a known training phase.
func ValidPhase(s string) bool {
	switch Phase(s) {
	case PhaseBase, PhaseBuild, PhasePeak, PhaseTaper, PhaseRecovery:
		return true
	}
	return false
}

// AllowedZones returns the pace zones permitted for the given intent. A rest
// session has no pace target; an empty set means any pace change is invalid.
func AllowedZones(intent Intent) []PaceZone {
	switch intent {
	case IntentEasy:
		return []PaceZone{ZoneRecovery, ZoneEasy, ZoneZ1, ZoneZ2}
	case IntentLong:
		return []PaceZone{ZoneRecovery, ZoneEasy, ZoneZ1, ZoneZ2, ZoneMarathon}
	case IntentQuality:
		return []PaceZone{ZoneMarathon, ZoneTempo, ZoneThreshold, ZoneInterval, ZoneRepetition, ZoneZ3, ZoneZ4, ZoneZ5}
	default:
		return nil
	}
}

// ZoneAllowed reports whether zone is permitted for intent.
func ZoneAllowed(intent Intent, zone PaceZone) bool {
	for _, z := range AllowedZones(intent) {
		if z == zone {
			return true
		}
	}
	return false
}

// Day normalizes t to midnight UTC so sessions compare by calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// Clone returns a deep copy of the session. Pointer metrics are duplicated
// so the clone can be edited without aliasing the original row.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.DistanceMiles != nil {
		v := *s.DistanceMiles
		c.DistanceMiles = &v
	}
	if s.DurationMinutes != nil {
		v := *s.DurationMinutes
		c.DurationMinutes = &v
	}
	if s.PaceSecondsPerMile != nil {
		v := *s.PaceSecondsPerMile
		c.PaceSecondsPerMile = &v
	}
	return &c
}

// Validate checks the session's structural invariants: a known intent, a
// date, and exactly one primary metric (rest days may carry none).
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}
	if !ValidIntent(string(s.Intent)) {
		return fmt.Errorf("unknown session intent %q", s.Intent)
	}
	if s.Date.IsZero() {
		return fmt.Errorf("session date is required")
	}
	hasDistance := s.DistanceMiles != nil
	hasDuration := s.DurationMinutes != nil
	if hasDistance && hasDuration {
		return fmt.Errorf("session %s sets both distance and duration", s.ID)
	}
	if !hasDistance && !hasDuration && s.Intent != IntentRest {
		return fmt.Errorf("session %s has no primary metric", s.ID)
	}
	if hasDistance && *s.DistanceMiles < 0 {
		return fmt.Errorf("session %s has negative distance", s.ID)
	}
	if hasDuration && *s.DurationMinutes < 0 {
		return fmt.Errorf("session %s has negative duration", s.ID)
	}
	if s.Pace != "" && s.Intent == IntentRest {
		return fmt.Errorf("rest session %s cannot carry a pace target", s.ID)
	}
	return nil
}

// Volume returns the session's distance contribution in miles. Duration-only
// sessions contribute zero; volume arithmetic is distance-based.
func (s *Session) Volume() float64 {
	if s == nil || s.DistanceMiles == nil {
		return 0
	}
	return *s.DistanceMiles
}

// IsRaceDay reports whether date is the athlete's race date.
func (p *Profile) IsRaceDay(date time.Time) bool {
	if p == nil || p.RaceDate == nil {
		return false
	}
	return SameDay(*p.RaceDate, date)
}

// RaceWeek returns the Monday-Sunday span containing the race date. The
// second return is false when no race is set.
func (p *Profile) RaceWeek() (start, end time.Time, ok bool) {
	if p == nil || p.RaceDate == nil {
		return time.Time{}, time.Time{}, false
	}
	d := Day(*p.RaceDate)
	offset := (int(d.Weekday()) + 6) % 7 // days since Monday
	start = d.AddDate(0, 0, -offset)
	end = start.AddDate(0, 0, 6)
	return start, end, true
}

// TaperWindow returns the taper span: TaperWeeks weeks immediately before the
// race date, race day exclusive. The second return is false when no race or
// no taper is configured.
func (p *Profile) TaperWindow() (start, end time.Time, ok bool) {
	if p == nil || p.RaceDate == nil || p.TaperWeeks <= 0 {
		return time.Time{}, time.Time{}, false
	}
	end = Day(*p.RaceDate).AddDate(0, 0, -1)
	start = Day(*p.RaceDate).AddDate(0, 0, -7*p.TaperWeeks)
	return start, end, true
}

// InTaper reports whether date falls inside the taper window.
func (p *Profile) InTaper(date time.Time) bool {
	start, end, ok := p.TaperWindow()
	if !ok {
		return false
	}
	d := Day(date)
	return !d.Before(start) && !d.After(end)
}

// InRaceWeek reports whether date falls inside the race week.
func (p *Profile) InRaceWeek(date time.Time) bool {
	start, end, ok := p.RaceWeek()
	if !ok {
		return false
	}
	d := Day(date)
	return !d.Before(start) && !d.After(end)
}

// PhaseForWeek returns the phase assigned to the 1-based season week, or ""
// when no phase covers it.
func (p *Profile) PhaseForWeek(week int) Phase {
	if p == nil {
		return ""
	}
	for _, span := range p.Phases {
		if week >= span.StartWeek && week <= span.EndWeek {
			return span.Phase
		}
	}
	return ""
}

// WeekRange converts a 1-based season week to its date span. The second
// return is false when the season start is unknown.
func (p *Profile) WeekRange(week int) (start, end time.Time, ok bool) {
	if p == nil || p.SeasonStart == nil || week < 1 {
		return time.Time{}, time.Time{}, false
	}
	start = Day(*p.SeasonStart).AddDate(0, 0, 7*(week-1))
	end = start.AddDate(0, 0, 6)
	return start, end, true
}
