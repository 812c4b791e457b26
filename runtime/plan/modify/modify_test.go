package modify_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stridelabs/stride/runtime/plan"
	"github.com/stridelabs/stride/runtime/plan/modify"
	"github.com/stridelabs/stride/runtime/plan/revision"
	"github.com/stridelabs/stride/runtime/plan/store/inmem"
)

const athlete = "ath-1"

// now is a Wednesday.
var now = time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC)

func newModifier(t *testing.T) (*modify.Modifier, *inmem.Store) {
	t.Helper()
	s := inmem.New()
	m, err := modify.New(modify.Options{
		Store: s,
		Clock: func() time.Time { return now },
	})
	require.NoError(t, err)
	return m, s
}

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }
func sp(v string) *string  { return &v }

func seedSession(t *testing.T, s *inmem.Store, date time.Time, intent plan.Intent, miles float64) *plan.Session {
	t.Helper()
	sess := &plan.Session{
		ID:            uuid.NewString(),
		AthleteID:     athlete,
		Date:          plan.Day(date),
		Intent:        intent,
		DistanceMiles: &miles,
		CreatedAt:     now,
	}
	require.NoError(t, s.InsertSessions(context.Background(), []*plan.Session{sess}))
	return sess
}

func seedDurationSession(t *testing.T, s *inmem.Store, date time.Time, intent plan.Intent, minutes int) *plan.Session {
	t.Helper()
	sess := &plan.Session{
		ID:              uuid.NewString(),
		AthleteID:       athlete,
		Date:            plan.Day(date),
		Intent:          intent,
		DurationMinutes: &minutes,
		CreatedAt:       now,
	}
	require.NoError(t, s.InsertSessions(context.Background(), []*plan.Session{sess}))
	return sess
}

func seedProfile(t *testing.T, s *inmem.Store, p *plan.Profile) {
	t.Helper()
	p.AthleteID = athlete
	require.NoError(t, s.SaveProfile(context.Background(), p))
}

func triggeredRules(rev *revision.PlanRevision) map[string]revision.Rule {
	out := make(map[string]revision.Rule)
	if rev == nil {
		return out
	}
	for _, r := range rev.Rules {
		if r.Triggered {
			out[r.ID] = r
		}
	}
	return out
}
