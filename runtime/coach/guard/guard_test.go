package guard_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridelabs/stride/runtime/coach/catalog"
	"github.com/stridelabs/stride/runtime/coach/decision"
	"github.com/stridelabs/stride/runtime/coach/guard"
)

func callDecision(tool string, h decision.Horizon) *decision.OrchestrationDecision {
	return &decision.OrchestrationDecision{
		Intent:     decision.IntentModify,
		Horizon:    h,
		Confidence: 0.9,
		Action:     decision.ActionCallTool,
		ToolName:   tool,
	}
}

func readDecision(tool string, h decision.Horizon) *decision.OrchestrationDecision {
	d := callDecision(tool, h)
	d.Intent = decision.IntentExplain
	d.ReadOnly = true
	return d
}

func TestToolGuardPassesKnownTool(t *testing.T) {
	g := guard.NewToolGuard(catalog.Default())
	ok, reason := g.Check(callDecision(catalog.ToolModify, decision.HorizonDay))
	assert.True(t, ok)
	assert.Empty(t, reason)

	// Admission alone spends nothing; execution does.
	assert.Equal(t, 0, g.CallCount(catalog.ToolModify))
	g.CountCall(catalog.ToolModify)
	assert.Equal(t, 1, g.CallCount(catalog.ToolModify))
}

func TestToolGuardNoToolAlwaysPasses(t *testing.T) {
	g := guard.NewToolGuard(catalog.Default())
	ok, _ := g.Check(&decision.OrchestrationDecision{
		Intent: decision.IntentGreet,
		Action: decision.ActionNoTool,
	})
	assert.True(t, ok)
}

func TestToolGuardUnknownTool(t *testing.T) {
	g := guard.NewToolGuard(catalog.Default())
	ok, reason := g.Check(callDecision("imaginary", decision.HorizonDay))
	assert.False(t, ok)
	assert.Equal(t, `tool "imaginary" is not available in this session`, reason)
}

func TestToolGuardDisable(t *testing.T) {
	g := guard.NewToolGuard(catalog.Default())
	g.Disable(catalog.ToolModify)
	ok, reason := g.Check(callDecision(catalog.ToolModify, decision.HorizonDay))
	assert.False(t, ok)
	assert.Equal(t, `tool "modify" is disabled for this session`, reason)
	assert.Equal(t, 0, g.CallCount(catalog.ToolModify))
}

func TestToolGuardQuota(t *testing.T) {
	cat, err := catalog.New(catalog.ToolSpec{
		Name:               "modify",
		Enabled:            true,
		Horizons:           []decision.Horizon{decision.HorizonDay},
		MaxCallsPerSession: 2,
	})
	require.NoError(t, err)
	g := guard.NewToolGuard(cat)

	for i := 0; i < 2; i++ {
		ok, _ := g.Check(callDecision("modify", decision.HorizonDay))
		require.True(t, ok, "call %d", i)
		g.CountCall("modify")
	}
	ok, reason := g.Check(callDecision("modify", decision.HorizonDay))
	assert.False(t, ok)
	assert.Equal(t, `tool "modify" reached its limit of 2 calls this session`, reason)
	assert.Equal(t, 2, g.CallCount("modify"))
}

func TestToolGuardCheckDoesNotSpendQuota(t *testing.T) {
	cat, err := catalog.New(catalog.ToolSpec{
		Name:               "modify",
		Enabled:            true,
		Horizons:           []decision.Horizon{decision.HorizonDay},
		MaxCallsPerSession: 1,
	})
	require.NoError(t, err)
	g := guard.NewToolGuard(cat)

	// Repeated admission checks, as clarification turns perform, leave the
	// budget untouched.
	for i := 0; i < 3; i++ {
		ok, _ := g.Check(callDecision("modify", decision.HorizonDay))
		require.True(t, ok, "check %d", i)
	}
	assert.Equal(t, 0, g.CallCount("modify"))

	g.CountCall("modify")
	ok, reason := g.Check(callDecision("modify", decision.HorizonDay))
	assert.False(t, ok)
	assert.Equal(t, `tool "modify" reached its limit of 1 calls this session`, reason)
}

func TestToolGuardReadOnlyCompatibility(t *testing.T) {
	g := guard.NewToolGuard(catalog.Default())

	// A write decision must not reach a declared-read-only tool.
	ok, reason := g.Check(callDecision(catalog.ToolGetSchedule, decision.HorizonDay))
	assert.False(t, ok)
	assert.Equal(t, `tool "get_schedule" is read-only and cannot make changes`, reason)

	// A read-only decision must not reach a mutating tool.
	ok, reason = g.Check(readDecision(catalog.ToolModify, decision.HorizonDay))
	assert.False(t, ok)
	assert.Equal(t, `tool "modify" modifies the plan but this is a read-only request`, reason)

	// Matched pairs pass in both directions.
	ok, _ = g.Check(readDecision(catalog.ToolGetSchedule, decision.HorizonDay))
	assert.True(t, ok)
	ok, _ = g.Check(callDecision(catalog.ToolModify, decision.HorizonDay))
	assert.True(t, ok)
}

func TestToolGuardHorizonMismatch(t *testing.T) {
	g := guard.NewToolGuard(catalog.Default())
	ok, reason := g.Check(readDecision(catalog.ToolGetSchedule, decision.HorizonSeason))
	assert.False(t, ok)
	assert.Equal(t, `tool "get_schedule" does not support the season horizon`, reason)

	// A none horizon defers to downstream defaults.
	ok, _ = g.Check(readDecision(catalog.ToolGetSchedule, decision.HorizonNone))
	assert.True(t, ok)
}

func TestToolGuardStateIsPerGuard(t *testing.T) {
	cat, err := catalog.New(catalog.ToolSpec{
		Name:               "modify",
		Enabled:            true,
		Horizons:           []decision.Horizon{decision.HorizonDay},
		MaxCallsPerSession: 1,
	})
	require.NoError(t, err)

	a := guard.NewToolGuard(cat)
	b := guard.NewToolGuard(cat)
	ok, _ := a.Check(callDecision("modify", decision.HorizonDay))
	require.True(t, ok)
	a.CountCall("modify")
	ok, _ = a.Check(callDecision("modify", decision.HorizonDay))
	assert.False(t, ok)

	// A second session has its own budget.
	ok, _ = b.Check(callDecision("modify", decision.HorizonDay))
	assert.True(t, ok)
}

func TestTurnGuardSingleExecution(t *testing.T) {
	g := guard.NewTurnGuard()

	first, prior := g.MarkExecuted("turn-1")
	assert.True(t, first)
	assert.Empty(t, prior)

	g.RecordResult("turn-1", "Updated easy session on Sep 10.")

	first, prior = g.MarkExecuted("turn-1")
	assert.False(t, first)
	assert.Equal(t, "Updated easy session on Sep 10.", prior)

	done, msg := g.HasExecuted("turn-1")
	assert.True(t, done)
	assert.Equal(t, "Updated easy session on Sep 10.", msg)

	done, _ = g.HasExecuted("turn-2")
	assert.False(t, done)
}

func TestTurnGuardClaimBeforeResult(t *testing.T) {
	g := guard.NewTurnGuard()

	// A duplicate delivered mid-execution sees the claim even though no
	// result is recorded yet.
	first, _ := g.MarkExecuted("turn-1")
	require.True(t, first)
	first, prior := g.MarkExecuted("turn-1")
	assert.False(t, first)
	assert.Empty(t, prior)
}

func TestTurnGuardConcurrentClaims(t *testing.T) {
	g := guard.NewTurnGuard()

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if first, _ := g.MarkExecuted("turn-1"); first {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}
