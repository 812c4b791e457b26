// Package guard holds the execution guards that sit between a routed
// decision and the tool backend. ToolGuard carries per-session tool state
// and vetoes calls that a session has disabled, exhausted, or scoped out.
// TurnGuard guarantees at-most-one tool execution per conversational turn.
package guard

import (
	"fmt"
	"sync"

	"github.com/stridelabs/stride/runtime/coach/catalog"
	"github.com/stridelabs/stride/runtime/coach/decision"
)

type (
	// ToolState is the session-scoped view of a single tool. It starts from
	// the catalog defaults and may be narrowed for the session, never
	// widened.
	ToolState struct {
		Enabled            bool
		ReadOnly           bool
		MaxCallsPerSession int
		AllowedHorizons    []decision.Horizon
		calls              int
	}

	// ToolGuard evaluates CALL_TOOL decisions against session tool state.
	// A rejected call is reported with a reason; the caller downgrades the
	// decision to NO_TOOL rather than failing the turn.
	ToolGuard struct {
		mu    sync.Mutex
		tools map[string]*ToolState
	}

	// TurnGuard records which turns already executed a tool. Check-then-mark
	// runs under its lock so concurrent deliveries of the same turn cannot
	// both execute.
	TurnGuard struct {
		mu       sync.Mutex
		executed map[string]string
	}
)

// NewToolGuard seeds session tool state from the catalog.
func NewToolGuard(cat *catalog.Catalog) *ToolGuard {
	g := &ToolGuard{tools: make(map[string]*ToolState)}
	for _, name := range cat.Names() {
		spec, _ := cat.Spec(name)
		g.tools[name] = &ToolState{
			Enabled:            spec.Enabled,
			ReadOnly:           spec.ReadOnly,
			MaxCallsPerSession: spec.MaxCallsPerSession,
			AllowedHorizons:    append([]decision.Horizon(nil), spec.Horizons...),
		}
	}
	return g
}

// Disable turns a tool off for the rest of the session.
func (g *ToolGuard) Disable(tool string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.tools[tool]; ok {
		st.Enabled = false
	}
}

// Check reports whether the decision may proceed. NO_TOOL decisions always
// pass. A CALL_TOOL decision passes when the tool is known, enabled,
// read-only compatible, within its per-session call budget, and its horizon
// is allowed. Check never mutates guard state: the budget is charged by
// CountCall once a turn actually executes, so clarification-only turns
// spend nothing.
func (g *ToolGuard) Check(d *decision.OrchestrationDecision) (bool, string) {
	if d.Action != decision.ActionCallTool {
		return true, ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.tools[d.ToolName]
	if !ok {
		return false, fmt.Sprintf("tool %q is not available in this session", d.ToolName)
	}
	if !st.Enabled {
		return false, fmt.Sprintf("tool %q is disabled for this session", d.ToolName)
	}
	if d.ReadOnly && !st.ReadOnly {
		return false, fmt.Sprintf("tool %q modifies the plan but this is a read-only request", d.ToolName)
	}
	if !d.ReadOnly && st.ReadOnly {
		return false, fmt.Sprintf("tool %q is read-only and cannot make changes", d.ToolName)
	}
	if st.MaxCallsPerSession > 0 && st.calls >= st.MaxCallsPerSession {
		return false, fmt.Sprintf("tool %q reached its limit of %d calls this session", d.ToolName, st.MaxCallsPerSession)
	}
	if d.Horizon != decision.HorizonNone && !horizonAllowed(st.AllowedHorizons, d.Horizon) {
		return false, fmt.Sprintf("tool %q does not support the %s horizon", d.ToolName, d.Horizon)
	}
	return true, ""
}

// CountCall charges one execution against the tool's session budget.
func (g *ToolGuard) CountCall(tool string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.tools[tool]; ok {
		st.calls++
	}
}

// CallCount returns how many times the tool executed this session.
func (g *ToolGuard) CallCount(tool string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.tools[tool]; ok {
		return st.calls
	}
	return 0
}

func horizonAllowed(allowed []decision.Horizon, h decision.Horizon) bool {
	for _, a := range allowed {
		if a == h {
			return true
		}
	}
	return false
}

// NewTurnGuard returns an empty turn ledger.
func NewTurnGuard() *TurnGuard {
	return &TurnGuard{executed: make(map[string]string)}
}

// MarkExecuted claims the turn for execution. The first caller per turn ID
// gets true and must run the tool; later callers get false along with the
// result recorded by the first. Marking happens before the tool body runs
// so a retry delivered mid-execution never runs the tool twice.
func (g *TurnGuard) MarkExecuted(turnID string) (first bool, prior string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if msg, ok := g.executed[turnID]; ok {
		return false, msg
	}
	g.executed[turnID] = ""
	return true, ""
}

// RecordResult stores the user-facing result for an executed turn so
// duplicate deliveries can replay it.
func (g *TurnGuard) RecordResult(turnID, result string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.executed[turnID] = result
}

// HasExecuted reports whether the turn already ran a tool and the recorded
// result, if any.
func (g *TurnGuard) HasExecuted(turnID string) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg, ok := g.executed[turnID]
	return ok, msg
}
