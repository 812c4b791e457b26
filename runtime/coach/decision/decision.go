// Package decision defines the typed decision objects that flow through the
// execution controller. OrchestrationDecision is the external classifier's
// per-turn verdict; ExecutionDecision is the richer post-routing object that
// carries slot state across turns. Each stage has its own type so consumers
// can match exhaustively instead of duck-typing optional fields.
package decision

import (
	"strings"

	"github.com/stridelabs/stride/runtime/coach/coacherrors"
)

type (
	// Intent is the classified purpose of a user turn.
	Intent string

	// Horizon is the time scope of an action.
	Horizon string

	// Action is the classifier's tool verdict.
	Action string

	// TargetAction is the semantic operation a routed tool performs.
	TargetAction string

	// OrchestrationDecision is produced once per turn by the external
	// classifier and never mutated afterwards.
	OrchestrationDecision struct {
		// Intent is the classified intent.
		Intent Intent `json:"intent"`
		// Horizon is the classified time scope.
		Horizon Horizon `json:"horizon"`
		// Confidence is the classifier's self-reported confidence in [0, 1].
		Confidence float64 `json:"confidence"`
		// Action is NO_TOOL or CALL_TOOL.
		Action Action `json:"action"`
		// ToolName is the classifier's tool suggestion; "none" for NO_TOOL.
		ToolName string `json:"tool_name"`
		// ReadOnly marks decisions that must not mutate the plan.
		ReadOnly bool `json:"read_only"`
		// Reason is the classifier's free-text rationale.
		Reason string `json:"reason"`
		// QueryType refines explain intents (e.g. "schedule").
		QueryType string `json:"query_type"`
		// UserInput is the verbatim user message for this turn.
		UserInput string `json:"user_input"`
	}

	// ExecutionDecision is the post-routing decision. It is rebuilt every
	// turn by merging newly extracted attributes into the previous turn's
	// filled slots: accumulation only, a null never overwrites a value.
	ExecutionDecision struct {
		// Orchestration is the classifier decision this turn started from.
		Orchestration OrchestrationDecision `json:"orchestration"`
		// TargetAction is the semantic operation chosen by the router.
		TargetAction TargetAction `json:"target_action"`
		// ToolName is the routed canonical tool.
		ToolName string `json:"tool_name"`
		// RequiredSlots lists the attributes the tool needs before it runs.
		RequiredSlots []string `json:"required_slots"`
		// OptionalSlots lists attributes that refine but do not gate.
		OptionalSlots []string `json:"optional_slots,omitempty"`
		// FilledSlots holds the accumulated attribute values.
		FilledSlots map[string]any `json:"filled_slots"`
		// MissingSlots lists required slots still unfilled, in precedence
		// order. Disjoint from FilledSlots' keys by construction.
		MissingSlots []string `json:"missing_slots"`
		// ShouldExecute reports readiness: true only when MissingSlots is
		// empty.
		ShouldExecute bool `json:"should_execute"`
		// NextQuestion is the single clarification to ask, when not ready.
		NextQuestion string `json:"next_question,omitempty"`
	}
)

const (
	ActionNoTool   Action = "NO_TOOL"
	ActionCallTool Action = "CALL_TOOL"
)

const (
	IntentGreet    Intent = "greet"
	IntentExplain  Intent = "explain"
	IntentPlan     Intent = "plan"
	IntentModify   Intent = "modify"
	IntentConfirm  Intent = "confirm"
	IntentPropose  Intent = "propose"
	IntentClarify  Intent = "clarify"
	IntentOffTopic Intent = "off_topic"
)

const (
	HorizonNone   Horizon = "none"
	HorizonDay    Horizon = "day"
	HorizonWeek   Horizon = "week"
	HorizonSeason Horizon = "season"
	HorizonRace   Horizon = "race"
)

const (
	TargetPropose TargetAction = "propose"
	TargetAdjust  TargetAction = "adjust"
	TargetExecute TargetAction = "execute"
	TargetQuery   TargetAction = "query"
	TargetConfirm TargetAction = "confirm"
)

// MinCallConfidence is the floor below which a CALL_TOOL decision is a
// classifier contract violation.
const MinCallConfidence = 0.7

// NormalizeHorizon canonicalizes classifier horizon spellings: "today"
// means the day horizon, an empty string means none.
func NormalizeHorizon(s string) Horizon {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return HorizonNone
	case "today", "day":
		return HorizonDay
	case "week":
		return HorizonWeek
	case "season":
		return HorizonSeason
	case "race":
		return HorizonRace
	default:
		return Horizon(strings.ToLower(strings.TrimSpace(s)))
	}
}

// Validate enforces the classifier contract. Violations are contract
// errors: the classifier is a collaborator, but a malformed decision must
// never be coerced into something executable.
func (d OrchestrationDecision) Validate() error {
	switch d.Action {
	case ActionCallTool:
		if d.Confidence < MinCallConfidence {
			return coacherrors.Contractf("CALL_TOOL decision with confidence %.2f below %.2f", d.Confidence, MinCallConfidence)
		}
		if d.ToolName == "" || d.ToolName == "none" {
			return coacherrors.Contract("CALL_TOOL decision without a tool name")
		}
	case ActionNoTool:
		if d.ToolName != "" && d.ToolName != "none" {
			return coacherrors.Contractf("NO_TOOL decision names tool %q", d.ToolName)
		}
	default:
		return coacherrors.Contractf("unknown decision action %q", d.Action)
	}
	if (d.Intent == IntentPlan || d.Intent == IntentModify) && d.Horizon == HorizonNone {
		return coacherrors.Contractf("%s intent requires a horizon", d.Intent)
	}
	return nil
}

// Validate enforces the execution-decision invariants: filled and missing
// slots are disjoint, and readiness implies no missing slots.
func (d ExecutionDecision) Validate() error {
	for _, slot := range d.MissingSlots {
		if _, ok := d.FilledSlots[slot]; ok {
			return coacherrors.Contractf("slot %q is both filled and missing", slot)
		}
	}
	if d.ShouldExecute && len(d.MissingSlots) > 0 {
		return coacherrors.Contractf("should_execute with %d missing slots", len(d.MissingSlots))
	}
	return nil
}

// MergeSlots folds newly extracted attributes into the accumulated slot
// map. Accumulation never loses information: nil and empty values do not
// overwrite previously captured ones.
func MergeSlots(accumulated, extracted map[string]any) map[string]any {
	merged := make(map[string]any, len(accumulated)+len(extracted))
	for k, v := range accumulated {
		merged[k] = v
	}
	for k, v := range extracted {
		if Empty(v) {
			continue
		}
		merged[k] = v
	}
	return merged
}

// Empty reports whether a slot value fails to satisfy a requirement:
// nil, empty or whitespace strings, and empty slices all count as missing.
func Empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
