// Package router maps classified intent and horizon to at most one
// canonical tool. Routing is a pure, total function over the intent/horizon
// enumeration: any pair the table does not name routes to no tool, which
// the controller treats as a conversational turn.
package router

import (
	"github.com/stridelabs/stride/runtime/coach/catalog"
	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/coach/decision"
)

// Input carries the routing context for one turn.
type Input struct {
	Intent        decision.Intent
	Horizon       decision.Horizon
	HasProposal   bool
	NeedsApproval bool
	QueryType     string
}

// Route returns the canonical tool for the input, or "" when the turn is
// conversational. Deterministic and side-effect free.
func Route(in Input) string {
	switch in.Intent {
	case decision.IntentExplain:
		if in.QueryType == "schedule" {
			return catalog.ToolGetSchedule
		}
		return ""
	case decision.IntentPlan:
		switch in.Horizon {
		case decision.HorizonRace, decision.HorizonSeason:
			return catalog.ToolPlan
		case decision.HorizonWeek, decision.HorizonDay:
			// Creating a missing day or week is folded into modify
			// semantics; there is no separate create tool.
			return catalog.ToolModify
		default:
			return ""
		}
	case decision.IntentModify:
		switch in.Horizon {
		case decision.HorizonDay, decision.HorizonWeek, decision.HorizonSeason, decision.HorizonRace:
			return catalog.ToolModify
		default:
			return ""
		}
	case decision.IntentConfirm:
		if in.Horizon == decision.HorizonNone || in.HasProposal {
			return catalog.ToolConfirm
		}
		return ""
	case decision.IntentPropose:
		if in.Horizon == decision.HorizonNone {
			return ""
		}
		return catalog.ToolModify
	default:
		return ""
	}
}

// RouteWithSafetyCheck wraps Route with the mandatory-prerequisite and
// capability rules. For a mutating tool on a day, week, or season horizon it
// appends the incoherence-detection pass as a prerequisite check. It also
// verifies the routed tool declares support for the horizon in the catalog;
// a mismatch is a contract error because the routing table and the catalog
// must agree by construction. A none horizon is tolerated by deferring to
// the downstream executor's default.
func RouteWithSafetyCheck(cat *catalog.Catalog, in Input) (string, []string, error) {
	tool := Route(in)
	if tool == "" {
		return "", nil, nil
	}
	spec, ok := cat.Spec(tool)
	if !ok {
		return "", nil, coacherrors.Contractf("routed tool %q is not in the catalog", tool)
	}
	if in.Horizon != decision.HorizonNone && !cat.SupportsHorizon(tool, in.Horizon) {
		return "", nil, coacherrors.Contractf("tool %q does not support horizon %q", tool, in.Horizon)
	}
	var checks []string
	if !spec.ReadOnly && tool != catalog.ToolConfirm {
		switch in.Horizon {
		case decision.HorizonDay, decision.HorizonWeek, decision.HorizonSeason:
			checks = append(checks, catalog.CheckIncoherence)
		}
	}
	return tool, checks, nil
}

// TargetFor maps a routed tool and intent to its semantic target action.
func TargetFor(tool string, intent decision.Intent) decision.TargetAction {
	switch tool {
	case catalog.ToolGetSchedule:
		return decision.TargetQuery
	case catalog.ToolConfirm:
		return decision.TargetConfirm
	case catalog.ToolPlan:
		return decision.TargetPropose
	case catalog.ToolModify:
		if intent == decision.IntentPropose {
			return decision.TargetPropose
		}
		if intent == decision.IntentPlan {
			return decision.TargetAdjust
		}
		return decision.TargetExecute
	default:
		return ""
	}
}
