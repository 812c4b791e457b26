package controller

// slots.go bridges the extractor's attribute objects and the accumulated
// slot map. Extraction output is flattened into named slots so values
// gathered across turns merge uniformly; at execution time the merged map
// is folded back into the scope's raw attribute object for the adapter.

import (
	"context"
	"encoding/json"

	"github.com/stridelabs/stride/runtime/coach/catalog"
	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/coach/decision"
	"github.com/stridelabs/stride/runtime/plan/modification"
	"github.com/stridelabs/stride/runtime/plan/modify"
)

// scopeFor maps a routed tool and horizon to the extraction scope, or ""
// when the tool takes no extracted attributes.
func scopeFor(tool string, h decision.Horizon) string {
	switch tool {
	case catalog.ToolModify:
		switch h {
		case decision.HorizonDay, decision.HorizonWeek, decision.HorizonSeason, decision.HorizonRace:
			return string(h)
		}
	case catalog.ToolPlan:
		return string(decision.HorizonRace)
	}
	return ""
}

// requiredSlots returns the slot requirements for a tool, narrowed per
// horizon for the modify tool whose attribute shape differs by scope.
func (c *Controller) requiredSlots(tool string, h decision.Horizon) []string {
	if tool == catalog.ToolModify {
		switch h {
		case decision.HorizonWeek:
			return []string{"start_date", "change_type"}
		case decision.HorizonSeason:
			return []string{"start_week", "end_week", "change_type"}
		case decision.HorizonRace:
			return []string{"change_type"}
		}
	}
	if spec, ok := c.catalog.Spec(tool); ok {
		return spec.RequiredSlots
	}
	return nil
}

// extractSlots runs the scope's extractor over the user message and
// flattens the result into slot values.
func (c *Controller) extractSlots(ctx context.Context, scope, userMessage string) (map[string]any, error) {
	today := c.clock()
	switch scope {
	case string(decision.HorizonDay):
		raw, err := c.extractor.ExtractDay(ctx, userMessage, today)
		if err != nil {
			return nil, err
		}
		return flatten(raw)
	case string(decision.HorizonWeek):
		raw, err := c.extractor.ExtractWeek(ctx, userMessage, today)
		if err != nil {
			return nil, err
		}
		return flatten(raw)
	case string(decision.HorizonSeason):
		raw, err := c.extractor.ExtractSeason(ctx, userMessage, today)
		if err != nil {
			return nil, err
		}
		return flatten(raw)
	case string(decision.HorizonRace):
		raw, err := c.extractor.ExtractRace(ctx, userMessage, today)
		if err != nil {
			return nil, err
		}
		m, err := flatten(raw)
		if err != nil {
			return nil, err
		}
		// The race date slot is named race_date to distinguish it from a
		// session date in mixed conversations.
		if v, ok := m["date"]; ok {
			m["race_date"] = v
			delete(m, "date")
		}
		return m, nil
	}
	return nil, nil
}

// flatten converts an attribute object into a slot map, dropping values an
// extractor uses to mean "not mentioned": nulls, empty strings, zero
// numbers, and empty lists.
func flatten(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, coacherrors.ContractWithCause("flatten attributes", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, coacherrors.ContractWithCause("flatten attributes", err)
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		if decision.Empty(val) {
			continue
		}
		if n, ok := val.(float64); ok && n == 0 {
			continue
		}
		out[k] = val
	}
	return out, nil
}

// unflatten folds a slot map back into the scope's attribute object.
func unflatten(slots map[string]any, out any) error {
	b, err := json.Marshal(slots)
	if err != nil {
		return coacherrors.ContractWithCause("unflatten slots", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return coacherrors.ContractWithCause("unflatten slots", err)
	}
	return nil
}

func (c *Controller) modifyDay(ctx context.Context, athleteID, userRequest string, state *TurnState) (*modify.Result, error) {
	var raw modification.RawDay
	if err := unflatten(state.Slots, &raw); err != nil {
		return nil, err
	}
	mod, err := modification.NewDay(raw, c.clock())
	if err != nil {
		return nil, err
	}
	return c.modifier.ModifyDay(ctx, athleteID, mod, userRequest)
}

func (c *Controller) modifyWeek(ctx context.Context, athleteID, userRequest string, state *TurnState) (*modify.Result, error) {
	var raw modification.RawWeek
	if err := unflatten(state.Slots, &raw); err != nil {
		return nil, err
	}
	// A week is addressed by its start date; an unspecified end means the
	// seven days from there.
	if raw.EndDate == "" && raw.StartDate != "" {
		start, err := modification.ResolveDate(raw.StartDate, c.clock())
		if err != nil {
			return nil, err
		}
		raw.EndDate = start.AddDate(0, 0, 6).Format("2006-01-02")
	}
	mod, err := modification.NewWeek(raw, c.clock())
	if err != nil {
		return nil, err
	}
	return c.modifier.ModifyWeek(ctx, athleteID, mod, userRequest)
}

func (c *Controller) modifySeason(ctx context.Context, athleteID, userRequest string, state *TurnState) (*modify.Result, error) {
	var raw modification.RawSeason
	if err := unflatten(state.Slots, &raw); err != nil {
		return nil, err
	}
	mod, err := modification.NewSeason(raw)
	if err != nil {
		return nil, err
	}
	return c.modifier.ModifySeason(ctx, athleteID, mod, userRequest)
}

func (c *Controller) modifyRace(ctx context.Context, athleteID, userRequest string, state *TurnState) (*modify.Result, error) {
	slots := make(map[string]any, len(state.Slots))
	for k, v := range state.Slots {
		slots[k] = v
	}
	if v, ok := slots["race_date"]; ok {
		slots["date"] = v
		delete(slots, "race_date")
	}
	var raw modification.RawRace
	if err := unflatten(slots, &raw); err != nil {
		return nil, err
	}
	mod, err := modification.NewRace(raw, c.clock())
	if err != nil {
		return nil, err
	}
	return c.modifier.ModifyRace(ctx, athleteID, mod, userRequest)
}
