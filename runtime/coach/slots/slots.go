// Package slots implements the readiness gate that keeps a mutating tool
// from firing before every required attribute is captured. Requirements are
// declared per tool in the catalog; a slot only counts as filled when it
// holds a usable value, so a present-but-empty attribute never satisfies a
// requirement.
package slots

import (
	"errors"

	"github.com/stridelabs/stride/runtime/coach/catalog"
	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/coach/decision"
)

// Gate checks candidate attribute sets against per-tool requirements.
type Gate struct {
	cat *catalog.Catalog
}

// NewGate builds a Gate over the provided catalog.
func NewGate(cat *catalog.Catalog) (*Gate, error) {
	if cat == nil {
		return nil, errors.New("catalog is required")
	}
	return &Gate{cat: cat}, nil
}

// Validate reports whether the filled slots satisfy the tool's
// requirements, returning the missing slot names in the tool's declared
// precedence order. An unknown tool can never execute; its requirements are
// unknowable.
func (g *Gate) Validate(tool string, filled map[string]any) (bool, []string) {
	spec, ok := g.cat.Spec(tool)
	if !ok {
		return false, nil
	}
	return ValidateRequired(spec.RequiredSlots, filled)
}

// ValidateRequired checks filled against an explicit requirement list,
// for call sites that narrow or widen the catalog defaults (the controller
// swaps requirement sets per horizon). Missing names come back in the
// requirement order.
func ValidateRequired(required []string, filled map[string]any) (bool, []string) {
	var missing []string
	for _, slot := range required {
		v, present := filled[slot]
		if !present || decision.Empty(v) {
			missing = append(missing, slot)
		}
	}
	return len(missing) == 0, missing
}

// MustValidate is the strict variant for call sites that must never
// tolerate missing slots: reaching execution with an unsatisfied
// requirement means the orchestration layer is broken, so the failure is a
// contract error rather than a tuple.
func (g *Gate) MustValidate(tool string, filled map[string]any) error {
	spec, ok := g.cat.Spec(tool)
	if !ok {
		return coacherrors.Contractf("slot validation for unknown tool %q", tool)
	}
	ok, missing := g.Validate(tool, filled)
	if !ok {
		return coacherrors.Contractf("tool %q reached execution missing slots %v", spec.Name, missing)
	}
	return nil
}
