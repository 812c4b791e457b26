// Package catalog defines the injectable tool catalog: the single source of
// truth for which tools exist, which horizons they support, which slots they
// require, and how many times they may run per session. The catalog is an
// explicitly constructed value handed through the controller's dependency
// bundle; there is no process-wide registry.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/stridelabs/stride/runtime/coach/decision"
)

type (
	// ToolSpec describes one tool's capabilities and limits.
	ToolSpec struct {
		// Name is the canonical tool name.
		Name string
		// Description is human-readable context for diagnostics.
		Description string
		// ReadOnly marks tools that never mutate the plan.
		ReadOnly bool
		// Enabled gates the tool; disabled tools are rejected by the guard.
		Enabled bool
		// Horizons lists the horizons the tool declares support for.
		Horizons []decision.Horizon
		// RequiredSlots lists the attributes that must be filled, in
		// clarification precedence order.
		RequiredSlots []string
		// OptionalSlots lists attributes that refine but do not gate.
		OptionalSlots []string
		// MaxCallsPerSession caps executions per session; 0 means uncapped.
		MaxCallsPerSession int
		// ArgsSchema optionally carries a JSON Schema for the tool's
		// arguments, compiled at registration.
		ArgsSchema []byte

		compiled *jsonschema.Schema
	}

	// Catalog holds the registered tool specs. It is immutable after
	// construction; guards and routers read it concurrently without locks.
	Catalog struct {
		specs map[string]*ToolSpec
	}
)

// Builtin tool names. The router only ever routes to these four.
const (
	ToolGetSchedule = "get_schedule"
	ToolModify      = "modify"
	ToolPlan        = "plan"
	ToolConfirm     = "confirm"
)

// CheckIncoherence is the mandatory prerequisite pass appended by the safety
// router before mutating tools run.
const CheckIncoherence = "detect_incoherence"

// New builds a catalog from the provided specs, rejecting duplicates and
// specs with unknown horizons.
func New(specs ...ToolSpec) (*Catalog, error) {
	c := &Catalog{specs: make(map[string]*ToolSpec, len(specs))}
	for i := range specs {
		spec := specs[i]
		if spec.Name == "" {
			return nil, fmt.Errorf("catalog: tool spec %d has no name", i)
		}
		if _, ok := c.specs[spec.Name]; ok {
			return nil, fmt.Errorf("catalog: duplicate tool %q", spec.Name)
		}
		for _, h := range spec.Horizons {
			switch h {
			case decision.HorizonNone, decision.HorizonDay, decision.HorizonWeek, decision.HorizonSeason, decision.HorizonRace:
			default:
				return nil, fmt.Errorf("catalog: tool %q declares unknown horizon %q", spec.Name, h)
			}
		}
		if len(spec.ArgsSchema) > 0 {
			compiled, err := compileSchema(spec.Name, spec.ArgsSchema)
			if err != nil {
				return nil, err
			}
			spec.compiled = compiled
		}
		c.specs[spec.Name] = &spec
	}
	return c, nil
}

// Default returns the catalog of builtin tools with the spec defaults the
// execution controller expects.
func Default() *Catalog {
	c, err := New(
		ToolSpec{
			Name:        ToolGetSchedule,
			Description: "Read-only schedule lookup.",
			ReadOnly:    true,
			Enabled:     true,
			Horizons:    []decision.Horizon{decision.HorizonNone, decision.HorizonDay, decision.HorizonWeek},
		},
		ToolSpec{
			Name:          ToolModify,
			Description:   "Validated plan mutation for a day, week, season, or race.",
			Enabled:       true,
			Horizons:      []decision.Horizon{decision.HorizonDay, decision.HorizonWeek, decision.HorizonSeason, decision.HorizonRace},
			RequiredSlots: []string{"date", "change_type"},
		},
		ToolSpec{
			Name:          ToolPlan,
			Description:   "Race or season plan build.",
			Enabled:       true,
			Horizons:      []decision.Horizon{decision.HorizonSeason, decision.HorizonRace},
			RequiredSlots: []string{"race_date", "distance"},
		},
		ToolSpec{
			Name:        ToolConfirm,
			Description: "Approve a staged plan revision.",
			Enabled:     true,
			Horizons:    []decision.Horizon{decision.HorizonNone},
		},
	)
	if err != nil {
		// The builtin specs are constants; a failure here is a programming
		// error caught by the package tests.
		panic(err)
	}
	return c
}

// Spec returns the spec for the named tool.
func (c *Catalog) Spec(name string) (*ToolSpec, bool) {
	s, ok := c.specs[name]
	return s, ok
}

// Names returns the registered tool names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.specs))
	for n := range c.specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SupportsHorizon reports whether the named tool declares support for the
// given horizon.
func (c *Catalog) SupportsHorizon(name string, horizon decision.Horizon) bool {
	s, ok := c.specs[name]
	if !ok {
		return false
	}
	for _, h := range s.Horizons {
		if h == horizon {
			return true
		}
	}
	return false
}

// ValidateArgs checks a tool's JSON arguments against its declared schema.
// Tools without a schema accept anything.
func (c *Catalog) ValidateArgs(name string, args []byte) error {
	s, ok := c.specs[name]
	if !ok {
		return fmt.Errorf("catalog: unknown tool %q", name)
	}
	if s.compiled == nil {
		return nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return fmt.Errorf("catalog: tool %q arguments are not valid JSON: %w", name, err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("catalog: tool %q arguments rejected: %w", name, err)
	}
	return nil
}

func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("catalog: tool %q schema is not valid JSON: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	url := "catalog://" + name + "/args.json"
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("catalog: register schema for %q: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("catalog: compile schema for %q: %w", name, err)
	}
	return compiled, nil
}

// MarshalArgs encodes tool arguments for schema validation and backend
// calls.
func MarshalArgs(args map[string]any) ([]byte, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode arguments: %w", err)
	}
	return data, nil
}
