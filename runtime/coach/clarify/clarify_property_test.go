package clarify_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/stridelabs/stride/runtime/coach/clarify"
	"github.com/stridelabs/stride/runtime/coach/decision"
)

func genMissing() gopter.Gen {
	slot := gen.OneGenOf(
		gen.OneConstOf(
			"race_date", "date", "start_date", "end_date",
			"distance", "change_type", "amount",
		),
		gen.Identifier(),
	)
	return gen.SliceOfN(3, slot)
}

func TestGeneratedQuestionsAlwaysValidate(t *testing.T) {
	t.Parallel()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	targets := gen.OneConstOf(
		decision.TargetPropose,
		decision.TargetAdjust,
		decision.TargetExecute,
		decision.TargetQuery,
		decision.TargetConfirm,
	)

	properties.Property("any missing set yields a single valid question", prop.ForAll(
		func(target decision.TargetAction, missing []string) bool {
			q, err := clarify.Generate(target, missing)
			if err != nil {
				return false
			}
			return clarify.Validate(q) == nil
		},
		targets, genMissing(),
	))

	properties.Property("the asked slot is the highest-precedence missing one", prop.ForAll(
		func(missing []string) bool {
			picked := clarify.Slot(missing)
			for _, p := range clarify.Precedence {
				for _, m := range missing {
					if m == p {
						return picked == m
					}
				}
			}
			return picked == missing[0]
		},
		genMissing(),
	))

	properties.TestingRun(t)
}
