package clarify_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridelabs/stride/runtime/coach/clarify"
	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/coach/decision"
)

func TestGeneratePicksHighestPrecedence(t *testing.T) {
	q, err := clarify.Generate(decision.TargetExecute, []string{"change_type", "date"})
	require.NoError(t, err)
	assert.Equal(t, "Which date should I change?", q)

	q, err = clarify.Generate(decision.TargetExecute, []string{"amount", "race_date"})
	require.NoError(t, err)
	assert.Equal(t, "What date is your race?", q)
}

func TestGenerateTargetOverride(t *testing.T) {
	q, err := clarify.Generate(decision.TargetPropose, []string{"distance"})
	require.NoError(t, err)
	assert.Equal(t, "What distance is the race you are training for?", q)

	q, err = clarify.Generate(decision.TargetExecute, []string{"distance"})
	require.NoError(t, err)
	assert.Equal(t, "What distance are we working with?", q)
}

func TestGenerateFallbackForUnknownSlot(t *testing.T) {
	q, err := clarify.Generate(decision.TargetExecute, []string{"shoe_size"})
	require.NoError(t, err)
	assert.Equal(t, "Could you share the shoe size?", q)
}

func TestGenerateEmptyMissingIsContractError(t *testing.T) {
	_, err := clarify.Generate(decision.TargetExecute, nil)
	require.Error(t, err)
	assert.True(t, coacherrors.IsContract(err))
}

func TestSlot(t *testing.T) {
	assert.Equal(t, "date", clarify.Slot([]string{"change_type", "amount", "date"}))
	assert.Equal(t, "start_date", clarify.Slot([]string{"end_date", "start_date"}))
	assert.Equal(t, "unlisted", clarify.Slot([]string{"unlisted"}))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, clarify.Validate("Which date should I change?"))
	assert.NoError(t, clarify.Validate("Got it. Which date should I change?"))

	t.Run("question mark count", func(t *testing.T) {
		assert.Error(t, clarify.Validate("Tell me the date."))
		assert.Error(t, clarify.Validate("Which date? Are you sure?"))
	})

	t.Run("paragraph break", func(t *testing.T) {
		assert.Error(t, clarify.Validate("Which date?\n\nAlso, how far?"))
	})

	t.Run("sentence limit", func(t *testing.T) {
		assert.Error(t, clarify.Validate("One. Two. Which date should I change?"))
	})

	t.Run("advice vocabulary", func(t *testing.T) {
		assert.Error(t, clarify.Validate("You should rest, but which date should I change?"))
		assert.Error(t, clarify.Validate("I recommend the long run; which date should I change?"))
	})
}

func TestEveryCataloguedQuestionPassesValidation(t *testing.T) {
	for _, slot := range clarify.Precedence {
		for _, target := range []decision.TargetAction{
			decision.TargetExecute,
			decision.TargetAdjust,
			decision.TargetPropose,
			decision.TargetQuery,
		} {
			q, err := clarify.Generate(target, []string{slot})
			require.NoError(t, err, "slot %s target %s", slot, target)
			assert.True(t, strings.HasSuffix(q, "?"), "slot %s target %s: %q", slot, target, q)
		}
	}
}
