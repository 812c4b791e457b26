package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridelabs/stride/runtime/coach/catalog"
	"github.com/stridelabs/stride/runtime/coach/coacherrors"
	"github.com/stridelabs/stride/runtime/coach/decision"
	"github.com/stridelabs/stride/runtime/coach/router"
)

func TestRouteTable(t *testing.T) {
	cases := []struct {
		name string
		in   router.Input
		want string
	}{
		{"greet", router.Input{Intent: decision.IntentGreet}, ""},
		{"off topic", router.Input{Intent: decision.IntentOffTopic}, ""},
		{"clarify", router.Input{Intent: decision.IntentClarify}, ""},
		{"explain general", router.Input{Intent: decision.IntentExplain}, ""},
		{"explain schedule", router.Input{Intent: decision.IntentExplain, QueryType: "schedule"}, catalog.ToolGetSchedule},
		{"plan race", router.Input{Intent: decision.IntentPlan, Horizon: decision.HorizonRace}, catalog.ToolPlan},
		{"plan season", router.Input{Intent: decision.IntentPlan, Horizon: decision.HorizonSeason}, catalog.ToolPlan},
		{"plan week folds into modify", router.Input{Intent: decision.IntentPlan, Horizon: decision.HorizonWeek}, catalog.ToolModify},
		{"plan day folds into modify", router.Input{Intent: decision.IntentPlan, Horizon: decision.HorizonDay}, catalog.ToolModify},
		{"plan no horizon", router.Input{Intent: decision.IntentPlan, Horizon: decision.HorizonNone}, ""},
		{"modify day", router.Input{Intent: decision.IntentModify, Horizon: decision.HorizonDay}, catalog.ToolModify},
		{"modify week", router.Input{Intent: decision.IntentModify, Horizon: decision.HorizonWeek}, catalog.ToolModify},
		{"modify season", router.Input{Intent: decision.IntentModify, Horizon: decision.HorizonSeason}, catalog.ToolModify},
		{"modify race", router.Input{Intent: decision.IntentModify, Horizon: decision.HorizonRace}, catalog.ToolModify},
		{"modify no horizon", router.Input{Intent: decision.IntentModify, Horizon: decision.HorizonNone}, ""},
		{"confirm bare", router.Input{Intent: decision.IntentConfirm, Horizon: decision.HorizonNone}, catalog.ToolConfirm},
		{"confirm with proposal", router.Input{Intent: decision.IntentConfirm, Horizon: decision.HorizonDay, HasProposal: true}, catalog.ToolConfirm},
		{"confirm with horizon no proposal", router.Input{Intent: decision.IntentConfirm, Horizon: decision.HorizonDay}, ""},
		{"propose day", router.Input{Intent: decision.IntentPropose, Horizon: decision.HorizonDay}, catalog.ToolModify},
		{"propose without horizon", router.Input{Intent: decision.IntentPropose, Horizon: decision.HorizonNone}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, router.Route(tc.in))
		})
	}
}

func TestRouteWithSafetyCheckAppendsPrerequisite(t *testing.T) {
	cat := catalog.Default()

	for _, h := range []decision.Horizon{decision.HorizonDay, decision.HorizonWeek, decision.HorizonSeason} {
		tool, checks, err := router.RouteWithSafetyCheck(cat, router.Input{
			Intent:  decision.IntentModify,
			Horizon: h,
		})
		require.NoError(t, err)
		assert.Equal(t, catalog.ToolModify, tool)
		assert.Equal(t, []string{catalog.CheckIncoherence}, checks, "horizon %s", h)
	}

	// Race-scope modification touches the profile, not the schedule.
	tool, checks, err := router.RouteWithSafetyCheck(cat, router.Input{
		Intent:  decision.IntentModify,
		Horizon: decision.HorizonRace,
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.ToolModify, tool)
	assert.Empty(t, checks)
}

func TestRouteWithSafetyCheckReadOnlySkipsPrerequisite(t *testing.T) {
	cat := catalog.Default()
	tool, checks, err := router.RouteWithSafetyCheck(cat, router.Input{
		Intent:    decision.IntentExplain,
		QueryType: "schedule",
		Horizon:   decision.HorizonDay,
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.ToolGetSchedule, tool)
	assert.Empty(t, checks)
}

func TestRouteWithSafetyCheckConversationalTurn(t *testing.T) {
	tool, checks, err := router.RouteWithSafetyCheck(catalog.Default(), router.Input{
		Intent: decision.IntentGreet,
	})
	require.NoError(t, err)
	assert.Equal(t, "", tool)
	assert.Nil(t, checks)
}

func TestRouteWithSafetyCheckHorizonMismatch(t *testing.T) {
	// A catalog whose get_schedule tool dropped the week horizon disagrees
	// with the routing table; that is a wiring bug, not user error.
	cat, err := catalog.New(
		catalog.ToolSpec{Name: catalog.ToolGetSchedule, ReadOnly: true, Enabled: true,
			Horizons: []decision.Horizon{decision.HorizonDay}},
	)
	require.NoError(t, err)

	_, _, err = router.RouteWithSafetyCheck(cat, router.Input{
		Intent:    decision.IntentExplain,
		QueryType: "schedule",
		Horizon:   decision.HorizonWeek,
	})
	require.Error(t, err)
	assert.True(t, coacherrors.IsContract(err))
}

func TestRouteWithSafetyCheckMissingTool(t *testing.T) {
	cat, err := catalog.New(
		catalog.ToolSpec{Name: catalog.ToolGetSchedule, ReadOnly: true, Enabled: true},
	)
	require.NoError(t, err)

	_, _, err = router.RouteWithSafetyCheck(cat, router.Input{
		Intent:  decision.IntentModify,
		Horizon: decision.HorizonDay,
	})
	require.Error(t, err)
	assert.True(t, coacherrors.IsContract(err))
}

func TestTargetFor(t *testing.T) {
	assert.Equal(t, decision.TargetQuery, router.TargetFor(catalog.ToolGetSchedule, decision.IntentExplain))
	assert.Equal(t, decision.TargetConfirm, router.TargetFor(catalog.ToolConfirm, decision.IntentConfirm))
	assert.Equal(t, decision.TargetPropose, router.TargetFor(catalog.ToolPlan, decision.IntentPlan))
	assert.Equal(t, decision.TargetPropose, router.TargetFor(catalog.ToolModify, decision.IntentPropose))
	assert.Equal(t, decision.TargetAdjust, router.TargetFor(catalog.ToolModify, decision.IntentPlan))
	assert.Equal(t, decision.TargetExecute, router.TargetFor(catalog.ToolModify, decision.IntentModify))
	assert.Equal(t, decision.TargetAction(""), router.TargetFor("other", decision.IntentModify))
}
