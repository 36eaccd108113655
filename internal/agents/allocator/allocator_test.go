package allocator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arps/internal/oracle"
	"arps/internal/types"
)

func normalRequest() Request {
	return Request{
		CausalSummary:      "SSO defect blocks logins.",
		PrimaryDriver:      "Unresolved SSO defect",
		ARR:                120000,
		RenewalDate:        "2026-03-31",
		DiscountCapPercent: 10,
		Capacity:           types.TeamCapacity{CSAgents: 2, Engineers: 3, AvailableHoursThisWeek: 40},
	}
}

func conflictRequest() Request {
	req := normalRequest()
	req.ConflictDetected = true
	req.ConflictDescription = "Sales vs Compliance (security bypass vs SOC2). Engineering capacity vs CFO revenue target."
	return req
}

func answer(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func rank(t *testing.T, req Request, replies ...oracle.Reply) (types.ResourceAllocatorResult, *oracle.Replay) {
	t.Helper()
	r := oracle.NewReplay().Add(Label, replies...)
	res, err := New(r, DefaultSettings()).Rank(context.Background(), req)
	require.NoError(t, err)
	return res, r
}

func ids(actions []types.RankedAction) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.ActionID
	}
	return out
}

func TestModeSelection(t *testing.T) {
	assert.Equal(t, ModeNormal, normalRequest().Mode())
	assert.Equal(t, ModeConflict, conflictRequest().Mode())
	assert.Equal(t, "conflict", ModeConflict.String())
}

func TestRankNormalEngineeringFixFirst(t *testing.T) {
	res, r := rank(t, normalRequest(), oracle.Reply{Answer: answer(t, map[string]interface{}{
		"rankedActions": []map[string]interface{}{
			{"actionId": "eng-fix", "actionType": "engineering_fix", "description": "Ship the SSO fix", "estimatedCost": 800, "expectedRevenueSaved": 120000, "roiMultiplier": 150, "reasoning": "Fixes the cause."},
			{"actionId": "training", "actionType": "free_training", "description": "Training", "estimatedCost": 500, "expectedRevenueSaved": 40000, "roiMultiplier": 80},
		},
		"recommendedActionId": "eng-fix",
	})})

	require.NotEmpty(t, res.RankedActions)
	assert.Equal(t, types.ActionEngineeringFix, res.RankedActions[0].ActionType)
	assert.Equal(t, "eng-fix", res.RecommendedActionID)
	assert.Equal(t, "", res.RankedActions[1].Reasoning)
	assert.False(t, res.Degraded)
	assert.Empty(t, res.StrategicPivotAction)
	assert.Equal(t, int32(1024), r.Calls()[0].Opts.MaxOutputTokens)
}

func TestRankNormalRecommendedFallsBackToFirst(t *testing.T) {
	res, _ := rank(t, normalRequest(), oracle.Reply{Answer: answer(t, map[string]interface{}{
		"rankedActions": []map[string]interface{}{
			{"actionId": "csm", "actionType": "dedicated_success", "description": "Dedicated CSM", "estimatedCost": 2000, "expectedRevenueSaved": 60000, "roiMultiplier": 30},
			{"actionId": "csm", "actionType": "custom", "description": "Duplicate", "estimatedCost": 1, "expectedRevenueSaved": 1, "roiMultiplier": 1},
		},
		"recommendedActionId": "does-not-exist",
	})})

	assert.Equal(t, []string{"csm"}, ids(res.RankedActions))
	assert.Equal(t, "csm", res.RecommendedActionID)
}

func TestRankNormalEmptySetUsesFallback(t *testing.T) {
	res, _ := rank(t, normalRequest(), oracle.Reply{Answer: `{"rankedActions": [], "recommendedActionId": ""}`})

	assert.Equal(t, []string{"eng-fix", "discount-8", "training"}, ids(res.RankedActions))
	assert.Equal(t, "eng-fix", res.RecommendedActionID)
	assert.True(t, res.Degraded)
	if diff := cmp.Diff(FallbackActions(120000, 10), res.RankedActions); diff != "" {
		t.Errorf("fallback set mismatch (-want +got):\n%s", diff)
	}
}

func TestRankNormalFallbackIgnoresOracleRecommendation(t *testing.T) {
	res, _ := rank(t, normalRequest(), oracle.Reply{Answer: `{"rankedActions": [], "recommendedActionId": "training"}`})

	assert.Equal(t, []string{"eng-fix", "discount-8", "training"}, ids(res.RankedActions))
	assert.Equal(t, "eng-fix", res.RecommendedActionID)
	assert.True(t, res.Degraded)
}

func TestRankNormalUnparseable(t *testing.T) {
	res, _ := rank(t, normalRequest(), oracle.Reply{Answer: "I recommend a discount."})
	assert.Equal(t, "eng-fix", res.RecommendedActionID)
	assert.Len(t, res.RankedActions, 3)
	assert.True(t, res.Degraded)
}

func TestFallbackActionsDerivedFromInputs(t *testing.T) {
	set := FallbackActions(120000, 10)
	assert.Equal(t, 150.0, set[0].ROIMultiplier)
	assert.Equal(t, "discount-8", set[1].ActionID)
	assert.Equal(t, 9600.0, set[1].EstimatedCost)
	assert.Equal(t, 12.5, set[1].ROIMultiplier)
	assert.Equal(t, 40000.0, set[2].ExpectedRevenueSaved)
	assert.Equal(t, 80.0, set[2].ROIMultiplier)

	capped := FallbackActions(100000, 5)
	assert.Equal(t, "discount-5", capped[1].ActionID)
	assert.Equal(t, 5000.0, capped[1].EstimatedCost)

	zero := FallbackActions(0, 10)
	assert.Equal(t, 0.0, zero[0].ROIMultiplier)
}

func TestRankConflictSynthesizesMissingArchetypes(t *testing.T) {
	res, r := rank(t, conflictRequest(), oracle.Reply{Answer: answer(t, map[string]interface{}{
		"rankedActions": []map[string]interface{}{
			{"actionId": "discount-5", "actionType": "discount", "description": "5% discount", "estimatedCost": 6000, "expectedRevenueSaved": 120000, "roiMultiplier": 20},
			{"actionId": "training", "actionType": "free_training", "description": "Training", "estimatedCost": 500, "expectedRevenueSaved": 40000, "roiMultiplier": 80},
		},
		"recommendedActionId": "discount-5",
	})})

	assert.Equal(t, []string{PivotID, OvertimeID, "discount-5"}, ids(res.RankedActions))
	assert.Equal(t, PivotID, res.RecommendedActionID)
	assert.Equal(t, []string{PivotID, OvertimeID, NarrativeID}, res.Synthesized)
	assert.Equal(t, DefaultConflictMaxOutputTokens, r.Calls()[0].Opts.MaxOutputTokens)

	pivot := res.RankedActions[0]
	assert.Equal(t, float64(PivotCost), pivot.EstimatedCost)
	assert.Equal(t, 50.0, pivot.ROIMultiplier)
	assert.Equal(t, 120000.0, pivot.ExpectedRevenueSaved)
	assert.Contains(t, pivot.Reasoning, "Sales vs Compliance")
	assert.Contains(t, pivot.Reasoning, "$120,000")

	overtime := res.RankedActions[1]
	assert.Equal(t, float64(OvertimeCost), overtime.EstimatedCost)
	assert.Equal(t, 20.0, overtime.ROIMultiplier)

	assert.Contains(t, res.StrategicPivotAction, "To Engineering Leadership")
	assert.Contains(t, res.StrategicPivotAction, "2026-03-31")
}

func TestRankConflictKeepsOracleArchetypes(t *testing.T) {
	res, _ := rank(t, conflictRequest(), oracle.Reply{Answer: answer(t, map[string]interface{}{
		"rankedActions": []map[string]interface{}{
			{"actionId": "overtime-push", "actionType": "engineering_fix", "description": "Mike works overtime", "estimatedCost": 5000, "expectedRevenueSaved": 120000, "roiMultiplier": 24},
			{"actionId": "other-1", "actionType": "custom", "description": "Exec call", "estimatedCost": 100, "expectedRevenueSaved": 10000, "roiMultiplier": 100},
			{"actionId": "pivot", "actionType": "custom", "description": "Strategic pivot: move Sarah onto SSO (non-overtime)", "estimatedCost": 2000, "expectedRevenueSaved": 120000, "roiMultiplier": 60},
			{"actionId": "strategic-pivot", "actionType": "custom", "description": "Second pivot", "estimatedCost": 1, "expectedRevenueSaved": 1, "roiMultiplier": 1},
			{"actionId": "other-2", "actionType": "custom", "description": "Another", "estimatedCost": 1, "expectedRevenueSaved": 1, "roiMultiplier": 1},
		},
		"recommendedActionId": "other-1",
		"strategicPivotAction": "Dear VP Engineering, ...",
	})})

	assert.Equal(t, []string{PivotID, OvertimeID, "other-1"}, ids(res.RankedActions))
	assert.Equal(t, 2000.0, res.RankedActions[0].EstimatedCost)
	assert.Equal(t, 5000.0, res.RankedActions[1].EstimatedCost)
	assert.Equal(t, PivotID, res.RecommendedActionID)
	assert.Empty(t, res.Synthesized)
	assert.Equal(t, "Dear VP Engineering, ...", res.StrategicPivotAction)
}

func TestRankConflictExactIDsWinOverDescription(t *testing.T) {
	res, _ := rank(t, conflictRequest(), oracle.Reply{Answer: answer(t, map[string]interface{}{
		"rankedActions": []map[string]interface{}{
			{"actionId": "strategic-pivot", "actionType": "custom", "description": "Move Sarah onto SSO", "estimatedCost": 2400, "expectedRevenueSaved": 120000, "roiMultiplier": 50},
			{"actionId": "emergency-overtime", "actionType": "engineering_fix", "description": "Emergency overtime now instead of rebalancing the sprint", "estimatedCost": 4500, "expectedRevenueSaved": 120000, "roiMultiplier": 26.67},
		},
		"recommendedActionId":  "strategic-pivot",
		"strategicPivotAction": "Dear VP Engineering, ...",
	})})

	assert.Equal(t, []string{PivotID, OvertimeID}, ids(res.RankedActions))
	assert.Equal(t, 4500.0, res.RankedActions[1].EstimatedCost)
	assert.Empty(t, res.Synthesized)
}

func TestRankConflictUnparseable(t *testing.T) {
	res, _ := rank(t, conflictRequest(), oracle.Reply{Answer: "no json"})
	assert.Equal(t, []string{PivotID, OvertimeID}, ids(res.RankedActions))
	assert.Equal(t, PivotID, res.RecommendedActionID)
	assert.True(t, res.Degraded)
}

func TestConflictOrderingInvariant(t *testing.T) {
	inputs := [][]types.RankedAction{
		nil,
		{{ActionID: "a"}, {ActionID: "b"}, {ActionID: "c"}},
		{{ActionID: "x", Description: "Overtime sprint"}, {ActionID: "y", Description: "overtime again"}},
		{{ActionID: "rebalance", Description: "Rebalance workload"}},
	}
	for _, in := range inputs {
		out, _ := EnforceConflict(in, conflictRequest())
		require.GreaterOrEqual(t, len(out), 2)
		require.LessOrEqual(t, len(out), 3)
		assert.Equal(t, PivotID, out[0].ActionID)
		assert.Equal(t, OvertimeID, out[1].ActionID)

		pivots, overtimes := 0, 0
		for _, a := range out {
			if a.ActionID == PivotID {
				pivots++
			}
			if a.ActionID == OvertimeID {
				overtimes++
			}
		}
		assert.Equal(t, 1, pivots)
		assert.Equal(t, 1, overtimes)
	}
}

func TestRankPropagatesOracleFailure(t *testing.T) {
	r := oracle.NewReplay().Add(Label, oracle.Reply{Error: "quota"})
	_, err := New(r, DefaultSettings()).Rank(context.Background(), conflictRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, oracle.ErrQuota))
	assert.Contains(t, err.Error(), "conflict mode")
}

func TestBuildPromptModes(t *testing.T) {
	assert.NotContains(t, BuildPrompt(normalRequest()), PivotID)
	p := BuildPrompt(conflictRequest())
	assert.Contains(t, p, PivotID)
	assert.Contains(t, p, OvertimeID)
	assert.Contains(t, p, "Sales vs Compliance")
}

func TestHoursFor(t *testing.T) {
	assert.Equal(t, 16, HoursFor(PivotID))
	assert.Equal(t, 20, HoursFor(OvertimeID))
	assert.Equal(t, 0, HoursFor("eng-fix"))
}
