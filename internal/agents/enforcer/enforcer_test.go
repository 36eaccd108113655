package enforcer

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"arps/internal/agents/allocator"
	"arps/internal/logging"
	"arps/internal/oracle"
	"arps/internal/types"
)

var rules = types.PolicyRules{DiscountCapPercent: 8, BudgetCapDollars: 10000, MaxEngineerHoursPerAccount: 16}

func engFix() types.RankedAction {
	return types.RankedAction{ActionID: "eng-fix", ActionType: types.ActionEngineeringFix, Description: "Ship the fix", EstimatedCost: 800, ExpectedRevenueSaved: 120000, ROIMultiplier: 150}
}

func check(t *testing.T, mode types.FailMode, req Request, reply oracle.Reply) types.PolicyCheckResult {
	t.Helper()
	r := oracle.NewReplay().Add(Label, reply)
	res, err := New(r, DefaultSettings(), mode).Check(context.Background(), req)
	require.NoError(t, err)
	return res
}

func TestCheckLimitsDiscountAtCapIsCompliant(t *testing.T) {
	action := types.RankedAction{ActionID: "discount-8", ActionType: types.ActionDiscount, EstimatedCost: 9600}
	report := CheckLimits(action, rules, 120000)
	assert.True(t, report.IsDiscount)
	assert.Equal(t, 8.0, report.DiscountPercent)
	assert.True(t, report.WithinDiscountCap)
	assert.True(t, report.Compliant())
	assert.Empty(t, report.Violations())

	action.EstimatedCost = 9601
	report = CheckLimits(action, rules, 120000)
	assert.False(t, report.WithinDiscountCap)
	assert.Len(t, report.Violations(), 1)
}

func TestCheckLimitsBudgetAndHours(t *testing.T) {
	atCap := engFix()
	atCap.EstimatedCost = 10000
	assert.True(t, CheckLimits(atCap, rules, 120000).WithinBudget)

	over := engFix()
	over.EstimatedCost = 10000.01
	assert.False(t, CheckLimits(over, rules, 120000).Compliant())

	noCap := CheckLimits(over, types.PolicyRules{}, 120000)
	assert.True(t, noCap.Compliant())

	pivot := allocator.PivotAction(allocator.Request{ARR: 120000})
	assert.True(t, CheckLimits(pivot, rules, 120000).WithinHours)

	overtime := allocator.OvertimeAction(allocator.Request{ARR: 120000})
	report := CheckLimits(overtime, rules, 120000)
	assert.Equal(t, 20, report.EngineerHours)
	assert.False(t, report.WithinHours)
	assert.Contains(t, report.Violations()[0], "20 engineer hours")
}

func TestCheckLimitsZeroARR(t *testing.T) {
	free := types.RankedAction{ActionType: types.ActionDiscount}
	assert.True(t, CheckLimits(free, rules, 0).WithinDiscountCap)
	paid := types.RankedAction{ActionType: types.ActionDiscount, EstimatedCost: 1}
	assert.False(t, CheckLimits(paid, rules, 0).WithinDiscountCap)
}

func TestCheckAllowed(t *testing.T) {
	res := check(t, types.FailOpen, Request{Action: engFix(), Rules: rules, ARR: 120000},
		oracle.Reply{Answer: `{"actionId":"eng-fix","allowed":true,"explanation":"Within budget."}`})
	assert.True(t, res.Allowed)
	assert.Equal(t, "eng-fix", res.ActionID)
	assert.Equal(t, "Within budget.", res.Explanation)
	assert.Empty(t, res.FailMode)
	assert.False(t, res.Degraded)
}

func TestCheckDenied(t *testing.T) {
	res := check(t, types.FailOpen, Request{Action: engFix(), Rules: rules, ARR: 120000},
		oracle.Reply{Answer: `{"actionId":"eng-fix","allowed":"false","violation":"Over budget","alternativeSuggestion":"Smaller scope","explanation":"Denied."}`})
	assert.False(t, res.Allowed)
	assert.Equal(t, "Over budget", res.Violation)
	assert.Equal(t, "Smaller scope", res.AlternativeSuggestion)
}

func TestCheckLogsDenialOfCompliantAction(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	require.NoError(t, logging.Use(zap.New(core), nil))
	t.Cleanup(logging.Reset)

	atCap := types.RankedAction{ActionID: "discount-8", ActionType: types.ActionDiscount, EstimatedCost: 9600}
	res := check(t, types.FailOpen, Request{Action: atCap, Rules: rules, ARR: 120000},
		oracle.Reply{Answer: `{"actionId":"discount-8","allowed":false,"violation":"Discount at the cap","explanation":"Denied."}`})

	assert.False(t, res.Allowed)
	assert.False(t, res.Degraded)
	require.Equal(t, 1, logs.FilterMessageSnippet("although every limit holds").Len())
}

func TestCheckUnparseableFailModes(t *testing.T) {
	overBudget := engFix()
	overBudget.EstimatedCost = 50000

	tests := []struct {
		name        string
		mode        types.FailMode
		action      types.RankedAction
		wantAllowed bool
		wantExplain string
	}{
		{name: "open", mode: types.FailOpen, action: overBudget, wantAllowed: true, wantExplain: OpenExplanation},
		{name: "default is open", mode: "", action: overBudget, wantAllowed: true, wantExplain: OpenExplanation},
		{name: "closed", mode: types.FailClosed, action: engFix(), wantAllowed: false, wantExplain: ClosedExplanation},
		{name: "rules compliant", mode: types.FailRules, action: engFix(), wantAllowed: true},
		{name: "rules violated", mode: types.FailRules, action: overBudget, wantAllowed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := check(t, tt.mode, Request{Action: tt.action, Rules: rules, ARR: 120000},
				oracle.Reply{Answer: "Sorry, I cannot evaluate this."})
			assert.Equal(t, tt.wantAllowed, res.Allowed)
			assert.True(t, res.Degraded)
			assert.NotEmpty(t, res.FailMode)
			assert.NotEmpty(t, res.Explanation)
			if tt.wantExplain != "" {
				assert.Equal(t, tt.wantExplain, res.Explanation)
			}
		})
	}
}

func TestCheckMissingAllowedUsesFailMode(t *testing.T) {
	res := check(t, types.FailClosed, Request{Action: engFix(), Rules: rules, ARR: 120000},
		oracle.Reply{Answer: `{"actionId":"eng-fix","explanation":"Looks fine."}`})
	assert.False(t, res.Allowed)
	assert.Equal(t, types.FailClosed, res.FailMode)
	assert.Equal(t, "Looks fine.", res.Explanation)
}

func TestCheckPromptCarriesFacts(t *testing.T) {
	r := oracle.NewReplay().Add(Label, oracle.Reply{Answer: `{"actionId":"x","allowed":true,"explanation":"ok"}`})
	action := types.RankedAction{ActionID: "discount-8", ActionType: types.ActionDiscount, EstimatedCost: 9600}
	_, err := New(r, DefaultSettings(), types.FailOpen).Check(context.Background(),
		Request{Action: action, Rules: rules, Capacity: types.TeamCapacity{Engineers: 2}, ARR: 120000})
	require.NoError(t, err)

	call := r.Calls()[0]
	assert.Contains(t, call.Prompt, "Discount 8.00% of ARR vs cap 8%")
	assert.Contains(t, call.Prompt, "within limit")
	assert.Contains(t, call.Prompt, `"engineers":2`)
	assert.False(t, call.Opts.IncludeThoughts)
	assert.Equal(t, float32(0.1), call.Opts.Temperature)
}

func TestCheckPropagatesOracleFailure(t *testing.T) {
	r := oracle.NewReplay().Add(Label, oracle.Reply{Error: "network"})
	_, err := New(r, DefaultSettings(), types.FailOpen).Check(context.Background(), Request{Action: engFix()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, oracle.ErrNetwork))
}
