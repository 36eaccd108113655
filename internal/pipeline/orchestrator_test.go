package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arps/internal/agents/allocator"
	"arps/internal/agents/contextweaver"
	"arps/internal/agents/enforcer"
	"arps/internal/oracle"
	"arps/internal/types"
	"arps/internal/usage"
)

func happyInput() types.SolveInput {
	return types.SolveInput{
		CRMSnapshot:              "Acme Corp. Enterprise. Health score 41.",
		SupportConversation:      "SSO has been broken for 19 days. Ticket #4411 still open.",
		SlackOrEmailConversation: "Eng: SSO fix is in QA.",
		ARR:                      120000,
		RenewalDate:              "2026-03-31",
		TeamCapacity:             types.TeamCapacity{CSAgents: 2, Engineers: 3, AvailableHoursThisWeek: 40},
		PolicyRules:              types.PolicyRules{DiscountCapPercent: 10, BudgetCapDollars: 10000},
	}
}

func conflictInput() types.SolveInput {
	in := happyInput()
	in.SupportConversation = "Customer legal: breach of MSA Section 9 if SSO is not fixed by Friday."
	in.SlackOrEmailConversation = "Sales: bypass the security review. Compliance: no, SOC2. CTO: Mike is at 48 hours."
	return in
}

const happyWeaver = `{"primaryDriver":"Unresolved SSO defect (19-day-old ticket)","secondaryDrivers":["Slow support"],` +
	`"plainEnglishSummary":"The customer has been unable to use SSO for 19 days and the renewal is at risk unless the fix ships.","confidence":"high"}`

const happyAllocator = `{"rankedActions":[` +
	`{"actionId":"eng-fix","actionType":"engineering_fix","description":"Expedite SSO fix (already in QA)","estimatedCost":800,"expectedRevenueSaved":120000,"roiMultiplier":150,"reasoning":"Fixes the cause."},` +
	`{"actionId":"discount-8","actionType":"discount","description":"8% discount","estimatedCost":9600,"expectedRevenueSaved":120000,"roiMultiplier":12.5,"reasoning":"Within cap."}],` +
	`"recommendedActionId":"eng-fix"}`

const conflictWeaver = `{"primaryDriver":"Legal threat over the SSO outage","secondaryDrivers":["Engineer burnout","Security bypass request"],` +
	`"plainEnglishSummary":"Legal, security and staffing pressures collide.","confidence":"high","conflictDetected":true,` +
	`"conflictDescription":"Sales vs Compliance (security bypass vs SOC2). Engineering capacity vs CFO revenue target."}`

func newOrchestrator(r *oracle.Replay) *Orchestrator {
	o := New(DefaultConfig(r))
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	o.newID = func() string { return "run-1" }
	return o
}

func TestRunHappyPath(t *testing.T) {
	r := oracle.NewReplay().
		Add(contextweaver.Label, oracle.Reply{Thoughts: []string{"SSO is the cause."}, Answer: happyWeaver}).
		Add(allocator.Label, oracle.Reply{Answer: happyAllocator}).
		Add(enforcer.Label, oracle.Reply{Answer: `{"actionId":"eng-fix","allowed":true,"explanation":"$800 is within the $10,000 budget cap."}`})

	res, err := newOrchestrator(r).Run(context.Background(), happyInput())
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.False(t, res.ConflictDetected)
	require.NotEmpty(t, res.RankedActions)
	assert.Equal(t, types.ActionEngineeringFix, res.RankedActions[0].ActionType)
	assert.True(t, res.PolicyCheck.Allowed)
	assert.Equal(t, "eng-fix", res.PolicyCheck.ActionID)
	assert.Nil(t, res.AuthorizationSummary)
	assert.Nil(t, res.RiskRadar)
	assert.Equal(t, "Expedite SSO fix (already in QA). Save $120k.", res.FinalRecommendation)
	require.NotNil(t, res.SourceSnippets)
	assert.Equal(t, "CRM: ARR $120,000. Renewal date 2026-03-31.", res.SourceSnippets.ARR)
	assert.NotContains(t, res.SourceSnippets.GroundingLabel, "%")

	require.Len(t, res.AuditLog, 3)
	assert.Equal(t, types.AgentContextWeaver, res.AuditLog[0].Agent)
	assert.Equal(t, types.AgentResourceAllocator, res.AuditLog[1].Agent)
	assert.Equal(t, types.AgentPolicyEnforcer, res.AuditLog[2].Agent)
	assert.True(t, res.AuditLog[0].Timestamp.Before(res.AuditLog[1].Timestamp))
	assert.True(t, res.AuditLog[1].Timestamp.Before(res.AuditLog[2].Timestamp))
	assert.Equal(t, "Recommended: eng-fix. Ranked 2 actions by ROI.", res.AuditLog[1].Summary)
	assert.Equal(t, "SSO is the cause.", res.AuditLog[0].ReasoningLogic)

	calls := r.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[1].Prompt, "Unresolved SSO defect")
	assert.Contains(t, calls[2].Prompt, `"actionId":"eng-fix"`)
}

func TestRunTracksUsage(t *testing.T) {
	r := oracle.NewReplay().
		Add(contextweaver.Label, oracle.Reply{Answer: happyWeaver}).
		Add(allocator.Label, oracle.Reply{Answer: happyAllocator}).
		Add(enforcer.Label, oracle.Reply{Answer: `{"actionId":"eng-fix","allowed":true,"explanation":"ok"}`})

	cfg := DefaultConfig(r)
	cfg.Usage = usage.NewTracker()
	o := New(cfg)
	require.Same(t, cfg.Usage, o.Usage())

	_, err := o.Run(context.Background(), happyInput())
	require.NoError(t, err)

	stats := o.Usage().Stats()
	assert.Equal(t, int64(1), stats.Runs)
	assert.Equal(t, int64(3), stats.Total.Calls)
	for _, stage := range []string{contextweaver.Label, allocator.Label, enforcer.Label} {
		assert.Equal(t, int64(1), stats.ByStage[stage].Calls, stage)
	}
	assert.Positive(t, stats.Total.Total)
}

func TestRunConflictPath(t *testing.T) {
	r := oracle.NewReplay().
		Add(contextweaver.Label, oracle.Reply{Answer: conflictWeaver}).
		Add(allocator.Label, oracle.Reply{
			Thoughts: []string{"Rebalancing beats overtime here. Mike is at capacity."},
			Answer:   `{"rankedActions":[],"recommendedActionId":""}`,
		}).
		Add(enforcer.Label, oracle.Reply{Answer: `{"actionId":"strategic-pivot","allowed":true,"explanation":"No security bypass; within budget."}`})

	res, err := newOrchestrator(r).Run(context.Background(), conflictInput())
	require.NoError(t, err)

	assert.True(t, res.ConflictDetected)
	require.GreaterOrEqual(t, len(res.RankedActions), 2)
	assert.Equal(t, allocator.PivotID, res.RankedActions[0].ActionID)
	assert.Equal(t, allocator.OvertimeID, res.RankedActions[1].ActionID)
	assert.Equal(t, allocator.PivotID, res.RecommendedActionID)
	assert.Equal(t, allocator.PivotID, res.PolicyCheck.ActionID)
	assert.True(t, res.PolicyCheck.Allowed)
	assert.NotEmpty(t, res.StrategicPivotAction)

	auth := res.AuthorizationSummary
	require.NotNil(t, auth)
	assert.Equal(t, DefaultLiability.Estimate(120000), auth.LiabilityMitigation)
	assert.Equal(t, 240000.0, auth.LiabilityMitigation)
	assert.Equal(t, float64(allocator.PivotCost), auth.DirectCost)
	assert.Equal(t, 120000.0, auth.RevenueProtected)
	assert.Equal(t, "AC-120K", auth.AccountLabel)
	assert.Equal(t, "Rebalancing beats overtime here.", auth.ThoughtTraceIntro)
	assert.Equal(t, "Sales vs Compliance (security bypass vs SOC2). Engineering capacity vs CFO revenue target.", auth.ConflictIdentification)
	assert.True(t, strings.HasPrefix(auth.WorkflowDispatches.Jira, "Legal threat over the SSO outage. Strategic pivot"))
	assert.Contains(t, auth.WorkflowDispatches.Slack, "Protects $120k ARR.")
	assert.Equal(t, "No security bypass; within budget.", auth.LegalPolicyCheck)

	require.NotNil(t, res.RiskRadar)
	assert.Equal(t, types.RiskHigh, res.RiskRadar.Before.RevenueRisk)
	assert.Equal(t, types.RiskStable, res.RiskRadar.After.TeamBurnout)
}

func TestRunUnparseablePolicyVerdictFailsOpen(t *testing.T) {
	r := oracle.NewReplay().
		Add(contextweaver.Label, oracle.Reply{Answer: happyWeaver}).
		Add(allocator.Label, oracle.Reply{Answer: happyAllocator}).
		Add(enforcer.Label, oracle.Reply{Answer: "I'm not sure about this one."})

	res, err := newOrchestrator(r).Run(context.Background(), happyInput())
	require.NoError(t, err)
	assert.True(t, res.PolicyCheck.Allowed)
	assert.Equal(t, enforcer.OpenExplanation, res.PolicyCheck.Explanation)
	assert.Equal(t, types.FailOpen, res.PolicyCheck.FailMode)
	assert.Len(t, res.AuditLog, 3)
}

func TestRunEmptyActionSetUsesFallbackSet(t *testing.T) {
	r := oracle.NewReplay().
		Add(contextweaver.Label, oracle.Reply{Answer: happyWeaver}).
		Add(allocator.Label, oracle.Reply{Answer: `{"rankedActions":[],"recommendedActionId":"x"}`}).
		Add(enforcer.Label, oracle.Reply{Answer: `{"actionId":"eng-fix","allowed":true,"explanation":"ok"}`})

	res, err := newOrchestrator(r).Run(context.Background(), happyInput())
	require.NoError(t, err)
	require.Len(t, res.RankedActions, 3)
	assert.Equal(t, res.RankedActions[0].ActionID, res.RecommendedActionID)
	assert.Equal(t, "eng-fix", res.RecommendedActionID)
}

func TestRunAbortsOnOracleFailure(t *testing.T) {
	for _, failing := range []string{contextweaver.Label, allocator.Label, enforcer.Label} {
		t.Run(failing, func(t *testing.T) {
			replies := map[string]oracle.Reply{
				contextweaver.Label: {Answer: happyWeaver},
				allocator.Label:     {Answer: happyAllocator},
				enforcer.Label:      {Answer: `{"actionId":"eng-fix","allowed":true,"explanation":"ok"}`},
			}
			replies[failing] = oracle.Reply{Error: "quota"}
			r := oracle.NewReplay()
			for label, reply := range replies {
				r.Add(label, reply)
			}

			res, err := newOrchestrator(r).Run(context.Background(), happyInput())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, oracle.ErrUnavailable))
			assert.True(t, errors.Is(err, oracle.ErrQuota))
		})
	}
}

func TestRunRejectsInvalidInput(t *testing.T) {
	in := happyInput()
	in.ARR = -1
	res, err := newOrchestrator(oracle.NewReplay()).Run(context.Background(), in)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, types.ErrInvalidInput))
}

func TestRunWithoutOracle(t *testing.T) {
	_, err := New(DefaultConfig(nil)).Run(context.Background(), happyInput())
	assert.True(t, errors.Is(err, oracle.ErrNotConfigured))
}

func TestAuditSummaryTruncated(t *testing.T) {
	long := strings.Repeat("é", 200)
	r := oracle.NewReplay().
		Add(contextweaver.Label, oracle.Reply{Answer: `{"primaryDriver":"d","secondaryDrivers":[],"plainEnglishSummary":"` + long + `","confidence":"low"}`}).
		Add(allocator.Label, oracle.Reply{Answer: happyAllocator}).
		Add(enforcer.Label, oracle.Reply{Answer: `{"actionId":"eng-fix","allowed":true,"explanation":"ok"}`})

	res, err := newOrchestrator(r).Run(context.Background(), happyInput())
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 120)+"...", res.AuditLog[0].Summary)
	assert.Equal(t, long, res.CausalRisk.Summary)
}

func TestLiabilityModel(t *testing.T) {
	assert.Equal(t, 200000.0, DefaultLiability.Estimate(50000))
	assert.Equal(t, 240000.0, DefaultLiability.Estimate(120000))
	assert.Equal(t, 300001.0, DefaultLiability.Estimate(150000.4))
	custom := LiabilityModel{Floor: 0, Multiplier: 3}
	assert.Equal(t, 360000.0, custom.Estimate(120000))
}

func TestFinalRecommendation(t *testing.T) {
	long := types.RankedAction{Description: strings.Repeat("x", 90), ExpectedRevenueSaved: 45500}
	assert.Equal(t, strings.Repeat("x", 80)+"…. Save $46k.", FinalRecommendation(long))
	assert.Equal(t, "AC-120K", AccountLabel(120000))
	assert.Equal(t, "", firstSentence("  "))
	assert.Equal(t, "One.", firstSentence("One! Two."))
}
