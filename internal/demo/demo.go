// Package demo holds the canned Acme Corp scenario: its input, a precomputed
// result that needs no oracle, and a replay oracle that reproduces the result
// through the real pipeline.
package demo

import (
	"encoding/json"
	"time"

	"arps/internal/agents/allocator"
	"arps/internal/agents/contextweaver"
	"arps/internal/agents/enforcer"
	"arps/internal/oracle"
	"arps/internal/pipeline"
	"arps/internal/types"
)

// RunID identifies the static result.
const RunID = "demo"

const (
	crmSnapshot = `Account: Acme Corp (AC-120K)
ARR: $120,000. Renewal: 2025-03-15. Seats: 80. Health: red.
Open escalation: ticket #314 (SSO timeout), priority P1, age 19 days.`

	supportConversation = `Ticket #314, IT Director: "80 of our users cannot log in through SSO. This has been going on for almost three weeks.
We are pausing any renewal discussion until the platform works, and we have started evaluating alternatives."
Support: "The fix is in QA. We will confirm a ship date."`

	internalThread = `#acme-renewal
CSM: Acme is threatening to churn over #314. Can engineering commit to a date?
Eng lead: Fix is in QA but the team is stretched across two launches.
Sales: I can offer a discount to hold the renewal.`
)

// Input is the default scenario.
func Input() types.SolveInput {
	return types.SolveInput{
		CRMSnapshot:              crmSnapshot,
		SupportConversation:      supportConversation,
		SlackOrEmailConversation: internalThread,
		ARR:                      120000,
		RenewalDate:              "2025-03-15",
		TeamCapacity:             types.TeamCapacity{CSAgents: 2, Engineers: 3, AvailableHoursThisWeek: 40},
		PolicyRules: types.PolicyRules{
			DiscountCapPercent: 15,
			BudgetCapDollars:   10000,
			RulesDescription:   "Max 15% discount without VP approval.",
		},
	}
}

var causal = types.CausalRiskResult{
	PrimaryDriver: "Critical production-blocking technical issue (SSO timeout) blocking 80 users for 19+ days.",
	SecondaryDrivers: []string{
		"Prolonged resolution time for high-priority ticket #314",
		"Internal resource constraints and lack of engineering prioritization",
		"Explicit customer threat to evaluate alternatives due to product instability",
		"Proximity to renewal date (60 days) with unresolved core functionality",
	},
	Summary: "Acme Corp is at high risk because a critical SSO failure has blocked 80 users for nearly three weeks, " +
		"leading the IT Director to explicitly pause renewal commitments until the platform is functional. " +
		"While a fix is now in QA, the prolonged downtime and perceived lack of urgency have severely damaged trust " +
		"and prompted the customer to evaluate competitors just two months before their $120k renewal.",
	ThoughtSummary: "Context Weaver fused CRM, support ticket, and Slack thread. Primary cause: unresolved SSO bug (ticket #314, 19 days). " +
		"Secondary: delayed CS follow-up, workload imbalance. Timeline ordered causally: bug, delay, threat, renewal at risk.",
	Confidence: types.ConfidenceHigh,
}

var actions = []types.RankedAction{
	{
		ActionID:             "eng-fix",
		ActionType:           types.ActionEngineeringFix,
		Description:          "Expedite SSO fix (already in QA); assign owner and ship by Friday",
		EstimatedCost:        800,
		ExpectedRevenueSaved: 120000,
		ROIMultiplier:        150,
		Reasoning:            "Addresses primary driver and restores trust. Higher ROI than discount because it fixes the root cause.",
	},
	{
		ActionID:             "discount-8",
		ActionType:           types.ActionDiscount,
		Description:          "8% discount (within policy) + commitment to fix timeline",
		EstimatedCost:        9600,
		ExpectedRevenueSaved: 120000,
		ROIMultiplier:        12.5,
		Reasoning:            "Within 15% cap; pairs well with fix but does not solve the product issue alone.",
	},
	{
		ActionID:             "training",
		ActionType:           types.ActionFreeTraining,
		Description:          "Free training session + dedicated CSM check-in",
		EstimatedCost:        500,
		ExpectedRevenueSaved: 40000,
		ROIMultiplier:        80,
		Reasoning:            "Builds relationship but does not fix SSO. Lower expected revenue saved.",
	},
}

const allocatorThought = "Resource Allocator compared discount vs fix vs training. " +
	"Counterfactual: discount does not fix bug; fix addresses root cause and saves renewal."

var policy = types.PolicyCheckResult{
	ActionID: "eng-fix",
	Allowed:  true,
	Explanation: "Expediting the SSO fix is within budget ($800 < $10k cap) and does not violate discount " +
		"or team capacity policy. Recommended action is compliant.",
}

// Result returns the precomputed result with audit timestamps at now.
func Result(now time.Time) *types.PipelineResult {
	in := Input()
	ts := now.UTC()
	ranked := append([]types.RankedAction(nil), actions...)
	c := causal
	c.SecondaryDrivers = append([]string(nil), causal.SecondaryDrivers...)

	return &types.PipelineResult{
		RunID:               RunID,
		CausalRisk:          c,
		RankedActions:       ranked,
		RecommendedActionID: "eng-fix",
		PolicyCheck:         policy,
		AuditLog: []types.AuditEntry{
			{
				Agent:          types.AgentContextWeaver,
				Timestamp:      ts,
				Summary:        pipeline.Truncate(causal.Summary, pipeline.DefaultAuditSummaryLen),
				ThoughtSummary: causal.ThoughtSummary,
				ReasoningLogic: causal.ThoughtSummary,
			},
			{
				Agent:          types.AgentResourceAllocator,
				Timestamp:      ts,
				Summary:        "Recommended: eng-fix. Ranked 3 actions by ROI.",
				ThoughtSummary: allocatorThought,
				ReasoningLogic: allocatorThought,
			},
			{
				Agent:     types.AgentPolicyEnforcer,
				Timestamp: ts,
				Summary:   pipeline.Truncate(policy.Explanation, pipeline.DefaultAuditSummaryLen),
			},
		},
		SourceSnippets: &types.SourceSnippets{
			ARR:            "CRM: ARR $120,000. Renewal date " + in.RenewalDate + ".",
			PrimaryDriver:  "Support ticket / risk context: " + causal.PrimaryDriver,
			GroundingLabel: "Verified via CRM Snapshot (" + pipeline.AccountLabel(in.ARR) + ")",
		},
		FinalRecommendation: pipeline.FinalRecommendation(actions[0]),
	}
}

// Replay returns a replay oracle whose answers reproduce Result when the
// pipeline runs on Input.
func Replay() *oracle.Replay {
	r := oracle.NewReplay()
	r.Add(contextweaver.Label, oracle.Reply{
		Thoughts: []string{causal.ThoughtSummary},
		Answer: answer(map[string]interface{}{
			"primaryDriver":       causal.PrimaryDriver,
			"secondaryDrivers":    causal.SecondaryDrivers,
			"plainEnglishSummary": causal.Summary,
			"confidence":          causal.Confidence,
			"conflictDetected":    false,
		}),
	})
	r.Add(allocator.Label, oracle.Reply{
		Thoughts: []string{allocatorThought},
		Answer: answer(map[string]interface{}{
			"rankedActions":       actions,
			"recommendedActionId": "eng-fix",
		}),
	})
	r.Add(enforcer.Label, oracle.Reply{
		Answer: answer(map[string]interface{}{
			"actionId":    policy.ActionID,
			"allowed":     policy.Allowed,
			"explanation": policy.Explanation,
		}),
	})
	return r
}

func answer(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
