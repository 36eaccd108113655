package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"arps/internal/agents"
	"arps/internal/types"
)

// LiabilityModel estimates the legal exposure avoided when a conflict is
// resolved: max(Floor, round(ARR x Multiplier)).
type LiabilityModel struct {
	Floor      float64 `yaml:"floor"`
	Multiplier float64 `yaml:"multiplier"`
}

// DefaultLiability is the heuristic used unless configuration overrides it.
var DefaultLiability = LiabilityModel{Floor: 200000, Multiplier: 2}

// Estimate applies the model to arr.
func (m LiabilityModel) Estimate(arr float64) float64 {
	return math.Max(m.Floor, math.Round(arr*m.Multiplier))
}

// Logic describes the formula for the calculation-logic panel.
func (m LiabilityModel) Logic() string {
	return fmt.Sprintf("max($%s floor, ARR x %v)", agents.Dollars(m.Floor), m.Multiplier)
}

// finalRecommendationLen is the rune limit for the action description quoted in
// the final recommendation.
const finalRecommendationLen = 80

var sentenceEnd = regexp.MustCompile(`[.!]`)

// compose re-projects stage outputs into the result. Nothing here calls the
// oracle or invents figures; every value comes from a stage or from the input.
func (o *Orchestrator) compose(
	runID string,
	in types.SolveInput,
	causal types.CausalRiskResult,
	ranked types.ResourceAllocatorResult,
	policy types.PolicyCheckResult,
	log []types.AuditEntry,
	haveRecommended bool,
) *types.PipelineResult {
	result := &types.PipelineResult{
		RunID:                runID,
		CausalRisk:           causal,
		RankedActions:        ranked.RankedActions,
		RecommendedActionID:  ranked.RecommendedActionID,
		PolicyCheck:          policy,
		AuditLog:             log,
		ConflictDetected:     causal.ConflictDetected,
		ConflictDescription:  causal.ConflictDescription,
		StrategicPivotAction: ranked.StrategicPivotAction,
		SourceSnippets:       sourceSnippets(in, causal),
	}
	if result.RankedActions == nil {
		result.RankedActions = []types.RankedAction{}
	}

	var recommended types.RankedAction
	if haveRecommended {
		recommended, _ = ranked.Recommended()
		result.FinalRecommendation = FinalRecommendation(recommended)
	}

	if causal.ConflictDetected {
		result.RiskRadar = riskRadar(policy)
		if haveRecommended {
			result.AuthorizationSummary = o.authorizationSummary(in, causal, ranked, policy, recommended)
		}
	}
	return result
}

func (o *Orchestrator) authorizationSummary(
	in types.SolveInput,
	causal types.CausalRiskResult,
	ranked types.ResourceAllocatorResult,
	policy types.PolicyCheckResult,
	action types.RankedAction,
) *types.AuthorizationSummary {
	revenue := action.ExpectedRevenueSaved
	constraint := ranked.ThoughtSummary
	if strings.TrimSpace(constraint) == "" {
		constraint = action.Reasoning
	}
	conflict := causal.ConflictDescription
	if strings.TrimSpace(conflict) == "" {
		conflict = causal.Summary
	}

	return &types.AuthorizationSummary{
		AccountLabel:           AccountLabel(in.ARR),
		ThoughtTraceIntro:      firstSentence(ranked.ThoughtSummary),
		ConflictIdentification: conflict,
		ConstraintSatisfaction: constraint,
		LegalPolicyCheck:       policy.Explanation,
		WorkflowDispatches: types.WorkflowDispatches{
			Jira:  fmt.Sprintf("%s. %s", strings.TrimSuffix(causal.PrimaryDriver, "."), action.Description),
			Slack: fmt.Sprintf("%s. Protects $%sk ARR.", strings.TrimSuffix(action.Description, "."), agents.Thousands(revenue)),
			Email: fmt.Sprintf("%s. Confirmed fix timeline. Protects $%sk ARR.", strings.TrimSuffix(causal.PrimaryDriver, "."), agents.Thousands(revenue)),
		},
		DirectCost:          action.EstimatedCost,
		RevenueProtected:    revenue,
		LiabilityMitigation: o.cfg.Liability.Estimate(in.ARR),
		PolicyAuditItems:    policyAuditItems(policy),
		SecurityGuardrail:   securityGuardrail(policy),
		CalculationLogic: &types.CalculationLogic{
			DirectCostLogic:        fmt.Sprintf("Estimated cost of %s", action.ActionID),
			DirectCostSource:       action.Description,
			RevenueProtectedLogic:  "Expected revenue saved by the recommended action",
			RevenueProtectedSource: fmt.Sprintf("ARR $%s. Renewal %s.", agents.Dollars(in.ARR), in.RenewalDate),
			LiabilityLogic:         o.cfg.Liability.Logic(),
			LiabilitySource:        causal.PrimaryDriver,
			LiabilityCredibility:   ranked.ThoughtSummary,
		},
	}
}

func policyAuditItems(policy types.PolicyCheckResult) []types.AuditItem {
	items := []types.AuditItem{{Label: "Policy", Text: policy.Explanation}}
	if policy.Violation != "" {
		items = append(items, types.AuditItem{Label: "Violation", Text: policy.Violation})
	}
	if policy.AlternativeSuggestion != "" {
		items = append(items, types.AuditItem{Label: "Alternative", Text: policy.AlternativeSuggestion})
	}
	if policy.FailMode != "" {
		items = append(items, types.AuditItem{
			Label: "Review",
			Text:  fmt.Sprintf("Verdict produced by the %s fallback; review before execution.", policy.FailMode),
		})
	}
	return items
}

// securityGuardrail prefers the enforcer's reasoning when it discusses
// security controls.
func securityGuardrail(policy types.PolicyCheckResult) string {
	t := policy.ThoughtSummary
	if strings.Contains(t, "security") || strings.Contains(t, "SOC2") {
		return t
	}
	return policy.Explanation
}

// riskRadar is the before/after snapshot shown for conflict runs. The "after"
// levels assume the plan executes, so a denied plan leaves risk unchanged.
func riskRadar(policy types.PolicyCheckResult) *types.RiskRadar {
	before := types.RiskRadarLevels{RevenueRisk: types.RiskHigh, LegalRisk: types.RiskMedium, TeamBurnout: types.RiskMedium}
	after := types.RiskRadarLevels{RevenueRisk: types.RiskLow, LegalRisk: types.RiskLow, TeamBurnout: types.RiskStable}
	if !policy.Allowed {
		after = before
	}
	return &types.RiskRadar{Before: before, After: after}
}

func sourceSnippets(in types.SolveInput, causal types.CausalRiskResult) *types.SourceSnippets {
	return &types.SourceSnippets{
		ARR:            fmt.Sprintf("CRM: ARR $%s. Renewal date %s.", agents.Dollars(in.ARR), in.RenewalDate),
		PrimaryDriver:  "Support ticket / risk context: " + causal.PrimaryDriver,
		GroundingLabel: fmt.Sprintf("Verified via CRM Snapshot (%s)", AccountLabel(in.ARR)),
	}
}

// AccountLabel renders the short account label, e.g. AC-120K.
func AccountLabel(arr float64) string {
	return fmt.Sprintf("AC-%.0fK", arr/1000)
}

// FinalRecommendation is the one-line headline for action.
func FinalRecommendation(action types.RankedAction) string {
	desc := strings.TrimSpace(action.Description)
	if utf8.RuneCountInString(desc) > finalRecommendationLen {
		desc = string([]rune(desc)[:finalRecommendationLen]) + "…"
	} else {
		desc = strings.TrimSuffix(desc, ".")
	}
	return fmt.Sprintf("%s. Save $%sk.", desc, agents.Thousands(action.ExpectedRevenueSaved))
}

func firstSentence(s string) string {
	loc := sentenceEnd.FindStringIndex(s)
	head := s
	if loc != nil {
		head = s[:loc[0]]
	}
	head = strings.TrimSpace(head)
	if head == "" {
		return ""
	}
	return head + "."
}
