// Package types holds the data model shared by the pipeline stages, the
// orchestrator and the presentation surfaces. JSON field names follow the wire
// contract consumed by the dashboard.
package types

import "time"

// =============================================================================
// ENUMS
// =============================================================================

// Confidence is the oracle's self-reported certainty for a causal result.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Confidences lists valid confidence labels.
var Confidences = []string{string(ConfidenceHigh), string(ConfidenceMedium), string(ConfidenceLow)}

// ActionType categorizes a remediation action.
type ActionType string

const (
	ActionDiscount         ActionType = "discount"
	ActionFreeTraining     ActionType = "free_training"
	ActionEngineeringFix   ActionType = "engineering_fix"
	ActionDedicatedSuccess ActionType = "dedicated_success"
	ActionCustom           ActionType = "custom"
)

// ActionTypes lists valid action categories.
var ActionTypes = []string{
	string(ActionDiscount),
	string(ActionFreeTraining),
	string(ActionEngineeringFix),
	string(ActionDedicatedSuccess),
	string(ActionCustom),
}

// AgentTag identifies the stage that produced an audit entry.
type AgentTag string

const (
	AgentContextWeaver     AgentTag = "context_weaver"
	AgentResourceAllocator AgentTag = "resource_allocator"
	AgentPolicyEnforcer    AgentTag = "policy_enforcer"
)

// RiskLevel is a coarse level shown on the risk radar.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
	RiskStable RiskLevel = "stable"
)

// FailMode controls the policy verdict when the enforcer cannot parse the oracle.
type FailMode string

const (
	FailOpen   FailMode = "open"   // allow, flagged for review
	FailClosed FailMode = "closed" // deny pending manual review
	FailRules  FailMode = "rules"  // decide from the deterministic limit checks
)

// =============================================================================
// STAGE RESULTS
// =============================================================================

// CausalRiskResult is the Context Weaver output.
type CausalRiskResult struct {
	PrimaryDriver       string     `json:"primaryDriver"`
	SecondaryDrivers    []string   `json:"secondaryDrivers"`
	Summary             string     `json:"plainEnglishSummary"`
	Confidence          Confidence `json:"confidence"`
	ConflictDetected    bool       `json:"conflictDetected,omitempty"`
	ConflictDescription string     `json:"conflictDescription,omitempty"`
	ThoughtSummary      string     `json:"thoughtSummary,omitempty"`
	// Degraded is set when the result came (wholly or partly) from fallback values.
	Degraded bool `json:"degraded,omitempty"`
}

// RankedAction is one remediation candidate. Slice order encodes rank.
type RankedAction struct {
	ActionID             string     `json:"actionId"`
	ActionType           ActionType `json:"actionType"`
	Description          string     `json:"description"`
	EstimatedCost        float64    `json:"estimatedCost"`
	ExpectedRevenueSaved float64    `json:"expectedRevenueSaved"`
	ROIMultiplier        float64    `json:"roiMultiplier"`
	Reasoning            string     `json:"reasoning"`
}

// ResourceAllocatorResult is the Resource Allocator output.
type ResourceAllocatorResult struct {
	RankedActions       []RankedAction `json:"rankedActions"`
	RecommendedActionID string         `json:"recommendedActionId"`
	ThoughtSummary      string         `json:"thoughtSummary,omitempty"`
	// StrategicPivotAction is the long-form pivot narrative (conflict mode only).
	StrategicPivotAction string   `json:"strategicPivotAction,omitempty"`
	Degraded             bool     `json:"degraded,omitempty"`
	Synthesized          []string `json:"synthesized,omitempty"`
}

// Recommended returns the recommended action, the first ranked action when the
// id does not resolve, or false when the set is empty.
func (r ResourceAllocatorResult) Recommended() (RankedAction, bool) {
	for _, a := range r.RankedActions {
		if a.ActionID == r.RecommendedActionID {
			return a, true
		}
	}
	if len(r.RankedActions) > 0 {
		return r.RankedActions[0], true
	}
	return RankedAction{}, false
}

// PolicyCheckResult is the Policy Enforcer output.
type PolicyCheckResult struct {
	ActionID              string `json:"actionId"`
	Allowed               bool   `json:"allowed"`
	Violation             string `json:"violation,omitempty"`
	AlternativeSuggestion string `json:"alternativeSuggestion,omitempty"`
	Explanation           string `json:"explanation"`
	ThoughtSummary        string `json:"thoughtSummary,omitempty"`
	Degraded              bool   `json:"degraded,omitempty"`
	// FailMode is set only when the verdict came from the fallback path.
	FailMode FailMode `json:"failMode,omitempty"`
}

// =============================================================================
// AUDIT & COMPOSITION
// =============================================================================

// AuditEntry is one line of the per-run audit trail.
type AuditEntry struct {
	Agent          AgentTag  `json:"agent"`
	Timestamp      time.Time `json:"timestamp"`
	Summary        string    `json:"summary"`
	ThoughtSummary string    `json:"thoughtSummary,omitempty"`
	ReasoningLogic string    `json:"reasoningLogic,omitempty"`
}

// WorkflowDispatches are the drafted messages for ticketing, chat and email.
type WorkflowDispatches struct {
	Jira  string `json:"jira"`
	Slack string `json:"slack"`
	Email string `json:"email"`
}

// AuditItem is a labelled line in the authorization summary.
type AuditItem struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// CalculationLogic documents where each authorization figure came from.
type CalculationLogic struct {
	DirectCostLogic        string `json:"directCostLogic,omitempty"`
	DirectCostSource       string `json:"directCostSource,omitempty"`
	RevenueProtectedLogic  string `json:"revenueProtectedLogic,omitempty"`
	RevenueProtectedSource string `json:"revenueProtectedSource,omitempty"`
	LiabilityLogic         string `json:"liabilityLogic,omitempty"`
	LiabilitySource        string `json:"liabilitySource,omitempty"`
	LiabilityCredibility   string `json:"liabilityCredibility,omitempty"`
}

// AuthorizationSummary is derived from stage outputs when a conflict is detected.
type AuthorizationSummary struct {
	AccountLabel           string             `json:"accountLabel"`
	ThoughtTraceIntro      string             `json:"thoughtTraceIntro,omitempty"`
	ConflictIdentification string             `json:"conflictIdentification"`
	ConstraintSatisfaction string             `json:"constraintSatisfaction"`
	LegalPolicyCheck       string             `json:"legalPolicyCheck"`
	WorkflowDispatches     WorkflowDispatches `json:"workflowDispatches"`
	DirectCost             float64            `json:"directCost"`
	RevenueProtected       float64            `json:"revenueProtected"`
	LiabilityMitigation    float64            `json:"liabilityMitigation"`
	PolicyAuditItems       []AuditItem        `json:"policyAuditItems"`
	SecurityGuardrail      string             `json:"securityGuardrail"`
	CalculationLogic       *CalculationLogic  `json:"calculationLogic,omitempty"`
}

// RiskRadarLevels is one snapshot of the radar.
type RiskRadarLevels struct {
	RevenueRisk RiskLevel `json:"revenueRisk"`
	LegalRisk   RiskLevel `json:"legalRisk"`
	TeamBurnout RiskLevel `json:"teamBurnout"`
}

// RiskRadar compares risk before and after the recommended plan.
type RiskRadar struct {
	Before RiskRadarLevels `json:"before"`
	After  RiskRadarLevels `json:"after"`
}

// SourceSnippets are evidence excerpts shown next to the headline figures.
type SourceSnippets struct {
	ARR            string `json:"arr,omitempty"`
	PrimaryDriver  string `json:"primaryDriver,omitempty"`
	GroundingLabel string `json:"groundingLabel,omitempty"`
}

// PipelineResult is the terminal aggregate of one run.
type PipelineResult struct {
	RunID                string                `json:"runId"`
	CausalRisk           CausalRiskResult      `json:"causalRisk"`
	RankedActions        []RankedAction        `json:"rankedActions"`
	RecommendedActionID  string                `json:"recommendedActionId"`
	PolicyCheck          PolicyCheckResult     `json:"policyCheck"`
	AuditLog             []AuditEntry          `json:"auditLog"`
	SourceSnippets       *SourceSnippets       `json:"sourceSnippets,omitempty"`
	ConflictDetected     bool                  `json:"conflictDetected,omitempty"`
	ConflictDescription  string                `json:"conflictDescription,omitempty"`
	RiskRadar            *RiskRadar            `json:"riskRadar,omitempty"`
	StrategicPivotAction string                `json:"strategicPivotAction,omitempty"`
	FinalRecommendation  string                `json:"finalRecommendation,omitempty"`
	AuthorizationSummary *AuthorizationSummary `json:"authorizationSummary,omitempty"`
}
