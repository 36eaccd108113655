package types

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidInput marks caller input that cannot start a run.
var ErrInvalidInput = errors.New("invalid pipeline input")

// TeamCapacity describes the people available to execute an action.
type TeamCapacity struct {
	CSAgents               int `json:"csAgents" yaml:"cs_agents"`
	Engineers              int `json:"engineers" yaml:"engineers"`
	AvailableHoursThisWeek int `json:"availableHoursThisWeek,omitempty" yaml:"available_hours_this_week,omitempty"`
}

// PolicyRules are the account's governance limits. Caps are inclusive.
type PolicyRules struct {
	DiscountCapPercent         float64 `json:"discountCapPercent" yaml:"discount_cap_percent"`
	BudgetCapDollars           float64 `json:"budgetCapDollars" yaml:"budget_cap_dollars"`
	MaxEngineerHoursPerAccount int     `json:"maxEngineerHoursPerAccount,omitempty" yaml:"max_engineer_hours_per_account,omitempty"`
	RulesDescription           string  `json:"rulesDescription,omitempty" yaml:"rules_description,omitempty"`
}

// SolveInput is the request accepted by the pipeline entry point.
type SolveInput struct {
	CRMSnapshot              string       `json:"crmSnapshot" yaml:"crm_snapshot"`
	SupportConversation      string       `json:"supportConversation" yaml:"support_conversation"`
	SlackOrEmailConversation string       `json:"slackOrEmailConversation" yaml:"slack_or_email_conversation"`
	ARR                      float64      `json:"arr" yaml:"arr"`
	RenewalDate              string       `json:"renewalDate" yaml:"renewal_date"`
	TeamCapacity             TeamCapacity `json:"teamCapacity" yaml:"team_capacity"`
	PolicyRules              PolicyRules  `json:"policyRules" yaml:"policy_rules"`
}

// Validate rejects input the pipeline cannot reason about.
func (in SolveInput) Validate() error {
	if in.ARR < 0 {
		return errors.Wrapf(ErrInvalidInput, "arr must not be negative (got %v)", in.ARR)
	}
	if in.PolicyRules.DiscountCapPercent < 0 || in.PolicyRules.BudgetCapDollars < 0 {
		return errors.Wrap(ErrInvalidInput, "policy caps must not be negative")
	}
	if strings.TrimSpace(in.CRMSnapshot) == "" &&
		strings.TrimSpace(in.SupportConversation) == "" &&
		strings.TrimSpace(in.SlackOrEmailConversation) == "" {
		return errors.WithHint(
			errors.Wrap(ErrInvalidInput, "no evidence supplied"),
			"provide at least one of crm_snapshot, support_conversation or slack_or_email_conversation")
	}
	return nil
}

// Evidence extracts the immutable Stage A input.
func (in SolveInput) Evidence() EvidenceBundle {
	return EvidenceBundle{
		crmSnapshot:         in.CRMSnapshot,
		supportConversation: in.SupportConversation,
		internalThread:      in.SlackOrEmailConversation,
		arr:                 in.ARR,
		renewalDate:         in.RenewalDate,
	}
}

// EvidenceBundle is the read-only input to the Context Weaver. Fields are only
// reachable through accessors so a bundle cannot change after construction.
type EvidenceBundle struct {
	crmSnapshot         string
	supportConversation string
	internalThread      string
	arr                 float64
	renewalDate         string
}

// NewEvidenceBundle builds a bundle directly (used by the per-stage endpoint).
func NewEvidenceBundle(crm, support, internal string, arr float64, renewalDate string) EvidenceBundle {
	return EvidenceBundle{
		crmSnapshot:         crm,
		supportConversation: support,
		internalThread:      internal,
		arr:                 arr,
		renewalDate:         renewalDate,
	}
}

func (e EvidenceBundle) CRMSnapshot() string         { return e.crmSnapshot }
func (e EvidenceBundle) SupportConversation() string { return e.supportConversation }
func (e EvidenceBundle) InternalThread() string      { return e.internalThread }
func (e EvidenceBundle) ARR() float64                { return e.arr }
func (e EvidenceBundle) RenewalDate() string         { return e.renewalDate }
