// Package enforcer implements the third pipeline stage: it checks the
// recommended action against budget, discount and capacity rules and returns an
// allow/deny verdict with an explanation for the audit log.
package enforcer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"arps/internal/agents"
	"arps/internal/logging"
	"arps/internal/oracle"
	"arps/internal/repair"
	"arps/internal/schema"
	"arps/internal/types"
)

// Label identifies this stage to the oracle and in replay fixtures.
const Label = string(types.AgentPolicyEnforcer)

// Shape is the response contract for this stage.
var Shape = schema.Object(
	schema.String("actionId", "", true),
	schema.Bool("allowed", "True only if every check passes", true),
	schema.String("violation", "Which rule is broken, if any", false),
	schema.String("alternativeSuggestion", "A compliant alternative, if denied", false),
	schema.String("explanation", "1-2 sentences for the audit log", true),
)

// DefaultSettings returns the stage defaults.
func DefaultSettings() agents.Settings {
	return agents.Settings{Temperature: 0.1, MaxOutputTokens: 512}
}

// Request is the stage input.
type Request struct {
	Action   types.RankedAction
	Rules    types.PolicyRules
	Capacity types.TeamCapacity
	ARR      float64
}

// Agent checks policy compliance.
type Agent struct {
	oracle   oracle.Oracle
	settings agents.Settings
	failMode types.FailMode
}

// New creates a Policy Enforcer. An empty fail mode means FailOpen.
func New(o oracle.Oracle, s agents.Settings, mode types.FailMode) *Agent {
	if mode == "" {
		mode = types.FailOpen
	}
	return &Agent{oracle: o, settings: s, failMode: mode}
}

// FailMode returns the configured fallback policy.
func (a *Agent) FailMode() types.FailMode { return a.failMode }

// Check runs the stage.
func (a *Agent) Check(ctx context.Context, req Request) (types.PolicyCheckResult, error) {
	report := CheckLimits(req.Action, req.Rules, req.ARR)
	resp, err := oracle.Invoke(ctx, a.oracle, BuildPrompt(req, report), Shape, a.settings.Options(Label))
	if err != nil {
		return types.PolicyCheckResult{}, errors.Wrap(err, "policy enforcer")
	}

	res := repair.ParseAndRepair(resp.Text, Shape, Fallback(a.failMode, req.Action.ActionID, report))
	p := res.Payload
	out := types.PolicyCheckResult{
		ActionID:              req.Action.ActionID,
		Allowed:               p.Bool("allowed"),
		Violation:             strings.TrimSpace(p.String("violation")),
		AlternativeSuggestion: strings.TrimSpace(p.String("alternativeSuggestion")),
		Explanation:           p.String("explanation"),
		ThoughtSummary:        resp.Trace,
		Degraded:              !res.Clean(),
	}
	if id := strings.TrimSpace(p.String("actionId")); id != "" && id != req.Action.ActionID && !res.Degraded {
		logging.EnforcerWarn("verdict names action %q; checked action is %q", id, req.Action.ActionID)
	}
	if res.Degraded || containsString(res.Repaired, "allowed") {
		out.FailMode = a.failMode
		logging.EnforcerWarn("verdict for %s from %s fallback: allowed=%v", req.Action.ActionID, a.failMode, out.Allowed)
	} else if out.Allowed && !report.Compliant() {
		logging.EnforcerWarn("oracle allowed %s despite limit violations: %s",
			req.Action.ActionID, strings.Join(report.Violations(), "; "))
	} else if !out.Allowed && report.Compliant() {
		logging.EnforcerWarn("oracle denied %s although every limit holds: %s",
			req.Action.ActionID, strings.ReplaceAll(strings.TrimSpace(report.Facts()), "\n", "; "))
	}
	logging.Enforcer("action=%s allowed=%v", out.ActionID, out.Allowed)
	return out, nil
}

// Explanations used by the fallback verdicts.
const (
	OpenExplanation   = "Policy check completed without a parseable verdict; the action is allowed by default and flagged for review."
	ClosedExplanation = "Policy check completed without a parseable verdict; the action is held for manual review."
	ClosedViolation   = "Policy verdict unavailable; manual review required."
)

// Fallback returns the deterministic verdict for mode.
func Fallback(mode types.FailMode, actionID string, report LimitReport) repair.Fallback {
	return func() repair.Payload {
		p := repair.Payload{"actionId": actionID}
		switch mode {
		case types.FailClosed:
			p["allowed"] = false
			p["violation"] = ClosedViolation
			p["explanation"] = ClosedExplanation
		case types.FailRules:
			p["allowed"] = report.Compliant()
			if v := report.Violations(); len(v) > 0 {
				p["violation"] = strings.Join(v, "; ")
				p["explanation"] = "Verdict derived from the deterministic limit checks: " + strings.Join(v, "; ") + "."
			} else {
				p["explanation"] = "Verdict derived from the deterministic limit checks: cost, discount and hours are within policy."
			}
		default:
			p["allowed"] = true
			p["explanation"] = OpenExplanation
		}
		return p
	}
}

// BuildPrompt embeds the rules, capacity, action and pre-computed limit facts.
func BuildPrompt(req Request, report LimitReport) string {
	capacity, _ := json.Marshal(req.Capacity)
	action, _ := json.Marshal(req.Action)

	var b strings.Builder
	b.WriteString(`You are the Policy Enforcer: a governance agent.

Your ONLY job: check if the recommended action is ALLOWED under company rules. If not, reject it and suggest an alternative.

RULES:
`)
	fmt.Fprintf(&b, "- Discount cap: %v%% (inclusive: a discount equal to the cap is allowed)\n", req.Rules.DiscountCapPercent)
	fmt.Fprintf(&b, "- Budget cap per intervention: $%s\n", agents.Dollars(req.Rules.BudgetCapDollars))
	if req.Rules.MaxEngineerHoursPerAccount > 0 {
		fmt.Fprintf(&b, "- Max engineer hours per account: %d\n", req.Rules.MaxEngineerHoursPerAccount)
	}
	if d := strings.TrimSpace(req.Rules.RulesDescription); d != "" {
		fmt.Fprintf(&b, "- Other: %s\n", d)
	}
	fmt.Fprintf(&b, "\nTEAM CAPACITY: %s\n\nRECOMMENDED ACTION:\n%s\n\nPRE-COMPUTED CHECKS:\n%s", capacity, action, report.Facts())
	b.WriteString(`
TASK:
1. If the action involves a discount, check it does not exceed the discount cap.
2. If cost exceeds the budget cap, reject or suggest a cheaper alternative.
3. If the action overloads the team (e.g. too many engineer hours), flag it.
4. Set allowed: true only if all checks pass. Otherwise set violation and alternativeSuggestion.
5. explanation: 1-2 sentences for the audit log.

Output valid JSON only.`)
	return b.String()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
