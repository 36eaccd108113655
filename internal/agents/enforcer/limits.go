package enforcer

import (
	"fmt"
	"strings"

	"arps/internal/agents"
	"arps/internal/agents/allocator"
	"arps/internal/types"
)

// tolerance absorbs float noise when a value sits exactly on a cap.
const tolerance = 1e-9

// LimitReport is the deterministic part of a policy check. Caps are
// inclusive: a value equal to its cap is compliant.
type LimitReport struct {
	Cost         float64
	BudgetCap    float64
	WithinBudget bool

	IsDiscount        bool
	DiscountPercent   float64
	DiscountCap       float64
	WithinDiscountCap bool

	// EngineerHours is known only for the synthesized conflict archetypes.
	EngineerHours int
	HoursCap      int
	WithinHours   bool
}

// CheckLimits evaluates action against rules. The discount percentage is
// cost / ARR x 100. A zero budget cap means no budget limit; a zero hours cap
// means no hours limit.
func CheckLimits(action types.RankedAction, rules types.PolicyRules, arr float64) LimitReport {
	r := LimitReport{
		Cost:          action.EstimatedCost,
		BudgetCap:     rules.BudgetCapDollars,
		DiscountCap:   rules.DiscountCapPercent,
		IsDiscount:    action.ActionType == types.ActionDiscount,
		EngineerHours: allocator.HoursFor(action.ActionID),
		HoursCap:      rules.MaxEngineerHoursPerAccount,
	}
	r.WithinBudget = rules.BudgetCapDollars <= 0 || r.Cost <= rules.BudgetCapDollars+tolerance

	r.WithinDiscountCap = true
	if r.IsDiscount {
		switch {
		case arr > 0:
			r.DiscountPercent = r.Cost * 100 / arr
			r.WithinDiscountCap = r.DiscountPercent <= rules.DiscountCapPercent+tolerance
		default:
			r.WithinDiscountCap = r.Cost <= 0
		}
	}

	r.WithinHours = r.HoursCap <= 0 || r.EngineerHours <= r.HoursCap
	return r
}

// Compliant reports whether every limit holds.
func (r LimitReport) Compliant() bool {
	return r.WithinBudget && r.WithinDiscountCap && r.WithinHours
}

// Violations describes each failed limit.
func (r LimitReport) Violations() []string {
	var out []string
	if !r.WithinBudget {
		out = append(out, fmt.Sprintf("cost $%s exceeds the $%s budget cap", agents.Dollars(r.Cost), agents.Dollars(r.BudgetCap)))
	}
	if !r.WithinDiscountCap {
		out = append(out, fmt.Sprintf("discount of %.2f%% exceeds the %v%% cap", r.DiscountPercent, r.DiscountCap))
	}
	if !r.WithinHours {
		out = append(out, fmt.Sprintf("%d engineer hours exceed the %d-hour per-account limit", r.EngineerHours, r.HoursCap))
	}
	return out
}

// Facts renders the report as pre-computed lines for the prompt.
func (r LimitReport) Facts() string {
	var b strings.Builder
	if r.BudgetCap > 0 {
		fmt.Fprintf(&b, "- Cost $%s vs budget cap $%s: %s\n", agents.Dollars(r.Cost), agents.Dollars(r.BudgetCap), verdict(r.WithinBudget))
	} else {
		fmt.Fprintf(&b, "- Cost $%s (no budget cap set)\n", agents.Dollars(r.Cost))
	}
	if r.IsDiscount {
		fmt.Fprintf(&b, "- Discount %.2f%% of ARR vs cap %v%% (cap inclusive): %s\n", r.DiscountPercent, r.DiscountCap, verdict(r.WithinDiscountCap))
	} else {
		b.WriteString("- Not a discount action\n")
	}
	if r.EngineerHours > 0 {
		fmt.Fprintf(&b, "- Engineer hours %d vs per-account limit %d: %s\n", r.EngineerHours, r.HoursCap, verdict(r.WithinHours))
	}
	return b.String()
}

func verdict(ok bool) string {
	if ok {
		return "within limit"
	}
	return "EXCEEDS limit"
}
