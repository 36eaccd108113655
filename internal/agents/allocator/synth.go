package allocator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"arps/internal/agents"
	"arps/internal/types"
)

// =============================================================================
// DETERMINISTIC SYNTHESIS
// =============================================================================
//
// Everything in this file is a pure function of the request. Costs come from
// the constants below; ROI is always ARR / cost and revenue saved is the ARR.

const (
	PivotID     = "strategic-pivot"
	OvertimeID  = "emergency-overtime"
	NarrativeID = "strategic-pivot-narrative"

	// PivotHours of existing engineering time rebalanced at PivotHourlyRate.
	PivotHours      = 16
	PivotHourlyRate = 150
	PivotCost       = PivotHours * PivotHourlyRate // 2400

	// OvertimeHours billed at the premium OvertimeHourlyRate.
	OvertimeHours      = 20
	OvertimeHourlyRate = 300
	OvertimeCost       = OvertimeHours * OvertimeHourlyRate // 6000
)

// Normal-mode fallback constants.
const (
	EngFixCost          = 800
	TrainingCost        = 500
	MaxFallbackDiscount = 8.0
)

// HoursFor returns the engineer hours a synthesized archetype commits, or 0
// when the action's effort is unknown.
func HoursFor(actionID string) int {
	switch actionID {
	case PivotID:
		return PivotHours
	case OvertimeID:
		return OvertimeHours
	default:
		return 0
	}
}

func conflictOrDefault(desc string) string {
	return orDefault(strings.TrimSuffix(strings.TrimSpace(desc), "."), "the internal stakeholder conflict")
}

// PivotAction synthesizes the strategic-pivot archetype.
func PivotAction(req Request) types.RankedAction {
	return types.RankedAction{
		ActionID:   PivotID,
		ActionType: types.ActionCustom,
		Description: fmt.Sprintf("Strategic pivot: rebalance %d hours of existing engineering work at $%d/hr to resolve the blocker without overtime or a security bypass",
			PivotHours, PivotHourlyRate),
		EstimatedCost:        PivotCost,
		ExpectedRevenueSaved: req.ARR,
		ROIMultiplier:        agents.ROI(req.ARR, PivotCost),
		Reasoning: fmt.Sprintf("Resolves %s while staying within policy; protects $%s ARR for $%s.",
			conflictOrDefault(req.ConflictDescription), agents.Dollars(req.ARR), agents.Dollars(PivotCost)),
	}
}

// OvertimeAction synthesizes the emergency-overtime archetype.
func OvertimeAction(req Request) types.RankedAction {
	return types.RankedAction{
		ActionID:   OvertimeID,
		ActionType: types.ActionEngineeringFix,
		Description: fmt.Sprintf("Emergency overtime: %d engineer hours at the $%d/hr premium rate to ship the fix before renewal",
			OvertimeHours, OvertimeHourlyRate),
		EstimatedCost:        OvertimeCost,
		ExpectedRevenueSaved: req.ARR,
		ROIMultiplier:        agents.ROI(req.ARR, OvertimeCost),
		Reasoning: fmt.Sprintf("Fastest path to protect $%s ARR, but adds burnout risk given %s.",
			agents.Dollars(req.ARR), conflictOrDefault(req.ConflictDescription)),
	}
}

// PivotNarrative synthesizes the proposal to engineering leadership.
func PivotNarrative(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To Engineering Leadership: %s.", conflictOrDefault(req.ConflictDescription))
	if d := strings.TrimSpace(req.PrimaryDriver); d != "" {
		fmt.Fprintf(&b, " The renewal risk is driven by: %s.", strings.TrimSuffix(d, "."))
	}
	fmt.Fprintf(&b, " Proposal: rebalance %d hours of existing engineering work this week instead of emergency overtime, keeping the security review intact.", PivotHours)
	fmt.Fprintf(&b, " This protects $%s ARR", agents.Dollars(req.ARR))
	if r := strings.TrimSpace(req.RenewalDate); r != "" {
		fmt.Fprintf(&b, " ahead of the %s renewal", r)
	}
	fmt.Fprintf(&b, " at a direct cost of $%s.", agents.Dollars(PivotCost))
	return b.String()
}

// IsPivot reports whether a matches the strategic-pivot archetype.
func IsPivot(a types.RankedAction) bool {
	id := strings.ToLower(a.ActionID)
	desc := strings.ToLower(a.Description)
	return id == PivotID || strings.Contains(id, "pivot") ||
		strings.Contains(desc, "strategic pivot") || strings.Contains(desc, "rebalanc")
}

// IsOvertime reports whether a matches the emergency-overtime archetype. A
// pivot that mentions "non-overtime" work is still a pivot; callers test
// IsPivot first.
func IsOvertime(a types.RankedAction) bool {
	id := strings.ToLower(a.ActionID)
	desc := strings.ToLower(a.Description)
	return id == OvertimeID || strings.Contains(id, "overtime") || strings.Contains(desc, "overtime")
}

// archetype classifies a. Exact archetype ids win; the pivot and overtime
// heuristics only apply to actions carrying neither id.
func archetype(a types.RankedAction) string {
	switch strings.ToLower(a.ActionID) {
	case PivotID:
		return PivotID
	case OvertimeID:
		return OvertimeID
	}
	switch {
	case IsPivot(a):
		return PivotID
	case IsOvertime(a):
		return OvertimeID
	}
	return ""
}

// EnforceConflict applies the conflict-mode post-condition to actions: exactly
// one pivot and one overtime action, in that order, then at most one other.
// Archetype ids are normalized to PivotID and OvertimeID. It returns the ids it
// had to synthesize.
func EnforceConflict(actions []types.RankedAction, req Request) ([]types.RankedAction, []string) {
	var pivot, overtime, other *types.RankedAction
	for i := range actions {
		a := actions[i]
		switch archetype(a) {
		case PivotID:
			if pivot == nil {
				a.ActionID = PivotID
				pivot = &a
			}
		case OvertimeID:
			if overtime == nil {
				a.ActionID = OvertimeID
				overtime = &a
			}
		default:
			if other == nil {
				other = &a
			}
		}
	}

	var synthesized []string
	if pivot == nil {
		p := PivotAction(req)
		pivot = &p
		synthesized = append(synthesized, PivotID)
	}
	if overtime == nil {
		o := OvertimeAction(req)
		overtime = &o
		synthesized = append(synthesized, OvertimeID)
	}

	out := []types.RankedAction{*pivot, *overtime}
	if other != nil {
		out = append(out, *other)
	}
	return out, synthesized
}

// FallbackActions is the deterministic normal-mode set used when the oracle
// returns no usable action: an engineering fix, a discount at min(8%, cap) and
// free training.
func FallbackActions(arr, discountCapPercent float64) []types.RankedAction {
	pct := math.Max(0, math.Min(MaxFallbackDiscount, discountCapPercent))
	pctLabel := strconv.FormatFloat(pct, 'f', -1, 64)
	discountCost := math.Round(arr * pct / 100)
	trainingRevenue := math.Round(arr / 3)

	return []types.RankedAction{
		{
			ActionID:             "eng-fix",
			ActionType:           types.ActionEngineeringFix,
			Description:          "Expedite the fix for the primary driver; assign an owner and ship this week",
			EstimatedCost:        EngFixCost,
			ExpectedRevenueSaved: arr,
			ROIMultiplier:        agents.ROI(arr, EngFixCost),
			Reasoning:            "Addresses the primary driver and restores trust.",
		},
		{
			ActionID:             "discount-" + pctLabel,
			ActionType:           types.ActionDiscount,
			Description:          pctLabel + "% discount (within policy) plus a committed fix timeline",
			EstimatedCost:        discountCost,
			ExpectedRevenueSaved: arr,
			ROIMultiplier:        agents.ROI(arr, discountCost),
			Reasoning:            "Within the discount cap; pairs well with the fix.",
		},
		{
			ActionID:             "training",
			ActionType:           types.ActionFreeTraining,
			Description:          "Free training session plus a dedicated CSM check-in",
			EstimatedCost:        TrainingCost,
			ExpectedRevenueSaved: trainingRevenue,
			ROIMultiplier:        agents.ROI(trainingRevenue, TrainingCost),
			Reasoning:            "Builds the relationship but does not fix the primary driver.",
		},
	}
}
