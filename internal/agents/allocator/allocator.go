// Package allocator implements the second pipeline stage: it ranks remediation
// actions by expected ROI. When the first stage reports an internal conflict the
// stage runs in conflict mode, where the strategic-pivot and emergency-overtime
// actions are a hard post-condition enforced here rather than trusted to the
// oracle.
package allocator

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
const Label = string(types.AgentResourceAllocator)

// Mode selects how the action set is built. Both modes return the same result
// shape.
type Mode int

const (
	ModeNormal Mode = iota
	ModeConflict
)

func (m Mode) String() string {
	if m == ModeConflict {
		return "conflict"
	}
	return "normal"
}

// Request is the stage input threaded from the Context Weaver.
type Request struct {
	CausalSummary       string
	PrimaryDriver       string
	ARR                 float64
	RenewalDate         string
	DiscountCapPercent  float64
	Capacity            types.TeamCapacity
	ConflictDetected    bool
	ConflictDescription string
}

// Mode reports which variant of the stage the request runs.
func (r Request) Mode() Mode {
	if r.ConflictDetected {
		return ModeConflict
	}
	return ModeNormal
}

var actionShape = schema.Object(
	schema.String("actionId", "", true),
	schema.Enum("actionType", "", true, types.ActionTypes...).WithDefault(string(types.ActionCustom)),
	schema.String("description", "", true),
	schema.Number("estimatedCost", "Cost in dollars", true),
	schema.Number("expectedRevenueSaved", "Revenue saved in dollars", true),
	schema.Number("roiMultiplier", "expectedRevenueSaved / estimatedCost", true),
	schema.String("reasoning", "One sentence on why this ranks where it does", false).WithDefault(""),
)

// Shape is the normal-mode response contract.
var Shape = schema.Object(
	schema.ObjectList("rankedActions", "Actions ordered by ROI, best first", true, actionShape),
	schema.String("recommendedActionId", "actionId of the best action", true),
)

// ConflictShape adds the pivot narrative requested in conflict mode.
var ConflictShape = schema.Object(
	schema.ObjectList("rankedActions", "strategic-pivot first, emergency-overtime second, then at most one other", true, actionShape),
	schema.String("recommendedActionId", "Must be strategic-pivot", true),
	schema.String("strategicPivotAction", "Long-form proposal to engineering leadership for the strategic pivot", false),
)

// DefaultSettings returns the stage defaults.
func DefaultSettings() agents.Settings {
	return agents.Settings{Temperature: 0.2, MaxOutputTokens: 1024, IncludeThoughts: true}
}

// DefaultConflictMaxOutputTokens leaves room for the pivot narrative.
const DefaultConflictMaxOutputTokens int32 = 2048

// Agent ranks remediation actions.
type Agent struct {
	oracle         oracle.Oracle
	settings       agents.Settings
	conflictTokens int32
}

// New creates a Resource Allocator.
func New(o oracle.Oracle, s agents.Settings) *Agent {
	return &Agent{oracle: o, settings: s, conflictTokens: DefaultConflictMaxOutputTokens}
}

// WithConflictTokens overrides the output cap used in conflict mode.
func (a *Agent) WithConflictTokens(n int32) *Agent {
	if n > 0 {
		a.conflictTokens = n
	}
	return a
}

// Rank runs the stage in the mode selected by req.
func (a *Agent) Rank(ctx context.Context, req Request) (types.ResourceAllocatorResult, error) {
	mode := req.Mode()
	shape, fallback := Shape, NormalFallback(req)
	opts := a.settings.Options(Label)
	if mode == ModeConflict {
		shape, fallback = ConflictShape, conflictFallback
		opts.MaxOutputTokens = a.conflictTokens
	}

	resp, err := oracle.Invoke(ctx, a.oracle, BuildPrompt(req), shape, opts)
	if err != nil {
		return types.ResourceAllocatorResult{}, errors.Wrapf(err, "resource allocator (%s mode)", mode)
	}

	res := repair.ParseAndRepair(resp.Text, shape, fallback)
	actions := dedupe(ActionsFromPayload(res.Payload.Objects("rankedActions")))
	out := types.ResourceAllocatorResult{
		RecommendedActionID: strings.TrimSpace(res.Payload.String("recommendedActionId")),
		ThoughtSummary:      resp.Trace,
		Degraded:            res.Degraded || containsString(res.Repaired, "rankedActions"),
	}

	switch mode {
	case ModeConflict:
		var synthesized []string
		out.RankedActions, synthesized = EnforceConflict(actions, req)
		out.RecommendedActionID = PivotID
		out.StrategicPivotAction = strings.TrimSpace(res.Payload.String("strategicPivotAction"))
		if out.StrategicPivotAction == "" {
			out.StrategicPivotAction = PivotNarrative(req)
			synthesized = append(synthesized, NarrativeID)
		}
		out.Synthesized = synthesized
		if len(synthesized) > 0 {
			logging.AllocatorWarn("conflict mode: synthesized %v", synthesized)
		}
	case ModeNormal:
		if len(actions) == 0 {
			actions = FallbackActions(req.ARR, req.DiscountCapPercent)
			out.Degraded = true
		}
		out.RankedActions = actions
		if out.Degraded {
			// The set is the fallback; the oracle's pick does not apply to it.
			out.RecommendedActionID = actions[0].ActionID
		} else if !hasAction(actions, out.RecommendedActionID) {
			logging.AllocatorDebug("recommended id %q not in set; using %q", out.RecommendedActionID, actions[0].ActionID)
			out.RecommendedActionID = actions[0].ActionID
		}
	}

	logging.Allocator("%s mode: %d actions, recommended=%s degraded=%v",
		mode, len(out.RankedActions), out.RecommendedActionID, out.Degraded)
	return out, nil
}

// ActionsFromPayload converts repaired action payloads.
func ActionsFromPayload(items []repair.Payload) []types.RankedAction {
	out := make([]types.RankedAction, 0, len(items))
	for _, p := range items {
		out = append(out, types.RankedAction{
			ActionID:             strings.TrimSpace(p.String("actionId")),
			ActionType:           types.ActionType(p.String("actionType")),
			Description:          p.String("description"),
			EstimatedCost:        p.Float("estimatedCost"),
			ExpectedRevenueSaved: p.Float("expectedRevenueSaved"),
			ROIMultiplier:        p.Float("roiMultiplier"),
			Reasoning:            p.String("reasoning"),
		})
	}
	return out
}

// PayloadFromActions is the inverse of ActionsFromPayload, used to express
// fallback sets as repair payloads.
func PayloadFromActions(actions []types.RankedAction) []repair.Payload {
	out := make([]repair.Payload, 0, len(actions))
	for _, a := range actions {
		out = append(out, repair.Payload{
			"actionId":             a.ActionID,
			"actionType":           string(a.ActionType),
			"description":          a.Description,
			"estimatedCost":        a.EstimatedCost,
			"expectedRevenueSaved": a.ExpectedRevenueSaved,
			"roiMultiplier":        a.ROIMultiplier,
			"reasoning":            a.Reasoning,
		})
	}
	return out
}

// NormalFallback is the repair fallback for normal mode.
func NormalFallback(req Request) repair.Fallback {
	return func() repair.Payload {
		actions := FallbackActions(req.ARR, req.DiscountCapPercent)
		return repair.Payload{
			"rankedActions":       PayloadFromActions(actions),
			"recommendedActionId": actions[0].ActionID,
		}
	}
}

// conflictFallback leaves the action set empty; EnforceConflict then
// synthesizes both mandated actions and records them.
func conflictFallback() repair.Payload {
	return repair.Payload{
		"rankedActions":       []repair.Payload{},
		"recommendedActionId": PivotID,
	}
}

// dedupe drops actions with a blank or repeated id, keeping the first.
func dedupe(actions []types.RankedAction) []types.RankedAction {
	seen := make(map[string]bool, len(actions))
	out := actions[:0]
	for _, a := range actions {
		if a.ActionID == "" || seen[a.ActionID] {
			continue
		}
		seen[a.ActionID] = true
		out = append(out, a)
	}
	return out
}

func hasAction(actions []types.RankedAction, id string) bool {
	for _, a := range actions {
		if a.ActionID == id {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// BuildPrompt renders the prompt for the request's mode.
func BuildPrompt(req Request) string {
	capacity, _ := json.Marshal(req.Capacity)
	var b strings.Builder
	b.WriteString(`You are the Resource Allocator: an ROI-optimization agent.

Your ONLY job: rank possible retention actions by EXPECTED ROI and recommend the action that saves the most revenue.

CONTEXT:
`)
	fmt.Fprintf(&b, "- Causal risk summary: %s\n", req.CausalSummary)
	fmt.Fprintf(&b, "- Primary driver: %s\n", req.PrimaryDriver)
	fmt.Fprintf(&b, "- Account ARR: $%s\n", agents.Dollars(req.ARR))
	fmt.Fprintf(&b, "- Renewal date: %s\n", req.RenewalDate)
	fmt.Fprintf(&b, "- Policy discount cap: %v%%\n", req.DiscountCapPercent)
	fmt.Fprintf(&b, "- Team capacity: %s\n", capacity)

	if req.Mode() == ModeConflict {
		fmt.Fprintf(&b, "- Internal conflict: %s\n", orDefault(req.ConflictDescription, "competing internal stakeholder constraints"))
		fmt.Fprintf(&b, `
TASK (CONFLICT MODE):
1. Return exactly these actions, in this order:
   a. actionId "%s": a strategic pivot that rebalances existing engineering work (no overtime, no security bypass).
   b. actionId "%s": emergency overtime to ship the fix fastest, with its burnout cost stated.
   c. optionally ONE other action.
2. For each action estimate: cost ($), expected revenue saved ($), ROI multiplier (revenue_saved / cost), and one sentence of reasoning.
3. Set recommendedActionId to "%s".
4. In strategicPivotAction write a short proposal addressed to engineering leadership explaining the pivot, the constraint it respects and the revenue it protects.

Use thinking to weigh the conflict step-by-step. Output valid JSON only.`, PivotID, OvertimeID, PivotID)
		return b.String()
	}

	b.WriteString(`
TASK:
1. Propose exactly 3 actions. Consider: a small discount (within the cap), free training, senior engineer hours on the fix, a dedicated CSM, or a custom action.
2. For each action estimate: cost ($), expected revenue saved ($), ROI multiplier (revenue_saved / cost).
3. Rank by ROI. Explain in 1 sentence why each action is better or worse.
4. Set recommendedActionId to the best action's actionId.

Use thinking to compare options step-by-step. Output valid JSON only.`)
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
