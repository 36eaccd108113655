// Package pipeline runs the three stages in order and composes their outputs
// into a single PipelineResult with an audit trail.
//
// The run is a straight line: Start -> Context Weaver -> Resource Allocator ->
// Policy Enforcer -> Compose -> Done. The only branch is data-driven (conflict
// mode inside the allocator). Any stage error aborts the run; callers get a
// complete result or one error, never a partial result.
package pipeline

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"arps/internal/agents"
	"arps/internal/agents/allocator"
	"arps/internal/agents/contextweaver"
	"arps/internal/agents/enforcer"
	"arps/internal/logging"
	"arps/internal/oracle"
	"arps/internal/types"
	"arps/internal/usage"
)

// DefaultAuditSummaryLen is the rune limit for audit entry summaries.
const DefaultAuditSummaryLen = 120

// FallbackActionCost is the cost of the minimal action checked when the
// allocator returns no actions at all.
const FallbackActionCost = 1000

// FallbackAction is the minimal action for an account worth arr.
func FallbackAction(arr float64) types.RankedAction {
	return types.RankedAction{
		ActionID:             "fallback",
		ActionType:           types.ActionCustom,
		Description:          "Expedite fix and follow up",
		EstimatedCost:        FallbackActionCost,
		ExpectedRevenueSaved: arr,
		ROIMultiplier:        agents.ROI(arr, FallbackActionCost),
		Reasoning:            "Fallback when no action returned.",
	}
}

// Config wires an Orchestrator.
type Config struct {
	Oracle                  oracle.Oracle
	Weaver                  agents.Settings
	Allocator               agents.Settings
	Enforcer                agents.Settings
	ConflictMaxOutputTokens int32
	FailMode                types.FailMode
	Liability               LiabilityModel
	AuditSummaryLen         int
	// Usage, when set, accumulates oracle usage across runs.
	Usage *usage.Tracker
}

// DefaultConfig returns stage defaults around o.
func DefaultConfig(o oracle.Oracle) Config {
	return Config{
		Oracle:                  o,
		Weaver:                  contextweaver.DefaultSettings(),
		Allocator:               allocator.DefaultSettings(),
		Enforcer:                enforcer.DefaultSettings(),
		ConflictMaxOutputTokens: allocator.DefaultConflictMaxOutputTokens,
		FailMode:                types.FailOpen,
		Liability:               DefaultLiability,
		AuditSummaryLen:         DefaultAuditSummaryLen,
	}
}

// Orchestrator runs pipelines. It holds no per-run state and is safe for
// concurrent use when its oracle is.
type Orchestrator struct {
	cfg Config

	now   func() time.Time
	newID func() string
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.AuditSummaryLen <= 0 {
		cfg.AuditSummaryLen = DefaultAuditSummaryLen
	}
	if cfg.Liability == (LiabilityModel{}) {
		cfg.Liability = DefaultLiability
	}
	if cfg.FailMode == "" {
		cfg.FailMode = types.FailOpen
	}
	return &Orchestrator{cfg: cfg, now: time.Now, newID: uuid.NewString}
}

// stages builds the three agents around o. Agents are plain values, so a run
// gets its own set bound to its audited oracle.
func (o *Orchestrator) stages(orc oracle.Oracle) (*contextweaver.Agent, *allocator.Agent, *enforcer.Agent) {
	return contextweaver.New(orc, o.cfg.Weaver),
		allocator.New(orc, o.cfg.Allocator).WithConflictTokens(o.cfg.ConflictMaxOutputTokens),
		enforcer.New(orc, o.cfg.Enforcer, o.cfg.FailMode)
}

// Usage returns the shared usage tracker, or nil.
func (o *Orchestrator) Usage() *usage.Tracker { return o.cfg.Usage }

// Weaver returns a Context Weaver for single-stage callers.
func (o *Orchestrator) Weaver() *contextweaver.Agent {
	w, _, _ := o.stages(o.cfg.Oracle)
	return w
}

// Allocator returns a Resource Allocator for single-stage callers.
func (o *Orchestrator) Allocator() *allocator.Agent {
	_, a, _ := o.stages(o.cfg.Oracle)
	return a
}

// Enforcer returns a Policy Enforcer for single-stage callers.
func (o *Orchestrator) Enforcer() *enforcer.Agent {
	_, _, e := o.stages(o.cfg.Oracle)
	return e
}

// Run executes one pipeline.
func (o *Orchestrator) Run(ctx context.Context, in types.SolveInput) (*types.PipelineResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if o.cfg.Usage != nil {
		o.cfg.Usage.TrackRun()
		ctx = usage.NewContext(ctx, o.cfg.Usage)
	}
	runID := o.newID()
	audit := logging.Audit(runID)
	audit.RunStart(in.ARR, in.RenewalDate)
	weaver, alloc, enf := o.stages(auditedOracle{inner: o.cfg.Oracle, audit: audit})
	start := o.now()
	log := make([]types.AuditEntry, 0, 3)

	// Stage A
	stageStart := o.now()
	causal, err := weaver.Assess(ctx, in.Evidence())
	if err != nil {
		return nil, o.abort(audit, contextweaver.Label, err)
	}
	audit.StageComplete(contextweaver.Label, o.now().Sub(stageStart), causal.Degraded)
	log = append(log, o.entry(types.AgentContextWeaver, causal.Summary, causal.ThoughtSummary))

	// Stage B
	stageStart = o.now()
	ranked, err := alloc.Rank(ctx, allocator.Request{
		CausalSummary:       causal.Summary,
		PrimaryDriver:       causal.PrimaryDriver,
		ARR:                 in.ARR,
		RenewalDate:         in.RenewalDate,
		DiscountCapPercent:  in.PolicyRules.DiscountCapPercent,
		Capacity:            in.TeamCapacity,
		ConflictDetected:    causal.ConflictDetected,
		ConflictDescription: causal.ConflictDescription,
	})
	if err != nil {
		return nil, o.abort(audit, allocator.Label, err)
	}
	audit.StageComplete(allocator.Label, o.now().Sub(stageStart), ranked.Degraded)
	if len(ranked.Synthesized) > 0 {
		audit.Synthesized(ranked.Synthesized, containsString(ranked.Synthesized, allocator.NarrativeID))
	}
	log = append(log, o.entry(types.AgentResourceAllocator, allocatorDigest(ranked), ranked.ThoughtSummary))

	// Stage C
	recommended, ok := ranked.Recommended()
	if !ok {
		logging.PipelineDebug("run %s: allocator returned no actions; checking fallback action", runID)
		recommended = FallbackAction(in.ARR)
	}
	stageStart = o.now()
	policy, err := enf.Check(ctx, enforcer.Request{
		Action:   recommended,
		Rules:    in.PolicyRules,
		Capacity: in.TeamCapacity,
		ARR:      in.ARR,
	})
	if err != nil {
		return nil, o.abort(audit, enforcer.Label, err)
	}
	audit.StageComplete(enforcer.Label, o.now().Sub(stageStart), policy.Degraded)
	audit.PolicyVerdict(policy.ActionID, policy.Allowed, string(policy.FailMode))
	log = append(log, o.entry(types.AgentPolicyEnforcer, policy.Explanation, policy.ThoughtSummary))

	result := o.compose(runID, in, causal, ranked, policy, log, ok)
	audit.RunComplete(o.now().Sub(start), result.ConflictDetected, result.RecommendedActionID)
	logging.Pipeline("run %s complete: recommended=%s allowed=%v conflict=%v",
		runID, result.RecommendedActionID, policy.Allowed, result.ConflictDetected)
	return result, nil
}

func (o *Orchestrator) abort(audit *logging.AuditLogger, stage string, err error) error {
	audit.RunAbort(stage, err)
	logging.PipelineError("run aborted at %s: %v", stage, err)
	return errors.Wrap(err, "pipeline run")
}

func (o *Orchestrator) entry(agent types.AgentTag, summary, thought string) types.AuditEntry {
	return types.AuditEntry{
		Agent:          agent,
		Timestamp:      o.now().UTC(),
		Summary:        Truncate(summary, o.cfg.AuditSummaryLen),
		ThoughtSummary: thought,
		ReasoningLogic: thought,
	}
}

func allocatorDigest(r types.ResourceAllocatorResult) string {
	return fmt.Sprintf("Recommended: %s. Ranked %d actions by ROI.", r.RecommendedActionID, len(r.RankedActions))
}

// Truncate cuts s to n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
