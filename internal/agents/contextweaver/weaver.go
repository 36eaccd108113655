// Package contextweaver implements the first pipeline stage: it fuses the CRM
// snapshot, the customer conversation and the internal thread into a causal
// explanation of renewal risk.
package contextweaver

import (
	"context"
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
const Label = string(types.AgentContextWeaver)

// Fallback markers. The audit trail shows these verbatim when the oracle's
// answer could not be used.
const (
	UnparsedDriver = "Unable to parse model output."
	NoSummary      = "No summary."
)

// Shape is the response contract for this stage.
var Shape = schema.Object(
	schema.String("primaryDriver", "Single primary cause of renewal risk", true),
	schema.StringList("secondaryDrivers", "Contributing factors", true),
	schema.String("plainEnglishSummary", "2-3 sentence causal explanation", true),
	schema.Enum("confidence", "high if evidence is clear, medium if inferred, low if speculative", true, types.Confidences...),
	schema.Bool("conflictDetected", "True when competing internal incentives exist (e.g. Sales vs Compliance vs Engineering)", false),
	schema.String("conflictDescription", "One line describing the internal conflict", false),
)

// DefaultSettings returns the stage defaults.
func DefaultSettings() agents.Settings {
	return agents.Settings{Temperature: 0.2, MaxOutputTokens: 1024, IncludeThoughts: true}
}

// Agent assesses causal renewal risk.
type Agent struct {
	oracle   oracle.Oracle
	settings agents.Settings
}

// New creates a Context Weaver.
func New(o oracle.Oracle, s agents.Settings) *Agent {
	return &Agent{oracle: o, settings: s}
}

// Assess runs the stage. Only oracle-unavailable errors are returned; malformed
// answers degrade to the fallback markers.
func (a *Agent) Assess(ctx context.Context, e types.EvidenceBundle) (types.CausalRiskResult, error) {
	resp, err := oracle.Invoke(ctx, a.oracle, BuildPrompt(e), Shape, a.settings.Options(Label))
	if err != nil {
		return types.CausalRiskResult{}, errors.Wrap(err, "context weaver")
	}

	res := repair.ParseAndRepair(resp.Text, Shape, Fallback(resp.Text))
	p := res.Payload
	out := types.CausalRiskResult{
		PrimaryDriver:       p.String("primaryDriver"),
		SecondaryDrivers:    p.Strings("secondaryDrivers"),
		Summary:             p.String("plainEnglishSummary"),
		Confidence:          types.Confidence(p.String("confidence")),
		ConflictDetected:    p.Bool("conflictDetected"),
		ConflictDescription: strings.TrimSpace(p.String("conflictDescription")),
		ThoughtSummary:      resp.Trace,
		Degraded:            !res.Clean(),
	}
	if out.Degraded {
		logging.WeaverDebug("degraded result: repaired=%v cause=%v", res.Repaired, res.Cause)
	}
	logging.Weaver("driver=%q confidence=%s conflict=%v", out.PrimaryDriver, out.Confidence, out.ConflictDetected)
	return out, nil
}

// Fallback is the deterministic payload for an unusable answer. The raw answer
// text becomes the summary so nothing the oracle said is hidden.
func Fallback(rawText string) repair.Fallback {
	return func() repair.Payload {
		summary := strings.TrimSpace(rawText)
		if summary == "" {
			summary = NoSummary
		}
		return repair.Payload{
			"primaryDriver":       UnparsedDriver,
			"secondaryDrivers":    []string{},
			"plainEnglishSummary": summary,
			"confidence":          string(types.ConfidenceLow),
		}
	}
}

// BuildPrompt embeds every piece of evidence; the oracle keeps no state
// between calls.
func BuildPrompt(e types.EvidenceBundle) string {
	var b strings.Builder
	b.WriteString(`You are the Context Weaver: a causal reasoning agent for revenue protection.

Your ONLY job: read all inputs together and build a CAUSAL explanation of why this account is at renewal risk. Do NOT predict churn scores. Explain WHY: the primary cause and contributing factors.

INPUTS:
- CRM account snapshot:
`)
	b.WriteString(orNone(e.CRMSnapshot()))
	b.WriteString("\n\n- Support ticket / conversation:\n")
	b.WriteString(orNone(e.SupportConversation()))
	b.WriteString("\n\n- Slack or email thread:\n")
	b.WriteString(orNone(e.InternalThread()))
	fmt.Fprintf(&b, "\n\n- Account ARR: $%s\n- Renewal date: %s\n", agents.Dollars(e.ARR()), orNone(e.RenewalDate()))
	b.WriteString(`
TASK:
1. Fuse these signals.
2. Identify the PRIMARY risk driver (the main cause).
3. List SECONDARY contributors, most important first.
4. Write a plain-English summary (2-3 sentences) that a CRO can read.
5. Set confidence: high if evidence is clear, medium if inferred, low if speculative.
6. If you detect INTERNAL CONFLICT (for example Sales pushing for a fast fix vs Compliance blocking a security bypass vs Engineering protecting an engineer at capacity, or a legal threat combined with burnout), set conflictDetected: true and describe the conflict in one line in conflictDescription.

Output valid JSON matching the schema. No markdown, no extra text.`)
	return b.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none provided)"
	}
	return s
}
