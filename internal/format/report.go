package format

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"arps/internal/agents"
	"arps/internal/types"
)

var (
	allowedBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#10b981")).
			Padding(0, 1).
			Bold(true)

	deniedBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#ef4444")).
			Padding(0, 1).
			Bold(true)

	conflictBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1f2937")).
			Background(lipgloss.Color("#f59e0b")).
			Padding(0, 1).
			Bold(true)

	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

// VerdictBadge renders the policy verdict.
func VerdictBadge(p types.PolicyCheckResult) string {
	if p.Allowed {
		return allowedBadge.Render("ALLOWED")
	}
	return deniedBadge.Render("DENIED")
}

// ConflictBadge renders a marker for conflict runs, or "" when there is none.
func ConflictBadge(r *types.PipelineResult) string {
	if !r.ConflictDetected {
		return ""
	}
	return conflictBadge.Render("CONFLICT")
}

// ActionsTable lists the ranked actions, marking the recommended one.
func ActionsTable(r *types.PipelineResult, m Mode) string {
	tb := NewTable(m)
	tb.Header("#", "Action", "Type", "Cost", "Revenue saved", "ROI", "Description")
	for i, a := range r.RankedActions {
		id := a.ActionID
		if id == r.RecommendedActionID {
			id += " *"
		}
		tb.Row(i+1, id, a.ActionType, "$"+agents.Dollars(a.EstimatedCost),
			"$"+agents.Dollars(a.ExpectedRevenueSaved), fmt.Sprintf("%.2fx", a.ROIMultiplier), a.Description)
	}
	tb.Columns(
		ColumnConfig{Number: 1, Align: AlignRight},
		ColumnConfig{Number: 4, Align: AlignRight},
		ColumnConfig{Number: 5, Align: AlignRight},
		ColumnConfig{Number: 6, Align: AlignRight},
		ColumnConfig{Number: 7, MaxWidth: 60},
	)
	return tb.String()
}

// AuditTable lists the audit trail in stage order.
func AuditTable(r *types.PipelineResult, m Mode) string {
	tb := NewTable(m)
	tb.Header("Stage", "Time", "Summary")
	for _, e := range r.AuditLog {
		tb.Row(e.Agent, e.Timestamp.Format("15:04:05.000"), e.Summary)
	}
	tb.Columns(ColumnConfig{Number: 3, MaxWidth: 70})
	return tb.String()
}

// Text is the plain terminal rendering used by `arps solve --format table`.
func Text(r *types.PipelineResult) string {
	var b strings.Builder

	header := headingStyle.Render("Run " + r.RunID)
	if badge := ConflictBadge(r); badge != "" {
		header += " " + badge
	}
	b.WriteString(header + "\n\n")

	c := r.CausalRisk
	fmt.Fprintf(&b, "Primary driver: %s (%s confidence)\n", c.PrimaryDriver, c.Confidence)
	fmt.Fprintf(&b, "%s\n", c.Summary)
	if r.ConflictDetected && r.ConflictDescription != "" {
		fmt.Fprintf(&b, "Conflict: %s\n", r.ConflictDescription)
	}
	b.WriteString("\n")

	b.WriteString(ActionsTable(r, ASCII) + "\n\n")

	fmt.Fprintf(&b, "Policy %s %s\n", VerdictBadge(r.PolicyCheck), r.PolicyCheck.Explanation)
	if r.PolicyCheck.FailMode != "" {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("verdict from %s fallback", r.PolicyCheck.FailMode)) + "\n")
	}
	if r.FinalRecommendation != "" {
		fmt.Fprintf(&b, "\n%s\n", r.FinalRecommendation)
	}
	b.WriteString("\n" + AuditTable(r, ASCII) + "\n")
	return b.String()
}

// MarkdownReport renders the whole result as a markdown document.
func MarkdownReport(r *types.PipelineResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Renewal protection run `%s`\n\n", r.RunID)

	if r.FinalRecommendation != "" {
		fmt.Fprintf(&b, "> %s\n\n", r.FinalRecommendation)
	}

	c := r.CausalRisk
	b.WriteString("## Causal risk\n\n")
	fmt.Fprintf(&b, "- **Primary driver:** %s\n", c.PrimaryDriver)
	for _, d := range c.SecondaryDrivers {
		fmt.Fprintf(&b, "- Secondary: %s\n", d)
	}
	fmt.Fprintf(&b, "- **Confidence:** %s\n\n%s\n\n", c.Confidence, c.Summary)
	if r.ConflictDetected {
		fmt.Fprintf(&b, "**Conflict detected:** %s\n\n", r.ConflictDescription)
	}

	b.WriteString("## Ranked actions\n\n")
	b.WriteString(ActionsTable(r, Markdown) + "\n\n")
	if r.StrategicPivotAction != "" {
		fmt.Fprintf(&b, "### Strategic pivot\n\n%s\n\n", r.StrategicPivotAction)
	}

	p := r.PolicyCheck
	verdict := "Allowed"
	if !p.Allowed {
		verdict = "Denied"
	}
	fmt.Fprintf(&b, "## Policy check: %s\n\n%s\n\n", verdict, p.Explanation)
	if p.Violation != "" {
		fmt.Fprintf(&b, "- **Violation:** %s\n", p.Violation)
	}
	if p.AlternativeSuggestion != "" {
		fmt.Fprintf(&b, "- **Alternative:** %s\n", p.AlternativeSuggestion)
	}
	if p.FailMode != "" {
		fmt.Fprintf(&b, "- **Fail mode:** %s\n", p.FailMode)
	}

	if a := r.AuthorizationSummary; a != nil {
		b.WriteString("\n## Authorization summary\n\n")
		tb := NewTable(Markdown)
		tb.Header("Figure", "Amount")
		tb.Row("Direct cost", "$"+agents.Dollars(a.DirectCost))
		tb.Row("Revenue protected", "$"+agents.Dollars(a.RevenueProtected))
		tb.Row("Liability mitigation", "$"+agents.Dollars(a.LiabilityMitigation))
		b.WriteString(tb.String() + "\n\n")
		for _, item := range a.PolicyAuditItems {
			fmt.Fprintf(&b, "- **%s:** %s\n", item.Label, item.Text)
		}
		fmt.Fprintf(&b, "\n**Jira:** %s\n\n**Slack:** %s\n\n**Email:** %s\n",
			a.WorkflowDispatches.Jira, a.WorkflowDispatches.Slack, a.WorkflowDispatches.Email)
	}

	if rr := r.RiskRadar; rr != nil {
		b.WriteString("\n## Risk radar\n\n")
		tb := NewTable(Markdown)
		tb.Header("Risk", "Before", "After")
		tb.Row("Revenue", rr.Before.RevenueRisk, rr.After.RevenueRisk)
		tb.Row("Legal", rr.Before.LegalRisk, rr.After.LegalRisk)
		tb.Row("Team burnout", rr.Before.TeamBurnout, rr.After.TeamBurnout)
		b.WriteString(tb.String() + "\n")
	}

	b.WriteString("\n## Audit log\n\n")
	b.WriteString(AuditTable(r, Markdown) + "\n")
	return b.String()
}

// Render styles markdown for the terminal. style is a glamour style name
// ("dark", "light", "notty", "auto").
func Render(md, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStylePath(style))
	}
	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	return renderer.Render(md)
}
