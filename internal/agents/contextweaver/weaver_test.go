package contextweaver

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arps/internal/oracle"
	"arps/internal/types"
)

func evidence() types.EvidenceBundle {
	return types.NewEvidenceBundle(
		"Acme Corp, Enterprise tier, health score 41.",
		"SSO login failures reported 19 days ago; ticket still open.",
		"Engineering says the SSO fix is in QA.",
		120000, "2026-03-31")
}

func TestAssessParsesAnswer(t *testing.T) {
	r := oracle.NewReplay().Add(Label, oracle.Reply{
		Thoughts: []string{"The SSO defect dominates."},
		Answer: "```json\n" + `{"primaryDriver":"Unresolved SSO defect","secondaryDrivers":["Slow support response"],` +
			`"plainEnglishSummary":"The customer cannot log in.","confidence":"high"}` + "\n```",
	})

	res, err := New(r, DefaultSettings()).Assess(context.Background(), evidence())
	require.NoError(t, err)
	assert.Equal(t, "Unresolved SSO defect", res.PrimaryDriver)
	assert.Equal(t, []string{"Slow support response"}, res.SecondaryDrivers)
	assert.Equal(t, types.ConfidenceHigh, res.Confidence)
	assert.False(t, res.ConflictDetected)
	assert.False(t, res.Degraded)
	assert.Equal(t, "The SSO defect dominates.", res.ThoughtSummary)

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "SSO login failures reported 19 days ago")
	assert.Contains(t, calls[0].Prompt, "$120,000")
	assert.Equal(t, float32(0.2), calls[0].Opts.Temperature)
	assert.True(t, calls[0].Opts.IncludeThoughts)
}

func TestAssessConflict(t *testing.T) {
	r := oracle.NewReplay().Add(Label, oracle.Reply{Answer: `{"primaryDriver":"Legal threat over SSO outage",` +
		`"secondaryDrivers":[],"plainEnglishSummary":"s","confidence":"medium","conflictDetected":true,` +
		`"conflictDescription":"Sales vs Compliance (security bypass vs SOC2)."}`})

	res, err := New(r, DefaultSettings()).Assess(context.Background(), evidence())
	require.NoError(t, err)
	assert.True(t, res.ConflictDetected)
	assert.Equal(t, "Sales vs Compliance (security bypass vs SOC2).", res.ConflictDescription)
	assert.NotNil(t, res.SecondaryDrivers)
}

func TestAssessFallsBackToMarkers(t *testing.T) {
	r := oracle.NewReplay().Add(Label, oracle.Reply{Answer: "The account looks risky."})

	res, err := New(r, DefaultSettings()).Assess(context.Background(), evidence())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, UnparsedDriver, res.PrimaryDriver)
	assert.Equal(t, types.ConfidenceLow, res.Confidence)
	assert.Equal(t, "The account looks risky.", res.Summary)
	assert.Empty(t, res.SecondaryDrivers)
}

func TestAssessEmptyAnswer(t *testing.T) {
	r := oracle.NewReplay().Add(Label, oracle.Reply{Answer: ""})
	res, err := New(r, DefaultSettings()).Assess(context.Background(), evidence())
	require.NoError(t, err)
	assert.Equal(t, NoSummary, res.Summary)
}

func TestAssessPropagatesOracleFailure(t *testing.T) {
	r := oracle.NewReplay().Add(Label, oracle.Reply{Error: "auth"})
	_, err := New(r, DefaultSettings()).Assess(context.Background(), evidence())
	require.Error(t, err)
	assert.True(t, errors.Is(err, oracle.ErrUnavailable))
	assert.Contains(t, err.Error(), "context weaver")
}

func TestBuildPromptMarksMissingEvidence(t *testing.T) {
	p := BuildPrompt(types.NewEvidenceBundle("", "ticket", "", 0, ""))
	assert.Contains(t, p, "(none provided)")
	assert.Contains(t, p, "ticket")
}
