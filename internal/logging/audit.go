package logging

import (
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENTS
// =============================================================================
//
// Audit events are structured records of a pipeline run written to the
// "audit" child of the root logger. They complement (and never replace) the
// AuditEntry log that a run returns to its caller.

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	AuditRunStart      AuditEventType = "run_start"
	AuditRunComplete   AuditEventType = "run_complete"
	AuditRunAbort      AuditEventType = "run_abort"
	AuditStageComplete AuditEventType = "stage_complete"
	AuditOracleCall    AuditEventType = "oracle_call"
	AuditOracleError   AuditEventType = "oracle_error"
	AuditSynthesized   AuditEventType = "action_synthesized"
	AuditPolicyVerdict AuditEventType = "policy_verdict"
)

// AuditLogger writes structured events correlated by run id.
type AuditLogger struct {
	runID string
	log   *zap.Logger
}

// Audit returns an audit logger for the given run.
func Audit(runID string) *AuditLogger {
	mu.RLock()
	l := root
	mu.RUnlock()
	return &AuditLogger{runID: runID, log: l.Named("audit")}
}

func (a *AuditLogger) emit(event AuditEventType, msg string, fields ...zap.Field) {
	fields = append(fields, zap.String("event", string(event)), zap.String("run_id", a.runID))
	a.log.Info(msg, fields...)
}

// RunStart records the beginning of a pipeline run.
func (a *AuditLogger) RunStart(arr float64, renewalDate string) {
	a.emit(AuditRunStart, "pipeline run started",
		zap.Float64("arr", arr),
		zap.String("renewal_date", renewalDate))
}

// RunComplete records a finished run.
func (a *AuditLogger) RunComplete(duration time.Duration, conflict bool, recommended string) {
	a.emit(AuditRunComplete, "pipeline run complete",
		zap.Int64("dur_ms", duration.Milliseconds()),
		zap.Bool("conflict", conflict),
		zap.String("recommended", recommended))
}

// RunAbort records a run stopped by a fatal stage error.
func (a *AuditLogger) RunAbort(stage string, err error) {
	a.emit(AuditRunAbort, "pipeline run aborted",
		zap.String("stage", stage),
		zap.Error(err))
}

// StageComplete records one stage returning.
func (a *AuditLogger) StageComplete(stage string, duration time.Duration, degraded bool) {
	a.emit(AuditStageComplete, "stage complete",
		zap.String("stage", stage),
		zap.Int64("dur_ms", duration.Milliseconds()),
		zap.Bool("degraded", degraded))
}

// OracleCall records a successful oracle invocation.
func (a *AuditLogger) OracleCall(label, model string, duration time.Duration, answerLen, traceLen int) {
	a.emit(AuditOracleCall, "oracle call",
		zap.String("label", label),
		zap.String("model", model),
		zap.Int64("dur_ms", duration.Milliseconds()),
		zap.Int("answer_len", answerLen),
		zap.Int("trace_len", traceLen))
}

// OracleError records a failed oracle invocation.
func (a *AuditLogger) OracleError(label, model string, err error) {
	a.emit(AuditOracleError, "oracle call failed",
		zap.String("label", label),
		zap.String("model", model),
		zap.Error(err))
}

// Synthesized records actions the allocator synthesized in conflict mode.
func (a *AuditLogger) Synthesized(ids []string, narrative bool) {
	a.emit(AuditSynthesized, "mandatory actions synthesized",
		zap.Strings("action_ids", ids),
		zap.Bool("narrative", narrative))
}

// PolicyVerdict records the enforcer's decision.
func (a *AuditLogger) PolicyVerdict(actionID string, allowed bool, failMode string) {
	a.emit(AuditPolicyVerdict, "policy verdict",
		zap.String("action_id", actionID),
		zap.Bool("allowed", allowed),
		zap.String("fail_mode", failMode))
}
