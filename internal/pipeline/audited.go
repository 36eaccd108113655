package pipeline

import (
	"context"
	"time"

	"arps/internal/logging"
	"arps/internal/oracle"
	"arps/internal/schema"
)

// auditedOracle records every oracle call of one run as an audit event.
type auditedOracle struct {
	inner oracle.Oracle
	audit *logging.AuditLogger
}

func (a auditedOracle) Generate(ctx context.Context, prompt string, shape schema.Shape, opts oracle.Options) ([]oracle.Fragment, error) {
	if a.inner == nil {
		_, err := oracle.Invoke(ctx, nil, prompt, shape, opts)
		a.audit.OracleError(opts.Label, opts.Model, err)
		return nil, err
	}
	start := time.Now()
	frags, err := a.inner.Generate(ctx, prompt, shape, opts)
	if err != nil {
		a.audit.OracleError(opts.Label, opts.Model, err)
		return nil, err
	}
	resp := oracle.Split(frags)
	a.audit.OracleCall(opts.Label, opts.Model, time.Since(start), len(resp.Text), len(resp.Trace))
	return frags, nil
}
