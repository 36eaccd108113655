package main

import (
	"github.com/spf13/cobra"

	"arps/internal/server"
)

// serveCmd starts the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP",
	Long: `Routes:
  POST /api/solve                      full pipeline run
  POST /api/agents/context-weaver      Stage A only
  POST /api/agents/resource-allocator  Stage B only
  POST /api/agents/policy-enforcer     Stage C only
  GET  /api/demo                       static demo result
  GET  /healthz                        liveness`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(0)
	defer cancel()

	orch, err := newOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}
	srv := server.New(orch, server.Config{
		Addr:              cfg.Server.Addr,
		MaxConcurrentRuns: cfg.Server.MaxConcurrentRuns,
		MaxConnections:    cfg.Server.MaxConnections,
		ReadHeaderTimeout: cfg.GetReadHeaderTimeout(),
	})
	return srv.ListenAndServe(ctx)
}
