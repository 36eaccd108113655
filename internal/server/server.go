// Package server exposes the pipeline over HTTP: the full run, one endpoint per
// stage, and the static demo result.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/semaphore"

	"arps/internal/logging"
	"arps/internal/pipeline"
	"arps/internal/usage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ErrBusy is returned when no run slot frees up before the request gives up.
var ErrBusy = errors.New("server busy")

// Config tunes the HTTP surface.
type Config struct {
	Addr              string
	MaxConcurrentRuns int64 // oracle-backed requests in flight
	MaxConnections    int   // 0 = unlimited
	ReadHeaderTimeout time.Duration
}

// Server serves the pipeline API.
type Server struct {
	orch *pipeline.Orchestrator
	cfg  Config
	runs *semaphore.Weighted
	now  func() time.Time
}

// New creates a Server around orch.
func New(orch *pipeline.Orchestrator, cfg Config) *Server {
	if cfg.MaxConcurrentRuns < 1 {
		cfg.MaxConcurrentRuns = 1
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	return &Server{
		orch: orch,
		cfg:  cfg,
		runs: semaphore.NewWeighted(cfg.MaxConcurrentRuns),
		now:  time.Now,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/solve", s.limited(s.handleSolve))
	mux.HandleFunc("POST /api/agents/context-weaver", s.limited(s.handleContextWeaver))
	mux.HandleFunc("POST /api/agents/resource-allocator", s.limited(s.handleResourceAllocator))
	mux.HandleFunc("POST /api/agents/policy-enforcer", s.limited(s.handlePolicyEnforcer))
	mux.HandleFunc("GET /api/demo", s.handleDemo)
	mux.HandleFunc("GET /api/usage", s.handleUsage)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// limited holds a run slot for the duration of h.
func (s *Server) limited(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.runs.Acquire(r.Context(), 1); err != nil {
			writeError(w, http.StatusServiceUnavailable, errors.Wrap(ErrBusy, "waiting for a run slot"))
			return
		}
		defer s.runs.Release(1)
		if t := s.orch.Usage(); t != nil {
			r = r.WithContext(usage.NewContext(r.Context(), t))
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		h(w, r)
	}
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logging.API("listening on %s (runs=%d conns=%d)", ln.Addr(), s.cfg.MaxConcurrentRuns, s.cfg.MaxConnections)

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http serve")
	}
	logging.API("server stopped")
	return nil
}

// ListenAndServe listens on cfg.Addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}
