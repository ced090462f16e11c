package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hotdash/opsgate/pkg/approval"
	"github.com/hotdash/opsgate/pkg/escalation"
	"github.com/hotdash/opsgate/pkg/executor"
	"github.com/hotdash/opsgate/pkg/observability"
	"github.com/hotdash/opsgate/pkg/sla"
	"github.com/hotdash/opsgate/pkg/triage"
)

const maxBodyBytes = 1 << 20

// Trigger runs a background job on demand. *scheduler.Runner implements it.
type Trigger interface {
	Trigger(ctx context.Context) error
}

// Server holds the engines behind the HTTP routes.
type Server struct {
	machine    *approval.Machine
	executor   executor.Executor
	classifier *triage.Classifier
	monitor    *sla.Monitor
	escalation *escalation.Engine
	jobs       map[string]Trigger
	limiter    *RateLimiter
	idem       IdempotencyStore
	telemetry  *observability.Provider
	clock      func() time.Time
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithExecutor sets the executor used by apply. The default is a dry run.
func WithExecutor(e executor.Executor) Option {
	return func(s *Server) { s.executor = e }
}

// WithClassifier sets the triage classifier.
func WithClassifier(c *triage.Classifier) Option {
	return func(s *Server) { s.classifier = c }
}

// WithMonitor sets the SLA monitor.
func WithMonitor(m *sla.Monitor) Option {
	return func(s *Server) { s.monitor = m }
}

// WithEscalation sets the escalation engine.
func WithEscalation(e *escalation.Engine) Option {
	return func(s *Server) { s.escalation = e }
}

// WithJob exposes a job under POST /v1/jobs/{name}.
func WithJob(name string, t Trigger) Option {
	return func(s *Server) { s.jobs[name] = t }
}

// WithRateLimit enables per-client rate limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) { s.limiter = NewRateLimiter(rps, burst) }
}

// WithIdempotency replays POST responses by Idempotency-Key.
func WithIdempotency(store IdempotencyStore) Option {
	return func(s *Server) { s.idem = store }
}

// WithTelemetry traces and counts every route.
func WithTelemetry(p *observability.Provider) Option {
	return func(s *Server) { s.telemetry = p }
}

// NewServer returns a server over machine.
func NewServer(machine *approval.Machine, opts ...Option) *Server {
	s := &Server{
		machine:    machine,
		executor:   executor.NewDryRun(),
		classifier: triage.New(),
		monitor:    sla.NewMonitor(),
		escalation: escalation.NewEngine(),
		jobs:       make(map[string]Trigger),
		clock:      time.Now,
		logger:     slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithClock overrides the clock used for SLA checks.
func (s *Server) WithClock(clock func() time.Time) *Server {
	s.clock = clock
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /healthz", s.handleHealth)

	s.route(mux, "GET /v1/approvals", s.handleListApprovals)
	s.route(mux, "POST /v1/approvals", s.handleCreateApproval)
	s.route(mux, "GET /v1/approvals/metrics", s.handleApprovalMetrics)
	s.route(mux, "GET /v1/approvals/{id}", s.handleGetApproval)
	s.route(mux, "POST /v1/approvals/{id}/submit", s.handleSubmit)
	s.route(mux, "POST /v1/approvals/{id}/approve", s.handleApprove)
	s.route(mux, "POST /v1/approvals/{id}/reject", s.handleReject)
	s.route(mux, "POST /v1/approvals/{id}/apply", s.handleApply)
	s.route(mux, "POST /v1/approvals/{id}/receipts", s.handleRecordReceipt)

	s.route(mux, "POST /v1/triage", s.handleTriage)
	s.route(mux, "POST /v1/triage/batch", s.handleTriageBatch)
	s.route(mux, "POST /v1/sla/check", s.handleSLACheck)
	s.route(mux, "POST /v1/escalations/evaluate", s.handleEscalate)
	s.route(mux, "POST /v1/jobs/{name}", s.handleTriggerJob)

	var h http.Handler = mux
	if s.idem != nil {
		h = IdempotencyMiddleware(s.idem)(h)
	}
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = AccessLog(s.logger)(h)
	h = RequestIDMiddleware(h)
	if s.telemetry != nil {
		h = s.telemetry.HTTPHandler(h, "opsgate.http")
	}
	return h
}

func (s *Server) route(mux *http.ServeMux, pattern string, fn func(http.ResponseWriter, *http.Request) error) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if s.telemetry != nil {
			ctx, finish := s.telemetry.TrackOperation(r.Context(), "http "+pattern, observability.AttrRoute.String(pattern))
			r = r.WithContext(ctx)
			var err error
			defer func() { finish(err) }()
			err = fn(w, r)
			if err != nil {
				WriteDomainError(w, r, err)
			}
			return
		}
		if err := fn(w, r); err != nil {
			WriteDomainError(w, r, err)
		}
	})
}

// badRequest is returned by handlers for malformed input.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &badRequest{msg: "request body is empty"}
		}
		return &badRequest{msg: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
