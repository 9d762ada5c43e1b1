package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"warpledger/native/warp"
	"warpledger/observability"
	warpotel "warpledger/observability/otel"
	"warpledger/storage/audit"
)

const maxRequestBytes = 1 << 16

// Server exposes the escrow engine over HTTP.
type Server struct {
	engine  *warp.Engine
	auth    *Authenticator
	limiter *RateLimiter
	journal *audit.Journal
	logger  *slog.Logger
	metrics *observability.RPCMetrics
	tracer  trace.Tracer

	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
}

// Option customises the server.
type Option func(*Server)

// WithAuth installs bearer token verification.
func WithAuth(cfg AuthConfig) Option {
	return func(s *Server) { s.auth = NewAuthenticator(cfg) }
}

// WithRateLimit installs per-caller rate limiting.
func WithRateLimit(limit RateLimit) Option {
	return func(s *Server) { s.limiter = NewRateLimiter(limit) }
}

// WithJournal records API requests and serves /v1/events from journal.
func WithJournal(journal *audit.Journal) Option {
	return func(s *Server) { s.journal = journal }
}

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer wires the engine into an HTTP server.
func NewServer(engine *warp.Engine, opts ...Option) *Server {
	s := &Server{
		engine:            engine,
		auth:              NewAuthenticator(AuthConfig{}),
		logger:            slog.Default(),
		metrics:           observability.RPC(),
		tracer:            warpotel.Tracer(),
		readHeaderTimeout: 5 * time.Second,
		shutdownTimeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "rpc"))
	return s
}

// Handler returns the routed HTTP handler. The outer otelhttp handler
// extracts inbound trace context and opens the server span.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, s.observe, s.auth.Identify, s.limiter.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/status", s.handleStatus)
		v1.Get("/ghost/{account}", s.handleGhostBalance)
		v1.Get("/pending/{sender}", s.handleGetPending)
		v1.Get("/events", s.handleListEvents)

		v1.Group(func(authed chi.Router) {
			authed.Use(s.auth.RequireCaller)
			authed.Post("/transactions", s.handleProcessTransaction)
			authed.Post("/ghost/redeem", s.handleRedeem)
			authed.Delete("/pending/{sender}", s.handleCancelPending)
			authed.Post("/admin/activate", s.handleActivate)
			authed.Post("/admin/deactivate", s.handleDeactivate)
			authed.Post("/admin/fee-multiplier", s.handleSetFeeMultiplier)
		})
	})
	return otelhttp.NewHandler(r, "warpd.api")
}

// Serve accepts connections on listener until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", slog.String("address", listener.Addr().String()))
		errCh <- srv.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown api: %w", err)
		}
		<-errCh
		return nil
	}
}

// ListenAndServe binds addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := errorBody{Error: message}
	if err != nil {
		body.Detail = err.Error()
	}
	writeJSON(w, status, body)
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, warp.ErrInactiveContract):
		return http.StatusConflict
	case errors.Is(err, warp.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, warp.ErrInsufficientGhostBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, warp.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, warp.ErrInvalidAmount),
		errors.Is(err, warp.ErrInvalidMultiplier),
		errors.Is(err, warp.ErrInvalidAccount):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("engine call failed",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("error", err.Error()))
	}
	writeError(w, status, http.StatusText(status), err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
