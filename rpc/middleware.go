package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"warpledger/crypto"
	"warpledger/observability/logging"
	"warpledger/storage/audit"
)

const headerRequestID = "X-Request-ID"

const (
	contextKeyRequestID contextKey = "warp.request_id"
	contextKeyScope     contextKey = "warp.scope"
)

// requestScope is shared by the outer observe middleware and the inner auth
// middleware so the audit row can name the caller.
type requestScope struct {
	caller    [20]byte
	hasCaller bool
}

func scopeFrom(ctx context.Context) *requestScope {
	scope, _ := ctx.Value(contextKeyScope).(*requestScope)
	return scope
}

// RequestIDFrom returns the request ID assigned by the server.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// requestID echoes a well-formed inbound X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// observe wraps each request in a span and records metrics, a log line and
// an audit row once the handler returns.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		), trace.WithSpanKind(trace.SpanKindInternal))
		defer span.End()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		scope := &requestScope{}
		r = r.WithContext(context.WithValue(ctx, contextKeyScope, scope))
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", recorder.status),
		)
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
		}
		duration := time.Since(start)
		s.metrics.Observe(route, r.Method, recorder.status, duration)

		caller := ""
		if scope.hasCaller {
			caller = crypto.AccountString(scope.caller)
		}
		reqID := RequestIDFrom(r.Context())
		s.logger.Debug("api request",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", recorder.status),
			slog.String("caller", caller),
			logging.MaskField("authorization", r.Header.Get("Authorization")),
			slog.Duration("duration", duration))

		if s.journal != nil {
			entry := audit.RequestEntry{
				RequestID:      reqID,
				Caller:         caller,
				Method:         r.Method,
				Path:           r.URL.Path,
				ResponseStatus: recorder.status,
				Timestamp:      start,
			}
			if err := s.journal.InsertRequest(context.WithoutCancel(r.Context()), entry); err != nil {
				s.logger.Warn("audit request write failed", slog.String("request_id", reqID), slog.String("error", err.Error()))
			}
		}
	})
}
