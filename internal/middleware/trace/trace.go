// Package trace tags every request with an id, a request-scoped logger and
// records its outcome.
package trace

import (
	"context"
	"net/http"
	"strings"

	"github.com/juju/clock"
	"github.com/oklog/ulid/v2"

	applog "trackitall/internal/log"
	"trackitall/internal/metrics"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID carries the request id in and out.
	HeaderRequestID = "X-Request-Id"

	maxInboundIDLength = 64
	unmatchedRoute     = "unmatched"
)

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *applog.Logger
	metrics   *metrics.Collector
	clock     clock.Clock
}

// NewMiddleware creates a new trace middleware. extractIP may be nil.
func NewMiddleware(extractIP func(*http.Request) string, logger *applog.Logger, m *metrics.Collector, clk clock.Clock) *Middleware {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Middleware{
		extractIP: extractIP,
		logger:    logger,
		metrics:   m,
		clock:     clk,
	}
}

// Middleware returns HTTP middleware for request tracing
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.clock.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := inboundRequestID(r)
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		reqLogger := m.logger.With(applog.FieldRequestID, requestID)
		ctx = applog.WithContext(ctx, reqLogger)
		req := r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, req)

		duration := m.clock.Now().Sub(start)
		// ServeMux records the matched pattern on the request it was handed.
		route := req.Pattern
		if route == "" {
			route = unmatchedRoute
		}
		m.metrics.HTTPRequest(route, rw.statusCode, duration)
		applog.NewStructuredLogger(reqLogger).LogHTTPEnd(ctx, req, rw.statusCode, duration.Milliseconds(), clientIP)
	})
}

// inboundRequestID accepts a caller supplied id when it is short and printable.
func inboundRequestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
	if id == "" || len(id) > maxInboundIDLength {
		return ""
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return ""
		}
	}
	return id
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	return "req_" + strings.ToLower(ulid.Make().String())
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
