// Package http serves the JSON API over the expense, receipt and account
// services.
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"

	"trackitall/internal/auth"
	"trackitall/internal/core"
	applog "trackitall/internal/log"
	"trackitall/internal/metrics"
	"trackitall/internal/middleware/ratelimit"
	"trackitall/internal/middleware/security"
	"trackitall/internal/middleware/trace"
	"trackitall/internal/services"
)

const defaultMaxUploadSize = 10 << 20

// ExpenseAPI is the subset of services.ExpenseService the handlers use.
type ExpenseAPI interface {
	AddExpense(ctx context.Context, p core.Principal, ownerID string, in core.NewExpense) (*core.Expense, error)
	UpdateExpense(ctx context.Context, p core.Principal, ownerID, id string, patch core.ExpensePatch) (*core.Expense, error)
	DeleteExpense(ctx context.Context, p core.Principal, ownerID, id string) error
	GetExpense(ctx context.Context, p core.Principal, ownerID, id string) (*core.Expense, error)
	ListExpenses(ctx context.Context, p core.Principal, ownerID string) ([]core.Expense, error)
	GetCategories() []core.Category
	SetReceiptID(ctx context.Context, p core.Principal, ownerID, id string, receiptID *string) error
	GenerateReport(ctx context.Context, p core.Principal, ownerID string, start, end time.Time) (core.Report, error)
}

// ReceiptAPI is the subset of services.ReceiptService the handlers use.
type ReceiptAPI interface {
	UploadReceipt(ctx context.Context, r io.Reader, ext string) (services.Receipt, error)
	UpdateReceipt(ctx context.Context, existing string, r io.Reader, ext string) (services.Receipt, error)
	DeleteReceipt(ctx context.Context, blobName string) error
	GetReceiptURL(ctx context.Context, blobName string) (string, error)
}

// AccountAPI is the subset of services.AccountService the handlers use.
type AccountAPI interface {
	QueueOnboardingEmail(ctx context.Context, objectID, email string)
	QueueReportEmail(ctx context.Context, email string, report core.Report) error
}

// Checker reports whether a dependency is ready to serve.
type Checker func(ctx context.Context) error

// Options wires the server to its services and infrastructure.
type Options struct {
	Expenses ExpenseAPI
	Receipts ReceiptAPI
	Accounts AccountAPI
	Auth     auth.RequestResolver

	// Readiness checks run by /readyz, keyed by dependency name.
	Readiness map[string]Checker

	Gatherer           prometheus.Gatherer
	Metrics            *metrics.Collector
	TrustedProxies     []string
	RateLimitPerMinute int
	MaxUploadSize      int64
	Clock              clock.Clock
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	expenses      ExpenseAPI
	receipts      ReceiptAPI
	accounts      AccountAPI
	readiness     map[string]Checker
	limiter       *ratelimit.Limiter
	detector      *security.Detector
	maxUploadSize int64
	clock         clock.Clock
	startedAt     time.Time
	logger        *applog.Logger
}

// NewServer builds the API server listening on addr.
func NewServer(addr string, opts Options) (*Server, error) {
	if opts.Expenses == nil || opts.Receipts == nil || opts.Accounts == nil || opts.Auth == nil {
		return nil, errors.New("expense, receipt, account services and an auth resolver are required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = defaultMaxUploadSize
	}

	detector, err := security.NewDetector(opts.TrustedProxies, opts.Logger, opts.Metrics)
	if err != nil {
		return nil, err
	}

	s := &Server{
		expenses:      opts.Expenses,
		receipts:      opts.Receipts,
		accounts:      opts.Accounts,
		readiness:     opts.Readiness,
		detector:      detector,
		maxUploadSize: opts.MaxUploadSize,
		clock:         opts.Clock,
		startedAt:     opts.Clock.Now(),
		logger:        opts.Logger.WithComponent(applog.ComponentHTTP),
	}
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}, opts.Clock, opts.Metrics, opts.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler(opts.Gatherer))

	authed := auth.Middleware(opts.Auth, opts.Logger)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(h))
	}
	handle("POST /account/authenticated", s.handleAuthenticated)
	handle("GET /categories", s.handleListCategories)
	handle("GET /expenses", s.handleListExpenses)
	handle("POST /expenses", s.handleCreateExpense)
	handle("GET /expenses/{id}", s.handleGetExpense)
	handle("PATCH /expenses/{id}", s.handleUpdateExpense)
	handle("DELETE /expenses/{id}", s.handleDeleteExpense)
	handle("PUT /expenses/{id}/receipt", s.handlePutReceipt)
	handle("GET /expenses/{id}/receipt", s.handleGetReceipt)
	handle("DELETE /expenses/{id}/receipt", s.handleDeleteReceipt)
	handle("GET /reports", s.handleReport)

	tracer := trace.NewMiddleware(detector.ClientIP, opts.Logger, opts.Metrics, opts.Clock)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = mux
	handler = s.limiter.Middleware(detector.ClientIP)(handler)
	handler = detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Shutdown stops accepting requests, drains in-flight ones and stops the
// rate limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}
