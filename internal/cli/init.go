// Package cli holds the start-up steps shared by cmd/trackitall and
// cmd/trackitall-worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"trackitall/internal/amqp"
	"trackitall/internal/config"
	applog "trackitall/internal/log"
	"trackitall/internal/metrics"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads configuration from the environment and checks it with
// validate, typically (*config.Config).Validate or ValidateWorker.
func LoadConfig(validate func(*config.Config) error) (*config.Config, error) {
	cfg := config.Load()
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the process logger and installs it as the slog default.
func NewLogger(cfg *config.Config) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: applog.ComponentApp,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	return logger
}

// Fatal logs err and exits the process.
func Fatal(logger *applog.Logger, msg string, err error) {
	logger.Error(msg, applog.FieldError, err)
	os.Exit(1)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received", applog.FieldOperation, applog.OpShutdown)
	}()
	return ctx, stop
}

// NewRegistry returns a registry holding m plus the Go runtime and process
// collectors.
func NewRegistry(m *metrics.Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		m,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return reg, nil
}

// ConnectAMQP declares the exchange and both job queues.
func ConnectAMQP(cfg *config.Config, logger *applog.Logger) (*amqp.Client, error) {
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, []string{cfg.SignupQueue, cfg.ReportQueue}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to AMQP broker: %w", err)
	}
	return client, nil
}

// ServeUntilDone runs srv until ctx is cancelled, then drains it within
// timeout. shutdown defaults to srv.Shutdown.
func ServeUntilDone(ctx context.Context, srv *http.Server, shutdown func(context.Context) error, timeout time.Duration) error {
	if shutdown == nil {
		shutdown = srv.Shutdown
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
