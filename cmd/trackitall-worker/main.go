package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/juju/clock"

	"trackitall/internal/cli"
	"trackitall/internal/config"
	"trackitall/internal/email"
	applog "trackitall/internal/log"
	"trackitall/internal/metrics"
	"trackitall/internal/worker"
)

const (
	shutdownTimeout = 10 * time.Second
	minBackoff      = time.Second
	maxBackoff      = time.Minute
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig((*config.Config).ValidateWorker)
	if err != nil {
		cli.Fatal(applog.New(applog.DefaultConfig()), "Configuration validation failed", err)
	}
	logger := cli.NewLogger(cfg)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		cli.Fatal(logger, "Worker failed", err)
	}
	logger.Info("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	m := metrics.NewCollector()
	reg, err := cli.NewRegistry(m)
	if err != nil {
		return err
	}

	queue, err := cli.ConnectAMQP(cfg, logger)
	if err != nil {
		return err
	}
	defer queue.Close()

	sender := email.NewSMTPSender(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, logger)
	w := worker.NewEmailWorker(sender, worker.Queues{
		Signup: cfg.SignupQueue,
		Report: cfg.ReportQueue,
	}, m, logger)

	if cfg.WorkerMetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metrics.Handler(reg))
		srv := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := cli.ServeUntilDone(ctx, srv, nil, shutdownTimeout); err != nil {
				logger.Error("Metrics server failed", applog.FieldError, err)
			}
		}()
		logger.Info("Serving worker metrics", "port", cfg.WorkerMetricsPort)
	}

	logger.Info("Starting trackitall-worker",
		"signup_queue", cfg.SignupQueue,
		"report_queue", cfg.ReportQueue,
		applog.FieldOperation, applog.OpStartup)
	return consumeWithRetry(ctx, w, queue, clock.WallClock, logger)
}

// consumeWithRetry restarts the consumers after a broker failure, doubling
// the wait each time up to maxBackoff. It returns nil once ctx is done.
func consumeWithRetry(ctx context.Context, w *worker.EmailWorker, consumer worker.Consumer, clk clock.Clock, logger *applog.Logger) error {
	backoff := minBackoff
	for {
		started := clk.Now()
		err := w.Run(ctx, consumer)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || errors.Is(err, context.Canceled) {
			err = errors.New("consumers stopped unexpectedly")
		}
		if clk.Now().Sub(started) > maxBackoff {
			backoff = minBackoff
		}
		logger.Warn("Consumers stopped, retrying",
			applog.FieldError, err,
			"backoff", backoff.String())

		select {
		case <-ctx.Done():
			return nil
		case <-clk.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
