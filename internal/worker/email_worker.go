package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"trackitall/internal/amqp"
	"trackitall/internal/email"
	applog "trackitall/internal/log"
	"trackitall/internal/metrics"
)

// Consumer delivers queue messages to a handler until ctx ends.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler amqp.Handler) error
}

// Queues names the queues the worker drains.
type Queues struct {
	Signup string
	Report string
}

// EmailWorker turns signup and report messages into emails.
type EmailWorker struct {
	sender  email.Sender
	queues  Queues
	metrics *metrics.Collector
	logger  *applog.Logger
}

func NewEmailWorker(sender email.Sender, queues Queues, m *metrics.Collector, logger *applog.Logger) *EmailWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &EmailWorker{
		sender:  sender,
		queues:  queues,
		metrics: m,
		logger:  logger.WithComponent(applog.ComponentWorker),
	}
}

// Run consumes both queues and returns when either consumer stops.
func (w *EmailWorker) Run(ctx context.Context, consumer Consumer) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Consume(ctx, w.queues.Signup, w.HandleSignupMessage)
	})
	g.Go(func() error {
		return consumer.Consume(ctx, w.queues.Report, w.HandleReportMessage)
	})
	return g.Wait()
}

// HandleSignupMessage sends the welcome email. Undecodable messages and
// relay rejections are permanent; other send failures are requeued.
func (w *EmailWorker) HandleSignupMessage(ctx context.Context, body []byte) error {
	msg, err := amqp.SignupMessageFromJSON(body)
	if err != nil {
		return amqp.Permanent(fmt.Errorf("decode signup message: %w", err))
	}
	w.logger.InfoContext(ctx, "Processing signup message",
		applog.FieldPrincipalID, msg.ObjectID,
		"timestamp", msg.Timestamp)

	rendered, err := email.RenderWelcome(msg.Email)
	if err != nil {
		return amqp.Permanent(err)
	}
	return w.send(ctx, email.KindWelcome, rendered)
}

// HandleReportMessage sends a generated report to its recipient.
func (w *EmailWorker) HandleReportMessage(ctx context.Context, body []byte) error {
	msg, err := amqp.ReportEmailMessageFromJSON(body)
	if err != nil {
		return amqp.Permanent(fmt.Errorf("decode report message: %w", err))
	}
	w.logger.InfoContext(ctx, "Processing report message",
		applog.FieldStartDate, msg.Report.StartDate,
		applog.FieldEndDate, msg.Report.EndDate,
		"timestamp", msg.Timestamp)

	rendered, err := email.RenderReport(msg.Email, msg.Report)
	if err != nil {
		return amqp.Permanent(err)
	}
	return w.send(ctx, email.KindReport, rendered)
}

func (w *EmailWorker) send(ctx context.Context, kind string, msg email.Message) error {
	err := w.sender.Send(ctx, msg)
	w.metrics.EmailSent(kind, err)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to send email", "kind", kind, applog.FieldError, err)
		err = fmt.Errorf("send %s email: %w", kind, err)
		if email.IsPermanent(err) {
			return amqp.Permanent(err)
		}
		return err
	}
	return nil
}
