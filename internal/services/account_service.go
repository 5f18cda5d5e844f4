package services

import (
	"context"
	"fmt"

	"trackitall/internal/amqp"
	"trackitall/internal/core"
	applog "trackitall/internal/log"
	"trackitall/internal/metrics"
)

// AccountQueues names the queues the account service publishes to.
type AccountQueues struct {
	Signup string
	Report string
}

// AccountService enqueues the onboarding and report emails.
type AccountService struct {
	onboarding OnboardingStore
	queue      QueueSender
	queues     AccountQueues
	metrics    *metrics.Collector
	logger     *applog.Logger
}

func NewAccountService(onboarding OnboardingStore, queue QueueSender, queues AccountQueues, m *metrics.Collector, logger *applog.Logger) *AccountService {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &AccountService{
		onboarding: onboarding,
		queue:      queue,
		queues:     queues,
		metrics:    m,
		logger:     logger.WithComponent(applog.ComponentAccount),
	}
}

// QueueOnboardingEmail enqueues the welcome email the first time a user
// signs in. Every failure is logged and swallowed so sign-in never fails on
// it. Check and mark are not atomic: two concurrent first sign-ins may both
// enqueue, which only duplicates the welcome email.
func (s *AccountService) QueueOnboardingEmail(ctx context.Context, objectID, email string) {
	if objectID == "" || email == "" {
		s.logger.WarnContext(ctx, "Skipping onboarding, identity has no object id or email",
			applog.FieldPrincipalID, objectID)
		return
	}

	onboarded, err := s.onboarding.IsOnboarded(ctx, objectID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read onboarding flag",
			applog.FieldPrincipalID, objectID, applog.FieldError, err)
		return
	}
	if onboarded {
		return
	}

	body, err := amqp.NewSignupMessage(objectID, email).ToJSON()
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to encode signup message", applog.FieldError, err)
		return
	}
	err = s.queue.Send(ctx, s.queues.Signup, body)
	s.metrics.QueuePublish(s.queues.Signup, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to enqueue onboarding email",
			applog.FieldQueue, s.queues.Signup,
			applog.FieldPrincipalID, objectID,
			applog.FieldError, err)
		return
	}

	if err := s.onboarding.MarkOnboarded(ctx, objectID, email); err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark user onboarded",
			applog.FieldPrincipalID, objectID, applog.FieldError, err)
		return
	}
	s.logger.InfoContext(ctx, "Onboarding email queued",
		applog.FieldPrincipalID, objectID, applog.FieldQueue, s.queues.Signup)
}

// QueueReportEmail enqueues report for delivery to email.
func (s *AccountService) QueueReportEmail(ctx context.Context, email string, report core.Report) error {
	if email == "" {
		return core.ErrInvalidEmail
	}
	body, err := amqp.NewReportEmailMessage(email, report).ToJSON()
	if err != nil {
		return fmt.Errorf("encode report message: %w", err)
	}

	err = s.queue.Send(ctx, s.queues.Report, body)
	s.metrics.QueuePublish(s.queues.Report, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to enqueue report email",
			applog.FieldQueue, s.queues.Report, applog.FieldError, err)
		return fmt.Errorf("%w: %v", core.ErrQueueUnavailable, err)
	}
	s.logger.InfoContext(ctx, "Report email queued",
		applog.FieldQueue, s.queues.Report,
		applog.FieldStartDate, report.StartDate,
		applog.FieldEndDate, report.EndDate)
	return nil
}
