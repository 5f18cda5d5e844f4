package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackitall/internal/amqp"
	"trackitall/internal/core"
	applog "trackitall/internal/log"
)

var testQueues = AccountQueues{Signup: "user-signups", Report: "report-to-send-in-email"}

func TestQueueOnboardingEmail(t *testing.T) {
	ctx := context.Background()
	queue := &fakeQueue{}
	onboarding := newFakeOnboarding()
	svc := NewAccountService(onboarding, queue, testQueues, nil, applog.Discard())

	svc.QueueOnboardingEmail(ctx, "oid-1", "ann@example.com")
	require.Len(t, queue.sent, 1)
	assert.Equal(t, "user-signups", queue.sent[0].queue)

	msg, err := amqp.SignupMessageFromJSON(queue.sent[0].body)
	require.NoError(t, err)
	assert.Equal(t, "oid-1", msg.ObjectID)
	assert.Equal(t, "ann@example.com", msg.Email)
	assert.Equal(t, "ann@example.com", onboarding.users["oid-1"])

	svc.QueueOnboardingEmail(ctx, "oid-1", "ann@example.com")
	assert.Len(t, queue.sent, 1, "already onboarded users are skipped")
}

func TestQueueOnboardingEmailSwallowsFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("queue down", func(t *testing.T) {
		queue := &fakeQueue{failWith: errors.New("circuit breaker is open")}
		onboarding := newFakeOnboarding()
		svc := NewAccountService(onboarding, queue, testQueues, nil, applog.Discard())

		assert.NotPanics(t, func() { svc.QueueOnboardingEmail(ctx, "oid-2", "bob@example.com") })
		assert.Empty(t, onboarding.users, "user stays eligible for a later attempt")
	})

	t.Run("flag store down", func(t *testing.T) {
		queue := &fakeQueue{}
		onboarding := newFakeOnboarding()
		onboarding.readErr = errors.New("database is locked")
		svc := NewAccountService(onboarding, queue, testQueues, nil, applog.Discard())

		svc.QueueOnboardingEmail(ctx, "oid-3", "cy@example.com")
		assert.Empty(t, queue.sent)
	})

	t.Run("missing email", func(t *testing.T) {
		queue := &fakeQueue{}
		svc := NewAccountService(newFakeOnboarding(), queue, testQueues, nil, applog.Discard())
		svc.QueueOnboardingEmail(ctx, "oid-4", "")
		assert.Empty(t, queue.sent)
	})
}

func TestQueueReportEmail(t *testing.T) {
	ctx := context.Background()
	queue := &fakeQueue{}
	svc := NewAccountService(newFakeOnboarding(), queue, testQueues, nil, applog.Discard())
	report := core.Report{
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		TotalAmount: core.Money{Cents: 1234},
		Successful:  true,
	}

	require.NoError(t, svc.QueueReportEmail(ctx, "ann@example.com", report))
	require.Len(t, queue.sent, 1)
	assert.Equal(t, "report-to-send-in-email", queue.sent[0].queue)
	msg, err := amqp.ReportEmailMessageFromJSON(queue.sent[0].body)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), msg.Report.TotalAmount.Cents)

	assert.ErrorIs(t, svc.QueueReportEmail(ctx, "", report), core.ErrInvalidEmail)

	queue.failWith = errors.New("connection refused")
	assert.ErrorIs(t, svc.QueueReportEmail(ctx, "ann@example.com", report), core.ErrQueueUnavailable)
}
