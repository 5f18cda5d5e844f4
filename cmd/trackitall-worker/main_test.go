package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackitall/internal/amqp"
	"trackitall/internal/email"
	applog "trackitall/internal/log"
	"trackitall/internal/worker"
)

type flakyConsumer struct {
	calls     atomic.Int32
	failUntil int32
}

func (c *flakyConsumer) Consume(ctx context.Context, _ string, _ amqp.Handler) error {
	if c.calls.Add(1) <= c.failUntil {
		return errors.New("channel closed")
	}
	<-ctx.Done()
	return ctx.Err()
}

type nopSender struct{}

func (nopSender) Send(context.Context, email.Message) error { return nil }

func TestConsumeWithRetryBacksOff(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	// Each Run starts two consumers; the first Run sees both fail.
	consumer := &flakyConsumer{failUntil: 2}
	w := worker.NewEmailWorker(nopSender{}, worker.Queues{Signup: "signup", Report: "report"}, nil, applog.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumeWithRetry(ctx, w, consumer, clk, applog.Discard()) }()

	require.NoError(t, clk.WaitAdvance(minBackoff, 5*time.Second, 1))
	assert.Eventually(t, func() bool { return consumer.calls.Load() >= 4 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop did not stop")
	}
}

func TestConsumeWithRetryStopsWhileWaiting(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	consumer := &flakyConsumer{failUntil: 1 << 20}
	w := worker.NewEmailWorker(nopSender{}, worker.Queues{Signup: "signup", Report: "report"}, nil, applog.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumeWithRetry(ctx, w, consumer, clk, applog.Discard()) }()

	require.NoError(t, clk.WaitAdvance(0, 5*time.Second, 1))
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop did not stop")
	}
}
