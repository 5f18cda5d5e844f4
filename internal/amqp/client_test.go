package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackitall/internal/core"
	applog "trackitall/internal/log"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection closed", errors.New("connection closed"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"other error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isConnectionError(tt.err))
		})
	}
}

func newTestClient() *Client {
	return &Client{
		url:          "amqp://localhost",
		exchangeName: "trackitall",
		logger:       applog.Discard(),
	}
}

func TestCircuitBreaker(t *testing.T) {
	client := newTestClient()

	assert.Equal(t, StateClosed, client.state)
	assert.False(t, client.isCircuitOpen())

	for i := 0; i < maxFailures-1; i++ {
		client.recordFailure()
	}
	assert.Equal(t, StateClosed, client.state, "breaker stays closed below the failure threshold")

	client.recordFailure()
	assert.Equal(t, StateOpen, client.state)
	assert.True(t, client.isCircuitOpen())

	client.lastFailure = time.Now().Add(-openTimeout - time.Second)
	assert.False(t, client.isCircuitOpen(), "breaker allows a trial request after the open timeout")
	assert.Equal(t, StateHalfOpen, client.state)

	client.recordFailure()
	assert.Equal(t, StateOpen, client.state, "a failed trial request reopens the breaker")

	client.recordSuccess()
	assert.Equal(t, StateClosed, client.state)
	assert.Equal(t, int64(0), client.failureCount)
}

func TestSend_CircuitOpen(t *testing.T) {
	client := newTestClient()
	client.state = StateOpen
	client.lastFailure = time.Now()

	err := client.Send(context.Background(), "user-signups", []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, strings.Contains(err.Error(), "circuit breaker is open"))
}

func TestSend_CancelledContext(t *testing.T) {
	client := newTestClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Send(ctx, "user-signups", []byte(`{}`))
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingAck struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (r *recordingAck) Ack(bool) error { r.acked = true; return nil }
func (r *recordingAck) Nack(_ bool, requeue bool) error {
	r.nacked = true
	r.requeued = requeue
	return nil
}

func TestHandleDelivery(t *testing.T) {
	tests := []struct {
		name       string
		handlerErr error
		previous   int64
		acked      bool
		requeued   bool
	}{
		{"success acks", nil, 0, true, false},
		{"transient failure requeues", errors.New("smtp down"), 0, false, true},
		{"transient failure below the cap requeues", errors.New("smtp down"), MaxDeliveryAttempts - 2, false, true},
		{"transient failure at the cap rejects", errors.New("smtp down"), MaxDeliveryAttempts - 1, false, false},
		{"permanent failure rejects", Permanent(errors.New("bad json")), 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &recordingAck{}
			handleDelivery(context.Background(), applog.Discard(), "q", []byte("x"), tt.previous, ack,
				func(context.Context, []byte) error { return tt.handlerErr })

			assert.Equal(t, tt.acked, ack.acked)
			assert.Equal(t, !tt.acked, ack.nacked)
			assert.Equal(t, tt.requeued, ack.requeued)
		})
	}
}

func TestDeliveryCount(t *testing.T) {
	assert.Equal(t, int64(0), deliveryCount(nil))
	assert.Equal(t, int64(3), deliveryCount(amqp091.Table{"x-delivery-count": int64(3)}))
	assert.Equal(t, int64(2), deliveryCount(amqp091.Table{"x-delivery-count": int32(2)}))
	assert.Equal(t, int64(0), deliveryCount(amqp091.Table{"x-delivery-count": "7"}))
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("decode")
	err := fmt.Errorf("handler: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}

func TestSignupMessage(t *testing.T) {
	msg := NewSignupMessage("oid-1", "ann@example.com")
	data, err := msg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"oid":"oid-1"`)

	decoded, err := SignupMessageFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", decoded.Email)

	_, err = SignupMessageFromJSON([]byte(`{"oid":"x"}`))
	assert.Error(t, err, "email is required")

	_, err = SignupMessageFromJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestReportEmailMessage(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	report := core.Report{
		StartDate:    start,
		EndDate:      end,
		TotalAmount:  core.Money{Cents: 6500},
		ExpenseCount: 3,
		TopCategory:  &core.Category{ID: 2, Name: "Category 2"},
		Successful:   true,
	}

	data, err := NewReportEmailMessage("bob@example.com", report).ToJSON()
	require.NoError(t, err)

	decoded, err := ReportEmailMessageFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, int64(6500), decoded.Report.TotalAmount.Cents)
	assert.Equal(t, 3, decoded.Report.ExpenseCount)
	assert.Equal(t, 2, decoded.Report.TopCategory.ID)
	assert.True(t, decoded.Report.StartDate.Equal(start))
}
