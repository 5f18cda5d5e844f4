package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackitall/internal/core"
	applog "trackitall/internal/log"
)

func TestRenderWelcome(t *testing.T) {
	msg, err := RenderWelcome("ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", msg.To)
	assert.Equal(t, WelcomeSubject, msg.Subject)
	assert.Contains(t, msg.Body, "Welcome to TrackItAll!")
	assert.Contains(t, msg.Body, "Hi ann@example.com,")
}

func TestRenderReport(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	t.Run("with expenses", func(t *testing.T) {
		report := core.Report{
			StartDate:      start,
			EndDate:        end,
			TotalAmount:    core.Money{Cents: 6500},
			ExpenseCount:   3,
			HighestExpense: &core.Expense{Amount: core.Money{Cents: 5000}, Description: "Rent share", Date: start.AddDate(0, 0, 4)},
			LowestExpense:  &core.Expense{Amount: core.Money{Cents: 500}, Date: start.AddDate(0, 0, 9)},
			TopCategory:    &core.Category{ID: 2, Name: "Housing"},
			Successful:     true,
		}
		msg, err := RenderReport("ann@example.com", report)
		require.NoError(t, err)
		assert.Contains(t, msg.Body, "Period: 2024-03-01 to 2024-03-31")
		assert.Contains(t, msg.Body, "Total:          65.00")
		assert.Contains(t, msg.Body, `Highest:        50.00 "Rent share" on 2024-03-05`)
		assert.Contains(t, msg.Body, "Lowest:         5.00 on 2024-03-10")
		assert.Contains(t, msg.Body, "Top category:   Housing")
	})

	t.Run("empty period", func(t *testing.T) {
		msg, err := RenderReport("ann@example.com", core.Report{StartDate: start, EndDate: end, Successful: true})
		require.NoError(t, err)
		assert.Contains(t, msg.Body, "No expenses were recorded")
		assert.NotContains(t, msg.Body, "Total:")
	})

	t.Run("failed report", func(t *testing.T) {
		report := core.FailedReport(start, end, core.ErrStorageUnavailable)
		msg, err := RenderReport("ann@example.com", report)
		require.NoError(t, err)
		assert.Contains(t, msg.Body, "We could not generate this report")
	})
}

func TestSMTPSenderSend(t *testing.T) {
	s := NewSMTPSender(Config{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "no-reply@trackitall.local"}, applog.Discard())

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	msg, err := RenderWelcome("ann@example.com")
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), msg))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "no-reply@trackitall.local", gotFrom)
	assert.Equal(t, []string{"ann@example.com"}, gotTo)
	raw := string(gotMsg)
	assert.True(t, strings.HasPrefix(raw, "From: no-reply@trackitall.local\r\n"))
	assert.Contains(t, raw, "Subject: Welcome to TrackItAll!\r\n")
	assert.Contains(t, raw, "\r\n\r\nWelcome to TrackItAll!\r\n")
}

func TestSMTPSenderErrors(t *testing.T) {
	s := NewSMTPSender(Config{Host: "localhost", Port: 25, From: "a@b"}, applog.Discard())
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("421 service not available")
	}

	err := s.Send(context.Background(), Message{To: "x@y", Subject: "s", Body: "b"})
	assert.ErrorContains(t, err, "421")

	assert.ErrorIs(t, s.Send(context.Background(), Message{Subject: "s"}), ErrNoRecipient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: "x@y"}), context.Canceled)
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"mailbox unavailable", &textproto.Error{Code: 550, Msg: "no such user"}, true},
		{"wrapped rejection", fmt.Errorf("send email via relay: %w", &textproto.Error{Code: 554, Msg: "rejected"}), true},
		{"try later", &textproto.Error{Code: 451, Msg: "try later"}, false},
		{"no recipient", ErrNoRecipient, true},
		{"network", errors.New("dial tcp: connection refused"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}
