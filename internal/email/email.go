// Package email renders and sends the onboarding and report emails.
package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"text/template"
	"time"

	"trackitall/internal/core"
	applog "trackitall/internal/log"
)

// Email kinds, also used as metric labels.
const (
	KindWelcome = "welcome"
	KindReport  = "report"
)

const (
	WelcomeSubject = "Welcome to TrackItAll!"
	ReportSubject  = "Your TrackItAll expense report"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("email").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.Format("2006-01-02") },
	"describe": func(e core.Expense) string {
		parts := []string{}
		if e.Description != "" {
			parts = append(parts, strconv.Quote(e.Description))
		}
		parts = append(parts, "on "+e.Date.Format("2006-01-02"))
		return strings.Join(parts, " ")
	},
	"categoryName": func(c core.Category) string {
		if c.Name == "" {
			return fmt.Sprintf("#%d", c.ID)
		}
		return c.Name
	},
}).ParseFS(templateFS, "templates/*.tmpl"))

// Message is a rendered plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// RenderWelcome renders the onboarding email.
func RenderWelcome(to string) (Message, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "welcome.txt.tmpl", struct{ Email string }{to}); err != nil {
		return Message{}, fmt.Errorf("render welcome email: %w", err)
	}
	return Message{To: to, Subject: WelcomeSubject, Body: buf.String()}, nil
}

// RenderReport renders the expense report email.
func RenderReport(to string, report core.Report) (Message, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "report.txt.tmpl", struct{ Report core.Report }{report}); err != nil {
		return Message{}, fmt.Errorf("render report email: %w", err)
	}
	return Message{To: to, Subject: ReportSubject, Body: buf.String()}, nil
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds the SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	config   Config
	sendMail sendMailFunc
	logger   *applog.Logger
}

func NewSMTPSender(cfg Config, logger *applog.Logger) *SMTPSender {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &SMTPSender{
		config:   cfg,
		sendMail: smtp.SendMail,
		logger:   logger.WithComponent(applog.ComponentEmail),
	}
}

// ErrNoRecipient is returned for a message without a To address.
var ErrNoRecipient = errors.New("email has no recipient")

// IsPermanent reports whether err means the message can never be delivered
// as is: a missing recipient or a 5xx reply from the relay.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrNoRecipient) {
		return true
	}
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500
}

// Send delivers msg. Cancellation is only checked before dialing since
// net/smtp has no context support.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return ErrNoRecipient
	}

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	if err := s.sendMail(addr, auth, s.config.From, []string{msg.To}, s.compose(msg)); err != nil {
		return fmt.Errorf("send email via %s: %w", addr, err)
	}
	s.logger.InfoContext(ctx, "Email sent", applog.FieldEmail, msg.To, "subject", msg.Subject)
	return nil
}

func (s *SMTPSender) compose(msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.Bytes()
}
