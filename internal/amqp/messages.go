package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"trackitall/internal/core"
)

// SignupMessage asks the worker to send the onboarding email.
type SignupMessage struct {
	ObjectID  string    `json:"oid"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

// ReportEmailMessage carries a generated report to email to its owner.
type ReportEmailMessage struct {
	Email     string      `json:"email"`
	Report    core.Report `json:"report"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewSignupMessage(oid, email string) *SignupMessage {
	return &SignupMessage{ObjectID: oid, Email: email, Timestamp: time.Now()}
}

func NewReportEmailMessage(email string, report core.Report) *ReportEmailMessage {
	return &ReportEmailMessage{Email: email, Report: report, Timestamp: time.Now()}
}

// ToJSON converts the message to JSON bytes
func (m *SignupMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ToJSON converts the message to JSON bytes
func (m *ReportEmailMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

var errMissingEmail = errors.New("message has no email address")

// SignupMessageFromJSON decodes and validates a signup message.
func SignupMessageFromJSON(data []byte) (*SignupMessage, error) {
	var msg SignupMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Email == "" {
		return nil, errMissingEmail
	}
	return &msg, nil
}

// ReportEmailMessageFromJSON decodes and validates a report email message.
func ReportEmailMessageFromJSON(data []byte) (*ReportEmailMessage, error) {
	var msg ReportEmailMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Email == "" {
		return nil, errMissingEmail
	}
	return &msg, nil
}
