package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trackitall/internal/core"
)

const (
	dateLayout       = "2006-01-02"
	maxJSONBodyBytes = 64 << 10
)

// expenseRequest is the body of POST and PATCH /expenses. Absent fields
// decode to nil.
type expenseRequest struct {
	Amount      *core.Money `json:"amount"`
	Description *string     `json:"description"`
	CategoryID  *int        `json:"categoryId"`
	Date        *string     `json:"date"`
}

func decodeExpenseRequest(w http.ResponseWriter, r *http.Request) (expenseRequest, error) {
	var req expenseRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return req, errTooLarge
		case errors.Is(err, core.ErrInvalidAmount):
			return req, core.ErrInvalidAmount
		default:
			return req, fmt.Errorf("%w: %v", errMalformedBody, err)
		}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return req, fmt.Errorf("%w: trailing data", errMalformedBody)
	}
	return req, nil
}

// newExpense requires amount and category; the date is assigned on creation.
func (req expenseRequest) newExpense() (core.NewExpense, error) {
	if req.Amount == nil {
		return core.NewExpense{}, core.ErrInvalidAmount
	}
	if req.CategoryID == nil {
		return core.NewExpense{}, core.ErrInvalidCategory
	}
	in := core.NewExpense{Amount: *req.Amount, CategoryID: *req.CategoryID}
	if req.Description != nil {
		in.Description = strings.TrimSpace(*req.Description)
	}
	return in, nil
}

func (req expenseRequest) patch() (core.ExpensePatch, error) {
	var p core.ExpensePatch
	if req.Amount != nil {
		p.Amount = core.Some(*req.Amount)
	}
	if req.Description != nil {
		p.Description = core.Some(strings.TrimSpace(*req.Description))
	}
	if req.CategoryID != nil {
		p.CategoryID = core.Some(*req.CategoryID)
	}
	if req.Date != nil {
		d, err := parseDate(*req.Date)
		if err != nil {
			return p, err
		}
		p.Date = core.Some(d)
	}
	return p, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return time.Time{}, core.ErrInvalidDate
		}
		t = t.UTC()
	}
	if err := core.ValidateDate(t); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// parseReportRange reads start and end as calendar dates. The range is
// inclusive, so end extends to the last instant of its day.
func parseReportRange(q url.Values) (start, end time.Time, err error) {
	if start, err = time.Parse(dateLayout, strings.TrimSpace(q.Get("start"))); err != nil {
		return start, end, core.ErrInvalidDate
	}
	if end, err = time.Parse(dateLayout, strings.TrimSpace(q.Get("end"))); err != nil {
		return start, end, core.ErrInvalidDate
	}
	end = end.Add(24*time.Hour - time.Nanosecond)
	if err = core.ValidateDate(start); err != nil {
		return start, end, err
	}
	if err = core.ValidateDate(end); err != nil {
		return start, end, err
	}
	return start, end, nil
}
