package http

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackitall/internal/core"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-02-29", want: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{in: " 2024-03-01 ", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2024-03-01T10:30:00+02:00", want: time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{in: "9999-12-31", want: time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)},
		{in: "0000-06-01", wantErr: true},
		{in: "2023-02-29", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidDate)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestParseReportRangeIsInclusive(t *testing.T) {
	start, end, err := parseReportRange(url.Values{"start": {"2024-03-01"}, "end": {"2024-03-31"}})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 999999999, time.UTC), end)

	_, _, err = parseReportRange(url.Values{"start": {"2024-03-01"}})
	assert.ErrorIs(t, err, core.ErrInvalidDate)

	start, end, err = parseReportRange(url.Values{"start": {"2020-01-01"}, "end": {"9999-12-31"}})
	require.NoError(t, err)
	assert.True(t, end.Equal(core.MaxDate))
	assert.True(t, start.Before(end))

	_, _, err = parseReportRange(url.Values{"start": {"0000-01-01"}, "end": {"2024-01-01"}})
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}

func TestExpenseRequestPatch(t *testing.T) {
	desc := "  taxi "
	cat := 2
	p, err := expenseRequest{Description: &desc, CategoryID: &cat}.patch()
	require.NoError(t, err)

	assert.False(t, p.Amount.IsSet())
	assert.False(t, p.Date.IsSet())
	got, ok := p.Description.Get()
	assert.True(t, ok)
	assert.Equal(t, "taxi", got)

	empty := ""
	p, err = expenseRequest{Description: &empty}.patch()
	require.NoError(t, err)
	got, ok = p.Description.Get()
	assert.True(t, ok, "an empty description clears the field")
	assert.Empty(t, got)
}

func TestExpenseRequestNewExpense(t *testing.T) {
	amount := core.Money{Cents: 150}
	cat := 0
	in, err := expenseRequest{Amount: &amount, CategoryID: &cat}.newExpense()
	require.NoError(t, err)
	assert.Equal(t, 0, in.CategoryID, "category 0 is a valid id")

	_, err = expenseRequest{Amount: &amount}.newExpense()
	assert.ErrorIs(t, err, core.ErrInvalidCategory)
	_, err = expenseRequest{CategoryID: &cat}.newExpense()
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}
