package core

import "time"

// Report aggregates an owner's expenses over an inclusive date range.
// Extrema and TopCategory are nil when no expense falls in the range.
type Report struct {
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	TotalAmount    Money     `json:"totalAmount"`
	ExpenseCount   int       `json:"expenseCount"`
	HighestExpense *Expense  `json:"highestExpense"`
	LowestExpense  *Expense  `json:"lowestExpense"`
	TopCategory    *Category `json:"topCategory"`
	Successful     bool      `json:"successful"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
}

// FailedReport is returned when the expenses could not be loaded.
func FailedReport(start, end time.Time, err error) Report {
	return Report{
		StartDate:    start,
		EndDate:      end,
		Successful:   false,
		ErrorMessage: UserMessage(err),
	}
}

// BuildReport aggregates expenses, which must already be filtered to the
// range and enriched with their category.
//
// Ties are broken deterministically: equal amounts prefer the lowest expense
// id, equal category sums prefer the lowest category id.
func BuildReport(start, end time.Time, expenses []Expense, categories []Category) Report {
	r := Report{StartDate: start, EndDate: end, Successful: true, ExpenseCount: len(expenses)}
	if len(expenses) == 0 {
		return r
	}

	sums := make(map[int]int64)
	var highest, lowest *Expense
	for i := range expenses {
		e := &expenses[i]
		r.TotalAmount = r.TotalAmount.Add(e.Amount)
		sums[e.CategoryID] += e.Amount.Cents

		if highest == nil || e.Amount.Cents > highest.Amount.Cents ||
			(e.Amount.Cents == highest.Amount.Cents && e.ID < highest.ID) {
			highest = e
		}
		if lowest == nil || e.Amount.Cents < lowest.Amount.Cents ||
			(e.Amount.Cents == lowest.Amount.Cents && e.ID < lowest.ID) {
			lowest = e
		}
	}

	h, l := *highest, *lowest
	r.HighestExpense, r.LowestExpense = &h, &l

	topID, topSum, found := 0, int64(0), false
	for id, sum := range sums {
		if !found || sum > topSum || (sum == topSum && id < topID) {
			topID, topSum, found = id, sum, true
		}
	}
	if c := FindCategory(categories, topID); c != nil {
		r.TopCategory = c
	} else {
		// Category list is cold; report the id alone.
		r.TopCategory = &Category{ID: topID}
	}
	return r
}
