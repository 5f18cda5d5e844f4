package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

const (
	// MaxDescriptionLength bounds free-text descriptions.
	MaxDescriptionLength = 200

	// ReceiptBlobPrefix prefixes every receipt blob name.
	ReceiptBlobPrefix = "receipt-"
)

// Expense dates must fall within years 1 through 9999.
var (
	MinDate = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxDate = time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC)
)

// ValidateDate rejects zero dates and dates outside [MinDate, MaxDate].
func ValidateDate(t time.Time) error {
	if t.IsZero() || t.Before(MinDate) || t.After(MaxDate) {
		return ErrInvalidDate
	}
	return nil
}

type (
	Money struct {
		Cents int64
	}

	// Category is a read-only lookup entry loaded from the category store.
	Category struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	// Expense is owned by exactly one user. OwnerID is the partition key of
	// the document store and never changes after creation.
	Expense struct {
		ID          string    `json:"id"`
		OwnerID     string    `json:"ownerId"`
		Date        time.Time `json:"date"`
		Amount      Money     `json:"amount"`
		Description string    `json:"description"`
		CategoryID  int       `json:"categoryId"`
		// Category is resolved from the cached category list at read time.
		Category  *Category `json:"category,omitempty"`
		ReceiptID *string   `json:"receiptId,omitempty"`
	}

	// NewExpense carries the caller-supplied fields of an expense to create.
	NewExpense struct {
		Amount      Money
		Description string
		CategoryID  int
	}

	// ExpensePatch lists the fields of a partial update. Unset fields leave
	// the stored value untouched; a set Description of "" clears it.
	ExpensePatch struct {
		Amount      Optional[Money]
		Description Optional[string]
		CategoryID  Optional[int]
		Date        Optional[time.Time]
	}

	// Optional distinguishes "not supplied" from a supplied zero value.
	Optional[T any] struct {
		value T
		set   bool
	}
)

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an unset Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it was supplied.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether a value was supplied.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// NewID returns a new lexicographically sortable identifier.
func NewID() string {
	return ulid.Make().String()
}

// ReceiptBlobName composes the blob name of a receipt: receipt-{id}{ext}.
func ReceiptBlobName(id, ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ReceiptBlobPrefix + id + strings.ToLower(ext)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func validateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return ErrInvalidDescription
	}
	return nil
}

func (n NewExpense) Validate() error {
	if err := n.Amount.Validate(); err != nil {
		return err
	}
	return validateDescription(n.Description)
}

// Validate checks the supplied fields only.
func (p ExpensePatch) Validate() error {
	if amount, ok := p.Amount.Get(); ok {
		if err := amount.Validate(); err != nil {
			return err
		}
	}
	if desc, ok := p.Description.Get(); ok {
		if err := validateDescription(desc); err != nil {
			return err
		}
	}
	if date, ok := p.Date.Get(); ok {
		if err := ValidateDate(date); err != nil {
			return err
		}
	}
	return nil
}

// IsEmpty reports whether the patch would change nothing.
func (p ExpensePatch) IsEmpty() bool {
	return !p.Amount.IsSet() && !p.Description.IsSet() && !p.CategoryID.IsSet() && !p.Date.IsSet()
}

// Apply merges the supplied fields into e.
func (p ExpensePatch) Apply(e *Expense) {
	if v, ok := p.Amount.Get(); ok {
		e.Amount = v
	}
	if v, ok := p.Description.Get(); ok {
		e.Description = v
	}
	if v, ok := p.CategoryID.Get(); ok {
		e.CategoryID = v
	}
	if v, ok := p.Date.Get(); ok {
		e.Date = v
	}
}

// ResolveCategory sets e.Category from the given list, or nil when the
// category is not (yet) known.
func (e *Expense) ResolveCategory(categories []Category) {
	e.Category = FindCategory(categories, e.CategoryID)
}

// FindCategory returns a copy of the category with the given id, or nil.
func FindCategory(categories []Category, id int) *Category {
	for _, c := range categories {
		if c.ID == id {
			c := c
			return &c
		}
	}
	return nil
}
