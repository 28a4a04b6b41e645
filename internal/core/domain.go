package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// DateLayout is the day-month-year layout used for ledger dates.
const DateLayout = "02-01-2006"

// Ledger column names, in file order.
const (
	ColumnDate        = "Date"
	ColumnDescription = "Description"
	ColumnAmount      = "Amount"
	ColumnCategory    = "Category"
)

// Header is the header row every ledger carries.
var Header = []string{ColumnDate, ColumnDescription, ColumnAmount, ColumnCategory}

type (
	// Date is a calendar date without time of day.
	Date struct {
		civil.Date
	}

	// Transaction is a single recorded expense. It is created once per
	// request, persisted and never mutated afterwards.
	Transaction struct {
		Date        Date
		Description string
		Amount      decimal.Decimal
		Category    string
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrMissingAmount    = errors.New("missing amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Date: civil.Date{Year: year, Month: time.Month(month), Day: day}}
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	return Date{Date: civil.DateOf(t)}
}

// Today returns the current date in loc. A nil loc means local time.
func Today(loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(time.Now().In(loc))
}

// ParseDate parses a DD-MM-YYYY date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// String formats the date as DD-MM-YYYY.
func (d Date) String() string {
	return d.In(time.UTC).Format(DateLayout)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Date == civil.Date{}
}

func (d Date) Validate() error {
	if d.IsZero() || !d.IsValid() {
		return ErrInvalidDate
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if !IsFiniteAmount(t.Amount) {
		return fmt.Errorf("%w: %s overflows", ErrInvalidAmount, t.Amount)
	}
	return nil
}

// Row returns the transaction as ledger cells in Header order.
func (t Transaction) Row() []string {
	return []string{t.Date.String(), t.Description, t.Amount.String(), t.Category}
}
