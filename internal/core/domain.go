package core

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Revenue TransactionType = "revenue"
	Expense TransactionType = "expense"
)

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// DateLayout is the calendar date wire format used by forms, storage and exports.
const DateLayout = "2006-01-02"

// MaxDescriptionLength bounds a transaction description, in characters.
const MaxDescriptionLength = 255

type (
	TransactionType string

	Role string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is one row of the shared ledger. LinkedExpenseID is only
	// ever set on revenue rows and points to the expense it offsets.
	Transaction struct {
		ID              int64
		UserID          int64
		Type            TransactionType
		Description     string
		Amount          Money
		Date            Date
		LinkedExpenseID *int64
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	// TransactionView is a transaction joined with the names the UI and
	// exports display next to it.
	TransactionView struct {
		Transaction
		CreatedBy     string
		LinkedExpense string
	}

	TransactionInput struct {
		Type            TransactionType
		Description     string
		Amount          Money
		Date            Date
		LinkedExpenseID *int64

		// AmountNotNumeric is set by form parsing when the submitted amount
		// was not a number, so Validate can say so instead of citing the minimum.
		AmountNotNumeric bool
	}

	User struct {
		ID           int64
		Name         string
		Email        string
		PasswordHash string
		Role         Role
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// Actor is the authenticated caller of an operation.
	Actor struct {
		ID   int64
		Name string
		Role Role
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrInvalidDate   = errors.New("invalid date")

	// ErrAmountNotNumeric is an ErrInvalidAmount for input that is not a number at all.
	ErrAmountNotNumeric = fmt.Errorf("%w: not a number", ErrInvalidAmount)
)

func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case Revenue, Expense:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

func (t TransactionType) Valid() bool {
	return t == Revenue || t == Expense
}

// Plural returns the label used in routes and export file names.
func (t TransactionType) Plural() string {
	if t == Expense {
		return "expenses"
	}
	return "revenue"
}

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleUser:
		return r, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

func (u User) Actor() Actor {
	return Actor{ID: u.ID, Name: u.Name, Role: u.Role}
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddDays returns the calendar date n days after d.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

// Scan implements sql.Scanner. SQLite hands dates back as text, postgres as time.Time.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("scan date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Format(DateLayout), nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Normalize applies the write-time rules that never reject input: trimming
// and clearing the link on anything that is not revenue.
func (in *TransactionInput) Normalize() {
	in.Description = strings.TrimSpace(in.Description)
	if in.Type != Revenue {
		in.LinkedExpenseID = nil
	}
}

// Validate checks the field rules of a transaction write. The link target
// is checked separately because it needs the store.
func (in TransactionInput) Validate() error {
	verr := NewValidationError()
	if !in.Type.Valid() {
		verr.Add(FieldType, "the selected type is invalid.")
	}
	switch {
	case in.Description == "":
		verr.Add(FieldDescription, "the description field is required.")
	case utf8.RuneCountInString(in.Description) > MaxDescriptionLength:
		verr.Add(FieldDescription, fmt.Sprintf("the description may not be greater than %d characters.", MaxDescriptionLength))
	}
	if in.AmountNotNumeric {
		verr.Add(FieldAmount, MsgAmountNotNumeric)
	} else if err := in.Amount.Validate(); err != nil {
		verr.Add(FieldAmount, MsgAmountTooSmall)
	}
	if err := in.Date.Validate(); err != nil {
		verr.Add(FieldDate, "the date field is required.")
	}
	return verr.Err()
}

// Apply copies the input onto t, leaving identity and ownership untouched.
func (in TransactionInput) Apply(t *Transaction) {
	t.Type = in.Type
	t.Description = in.Description
	t.Amount = in.Amount
	t.Date = in.Date
	t.LinkedExpenseID = in.LinkedExpenseID
}

// Input returns the writable fields of t.
func (t Transaction) Input() TransactionInput {
	return TransactionInput{
		Type:            t.Type,
		Description:     t.Description,
		Amount:          t.Amount,
		Date:            t.Date,
		LinkedExpenseID: t.LinkedExpenseID,
	}
}

func (t Transaction) IsLinked() bool {
	return t.LinkedExpenseID != nil
}
