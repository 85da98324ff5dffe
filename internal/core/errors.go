package core

import (
	"fmt"
	"sort"
	"strings"
)

// Form field keys used by validation errors.
const (
	FieldType                 = "type"
	FieldDescription          = "description"
	FieldAmount               = "amount"
	FieldDate                 = "date"
	FieldLinkedExpenseID      = "linked_expense_id"
	FieldName                 = "name"
	FieldEmail                = "email"
	FieldPassword             = "password"
	FieldPasswordConfirmation = "password_confirmation"
	FieldRole                 = "role"
)

const (
	MsgAmountNotNumeric = "the amount must be a number."
	MsgAmountTooSmall   = "the amount must be at least 0.01."
)

// MsgLinkMustBeExpense is reported when a revenue links to anything but an expense.
const MsgLinkMustBeExpense = "the linked transaction must be an expense."

// ValidationError maps form fields to the messages shown next to them.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// FieldError builds a validation error carrying a single message.
func FieldError(field, msg string) *ValidationError {
	v := NewValidationError()
	v.Add(field, msg)
	return v
}

func (v *ValidationError) Add(field, msg string) {
	if v.Fields == nil {
		v.Fields = make(map[string][]string)
	}
	v.Fields[field] = append(v.Fields[field], msg)
}

// Merge appends every message of o into v.
func (v *ValidationError) Merge(o *ValidationError) {
	if o == nil {
		return
	}
	for field, msgs := range o.Fields {
		for _, m := range msgs {
			v.Add(field, m)
		}
	}
}

func (v *ValidationError) Has(field string) bool {
	return len(v.Fields[field]) > 0
}

// First returns the first message for field, or "".
func (v *ValidationError) First(field string) string {
	if msgs := v.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (v *ValidationError) Empty() bool {
	return v == nil || len(v.Fields) == 0
}

// Err returns v as an error, or nil when it holds no messages.
func (v *ValidationError) Err() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(v.Fields[k], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// ForbiddenError is returned when the actor lacks the role or ownership an action needs.
type ForbiddenError struct {
	Action string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Action
}

// ConflictError reports a write that lost a race, such as a second setup submission.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason
}
