package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"ledger/internal/core"
)

// transactionForm keeps the submitted strings so a rejected form comes
// back exactly as typed.
type transactionForm struct {
	Type            string
	Description     string
	Amount          string
	Date            string
	LinkedExpenseID string
}

type userForm struct {
	Name  string
	Email string
	Role  string
}

// parseTransactionForm never fails: unparseable values become zero values
// that the ledger rejects with the right field message.
func parseTransactionForm(r *http.Request) (transactionForm, core.TransactionInput) {
	f := transactionForm{
		Type:            sanitizeInput(r.PostFormValue("type")),
		Description:     sanitizeInput(r.PostFormValue("description")),
		Amount:          sanitizeInput(r.PostFormValue("amount")),
		Date:            sanitizeInput(r.PostFormValue("date")),
		LinkedExpenseID: sanitizeInput(r.PostFormValue("linked_expense_id")),
	}

	in := core.TransactionInput{
		Type:        core.TransactionType(strings.ToLower(f.Type)),
		Description: f.Description,
	}
	m, err := core.ParseMoney(f.Amount)
	switch {
	case err == nil:
		in.Amount = m
	case errors.Is(err, core.ErrAmountNotNumeric):
		in.AmountNotNumeric = true
	}
	if d, err := core.ParseDate(f.Date); err == nil {
		in.Date = d
	}
	if f.LinkedExpenseID != "" {
		id, err := strconv.ParseInt(f.LinkedExpenseID, 10, 64)
		if err != nil {
			id = 0
		}
		in.LinkedExpenseID = &id
	}
	return f, in
}

func transactionFormFrom(t core.Transaction) transactionForm {
	f := transactionForm{
		Type:        string(t.Type),
		Description: t.Description,
		Amount:      t.Amount.String(),
		Date:        t.Date.String(),
	}
	if t.LinkedExpenseID != nil {
		f.LinkedExpenseID = strconv.FormatInt(*t.LinkedExpenseID, 10)
	}
	return f
}

func parseUserForm(r *http.Request) (userForm, core.UserInput) {
	in := core.UserInput{
		Name:                 sanitizeInput(r.PostFormValue("name")),
		Email:                sanitizeInput(r.PostFormValue("email")),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
		Role:                 core.Role(sanitizeInput(r.PostFormValue("role"))),
	}
	return userForm{Name: in.Name, Email: in.Email, Role: string(in.Role)}, in
}

// pageParam reads ?page, defaulting to 1 and capped at core.MaxPage.
func pageParam(r *http.Request) int {
	p, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || p < 1 {
		return 1
	}
	if p > core.MaxPage {
		return core.MaxPage
	}
	return p
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
