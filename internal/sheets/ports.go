package sheets

import (
	"context"
	"strconv"

	"ledger/internal/core"
)

// Header is the first row of the mirror sheet.
var Header = []string{"Id", "Date", "Type", "Description", "Amount", "Created By", "Linked Expense"}

// Row is one mirrored ledger transaction, keyed by ID.
type Row struct {
	ID            int64
	Date          string
	Type          string
	Description   string
	Amount        string
	CreatedBy     string
	LinkedExpense string
}

// RowFromView builds the sheet row of a transaction.
func RowFromView(v core.TransactionView) Row {
	createdBy := v.CreatedBy
	if createdBy == "" {
		createdBy = "Unknown"
	}
	return Row{
		ID:            v.ID,
		Date:          v.Date.String(),
		Type:          string(v.Type),
		Description:   v.Description,
		Amount:        v.Amount.String(),
		CreatedBy:     createdBy,
		LinkedExpense: v.LinkedExpense,
	}
}

// Values returns the cells of r in Header order.
func (r Row) Values() []any {
	return []any{strconv.FormatInt(r.ID, 10), r.Date, r.Type, r.Description, r.Amount, r.CreatedBy, r.LinkedExpense}
}

// Mirror keeps an external copy of the ledger in step with its events.
// Both operations are idempotent so redelivered events are harmless.
type Mirror interface {
	Upsert(ctx context.Context, row Row) error
	Delete(ctx context.Context, id int64) error
}
