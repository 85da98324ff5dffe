package services

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// MsgLinkNotFound is reported when the link points to no transaction at all.
const MsgLinkNotFound = "the selected linked expense id is invalid."

// ValidateLink checks the link of a normalized write. selfID is the row
// being updated, or zero on create. Field problems come back as a
// *core.ValidationError keyed on linked_expense_id; store failures are
// returned as is.
func ValidateLink(ctx context.Context, store storage.TransactionStore, in core.TransactionInput, selfID int64) error {
	if in.Type != core.Revenue || in.LinkedExpenseID == nil {
		return nil
	}
	linkID := *in.LinkedExpenseID
	if linkID <= 0 {
		return core.FieldError(core.FieldLinkedExpenseID, MsgLinkNotFound)
	}
	if selfID != 0 && linkID == selfID {
		return core.FieldError(core.FieldLinkedExpenseID, core.MsgLinkMustBeExpense)
	}

	target, err := store.GetTransaction(ctx, linkID)
	if err != nil {
		var nf *core.NotFoundError
		if errors.As(err, &nf) {
			return core.FieldError(core.FieldLinkedExpenseID, MsgLinkNotFound)
		}
		return fmt.Errorf("load linked transaction: %w", err)
	}
	if target.Type != core.Expense {
		return core.FieldError(core.FieldLinkedExpenseID, core.MsgLinkMustBeExpense)
	}
	return nil
}
