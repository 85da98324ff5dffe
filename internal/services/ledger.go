package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// EventPublisher delivers ledger events to the outside world.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, event core.TransactionEvent) error
}

// LedgerService orchestrates transaction writes: policy, validation,
// persistence and event publishing, in that order.
type LedgerService struct {
	store  storage.TransactionStore
	events EventPublisher
	logger *log.Logger
	now    func() time.Time
}

// NewLedgerService wires the service. events may be nil when no broker is configured.
func NewLedgerService(store storage.TransactionStore, events EventPublisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LedgerService{
		store:  store,
		events: events,
		logger: logger.WithComponent(log.ComponentLedger),
		now:    time.Now,
	}
}

// Create records a new transaction owned by actor.
func (s *LedgerService) Create(ctx context.Context, actor core.Actor, in core.TransactionInput) (core.Transaction, error) {
	if err := auth.Authorize(actor, auth.ActionTransactionCreate, 0); err != nil {
		return core.Transaction{}, err
	}
	if err := s.validate(ctx, &in, 0); err != nil {
		return core.Transaction{}, err
	}

	t := core.Transaction{UserID: actor.ID}
	in.Apply(&t)
	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.logWrite(ctx, log.OpCreate, actor, created)
	s.publish(ctx, core.EventCreated, created.ID, nil)
	return created, nil
}

// Update replaces the writable fields of transaction id. Only the owner may update.
func (s *LedgerService) Update(ctx context.Context, actor core.Actor, id int64, in core.TransactionInput) (core.Transaction, error) {
	current, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := auth.Authorize(actor, auth.ActionTransactionUpdate, current.UserID); err != nil {
		return core.Transaction{}, err
	}
	if err := s.validate(ctx, &in, id); err != nil {
		return core.Transaction{}, err
	}

	in.Apply(&current)
	updated, err := s.store.UpdateTransaction(ctx, current)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", id, err)
	}

	s.logWrite(ctx, log.OpUpdate, actor, updated)
	s.publish(ctx, core.EventUpdated, updated.ID, nil)
	return updated, nil
}

// Delete removes transaction id and clears the links of revenues pointing
// to it. Only the owner may delete. The deleted row is returned so callers
// can redirect by its type.
func (s *LedgerService) Delete(ctx context.Context, actor core.Actor, id int64) (core.Transaction, error) {
	view, err := s.store.GetTransactionView(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := auth.Authorize(actor, auth.ActionTransactionDelete, view.UserID); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction %d: %w", id, err)
	}

	s.logWrite(ctx, log.OpDelete, actor, view.Transaction)
	s.publish(ctx, core.EventDeleted, id, &view)
	return view.Transaction, nil
}

// Get returns one transaction with its display names.
func (s *LedgerService) Get(ctx context.Context, actor core.Actor, id int64) (core.TransactionView, error) {
	if err := auth.Authorize(actor, auth.ActionTransactionView, 0); err != nil {
		return core.TransactionView{}, err
	}
	return s.store.GetTransactionView(ctx, id)
}

// List returns one page of the shared ledger, optionally restricted to a type.
func (s *LedgerService) List(ctx context.Context, actor core.Actor, typ core.TransactionType, page int) (core.Page[core.TransactionView], error) {
	if err := auth.Authorize(actor, auth.ActionTransactionView, 0); err != nil {
		return core.Page[core.TransactionView]{}, err
	}
	return s.store.ListTransactions(ctx, storage.TransactionFilter{Type: typ}, page, storage.DefaultPageSize)
}

// Rows returns every transaction of typ in listing order, for exports.
func (s *LedgerService) Rows(ctx context.Context, actor core.Actor, typ core.TransactionType) ([]core.TransactionView, error) {
	if err := auth.Authorize(actor, auth.ActionTransactionView, 0); err != nil {
		return nil, err
	}
	return s.store.AllTransactions(ctx, storage.TransactionFilter{Type: typ})
}

// LinkableExpenses lists the expenses a revenue can link to, excluding
// excludeID when editing.
func (s *LedgerService) LinkableExpenses(ctx context.Context, actor core.Actor, excludeID int64) ([]core.TransactionView, error) {
	if err := auth.Authorize(actor, auth.ActionTransactionView, 0); err != nil {
		return nil, err
	}
	return s.store.AllTransactions(ctx, storage.TransactionFilter{Type: core.Expense, ExcludeID: excludeID})
}

// validate normalizes in and runs the field rules and the link rules,
// reporting every field problem at once.
func (s *LedgerService) validate(ctx context.Context, in *core.TransactionInput, selfID int64) error {
	in.Normalize()
	verr := core.NewValidationError()
	if err := in.Validate(); err != nil {
		var fields *core.ValidationError
		if !errors.As(err, &fields) {
			return err
		}
		verr.Merge(fields)
	}
	if err := ValidateLink(ctx, s.store, *in, selfID); err != nil {
		var fields *core.ValidationError
		if !errors.As(err, &fields) {
			return err
		}
		verr.Merge(fields)
	}
	return verr.Err()
}

// publish emits an event after a committed write. Failures are logged and
// never undo the write.
func (s *LedgerService) publish(ctx context.Context, typ core.EventType, id int64, view *core.TransactionView) {
	if s.events == nil {
		return
	}
	event := core.TransactionEvent{Type: typ, OccurredAt: s.now().UTC()}
	if view != nil {
		event.Transaction = *view
	} else {
		v, err := s.store.GetTransactionView(ctx, id)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to load transaction for event",
				log.NewFields().WithError(err, log.ErrorTypeDatabase).WithOperation(log.OpPublish).ToSlice()...)
			return
		}
		event.Transaction = v
	}

	if err := s.events.PublishTransactionEvent(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			append(log.NewFields().WithError(err, log.ErrorTypeNetwork).WithOperation(log.OpPublish).ToSlice(),
				log.FieldTransactionID, id, log.FieldEvent, string(typ))...)
	}
}

func (s *LedgerService) logWrite(ctx context.Context, op string, actor core.Actor, t core.Transaction) {
	fields := log.NewFields().
		WithOperation(op).
		WithUser(actor.ID, string(actor.Role)).
		WithTransaction(t.ID, string(t.Type), t.Amount.Cents, t.Date.String())
	if t.LinkedExpenseID != nil {
		fields[log.FieldLinkedExpense] = *t.LinkedExpenseID
	}
	s.logger.InfoContext(ctx, "Transaction "+op+"d", fields.ToSlice()...)
}
