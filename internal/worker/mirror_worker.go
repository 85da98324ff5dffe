package worker

import (
	"context"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/sheets"
	"ledger/internal/storage"
)

// Consumer delivers queued ledger events to a handler until ctx ends.
type Consumer interface {
	Consume(ctx context.Context, prefetch int, handler amqp.Handler) error
}

// MirrorWorker applies ledger events to a sheet mirror.
type MirrorWorker struct {
	mirror sheets.Mirror
	logger *log.Logger
}

func NewMirrorWorker(mirror sheets.Mirror, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &MirrorWorker{
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// Run consumes events until ctx is cancelled.
func (w *MirrorWorker) Run(ctx context.Context, consumer Consumer, prefetch int) error {
	w.logger.InfoContext(ctx, "Mirror worker started", log.FieldOperation, log.OpStartup)
	err := consumer.Consume(ctx, prefetch, w.HandleEvent)
	if ctx.Err() != nil {
		w.logger.InfoContext(ctx, "Mirror worker stopped", log.FieldOperation, log.OpShutdown)
		return nil
	}
	return err
}

// HandleEvent upserts the row of a created or updated transaction and
// clears the row of a deleted one. Payloads that cannot be converted are
// permanent failures; mirror errors are left retryable.
func (w *MirrorWorker) HandleEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	event, err := msg.ToEvent()
	if err != nil {
		return fmt.Errorf("%w: %v", amqp.ErrPermanent, err)
	}

	fields := log.NewFields().
		WithOperation(log.OpMirror).
		WithTransaction(event.Transaction.ID, string(event.Transaction.Type), event.Transaction.Amount.Cents, event.Transaction.Date.String())
	fields[log.FieldEvent] = string(event.Type)

	switch event.Type {
	case core.EventCreated, core.EventUpdated:
		if err := w.mirror.Upsert(ctx, sheets.RowFromView(event.Transaction)); err != nil {
			w.logger.ErrorContext(ctx, "Failed to mirror transaction",
				fields.WithError(err, log.ErrorTypeNetwork).ToSlice()...)
			return fmt.Errorf("upsert row %d: %w", event.Transaction.ID, err)
		}
	case core.EventDeleted:
		if err := w.mirror.Delete(ctx, event.Transaction.ID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to remove mirrored transaction",
				fields.WithError(err, log.ErrorTypeNetwork).ToSlice()...)
			return fmt.Errorf("delete row %d: %w", event.Transaction.ID, err)
		}
	default:
		return fmt.Errorf("%w: unknown event %q", amqp.ErrPermanent, event.Type)
	}

	w.logger.InfoContext(ctx, "Transaction mirrored", fields.ToSlice()...)
	return nil
}

// Backfill upserts every stored transaction, repairing a mirror that
// missed events while the worker was down.
func (w *MirrorWorker) Backfill(ctx context.Context, store storage.TransactionStore) (int, error) {
	rows, err := store.AllTransactions(ctx, storage.TransactionFilter{})
	if err != nil {
		return 0, fmt.Errorf("load transactions: %w", err)
	}

	synced := 0
	for _, v := range rows {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := w.mirror.Upsert(ctx, sheets.RowFromView(v)); err != nil {
			return synced, fmt.Errorf("upsert row %d: %w", v.ID, err)
		}
		synced++
	}

	w.logger.InfoContext(ctx, "Backfill completed", "total", len(rows), "synced", synced)
	return synced, nil
}
