package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ledger/internal/core"
)

// TransactionPayload is the wire form of a ledger row. Amount is a fixed
// two-decimal string so that no float ever carries money.
type TransactionPayload struct {
	ID              int64  `json:"id"`
	UserID          int64  `json:"user_id,omitempty"`
	Type            string `json:"type"`
	Description     string `json:"description"`
	Amount          string `json:"amount"`
	Date            string `json:"date"`
	LinkedExpenseID *int64 `json:"linked_expense_id,omitempty"`
	CreatedBy       string `json:"created_by,omitempty"`
	LinkedExpense   string `json:"linked_expense,omitempty"`
}

// TransactionEventMessage is published after every committed ledger write.
type TransactionEventMessage struct {
	Event       string             `json:"event"`
	Transaction TransactionPayload `json:"transaction"`
	Timestamp   time.Time          `json:"timestamp"`
}

// NewTransactionEventMessage converts a domain event to its wire form.
func NewTransactionEventMessage(e core.TransactionEvent) *TransactionEventMessage {
	v := e.Transaction
	ts := e.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &TransactionEventMessage{
		Event: string(e.Type),
		Transaction: TransactionPayload{
			ID:              v.ID,
			UserID:          v.UserID,
			Type:            string(v.Type),
			Description:     v.Description,
			Amount:          v.Amount.String(),
			Date:            v.Date.String(),
			LinkedExpenseID: v.LinkedExpenseID,
			CreatedBy:       v.CreatedBy,
			LinkedExpense:   v.LinkedExpense,
		},
		Timestamp: ts,
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventMessageFromJSON decodes and checks a message body.
func TransactionEventMessageFromJSON(data []byte) (*TransactionEventMessage, error) {
	var msg TransactionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !core.EventType(msg.Event).Valid() {
		return nil, fmt.Errorf("unknown event %q", msg.Event)
	}
	if msg.Transaction.ID <= 0 {
		return nil, errors.New("missing transaction id")
	}
	return &msg, nil
}

// ToEvent converts the message back into a domain event. Deleted events
// only need the id, so their other fields are parsed leniently.
func (m *TransactionEventMessage) ToEvent() (core.TransactionEvent, error) {
	p := m.Transaction
	e := core.TransactionEvent{Type: core.EventType(m.Event), OccurredAt: m.Timestamp}
	e.Transaction.ID = p.ID
	e.Transaction.UserID = p.UserID
	e.Transaction.Description = p.Description
	e.Transaction.LinkedExpenseID = p.LinkedExpenseID
	e.Transaction.CreatedBy = p.CreatedBy
	e.Transaction.LinkedExpense = p.LinkedExpense

	typ, typErr := core.ParseTransactionType(p.Type)
	date, dateErr := core.ParseDate(p.Date)
	amount, amountErr := core.ParseMoney(p.Amount)
	if e.Type != core.EventDeleted {
		if err := errors.Join(typErr, dateErr, amountErr); err != nil {
			return core.TransactionEvent{}, fmt.Errorf("transaction %d: %w", p.ID, err)
		}
	}
	e.Transaction.Type = typ
	e.Transaction.Date = date
	e.Transaction.Amount = amount
	return e, nil
}
