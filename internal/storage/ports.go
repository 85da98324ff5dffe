package storage

import (
	"context"
	"errors"

	"ledger/internal/core"
)

// DefaultPageSize is the fixed listing page size.
const DefaultPageSize = 20

// ErrDuplicateEmail is returned when an account email is already taken.
var ErrDuplicateEmail = errors.New("email already registered")

// TransactionFilter narrows listings, sums and counts. Zero values match everything.
type TransactionFilter struct {
	Type      core.TransactionType
	Range     core.DateRange
	ExcludeID int64
}

// TransactionStore persists ledger rows. Listings are ordered by date
// descending with id descending as tie-break.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	// DeleteTransaction removes the row and clears every link pointing to it.
	DeleteTransaction(ctx context.Context, id int64) error
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	GetTransactionView(ctx context.Context, id int64) (core.TransactionView, error)
	ListTransactions(ctx context.Context, f TransactionFilter, page, pageSize int) (core.Page[core.TransactionView], error)
	AllTransactions(ctx context.Context, f TransactionFilter) ([]core.TransactionView, error)
	SumAmount(ctx context.Context, f TransactionFilter) (core.Money, error)
	CountTransactions(ctx context.Context, f TransactionFilter) (int64, error)
}

type UserStore interface {
	CountUsers(ctx context.Context) (int64, error)
	// CreateFirstUser inserts u only if no user exists yet, otherwise it
	// returns a *core.ConflictError.
	CreateFirstUser(ctx context.Context, u core.User) (core.User, error)
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	UpdateUser(ctx context.Context, u core.User) (core.User, error)
	// DeleteUser removes the account; its transactions stay with no owner.
	DeleteUser(ctx context.Context, id int64) error
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	ListUsers(ctx context.Context, page, pageSize int) (core.Page[core.User], error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	TransactionStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}

func transactionNotFound(id int64) error {
	return &core.NotFoundError{Resource: "transaction", ID: id}
}

func userNotFound(id int64) error {
	return &core.NotFoundError{Resource: "user", ID: id}
}
