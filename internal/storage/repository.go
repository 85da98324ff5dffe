package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ledger/internal/core"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Repository is the database/sql implementation of Store for SQLite and postgres.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ Store = (*Repository)(nil)

func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(DialectSQLite, SQLiteDSN(dbPath))
}

func NewPostgresRepository(databaseURL string) (*Repository, error) {
	return open(DialectPostgres, databaseURL)
}

func open(dialect Dialect, dsn string) (*Repository, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// One writer at a time; keeps the setup transaction and busy handling simple.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, dialect: dialect, now: time.Now}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Dialect() Dialect {
	return r.dialect
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) exec(ctx context.Context, q queryer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *Repository) query(ctx context.Context, q queryer, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *Repository) queryRow(ctx context.Context, q queryer, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// Transactions

const transactionColumns = `t.id, t.user_id, t.type, t.description, t.amount_cents, t.date,
	t.linked_expense_id, t.created_at, t.updated_at`

const transactionViewSelect = `SELECT ` + transactionColumns + `,
	COALESCE(u.name, ''), COALESCE(l.description, '')
	FROM transactions t
	LEFT JOIN users u ON u.id = t.user_id
	LEFT JOIN transactions l ON l.id = t.linked_expense_id`

const listOrder = ` ORDER BY t.date DESC, t.id DESC`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner, extra ...any) (core.Transaction, error) {
	var (
		t      core.Transaction
		userID sql.NullInt64
		typ    string
		linked sql.NullInt64
	)
	dest := []any{
		&t.ID, &userID, &typ, &t.Description, &t.Amount.Cents, &t.Date,
		&linked, nullTime{&t.CreatedAt}, nullTime{&t.UpdatedAt},
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	if userID.Valid {
		t.UserID = userID.Int64
	}
	if linked.Valid {
		id := linked.Int64
		t.LinkedExpenseID = &id
	}
	return t, nil
}

func scanTransactionView(s rowScanner) (core.TransactionView, error) {
	var v core.TransactionView
	t, err := scanTransaction(s, &v.CreatedBy, &v.LinkedExpense)
	if err != nil {
		return core.TransactionView{}, err
	}
	v.Transaction = t
	return v, nil
}

func (f TransactionFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		conds = append(conds, "t.type = ?")
		args = append(args, string(f.Type))
	}
	if !f.Range.From.IsZero() {
		conds = append(conds, "t.date >= ?")
		args = append(args, f.Range.From)
	}
	if !f.Range.To.IsZero() {
		conds = append(conds, "t.date <= ?")
		args = append(args, f.Range.To)
	}
	if f.ExcludeID != 0 {
		conds = append(conds, "t.id <> ?")
		args = append(args, f.ExcludeID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func linkArg(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func (r *Repository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	now := r.timestamp()
	t.CreatedAt, t.UpdatedAt = now, now

	err := r.queryRow(ctx, r.db, `INSERT INTO transactions
		(user_id, type, description, amount_cents, date, linked_expense_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		nullableID(t.UserID), string(t.Type), t.Description, t.Amount.Cents, t.Date,
		linkArg(t.LinkedExpenseID), now, now,
	).Scan(&t.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"date", t.Date.String())

	return t, nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.UpdatedAt = r.timestamp()

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := r.exec(ctx, tx, `UPDATE transactions
			SET type = ?, description = ?, amount_cents = ?, date = ?, linked_expense_id = ?, updated_at = ?
			WHERE id = ?`,
			string(t.Type), t.Description, t.Amount.Cents, t.Date, linkArg(t.LinkedExpenseID), t.UpdatedAt, t.ID)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return transactionNotFound(t.ID)
		}
		if t.Type != core.Expense {
			// Revenues may only point at expenses.
			if _, err := r.exec(ctx, tx, `UPDATE transactions SET linked_expense_id = NULL WHERE linked_expense_id = ?`, t.ID); err != nil {
				return fmt.Errorf("clear links to transaction: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	return r.GetTransaction(ctx, t.ID)
}

func (r *Repository) DeleteTransaction(ctx context.Context, id int64) error {
	var cleared int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := r.exec(ctx, tx, `UPDATE transactions SET linked_expense_id = NULL WHERE linked_expense_id = ?`, id)
		if err != nil {
			return fmt.Errorf("clear links to transaction: %w", err)
		}
		cleared, _ = res.RowsAffected()

		res, err = r.exec(ctx, tx, `DELETE FROM transactions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return transactionNotFound(id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "links_cleared", cleared)
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.queryRow(ctx, r.db, `SELECT `+transactionColumns+` FROM transactions t WHERE t.id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, transactionNotFound(id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

func (r *Repository) GetTransactionView(ctx context.Context, id int64) (core.TransactionView, error) {
	row := r.queryRow(ctx, r.db, transactionViewSelect+` WHERE t.id = ?`, id)
	v, err := scanTransactionView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransactionView{}, transactionNotFound(id)
	}
	if err != nil {
		return core.TransactionView{}, fmt.Errorf("get transaction view: %w", err)
	}
	return v, nil
}

func (r *Repository) ListTransactions(ctx context.Context, f TransactionFilter, page, pageSize int) (core.Page[core.TransactionView], error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	result := core.Page[core.TransactionView]{Page: page, PageSize: pageSize}

	total, err := r.CountTransactions(ctx, f)
	if err != nil {
		return result, err
	}
	result.Total = total

	offset := core.Offset(page, pageSize)
	if int64(offset) >= total {
		result.Items = []core.TransactionView{}
		return result, nil
	}
	where, args := f.where()
	args = append(args, pageSize, offset)
	items, err := r.listViews(ctx, transactionViewSelect+where+listOrder+` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return result, fmt.Errorf("list transactions: %w", err)
	}
	result.Items = items
	return result, nil
}

func (r *Repository) AllTransactions(ctx context.Context, f TransactionFilter) ([]core.TransactionView, error) {
	where, args := f.where()
	items, err := r.listViews(ctx, transactionViewSelect+where+listOrder, args...)
	if err != nil {
		return nil, fmt.Errorf("list all transactions: %w", err)
	}
	return items, nil
}

func (r *Repository) listViews(ctx context.Context, query string, args ...any) ([]core.TransactionView, error) {
	rows, err := r.query(ctx, r.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]core.TransactionView, 0)
	for rows.Next() {
		v, err := scanTransactionView(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func (r *Repository) SumAmount(ctx context.Context, f TransactionFilter) (core.Money, error) {
	where, args := f.where()
	var cents int64
	err := r.queryRow(ctx, r.db,
		`SELECT CAST(COALESCE(SUM(t.amount_cents), 0) AS BIGINT) FROM transactions t`+where, args...,
	).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum transactions: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

func (r *Repository) CountTransactions(ctx context.Context, f TransactionFilter) (int64, error) {
	where, args := f.where()
	var n int64
	if err := r.queryRow(ctx, r.db, `SELECT COUNT(*) FROM transactions t`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// Users

const userColumns = `id, name, email, password_hash, role, created_at, updated_at`

func scanUser(s rowScanner) (core.User, error) {
	var (
		u    core.User
		role string
	)
	err := s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, nullTime{&u.CreatedAt}, nullTime{&u.UpdatedAt})
	u.Role = core.Role(role)
	return u, err
}

func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.queryRow(ctx, r.db, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *Repository) CreateFirstUser(ctx context.Context, u core.User) (core.User, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if r.dialect == DialectPostgres {
			if _, err := tx.ExecContext(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
				return fmt.Errorf("lock users: %w", err)
			}
		}
		// Timestamps come from column defaults: postgres cannot infer
		// parameter types in a SELECT list.
		err := r.queryRow(ctx, tx, `INSERT INTO users (name, email, password_hash, role)
			SELECT ?, ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM users)
			RETURNING id`,
			u.Name, u.Email, u.PasswordHash, string(u.Role),
		).Scan(&u.ID)
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return &core.ConflictError{Reason: "setup already completed"}
		}
		if err != nil {
			return fmt.Errorf("create first user: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.User{}, err
	}

	slog.InfoContext(ctx, "First user created", "id", u.ID, "role", u.Role)
	return r.GetUser(ctx, u.ID)
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	now := r.timestamp()
	u.CreatedAt, u.UpdatedAt = now, now

	err := r.queryRow(ctx, r.db, `INSERT INTO users (name, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		u.Name, u.Email, u.PasswordHash, string(u.Role), now, now,
	).Scan(&u.ID)
	if isUniqueViolation(err) {
		return core.User{}, ErrDuplicateEmail
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *Repository) UpdateUser(ctx context.Context, u core.User) (core.User, error) {
	u.UpdatedAt = r.timestamp()
	res, err := r.exec(ctx, r.db, `UPDATE users SET name = ?, email = ?, password_hash = ?, role = ?, updated_at = ? WHERE id = ?`,
		u.Name, u.Email, u.PasswordHash, string(u.Role), u.UpdatedAt, u.ID)
	if isUniqueViolation(err) {
		return core.User{}, ErrDuplicateEmail
	}
	if err != nil {
		return core.User{}, fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.User{}, userNotFound(u.ID)
	}
	return r.GetUser(ctx, u.ID)
}

func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.exec(ctx, tx, `UPDATE transactions SET user_id = NULL WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("detach user transactions: %w", err)
		}
		res, err := r.exec(ctx, tx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return userNotFound(id)
		}
		return nil
	})
}

func (r *Repository) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(r.queryRow(ctx, r.db, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, userNotFound(id)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(r.queryRow(ctx, r.db, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, &core.NotFoundError{Resource: "user"}
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (r *Repository) ListUsers(ctx context.Context, page, pageSize int) (core.Page[core.User], error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	result := core.Page[core.User]{Page: page, PageSize: pageSize}

	total, err := r.CountUsers(ctx)
	if err != nil {
		return result, err
	}
	result.Total = total

	offset := core.Offset(page, pageSize)
	if int64(offset) >= total {
		result.Items = []core.User{}
		return result, nil
	}
	rows, err := r.query(ctx, r.db, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		pageSize, offset)
	if err != nil {
		return result, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	result.Items = make([]core.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return result, fmt.Errorf("scan user: %w", err)
		}
		result.Items = append(result.Items, u)
	}
	return result, rows.Err()
}
