// Package memory is an in-process Store used for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/storage"
)

type Store struct {
	mu           sync.Mutex
	now          func() time.Time
	nextTxID     int64
	nextUserID   int64
	transactions map[int64]core.Transaction
	users        map[int64]core.User
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:          time.Now,
		transactions: make(map[int64]core.Transaction),
		users:        make(map[int64]core.User),
	}
}

// WithClock replaces the timestamp source, for deterministic user ordering in tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTxID++
	t.ID = s.nextTxID
	t.CreatedAt = s.now().UTC()
	t.UpdatedAt = t.CreatedAt
	t.LinkedExpenseID = copyID(t.LinkedExpenseID)
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.transactions[t.ID]
	if !ok {
		return core.Transaction{}, notFound("transaction", t.ID)
	}
	t.Input().Apply(&cur)
	cur.LinkedExpenseID = copyID(t.LinkedExpenseID)
	cur.UpdatedAt = s.now().UTC()
	s.transactions[t.ID] = cur
	if cur.Type != core.Expense {
		s.clearLinksLocked(cur.ID)
	}
	return cur, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return notFound("transaction", id)
	}
	s.clearLinksLocked(id)
	delete(s.transactions, id)
	return nil
}

func (s *Store) clearLinksLocked(expenseID int64) {
	for id, t := range s.transactions {
		if t.LinkedExpenseID != nil && *t.LinkedExpenseID == expenseID {
			t.LinkedExpenseID = nil
			s.transactions[id] = t
		}
	}
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, notFound("transaction", id)
	}
	t.LinkedExpenseID = copyID(t.LinkedExpenseID)
	return t, nil
}

func (s *Store) GetTransactionView(_ context.Context, id int64) (core.TransactionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return core.TransactionView{}, notFound("transaction", id)
	}
	return s.viewLocked(t), nil
}

func (s *Store) ListTransactions(_ context.Context, f storage.TransactionFilter, page, pageSize int) (core.Page[core.TransactionView], error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = storage.DefaultPageSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.matchLocked(f)
	result := core.Page[core.TransactionView]{Page: page, PageSize: pageSize, Total: int64(len(all))}
	start := core.Offset(page, pageSize)
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	result.Items = make([]core.TransactionView, 0, end-start)
	for _, t := range all[start:end] {
		result.Items = append(result.Items, s.viewLocked(t))
	}
	return result, nil
}

func (s *Store) AllTransactions(_ context.Context, f storage.TransactionFilter) ([]core.TransactionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.matchLocked(f)
	out := make([]core.TransactionView, 0, len(all))
	for _, t := range all {
		out = append(out, s.viewLocked(t))
	}
	return out, nil
}

func (s *Store) SumAmount(_ context.Context, f storage.TransactionFilter) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum core.Money
	for _, t := range s.matchLocked(f) {
		sum = sum.Add(t.Amount)
	}
	return sum, nil
}

func (s *Store) CountTransactions(_ context.Context, f storage.TransactionFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.matchLocked(f))), nil
}

// matchLocked returns the filtered rows in listing order.
func (s *Store) matchLocked(f storage.TransactionFilter) []core.Transaction {
	out := make([]core.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.ExcludeID != 0 && t.ID == f.ExcludeID {
			continue
		}
		if !f.Range.Contains(t.Date) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Store) viewLocked(t core.Transaction) core.TransactionView {
	v := core.TransactionView{Transaction: t}
	v.LinkedExpenseID = copyID(t.LinkedExpenseID)
	if u, ok := s.users[t.UserID]; ok {
		v.CreatedBy = u.Name
	}
	if t.LinkedExpenseID != nil {
		if l, ok := s.transactions[*t.LinkedExpenseID]; ok {
			v.LinkedExpense = l.Description
		}
	}
	return v
}

func (s *Store) CountUsers(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

func (s *Store) CreateFirstUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.users) > 0 {
		return core.User{}, &core.ConflictError{Reason: "setup already completed"}
	}
	return s.insertUserLocked(u), nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTakenLocked(u.Email, 0) {
		return core.User{}, storage.ErrDuplicateEmail
	}
	return s.insertUserLocked(u), nil
}

func (s *Store) insertUserLocked(u core.User) core.User {
	s.nextUserID++
	u.ID = s.nextUserID
	u.CreatedAt = s.now().UTC()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	return u
}

func (s *Store) emailTakenLocked(email string, except int64) bool {
	for id, u := range s.users {
		if id != except && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (s *Store) UpdateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return core.User{}, notFound("user", u.ID)
	}
	if s.emailTakenLocked(u.Email, u.ID) {
		return core.User{}, storage.ErrDuplicateEmail
	}
	cur.Name, cur.Email, cur.PasswordHash, cur.Role = u.Name, u.Email, u.PasswordHash, u.Role
	cur.UpdatedAt = s.now().UTC()
	s.users[u.ID] = cur
	return cur, nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return notFound("user", id)
	}
	delete(s.users, id)
	for tid, t := range s.transactions {
		if t.UserID == id {
			t.UserID = 0
			s.transactions[tid] = t
		}
	}
	return nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, notFound("user", id)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return core.User{}, &core.NotFoundError{Resource: "user"}
}

func (s *Store) ListUsers(_ context.Context, page, pageSize int) (core.Page[core.User], error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = storage.DefaultPageSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	result := core.Page[core.User]{Page: page, PageSize: pageSize, Total: int64(len(all))}
	start := core.Offset(page, pageSize)
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	result.Items = append([]core.User{}, all[start:end]...)
	return result, nil
}

func notFound(resource string, id int64) error {
	return &core.NotFoundError{Resource: resource, ID: id}
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
