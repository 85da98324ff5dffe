package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"ledger/internal/core"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

type storeFactory func(t *testing.T) storage.Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) storage.Store { return memory.New() },
		"sqlite": func(t *testing.T) storage.Store {
			t.Helper()
			repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { repo.Close() })
			return repo
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s storage.Store)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func mustUser(t *testing.T, s storage.Store, name string) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), core.User{
		Name: name, Email: name + "@example.com", PasswordHash: "x", Role: core.RoleUser,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func mustTx(t *testing.T, s storage.Store, owner int64, typ core.TransactionType, desc string, cents int64, date core.Date, link *int64) core.Transaction {
	t.Helper()
	tx, err := s.CreateTransaction(context.Background(), core.Transaction{
		UserID: owner, Type: typ, Description: desc, Amount: core.Money{Cents: cents}, Date: date, LinkedExpenseID: link,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}

func TestTransactionRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		u := mustUser(t, s, "ada")
		exp := mustTx(t, s, u.ID, core.Expense, "laptop", 30000, core.NewDate(2024, 1, 12), nil)
		rev := mustTx(t, s, u.ID, core.Revenue, "resale", 100000, core.NewDate(2024, 1, 10), &exp.ID)

		first, err := s.GetTransaction(ctx, rev.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		second, _ := s.GetTransaction(ctx, rev.ID)
		if first.Description != second.Description || first.Amount != second.Amount || !first.Date.Equal(second.Date.Time) {
			t.Fatalf("reads differ: %+v vs %+v", first, second)
		}
		if first.Amount.Cents != 100000 || first.Date.String() != "2024-01-10" || first.UserID != u.ID {
			t.Fatalf("unexpected row: %+v", first)
		}
		if first.LinkedExpenseID == nil || *first.LinkedExpenseID != exp.ID {
			t.Fatalf("link not persisted: %+v", first)
		}

		view, err := s.GetTransactionView(ctx, rev.ID)
		if err != nil {
			t.Fatalf("get view: %v", err)
		}
		if view.CreatedBy != "ada" || view.LinkedExpense != "laptop" {
			t.Fatalf("unexpected view: %+v", view)
		}

		_, err = s.GetTransaction(ctx, 9999)
		var nf *core.NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})
}

func TestListOrderingAndPagination(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		u := mustUser(t, s, "ada")
		for i := 0; i < 45; i++ {
			// Three rows per day so the id tie-break decides page boundaries.
			mustTx(t, s, u.ID, core.Expense, "row", int64(100+i), core.NewDate(2024, 1, 1+i/3), nil)
		}

		seen := map[int64]bool{}
		var prev *core.TransactionView
		for page := 1; page <= 3; page++ {
			p, err := s.ListTransactions(ctx, storage.TransactionFilter{}, page, storage.DefaultPageSize)
			if err != nil {
				t.Fatalf("list page %d: %v", page, err)
			}
			if p.Total != 45 || p.TotalPages() != 3 {
				t.Fatalf("unexpected totals: %d / %d", p.Total, p.TotalPages())
			}
			for i := range p.Items {
				cur := p.Items[i]
				if seen[cur.ID] {
					t.Fatalf("duplicate id %d", cur.ID)
				}
				seen[cur.ID] = true
				if prev != nil {
					if cur.Date.After(prev.Date) || (cur.Date.Equal(prev.Date.Time) && cur.ID > prev.ID) {
						t.Fatalf("order violated: %v/%d after %v/%d", cur.Date, cur.ID, prev.Date, prev.ID)
					}
				}
				prev = &cur
			}
		}
		if len(seen) != 45 {
			t.Fatalf("expected 45 rows across pages, got %d", len(seen))
		}
	})
}

func TestPageBeyondRangeIsEmpty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		u := mustUser(t, s, "ada")
		mustTx(t, s, u.ID, core.Expense, "row", 100, core.NewDate(2024, 1, 1), nil)

		for _, page := range []int{2, core.MaxPage, 500000000000000000} {
			p, err := s.ListTransactions(ctx, storage.TransactionFilter{}, page, storage.DefaultPageSize)
			if err != nil {
				t.Fatalf("page %d: %v", page, err)
			}
			if len(p.Items) != 0 || p.Total != 1 {
				t.Fatalf("page %d: want no rows of 1, got %d of %d", page, len(p.Items), p.Total)
			}
		}

		users, err := s.ListUsers(ctx, 500000000000000000, storage.DefaultPageSize)
		if err != nil || len(users.Items) != 0 {
			t.Fatalf("huge users page: %d rows, %v", len(users.Items), err)
		}
	})
}

func TestSumsAndCounts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		u := mustUser(t, s, "ada")

		sum, err := s.SumAmount(ctx, storage.TransactionFilter{Type: core.Revenue})
		if err != nil || sum.Cents != 0 {
			t.Fatalf("empty sum should be 0, got %v err=%v", sum, err)
		}

		mustTx(t, s, u.ID, core.Revenue, "a", 100000, core.NewDate(2024, 1, 10), nil)
		mustTx(t, s, u.ID, core.Expense, "b", 30000, core.NewDate(2024, 1, 12), nil)
		mustTx(t, s, u.ID, core.Revenue, "c", 1, core.NewDate(2024, 2, 1), nil)

		sum, _ = s.SumAmount(ctx, storage.TransactionFilter{Type: core.Revenue})
		if sum.Cents != 100001 {
			t.Fatalf("revenue sum: %v", sum)
		}
		jan := core.DateRange{From: core.NewDate(2024, 1, 1), To: core.NewDate(2024, 1, 31)}
		sum, _ = s.SumAmount(ctx, storage.TransactionFilter{Type: core.Revenue, Range: jan})
		if sum.Cents != 100000 {
			t.Fatalf("january revenue: %v", sum)
		}
		n, _ := s.CountTransactions(ctx, storage.TransactionFilter{Type: core.Expense})
		if n != 1 {
			t.Fatalf("expense count: %d", n)
		}
	})
}

func TestDeleteExpenseClearsLinks(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		u := mustUser(t, s, "ada")
		exp := mustTx(t, s, u.ID, core.Expense, "rent", 5000, core.NewDate(2024, 1, 1), nil)
		rev := mustTx(t, s, u.ID, core.Revenue, "refund", 5000, core.NewDate(2024, 1, 2), &exp.ID)

		if err := s.DeleteTransaction(ctx, exp.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		got, err := s.GetTransaction(ctx, rev.ID)
		if err != nil {
			t.Fatalf("get revenue: %v", err)
		}
		if got.LinkedExpenseID != nil {
			t.Fatalf("expected link cleared, got %d", *got.LinkedExpenseID)
		}
		var nf *core.NotFoundError
		if err := s.DeleteTransaction(ctx, exp.ID); !errors.As(err, &nf) {
			t.Fatalf("second delete should be NotFound, got %v", err)
		}
	})
}

func TestRetypedExpenseReleasesLinks(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		u := mustUser(t, s, "ada")
		exp := mustTx(t, s, u.ID, core.Expense, "deposit", 5000, core.NewDate(2024, 1, 1), nil)
		rev := mustTx(t, s, u.ID, core.Revenue, "returned", 5000, core.NewDate(2024, 1, 2), &exp.ID)

		exp.Type = core.Revenue
		if _, err := s.UpdateTransaction(ctx, exp); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, _ := s.GetTransaction(ctx, rev.ID)
		if got.LinkedExpenseID != nil {
			t.Fatalf("revenue must not point at a revenue")
		}
	})
}

func TestUpdateMissingTransaction(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s storage.Store) {
		_, err := s.UpdateTransaction(context.Background(), core.Transaction{
			ID: 404, Type: core.Expense, Description: "x", Amount: core.Money{Cents: 1}, Date: core.NewDate(2024, 1, 1),
		})
		var nf *core.NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})
}

func TestFirstUserIsExclusive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		if n, _ := s.CountUsers(ctx); n != 0 {
			t.Fatalf("expected empty store")
		}
		admin, err := s.CreateFirstUser(ctx, core.User{Name: "root", Email: "root@example.com", PasswordHash: "h", Role: core.RoleAdmin})
		if err != nil {
			t.Fatalf("first user: %v", err)
		}
		if admin.ID == 0 || admin.Role != core.RoleAdmin {
			t.Fatalf("unexpected admin: %+v", admin)
		}
		_, err = s.CreateFirstUser(ctx, core.User{Name: "late", Email: "late@example.com", PasswordHash: "h", Role: core.RoleAdmin})
		var conflict *core.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ConflictError, got %v", err)
		}
		if n, _ := s.CountUsers(ctx); n != 1 {
			t.Fatalf("expected exactly one user, got %d", n)
		}
	})
}

func TestUserLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s storage.Store) {
		ctx := context.Background()
		a := mustUser(t, s, "ada")
		b := mustUser(t, s, "bob")

		if _, err := s.CreateUser(ctx, core.User{Name: "dup", Email: a.Email, PasswordHash: "h", Role: core.RoleUser}); !errors.Is(err, storage.ErrDuplicateEmail) {
			t.Fatalf("expected duplicate email, got %v", err)
		}

		page, err := s.ListUsers(ctx, 1, storage.DefaultPageSize)
		if err != nil || page.Total != 2 || len(page.Items) != 2 {
			t.Fatalf("list users: %+v err=%v", page, err)
		}
		if page.Items[0].ID != b.ID {
			t.Fatalf("latest user should come first, got %d", page.Items[0].ID)
		}

		b.Name = "Robert"
		b.Role = core.RoleAdmin
		upd, err := s.UpdateUser(ctx, b)
		if err != nil || upd.Name != "Robert" || upd.Role != core.RoleAdmin {
			t.Fatalf("update user: %+v err=%v", upd, err)
		}
		b.Email = a.Email
		if _, err := s.UpdateUser(ctx, b); !errors.Is(err, storage.ErrDuplicateEmail) {
			t.Fatalf("expected duplicate email on update, got %v", err)
		}

		tx := mustTx(t, s, a.ID, core.Expense, "owned", 100, core.NewDate(2024, 1, 1), nil)
		if err := s.DeleteUser(ctx, a.ID); err != nil {
			t.Fatalf("delete user: %v", err)
		}
		view, err := s.GetTransactionView(ctx, tx.ID)
		if err != nil {
			t.Fatalf("transaction should survive its owner: %v", err)
		}
		if view.CreatedBy != "" || view.UserID != 0 {
			t.Fatalf("expected orphaned row, got %+v", view)
		}

		found, err := s.GetUserByEmail(ctx, "BOB@example.com")
		if err == nil && found.ID != b.ID {
			t.Fatalf("lookup returned wrong user")
		}
	})
}
