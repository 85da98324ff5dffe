package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// WindowDays is the length of the trailing window used by the dashboard
// and the per-type summaries.
const WindowDays = 30

// TrendMonths is the number of calendar months in the monthly trend.
const TrendMonths = 12

// Reports computes aggregates over the ledger. Nothing is cached: every
// call reads the store.
type Reports struct {
	store storage.TransactionStore
	now   func() time.Time
}

func NewReports(store storage.TransactionStore) *Reports {
	return &Reports{store: store, now: time.Now}
}

// WithClock replaces the source of "now" used by windows and trends.
func (r *Reports) WithClock(now func() time.Time) *Reports {
	r.now = now
	return r
}

// Last30DaysWindow returns [now-30 days, now] as inclusive calendar dates.
func Last30DaysWindow(now time.Time) core.DateRange {
	today := core.DateOf(now)
	return core.DateRange{From: today.AddDays(-WindowDays), To: today}
}

// MonthRange returns the first and last calendar day of the month holding d.
func MonthRange(d core.Date) core.DateRange {
	first := core.NewDate(d.Year(), int(d.Month()), 1)
	return core.DateRange{From: first, To: core.Date{Time: first.AddDate(0, 1, -1)}}
}

// SumByType totals the amounts of typ inside r. An empty match is zero.
func (r *Reports) SumByType(ctx context.Context, typ core.TransactionType, dr core.DateRange) (core.Money, error) {
	sum, err := r.store.SumAmount(ctx, storage.TransactionFilter{Type: typ, Range: dr})
	if err != nil {
		return core.Money{}, fmt.Errorf("sum %s: %w", typ, err)
	}
	return sum, nil
}

func (r *Reports) CountByType(ctx context.Context, typ core.TransactionType) (int64, error) {
	n, err := r.store.CountTransactions(ctx, storage.TransactionFilter{Type: typ})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", typ, err)
	}
	return n, nil
}

// ProfitLoss is revenue minus expenses inside dr.
func (r *Reports) ProfitLoss(ctx context.Context, dr core.DateRange) (core.Money, error) {
	var revenue, expenses core.Money
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		revenue, err = r.SumByType(ctx, core.Revenue, dr)
		return err
	})
	g.Go(func() (err error) {
		expenses, err = r.SumByType(ctx, core.Expense, dr)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Money{}, err
	}
	return revenue.Sub(expenses), nil
}

// MonthlyTrend returns the 12 calendar months ending with the month of
// now, oldest first. Every month is summed independently.
func (r *Reports) MonthlyTrend(ctx context.Context, now time.Time) ([]core.MonthlyPoint, error) {
	today := core.DateOf(now)
	current := core.NewDate(today.Year(), int(today.Month()), 1)

	points := make([]core.MonthlyPoint, TrendMonths)
	g, ctx := errgroup.WithContext(ctx)
	for i := range points {
		month := core.Date{Time: current.AddDate(0, i-(TrendMonths-1), 0)}
		dr := MonthRange(month)
		points[i] = core.MonthlyPoint{
			Month:      month.Format("Jan 2006"),
			MonthShort: month.Format("Jan"),
		}
		p := &points[i]
		g.Go(func() (err error) {
			p.Revenue, err = r.SumByType(ctx, core.Revenue, dr)
			return err
		})
		g.Go(func() (err error) {
			p.Expenses, err = r.SumByType(ctx, core.Expense, dr)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("monthly trend: %w", err)
	}
	return points, nil
}

// Dashboard gathers the trailing window stats and the monthly trend.
func (r *Reports) Dashboard(ctx context.Context) (core.Dashboard, error) {
	now := r.now()
	window := Last30DaysWindow(now)

	var d core.Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Stats.RevenueLast30Days, err = r.SumByType(gctx, core.Revenue, window)
		return err
	})
	g.Go(func() (err error) {
		d.Stats.ExpensesLast30Days, err = r.SumByType(gctx, core.Expense, window)
		return err
	})
	g.Go(func() (err error) {
		d.Monthly, err = r.MonthlyTrend(gctx, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Dashboard{}, err
	}
	d.Stats.ProfitLoss = d.Stats.RevenueLast30Days.Sub(d.Stats.ExpensesLast30Days)
	return d, nil
}

// LedgerTotals summarises the whole ledger for the all-transactions index.
func (r *Reports) LedgerTotals(ctx context.Context) (core.LedgerTotals, error) {
	var t core.LedgerTotals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		t.TotalRevenue, err = r.SumByType(gctx, core.Revenue, core.DateRange{})
		return err
	})
	g.Go(func() (err error) {
		t.TotalExpenses, err = r.SumByType(gctx, core.Expense, core.DateRange{})
		return err
	})
	if err := g.Wait(); err != nil {
		return core.LedgerTotals{}, err
	}
	t.Net = t.TotalRevenue.Sub(t.TotalExpenses)
	return t, nil
}

// TypeSummary returns the index header of one transaction type.
func (r *Reports) TypeSummary(ctx context.Context, typ core.TransactionType) (core.TypeSummary, error) {
	s := core.TypeSummary{Type: typ}
	window := Last30DaysWindow(r.now())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.Total, err = r.SumByType(gctx, typ, core.DateRange{})
		return err
	})
	g.Go(func() (err error) {
		s.Last30Days, err = r.SumByType(gctx, typ, window)
		return err
	})
	g.Go(func() (err error) {
		s.Count, err = r.CountByType(gctx, typ)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.TypeSummary{}, err
	}
	return s, nil
}
