package core

import "math"

// DateRange is an inclusive calendar range. A zero bound is open.
type DateRange struct {
	From Date
	To   Date
}

func (r DateRange) Contains(d Date) bool {
	if !r.From.IsZero() && d.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To) {
		return false
	}
	return true
}

// MonthlyPoint is one entry of the 12 month trend.
type MonthlyPoint struct {
	Month      string
	MonthShort string
	Revenue    Money
	Expenses   Money
}

type DashboardStats struct {
	RevenueLast30Days  Money
	ExpensesLast30Days Money
	ProfitLoss         Money
}

type Dashboard struct {
	Stats   DashboardStats
	Monthly []MonthlyPoint
}

// LedgerTotals summarises the whole ledger.
type LedgerTotals struct {
	TotalRevenue  Money
	TotalExpenses Money
	Net           Money
}

// TypeSummary summarises one transaction type: all-time total, trailing
// 30 day total and row count.
type TypeSummary struct {
	Type       TransactionType
	Total      Money
	Last30Days Money
	Count      int64
}

// Page is one slice of an ordered listing.
type Page[T any] struct {
	Items    []T
	Page     int
	PageSize int
	Total    int64
}

func (p Page[T]) TotalPages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 1
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

func (p Page[T]) HasPrev() bool { return p.Page > 1 }

func (p Page[T]) HasNext() bool { return p.Page < p.TotalPages() }

func (p Page[T]) PrevPage() int { return p.Page - 1 }

func (p Page[T]) NextPage() int { return p.Page + 1 }

// MaxPage bounds the page numbers accepted from requests.
const MaxPage = math.MaxInt32

// Offset returns the row offset of a 1-based page, saturating at
// math.MaxInt instead of overflowing.
func Offset(page, pageSize int) int {
	if page < 1 || pageSize <= 0 {
		return 0
	}
	if page-1 > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return (page - 1) * pageSize
}
