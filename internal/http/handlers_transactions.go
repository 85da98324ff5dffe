package http

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/export"
	"ledger/internal/log"
)

type summaryItem struct {
	Label string
	Value string
}

type transactionIndex struct {
	Heading string
	// Kind is "" for the combined listing.
	Kind    string
	Summary []summaryItem
	Page    core.Page[core.TransactionView]
}

type transactionFormPage struct {
	Heading  string
	Action   string
	Cancel   string
	Editing  bool
	Expenses []core.TransactionView
}

func (s *Server) handleTransactionIndex(w http.ResponseWriter, r *http.Request) {
	totals, err := s.reports.LedgerTotals(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.renderIndex(w, r, "", "All transactions", []summaryItem{
		{"Total revenue", formatCurrency(totals.TotalRevenue)},
		{"Total expenses", formatCurrency(totals.TotalExpenses)},
		{"Net", formatCurrency(totals.Net)},
	})
}

func (s *Server) handleRevenueIndex(w http.ResponseWriter, r *http.Request) {
	sum, err := s.reports.TypeSummary(r.Context(), core.Revenue)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.renderIndex(w, r, core.Revenue, "Revenue", []summaryItem{
		{"Total revenue", formatCurrency(sum.Total)},
		{"Revenue (last 30 days)", formatCurrency(sum.Last30Days)},
		{"Number of sales", strconv.FormatInt(sum.Count, 10)},
	})
}

func (s *Server) handleExpenseIndex(w http.ResponseWriter, r *http.Request) {
	sum, err := s.reports.TypeSummary(r.Context(), core.Expense)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.renderIndex(w, r, core.Expense, "Expenses", []summaryItem{
		{"Total expenses", formatCurrency(sum.Total)},
		{"Expenses (last 30 days)", formatCurrency(sum.Last30Days)},
		{"Number of expenses", strconv.FormatInt(sum.Count, 10)},
	})
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, typ core.TransactionType, heading string, summary []summaryItem) {
	p, err := s.ledger.List(r.Context(), currentActor(r), typ, pageParam(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	nav := "transactions"
	switch typ {
	case core.Revenue:
		nav = "revenue"
	case core.Expense:
		nav = "expenses"
	}
	s.render(w, r, http.StatusOK, "transactions.html", page{
		Nav:  nav,
		Data: transactionIndex{Heading: heading, Kind: string(typ), Summary: summary, Page: p},
	})
}

func (s *Server) handleCreateRevenue(w http.ResponseWriter, r *http.Request) {
	s.renderCreateForm(w, r, http.StatusOK, transactionForm{Type: string(core.Revenue), Date: s.today()}, nil)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	s.renderCreateForm(w, r, http.StatusOK, transactionForm{Type: string(core.Expense), Date: s.today()}, nil)
}

func (s *Server) renderCreateForm(w http.ResponseWriter, r *http.Request, status int, form transactionForm, verr *core.ValidationError) {
	data := transactionFormPage{Heading: "New transaction", Action: "/transactions", Cancel: "/transactions"}
	switch core.TransactionType(form.Type) {
	case core.Revenue:
		data.Heading, data.Cancel = "New revenue", indexPath(core.Revenue)
		expenses, err := s.ledger.LinkableExpenses(r.Context(), currentActor(r), 0)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		data.Expenses = expenses
	case core.Expense:
		data.Heading, data.Cancel = "New expense", indexPath(core.Expense)
	}
	s.render(w, r, status, "transaction_form.html", page{Nav: navFor(form.Type), Form: form, Errors: verr, Data: data})
}

func (s *Server) handleTransactionStore(w http.ResponseWriter, r *http.Request) {
	form, in := parseTransactionForm(r)
	t, err := s.ledger.Create(r.Context(), currentActor(r), in)
	if err != nil {
		if verr, ok := asValidation(err); ok {
			s.renderCreateForm(w, r, http.StatusUnprocessableEntity, form, verr)
			return
		}
		s.fail(w, r, err)
		return
	}
	s.redirectWithFlash(w, r, indexPath(t.Type), typeLabel(t.Type)+" created.")
}

func (s *Server) handleTransactionEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	actor := currentActor(r)
	view, err := s.ledger.Get(r.Context(), actor, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := auth.Authorize(actor, auth.ActionTransactionUpdate, view.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.renderEditForm(w, r, http.StatusOK, id, transactionFormFrom(view.Transaction), nil)
}

func (s *Server) renderEditForm(w http.ResponseWriter, r *http.Request, status int, id int64, form transactionForm, verr *core.ValidationError) {
	expenses, err := s.ledger.LinkableExpenses(r.Context(), currentActor(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, status, "transaction_form.html", page{
		Nav:    navFor(form.Type),
		Form:   form,
		Errors: verr,
		Data: transactionFormPage{
			Heading:  "Edit transaction",
			Action:   "/transactions/" + strconv.FormatInt(id, 10),
			Cancel:   indexPath(core.TransactionType(form.Type)),
			Editing:  true,
			Expenses: expenses,
		},
	})
}

func (s *Server) handleTransactionUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	form, in := parseTransactionForm(r)
	t, err := s.ledger.Update(r.Context(), currentActor(r), id, in)
	if err != nil {
		if verr, ok := asValidation(err); ok {
			s.renderEditForm(w, r, http.StatusUnprocessableEntity, id, form, verr)
			return
		}
		s.fail(w, r, err)
		return
	}
	s.redirectWithFlash(w, r, indexPath(t.Type), typeLabel(t.Type)+" updated.")
}

func (s *Server) handleTransactionDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	t, err := s.ledger.Delete(r.Context(), currentActor(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.redirectWithFlash(w, r, indexPath(t.Type), typeLabel(t.Type)+" deleted.")
}

func (s *Server) handleExportRevenue(w http.ResponseWriter, r *http.Request) {
	s.exportCSV(w, r, core.Revenue)
}

func (s *Server) handleExportExpenses(w http.ResponseWriter, r *http.Request) {
	s.exportCSV(w, r, core.Expense)
}

func (s *Server) handleExportRevenueXLSX(w http.ResponseWriter, r *http.Request) {
	s.exportXLSX(w, r, core.Revenue)
}

func (s *Server) handleExportExpensesXLSX(w http.ResponseWriter, r *http.Request) {
	s.exportXLSX(w, r, core.Expense)
}

// exportCSV streams the rows; once the header is out a failure can only be logged.
func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request, typ core.TransactionType) {
	rows, err := s.ledger.Rows(r.Context(), currentActor(r), typ)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentTypeCSV)
	w.Header().Set("Content-Disposition", export.ContentDisposition(export.FileName(typ, s.now(), "csv")))
	if err := export.WriteCSV(w, typ, rows); err != nil {
		s.logExportError(r, typ, err)
		return
	}
	s.logExport(r, typ, len(rows), "csv")
}

// exportXLSX builds the workbook in memory; the format cannot be streamed.
func (s *Server) exportXLSX(w http.ResponseWriter, r *http.Request, typ core.TransactionType) {
	rows, err := s.ledger.Rows(r.Context(), currentActor(r), typ)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, typ, rows); err != nil {
		s.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", export.ContentDisposition(export.FileName(typ, s.now(), "xlsx")))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		s.logExportError(r, typ, err)
		return
	}
	s.logExport(r, typ, len(rows), "xlsx")
}

func (s *Server) logExport(r *http.Request, typ core.TransactionType, rows int, format string) {
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transactions exported",
		log.FieldOperation, log.OpExport, log.FieldType, string(typ), "rows", rows, "format", format)
}

func (s *Server) logExportError(r *http.Request, typ core.TransactionType, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Export interrupted",
		append(log.NewFields().WithError(err, log.ErrorTypeNetwork).WithOperation(log.OpExport).ToSlice(),
			log.FieldType, string(typ))...)
}

// idParam parses the {id} route segment; ids that overflow are not found.
func (s *Server) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.renderStatus(w, r, http.StatusNotFound)
		return 0, false
	}
	return id, true
}

func (s *Server) today() string {
	return core.DateOf(s.now()).String()
}

func indexPath(typ core.TransactionType) string {
	switch typ {
	case core.Revenue:
		return "/transactions/revenue"
	case core.Expense:
		return "/transactions/expenses"
	}
	return "/transactions"
}

func navFor(typ string) string {
	switch core.TransactionType(typ) {
	case core.Revenue:
		return "revenue"
	case core.Expense:
		return "expenses"
	}
	return "transactions"
}

func typeLabel(typ core.TransactionType) string {
	if typ == core.Revenue {
		return "Revenue"
	}
	return "Expense"
}
