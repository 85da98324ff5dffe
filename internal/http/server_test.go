package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/storage/memory"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	srv    *Server
	store  *memory.Store
	ledger *services.LedgerService
	tokens *auth.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := log.New(log.Config{Output: io.Discard})
	store := memory.New()
	tokens := auth.NewTokenIssuer(strings.Repeat("k", 32), time.Hour)
	ledger := services.NewLedgerService(store, nil, logger)

	srv, err := NewServer(":0", Deps{
		Ledger:             ledger,
		Reports:            services.NewReports(store).WithClock(func() time.Time { return testNow }),
		Users:              services.NewUserService(store, logger).WithHashCost(bcrypt.MinCost),
		Tokens:             tokens,
		Store:              store,
		Logger:             logger,
		RateLimitPerMinute: 1000,
		Now:                func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, ledger: ledger, tokens: tokens}
}

// do sends a request; form, when non-nil, is posted url-encoded.
func (e *testEnv) do(t *testing.T, method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) addUser(t *testing.T, name, email string, role core.Role) core.User {
	t.Helper()
	hash, err := auth.HashPassword("password123", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	var u core.User
	n, _ := e.store.CountUsers(context.Background())
	if n == 0 {
		u, err = e.store.CreateFirstUser(context.Background(), core.User{Name: name, Email: email, PasswordHash: hash, Role: role})
	} else {
		u, err = e.store.CreateUser(context.Background(), core.User{Name: name, Email: email, PasswordHash: hash, Role: role})
	}
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	return u
}

func (e *testEnv) session(t *testing.T, u core.User) *http.Cookie {
	t.Helper()
	token, err := e.tokens.Issue(u)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Cookie{Name: sessionCookie, Value: token}
}

func (e *testEnv) addTransaction(t *testing.T, owner core.User, typ core.TransactionType, desc, amount, date string) core.Transaction {
	t.Helper()
	m, err := core.ParseMoney(amount)
	if err != nil {
		t.Fatal(err)
	}
	d, err := core.ParseDate(date)
	if err != nil {
		t.Fatal(err)
	}
	tx, err := e.ledger.Create(context.Background(), owner.Actor(), core.TransactionInput{Type: typ, Description: desc, Amount: m, Date: d})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	if rec.Code != http.StatusSeeOther && rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want redirect to %s; body: %s", rec.Code, want, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != want {
		t.Fatalf("Location = %q, want %q", got, want)
	}
}

func TestSetupGate(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/", "/dashboard", "/login", "/transactions", "/transactions/revenue/export", "/settings/users"} {
		assertRedirect(t, e.do(t, http.MethodGet, path, nil), "/setup")
	}
	assertRedirect(t, e.do(t, http.MethodPost, "/transactions", url.Values{"type": {"expense"}}), "/setup")

	if rec := e.do(t, http.MethodGet, "/setup", nil); rec.Code != http.StatusOK {
		t.Fatalf("setup form status = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health must not be gated, got %d", rec.Code)
	}

	rec := e.do(t, http.MethodPost, "/setup", url.Values{
		"name":                  {"Ada"},
		"email":                 {"ada@example.com"},
		"password":              {"password123"},
		"password_confirmation": {"password123"},
	})
	assertRedirect(t, rec, "/dashboard")
	session := cookieNamed(rec, sessionCookie)
	if session == nil || session.Value == "" || !session.HttpOnly || session.SameSite != http.SameSiteLaxMode {
		t.Fatalf("setup should sign the administrator in, got cookie %+v", session)
	}

	u, err := e.store.GetUserByEmail(context.Background(), "ada@example.com")
	if err != nil || u.Role != core.RoleAdmin {
		t.Fatalf("first account should be an admin: %+v, %v", u, err)
	}

	assertRedirect(t, e.do(t, http.MethodGet, "/setup", nil), "/login")
	assertRedirect(t, e.do(t, http.MethodPost, "/setup", url.Values{"name": {"Eve"}}), "/login")
	if rec := e.do(t, http.MethodGet, "/dashboard", nil, session); rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
}

func TestSetupValidation(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/setup", url.Values{
		"name":                  {"Ada"},
		"email":                 {"ada@example.com"},
		"password":              {"password123"},
		"password_confirmation": {"different123"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "the password confirmation does not match.") {
		t.Fatalf("missing field message: %s", rec.Body.String())
	}
	if n, _ := e.store.CountUsers(context.Background()); n != 0 {
		t.Fatalf("rejected setup must not create accounts, have %d", n)
	}
}

func TestLoginLogout(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "Ada", "ada@example.com", core.RoleAdmin)

	assertRedirect(t, e.do(t, http.MethodGet, "/dashboard", nil), "/login")

	rec := e.do(t, http.MethodPost, "/login", url.Values{"email": {"ada@example.com"}, "password": {"wrong-password"}})
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), msgBadCredentials) {
		t.Fatalf("bad password: status = %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/login", url.Values{"email": {"ADA@example.com"}, "password": {"password123"}})
	assertRedirect(t, rec, "/dashboard")
	session := cookieNamed(rec, sessionCookie)
	if session == nil {
		t.Fatal("login should set the session cookie")
	}

	assertRedirect(t, e.do(t, http.MethodGet, "/login", nil, session), "/dashboard")

	rec = e.do(t, http.MethodPost, "/logout", url.Values{}, session)
	assertRedirect(t, rec, "/login")
	if c := cookieNamed(rec, sessionCookie); c == nil || c.MaxAge >= 0 {
		t.Fatalf("logout should expire the cookie, got %+v", c)
	}

	tampered := &http.Cookie{Name: sessionCookie, Value: session.Value + "x"}
	assertRedirect(t, e.do(t, http.MethodGet, "/dashboard", nil, tampered), "/login")
}

func TestSessionOfDeletedUser(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "Ada", "ada@example.com", core.RoleAdmin)
	bob := e.addUser(t, "Bob", "bob@example.com", core.RoleUser)
	session := e.session(t, bob)

	if err := e.store.DeleteUser(context.Background(), bob.ID); err != nil {
		t.Fatal(err)
	}
	assertRedirect(t, e.do(t, http.MethodGet, "/dashboard", nil, session), "/login")
}

func TestTransactionLifecycle(t *testing.T) {
	e := newTestEnv(t)
	ada := e.addUser(t, "Ada", "ada@example.com", core.RoleAdmin)
	session := e.session(t, ada)

	rec := e.do(t, http.MethodGet, "/transactions/revenue/create", nil, session)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `value="2024-03-15"`) {
		t.Fatalf("create form should default the date to today: %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/transactions", url.Values{
		"type": {"expense"}, "description": {"Office rent"}, "amount": {"300.00"}, "date": {"2024-01-12"},
	}, session)
	assertRedirect(t, rec, "/transactions/expenses")
	flash := cookieNamed(rec, flashCookie)
	if flash == nil {
		t.Fatal("expected a flash message")
	}
	rec = e.do(t, http.MethodGet, "/transactions/expenses", nil, session, flash)
	if !strings.Contains(rec.Body.String(), "Expense created.") || !strings.Contains(rec.Body.String(), "Office rent") {
		t.Fatalf("expense index should show the flash and the row: %s", rec.Body.String())
	}

	rows, _ := e.ledger.Rows(context.Background(), ada.Actor(), core.Expense)
	expenseID := rows[0].ID

	rec = e.do(t, http.MethodPost, "/transactions", url.Values{
		"type": {"revenue"}, "description": {"Consulting"}, "amount": {"1000"}, "date": {"2024-01-10"},
		"linked_expense_id": {itoa(expenseID)},
	}, session)
	assertRedirect(t, rec, "/transactions/revenue")

	rec = e.do(t, http.MethodGet, "/transactions/revenue", nil, session)
	body := rec.Body.String()
	for _, want := range []string{"Consulting", "Office rent", "$1,000.00", "Number of sales"} {
		if !strings.Contains(body, want) {
			t.Errorf("revenue index missing %q", want)
		}
	}

	revenues, _ := e.ledger.Rows(context.Background(), ada.Actor(), core.Revenue)
	rec = e.do(t, http.MethodPost, "/transactions", url.Values{
		"type": {"revenue"}, "description": {"Bad link"}, "amount": {"5"}, "date": {"2024-01-10"},
		"linked_expense_id": {itoa(revenues[0].ID)},
	}, session)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), core.MsgLinkMustBeExpense) {
		t.Fatalf("link to revenue should be rejected, status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `value="Bad link"`) {
		t.Fatal("rejected form should keep the submitted values")
	}

	rec = e.do(t, http.MethodPost, "/transactions", url.Values{
		"type": {"expense"}, "description": {""}, "amount": {"0"}, "date": {"not-a-date"},
	}, session)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	for _, want := range []string{"the description field is required.", "the amount must be at least 0.01.", "the date field is required."} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("missing %q", want)
		}
	}

	rec = e.do(t, http.MethodPost, "/transactions", url.Values{
		"type": {"expense"}, "description": {"Toner"}, "amount": {"abc"}, "date": {"2024-01-10"},
	}, session)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, core.MsgAmountNotNumeric) || strings.Contains(body, core.MsgAmountTooSmall) {
		t.Fatal("a non-numeric amount should be reported as such")
	}

	revenueID := revenues[0].ID
	rec = e.do(t, http.MethodGet, "/transactions/"+itoa(revenueID)+"/edit", nil, session)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/transactions/"+itoa(revenueID), url.Values{
		"type": {"expense"}, "description": {"Consulting"}, "amount": {"1000"}, "date": {"2024-01-10"},
		"linked_expense_id": {itoa(expenseID)},
	}, session)
	assertRedirect(t, rec, "/transactions/expenses")
	got, _ := e.ledger.Get(context.Background(), ada.Actor(), revenueID)
	if got.Type != core.Expense || got.LinkedExpenseID != nil {
		t.Fatalf("retyped row should drop its link: %+v", got.Transaction)
	}

	assertRedirect(t, e.do(t, http.MethodPost, "/transactions/"+itoa(expenseID)+"/delete", url.Values{}, session), "/transactions/expenses")
	if rec := e.do(t, http.MethodGet, "/transactions/"+itoa(expenseID)+"/edit", nil, session); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted row edit status = %d, want 404", rec.Code)
	}
}

func TestOwnerOnlyWrites(t *testing.T) {
	e := newTestEnv(t)
	ada := e.addUser(t, "Ada", "ada@example.com", core.RoleAdmin)
	bob := e.addUser(t, "Bob", "bob@example.com", core.RoleUser)
	tx := e.addTransaction(t, ada, core.Expense, "Hosting", "20", "2024-03-01")
	bobSession := e.session(t, bob)

	rec := e.do(t, http.MethodGet, "/transactions/expenses", nil, bobSession)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Hosting") {
		t.Fatal("every user reads the shared ledger")
	}
	if strings.Contains(rec.Body.String(), "/transactions/"+itoa(tx.ID)+"/edit") {
		t.Fatal("edit links are only offered to the owner")
	}

	tests := []struct {
		name   string
		method string
		path   string
		form   url.Values
	}{
		{"edit form", http.MethodGet, "/transactions/" + itoa(tx.ID) + "/edit", nil},
		{"update", http.MethodPost, "/transactions/" + itoa(tx.ID), url.Values{"type": {"expense"}, "description": {"x"}, "amount": {"1"}, "date": {"2024-03-01"}}},
		{"delete", http.MethodPost, "/transactions/" + itoa(tx.ID) + "/delete", url.Values{}},
		{"delete verb", http.MethodDelete, "/transactions/" + itoa(tx.ID), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := e.do(t, tt.method, tt.path, tt.form, bobSession); rec.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", rec.Code)
			}
		})
	}

	if _, err := e.ledger.Get(context.Background(), ada.Actor(), tx.ID); err != nil {
		t.Fatalf("forbidden writes must leave the row alone: %v", err)
	}
}

func TestExportCSV(t *testing.T) {
	e := newTestEnv(t)
	ada := e.addUser(t, "Ada", "ada@example.com", core.RoleAdmin)
	e.addTransaction(t, ada, core.Expense, "Paper", "12.5", "2024-01-05")
	e.addTransaction(t, ada, core.Expense, "Ink, black", "40", "2024-01-06")

	rec := e.do(t, http.MethodGet, "/transactions/expenses/export", nil, e.session(t, ada))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="expenses-export-2024-03-15.csv"` {
		t.Fatalf("Content-Disposition = %q", got)
	}

	want := "Date,Description,Amount,Created By\n" +
		"2024-01-06,\"Ink, black\",40.00,Ada\n" +
		"2024-01-05,Paper,12.50,Ada\n"
	if rec.Body.String() != want {
		t.Fatalf("body =\n%s\nwant\n%s", rec.Body.String(), want)
	}
}

func TestExportXLSX(t *testing.T) {
	e := newTestEnv(t)
	ada := e.addUser(t, "Ada", "ada@example.com", core.RoleAdmin)
	e.addTransaction(t, ada, core.Revenue, "Sale", "99", "2024-02-01")

	rec := e.do(t, http.MethodGet, "/transactions/revenue/export.xlsx", nil, e.session(t, ada))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Fatal("xlsx body should be a zip archive")
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "revenue-export-2024-03-15.xlsx") {
		t.Fatalf("Content-Disposition = %q", got)
	}
}

func TestDashboard(t *testing.T) {
	e := newTestEnv(t)
	ada := e.addUser(t, "Ada", "ada@example.com", core.RoleAdmin)
	e.addTransaction(t, ada, core.Revenue, "Sale", "1000", "2024-03-01")
	e.addTransaction(t, ada, core.Expense, "Rent", "300", "2024-03-02")

	rec := e.do(t, http.MethodGet, "/dashboard", nil, e.session(t, ada))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"$1,000.00", "$300.00", "$700.00", "Apr 2023", "Mar 2024"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestUserManagement(t *testing.T) {
	e := newTestEnv(t)
	ada := e.addUser(t, "Ada", "ada@example.com", core.RoleAdmin)
	bob := e.addUser(t, "Bob", "bob@example.com", core.RoleUser)
	adminSession := e.session(t, ada)

	if rec := e.do(t, http.MethodGet, "/settings/users", nil, e.session(t, bob)); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", rec.Code)
	}

	rec := e.do(t, http.MethodGet, "/settings/users", nil, adminSession)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "bob@example.com") {
		t.Fatalf("admin listing status = %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/settings/users", url.Values{
		"name": {"Bobby"}, "email": {"bob@example.com"}, "password": {"password123"}, "password_confirmation": {"password123"}, "role": {"user"},
	}, adminSession)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), services.MsgEmailTaken) {
		t.Fatalf("duplicate email status = %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/settings/users", url.Values{
		"name": {"Cy"}, "email": {"cy@example.com"}, "password": {"password123"}, "password_confirmation": {"password123"}, "role": {"user"},
	}, adminSession)
	assertRedirect(t, rec, "/settings/users")

	rec = e.do(t, http.MethodPost, "/settings/users/"+itoa(bob.ID), url.Values{
		"name": {"Robert"}, "email": {"bob@example.com"}, "role": {"admin"},
	}, adminSession)
	assertRedirect(t, rec, "/settings/users")
	updated, _ := e.store.GetUser(context.Background(), bob.ID)
	if updated.Name != "Robert" || updated.Role != core.RoleAdmin {
		t.Fatalf("update not applied: %+v", updated)
	}
	if err := auth.CheckPassword(updated.PasswordHash, "password123"); err != nil {
		t.Fatal("a blank password must keep the current one")
	}

	if rec := e.do(t, http.MethodPost, "/settings/users/"+itoa(ada.ID)+"/delete", url.Values{}, adminSession); rec.Code != http.StatusForbidden {
		t.Fatalf("self delete status = %d, want 403", rec.Code)
	}
	assertRedirect(t, e.do(t, http.MethodPost, "/settings/users/"+itoa(bob.ID)+"/delete", url.Values{}, adminSession), "/settings/users")
	if rec := e.do(t, http.MethodGet, "/settings/users/"+itoa(bob.ID)+"/edit", nil, adminSession); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted user edit status = %d, want 404", rec.Code)
	}
}

func TestOutOfRangePage(t *testing.T) {
	e := newTestEnv(t)
	ada := e.addUser(t, "Ada", "ada@example.com", core.RoleAdmin)
	e.addTransaction(t, ada, core.Expense, "Paper", "12.5", "2024-01-05")
	session := e.session(t, ada)

	for _, path := range []string{
		"/transactions?page=500000000000000000",
		"/transactions/expenses?page=9223372036854775807",
		"/settings/users?page=500000000000000000",
	} {
		rec := e.do(t, http.MethodGet, path, nil, session)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "Paper") {
			t.Fatalf("%s should not repeat the first page", path)
		}
	}
}

func TestPageParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 1},
		{"page=abc", 1},
		{"page=-3", 1},
		{"page=4", 4},
		{"page=500000000000000000", core.MaxPage},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/transactions?"+tt.query, nil)
		if got := pageParam(r); got != tt.want {
			t.Errorf("pageParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/health", "/ready"} {
		rec := e.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		var body map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if body["status"] != "ok" && body["status"] != "ready" {
			t.Fatalf("%s status field = %v", path, body["status"])
		}
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/setup", nil)
	if rec.Header().Get("Content-Security-Policy") == "" || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("security headers missing")
	}
	if !strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_") {
		t.Fatal("request id header missing")
	}
}

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{99999, "$999.99"},
		{123450, "$1,234.50"},
		{-1200, "-$12.00"},
		{100000000, "$1,000,000.00"},
	}
	for _, tt := range tests {
		if got := formatCurrency(core.Money{Cents: tt.cents}); got != tt.want {
			t.Errorf("formatCurrency(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
