package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"

	"ledger/internal/core"
	"ledger/internal/export"
	"ledger/internal/log"
)

const (
	layoutTemplate = "layout.html"
	flashCookie    = "ledger_flash"
)

// page is the data every template receives.
type page struct {
	User   *core.Actor
	Nav    string
	Flash  string
	Form   any
	Errors *core.ValidationError
	Data   any
}

type errorPage struct {
	Title   string
	Message string
}

var templateFuncs = template.FuncMap{
	"currency":   formatCurrency,
	"fieldError": fieldError,
	"owner":      ownerName,
	"trendMax":   trendMax,
}

// parseTemplates builds one template set per page, each sharing the layout.
func parseTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	base, err := template.New(layoutTemplate).Funcs(templateFuncs).ParseFS(fsys, "templates/"+layoutTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	pages, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	out := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		name := path.Base(p)
		if name == layoutTemplate {
			continue
		}
		t, err := template.Must(base.Clone()).ParseFS(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// render executes a page into a buffer first so a template failure still
// produces a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	t, ok := s.templates[name]
	if !ok {
		s.serverError(w, r, fmt.Errorf("template %s not found", name))
		return
	}
	if p.User == nil {
		if actor, ok := actorFrom(r.Context()); ok {
			p.User = &actor
		}
	}
	if p.Flash == "" {
		p.Flash = s.takeFlash(w, r)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			append(log.NewFields().WithError(err, log.ErrorTypeInternal).WithOperation(log.OpRender).ToSlice(),
				"template", name)...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

var statusMessages = map[int]string{
	http.StatusForbidden:       "You are not allowed to do that.",
	http.StatusNotFound:        "The page you are looking for does not exist.",
	http.StatusTooManyRequests: "Too many attempts. Please wait a minute and try again.",
}

// renderStatus renders the generic error page for status.
func (s *Server) renderStatus(w http.ResponseWriter, r *http.Request, status int) {
	msg, ok := statusMessages[status]
	if !ok {
		msg = "Something went wrong. Please try again."
	}
	s.render(w, r, status, "error.html", page{Data: errorPage{Title: http.StatusText(status), Message: msg}})
}

// setFlash stores a one-shot message shown on the next rendered page.
func (s *Server) setFlash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(msg),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) takeFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1, HttpOnly: true, Secure: s.cookieSecure})
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}

// redirectWithFlash is the post/redirect/get tail of every successful write.
func (s *Server) redirectWithFlash(w http.ResponseWriter, r *http.Request, to, msg string) {
	s.setFlash(w, msg)
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// formatCurrency formats m as US dollars with thousands separators, e.g. "-$1,234.50".
func formatCurrency(m core.Money) string {
	s := m.Decimal().Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if m.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

func fieldError(v *core.ValidationError, field string) string {
	if v == nil {
		return ""
	}
	return v.First(field)
}

func ownerName(name string) string {
	if name == "" {
		return export.UnknownOwner
	}
	return name
}

// trendMax is the scale of the trend bars; never zero.
func trendMax(points []core.MonthlyPoint) int64 {
	var max int64 = 1
	for _, p := range points {
		if p.Revenue.Cents > max {
			max = p.Revenue.Cents
		}
		if p.Expenses.Cents > max {
			max = p.Expenses.Cents
		}
	}
	return max
}
