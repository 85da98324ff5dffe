package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"ledger/internal/auth"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
	appweb "ledger/web"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the web server needs.
type Deps struct {
	Ledger  *services.LedgerService
	Reports *services.Reports
	Users   *services.UserService
	Tokens  *auth.TokenIssuer
	Store   Pinger
	Logger  *log.Logger

	CookieSecure       bool
	RateLimitPerMinute int

	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	http.Server
	ledger  *services.LedgerService
	reports *services.Reports
	users   *services.UserService
	tokens  *auth.TokenIssuer
	store   Pinger
	logger  *log.Logger

	templates    map[string]*template.Template
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	cookieSecure bool
	now          func() time.Time
	startedAt    time.Time

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and builds the router. A
// template error is fatal so a broken build never starts serving.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Ledger == nil || deps.Reports == nil || deps.Users == nil || deps.Tokens == nil {
		return nil, errors.New("http server: ledger, reports, users and tokens are required")
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	templates, err := parseTemplates(appweb.TemplatesFS)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		ledger:       deps.Ledger,
		reports:      deps.Reports,
		users:        deps.Users,
		tokens:       deps.Tokens,
		store:        deps.Store,
		logger:       deps.Logger.WithComponent(log.ComponentHTTP),
		templates:    templates,
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector:     security.NewDetector(),
		cookieSecure: deps.CookieSecure,
		now:          deps.Now,
		startedAt:    deps.Now(),
	}

	handler, err := s.routes()
	if err != nil {
		s.limiter.Stop()
		return nil, err
	}
	s.Handler = handler
	return s, nil
}

func (s *Server) routes() (http.Handler, error) {
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(trace.NewMiddleware(s.logger, s.detector.ExtractClientIP).Middleware)
	r.Use(s.detector.Middleware(s.logger))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(chimw.StripSlashes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderStatus(w, r, http.StatusNotFound)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.With(security.StaticAssetMiddleware(3600)).
		Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	credentials := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.NewFields().WithClientIP(s.detector.ExtractClientIP(r)).WithHTTPRequest(r.Method, r.URL.Path, "", "").ToSlice()...)
		s.renderStatus(w, r, http.StatusTooManyRequests)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.setupGate)
		r.Use(s.loadSession)

		r.Get("/setup", s.handleSetupForm)
		r.With(credentials).Post("/setup", s.handleSetup)
		r.Get("/login", s.handleLoginForm)
		r.With(credentials).Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/dashboard", http.StatusFound)
			})
			r.Get("/dashboard", s.handleDashboard)

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", s.handleTransactionIndex)
				r.Post("/", s.handleTransactionStore)
				r.Get("/revenue", s.handleRevenueIndex)
				r.Get("/revenue/create", s.handleCreateRevenue)
				r.Get("/revenue/export", s.handleExportRevenue)
				r.Get("/revenue/export.xlsx", s.handleExportRevenueXLSX)
				r.Get("/expenses", s.handleExpenseIndex)
				r.Get("/expense/create", s.handleCreateExpense)
				r.Get("/expenses/export", s.handleExportExpenses)
				r.Get("/expenses/export.xlsx", s.handleExportExpensesXLSX)

				r.Get("/{id:[0-9]+}/edit", s.handleTransactionEdit)
				r.Post("/{id:[0-9]+}", s.handleTransactionUpdate)
				r.Put("/{id:[0-9]+}", s.handleTransactionUpdate)
				r.Post("/{id:[0-9]+}/delete", s.handleTransactionDelete)
				r.Delete("/{id:[0-9]+}", s.handleTransactionDelete)
			})

			r.Route("/settings/users", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/", s.handleUserIndex)
				r.Get("/create", s.handleUserCreateForm)
				r.Post("/", s.handleUserStore)
				r.Get("/{id:[0-9]+}/edit", s.handleUserEdit)
				r.Post("/{id:[0-9]+}", s.handleUserUpdate)
				r.Put("/{id:[0-9]+}", s.handleUserUpdate)
				r.Post("/{id:[0-9]+}/delete", s.handleUserDelete)
				r.Delete("/{id:[0-9]+}", s.handleUserDelete)
			})
		})
	})

	return r, nil
}

// Shutdown stops the rate limiter and drains the HTTP server. Safe to call
// more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
