package http

import (
	"context"
	"errors"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
)

const sessionCookie = "ledger_session"

type contextKey int

const actorKey contextKey = iota

func withActor(ctx context.Context, actor core.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func actorFrom(ctx context.Context) (core.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(core.Actor)
	return actor, ok
}

// currentActor is only valid behind requireAuth.
func currentActor(r *http.Request) core.Actor {
	actor, _ := actorFrom(r.Context())
	return actor
}

func (s *Server) startSession(w http.ResponseWriter, u core.User) error {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Server) endSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setupGate sends every request to /setup while no account exists, and
// turns /setup away once one does. The store is asked on every request.
func (s *Server) setupGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		needsSetup, err := s.users.NeedsSetup(r.Context())
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		onSetup := r.URL.Path == "/setup"
		switch {
		case needsSetup && !onSetup:
			http.Redirect(w, r, "/setup", http.StatusSeeOther)
		case !needsSetup && onSetup:
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// loadSession resolves the session cookie to an actor. Invalid tokens and
// tokens of deleted accounts clear the cookie and continue anonymously.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := s.tokens.Parse(c.Value)
		if err != nil {
			log.FromContext(r.Context()).DebugContext(r.Context(), "Discarding session",
				log.NewFields().WithError(err, log.ErrorTypeAuth).ToSlice()...)
			s.endSession(w)
			next.ServeHTTP(w, r)
			return
		}

		u, err := s.users.Lookup(r.Context(), claims.UserID)
		if err != nil {
			var nf *core.NotFoundError
			if !errors.As(err, &nf) {
				s.serverError(w, r, err)
				return
			}
			s.endSession(w)
			next.ServeHTTP(w, r)
			return
		}

		actor := u.Actor()
		ctx := withActor(r.Context(), actor)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, actor.ID, log.FieldRole, string(actor.Role)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorFrom(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, ok := actorFrom(r.Context()); !ok || !actor.IsAdmin() {
			s.renderStatus(w, r, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
