package http

import (
	"errors"
	"net/http"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
)

const msgBadCredentials = "these credentials do not match our records."

func (s *Server) handleSetupForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "setup.html", page{Form: userForm{}})
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	form, in := parseUserForm(r)
	u, err := s.users.Setup(r.Context(), in)
	if err != nil {
		if verr, ok := asValidation(err); ok {
			s.render(w, r, http.StatusUnprocessableEntity, "setup.html", page{Form: form, Errors: verr})
			return
		}
		s.fail(w, r, err)
		return
	}

	if err := s.startSession(w, u); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.redirectWithFlash(w, r, "/dashboard", "Welcome, "+u.Name+". Your administrator account is ready.")
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", page{Form: userForm{}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	form := userForm{Email: sanitizeInput(r.PostFormValue("email"))}
	u, err := s.users.Authenticate(r.Context(), form.Email, r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.render(w, r, http.StatusUnprocessableEntity, "login.html", page{
				Form:   form,
				Errors: core.FieldError(core.FieldEmail, msgBadCredentials),
			})
			return
		}
		s.serverError(w, r, err)
		return
	}

	if err := s.startSession(w, u); err != nil {
		s.serverError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "User signed in",
		log.NewFields().WithOperation(log.OpLogin).WithUser(u.ID, string(u.Role)).ToSlice()...)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.endSession(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
