package http

import (
	"errors"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
)

// fail maps a service error onto a response. Validation errors are not
// handled here: handlers re-render their form with them.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound  *core.NotFoundError
		forbidden *core.ForbiddenError
		conflict  *core.ConflictError
	)
	switch {
	case errors.As(err, &notFound):
		s.renderStatus(w, r, http.StatusNotFound)
	case errors.As(err, &forbidden):
		log.FromContext(r.Context()).WarnContext(r.Context(), "Forbidden action",
			log.NewFields().WithError(err, log.ErrorTypeForbidden).ToSlice()...)
		s.renderStatus(w, r, http.StatusForbidden)
	case errors.As(err, &conflict):
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	default:
		s.serverError(w, r, err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
		log.NewFields().WithError(err, log.ErrorTypeInternal).ToSlice()...)
	s.renderStatus(w, r, http.StatusInternalServerError)
}

// asValidation reports whether err carries field errors.
func asValidation(err error) (*core.ValidationError, bool) {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
