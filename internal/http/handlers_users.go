package http

import (
	"net/http"
	"strconv"

	"ledger/internal/core"
)

type userFormPage struct {
	Heading string
	Action  string
	Editing bool
}

func (s *Server) handleUserIndex(w http.ResponseWriter, r *http.Request) {
	p, err := s.users.List(r.Context(), currentActor(r), pageParam(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "users.html", page{Nav: "users", Data: p})
}

func (s *Server) handleUserCreateForm(w http.ResponseWriter, r *http.Request) {
	s.renderUserForm(w, r, http.StatusOK, 0, userForm{Role: string(core.RoleUser)}, nil)
}

func (s *Server) handleUserStore(w http.ResponseWriter, r *http.Request) {
	form, in := parseUserForm(r)
	u, err := s.users.Create(r.Context(), currentActor(r), in)
	if err != nil {
		if verr, ok := asValidation(err); ok {
			s.renderUserForm(w, r, http.StatusUnprocessableEntity, 0, form, verr)
			return
		}
		s.fail(w, r, err)
		return
	}
	s.redirectWithFlash(w, r, "/settings/users", "User "+u.Name+" created.")
}

func (s *Server) handleUserEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	u, err := s.users.Get(r.Context(), currentActor(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.renderUserForm(w, r, http.StatusOK, id, userForm{Name: u.Name, Email: u.Email, Role: string(u.Role)}, nil)
}

func (s *Server) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	form, in := parseUserForm(r)
	u, err := s.users.Update(r.Context(), currentActor(r), id, in)
	if err != nil {
		if verr, ok := asValidation(err); ok {
			s.renderUserForm(w, r, http.StatusUnprocessableEntity, id, form, verr)
			return
		}
		s.fail(w, r, err)
		return
	}
	s.redirectWithFlash(w, r, "/settings/users", "User "+u.Name+" updated.")
}

func (s *Server) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	if err := s.users.Delete(r.Context(), currentActor(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.redirectWithFlash(w, r, "/settings/users", "User deleted.")
}

// renderUserForm renders the create form when id is zero, the edit form otherwise.
func (s *Server) renderUserForm(w http.ResponseWriter, r *http.Request, status int, id int64, form userForm, verr *core.ValidationError) {
	data := userFormPage{Heading: "New user", Action: "/settings/users"}
	if id != 0 {
		data = userFormPage{Heading: "Edit user", Action: "/settings/users/" + strconv.FormatInt(id, 10), Editing: true}
	}
	s.render(w, r, status, "user_form.html", page{Nav: "users", Form: form, Errors: verr, Data: data})
}
