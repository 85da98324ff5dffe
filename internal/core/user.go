package core

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password accepted for an account.
const MinPasswordLength = 8

// UserInput is the account form shared by setup and user management.
type UserInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
	Role                 Role
}

func (in *UserInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = RoleUser
	}
}

// Validate checks the account fields. On update an empty password keeps
// the current one, so requirePassword is false there.
func (in UserInput) Validate(requirePassword bool) error {
	verr := NewValidationError()
	switch {
	case in.Name == "":
		verr.Add(FieldName, "the name field is required.")
	case utf8.RuneCountInString(in.Name) > 255:
		verr.Add(FieldName, "the name may not be greater than 255 characters.")
	}
	if in.Email == "" {
		verr.Add(FieldEmail, "the email field is required.")
	} else if _, err := mail.ParseAddress(in.Email); err != nil || !strings.Contains(in.Email, "@") {
		verr.Add(FieldEmail, "the email must be a valid email address.")
	}
	if in.Password != "" || requirePassword {
		if len(in.Password) < MinPasswordLength {
			verr.Add(FieldPassword, "the password must be at least 8 characters.")
		}
		if in.Password != in.PasswordConfirmation {
			verr.Add(FieldPassword, "the password confirmation does not match.")
		}
	}
	if _, err := ParseRole(string(in.Role)); err != nil {
		verr.Add(FieldRole, "the selected role is invalid.")
	}
	return verr.Err()
}
