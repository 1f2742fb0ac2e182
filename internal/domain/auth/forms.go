package auth

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	maxNameLen     = 120
	minPasswordLen = 6
	maxPasswordLen = 128
)

// FormError carries per-field messages from local form validation.
type FormError struct {
	Fields map[string]string
}

func (e *FormError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// FirstField returns the alphabetically first invalid field.
func (e *FormError) FirstField() string {
	first := ""
	for k := range e.Fields {
		if first == "" || k < first {
			first = k
		}
	}
	return first
}

// FieldErrors extracts per-field messages from err, or nil.
func FieldErrors(err error) map[string]string {
	var fe *FormError
	if errors.As(err, &fe) {
		return fe.Fields
	}
	return nil
}

func toFormError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for k, v := range verrs {
		if v != nil {
			fields[k] = v.Error()
		}
	}
	return &FormError{Fields: fields}
}

// LoginForm is the submitted sign-in form.
type LoginForm struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims the email.
func (f *LoginForm) Normalize() {
	f.Email = strings.TrimSpace(f.Email)
}

// Validate rejects empty fields before any network call.
func (f LoginForm) Validate() error {
	return toFormError(validation.ValidateStruct(&f,
		validation.Field(&f.Email, validation.Required.Error("Email is required.")),
		validation.Field(&f.Password, validation.Required.Error("Password is required.")),
	))
}

// RegistrationForm is the submitted account registration form.
type RegistrationForm struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Normalize trims name and email.
func (f *RegistrationForm) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
}

// Validate rejects empty required fields and mismatched passwords. It is a
// local check only; the backend remains authoritative.
func (f RegistrationForm) Validate() error {
	return toFormError(validation.ValidateStruct(&f,
		validation.Field(&f.Name,
			validation.Required.Error("Name is required."),
			validation.RuneLength(1, maxNameLen),
		),
		validation.Field(&f.Email,
			validation.Required.Error("Email is required."),
			is.Email.Error("Enter a valid email address."),
		),
		validation.Field(&f.Password,
			validation.Required.Error("Password is required."),
			validation.Length(minPasswordLen, maxPasswordLen).Error("Password must be at least 6 characters."),
		),
		validation.Field(&f.ConfirmPassword,
			validation.Required.Error("Confirm your password."),
			validation.By(func(value any) error {
				if s, _ := value.(string); s != f.Password {
					return errors.New("Passwords do not match.")
				}
				return nil
			}),
		),
	))
}

// Input returns the backend register input for the form.
func (f RegistrationForm) Input() RegisterInput {
	return RegisterInput{Name: f.Name, Email: f.Email, Password: f.Password}
}
