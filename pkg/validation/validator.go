package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/platinummonkey/turnstile/pkg/apperror"
)

// Validator checks account request fields
type Validator struct {
	config *ValidationConfig
}

// ValidationConfig defines validation rules
type ValidationConfig struct {
	// MinPasswordLength is the shortest accepted password
	MinPasswordLength int
	// MaxPasswordLength bounds the input to the password hasher
	MaxPasswordLength int
	// MaxNameLength bounds first and last names
	MaxNameLength int
	// MaxEmailLength bounds email addresses
	MaxEmailLength int
}

// DefaultValidationConfig returns default validation settings
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MinPasswordLength: 8,
		MaxPasswordLength: 256,
		MaxNameLength:     100,
		MaxEmailLength:    254,
	}
}

// NewValidator creates a new validator
func NewValidator(config *ValidationConfig) *Validator {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &Validator{config: config}
}

// result collects field errors in request order
type result struct {
	fields []apperror.FieldError
}

func (r *result) add(path, message string) {
	r.fields = append(r.fields, apperror.FieldError{Path: path, Message: message})
}

func (r *result) err() error {
	if len(r.fields) == 0 {
		return nil
	}
	return apperror.Validation(r.fields...)
}

// ValidateRegistration checks a password registration request
func (v *Validator) ValidateRegistration(email, firstName, lastName, password string) error {
	res := &result{}
	v.checkEmail(res, email)
	v.checkName(res, "firstName", firstName, true)
	v.checkName(res, "lastName", lastName, true)
	v.checkPassword(res, password)
	return res.err()
}

// ValidateLogin checks a password login request. Only presence and email
// syntax are checked so password policy changes never lock out old accounts.
func (v *Validator) ValidateLogin(email, password string) error {
	res := &result{}
	v.checkEmail(res, email)
	if password == "" {
		res.add("password", "password is required")
	}
	return res.err()
}

// ValidateEmail checks a single optional email, as sent to passkey login
func (v *Validator) ValidateEmail(email string) error {
	if email == "" {
		return nil
	}
	res := &result{}
	v.checkEmail(res, email)
	return res.err()
}

// ValidateProfile checks the fields present in a profile update
func (v *Validator) ValidateProfile(firstName, lastName, profileImage *string) error {
	res := &result{}
	if firstName != nil {
		v.checkName(res, "firstName", *firstName, true)
	}
	if lastName != nil {
		v.checkName(res, "lastName", *lastName, true)
	}
	if profileImage != nil && *profileImage != "" && !isHTTPURL(*profileImage) {
		res.add("profileImage", "profileImage must be an http(s) URL")
	}
	return res.err()
}

func (v *Validator) checkEmail(res *result, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		res.add("email", "email is required")
	case len(email) > v.config.MaxEmailLength:
		res.add("email", "email is too long")
	case !isAddress(email):
		res.add("email", "invalid email")
	}
}

func (v *Validator) checkName(res *result, path, name string, required bool) {
	name = strings.TrimSpace(name)
	switch {
	case name == "" && required:
		res.add(path, path+" is required")
	case utf8.RuneCountInString(name) > v.config.MaxNameLength:
		res.add(path, path+" is too long")
	}
}

func (v *Validator) checkPassword(res *result, password string) {
	switch n := utf8.RuneCountInString(password); {
	case n == 0:
		res.add("password", "password is required")
	case n < v.config.MinPasswordLength:
		res.add("password", fmt.Sprintf("password must be at least %d characters", v.config.MinPasswordLength))
	case len(password) > v.config.MaxPasswordLength:
		res.add("password", "password is too long")
	}
}

// isAddress accepts a bare address; "Name <a@b.c>" forms are rejected
func isAddress(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	_, domain, ok := strings.Cut(addr.Address, "@")
	return ok && domain != "" && !strings.HasPrefix(domain, "[")
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
