package session

import (
	"fmt"
	"strings"
	"unicode"
)

// Policy holds the client-side registration rules.
type Policy struct {
	MinSecretLength    int
	RequireUppercase   bool
	RequireDigit       bool
	RequireTerms       bool
	LoginAfterRegister bool
}

// DefaultPolicy returns the rules of the club registration form.
func DefaultPolicy() Policy {
	return Policy{
		MinSecretLength:  8,
		RequireUppercase: true,
		RequireDigit:     true,
		RequireTerms:     true,
	}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username           string `json:"username"`
	Email              string `json:"email"`
	Name               string `json:"name"`
	Secret             string `json:"password"`
	SecretConfirmation string `json:"passwordConfirm"`
	EmailNotifications bool   `json:"emailNotifications"`
	AcceptTerms        bool   `json:"acceptTerms"`
}

// Validate checks the form in the order the fields are presented and stops at the first problem.
func (p Policy) Validate(in RegisterInput) *Error {
	required := []struct {
		value, msg string
	}{
		{strings.TrimSpace(in.Username), "username is required"},
		{strings.TrimSpace(in.Email), "email is required"},
		{in.Secret, "password is required"},
		{in.SecretConfirmation, "please confirm your password"},
	}
	for _, r := range required {
		if r.value == "" {
			return newError(KindValidation, r.msg, nil)
		}
	}

	if msg := p.checkSecret(in.Secret); msg != "" {
		return newError(KindValidation, msg, nil)
	}

	if in.Secret != in.SecretConfirmation {
		return newError(KindValidation, "passwords do not match", nil)
	}

	if p.RequireTerms && !in.AcceptTerms {
		return newError(KindValidation, "you must accept the terms and conditions", nil)
	}
	return nil
}

func (p Policy) checkSecret(secret string) string {
	if len([]rune(secret)) < p.MinSecretLength {
		return fmt.Sprintf("password must be at least %d characters long", p.MinSecretLength)
	}
	if p.RequireUppercase && !strings.ContainsFunc(secret, unicode.IsUpper) {
		return "password must contain at least one uppercase letter"
	}
	if p.RequireDigit && !strings.ContainsFunc(secret, unicode.IsDigit) {
		return "password must contain at least one number"
	}
	return ""
}
