package email

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/tim-gee/telegram-otp-bot/internal/apperr"
)

type Email struct {
	email string
}

func New(email string) *Email {
	return &Email{email: strings.ToLower(strings.TrimSpace(email))}
}

func (e *Email) String() string {
	return e.email
}

func (e *Email) IsValidEmail() bool {
	a, err := mail.ParseAddress(e.email)
	return err == nil && a.Address == e.email
}

func (e *Email) IsValidEmailErr() error {
	if e.IsValidEmail() {
		return nil
	}
	return fmt.Errorf("%w: %q", apperr.ErrInvalidEmail, e.Masked())
}

// Masked keeps the first character of the local part and the domain,
// e.g. "j***@example.com". Safe to put in logs.
func (e *Email) Masked() string {
	local, domain, ok := strings.Cut(e.email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
