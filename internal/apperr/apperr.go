package apperr

import "errors"

var (
	ErrConfig = errors.New("invalid configuration")

	ErrAuth        = errors.New("portal authentication failed")
	ErrNeedsReauth = errors.New("portal session expired")
	ErrFetch       = errors.New("portal fetch failed")

	ErrNotify = errors.New("notification delivery failed")

	ErrInvalidEmail = errors.New("invalid email")
)

// IsFatalAtStartup reports whether err must abort the process instead of
// being retried by the poll loop.
func IsFatalAtStartup(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrAuth)
}
