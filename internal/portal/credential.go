package portal

import (
	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/utils/email"
)

// Credential is the portal login. The secret is unexported so it can not
// leak through %v or JSON encoding.
type Credential struct {
	Identifier string
	secret     string
}

func NewCredential(identifier, secret string) Credential {
	return Credential{Identifier: email.New(identifier).String(), secret: secret}
}

func (c Credential) Secret() string {
	return c.secret
}

func (c Credential) String() string {
	return email.New(c.Identifier).Masked()
}

func (c Credential) MarshalZerologObject(e *zerolog.Event) {
	e.Str("identifier", c.String())
}
