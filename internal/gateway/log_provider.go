package gateway

import (
	"context"

	"github.com/rs/zerolog"
)

// logProvider is the dry-run chat provider: messages end up in the log only.
type logProvider struct{}

func newLogProvider() Sender {
	return logProvider{}
}

func (logProvider) Send(ctx context.Context, target string, msg Message) error {
	zerolog.Ctx(ctx).Info().
		Str("provider", ProviderLog).
		Str("target", target).
		Str("parse_mode", string(msg.ParseMode)).
		Str("text", msg.Text).
		Msg("message sent")
	return nil
}
