package gateway

import (
	"context"
	"fmt"

	"github.com/tim-gee/telegram-otp-bot/internal/apperr"
)

const (
	ProviderTelegram = "telegram"
	ProviderLog      = "log"
)

type ProviderFactory interface {
	NewChatProvider(ctx context.Context) (Sender, error)
}

func NewProviderFactory(ctx context.Context, provider, botToken string) ProviderFactory {
	return providerImpl{provider: provider, botToken: botToken}
}

type providerImpl struct {
	provider string
	botToken string
}

func (p providerImpl) NewChatProvider(ctx context.Context) (Sender, error) {
	switch p.provider {
	case ProviderTelegram:
		return newTelegramProvider(ctx, p.botToken)
	case ProviderLog:
		return newLogProvider(), nil
	default:
		return nil, fmt.Errorf("%w: unknown chat provider %q", apperr.ErrConfig, p.provider)
	}
}
