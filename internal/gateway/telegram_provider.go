package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/apperr"
)

// Telegram rejects texts above 4096 characters; keep some room.
const telegramMaxLen = 4000

type telegramProvider struct {
	bot *tgbotapi.BotAPI
}

func newTelegramProvider(ctx context.Context, botToken string) (Sender, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("%w: telegram bot token rejected: %w", apperr.ErrConfig, err)
	}
	zerolog.Ctx(ctx).Info().Str("bot_username", bot.Self.UserName).Msg("Telegram bot initialized successfully")
	return &telegramProvider{bot: bot}, nil
}

func (p *telegramProvider) Send(ctx context.Context, target string, msg Message) error {
	zlog := zerolog.Ctx(ctx).With().Str("provider", ProviderTelegram).Str("target", target).Logger()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return fmt.Errorf("%w: empty message", apperr.ErrNotify)
	}

	chunks := splitText(text, telegramMaxLen)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", apperr.ErrNotify, err)
		}

		cfg, err := newMessageConfig(target, chunk)
		if err != nil {
			return err
		}
		cfg.ParseMode = string(msg.ParseMode)
		cfg.DisableWebPagePreview = true

		if _, err := p.bot.Send(cfg); err != nil {
			zlog.Err(err).Int("chunk", i+1).Int("chunks", len(chunks)).Msg("Failed to send Telegram message")
			return fmt.Errorf("%w: %w", apperr.ErrNotify, err)
		}
	}

	zlog.Info().Int("chunks", len(chunks)).Msg("Message sent to Telegram successfully")
	return nil
}

// newMessageConfig accepts numeric chat ids ("-100123") and public
// channel usernames ("@channel").
func newMessageConfig(target, text string) (tgbotapi.MessageConfig, error) {
	if strings.HasPrefix(target, "@") {
		return tgbotapi.NewMessageToChannel(target, text), nil
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("%w: invalid telegram chat id %q", apperr.ErrConfig, target)
	}
	return tgbotapi.NewMessage(chatID, text), nil
}

// splitText cuts text into chunks of at most maxLen bytes, preferring line
// boundaries so HTML tags, which never span lines in our templates, stay
// balanced.
func splitText(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			flush()
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut <= 0 {
				// maxLen is shorter than the first rune, emit the rune whole
				_, cut = utf8.DecodeRuneInString(line)
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if current.Len()+len(line)+1 > maxLen {
			flush()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()
	return chunks
}
