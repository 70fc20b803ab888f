package otp

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/tim-gee/telegram-otp-bot/internal/apperr"
	"github.com/tim-gee/telegram-otp-bot/internal/gateway"
	"github.com/tim-gee/telegram-otp-bot/internal/l10n"
	"github.com/tim-gee/telegram-otp-bot/internal/utils"
)

const displayTimeLayout = "2006-01-02 15:04:05"

// Sender relays OTP messages to one chat.
type Sender struct {
	chat      gateway.Sender
	target    string
	localizer *l10n.Localizer
}

func NewSender(_ context.Context, chat gateway.Sender, target string, localizer *l10n.Localizer) *Sender {
	utils.Assert(chat != nil, "chat sender can not be nil")
	utils.Assert(localizer != nil, "localizer can not be nil")
	return &Sender{chat: chat, target: target, localizer: localizer}
}

// SendOTPs sends msgs as one chat message: the single-message template for
// one OTP, the batch template otherwise.
func (o Sender) SendOTPs(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return o.SendText(ctx, o.FormatOTPs(msgs))
}

// SendText sends already formatted HTML text.
func (o Sender) SendText(ctx context.Context, text string) error {
	err := o.chat.Send(ctx, o.target, gateway.Message{Text: text, ParseMode: gateway.ParseModeHTML})
	if err != nil && !errors.Is(err, apperr.ErrNotify) {
		return fmt.Errorf("%w: %w", apperr.ErrNotify, err)
	}
	return err
}

func (o Sender) Localizer() *l10n.Localizer {
	return o.localizer
}

func (o Sender) FormatOTPs(msgs []Message) string {
	if len(msgs) == 1 {
		return o.localizer.GetWithData("OtpSingle", o.templateData(msgs[0]))
	}

	var b strings.Builder
	b.WriteString(o.localizer.GetWithData("OtpBatchHeader", map[string]any{"Count": len(msgs)}))
	b.WriteString("\n")
	for i, m := range msgs {
		data := o.templateData(m)
		data["Index"] = i + 1
		b.WriteString("\n")
		b.WriteString(o.localizer.GetWithData("OtpBatchItem", data))
	}
	return b.String()
}

func (o Sender) templateData(m Message) map[string]any {
	unknown := o.localizer.GetWithId("Unknown")

	received := m.Received
	if !m.ReceivedAt.IsZero() {
		received = m.ReceivedAt.Format(displayTimeLayout)
	}

	return map[string]any{
		"Code":    html.EscapeString(utils.FirstNonEmpty(m.Code, unknown)),
		"Number":  html.EscapeString(utils.FirstNonEmpty(m.Number, unknown)),
		"Service": html.EscapeString(utils.FirstNonEmpty(m.Service, unknown)),
		"Time":    html.EscapeString(utils.FirstNonEmpty(received, unknown)),
		"Text":    html.EscapeString(utils.FirstNonEmpty(m.Text, unknown)),
	}
}
