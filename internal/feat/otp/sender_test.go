package otp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tim-gee/telegram-otp-bot/internal/apperr"
	"github.com/tim-gee/telegram-otp-bot/internal/gateway"
	"github.com/tim-gee/telegram-otp-bot/internal/l10n"
	"golang.org/x/text/language"
)

type recordingChat struct {
	sent   []gateway.Message
	target string
	err    error
}

func (c *recordingChat) Send(_ context.Context, target string, msg gateway.Message) error {
	c.target = target
	c.sent = append(c.sent, msg)
	return c.err
}

func newTestSender(t *testing.T, chat gateway.Sender) *Sender {
	t.Helper()
	ctx := context.Background()
	l10n.InitL10n(ctx, []language.Tag{language.English, language.Arabic})
	return NewSender(ctx, chat, "-100123", l10n.GetLocalizer(language.English))
}

func TestSendOTPs_SingleMessage(t *testing.T) {
	chat := &recordingChat{}
	s := newTestSender(t, chat)

	err := s.SendOTPs(context.Background(), []Message{{
		Number:     "+15550001",
		Service:    "WhatsApp",
		Code:       "482913",
		Text:       "Your code is <482913>",
		ReceivedAt: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
	}})
	require.NoError(t, err)
	require.Len(t, chat.sent, 1)

	msg := chat.sent[0]
	assert.Equal(t, "-100123", chat.target)
	assert.Equal(t, gateway.ParseModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "New OTP Received")
	assert.Contains(t, msg.Text, "<code>482913</code>")
	assert.Contains(t, msg.Text, "2024-05-01 10:30:00")
	assert.Contains(t, msg.Text, "&lt;482913&gt;", "message text must be escaped")
}

func TestSendOTPs_BatchMessage(t *testing.T) {
	chat := &recordingChat{}
	s := newTestSender(t, chat)

	err := s.SendOTPs(context.Background(), []Message{
		{Number: "+1", Code: "111"},
		{Number: "+2", Code: "222", Service: "Telegram"},
	})
	require.NoError(t, err)
	require.Len(t, chat.sent, 1)

	text := chat.sent[0].Text
	assert.Contains(t, text, "2 New OTPs Received")
	assert.Contains(t, text, "1. 🔢 <code>111</code> | 🌐 Unknown")
	assert.Contains(t, text, "2. 🔢 <code>222</code> | 🌐 Telegram")
	assert.Less(t, strings.Index(text, "<code>111</code>"), strings.Index(text, "<code>222</code>"))
}

func TestSendOTPs_EmptyIsNoop(t *testing.T) {
	chat := &recordingChat{}
	s := newTestSender(t, chat)

	require.NoError(t, s.SendOTPs(context.Background(), nil))
	assert.Empty(t, chat.sent)
}

func TestSendText_WrapsChatErrors(t *testing.T) {
	chat := &recordingChat{err: errors.New("bad gateway")}
	s := newTestSender(t, chat)

	err := s.SendText(context.Background(), "hello")
	assert.ErrorIs(t, err, apperr.ErrNotify)
	assert.ErrorContains(t, err, "bad gateway")
}
