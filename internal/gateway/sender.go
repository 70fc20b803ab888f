package gateway

import "context"

type ParseMode string

const (
	ParseModeHTML     ParseMode = "HTML"
	ParseModeMarkdown ParseMode = "MarkdownV2"
	ParseModePlain    ParseMode = ""
)

type Message struct {
	Text      string
	ParseMode ParseMode
}

// Sender delivers a message to target. A nil error means the chat service
// accepted the whole message.
type Sender interface {
	Send(ctx context.Context, target string, msg Message) error
}
