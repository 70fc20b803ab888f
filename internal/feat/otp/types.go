package otp

import (
	"time"
)

// Message is one OTP entry as reported by the portal. It is never mutated
// after extraction.
type Message struct {
	Number  string
	Service string
	Code    string
	Text    string

	// Received is the timestamp exactly as the portal printed it. ReceivedAt
	// is its parsed form and is zero when the portal format was not understood.
	Received   string
	ReceivedAt time.Time
}

// Fingerprint identifies the portal entry. Re-fetching the same entry always
// produces the same value.
func (m Message) Fingerprint() string {
	return Fingerprint(m.Number, m.Service, m.Code, m.Received, m.Text)
}

type CacheStats struct {
	TotalCached int
	Retention   time.Duration
	MaxEntries  int
}
