package portal

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jinzhu/now"
	jsoniter "github.com/json-iterator/go"
	"github.com/tim-gee/telegram-otp-bot/internal/feat/otp"
)

var json = jsoniter.Config{UseNumber: true}.Froze()

var (
	listKeys    = []string{"messages", "data", "sms", "aaData", "items"}
	numberKeys  = []string{"number", "num", "phone", "phone_number", "sender", "range"}
	serviceKeys = []string{"service", "cli", "app", "source", "originator"}
	codeKeys    = []string{"otp", "code", "otp_code"}
	textKeys    = []string{"message", "text", "sms", "body", "content"}
	timeKeys    = []string{"time", "received_at", "date", "timestamp", "created_at"}
)

// "123456", "123-456" and "123 456" style codes.
var codePattern = regexp.MustCompile(`\b(\d{3}[- ]\d{3}|\d{4,8})\b`)

var timeParser = &now.Config{
	TimeLocation: time.UTC,
	TimeFormats:  now.TimeFormats,
	WeekStartDay: now.WeekStartDay,
}

// Extract parses a messages response. Entries that can not be understood are
// skipped and a response that can not be parsed at all yields no messages.
// The portal's order is kept.
func Extract(raw RawResponse) []otp.Message {
	body := bytes.TrimSpace(raw.Body)
	if len(body) == 0 {
		return nil
	}

	switch body[0] {
	case '{', '[':
		return extractJSON(body)
	case '<':
		return extractHTML(body)
	default:
		return nil
	}
}

func extractJSON(body []byte) []otp.Message {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil
	}

	var entries []any
	switch v := doc.(type) {
	case []any:
		entries = v
	case map[string]any:
		for _, key := range listKeys {
			if list, ok := v[key].([]any); ok {
				entries = list
				break
			}
		}
	}

	msgs := make([]otp.Message, 0, len(entries))
	for _, entry := range entries {
		var (
			m  otp.Message
			ok bool
		)
		switch row := entry.(type) {
		case map[string]any:
			m, ok = messageFromFields(row)
		case []any:
			m, ok = messageFromRow(row)
		}
		if ok {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// messageFromRow reads a DataTables style array row laid out like the
// received-sms table: time, number, service, message and an optional code.
// Cells may carry markup.
func messageFromRow(row []any) (otp.Message, bool) {
	if len(row) < 4 {
		return otp.Message{}, false
	}
	cell := func(i int) string {
		return plainText(stringify(row[i]))
	}
	m := otp.Message{
		Received: cell(0),
		Number:   cell(1),
		Service:  cell(2),
		Text:     cell(3),
	}
	if len(row) > 4 {
		m.Code = cell(4)
	}
	return finishMessage(m)
}

func messageFromFields(fields map[string]any) (otp.Message, bool) {
	m := otp.Message{
		Number:   lookup(fields, numberKeys),
		Service:  lookup(fields, serviceKeys),
		Code:     lookup(fields, codeKeys),
		Text:     lookup(fields, textKeys),
		Received: lookup(fields, timeKeys),
	}
	return finishMessage(m)
}

// extractHTML reads the received-sms table: time, number, service, message.
func extractHTML(body []byte) []otp.Message {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var msgs []otp.Message
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		cell := func(i int) string {
			return collapseSpace(cells.Eq(i).Text())
		}
		m := otp.Message{
			Received: cell(0),
			Number:   cell(1),
			Service:  cell(2),
			Text:     cell(3),
		}
		if cells.Length() > 4 {
			m.Code = cell(4)
		}
		if m, ok := finishMessage(m); ok {
			msgs = append(msgs, m)
		}
	})
	return msgs
}

// finishMessage fills the code from the text when the portal did not report
// one and parses the timestamp. Entries without any code are dropped.
func finishMessage(m otp.Message) (otp.Message, bool) {
	if m.Code == "" {
		m.Code = codeFromText(m.Text)
	}
	if m.Code == "" {
		return otp.Message{}, false
	}
	m.ReceivedAt = parseTime(m.Received)
	return m, true
}

func plainText(s string) string {
	if !strings.ContainsRune(s, '<') {
		return collapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(s)
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func codeFromText(text string) string {
	match := codePattern.FindString(text)
	return strings.NewReplacer("-", "", " ", "").Replace(match)
}

func lookup(fields map[string]any, keys []string) string {
	for _, key := range keys {
		if s := stringify(fields[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool, map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch len(s) {
		case 10:
			return time.Unix(unix, 0).UTC()
		case 13:
			return time.UnixMilli(unix).UTC()
		}
		return time.Time{}
	}
	t, err := timeParser.Parse(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
