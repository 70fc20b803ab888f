package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tim-gee/telegram-otp-bot/internal/apperr"
	"github.com/tim-gee/telegram-otp-bot/internal/clock"
	"github.com/tim-gee/telegram-otp-bot/internal/feat/otp"
	"github.com/tim-gee/telegram-otp-bot/internal/feat/otp/store"
	"github.com/tim-gee/telegram-otp-bot/internal/gateway"
	"github.com/tim-gee/telegram-otp-bot/internal/l10n"
	"github.com/tim-gee/telegram-otp-bot/internal/monitor"
	"github.com/tim-gee/telegram-otp-bot/internal/portal"
	"github.com/tim-gee/telegram-otp-bot/internal/utils/resutils"
	"golang.org/x/text/language"
)

type stubFetcher struct {
	body string
	err  error
}

func (f stubFetcher) FetchRaw(context.Context) (portal.RawResponse, error) {
	if f.err != nil {
		return portal.RawResponse{}, f.err
	}
	return portal.RawResponse{Body: []byte(f.body)}, nil
}

type chatRecorder struct {
	mu   sync.Mutex
	sent []string
}

func (c *chatRecorder) Send(_ context.Context, _ string, msg gateway.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg.Text)
	return nil
}

func (c *chatRecorder) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type testEnv struct {
	server  *Server
	handler http.Handler
	chat    *chatRecorder
	clock   *clock.Fake
}

func newTestEnv(t *testing.T, fetcher monitor.Fetcher) *testEnv {
	t.Helper()
	ctx := zerolog.Nop().WithContext(context.Background())
	l10n.InitL10n(ctx, []language.Tag{language.English, language.Arabic})

	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	chat := &chatRecorder{}
	zlog := zerolog.Nop()

	s := &Server{
		zlog:      &zlog,
		clock:     clk,
		otpFilter: otp.NewFilter(store.NewMemoryStore(0), clk, time.Hour, 0),
		relay:     otp.NewSender(ctx, chat, "-100123", l10n.GetLocalizer(language.English)),
	}
	s.monitor = monitor.NewController(ctx, monitor.Options{
		Fetcher:  fetcher,
		Dedup:    s.otpFilter,
		Notifier: s.relay,
		Clock:    clk,
		State:    monitor.NewState(clk.Now()),
	})
	t.Cleanup(func() {
		_, _ = s.monitor.Stop(context.Background())
	})

	return &testEnv{server: s, handler: s.RegisterRoutes(ctx), chat: chat, clock: clk}
}

func (e *testEnv) do(t *testing.T, method, target string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

const twoOtps = `[{"num":"+1","otp":"111"},{"num":"+2","otp":"222"}]`

func TestHome_FreshState(t *testing.T) {
	env := newTestEnv(t, stubFetcher{body: twoOtps})
	env.clock.Advance(26*time.Hour + 3*time.Minute + 4*time.Second)

	var resp homeResponse
	rec := env.do(t, http.MethodGet, "/", &resp)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, "1 day, 2:03:04", resp.Uptime)
	assert.Equal(t, "Never", resp.LastCheck)
	assert.Nil(t, resp.LastError)
	assert.False(t, resp.MonitorRunning)
	assert.Zero(t, resp.TotalOtpsSent)
}

func TestCheckOtp_RelaysThenReportsDuplicates(t *testing.T) {
	env := newTestEnv(t, stubFetcher{body: twoOtps})

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		var resp checkResponse
		rec := env.do(t, method, "/check-otp", &resp)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, resutils.StatusSuccess, resp.Status)
		assert.Equal(t, "OTP check completed", resp.Message)
		assert.NotEmpty(t, resp.Timestamp)
		assert.NotEmpty(t, resp.CycleID)
		assert.Equal(t, 2, resp.Fetched)
	}

	require.Len(t, env.chat.texts(), 1)
	assert.Contains(t, env.chat.texts()[0], "2 New OTPs Received")

	var home homeResponse
	env.do(t, http.MethodGet, "/", &home)
	assert.Equal(t, 2, home.TotalOtpsSent)
	assert.Equal(t, "2024-05-01 12:00:00", home.LastCheck)
}

func TestCheckOtp_FailureIsReported(t *testing.T) {
	env := newTestEnv(t, stubFetcher{err: errors.Join(apperr.ErrFetch, errors.New("portal down"))})

	var resp checkResponse
	rec := env.do(t, http.MethodPost, "/check-otp", &resp)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, resutils.StatusError, resp.Status)
	assert.Contains(t, resp.Message, "portal down")

	var home homeResponse
	env.do(t, http.MethodGet, "/", &home)
	require.NotNil(t, home.LastError)
	assert.Contains(t, *home.LastError, "portal down")
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, stubFetcher{body: twoOtps})
	env.do(t, http.MethodPost, "/check-otp", nil)

	var resp statusResponse
	rec := env.do(t, http.MethodGet, "/status", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, resp.CacheSize)
	assert.Equal(t, 2, resp.TotalOtpsSent)
	assert.Equal(t, 1, resp.Cycles)
	assert.Zero(t, resp.FailedCycles)
	assert.Len(t, env.chat.texts(), 1, "a plain status request sends nothing")
}

func TestStatus_SendToChat(t *testing.T) {
	env := newTestEnv(t, stubFetcher{body: twoOtps})

	var resp resutils.Result
	rec := env.do(t, http.MethodGet, "/status?send=true", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Status sent to Telegram", resp.Message)

	texts := env.chat.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Bot Status")
	assert.Contains(t, texts[0], "Last check: Never")
	assert.Contains(t, texts[0], "Stopped")
}

func TestTestMessage(t *testing.T) {
	env := newTestEnv(t, stubFetcher{body: twoOtps})

	var resp resutils.Result
	rec := env.do(t, http.MethodGet, "/test-message", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.chat.texts(), 1)
	assert.Contains(t, env.chat.texts()[0], "Test Message")
}

func TestClearCache(t *testing.T) {
	env := newTestEnv(t, stubFetcher{body: twoOtps})
	env.do(t, http.MethodPost, "/check-otp", nil)

	var resp resutils.Result
	env.do(t, http.MethodPost, "/clear-cache", &resp)
	assert.Equal(t, resutils.StatusSuccess, resp.Status)
	assert.Equal(t, "Cache cleared: 2 entries removed", resp.Message)

	var check checkResponse
	env.do(t, http.MethodPost, "/check-otp", &check)
	assert.Equal(t, 2, check.Relayed, "cleared fingerprints are relayed again")
}

func TestStartStopMonitor(t *testing.T) {
	env := newTestEnv(t, stubFetcher{body: twoOtps})

	var resp resutils.Result
	env.do(t, http.MethodPost, "/start-monitor", &resp)
	assert.Equal(t, resutils.StatusSuccess, resp.Status)
	assert.Equal(t, "Background monitor started", resp.Message)

	env.do(t, http.MethodPost, "/start-monitor", &resp)
	assert.Equal(t, resutils.StatusInfo, resp.Status)
	assert.Equal(t, "Monitor already running", resp.Message)

	var home homeResponse
	env.do(t, http.MethodGet, "/", &home)
	assert.True(t, home.MonitorRunning)

	env.do(t, http.MethodPost, "/stop-monitor", &resp)
	assert.Equal(t, resutils.StatusSuccess, resp.Status)
	assert.Equal(t, "Background monitor stopped", resp.Message)

	env.do(t, http.MethodPost, "/stop-monitor", &resp)
	assert.Equal(t, resutils.StatusInfo, resp.Status)
	assert.Equal(t, "Monitor is not running", resp.Message)
}

func TestUnknownRoutes(t *testing.T) {
	env := newTestEnv(t, stubFetcher{body: twoOtps})

	var resp resutils.Result
	rec := env.do(t, http.MethodGet, "/nope", &resp)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Endpoint not found", resp.Message)

	rec = env.do(t, http.MethodDelete, "/status", &resp)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, resutils.StatusError, resp.Status)
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00:00"},
		{-time.Second, "0:00:00"},
		{65 * time.Second, "0:01:05"},
		{24*time.Hour - time.Second, "23:59:59"},
		{24 * time.Hour, "1 day, 0:00:00"},
		{76*time.Hour + 5*time.Minute + 6*time.Second, "3 days, 4:05:06"},
		{240*time.Hour + time.Second, "10 days, 0:00:01"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.d), tt.d.String())
	}
}
