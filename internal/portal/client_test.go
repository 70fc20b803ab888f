package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tim-gee/telegram-otp-bot/internal/apperr"
	"github.com/tim-gee/telegram-otp-bot/internal/clock"
)

const (
	testEmail    = "agent@example.com"
	testPassword = "s3cret"
	messagesPath = "/portal/sms/received/getsms"
	messagesBody = `[{"num":"+1","otp":"111"}]`
)

const loginPage = `<html><head><meta name="csrf-token" content="meta-token"></head><body>
<form method="post" action="/login">
  <input type="hidden" name="_token" value="%s">
  <input type="email" name="email">
  <input type="password" name="password">
</form></body></html>`

const dashboardPage = `<html><head><meta name="csrf-token" content="%s"></head><body>Dashboard</body></html>`

// fakePortal is a minimal session-cookie portal with CSRF protected forms.
type fakePortal struct {
	mu       sync.Mutex
	nextID   int
	sessions map[string]bool
	tokens   map[string]bool

	logins       int
	fetches      int
	fetchStatus  int
	alwaysExpire bool
}

func newFakePortal(t *testing.T) (*fakePortal, *httptest.Server) {
	p := &fakePortal{sessions: map[string]bool{}, tokens: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", p.loginForm)
	mux.HandleFunc("POST /login", p.login)
	mux.HandleFunc("GET /dashboard", p.dashboard)
	mux.HandleFunc("POST "+messagesPath, p.messages)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return p, srv
}

func (p *fakePortal) newTokenLocked() string {
	p.nextID++
	tok := fmt.Sprintf("token-%d", p.nextID)
	p.tokens[tok] = true
	return tok
}

func (p *fakePortal) loginForm(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	tok := p.newTokenLocked()
	p.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, loginPage, tok)
}

func (p *fakePortal) login(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := r.ParseForm(); err != nil || !p.tokens[r.PostForm.Get("_token")] {
		w.WriteHeader(419)
		return
	}
	if r.PostForm.Get("email") != testEmail || r.PostForm.Get("password") != testPassword {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	p.logins++
	p.nextID++
	sid := fmt.Sprintf("session-%d", p.nextID)
	p.sessions[sid] = true
	http.SetCookie(w, &http.Cookie{Name: "portal_session", Value: sid, Path: "/"})
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (p *fakePortal) dashboard(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	tok := p.newTokenLocked()
	p.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, dashboardPage, tok)
}

func (p *fakePortal) messages(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++

	cookie, err := r.Cookie("portal_session")
	if err != nil || !p.sessions[cookie.Value] || p.alwaysExpire {
		w.WriteHeader(419)
		return
	}
	if !p.tokens[r.Header.Get("X-CSRF-TOKEN")] {
		w.WriteHeader(419)
		return
	}
	if p.fetchStatus != 0 {
		w.WriteHeader(p.fetchStatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, messagesBody)
}

func (p *fakePortal) expireSessions() {
	p.mu.Lock()
	clear(p.sessions)
	p.mu.Unlock()
}

func (p *fakePortal) counts() (logins, fetches int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins, p.fetches
}

func newTestClient(t *testing.T, baseURL, password string) (*Client, error) {
	t.Helper()
	return NewClient(context.Background(), Config{
		BaseURL:      baseURL,
		LoginPath:    "/login",
		MessagesPath: messagesPath,
		Timeout:      5 * time.Second,
		Credential:   NewCredential(testEmail, password),
		Clock:        clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	})
}

func TestNewClient_LogsInAndFetches(t *testing.T) {
	portal, srv := newFakePortal(t)

	c, err := newTestClient(t, srv.URL, testPassword)
	require.NoError(t, err)
	assert.False(t, c.AuthenticatedAt().IsZero())

	raw, err := c.FetchRaw(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, messagesBody, string(raw.Body))
	assert.Equal(t, "application/json", raw.ContentType)
	assert.Len(t, Extract(raw), 1)

	logins, fetches := portal.counts()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 1, fetches)
	assert.Zero(t, c.Reauthentications())
}

func TestNewClient_RejectedCredentials(t *testing.T) {
	_, srv := newFakePortal(t)

	c, err := newTestClient(t, srv.URL, "wrong")
	assert.Nil(t, c)
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestNewClient_BadBaseURL(t *testing.T) {
	_, err := newTestClient(t, "not a url", testPassword)
	assert.ErrorIs(t, err, apperr.ErrConfig)
}

func TestNewClient_MissingCSRFToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>maintenance</body></html>")
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(t, srv.URL, testPassword)
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestFetchRaw_ExpiredSessionLogsInOnceAndRetries(t *testing.T) {
	portal, srv := newFakePortal(t)
	c, err := newTestClient(t, srv.URL, testPassword)
	require.NoError(t, err)

	portal.expireSessions()

	raw, err := c.FetchRaw(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, messagesBody, string(raw.Body))

	logins, fetches := portal.counts()
	assert.Equal(t, 2, logins)
	assert.Equal(t, 2, fetches)
	assert.Equal(t, 1, c.Reauthentications())
}

func TestFetchRaw_PersistentExpiryGivesUp(t *testing.T) {
	portal, srv := newFakePortal(t)
	c, err := newTestClient(t, srv.URL, testPassword)
	require.NoError(t, err)

	portal.mu.Lock()
	portal.alwaysExpire = true
	portal.mu.Unlock()

	_, err = c.FetchRaw(context.Background())
	require.ErrorIs(t, err, apperr.ErrFetch)

	logins, fetches := portal.counts()
	assert.Equal(t, 2, logins, "exactly one renewal per fetch")
	assert.Equal(t, 2, fetches)
	assert.True(t, c.AuthenticatedAt().IsZero(), "the dead session is dropped")
}

func TestFetchRaw_ServerErrorDoesNotRelogin(t *testing.T) {
	portal, srv := newFakePortal(t)
	c, err := newTestClient(t, srv.URL, testPassword)
	require.NoError(t, err)

	portal.mu.Lock()
	portal.fetchStatus = http.StatusInternalServerError
	portal.mu.Unlock()

	_, err = c.FetchRaw(context.Background())
	require.ErrorIs(t, err, apperr.ErrFetch)
	assert.NotErrorIs(t, err, apperr.ErrNeedsReauth)

	logins, _ := portal.counts()
	assert.Equal(t, 1, logins)
}

func TestCredential_NeverPrintsSecret(t *testing.T) {
	cred := NewCredential(testEmail, testPassword)
	assert.NotContains(t, cred.String(), testPassword)
	assert.NotContains(t, fmt.Sprintf("%v", cred), testPassword)
	assert.Equal(t, testPassword, cred.Secret())
}
