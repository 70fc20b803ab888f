package portal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/apperr"
	"github.com/tim-gee/telegram-otp-bot/internal/clock"
	"golang.org/x/net/publicsuffix"
)

const (
	maxBodySize    = 10 << 20
	formDateLayout = "2006-01-02"
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
)

type Config struct {
	BaseURL      string
	LoginPath    string
	MessagesPath string
	// Timeout bounds every portal request. Zero keeps the transport default.
	Timeout    time.Duration
	Credential Credential
	Clock      clock.Clock
}

// RawResponse is the unparsed body of a messages request.
type RawResponse struct {
	Body        []byte
	ContentType string
	URL         string
	FetchedAt   time.Time
}

type session struct {
	csrfToken string
	valid     bool
}

// Client owns the single authenticated portal session.
type Client struct {
	cfg         Config
	loginURL    *url.URL
	messagesURL *url.URL
	http        *http.Client
	clock       clock.Clock

	mu      sync.Mutex
	session session

	// readable without mu, which is held for the whole of a fetch
	loggedInAt  atomic.Int64
	reauthCount atomic.Int64
}

// NewClient builds the client and logs in. A failed login is returned
// wrapped in apperr.ErrAuth and the client is not usable.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: portal base url %q", apperr.ErrConfig, cfg.BaseURL)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	c := &Client{
		cfg:         cfg,
		loginURL:    base.JoinPath(cfg.LoginPath),
		messagesURL: base.JoinPath(cfg.MessagesPath),
		http:        &http.Client{Timeout: cfg.Timeout},
		clock:       cfg.Clock,
	}

	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Authenticate replaces the current session with a fresh login.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	zlog := zerolog.Ctx(ctx).With().Object("credential", c.cfg.Credential).Logger()

	c.invalidateLocked()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("%w: cookie jar: %w", apperr.ErrAuth, err)
	}
	c.http.Jar = jar

	loginPage, _, err := c.do(ctx, http.MethodGet, c.loginURL, nil)
	if err != nil {
		return fmt.Errorf("%w: load login page: %w", apperr.ErrAuth, err)
	}
	token := csrfToken(loginPage)
	if token == "" {
		return fmt.Errorf("%w: csrf token not found on login page", apperr.ErrAuth)
	}

	form := url.Values{
		"_token":   {token},
		"email":    {c.cfg.Credential.Identifier},
		"password": {c.cfg.Credential.Secret()},
		"remember": {"on"},
	}
	body, resp, err := c.do(ctx, http.MethodPost, c.loginURL, form)
	if err != nil {
		return fmt.Errorf("%w: submit login form: %w", apperr.ErrAuth, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: login answered with status %d", apperr.ErrAuth, resp.StatusCode)
	}
	if c.isLoginURL(resp.Request.URL) || isLoginPage(body) {
		return fmt.Errorf("%w: credentials rejected", apperr.ErrAuth)
	}

	if fresh := csrfToken(body); fresh != "" {
		token = fresh
	}
	c.session = session{csrfToken: token, valid: true}
	c.loggedInAt.Store(c.clock.Now().UnixNano())

	zlog.Info().Msg("Logged in to the portal")
	return nil
}

// FetchRaw returns today's received messages. An expired session is
// renewed once and the request retried once before giving up with
// apperr.ErrFetch.
func (c *Client) FetchRaw(ctx context.Context) (RawResponse, error) {
	zlog := zerolog.Ctx(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.valid {
		if err := c.authenticateLocked(ctx); err != nil {
			return RawResponse{}, err
		}
	}

	raw, err := c.fetchLocked(ctx)
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, apperr.ErrNeedsReauth) {
		return RawResponse{}, fmt.Errorf("%w: %w", apperr.ErrFetch, err)
	}

	zlog.Warn().Err(err).Msg("Portal session expired, logging in again")
	c.reauthCount.Add(1)
	if authErr := c.authenticateLocked(ctx); authErr != nil {
		return RawResponse{}, fmt.Errorf("%w: %w", apperr.ErrFetch, authErr)
	}

	raw, err = c.fetchLocked(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrNeedsReauth) {
			c.invalidateLocked()
		}
		return RawResponse{}, fmt.Errorf("%w: retry after login: %w", apperr.ErrFetch, err)
	}
	return raw, nil
}

// AuthenticatedAt is the time of the last successful login, zero while
// logged out.
func (c *Client) AuthenticatedAt() time.Time {
	ns := c.loggedInAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Reauthentications counts the expired sessions renewed by FetchRaw.
func (c *Client) Reauthentications() int {
	return int(c.reauthCount.Load())
}

func (c *Client) invalidateLocked() {
	c.session = session{}
	c.loggedInAt.Store(0)
}

func (c *Client) fetchLocked(ctx context.Context) (RawResponse, error) {
	today := c.clock.Now().Format(formDateLayout)
	form := url.Values{
		"_token": {c.session.csrfToken},
		"from":   {today},
		"to":     {today},
	}

	body, resp, err := c.do(ctx, http.MethodPost, c.messagesURL, form)
	if err != nil {
		return RawResponse{}, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, 419:
		return RawResponse{}, fmt.Errorf("%w: status %d", apperr.ErrNeedsReauth, resp.StatusCode)
	}
	if c.isLoginURL(resp.Request.URL) {
		return RawResponse{}, fmt.Errorf("%w: redirected to login", apperr.ErrNeedsReauth)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return RawResponse{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "html") && isLoginPage(body) {
		return RawResponse{}, fmt.Errorf("%w: login form returned", apperr.ErrNeedsReauth)
	}

	return RawResponse{
		Body:        body,
		ContentType: contentType,
		URL:         resp.Request.URL.String(),
		FetchedAt:   c.clock.Now(),
	}, nil
}

func (c *Client) do(ctx context.Context, method string, target *url.URL, form url.Values) ([]byte, *http.Response, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.session.valid {
		req.Header.Set("X-CSRF-TOKEN", c.session.csrfToken)
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, err
	}
	return body, resp, nil
}

func (c *Client) isLoginURL(u *url.URL) bool {
	return u != nil && strings.TrimRight(u.Path, "/") == strings.TrimRight(c.loginURL.Path, "/")
}

func csrfToken(page []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	if v, ok := doc.Find(`input[name="_token"]`).First().Attr("value"); ok && v != "" {
		return v
	}
	if v, ok := doc.Find(`meta[name="csrf-token"]`).First().Attr("content"); ok {
		return v
	}
	return ""
}

func isLoginPage(page []byte) bool {
	trimmed := bytes.TrimSpace(page)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(trimmed))
	if err != nil {
		return false
	}
	return doc.Find(`form input[type="password"], form input[name="password"]`).Length() != 0
}
