package appenv

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/apperr"
	"github.com/tim-gee/telegram-otp-bot/internal/utils/email"
)

const (
	DedupBackendMemory = "memory"
	DedupBackendRedis  = "redis"

	NotifyProviderTelegram = "telegram"
	NotifyProviderLog      = "log"
)

type Config struct {
	AppEnv   string
	LogLevel zerolog.Level
	Port     int

	TelegramBotToken string
	TelegramGroupID  string
	NotifyProvider   string
	NotifyLang       string

	PortalEmail        string
	PortalPassword     string
	PortalBaseURL      string
	PortalLoginPath    string
	PortalMessagesPath string
	PortalTimeout      time.Duration

	PollInterval     time.Duration
	PollBackoff      time.Duration
	MonitorAutostart bool

	DedupBackend    string
	DedupRetention  time.Duration
	DedupMaxEntries int
	RedisURL        string
}

func (c Config) IsLocal() bool {
	return c.AppEnv == EnvLocal
}

// Load reads the process environment. Every problem is collected and
// returned joined under apperr.ErrConfig so the operator sees all of them
// at once.
func Load() (Config, error) {
	var errs []error
	fail := func(key string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", key, err))
	}

	cfg := Config{
		AppEnv:             getEnv("APP_ENV", EnvProduction),
		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramGroupID:    getEnv("TELEGRAM_GROUP_ID", ""),
		NotifyProvider:     getEnv("NOTIFY_PROVIDER", NotifyProviderTelegram),
		NotifyLang:         getEnv("NOTIFY_LANG", "en"),
		PortalEmail:        getEnv("IVASMS_EMAIL", ""),
		PortalPassword:     getEnv("IVASMS_PASSWORD", ""),
		PortalBaseURL:      getEnv("PORTAL_BASE_URL", "https://www.ivasms.com"),
		PortalLoginPath:    getEnv("PORTAL_LOGIN_PATH", "/login"),
		PortalMessagesPath: getEnv("PORTAL_MESSAGES_PATH", "/portal/sms/received/getsms"),
		DedupBackend:       getEnv("DEDUP_BACKEND", DedupBackendMemory),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
	}

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		fail("LOG_LEVEL", err)
	}
	cfg.LogLevel = level

	if cfg.Port, err = getEnvInt("PORT", 0); err != nil {
		fail("PORT", err)
	}
	if cfg.Port == 0 {
		if cfg.Port, err = getEnvInt("SERVER_PORT", 5000); err != nil {
			fail("SERVER_PORT", err)
		}
	}

	if cfg.PortalTimeout, err = getEnvDuration("PORTAL_TIMEOUT", 30*time.Second); err != nil {
		fail("PORTAL_TIMEOUT", err)
	}
	if cfg.PollInterval, err = getEnvDuration("POLL_INTERVAL", 60*time.Second); err != nil {
		fail("POLL_INTERVAL", err)
	}
	if cfg.PollBackoff, err = getEnvDuration("POLL_BACKOFF", 120*time.Second); err != nil {
		fail("POLL_BACKOFF", err)
	}
	if cfg.DedupRetention, err = getEnvDuration("DEDUP_RETENTION", 72*time.Hour); err != nil {
		fail("DEDUP_RETENTION", err)
	}
	if cfg.DedupMaxEntries, err = getEnvInt("DEDUP_MAX_ENTRIES", 10000); err != nil {
		fail("DEDUP_MAX_ENTRIES", err)
	}
	if cfg.MonitorAutostart, err = getEnvBool("MONITOR_AUTOSTART", true); err != nil {
		fail("MONITOR_AUTOSTART", err)
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) != 0 {
		return cfg, errors.Join(append([]error{apperr.ErrConfig}, errs...)...)
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error

	switch c.NotifyProvider {
	case NotifyProviderTelegram:
		if c.TelegramBotToken == "" {
			errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN not found in environment variables"))
		}
	case NotifyProviderLog:
	default:
		errs = append(errs, fmt.Errorf("NOTIFY_PROVIDER: unknown provider %q", c.NotifyProvider))
	}
	if c.TelegramGroupID == "" {
		errs = append(errs, errors.New("TELEGRAM_GROUP_ID not found in environment variables"))
	}

	if c.PortalEmail == "" || c.PortalPassword == "" {
		errs = append(errs, errors.New("IVASMS credentials not found in environment variables"))
	} else if err := email.New(c.PortalEmail).IsValidEmailErr(); err != nil {
		errs = append(errs, fmt.Errorf("IVASMS_EMAIL: %w", err))
	}

	if u, err := url.Parse(c.PortalBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("PORTAL_BASE_URL: %q is not an absolute url", c.PortalBaseURL))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.PollBackoff < c.PollInterval {
		errs = append(errs, errors.New("POLL_BACKOFF must not be shorter than POLL_INTERVAL"))
	}
	if c.DedupRetention <= 0 {
		errs = append(errs, errors.New("DEDUP_RETENTION must be positive"))
	}
	if c.DedupMaxEntries < 0 {
		errs = append(errs, errors.New("DEDUP_MAX_ENTRIES must not be negative"))
	}

	switch c.DedupBackend {
	case DedupBackendMemory:
	case DedupBackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when DEDUP_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("DEDUP_BACKEND: unknown backend %q", c.DedupBackend))
	}

	return errs
}
