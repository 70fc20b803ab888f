package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/appenv"
	"github.com/tim-gee/telegram-otp-bot/internal/clock"
	"github.com/tim-gee/telegram-otp-bot/internal/cron"
	"github.com/tim-gee/telegram-otp-bot/internal/feat/otp"
	"github.com/tim-gee/telegram-otp-bot/internal/feat/otp/store"
	"github.com/tim-gee/telegram-otp-bot/internal/gateway"
	"github.com/tim-gee/telegram-otp-bot/internal/l10n"
	"github.com/tim-gee/telegram-otp-bot/internal/monitor"
	"github.com/tim-gee/telegram-otp-bot/internal/portal"
	redisdb "github.com/tim-gee/telegram-otp-bot/internal/redis_db"
	"golang.org/x/text/language"
)

type Server struct {
	port          int
	zlog          *zerolog.Logger
	clock         clock.Clock
	rdb           *redis.Client
	portal        *portal.Client
	otpFilter     *otp.Filter
	relay         *otp.Sender
	monitor       *monitor.Controller
	cronScheduler gocron.Scheduler
	autostart     bool
}

// NewServer wires every component. It fails when the configuration is
// unusable or the first portal login is rejected; the monitor never starts
// with dead credentials.
func NewServer(ctx context.Context, cfg appenv.Config) (*http.Server, *Server, error) {
	zlog := zerolog.Ctx(ctx)
	clk := clock.Real{}

	l10n.InitL10n(
		ctx,
		[]language.Tag{
			language.English,
			language.Arabic,
		},
	)
	localizer := l10n.GetLocalizer(l10n.ParseTag(cfg.NotifyLang))
	zlog.Info().
		Str("lang", localizer.GetLanguageTag().String()).
		Strs("supported", l10n.SupportedTagsCanonical()).
		Msg("Notification language selected")

	chat, err := gateway.NewProviderFactory(ctx, cfg.NotifyProvider, cfg.TelegramBotToken).NewChatProvider(ctx)
	if err != nil {
		return nil, nil, err
	}

	portalClient, err := portal.NewClient(ctx, portal.Config{
		BaseURL:      cfg.PortalBaseURL,
		LoginPath:    cfg.PortalLoginPath,
		MessagesPath: cfg.PortalMessagesPath,
		Timeout:      cfg.PortalTimeout,
		Credential:   portal.NewCredential(cfg.PortalEmail, cfg.PortalPassword),
		Clock:        clk,
	})
	if err != nil {
		return nil, nil, err
	}
	zlog.Info().Msg("IVASMS scraper initialized successfully")

	appServer := &Server{
		port:      cfg.Port,
		zlog:      zlog,
		clock:     clk,
		portal:    portalClient,
		relay:     otp.NewSender(ctx, chat, cfg.TelegramGroupID, localizer),
		autostart: cfg.MonitorAutostart,
	}

	var storeProvider store.StoreProvider
	switch cfg.DedupBackend {
	case appenv.DedupBackendRedis:
		appServer.rdb, err = redisdb.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		storeProvider = store.NewRedisStore(appServer.rdb, cfg.DedupRetention)
	default:
		storeProvider = store.NewMemoryStore(cfg.DedupMaxEntries)
	}
	appServer.otpFilter = otp.NewFilter(storeProvider, clk, cfg.DedupRetention, cfg.DedupMaxEntries)

	appServer.monitor = monitor.NewController(ctx, monitor.Options{
		Fetcher:  portalClient,
		Extract:  portal.Extract,
		Dedup:    appServer.otpFilter,
		Notifier: appServer.relay,
		Clock:    clk,
		State:    monitor.NewState(clk.Now()),
		Interval: cfg.PollInterval,
		Backoff:  cfg.PollBackoff,
	})

	if appServer.cronScheduler, err = cron.NewCronScheduler(ctx); err != nil {
		return nil, nil, err
	}
	if err := appServer.registerCronJobs(); err != nil {
		return nil, nil, err
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", appServer.port),
		Handler:      appServer.RegisterRoutes(ctx),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	return httpServer, appServer, nil
}

// Run announces the bot in the chat and starts the monitor when enabled.
func (s *Server) Run(ctx context.Context) {
	if err := s.relay.SendText(ctx, s.relay.Localizer().GetWithId("Startup")); err != nil {
		s.zlog.Err(err).Msg("Failed to send the startup message")
		s.monitor.State().RecordError(err, s.clock.Now())
	}

	if s.autostart {
		s.monitor.Start()
	}
}

func (s *Server) Shutdown(ctx context.Context) {
	s.zlog.Info().Msg("Starting application shutdown")
	wg := sync.WaitGroup{}

	wg.Go(func() {
		s.zlog.Info().Msg("Stopping the OTP monitor...")
		if _, err := s.monitor.Stop(ctx); err != nil {
			s.zlog.Err(err).Msg("The OTP monitor did not stop in time.")
		}
	})

	wg.Go(func() {
		s.zlog.Info().Msg("Shutting down cron scheduler...")
		err := s.cronScheduler.Shutdown()
		if err != nil {
			s.zlog.Err(err).Msg("Error while shuting down the cron scheduler.")
		}
	})

	if s.rdb != nil {
		wg.Go(func() {
			s.zlog.Info().Msg("Closing Redis connections...")
			err := s.rdb.Close()
			if err != nil {
				s.zlog.Err(err).Msg("Error while closing the connection to redis.")
			}
		})
	}

	wg.Wait()
}
