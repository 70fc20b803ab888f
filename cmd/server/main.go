package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/appenv"
	"github.com/tim-gee/telegram-otp-bot/internal/apperr"
	"github.com/tim-gee/telegram-otp-bot/internal/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	zlog := zerolog.New(os.Stdout).With().Timestamp().Str("app", "telegram-otp-bot").Logger()

	cfg, err := appenv.Load()
	if cfg.IsLocal() {
		zlog = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize bot. Check your configuration.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = zlog.WithContext(ctx)

	zlog.Info().Msg("Starting Telegram OTP Bot...")

	httpServer, appServer, err := server.NewServer(ctx, cfg)
	if err != nil {
		if apperr.IsFatalAtStartup(err) {
			zlog.Fatal().Err(err).Msg("Failed to initialize bot. Check your configuration.")
		}
		zlog.Fatal().Err(err).Msg("Failed to initialize bot")
	}

	appServer.Run(ctx)

	go func() {
		zlog.Info().Str("addr", httpServer.Addr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Err(err).Msg("HTTP server stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(zlog.WithContext(context.Background()), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Err(err).Msg("Error while shutting down the HTTP server")
	}
	appServer.Shutdown(shutdownCtx)
	zlog.Info().Msg("Bye")
}
