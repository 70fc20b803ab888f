package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/middleware"
	"github.com/tim-gee/telegram-otp-bot/internal/utils/resutils"
)

func (s *Server) RegisterRoutes(ctx context.Context) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.LoggerInjector(*zerolog.Ctx(ctx)))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		resutils.WriteResult(r.Context(), w, http.StatusNotFound, resutils.StatusError, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		resutils.WriteResult(r.Context(), w, http.StatusMethodNotAllowed, resutils.StatusError, "Method not allowed")
	})

	r.Get("/", s.home)
	r.Get("/status", s.status)
	r.Get("/test-message", s.testMessage)

	// GET also works so the admin links can be opened from a browser.
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		r.Method(method, "/check-otp", http.HandlerFunc(s.manualCheck))
		r.Method(method, "/clear-cache", http.HandlerFunc(s.clearCache))
		r.Method(method, "/start-monitor", http.HandlerFunc(s.startMonitor))
		r.Method(method, "/stop-monitor", http.HandlerFunc(s.stopMonitor))
	}

	return r
}
