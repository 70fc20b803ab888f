package middleware

import (
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tim-gee/telegram-otp-bot/internal/utils/resutils"
)

// LoggerInjector puts a request scoped logger into the request context.
// It must run after chi's RequestID middleware to reuse its id.
func LoggerInjector(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := chimiddleware.GetReqID(r.Context())
			if requestID == "" {
				requestID = uuid.NewString()
			}

			zlog := base.With().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(zlog.WithContext(r.Context())))

			zlog.Debug().Int("status", ww.Status()).Int("bytes", ww.BytesWritten()).Msg("request served")
		})
	}
}

// Recoverer turns a handler panic into the JSON 500 envelope.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				zerolog.Ctx(r.Context()).Error().Any("recover_data", rec).Bytes("stack", debug.Stack()).Msg("handler panicked")
				resutils.WriteResult(r.Context(), w, http.StatusInternalServerError, resutils.StatusError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
