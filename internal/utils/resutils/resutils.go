package resutils

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusInfo    = "info"
	StatusError   = "error"
)

// Result is the envelope of every administrative endpoint.
type Result struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

func WriteJson(ctx context.Context, w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(ctx).Err(err).Msg("error while writing the json response")
	}
}

func WriteResult(ctx context.Context, w http.ResponseWriter, code int, status, message string) {
	WriteJson(ctx, w, code, Result{Status: status, Message: message})
}

func WriteError(ctx context.Context, w http.ResponseWriter, r *http.Request, code int, err error) {
	zerolog.Ctx(ctx).Err(err).Str("path", r.URL.Path).Int("code", code).Msg("request failed")
	WriteResult(ctx, w, code, StatusError, err.Error())
}
