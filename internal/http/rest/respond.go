package rest

import (
	"encoding/json"
	"net/http"

	"github.com/italolelis/transfer_monitor/internal/logctx"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

func basicAuth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username == "" {
				next.ServeHTTP(w, r)

				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "invalid authorization format")

				return
			}

			if user != username || pass != password {
				writeError(w, r, http.StatusUnauthorized, "invalid username or password")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
