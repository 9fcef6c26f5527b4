package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/transfer_monitor/internal/logctx"
	"github.com/italolelis/transfer_monitor/internal/progress"
	"github.com/italolelis/transfer_monitor/internal/storage"
)

// StatusHandler serves the public status page and health endpoints.
type StatusHandler struct {
	name    string
	version string
	monitor Monitor
	stats   storage.StatsReader
	started time.Time
	nowFunc func() time.Time
}

func NewStatusHandler(name, version string, m Monitor, stats storage.StatsReader) *StatusHandler {
	return &StatusHandler{
		name:    name,
		version: version,
		monitor: m,
		stats:   stats,
		started: time.Now(),
		nowFunc: time.Now,
	}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.HandleIndex)
	r.Get("/health", h.HandleHealth)
	r.Get("/stats", h.HandleStats)

	return r
}

func (h *StatusHandler) uptime() time.Duration {
	return h.nowFunc().Sub(h.started)
}

func (h *StatusHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	fmt.Fprintf(w, "🤖 %s %s is running\n", h.name, h.version)
	fmt.Fprintf(w, "Uptime: %s\n", progress.FormatDuration(h.uptime()))
	fmt.Fprintf(w, "Active transfers: %d\n", len(h.monitor.ActiveSessions()))
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok", UptimeSeconds: h.uptime().Seconds()})
}

type statsResponse struct {
	storage.Stats
	ActiveTransfers []sessionResponse `json:"active_transfers"`
}

func (h *StatusHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GlobalStats(r.Context())
	if err != nil {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to load stats", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to load stats")

		return
	}

	active := h.monitor.ActiveSessions()
	resp := statsResponse{Stats: stats, ActiveTransfers: make([]sessionResponse, 0, len(active))}

	for _, v := range active {
		resp.ActiveTransfers = append(resp.ActiveTransfers, newSessionResponse(v))
	}

	writeJSON(w, r, http.StatusOK, resp)
}
