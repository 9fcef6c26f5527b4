package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/italolelis/transfer_monitor/internal/logctx"
	"github.com/italolelis/transfer_monitor/internal/progress"
	"github.com/italolelis/transfer_monitor/internal/renamer"
	"github.com/italolelis/transfer_monitor/internal/storage"
	"github.com/italolelis/transfer_monitor/internal/transfer"
)

const (
	// IdempotencyKeyHeader lets clients retry a rename request safely.
	IdempotencyKeyHeader = "Idempotency-Key"

	idempotencyCacheSize = 1024
	defaultHistoryLimit  = 20
	maxHistoryLimit      = 100
)

type Renamer interface {
	Start(ctx context.Context, job renamer.Job) (string, error)
}

// Monitor exposes the sessions the coordinator is running.
type Monitor interface {
	Active(userID string) (transfer.SessionView, bool)
	ActiveSessions() []transfer.SessionView
	Cancel(userID string) bool
}

type Repository interface {
	storage.SettingsReader
	storage.SettingsWriter
	storage.HistoryReader
	storage.StatsReader
}

type RenameHandler struct {
	renamer  Renamer
	monitor  Monitor
	repo     Repository
	username string
	password string

	// idempotency key -> job id
	seen *lru.Cache[string, string]
}

// NewRenameHandler creates the handler for the rename and user endpoints.
// An empty username disables basic auth.
func NewRenameHandler(r Renamer, m Monitor, repo Repository, username, password string) (*RenameHandler, error) {
	seen, err := lru.New[string, string](idempotencyCacheSize)
	if err != nil {
		return nil, err
	}

	return &RenameHandler{
		renamer:  r,
		monitor:  m,
		repo:     repo,
		username: username,
		password: password,
		seen:     seen,
	}, nil
}

func (h *RenameHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(basicAuth(h.username, h.password))

	r.Post("/renames", h.HandleStart)
	r.Get("/renames/{user_id}", h.HandleProgress)
	r.Delete("/renames/{user_id}", h.HandleCancel)

	r.Get("/users/{user_id}/settings", h.HandleGetSettings)
	r.Put("/users/{user_id}/settings", h.HandlePutSettings)
	r.Get("/users/{user_id}/transfers", h.HandleTransfers)

	return r
}

type startResponse struct {
	JobID    string `json:"job_id"`
	Replayed bool   `json:"replayed,omitempty"`
}

// HandleStart accepts a rename and runs it in the background.
func (h *RenameHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var job renamer.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")

		return
	}

	var key string
	if k := r.Header.Get(IdempotencyKeyHeader); k != "" {
		key = job.UserID + ":" + k

		if jobID, ok := h.seen.Get(key); ok {
			writeJSON(w, r, http.StatusAccepted, startResponse{JobID: jobID, Replayed: true})

			return
		}
	}

	jobID, err := h.renamer.Start(r.Context(), job)
	if err != nil {
		switch {
		case errors.Is(err, renamer.ErrInvalidJob):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case transfer.IsBusy(err):
			writeError(w, r, http.StatusConflict, err.Error())
		default:
			logger.ErrorContext(r.Context(), "failed to start rename", "user_id", job.UserID, "err", err)
			writeError(w, r, http.StatusInternalServerError, "failed to start rename")
		}

		return
	}

	if key != "" {
		h.seen.Add(key, jobID)
	}

	logger.InfoContext(r.Context(), "rename accepted", "user_id", job.UserID, "job_id", jobID, "file_id", job.FileID)

	writeJSON(w, r, http.StatusAccepted, startResponse{JobID: jobID})
}

type sessionResponse struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Direction      string    `json:"direction"`
	FileName       string    `json:"file_name,omitempty"`
	Status         string    `json:"status"`
	CurrentBytes   int64     `json:"current_bytes"`
	TotalBytes     int64     `json:"total_bytes"`
	Percentage     *float64  `json:"percentage,omitempty"`
	Speed          float64   `json:"speed"`
	ETASeconds     *float64  `json:"eta_seconds,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	StartedAt      time.Time `json:"started_at"`
	Text           string    `json:"text"`
}

func newSessionResponse(v transfer.SessionView) sessionResponse {
	s := v.Snapshot

	resp := sessionResponse{
		SessionID:      v.ID,
		UserID:         v.UserID,
		Direction:      v.Direction.String(),
		FileName:       v.Label.FileName,
		Status:         v.Status.String(),
		CurrentBytes:   s.CurrentBytes,
		TotalBytes:     s.TotalBytes,
		Speed:          s.Speed,
		ElapsedSeconds: s.Elapsed.Seconds(),
		StartedAt:      v.StartedAt,
		Text:           progress.Render(v.Label, s),
	}

	if s.PercentKnown() {
		pct := s.Percentage
		resp.Percentage = &pct
	}

	if s.ETAKnown {
		eta := s.ETA.Seconds()
		resp.ETASeconds = &eta
	}

	return resp
}

func (h *RenameHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	v, ok := h.monitor.Active(chi.URLParam(r, "user_id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "no active transfer")

		return
	}

	writeJSON(w, r, http.StatusOK, newSessionResponse(v))
}

// HandleCancel asks the running session to stop. The session ends at its
// next progress sample.
func (h *RenameHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	if !h.monitor.Cancel(userID) {
		writeError(w, r, http.StatusNotFound, "no active transfer")

		return
	}

	logctx.LoggerFromContext(r.Context()).InfoContext(r.Context(), "transfer cancellation requested", "user_id", userID)

	w.WriteHeader(http.StatusAccepted)
}

func (h *RenameHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.repo.GetSettings(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to load settings", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to load settings")

		return
	}

	writeJSON(w, r, http.StatusOK, settings)
}

func (h *RenameHandler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings storage.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")

		return
	}

	settings.UserID = chi.URLParam(r, "user_id")

	if settings.UploadMode == "" {
		settings.UploadMode = storage.UploadModeDocument
	}

	if err := h.repo.SaveSettings(r.Context(), settings); err != nil {
		if errors.Is(err, storage.ErrInvalidSettings) {
			writeError(w, r, http.StatusBadRequest, err.Error())

			return
		}

		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to save settings", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to save settings")

		return
	}

	h.HandleGetSettings(w, r)
}

type transfersResponse struct {
	Stats     storage.UserStats        `json:"stats"`
	Transfers []storage.TransferRecord `json:"transfers"`
}

func (h *RenameHandler) HandleTransfers(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	limit := defaultHistoryLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid limit")

			return
		}

		limit = min(n, maxHistoryLimit)
	}

	records, err := h.repo.ListTransfers(r.Context(), userID, limit)
	if err != nil {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to list transfers", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list transfers")

		return
	}

	stats, err := h.repo.UserStats(r.Context(), userID)
	if err != nil {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to load user stats", "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to load user stats")

		return
	}

	if records == nil {
		records = []storage.TransferRecord{}
	}

	writeJSON(w, r, http.StatusOK, transfersResponse{Stats: stats, Transfers: records})
}
