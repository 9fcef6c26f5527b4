package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/transfer_monitor/internal/progress"
	"github.com/italolelis/transfer_monitor/internal/renamer"
	"github.com/italolelis/transfer_monitor/internal/storage"
	"github.com/italolelis/transfer_monitor/internal/storage/sqlite"
	"github.com/italolelis/transfer_monitor/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenamer struct {
	mu    sync.Mutex
	jobs  []renamer.Job
	jobID string
	err   error
}

func (f *fakeRenamer) Start(_ context.Context, job renamer.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := job.Validate(); err != nil {
		return "", err
	}

	if f.err != nil {
		return "", f.err
	}

	f.jobs = append(f.jobs, job)

	return f.jobID, nil
}

type fakeMonitor struct {
	views     map[string]transfer.SessionView
	cancelled []string
}

func (f *fakeMonitor) Active(userID string) (transfer.SessionView, bool) {
	v, ok := f.views[userID]

	return v, ok
}

func (f *fakeMonitor) ActiveSessions() []transfer.SessionView {
	views := make([]transfer.SessionView, 0, len(f.views))
	for _, v := range f.views {
		views = append(views, v)
	}

	return views
}

func (f *fakeMonitor) Cancel(userID string) bool {
	if _, ok := f.views[userID]; !ok {
		return false
	}

	f.cancelled = append(f.cancelled, userID)

	return true
}

func newRepo(t *testing.T) *sqlite.InstrumentedRepository {
	t.Helper()

	db, err := sqlite.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return sqlite.NewInstrumentedRepository(db, nil)
}

func activeView() transfer.SessionView {
	return transfer.SessionView{
		ID:        "session-1",
		UserID:    "alice",
		Direction: progress.Download,
		Label:     progress.Label{FileName: "movie.mkv"},
		Status:    transfer.StatusActive,
		Snapshot: progress.Snapshot{
			Direction:    progress.Download,
			CurrentBytes: 50,
			TotalBytes:   200,
			Percentage:   25,
			Speed:        10,
			ETA:          15 * time.Second,
			ETAKnown:     true,
			Elapsed:      5 * time.Second,
		},
	}
}

func newHandler(t *testing.T, r *fakeRenamer, m *fakeMonitor, username string) (http.Handler, *sqlite.InstrumentedRepository) {
	t.Helper()

	repo := newRepo(t)

	h, err := NewRenameHandler(r, m, repo, username, "secret")
	require.NoError(t, err)

	return h.Routes(), repo
}

func do(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestHandleStart(t *testing.T) {
	r := &fakeRenamer{jobID: "job-1"}
	h, _ := newHandler(t, r, &fakeMonitor{}, "")

	rec := do(t, h, http.MethodPost, "/renames", `{"user_id":"alice","file_id":42,"new_name":"x.mkv"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp startResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.False(t, resp.Replayed)

	require.Len(t, r.jobs, 1)
	assert.Equal(t, renamer.Job{UserID: "alice", FileID: 42, NewName: "x.mkv"}, r.jobs[0])
}

func TestHandleStartErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "malformed body", body: `{`, want: http.StatusBadRequest},
		{name: "missing file", body: `{"user_id":"alice"}`, want: http.StatusBadRequest},
		{name: "busy", body: `{"user_id":"alice","file_id":1}`, err: &transfer.ConcurrencyViolationError{UserID: "alice"}, want: http.StatusConflict},
		{name: "internal", body: `{"user_id":"alice","file_id":1}`, err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newHandler(t, &fakeRenamer{err: tt.err}, &fakeMonitor{}, "")

			rec := do(t, h, http.MethodPost, "/renames", tt.body, nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestHandleStartIdempotencyKey(t *testing.T) {
	r := &fakeRenamer{jobID: "job-1"}
	h, _ := newHandler(t, r, &fakeMonitor{}, "")

	header := http.Header{IdempotencyKeyHeader: []string{"abc"}}
	body := `{"user_id":"alice","file_id":42}`

	first := do(t, h, http.MethodPost, "/renames", body, header)
	require.Equal(t, http.StatusAccepted, first.Code)

	second := do(t, h, http.MethodPost, "/renames", body, header)
	require.Equal(t, http.StatusAccepted, second.Code)

	var resp startResponse
	require.NoError(t, json.NewDecoder(second.Body).Decode(&resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.True(t, resp.Replayed)

	// same key, other user: a separate request
	do(t, h, http.MethodPost, "/renames", `{"user_id":"bob","file_id":42}`, header)

	assert.Len(t, r.jobs, 2)
}

func TestHandleProgress(t *testing.T) {
	m := &fakeMonitor{views: map[string]transfer.SessionView{"alice": activeView()}}
	h, _ := newHandler(t, &fakeRenamer{}, m, "")

	rec := do(t, h, http.MethodGet, "/renames/alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "session-1", resp.SessionID)
	assert.Equal(t, "download", resp.Direction)
	assert.Equal(t, "active", resp.Status)
	require.NotNil(t, resp.Percentage)
	assert.InDelta(t, 25, *resp.Percentage, 0.001)
	require.NotNil(t, resp.ETASeconds)
	assert.InDelta(t, 15, *resp.ETASeconds, 0.001)
	assert.Contains(t, resp.Text, "movie.mkv")

	rec = do(t, h, http.MethodGet, "/renames/bob", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleProgressUnknownTotal(t *testing.T) {
	v := activeView()
	v.Snapshot.TotalBytes = 0
	v.Snapshot.ETAKnown = false

	m := &fakeMonitor{views: map[string]transfer.SessionView{"alice": v}}
	h, _ := newHandler(t, &fakeRenamer{}, m, "")

	rec := do(t, h, http.MethodGet, "/renames/alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Nil(t, resp.Percentage)
	assert.Nil(t, resp.ETASeconds)
}

func TestHandleCancel(t *testing.T) {
	m := &fakeMonitor{views: map[string]transfer.SessionView{"alice": activeView()}}
	h, _ := newHandler(t, &fakeRenamer{}, m, "")

	rec := do(t, h, http.MethodDelete, "/renames/alice", "", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"alice"}, m.cancelled)

	rec = do(t, h, http.MethodDelete, "/renames/bob", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	h, repo := newHandler(t, &fakeRenamer{}, &fakeMonitor{}, "")

	rec := do(t, h, http.MethodGet, "/users/alice/settings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got storage.Settings
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, storage.UploadModeDocument, got.UploadMode)

	rec = do(t, h, http.MethodPut, "/users/alice/settings", `{"user_id":"mallory","prefix":"[TM] ","upload_mode":"video"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, "[TM] ", got.Prefix)
	assert.Equal(t, storage.UploadModeVideo, got.UploadMode)

	stored, err := repo.GetSettings(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "[TM] ", stored.Prefix)

	rec = do(t, h, http.MethodPut, "/users/alice/settings", `{"upload_mode":"hologram"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/users/alice/settings", `nope`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTransfers(t *testing.T) {
	h, repo := newHandler(t, &fakeRenamer{}, &fakeMonitor{}, "")
	ctx := context.Background()

	base := time.Date(2025, 9, 29, 12, 0, 0, 0, time.UTC)
	for i, dir := range []string{"download", "upload"} {
		require.NoError(t, repo.RecordTransfer(ctx, storage.TransferRecord{
			SessionID: dir,
			UserID:    "alice",
			Direction: dir,
			FileName:  "movie.mkv",
			Status:    "completed",
			Bytes:     100,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Duration:  time.Second,
		}))
	}

	rec := do(t, h, http.MethodGet, "/users/alice/transfers?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp transfersResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Transfers, 1)
	assert.Equal(t, "upload", resp.Transfers[0].Direction)
	assert.Equal(t, int64(1), resp.Stats.FilesProcessed)
	assert.Equal(t, int64(100), resp.Stats.BytesProcessed)

	rec = do(t, h, http.MethodGet, "/users/alice/transfers?limit=zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/users/nobody/transfers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"transfers":[]`)
}

func TestBasicAuth(t *testing.T) {
	h, _ := newHandler(t, &fakeRenamer{}, &fakeMonitor{}, "admin")

	rec := do(t, h, http.MethodGet, "/users/alice/settings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/users/alice/settings", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/alice/settings", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusHandler(t *testing.T) {
	m := &fakeMonitor{views: map[string]transfer.SessionView{"alice": activeView()}}
	repo := newRepo(t)

	sh := NewStatusHandler("transfer_monitor", "v1.0.0", m, repo)
	sh.nowFunc = func() time.Time { return sh.started.Add(90 * time.Minute) }
	h := sh.Routes()

	rec := do(t, h, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "transfer_monitor v1.0.0 is running")
	assert.Contains(t, rec.Body.String(), "Uptime: 01:30:00")
	assert.Contains(t, rec.Body.String(), "Active transfers: 1")

	rec = do(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.InDelta(t, 5400, health.UptimeSeconds, 0.001)

	rec = do(t, h, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"files_processed":0`)
	assert.Contains(t, rec.Body.String(), `"session_id":"session-1"`)
}
