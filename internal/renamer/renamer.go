// Package renamer renames put.io files: it downloads the source, applies the
// user's prefix and uploads the result under the new name, reporting live
// progress for both legs.
package renamer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/transfer_monitor/internal/logctx"
	"github.com/italolelis/transfer_monitor/internal/notifier"
	"github.com/italolelis/transfer_monitor/internal/progress"
	"github.com/italolelis/transfer_monitor/internal/storage"
	"github.com/italolelis/transfer_monitor/internal/transfer"
	"github.com/italolelis/transfer_monitor/internal/transport/putio"
)

// ErrInvalidJob is returned for jobs missing a user or a file.
var ErrInvalidJob = errors.New("invalid rename job")

// FileTooLargeError is returned before any byte is moved.
type FileTooLargeError struct {
	Size int64
	Max  int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file too large: %s > %s", progress.FormatBytes(e.Size), progress.FormatBytes(e.Max))
}

// Job is one rename request.
type Job struct {
	UserID  string `json:"user_id"`
	FileID  int64  `json:"file_id"`
	NewName string `json:"new_name,omitempty"`
}

func (j Job) Validate() error {
	if j.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidJob)
	}

	if j.FileID <= 0 {
		return fmt.Errorf("%w: file_id is required", ErrInvalidJob)
	}

	return nil
}

// Transport moves the bytes of a rename.
type Transport interface {
	Stat(ctx context.Context, fileID int64) (putio.File, error)
	Download(ctx context.Context, file putio.File, dst io.Writer, report func(current, total int64)) (int64, error)
	Upload(ctx context.Context, src io.Reader, size int64, name string, parentID int64, report func(current, total int64)) (putio.File, error)
}

// Coordinator runs the transfer sessions of a rename under one user lease.
type Coordinator interface {
	Acquire(ctx context.Context, userID string) (*transfer.Lease, error)
	Run(ctx context.Context, lease *transfer.Lease, req transfer.Request, fn transfer.TransportFunc) (*transfer.Result, error)
}

// Repository is the storage the pipeline reads settings from and writes
// history to.
type Repository interface {
	storage.SettingsReader
	storage.HistoryWriter
	storage.WorkFileRepository
}

type Config struct {
	WorkDir     string
	MaxFileSize int64
}

type Service struct {
	coord     Coordinator
	transport Transport
	repo      Repository
	remover   transfer.ArtifactRemover
	sink      notifier.Sink
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(coord Coordinator, tr Transport, repo Repository, remover transfer.ArtifactRemover, sink notifier.Sink, cfg Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		coord:     coord,
		transport: tr,
		repo:      repo,
		remover:   remover,
		sink:      sink,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start acquires the user's lease and runs the rename in the background. It
// fails right away with a *transfer.ConcurrencyViolationError when the user is
// busy.
func (s *Service) Start(ctx context.Context, job Job) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}

	lease, err := s.coord.Acquire(ctx, job.UserID)
	if err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	jobCtx := logctx.WithLogger(s.ctx, logctx.LoggerFromContext(ctx).With("job_id", jobID, "user_id", job.UserID))

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer lease.Release()

		if _, err := s.Rename(jobCtx, lease, jobID, job); err != nil {
			s.reportFailure(jobCtx, jobID, err)
		}
	}()

	return jobID, nil
}

// Wait blocks until every started rename has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown cancels running renames and waits for them to stop.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rename runs the whole pipeline under an acquired lease.
func (s *Service) Rename(ctx context.Context, lease *transfer.Lease, jobID string, job Job) (*Summary, error) {
	logger := logctx.LoggerFromContext(ctx)
	start := time.Now()

	settings, err := s.repo.GetSettings(ctx, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	file, err := s.transport.Stat(ctx, job.FileID)
	if err != nil {
		return nil, err
	}

	if s.cfg.MaxFileSize > 0 && file.Size > s.cfg.MaxFileSize {
		return nil, &FileTooLargeError{Size: file.Size, Max: s.cfg.MaxFileSize}
	}

	name := job.NewName
	if name == "" {
		name = file.Name
	}

	name, err = SanitizeFileName(ApplyPrefix(settings.Prefix, name))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	workPath := filepath.Join(s.cfg.WorkDir, jobID+"_"+name)

	if err := s.repo.TrackWorkFile(ctx, storage.WorkFile{Path: workPath, SessionID: jobID, CreatedAt: time.Now()}); err != nil {
		logger.WarnContext(ctx, "failed to track work file", "path", workPath, "err", err)
	}

	defer s.removeWorkFile(ctx, workPath)

	logger.InfoContext(ctx, "rename started", "file_id", file.ID, "original_name", file.Name, "new_name", name, "size", file.Size)

	dl, err := s.coord.Run(ctx, lease, transfer.Request{
		Direction:  progress.Download,
		TotalBytes: file.Size,
		Label:      progress.Label{FileName: name},
		Artifact:   workPath,
	}, func(ctx context.Context, report transfer.ProgressFunc) error {
		return s.download(ctx, file, workPath, report)
	})
	s.record(ctx, job.UserID, name, progress.Download, dl, err)

	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	var uploaded putio.File

	ul, err := s.coord.Run(ctx, lease, transfer.Request{
		Direction:  progress.Upload,
		TotalBytes: file.Size,
		Label:      progress.Label{FileName: name, Mode: strings.ToUpper(string(settings.UploadMode))},
	}, func(ctx context.Context, report transfer.ProgressFunc) error {
		f, err := os.Open(workPath)
		if err != nil {
			return fmt.Errorf("failed to open work file: %w", err)
		}
		defer f.Close()

		uploaded, err = s.transport.Upload(ctx, f, file.Size, name, file.ParentID, report)

		return err
	})
	s.record(ctx, job.UserID, name, progress.Upload, ul, err)

	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	summary := &Summary{
		JobID:          jobID,
		UserID:         job.UserID,
		OriginalName:   file.Name,
		FileName:       name,
		FileID:         uploaded.ID,
		Size:           file.Size,
		Total:          time.Since(start),
		DownloadSpeed:  speed(file.Size, dl.Duration),
		UploadSpeed:    speed(file.Size, ul.Duration),
		Mode:           settings.UploadMode,
		Thumbnail:      settings.Thumbnail != "",
		Prefixed:       settings.Prefix != "",
		DownloadStatus: dl.Status.String(),
		UploadStatus:   ul.Status.String(),
	}

	logger.InfoContext(ctx, "rename finished", "file_id", uploaded.ID, "rating", summary.Rating(), "total", summary.Total.String())

	s.announce(ctx, jobID, summary.Text())

	return summary, nil
}

func (s *Service) download(ctx context.Context, file putio.File, path string, report transfer.ProgressFunc) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create work file: %w", err)
	}

	if _, err := s.transport.Download(ctx, file, f, report); err != nil {
		f.Close()

		return err
	}

	return f.Close()
}

func (s *Service) record(ctx context.Context, userID, name string, dir progress.Direction, res *transfer.Result, runErr error) {
	if res == nil {
		return
	}

	rec := storage.TransferRecord{
		SessionID: res.SessionID,
		UserID:    userID,
		Direction: dir.String(),
		FileName:  name,
		Status:    res.Status.String(),
		Bytes:     res.Snapshot.CurrentBytes,
		StartedAt: time.Now().Add(-res.Duration),
		Duration:  res.Duration,
	}

	if runErr != nil {
		rec.Error = runErr.Error()
	}

	if err := s.repo.RecordTransfer(ctx, rec); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to record transfer", "session_id", res.SessionID, "err", err)
	}
}

func (s *Service) removeWorkFile(ctx context.Context, path string) {
	if s.remover == nil {
		return
	}

	// the context may already be cancelled; removal still has to happen
	if err := s.remover.RemoveArtifact(context.WithoutCancel(ctx), path); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to remove work file", "path", path, "err", err)
	}
}

func (s *Service) reportFailure(ctx context.Context, jobID string, err error) {
	logger := logctx.LoggerFromContext(ctx)

	if errors.Is(err, transfer.ErrCancelled) || errors.Is(err, context.Canceled) {
		logger.InfoContext(ctx, "rename cancelled")
		s.announce(ctx, jobID, "🛑 Rename cancelled")

		return
	}

	logger.ErrorContext(ctx, "rename failed", "err", err)
	s.announce(ctx, jobID, "❌ Rename failed: "+err.Error())
}

// announce sends a standalone message outside any transfer session.
func (s *Service) announce(ctx context.Context, jobID, text string) {
	if s.sink == nil {
		return
	}

	if err := s.sink.Emit(context.WithoutCancel(ctx), jobID, text); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to send rename summary", "err", err)
	}

	if c, ok := s.sink.(notifier.Closer); ok {
		c.CloseSession(jobID)
	}
}
