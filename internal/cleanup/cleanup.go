package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/transfer_monitor/internal/logctx"
	"github.com/italolelis/transfer_monitor/internal/storage"
	"github.com/italolelis/transfer_monitor/internal/telemetry"
)

// Cleaner removes work files left behind by transfers.
type Cleaner struct {
	repo    storage.WorkFileRepository
	dir     string
	maxAge  time.Duration
	tel     *telemetry.Telemetry
	nowFunc func() time.Time
}

func NewCleaner(repo storage.WorkFileRepository, dir string, maxAge time.Duration, tel *telemetry.Telemetry) *Cleaner {
	return &Cleaner{repo: repo, dir: dir, maxAge: maxAge, tel: tel, nowFunc: time.Now}
}

// RemoveArtifact deletes a work file and forgets it. A missing file is not an
// error.
func (c *Cleaner) RemoveArtifact(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return c.repo.ForgetWorkFile(ctx, path)
}

// DeleteExpiredFiles deletes tracked work files older than maxAge, plus
// untracked files in the work directory whose mod time is older than maxAge.
func (c *Cleaner) DeleteExpiredFiles(ctx context.Context) (int, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := c.nowFunc()

	files, err := c.repo.ListWorkFiles(ctx)
	if err != nil {
		return 0, err
	}

	tracked := make(map[string]struct{}, len(files))
	deleted := 0

	for _, f := range files {
		tracked[filepath.Clean(f.Path)] = struct{}{}

		if now.Sub(f.CreatedAt) <= c.maxAge {
			continue
		}

		if err := c.RemoveArtifact(ctx, f.Path); err != nil {
			logger.ErrorContext(ctx, "failed to delete expired file", "file", f.Path, "err", err)

			return deleted, err
		}

		logger.InfoContext(ctx, "deleted expired file", "file", f.Path)

		deleted++
	}

	orphans, err := c.deleteOrphans(ctx, tracked, now)
	deleted += orphans

	c.tel.RecordFilesCleaned(ctx, deleted)

	return deleted, err
}

func (c *Cleaner) deleteOrphans(ctx context.Context, tracked map[string]struct{}, now time.Time) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}

		return 0, err
	}

	deleted := 0

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		path := filepath.Join(c.dir, e.Name())
		if _, ok := tracked[filepath.Clean(path)]; ok {
			continue
		}

		info, err := e.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // already deleted
			}

			return deleted, err
		}

		if now.Sub(info.ModTime()) <= c.maxAge {
			continue
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.ErrorContext(ctx, "failed to delete orphaned file", "file", path, "err", err)

			return deleted, err
		}

		logger.InfoContext(ctx, "deleted orphaned file", "file", path)

		deleted++
	}

	return deleted, nil
}

// Run deletes expired files every interval until ctx is done.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.DeleteExpiredFiles(ctx); err != nil {
				logger.ErrorContext(ctx, "cleanup failed", "err", err)
				c.tel.RecordSystemError(ctx, "cleanup", "delete_failed")
			}
		}
	}
}
