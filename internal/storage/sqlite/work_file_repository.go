package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/transfer_monitor/internal/storage"
)

type WorkFileRepository struct {
	db *sql.DB
}

func NewWorkFileRepository(dbConn *sql.DB) *WorkFileRepository {
	return &WorkFileRepository{db: dbConn}
}

func (r *WorkFileRepository) TrackWorkFile(ctx context.Context, f storage.WorkFile) error {
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO work_files (path, session_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET session_id = excluded.session_id, created_at = excluded.created_at
	`, f.Path, f.SessionID, createdAt.UnixNano())

	return err
}

func (r *WorkFileRepository) ListWorkFiles(ctx context.Context) ([]storage.WorkFile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT path, session_id, created_at FROM work_files ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []storage.WorkFile

	for rows.Next() {
		var (
			f         storage.WorkFile
			createdAt int64
		)

		if err := rows.Scan(&f.Path, &f.SessionID, &createdAt); err != nil {
			return nil, err
		}

		f.CreatedAt = time.Unix(0, createdAt).UTC()
		files = append(files, f)
	}

	return files, rows.Err()
}

func (r *WorkFileRepository) ForgetWorkFile(ctx context.Context, path string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM work_files WHERE path = ?`, path)

	return err
}
