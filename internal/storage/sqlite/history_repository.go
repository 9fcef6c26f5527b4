package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/transfer_monitor/internal/storage"
)

const defaultHistoryLimit = 20

// HistoryRepository stores finished transfers and derives the stats from them.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(dbConn *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: dbConn}
}

func (r *HistoryRepository) RecordTransfer(ctx context.Context, rec storage.TransferRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transfers (session_id, user_id, direction, file_name, status, bytes, started_at, duration_ns, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.UserID, rec.Direction, rec.FileName, rec.Status, rec.Bytes,
		rec.StartedAt.UnixNano(), int64(rec.Duration), rec.Error)

	return err
}

// ListTransfers returns the newest transfers of a user first.
func (r *HistoryRepository) ListTransfers(ctx context.Context, userID string, limit int) ([]storage.TransferRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, user_id, direction, file_name, status, bytes, started_at, duration_ns, error
		FROM transfers
		WHERE user_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.TransferRecord

	for rows.Next() {
		var (
			rec       storage.TransferRecord
			startedAt int64
			duration  int64
		)

		if err := rows.Scan(&rec.SessionID, &rec.UserID, &rec.Direction, &rec.FileName, &rec.Status,
			&rec.Bytes, &startedAt, &duration, &rec.Error); err != nil {
			return nil, err
		}

		rec.StartedAt = time.Unix(0, startedAt).UTC()
		rec.Duration = time.Duration(duration)

		records = append(records, rec)
	}

	return records, rows.Err()
}

// GlobalStats counts completed uploads as processed files; a rename is done
// once its upload finished.
func (r *HistoryRepository) GlobalStats(ctx context.Context) (storage.Stats, error) {
	var s storage.Stats

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT user_id),
			COALESCE(SUM(CASE WHEN status = 'completed' AND direction = 'upload' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' AND direction = 'upload' THEN bytes ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM transfers`,
	).Scan(&s.Users, &s.FilesProcessed, &s.BytesProcessed, &s.Failed)

	return s, err
}

func (r *HistoryRepository) UserStats(ctx context.Context, userID string) (storage.UserStats, error) {
	var (
		s          storage.UserStats
		lastActive int64
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'completed' AND direction = 'upload' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' AND direction = 'upload' THEN bytes ELSE 0 END), 0),
			COALESCE(MAX(started_at), 0)
		FROM transfers
		WHERE user_id = ?`, userID,
	).Scan(&s.FilesProcessed, &s.BytesProcessed, &lastActive)
	if err != nil {
		return storage.UserStats{}, err
	}

	if lastActive > 0 {
		s.LastActive = time.Unix(0, lastActive).UTC()
	}

	return s, nil
}
