package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/italolelis/transfer_monitor/internal/storage"
)

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(dbConn *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: dbConn}
}

// GetSettings returns the stored settings, or the defaults for unknown users.
func (r *SettingsRepository) GetSettings(ctx context.Context, userID string) (storage.Settings, error) {
	s := storage.Settings{UserID: userID}

	var (
		mode      string
		updatedAt int64
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT prefix, upload_mode, caption, thumbnail, updated_at FROM user_settings WHERE user_id = ?`,
		userID,
	).Scan(&s.Prefix, &mode, &s.Caption, &s.Thumbnail, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.DefaultSettings(userID), nil
	}

	if err != nil {
		return storage.Settings{}, err
	}

	s.UploadMode = storage.UploadMode(mode)
	s.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return s, nil
}

func (r *SettingsRepository) SaveSettings(ctx context.Context, s storage.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, prefix, upload_mode, caption, thumbnail, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			prefix = excluded.prefix,
			upload_mode = excluded.upload_mode,
			caption = excluded.caption,
			thumbnail = excluded.thumbnail,
			updated_at = excluded.updated_at
	`, s.UserID, s.Prefix, string(s.UploadMode), s.Caption, s.Thumbnail, time.Now().UnixNano())

	return err
}
