package storage

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidSettings is returned when settings fail validation.
var ErrInvalidSettings = errors.New("invalid settings")

// UploadMode tells how the renamed file is presented once uploaded.
type UploadMode string

const (
	UploadModeDocument UploadMode = "document"
	UploadModeVideo    UploadMode = "video"
)

const maxPrefixLength = 64

// Settings are the per-user options of the rename pipeline.
type Settings struct {
	UserID     string     `json:"user_id"`
	Prefix     string     `json:"prefix"`
	UploadMode UploadMode `json:"upload_mode"`
	Caption    string     `json:"caption"`
	Thumbnail  string     `json:"thumbnail"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// DefaultSettings is what a user without stored settings gets.
func DefaultSettings(userID string) Settings {
	return Settings{UserID: userID, UploadMode: UploadModeDocument}
}

func (s Settings) Validate() error {
	if s.UserID == "" {
		return errors.Join(ErrInvalidSettings, errors.New("user id is required"))
	}

	switch s.UploadMode {
	case UploadModeDocument, UploadModeVideo:
	default:
		return errors.Join(ErrInvalidSettings, errors.New("upload mode must be document or video"))
	}

	if len(s.Prefix) > maxPrefixLength {
		return errors.Join(ErrInvalidSettings, errors.New("prefix is too long"))
	}

	return nil
}

// TransferRecord is one finished transfer session.
type TransferRecord struct {
	SessionID string        `json:"session_id"`
	UserID    string        `json:"user_id"`
	Direction string        `json:"direction"`
	FileName  string        `json:"file_name"`
	Status    string        `json:"status"`
	Bytes     int64         `json:"bytes"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Stats aggregates every user's completed renames.
type Stats struct {
	Users          int64 `json:"users"`
	FilesProcessed int64 `json:"files_processed"`
	BytesProcessed int64 `json:"bytes_processed"`
	Failed         int64 `json:"failed"`
}

// UserStats aggregates one user's completed renames.
type UserStats struct {
	FilesProcessed int64     `json:"files_processed"`
	BytesProcessed int64     `json:"bytes_processed"`
	LastActive     time.Time `json:"last_active"`
}

// WorkFile is a local file written by a transfer and removed by cleanup.
type WorkFile struct {
	Path      string
	SessionID string
	CreatedAt time.Time
}

// SettingsReader returns DefaultSettings for users that never saved any.
type SettingsReader interface {
	GetSettings(ctx context.Context, userID string) (Settings, error)
}

type SettingsWriter interface {
	SaveSettings(ctx context.Context, s Settings) error
}

type HistoryWriter interface {
	RecordTransfer(ctx context.Context, rec TransferRecord) error
}

type HistoryReader interface {
	ListTransfers(ctx context.Context, userID string, limit int) ([]TransferRecord, error)
}

type StatsReader interface {
	GlobalStats(ctx context.Context) (Stats, error)
	UserStats(ctx context.Context, userID string) (UserStats, error)
}

type WorkFileRepository interface {
	TrackWorkFile(ctx context.Context, f WorkFile) error
	ListWorkFiles(ctx context.Context) ([]WorkFile, error)
	ForgetWorkFile(ctx context.Context, path string) error
}
