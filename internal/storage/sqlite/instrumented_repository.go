package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/transfer_monitor/internal/storage"
	"github.com/italolelis/transfer_monitor/internal/telemetry"
)

// InstrumentedRepository wraps the settings, history and work file
// repositories with telemetry.
type InstrumentedRepository struct {
	settings  *SettingsRepository
	history   *HistoryRepository
	workFiles *WorkFileRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedRepository {
	return &InstrumentedRepository{
		settings:  NewSettingsRepository(dbConn),
		history:   NewHistoryRepository(dbConn),
		workFiles: NewWorkFileRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedRepository) GetSettings(ctx context.Context, userID string) (storage.Settings, error) {
	var result storage.Settings

	err := r.telemetry.InstrumentDBOperation(ctx, "get_settings", func(ctx context.Context) error {
		var err error
		result, err = r.settings.GetSettings(ctx, userID)

		return err
	})

	return result, err
}

func (r *InstrumentedRepository) SaveSettings(ctx context.Context, s storage.Settings) error {
	return r.telemetry.InstrumentDBOperation(ctx, "save_settings", func(ctx context.Context) error {
		return r.settings.SaveSettings(ctx, s)
	})
}

func (r *InstrumentedRepository) RecordTransfer(ctx context.Context, rec storage.TransferRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_transfer", func(ctx context.Context) error {
		return r.history.RecordTransfer(ctx, rec)
	})
}

func (r *InstrumentedRepository) ListTransfers(ctx context.Context, userID string, limit int) ([]storage.TransferRecord, error) {
	var result []storage.TransferRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_transfers", func(ctx context.Context) error {
		var err error
		result, err = r.history.ListTransfers(ctx, userID, limit)

		return err
	})

	return result, err
}

func (r *InstrumentedRepository) GlobalStats(ctx context.Context) (storage.Stats, error) {
	var result storage.Stats

	err := r.telemetry.InstrumentDBOperation(ctx, "global_stats", func(ctx context.Context) error {
		var err error
		result, err = r.history.GlobalStats(ctx)

		return err
	})

	return result, err
}

func (r *InstrumentedRepository) UserStats(ctx context.Context, userID string) (storage.UserStats, error) {
	var result storage.UserStats

	err := r.telemetry.InstrumentDBOperation(ctx, "user_stats", func(ctx context.Context) error {
		var err error
		result, err = r.history.UserStats(ctx, userID)

		return err
	})

	return result, err
}

func (r *InstrumentedRepository) TrackWorkFile(ctx context.Context, f storage.WorkFile) error {
	return r.telemetry.InstrumentDBOperation(ctx, "track_work_file", func(ctx context.Context) error {
		return r.workFiles.TrackWorkFile(ctx, f)
	})
}

func (r *InstrumentedRepository) ListWorkFiles(ctx context.Context) ([]storage.WorkFile, error) {
	var result []storage.WorkFile

	err := r.telemetry.InstrumentDBOperation(ctx, "list_work_files", func(ctx context.Context) error {
		var err error
		result, err = r.workFiles.ListWorkFiles(ctx)

		return err
	})

	return result, err
}

func (r *InstrumentedRepository) ForgetWorkFile(ctx context.Context, path string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "forget_work_file", func(ctx context.Context) error {
		return r.workFiles.ForgetWorkFile(ctx, path)
	})
}
