// Package archive persists measurements to SQLite so the export and
// stats subcommands work after a run ends. Rows are buffered and
// flushed in batches by a background goroutine.
package archive

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/benchkit/dmmlogd/internal/errors"
	"codeberg.org/benchkit/dmmlogd/internal/logger"
	"codeberg.org/benchkit/dmmlogd/internal/measurement"
	_ "github.com/mattn/go-sqlite3"
)

// Repository stores and reads back archived measurements.
type Repository interface {
	Record(m measurement.Measurement) error
	Query(device string, limit int) ([]measurement.Measurement, error)
	Close() error
}

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []measurement.Measurement
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(errors.ErrInvalidDBPath)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
			return nil, errFactory.Wrap(errors.ErrStorageInit, err)
		}
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrStorageInit, err)
	}

	if err := ValidateAndUpdateSchema(db, log); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("Archive opened")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]measurement.Measurement, 0, cfg.BatchSize),
		flushTicker:   time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}
	go repo.flusher()

	return repo, nil
}

// OpenReadOnly opens an existing archive for queries only; no flusher
// is started. Used by the export and stats subcommands.
func OpenReadOnly(dbPath string, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if _, err := os.Stat(dbPath); err != nil {
		return nil, errFactory.Wrap(errors.ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?mode=ro")
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrStorageInit, err)
	}

	version, err := GetSchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if version != SchemaVersion {
		db.Close()
		return nil, errFactory.WithData(errors.ErrSchemaFailed, version)
	}

	return &readOnlyRepository{db: db, logger: log}, nil
}

func (r *repository) Record(m measurement.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, m)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Query(device string, limit int) ([]measurement.Measurement, error) {
	r.mu.Lock()
	if err := r.flush(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	return queryMeasurements(r.db, device, limit)
}

func (r *repository) Close() error {
	close(r.shutdownChan)
	r.flushTicker.Stop()
	<-r.flushDoneChan

	errFactory := errors.New()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errFactory.Wrap(errors.ErrStorageClose, err)
	}

	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(errors.ErrStorageClose, err)
	}

	r.logger.Info().Msg("Archive closed gracefully")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Error().Err(err).Msg("Periodic archive flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Error().Err(err).Msg("Final archive flush failed")
			}
			r.mu.Unlock()
			return
		}
	}
}

// flush writes the buffer in one transaction. Callers hold r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(errors.ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertMeasurementSQL)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(errors.ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, m := range r.buffer {
		if _, err := stmt.Exec(
			m.Timestamp.UnixMicro(),
			m.DeviceName,
			m.Function,
			m.Value,
			m.Unit,
			m.Status,
			m.UserLabel,
		); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(errors.ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(errors.ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed measurements to archive")
	r.buffer = r.buffer[:0]

	return nil
}

type readOnlyRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func (r *readOnlyRepository) Record(measurement.Measurement) error {
	return errors.New().WithMessage(errors.ErrInvalidArgument, "archive opened read-only")
}

func (r *readOnlyRepository) Query(device string, limit int) ([]measurement.Measurement, error) {
	return queryMeasurements(r.db, device, limit)
}

func (r *readOnlyRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return errors.New().Wrap(errors.ErrStorageClose, err)
	}

	return nil
}

func queryMeasurements(db *sql.DB, device string, limit int) ([]measurement.Measurement, error) {
	errFactory := errors.New()

	query := `
        SELECT ts_micros, device, function, value, unit, status, user_label
        FROM measurements`
	args := []any{}
	if device != "" {
		query += " WHERE device = ?"
		args = append(args, device)
	}
	query += " ORDER BY id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrTransactionFailed, err)
	}
	defer rows.Close()

	var out []measurement.Measurement
	for rows.Next() {
		var m measurement.Measurement
		var micros int64
		if err := rows.Scan(&micros, &m.DeviceName, &m.Function, &m.Value, &m.Unit, &m.Status, &m.UserLabel); err != nil {
			return nil, errFactory.Wrap(errors.ErrTransactionFailed, err)
		}
		m.Timestamp = time.UnixMicro(micros)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(errors.ErrTransactionFailed, err)
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}

	return out, nil
}
