package archive

import (
	"database/sql"

	"codeberg.org/benchkit/dmmlogd/internal/errors"
	"codeberg.org/benchkit/dmmlogd/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS measurements (
	       id          INTEGER PRIMARY KEY AUTOINCREMENT,
	       ts_micros   INTEGER NOT NULL,
	       device      TEXT NOT NULL,
	       function    TEXT NOT NULL,
	       value       REAL NOT NULL,
	       unit        TEXT NOT NULL,
	       status      TEXT NOT NULL CHECK (status IN ('OK', 'ERROR')),
	       user_label  TEXT NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_measurements_device_ts
	       ON measurements (device, ts_micros);`

	insertMeasurementSQL = `
    INSERT INTO measurements (
        ts_micros, device, function, value, unit, status, user_label
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`
)

// InitSchema creates the database schema at the current version.
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(errors.ErrSchemaFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(errors.ErrSchemaFailed, err)
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.Wrap(errors.ErrSchemaFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(errors.ErrSchemaFailed, err)
	}
	committed = true

	log.Info().Int("version", SchemaVersion).Msg("Archive schema initialized")

	return nil
}

// GetSchemaVersion returns the schema version found in the database,
// or 0 for a fresh file.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := tableExists(db, "schema_versions")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrSchemaFailed, err)
	}

	return version, nil
}

// ValidateAndUpdateSchema checks the schema version and recreates the
// tables when it does not match the current version.
func ValidateAndUpdateSchema(db *sql.DB, log logger.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}

	if version == SchemaVersion {
		log.Debug().Int("version", version).Msg("Archive schema is current")
		return nil
	}

	if version != 0 {
		log.Warn().
			Int("found", version).
			Int("want", SchemaVersion).
			Msg("Archive schema version mismatch, recreating")
		if err := dropTables(db, log); err != nil {
			return err
		}
	}

	return InitSchema(db, log)
}

func tableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().Wrap(errors.ErrSchemaFailed, err)
	}

	return exists, nil
}

func dropTables(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(errors.ErrSchemaFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback drop tables")
			}
		}
	}()

	for _, table := range []string{"measurements", "schema_versions"} {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return errFactory.Wrap(errors.ErrSchemaFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(errors.ErrSchemaFailed, err)
	}
	committed = true

	return nil
}
