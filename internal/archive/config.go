package archive

import "codeberg.org/benchkit/dmmlogd/internal/errors"

const (
	defaultDirPerm      = 0o755
	defaultBatchSize    = 64
	defaultBatchTimeout = 5
)

type Config struct {
	DBPath string
	// BatchSize is the number of buffered rows that forces a flush;
	// BatchTimeout (seconds) bounds how long a partial batch waits.
	BatchSize    int
	BatchTimeout int
	Enabled      bool
}

func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:       dbPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	if c.Enabled && c.DBPath == "" {
		return errors.New().New(errors.ErrInvalidDBPath)
	}

	return nil
}
