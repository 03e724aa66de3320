package archive_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/benchkit/dmmlogd/internal/archive"
	"codeberg.org/benchkit/dmmlogd/internal/logger"
	"codeberg.org/benchkit/dmmlogd/internal/measurement"
)

func testConfig(t *testing.T) archive.Config {
	t.Helper()

	return archive.Config{
		DBPath:       filepath.Join(t.TempDir(), "archive.db"),
		BatchSize:    2,
		BatchTimeout: 60,
		Enabled:      true,
	}
}

func sample(device string, value float64, ts time.Time) measurement.Measurement {
	return measurement.Measurement{
		Timestamp:  ts,
		DeviceName: device,
		Function:   "DC Voltage",
		Value:      value,
		Unit:       "V",
		Status:     measurement.StatusOK,
		UserLabel:  "bench",
	}
}

func TestRecordAndQuery(t *testing.T) {
	repo, err := archive.NewRepository(testConfig(t), logger.Default())
	require.NoError(t, err)
	defer repo.Close()

	base := time.Date(2026, 8, 28, 12, 0, 0, 123456000, time.UTC)
	require.NoError(t, repo.Record(sample("DMM1", 5.0, base)))
	require.NoError(t, repo.Record(sample("DMM2", 6.0, base.Add(time.Second))))
	require.NoError(t, repo.Record(sample("DMM1", 5.1, base.Add(2*time.Second))))

	// Query flushes the buffer first, so all three rows are visible
	rows, err := repo.Query("", 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "DMM1", rows[0].DeviceName)
	assert.Equal(t, 5.0, rows[0].Value)
	assert.Equal(t, "V", rows[0].Unit)
	assert.Equal(t, "bench", rows[0].UserLabel)
	assert.True(t, rows[0].Timestamp.Equal(base), "microsecond timestamps survive the roundtrip")

	filtered, err := repo.Query("DMM2", 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, 6.0, filtered[0].Value)

	limited, err := repo.Query("DMM1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, 5.1, limited[0].Value)
}

func TestReopenReadOnly(t *testing.T) {
	cfg := testConfig(t)
	log := logger.Default()

	repo, err := archive.NewRepository(cfg, log)
	require.NoError(t, err)

	base := time.Now().Truncate(time.Microsecond)
	require.NoError(t, repo.Record(sample("DMM1", 5.0, base)))
	require.NoError(t, repo.Close())

	ro, err := archive.OpenReadOnly(cfg.DBPath, log)
	require.NoError(t, err)
	defer ro.Close()

	rows, err := ro.Query("", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 5.0, rows[0].Value)
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	_, err := archive.OpenReadOnly(filepath.Join(t.TempDir(), "absent.db"), logger.Default())
	require.Error(t, err)
}

func TestNewRepositoryRequiresPath(t *testing.T) {
	_, err := archive.NewRepository(archive.Config{}, logger.Default())
	require.Error(t, err)
}
