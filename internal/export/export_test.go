package export_test

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/benchkit/dmmlogd/internal/errors"
	"codeberg.org/benchkit/dmmlogd/internal/export"
	"codeberg.org/benchkit/dmmlogd/internal/measurement"
)

func sampleRecords() []measurement.Measurement {
	ts := time.Date(2026, 8, 28, 14, 30, 52, 123456000, time.UTC)

	return []measurement.Measurement{
		{
			Timestamp:  ts,
			DeviceName: "DMM1",
			Function:   "DC Voltage",
			Value:      5.0001234,
			Unit:       "V",
			Status:     measurement.StatusOK,
			UserLabel:  "PSU rail",
		},
		{
			Timestamp:  ts.Add(time.Second),
			DeviceName: "DMM2",
			Function:   "Resistance (2-wire)",
			Value:      0,
			Unit:       "",
			Status:     measurement.StatusError,
			UserLabel:  "",
		},
	}
}

func TestEncodeEmptyFails(t *testing.T) {
	for _, format := range export.Formats() {
		_, err := export.Encode(format, nil)
		require.Error(t, err, format)
		assert.True(t, errors.HasCode(err, errors.ErrNoData), format)
	}
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	_, err := export.Encode("XML", sampleRecords())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrUnsupportedFormat))
}

func TestEncodeFormatCaseInsensitive(t *testing.T) {
	upper, err := export.Encode("CSV", sampleRecords())
	require.NoError(t, err)
	lower, err := export.Encode("csv", sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, upper, lower)
}

func TestEncodeCSV(t *testing.T) {
	payload, err := export.Encode(export.FormatCSV, sampleRecords())
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(payload))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t,
		[]string{"Timestamp", "Device", "Function", "Value", "Unit", "Status", "User Label"},
		rows[0])
	assert.Equal(t, "2026-08-28 14:30:52.123456", rows[1][0])
	assert.Equal(t, "DMM1", rows[1][1])
	assert.Equal(t, "5.0001234", rows[1][3])
	assert.Equal(t, "OK", rows[1][5])
	assert.Equal(t, "PSU rail", rows[1][6])
	assert.Equal(t, "ERROR", rows[2][5])
}

func TestEncodeJSONRoundTrip(t *testing.T) {
	records := sampleRecords()
	payload, err := export.Encode(export.FormatJSON, records)
	require.NoError(t, err)

	var decoded []measurement.Measurement
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Len(t, decoded, 2)

	assert.True(t, decoded[0].Timestamp.Equal(records[0].Timestamp))
	assert.Equal(t, records[0].DeviceName, decoded[0].DeviceName)
	assert.Equal(t, records[0].Value, decoded[0].Value)
	assert.Equal(t, records[0].UserLabel, decoded[0].UserLabel)
	assert.Equal(t, records[1].Status, decoded[1].Status)

	// Field names follow the documented export schema
	assert.Contains(t, string(payload), `"device_name"`)
	assert.Contains(t, string(payload), `"user_label"`)
}

func TestEncodeTXT(t *testing.T) {
	payload, err := export.Encode(export.FormatTXT, sampleRecords())
	require.NoError(t, err)

	text := string(payload)
	assert.Contains(t, text, "dmmlogd - Measurement Data Export")
	assert.Contains(t, text, strings.Repeat("=", 50))
	assert.Contains(t, text, "Total Records: 2")
	assert.Contains(t, text, "5.000123")
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	require.NoError(t, export.WriteFile(path, export.FormatCSV, sampleRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Timestamp,Device,Function")

	// A failed encode leaves nothing behind
	err = export.WriteFile(filepath.Join(dir, "empty.csv"), export.FormatCSV, nil)
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDefaultFilename(t *testing.T) {
	name := export.DefaultFilename(export.FormatJSON)
	assert.True(t, strings.HasPrefix(name, "dmm_data_"))
	assert.True(t, strings.HasSuffix(name, ".json"))
}
