// Package export renders the measurement log to CSV, JSON or TXT.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"codeberg.org/benchkit/dmmlogd/internal/errors"
	"codeberg.org/benchkit/dmmlogd/internal/measurement"
)

const (
	FormatCSV  = "CSV"
	FormatJSON = "JSON"
	FormatTXT  = "TXT"

	csvTimeLayout = "2006-01-02 15:04:05.000000"
	txtTimeLayout = "2006-01-02 15:04:05"
)

// Formats returns the supported export formats.
func Formats() []string {
	return []string{FormatCSV, FormatJSON, FormatTXT}
}

// Encode renders records in the given format. Encoding an empty set
// fails with export_no_data so callers never write an empty file.
func Encode(format string, records []measurement.Measurement) ([]byte, error) {
	errFactory := errors.New()

	if len(records) == 0 {
		return nil, errFactory.New(errors.ErrNoData)
	}

	switch strings.ToUpper(format) {
	case FormatCSV:
		return encodeCSV(records)
	case FormatJSON:
		return encodeJSON(records)
	case FormatTXT:
		return encodeTXT(records)
	default:
		return nil, errFactory.WithData(errors.ErrUnsupportedFormat, format)
	}
}

func encodeCSV(records []measurement.Measurement) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"Timestamp", "Device", "Function", "Value", "Unit", "Status", "User Label"}
	if err := w.Write(header); err != nil {
		return nil, errors.New().Wrap(errors.ErrExportIO, err)
	}

	for _, m := range records {
		row := []string{
			m.Timestamp.Format(csvTimeLayout),
			m.DeviceName,
			m.Function,
			strconv.FormatFloat(m.Value, 'g', -1, 64),
			m.Unit,
			m.Status,
			m.UserLabel,
		}
		if err := w.Write(row); err != nil {
			return nil, errors.New().Wrap(errors.ErrExportIO, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.New().Wrap(errors.ErrExportIO, err)
	}

	return buf.Bytes(), nil
}

func encodeJSON(records []measurement.Measurement) ([]byte, error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrExportIO, err)
	}

	return data, nil
}

func encodeTXT(records []measurement.Measurement) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("dmmlogd - Measurement Data Export\n")
	buf.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&buf, "Export Date: %s\n", time.Now().Format(txtTimeLayout))
	fmt.Fprintf(&buf, "Total Records: %d\n\n", len(records))

	buf.WriteString("Timestamp | Device | Function | Value | Unit | Status | User Label\n")
	buf.WriteString(strings.Repeat("-", 80) + "\n")

	for _, m := range records {
		fmt.Fprintf(&buf, "%s | %s | %s | %.6f | %s | %s | %s\n",
			m.Timestamp.Format(txtTimeLayout),
			m.DeviceName,
			m.Function,
			m.Value,
			m.Unit,
			m.Status,
			m.UserLabel,
		)
	}

	return buf.Bytes(), nil
}

// WriteFile encodes records and writes the payload to path atomically:
// either the full payload lands or nothing is left behind.
func WriteFile(path, format string, records []measurement.Measurement) error {
	payload, err := Encode(format, records)
	if err != nil {
		return err
	}

	errFactory := errors.New()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".dmmlogd-export-*")
	if err != nil {
		return errFactory.Wrap(errors.ErrExportIO, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errFactory.Wrap(errors.ErrExportIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errFactory.Wrap(errors.ErrExportIO, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errFactory.Wrap(errors.ErrExportIO, err)
	}

	return nil
}

// DefaultFilename returns the conventional export name for a format,
// e.g. dmm_data_20260828_143052.csv.
func DefaultFilename(format string) string {
	ext := strings.ToLower(format)
	return fmt.Sprintf("dmm_data_%s.%s", time.Now().Format("20060102_150405"), ext)
}
