// Package stats computes summary statistics over measurement records.
package stats

import (
	"math"
	"sort"
	"time"

	"codeberg.org/benchkit/dmmlogd/internal/measurement"
)

// TimeRange is the span covered by a set of records.
type TimeRange struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
}

// DeviceStats aggregates one device's OK records.
type DeviceStats struct {
	Count     int     `json:"count"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	LastValue float64 `json:"last_value"`
}

// Summary describes a record set. Empty input yields a zero-value
// summary (count 0, empty sets, nil time range), never an error.
type Summary struct {
	Count     int                    `json:"count"`
	Devices   []string               `json:"devices"`
	Functions []string               `json:"functions"`
	TimeRange *TimeRange             `json:"time_range,omitempty"`
	PerDevice map[string]DeviceStats `json:"device_stats"`
}

// Compute aggregates records. Per-device statistics cover only
// records with status OK; the record count and time range cover all.
func Compute(records []measurement.Measurement) Summary {
	summary := Summary{
		Count:     len(records),
		Devices:   []string{},
		Functions: []string{},
		PerDevice: make(map[string]DeviceStats),
	}
	if len(records) == 0 {
		return summary
	}

	deviceSet := make(map[string]struct{})
	functionSet := make(map[string]struct{})
	okValues := make(map[string][]float64)

	start, end := records[0].Timestamp, records[0].Timestamp
	for _, m := range records {
		deviceSet[m.DeviceName] = struct{}{}
		functionSet[m.Function] = struct{}{}
		if m.Timestamp.Before(start) {
			start = m.Timestamp
		}
		if m.Timestamp.After(end) {
			end = m.Timestamp
		}
		if m.OK() {
			okValues[m.DeviceName] = append(okValues[m.DeviceName], m.Value)
		}
	}

	summary.Devices = sortedKeys(deviceSet)
	summary.Functions = sortedKeys(functionSet)
	summary.TimeRange = &TimeRange{Start: start, End: end, Duration: end.Sub(start)}

	for device, values := range okValues {
		summary.PerDevice[device] = deviceStats(values)
	}

	return summary
}

func deviceStats(values []float64) DeviceStats {
	st := DeviceStats{
		Count: len(values),
		Min:   values[0],
		Max:   values[0],
	}

	sum := 0.0
	for _, v := range values {
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
		sum += v
	}
	st.Mean = sum / float64(len(values))
	st.LastValue = values[len(values)-1]

	variance := 0.0
	for _, v := range values {
		d := v - st.Mean
		variance += d * d
	}
	st.StdDev = math.Sqrt(variance / float64(len(values)))

	return st
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
