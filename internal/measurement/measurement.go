// Package measurement holds the immutable measurement record shared by
// the acquisition, storage, export and API layers.
package measurement

import "time"

// Measurement status values.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Measurement is one acquired reading. Records never mutate after
// creation; UserLabel is a snapshot of the device configuration at
// acquisition time, so later config edits do not rewrite history.
type Measurement struct {
	Timestamp  time.Time `json:"timestamp"`
	DeviceName string    `json:"device_name"`
	Function   string    `json:"function"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Status     string    `json:"status"`
	UserLabel  string    `json:"user_label"`
}

// OK reports whether the record carries a successfully parsed value.
func (m Measurement) OK() bool {
	return m.Status == StatusOK
}

// Point is one (timestamp, value) pair of a recent-history series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
