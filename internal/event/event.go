// Package event carries the typed events the scheduler and registry
// publish and the store, archive, API and MQTT consumers subscribe to.
package event

import (
	"time"

	"codeberg.org/benchkit/dmmlogd/internal/measurement"
)

type Type string

const (
	TypeMeasurementRecorded Type = "measurement_recorded"
	TypeDeviceError         Type = "device_error"
	TypeDeviceConnected     Type = "device_connected"
	TypeDeviceDisconnected  Type = "device_disconnected"
)

// Event is one occurrence on the bus. Measurement is set only for
// TypeMeasurementRecorded; Detail carries the failure description for
// TypeDeviceError and the instrument identification for
// TypeDeviceConnected.
type Event struct {
	Type        Type
	Timestamp   time.Time
	DeviceName  string
	Measurement measurement.Measurement
	Detail      string
}

func NewMeasurement(m measurement.Measurement) Event {
	return Event{
		Type:        TypeMeasurementRecorded,
		Timestamp:   m.Timestamp,
		DeviceName:  m.DeviceName,
		Measurement: m,
	}
}

func NewDeviceError(device, detail string) Event {
	return Event{
		Type:       TypeDeviceError,
		Timestamp:  time.Now(),
		DeviceName: device,
		Detail:     detail,
	}
}

func NewDeviceConnected(device, identification string) Event {
	return Event{
		Type:       TypeDeviceConnected,
		Timestamp:  time.Now(),
		DeviceName: device,
		Detail:     identification,
	}
}

func NewDeviceDisconnected(device string) Event {
	return Event{
		Type:       TypeDeviceDisconnected,
		Timestamp:  time.Now(),
		DeviceName: device,
	}
}
