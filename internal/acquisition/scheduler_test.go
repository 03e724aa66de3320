package acquisition_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/benchkit/dmmlogd/internal/acquisition"
	"codeberg.org/benchkit/dmmlogd/internal/errors"
	"codeberg.org/benchkit/dmmlogd/internal/event"
	"codeberg.org/benchkit/dmmlogd/internal/logger"
	"codeberg.org/benchkit/dmmlogd/internal/measurement"
	"codeberg.org/benchkit/dmmlogd/internal/registry"
	"codeberg.org/benchkit/dmmlogd/internal/transport"
)

type fixture struct {
	sim   *transport.Sim
	reg   *registry.Registry
	bus   *event.Bus
	sched *acquisition.Scheduler
}

func newFixture(t *testing.T, addresses ...string) *fixture {
	t.Helper()

	bus := event.NewBus()
	sim := transport.NewSim(addresses...)
	reg := registry.New(sim, bus, logger.Default())

	for i, addr := range addresses {
		name := "DMM" + string(rune('1'+i))
		cfg := registry.DeviceConfig{
			Name:     name,
			Address:  addr,
			Function: "DC Voltage",
			Enabled:  true,
		}
		require.NoError(t, reg.AddOrUpdate(cfg))
		_, err := reg.Connect(context.Background(), name, addr)
		require.NoError(t, err)
	}

	sched := acquisition.New(reg, bus, nil, logger.Default(), time.Second)
	t.Cleanup(func() {
		sched.Stop()
		reg.CloseAll()
		bus.Close()
	})

	return &fixture{sim: sim, reg: reg, bus: bus, sched: sched}
}

// waitMeasurements drains events until want measurements arrived or
// the deadline passed.
func waitMeasurements(t *testing.T, events <-chan event.Event, want int, deadline time.Duration) []measurement.Measurement {
	t.Helper()

	var out []measurement.Measurement
	timeout := time.After(deadline)
	for len(out) < want {
		select {
		case ev := <-events:
			if ev.Type == event.TypeMeasurementRecorded {
				out = append(out, ev.Measurement)
			}
		case <-timeout:
			t.Fatalf("got %d of %d measurements before deadline", len(out), want)
		}
	}

	return out
}

func TestStartWithoutDevices(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	reg := registry.New(transport.NewSim(), bus, logger.Default())
	sched := acquisition.New(reg, bus, nil, logger.Default(), time.Second)

	err := sched.Start(10 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrNoDevicesConfigured))
	assert.False(t, sched.Running())
}

func TestStartInvalidInterval(t *testing.T) {
	f := newFixture(t, "sim0")

	err := f.sched.Start(0)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestPollingProducesMeasurements(t *testing.T) {
	f := newFixture(t, "sim0", "sim1")
	events := f.bus.Subscribe(64)

	require.NoError(t, f.sched.Start(10*time.Millisecond))
	assert.True(t, f.sched.Running())

	records := waitMeasurements(t, events, 6, 2*time.Second)

	seen := make(map[string]bool)
	for _, m := range records {
		seen[m.DeviceName] = true
		assert.Equal(t, measurement.StatusOK, m.Status)
		assert.Equal(t, "DC Voltage", m.Function)
		assert.Equal(t, "V", m.Unit)
		assert.False(t, m.Timestamp.IsZero())
	}
	assert.True(t, seen["DMM1"])
	assert.True(t, seen["DMM2"])
}

func TestSlowDeviceDoesNotDelayOthers(t *testing.T) {
	f := newFixture(t, "sim0", "sim1")
	f.sim.SetLatency("sim0", 500*time.Millisecond)
	events := f.bus.Subscribe(64)

	require.NoError(t, f.sched.Start(10*time.Millisecond))

	// The fast device must keep producing while the slow one stalls
	records := waitMeasurements(t, events, 5, 2*time.Second)
	for _, m := range records {
		assert.Equal(t, "DMM2", m.DeviceName)
	}
}

func TestParseFailureRecordsError(t *testing.T) {
	f := newFixture(t, "sim0")
	f.sim.SetReply("sim0", "GARBAGE")
	events := f.bus.Subscribe(64)

	require.NoError(t, f.sched.Start(10*time.Millisecond))

	var got *measurement.Measurement
	var detail string
	timeout := time.After(2 * time.Second)
	for got == nil || detail == "" {
		select {
		case ev := <-events:
			switch ev.Type {
			case event.TypeMeasurementRecorded:
				m := ev.Measurement
				got = &m
			case event.TypeDeviceError:
				detail = ev.Detail
			}
		case <-timeout:
			t.Fatal("no error measurement before deadline")
		}
	}

	assert.Equal(t, measurement.StatusError, got.Status)
	assert.Equal(t, 0.0, got.Value)
	assert.Empty(t, got.Unit)
	assert.Contains(t, detail, "GARBAGE")
}

func TestQueryFailurePublishesDeviceError(t *testing.T) {
	f := newFixture(t, "sim0")
	f.sim.SetFailing("sim0", true)
	events := f.bus.Subscribe(64)

	require.NoError(t, f.sched.Start(10*time.Millisecond))

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == event.TypeDeviceError {
				assert.Equal(t, "DMM1", ev.DeviceName)
				return
			}
			// A failing instrument must never yield a measurement
			require.NotEqual(t, event.TypeMeasurementRecorded, ev.Type)
		case <-timeout:
			t.Fatal("no device error before deadline")
		}
	}
}

func TestStopDiscardsInFlightResults(t *testing.T) {
	f := newFixture(t, "sim0")
	f.sim.SetLatency("sim0", 200*time.Millisecond)
	events := f.bus.Subscribe(64)

	require.NoError(t, f.sched.Start(10*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	f.sched.Stop()
	assert.False(t, f.sched.Running())

	// Drain whatever arrived before the stop completed
	for {
		select {
		case <-events:
			continue
		default:
		}
		break
	}

	// Nothing may be emitted once Stop has returned
	select {
	case ev, ok := <-events:
		if ok {
			t.Fatalf("event emitted after stop: %v", ev.Type)
		}
	case <-time.After(150 * time.Millisecond):
	}
}

func TestStopIdempotent(t *testing.T) {
	f := newFixture(t, "sim0")

	require.NoError(t, f.sched.Start(10*time.Millisecond))
	f.sched.Stop()
	f.sched.Stop()
	assert.False(t, f.sched.Running())
}

func TestStartWhileRunningUpdatesInterval(t *testing.T) {
	f := newFixture(t, "sim0")

	require.NoError(t, f.sched.Start(10*time.Millisecond))
	require.NoError(t, f.sched.Start(20*time.Millisecond))
	assert.True(t, f.sched.Running())
}

func TestSampleAveraging(t *testing.T) {
	f := newFixture(t, "sim0")
	f.sim.SetReading("sim0", 5.0, 0)

	cfg := registry.DeviceConfig{
		Name:        "DMM1",
		Address:     "sim0",
		Function:    "DC Voltage",
		SampleCount: 4,
		Enabled:     true,
	}
	require.NoError(t, f.reg.AddOrUpdate(cfg))

	events := f.bus.Subscribe(64)
	require.NoError(t, f.sched.Start(10*time.Millisecond))

	records := waitMeasurements(t, events, 1, 2*time.Second)
	assert.InDelta(t, 5.0, records[0].Value, 1e-6)
}
