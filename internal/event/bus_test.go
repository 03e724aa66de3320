package event_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/benchkit/dmmlogd/internal/event"
	"codeberg.org/benchkit/dmmlogd/internal/measurement"
)

func TestPublishFanOut(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	m := measurement.Measurement{
		Timestamp:  time.Now(),
		DeviceName: "DMM1",
		Value:      5.0,
		Status:     measurement.StatusOK,
	}
	bus.Publish(event.NewMeasurement(m))

	for _, ch := range []<-chan event.Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, event.TypeMeasurementRecorded, ev.Type)
			assert.Equal(t, "DMM1", ev.DeviceName)
			assert.Equal(t, 5.0, ev.Measurement.Value)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
	assert.Equal(t, uint64(0), bus.Dropped())
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	stalled := bus.Subscribe(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			bus.Publish(event.NewDeviceError("DMM1", "boom"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}

	// One event fit the buffer, the rest were dropped and counted
	assert.Equal(t, uint64(9), bus.Dropped())
	ev := <-stalled
	assert.Equal(t, event.TypeDeviceError, ev.Type)
	assert.Equal(t, "boom", ev.Detail)
}

func TestCloseEndsSubscribers(t *testing.T) {
	bus := event.NewBus()
	ch := bus.Subscribe(1)

	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	// Publish and a second Close are no-ops afterwards
	bus.Publish(event.NewDeviceDisconnected("DMM1"))
	bus.Close()
}

func TestSubscribeAfterClose(t *testing.T) {
	bus := event.NewBus()
	bus.Close()

	ch := bus.Subscribe(1)
	_, open := <-ch
	assert.False(t, open)
}

func TestUnboundedSubscriberNeverDrops(t *testing.T) {
	bus := event.NewBus()
	ch := bus.SubscribeUnbounded()

	// Publish far more than any buffer before the consumer reads
	const total = 500
	for i := 0; i < total; i++ {
		bus.Publish(event.NewDeviceError("DMM1", "e"))
	}
	assert.Equal(t, uint64(0), bus.Dropped())

	got := 0
	timeout := time.After(2 * time.Second)
	for got < total {
		select {
		case <-ch:
			got++
		case <-timeout:
			t.Fatalf("received %d of %d events", got, total)
		}
	}
	bus.Close()
}

func TestUnboundedSubscriberDrainsQueueAfterClose(t *testing.T) {
	bus := event.NewBus()
	ch := bus.SubscribeUnbounded()

	const total = 100
	for i := 0; i < total; i++ {
		bus.Publish(event.NewDeviceError("DMM1", "e"))
	}
	bus.Close()

	// Every queued event arrives before the channel closes
	got := 0
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				assert.Equal(t, total, got)
				return
			}
			got++
		case <-timeout:
			t.Fatalf("received %d of %d events before deadline", got, total)
		}
	}
}

func TestSubscribeUnboundedAfterClose(t *testing.T) {
	bus := event.NewBus()
	bus.Close()

	_, open := <-bus.SubscribeUnbounded()
	assert.False(t, open)
}

func TestEventConstructors(t *testing.T) {
	m := measurement.Measurement{Timestamp: time.Now(), DeviceName: "DMM1"}
	ev := event.NewMeasurement(m)
	require.Equal(t, event.TypeMeasurementRecorded, ev.Type)
	assert.True(t, ev.Timestamp.Equal(m.Timestamp))

	ev = event.NewDeviceConnected("DMM1", "BENCHKIT,SIM-DMM,sim0,1.0")
	assert.Equal(t, event.TypeDeviceConnected, ev.Type)
	assert.Equal(t, "BENCHKIT,SIM-DMM,sim0,1.0", ev.Detail)
}
