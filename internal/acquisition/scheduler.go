// Package acquisition drives the periodic polling of configured
// instruments. The scheduler holds no measurement data; it reads the
// registry fresh each tick and publishes events for consumers.
package acquisition

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/benchkit/dmmlogd/internal/errors"
	"codeberg.org/benchkit/dmmlogd/internal/event"
	"codeberg.org/benchkit/dmmlogd/internal/logger"
	"codeberg.org/benchkit/dmmlogd/internal/measurement"
	"codeberg.org/benchkit/dmmlogd/internal/observability"
	"codeberg.org/benchkit/dmmlogd/internal/registry"
	"codeberg.org/benchkit/dmmlogd/internal/scpi"
)

const DefaultQueryTimeout = 5 * time.Second

type Scheduler struct {
	reg     *registry.Registry
	bus     *event.Bus
	obs     *observability.Metrics
	log     logger.Logger
	timeout time.Duration

	mu         sync.Mutex
	running    bool
	interval   time.Duration
	intervalCh chan time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
	inflight   map[string]bool
	wg         sync.WaitGroup
}

func New(reg *registry.Registry, bus *event.Bus, obs *observability.Metrics, log logger.Logger, queryTimeout time.Duration) *Scheduler {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}

	return &Scheduler{
		reg:      reg,
		bus:      bus,
		obs:      obs,
		log:      log,
		timeout:  queryTimeout,
		inflight: make(map[string]bool),
	}
}

// Start begins polling every interval. Starting while already running
// only updates the interval. Start fails when no enabled device is
// connected, but devices added while running are picked up on the
// next tick without a restart.
func (s *Scheduler) Start(interval time.Duration) error {
	errFactory := errors.New()

	if interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, interval.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.interval = interval
		select {
		case s.intervalCh <- interval:
		default:
		}
		s.log.Info().Dur("interval", interval).Msg("Acquisition interval updated")
		return nil
	}

	if len(s.reg.Targets()) == 0 {
		return errFactory.New(errors.ErrNoDevicesConfigured)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.interval = interval
	s.intervalCh = make(chan time.Duration, 1)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, interval, s.intervalCh, s.done)

	s.log.Info().Dur("interval", interval).Msg("Acquisition started")

	return nil
}

// Stop halts polling. Once Stop returns, no further events are
// emitted: in-flight queries are cancelled and their results
// discarded. Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.log.Info().Msg("Acquisition stopped")
}

// Running reports whether the scheduler is polling.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, intervalCh <-chan time.Duration, done chan struct{}) {
	defer close(done)
	defer s.wg.Wait()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case iv := <-intervalCh:
			ticker.Reset(iv)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick dispatches one concurrent query per enabled connected device.
// A device whose previous query is still outstanding is skipped, so
// overlapping work is never issued to the same instrument.
func (s *Scheduler) tick(ctx context.Context) {
	s.obs.Tick()

	for _, target := range s.reg.Targets() {
		name := target.Config.Name

		s.mu.Lock()
		if s.inflight[name] {
			s.mu.Unlock()
			s.log.Debug().Str("device", name).Msg("Previous query still outstanding, skipping")
			continue
		}
		s.inflight[name] = true
		s.wg.Add(1)
		s.mu.Unlock()

		go s.poll(ctx, target)
	}

	s.obs.Dropped(s.bus.Dropped())
}

func (s *Scheduler) poll(ctx context.Context, target registry.Target) {
	name := target.Config.Name
	defer func() {
		s.mu.Lock()
		delete(s.inflight, name)
		s.mu.Unlock()
		s.wg.Done()
	}()

	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	samples := target.Config.SampleCount
	if samples < 1 {
		samples = 1
	}

	sum := 0.0
	started := time.Now()
	for i := 0; i < samples; i++ {
		reply, err := target.Session.Query(qctx, target.Config.ResolvedCommand)
		if err != nil {
			if ctx.Err() != nil {
				// Stopped while the query was in flight; discard.
				return
			}
			s.obs.QueryError(name)
			s.log.Warn().Str("device", name).Err(err).Msg("Instrument query failed")
			s.bus.Publish(event.NewDeviceError(name, err.Error()))
			return
		}

		value, perr := strconv.ParseFloat(strings.TrimSpace(reply), 64)
		if perr != nil {
			if ctx.Err() != nil {
				return
			}
			s.obs.ParseError(name)
			s.log.Warn().Str("device", name).Str("reply", reply).Msg("Invalid instrument reply")
			s.emit(ctx, measurement.Measurement{
				Timestamp:  time.Now(),
				DeviceName: name,
				Function:   target.Config.Function,
				Value:      0.0,
				Unit:       "",
				Status:     measurement.StatusError,
				UserLabel:  target.Config.UserLabel,
			})
			s.bus.Publish(event.NewDeviceError(name, "invalid reply: "+strings.TrimSpace(reply)))
			return
		}
		sum += value
	}
	s.obs.ObserveQuery(time.Since(started).Seconds())

	s.emit(ctx, measurement.Measurement{
		Timestamp:  time.Now(),
		DeviceName: name,
		Function:   target.Config.Function,
		Value:      sum / float64(samples),
		Unit:       scpi.UnitFor(target.Config.Function),
		Status:     measurement.StatusOK,
		UserLabel:  target.Config.UserLabel,
	})
}

func (s *Scheduler) emit(ctx context.Context, m measurement.Measurement) {
	if ctx.Err() != nil {
		return
	}
	if m.Status == measurement.StatusOK {
		s.obs.Measurement(m.DeviceName)
	}
	s.bus.Publish(event.NewMeasurement(m))
}
