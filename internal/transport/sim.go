package transport

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"codeberg.org/benchkit/dmmlogd/internal/errors"
)

// Sim is an in-process instrument bus used when no hardware is
// attached. Every configured address answers identification queries
// and produces a slowly drifting reading for measurement commands.
type Sim struct {
	mu      sync.Mutex
	devices map[string]*simInstrument
	closed  bool
}

type simInstrument struct {
	address string
	base    float64
	noise   float64
	latency time.Duration
	// reply, when set, overrides the computed reading verbatim.
	// Used to exercise parse-failure paths.
	reply   string
	failing bool
	tick    int
}

// NewSim creates a simulated bus with the given addresses. Base values
// are staggered per address so concurrent devices chart distinctly.
func NewSim(addresses ...string) *Sim {
	s := &Sim{devices: make(map[string]*simInstrument)}
	for i, addr := range addresses {
		s.devices[addr] = &simInstrument{
			address: addr,
			base:    5.0 + float64(i),
			noise:   0.05,
		}
	}

	return s
}

// SetReading adjusts the base value and noise amplitude for an address.
func (s *Sim) SetReading(address string, base, noise float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[address]; ok {
		d.base = base
		d.noise = noise
	}
}

// SetLatency makes every query to the address take at least d.
func (s *Sim) SetLatency(address string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dev, ok := s.devices[address]; ok {
		dev.latency = d
	}
}

// SetReply forces the raw reply text for an address. An empty string
// restores computed readings.
func (s *Sim) SetReply(address, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[address]; ok {
		d.reply = reply
	}
}

// SetFailing makes queries to the address fail with an I/O error.
func (s *Sim) SetFailing(address string, failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[address]; ok {
		d.failing = failing
	}
}

func (s *Sim) ListAddresses() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New().New(errors.ErrSessionClosed)
	}

	addrs := make([]string, 0, len(s.devices))
	for addr := range s.devices {
		addrs = append(addrs, addr)
	}

	return addrs, nil
}

func (s *Sim) Open(address string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	errFactory := errors.New()
	if s.closed {
		return nil, errFactory.New(errors.ErrSessionClosed)
	}

	dev, ok := s.devices[address]
	if !ok {
		return nil, errFactory.WithData(errors.ErrConnectionFailed, address)
	}

	return &simSession{sim: s, dev: dev, done: make(chan struct{})}, nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true

	return nil
}

type simSession struct {
	sim    *Sim
	dev    *simInstrument
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (ss *simSession) Query(ctx context.Context, command string) (string, error) {
	errFactory := errors.New()

	ss.mu.Lock()
	if ss.closed {
		ss.mu.Unlock()
		return "", errFactory.New(errors.ErrSessionClosed)
	}
	done := ss.done
	ss.mu.Unlock()

	ss.sim.mu.Lock()
	latency := ss.dev.latency
	failing := ss.dev.failing
	reply := ss.dev.reply
	ss.dev.tick++
	tick := ss.dev.tick
	base, noise := ss.dev.base, ss.dev.noise
	address := ss.dev.address
	ss.sim.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", errFactory.Wrap(errors.ErrQueryTimeout, ctx.Err())
		case <-done:
			return "", errFactory.New(errors.ErrSessionClosed)
		}
	}

	if err := ctx.Err(); err != nil {
		return "", errFactory.Wrap(errors.ErrQueryTimeout, err)
	}

	if failing {
		return "", errFactory.WithData(errors.ErrQueryIO, address)
	}

	if reply != "" {
		return reply, nil
	}

	switch {
	case strings.HasPrefix(command, "*IDN?"):
		return fmt.Sprintf("BENCHKIT,SIM-DMM,%s,1.0", address), nil
	case strings.HasPrefix(command, "*"):
		// Remaining common commands acknowledge with "1" like *OPC?.
		return "1", nil
	case strings.HasPrefix(command, "MEAS:") || strings.HasPrefix(command, "CONF:"):
		value := base + noise*math.Sin(float64(tick)/3.0)
		return fmt.Sprintf("%+.8E", value), nil
	default:
		return "ERR", nil
	}
}

func (ss *simSession) Close() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.closed {
		ss.closed = true
		close(ss.done)
	}

	return nil
}
