// Package registry owns per-device configuration and the open
// transport sessions. Other components only ever borrow a session for
// the duration of one query.
package registry

import (
	"context"
	"sort"
	"strings"
	"sync"

	"codeberg.org/benchkit/dmmlogd/internal/config"
	"codeberg.org/benchkit/dmmlogd/internal/errors"
	"codeberg.org/benchkit/dmmlogd/internal/event"
	"codeberg.org/benchkit/dmmlogd/internal/logger"
	"codeberg.org/benchkit/dmmlogd/internal/scpi"
	"codeberg.org/benchkit/dmmlogd/internal/transport"
)

// DeviceConfig is the acquisition configuration for one instrument.
// The registry owns these exclusively; the scheduler receives copies.
type DeviceConfig struct {
	Name            string
	Address         string
	Function        string
	Range           string
	SampleCount     int
	UserLabel       string
	ResolvedCommand string
	Enabled         bool
}

// FromConfig builds a DeviceConfig from a [[devices]] config entry.
func FromConfig(d config.Device) DeviceConfig {
	return DeviceConfig{
		Name:        d.Name,
		Address:     d.Address,
		Function:    d.Function,
		Range:       d.Range,
		SampleCount: d.Samples,
		UserLabel:   d.Label,
		Enabled:     d.Enabled,
	}
}

// Target pairs a device's config snapshot with its borrowed session
// for the duration of one tick.
type Target struct {
	Config  DeviceConfig
	Session transport.Session
}

// Status describes one device for diagnostics and the API.
type Status struct {
	Name           string `json:"name"`
	Address        string `json:"address,omitempty"`
	Connected      bool   `json:"connected"`
	Configured     bool   `json:"configured"`
	Enabled        bool   `json:"enabled"`
	Function       string `json:"function,omitempty"`
	Range          string `json:"range,omitempty"`
	SampleCount    int    `json:"sample_count,omitempty"`
	UserLabel      string `json:"user_label,omitempty"`
	Identification string `json:"identification,omitempty"`
}

type Registry struct {
	mu        sync.RWMutex
	transport transport.Transport
	bus       *event.Bus
	log       logger.Logger

	configs   map[string]DeviceConfig
	sessions  map[string]transport.Session
	addresses map[string]string
	idents    map[string]string
}

func New(t transport.Transport, bus *event.Bus, log logger.Logger) *Registry {
	return &Registry{
		transport: t,
		bus:       bus,
		log:       log,
		configs:   make(map[string]DeviceConfig),
		sessions:  make(map[string]transport.Session),
		addresses: make(map[string]string),
		idents:    make(map[string]string),
	}
}

// AddOrUpdate validates cfg, resolves its command and stores it.
// Re-adding an existing name replaces the config in place.
func (r *Registry) AddOrUpdate(cfg DeviceConfig) error {
	errFactory := errors.New()

	if strings.TrimSpace(cfg.Name) == "" {
		return errFactory.New(errors.ErrBlankName)
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return errFactory.WithData(errors.ErrBlankAddress, cfg.Name)
	}
	if cfg.SampleCount < 1 {
		cfg.SampleCount = 1
	}
	if cfg.Range == "" {
		cfg.Range = scpi.AutoRange
	}

	command, err := scpi.Resolve(cfg.Function, cfg.Range)
	if err != nil {
		return err
	}
	cfg.ResolvedCommand = command

	r.mu.Lock()
	r.configs[cfg.Name] = cfg
	r.mu.Unlock()

	r.log.Debug().
		Str("device", cfg.Name).
		Str("function", cfg.Function).
		Str("command", command).
		Msg("Device config stored")

	return nil
}

// Remove deletes a device's configuration. Removing an absent device
// reports false and is not an error.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.configs[name]; !ok {
		return false
	}
	delete(r.configs, name)

	return true
}

// Connect opens a session to the device. Connecting again under the
// same name and address closes the previous session first; the same
// name under a different address is rejected until an explicit
// disconnect. The fresh session is verified with an identification
// query before it is adopted.
func (r *Registry) Connect(ctx context.Context, name, address string) (string, error) {
	errFactory := errors.New()

	if strings.TrimSpace(name) == "" {
		return "", errFactory.New(errors.ErrBlankName)
	}
	if strings.TrimSpace(address) == "" {
		return "", errFactory.WithData(errors.ErrBlankAddress, name)
	}

	r.mu.Lock()
	if prev, ok := r.sessions[name]; ok {
		if r.addresses[name] != address {
			r.mu.Unlock()
			return "", errFactory.WithData(errors.ErrAddressInUse, struct {
				Name      string
				Connected string
				Requested string
			}{name, r.addresses[name], address})
		}
		delete(r.sessions, name)
		delete(r.addresses, name)
		delete(r.idents, name)
		r.mu.Unlock()
		if err := prev.Close(); err != nil {
			r.log.Warn().Str("device", name).Err(err).Msg("Failed to close previous session")
		}
	} else {
		r.mu.Unlock()
	}

	session, err := r.transport.Open(address)
	if err != nil {
		return "", errFactory.Wrap(errors.ErrConnectionFailed, err)
	}

	ident, err := session.Query(ctx, scpi.IdentifyCommand)
	if err != nil {
		_ = session.Close()
		return "", errFactory.Wrap(errors.ErrConnectionFailed, err)
	}
	ident = strings.TrimSpace(ident)

	// A concurrent connect may have adopted a session for this name
	// while the identification query ran unlocked. Re-check under the
	// lock: the superseded session still gets closed, and a collision
	// with a different address closes the fresh session instead.
	var stale transport.Session
	r.mu.Lock()
	if prev, ok := r.sessions[name]; ok {
		if connected := r.addresses[name]; connected != address {
			r.mu.Unlock()
			if cerr := session.Close(); cerr != nil {
				r.log.Warn().Str("device", name).Err(cerr).Msg("Failed to close session")
			}
			return "", errFactory.WithData(errors.ErrAddressInUse, struct {
				Name      string
				Connected string
				Requested string
			}{name, connected, address})
		}
		stale = prev
	}
	r.sessions[name] = session
	r.addresses[name] = address
	r.idents[name] = ident
	r.mu.Unlock()

	if stale != nil {
		if err := stale.Close(); err != nil {
			r.log.Warn().Str("device", name).Err(err).Msg("Failed to close superseded session")
		}
	}

	r.log.Info().
		Str("device", name).
		Str("address", address).
		Str("identification", ident).
		Msg("Instrument connected")
	r.bus.Publish(event.NewDeviceConnected(name, ident))

	return ident, nil
}

// Disconnect closes and forgets the device's session. Disconnecting an
// absent device reports false and is not an error.
func (r *Registry) Disconnect(name string) bool {
	r.mu.Lock()
	session, ok := r.sessions[name]
	delete(r.sessions, name)
	delete(r.addresses, name)
	delete(r.idents, name)
	r.mu.Unlock()

	if !ok {
		return false
	}

	if err := session.Close(); err != nil {
		r.log.Warn().Str("device", name).Err(err).Msg("Failed to close session")
	}
	r.log.Info().Str("device", name).Msg("Instrument disconnected")
	r.bus.Publish(event.NewDeviceDisconnected(name))

	return true
}

// ListConnected returns the connected device names in sorted order.
func (r *Registry) ListConnected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Targets returns a copy of every enabled, connected device with its
// session. The scheduler calls this fresh on every tick so devices
// added while running are picked up without a restart.
func (r *Registry) Targets() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]Target, 0, len(r.configs))
	for name, cfg := range r.configs {
		if !cfg.Enabled {
			continue
		}
		session, ok := r.sessions[name]
		if !ok {
			continue
		}
		targets = append(targets, Target{Config: cfg, Session: session})
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].Config.Name < targets[j].Config.Name
	})

	return targets
}

// SendCommand sends a raw command through a device's session, outside
// the acquisition cycle. Used for common commands (*RST, *IDN?, ...).
func (r *Registry) SendCommand(ctx context.Context, name, command string) (string, error) {
	r.mu.RLock()
	session, ok := r.sessions[name]
	r.mu.RUnlock()

	if !ok {
		return "", errors.New().WithData(errors.ErrNotConnected, name)
	}

	reply, err := session.Query(ctx, command)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(reply), nil
}

// Status reports the device's connection and configuration state.
func (r *Registry) Status(name string) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Status{Name: name}
	if cfg, ok := r.configs[name]; ok {
		st.Configured = true
		st.Enabled = cfg.Enabled
		st.Address = cfg.Address
		st.Function = cfg.Function
		st.Range = cfg.Range
		st.SampleCount = cfg.SampleCount
		st.UserLabel = cfg.UserLabel
	}
	if _, ok := r.sessions[name]; ok {
		st.Connected = true
		st.Address = r.addresses[name]
		st.Identification = r.idents[name]
	}

	return st
}

// Devices returns every configured device name in sorted order.
func (r *Registry) Devices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// CloseAll disconnects every device. Used during teardown.
func (r *Registry) CloseAll() {
	for _, name := range r.ListConnected() {
		r.Disconnect(name)
	}
}
