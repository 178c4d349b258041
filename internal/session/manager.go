package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/motion-hub/motion-hub/internal/models"
	"github.com/motion-hub/motion-hub/internal/storage"
	"github.com/motion-hub/motion-hub/internal/transport"
	"github.com/motion-hub/motion-hub/pkg/motion"
)

// Config holds manager-level settings on top of the session timings
type Config struct {
	Timings Timings

	// StatusFreshness is how long a cached snapshot satisfies a status
	// request without a new query.
	StatusFreshness time.Duration
}

// DefaultConfig returns the default manager configuration
func DefaultConfig() Config {
	return Config{
		Timings:         DefaultTimings(),
		StatusFreshness: 5 * time.Second,
	}
}

// Manager is the keyed registry of device sessions. It creates sessions
// lazily from the device registry, routes commands to them and fans status
// events out to subscribers. The registry lock guards lookup and insert only;
// command execution happens inside each session.
type Manager struct {
	cfg    Config
	dialer transport.Dialer
	store  storage.Store

	mu       sync.RWMutex
	sessions map[motion.MACAddress]*Session
	closed   bool

	subMu       sync.Mutex
	subscribers map[int]chan models.StatusEvent
	nextSub     int
}

// NewManager creates a session manager backed by the device registry in store
func NewManager(cfg Config, dialer transport.Dialer, store storage.Store) *Manager {
	return &Manager{
		cfg:         cfg,
		dialer:      dialer,
		store:       store,
		sessions:    make(map[motion.MACAddress]*Session),
		subscribers: make(map[int]chan models.StatusEvent),
	}
}

// Dispatch routes one command to the session for the device, creating the
// session on first use. Commands to the same device execute in arrival
// order; different devices run in parallel.
func (m *Manager) Dispatch(ctx context.Context, mac motion.MACAddress, cmd models.Command) (models.StatusSnapshot, error) {
	sess, err := m.session(ctx, mac)
	if err != nil {
		return models.StatusSnapshot{}, err
	}

	snap, err := sess.Execute(ctx, cmd)
	m.record(mac, cmd, err)
	return snap, err
}

// Status returns the cached snapshot when it is fresh enough, otherwise it
// issues a status query first.
func (m *Manager) Status(ctx context.Context, mac motion.MACAddress) (models.StatusSnapshot, error) {
	sess, err := m.session(ctx, mac)
	if err != nil {
		return models.StatusSnapshot{}, err
	}

	snap := sess.Snapshot()
	if !snap.AsOf.IsZero() && time.Since(snap.AsOf) < m.cfg.StatusFreshness {
		return snap, nil
	}

	return m.Dispatch(ctx, mac, models.Command{Type: models.CommandStatus})
}

// State returns the connection state for a device without creating a session
func (m *Manager) State(mac motion.MACAddress) models.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[mac]; ok {
		return sess.State()
	}
	return models.StateDisconnected
}

// Subscribe registers a status event stream. The returned cancel function
// must be called when the subscriber goes away. Slow subscribers lose events
// rather than stalling the sessions.
func (m *Manager) Subscribe() (<-chan models.StatusEvent, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan models.StatusEvent, 64)
	m.subscribers[id] = ch

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(c)
		}
	}
	return ch, cancel
}

// Remove shuts down and forgets the session for a device, e.g. after the
// device is deleted or its profile changed.
func (m *Manager) Remove(mac motion.MACAddress) {
	m.mu.Lock()
	sess, ok := m.sessions[mac]
	delete(m.sessions, mac)
	m.mu.Unlock()

	if ok {
		sess.Close()
	}
}

// Close shuts down every session and drops all subscribers
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[motion.MACAddress]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}

	m.subMu.Lock()
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
	m.subMu.Unlock()
}

// session returns the session for a device, creating it lazily from the
// registered device identity.
func (m *Manager) session(ctx context.Context, mac motion.MACAddress) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[mac]
	closed := m.closed
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}
	if closed {
		return nil, ErrSessionClosed
	}

	device, err := m.store.GetDevice(ctx, mac)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownDevice, mac)
		}
		return nil, fmt.Errorf("load device %s: %w", mac, err)
	}
	if device.IsDisabled {
		return nil, fmt.Errorf("%w: %s is disabled", models.ErrUnknownDevice, mac)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrSessionClosed
	}
	if sess, ok := m.sessions[mac]; ok {
		return sess, nil
	}

	sess = New(device, m.dialer, m.cfg.Timings, m.publish)
	m.sessions[mac] = sess
	log.Debug().Str("device", mac.String()).Str("type", string(device.BlindType)).Msg("session created")
	return sess, nil
}

// publish fans one event out to all subscribers and updates last-seen
func (m *Manager) publish(event models.StatusEvent) {
	m.subMu.Lock()
	for _, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	m.subMu.Unlock()
}

// record persists a command event when a store is attached
func (m *Manager) record(mac motion.MACAddress, cmd models.Command, cmdErr error) {
	if m.store == nil {
		return
	}

	level := models.EventLevelInfo
	desc := fmt.Sprintf("Command %s completed", cmd.Type)
	details := models.Variables{"command": string(cmd.Type)}
	if cmdErr != nil {
		level = models.EventLevelWarning
		desc = fmt.Sprintf("Command %s failed", cmd.Type)
		details["error"] = cmdErr.Error()
	}

	event := &models.EventLog{
		MAC:         &mac,
		Type:        models.EventTypeCommand,
		Level:       level,
		Description: desc,
		Details:     details,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.store.CreateEventLog(ctx, event); err != nil {
		log.Warn().Err(err).Str("device", mac.String()).Msg("failed to persist command event")
	}
	if cmdErr == nil {
		if err := m.store.TouchDeviceSeen(ctx, mac, time.Now()); err != nil {
			log.Warn().Err(err).Str("device", mac.String()).Msg("failed to update last seen")
		}
	}
}
