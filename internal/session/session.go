// Package session owns the connection lifecycle of every motor: one actor per
// device serializes commands on the half-duplex link, keeps the connection
// alive only as long as needed and caches the last known motor status.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/motion-hub/motion-hub/internal/models"
	"github.com/motion-hub/motion-hub/internal/transport"
	"github.com/motion-hub/motion-hub/pkg/motion"
)

// ErrSessionClosed indicates a dispatch to a session that has been shut down
var ErrSessionClosed = errors.New("session closed")

// Timings holds the connection lifecycle timings of a session
type Timings struct {
	// IdleTimeout is the default idle-disconnect window
	IdleTimeout time.Duration
	// ConnectTimeout bounds one transport dial
	ConnectTimeout time.Duration
	// CommandTimeout bounds one reply wait; a command gets one retry
	CommandTimeout time.Duration
}

// DefaultTimings returns the motor defaults: 15s idle disconnect to save
// battery, single-digit-second command bounds.
func DefaultTimings() Timings {
	return Timings{
		IdleTimeout:    15 * time.Second,
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 3 * time.Second,
	}
}

type request struct {
	cmd   models.Command
	reply chan result
}

type result struct {
	snapshot models.StatusSnapshot
	err      error
}

// Session is the connection state machine for one motor. All link I/O runs on
// a single goroutine fed by a mailbox, so commands never interleave on the
// wire; an explicit disconnect travels on its own channel and preempts any
// blocking wait.
type Session struct {
	device  *models.Device
	dialer  transport.Dialer
	timings Timings
	events  func(models.StatusEvent)

	requests   chan *request
	interrupts chan *request
	stop       chan struct{}
	stopped    chan struct{}

	snapshot atomic.Pointer[models.StatusSnapshot]
	state    atomic.Value // models.ConnectionState

	// Owned by the run goroutine
	link         transport.Link
	idleTimer    *time.Timer
	idleDuration time.Duration
}

// New creates a session for the device and starts its actor
func New(device *models.Device, dialer transport.Dialer, timings Timings, events func(models.StatusEvent)) *Session {
	s := &Session{
		device:     device,
		dialer:     dialer,
		timings:    timings,
		events:     events,
		requests:   make(chan *request, 16),
		interrupts: make(chan *request, 1),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	s.snapshot.Store(&models.StatusSnapshot{})
	s.state.Store(models.StateDisconnected)
	go s.run()
	return s
}

// State returns the current connection state
func (s *Session) State() models.ConnectionState {
	return s.state.Load().(models.ConnectionState)
}

// Snapshot returns the cached status snapshot without touching the transport
func (s *Session) Snapshot() models.StatusSnapshot {
	return *s.snapshot.Load()
}

// Execute dispatches one command and blocks until it completes. Commands
// queue in arrival order; Disconnect jumps the queue and cancels any wait
// in progress, including a pending connection attempt.
func (s *Session) Execute(ctx context.Context, cmd models.Command) (models.StatusSnapshot, error) {
	req := &request{cmd: cmd, reply: make(chan result, 1)}

	ch := s.requests
	if cmd.Type == models.CommandDisconnect {
		ch = s.interrupts
	}

	select {
	case ch <- req:
	case <-s.stopped:
		return s.Snapshot(), ErrSessionClosed
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.snapshot, res.err
	case <-s.stopped:
		return s.Snapshot(), ErrSessionClosed
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Close shuts the session down and releases any open link
func (s *Session) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.stopped
}

func (s *Session) run() {
	defer close(s.stopped)
	defer s.teardown()

	for {
		select {
		case req := <-s.interrupts:
			s.disconnect()
			req.reply <- result{snapshot: s.Snapshot()}

		case req := <-s.requests:
			snap, err := s.execute(req.cmd)
			req.reply <- result{snapshot: snap, err: err}

		case frame, ok := <-s.notifyC():
			if !ok {
				s.linkLost()
				continue
			}
			s.handleUnsolicited(frame)

		case <-s.idleC():
			s.idleDisconnect()

		case <-s.stop:
			return
		}
	}
}

// notifyC returns the live notification channel, or nil when disconnected so
// the select arm never fires.
func (s *Session) notifyC() <-chan []byte {
	if s.link == nil {
		return nil
	}
	return s.link.Notifications()
}

func (s *Session) idleC() <-chan time.Time {
	if s.idleTimer == nil {
		return nil
	}
	return s.idleTimer.C
}

// execute runs one command to completion on the run goroutine
func (s *Session) execute(cmd models.Command) (models.StatusSnapshot, error) {
	if cmd.Type == models.CommandDisconnect {
		s.disconnect()
		return s.Snapshot(), nil
	}

	// Capability and argument validation fail fast, before the radio is
	// touched at all.
	if !cmd.Type.Valid() {
		return s.Snapshot(), fmt.Errorf("%w: unknown command %q", models.ErrInvalidArgument, cmd.Type)
	}
	if cap := cmd.RequiredCapability(); cap != "" && !s.device.Profile().Supports(cap) {
		return s.Snapshot(), fmt.Errorf("%w: %s on %s profile", models.ErrCapability, cmd.Type, s.device.BlindType)
	}
	if cmd.Type == models.CommandSpeed && !s.device.HasSpeed {
		return s.Snapshot(), fmt.Errorf("%w: %s has no speed control", models.ErrCapability, s.device.MAC)
	}

	wire, hasWire := cmd.Wire()
	var body []byte
	if hasWire {
		var err error
		body, err = motion.Encode(wire)
		if err != nil {
			return s.Snapshot(), err
		}
	}

	if s.link == nil {
		duration := time.Duration(0)
		if cmd.Type == models.CommandConnect {
			duration = cmd.Duration
		}
		if err := s.connect(duration); err != nil {
			return s.Snapshot(), err
		}
	} else if cmd.Type == models.CommandConnect {
		// Already connected: an explicit connect only renews the window
		s.setIdleDuration(cmd.Duration)
		s.rearmIdle()
		return s.Snapshot(), nil
	}

	if !hasWire {
		// Connect carries no wire command
		return s.Snapshot(), nil
	}

	reply, err := s.exchange(body, expectedReply(cmd.Type))
	if err != nil {
		return s.Snapshot(), err
	}

	s.applyReply(reply)
	s.rearmIdle()
	return s.Snapshot(), nil
}

// connect transitions Disconnected -> Connecting -> Connected, performing the
// key exchange and an initial status query once the link is up. An explicit
// duration governs the idle window for this connection; zero falls back to
// the default.
func (s *Session) connect(duration time.Duration) error {
	s.setState(models.StateConnecting)
	log.Debug().Str("device", s.device.MAC.String()).Msg("connecting")

	ctx, cancel := context.WithTimeout(context.Background(), s.timings.ConnectTimeout)
	defer cancel()

	type dialResult struct {
		link transport.Link
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		link, err := s.dialer.Dial(ctx, s.device.MAC)
		done <- dialResult{link: link, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			s.setState(models.StateDisconnected)
			return fmt.Errorf("%w: %s: %v", models.ErrConnectionFailed, s.device.MAC, res.err)
		}
		s.link = res.link

	case req := <-s.interrupts:
		// Explicit disconnect wins over a pending connection attempt
		cancel()
		if res := <-done; res.err == nil {
			res.link.Close()
		}
		s.setState(models.StateDisconnected)
		req.reply <- result{snapshot: s.Snapshot()}
		return fmt.Errorf("%w: %s: cancelled by disconnect", models.ErrConnectionFailed, s.device.MAC)

	case <-s.stop:
		cancel()
		if res := <-done; res.err == nil {
			res.link.Close()
		}
		s.setState(models.StateDisconnected)
		return ErrSessionClosed
	}

	s.setState(models.StateConnected)
	s.setIdleDuration(duration)
	log.Info().Str("device", s.device.MAC.String()).Msg("connected")

	// The motor requires the key exchange before accepting commands, then an
	// initial status query primes the snapshot cache.
	if err := s.write(motionEncodeMust(motion.CommandSetKey)); err != nil {
		s.dropLink()
		return fmt.Errorf("%w: %s: %v", models.ErrConnectionFailed, s.device.MAC, err)
	}
	if reply, err := s.exchange(motionEncodeMust(motion.CommandStatusQuery), isStatus); err != nil {
		// A missed initial status is not fatal; the link is usable
		log.Warn().Err(err).Str("device", s.device.MAC.String()).Msg("initial status query failed")
		if errors.Is(err, models.ErrLinkLost) {
			return err
		}
	} else {
		s.applyReply(reply)
	}

	s.rearmIdle()
	return nil
}

// exchange writes a command body and waits for its expected reply, retrying
// the write once on timeout. A second timeout leaves the session connected;
// the battery already paid for the link.
func (s *Session) exchange(body []byte, expect func(motion.Reply) bool) (motion.Reply, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if err := s.write(body); err != nil {
			s.dropLink()
			return motion.Reply{}, fmt.Errorf("%w: %s: %v", models.ErrLinkLost, s.device.MAC, err)
		}

		reply, err := s.awaitReply(expect)
		if err == nil {
			return reply, nil
		}
		if !errors.Is(err, models.ErrCommandTimeout) {
			return motion.Reply{}, err
		}
		log.Debug().Str("device", s.device.MAC.String()).Int("attempt", attempt+1).Msg("reply timeout")
	}

	return motion.Reply{}, fmt.Errorf("%w: %s", models.ErrCommandTimeout, s.device.MAC)
}

// write seals the body with the current local time and writes it to the link
func (s *Session) write(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timings.CommandTimeout)
	defer cancel()
	return s.link.Write(ctx, motion.Seal(body, time.Now()))
}

// awaitReply consumes notifications until the expected reply arrives or the
// bound elapses. Garbled frames are logged and discarded; unsolicited but
// well-formed frames still update the cache while waiting.
func (s *Session) awaitReply(expect func(motion.Reply) bool) (motion.Reply, error) {
	timer := time.NewTimer(s.timings.CommandTimeout)
	defer timer.Stop()

	for {
		select {
		case frame, ok := <-s.link.Notifications():
			if !ok {
				s.linkLost()
				return motion.Reply{}, fmt.Errorf("%w: %s", models.ErrLinkLost, s.device.MAC)
			}
			reply, err := motion.Decode(frame)
			if err != nil {
				log.Debug().Err(err).Str("device", s.device.MAC.String()).Msg("discarding frame")
				continue
			}
			if expect(reply) {
				return reply, nil
			}
			s.applyReply(reply)

		case req := <-s.interrupts:
			s.disconnect()
			req.reply <- result{snapshot: s.Snapshot()}
			return motion.Reply{}, fmt.Errorf("%w: %s: disconnected", models.ErrLinkLost, s.device.MAC)

		case <-timer.C:
			return motion.Reply{}, models.ErrCommandTimeout

		case <-s.stop:
			return motion.Reply{}, ErrSessionClosed
		}
	}
}

// handleUnsolicited processes a frame that arrived while no command was in
// flight, typically a position report after physical remote use.
func (s *Session) handleUnsolicited(frame []byte) {
	reply, err := motion.Decode(frame)
	if err != nil {
		log.Debug().Err(err).Str("device", s.device.MAC.String()).Msg("discarding frame")
		return
	}
	s.applyReply(reply)
}

// applyReply folds a decoded reply into the cached snapshot and notifies
// subscribers. The snapshot is replaced whole, never patched in place.
func (s *Session) applyReply(reply motion.Reply) {
	prev := s.snapshot.Load()
	next := *prev

	switch reply.Type {
	case motion.ReplyStatus:
		pos, tilt, battery, speed := reply.Position, reply.Tilt, reply.Battery, reply.Speed
		next.Position = &pos
		next.Tilt = &tilt
		next.Battery = &battery
		next.Speed = &speed
	case motion.ReplyPosition:
		pos, tilt := reply.Position, reply.Tilt
		next.Position = &pos
		next.Tilt = &tilt
	default:
		return
	}

	next.AsOf = time.Now()
	s.snapshot.Store(&next)
	s.emit()
}

// setIdleDuration records the window governing this connection. Zero selects
// the default; the value sticks until the next connect.
func (s *Session) setIdleDuration(duration time.Duration) {
	if duration <= 0 {
		duration = s.timings.IdleTimeout
	}
	s.idleDuration = duration
}

// rearmIdle recomputes the idle deadline as now+duration. The deadline is
// replaced, never extended, so repeated commands cannot accumulate window.
func (s *Session) rearmIdle() {
	if s.link == nil {
		return
	}
	if s.idleTimer == nil {
		s.idleTimer = time.NewTimer(s.idleDuration)
		return
	}
	if !s.idleTimer.Stop() {
		select {
		case <-s.idleTimer.C:
		default:
		}
	}
	s.idleTimer.Reset(s.idleDuration)
}

func (s *Session) idleDisconnect() {
	log.Info().Str("device", s.device.MAC.String()).Dur("idle", s.idleDuration).Msg("idle disconnect")
	s.setState(models.StateDisconnecting)
	s.emit()
	s.closeLink()
	s.setState(models.StateDisconnected)
}

// disconnect moves straight to Disconnected from any state
func (s *Session) disconnect() {
	if s.link != nil {
		log.Info().Str("device", s.device.MAC.String()).Msg("disconnecting")
	}
	s.closeLink()
	s.setState(models.StateDisconnected)
}

// linkLost reacts to the transport dropping underneath the session
func (s *Session) linkLost() {
	if s.link == nil {
		return
	}
	log.Warn().Str("device", s.device.MAC.String()).Msg("link lost")
	s.closeLink()
	s.setState(models.StateDisconnected)
}

// dropLink tears the link down after a write failure; the caller surfaces
// the error.
func (s *Session) dropLink() {
	s.closeLink()
	s.setState(models.StateDisconnected)
}

// closeLink releases the link and clears the idle deadline. Every exit path
// from Connected funnels through here so a link is never left half-open.
func (s *Session) closeLink() {
	if s.link != nil {
		s.link.Close()
		s.link = nil
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

func (s *Session) teardown() {
	s.closeLink()
	s.setState(models.StateDisconnected)
}

func (s *Session) setState(state models.ConnectionState) {
	if s.State() == state {
		return
	}
	s.state.Store(state)
	s.emit()
}

func (s *Session) emit() {
	if s.events == nil {
		return
	}
	s.events(models.StatusEvent{
		MAC:      s.device.MAC,
		State:    s.State(),
		Snapshot: s.Snapshot(),
	})
}

// expectedReply returns the predicate matching the reply that completes a
// command. Movement commands complete on the first well-formed frame; only a
// status query insists on the full report.
func expectedReply(t models.CommandType) func(motion.Reply) bool {
	if t == models.CommandStatus {
		return isStatus
	}
	return func(motion.Reply) bool { return true }
}

func isStatus(r motion.Reply) bool {
	return r.Type == motion.ReplyStatus
}

func motionEncodeMust(t motion.CommandType) []byte {
	body, err := motion.Encode(motion.Command{Type: t})
	if err != nil {
		panic(err)
	}
	return body
}
