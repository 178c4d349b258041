package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/motion-hub/motion-hub/pkg/motion"
)

// SimDialer is an in-process transport backed by simulated motors that speak
// the real cipher-framed protocol. It exists for development and tests; a
// production deployment supplies a Dialer for the actual wireless stack.
type SimDialer struct {
	mu     sync.Mutex
	motors map[motion.MACAddress]*SimMotor

	// Latency is applied to every dial and reply
	Latency time.Duration
}

// NewSimDialer creates a simulated transport with no motors
func NewSimDialer() *SimDialer {
	return &SimDialer{
		motors: make(map[motion.MACAddress]*SimMotor),
	}
}

// AddMotor registers a simulated motor under its address
func (d *SimDialer) AddMotor(m *SimMotor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.motors[m.addr] = m
}

// Motor returns the simulated motor for an address, if any
func (d *SimDialer) Motor(addr motion.MACAddress) (*SimMotor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.motors[addr]
	return m, ok
}

// Dial implements Dialer
func (d *SimDialer) Dial(ctx context.Context, addr motion.MACAddress) (Link, error) {
	d.mu.Lock()
	m := d.motors[addr]
	latency := d.Latency
	d.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m == nil {
		return nil, fmt.Errorf("simulated motor %s not in range", addr)
	}

	return m.connect(latency)
}

// SimMotor models one motor: its position, tilt, speed and battery, and the
// frames it emits in response to commands.
type SimMotor struct {
	addr motion.MACAddress

	mu       sync.Mutex
	position int
	tilt     int
	battery  int
	speed    motion.SpeedLevel
	favorite int

	// targets records every absolute position command in arrival order
	targets []int

	// Unreachable makes future dials fail without removing the motor
	Unreachable bool
	// Mute suppresses all replies, simulating a motor that stopped answering
	Mute bool

	link *simLink
}

// NewSimMotor creates a simulated motor at the given address
func NewSimMotor(addr motion.MACAddress) *SimMotor {
	return &SimMotor{
		addr:     addr,
		position: 0,
		tilt:     0,
		battery:  100,
		speed:    motion.SpeedMedium,
		favorite: 50,
	}
}

// Position returns the current simulated position
func (m *SimMotor) Position() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// PositionHistory returns every absolute position target received, in order
func (m *SimMotor) PositionHistory() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.targets...)
}

// SetBattery sets the reported battery percentage
func (m *SimMotor) SetBattery(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.battery = level
}

// SetMute toggles reply suppression
func (m *SimMotor) SetMute(mute bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Mute = mute
}

// SetUnreachable toggles dial failures
func (m *SimMotor) SetUnreachable(unreachable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Unreachable = unreachable
}

// DropLink force-closes the active link, simulating the motor going out of
// range mid-session.
func (m *SimMotor) DropLink() {
	m.mu.Lock()
	link := m.link
	m.link = nil
	m.mu.Unlock()

	if link != nil {
		link.Close()
	}
}

func (m *SimMotor) connect(latency time.Duration) (Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Unreachable {
		return nil, fmt.Errorf("simulated motor %s unreachable", m.addr)
	}

	// A motor holds a single connection; a new dial supersedes the old link
	if m.link != nil {
		go m.link.Close()
	}

	l := &simLink{
		motor:   m,
		latency: latency,
		notify:  make(chan []byte, 8),
	}
	m.link = l
	return l, nil
}

// handle processes one decrypted command body and returns the reply frames
// the motor emits for it.
func (m *SimMotor) handle(body []byte) [][]byte {
	cmd, err := motion.ParseCommand(body)
	if err != nil {
		log.Debug().Err(err).Str("motor", m.addr.String()).Msg("simulated motor ignoring frame")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Mute {
		return nil
	}

	switch cmd.Type {
	case motion.CommandSetKey:
		return [][]byte{m.readyFrame()}
	case motion.CommandStatusQuery:
		return [][]byte{m.statusFrame()}
	case motion.CommandOpen:
		m.position = 0
		return [][]byte{m.runningFrame(true), m.percentFrame()}
	case motion.CommandClose:
		m.position = 100
		return [][]byte{m.runningFrame(false), m.percentFrame()}
	case motion.CommandStop:
		return [][]byte{m.percentFrame()}
	case motion.CommandFavorite:
		m.position = m.favorite
		return [][]byte{m.percentFrame()}
	case motion.CommandPosition:
		m.position = cmd.Position
		m.targets = append(m.targets, cmd.Position)
		return [][]byte{m.percentFrame()}
	case motion.CommandTilt:
		m.tilt = cmd.Tilt
		return [][]byte{m.percentFrame()}
	case motion.CommandSpeed:
		m.speed = cmd.Speed
		return [][]byte{m.statusFrame()}
	}
	return nil
}

func (m *SimMotor) readyFrame() []byte {
	return motion.Encrypt([]byte{0x02, 0x01, 0xc0})
}

func (m *SimMotor) percentFrame() []byte {
	body := make([]byte, 8)
	copy(body, []byte{0x07, 0x04, 0x04, 0x02})
	body[6] = byte(m.position)
	body[7] = angle(m.tilt)
	return motion.Encrypt(body)
}

func (m *SimMotor) runningFrame(opening bool) []byte {
	body := make([]byte, 6)
	copy(body, []byte{0x07, 0x04, 0x04, 0x02, 0x1e})
	if opening {
		body[5] = 0x01
	} else {
		body[5] = 0x02
	}
	return motion.Encrypt(body)
}

func (m *SimMotor) statusFrame() []byte {
	body := make([]byte, 18)
	copy(body, []byte{0x12, 0x04, 0x0f, 0x02})
	body[6] = byte(m.position)
	body[7] = angle(m.tilt)
	body[12] = byte(m.speed)
	body[17] = byte(m.battery)
	return motion.Encrypt(body)
}

func angle(tilt int) byte {
	return byte(180 * tilt / 100)
}

// simLink is one open connection to a simulated motor
type simLink struct {
	motor   *SimMotor
	latency time.Duration

	mu     sync.Mutex
	closed bool
	notify chan []byte
}

func (l *simLink) Write(ctx context.Context, frame []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.mu.Unlock()

	plain, err := motion.Decrypt(frame)
	if err != nil {
		// A real motor silently drops garbled frames
		return nil
	}

	replies := l.motor.handle(plain)

	go func() {
		if l.latency > 0 {
			time.Sleep(l.latency)
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.closed {
			return
		}
		for _, r := range replies {
			select {
			case l.notify <- r:
			default:
				// Receiver stalled; a real radio drops notifications too
			}
		}
	}()

	return nil
}

func (l *simLink) Notifications() <-chan []byte {
	return l.notify
}

func (l *simLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.notify)
	return nil
}
