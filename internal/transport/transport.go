// Package transport defines the wireless link boundary the hub is given by
// its host environment. Scanning, pairing and the encryption handshake all
// live behind this interface; the hub only dials, writes, reads and closes.
package transport

import (
	"context"
	"errors"

	"github.com/motion-hub/motion-hub/pkg/motion"
)

// ErrClosed indicates a write on a link that is no longer open
var ErrClosed = errors.New("transport: link closed")

// Dialer opens links to motors by hardware address
type Dialer interface {
	// Dial opens a link to the motor. It blocks until the link is
	// established, the context is cancelled or the attempts are exhausted.
	Dial(ctx context.Context, addr motion.MACAddress) (Link, error)
}

// Link is one open connection to a motor. The owning session holds it
// exclusively and must close it on every exit path.
type Link interface {
	// Write sends one encrypted frame to the motor
	Write(ctx context.Context, frame []byte) error

	// Notifications returns the stream of frames sent by the motor. The
	// channel is closed when the link drops, whatever the cause.
	Notifications() <-chan []byte

	// Close releases the link. Safe to call more than once.
	Close() error
}
