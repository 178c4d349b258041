package models

import (
	"time"

	"github.com/motion-hub/motion-hub/pkg/motion"
)

// Device represents a configured motorized window covering
type Device struct {
	// MAC is the stable hardware address the motor is dialed on
	MAC motion.MACAddress `json:"mac" db:"mac"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Name        string           `json:"name" db:"name"`
	Description string           `json:"description" db:"description"`
	BlindType   motion.BlindType `json:"blindType" db:"blind_type"`

	// HasSpeed marks motor variants that accept speed level commands
	HasSpeed bool `json:"hasSpeed" db:"has_speed"`

	IsDisabled bool       `json:"isDisabled" db:"is_disabled"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`
}

// Profile returns the capability profile of the device variant
func (d *Device) Profile() motion.Profile {
	return d.BlindType.Profile()
}

// ConnectionState represents the wireless session state of one device
type ConnectionState string

const (
	StateDisconnected  ConnectionState = "disconnected"
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
	StateDisconnecting ConnectionState = "disconnecting"
)

// StatusSnapshot is the last known motor status. Snapshots are immutable and
// replaced atomically; nil fields are unknown.
type StatusSnapshot struct {
	Position *int               `json:"position,omitempty"`
	Tilt     *int               `json:"tilt,omitempty"`
	Battery  *int               `json:"battery,omitempty"`
	Speed    *motion.SpeedLevel `json:"speed,omitempty"`

	// AsOf is the time of the last successful status read
	AsOf time.Time `json:"asOf"`
}

// StatusEvent is emitted to subscribers whenever a cached snapshot is replaced
// or the connection state changes
type StatusEvent struct {
	MAC      motion.MACAddress `json:"mac"`
	State    ConnectionState   `json:"state"`
	Snapshot StatusSnapshot    `json:"snapshot"`
}
