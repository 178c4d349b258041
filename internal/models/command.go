package models

import (
	"time"

	"github.com/motion-hub/motion-hub/pkg/motion"
)

// CommandType identifies a dispatchable session command
type CommandType string

const (
	CommandConnect    CommandType = "CONNECT"
	CommandDisconnect CommandType = "DISCONNECT"
	CommandOpen       CommandType = "OPEN"
	CommandClose      CommandType = "CLOSE"
	CommandStop       CommandType = "STOP"
	CommandPosition   CommandType = "MOVE_TO_POSITION"
	CommandTilt       CommandType = "MOVE_TO_TILT"
	CommandSpeed      CommandType = "SET_SPEED"
	CommandFavorite   CommandType = "GO_FAVORITE"
	CommandStatus     CommandType = "STATUS"
)

// Command represents one request dispatched to a device session
type Command struct {
	Type CommandType `json:"type"`

	// Duration overrides the default idle-disconnect window for
	// CommandConnect; zero means the configured default.
	Duration time.Duration `json:"duration,omitempty"`

	// Position is the target percentage closed for CommandPosition
	Position int `json:"position,omitempty"`

	// Tilt is the target tilt percentage for CommandTilt
	Tilt int `json:"tilt,omitempty"`

	// Speed is the target level for CommandSpeed
	Speed motion.SpeedLevel `json:"speed,omitempty"`
}

// Valid reports whether the type names a known command
func (t CommandType) Valid() bool {
	switch t {
	case CommandConnect, CommandDisconnect, CommandOpen, CommandClose,
		CommandStop, CommandPosition, CommandTilt, CommandSpeed,
		CommandFavorite, CommandStatus:
		return true
	}
	return false
}

// RequiredCapability returns the capability a profile must carry for the
// command, or "" when any profile accepts it.
func (c Command) RequiredCapability() motion.Capability {
	switch c.Type {
	case CommandOpen, CommandClose, CommandPosition:
		return motion.CapabilityPosition
	case CommandTilt:
		return motion.CapabilityTilt
	}
	return ""
}

// Wire returns the wire-level command a session command translates to.
// Connect and Disconnect manage the link itself and have no wire form.
func (c Command) Wire() (motion.Command, bool) {
	switch c.Type {
	case CommandOpen:
		return motion.Command{Type: motion.CommandOpen}, true
	case CommandClose:
		return motion.Command{Type: motion.CommandClose}, true
	case CommandStop:
		return motion.Command{Type: motion.CommandStop}, true
	case CommandPosition:
		return motion.Command{Type: motion.CommandPosition, Position: c.Position}, true
	case CommandTilt:
		return motion.Command{Type: motion.CommandTilt, Tilt: c.Tilt}, true
	case CommandSpeed:
		return motion.Command{Type: motion.CommandSpeed, Speed: c.Speed}, true
	case CommandFavorite:
		return motion.Command{Type: motion.CommandFavorite}, true
	case CommandStatus:
		return motion.Command{Type: motion.CommandStatusQuery}, true
	}
	return motion.Command{}, false
}
