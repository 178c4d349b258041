package motion

import (
	"database/sql/driver"
	"fmt"
	"net"
	"strings"
)

// MACAddress represents a 6-byte motor hardware address
type MACAddress [6]byte

// ParseMAC parses a colon-separated hardware address
func ParseMAC(s string) (MACAddress, error) {
	var m MACAddress

	hw, err := net.ParseMAC(s)
	if err != nil {
		return m, fmt.Errorf("parse MAC address: %w", err)
	}
	if len(hw) != 6 {
		return m, fmt.Errorf("invalid MAC address length: %d", len(hw))
	}

	copy(m[:], hw)
	return m, nil
}

// String returns the canonical colon-separated form
func (m MACAddress) String() string {
	return strings.ToUpper(net.HardwareAddr(m[:]).String())
}

// MarshalJSON implements json.Marshaler
func (m MACAddress) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (m *MACAddress) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid MAC address format")
	}

	parsed, err := ParseMAC(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}

	*m = parsed
	return nil
}

// Value implements driver.Valuer
func (m MACAddress) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner
func (m *MACAddress) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case string:
		parsed, err := ParseMAC(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case []byte:
		parsed, err := ParseMAC(string(v))
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into MACAddress", value)
	}
}

// Capability represents a single control dimension of a motor
type Capability string

const (
	CapabilityPosition Capability = "POSITION"
	CapabilityTilt     Capability = "TILT"
)

// BlindType represents a motor variant
type BlindType string

const (
	BlindTypePosition     BlindType = "position"
	BlindTypeTilt         BlindType = "tilt"
	BlindTypePositionTilt BlindType = "position_tilt"
	BlindTypeCurtain      BlindType = "position_curtain"
)

// Valid reports whether the blind type is a known variant
func (t BlindType) Valid() bool {
	switch t {
	case BlindTypePosition, BlindTypeTilt, BlindTypePositionTilt, BlindTypeCurtain:
		return true
	}
	return false
}

// Profile returns the capability profile for the blind type
func (t BlindType) Profile() Profile {
	switch t {
	case BlindTypeTilt:
		return Profile{Tilt: true}
	case BlindTypePositionTilt:
		return Profile{Position: true, Tilt: true}
	default:
		return Profile{Position: true}
	}
}

// Profile describes the control dimensions a motor variant supports
type Profile struct {
	Position bool `json:"position"`
	Tilt     bool `json:"tilt"`
}

// Supports reports whether the profile includes the capability
func (p Profile) Supports(c Capability) bool {
	switch c {
	case CapabilityPosition:
		return p.Position
	case CapabilityTilt:
		return p.Tilt
	}
	return false
}

// SpeedLevel represents a motor speed setting
type SpeedLevel uint8

const (
	SpeedLow    SpeedLevel = 0x01
	SpeedMedium SpeedLevel = 0x02
	SpeedHigh   SpeedLevel = 0x03
)

// Valid reports whether the speed level is a known setting
func (s SpeedLevel) Valid() bool {
	return s >= SpeedLow && s <= SpeedHigh
}
