package motion

import (
	"bytes"
	"fmt"
	"math"
	"time"
)

// ReplyType identifies a decoded frame from the motor
type ReplyType string

const (
	// ReplyAck is sent by the motor after the key exchange
	ReplyAck ReplyType = "ACK"
	// ReplyStatus carries the full status report
	ReplyStatus ReplyType = "STATUS"
	// ReplyPosition is an unsolicited position change notification
	ReplyPosition ReplyType = "POSITION"
	// ReplyRunning is an unsolicited movement notification
	ReplyRunning ReplyType = "RUNNING"
)

// Reply represents a decoded motor frame
type Reply struct {
	Type ReplyType

	// Position and Tilt are percentages, valid for ReplyStatus and ReplyPosition
	Position int
	Tilt     int

	// Battery and Speed are valid for ReplyStatus only
	Battery int
	Speed   SpeedLevel

	// Opening is valid for ReplyRunning only
	Opening bool
}

// Encode encodes a logical command into a plaintext frame body. Position and
// tilt values outside [0,100] and unknown speed levels fail before any
// transport I/O happens.
func Encode(cmd Command) ([]byte, error) {
	switch cmd.Type {
	case CommandOpen:
		return clone(opOpen), nil
	case CommandClose:
		return clone(opClose), nil
	case CommandStop:
		return clone(opStop), nil
	case CommandFavorite:
		return clone(opFavorite), nil
	case CommandStatusQuery:
		return clone(opStatusQuery), nil
	case CommandSetKey:
		return clone(opSetKey), nil

	case CommandPosition:
		if cmd.Position < 0 || cmd.Position > 100 {
			return nil, fmt.Errorf("%w: position %d out of range", ErrInvalidArgument, cmd.Position)
		}
		return append(clone(opPercent), byte(cmd.Position), 0x00), nil

	case CommandTilt:
		if cmd.Tilt < 0 || cmd.Tilt > 100 {
			return nil, fmt.Errorf("%w: tilt %d out of range", ErrInvalidArgument, cmd.Tilt)
		}
		return append(clone(opAngle), 0x00, tiltToAngle(cmd.Tilt)), nil

	case CommandSpeed:
		if !cmd.Speed.Valid() {
			return nil, fmt.Errorf("%w: speed level %d", ErrInvalidArgument, cmd.Speed)
		}
		return append(clone(opSpeed), byte(cmd.Speed)), nil

	default:
		return nil, fmt.Errorf("%w: command type %q", ErrInvalidArgument, cmd.Type)
	}
}

// Seal appends the local-time suffix to a frame body and encrypts it for the
// wire. The timestamp must be generated just before the write.
func Seal(body []byte, at time.Time) []byte {
	return Encrypt(append(clone(body), Timestamp(at)...))
}

// EncodeFrame encodes and seals a command in one step
func EncodeFrame(cmd Command, at time.Time) ([]byte, error) {
	body, err := Encode(cmd)
	if err != nil {
		return nil, err
	}
	return Seal(body, at), nil
}

// Decode decrypts and decodes a frame received from the motor. Malformed or
// unrecognized frames fail with ErrDecode; the caller decides whether the
// frame was the expected reply or noise to discard.
func Decode(frame []byte) (Reply, error) {
	plain, err := Decrypt(frame)
	if err != nil {
		return Reply{}, err
	}
	return DecodePlain(plain)
}

// DecodePlain decodes an already decrypted frame body
func DecodePlain(plain []byte) (Reply, error) {
	switch {
	// The running prefix extends the position prefix by one byte, so it has
	// to be matched first.
	case bytes.HasPrefix(plain, notifyRunning):
		if len(plain) < 6 {
			return Reply{}, fmt.Errorf("%w: running frame too short", ErrDecode)
		}
		return Reply{Type: ReplyRunning, Opening: plain[5] == 0x01}, nil

	case bytes.HasPrefix(plain, notifyPercent):
		if len(plain) < 8 {
			return Reply{}, fmt.Errorf("%w: position frame too short", ErrDecode)
		}
		return Reply{
			Type:     ReplyPosition,
			Position: int(plain[6]),
			Tilt:     angleToTilt(plain[7]),
		}, nil

	case bytes.HasPrefix(plain, notifyStatus):
		if len(plain) < 18 {
			return Reply{}, fmt.Errorf("%w: status frame too short", ErrDecode)
		}
		return Reply{
			Type:     ReplyStatus,
			Position: int(plain[6]),
			Tilt:     angleToTilt(plain[7]),
			Speed:    SpeedLevel(plain[12]),
			Battery:  int(plain[17]),
		}, nil

	case bytes.HasPrefix(plain, notifyReady):
		return Reply{Type: ReplyAck}, nil

	default:
		return Reply{}, fmt.Errorf("%w: unrecognized frame prefix % x", ErrDecode, head(plain, 5))
	}
}

// ParseCommand decodes a plaintext command body back into the logical command
// it encodes. Used by the device side of the protocol; the timestamp suffix
// is ignored.
func ParseCommand(plain []byte) (Command, error) {
	switch {
	case bytes.HasPrefix(plain, opOpen):
		return Command{Type: CommandOpen}, nil
	case bytes.HasPrefix(plain, opClose):
		return Command{Type: CommandClose}, nil
	case bytes.HasPrefix(plain, opStop):
		return Command{Type: CommandStop}, nil
	case bytes.HasPrefix(plain, opFavorite):
		return Command{Type: CommandFavorite}, nil
	case bytes.HasPrefix(plain, opStatusQuery):
		return Command{Type: CommandStatusQuery}, nil
	case bytes.HasPrefix(plain, opSetKey):
		return Command{Type: CommandSetKey}, nil

	case bytes.HasPrefix(plain, opPercent):
		if len(plain) < len(opPercent)+2 {
			return Command{}, fmt.Errorf("%w: position command too short", ErrDecode)
		}
		return Command{Type: CommandPosition, Position: int(plain[len(opPercent)])}, nil

	case bytes.HasPrefix(plain, opAngle):
		if len(plain) < len(opAngle)+2 {
			return Command{}, fmt.Errorf("%w: tilt command too short", ErrDecode)
		}
		return Command{Type: CommandTilt, Tilt: angleToTilt(plain[len(opAngle)+1])}, nil

	case bytes.HasPrefix(plain, opSpeed):
		if len(plain) < len(opSpeed)+1 {
			return Command{}, fmt.Errorf("%w: speed command too short", ErrDecode)
		}
		return Command{Type: CommandSpeed, Speed: SpeedLevel(plain[len(opSpeed)])}, nil

	default:
		return Command{}, fmt.Errorf("%w: unrecognized command prefix % x", ErrDecode, head(plain, 4))
	}
}

// tiltToAngle converts a tilt percentage to the 0-180 degree wire value
func tiltToAngle(tilt int) byte {
	return byte(math.Round(180 * float64(tilt) / 100))
}

// angleToTilt converts a 0-180 degree wire value to a tilt percentage
func angleToTilt(angle byte) int {
	a := int(angle)
	if a > 180 {
		a = 180
	}
	return int(math.Round(100 * float64(a) / 180))
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func head(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}
