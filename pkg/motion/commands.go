package motion

import "encoding/hex"

// CommandType identifies a wire-level motor command
type CommandType string

const (
	CommandOpen        CommandType = "OPEN"
	CommandClose       CommandType = "CLOSE"
	CommandStop        CommandType = "STOP"
	CommandFavorite    CommandType = "FAVORITE"
	CommandPosition    CommandType = "POSITION"
	CommandTilt        CommandType = "TILT"
	CommandSpeed       CommandType = "SPEED"
	CommandStatusQuery CommandType = "STATUS_QUERY"
	CommandSetKey      CommandType = "SET_KEY"
)

// Command represents a single logical motor command
type Command struct {
	Type CommandType

	// Position is the target percentage closed, used by CommandPosition
	Position int

	// Tilt is the target tilt percentage, used by CommandTilt
	Tilt int

	// Speed is the target speed level, used by CommandSpeed
	Speed SpeedLevel
}

// Opcode prefixes from the motor command protocol. A command body is the
// opcode, its parameter bytes and the Timestamp suffix, encrypted as one frame.
var (
	opOpen        = mustHex("03020301")
	opClose       = mustHex("03020302")
	opStop        = mustHex("03020303")
	opFavorite    = mustHex("03020306")
	opPercent     = mustHex("05020440")
	opAngle       = mustHex("05020420")
	opSpeed       = mustHex("0403010a")
	opStatusQuery = mustHex("03050f02")
	opSetKey      = mustHex("02c001")
)

// Notification prefixes of decrypted frames sent by the motor.
var (
	notifyRunning = mustHex("070404021e")
	notifyPercent = mustHex("07040402")
	notifyReady   = mustHex("0201c0")
	notifyStatus  = mustHex("12040f02")
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
