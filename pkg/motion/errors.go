package motion

import "errors"

// Protocol errors
var (
	// ErrInvalidArgument indicates a command value outside its legal range
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDecode indicates a malformed or unrecognized frame. Non-fatal: the
	// receiver logs and discards the frame without closing the connection.
	ErrDecode = errors.New("decode error")
)
