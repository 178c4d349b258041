package models

import (
	"errors"

	"github.com/motion-hub/motion-hub/pkg/motion"
)

// Command dispatch errors. Each failure is scoped to one device and one
// command; none is fatal to the process.
var (
	// ErrUnknownDevice indicates a dispatch to an unregistered hardware address
	ErrUnknownDevice = errors.New("unknown device")

	// ErrCapability indicates a command the device profile does not support
	ErrCapability = errors.New("capability not supported")

	// ErrConnectionFailed indicates the transport open attempt failed
	ErrConnectionFailed = errors.New("connection failed")

	// ErrCommandTimeout indicates no reply arrived within the bound, after
	// one retry. The session stays connected; the link may still be usable.
	ErrCommandTimeout = errors.New("command timeout")

	// ErrLinkLost indicates the transport reported an asynchronous failure
	ErrLinkLost = errors.New("link lost")

	// ErrInvalidArgument indicates a command value outside its legal range
	ErrInvalidArgument = motion.ErrInvalidArgument

	// ErrDecode indicates a malformed reply frame
	ErrDecode = motion.ErrDecode
)
