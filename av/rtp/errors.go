package rtp

import "errors"

// Connection descriptor errors.
var (
	// ErrMalformedDescriptor indicates an extended-list token could not be parsed.
	ErrMalformedDescriptor = errors.New("malformed connection descriptor")

	// ErrConflictingConnectionModes indicates both explicit and extended
	// connection parameters were supplied.
	ErrConflictingConnectionModes = errors.New("explicit and extended connection modes are mutually exclusive")

	// ErrNoDescriptors indicates a connection mode produced no descriptors.
	ErrNoDescriptors = errors.New("no connection descriptors")

	// ErrDuplicateReceivePort indicates two descriptors bind the same local port.
	ErrDuplicateReceivePort = errors.New("duplicate receive port")

	// ErrRTCPPortConflict indicates a receive port is another descriptor's
	// RTCP port (its receive port + 1).
	ErrRTCPPortConflict = errors.New("receive port collides with RTCP port")
)

// Session errors.
var (
	// ErrSessionClosed indicates an operation on a closed session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrSessionSetup indicates a transport session could not be created.
	ErrSessionSetup = errors.New("session setup failed")
)
