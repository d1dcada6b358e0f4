package av

import "errors"

// Sentinel errors for av package operations.
// These errors enable reliable error classification using errors.Is().

// Configuration errors.
var (
	// ErrInvalidClock indicates a zero rate, frame size or channel count.
	ErrInvalidClock = errors.New("invalid pipeline clock")

	// ErrMissingCollaborator indicates a pipeline was built without one of
	// its device, codec or session collaborators.
	ErrMissingCollaborator = errors.New("missing pipeline collaborator")

	// ErrNoSenders indicates a transmit pipeline with no destinations.
	ErrNoSenders = errors.New("transmit pipeline has no senders")
)

// Pipeline failures. These are fatal to the pipeline that returns them.
var (
	// ErrCaptureFailed indicates the capture device failed to deliver a block.
	ErrCaptureFailed = errors.New("capture failed")

	// ErrEncodeFailed indicates the encoder rejected a captured block.
	ErrEncodeFailed = errors.New("encode failed")

	// ErrConcealmentFailed indicates the decoder could not synthesize a
	// frame for a missing packet.
	ErrConcealmentFailed = errors.New("loss concealment failed")

	// ErrPlaybackFailed indicates the playback device rejected a block.
	ErrPlaybackFailed = errors.New("playback failed")
)
