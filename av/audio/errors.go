package audio

import "errors"

var (
	// ErrUnknownCodec indicates a codec name that is not supported.
	ErrUnknownCodec = errors.New("unknown codec")

	// ErrInvalidFrameSize indicates a frame size that is not a legal codec
	// frame duration at the configured rate.
	ErrInvalidFrameSize = errors.New("invalid frame size")

	// ErrInvalidFormat indicates an unsupported rate or channel count.
	ErrInvalidFormat = errors.New("invalid audio format")

	// ErrMalformedPayload indicates a payload the decoder cannot parse.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnknownDevice indicates a device name that cannot be opened.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrDeviceClosed indicates I/O on a closed device.
	ErrDeviceClosed = errors.New("device closed")
)
