package config

import "errors"

var (
	// ErrInvalidConfig indicates a setting outside its allowed range.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownMode indicates a --mode value other than trx, tx or rx.
	ErrUnknownMode = errors.New("unknown mode")
)
