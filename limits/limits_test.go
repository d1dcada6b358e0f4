package limits

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMaxRTPPayloadCalculation verifies that MaxRTPPayload leaves room for
// the fixed RTP header inside one UDP datagram.
func TestMaxRTPPayloadCalculation(t *testing.T) {
	assert.Equal(t, MaxDatagram-RTPHeaderSize, MaxRTPPayload)
	assert.Equal(t, 65495, MaxRTPPayload)
}

func TestValidateSize(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		maxSize int
		wantErr error
	}{
		{name: "nil payload", data: nil, maxSize: 10, wantErr: ErrPayloadEmpty},
		{name: "empty payload", data: []byte{}, maxSize: 10, wantErr: ErrPayloadEmpty},
		{name: "exactly at limit", data: make([]byte, 10), maxSize: 10},
		{name: "one over limit", data: make([]byte, 11), maxSize: 10, wantErr: ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSize(tt.data, tt.maxSize)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestValidatePayload(t *testing.T) {
	assert.NoError(t, ValidatePayload(make([]byte, 1280)))
	assert.ErrorIs(t, ValidatePayload(make([]byte, MaxRTPPayload+1)), ErrPayloadTooLarge)
}

func TestMaxFrameSamples(t *testing.T) {
	// 120 ms of stereo at 48 kHz
	assert.Equal(t, 11520, MaxFrameSamples(48000, 2))
	assert.Equal(t, 960, MaxFrameSamples(8000, 1))
}
