package av

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRTPTicks(t *testing.T) {
	tests := []struct {
		samples, rate, want uint32
	}{
		{960, 48000, 160},
		{480, 48000, 80},
		{160, 8000, 160},
		{441, 44100, 80},
		{320, 16000, 160},
		{0, 48000, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ToRTPTicks(tt.samples, tt.rate), "%d samples @ %d Hz", tt.samples, tt.rate)
	}
}

func TestToRTPTicks_Linear(t *testing.T) {
	for _, rate := range []uint32{8000, 16000, 24000, 32000, 48000} {
		for _, ms := range []uint32{10, 20, 40, 60} {
			frame := rate * ms / 1000
			assert.Equal(t, 2*ToRTPTicks(frame, rate), ToRTPTicks(2*frame, rate), "frame %d @ %d Hz", frame, rate)
		}
	}
}

func TestToRTPTicks_NoOverflow(t *testing.T) {
	assert.Equal(t, uint32(666666666), ToRTPTicks(4_000_000_000, 48000))
}

func TestNewFrameClock(t *testing.T) {
	clock, err := NewFrameClock(48000, 960, 2, 64)
	require.NoError(t, err)

	assert.Equal(t, uint32(160), clock.TSPerFrame)
	// 64*1024*960/48000/8 in integer arithmetic.
	assert.Equal(t, 163, clock.BytesPerFrame)
	assert.Equal(t, 1920, clock.SamplesPerBlock)
	assert.Equal(t, 20*time.Millisecond, clock.FrameDuration)
}

func TestNewFrameClock_Invalid(t *testing.T) {
	tests := []struct {
		name                  string
		rate, frame, channels uint32
	}{
		{"zero rate", 0, 960, 2},
		{"zero frame", 48000, 0, 2},
		{"zero channels", 48000, 960, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameClock(tt.rate, tt.frame, tt.channels, 64)
			assert.ErrorIs(t, err, ErrInvalidClock)
		})
	}
}
