package audio

import (
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultToneHz is the frequency of the tone capture device when none is
// given.
const DefaultToneHz = 440

// toneAmplitude keeps the generated tone well below full scale.
const toneAmplitude = 0.25 * math.MaxInt16

// ToneCapture is a capture device producing a continuous sine tone, the
// same on every channel.
type ToneCapture struct {
	id     uuid.UUID
	format Format
	hz     float64
	phase  float64
	pacer  *pacer
	mu     sync.Mutex
	closed bool
}

// NewToneCapture creates a tone generator at hz.
func NewToneCapture(format Format, hz float64, clock Clock) *ToneCapture {
	t := &ToneCapture{
		id:     uuid.New(),
		format: format,
		hz:     hz,
		pacer:  newPacer(clock, format.Rate),
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewToneCapture",
		"device_id": t.id.String(),
		"frequency": hz,
		"rate":      format.Rate,
		"channels":  format.Channels,
	}).Info("Opened tone capture device")

	return t
}

// Read fills pcm with the next block of the tone.
func (t *ToneCapture) Read(pcm []int16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrDeviceClosed
	}

	channels := int(t.format.Channels)
	step := 2 * math.Pi * t.hz / float64(t.format.Rate)
	frames := len(pcm) / channels
	for i := 0; i < frames; i++ {
		v := int16(toneAmplitude * math.Sin(t.phase))
		for ch := 0; ch < channels; ch++ {
			pcm[i*channels+ch] = v
		}
		t.phase = math.Mod(t.phase+step, 2*math.Pi)
	}

	t.pacer.captured(frames)
	return nil
}

// Close stops the device. Calling Close more than once is safe.
func (t *ToneCapture) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		logrus.WithFields(logrus.Fields{
			"function":  "ToneCapture.Close",
			"device_id": t.id.String(),
		}).Debug("Closed tone capture device")
	}
	return nil
}
