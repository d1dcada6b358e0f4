package audio

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Device name forms accepted by OpenCapture and OpenPlayback.
const (
	DeviceDefault = "default"
	DeviceNull    = "null"
	DeviceTone    = "tone"
	DeviceWAV     = "wav"
	DeviceOgg     = "ogg"
)

// CaptureDevice delivers interleaved PCM, blocking until a block is full.
type CaptureDevice interface {
	Read(pcm []int16) error
	Close() error
}

// PlaybackDevice consumes interleaved PCM, blocking while its buffer is full.
type PlaybackDevice interface {
	Write(pcm []int16) error
	Close() error
}

// DeviceConfig holds the settings shared by every device of a process.
type DeviceConfig struct {
	Format Format
	// BufferTime is how much audio a playback device queues before Write
	// blocks.
	BufferTime time.Duration
	// Clock paces the devices; nil uses the system clock.
	Clock Clock
}

// OpenCapture opens a capture device by name:
//
//	default, tone       440 Hz tone
//	tone:HZ             tone at HZ
//	wav:PATH            WAV file, converted to the configured format
//	ogg:PATH            Ogg Opus file, decoded and converted
func OpenCapture(name string, cfg DeviceConfig) (CaptureDevice, error) {
	logrus.WithFields(logrus.Fields{
		"function": "OpenCapture",
		"device":   name,
	}).Debug("Opening capture device")

	kind, arg, _ := strings.Cut(name, ":")
	switch kind {
	case DeviceDefault, DeviceTone:
		hz := float64(DefaultToneHz)
		if arg != "" {
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil || v <= 0 || v >= float64(cfg.Format.Rate)/2 {
				return nil, fmt.Errorf("%w: invalid tone frequency %q", ErrUnknownDevice, arg)
			}
			hz = v
		}
		return NewToneCapture(cfg.Format, hz, cfg.Clock), nil
	case DeviceWAV:
		if arg == "" {
			return nil, fmt.Errorf("%w: wav device needs a path", ErrUnknownDevice)
		}
		return OpenWAVCapture(arg, cfg.Format, cfg.Clock)
	case DeviceOgg:
		if arg == "" {
			return nil, fmt.Errorf("%w: ogg device needs a path", ErrUnknownDevice)
		}
		return OpenOggCapture(arg, cfg.Format, cfg.Clock)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
}

// OpenPlayback opens a playback device by name:
//
//	default, null       discard audio in real time
//	wav:PATH            record to a WAV file
func OpenPlayback(name string, cfg DeviceConfig) (PlaybackDevice, error) {
	logrus.WithFields(logrus.Fields{
		"function": "OpenPlayback",
		"device":   name,
	}).Debug("Opening playback device")

	kind, arg, _ := strings.Cut(name, ":")
	switch kind {
	case DeviceDefault, DeviceNull:
		return NewNullPlayback(cfg.Format, cfg.BufferTime, cfg.Clock), nil
	case DeviceWAV:
		if arg == "" {
			return nil, fmt.Errorf("%w: wav device needs a path", ErrUnknownDevice)
		}
		return CreateWAVPlayback(arg, cfg.Format, cfg.BufferTime, cfg.Clock)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
}

// StreamDeviceName derives a per-stream playback device name when several
// streams share one configured name. File-backed devices get the SSRC
// appended to the file name; other devices are returned unchanged.
func StreamDeviceName(name string, ssrc uint32) string {
	kind, path, ok := strings.Cut(name, ":")
	if !ok || kind != DeviceWAV || path == "" {
		return name
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s:%s-%d%s", kind, strings.TrimSuffix(path, ext), ssrc, ext)
}

// NullPlayback discards audio at real-time pace.
type NullPlayback struct {
	id     uuid.UUID
	format Format
	buffer time.Duration
	pacer  *pacer

	mu     sync.Mutex
	closed bool
}

// NewNullPlayback creates a playback device that drops everything written.
func NewNullPlayback(format Format, buffer time.Duration, clock Clock) *NullPlayback {
	n := &NullPlayback{
		id:     uuid.New(),
		format: format,
		buffer: buffer,
		pacer:  newPacer(clock, format.Rate),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewNullPlayback",
		"device_id":   n.id.String(),
		"buffer_time": buffer.String(),
	}).Info("Opened null playback device")

	return n
}

// Write accepts pcm once the simulated device buffer has room.
func (n *NullPlayback) Write(pcm []int16) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrDeviceClosed
	}
	n.pacer.played(len(pcm)/int(n.format.Channels), n.buffer)
	return nil
}

// Close stops the device. Calling Close more than once is safe.
func (n *NullPlayback) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}
