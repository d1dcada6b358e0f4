package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// fileCapture plays decoded file audio into the transmit pipeline in real
// time. Read returns io.EOF once the audio is exhausted.
type fileCapture struct {
	id      uuid.UUID
	kind    string
	format  Format
	samples []int16
	pos     int
	pacer   *pacer

	mu     sync.Mutex
	closed bool
}

func newFileCapture(id uuid.UUID, kind string, format Format, samples []int16, clock Clock) fileCapture {
	return fileCapture{
		id:      id,
		kind:    kind,
		format:  format,
		samples: samples,
		pacer:   newPacer(clock, format.Rate),
	}
}

// Read copies the next block of audio into pcm. A final partial block is
// padded with silence.
func (c *fileCapture) Read(pcm []int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrDeviceClosed
	}
	if c.pos >= len(c.samples) {
		return io.EOF
	}

	n := copy(pcm, c.samples[c.pos:])
	clear(pcm[n:])
	c.pos += n

	c.pacer.captured(len(pcm) / int(c.format.Channels))
	return nil
}

// Close releases the device. Calling Close more than once is safe.
func (c *fileCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.samples = nil
		logrus.WithFields(logrus.Fields{
			"function":  "fileCapture.Close",
			"device_id": c.id.String(),
			"kind":      c.kind,
		}).Debug("Closed file capture device")
	}
	return nil
}

// WAVCapture plays a WAV file into the transmit pipeline. The file is
// converted to the pipeline format when it is opened.
type WAVCapture struct {
	fileCapture
	path string
}

// OpenWAVCapture loads path and converts it to format.
func OpenWAVCapture(path string, format Format, clock Clock) (*WAVCapture, error) {
	id := uuid.New()
	logger := logrus.WithFields(logrus.Fields{
		"function":  "OpenWAVCapture",
		"device_id": id.String(),
		"path":      path,
	})

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open audio file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrInvalidFormat, path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("could not read PCM data from %s: %w", path, err)
	}

	source := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		source[i] = sampleToInt16(v, buf.SourceBitDepth)
	}

	conv, err := newConverter(int(decoder.SampleRate), int(decoder.NumChans), int(format.Rate), int(format.Channels))
	if err != nil {
		return nil, err
	}
	samples := append([]int16(nil), conv.convert(source)...)

	logger.WithFields(logrus.Fields{
		"file_rate":     decoder.SampleRate,
		"file_channels": decoder.NumChans,
		"bit_depth":     buf.SourceBitDepth,
		"duration":      time.Duration(len(samples)/int(format.Channels)) * time.Second / time.Duration(format.Rate),
	}).Info("Opened WAV capture device")

	return &WAVCapture{
		fileCapture: newFileCapture(id, DeviceWAV, format, samples, clock),
		path:        path,
	}, nil
}

// WAVPlayback records a receive pipeline's output to a 16-bit WAV file,
// paced like a playback device with the configured buffer time.
type WAVPlayback struct {
	id      uuid.UUID
	path    string
	format  Format
	buffer  time.Duration
	file    *os.File
	encoder *wav.Encoder
	intBuf  *goaudio.IntBuffer
	pacer   *pacer

	mu       sync.Mutex
	closed   bool
	closeErr error
}

// CreateWAVPlayback creates (or truncates) path for recording.
func CreateWAVPlayback(path string, format Format, buffer time.Duration, clock Clock) (*WAVPlayback, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create audio file: %w", err)
	}

	w := &WAVPlayback{
		id:      uuid.New(),
		path:    path,
		format:  format,
		buffer:  buffer,
		file:    f,
		encoder: wav.NewEncoder(f, int(format.Rate), 16, int(format.Channels), 1),
		intBuf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				SampleRate:  int(format.Rate),
				NumChannels: int(format.Channels),
			},
			SourceBitDepth: 16,
		},
		pacer: newPacer(clock, format.Rate),
	}

	logrus.WithFields(logrus.Fields{
		"function":  "CreateWAVPlayback",
		"device_id": w.id.String(),
		"path":      path,
		"rate":      format.Rate,
		"channels":  format.Channels,
	}).Info("Opened WAV playback device")

	return w, nil
}

// Write appends pcm to the file.
func (w *WAVPlayback) Write(pcm []int16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrDeviceClosed
	}

	if cap(w.intBuf.Data) < len(pcm) {
		w.intBuf.Data = make([]int, len(pcm))
	}
	w.intBuf.Data = w.intBuf.Data[:len(pcm)]
	for i, v := range pcm {
		w.intBuf.Data[i] = int(v)
	}
	if err := w.encoder.Write(w.intBuf); err != nil {
		return fmt.Errorf("error while writing frame to file: %w", err)
	}

	if w.pacer.played(len(pcm)/int(w.format.Channels), w.buffer) {
		logrus.WithFields(logrus.Fields{
			"function":  "WAVPlayback.Write",
			"device_id": w.id.String(),
		}).Trace("Playback underrun")
	}
	return nil
}

// Close finalizes the WAV header and closes the file. Calling Close more
// than once is safe.
func (w *WAVPlayback) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return w.closeErr
	}
	w.closed = true

	var errs []error
	if err := w.encoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to finalize WAV file: %w", err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, err)
	}
	w.closeErr = errors.Join(errs...)

	logrus.WithFields(logrus.Fields{
		"function":  "WAVPlayback.Close",
		"device_id": w.id.String(),
		"path":      w.path,
	}).Debug("Closed WAV playback device")

	return w.closeErr
}

// sampleToInt16 rescales a go-audio integer sample of the given bit depth.
func sampleToInt16(v, bitDepth int) int16 {
	switch {
	case bitDepth == 8:
		return int16((v - 128) << 8)
	case bitDepth > 16:
		return int16(v >> (bitDepth - 16))
	case bitDepth > 0 && bitDepth < 16:
		return int16(v << (16 - bitDepth))
	default:
		return int16(v)
	}
}
