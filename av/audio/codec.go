package audio

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Codec names accepted by NewEncoder and NewDecoder.
const (
	CodecPCM  = "pcm"
	CodecOpus = "opus"
)

// Encoder compresses one block of interleaved PCM.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
	Close() error
}

// Decoder expands a payload into interleaved PCM, or conceals a missing
// frame when payload is nil. It returns samples per channel written.
type Decoder interface {
	Decode(payload []byte, pcm []int16) (int, error)
	Close() error
}

// NewEncoder creates the named encoder for format.
func NewEncoder(name string, format Format) (Encoder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(name) {
	case CodecPCM:
		return NewPCMEncoder(format), nil
	case CodecOpus:
		return NewOpusEncoder(format)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// NewDecoder creates the named decoder for format.
func NewDecoder(name string, format Format) (Decoder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(name) {
	case CodecPCM:
		return NewPCMDecoder(format), nil
	case CodecOpus:
		return NewOpusDecoder(format)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// PCMEncoder emits 16-bit big-endian linear PCM (L16, RFC 3551).
type PCMEncoder struct {
	format Format
	buf    []byte
}

// NewPCMEncoder creates a PCM encoder.
func NewPCMEncoder(format Format) *PCMEncoder {
	logrus.WithFields(logrus.Fields{
		"function":    "NewPCMEncoder",
		"sample_rate": format.Rate,
		"channels":    format.Channels,
		"bit_rate":    format.BitRate,
	}).Info("Creating PCM encoder")

	return &PCMEncoder{format: format}
}

// Encode converts pcm to network byte order. The returned slice is
// reused by the next call.
func (e *PCMEncoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("empty PCM data")
	}
	if len(pcm)%int(e.format.Channels) != 0 {
		return nil, fmt.Errorf("%w: %d samples not aligned to %d channels", ErrInvalidFormat, len(pcm), e.format.Channels)
	}

	size := len(pcm) * 2
	if cap(e.buf) < size {
		e.buf = make([]byte, size)
	}
	out := e.buf[:size]
	for i, sample := range pcm {
		binary.BigEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out, nil
}

// Close releases encoder resources.
func (e *PCMEncoder) Close() error {
	return nil
}

// PCMDecoder decodes big-endian linear PCM payloads.
type PCMDecoder struct {
	format  Format
	conceal *concealer
}

// NewPCMDecoder creates a PCM decoder.
func NewPCMDecoder(format Format) *PCMDecoder {
	logrus.WithFields(logrus.Fields{
		"function":    "NewPCMDecoder",
		"sample_rate": format.Rate,
		"channels":    format.Channels,
	}).Info("Creating PCM decoder")

	return &PCMDecoder{
		format:  format,
		conceal: newConcealer(format),
	}
}

// Decode writes the samples in payload to pcm, or conceals a missing frame
// when payload is nil.
func (d *PCMDecoder) Decode(payload []byte, pcm []int16) (int, error) {
	channels := int(d.format.Channels)
	if payload == nil {
		return d.conceal.fill(pcm), nil
	}

	frameBytes := 2 * channels
	if len(payload) == 0 || len(payload)%frameBytes != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a whole number of %d-channel samples", ErrMalformedPayload, len(payload), channels)
	}
	samples := len(payload) / 2
	if samples > len(pcm) {
		return 0, fmt.Errorf("%w: %d samples exceed buffer of %d", ErrMalformedPayload, samples, len(pcm))
	}

	for i := 0; i < samples; i++ {
		pcm[i] = int16(binary.BigEndian.Uint16(payload[i*2:]))
	}
	d.conceal.remember(pcm[:samples])
	return samples / channels, nil
}

// Close releases decoder resources.
func (d *PCMDecoder) Close() error {
	return nil
}

// concealFadeFrames is how many consecutive missing frames are concealed
// by repetition before output falls to silence.
const concealFadeFrames = 5

// concealer synthesizes audio for missing frames by repeating the last
// good frame with a gain that halves on every consecutive loss.
type concealer struct {
	mu       sync.Mutex
	channels int
	frame    int
	last     []int16
	lost     int
}

func newConcealer(format Format) *concealer {
	return &concealer{
		channels: int(format.Channels),
		frame:    int(format.FrameSamples),
	}
}

func (c *concealer) remember(pcm []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = append(c.last[:0], pcm...)
	c.lost = 0
}

// fill writes one concealment frame to pcm and returns its samples per
// channel.
func (c *concealer) fill(pcm []int16) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lost++
	if len(c.last) == 0 || c.lost > concealFadeFrames {
		n := min(c.frame*c.channels, len(pcm))
		clear(pcm[:n])
		return n / c.channels
	}

	n := copy(pcm, c.last)
	shift := uint(c.lost)
	for i := 0; i < n; i++ {
		pcm[i] >>= shift
	}
	return n / c.channels
}
