package audio

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thesyncim/gopus"
)

const (
	// maxOpusPacket is the longest audio one Opus packet may carry.
	maxOpusPacket = 120 * time.Millisecond

	// opusRate is the rate TOC frame sizes are expressed in.
	opusRate = 48000

	// maxOpusPacketBytes bounds one packet: six 20 ms frames of 1275 bytes.
	maxOpusPacketBytes = 6 * 1275

	// minOpusPacketBytes keeps a tiny bitrate budget encodable.
	minOpusPacketBytes = 8
)

// IsOpusRate reports whether Opus codes at rate natively.
func IsOpusRate(rate uint32) bool {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	default:
		return false
	}
}

// ValidateOpusEncoding checks that format can be fed to an Opus encoder.
// Decoding accepts any format; other rates are converted after decoding.
func ValidateOpusEncoding(format Format) error {
	if !IsOpusRate(format.Rate) {
		return fmt.Errorf("%w: opus encodes at 8, 12, 16, 24 or 48 kHz, not %d Hz", ErrInvalidFormat, format.Rate)
	}
	return nil
}

// OpusEncoder encodes PCM frames with gopus. Packets are capped at the
// frame's bitrate budget (Format.FrameBytes).
type OpusEncoder struct {
	format  Format
	encoder *gopus.Encoder
	buf     []byte
}

// NewOpusEncoder creates an Opus encoder for format. The target bitrate is
// format.BitRate; zero leaves the bitrate to the encoder.
func NewOpusEncoder(format Format) (*OpusEncoder, error) {
	if err := ValidateOpusEncoding(format); err != nil {
		return nil, err
	}

	encoder, err := gopus.NewEncoder(gopus.EncoderConfig{
		SampleRate:  int(format.Rate),
		Channels:    int(format.Channels),
		Application: gopus.ApplicationAudio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if err := encoder.SetFrameSize(int(format.FrameSamples)); err != nil {
		return nil, fmt.Errorf("%w: opus frame of %d samples: %v", ErrInvalidFrameSize, format.FrameSamples, err)
	}

	size := maxOpusPacketBytes
	if format.BitRate > 0 {
		if err := encoder.SetBitrate(int(format.BitRate) * 1024); err != nil {
			return nil, fmt.Errorf("%w: opus bitrate %d kbps: %v", ErrInvalidFormat, format.BitRate, err)
		}
		size = min(max(format.FrameBytes(), minOpusPacketBytes), maxOpusPacketBytes)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewOpusEncoder",
		"sample_rate": format.Rate,
		"channels":    format.Channels,
		"frame_size":  format.FrameSamples,
		"bit_rate":    format.BitRate,
		"max_bytes":   size,
	}).Info("Creating Opus encoder")

	return &OpusEncoder{
		format:  format,
		encoder: encoder,
		buf:     make([]byte, size),
	}, nil
}

// Encode compresses one frame. The returned slice is reused by the next
// call and is empty while the encoder is still filling its lookahead.
func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	want := int(e.format.FrameSamples * e.format.Channels)
	if len(pcm) != want {
		return nil, fmt.Errorf("%w: opus frame needs %d samples, got %d", ErrInvalidFormat, want, len(pcm))
	}

	n, err := e.encoder.EncodeInt16(pcm, e.buf)
	if err != nil {
		return nil, fmt.Errorf("opus encode failed: %w", err)
	}
	return e.buf[:n], nil
}

// Close releases encoder resources.
func (e *OpusEncoder) Close() error {
	logrus.WithFields(logrus.Fields{
		"function": "OpusEncoder.Close",
	}).Debug("Closing Opus encoder")
	return nil
}

// OpusDecoder decodes Opus payloads with gopus. Rates Opus does not code
// natively are decoded at 48 kHz and converted to the pipeline rate.
// Missing frames are concealed by the codec's own loss concealment.
type OpusDecoder struct {
	format  Format
	decoder *gopus.Decoder
	rate    int
	frame   int
	samples []int16
	conv    *converter
}

// NewOpusDecoder creates an Opus decoder producing PCM in format.
func NewOpusDecoder(format Format) (*OpusDecoder, error) {
	rate := int(format.Rate)
	if !IsOpusRate(format.Rate) {
		rate = opusRate
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewOpusDecoder",
		"sample_rate": format.Rate,
		"decode_rate": rate,
		"channels":    format.Channels,
	}).Info("Creating Opus decoder")

	cfg := gopus.DefaultDecoderConfig(rate, int(format.Channels))
	cfg.MaxPacketBytes = maxOpusPacketBytes
	decoder, err := gopus.NewDecoder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	d := &OpusDecoder{
		format:  format,
		decoder: decoder,
		rate:    rate,
		frame:   int(uint64(format.FrameSamples) * uint64(rate) / uint64(format.Rate)),
	}
	if rate != int(format.Rate) {
		conv, err := newConverter(rate, int(format.Channels), int(format.Rate), int(format.Channels))
		if err != nil {
			return nil, err
		}
		d.conv = conv
	}
	return d, nil
}

// Decode decodes payload into pcm, or conceals one frame when payload is
// nil.
func (d *OpusDecoder) Decode(payload []byte, pcm []int16) (int, error) {
	channels := int(d.format.Channels)

	var n int
	if payload == nil {
		d.samples = growInt16(d.samples, d.frame*channels)
		var err error
		if n, err = d.decoder.DecodeInt16(nil, d.samples); err != nil {
			return 0, fmt.Errorf("opus concealment failed: %w", err)
		}
	} else {
		samples, err := opusPacketSamples(payload, d.rate)
		if err != nil {
			return 0, err
		}
		d.samples = growInt16(d.samples, samples*channels)
		if n, err = d.decoder.DecodeInt16(payload, d.samples); err != nil {
			return 0, fmt.Errorf("%w: opus decode failed: %v", ErrMalformedPayload, err)
		}
	}

	out := d.samples[:n*channels]
	if d.conv != nil {
		out = d.conv.convert(out)
	}
	written := copy(pcm, out)
	written -= written % channels
	return written / channels, nil
}

// Close releases decoder resources.
func (d *OpusDecoder) Close() error {
	logrus.WithFields(logrus.Fields{
		"function": "OpusDecoder.Close",
	}).Debug("Closing Opus decoder")
	return nil
}

// opusPacketSamples returns the samples per channel an Opus packet decodes
// to at rate, from its TOC byte and frame layout.
func opusPacketSamples(packet []byte, rate int) (int, error) {
	info, err := gopus.ParsePacket(packet)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	total := info.FrameCount * info.TOC.FrameSize
	limit := int(int64(opusRate) * int64(maxOpusPacket) / int64(time.Second))
	if total == 0 || total > limit {
		return 0, fmt.Errorf("%w: Opus packet of %d frames (%d samples at 48 kHz)", ErrMalformedPayload, info.FrameCount, total)
	}
	return total * rate / opusRate, nil
}
