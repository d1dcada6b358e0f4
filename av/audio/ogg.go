package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pion/opus/pkg/oggreader"
	"github.com/sirupsen/logrus"
	"github.com/thesyncim/gopus"
)

// oggTagsSignature opens the comment header packet of an Ogg Opus stream.
var oggTagsSignature = []byte("OpusTags")

// OggCapture plays an Ogg Opus file (RFC 7845) into the transmit pipeline.
// The file is decoded and converted to the pipeline format when it is
// opened.
type OggCapture struct {
	fileCapture
	path string
}

// OpenOggCapture loads path, decodes every packet and converts the result
// to format.
func OpenOggCapture(path string, format Format, clock Clock) (*OggCapture, error) {
	id := uuid.New()
	logger := logrus.WithFields(logrus.Fields{
		"function":  "OpenOggCapture",
		"device_id": id.String(),
		"path":      path,
	})

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open audio file: %w", err)
	}
	defer f.Close()

	reader, header, err := oggreader.NewWith(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not an Ogg Opus file: %v", ErrInvalidFormat, path, err)
	}
	channels := int(header.Channels)
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %s has %d channels", ErrInvalidFormat, path, channels)
	}

	packets, err := readOggPackets(reader)
	if err != nil {
		return nil, fmt.Errorf("could not read Ogg pages from %s: %w", path, err)
	}

	source, err := decodeOpusPackets(packets, channels)
	if err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", path, err)
	}
	skip := min(int(header.PreSkip)*channels, len(source))
	source = source[skip:]

	conv, err := newConverter(opusRate, channels, int(format.Rate), int(format.Channels))
	if err != nil {
		return nil, err
	}
	samples := append([]int16(nil), conv.convert(source)...)

	logger.WithFields(logrus.Fields{
		"file_channels": channels,
		"input_rate":    header.SampleRate,
		"packets":       len(packets),
		"pre_skip":      header.PreSkip,
		"duration":      time.Duration(len(samples)/int(format.Channels)) * time.Second / time.Duration(format.Rate),
	}).Info("Opened Ogg capture device")

	return &OggCapture{
		fileCapture: newFileCapture(id, DeviceOgg, format, samples, clock),
		path:        path,
	}, nil
}

// readOggPackets reassembles Opus packets from the page segments after the
// identification header. A segment shorter than 255 bytes ends a packet;
// packets may continue across pages. The comment header is dropped.
func readOggPackets(reader *oggreader.OggReader) ([][]byte, error) {
	var packets [][]byte
	var pending []byte

	for {
		segments, _, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		for _, segment := range segments {
			pending = append(pending, segment...)
			if len(segment) == 255 {
				continue
			}
			if len(pending) > 0 && !bytes.HasPrefix(pending, oggTagsSignature) {
				packets = append(packets, pending)
			}
			pending = nil
		}
	}
	return packets, nil
}

// decodeOpusPackets decodes packets at 48 kHz into one interleaved buffer.
func decodeOpusPackets(packets [][]byte, channels int) ([]int16, error) {
	cfg := gopus.DefaultDecoderConfig(opusRate, channels)
	cfg.MaxPacketBytes = maxOpusPacketBytes
	decoder, err := gopus.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}

	var out, block []int16
	for i, packet := range packets {
		samples, err := opusPacketSamples(packet, opusRate)
		if err != nil {
			return nil, fmt.Errorf("packet %d: %w", i, err)
		}
		block = growInt16(block, samples*channels)
		n, err := decoder.DecodeInt16(packet, block)
		if err != nil {
			return nil, fmt.Errorf("packet %d: %w", i, err)
		}
		out = append(out, block[:n*channels]...)
	}
	return out, nil
}
