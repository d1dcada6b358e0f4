package audio

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/opus/pkg/oggreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oggCRC is the Ogg page checksum: CRC-32, polynomial 0x04c11db7, MSB first.
func oggCRC(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc ^= uint32(b) << 24
		for i := 0; i < 8; i++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04c11db7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func oggPage(headerType byte, seq uint32, packets ...[]byte) []byte {
	var lacing, body []byte
	for _, p := range packets {
		n := len(p)
		for n >= 255 {
			lacing = append(lacing, 255)
			n -= 255
		}
		lacing = append(lacing, byte(n))
		body = append(body, p...)
	}

	page := make([]byte, 27, 27+len(lacing)+len(body))
	copy(page, "OggS")
	page[5] = headerType
	binary.LittleEndian.PutUint32(page[14:], 0x7472)
	binary.LittleEndian.PutUint32(page[18:], seq)
	page[26] = byte(len(lacing))
	page = append(page, lacing...)
	page = append(page, body...)
	binary.LittleEndian.PutUint32(page[22:], oggCRC(page))
	return page
}

func opusHead(channels byte, preSkip uint16) []byte {
	head := []byte("OpusHead")
	head = append(head, 1, channels)
	head = binary.LittleEndian.AppendUint16(head, preSkip)
	head = binary.LittleEndian.AppendUint32(head, 48000)
	head = binary.LittleEndian.AppendUint16(head, 0)
	return append(head, 0)
}

func opusTags() []byte {
	tags := []byte("OpusTags")
	tags = binary.LittleEndian.AppendUint32(tags, 3)
	tags = append(tags, "trx"...)
	return binary.LittleEndian.AppendUint32(tags, 0)
}

func oggStream(channels byte, preSkip uint16, packets ...[]byte) []byte {
	var stream []byte
	stream = append(stream, oggPage(0x02, 0, opusHead(channels, preSkip))...)
	stream = append(stream, oggPage(0, 1, opusTags())...)
	stream = append(stream, oggPage(0, 2, packets...)...)
	return stream
}

func TestReadOggPackets(t *testing.T) {
	long := bytes.Repeat([]byte{0xaa}, 300)
	exact := bytes.Repeat([]byte{0xbb}, 255)
	short := []byte{0xcc, 0xdd}

	reader, header, err := oggreader.NewWith(bytes.NewReader(oggStream(2, 0, long, exact, short)))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), header.Channels)

	packets, err := readOggPackets(reader)
	require.NoError(t, err)
	require.Len(t, packets, 3, "the comment header is dropped")
	assert.Equal(t, long, packets[0])
	assert.Equal(t, exact, packets[1])
	assert.Equal(t, short, packets[2])
}

func TestOpenOggCapture(t *testing.T) {
	enc, err := NewOpusEncoder(stereo48k)
	require.NoError(t, err)

	var packets [][]byte
	for _, frame := range sineFrames(stereo48k, 10) {
		payload, err := enc.Encode(frame)
		require.NoError(t, err)
		if len(payload) > 0 {
			packets = append(packets, append([]byte(nil), payload...))
		}
	}
	require.NotEmpty(t, packets)

	const preSkip = 312
	path := filepath.Join(t.TempDir(), "tone.opus")
	require.NoError(t, os.WriteFile(path, oggStream(2, preSkip, packets...), 0o644))

	dev, err := OpenCapture("ogg:"+path, testDeviceConfig(newFakeClock()))
	require.NoError(t, err)
	in, ok := dev.(*OggCapture)
	require.True(t, ok)
	defer in.Close()

	assert.Len(t, in.samples, (len(packets)*960-preSkip)*2)

	pcm := make([]int16, 1920)
	blocks := 0
	for {
		err := in.Read(pcm)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		blocks++
	}
	assert.Equal(t, len(packets), blocks, "the pre-skip leaves a final partial block")
}

func TestOpenOggCapture_Invalid(t *testing.T) {
	dir := t.TempDir()

	notOgg := filepath.Join(dir, "not.opus")
	require.NoError(t, os.WriteFile(notOgg, []byte("RIFF....WAVEfmt "), 0o644))
	_, err := OpenOggCapture(notOgg, stereo48k, newFakeClock())
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = OpenCapture("ogg:", testDeviceConfig(newFakeClock()))
	assert.ErrorIs(t, err, ErrUnknownDevice)

	_, err = OpenOggCapture(filepath.Join(dir, "missing.opus"), stereo48k, newFakeClock())
	assert.Error(t, err)
}
