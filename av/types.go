package av

import (
	"context"

	"github.com/opd-ai/trx/av/rtp"
)

// CaptureDevice delivers interleaved 16-bit PCM. Read blocks until pcm is
// completely filled; that wait paces the transmit pipeline.
type CaptureDevice interface {
	Read(pcm []int16) error
	Close() error
}

// PlaybackDevice consumes interleaved 16-bit PCM. Write blocks while the
// device buffer is full; that wait paces a receive pipeline.
type PlaybackDevice interface {
	Write(pcm []int16) error
	Close() error
}

// Encoder compresses one block of interleaved PCM into a payload.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
	Close() error
}

// Decoder expands a payload into interleaved PCM and returns the number of
// samples per channel written. A nil payload asks the decoder to conceal
// one missing frame.
type Decoder interface {
	Decode(payload []byte, pcm []int16) (int, error)
	Close() error
}

// Sender is the transmit side of an RTP session.
type Sender interface {
	SendWithTimestamp(payload []byte, ts uint32) error
}

// Receiver is the receive side of an RTP session. Receive never blocks.
type Receiver interface {
	Receive(ts uint32) ([]byte, bool)
}

// StatsSource supplies per-session statistics in a stable order.
type StatsSource interface {
	Snapshot() []rtp.Report
}

// Pipeline is a long-running loop that stops when ctx is cancelled.
type Pipeline interface {
	Run(ctx context.Context) error
}

// PipelineFunc adapts a function to the Pipeline interface.
type PipelineFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f PipelineFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PipelineStats counts what a pipeline has processed. Fields not relevant
// to a pipeline's direction stay zero.
type PipelineStats struct {
	Frames       uint64
	Skipped      uint64 // captured frames the encoder produced no packet for
	SendErrors   uint64
	Holes        uint64
	DecodeErrors uint64
	Timestamp    uint32
}
