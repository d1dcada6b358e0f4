package av

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/opd-ai/trx/limits"
	"github.com/sirupsen/logrus"
)

// ReceiveConfig wires one receive pipeline to its collaborators.
type ReceiveConfig struct {
	// Name labels the stream in logs, usually the descriptor string.
	Name     string
	Clock    FrameClock
	Receiver Receiver
	Decoder  Decoder
	Playback PlaybackDevice
}

// ReceivePipeline plays out one stream: it polls the session for the
// payload due at its timestamp cursor, decodes it or conceals its absence,
// and writes the result to the playback device.
type ReceivePipeline struct {
	id       string
	name     string
	clock    FrameClock
	receiver Receiver
	decoder  Decoder
	playback PlaybackDevice

	frames       atomic.Uint64
	holes        atomic.Uint64
	decodeErrors atomic.Uint64
	cursor       atomic.Uint32
}

// NewReceivePipeline validates cfg and creates a pipeline. It does not take
// ownership of the collaborators.
func NewReceivePipeline(cfg ReceiveConfig) (*ReceivePipeline, error) {
	if cfg.Clock.Rate == 0 || cfg.Clock.Channels == 0 || cfg.Clock.FrameSamples == 0 {
		return nil, ErrInvalidClock
	}
	if cfg.Receiver == nil || cfg.Decoder == nil || cfg.Playback == nil {
		return nil, fmt.Errorf("%w: receiver, decoder and playback device are required", ErrMissingCollaborator)
	}

	r := &ReceivePipeline{
		id:       uuid.NewString(),
		name:     cfg.Name,
		clock:    cfg.Clock,
		receiver: cfg.Receiver,
		decoder:  cfg.Decoder,
		playback: cfg.Playback,
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewReceivePipeline",
		"pipeline_id": r.id,
		"stream":      r.name,
	}).Info("Receive pipeline created")

	return r, nil
}

// Run loops until ctx is cancelled or a concealment or playback error
// occurs. The cursor starts at zero and advances by the RTP ticks of the
// audio actually produced, whether decoded or concealed.
func (r *ReceivePipeline) Run(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"function":    "ReceivePipeline.Run",
		"pipeline_id": r.id,
		"stream":      r.name,
	}).Info("Receive pipeline started")

	size := limits.MaxFrameSamples(r.clock.Rate, r.clock.Channels)
	if block := int(r.clock.FrameSamples * r.clock.Channels); block > size {
		size = block
	}
	pcm := make([]int16, size)
	channels := int(r.clock.Channels)
	cursor := uint32(0)

	for {
		select {
		case <-ctx.Done():
			r.logStopped()
			return nil
		default:
		}

		n, err := r.produce(cursor, pcm)
		if err != nil {
			return err
		}

		if err := r.playback.Write(pcm[:n*channels]); err != nil {
			return fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
		}

		r.frames.Add(1)
		cursor += ToRTPTicks(uint32(n), r.clock.Rate)
		r.cursor.Store(cursor)
	}
}

// produce fills pcm with the audio due at cursor and returns the samples
// per channel written.
func (r *ReceivePipeline) produce(cursor uint32, pcm []int16) (int, error) {
	if payload, ok := r.receiver.Receive(cursor); ok {
		n, err := r.decoder.Decode(payload, pcm)
		if err == nil && n > 0 {
			return n, nil
		}
		r.decodeErrors.Add(1)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "ReceivePipeline.produce",
				"pipeline_id": r.id,
				"timestamp":   cursor,
				"error":       err.Error(),
			}).Debug("Decode failed, concealing")
		}
	} else {
		r.holes.Add(1)
	}

	n, err := r.decoder.Decode(nil, pcm)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConcealmentFailed, err)
	}
	if n <= 0 {
		// A decoder with nothing to repeat still has to move the cursor.
		n = int(r.clock.FrameSamples)
		clear(pcm[:n*int(r.clock.Channels)])
	}
	return n, nil
}

// Name returns the stream label given in ReceiveConfig.
func (r *ReceivePipeline) Name() string {
	return r.name
}

// Stats returns the pipeline counters. Timestamp is the current cursor.
func (r *ReceivePipeline) Stats() PipelineStats {
	return PipelineStats{
		Frames:       r.frames.Load(),
		Holes:        r.holes.Load(),
		DecodeErrors: r.decodeErrors.Load(),
		Timestamp:    r.cursor.Load(),
	}
}

func (r *ReceivePipeline) logStopped() {
	logrus.WithFields(logrus.Fields{
		"function":      "ReceivePipeline.Run",
		"pipeline_id":   r.id,
		"stream":        r.name,
		"frames":        r.frames.Load(),
		"holes":         r.holes.Load(),
		"decode_errors": r.decodeErrors.Load(),
	}).Info("Receive pipeline stopped")
}
