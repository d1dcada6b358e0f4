package av

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TransmitConfig wires a transmit pipeline to its collaborators.
type TransmitConfig struct {
	Clock   FrameClock
	Capture CaptureDevice
	Encoder Encoder
	// Senders receive every encoded frame, in this order.
	Senders []Sender
}

// TransmitPipeline captures audio, encodes each frame once and sends the
// same payload and timestamp to every destination.
type TransmitPipeline struct {
	id      string
	clock   FrameClock
	capture CaptureDevice
	encoder Encoder
	senders []Sender

	frames     atomic.Uint64
	skipped    atomic.Uint64
	sendErrors atomic.Uint64
	timestamp  atomic.Uint32
}

// NewTransmitPipeline validates cfg and creates a pipeline. It does not
// take ownership of the collaborators; the caller closes them.
func NewTransmitPipeline(cfg TransmitConfig) (*TransmitPipeline, error) {
	if cfg.Clock.TSPerFrame == 0 || cfg.Clock.SamplesPerBlock == 0 {
		return nil, ErrInvalidClock
	}
	if cfg.Capture == nil || cfg.Encoder == nil {
		return nil, fmt.Errorf("%w: capture device and encoder are required", ErrMissingCollaborator)
	}
	if len(cfg.Senders) == 0 {
		return nil, ErrNoSenders
	}

	t := &TransmitPipeline{
		id:      uuid.NewString(),
		clock:   cfg.Clock,
		capture: cfg.Capture,
		encoder: cfg.Encoder,
		senders: append([]Sender(nil), cfg.Senders...),
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewTransmitPipeline",
		"pipeline_id":     t.id,
		"destinations":    len(t.senders),
		"ts_per_frame":    t.clock.TSPerFrame,
		"bytes_per_frame": t.clock.BytesPerFrame,
	}).Info("Transmit pipeline created")

	return t, nil
}

// Run loops until ctx is cancelled or a capture or encode error occurs.
// A capture device reporting io.EOF ends the pipeline without error.
// Failed sends are counted and logged; the remaining destinations still
// receive the frame.
func (t *TransmitPipeline) Run(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"function":    "TransmitPipeline.Run",
		"pipeline_id": t.id,
	}).Info("Transmit pipeline started")

	pcm := make([]int16, t.clock.SamplesPerBlock)
	ts := uint32(0)

	for {
		select {
		case <-ctx.Done():
			t.logStopped("context cancelled")
			return nil
		default:
		}

		if err := t.capture.Read(pcm); err != nil {
			if errors.Is(err, io.EOF) {
				t.logStopped("capture exhausted")
				return nil
			}
			return fmt.Errorf("%w: %w", ErrCaptureFailed, err)
		}

		payload, err := t.encoder.Encode(pcm)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEncodeFailed, err)
		}

		// An encoder priming its lookahead has no packet yet; the frame's
		// time still passes.
		if len(payload) == 0 {
			t.skipped.Add(1)
			ts += t.clock.TSPerFrame
			t.timestamp.Store(ts)
			continue
		}

		for i, s := range t.senders {
			if err := s.SendWithTimestamp(payload, ts); err != nil {
				t.sendErrors.Add(1)
				logrus.WithFields(logrus.Fields{
					"function":    "TransmitPipeline.Run",
					"pipeline_id": t.id,
					"destination": i,
					"timestamp":   ts,
					"error":       err.Error(),
				}).Debug("Send failed")
			}
		}

		t.frames.Add(1)
		ts += t.clock.TSPerFrame
		t.timestamp.Store(ts)
	}
}

// Stats returns the pipeline counters. Timestamp is the RTP timestamp the
// next frame will carry.
func (t *TransmitPipeline) Stats() PipelineStats {
	return PipelineStats{
		Frames:     t.frames.Load(),
		Skipped:    t.skipped.Load(),
		SendErrors: t.sendErrors.Load(),
		Timestamp:  t.timestamp.Load(),
	}
}

func (t *TransmitPipeline) logStopped(reason string) {
	logrus.WithFields(logrus.Fields{
		"function":    "TransmitPipeline.Run",
		"pipeline_id": t.id,
		"reason":      reason,
		"frames":      t.frames.Load(),
		"skipped":     t.skipped.Load(),
		"send_errors": t.sendErrors.Load(),
	}).Info("Transmit pipeline stopped")
}
