package trx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/opd-ai/trx/av"
	"github.com/opd-ai/trx/av/audio"
	"github.com/opd-ai/trx/av/rtp"
	"github.com/opd-ai/trx/config"
	"github.com/sirupsen/logrus"
)

// Options carries the process-level hooks of an Engine.
type Options struct {
	// StatsOut receives one JSON stats report per trigger. Nil discards
	// the reports.
	StatsOut io.Writer
	// StatsTrigger requests a stats report, typically on SIGUSR1.
	StatsTrigger <-chan struct{}
	// DeviceClock paces the software audio devices; nil uses the system
	// clock.
	DeviceClock audio.Clock
}

// Engine owns every resource of one trx process: codecs, the session
// registry, audio devices and the pipelines joining them.
//
// NewEngine acquires resources in the order codec, sessions, devices and
// releases whatever it acquired, in reverse, when a step fails. Close tears
// down the same resources in reverse order and may be called any number of
// times.
type Engine struct {
	cfg   *config.Config
	clock av.FrameClock

	encoder  audio.Encoder
	decoders []audio.Decoder
	registry *rtp.Registry
	capture  audio.CaptureDevice
	playback []audio.PlaybackDevice

	transmit  *av.TransmitPipeline
	receivers []*av.ReceivePipeline
	reporter  *av.StatsReporter

	closeOnce sync.Once
	closeErr  error
}

// NewEngine builds the pipelines described by cfg. cfg is validated first
// if it has not been already.
func NewEngine(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg.Connections == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	clock, err := av.NewFrameClock(cfg.Rate, cfg.Frame, cfg.Channels, cfg.Bitrate)
	if err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, clock: clock}
	descs := cfg.Descriptors()

	logrus.WithFields(logrus.Fields{
		"function":        "NewEngine",
		"mode":            cfg.Mode,
		"codec":           cfg.Codec,
		"streams":         len(descs),
		"ts_per_frame":    clock.TSPerFrame,
		"bytes_per_frame": clock.BytesPerFrame,
	}).Info("Creating engine")

	if err := e.openCodecs(len(descs)); err != nil {
		e.release()
		return nil, err
	}

	registry, err := rtp.NewRegistry(descs, cfg.SessionOptions())
	if err != nil {
		e.release()
		return nil, err
	}
	e.registry = registry

	if err := e.openDevices(descs, opts.DeviceClock); err != nil {
		e.release()
		return nil, err
	}

	if err := e.buildPipelines(); err != nil {
		e.release()
		return nil, err
	}

	out := opts.StatsOut
	if out == nil {
		out = io.Discard
	}
	e.reporter = av.NewStatsReporter(e.registry, out, opts.StatsTrigger, cfg.StatsInterval)

	logrus.WithFields(logrus.Fields{
		"function":  "NewEngine",
		"transmit":  e.transmit != nil,
		"receivers": len(e.receivers),
	}).Info("Engine created successfully")

	return e, nil
}

func (e *Engine) openCodecs(streams int) error {
	format := e.cfg.Format()

	if e.cfg.Mode.Transmits() {
		enc, err := audio.NewEncoder(e.cfg.Codec, format)
		if err != nil {
			return fmt.Errorf("failed to create encoder: %w", err)
		}
		e.encoder = enc
	}

	if e.cfg.Mode.Receives() {
		for i := 0; i < streams; i++ {
			dec, err := audio.NewDecoder(e.cfg.Codec, format)
			if err != nil {
				return fmt.Errorf("failed to create decoder: %w", err)
			}
			e.decoders = append(e.decoders, dec)
		}
	}
	return nil
}

func (e *Engine) openDevices(descs []rtp.Descriptor, clock audio.Clock) error {
	devCfg := audio.DeviceConfig{
		Format:     e.cfg.Format(),
		BufferTime: e.cfg.BufferTime(),
		Clock:      clock,
	}

	if e.cfg.Mode.Transmits() {
		capture, err := audio.OpenCapture(e.cfg.CaptureDevice(), devCfg)
		if err != nil {
			return fmt.Errorf("failed to open capture device: %w", err)
		}
		e.capture = capture

		gained, err := audio.WithGain(capture, e.cfg.Gain)
		if err != nil {
			return err
		}
		e.capture = gained
	}

	if e.cfg.Mode.Receives() {
		name := e.cfg.PlaybackDevice()
		for _, desc := range descs {
			devName := name
			if len(descs) > 1 {
				devName = audio.StreamDeviceName(name, desc.SSRC)
			}
			dev, err := audio.OpenPlayback(devName, devCfg)
			if err != nil {
				return fmt.Errorf("failed to open playback device for %s: %w", desc, err)
			}
			e.playback = append(e.playback, dev)
		}
	}
	return nil
}

func (e *Engine) buildPipelines() error {
	sessions := e.registry.Sessions()

	if e.cfg.Mode.Transmits() {
		senders := make([]av.Sender, len(sessions))
		for i, s := range sessions {
			senders[i] = s
		}
		tx, err := av.NewTransmitPipeline(av.TransmitConfig{
			Clock:   e.clock,
			Capture: e.capture,
			Encoder: e.encoder,
			Senders: senders,
		})
		if err != nil {
			return err
		}
		e.transmit = tx
	}

	if e.cfg.Mode.Receives() {
		for i, s := range sessions {
			rx, err := av.NewReceivePipeline(av.ReceiveConfig{
				Name:     s.Descriptor().String(),
				Clock:    e.clock,
				Receiver: s,
				Decoder:  e.decoders[i],
				Playback: e.playback[i],
			})
			if err != nil {
				return err
			}
			e.receivers = append(e.receivers, rx)
		}
	}
	return nil
}

// Run starts every pipeline and the stats reporter and blocks until they
// have all stopped. It returns nil when ctx is cancelled and the first
// pipeline error otherwise. Run does not release resources; call Close.
func (e *Engine) Run(ctx context.Context) error {
	sup := av.NewSupervisor()
	if e.transmit != nil {
		sup.Add("transmit", e.transmit)
	}
	for _, rx := range e.receivers {
		sup.Add("receive "+rx.Name(), rx)
	}
	sup.AddBackground("stats", e.reporter)

	err := sup.Run(ctx)
	e.logSummary()
	return err
}

// Registry returns the sessions of the engine.
func (e *Engine) Registry() *rtp.Registry {
	return e.registry
}

// Report writes a stats report immediately.
func (e *Engine) Report() error {
	return e.reporter.Report()
}

func (e *Engine) logSummary() {
	if e.transmit != nil {
		st := e.transmit.Stats()
		logrus.WithFields(logrus.Fields{
			"function":    "Engine.Run",
			"frames":      st.Frames,
			"send_errors": st.SendErrors,
		}).Info("Transmit summary")
	}
	for _, rx := range e.receivers {
		st := rx.Stats()
		logrus.WithFields(logrus.Fields{
			"function":      "Engine.Run",
			"stream":        rx.Name(),
			"frames":        st.Frames,
			"holes":         st.Holes,
			"decode_errors": st.DecodeErrors,
		}).Info("Receive summary")
	}
}

// Close releases devices, then sessions, then codecs. Errors from every
// step are joined. Calling Close more than once is safe.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.release()
		logrus.WithFields(logrus.Fields{
			"function": "Engine.Close",
			"failed":   e.closeErr != nil,
		}).Info("Engine closed")
	})
	return e.closeErr
}

// release closes whatever has been acquired, in reverse acquisition order.
func (e *Engine) release() error {
	var errs []error
	closeAll := func(what string, closers ...io.Closer) {
		for _, c := range closers {
			if c == nil {
				continue
			}
			if err := c.Close(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Engine.release",
					"resource": what,
					"error":    err.Error(),
				}).Error("Failed to release resource")
				errs = append(errs, fmt.Errorf("%s: %w", what, err))
			}
		}
	}

	if e.capture != nil {
		closeAll("capture device", e.capture)
		e.capture = nil
	}
	for i := len(e.playback) - 1; i >= 0; i-- {
		closeAll("playback device", e.playback[i])
	}
	e.playback = nil

	if e.registry != nil {
		closeAll("sessions", e.registry)
	}

	for i := len(e.decoders) - 1; i >= 0; i-- {
		closeAll("decoder", e.decoders[i])
	}
	e.decoders = nil
	if e.encoder != nil {
		closeAll("encoder", e.encoder)
		e.encoder = nil
	}

	return errors.Join(errs...)
}
