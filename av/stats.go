package av

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/opd-ai/trx/av/rtp"
	"github.com/sirupsen/logrus"
)

// sessionReport is the per-session value of a stats report. Field order is
// the order written.
type sessionReport struct {
	RoundTripMs   float64    `json:"round_trip_ms"`
	CumLoss       int64      `json:"cum_loss"`
	RecvBandwidth float64    `json:"recv_bandwidth"`
	SendBandwidth float64    `json:"send_bandwidth"`
	Jitter        [3]float64 `json:"jitter"`
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FormatReport renders reports as one JSON object keyed by descriptor,
// preserving the order of reports.
func FormatReport(reports []rtp.Report) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range reports {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(sessionReport{
			RoundTripMs:   millis(r.Stats.RoundTrip),
			CumLoss:       r.Stats.CumulativeLoss,
			RecvBandwidth: r.Stats.RecvBandwidth,
			SendBandwidth: r.Stats.SendBandwidth,
			Jitter: [3]float64{
				millis(r.Stats.Jitter),
				millis(r.Stats.MaxJitter),
				millis(r.Stats.JitterBuffer),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode stats for %s: %w", r.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// StatsReporter writes a stats report each time it is triggered, and
// optionally on a fixed interval. It only reads session statistics and
// never blocks the pipelines.
//
// Example usage:
//
//	trigger := make(chan struct{}, 1)
//	reporter := av.NewStatsReporter(registry, os.Stdout, trigger, 0)
//	go reporter.Run(ctx)
//	trigger <- struct{}{}
type StatsReporter struct {
	source     StatsSource
	trigger    <-chan struct{}
	interval   time.Duration
	thresholds QualityThresholds

	mu  sync.Mutex
	out io.Writer
}

// NewStatsReporter creates a reporter over source writing to out. A nil
// trigger or a zero interval disables that source of reports.
func NewStatsReporter(source StatsSource, out io.Writer, trigger <-chan struct{}, interval time.Duration) *StatsReporter {
	return &StatsReporter{
		source:     source,
		trigger:    trigger,
		interval:   interval,
		thresholds: DefaultQualityThresholds(),
		out:        out,
	}
}

// Run waits for triggers until ctx is cancelled. A failed write is logged
// and does not stop the reporter.
func (r *StatsReporter) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.trigger:
		case <-tick:
		}

		if err := r.Report(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "StatsReporter.Run",
				"error":    err.Error(),
			}).Warn("Failed to write stats report")
		}
	}
}

// Report writes one report immediately.
func (r *StatsReporter) Report() error {
	reports := r.source.Snapshot()
	for _, rep := range reports {
		logrus.WithFields(logrus.Fields{
			"function":       "StatsReporter.Report",
			"session":        rep.Key,
			"round_trip":     rep.Stats.RoundTrip.String(),
			"cum_loss":       rep.Stats.CumulativeLoss,
			"remote_loss":    rep.Stats.RemoteLoss,
			"recv_bandwidth": rep.Stats.RecvBandwidth,
			"send_bandwidth": rep.Stats.SendBandwidth,
			"jitter":         rep.Stats.Jitter.String(),
			"time_jumps":     rep.Stats.TimeJumps,
			"quality":        AssessQuality(rep.Stats, r.thresholds).String(),
		}).Info("Session statistics")
	}

	data, err := FormatReport(reports)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.out.Write(append(data, '\n'))
	return err
}
