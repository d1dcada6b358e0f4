package av

import (
	"fmt"
	"time"

	"github.com/opd-ai/trx/av/rtp"
)

// QualityLevel rates the reception of one session.
type QualityLevel int

const (
	// QualityExcellent indicates negligible loss and jitter
	QualityExcellent QualityLevel = iota
	// QualityGood indicates minor loss or jitter
	QualityGood
	// QualityFair indicates audible impairment
	QualityFair
	// QualityPoor indicates frequent concealment
	QualityPoor
	// QualityUnacceptable indicates a stream that is mostly lost
	QualityUnacceptable
)

// String returns the string representation of QualityLevel.
func (q QualityLevel) String() string {
	switch q {
	case QualityExcellent:
		return "Excellent"
	case QualityGood:
		return "Good"
	case QualityFair:
		return "Fair"
	case QualityPoor:
		return "Poor"
	case QualityUnacceptable:
		return "Unacceptable"
	default:
		return fmt.Sprintf("Unknown(%d)", int(q))
	}
}

// QualityThresholds are the loss and jitter boundaries between levels.
type QualityThresholds struct {
	// Packet loss thresholds (percentage)
	ExcellentPacketLoss float64
	GoodPacketLoss      float64
	FairPacketLoss      float64
	PoorPacketLoss      float64

	// Jitter thresholds
	ExcellentJitter time.Duration
	GoodJitter      time.Duration
	PoorJitter      time.Duration
}

// DefaultQualityThresholds returns thresholds typical for voice.
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		ExcellentPacketLoss: 1.0,
		GoodPacketLoss:      3.0,
		FairPacketLoss:      8.0,
		PoorPacketLoss:      15.0,
		ExcellentJitter:     20 * time.Millisecond,
		GoodJitter:          50 * time.Millisecond,
		PoorJitter:          200 * time.Millisecond,
	}
}

// LossPercent returns the share of expected packets that were lost.
func LossPercent(stats rtp.Statistics) float64 {
	if stats.CumulativeLoss <= 0 {
		return 0
	}
	expected := float64(stats.PacketsReceived) + float64(stats.CumulativeLoss)
	return float64(stats.CumulativeLoss) * 100 / expected
}

// AssessQuality rates a session from its loss and jitter. Loss is the
// primary indicator; jitter refines the rating when loss is low.
func AssessQuality(stats rtp.Statistics, th QualityThresholds) QualityLevel {
	loss := LossPercent(stats)
	switch {
	case loss >= th.PoorPacketLoss:
		return QualityUnacceptable
	case loss >= th.FairPacketLoss:
		return QualityPoor
	case loss >= th.GoodPacketLoss:
		return QualityFair
	case loss >= th.ExcellentPacketLoss:
		if stats.Jitter >= th.GoodJitter {
			return QualityFair
		}
		return QualityGood
	}

	switch {
	case stats.Jitter >= th.PoorJitter:
		return QualityFair
	case stats.Jitter >= th.ExcellentJitter:
		return QualityGood
	default:
		return QualityExcellent
	}
}
