package rtp

import (
	"fmt"
	"time"

	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
)

// ntpEpochOffset is the number of seconds between 1900 and 1970.
const ntpEpochOffset = 2208988800

// ntpTime converts t to a 64-bit NTP timestamp.
func ntpTime(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return secs<<32 | frac
}

// ntpShort returns the middle 32 bits of the NTP timestamp for t, the unit
// RTCP uses for LSR and DLSR (1/65536 seconds).
func ntpShort(t time.Time) uint32 {
	return uint32(ntpTime(t) >> 16)
}

func shortToDuration(v uint32) time.Duration {
	return time.Duration(uint64(v) * uint64(time.Second) >> 16)
}

// buildReport assembles the compound RTCP packet for this session: a
// sender report once media has been sent, otherwise a receiver report,
// followed by an SDES CNAME chunk.
func (s *Session) buildReport(now time.Time) []rtcp.Packet {
	var reports []rtcp.ReceptionReport
	if rr, ok := s.receptionReport(now); ok {
		reports = append(reports, rr)
	}

	var first rtcp.Packet
	if sent := s.packetsSent.Load(); sent > 0 {
		first = &rtcp.SenderReport{
			SSRC:        s.desc.SSRC,
			NTPTime:     ntpTime(now),
			RTPTime:     s.lastSentTS.Load(),
			PacketCount: uint32(sent),
			OctetCount:  uint32(s.octetsSent.Load()),
			Reports:     reports,
		}
	} else {
		first = &rtcp.ReceiverReport{
			SSRC:    s.desc.SSRC,
			Reports: reports,
		}
	}

	sdes := &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{{
			Source: s.desc.SSRC,
			Items: []rtcp.SourceDescriptionItem{{
				Type: rtcp.SDESCNAME,
				Text: s.cname,
			}},
		}},
	}

	return []rtcp.Packet{first, sdes}
}

// receptionReport describes what this session has received from the
// latched remote source since the previous report.
func (s *Session) receptionReport(now time.Time) (rtcp.ReceptionReport, bool) {
	r := &s.recv
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.haveSSRC || !r.haveSeq {
		return rtcp.ReceptionReport{}, false
	}

	lostInterval := r.lost - r.reportLost
	expectedInterval := int64(r.received-r.reportReceived) + lostInterval
	var fraction uint8
	if expectedInterval > 0 && lostInterval > 0 {
		fraction = uint8((lostInterval << 8) / expectedInterval)
	}
	r.reportLost = r.lost
	r.reportReceived = r.received

	totalLost := r.lost
	if totalLost < 0 {
		totalLost = 0
	}
	if totalLost > 0x7fffff {
		totalLost = 0x7fffff
	}

	var delay uint32
	if r.lastSR != 0 {
		delay = uint32(now.Sub(r.lastSRArrival) * 65536 / time.Second)
	}

	jitter, _ := s.jitter.Jitter()

	return rtcp.ReceptionReport{
		SSRC:               r.remoteSSRC,
		FractionLost:       fraction,
		TotalLost:          uint32(totalLost),
		LastSequenceNumber: r.cycles | uint32(r.maxSeq),
		Jitter:             uint32(jitter),
		LastSenderReport:   r.lastSR,
		Delay:              delay,
	}, true
}

// handleRTCP processes one compound RTCP datagram from the remote peer.
func (s *Session) handleRTCP(data []byte, now time.Time) error {
	packets, err := rtcp.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("failed to unmarshal RTCP packet: %w", err)
	}

	for _, pkt := range packets {
		switch p := pkt.(type) {
		case *rtcp.SenderReport:
			s.recv.noteSenderReport(p.NTPTime, now)
			s.processReceptionReports(p.Reports, now)
		case *rtcp.ReceiverReport:
			s.processReceptionReports(p.Reports, now)
		case *rtcp.Goodbye:
			logrus.WithFields(logrus.Fields{
				"function": "Session.handleRTCP",
				"session":  s.desc.String(),
				"sources":  p.Sources,
			}).Info("Remote source said goodbye")
		}
	}
	return nil
}

// processReceptionReports takes the peer's loss count and the round-trip
// time from any report block that describes our own stream (RFC 3550 6.4.1).
func (s *Session) processReceptionReports(reports []rtcp.ReceptionReport, now time.Time) {
	for _, rr := range reports {
		if rr.SSRC != s.desc.SSRC {
			continue
		}
		s.remoteLoss.Store(int64(rr.TotalLost))
		if rr.LastSenderReport == 0 {
			continue
		}
		rtt := ntpShort(now) - rr.LastSenderReport - rr.Delay
		if int32(rtt) < 0 {
			continue
		}
		s.roundTrip.Store(int64(shortToDuration(rtt)))

		logrus.WithFields(logrus.Fields{
			"function":      "Session.processReceptionReports",
			"session":       s.desc.String(),
			"round_trip":    shortToDuration(rtt).String(),
			"fraction_lost": rr.FractionLost,
		}).Trace("Updated round-trip estimate")
	}
}
