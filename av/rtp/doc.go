// Package rtp provides the RTP transport sessions used by the audio
// pipelines.
//
// This package handles connection descriptor parsing, RTP session
// management over UDP, jitter buffering, RTCP reporting and the session
// registry shared by the transmit and receive pipelines. It uses the
// pion/rtp and pion/rtcp libraries for standards-compliant packet handling.
//
// # Connection Descriptors
//
// A Descriptor names one logical stream: SSRC, local receive port and the
// remote endpoint. Descriptors come either from discrete parameters or from
// an extended list:
//
//	mode, err := rtp.ResolveConnectionMode(explicit, explicitSet, "1001@5000#10.0.0.2:6000,1002@5001#10.0.0.3:6001")
//	if err != nil {
//	    return err // ErrConflictingConnectionModes or ErrMalformedDescriptor
//	}
//	descs := mode.Descriptors()
//
// A malformed entry rejects the whole list. Because RTCP uses each receive
// port plus one, CheckRTCPPorts rejects lists whose receive ports are
// adjacent; NewRegistry applies it unless RTCP is disabled.
//
// # Sessions
//
// Each Session binds the descriptor's receive port, sends payload type 0
// packets to the remote endpoint and runs an RTCP side channel on port+1:
//
//	session, err := rtp.NewSession(desc, rtp.DefaultSessionOptions(16*time.Millisecond))
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	err = session.SendWithTimestamp(frame, ts)
//	payload, ok := session.Receive(expectedTS)
//
// Receive never blocks: a false result means no packet is due at that
// timestamp and the caller should conceal the gap.
//
// # Jitter Buffer
//
// Received packets are held in a timestamp-ordered JitterBuffer. The buffer
// anchors its timeline on the first packet, delaying it by the jitter
// budget (or twice the measured interarrival jitter, whichever is larger).
// A packet far outside the expected window is a time jump: the registered
// callback fires once and the buffer re-anchors on that packet without
// counting the discontinuity as loss.
//
// # Registry
//
// NewRegistry opens every session or none. Membership never changes
// afterwards, so pipelines iterate Sessions() without locking, and
// Snapshot() reads per-session counters for the stats reporter.
//
// # Deterministic Testing
//
// Arrival times come from a TimeProvider, which tests replace:
//
//	type fakeClock struct{ now time.Time }
//	func (c *fakeClock) Now() time.Time { return c.now }
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package rtp
