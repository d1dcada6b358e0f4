// Package limits provides centralized packet size constants and validation
// functions for the RTP transport. Every component that allocates a buffer
// for network data sizes it from this package so that the sender, the
// session reader and the codecs agree on the same bounds.
//
// # Size Hierarchy
//
//   - MaxDatagram (65507 bytes): the largest UDP payload over IPv4. Session
//     read buffers are allocated at this size so no datagram is truncated.
//
//   - MaxRTPPayload: MaxDatagram minus the fixed 12-byte RTP header. An
//     encoded audio frame larger than this cannot be sent in one packet.
//
//   - MaxRTCPPacket (1500 bytes): compound RTCP reports built by this module
//     always fit in one Ethernet MTU.
//
// # Validation
//
//	err := limits.ValidatePayload(frame)
//	if err != nil {
//	    // ErrPayloadEmpty or ErrPayloadTooLarge
//	}
//
// For custom limits, use ValidateSize directly.
package limits
