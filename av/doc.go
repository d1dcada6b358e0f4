// Package av implements the real-time audio pipelines of trx.
//
// A process runs one transmit pipeline and one receive pipeline per
// logical stream, all started together once every device, codec and RTP
// session is open.
//
// # Architecture
//
// The av package consists of these parts:
//
//   - FrameClock: per-pipeline constants derived from the audio format
//   - TransmitPipeline: capture, encode once, send to every destination
//   - ReceivePipeline: poll the jitter buffer, decode or conceal, play out
//   - StatsReporter: on-demand JSON statistics for every session
//   - Supervisor: runs the pipelines and joins them
//
// # Sub-Packages
//
//   - av/audio: codecs and capture/playback devices
//   - av/rtp: connection descriptors, RTP/RTCP sessions and the jitter buffer
//
// # RTP Clock
//
// Payload type 0 uses a fixed 8 kHz reference clock whatever the media
// rate, so both directions convert sample counts with ToRTPTicks:
//
//	clock, err := av.NewFrameClock(48000, 960, 2, 128)
//	// clock.TSPerFrame == 160
//
// # Pacing
//
// Neither pipeline uses a timer. The transmit loop is paced by the blocking
// CaptureDevice.Read and each receive loop by the blocking
// PlaybackDevice.Write. Receiver.Receive never blocks: a missing packet is
// the loss path, handled by asking the Decoder to conceal one frame.
//
// # Running Pipelines
//
//	tx, _ := av.NewTransmitPipeline(av.TransmitConfig{
//	    Clock:   clock,
//	    Capture: capture,
//	    Encoder: encoder,
//	    Senders: senders,
//	})
//	sup := av.NewSupervisor()
//	sup.Add("tx", tx)
//	sup.AddBackground("stats", av.NewStatsReporter(registry, os.Stdout, trigger, 0))
//	err := sup.Run(ctx)
//
// Every loop checks ctx once per iteration, before its next blocking call.
// A pipeline error ends that pipeline only; Run reports the first one after
// all pipelines have returned.
package av
