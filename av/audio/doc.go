// Package audio provides the codecs and software audio devices used by the
// trx pipelines.
//
// # Codecs
//
// NewEncoder and NewDecoder create codecs by name:
//
//   - pcm: 16-bit big-endian linear PCM (L16)
//   - opus: Opus through github.com/thesyncim/gopus, packets capped at the
//     bitrate budget of one frame (Format.FrameBytes)
//
// Every decoder conceals a missing frame when Decode is called with a nil
// payload. The pcm decoder repeats the last good frame at halving gain for
// a few frames, then falls to silence; the opus decoder uses the codec's
// loss concealment.
//
//	dec, err := audio.NewDecoder("pcm", audio.Format{Rate: 48000, Channels: 2, FrameSamples: 960})
//	n, err := dec.Decode(payload, pcm) // n samples per channel
//	n, err = dec.Decode(nil, pcm)      // concealment
//
// Frame sizes must be a legal Opus duration (2.5, 5, 10, 20, 40 or 60 ms)
// at the configured rate; ValidateFrameSize checks this.
//
// # Devices
//
// OpenCapture and OpenPlayback open devices by name: "tone[:HZ]",
// "wav:PATH" and "ogg:PATH" for capture, "null" and "wav:PATH" for playback. "default"
// selects the tone generator for capture and the null sink for playback.
//
// Software devices block like hardware ones. A capture device returns a
// block only after the block's duration has elapsed, and a playback device
// blocks while more than its buffer time is queued. The pipelines rely on
// this for pacing. A Clock can be injected to run devices without sleeping.
//
// WAV and Ogg Opus files at another rate or channel count are converted on
// open with the speex-derived resampler from github.com/oov/audio. Ogg
// pages are read with pion/opus's oggreader.
package audio
