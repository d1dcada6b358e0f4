// Package trx runs real-time multi-stream audio over RTP.
//
// An Engine ties together the pieces of one process: the codec, a registry
// of RTP sessions (one per connection descriptor), the audio devices and
// the pipelines moving audio between them. The transmit pipeline captures
// audio, encodes each frame once and sends it to every session; each
// receive pipeline plays out one session's stream, concealing lost frames.
//
//	cfg, err := config.Load(os.Args[1:], os.Stderr)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine, err := trx.NewEngine(cfg, trx.Options{StatsOut: os.Stdout})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	if err := engine.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// The av package holds the pipelines and the 8 kHz RTP clock arithmetic,
// av/rtp the sessions and connection descriptors, av/audio the codecs and
// devices, and config the flag, environment and file configuration.
package trx
