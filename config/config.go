package config

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/opd-ai/trx/av/audio"
	"github.com/opd-ai/trx/av/rtp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override settings,
// for example TRX_JITTER=32.
const EnvPrefix = "TRX"

// Mode selects which pipelines run.
type Mode string

// Supported modes.
const (
	ModeTRX Mode = "trx"
	ModeTX  Mode = "tx"
	ModeRX  Mode = "rx"
)

// Transmits reports whether the mode runs the transmit pipeline.
func (m Mode) Transmits() bool { return m == ModeTRX || m == ModeTX }

// Receives reports whether the mode runs receive pipelines.
func (m Mode) Receives() bool { return m == ModeTRX || m == ModeRX }

// Defaults.
const (
	DefaultDevice   = audio.DeviceDefault
	DefaultBufferMs = 16
	DefaultAddr     = "127.0.0.1"
	DefaultPort     = 1350
	DefaultJitterMs = 16
	DefaultRate     = 48000
	DefaultChannels = 2
	DefaultFrame    = 960
	DefaultBitrate  = 128
	DefaultVerbose  = 1
	DefaultCodec    = audio.CodecPCM

	DefaultLogMaxSizeMB = 100
)

// explicitKeys are the settings that make up the explicit connection.
var explicitKeys = []string{"addr", "port", "tx-port", "ssrc"}

// Config is the validated configuration of one trx process.
type Config struct {
	Device   string `mapstructure:"device"`
	Capture  string `mapstructure:"capture"`
	Playback string `mapstructure:"playback"`
	BufferMs int    `mapstructure:"buffer"`

	Addr     string `mapstructure:"addr"`
	Port     uint16 `mapstructure:"port"`
	TxPort   uint16 `mapstructure:"tx-port"`
	SSRC     uint32 `mapstructure:"ssrc"`
	Extended string `mapstructure:"extended"`
	JitterMs int    `mapstructure:"jitter"`

	Rate     uint32  `mapstructure:"rate"`
	Channels uint32  `mapstructure:"channels"`
	Frame    uint32  `mapstructure:"frame"`
	Bitrate  uint32  `mapstructure:"bitrate"`
	Codec    string  `mapstructure:"codec"`
	Gain     float64 `mapstructure:"gain"`

	Mode          Mode          `mapstructure:"mode"`
	Verbose       int           `mapstructure:"verbose"`
	PIDFile       string        `mapstructure:"pid-file"`
	StatsInterval time.Duration `mapstructure:"stats-interval"`
	NoRTCP        bool          `mapstructure:"no-rtcp"`
	LogFile       string        `mapstructure:"log-file"`
	LogMaxSizeMB  int           `mapstructure:"log-max-size"`
	LogJSON       bool          `mapstructure:"log-json"`

	// Connections is resolved from the explicit and extended settings by
	// Validate.
	Connections rtp.ConnectionMode `mapstructure:"-"`

	explicitSet bool
	ssrcSet     bool
}

// NewFlagSet declares every command-line flag. -h is the remote address,
// so help is only available as --help.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringP("device", "d", DefaultDevice, "device name for both capture and playback")
	fs.StringP("capture", "C", "", "capture device: default, tone[:HZ] or wav:PATH")
	fs.StringP("playback", "P", "", "playback device: default, null or wav:PATH")
	fs.IntP("buffer", "m", DefaultBufferMs, "device buffer time (milliseconds)")

	fs.StringP("addr", "h", DefaultAddr, "remote address (explicit connection)")
	fs.Uint16P("port", "p", DefaultPort, "local receive port (explicit connection)")
	fs.Uint16P("tx-port", "s", DefaultPort, "remote port (explicit connection)")
	fs.Uint32P("ssrc", "S", 0, "SSRC of sent packets (explicit connection, random when unset)")
	fs.StringP("extended", "x", "", "connection list SSRC@RXPORT#ADDR:PORT[,...]")
	fs.IntP("jitter", "j", DefaultJitterMs, "jitter buffer budget (milliseconds)")

	fs.Uint32P("rate", "r", DefaultRate, "sample rate (Hz)")
	fs.Uint32P("channels", "c", DefaultChannels, "number of channels")
	fs.Uint32P("frame", "f", DefaultFrame, "frame size (samples per channel)")
	fs.Uint32P("bitrate", "b", DefaultBitrate, "target bitrate (kbps)")
	fs.StringP("codec", "e", DefaultCodec, "codec: pcm or opus")
	fs.Float64("gain", 1.0, "capture gain (0 to 4)")

	fs.StringP("mode", "M", string(ModeTRX), "pipelines to run: trx, tx or rx")
	fs.IntP("verbose", "v", DefaultVerbose, "verbosity: 0 warn, 1 info, 2 debug, 3 trace")
	fs.StringP("pid-file", "D", "", "write the process ID to this file")
	fs.Duration("stats-interval", 0, "also report stats at this interval (0 disables)")
	fs.Bool("no-rtcp", false, "disable the RTCP side channel")
	fs.String("log-file", "", "write logs to this file instead of stderr")
	fs.Int("log-max-size", DefaultLogMaxSizeMB, "rotate the log file after this many megabytes")
	fs.Bool("log-json", false, "log in JSON format")
	fs.String("config", "", "configuration file")
	fs.Bool("help", false, "show this help")

	return fs
}

// Load parses args with the flags of NewFlagSet and returns the validated
// configuration. It returns pflag.ErrHelp after printing usage to out when
// --help is given.
func Load(args []string, out io.Writer) (*Config, error) {
	fs := NewFlagSet("trx")
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: trx [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if help, _ := fs.GetBool("help"); help {
		fs.Usage()
		return nil, pflag.ErrHelp
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", ErrInvalidConfig, fs.Args())
	}
	return FromFlags(fs)
}

// FromFlags builds the validated configuration from a parsed flag set
// declared by NewFlagSet, layering the config file and environment under
// the flags the user changed.
func FromFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "FromFlags",
			"path":     v.ConfigFileUsed(),
		}).Debug("Read configuration file")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	for _, key := range explicitKeys {
		if isSet(v, fs, key) {
			cfg.explicitSet = true
		}
	}
	cfg.ssrcSet = isSet(v, fs, "ssrc")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// isSet reports whether key was given by flag, environment or config file,
// as opposed to taking its default.
func isSet(v *viper.Viper, fs *pflag.FlagSet, key string) bool {
	if f := fs.Lookup(key); f != nil && f.Changed {
		return true
	}
	if v.InConfig(key) {
		return true
	}
	_, ok := os.LookupEnv(EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_")))
	return ok
}

// Validate checks every setting and resolves the connection mode. It
// acquires no resources.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	if c.Mode == "" {
		c.Mode = ModeTRX
	}
	switch c.Mode {
	case ModeTRX, ModeTX, ModeRX:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownMode, c.Mode))
	}

	if err := c.Format().Validate(); err != nil {
		errs = append(errs, err)
	}
	check(c.Bitrate > 0, "bitrate must be positive")
	check(c.BufferMs > 0, "buffer time must be positive, got %d ms", c.BufferMs)
	check(c.JitterMs > 0, "jitter budget must be positive, got %d ms", c.JitterMs)
	check(c.Verbose >= 0, "verbosity cannot be negative")
	check(c.StatsInterval >= 0, "stats interval cannot be negative")
	check(c.LogMaxSizeMB >= 0, "log file size cannot be negative")
	check(c.Gain >= 0 && c.Gain <= audio.MaxGain, "gain %.2f outside [0, %.1f]", c.Gain, audio.MaxGain)

	switch strings.ToLower(c.Codec) {
	case audio.CodecPCM:
	case audio.CodecOpus:
		if c.Mode.Transmits() {
			if err := audio.ValidateOpusEncoding(c.Format()); err != nil {
				errs = append(errs, err)
			}
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", audio.ErrUnknownCodec, c.Codec))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if !c.ssrcSet && c.SSRC == 0 {
		c.SSRC = rand.Uint32()
	}
	explicit := rtp.Descriptor{
		SSRC:       c.SSRC,
		RxPort:     c.Port,
		RemoteAddr: c.Addr,
		TxPort:     c.TxPort,
	}
	mode, err := rtp.ResolveConnectionMode(explicit, c.explicitSet, c.Extended)
	if err != nil {
		return err
	}
	if _, ok := mode.(rtp.Explicit); ok {
		if c.Addr == "" || c.Port == 0 || c.TxPort == 0 {
			return fmt.Errorf("%w: explicit connection needs an address and non-zero ports", ErrInvalidConfig)
		}
	}
	if !c.NoRTCP {
		if err := rtp.CheckRTCPPorts(mode.Descriptors()); err != nil {
			return err
		}
	}
	c.Connections = mode

	logrus.WithFields(logrus.Fields{
		"function":    "Config.Validate",
		"mode":        c.Mode,
		"codec":       c.Codec,
		"connections": len(mode.Descriptors()),
	}).Debug("Configuration validated")

	return nil
}

// MarkExplicit records that explicit connection parameters were supplied,
// for configurations built in code rather than by Load.
func (c *Config) MarkExplicit() {
	c.explicitSet = true
	c.ssrcSet = true
}

// Format returns the audio format shared by codecs and devices.
func (c *Config) Format() audio.Format {
	return audio.Format{
		Rate:         c.Rate,
		Channels:     c.Channels,
		FrameSamples: c.Frame,
		BitRate:      c.Bitrate,
	}
}

// CaptureDevice returns the capture device name, falling back to Device.
func (c *Config) CaptureDevice() string {
	if c.Capture != "" {
		return c.Capture
	}
	return c.Device
}

// PlaybackDevice returns the playback device name, falling back to Device.
func (c *Config) PlaybackDevice() string {
	if c.Playback != "" {
		return c.Playback
	}
	return c.Device
}

// BufferTime returns the device buffer time.
func (c *Config) BufferTime() time.Duration {
	return time.Duration(c.BufferMs) * time.Millisecond
}

// JitterBudget returns the jitter buffer budget.
func (c *Config) JitterBudget() time.Duration {
	return time.Duration(c.JitterMs) * time.Millisecond
}

// SessionOptions returns the RTP session settings.
func (c *Config) SessionOptions() rtp.SessionOptions {
	opts := rtp.DefaultSessionOptions(c.JitterBudget())
	opts.DisableRTCP = c.NoRTCP
	opts.SendOnly = c.Mode == ModeTX
	return opts
}

// Descriptors returns the resolved connection descriptors in order.
func (c *Config) Descriptors() []rtp.Descriptor {
	if c.Connections == nil {
		return nil
	}
	return c.Connections.Descriptors()
}
