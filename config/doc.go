// Package config builds the runtime configuration of the trx tool.
//
// Settings are read, in increasing priority, from built-in defaults, an
// optional configuration file (--config, any format viper understands),
// TRX_* environment variables and command-line flags. Load parses its own
// arguments and FromFlags accepts a flag set already parsed elsewhere, such
// as by a cobra command. Both validate the result, including the choice
// between explicit and extended connection parameters, so that a bad
// configuration is rejected before any codec, session or device is created.
//
// ConfigureLogger applies the verbosity and log output settings to a
// logrus logger, rotating the log file by size when one is configured.
package config
