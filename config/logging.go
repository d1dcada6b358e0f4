package config

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelForVerbosity maps the -v count to a log level.
func LevelForVerbosity(verbose int) logrus.Level {
	switch {
	case verbose <= 0:
		return logrus.WarnLevel
	case verbose == 1:
		return logrus.InfoLevel
	case verbose == 2:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// ConfigureLogger sets the level, format and output of logger from cfg.
// When a log file is configured, logs go to a size-rotated file and the
// returned closer releases it; otherwise logs go to stderr and the closer is
// nil.
func ConfigureLogger(logger *logrus.Logger, cfg *Config, stderr io.Writer) (io.Closer, error) {
	logger.SetLevel(LevelForVerbosity(cfg.Verbose))

	if cfg.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var closer io.Closer
	if cfg.LogFile != "" {
		maxSize := cfg.LogMaxSizeMB
		if maxSize <= 0 {
			maxSize = DefaultLogMaxSizeMB
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    maxSize,
			MaxBackups: 7,
			MaxAge:     7,
		}
		// lumberjack opens lazily; write a marker so a bad path fails here.
		if _, err := fmt.Fprintf(rotator, "# trx log opened %s\n", time.Now().Format(time.RFC3339)); err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		closer = rotator
		logger.SetOutput(rotator)
	} else {
		logger.SetOutput(stderr)
	}

	logger.WithFields(logrus.Fields{
		"function": "ConfigureLogger",
		"level":    logger.GetLevel().String(),
		"json":     cfg.LogJSON,
		"log_file": cfg.LogFile,
	}).Debug("Logger configured")

	return closer, nil
}
