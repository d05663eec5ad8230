package logging

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config defines console logging.
type Config struct {
	// Log level, e.g. info, debug, warn
	Level string
	// Logging format, either text or json
	Format string
}

var validLogFormats = map[string]bool{
	"":     true,
	"text": true,
	"json": true,
}

// ConfigureLogging sets up the standard logrus logger with sensible defaults for long-running commands.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
}

// ConfigureCommandLineLogging sets up logging for short-lived command line tools that write their results to
// stdout. Log messages are printed bare on stderr.
func ConfigureCommandLineLogging() {
	log.SetFormatter(&CommandLineFormatter{})
	log.SetOutput(os.Stderr)
}

// Apply configures the standard logger from config. An empty level or format keeps the current setting.
func Apply(config Config) error {
	if !validLogFormats[strings.ToLower(config.Format)] {
		return errors.Errorf("unknown log format %q, expected text or json", config.Format)
	}
	if config.Level != "" {
		level, err := log.ParseLevel(config.Level)
		if err != nil {
			return errors.WithStack(err)
		}
		log.SetLevel(level)
	}
	if strings.ToLower(config.Format) == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}
