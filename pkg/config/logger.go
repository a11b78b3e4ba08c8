package config

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// InitLogger configures the global logrus logger. "json" selects the JSON formatter,
// anything else the text formatter with full timestamps.
func InitLogger(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)

	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
