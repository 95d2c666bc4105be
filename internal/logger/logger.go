package logger

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Configure sets the level ("debug", "info", "warn", "error") and the
// format ("text" or "json") of every component logger
func Configure(level, format string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	base.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// SetOutput redirects all component loggers, e.g. to console and a log file
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// New creates a logger for a specific component
func New(component string) *logrus.Entry {
	return base.WithField("component", component)
}
