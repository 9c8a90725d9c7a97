package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. Packages log through it with
// component fields instead of building their own instances.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stdout)
	Logger.SetFormatter(&logrus.JSONFormatter{})
	Logger.SetLevel(logrus.InfoLevel)
}

// Init applies the configured level and format ("json" or "text").
// An unknown level falls back to info.
func Init(level, format string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "text":
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		Logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// LogError logs err under the given component.
func LogError(component string, err error) {
	Logger.WithFields(logrus.Fields{
		"component": component,
		"error":     err.Error(),
	}).Error("Error occurred")
}
