// internal/logger/logger.go
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the process logger: JSON in production, text with full timestamps elsewhere.
func New(environment, level string) *logrus.Logger {
	return NewWithOutput(os.Stdout, environment, level)
}

func NewWithOutput(out io.Writer, environment, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	if environment == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	return log
}

// Component returns an entry tagged with the component name.
func Component(log logrus.FieldLogger, name string) *logrus.Entry {
	return log.WithField("component", name)
}

// Discard is used by tests and tools that do not want output.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}
