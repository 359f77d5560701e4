// Package logging sets up the client logger. The terminal belongs to the UI,
// so entries go to a file when enabled and are discarded otherwise.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger appending to file when enabled. The returned closer
// releases the file.
func New(enabled bool, file, level string) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		DisableColors:   true,
	})

	if !enabled {
		log.SetOutput(io.Discard)
		log.SetLevel(logrus.PanicLevel)
		return log, nopCloser{}, nil
	}

	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	log.SetOutput(f)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("invalid log level, defaulting to info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log, f, nil
}
