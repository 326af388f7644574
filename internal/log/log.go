package log

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	SetLevel(os.Getenv("LOG_LEVEL"))
}

// SetLevel applies a level by name. Unknown or empty names fall back to
// info rather than failing startup.
func SetLevel(name string) {
	level, err := logrus.ParseLevel(strings.ToLower(name))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	return logger
}
