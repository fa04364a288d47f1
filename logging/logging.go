package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogArgs can be embedded in a go-arg Args struct.
type LogArgs struct {
	LogLevel string `arg:"-l, --log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

type Logger struct {
	*logrus.Logger
}

var (
	mu      sync.Mutex
	loggers []*Logger
)

// NewLogger returns a logger writing to stderr at the given level. An unknown
// level falls back to info.
func NewLogger(levelStr string) *Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	l.Level = parseLevel(levelStr)

	logger := &Logger{Logger: l}
	mu.Lock()
	loggers = append(loggers, logger)
	mu.Unlock()
	return logger
}

// SetLevel changes the level of every logger made with NewLogger, so library
// packages follow the level given on the command line.
func SetLevel(levelStr string) {
	level := parseLevel(levelStr)
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		l.SetLevel(level)
	}
}

func parseLevel(levelStr string) logrus.Level {
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
