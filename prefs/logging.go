package prefs

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v3"
)

// badgerLogger routes badger's printf-style logs to slog.
type badgerLogger struct {
	log *slog.Logger
}

func newLogger(log *slog.Logger) badger.Logger {
	return &badgerLogger{log: log}
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.log.Error(line(format, args))
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.log.Warn(line(format, args))
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.log.Info(line(format, args))
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.log.Debug(line(format, args))
}

// badger terminates most messages with a newline.
func line(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
