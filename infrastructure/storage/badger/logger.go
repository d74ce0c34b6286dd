package badger

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/felixgeelhaar/bolt/v3"
)

// boltLogger routes Badger's printf-style log lines into a bolt logger.
type boltLogger struct {
	logger *bolt.Logger
}

// NewLogger adapts a bolt logger to badger.Logger.
func NewLogger(logger *bolt.Logger) badger.Logger {
	return &boltLogger{logger: logger}
}

func format(f string, args ...any) string {
	return strings.TrimSpace(fmt.Sprintf(f, args...))
}

func (l *boltLogger) Errorf(f string, args ...any) {
	l.logger.Error().Str("component", "badger").Msg(format(f, args...))
}

func (l *boltLogger) Warningf(f string, args ...any) {
	l.logger.Warn().Str("component", "badger").Msg(format(f, args...))
}

func (l *boltLogger) Infof(f string, args ...any) {
	l.logger.Info().Str("component", "badger").Msg(format(f, args...))
}

func (l *boltLogger) Debugf(f string, args ...any) {
	l.logger.Debug().Str("component", "badger").Msg(format(f, args...))
}
