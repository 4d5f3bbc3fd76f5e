package paidquiz

import (
	"fmt"
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// NewLogger builds the logfmt logger shared by the engine components.
// Debug lines are only emitted in verbose mode.
func NewLogger(w io.Writer, verbose bool) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	allow := level.AllowInfo()
	if verbose {
		allow = level.AllowDebug()
	}
	return level.NewFilter(logger, allow)
}

func orNop(logger log.Logger) log.Logger {
	if logger == nil {
		return log.NewNopLogger()
	}
	return logger
}

// badgerLogger routes badger's printf-style logging into a go-kit logger.
type badgerLogger struct {
	logger log.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	level.Error(b.logger).Log("component", "badger", "msg", fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	level.Warn(b.logger).Log("component", "badger", "msg", fmt.Sprintf(format, args...))
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	level.Debug(b.logger).Log("component", "badger", "msg", fmt.Sprintf(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	level.Debug(b.logger).Log("component", "badger", "msg", fmt.Sprintf(format, args...))
}
