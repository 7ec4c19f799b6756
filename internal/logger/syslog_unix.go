//go:build !windows

package logger

import (
	native "log/syslog"
)

// syslogWriter sends each entry with the severity matching its level.
type syslogWriter struct {
	inner *native.Writer
}

func newSyslog(prefix string) (leveledWriteCloser, error) {
	inner, err := native.New(native.LOG_INFO|native.LOG_DAEMON, prefix)
	if err != nil {
		return nil, err
	}
	return &syslogWriter{inner: inner}, nil
}

func (w *syslogWriter) write(level Level, msg string) error {
	switch level {
	case Debug:
		return w.inner.Debug(msg)
	case Info:
		return w.inner.Info(msg)
	case Warn:
		return w.inner.Warning(msg)
	}
	return w.inner.Err(msg)
}

func (w *syslogWriter) Close() error {
	return w.inner.Close()
}
