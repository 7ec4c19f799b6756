package logger

import (
	"bytes"
	"time"
)

type leveledWriteCloser interface {
	write(level Level, msg string) error
	Close() error
}

type destinationSysLog struct {
	syslog leveledWriteCloser
	buf    bytes.Buffer
}

func newDestinationSyslog(prefix string) (destination, error) {
	w, err := newSyslog(prefix)
	if err != nil {
		return nil, err
	}

	return &destinationSysLog{syslog: w}, nil
}

func (d *destinationSysLog) log(t time.Time, level Level, format string, args ...interface{}) {
	formatEntry(&d.buf, t, level, false, false, format, args)
	d.syslog.write(level, d.buf.String()) //nolint:errcheck
}

func (d *destinationSysLog) close() {
	d.syslog.Close()
}
