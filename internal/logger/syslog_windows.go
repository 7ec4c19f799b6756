//go:build windows

package logger

import (
	"errors"
)

func newSyslog(_ string) (leveledWriteCloser, error) {
	return nil, errors.New("syslog is not available on windows, use the file or stdout destination")
}
