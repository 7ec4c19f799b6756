package logger

import (
	"github.com/gookit/color"
)

// Level is a log level.
type Level int

// Log levels, from the most verbose.
const (
	Debug Level = iota + 1
	Info
	Warn
	Error
)

// Writer is implemented by everything that can receive log entries:
// the Logger itself and the components that prefix and forward to it.
type Writer interface {
	Log(Level, string, ...interface{})
}

// tag returns the three-letter label printed in front of each entry.
func (l Level) tag() string {
	switch l {
	case Debug:
		return "DEB"
	case Info:
		return "INF"
	case Warn:
		return "WAR"
	}
	return "ERR"
}

func (l Level) colorCode() string {
	switch l {
	case Debug:
		return color.Debug.Code()
	case Info:
		return color.Green.Code()
	case Warn:
		return color.Warn.Code()
	}
	return color.Error.Code()
}
