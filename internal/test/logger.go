package test

import (
	"fmt"
	"sync"

	"github.com/bluenviron/mkvmux/internal/logger"
)

type nilLogger struct{}

func (nilLogger) Log(logger.Level, string, ...interface{}) {}

// NilLogger discards every entry.
var NilLogger logger.Writer = nilLogger{}

// LogEntry is an entry captured by LogRecorder.
type LogEntry struct {
	Level   logger.Level
	Message string
}

// LogRecorder keeps every entry it receives, formatted.
type LogRecorder struct {
	mutex   sync.Mutex
	entries []LogEntry
}

// Log implements logger.Writer.
func (r *LogRecorder) Log(level logger.Level, format string, args ...interface{}) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries = append(r.entries, LogEntry{Level: level, Message: fmt.Sprintf(format, args...)})
}

// Entries returns the entries with the given level or above.
func (r *LogRecorder) Entries(minLevel logger.Level) []LogEntry {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var ret []LogEntry
	for _, e := range r.entries {
		if e.Level >= minLevel {
			ret = append(ret, e)
		}
	}
	return ret
}
