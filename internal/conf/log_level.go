package conf

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bluenviron/mkvmux/internal/conf/jsonwrapper"
	"github.com/bluenviron/mkvmux/internal/logger"
)

var logLevelNames = []struct {
	level logger.Level
	name  string
}{
	{logger.Debug, "debug"},
	{logger.Info, "info"},
	{logger.Warn, "warn"},
	{logger.Error, "error"},
}

// LogLevel is the logLevel parameter.
// Names are matched case-insensitively; "warning" is accepted as an alias of "warn".
type LogLevel logger.Level

// MarshalJSON implements json.Marshaler.
func (d LogLevel) MarshalJSON() ([]byte, error) {
	for _, e := range logLevelNames {
		if logger.Level(d) == e.level {
			return json.Marshal(e.name)
		}
	}
	return nil, fmt.Errorf("invalid log level: %v", int(d))
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *LogLevel) UnmarshalJSON(b []byte) error {
	var in string
	if err := jsonwrapper.Unmarshal(b, &in); err != nil {
		return err
	}

	name := strings.ToLower(in)
	if name == "warning" {
		name = "warn"
	}

	for _, e := range logLevelNames {
		if name == e.name {
			*d = LogLevel(e.level)
			return nil
		}
	}

	return fmt.Errorf("invalid log level: '%s'", in)
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *LogLevel) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}
