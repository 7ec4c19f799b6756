package conf

import (
	"encoding/json"
	"fmt"

	"github.com/bluenviron/mkvmux/internal/conf/jsonwrapper"
)

// SplitMode is the splitMode parameter.
type SplitMode int

// split modes.
const (
	SplitModeSize SplitMode = iota
	SplitModeDuration
)

// MarshalJSON implements json.Marshaler.
func (d SplitMode) MarshalJSON() ([]byte, error) {
	var out string

	switch d {
	case SplitModeSize:
		out = "size"

	case SplitModeDuration:
		out = "duration"

	default:
		return nil, fmt.Errorf("invalid split mode: %v", d)
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *SplitMode) UnmarshalJSON(b []byte) error {
	var in string
	if err := jsonwrapper.Unmarshal(b, &in); err != nil {
		return err
	}

	switch in {
	case "size":
		*d = SplitModeSize

	case "duration":
		*d = SplitModeDuration

	default:
		return fmt.Errorf("invalid split mode: '%s'", in)
	}

	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *SplitMode) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}
