package conf

import (
	"encoding/json"
	"regexp"
	"strconv"
	"time"

	"github.com/bluenviron/mkvmux/internal/conf/jsonwrapper"
)

var reDays = regexp.MustCompile("^(-?[0-9]+)d")

const day = 24 * time.Hour

// Duration is a duration that is unmarshaled from a string.
// In addition to the standard units, days ("d") are supported.
type Duration time.Duration

func (d Duration) String() string {
	v := time.Duration(d)

	ret := ""
	if v < 0 {
		ret = "-"
		v = -v
	}

	if days := v / day; days > 0 {
		ret += strconv.FormatInt(int64(days), 10) + "d"
		v %= day
	}

	if v != 0 || ret == "" || ret == "-" {
		ret += v.String()
	}

	return ret
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func parseDuration(in string) (Duration, error) {
	var days time.Duration
	negative := false

	if m := reDays.FindStringSubmatch(in); m != nil {
		v, _ := strconv.ParseInt(m[1], 10, 64)
		if v < 0 {
			negative = true
			v = -v
		}
		days = time.Duration(v) * day
		in = in[len(m[0]):]
	}

	var rest time.Duration
	if in != "" {
		var err error
		rest, err = time.ParseDuration(in)
		if err != nil {
			return 0, err
		}
	}

	v := days + rest
	if negative {
		v = -v
	}
	return Duration(v), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var in string
	if err := jsonwrapper.Unmarshal(b, &in); err != nil {
		return err
	}

	v, err := parseDuration(in)
	if err != nil {
		return err
	}

	*d = v
	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *Duration) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}
