package conf

import (
	"encoding/json"
	"fmt"
	"strconv"

	"code.cloudfoundry.org/bytefmt"

	"github.com/bluenviron/mkvmux/internal/conf/jsonwrapper"
)

// StringSize is a byte count written as "700M", "1.5G" or a bare number of bytes.
// JSON numbers are accepted too.
type StringSize uint64

// MarshalJSON implements json.Marshaler.
func (s StringSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(bytefmt.ByteSize(uint64(s)))
}

func parseSize(in string) (StringSize, error) {
	if n, err := strconv.ParseUint(in, 10, 64); err == nil {
		return StringSize(n), nil
	}

	v, err := bytefmt.ToBytes(in)
	if err != nil {
		return 0, fmt.Errorf("invalid size '%s': %w", in, err)
	}
	return StringSize(v), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringSize) UnmarshalJSON(b []byte) error {
	var n uint64
	if err := json.Unmarshal(b, &n); err == nil {
		*s = StringSize(n)
		return nil
	}

	var in string
	if err := jsonwrapper.Unmarshal(b, &in); err != nil {
		return err
	}

	v, err := parseSize(in)
	if err != nil {
		return err
	}
	*s = v

	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (s *StringSize) UnmarshalEnv(_ string, v string) error {
	sz, err := parseSize(v)
	if err != nil {
		return err
	}
	*s = sz
	return nil
}
