package conf

import (
	"encoding/json"
	"fmt"

	"github.com/bluenviron/mkvmux/internal/cluster"
	"github.com/bluenviron/mkvmux/internal/conf/jsonwrapper"
)

// CuePolicy is the videoCues, audioCues and subtitleCues parameter.
type CuePolicy cluster.CuePolicy

// MarshalJSON implements json.Marshaler.
func (d CuePolicy) MarshalJSON() ([]byte, error) {
	var out string

	switch cluster.CuePolicy(d) {
	case cluster.CuePolicyNone:
		out = "none"

	case cluster.CuePolicyKeyFrames:
		out = "keyFrames"

	case cluster.CuePolicyAll:
		out = "all"

	case cluster.CuePolicySparse:
		out = "sparse"

	default:
		return nil, fmt.Errorf("invalid cue policy: %v", d)
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *CuePolicy) UnmarshalJSON(b []byte) error {
	var in string
	if err := jsonwrapper.Unmarshal(b, &in); err != nil {
		return err
	}

	switch in {
	case "none":
		*d = CuePolicy(cluster.CuePolicyNone)

	case "keyFrames":
		*d = CuePolicy(cluster.CuePolicyKeyFrames)

	case "all":
		*d = CuePolicy(cluster.CuePolicyAll)

	case "sparse":
		*d = CuePolicy(cluster.CuePolicySparse)

	default:
		return fmt.Errorf("invalid cue policy: '%s'", in)
	}

	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *CuePolicy) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}
