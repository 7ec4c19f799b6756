package conf

import (
	"encoding/json"
	"fmt"

	"github.com/bluenviron/mkvmux/internal/conf/jsonwrapper"
	"github.com/bluenviron/mkvmux/internal/matroska"
)

// Lacing is the lacing parameter.
type Lacing matroska.LacingMode

// MarshalJSON implements json.Marshaler.
func (d Lacing) MarshalJSON() ([]byte, error) {
	var out string

	switch matroska.LacingMode(d) {
	case matroska.LacingAuto:
		out = "auto"

	case matroska.LacingXiph:
		out = "xiph"

	case matroska.LacingEBML:
		out = "ebml"

	default:
		return nil, fmt.Errorf("invalid lacing: %v", d)
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Lacing) UnmarshalJSON(b []byte) error {
	var in string
	if err := jsonwrapper.Unmarshal(b, &in); err != nil {
		return err
	}

	switch in {
	case "auto":
		*d = Lacing(matroska.LacingAuto)

	case "xiph":
		*d = Lacing(matroska.LacingXiph)

	case "ebml":
		*d = Lacing(matroska.LacingEBML)

	default:
		return fmt.Errorf("invalid lacing: '%s'", in)
	}

	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *Lacing) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}
