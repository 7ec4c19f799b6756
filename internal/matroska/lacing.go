package matroska

import (
	"bytes"

	"github.com/at-wat/ebml-go"
)

// LacingMode is the lacing used for block groups that contain multiple frames.
type LacingMode int

// lacing modes.
const (
	// LacingAuto picks the smallest encoding among fixed, Xiph and EBML lacing.
	LacingAuto LacingMode = iota
	LacingXiph
	LacingEBML
)

func equalSizes(frames [][]byte) bool {
	for _, f := range frames[1:] {
		if len(f) != len(frames[0]) {
			return false
		}
	}
	return true
}

func marshalBlock(b *ebml.Block) ([]byte, error) {
	var buf bytes.Buffer
	err := ebml.MarshalBlock(b, &buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeBlock fills the lacing of a block and returns its size once encoded.
func encodeBlock(b *ebml.Block, mode LacingMode) (int, error) {
	if len(b.Data) <= 1 {
		b.Lacing = ebml.LacingNo
		buf, err := marshalBlock(b)
		return len(buf), err
	}

	var candidates []ebml.LacingMode

	switch mode {
	case LacingXiph:
		candidates = []ebml.LacingMode{ebml.LacingXiph}

	case LacingEBML:
		candidates = []ebml.LacingMode{ebml.LacingEBML}

	default:
		if equalSizes(b.Data) {
			candidates = append(candidates, ebml.LacingFixed)
		}
		candidates = append(candidates, ebml.LacingXiph, ebml.LacingEBML)
	}

	best := ebml.LacingNo
	bestSize := -1

	for _, c := range candidates {
		b.Lacing = c
		buf, err := marshalBlock(b)
		if err != nil {
			return 0, err
		}

		if bestSize < 0 || len(buf) < bestSize {
			best = c
			bestSize = len(buf)
		}
	}

	b.Lacing = best
	return bestSize, nil
}
