// Package h264conf contains the H264 decoder configuration record.
package h264conf

import (
	"fmt"
)

// Conf is a AVCDecoderConfigurationRecord, used as CodecPrivate of H264 tracks.
type Conf struct {
	SPS [][]byte
	PPS [][]byte
}

func readList(buf []byte, pos int, count int) ([][]byte, int, error) {
	ret := make([][]byte, count)

	for i := 0; i < count; i++ {
		if (len(buf) - pos) < 2 {
			return nil, 0, fmt.Errorf("not enough bits")
		}

		le := int(uint16(buf[pos])<<8 | uint16(buf[pos+1]))
		pos += 2

		if (len(buf) - pos) < le {
			return nil, 0, fmt.Errorf("not enough bits")
		}

		ret[i] = buf[pos : pos+le]
		pos += le
	}

	return ret, pos, nil
}

// Unmarshal decodes a Conf from bytes.
func (c *Conf) Unmarshal(buf []byte) error {
	if len(buf) < 7 {
		return fmt.Errorf("not enough bits")
	}

	if buf[0] != 1 {
		return fmt.Errorf("unsupported version %d", buf[0])
	}

	var err error
	pos := 6
	c.SPS, pos, err = readList(buf, pos, int(buf[5]&0x1F))
	if err != nil {
		return err
	}

	if (len(buf) - pos) < 1 {
		return fmt.Errorf("not enough bits")
	}

	ppsCount := int(buf[pos])
	pos++

	c.PPS, _, err = readList(buf, pos, ppsCount)
	return err
}

func listSize(l [][]byte) int {
	n := 0
	for _, e := range l {
		n += 2 + len(e)
	}
	return n
}

func writeList(buf []byte, pos int, l [][]byte) int {
	for _, e := range l {
		buf[pos] = byte(len(e) >> 8)
		buf[pos+1] = byte(len(e))
		pos += 2
		pos += copy(buf[pos:], e)
	}
	return pos
}

// Marshal encodes a Conf into bytes.
func (c Conf) Marshal() ([]byte, error) {
	if len(c.SPS) == 0 || len(c.SPS) > 31 {
		return nil, fmt.Errorf("invalid SPS count: %d", len(c.SPS))
	}
	if len(c.SPS[0]) < 4 {
		return nil, fmt.Errorf("SPS is too short")
	}
	if len(c.PPS) == 0 || len(c.PPS) > 255 {
		return nil, fmt.Errorf("invalid PPS count: %d", len(c.PPS))
	}

	buf := make([]byte, 7+listSize(c.SPS)+listSize(c.PPS))

	buf[0] = 1
	buf[1] = c.SPS[0][1] // profile
	buf[2] = c.SPS[0][2] // constraints
	buf[3] = c.SPS[0][3] // level
	buf[4] = 0xFC | 3    // NALU length size - 1
	buf[5] = 0xE0 | byte(len(c.SPS))

	pos := writeList(buf, 6, c.SPS)

	buf[pos] = byte(len(c.PPS))
	pos++

	writeList(buf, pos, c.PPS)

	return buf, nil
}
