// Package mpegts contains MPEG-TS utilities.
package mpegts

import (
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg1audio"
	mcmpegts "github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	"github.com/bluenviron/mediacommon/v2/pkg/rewindablereader"
)

// maximum number of reads performed while looking for codec parameters.
const maxProbeReads = 50000

type h264Params struct {
	sps []byte
	pps []byte
}

// EnhancedReader is a mpegts.Reader wrapper
// that provides codec parameters that are needed
// in order to write track headers before any packet.
type EnhancedReader struct {
	R io.Reader

	*mcmpegts.Reader

	h264Params        map[uint16]*h264Params
	mpeg1AudioHeaders map[uint16]*mpeg1audio.FrameHeader
}

// Initialize initializes EnhancedReader.
func (r *EnhancedReader) Initialize() error {
	rr := &rewindablereader.Reader{R: r.R}
	mr := &mcmpegts.Reader{R: rr}
	err := mr.Initialize()
	if err != nil {
		return err
	}

	r.h264Params = make(map[uint16]*h264Params)
	r.mpeg1AudioHeaders = make(map[uint16]*mpeg1audio.FrameHeader)
	tracksToParse := 0

	for _, track := range mr.Tracks() {
		cpid := track.PID

		switch track.Codec.(type) {
		case *mcmpegts.CodecH264:
			params := &h264Params{}
			done := false
			tracksToParse++

			mr.OnDataH264(track, func(_ int64, _ int64, au [][]byte) error {
				if done {
					return nil
				}

				for _, nalu := range au {
					if len(nalu) == 0 {
						continue
					}

					switch h264.NALUType(nalu[0] & 0x1F) {
					case h264.NALUTypeSPS:
						params.sps = nalu

					case h264.NALUTypePPS:
						params.pps = nalu
					}
				}

				if params.sps != nil && params.pps != nil {
					r.h264Params[cpid] = params
					tracksToParse--
					done = true
				}

				return nil
			})

		case *mcmpegts.CodecMPEG1Audio:
			done := false
			tracksToParse++

			mr.OnDataMPEG1Audio(track, func(_ int64, frames [][]byte) error {
				if done {
					return nil
				}

				var h mpeg1audio.FrameHeader
				err2 := h.Unmarshal(frames[0])
				if err2 != nil {
					return nil //nolint:nilerr
				}

				r.mpeg1AudioHeaders[cpid] = &h
				tracksToParse--
				done = true

				return nil
			})
		}
	}

	mr.OnDecodeError(func(_ error) {})

	for i := 0; tracksToParse > 0 && i < maxProbeReads; i++ {
		err = mr.Read()
		if err != nil {
			// parameters of remaining tracks are missing, tracks are skipped later.
			break
		}
	}

	rr.Rewind()
	r.Reader = &mcmpegts.Reader{R: rr}
	return r.Reader.Initialize()
}
