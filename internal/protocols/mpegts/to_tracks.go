package mpegts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/ac3"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg1audio"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	mcopus "github.com/bluenviron/mediacommon/v2/pkg/codecs/opus"
	mcmpegts "github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/bluenviron/mkvmux/internal/cluster"
	"github.com/bluenviron/mkvmux/internal/h264conf"
	"github.com/bluenviron/mkvmux/internal/logger"
)

var errNoSupportedCodecs = errors.New(
	"the stream doesn't contain any supported codec, which are currently " +
		"H264, Opus, MPEG-4 Audio, MPEG-1 Audio, AC-3")

func multiplyAndDivide(v, m, d int64) int64 {
	secs := v / d
	dec := v % d
	return (secs*m + dec*m/d)
}

func samplesToDuration(n int64, sampleRate int) int64 {
	return multiplyAndDivide(n, int64(time.Second), int64(sampleRate))
}

func opusHead(channelCount int) []byte {
	buf := make([]byte, 19)
	copy(buf, "OpusHead")
	buf[8] = 1
	buf[9] = byte(channelCount)
	binary.LittleEndian.PutUint16(buf[10:], 3840) // pre-skip
	binary.LittleEndian.PutUint32(buf[12:], 48000)
	return buf
}

// mpeg1AudioCodecID maps a frame header layer to a codec ID.
// Layer I is rejected by the frame header parser, so it never gets here.
func mpeg1AudioCodecID(layer uint8) string {
	if layer == 2 {
		return "A_MPEG/L2"
	}
	return "A_MPEG/L3"
}

type trackState struct {
	track    *cluster.Track
	onPacket func(*cluster.Packet) error
	log      func(logger.Level, string, ...interface{})

	// timecode of the last admitted packet
	last int64

	// video only
	waitKey      bool
	pending      *cluster.Packet
	lastDuration int64
}

func (s *trackState) admit(p *cluster.Packet) bool {
	if p.Timecode < 0 || p.Timecode < s.last {
		s.log(logger.Warn, "track %d: packet received too late, discarding", s.track.Number)
		return false
	}
	s.last = p.Timecode
	return true
}

func (s *trackState) writeAudio(p *cluster.Packet) error {
	if !s.admit(p) {
		return nil
	}
	return s.onPacket(p)
}

func (s *trackState) writeVideo(p *cluster.Packet, randomAccess bool) error {
	if s.waitKey {
		if !randomAccess {
			return nil
		}
		s.waitKey = false
	}

	if !s.admit(p) {
		// dependent frames would point to a missing frame.
		s.waitKey = true
		return nil
	}

	if !randomAccess && s.pending != nil {
		p.Bref = s.pending.Timecode
	}

	if s.pending != nil {
		s.lastDuration = p.Timecode - s.pending.Timecode
		s.pending.Duration = s.lastDuration

		err := s.onPacket(s.pending)
		if err != nil {
			return err
		}
	}

	s.pending = p
	return nil
}

func (s *trackState) flush() error {
	if s.pending == nil {
		return nil
	}

	s.pending.Duration = s.lastDuration
	p := s.pending
	s.pending = nil
	return s.onPacket(p)
}

// ToTracks maps a MPEG-TS stream to Matroska tracks.
// Packets are passed to onPacket while the stream is read.
// The returned function emits packets that are still held back
// and must be called once the stream is over.
func ToTracks(
	r *EnhancedReader,
	onPacket func(*cluster.Packet) error,
	l logger.Writer,
) ([]*cluster.Track, func() error, error) {
	log := func(level logger.Level, format string, args ...interface{}) {
		l.Log(level, "[mpegts] "+format, args...)
	}

	var tracks []*cluster.Track //nolint:prealloc
	var states []*trackState    //nolint:prealloc
	var unsupportedTracks []int

	td := &mcmpegts.TimeDecoder{}
	td.Initialize()

	baseSet := false
	var base int64

	toTimecode := func(ts int64) int64 {
		ts = td.Decode(ts)
		if !baseSet {
			baseSet = true
			base = ts
		}
		return multiplyAndDivide(ts-base, int64(time.Second), 90000)
	}

	for i, track := range r.Tracks() {
		s := &trackState{
			onPacket: onPacket,
			log:      log,
			last:     cluster.NoReference,
		}

		switch codec := track.Codec.(type) {
		case *mcmpegts.CodecH264:
			params, ok := r.h264Params[track.PID]
			if !ok {
				log(logger.Warn, "skipping track %d (H264 parameters not found)", i+1)
				continue
			}

			codecPrivate, err := h264conf.Conf{
				SPS: [][]byte{params.sps},
				PPS: [][]byte{params.pps},
			}.Marshal()
			if err != nil {
				return nil, nil, err
			}

			s.track = &cluster.Track{
				Type:         cluster.TrackTypeVideo,
				CodecID:      "V_MPEG4/ISO/AVC",
				CodecPrivate: codecPrivate,
			}
			s.waitKey = true

			var sps h264.SPS
			err = sps.Unmarshal(params.sps)
			if err == nil {
				s.track.Video = &cluster.VideoParams{
					PixelWidth:  sps.Width(),
					PixelHeight: sps.Height(),
				}
			}

			r.OnDataH264(track, func(pts int64, dts int64, au [][]byte) error {
				randomAccess := h264.IsRandomAccess(au)

				avcc, err2 := h264.AVCC(au).Marshal()
				if err2 != nil {
					return err2
				}

				p := cluster.NewPacket(s.track, toTimecode(dts), 0, avcc)
				p.AssignedTimecode = toTimecode(pts)

				return s.writeVideo(p, randomAccess)
			})

		case *mcmpegts.CodecMPEG4Audio:
			codecPrivate, err := codec.Config.Marshal()
			if err != nil {
				return nil, nil, err
			}

			sampleRate := codec.Config.SampleRate
			if sampleRate <= 0 {
				return nil, nil, fmt.Errorf("invalid MPEG-4 Audio sample rate: %d", sampleRate)
			}
			dur := samplesToDuration(int64(mpeg4audio.SamplesPerAccessUnit), sampleRate)

			s.track = &cluster.Track{
				Type:            cluster.TrackTypeAudio,
				CodecID:         "A_AAC",
				CodecPrivate:    codecPrivate,
				DefaultDuration: dur,
				LacingEnabled:   true,
				Audio: &cluster.AudioParams{
					SampleRate:   sampleRate,
					ChannelCount: codec.Config.ChannelCount,
				},
			}

			r.OnDataMPEG4Audio(track, func(pts int64, aus [][]byte) error {
				tc := toTimecode(pts)

				for j, au := range aus {
					p := cluster.NewPacket(s.track,
						tc+samplesToDuration(int64(j)*int64(mpeg4audio.SamplesPerAccessUnit), sampleRate), dur, au)

					err2 := s.writeAudio(p)
					if err2 != nil {
						return err2
					}
				}

				return nil
			})

		case *mcmpegts.CodecOpus:
			if codec.ChannelCount > 2 {
				log(logger.Warn, "skipping track %d (Opus with %d channels)", i+1, codec.ChannelCount)
				continue
			}

			s.track = &cluster.Track{
				Type:          cluster.TrackTypeAudio,
				CodecID:       "A_OPUS",
				CodecPrivate:  opusHead(codec.ChannelCount),
				LacingEnabled: true,
				Audio: &cluster.AudioParams{
					SampleRate:   48000,
					ChannelCount: codec.ChannelCount,
				},
			}

			r.OnDataOpus(track, func(pts int64, packets [][]byte) error {
				tc := toTimecode(pts)

				for _, packet := range packets {
					dur := samplesToDuration(mcopus.PacketDuration2(packet), 48000)

					err2 := s.writeAudio(cluster.NewPacket(s.track, tc, dur, packet))
					if err2 != nil {
						return err2
					}

					tc += dur
				}

				return nil
			})

		case *mcmpegts.CodecMPEG1Audio:
			h, ok := r.mpeg1AudioHeaders[track.PID]
			if !ok {
				log(logger.Warn, "skipping track %d (MPEG-1 Audio header not found)", i+1)
				continue
			}

			channelCount := 2
			if h.ChannelMode == mpeg1audio.ChannelModeMono {
				channelCount = 1
			}

			s.track = &cluster.Track{
				Type:            cluster.TrackTypeAudio,
				CodecID:         mpeg1AudioCodecID(h.Layer),
				DefaultDuration: samplesToDuration(int64(h.SampleCount()), h.SampleRate),
				LacingEnabled:   true,
				Audio: &cluster.AudioParams{
					SampleRate:   h.SampleRate,
					ChannelCount: channelCount,
				},
			}

			r.OnDataMPEG1Audio(track, func(pts int64, frames [][]byte) error {
				tc := toTimecode(pts)

				for _, frame := range frames {
					var fh mpeg1audio.FrameHeader
					err2 := fh.Unmarshal(frame)
					if err2 != nil {
						return err2
					}

					dur := samplesToDuration(int64(fh.SampleCount()), fh.SampleRate)

					err2 = s.writeAudio(cluster.NewPacket(s.track, tc, dur, frame))
					if err2 != nil {
						return err2
					}

					tc += dur
				}

				return nil
			})

		case *mcmpegts.CodecAC3:
			if codec.SampleRate <= 0 {
				return nil, nil, fmt.Errorf("invalid AC-3 sample rate: %d", codec.SampleRate)
			}
			dur := samplesToDuration(int64(ac3.SamplesPerFrame), codec.SampleRate)

			s.track = &cluster.Track{
				Type:            cluster.TrackTypeAudio,
				CodecID:         "A_AC3",
				DefaultDuration: dur,
				LacingEnabled:   true,
				Audio: &cluster.AudioParams{
					SampleRate:   codec.SampleRate,
					ChannelCount: codec.ChannelCount,
				},
			}

			r.OnDataAC3(track, func(pts int64, frame []byte) error {
				return s.writeAudio(cluster.NewPacket(s.track, toTimecode(pts), dur, frame))
			})

		default:
			unsupportedTracks = append(unsupportedTracks, i+1)
			continue
		}

		s.track.Number = uint64(len(tracks) + 1)
		tracks = append(tracks, s.track)
		states = append(states, s)
	}

	if len(tracks) == 0 {
		return nil, nil, errNoSupportedCodecs
	}

	for _, id := range unsupportedTracks {
		log(logger.Warn, "skipping track %d (unsupported codec)", id)
	}

	flush := func() error {
		for _, s := range states {
			err := s.flush()
			if err != nil {
				return err
			}
		}
		return nil
	}

	return tracks, flush, nil
}
