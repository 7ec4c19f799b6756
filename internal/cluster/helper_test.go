package cluster

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mkvmux/internal/test"
)

const ms = int64(time.Millisecond)

type dummyOutput struct {
	headerSize int64
	files      [][]*Rendered
	cues       int
}

func newDummyOutput() *dummyOutput {
	return &dummyOutput{files: [][]*Rendered{nil}}
}

func (o *dummyOutput) HeaderSize() int64 {
	return o.headerSize
}

func (o *dummyOutput) WriteCluster(r *Rendered) (int64, error) {
	o.files[len(o.files)-1] = append(o.files[len(o.files)-1], r)
	o.cues += len(r.Cues)

	size := int64(20)
	for _, b := range r.Blocks {
		for _, f := range b.Frames {
			size += int64(len(f))
		}
	}
	return size, nil
}

func (o *dummyOutput) CueCount() int {
	return o.cues
}

func (o *dummyOutput) CuesSize() int64 {
	return int64(o.cues) * 12
}

func (o *dummyOutput) NextFile() error {
	o.files = append(o.files, nil)
	o.cues = 0
	return nil
}

func (o *dummyOutput) clusters() []*Rendered {
	var ret []*Rendered
	for _, f := range o.files {
		ret = append(ret, f...)
	}
	return ret
}

func newHelper(t *testing.T, out Output, tracks []*Track, setup func(h *Helper)) *Helper {
	h := &Helper{
		TimecodeScale:      time.Millisecond,
		MaxClusterDuration: 2 * time.Second,
		Tracks:             tracks,
		Output:             out,
		Parent:             test.NilLogger,
	}
	if setup != nil {
		setup(h)
	}
	err := h.Initialize()
	require.NoError(t, err)
	return h
}

func videoTrack() *Track {
	return &Track{
		Number:    1,
		Type:      TrackTypeVideo,
		CodecID:   "V_MPEG4/ISO/AVC",
		CuePolicy: CuePolicyKeyFrames,
	}
}

func audioTrack(lacing bool) *Track {
	return &Track{
		Number:        2,
		Type:          TrackTypeAudio,
		CodecID:       "A_AAC",
		LacingEnabled: lacing,
		CuePolicy:     CuePolicySparse,
	}
}

func dependent(track *Track, timecode int64, bref int64) *Packet {
	p := NewPacket(track, timecode, 40*ms, []byte{2})
	p.Bref = bref
	return p
}

// checkBuffer verifies that every buffered packet is in exactly one cluster,
// that packets are rendered with their cluster
// and that rendered clusters are kept only when referenced.
func checkBuffer(t *testing.T, h *Helper) {
	seen := make(map[*Packet]struct{})
	var prev *Packet

	for _, c := range h.clusters {
		for _, p := range c.packets {
			_, ok := seen[p]
			require.False(t, ok)
			seen[p] = struct{}{}

			// admission order is preserved
			if prev != nil {
				require.Greater(t, p.num, prev.num)
			}
			prev = p

			require.Equal(t, c.rendered, p.group != nil)

			if !p.superseded && p.Bref != NoReference {
				require.NotNil(t, h.findPacket(p.Bref, p.Track))
			}
		}

		if c.rendered {
			require.True(t, c.referenced)
		}
	}
}

func TestRound(t *testing.T) {
	for _, ca := range []struct {
		name  string
		in    int64
		scale int64
		out   int64
	}{
		{"exact", 40 * ms, ms, 40 * ms},
		{"down", 40*ms + 499999, ms, 40 * ms},
		{"half up", 40*ms + 500000, ms, 41 * ms},
		{"negative", -40*ms - 500000, ms, -41 * ms},
		{"unit scale", 123, 1, 123},
		{"zero", 0, ms, 0},
	} {
		t.Run(ca.name, func(t *testing.T) {
			v := Round(ca.in, ca.scale)
			require.Equal(t, ca.out, v)
			require.Equal(t, v, Round(v, ca.scale))
		})
	}
}

func TestNormalizeKeepsSentinels(t *testing.T) {
	p := NewPacket(videoTrack(), 40*ms+400000, 0, nil)
	p.normalize(ms)

	require.Equal(t, 40*ms, p.Timecode)
	require.Equal(t, 40*ms, p.AssignedTimecode)
	require.Equal(t, int64(0), p.Duration)
	require.Equal(t, NoReference, p.Bref)
	require.Equal(t, NoReference, p.Fref)
	require.Equal(t, 40*ms+400000, p.unmodifiedAssigned)
}

func TestKeyAndDependentFrames(t *testing.T) {
	out := newDummyOutput()
	track := videoTrack()
	h := newHelper(t, out, []*Track{track}, func(h *Helper) {
		h.MaxClusterDuration = 50 * time.Millisecond
	})

	err := h.WritePacket(NewPacket(track, 0, 40*ms, []byte{1}))
	require.NoError(t, err)

	err = h.WritePacket(dependent(track, 40*ms, 0))
	require.NoError(t, err)
	require.Empty(t, out.clusters())

	err = h.WritePacket(NewPacket(track, 80*ms, 40*ms, []byte{3}))
	require.NoError(t, err)
	require.Len(t, out.clusters(), 1)

	// the first cluster is still needed by the dependent frame
	require.Equal(t, 2, h.BufferedClusters())
	checkBuffer(t, h)

	err = h.Flush()
	require.NoError(t, err)
	require.Equal(t, 1, h.BufferedClusters())
	checkBuffer(t, h)

	require.Equal(t, []*Rendered{
		{
			Timecode: 0,
			Blocks: []*Block{
				{
					Track:  track,
					Frames: [][]byte{{1}},
				},
				{
					Track:       track,
					Timecode:    40,
					Frames:      [][]byte{{2}},
					References:  []int64{-40},
					absTimecode: 40 * ms,
				},
			},
			Cues: []CuePoint{{Track: 1, Timecode: 0, BlockNumber: 1}},
		},
		{
			Timecode:     80,
			PrevTimecode: 0,
			Blocks: []*Block{
				{
					Track:       track,
					Frames:      [][]byte{{3}},
					absTimecode: 80 * ms,
				},
			},
			Cues: []CuePoint{{Track: 1, Timecode: 80, BlockNumber: 1}},
		},
	}, out.clusters())

	require.Equal(t, int64(80*ms), track.FreePoint())
	require.Equal(t, int64(0), h.FirstTimecode())
	require.Equal(t, int64(80*ms), h.LastClusterTimecode())
}

func TestUnresolvedReference(t *testing.T) {
	out := newDummyOutput()
	track := videoTrack()
	h := newHelper(t, out, []*Track{track}, nil)

	err := h.WritePacket(NewPacket(track, 0, 40*ms, []byte{1}))
	require.NoError(t, err)

	err = h.WritePacket(dependent(track, 40*ms, 1000*ms))
	require.NoError(t, err)

	// the cluster is kept open past the maximum duration since a reference is missing
	err = h.WritePacket(NewPacket(track, 3000*ms, 40*ms, []byte{3}))
	require.NoError(t, err)
	require.Empty(t, out.clusters())
	require.Len(t, h.current().packets, 3)

	err = h.Flush()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnresolvedReference))

	var rerr *UnresolvedReferenceError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, uint64(1), rerr.Track)
	require.Equal(t, ReferenceBackward, rerr.Kind)
	require.Equal(t, 1000*ms, rerr.Timecode)
	require.Contains(t, rerr.Queue, "packet 1, track 1, timecode 40000000, bref 1000000000, fref -1")

	require.Empty(t, out.clusters())
}

func TestReferenceTolerance(t *testing.T) {
	out := newDummyOutput()
	track := videoTrack()
	h := newHelper(t, out, []*Track{track}, func(h *Helper) {
		h.TimecodeScale = 1
	})

	err := h.WritePacket(NewPacket(track, 1000000, 0, []byte{1}))
	require.NoError(t, err)

	err = h.WritePacket(dependent(track, 2000000, 1000000+10000))
	require.NoError(t, err)

	err = h.WritePacket(dependent(track, 3000000, 1000000-10001))
	require.NoError(t, err)

	require.False(t, h.allReferencesResolved(h.current()))
	require.NotNil(t, h.findPacket(1000000+10000, track))
	require.Nil(t, h.findPacket(1000000, videoTrack()))
}

func TestForwardReference(t *testing.T) {
	out := newDummyOutput()
	track := videoTrack()
	h := newHelper(t, out, []*Track{track}, nil)

	err := h.WritePacket(NewPacket(track, 0, 40*ms, []byte{1}))
	require.NoError(t, err)

	err = h.WritePacket(dependent(track, 120*ms, 0))
	require.NoError(t, err)

	p := dependent(track, 40*ms, 0)
	p.Fref = 120 * ms
	p.RefPriority = 3
	err = h.WritePacket(p)
	require.NoError(t, err)

	err = h.Flush()
	require.NoError(t, err)

	blocks := out.clusters()[0].Blocks
	require.Len(t, blocks, 3)
	require.Equal(t, []int64{-40, 80}, blocks[2].References)
	require.Equal(t, uint64(3), blocks[2].RefPriority)

	// B frames do not move the free point
	require.Equal(t, int64(0), track.FreePoint())
	checkBuffer(t, h)
}

func TestSparseAudioCues(t *testing.T) {
	out := newDummyOutput()
	track := audioTrack(false)
	h := newHelper(t, out, []*Track{track}, func(h *Helper) {
		h.MaxClusterDuration = 10 * time.Second
	})

	for _, tc := range []int64{0, 1500 * ms, 2500 * ms} {
		err := h.WritePacket(NewPacket(track, tc, 23*ms, []byte{1}))
		require.NoError(t, err)
	}

	err := h.Flush()
	require.NoError(t, err)

	require.Len(t, out.clusters(), 1)
	require.Len(t, out.clusters()[0].Blocks, 3)
	require.Equal(t, []CuePoint{
		{Track: 2, Timecode: 0, BlockNumber: 1},
		{Track: 2, Timecode: 2500, BlockNumber: 3},
	}, out.clusters()[0].Cues)
	require.Equal(t, 2500*ms, track.LastCueTimecode())
}

func TestSparseCuesWithVideo(t *testing.T) {
	out := newDummyOutput()
	video := videoTrack()
	video.CuePolicy = CuePolicyNone
	audio := audioTrack(false)
	h := newHelper(t, out, []*Track{video, audio}, nil)

	err := h.WritePacket(NewPacket(audio, 0, 23*ms, []byte{1}))
	require.NoError(t, err)

	err = h.Flush()
	require.NoError(t, err)
	require.Empty(t, out.clusters()[0].Cues)
}

func TestLacing(t *testing.T) {
	for _, ca := range []string{"default duration", "explicit durations"} {
		t.Run(ca, func(t *testing.T) {
			out := newDummyOutput()
			track := audioTrack(true)
			h := newHelper(t, out, []*Track{track}, func(h *Helper) {
				if ca == "default duration" {
					track.DefaultDuration = 23 * ms
				} else {
					h.AlwaysWriteDurations = true
				}
			})

			for i := int64(0); i < 10; i++ {
				err := h.WritePacket(NewPacket(track, i*23*ms, 23*ms, []byte{byte(i)}))
				require.NoError(t, err)
			}

			err := h.Flush()
			require.NoError(t, err)

			blocks := out.clusters()[0].Blocks
			require.Len(t, blocks, 2)
			require.Len(t, blocks[0].Frames, 8)
			require.Len(t, blocks[1].Frames, 2)
			require.Equal(t, int16(184), blocks[1].Timecode)

			if ca == "default duration" {
				require.False(t, blocks[0].HasDuration)
				require.False(t, blocks[1].HasDuration)
			} else {
				require.True(t, blocks[0].HasDuration)
				require.Equal(t, uint64(184), blocks[0].Duration)
				require.True(t, blocks[1].HasDuration)
				require.Equal(t, uint64(46), blocks[1].Duration)
			}
		})
	}
}

func TestMandatoryDuration(t *testing.T) {
	out := newDummyOutput()
	track := &Track{Number: 3, Type: TrackTypeSubtitle, DefaultDuration: 0}
	h := newHelper(t, out, []*Track{track}, nil)

	p := NewPacket(track, 0, 0, []byte("a"))
	p.DurationMandatory = true
	err := h.WritePacket(p)
	require.NoError(t, err)

	p = NewPacket(track, 1000*ms, 1500*ms, []byte("b"))
	p.DurationMandatory = true
	err = h.WritePacket(p)
	require.NoError(t, err)

	err = h.Flush()
	require.NoError(t, err)

	blocks := out.clusters()[0].Blocks
	require.True(t, blocks[0].HasDuration)
	require.Equal(t, uint64(0), blocks[0].Duration)
	require.True(t, blocks[1].HasDuration)
	require.Equal(t, uint64(1500), blocks[1].Duration)
}

func TestMaxBlocksPerCluster(t *testing.T) {
	out := newDummyOutput()
	track := audioTrack(false)
	h := newHelper(t, out, []*Track{track}, func(h *Helper) {
		h.MaxBlocksPerCluster = 2
	})

	for i := int64(0); i < 3; i++ {
		err := h.WritePacket(NewPacket(track, i*23*ms, 23*ms, []byte{1}))
		require.NoError(t, err)
	}

	require.Len(t, out.clusters(), 1)
	require.Len(t, out.clusters()[0].Blocks, 3)
}

func TestDuration(t *testing.T) {
	out := newDummyOutput()
	track := audioTrack(false)
	h := newHelper(t, out, []*Track{track}, nil)

	err := h.WritePacket(NewPacket(track, 1234567, 10*ms, []byte{1}))
	require.NoError(t, err)

	err = h.WritePacket(NewPacket(track, 5*ms, 0, []byte{1}))
	require.NoError(t, err)

	require.Equal(t, time.Duration(1234567+10*ms), h.Duration())
}

func TestSplitByTime(t *testing.T) {
	for _, ca := range []string{"no linking", "linking"} {
		t.Run(ca, func(t *testing.T) {
			out := newDummyOutput()
			track := videoTrack()
			h := newHelper(t, out, []*Track{track}, func(h *Helper) {
				h.Split = true
				h.SplitByTime = true
				h.SplitDuration = 10 * time.Second
				h.Linking = ca == "linking"
			})

			for i := int64(0); i <= 12; i++ {
				err := h.WritePacket(NewPacket(track, i*1000*ms, 1000*ms, []byte{byte(i)}))
				require.NoError(t, err)
				checkBuffer(t, h)

				if i == 9 {
					require.Equal(t, 1, h.FileNumber())
				}
			}

			err := h.Flush()
			require.NoError(t, err)

			require.Equal(t, 2, h.FileNumber())
			require.Len(t, out.files, 2)

			first := out.files[0]
			require.Equal(t, uint64(9000), first[len(first)-1].Timecode)
			require.Equal(t, int64(6000*ms), first[len(first)-1].PrevTimecode)

			second := out.files[1]
			require.Len(t, second, 1)
			require.Len(t, second[0].Blocks, 3)

			if ca == "no linking" {
				require.Equal(t, uint64(0), second[0].Timecode)
				require.Equal(t, int64(0), second[0].PrevTimecode)
				require.Equal(t, int64(10000*ms), h.TimecodeOffset())
				require.Equal(t, int64(0), h.FirstTimecode())
				require.Equal(t, 3*time.Second, h.Duration())
			} else {
				require.Equal(t, uint64(10000), second[0].Timecode)
				require.Equal(t, int64(9000*ms), second[0].PrevTimecode)
				require.Equal(t, int64(0), h.TimecodeOffset())
				require.Equal(t, int64(10000*ms), h.FirstTimecode())
				require.Equal(t, 13*time.Second, h.Duration())
			}
		})
	}
}

func TestSplitBySize(t *testing.T) {
	out := newDummyOutput()
	out.headerSize = 100
	track := videoTrack()
	track.CuePolicy = CuePolicyNone
	h := newHelper(t, out, []*Track{track}, func(h *Helper) {
		h.Split = true
		h.SplitSize = 1000
	})

	payload := make([]byte, 100)

	for i := int64(0); i < 12; i++ {
		err := h.WritePacket(NewPacket(track, i*1000*ms, 1000*ms, payload))
		require.NoError(t, err)

		if i == 8 {
			require.Equal(t, 1, h.FileNumber())
		}
	}

	require.Equal(t, 2, h.FileNumber())
	require.Len(t, out.files[0], 3)

	var written int64
	for _, c := range out.files[0] {
		written += 20 + int64(len(c.Blocks))*100
	}
	require.Equal(t, int64(960), written)
	require.Less(t, out.headerSize+written, int64(1000)+131)
}

func TestSplitMaxFiles(t *testing.T) {
	out := newDummyOutput()
	track := videoTrack()
	h := newHelper(t, out, []*Track{track}, func(h *Helper) {
		h.Split = true
		h.SplitByTime = true
		h.SplitDuration = 2 * time.Second
		h.SplitMaxFiles = 2
	})

	for i := int64(0); i <= 20; i++ {
		err := h.WritePacket(NewPacket(track, i*1000*ms, 1000*ms, []byte{1}))
		require.NoError(t, err)
	}

	require.Equal(t, 2, h.FileNumber())
}

func TestSplitSkipsDependentFrames(t *testing.T) {
	out := newDummyOutput()
	track := videoTrack()
	h := newHelper(t, out, []*Track{track}, func(h *Helper) {
		h.Split = true
		h.SplitByTime = true
		h.SplitDuration = time.Second
	})

	err := h.WritePacket(NewPacket(track, 0, 500*ms, []byte{1}))
	require.NoError(t, err)

	for i := int64(1); i <= 4; i++ {
		err = h.WritePacket(dependent(track, i*500*ms, (i-1)*500*ms))
		require.NoError(t, err)
	}
	require.Equal(t, 1, h.FileNumber())

	err = h.WritePacket(NewPacket(track, 2500*ms, 500*ms, []byte{1}))
	require.NoError(t, err)
	require.Equal(t, 2, h.FileNumber())
}

func TestCollect(t *testing.T) {
	out := newDummyOutput()
	track := videoTrack()
	h := newHelper(t, out, []*Track{track}, func(h *Helper) {
		h.MaxClusterDuration = time.Second
	})

	// 25 fps, one key frame every 12 frames
	for i := int64(0); i < 150; i++ {
		tc := i * 40 * ms

		var p *Packet
		if i%12 == 0 {
			p = NewPacket(track, tc, 40*ms, []byte{1})
		} else {
			p = dependent(track, tc, tc-40*ms)
		}

		err := h.WritePacket(p)
		require.NoError(t, err)
		checkBuffer(t, h)
		require.LessOrEqual(t, h.BufferedClusters(), 3)
	}

	err := h.Flush()
	require.NoError(t, err)
	checkBuffer(t, h)

	for _, c := range h.clusters {
		for _, p := range c.packets {
			require.Nil(t, p.Data)
		}
	}
}

func TestCollectUnresolvedReference(t *testing.T) {
	out := newDummyOutput()
	track := videoTrack()
	h := newHelper(t, out, []*Track{track}, nil)

	err := h.WritePacket(NewPacket(track, 0, 40*ms, []byte{1}))
	require.NoError(t, err)

	err = h.Flush()
	require.NoError(t, err)

	// a buffered frame that depends on a frame that was never admitted
	p := dependent(track, 80*ms, 500*ms)
	p.num = 7
	h.clusters = append(h.clusters, &clusterEntry{packets: []*Packet{p}})

	err = h.collect()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnresolvedReference))
	require.EqualError(t, err, "packet 7: backward reference to 500000000 on track 1 cannot be resolved")

	var rerr *UnresolvedReferenceError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, uint64(1), rerr.Track)
	require.Equal(t, ReferenceBackward, rerr.Kind)
	require.Equal(t, 500*ms, rerr.Timecode)
	require.Equal(t, "packet 0, track 1, timecode 80000000, bref 500000000, fref -1\n", rerr.Queue)
}

func TestSplitBySizeCues(t *testing.T) {
	for _, ca := range []struct {
		name    string
		policy  CuePolicy
		splitAt int64
	}{
		{"no cues", CuePolicyNone, 9},
		{"key frame cues", CuePolicyKeyFrames, 8},
	} {
		t.Run(ca.name, func(t *testing.T) {
			out := newDummyOutput()
			out.headerSize = 100
			track := videoTrack()
			track.CuePolicy = ca.policy
			h := newHelper(t, out, []*Track{track}, func(h *Helper) {
				h.Split = true
				h.SplitSize = 1000
			})

			payload := make([]byte, 100)
			splitAt := int64(-1)

			for i := int64(0); i < 12; i++ {
				err := h.WritePacket(NewPacket(track, i*1000*ms, 1000*ms, payload))
				require.NoError(t, err)
				checkBuffer(t, h)

				if splitAt < 0 && h.FileNumber() == 2 {
					splitAt = i
				}
			}

			// pending cue points count towards the size of the file
			require.Equal(t, ca.splitAt, splitAt)

			blocks := int64(0)
			for _, c := range out.files[0] {
				blocks += int64(len(c.Blocks))
			}
			require.Equal(t, ca.splitAt, blocks)
			require.Len(t, out.files[0], 3)
		})
	}
}

func TestSplitLinkingKeepsChain(t *testing.T) {
	for _, ca := range []string{"no linking", "linking"} {
		t.Run(ca, func(t *testing.T) {
			out := newDummyOutput()
			track := videoTrack()
			h := newHelper(t, out, []*Track{track}, func(h *Helper) {
				h.Split = true
				h.SplitByTime = true
				h.SplitDuration = 9 * time.Second
				h.Linking = ca == "linking"
			})

			// the split happens right after a cluster has been closed by duration,
			// therefore the cluster rendered by the split is empty.
			for i := int64(0); i < 12; i++ {
				err := h.WritePacket(NewPacket(track, i*1000*ms, 1000*ms, []byte{byte(i)}))
				require.NoError(t, err)
				checkBuffer(t, h)
			}

			err := h.Flush()
			require.NoError(t, err)

			require.Len(t, out.files, 2)
			first := out.files[0]
			require.Equal(t, uint64(6000), first[len(first)-1].Timecode)

			second := out.files[1]
			require.Len(t, second, 1)
			require.Len(t, second[0].Blocks, 3)

			if ca == "no linking" {
				require.Equal(t, uint64(0), second[0].Timecode)
				require.Equal(t, int64(0), second[0].PrevTimecode)
			} else {
				require.Equal(t, uint64(9000), second[0].Timecode)
				require.Equal(t, int64(6000*ms), second[0].PrevTimecode)
			}
		})
	}
}

func TestClusterTimecodeRange(t *testing.T) {
	out := newDummyOutput()
	video := videoTrack()
	audio := audioTrack(false)
	h := newHelper(t, out, []*Track{video, audio}, nil)

	err := h.WritePacket(NewPacket(video, 40000*ms, 40*ms, []byte{1}))
	require.NoError(t, err)

	// 40 s before the cluster timecode, more than a 16-bit block timecode can hold
	err = h.WritePacket(NewPacket(audio, 0, 20*ms, []byte{2}))
	require.NoError(t, err)

	err = h.Flush()
	require.NoError(t, err)

	clusters := out.clusters()
	require.Len(t, clusters, 2)

	require.Equal(t, uint64(40000), clusters[0].Timecode)
	require.Len(t, clusters[0].Blocks, 1)
	require.Equal(t, video, clusters[0].Blocks[0].Track)

	require.Equal(t, uint64(0), clusters[1].Timecode)
	require.Len(t, clusters[1].Blocks, 1)
	require.Equal(t, audio, clusters[1].Blocks[0].Track)
	require.Equal(t, int16(0), clusters[1].Blocks[0].Timecode)
}

func TestWritePacketAfterFlush(t *testing.T) {
	out := newDummyOutput()
	track := videoTrack()
	h := newHelper(t, out, []*Track{track}, nil)

	err := h.WritePacket(NewPacket(track, 0, 40*ms, []byte{1}))
	require.NoError(t, err)

	err = h.Flush()
	require.NoError(t, err)

	err = h.WritePacket(NewPacket(track, 40*ms, 40*ms, []byte{2}))
	require.NoError(t, err)
	checkBuffer(t, h)

	err = h.Flush()
	require.NoError(t, err)

	clusters := out.clusters()
	require.Len(t, clusters, 2)
	require.Equal(t, uint64(0), clusters[0].Timecode)
	require.Equal(t, [][]byte{{1}}, clusters[0].Blocks[0].Frames)
	require.Equal(t, uint64(40), clusters[1].Timecode)
	require.Equal(t, [][]byte{{2}}, clusters[1].Blocks[0].Frames)
}
