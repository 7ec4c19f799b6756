package cluster

import (
	"fmt"
	"math"

	"github.com/bluenviron/mkvmux/internal/logger"
)

// maximum number of frames laced into a block group.
const maxLacedFrames = 8

// sparse audio cues are spaced by at least this amount.
const sparseCueInterval = 2000000000

// renderGroup holds the in-progress block group of a track during a render.
type renderGroup struct {
	track       *Track
	block       *Block
	blockNumber int
	moreData    bool
	durations   []int64
	mandatory   bool
	cueAdded    bool
}

func (h *Helper) ticks(v int64) int64 {
	return v / h.scale
}

func (h *Helper) setDuration(rg *renderGroup) {
	if rg.block == nil || len(rg.durations) == 0 {
		return
	}

	var blockDuration int64
	for _, d := range rg.durations {
		blockDuration += d
	}

	defDuration := rg.track.DefaultDuration
	n := int64(len(rg.durations))

	set := false

	if rg.mandatory {
		set = blockDuration == 0 || (blockDuration > 0 && blockDuration != n*defDuration)
	} else {
		set = (h.AlwaysWriteDurations || defDuration > 0) &&
			blockDuration > 0 &&
			Round(blockDuration, h.scale) != Round(n*defDuration, h.scale)
	}

	if set {
		rg.block.HasDuration = true
		rg.block.Duration = uint64(h.ticks(Round(blockDuration, h.scale)))
	}
}

func (h *Helper) wantsCue(p *Packet) bool {
	switch p.Track.CuePolicy {
	case CuePolicyKeyFrames:
		return p.Bref == NoReference

	case CuePolicyAll:
		return true

	case CuePolicySparse:
		return p.Track.Type == TrackTypeAudio && !h.videoPresent &&
			(p.Track.lastCueTime < 0 ||
				p.AssignedTimecode-p.Track.lastCueTime >= sparseCueInterval)
	}
	return false
}

func (h *Helper) freeRef(track *Track, timecode int64) {
	track.freePoint = timecode
}

// clusterTimecode returns the timecode of a cluster relative to the timecode offset.
// Packets that precede the offset are kept in a cluster starting at zero.
func (h *Helper) clusterTimecode(c *clusterEntry) int64 {
	tc := c.firstTimecode() - h.timecodeOffset
	if tc < 0 {
		return 0
	}
	return tc
}

func (h *Helper) relativeTicks(p *Packet, clusterTimecode int64) int64 {
	return h.ticks(p.AssignedTimecode - h.timecodeOffset - clusterTimecode)
}

// fitsCluster returns whether the block timecode of p, relative to c, fits into 16 bits.
func (h *Helper) fitsCluster(c *clusterEntry, p *Packet) bool {
	rel := h.relativeTicks(p, h.clusterTimecode(c))
	return rel >= math.MinInt16 && rel <= math.MaxInt16
}

func (h *Helper) openBlock(r *Rendered, rg *renderGroup, p *Packet, clusterTimecode int64) error {
	h.setDuration(rg)

	absTimecode := p.AssignedTimecode - h.timecodeOffset
	rel := h.relativeTicks(p, clusterTimecode)
	if rel < math.MinInt16 || rel > math.MaxInt16 {
		return fmt.Errorf("timecode %d of track %d is too far from the cluster timecode %d",
			p.AssignedTimecode, p.Track.Number, clusterTimecode)
	}

	rg.block = &Block{
		Track:       p.Track,
		Timecode:    int16(rel),
		absTimecode: absTimecode,
	}
	r.Blocks = append(r.Blocks, rg.block)
	rg.blockNumber = len(r.Blocks)
	rg.durations = rg.durations[:0]
	rg.mandatory = false
	rg.cueAdded = false

	return nil
}

func (h *Helper) addFrame(c *clusterEntry, rg *renderGroup, p *Packet) error {
	b := rg.block

	switch {
	case p.Bref == NoReference:
		b.Frames = append(b.Frames, p.Data)
		h.freeRef(p.Track, p.Timecode)

	case p.Fref == NoReference:
		bref, err := h.resolveRendered(c, p, p.Bref, ReferenceBackward)
		if err != nil {
			return err
		}

		b.Frames = append(b.Frames, p.Data)
		b.References = append(b.References, h.ticks(bref.absTimecode-b.absTimecode))
		h.freeRef(p.Track, p.Bref)

	default:
		bref, err := h.resolveRendered(c, p, p.Bref, ReferenceBackward)
		if err != nil {
			return err
		}

		fref, err := h.resolveRendered(c, p, p.Fref, ReferenceForward)
		if err != nil {
			return err
		}

		b.Frames = append(b.Frames, p.Data)
		b.References = append(b.References,
			h.ticks(bref.absTimecode-b.absTimecode),
			h.ticks(fref.absTimecode-b.absTimecode))
	}

	rg.moreData = len(b.Frames) < maxLacedFrames &&
		p.Bref == NoReference &&
		p.Fref == NoReference &&
		p.Track.LacingEnabled

	return nil
}

// render writes the current cluster into the output.
func (h *Helper) render() error {
	c := h.current()
	if c == nil || c.rendered {
		return nil
	}

	if len(c.packets) == 0 {
		// with linking the chain continues into the next file
		if !h.Linking {
			h.lastClusterTimecode = 0
		}
		c.rendered = true
		return h.collect()
	}

	h.Log(logger.Debug, "rendering cluster, %d packets, first timecode %d, last timecode %d",
		len(c.packets), c.firstTimecode(), c.lastTimecode())

	clusterTimecode := h.clusterTimecode(c)

	r := &Rendered{
		Timecode:     uint64(h.ticks(clusterTimecode)),
		PrevTimecode: c.prevTimecode,
	}

	groups := make(map[*Track]*renderGroup)
	var order []*renderGroup

	for _, p := range c.packets {
		rg, ok := groups[p.Track]
		if !ok {
			rg = &renderGroup{track: p.Track}
			groups[p.Track] = rg
			order = append(order, rg)
		}

		if h.firstTimecode == NoReference {
			h.firstTimecode = p.AssignedTimecode
		}

		if p.Bref != NoReference {
			rg.moreData = false
		}

		if !rg.moreData {
			err := h.openBlock(r, rg, p, clusterTimecode)
			if err != nil {
				return err
			}
		}

		err := h.addFrame(c, rg, p)
		if err != nil {
			return err
		}

		rg.durations = append(rg.durations, p.unmodifiedDuration)
		rg.mandatory = rg.mandatory || p.DurationMandatory

		if p.RefPriority > 0 {
			rg.block.RefPriority = p.RefPriority
		}

		if !rg.cueAdded && rg.block.absTimecode >= 0 && h.wantsCue(p) {
			r.Cues = append(r.Cues, CuePoint{
				Track:       p.Track.Number,
				Timecode:    uint64(h.ticks(rg.block.absTimecode)),
				BlockNumber: rg.blockNumber,
			})
			p.Track.lastCueTime = p.AssignedTimecode
			rg.cueAdded = true
		}

		p.group = rg.block
	}

	for _, rg := range order {
		h.setDuration(rg)
	}

	size, err := h.Output.WriteCluster(r)
	if err != nil {
		return err
	}

	h.bytesInFile += size
	h.lastClusterTimecode = clusterTimecode

	for _, p := range c.packets {
		p.Data = nil
	}

	c.rendered = true

	return h.collect()
}
