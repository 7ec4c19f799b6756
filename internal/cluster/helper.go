// Package cluster contains the cluster multiplexer.
package cluster

import (
	"fmt"
	"time"

	"github.com/bluenviron/mkvmux/internal/logger"
)

// maximum payload of a cluster before it gets closed.
const maxClusterContentSize = 1500000

// Helper groups packets into clusters and sends them to an Output.
type Helper struct {
	TimecodeScale        time.Duration
	MaxClusterDuration   time.Duration
	MaxBlocksPerCluster  int
	AlwaysWriteDurations bool
	Split                bool
	SplitByTime          bool
	SplitSize            int64
	SplitDuration        time.Duration
	SplitMaxFiles        int
	Linking              bool
	Tracks               []*Track
	Output               Output
	Parent               logger.Writer

	scale                  int64
	videoPresent           bool
	clusters               []*clusterEntry
	packetNum              uint64
	fileNum                int
	bytesInFile            int64
	firstTimecodeInFile    int64
	firstTimecode          int64
	timecodeOffset         int64
	maxTimecodeAndDuration int64
	lastClusterTimecode    int64
}

// Initialize initializes Helper.
func (h *Helper) Initialize() error {
	if h.TimecodeScale <= 0 {
		return fmt.Errorf("invalid timecode scale: %v", h.TimecodeScale)
	}
	if h.Output == nil {
		return fmt.Errorf("output not provided")
	}

	if h.MaxClusterDuration <= 0 {
		h.MaxClusterDuration = 2 * time.Second
	}
	if h.MaxBlocksPerCluster <= 0 {
		h.MaxBlocksPerCluster = 65535
	}

	h.scale = int64(h.TimecodeScale)
	h.fileNum = 1
	h.firstTimecodeInFile = NoReference

	for _, t := range h.Tracks {
		t.initialize()
		if t.Type == TrackTypeVideo {
			h.videoPresent = true
		}
	}

	return nil
}

// Log implements logger.Writer.
func (h *Helper) Log(level logger.Level, format string, args ...interface{}) {
	h.Parent.Log(level, "[muxer] "+format, args...)
}

// WritePacket admits a packet.
// The packet is owned by Helper after the call.
func (h *Helper) WritePacket(p *Packet) error {
	p.normalize(h.scale)

	if cur := h.current(); cur == nil || cur.rendered {
		h.addCluster()
	} else if len(cur.packets) != 0 &&
		(p.AssignedTimecode-cur.firstTimecode() > int64(h.MaxClusterDuration) ||
			!h.fitsCluster(cur, p)) &&
		h.allReferencesResolved(cur) {
		err := h.render()
		if err != nil {
			return err
		}
		h.addCluster()
	}

	if h.canSplit(p) {
		err := h.maybeSplit(p)
		if err != nil {
			return err
		}
	}

	end := p.unmodifiedAssigned + p.unmodifiedDuration
	if end > h.maxTimecodeAndDuration {
		h.maxTimecodeAndDuration = end
	}

	p.num = h.packetNum
	h.packetNum++

	cur := h.current()
	cur.append(p)

	if (p.AssignedTimecode-cur.firstTimecode() > int64(h.MaxClusterDuration) ||
		len(cur.packets) > h.MaxBlocksPerCluster ||
		cur.contentSize > maxClusterContentSize) &&
		h.allReferencesResolved(cur) {
		err := h.render()
		if err != nil {
			return err
		}
		h.addCluster()
	}

	return nil
}

func (h *Helper) canSplit(p *Packet) bool {
	return h.Split &&
		(h.SplitMaxFiles == 0 || h.fileNum < h.SplitMaxFiles) &&
		p.Bref == NoReference &&
		(p.Track.Type == TrackTypeVideo || !h.videoPresent)
}

func (h *Helper) projectedSize() int64 {
	var size int64

	if cur := h.current(); len(cur.packets) != 0 {
		// cluster header and timecode
		size = 21

		for _, p := range cur.packets {
			size += p.estimatedSize()
		}
	}

	if h.Output.CueCount() > 0 {
		size += h.Output.CuesSize()
	}

	return size
}

func (h *Helper) maybeSplit(p *Packet) error {
	if h.firstTimecodeInFile == NoReference {
		h.firstTimecodeInFile = p.AssignedTimecode
	}

	var split bool

	if !h.SplitByTime {
		headerSize := h.Output.HeaderSize()
		additional := h.projectedSize()
		h.Log(logger.Debug, "split decision: header %d, additional %d, in file %d, sum %d",
			headerSize, additional, h.bytesInFile, headerSize+additional+h.bytesInFile)
		split = headerSize+additional+h.bytesInFile >= h.SplitSize
	} else {
		split = p.AssignedTimecode-h.firstTimecodeInFile >= int64(h.SplitDuration)
	}

	if !split {
		return nil
	}

	err := h.render()
	if err != nil {
		return err
	}

	err = h.Output.NextFile()
	if err != nil {
		return fmt.Errorf("unable to open file %d: %w", h.fileNum+1, err)
	}
	h.fileNum++

	if !h.Linking {
		h.lastClusterTimecode = 0
	}

	h.addCluster()

	h.bytesInFile = 0
	h.firstTimecodeInFile = NoReference

	if !h.Linking {
		h.timecodeOffset = p.AssignedTimecode
		h.firstTimecode = 0
	} else {
		h.firstTimecode = NoReference
	}

	h.Log(logger.Info, "splitting, file %d starts at %v", h.fileNum,
		time.Duration(p.AssignedTimecode))

	return nil
}

// Flush renders the current cluster, if any.
func (h *Helper) Flush() error {
	cur := h.current()
	if cur == nil || cur.rendered {
		return nil
	}
	return h.render()
}

// Duration returns the duration of the stream written so far.
func (h *Helper) Duration() time.Duration {
	return time.Duration(h.maxTimecodeAndDuration - h.timecodeOffset)
}

// FirstTimecode returns the assigned timecode of the first rendered packet of the current timeline.
func (h *Helper) FirstTimecode() int64 {
	return h.firstTimecode
}

// TimecodeOffset returns the offset subtracted from assigned timecodes.
func (h *Helper) TimecodeOffset() int64 {
	return h.timecodeOffset
}

// LastClusterTimecode returns the timecode of the last rendered cluster, in nanoseconds.
func (h *Helper) LastClusterTimecode() int64 {
	return h.lastClusterTimecode
}

// FileNumber returns the 1-based number of the current file.
func (h *Helper) FileNumber() int {
	return h.fileNum
}

// BufferedClusters returns the number of clusters held in memory.
func (h *Helper) BufferedClusters() int {
	return len(h.clusters)
}
