package cluster

// Block is a block group produced by the renderer.
type Block struct {
	Track *Track

	// relative to the cluster timecode, in timecode scale units
	Timecode int16

	// one entry per laced frame
	Frames [][]byte

	// explicit duration in timecode scale units, valid if HasDuration is true
	HasDuration bool
	Duration    uint64

	// referenced blocks, relative to Timecode, in timecode scale units
	References []int64

	RefPriority uint64

	// nanoseconds, relative to the timecode offset
	absTimecode int64
}

// CuePoint is an index entry of a rendered cluster.
type CuePoint struct {
	Track uint64

	// absolute, in timecode scale units
	Timecode uint64

	// 1-based position of the block group inside the cluster
	BlockNumber int
}

// Rendered is a cluster ready to be serialized.
type Rendered struct {
	// absolute, in timecode scale units
	Timecode uint64

	// absolute timecode of the previous cluster of the chain, in nanoseconds
	PrevTimecode int64

	Blocks []*Block
	Cues   []CuePoint
}

// Output receives rendered clusters.
// It is implemented by the Matroska writer.
type Output interface {
	// HeaderSize returns the size of the header of the current file.
	HeaderSize() int64

	// WriteCluster writes a cluster and indexes its cue points.
	// It returns the number of bytes written.
	WriteCluster(*Rendered) (int64, error)

	// CueCount returns the number of cue points of the current file.
	CueCount() int

	// CuesSize returns the encoded size of the cue points of the current file.
	CuesSize() int64

	// NextFile finalizes the current file and opens the next one.
	NextFile() error
}
