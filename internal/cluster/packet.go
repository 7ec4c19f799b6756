package cluster

// NoReference marks the absence of a backward or forward reference.
const NoReference int64 = -1

// Packet is an encoded frame with muxing metadata.
// Timestamps are in nanoseconds.
type Packet struct {
	Track *Track

	// decode order
	Timecode int64

	// presentation order, used for output
	AssignedTimecode int64

	Duration          int64
	Bref              int64
	Fref              int64
	DurationMandatory bool
	RefPriority       uint64
	Data              []byte

	num                uint64
	superseded         bool
	group              *Block
	unmodifiedAssigned int64
	unmodifiedDuration int64
}

// NewPacket allocates a key frame packet without references.
func NewPacket(track *Track, timecode int64, duration int64, data []byte) *Packet {
	return &Packet{
		Track:            track,
		Timecode:         timecode,
		AssignedTimecode: timecode,
		Duration:         duration,
		Bref:             NoReference,
		Fref:             NoReference,
		Data:             data,
	}
}

func (p *Packet) normalize(scale int64) {
	p.unmodifiedAssigned = p.AssignedTimecode
	p.unmodifiedDuration = p.Duration

	p.Timecode = Round(p.Timecode, scale)
	if p.Duration > 0 {
		p.Duration = Round(p.Duration, scale)
	}
	p.AssignedTimecode = Round(p.AssignedTimecode, scale)
	if p.Bref != NoReference {
		p.Bref = Round(p.Bref, scale)
	}
	if p.Fref != NoReference {
		p.Fref = Round(p.Fref, scale)
	}
}

// size estimate of the frame once serialized, used by the split decision.
func (p *Packet) estimatedSize() int64 {
	switch {
	case p.Bref == NoReference:
		return int64(len(p.Data)) + 10
	case p.Fref == NoReference:
		return int64(len(p.Data)) + 13
	}
	return int64(len(p.Data)) + 16
}
