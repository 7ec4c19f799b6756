package cluster

// TrackType is the type of a track.
type TrackType int

// track types.
const (
	TrackTypeVideo TrackType = iota + 1
	TrackTypeAudio
	TrackTypeSubtitle
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeVideo:
		return "video"
	case TrackTypeAudio:
		return "audio"
	case TrackTypeSubtitle:
		return "subtitle"
	}
	return "unknown"
}

// CuePolicy decides which block groups of a track are indexed.
type CuePolicy int

// cue policies.
const (
	CuePolicyNone CuePolicy = iota
	CuePolicyKeyFrames
	CuePolicyAll
	CuePolicySparse
)

// VideoParams contains parameters of a video track.
type VideoParams struct {
	PixelWidth  int
	PixelHeight int
}

// AudioParams contains parameters of an audio track.
type AudioParams struct {
	SampleRate   int
	ChannelCount int
}

// Track is a source track.
// Identity is given by the pointer, Number is the number written into blocks.
type Track struct {
	Number       uint64
	Type         TrackType
	CodecID      string
	CodecPrivate []byte
	Name         string
	Language     string

	// default duration of a frame, in nanoseconds. Zero means unknown.
	DefaultDuration int64

	LacingEnabled bool
	CuePolicy     CuePolicy
	Video         *VideoParams
	Audio         *AudioParams

	freePoint   int64
	lastCueTime int64
}

func (t *Track) initialize() {
	t.freePoint = NoReference
	t.lastCueTime = NoReference
}

// FreePoint returns the timecode below which buffered packets of the track are no longer needed.
func (t *Track) FreePoint() int64 {
	return t.freePoint
}

// LastCueTimecode returns the assigned timecode of the last indexed packet, or NoReference.
func (t *Track) LastCueTimecode() int64 {
	return t.lastCueTime
}
