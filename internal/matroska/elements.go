package matroska

import (
	"github.com/at-wat/ebml-go"
)

// element IDs referenced by the seek head.
var (
	idInfo    = []byte{0x15, 0x49, 0xa9, 0x66}
	idTracks  = []byte{0x16, 0x54, 0xae, 0x6b}
	idCluster = []byte{0x1f, 0x43, 0xb6, 0x75}
	idCues    = []byte{0x1c, 0x53, 0xbb, 0x6b}
)

// track types.
const (
	trackTypeVideo    = 1
	trackTypeAudio    = 2
	trackTypeSubtitle = 0x11
)

type ebmlHeader struct {
	EBMLVersion            uint64
	EBMLReadVersion        uint64
	EBMLMaxIDLength        uint64
	EBMLMaxSizeLength      uint64
	EBMLDocType            string
	EBMLDocTypeVersion     uint64
	EBMLDocTypeReadVersion uint64
}

type info struct {
	TimecodeScale uint64
	SegmentUID    []byte
	PrevUID       []byte `ebml:",omitempty"`
	Title         string `ebml:",omitempty"`
	MuxingApp     string
	WritingApp    string
}

type video struct {
	PixelWidth  uint64
	PixelHeight uint64
}

type audio struct {
	SamplingFrequency float64
	Channels          uint64
}

type trackEntry struct {
	TrackNumber     uint64
	TrackUID        uint64
	TrackType       uint64
	FlagLacing      uint64
	DefaultDuration uint64 `ebml:",omitempty"`
	Name            string `ebml:",omitempty"`
	Language        string `ebml:",omitempty"`
	CodecID         string
	CodecPrivate    []byte  `ebml:",omitempty"`
	Video           []video `ebml:",omitempty"`
	Audio           []audio `ebml:",omitempty"`
}

type tracks struct {
	TrackEntry []trackEntry
}

type segmentHeader struct {
	Info   info
	Tracks tracks
}

type fileHeader struct {
	Header  ebmlHeader    `ebml:"EBML"`
	Segment segmentHeader `ebml:",size=unknown"`
}

type blockGroup struct {
	Block             ebml.Block
	BlockDuration     []uint64 `ebml:",omitempty"`
	ReferencePriority uint64   `ebml:",omitempty"`
	ReferenceBlock    []int64  `ebml:",omitempty"`
}

type clusterElement struct {
	Timecode   uint64
	PrevSize   uint64 `ebml:",omitempty"`
	BlockGroup []blockGroup
}

type clusterContainer struct {
	Cluster clusterElement
}

type cueTrackPositions struct {
	CueTrack           uint64
	CueClusterPosition uint64
	CueBlockNumber     uint64 `ebml:",omitempty"`
}

type cuePoint struct {
	CueTime           uint64
	CueTrackPositions []cueTrackPositions
}

type cues struct {
	CuePoint []cuePoint
}

type cuesContainer struct {
	Cues cues
}

type seek struct {
	SeekID       []byte
	SeekPosition uint64
}

type seekHead struct {
	Seek []seek
}

type seekHeadContainer struct {
	SeekHead seekHead
}
