// Package matroska contains a Matroska file writer.
package matroska

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/at-wat/ebml-go"
	"github.com/google/uuid"

	"github.com/bluenviron/mkvmux/internal/cluster"
	"github.com/bluenviron/mkvmux/internal/logger"
)

const appName = "mkvmux"

// Writer writes rendered clusters into one or more Matroska files.
// It implements cluster.Output.
type Writer struct {
	// Create opens the file with the given 1-based number.
	Create        func(fileNum int) (io.WriteCloser, error)
	TimecodeScale time.Duration
	Title         string
	Tracks        []*cluster.Track
	Lacing        LacingMode
	Linking       bool
	ClusterIndex  bool
	Parent        logger.Writer

	fileNum      int
	w            io.WriteCloser
	prevUID      []byte
	segmentUID   []byte
	headerSize   int64
	infoPos      uint64
	tracksPos    uint64
	pos          uint64
	prevSize     uint64
	clusterCount int
	clusterPos   []uint64
	cuePoints    []cuePoint
}

// Initialize initializes Writer and opens the first file.
func (w *Writer) Initialize() error {
	if w.Create == nil {
		return fmt.Errorf("file creator not provided")
	}
	if w.TimecodeScale <= 0 {
		return fmt.Errorf("invalid timecode scale: %v", w.TimecodeScale)
	}

	return w.openFile()
}

// Log implements logger.Writer.
func (w *Writer) Log(level logger.Level, format string, args ...interface{}) {
	w.Parent.Log(level, "[matroska] "+format, args...)
}

// Close finalizes the current file.
func (w *Writer) Close() error {
	if w.w == nil {
		return nil
	}
	return w.closeFile()
}

// FileNumber returns the number of the current file.
func (w *Writer) FileNumber() int {
	return w.fileNum
}

func (w *Writer) marshalTracks() tracks {
	var ret tracks

	for _, t := range w.Tracks {
		entry := trackEntry{
			TrackNumber:  t.Number,
			TrackUID:     t.Number,
			CodecID:      t.CodecID,
			CodecPrivate: t.CodecPrivate,
			Name:         t.Name,
			Language:     t.Language,
		}

		if t.LacingEnabled {
			entry.FlagLacing = 1
		}

		if t.DefaultDuration > 0 {
			entry.DefaultDuration = uint64(t.DefaultDuration)
		}

		switch t.Type {
		case cluster.TrackTypeVideo:
			entry.TrackType = trackTypeVideo
			if t.Video != nil {
				entry.Video = []video{{
					PixelWidth:  uint64(t.Video.PixelWidth),
					PixelHeight: uint64(t.Video.PixelHeight),
				}}
			}

		case cluster.TrackTypeAudio:
			entry.TrackType = trackTypeAudio
			if t.Audio != nil {
				entry.Audio = []audio{{
					SamplingFrequency: float64(t.Audio.SampleRate),
					Channels:          uint64(t.Audio.ChannelCount),
				}}
			}

		default:
			entry.TrackType = trackTypeSubtitle
		}

		ret.TrackEntry = append(ret.TrackEntry, entry)
	}

	return ret
}

func (w *Writer) openFile() error {
	w.fileNum++

	f, err := w.Create(w.fileNum)
	if err != nil {
		return err
	}

	uid := uuid.New()
	w.segmentUID = uid[:]

	seg := segmentHeader{
		Info: info{
			TimecodeScale: uint64(w.TimecodeScale),
			SegmentUID:    w.segmentUID,
			Title:         w.Title,
			MuxingApp:     appName,
			WritingApp:    appName,
		},
		Tracks: w.marshalTracks(),
	}

	if w.Linking {
		seg.Info.PrevUID = w.prevUID
	}

	var segBuf bytes.Buffer
	err = ebml.Marshal(&seg, &segBuf)
	if err != nil {
		f.Close()
		return err
	}

	var infoBuf bytes.Buffer
	err = ebml.Marshal(&struct{ Info info }{seg.Info}, &infoBuf)
	if err != nil {
		f.Close()
		return err
	}

	var buf bytes.Buffer
	err = ebml.Marshal(&fileHeader{
		Header: ebmlHeader{
			EBMLVersion:            1,
			EBMLReadVersion:        1,
			EBMLMaxIDLength:        4,
			EBMLMaxSizeLength:      8,
			EBMLDocType:            "matroska",
			EBMLDocTypeVersion:     4,
			EBMLDocTypeReadVersion: 2,
		},
		Segment: seg,
	}, &buf)
	if err != nil {
		f.Close()
		return err
	}

	_, err = f.Write(buf.Bytes())
	if err != nil {
		f.Close()
		return err
	}

	w.w = f
	w.headerSize = int64(buf.Len())
	w.infoPos = 0
	w.tracksPos = uint64(infoBuf.Len())
	w.pos = uint64(segBuf.Len())
	w.prevSize = 0
	w.clusterCount = 0
	w.clusterPos = nil
	w.cuePoints = nil

	w.Log(logger.Debug, "file %d opened", w.fileNum)

	return nil
}

func (w *Writer) closeFile() error {
	var buf bytes.Buffer

	var seeks []seek

	seeks = append(seeks,
		seek{SeekID: idInfo, SeekPosition: w.infoPos},
		seek{SeekID: idTracks, SeekPosition: w.tracksPos})

	if len(w.cuePoints) != 0 {
		seeks = append(seeks, seek{SeekID: idCues, SeekPosition: w.pos})

		err := ebml.Marshal(&cuesContainer{Cues: cues{CuePoint: w.cuePoints}}, &buf)
		if err != nil {
			w.w.Close()
			w.w = nil
			return err
		}
	}

	if w.ClusterIndex {
		for _, pos := range w.clusterPos {
			seeks = append(seeks, seek{SeekID: idCluster, SeekPosition: pos})
		}
	}

	err := ebml.Marshal(&seekHeadContainer{SeekHead: seekHead{Seek: seeks}}, &buf)
	if err != nil {
		w.w.Close()
		w.w = nil
		return err
	}

	_, err = w.w.Write(buf.Bytes())
	if err != nil {
		w.w.Close()
		w.w = nil
		return err
	}

	err = w.w.Close()
	w.w = nil

	w.Log(logger.Info, "file %d completed, %d clusters, %d cue points",
		w.fileNum, w.clusterCount, len(w.cuePoints))

	return err
}

// HeaderSize implements cluster.Output.
func (w *Writer) HeaderSize() int64 {
	return w.headerSize
}

// WriteCluster implements cluster.Output.
func (w *Writer) WriteCluster(r *cluster.Rendered) (int64, error) {
	el := clusterElement{
		Timecode:   r.Timecode,
		PrevSize:   w.prevSize,
		BlockGroup: make([]blockGroup, len(r.Blocks)),
	}

	for i, b := range r.Blocks {
		bg := blockGroup{
			Block: ebml.Block{
				TrackNumber: b.Track.Number,
				Timecode:    b.Timecode,
				Data:        b.Frames,
			},
			ReferencePriority: b.RefPriority,
			ReferenceBlock:    b.References,
		}

		if !b.Track.LacingEnabled && len(b.Frames) > 1 {
			return 0, fmt.Errorf("track %d does not allow lacing", b.Track.Number)
		}

		_, err := encodeBlock(&bg.Block, w.Lacing)
		if err != nil {
			return 0, err
		}

		if b.HasDuration {
			bg.BlockDuration = []uint64{b.Duration}
		}

		el.BlockGroup[i] = bg
	}

	var buf bytes.Buffer
	err := ebml.Marshal(&clusterContainer{Cluster: el}, &buf)
	if err != nil {
		return 0, err
	}

	_, err = w.w.Write(buf.Bytes())
	if err != nil {
		return 0, err
	}

	pos := w.pos

	for _, c := range r.Cues {
		w.cuePoints = append(w.cuePoints, cuePoint{
			CueTime: c.Timecode,
			CueTrackPositions: []cueTrackPositions{{
				CueTrack:           c.Track,
				CueClusterPosition: pos,
				CueBlockNumber:     uint64(c.BlockNumber),
			}},
		})
	}

	w.Log(logger.Debug, "cluster %d written at position %d, timecode %d, previous cluster at %v",
		w.clusterCount+1, pos, r.Timecode, time.Duration(r.PrevTimecode))

	w.clusterPos = append(w.clusterPos, pos)
	w.clusterCount++
	w.prevSize = uint64(buf.Len())
	w.pos += uint64(buf.Len())

	return int64(buf.Len()), nil
}

// CueCount implements cluster.Output.
func (w *Writer) CueCount() int {
	return len(w.cuePoints)
}

// CuesSize implements cluster.Output.
func (w *Writer) CuesSize() int64 {
	if len(w.cuePoints) == 0 {
		return 0
	}

	var buf bytes.Buffer
	err := ebml.Marshal(&cuesContainer{Cues: cues{CuePoint: w.cuePoints}}, &buf)
	if err != nil {
		return 0
	}

	return int64(buf.Len())
}

// NextFile implements cluster.Output.
func (w *Writer) NextFile() error {
	w.prevUID = w.segmentUID

	err := w.closeFile()
	if err != nil {
		return err
	}

	return w.openFile()
}
