package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/asticode/go-astits"

	"github.com/bluenviron/mkvmux/internal/cluster"
	"github.com/bluenviron/mkvmux/internal/conf"
	"github.com/bluenviron/mkvmux/internal/counterdumper"
	"github.com/bluenviron/mkvmux/internal/logger"
	"github.com/bluenviron/mkvmux/internal/matroska"
	"github.com/bluenviron/mkvmux/internal/protocols/mpegts"
)

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, astits.ErrNoMorePackets)
}

func (p *Core) remux() error {
	f, err := os.Open(p.inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	r := &mpegts.EnhancedReader{R: f}
	err = r.Initialize()
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", p.inputPath, err)
	}

	decodeErrors := &counterdumper.CounterDumper{
		OnReport: func(val uint64) {
			p.Log(logger.Warn, "%d decode %s",
				val,
				func() string {
					if val == 1 {
						return "error"
					}
					return "errors"
				}())
		},
	}
	decodeErrors.Start()
	defer decodeErrors.Stop()

	r.OnDecodeError(func(_ error) {
		decodeErrors.Increase()
	})

	written := &counterdumper.CounterDumper{
		OnReport: func(val uint64) {
			p.Log(logger.Debug, "%d packets written", val)
		},
	}
	written.Start()
	defer written.Stop()

	var h *cluster.Helper

	tracks, flush, err := mpegts.ToTracks(r, func(pkt *cluster.Packet) error {
		err2 := h.WritePacket(pkt)
		if err2 != nil {
			return err2
		}
		written.Increase()
		return nil
	}, p)
	if err != nil {
		return err
	}

	for _, t := range tracks {
		t.CuePolicy = p.conf.CuePolicyFor(t.Type)
		p.Log(logger.Info, "track %d: %s %s", t.Number, t.Type, t.CodecID)
	}

	w := &matroska.Writer{
		Create: func(fileNum int) (io.WriteCloser, error) {
			fpath := outputPath(p.outputPath, p.conf.Split, fileNum)
			p.Log(logger.Info, "writing %s", fpath)
			return createOutputFile(fpath)
		},
		TimecodeScale: time.Duration(p.conf.TimecodeScale),
		Title:         p.conf.Title,
		Tracks:        tracks,
		Lacing:        matroska.LacingMode(p.conf.Lacing),
		Linking:       p.conf.Linking,
		ClusterIndex:  p.conf.ClusterIndex,
		Parent:        p,
	}
	err = w.Initialize()
	if err != nil {
		return err
	}

	h = &cluster.Helper{
		TimecodeScale:        time.Duration(p.conf.TimecodeScale),
		MaxClusterDuration:   time.Duration(p.conf.MaxClusterDuration),
		MaxBlocksPerCluster:  p.conf.MaxBlocksPerCluster,
		AlwaysWriteDurations: p.conf.AlwaysWriteDurations,
		Split:                p.conf.Split,
		SplitByTime:          p.conf.SplitMode == conf.SplitModeDuration,
		SplitSize:            int64(p.conf.SplitSize),
		SplitDuration:        time.Duration(p.conf.SplitDuration),
		SplitMaxFiles:        p.conf.SplitMaxFiles,
		Linking:              p.conf.Linking,
		Tracks:               tracks,
		Output:               w,
		Parent:               p,
	}
	err = h.Initialize()
	if err != nil {
		w.Close()
		return err
	}

	err = p.readAll(r, flush, h)
	if err != nil {
		var ue *cluster.UnresolvedReferenceError
		if errors.As(err, &ue) {
			p.Log(logger.Debug, "buffered packets:\n%s", ue.Queue)
		}

		w.Close()
		return err
	}

	err = w.Close()
	if err != nil {
		return err
	}

	p.Log(logger.Info, "done, %d %s written, duration %v, %d packets",
		h.FileNumber(),
		func() string {
			if h.FileNumber() == 1 {
				return "file"
			}
			return "files"
		}(),
		h.Duration(),
		written.Total())

	return nil
}

func (p *Core) readAll(r *mpegts.EnhancedReader, flush func() error, h *cluster.Helper) error {
	for {
		if p.ctx.Err() != nil {
			p.Log(logger.Warn, "interrupted, writing buffered clusters")
			break
		}

		err := r.Read()
		if err != nil {
			if isEOF(err) {
				break
			}
			return err
		}
	}

	err := flush()
	if err != nil {
		return err
	}

	return h.Flush()
}
