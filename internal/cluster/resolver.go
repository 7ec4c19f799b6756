package cluster

import (
	"errors"
	"fmt"
	"strings"
)

// tolerance when matching a reference against a raw timecode.
const referenceTolerance = 10000

// ErrUnresolvedReference is returned when a referenced frame is not buffered.
var ErrUnresolvedReference = errors.New("unresolved reference")

// ReferenceKind is the kind of a reference.
type ReferenceKind string

// reference kinds.
const (
	ReferenceBackward ReferenceKind = "backward"
	ReferenceForward  ReferenceKind = "forward"
)

// UnresolvedReferenceError is returned when a reference cannot be resolved.
type UnresolvedReferenceError struct {
	Track    uint64
	Kind     ReferenceKind
	Timecode int64

	// dump of the cluster that was being processed
	Queue string
}

// Error implements error.
func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("%s reference to %d on track %d cannot be resolved",
		e.Kind, e.Timecode, e.Track)
}

// Unwrap returns ErrUnresolvedReference.
func (e *UnresolvedReferenceError) Unwrap() error {
	return ErrUnresolvedReference
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func (h *Helper) findPacketCluster(ref int64, track *Track) (*clusterEntry, *Packet) {
	for _, c := range h.clusters {
		for _, p := range c.packets {
			if p.Track == track && abs(p.Timecode-ref) <= referenceTolerance {
				return c, p
			}
		}
	}
	return nil, nil
}

func (h *Helper) findPacket(ref int64, track *Track) *Packet {
	_, p := h.findPacketCluster(ref, track)
	return p
}

func (h *Helper) allReferencesResolved(c *clusterEntry) bool {
	for _, p := range c.packets {
		if p.Bref != NoReference && h.findPacket(p.Bref, p.Track) == nil {
			return false
		}
		if p.Fref != NoReference && h.findPacket(p.Fref, p.Track) == nil {
			return false
		}
	}
	return true
}

func dumpQueue(c *clusterEntry) string {
	var b strings.Builder
	for i, p := range c.packets {
		fmt.Fprintf(&b, "packet %d, track %d, timecode %d, bref %d, fref %d\n",
			i, p.Track.Number, p.Timecode, p.Bref, p.Fref)
	}
	return b.String()
}

// resolveRendered returns the block group that holds a referenced frame.
func (h *Helper) resolveRendered(c *clusterEntry, p *Packet, ref int64, kind ReferenceKind) (*Block, error) {
	target := h.findPacket(ref, p.Track)
	if target == nil || target.group == nil {
		return nil, &UnresolvedReferenceError{
			Track:    p.Track.Number,
			Kind:     kind,
			Timecode: ref,
			Queue:    dumpQueue(c),
		}
	}
	return target.group, nil
}
