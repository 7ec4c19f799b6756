package cluster

import (
	"fmt"
)

// collect releases clusters that are rendered and no longer referenced.
func (h *Helper) collect() error {
	for _, c := range h.clusters {
		c.referenced = false

		for _, p := range c.packets {
			if p.Track.freePoint > p.Timecode {
				p.superseded = true
			}
		}
	}

	for _, c := range h.clusters {
		for _, p := range c.packets {
			if p.superseded {
				continue
			}

			c.referenced = true

			if p.Bref == NoReference {
				continue
			}

			target, _ := h.findPacketCluster(p.Bref, p.Track)
			if target == nil {
				return fmt.Errorf("packet %d: %w", p.num, &UnresolvedReferenceError{
					Track:    p.Track.Number,
					Kind:     ReferenceBackward,
					Timecode: p.Bref,
					Queue:    dumpQueue(c),
				})
			}
			target.referenced = true
		}
	}

	n := 0
	for _, c := range h.clusters {
		if !c.rendered || c.referenced {
			h.clusters[n] = c
			n++
		}
	}
	for i := n; i < len(h.clusters); i++ {
		h.clusters[i] = nil
	}
	h.clusters = h.clusters[:n]

	if len(h.clusters) == 0 {
		h.addCluster()
	}

	return nil
}
