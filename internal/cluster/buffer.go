package cluster

// clusterEntry is a buffered cluster.
type clusterEntry struct {
	packets      []*Packet
	prevTimecode int64
	rendered     bool
	referenced   bool
	contentSize  int64
}

func (c *clusterEntry) firstTimecode() int64 {
	return c.packets[0].AssignedTimecode
}

func (c *clusterEntry) lastTimecode() int64 {
	return c.packets[len(c.packets)-1].AssignedTimecode
}

func (c *clusterEntry) append(p *Packet) {
	c.packets = append(c.packets, p)
	c.contentSize += int64(len(p.Data))
}

// current returns the cluster that receives new packets.
func (h *Helper) current() *clusterEntry {
	if len(h.clusters) == 0 {
		return nil
	}
	return h.clusters[len(h.clusters)-1]
}

// addCluster opens a new cluster, unless the current one is still empty and open.
func (h *Helper) addCluster() *clusterEntry {
	if cur := h.current(); cur != nil && !cur.rendered && len(cur.packets) == 0 {
		cur.prevTimecode = h.lastClusterTimecode
		return cur
	}

	c := &clusterEntry{
		prevTimecode: h.lastClusterTimecode,
	}
	h.clusters = append(h.clusters, c)
	return c
}
