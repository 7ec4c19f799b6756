package cluster

// Round rounds a timestamp to the nearest multiple of scale, halves away from zero.
func Round(t int64, scale int64) int64 {
	if scale <= 1 {
		return t
	}

	if t < 0 {
		return -((-t + scale/2) / scale * scale)
	}
	return (t + scale/2) / scale * scale
}
