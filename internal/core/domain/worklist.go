package domain

// WorkList is the ordered set of tiles not yet confirmed downloaded.
type WorkList []TileBounds

// Batches splits the work list into consecutive chunks of at most size tiles,
// preserving order.
func (w WorkList) Batches(size int) []WorkList {
	if size <= 0 {
		size = len(w)
	}
	if len(w) == 0 {
		return nil
	}
	out := make([]WorkList, 0, (len(w)+size-1)/size)
	for start := 0; start < len(w); start += size {
		end := start + size
		if end > len(w) {
			end = len(w)
		}
		out = append(out, w[start:end])
	}
	return out
}

// Missing returns the tiles whose file name is not in downloaded, in order.
func (w WorkList) Missing(downloaded map[string]struct{}) WorkList {
	missing := make(WorkList, 0, len(w))
	for _, t := range w {
		if _, ok := downloaded[t.FileName()]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}
