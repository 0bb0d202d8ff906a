package planner

import (
	"github.com/MimeLyc/video-sections/internal/section"
	"github.com/MimeLyc/video-sections/internal/transcript"
)

// EvenSplit cuts the video into count equal intervals and anchors each one on
// the start of the segment closest to the interval start. Anchors that land on
// the same second collapse.
func EvenSplit(store *transcript.Store, count int) []section.Section {
	if store == nil || store.Len() == 0 {
		return nil
	}
	if count < 1 {
		count = 1
	}

	interval := store.Duration() / float64(count)
	anchors := make([]Candidate, 0, count)
	seen := make(map[int]struct{}, count)
	for i := 0; i < count; i++ {
		idx := store.ClosestIndex(float64(i) * interval)
		ts := int(store.At(idx).Start)
		if _, dup := seen[ts]; dup {
			continue
		}
		seen[ts] = struct{}{}
		anchors = append(anchors, Candidate{Timestamp: ts})
	}

	return materialize(store, anchors)
}
