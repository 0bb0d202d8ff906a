package transcript

import (
	"context"

	"github.com/MimeLyc/video-sections/pkg/log"
)

// Strategy is one way of locating a transcript. Find reports false when the
// strategy has nothing for the video.
type Strategy struct {
	Name string
	Find func(ctx context.Context, videoID string) ([]Segment, bool)
}

// Chain tries its strategies in order; the first hit wins.
type Chain []Strategy

// Resolve returns the first strategy hit and its name.
func (c Chain) Resolve(ctx context.Context, videoID string) ([]Segment, string, bool) {
	for _, st := range c {
		if ctx.Err() != nil {
			return nil, "", false
		}
		segs, ok := st.Find(ctx, videoID)
		if !ok || len(segs) == 0 {
			log.Debug("Transcript strategy %s: no match for %s", st.Name, videoID)
			continue
		}
		log.Info("Transcript for %s resolved by %s (%d segments)", videoID, st.Name, len(segs))
		return segs, st.Name, true
	}
	return nil, "", false
}
