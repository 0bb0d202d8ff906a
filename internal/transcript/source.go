package transcript

import (
	"context"
	"errors"
	"fmt"
)

// Source supplies the segments of a video's transcript.
type Source interface {
	Fetch(ctx context.Context, videoID string) ([]Segment, error)
}

// ErrUnavailable matches every *UnavailableError through errors.Is.
var ErrUnavailable = errors.New("transcript unavailable")

type Reason string

const (
	ReasonDisabled         Reason = "disabled"
	ReasonNotFound         Reason = "not_found"
	ReasonVideoUnavailable Reason = "video_unavailable"
)

// UnavailableError reports that no transcript can be produced for a video.
type UnavailableError struct {
	VideoID string
	Reason  Reason
}

func (e *UnavailableError) Error() string {
	switch e.Reason {
	case ReasonDisabled:
		return "Transcripts are disabled for this video"
	case ReasonNotFound:
		return "No transcript found for this video"
	case ReasonVideoUnavailable:
		return "Video is unavailable"
	default:
		return fmt.Sprintf("transcript unavailable for %s: %s", e.VideoID, e.Reason)
	}
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func unavailable(videoID string, reason Reason) error {
	return &UnavailableError{VideoID: videoID, Reason: reason}
}

// StaticSource serves transcripts held in memory, keyed by video ID.
type StaticSource map[string][]Segment

func (s StaticSource) Fetch(_ context.Context, videoID string) ([]Segment, error) {
	segs, ok := s[videoID]
	if !ok || len(segs) == 0 {
		return nil, unavailable(videoID, ReasonNotFound)
	}
	out := make([]Segment, len(segs))
	copy(out, segs)
	return out, nil
}
