package transcript

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/MimeLyc/video-sections/internal/subtitle"
	"golang.org/x/text/language"
)

// Segment is one timed unit of transcript text. Times are in seconds.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Store is an immutable, start-ordered view over a transcript's segments.
// It is safe for concurrent use.
type Store struct {
	segments []Segment

	langOnce sync.Once
	lang     language.Tag
}

// NewStore copies segs and stable-sorts the copy by Start.
func NewStore(segs []Segment) *Store {
	cp := make([]Segment, len(segs))
	copy(cp, segs)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Start < cp[j].Start })
	return &Store{segments: cp}
}

func (s *Store) Len() int { return len(s.segments) }

func (s *Store) At(i int) Segment { return s.segments[i] }

// Segments returns a copy of the ordered segments
func (s *Store) Segments() []Segment {
	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Text joins every segment's text with a single space
func (s *Store) Text() string {
	parts := make([]string, len(s.segments))
	for i, seg := range s.segments {
		parts[i] = seg.Text
	}
	return strings.Join(parts, " ")
}

// Duration is the end of the last segment, 0 for an empty store.
func (s *Store) Duration() float64 {
	if len(s.segments) == 0 {
		return 0
	}
	last := s.segments[len(s.segments)-1]
	return last.Start + last.Duration
}

// WindowText returns the lower-cased, whitespace-normalised text of up to n
// segments starting at i.
func (s *Store) WindowText(i, n int) string {
	if i < 0 || i >= len(s.segments) || n <= 0 {
		return ""
	}
	end := min(i+n, len(s.segments))
	var b strings.Builder
	for _, seg := range s.segments[i:end] {
		b.WriteString(seg.Text)
		b.WriteByte(' ')
	}
	return strings.Join(strings.Fields(strings.ToLower(b.String())), " ")
}

// ContentBetween joins the texts of segments whose Start lies in [start, end).
func (s *Store) ContentBetween(start, end float64) string {
	parts := make([]string, 0)
	for _, seg := range s.segments {
		if seg.Start >= end {
			break
		}
		if seg.Start >= start {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}

// ClosestIndex returns the first index whose Start is nearest to t, or -1 when empty.
func (s *Store) ClosestIndex(t float64) int {
	best := -1
	bestDiff := math.Inf(1)
	for i, seg := range s.segments {
		if d := math.Abs(seg.Start - t); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

// Language is the dominant language of the segment texts, computed once.
func (s *Store) Language() language.Tag {
	s.langOnce.Do(func() {
		texts := make([]string, len(s.segments))
		for i, seg := range s.segments {
			texts[i] = seg.Text
		}
		s.lang = subtitle.DetectLanguage(texts)
	})
	return s.lang
}
