// Package planner turns a transcript into contiguous sections, either from
// boundary proposals located in the transcript or by an even split.
package planner

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/MimeLyc/video-sections/internal/locator"
	"github.com/MimeLyc/video-sections/internal/section"
	"github.com/MimeLyc/video-sections/internal/transcript"
	"github.com/MimeLyc/video-sections/pkg/log"
)

var ErrNoSegments = errors.New("transcript has no segments")

type Method string

const (
	MethodLLM       Method = "llm"
	MethodEvenSplit Method = "even_split"
)

// startTolerance is how close to 0 the earliest boundary must be to count as the start of the video.
const startTolerance = 5

// Proposal is a suggested section start: a title plus an approximate quote
// of the section's first words.
type Proposal struct {
	Title  string `json:"title"`
	Phrase string `json:"boundary_phrase"`
}

// Proposer suggests targetCount section boundaries for a transcript of the
// given length in whole minutes.
type Proposer interface {
	ProposeBoundaries(ctx context.Context, transcriptText string, minutes, targetCount int) ([]Proposal, error)
}

// Candidate is a located boundary before sanitation
type Candidate struct {
	Timestamp int
	Title     string
}

type Plan struct {
	Sections    []section.Section    `json:"sections"`
	TargetCount int                  `json:"target_count"`
	Method      Method               `json:"method"`
	Resolutions []locator.Resolution `json:"resolutions,omitempty"`
	Fallback    string               `json:"fallback_reason,omitempty"`
}

type Planner struct {
	proposer Proposer
	locator  *locator.Locator
}

func New(proposer Proposer, loc *locator.Locator) *Planner {
	if loc == nil {
		loc = locator.Default()
	}
	return &Planner{proposer: proposer, locator: loc}
}

// TargetCount maps the video length to the number of sections to aim for.
func TargetCount(duration float64) int {
	minutes := int(duration / 60)
	switch {
	case minutes <= 3:
		return 3
	case minutes <= 5:
		return 4
	case minutes <= 10:
		return 5
	case minutes <= 20:
		return 8
	case minutes <= 40:
		return 12
	default:
		return min(20, minutes/3)
	}
}

// Plan proposes, locates, sanitizes and gates boundaries, falling back to an
// even split whenever the proposals cannot be trusted. Only an empty store is an error.
func (p *Planner) Plan(ctx context.Context, transcriptText string, store *transcript.Store) (*Plan, error) {
	if store == nil || store.Len() == 0 {
		return nil, ErrNoSegments
	}

	minutes := int(store.Duration() / 60)
	target := TargetCount(store.Duration())
	log.Info("Video: %d minutes, targeting %d sections", minutes, target)

	if p.proposer == nil {
		return p.evenPlan(store, target, nil, "no proposer configured"), nil
	}

	proposals, err := p.proposer.ProposeBoundaries(ctx, transcriptText, minutes, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("Boundary proposals failed, using even split: %v", err)
		return p.evenPlan(store, target, nil, "proposer failed"), nil
	}
	if len(proposals) == 0 {
		log.Warn("Boundary proposals were empty, using even split")
		return p.evenPlan(store, target, nil, "no proposals"), nil
	}

	resolutions := make([]locator.Resolution, 0, len(proposals))
	candidates := make([]Candidate, 0, len(proposals))
	for _, prop := range proposals {
		res := p.locator.Locate(prop.Phrase, store)
		resolutions = append(resolutions, res)
		if res.Source != locator.Matched {
			log.Warn("  '%s' not located (best match %.0f%%)", prop.Title, res.Confidence*100)
			continue
		}
		log.Debug("  '%s' -> %ds (match %.0f%%)", prop.Title, res.Timestamp, res.Confidence*100)
		candidates = append(candidates, Candidate{Timestamp: res.Timestamp, Title: prop.Title})
	}

	retained := Sanitize(candidates)
	if len(retained) < 2 || len(retained)*2 < target {
		log.Warn("Only %d of %d boundaries survived, using even split", len(retained), target)
		return p.evenPlan(store, target, resolutions, "too few boundaries"), nil
	}

	return &Plan{
		Sections:    materialize(store, retained),
		TargetCount: target,
		Method:      MethodLLM,
		Resolutions: resolutions,
	}, nil
}

func (p *Planner) evenPlan(store *transcript.Store, target int, resolutions []locator.Resolution, reason string) *Plan {
	return &Plan{
		Sections:    EvenSplit(store, target),
		TargetCount: target,
		Method:      MethodEvenSplit,
		Resolutions: resolutions,
		Fallback:    reason,
	}
}

// Sanitize orders candidates by timestamp, keeps the first candidate per
// timestamp and snaps the earliest boundary to 0 when it lies within the
// first five seconds.
func Sanitize(candidates []Candidate) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	out := make([]Candidate, 0, len(sorted))
	seen := make(map[int]struct{}, len(sorted))
	for _, c := range sorted {
		if _, dup := seen[c.Timestamp]; dup {
			continue
		}
		seen[c.Timestamp] = struct{}{}
		out = append(out, c)
	}

	if len(out) > 0 && out[0].Timestamp <= startTolerance {
		out[0].Timestamp = 0
	}
	return out
}

// materialize turns ordered, distinct boundaries into sections covering
// [0, ceil(duration)). Section 0 always starts at 0 and every segment lands
// in exactly one section.
func materialize(store *transcript.Store, boundaries []Candidate) []section.Section {
	end := int(math.Ceil(store.Duration()))

	starts := make([]Candidate, 0, len(boundaries))
	for i, b := range boundaries {
		if i == 0 {
			b.Timestamp = 0
		} else if b.Timestamp >= end || b.Timestamp <= starts[len(starts)-1].Timestamp {
			continue
		}
		starts = append(starts, b)
	}

	sections := make([]section.Section, len(starts))
	for i, b := range starts {
		sectionEnd := end
		contentFrom, contentTo := float64(b.Timestamp), math.Inf(1)
		if i+1 < len(starts) {
			sectionEnd = starts[i+1].Timestamp
			contentTo = float64(sectionEnd)
		}
		if i == 0 {
			contentFrom = math.Inf(-1)
		}
		sections[i] = section.Section{
			Index:   i,
			Title:   b.Title,
			Start:   b.Timestamp,
			End:     sectionEnd,
			Content: store.ContentBetween(contentFrom, contentTo),
		}
	}
	return sections
}
