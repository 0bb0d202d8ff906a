package service

import (
	"github.com/MimeLyc/video-sections/internal/planner"
	"github.com/MimeLyc/video-sections/internal/section"
)

// Result is the complete outcome of one planning run.
type Result struct {
	RunID          string                    `json:"run_id"`
	VideoID        string                    `json:"video_id"`
	Method         planner.Method            `json:"method"`
	Cached         bool                      `json:"cached"`
	Sections       []section.EnrichedSection `json:"sections"`
	Transcript     string                    `json:"transcript"`
	ProcessingTime float64                   `json:"processing_time"` // seconds
}

// BatchOptions tunes PlanBatch. SkipQuiz leaves quiz material for on-demand generation.
type BatchOptions struct {
	SkipQuiz bool
}

// OnDemandResult is the deferred study material for one section.
type OnDemandResult struct {
	Questions []string           `json:"questions"`
	Quiz      []section.QuizItem `json:"quiz"`
}

// SectionQuiz is OnDemandResult for a planned section.
type SectionQuiz struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	OnDemandResult
}

type Stage string

const (
	StageInit       Stage = "init"
	StageFetching   Stage = "fetching_transcript"
	StagePlanning   Stage = "planning_sections"
	StagePlanned    Stage = "sections_planned"
	StageGenerating Stage = "section"
	StageComplete   Stage = "result"
	StageError      Stage = "error"
)

// Event is one progressive record. Payload type depends on Stage:
// PlannedPayload, section.EnrichedSection, *Result or ErrorPayload.
type Event struct {
	RunID    string `json:"run_id"`
	Stage    Stage  `json:"stage"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
	Payload  any    `json:"payload,omitempty"`
}

type PlannedPayload struct {
	Count  int            `json:"count"`
	Method planner.Method `json:"method"`
	Cached bool           `json:"cached"`
}

type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Terminal reports whether no event can follow e.
func (e Event) Terminal() bool {
	return e.Stage == StageComplete || e.Stage == StageError
}

// plannedVideo is the cached or freshly computed plan a run enriches.
type plannedVideo struct {
	videoID        string
	sections       []section.Section
	transcriptText string
	method         planner.Method
	cached         bool
}
