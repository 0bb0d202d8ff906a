package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/video-sections/internal/enricher"
	"github.com/MimeLyc/video-sections/internal/section"
	"github.com/MimeLyc/video-sections/pkg/log"
)

const eventBuffer = 16

// progress milestones; section events spread linearly between planned and done
const (
	progressInit     = 0
	progressFetching = 10
	progressPlanning = 30
	progressPlanned  = 40
	progressDone     = 100
)

// PlanProgressive runs one pipeline pass and streams its events. The
// channel closes after a result or error event, or once ctx is cancelled.
func (s *Service) PlanProgressive(ctx context.Context, videoRef string) <-chan Event {
	events := make(chan Event, eventBuffer)
	run := &progressiveRun{
		svc:     s,
		id:      uuid.NewString(),
		events:  events,
		started: time.Now(),
	}
	go func() {
		defer close(events)
		run.execute(ctx, videoRef)
	}()
	return events
}

type progressiveRun struct {
	svc     *Service
	id      string
	events  chan<- Event
	started time.Time
}

// emit delivers ev unless the consumer went away.
func (r *progressiveRun) emit(ctx context.Context, ev Event) bool {
	ev.RunID = r.id
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *progressiveRun) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		log.Info("Progressive run %s stopped: %v", r.id, ctx.Err())
		return
	}
	payload := ErrorPayload{Type: PipelineFatal.String(), Message: err.Error()}
	var pErr *PipelineError
	if errors.As(err, &pErr) {
		payload = ErrorPayload{Type: pErr.Type.String(), Message: pErr.Message}
	}
	r.svc.errs.Handle(err)
	r.emit(ctx, Event{Stage: StageError, Message: payload.Message, Progress: progressDone, Payload: payload})
}

func (r *progressiveRun) execute(ctx context.Context, videoRef string) {
	if !r.emit(ctx, Event{Stage: StageInit, Message: "Starting analysis", Progress: progressInit}) {
		return
	}

	videoID, err := parseRef(videoRef)
	if err != nil {
		r.fail(ctx, err)
		return
	}

	pv, ok := r.svc.cached(ctx, videoID)
	if ok {
		if !r.emit(ctx, Event{Stage: StageFetching, Message: "Using cached transcript", Progress: progressFetching}) {
			return
		}
		if !r.emit(ctx, Event{Stage: StagePlanning, Message: "Using cached sections", Progress: progressPlanning}) {
			return
		}
	} else {
		if !r.emit(ctx, Event{Stage: StageFetching, Message: "Fetching transcript", Progress: progressFetching}) {
			return
		}
		store, err := r.svc.fetch(ctx, videoID)
		if err != nil {
			r.fail(ctx, err)
			return
		}
		if !r.emit(ctx, Event{Stage: StagePlanning, Message: "Planning sections", Progress: progressPlanning}) {
			return
		}
		pv, err = r.svc.sharedPlan(ctx, "progressive:"+videoID, func(fctx context.Context) (*plannedVideo, error) {
			return r.svc.planStore(fctx, videoID, store)
		})
		if err != nil {
			r.fail(ctx, err)
			return
		}
	}

	total := len(pv.sections)
	if !r.emit(ctx, Event{
		Stage:    StagePlanned,
		Message:  fmt.Sprintf("Found %d sections", total),
		Progress: progressPlanned,
		Payload:  PlannedPayload{Count: total, Method: pv.method, Cached: pv.cached},
	}) {
		return
	}

	enriched, ok := r.generate(ctx, pv)
	if !ok {
		return
	}

	r.emit(ctx, Event{
		Stage:    StageComplete,
		Message:  "Complete",
		Progress: progressDone,
		Payload: &Result{
			RunID:          r.id,
			VideoID:        videoID,
			Method:         pv.method,
			Cached:         pv.cached,
			Sections:       enriched,
			Transcript:     pv.transcriptText,
			ProcessingTime: time.Since(r.started).Seconds(),
		},
	})
}

// generate enriches sections in parallel and emits them strictly in index order.
func (r *progressiveRun) generate(ctx context.Context, pv *plannedVideo) ([]section.EnrichedSection, bool) {
	total := len(pv.sections)
	out := make([]section.EnrichedSection, total)
	done := make([]chan struct{}, total)
	for i := range done {
		done[i] = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.svc.opts.Concurrency)
	go func() {
		for i, sec := range pv.sections {
			if gctx.Err() != nil {
				return
			}
			withQuiz := i < r.svc.opts.QuizPrefix
			g.Go(func() error {
				defer close(done[i])
				out[i] = r.svc.enricher.Enrich(gctx, sec, enricher.Options{
					Questions: withQuiz,
					Quiz:      withQuiz,
					Total:     total,
				})
				return nil
			})
		}
	}()

	for i := range pv.sections {
		select {
		case <-done[i]:
		case <-ctx.Done():
			return nil, false
		}
		progress := progressPlanned + (progressDone-progressPlanned-5)*(i+1)/total
		if !r.emit(ctx, Event{
			Stage:    StageGenerating,
			Message:  fmt.Sprintf("Generated section %d of %d", i+1, total),
			Progress: progress,
			Payload:  out[i],
		}) {
			return nil, false
		}
	}
	return out, true
}
