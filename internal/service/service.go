// Package service assembles transcript fetching, section planning and
// enrichment into batch and progressive runs.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/video-sections/internal/cache"
	"github.com/MimeLyc/video-sections/internal/enricher"
	"github.com/MimeLyc/video-sections/internal/planner"
	"github.com/MimeLyc/video-sections/internal/section"
	"github.com/MimeLyc/video-sections/internal/transcript"
	"github.com/MimeLyc/video-sections/pkg/log"
)

const (
	DefaultConcurrency = 4
	DefaultQuizPrefix  = 4
)

type Options struct {
	// Concurrency bounds simultaneous section enrichments within one run.
	Concurrency int
	// QuizPrefix is how many leading sections get questions and quiz in progressive runs.
	QuizPrefix int
}

type Service struct {
	source   transcript.Source
	planner  *planner.Planner
	enricher *enricher.Enricher
	cache    cache.Cache
	errs     ErrorHandler
	opts     Options

	flight    singleflight.Group
	flightMu  sync.Mutex
	flights   map[string]*sharedFlight
	flightGen uint64
}

// sharedFlight is the context one shared planning computation runs on. It
// is cancelled once every caller waiting on it has gone; gen keys the
// singleflight call so a cancelled flight is never joined.
type sharedFlight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	gen     uint64
	waiters int
}

func New(
	source transcript.Source,
	p *planner.Planner,
	e *enricher.Enricher,
	c cache.Cache,
	opts Options,
) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.QuizPrefix < 0 {
		opts.QuizPrefix = DefaultQuizPrefix
	}
	if c == nil {
		c = cache.NewMemory()
	}
	return &Service{
		source:   source,
		planner:  p,
		enricher: e,
		cache:    c,
		errs:     NewDefaultErrorHandler(),
		opts:     opts,
		flights:  make(map[string]*sharedFlight),
	}
}

// PlanBatch plans and enriches every section before returning.
func (s *Service) PlanBatch(ctx context.Context, videoRef string, opts BatchOptions) (*Result, error) {
	started := time.Now()
	runID := uuid.NewString()

	videoID, err := parseRef(videoRef)
	if err != nil {
		return nil, err
	}
	log.Info("Batch run %s for video %s", runID, videoID)

	pv, err := s.plan(ctx, videoID)
	if err != nil {
		return nil, err
	}

	enrichOpts := func(int) enricher.Options {
		return enricher.Options{Questions: true, Quiz: !opts.SkipQuiz, Total: len(pv.sections)}
	}
	enriched, err := s.enrichAll(ctx, pv.sections, enrichOpts)
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:          runID,
		VideoID:        videoID,
		Method:         pv.method,
		Cached:         pv.cached,
		Sections:       enriched,
		Transcript:     pv.transcriptText,
		ProcessingTime: time.Since(started).Seconds(),
	}, nil
}

// EnrichOnDemand generates questions and a quiz for content that was planned earlier.
func (s *Service) EnrichOnDemand(ctx context.Context, content, title string) OnDemandResult {
	questions, quiz := s.enricher.OnDemand(ctx, content, title)
	return OnDemandResult{Questions: questions, Quiz: quiz}
}

// QuizForSections generates on-demand material for the given section indices
// of a cached plan. Empty indices selects every section.
func (s *Service) QuizForSections(ctx context.Context, videoRef string, indices []int) ([]SectionQuiz, error) {
	videoID, err := parseRef(videoRef)
	if err != nil {
		return nil, err
	}
	entry, ok, err := s.cache.Get(ctx, videoID)
	if err != nil {
		return nil, WrapError(err, PipelineFatal, "read cache").WithContext("video_id", videoID)
	}
	if !ok {
		return nil, NewErrorWithCause(NotPlanned, "video has not been planned yet", ErrNotPlanned).
			WithContext("video_id", videoID)
	}

	if len(indices) == 0 {
		indices = make([]int, len(entry.Sections))
		for i := range entry.Sections {
			indices[i] = i
		}
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(entry.Sections) {
			return nil, NewError(Validation, fmt.Sprintf("section index %d out of range", idx)).
				WithContext("sections", len(entry.Sections))
		}
	}

	out := make([]SectionQuiz, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, idx := range indices {
		sec := entry.Sections[idx]
		g.Go(func() error {
			title := section.DisplayTitle(sec)
			out[i] = SectionQuiz{
				Index:          sec.Index,
				Title:          title,
				OnDemandResult: s.EnrichOnDemand(gctx, sec.Content, title),
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Evict drops the cached plan of a video.
func (s *Service) Evict(ctx context.Context, videoRef string) error {
	videoID, err := parseRef(videoRef)
	if err != nil {
		return err
	}
	return s.cache.Evict(ctx, videoID)
}

// plan returns the cached plan or computes it. Concurrent calls for the same
// video share one computation.
func (s *Service) plan(ctx context.Context, videoID string) (*plannedVideo, error) {
	if pv, ok := s.cached(ctx, videoID); ok {
		return pv, nil
	}
	return s.sharedPlan(ctx, videoID, func(fctx context.Context) (*plannedVideo, error) {
		// a flight that finished just before this one already cached the plan
		if pv, ok := s.cached(fctx, videoID); ok {
			return pv, nil
		}
		store, err := s.fetch(fctx, videoID)
		if err != nil {
			return nil, err
		}
		return s.planStore(fctx, videoID, store)
	})
}

// sharedPlan runs work once per key for all concurrent callers. work gets a
// context that outlives any single caller and is cancelled only when the
// last waiting caller leaves. A caller whose own ctx ends gets ctx.Err().
func (s *Service) sharedPlan(
	ctx context.Context,
	key string,
	work func(ctx context.Context) (*plannedVideo, error),
) (*plannedVideo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fl := s.joinFlight(ctx, key)
	defer s.leaveFlight(key, fl)

	ch := s.flight.DoChan(fmt.Sprintf("%s#%d", key, fl.gen), func() (any, error) {
		return work(fl.ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, res.Err
		}
		if res.Shared {
			log.Debug("Plan for %s shared with a concurrent run", key)
		}
		return res.Val.(*plannedVideo), nil
	case <-ctx.Done():
		log.Info("Caller left the plan for %s: %v", key, ctx.Err())
		return nil, ctx.Err()
	}
}

func (s *Service) joinFlight(ctx context.Context, key string) *sharedFlight {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	fl, ok := s.flights[key]
	if !ok {
		s.flightGen++
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &sharedFlight{ctx: fctx, cancel: cancel, gen: s.flightGen}
		s.flights[key] = fl
	}
	fl.waiters++
	return fl
}

func (s *Service) leaveFlight(key string, fl *sharedFlight) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	if s.flights[key] == fl {
		delete(s.flights, key)
	}
}

func (s *Service) cached(ctx context.Context, videoID string) (*plannedVideo, bool) {
	entry, ok, err := s.cache.Get(ctx, videoID)
	if err != nil {
		log.Warn("Cache read for %s failed: %v", videoID, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	log.Info("Cache hit for %s (%d sections)", videoID, len(entry.Sections))
	return &plannedVideo{
		videoID:        videoID,
		sections:       entry.Sections,
		transcriptText: entry.TranscriptText,
		method:         planner.Method(entry.Method),
		cached:         true,
	}, true
}

func (s *Service) fetch(ctx context.Context, videoID string) (*transcript.Store, error) {
	segs, err := s.source.Fetch(ctx, videoID)
	if err != nil {
		if errors.Is(err, transcript.ErrUnavailable) {
			return nil, WrapError(err, TranscriptUnavailable, err.Error()).WithContext("video_id", videoID)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, WrapError(err, PipelineFatal, "fetch transcript").WithContext("video_id", videoID)
	}
	store := transcript.NewStore(segs)
	log.Info("Fetched %d segments for %s (language %s)", len(segs), videoID, store.Language())
	return store, nil
}

// planStore runs the planner and caches the plan. A run cancelled before
// planning finishes writes nothing.
func (s *Service) planStore(ctx context.Context, videoID string, store *transcript.Store) (*plannedVideo, error) {
	var plan *planner.Plan
	err := SafeExecute(func() error {
		var err error
		plan, err = s.planner.Plan(ctx, store.Text(), store)
		return err
	})
	var pErr *PipelineError
	switch {
	case errors.Is(err, planner.ErrNoSegments):
		unavailable := &transcript.UnavailableError{VideoID: videoID, Reason: transcript.ReasonNotFound}
		return nil, WrapError(unavailable, TranscriptUnavailable, unavailable.Error()).WithContext("video_id", videoID)
	case errors.As(err, &pErr):
		return nil, pErr.WithContext("video_id", videoID)
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, WrapError(err, PipelineFatal, "plan sections").WithContext("video_id", videoID)
	}

	if plan.Method == planner.MethodEvenSplit {
		s.errs.Handle(NewError(BoundaryResolutionDegraded, plan.Fallback).
			WithContext("video_id", videoID).
			WithContext("target", plan.TargetCount))
	}
	log.Info("Planned %d sections for %s via %s", len(plan.Sections), videoID, plan.Method)

	pv := &plannedVideo{
		videoID:        videoID,
		sections:       plan.Sections,
		transcriptText: store.Text(),
		method:         plan.Method,
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, videoID, cache.Entry{
		Sections:       pv.sections,
		TranscriptText: pv.transcriptText,
		Method:         string(pv.method),
	}); err != nil {
		log.Warn("Cache write for %s failed: %v", videoID, err)
	}
	return pv, nil
}

// enrichAll enriches every section with at most opts.Concurrency in flight.
// The output is ordered by index.
func (s *Service) enrichAll(
	ctx context.Context,
	sections []section.Section,
	optsFor func(i int) enricher.Options,
) ([]section.EnrichedSection, error) {
	out := make([]section.EnrichedSection, len(sections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, sec := range sections {
		g.Go(func() error {
			out[i] = s.enricher.Enrich(gctx, sec, optsFor(i))
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseRef(videoRef string) (string, error) {
	if strings.TrimSpace(videoRef) == "" {
		return "", NewError(Validation, "video reference is required")
	}
	id, err := transcript.ParseVideoID(videoRef)
	if err != nil {
		return "", WrapError(err, Validation, "Invalid YouTube URL")
	}
	return id, nil
}
