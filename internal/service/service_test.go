package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/video-sections/internal/cache"
	"github.com/MimeLyc/video-sections/internal/enricher"
	"github.com/MimeLyc/video-sections/internal/locator"
	"github.com/MimeLyc/video-sections/internal/planner"
	"github.com/MimeLyc/video-sections/internal/transcript"
)

const (
	videoID  = "dQw4w9WgXcQ"
	videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
)

const quizText = `Q: First question about the material?
A) One
B) Two
C) Three
D) Four
CORRECT: B
EXPLANATION: Two is right.
---
Q: Second question about the material?
A) One
B) Two
C) Three
D) Four
CORRECT: A
---
Q: Third question about the material?
A) One
B) Two
C) Three
D) Four
CORRECT: D
EXPLANATION: Four is right.`

// fakeGen is a deterministic collaborator for both planning and enrichment.
type fakeGen struct {
	proposals    []planner.Proposal
	proposeErr   error
	proposeCalls atomic.Int32
	quizCalls    atomic.Int32

	// release, when set, holds ProposeBoundaries until closed or ctx ends.
	release chan struct{}
	// blockSummaries makes Summarize wait for ctx cancellation.
	blockSummaries bool
}

func (f *fakeGen) ProposeBoundaries(ctx context.Context, _ string, _, _ int) ([]planner.Proposal, error) {
	f.proposeCalls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.proposals, f.proposeErr
}

func (f *fakeGen) Summarize(ctx context.Context, _, title string) (string, error) {
	if f.blockSummaries {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "SUMMARY: all about " + title, nil
}

func (f *fakeGen) GenerateTitle(_ context.Context, _ string, index, _ int) (string, error) {
	return fmt.Sprintf("\"Generated %d.\"", index+1), nil
}

func (f *fakeGen) GenerateQuestions(context.Context, string, string) (string, error) {
	return "1. What is the main idea of this part?\n2. How does this relate to the rest?\n3. Why would someone choose this approach?", nil
}

func (f *fakeGen) GenerateQuiz(context.Context, string, string) (string, error) {
	f.quizCalls.Add(1)
	return quizText, nil
}

func phraseAt(i int) string {
	return fmt.Sprintf("segment%03d explains idea%03d clearly", i, i)
}

// lectureSegments is 24 segments of 10s: 4 minutes, so 4 target sections.
func lectureSegments() []transcript.Segment {
	segs := make([]transcript.Segment, 24)
	for i := range segs {
		segs[i] = transcript.Segment{Text: phraseAt(i), Start: float64(i * 10), Duration: 10}
	}
	return segs
}

func goodProposals() []planner.Proposal {
	return []planner.Proposal{
		{Title: "Intro", Phrase: phraseAt(0)},
		{Title: "Second", Phrase: phraseAt(6)},
		{Title: "Third", Phrase: phraseAt(12)},
		{Title: "Fourth", Phrase: phraseAt(18)},
	}
}

func newTestService(t *testing.T, gen *fakeGen, store cache.Cache, opts Options) *Service {
	t.Helper()
	loc, err := locator.New(locator.Config{Window: 1, Threshold: 0.5})
	require.NoError(t, err)
	source := transcript.StaticSource{videoID: lectureSegments()}
	return New(source, planner.New(gen, loc), enricher.New(gen), store, opts)
}

func TestPlanBatch(t *testing.T) {
	gen := &fakeGen{proposals: goodProposals()}
	mem := cache.NewMemory()
	svc := newTestService(t, gen, mem, Options{})

	res, err := svc.PlanBatch(context.Background(), videoURL, BatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, videoID, res.VideoID)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, planner.MethodLLM, res.Method)
	assert.False(t, res.Cached)
	require.Len(t, res.Sections, 4)
	for i, sec := range res.Sections {
		assert.Equal(t, i, sec.Index)
		assert.Equal(t, i*60, sec.Start)
		assert.Len(t, sec.Questions, 3)
		assert.Len(t, sec.Quiz, 3)
	}
	assert.Equal(t, "Second", res.Sections[1].Title)
	assert.Equal(t, "all about Second", res.Sections[1].Summary)
	assert.Equal(t, 240, res.Sections[3].End)
	assert.True(t, strings.HasPrefix(res.Transcript, phraseAt(0)))
	assert.Contains(t, res.Transcript, phraseAt(23))

	entry, ok, err := mem.Get(context.Background(), videoID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, entry.Sections, 4)
	assert.Contains(t, entry.TranscriptText, phraseAt(23))
}

func TestPlanBatch_UsesCache(t *testing.T) {
	gen := &fakeGen{proposals: goodProposals()}
	svc := newTestService(t, gen, cache.NewMemory(), Options{})

	first, err := svc.PlanBatch(context.Background(), videoID, BatchOptions{})
	require.NoError(t, err)
	second, err := svc.PlanBatch(context.Background(), videoURL, BatchOptions{})
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, planner.MethodLLM, second.Method)
	assert.Equal(t, int32(1), gen.proposeCalls.Load())
	assert.Equal(t, first.Sections, second.Sections)
	assert.NotEmpty(t, second.Transcript)
	assert.Equal(t, first.Transcript, second.Transcript)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestPlanBatch_SkipQuiz(t *testing.T) {
	gen := &fakeGen{proposals: goodProposals()}
	svc := newTestService(t, gen, nil, Options{})

	res, err := svc.PlanBatch(context.Background(), videoID, BatchOptions{SkipQuiz: true})
	require.NoError(t, err)
	for _, sec := range res.Sections {
		assert.Nil(t, sec.Quiz)
		assert.Len(t, sec.Questions, 3)
	}
	assert.Zero(t, gen.quizCalls.Load())
}

func TestPlanBatch_DegradedProposalsStillSucceed(t *testing.T) {
	gen := &fakeGen{proposeErr: errors.New("upstream 503")}
	svc := newTestService(t, gen, nil, Options{})

	res, err := svc.PlanBatch(context.Background(), videoID, BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, planner.MethodEvenSplit, res.Method)
	assert.Len(t, res.Sections, 4)
	assert.Equal(t, "Generated 1", res.Sections[0].Title)
}

func TestPlanBatch_TranscriptUnavailable(t *testing.T) {
	svc := newTestService(t, &fakeGen{}, nil, Options{})

	_, err := svc.PlanBatch(context.Background(), "aaaaaaaaaaa", BatchOptions{})
	require.Error(t, err)
	assert.Equal(t, TranscriptUnavailable, typeOf(err))
	assert.ErrorIs(t, err, transcript.ErrUnavailable)

	var pErr *PipelineError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "No transcript found for this video", pErr.Message)
}

func TestPlanBatch_InvalidReference(t *testing.T) {
	svc := newTestService(t, &fakeGen{}, nil, Options{})

	for _, ref := range []string{"", "   ", "https://example.com/video"} {
		_, err := svc.PlanBatch(context.Background(), ref, BatchOptions{})
		assert.Equal(t, Validation, typeOf(err), "ref %q", ref)
	}
}

func TestPlanBatch_ConcurrentCallsShareOnePlan(t *testing.T) {
	gen := &fakeGen{proposals: goodProposals(), release: make(chan struct{})}
	svc := newTestService(t, gen, cache.NewMemory(), Options{})

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PlanBatch(context.Background(), videoID, BatchOptions{SkipQuiz: true})
		}(i)
	}

	require.Eventually(t, func() bool { return gen.proposeCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	close(gen.release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), gen.proposeCalls.Load())
}

func flightWaiters(s *Service, key string) int {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if fl, ok := s.flights[key]; ok {
		return fl.waiters
	}
	return 0
}

func TestPlanBatch_CancelledCallerLeavesSharedPlanRunning(t *testing.T) {
	gen := &fakeGen{proposals: goodProposals(), release: make(chan struct{})}
	mem := cache.NewMemory()
	svc := newTestService(t, gen, mem, Options{})

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := svc.PlanBatch(ctxA, videoID, BatchOptions{SkipQuiz: true})
		errA <- err
	}()
	require.Eventually(t, func() bool { return gen.proposeCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	type outcome struct {
		res *Result
		err error
	}
	doneB := make(chan outcome, 1)
	go func() {
		res, err := svc.PlanBatch(context.Background(), videoID, BatchOptions{SkipQuiz: true})
		doneB <- outcome{res: res, err: err}
	}()
	require.Eventually(t, func() bool { return flightWaiters(svc, videoID) == 2 }, 2*time.Second, 5*time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(gen.release)
	select {
	case out := <-doneB:
		require.NoError(t, out.err)
		assert.Equal(t, planner.MethodLLM, out.res.Method)
		assert.Len(t, out.res.Sections, 4)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not finish")
	}
	assert.Equal(t, int32(1), gen.proposeCalls.Load())
	assert.Equal(t, 1, mem.Len())
}

func TestPlanBatch_LastCallerLeavingCancelsSharedPlan(t *testing.T) {
	gen := &fakeGen{proposals: goodProposals(), release: make(chan struct{})}
	mem := cache.NewMemory()
	svc := newTestService(t, gen, mem, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.PlanBatch(ctx, videoID, BatchOptions{SkipQuiz: true})
		errCh <- err
	}()
	require.Eventually(t, func() bool { return gen.proposeCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	assert.Zero(t, flightWaiters(svc, videoID))

	// the abandoned plan is not cached and not joined by the next caller
	close(gen.release)
	res, err := svc.PlanBatch(context.Background(), videoID, BatchOptions{SkipQuiz: true})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), gen.proposeCalls.Load())
}

func TestPlanBatch_CancelledBeforeStart(t *testing.T) {
	gen := &fakeGen{proposals: goodProposals()}
	svc := newTestService(t, gen, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.PlanBatch(ctx, videoID, BatchOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ErrorType(-1), typeOf(err))
	assert.Zero(t, gen.proposeCalls.Load())
}

func TestEnrichOnDemand(t *testing.T) {
	svc := newTestService(t, &fakeGen{}, nil, Options{})

	res := svc.EnrichOnDemand(context.Background(), "some content", "Title")
	assert.Len(t, res.Questions, 3)
	require.Len(t, res.Quiz, 3)
	assert.Equal(t, "B", res.Quiz[0].Correct)
}

func TestQuizForSections(t *testing.T) {
	gen := &fakeGen{proposals: goodProposals()}
	svc := newTestService(t, gen, cache.NewMemory(), Options{})

	_, err := svc.QuizForSections(context.Background(), videoID, []int{0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotPlanned)
	assert.Equal(t, NotPlanned, typeOf(err))

	_, err = svc.PlanBatch(context.Background(), videoID, BatchOptions{SkipQuiz: true})
	require.NoError(t, err)
	proposeCalls := gen.proposeCalls.Load()

	quizzes, err := svc.QuizForSections(context.Background(), videoURL, []int{2, 1})
	require.NoError(t, err)
	require.Len(t, quizzes, 2)
	assert.Equal(t, 2, quizzes[0].Index)
	assert.Equal(t, "Third", quizzes[0].Title)
	assert.Len(t, quizzes[0].Quiz, 3)
	assert.Len(t, quizzes[1].Questions, 3)
	assert.Equal(t, proposeCalls, gen.proposeCalls.Load(), "no re-planning")

	all, err := svc.QuizForSections(context.Background(), videoID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = svc.QuizForSections(context.Background(), videoID, []int{9})
	assert.Equal(t, Validation, typeOf(err))
}

func TestEvict(t *testing.T) {
	gen := &fakeGen{proposals: goodProposals()}
	mem := cache.NewMemory()
	svc := newTestService(t, gen, mem, Options{})

	_, err := svc.PlanBatch(context.Background(), videoID, BatchOptions{SkipQuiz: true})
	require.NoError(t, err)
	require.NoError(t, svc.Evict(context.Background(), videoURL))
	assert.Zero(t, mem.Len())
}
