package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/video-sections/internal/cache"
	"github.com/MimeLyc/video-sections/internal/enricher"
	"github.com/MimeLyc/video-sections/internal/jobs"
	"github.com/MimeLyc/video-sections/internal/llm"
	"github.com/MimeLyc/video-sections/internal/locator"
	"github.com/MimeLyc/video-sections/internal/planner"
	"github.com/MimeLyc/video-sections/internal/service"
	"github.com/MimeLyc/video-sections/internal/transcript"
	"github.com/MimeLyc/video-sections/internal/tutor"
)

const testVideoID = "dQw4w9WgXcQ"

type stubGen struct{}

func (stubGen) ProposeBoundaries(context.Context, string, int, int) ([]planner.Proposal, error) {
	return []planner.Proposal{
		{Title: "Intro", Phrase: phrase(0)},
		{Title: "Middle", Phrase: phrase(8)},
		{Title: "End", Phrase: phrase(16)},
	}, nil
}

func (stubGen) Summarize(_ context.Context, _, title string) (string, error) {
	return "About " + title, nil
}

func (stubGen) GenerateTitle(context.Context, string, int, int) (string, error) {
	return "Generated", nil
}

func (stubGen) GenerateQuestions(context.Context, string, string) (string, error) {
	return "1. What is the first point made here?\n2. What is the second point made here?\n3. What is the third point made here?", nil
}

func (stubGen) GenerateQuiz(context.Context, string, string) (string, error) {
	return "", errors.New("quiz service down")
}

func phrase(i int) string {
	return fmt.Sprintf("segment%03d covers point%03d", i, i)
}

func newTestPipeline(t *testing.T) *service.Service {
	t.Helper()
	segs := make([]transcript.Segment, 24)
	for i := range segs {
		segs[i] = transcript.Segment{Text: phrase(i), Start: float64(i * 10), Duration: 10}
	}
	loc, err := locator.New(locator.Config{Window: 1, Threshold: 0.5})
	require.NoError(t, err)
	gen := stubGen{}
	return service.New(
		transcript.StaticSource{testVideoID: segs},
		planner.New(gen, loc),
		enricher.New(gen),
		cache.NewMemory(),
		service.Options{Concurrency: 2, QuizPrefix: 1},
	)
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *jobs.Queue) {
	t.Helper()
	pipeline := newTestPipeline(t)
	queue := jobs.NewQueue(1)
	queue.Start(pipeline)
	t.Cleanup(queue.Stop)
	return NewServer(pipeline, queue, opts...), queue
}

func do(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestServer_PlanBatch(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/sections", map[string]any{
		"url": "https://youtu.be/" + testVideoID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res service.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, testVideoID, res.VideoID)
	require.Len(t, res.Sections, 3)
	assert.Equal(t, "About Middle", res.Sections[1].Summary)
	assert.Equal(t, 80, res.Sections[1].Start)
	assert.Equal(t, "What is the key concept?", res.Sections[1].Quiz[0].Question)
}

func TestServer_PlanBatch_Errors(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/sections", map[string]any{"url": "aaaaaaaaaaa"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No transcript found for this video", errorMessage(t, rec))

	rec = do(t, srv, http.MethodPost, "/api/sections", map[string]any{"url": "https://vimeo.com/1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid YouTube URL", errorMessage(t, rec))

	rec = do(t, srv, http.MethodPost, "/api/sections", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/sections", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_SectionStream(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/sections/stream?url="+testVideoID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var names []string
	var last service.Event
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			require.NoError(t, json.Unmarshal([]byte(data), &last))
		}
	}
	assert.Equal(t, []string{
		"init", "fetching_transcript", "planning_sections", "sections_planned",
		"section", "section", "section", "result",
	}, names)
	assert.Equal(t, service.StageComplete, last.Stage)
	assert.Equal(t, 100, last.Progress)
}

func TestServer_SectionStream_Error(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/sections/stream?url=aaaaaaaaaaa", nil)
	body := rec.Body.String()
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, "No transcript found for this video")

	rec = do(t, srv, http.MethodGet, "/api/sections/stream", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_OnDemandQuiz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/sections/quiz", map[string]any{"content": "cells divide", "title": "Mitosis"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res service.OnDemandResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Questions, 3)
	require.Len(t, res.Quiz, 3)
	assert.Equal(t, "What is the key concept?", res.Quiz[0].Question)

	rec = do(t, srv, http.MethodPost, "/api/sections/quiz", map[string]any{"title": "Mitosis"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_VideoQuizAndEvict(t *testing.T) {
	srv, _ := newTestServer(t)
	quizPath := "/api/videos/" + testVideoID + "/quiz"

	rec := do(t, srv, http.MethodPost, quizPath, map[string]any{"indices": []int{0}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/sections", map[string]any{"url": testVideoID, "skip_quiz": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, quizPath, map[string]any{"indices": []int{2}})
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		VideoID  string                `json:"video_id"`
		Sections []service.SectionQuiz `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sections, 1)
	assert.Equal(t, "End", body.Sections[0].Title)

	rec = do(t, srv, http.MethodPost, quizPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, quizPath, map[string]any{"indices": []int{7}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/api/videos/"+testVideoID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodPost, quizPath, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/videos/"+testVideoID+"/other", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Runs(t *testing.T) {
	srv, queue := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/runs", map[string]any{"url": "https://www.youtube.com/watch?v=" + testVideoID})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Created bool        `json:"created"`
		Job     jobs.RunJob `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Created)
	assert.Equal(t, testVideoID, created.Job.VideoID)

	require.Eventually(t, func() bool {
		job, ok := queue.Get(created.Job.ID)
		return ok && job.Status == jobs.StatusSuccess
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, srv, http.MethodGet, "/api/runs/"+created.Job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job jobs.RunJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, jobs.StatusSuccess, job.Status)
	assert.Len(t, job.Events, 8)
	require.NotNil(t, job.Result)
	assert.Len(t, job.Result.Sections, 3)

	rec = do(t, srv, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []jobs.RunJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(t, srv, http.MethodGet, "/api/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/runs", map[string]any{"url": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Runs_DeduplicatesPending(t *testing.T) {
	queue := jobs.NewQueue(1) // never started, so jobs stay pending
	srv := NewServer(newTestPipeline(t), queue)

	first := do(t, srv, http.MethodPost, "/api/runs", map[string]any{"url": testVideoID})
	require.Equal(t, http.StatusCreated, first.Code)
	second := do(t, srv, http.MethodPost, "/api/runs", map[string]any{"url": "https://youtu.be/" + testVideoID})
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), `"created":false`)
}

func TestServer_RunStream(t *testing.T) {
	srv, _ := newTestServer(t, WithStreamInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.GreaterOrEqual(t, strings.Count(rec.Body.String(), "data: []"), 2)
}

type fakeTutor struct {
	askErr  error
	history []llm.Message
}

func (f *fakeTutor) Ask(_ context.Context, _, question string, history []llm.Message) (*tutor.Answer, error) {
	if f.askErr != nil {
		return nil, f.askErr
	}
	f.history = history
	return &tutor.Answer{Answer: "re: " + question, FollowUps: []string{"a", "b", "c"}}, nil
}

func (f *fakeTutor) Validate(_ context.Context, req tutor.AnswerRequest) (*tutor.Verdict, error) {
	return &tutor.Verdict{IsCorrect: req.UserAnswer == req.CorrectAnswer, Feedback: "ok"}, nil
}

func TestServer_Chat(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/chat", map[string]any{"question": "why?"})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	ft := &fakeTutor{}
	srv, _ = newTestServer(t, WithTutor(ft))
	rec = do(t, srv, http.MethodPost, "/api/chat", map[string]any{
		"section_context":      "Section: A\n\nContent: b",
		"question":             "why?",
		"conversation_history": []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var ans tutor.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ans))
	assert.Equal(t, "re: why?", ans.Answer)
	assert.Equal(t, []llm.Message{{Role: "user", Content: "hi"}}, ft.history)

	rec = do(t, srv, http.MethodPost, "/api/chat", map[string]any{"question": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	srv, _ = newTestServer(t, WithTutor(&fakeTutor{askErr: errors.New("llm down")}))
	rec = do(t, srv, http.MethodPost, "/api/chat", map[string]any{"question": "why?"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ValidateQuiz(t *testing.T) {
	srv, _ := newTestServer(t, WithTutor(&fakeTutor{}))

	rec := do(t, srv, http.MethodPost, "/api/quiz/validate", map[string]any{
		"section_context": "Section: A\n\nContent: b",
		"user_answer":     "B",
		"correct_answer":  "B",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var verdict tutor.Verdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.True(t, verdict.IsCorrect)

	rec = do(t, srv, http.MethodPost, "/api/quiz/validate", map[string]any{"correct_answer": "B"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
