package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/video-sections/internal/jobs"
	"github.com/MimeLyc/video-sections/internal/llm"
	"github.com/MimeLyc/video-sections/internal/service"
	"github.com/MimeLyc/video-sections/internal/tutor"
)

// Pipeline is the planning surface served over HTTP. *service.Service satisfies it.
type Pipeline interface {
	PlanBatch(ctx context.Context, videoRef string, opts service.BatchOptions) (*service.Result, error)
	PlanProgressive(ctx context.Context, videoRef string) <-chan service.Event
	EnrichOnDemand(ctx context.Context, content, title string) service.OnDemandResult
	QuizForSections(ctx context.Context, videoRef string, indices []int) ([]service.SectionQuiz, error)
	Evict(ctx context.Context, videoRef string) error
}

// Tutor is satisfied by *tutor.Tutor.
type Tutor interface {
	Ask(ctx context.Context, sectionContext, question string, history []llm.Message) (*tutor.Answer, error)
	Validate(ctx context.Context, req tutor.AnswerRequest) (*tutor.Verdict, error)
}

type Server struct {
	pipeline Pipeline
	queue    *jobs.Queue
	tutor    Tutor

	uiEnabled   bool
	uiStaticDir string

	streamInterval time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithTutor(t Tutor) Option {
	return func(s *Server) {
		s.tutor = t
	}
}

// WithStreamInterval sets how often the run list stream repeats.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

func NewServer(pipeline Pipeline, queue *jobs.Queue, opts ...Option) *Server {
	s := &Server{
		pipeline:       pipeline,
		queue:          queue,
		uiEnabled:      false,
		streamInterval: time.Second,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/sections", s.handleSections)
	s.mux.HandleFunc("/api/sections/stream", s.handleSectionStream)
	s.mux.HandleFunc("/api/sections/quiz", s.handleOnDemandQuiz)
	s.mux.HandleFunc("/api/videos/", s.handleVideo)
	s.mux.HandleFunc("/api/runs", s.handleRuns)
	s.mux.HandleFunc("/api/runs/stream", s.handleRunStream)
	s.mux.HandleFunc("/api/runs/", s.handleRun)
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/quiz/validate", s.handleValidate)
	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// unknown asset paths fall back to index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
