package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/MimeLyc/video-sections/internal/llm"
	"github.com/MimeLyc/video-sections/internal/service"
	"github.com/MimeLyc/video-sections/internal/transcript"
	"github.com/MimeLyc/video-sections/internal/tutor"
	"github.com/MimeLyc/video-sections/pkg/log"
)

type videoRequest struct {
	URL      string `json:"url"`
	SkipQuiz bool   `json:"skip_quiz"`
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req videoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	res, err := s.pipeline.PlanBatch(r.Context(), req.URL, service.BatchOptions{SkipQuiz: req.SkipQuiz})
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type onDemandRequest struct {
	Content string `json:"content"`
	Title   string `json:"title"`
}

func (s *Server) handleOnDemandQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req onDemandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = "Section"
	}
	writeJSON(w, http.StatusOK, s.pipeline.EnrichOnDemand(r.Context(), req.Content, req.Title))
}

type sectionQuizRequest struct {
	Indices []int `json:"indices"`
}

// handleVideo serves /api/videos/{id}/quiz (POST) and /api/videos/{id} (DELETE).
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/videos/"), "/")
	videoID, action, _ := strings.Cut(rest, "/")
	if decoded, err := url.PathUnescape(videoID); err == nil {
		videoID = decoded
	}
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "missing video id")
		return
	}

	switch {
	case action == "quiz":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req sectionQuizRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid json body")
				return
			}
		}
		quizzes, err := s.pipeline.QuizForSections(r.Context(), videoID, req.Indices)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"video_id": videoID,
			"sections": quizzes,
		})
	case action == "":
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := s.pipeline.Evict(r.Context(), videoID); err != nil {
			writePipelineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List())
	case http.MethodPost:
		var req videoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		videoID, err := transcript.ParseVideoID(req.URL)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid YouTube URL")
			return
		}

		job, created := s.queue.Enqueue(videoID)
		code := http.StatusCreated
		if !created {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"job":     job,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	job, ok := s.queue.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type chatRequest struct {
	SectionContext string        `json:"section_context"`
	Question       string        `json:"question"`
	History        []llm.Message `json:"conversation_history"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.tutor == nil {
		writeError(w, http.StatusNotImplemented, "tutor is not configured")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ans, err := s.tutor.Ask(r.Context(), req.SectionContext, req.Question, req.History)
	if err != nil {
		log.Error("Chat error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.tutor == nil {
		writeError(w, http.StatusNotImplemented, "tutor is not configured")
		return
	}
	var req tutor.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.UserAnswer) == "" {
		writeError(w, http.StatusBadRequest, "user_answer is required")
		return
	}

	verdict, err := s.tutor.Validate(r.Context(), req)
	if err != nil {
		log.Error("Quiz validation error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// writePipelineError maps service error types onto status codes.
func writePipelineError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	var pErr *service.PipelineError
	if !errors.As(err, &pErr) {
		log.Error("Request failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch pErr.Type {
	case service.TranscriptUnavailable, service.Validation:
		writeError(w, http.StatusBadRequest, pErr.Message)
	case service.NotPlanned:
		writeError(w, http.StatusNotFound, pErr.Message)
	default:
		log.Error("Request failed: %v", err)
		writeError(w, http.StatusInternalServerError, pErr.Message)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
