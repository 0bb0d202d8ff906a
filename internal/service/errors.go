package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/video-sections/pkg/log"
)

type ErrorType int

const (
	TranscriptUnavailable ErrorType = iota
	BoundaryResolutionDegraded
	EnrichmentDegraded
	CollaboratorCallFailed
	PipelineFatal
	Validation
	NotPlanned
)

// ErrNotPlanned is the cause of every NotPlanned error.
var ErrNotPlanned = errors.New("video has not been planned")

type PipelineError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *PipelineError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var ctxParts []string
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case TranscriptUnavailable:
		return "TranscriptUnavailable"
	case BoundaryResolutionDegraded:
		return "BoundaryResolutionDegraded"
	case EnrichmentDegraded:
		return "EnrichmentDegraded"
	case CollaboratorCallFailed:
		return "CollaboratorCallFailed"
	case PipelineFatal:
		return "PipelineFatal"
	case Validation:
		return "Validation"
	case NotPlanned:
		return "NotPlanned"
	default:
		return "Unknown"
	}
}

// Degraded reports whether the type is an internal signal that never reaches callers.
func (t ErrorType) Degraded() bool {
	switch t {
	case BoundaryResolutionDegraded, EnrichmentDegraded, CollaboratorCallFailed:
		return true
	}
	return false
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *PipelineError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err. Degraded signals are logged as warnings.
func (h *DefaultErrorHandler) Handle(err error) bool {
	var pErr *PipelineError
	if !errors.As(err, &pErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	advice := h.GetAdvice(pErr)
	if pErr.Type.Degraded() {
		log.Warn("Degraded: %v, advice: %s", err, advice)
		return true
	}
	log.Error("Error Detail: %v, advice: %s", err, advice)
	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *PipelineError) string {
	switch err.Type {
	case TranscriptUnavailable:
		return "The video has no usable transcript; try another video or add a track to the transcript directory"
	case BoundaryResolutionDegraded:
		return "Boundary proposals could not be placed; sections were split evenly instead"
	case EnrichmentDegraded:
		return "Generated study material was unusable; placeholders were substituted"
	case CollaboratorCallFailed:
		return "Check the LLM API key, rate limits and network connectivity"
	case Validation:
		return "Please verify the request parameters"
	case NotPlanned:
		return "Plan the video first, then request quiz material for its sections"
	default:
		return "Please review detailed error information and check relevant configuration"
	}
}

func WrapError(err error, errorType ErrorType, message string) *PipelineError {
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute runs fn and converts a panic into a PipelineFatal error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(PipelineFatal, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
