package jobs

import (
	"time"

	"github.com/MimeLyc/video-sections/internal/service"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// RunJob is one queued progressive run. Events accumulate as the run advances,
// so pollers can replay everything a stream consumer would have seen.
type RunJob struct {
	ID        string          `json:"id"`
	VideoID   string          `json:"video_id"`
	Status    Status          `json:"status"`
	Stage     service.Stage   `json:"stage,omitempty"`
	Progress  int             `json:"progress"`
	Events    []service.Event `json:"events"`
	Result    *service.Result `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (j *RunJob) terminal() bool {
	return j.Status == StatusSuccess || j.Status == StatusFailed
}
