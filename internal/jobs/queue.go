package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/video-sections/internal/service"
	"github.com/MimeLyc/video-sections/pkg/log"
)

// Runner streams the events of one planning run. *service.Service satisfies it.
type Runner interface {
	PlanProgressive(ctx context.Context, videoRef string) <-chan service.Event
}

const defaultMaxJobs = 1000

type Queue struct {
	workerCount int
	maxJobs     int

	mu         sync.RWMutex
	jobs       map[string]*RunJob
	dedupe     map[string]string
	started    bool
	pendingIDs chan string
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewQueue(workerCount int) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		workerCount: workerCount,
		maxJobs:     defaultMaxJobs,
		jobs:        make(map[string]*RunJob),
		dedupe:      make(map[string]string),
		pendingIDs:  make(chan string, 1024),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Enqueue returns the pending or running job for videoID if one exists,
// otherwise a new pending job. The bool reports whether a job was created.
func (q *Queue) Enqueue(videoID string) (*RunJob, bool) {
	now := time.Now()

	q.mu.Lock()
	if id, ok := q.dedupe[videoID]; ok {
		if existing, exists := q.jobs[id]; exists {
			snapshot := cloneJob(existing)
			q.mu.Unlock()
			return snapshot, false
		}
		delete(q.dedupe, videoID)
	}

	job := &RunJob{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.jobs[job.ID] = job
	q.dedupe[videoID] = job.ID
	started := q.started
	snapshot := cloneJob(job)
	q.mu.Unlock()

	if started {
		q.enqueuePendingID(job.ID)
	}
	return snapshot, true
}

func (q *Queue) Get(id string) (*RunJob, bool) {
	q.mu.RLock()
	job, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// List returns every known job, newest first.
func (q *Queue) List() []*RunJob {
	q.mu.RLock()
	ret := make([]*RunJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, cloneJob(job))
	}
	q.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].CreatedAt.After(ret[j].CreatedAt)
	})
	return ret
}

func (q *Queue) Start(runner Runner) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	pending := make([]string, 0)
	for id, job := range q.jobs {
		if job.Status == StatusPending {
			pending = append(pending, id)
		}
	}
	q.mu.Unlock()

	for _, id := range pending {
		q.enqueuePendingID(id)
	}

	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(runner)
	}
}

// Stop cancels running jobs and waits for the workers to exit.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.cancel()
		q.wg.Wait()
	})
}

func (q *Queue) worker(runner Runner) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case id := <-q.pendingIDs:
			job, ok := q.markRunning(id)
			if !ok {
				continue
			}
			q.run(runner, job)
		}
	}
}

func (q *Queue) run(runner Runner, job *RunJob) {
	log.Info("Run job %s started for %s", job.ID, job.VideoID)

	var last *service.Event
	for ev := range runner.PlanProgressive(q.ctx, job.VideoID) {
		q.appendEvent(job.ID, ev)
		last = &ev
	}

	switch {
	case last == nil || !last.Terminal():
		err := q.ctx.Err()
		if err == nil {
			err = errors.New("run ended without a result")
		}
		q.markFailed(job.ID, err.Error())
	case last.Stage == service.StageError:
		q.markFailed(job.ID, last.Message)
	default:
		q.markSuccess(job.ID, last.Payload)
	}
}

func (q *Queue) enqueuePendingID(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() {
			select {
			case q.pendingIDs <- id:
			case <-q.ctx.Done():
			}
		}()
	}
}

func (q *Queue) markRunning(id string) (*RunJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		return nil, false
	}
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()
	return cloneJob(job), true
}

func (q *Queue) appendEvent(id string, ev service.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return
	}
	job.Events = append(job.Events, ev)
	job.Stage = ev.Stage
	job.Progress = ev.Progress
	job.UpdatedAt = time.Now()
}

func (q *Queue) markSuccess(id string, payload any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return
	}
	job.Status = StatusSuccess
	job.Error = ""
	if res, ok := payload.(*service.Result); ok {
		job.Result = res
	}
	job.UpdatedAt = time.Now()
	q.releaseDedupeLocked(job)
	q.pruneTerminalJobsLocked()
	log.Info("Run job %s finished", id)
}

func (q *Queue) markFailed(id string, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return
	}
	job.Status = StatusFailed
	job.Error = reason
	job.UpdatedAt = time.Now()
	q.releaseDedupeLocked(job)
	q.pruneTerminalJobsLocked()
	log.Warn("Run job %s failed: %s", id, reason)
}

func (q *Queue) releaseDedupeLocked(job *RunJob) {
	if job == nil {
		return
	}
	if id, ok := q.dedupe[job.VideoID]; ok && id == job.ID {
		delete(q.dedupe, job.VideoID)
	}
}

// pruneTerminalJobsLocked drops the oldest finished jobs beyond maxJobs.
func (q *Queue) pruneTerminalJobsLocked() []string {
	if q.maxJobs <= 0 || len(q.jobs) <= q.maxJobs {
		return nil
	}

	type candidate struct {
		id        string
		updatedAt time.Time
	}
	terminal := make([]candidate, 0, len(q.jobs))
	for id, job := range q.jobs {
		if job == nil || !job.terminal() {
			continue
		}
		terminal = append(terminal, candidate{id: id, updatedAt: job.UpdatedAt})
	}
	if len(terminal) == 0 {
		return nil
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].updatedAt.Before(terminal[j].updatedAt)
	})

	toRemove := min(len(q.jobs)-q.maxJobs, len(terminal))
	pruned := make([]string, 0, toRemove)
	for i := 0; i < toRemove; i++ {
		id := terminal[i].id
		q.releaseDedupeLocked(q.jobs[id])
		delete(q.jobs, id)
		pruned = append(pruned, id)
	}
	return pruned
}

func cloneJob(job *RunJob) *RunJob {
	if job == nil {
		return nil
	}
	tmp := *job
	tmp.Events = append([]service.Event(nil), job.Events...)
	return &tmp
}
