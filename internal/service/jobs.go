// File: internal/service/jobs.go
package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quietops/linkhawk/api/schemas"
)

// JobState tracks a background execution through its lifecycle.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Job is one background harvest execution.
type Job struct {
	ID                string                 `json:"job_id"`
	State             JobState               `json:"state"`
	OriginalPrompt    string                 `json:"original_prompt"`
	TransformedPrompt string                 `json:"transformed_prompt"`
	Result            *schemas.HarvestResult `json:"result,omitempty"`
	Error             string                 `json:"error,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	FinishedAt        *time.Time             `json:"finished_at,omitempty"`
}

// JobStore holds background executions in memory with TTL eviction. Finished
// jobs older than the TTL are swept; running jobs are never evicted.
type JobStore struct {
	ttl time.Duration

	mu   sync.Mutex
	jobs map[string]*Job

	stop chan struct{}
	done chan struct{}
}

// NewJobStore starts the store and its eviction sweeper.
func NewJobStore(ttl time.Duration) *JobStore {
	s := &JobStore{
		ttl:  ttl,
		jobs: make(map[string]*Job),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Create registers a new running job and returns it.
func (s *JobStore) Create(originalPrompt, transformedPrompt string) *Job {
	job := &Job{
		ID:                uuid.New().String(),
		State:             JobRunning,
		OriginalPrompt:    originalPrompt,
		TransformedPrompt: transformedPrompt,
		CreatedAt:         time.Now(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

// Complete marks a job finished with its result.
func (s *JobStore) Complete(id string, result schemas.HarvestResult) {
	s.finish(id, func(job *Job) {
		job.State = JobCompleted
		job.Result = &result
	})
}

// Fail marks a job finished with an error.
func (s *JobStore) Fail(id string, err error) {
	s.finish(id, func(job *Job) {
		job.State = JobFailed
		job.Error = err.Error()
	})
}

func (s *JobStore) finish(id string, apply func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	apply(job)
	now := time.Now()
	job.FinishedAt = &now
}

// Get returns a copy of the job, so callers never see concurrent mutation.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Len reports how many jobs are currently held.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop halts the eviction sweeper. The store stays readable after Stop.
func (s *JobStore) Stop() {
	close(s.stop)
	<-s.done
}

func (s *JobStore) sweep() {
	defer close(s.done)

	interval := s.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired(time.Now())
		case <-s.stop:
			return
		}
	}
}

func (s *JobStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.FinishedAt != nil && now.Sub(*job.FinishedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}
