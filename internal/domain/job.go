package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of a validation job
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusAssigned  JobStatus = "ASSIGNED"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusAbandoned JobStatus = "ABANDONED"
)

// CanTransition reports whether moving from s to next is a legal step in
// the job state machine. Pending must always pass through Assigned;
// Completed and Abandoned are terminal.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusAssigned
	case JobStatusAssigned:
		return next == JobStatusPending || next == JobStatusCompleted || next == JobStatusAbandoned
	case JobStatusCompleted, JobStatusAbandoned:
		return false
	default:
		return false
	}
}

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusAbandoned
}

// Job is a batch of candidate proxies to validate. Jobs are owned by the
// coordinator for their whole lifetime; a worker only ever holds the
// transient copy handed out by PullJob.
type Job struct {
	ID             uuid.UUID          `json:"job_id"`
	Proxies        []CandidateProxy   `json:"proxies"`
	Status         JobStatus          `json:"status"`
	AssignedWorker *string            `json:"assigned_worker,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	AssignedAt     *time.Time         `json:"assigned_at,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	AttemptCount   int                `json:"attempt_count"`
	Results        map[string]Outcome `json:"results,omitempty"`
}

// NewJob creates a pending job over a fixed batch of proxies
func NewJob(proxies []CandidateProxy) *Job {
	return &Job{
		ID:        uuid.New(),
		Proxies:   proxies,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
		Results:   make(map[string]Outcome),
	}
}

// Clone returns a deep copy safe to hand across the wire while the
// coordinator keeps mutating its own record.
func (j *Job) Clone() *Job {
	c := *j
	c.Proxies = make([]CandidateProxy, len(j.Proxies))
	copy(c.Proxies, j.Proxies)
	c.Results = make(map[string]Outcome, len(j.Results))
	for k, v := range j.Results {
		c.Results[k] = v
	}
	if j.AssignedWorker != nil {
		w := *j.AssignedWorker
		c.AssignedWorker = &w
	}
	if j.AssignedAt != nil {
		t := *j.AssignedAt
		c.AssignedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
