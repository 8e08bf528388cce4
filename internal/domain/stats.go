package domain

import "time"

// PoolStats are the coordinator's aggregate counters. All counters are
// monotonically non-decreasing for the lifetime of the process.
type PoolStats struct {
	TotalJobsCreated      int64     `json:"total_jobs_created"`
	TotalJobsCompleted    int64     `json:"total_jobs_completed"`
	TotalJobsAbandoned    int64     `json:"total_jobs_abandoned"`
	TotalProxiesValidated int64     `json:"total_proxies_validated"`
	TotalWorkingProxies   int64     `json:"total_working_proxies"`
	StartedAt             time.Time `json:"started_at"`
}

// PoolSnapshot is a point-in-time copy of coordinator state served by the
// stats endpoint. It shares no memory with the live pool.
type PoolSnapshot struct {
	QueueSize  int          `json:"queue_size"`
	ActiveJobs int          `json:"active_jobs"`
	Workers    []WorkerInfo `json:"workers"`
	Stats      PoolStats    `json:"stats"`
}

// AbandonedEvent is emitted when a job exhausts its retry budget
type AbandonedEvent struct {
	JobID        string    `json:"job_id"`
	AttemptCount int       `json:"attempt_count"`
	ProxyCount   int       `json:"proxy_count"`
	LastWorker   string    `json:"last_worker,omitempty"`
	At           time.Time `json:"at"`
}
