package pool

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/proxygrid.net/internal/config"
	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/ports/secondary"
	"gitlab.com/proxygrid.net/internal/domain"
	"gitlab.com/proxygrid.net/internal/metrics"
)

var _ IJobPoolService = (*JobPool)(nil)

// JobPool is the coordinator's single owner of shared mutable state: the
// FIFO queue, the job table, the worker registry and the aggregate
// counters. Every mutation goes through the pool mutex, so sweeps and
// request handlers can never see a job half-reassigned.
type JobPool struct {
	mu sync.Mutex

	jobs    map[uuid.UUID]*domain.Job
	queue   []uuid.UUID                // pending job ids, strict FIFO
	workers map[string]*domain.WorkerInfo

	// inFlight guards the "one in-flight job per proxy" invariant: a
	// candidate already tracked here is skipped on re-submission.
	inFlight map[string]uuid.UUID

	stats  domain.PoolStats
	events chan domain.AbandonedEvent

	cfg       *config.PoolCfg
	sink      secondary.ResultSink
	collector *metrics.Collector
	logger    primary.Logger
}

// NewJobPool creates an empty pool. sink may not be nil; completed jobs
// are forwarded to it outside the pool lock.
func NewJobPool(cfg *config.PoolCfg, sink secondary.ResultSink, collector *metrics.Collector, logger primary.Logger) *JobPool {
	return &JobPool{
		jobs:      make(map[uuid.UUID]*domain.Job),
		workers:   make(map[string]*domain.WorkerInfo),
		inFlight:  make(map[string]uuid.UUID),
		events:    make(chan domain.AbandonedEvent, 64),
		stats:     domain.PoolStats{StartedAt: time.Now()},
		cfg:       cfg,
		sink:      sink,
		collector: collector,
		logger:    logger,
	}
}

// SubmitBatch splits candidates into contiguous batches of batchSize (the
// last batch may be smaller) and appends one pending job per batch to the
// queue in submission order. Candidates already in a non-terminal job are
// skipped so no proxy is concurrently assigned twice.
func (p *JobPool) SubmitBatch(candidates []domain.CandidateProxy, batchSize int) ([]uuid.UUID, error) {
	if batchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fresh := make([]domain.CandidateProxy, 0, len(candidates))
	for _, c := range candidates {
		if _, busy := p.inFlight[c.ID]; busy {
			continue
		}
		fresh = append(fresh, c)
	}

	ids := make([]uuid.UUID, 0, (len(fresh)+batchSize-1)/batchSize)
	for start := 0; start < len(fresh); start += batchSize {
		end := start + batchSize
		if end > len(fresh) {
			end = len(fresh)
		}
		job := domain.NewJob(fresh[start:end])
		p.jobs[job.ID] = job
		p.queue = append(p.queue, job.ID)
		for _, c := range job.Proxies {
			p.inFlight[c.ID] = job.ID
		}
		ids = append(ids, job.ID)

		p.stats.TotalJobsCreated++
		p.collector.JobsCreated.Inc()
	}

	p.collector.QueueDepth.Set(float64(len(p.queue)))
	if len(ids) > 0 {
		p.logger.Info("Validation jobs created", "jobs", len(ids), "proxies", len(fresh))
	}
	return ids, nil
}

// RegisterWorker creates or refreshes a worker record. Registration is
// idempotent; a returning worker keeps its completed-job counters only if
// it was never evicted in between.
func (p *JobPool) RegisterWorker(workerID string, capacity int, hostname, version string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, exists := p.workers[workerID]
	if !exists {
		w = &domain.WorkerInfo{ID: workerID, Hostname: hostname, Version: version}
		p.workers[workerID] = w
		p.logger.Info("Worker registered", "workerID", workerID, "hostname", hostname, "capacity", capacity)
	}
	w.Capacity = capacity
	w.Hostname = hostname
	w.Version = version
	w.LastHeartbeat = time.Now()

	p.collector.ActiveWorkers.Set(float64(len(p.workers)))
}

// Heartbeat refreshes a worker's liveness timestamp.
func (p *JobPool) Heartbeat(workerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, exists := p.workers[workerID]
	if !exists {
		return ErrUnknownWorker
	}
	w.LastHeartbeat = time.Now()
	return nil
}

// PullJob atomically pops the queue head for workerID and returns a copy
// of the job. The pool keeps the authoritative record.
func (p *JobPool) PullJob(workerID string) (*domain.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, exists := p.workers[workerID]
	if !exists {
		return nil, ErrUnknownWorker
	}
	w.LastHeartbeat = time.Now()

	if len(p.queue) == 0 {
		return nil, ErrNoJobAvailable
	}

	jobID := p.queue[0]
	p.queue = p.queue[1:]

	job := p.jobs[jobID]
	now := time.Now()
	p.setStatusLocked(job, domain.JobStatusAssigned)
	job.AssignedWorker = &workerID
	job.AssignedAt = &now
	job.AttemptCount++

	p.collector.QueueDepth.Set(float64(len(p.queue)))
	p.collector.ActiveJobs.Inc()
	p.logger.Info("Job assigned", "jobID", job.ID, "workerID", workerID, "proxies", len(job.Proxies), "attempt", job.AttemptCount)
	return job.Clone(), nil
}

// SubmitResult accepts outcomes for a job currently assigned to workerID.
// A result for a job the worker no longer owns is rejected as stale and
// discarded; the reassigned attempt remains authoritative.
func (p *JobPool) SubmitResult(jobID uuid.UUID, workerID string, outcomes []domain.Outcome) error {
	p.mu.Lock()

	job, exists := p.jobs[jobID]
	if !exists || job.Status != domain.JobStatusAssigned ||
		job.AssignedWorker == nil || *job.AssignedWorker != workerID {
		p.mu.Unlock()
		p.collector.StaleSubmissions.Inc()
		p.logger.Warn("Stale result discarded", "jobID", jobID, "workerID", workerID)
		return ErrStaleSubmission
	}

	now := time.Now()
	p.setStatusLocked(job, domain.JobStatusCompleted)
	job.CompletedAt = &now
	working := int64(0)
	for _, o := range outcomes {
		job.Results[o.ProxyID] = o
		if o.Working {
			working++
		}
	}
	for _, c := range job.Proxies {
		delete(p.inFlight, c.ID)
	}

	p.stats.TotalJobsCompleted++
	p.stats.TotalProxiesValidated += int64(len(outcomes))
	p.stats.TotalWorkingProxies += working

	if w, ok := p.workers[workerID]; ok {
		w.LastHeartbeat = now
		w.JobsCompleted++
		w.ProxiesProcessed += len(outcomes)
	}

	// Terminal jobs leave the table; a late duplicate then fails the
	// existence check above and is discarded as stale.
	completed := job.Clone()
	delete(p.jobs, jobID)
	p.mu.Unlock()

	p.collector.JobsCompleted.Inc()
	p.collector.ProxiesValidated.Add(float64(len(outcomes)))
	p.collector.WorkingProxies.Add(float64(working))
	p.collector.ActiveJobs.Dec()

	p.sink.Enqueue(completed)
	p.logger.Info("Job completed", "jobID", jobID, "workerID", workerID, "working", working, "total", len(outcomes))
	return nil
}

// SweepTimeouts reclaims assigned jobs whose attempt exceeded the job
// timeout and returns the number of jobs touched. Reclaimed jobs rejoin
// the queue at the tail; jobs out of retries are abandoned.
func (p *JobPool) SweepTimeouts() int {
	cutoff := time.Now().Add(-p.cfg.JobTimeout)

	p.mu.Lock()
	reclaimed := 0
	for _, job := range p.jobs {
		if job.Status != domain.JobStatusAssigned {
			continue
		}
		if job.AssignedAt == nil || job.AssignedAt.After(cutoff) {
			continue
		}
		p.reclaimLocked(job)
		reclaimed++
	}
	p.collector.QueueDepth.Set(float64(len(p.queue)))
	p.mu.Unlock()

	if reclaimed > 0 {
		p.logger.Info("Timeout sweep reclaimed jobs", "count", reclaimed)
	}
	return reclaimed
}

// EvictStaleWorkers deletes workers whose heartbeat is older than the
// heartbeat timeout and immediately reclaims their assigned jobs.
func (p *JobPool) EvictStaleWorkers() int {
	cutoff := time.Now().Add(-p.cfg.HeartbeatTimeout)

	p.mu.Lock()
	evicted := 0
	for id, w := range p.workers {
		if w.LastHeartbeat.After(cutoff) {
			continue
		}
		delete(p.workers, id)
		evicted++
		p.collector.WorkersEvicted.Inc()
		p.logger.Warn("Worker evicted", "workerID", id, "lastHeartbeat", w.LastHeartbeat)

		for _, job := range p.jobs {
			if job.Status == domain.JobStatusAssigned &&
				job.AssignedWorker != nil && *job.AssignedWorker == id {
				p.reclaimLocked(job)
			}
		}
	}
	p.collector.ActiveWorkers.Set(float64(len(p.workers)))
	p.collector.QueueDepth.Set(float64(len(p.queue)))
	p.mu.Unlock()

	return evicted
}

// reclaimLocked moves an assigned job back to pending (tail of queue) or,
// with retries exhausted, abandons it. Caller holds the pool mutex.
func (p *JobPool) reclaimLocked(job *domain.Job) {
	lastWorker := ""
	if job.AssignedWorker != nil {
		lastWorker = *job.AssignedWorker
	}

	if job.AttemptCount >= p.cfg.MaxRetries {
		p.setStatusLocked(job, domain.JobStatusAbandoned)
		job.AssignedWorker = nil
		job.AssignedAt = nil
		for _, c := range job.Proxies {
			delete(p.inFlight, c.ID)
		}
		p.stats.TotalJobsAbandoned++
		p.collector.JobsAbandoned.Inc()
		p.collector.ActiveJobs.Dec()

		ev := domain.AbandonedEvent{
			JobID:        job.ID.String(),
			AttemptCount: job.AttemptCount,
			ProxyCount:   len(job.Proxies),
			LastWorker:   lastWorker,
			At:           time.Now(),
		}
		select {
		case p.events <- ev:
		default:
			p.logger.Warn("Abandoned-event channel full, event dropped", "jobID", job.ID)
		}
		p.logger.Error("Job abandoned after retry budget", "jobID", job.ID, "attempts", job.AttemptCount)
		delete(p.jobs, job.ID)
		return
	}

	p.setStatusLocked(job, domain.JobStatusPending)
	job.AssignedWorker = nil
	job.AssignedAt = nil
	p.queue = append(p.queue, job.ID)
	p.collector.JobsRequeued.Inc()
	p.collector.ActiveJobs.Dec()
	p.logger.Info("Job requeued", "jobID", job.ID, "attempt", job.AttemptCount, "lastWorker", lastWorker)
}

// setStatusLocked moves a job to next, enforcing the state machine. A
// forbidden step would mean the pool's own bookkeeping is broken, so it
// is logged and the job left untouched. Caller holds the pool mutex.
func (p *JobPool) setStatusLocked(job *domain.Job, next domain.JobStatus) bool {
	if !job.Status.CanTransition(next) {
		p.logger.Error("Illegal job status transition", "jobID", job.ID, "from", job.Status, "to", next)
		return false
	}
	job.Status = next
	return true
}

// Status returns a point-in-time copy of pool state. It takes the same
// mutex but copies everything, so callers can serialize it at leisure.
func (p *JobPool) Status() domain.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := 0
	for _, job := range p.jobs {
		if job.Status == domain.JobStatusAssigned {
			active++
		}
	}

	heartbeatThreshold := time.Now().Add(-2 * time.Minute)
	workers := make([]domain.WorkerInfo, 0, len(p.workers))
	for _, w := range p.workers {
		c := *w
		c.IsActive = w.LastHeartbeat.After(heartbeatThreshold)
		workers = append(workers, c)
	}

	return domain.PoolSnapshot{
		QueueSize:  len(p.queue),
		ActiveJobs: active,
		Workers:    workers,
		Stats:      p.stats,
	}
}

// Events exposes the abandoned-job event stream.
func (p *JobPool) Events() <-chan domain.AbandonedEvent {
	return p.events
}
