package sink

import (
	"context"
	"time"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/ports/secondary"
	"gitlab.com/proxygrid.net/internal/domain"
	"gitlab.com/proxygrid.net/internal/metrics"
)

const (
	defaultQueueDepth = 256
	maxWriteAttempts  = 3
	retryBaseDelay    = 200 * time.Millisecond
)

// Sink drains completed jobs onto the store and the working-set cache
// from a single goroutine, keeping slow writes off the assignment path.
type Sink struct {
	store      secondary.ProxyStore
	workingSet secondary.WorkingSet
	collector  *metrics.Collector
	logger     primary.Logger
	queue      chan *domain.Job
	done       chan struct{}
}

var _ secondary.ResultSink = (*Sink)(nil)

func New(store secondary.ProxyStore, workingSet secondary.WorkingSet, collector *metrics.Collector, logger primary.Logger) *Sink {
	return &Sink{
		store:      store,
		workingSet: workingSet,
		collector:  collector,
		logger:     logger,
		queue:      make(chan *domain.Job, defaultQueueDepth),
		done:       make(chan struct{}),
	}
}

// Enqueue hands a completed job to the drain goroutine. When the queue
// is full the job is dropped rather than blocking the caller; the
// in-memory pool still holds the authoritative result.
func (s *Sink) Enqueue(job *domain.Job) {
	select {
	case s.queue <- job:
	default:
		s.collector.SinkDropped.Inc()
		s.logger.Error("Result sink queue full, dropping job", "jobID", job.ID)
	}
}

// Start launches the drain goroutine. It runs until ctx is cancelled,
// then flushes whatever is already queued.
func (s *Sink) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				s.flush()
				return
			case job := <-s.queue:
				s.persist(job)
			}
		}
	}()
}

// Wait blocks until the drain goroutine has exited.
func (s *Sink) Wait() {
	<-s.done
}

func (s *Sink) flush() {
	for {
		select {
		case job := <-s.queue:
			s.persist(job)
		default:
			return
		}
	}
}

// persist writes every outcome of one job. Failures are retried per
// proxy with a capped linear backoff, then logged and skipped; one bad
// row must not wedge the drain loop.
func (s *Sink) persist(job *domain.Job) {
	workerID := ""
	if job.AssignedWorker != nil {
		workerID = *job.AssignedWorker
	}

	byID := make(map[string]domain.CandidateProxy, len(job.Proxies))
	for _, p := range job.Proxies {
		byID[p.ID] = p
	}

	for proxyID, outcome := range job.Results {
		if err := s.withRetry(func(ctx context.Context) error {
			return s.store.UpsertResult(ctx, proxyID, outcome)
		}); err != nil {
			s.logger.Error("Failed to persist outcome", "jobID", job.ID, "proxyID", proxyID, "error", err)
			continue
		}

		if err := s.withRetry(func(ctx context.Context) error {
			return s.store.AppendHistory(ctx, proxyID, workerID, outcome)
		}); err != nil {
			s.logger.Error("Failed to append check history", "jobID", job.ID, "proxyID", proxyID, "error", err)
		}

		proxy, known := byID[proxyID]
		if !known {
			continue
		}
		if err := s.withRetry(func(ctx context.Context) error {
			return s.workingSet.Update(ctx, proxy, outcome)
		}); err != nil {
			s.logger.Error("Failed to update working set", "jobID", job.ID, "proxyID", proxyID, "error", err)
		}
	}
}

func (s *Sink) withRetry(fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = fn(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt < maxWriteAttempts {
			time.Sleep(time.Duration(attempt) * retryBaseDelay)
		}
	}
	return err
}
