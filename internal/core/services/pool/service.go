package pool

import (
	"errors"

	"github.com/google/uuid"

	"gitlab.com/proxygrid.net/internal/domain"
)

var (
	// ErrInvalidBatchSize is returned when a submission asks for a
	// non-positive batch size.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrUnknownWorker is returned for a heartbeat or pull from a worker
	// that was evicted; the worker must re-register.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrNoJobAvailable is the empty-queue signal on pull. Not a failure;
	// callers poll again after a backoff interval.
	ErrNoJobAvailable = errors.New("no job available")

	// ErrStaleSubmission is returned for a result on a job the submitting
	// worker no longer owns. The result is discarded.
	ErrStaleSubmission = errors.New("stale submission")
)

// IJobPoolService is the coordinator's authoritative surface over the job
// queue, worker registry and in-flight tracking. Implementations serialize
// all mutations internally; the underlying tables are never exposed.
type IJobPoolService interface {
	SubmitBatch(candidates []domain.CandidateProxy, batchSize int) ([]uuid.UUID, error)
	RegisterWorker(workerID string, capacity int, hostname, version string)
	Heartbeat(workerID string) error
	PullJob(workerID string) (*domain.Job, error)
	SubmitResult(jobID uuid.UUID, workerID string, outcomes []domain.Outcome) error
	SweepTimeouts() int
	EvictStaleWorkers() int
	Status() domain.PoolSnapshot
	Events() <-chan domain.AbandonedEvent
}
