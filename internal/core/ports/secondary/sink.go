package secondary

import "gitlab.com/proxygrid.net/internal/domain"

// ResultSink consumes completed jobs off the coordinator's hot path.
// Enqueue must not block job assignment.
type ResultSink interface {
	Enqueue(job *domain.Job)
}
