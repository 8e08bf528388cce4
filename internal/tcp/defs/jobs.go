package defs

import (
	"github.com/google/uuid"

	"gitlab.com/proxygrid.net/internal/domain"
)

// Protocol data structures
type (
	// JobRequestData represents the data sent during a job pull
	JobRequestData struct {
		WorkerID string `json:"worker_id"`
	}

	// JobAssignData represents the data sent during job assignment
	JobAssignData struct {
		JobID        uuid.UUID               `json:"job_id"`
		AttemptCount int                     `json:"attempt_count"`
		Proxies      []domain.CandidateProxy `json:"proxies"`
	}

	// JobResultData represents the data sent with job results
	JobResultData struct {
		JobID    uuid.UUID        `json:"job_id"`
		WorkerID string           `json:"worker_id"`
		Outcomes []domain.Outcome `json:"outcomes"`
	}
)
