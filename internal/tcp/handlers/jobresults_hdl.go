package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/google/uuid"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/services/pool"
	"gitlab.com/proxygrid.net/internal/tcp/connectionmanager"
	"gitlab.com/proxygrid.net/internal/tcp/defs"
)

var _ primary.MessageHandler = (*JobResultHandler)(nil)

// JobResultHandler accepts completed validation outcomes from workers
type JobResultHandler struct {
	Pool   pool.IJobPoolService
	Logger primary.Logger
}

func (h *JobResultHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte, workerID *string) error {
	var result defs.JobResultData
	if err := json.Unmarshal(payload, &result); err != nil {
		h.Logger.Error("Failed to parse job result", "error", err)
		connectionmanager.SendErrorMessage(conn, defs.CodeInvalidPayload, "Invalid job result")
		return err
	}

	if result.JobID == uuid.Nil {
		connectionmanager.SendErrorMessage(conn, defs.CodeInvalidPayload, "Missing job id")
		return nil
	}

	id := result.WorkerID
	if id == "" {
		id = *workerID
	}

	if err := h.Pool.SubmitResult(result.JobID, id, result.Outcomes); err != nil {
		switch {
		case errors.Is(err, pool.ErrStaleSubmission):
			// The job was requeued or reassigned while this worker held it.
			// The current owner's result is authoritative.
			connectionmanager.SendErrorMessage(conn, defs.CodeStaleSubmission, "Job no longer assigned to this worker")
			return nil
		case errors.Is(err, pool.ErrUnknownWorker):
			connectionmanager.SendErrorMessage(conn, defs.CodeUnknownWorker, "Worker not registered")
			return nil
		default:
			return err
		}
	}

	h.Logger.Info("Job completed", "jobID", result.JobID, "workerID", id, "outcomes", len(result.Outcomes))
	return connectionmanager.SendAck(conn)
}
