package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/services/pool"
	"gitlab.com/proxygrid.net/internal/tcp/connectionmanager"
	"gitlab.com/proxygrid.net/internal/tcp/defs"
)

var _ primary.MessageHandler = (*JobRequestHandler)(nil)

// JobRequestHandler serves pull requests for the next pending job
type JobRequestHandler struct {
	Pool   pool.IJobPoolService
	Logger primary.Logger
}

func (h *JobRequestHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte, workerID *string) error {
	var request defs.JobRequestData
	if err := json.Unmarshal(payload, &request); err != nil {
		h.Logger.Error("Failed to parse job request", "error", err)
		connectionmanager.SendErrorMessage(conn, defs.CodeInvalidPayload, "Invalid job request")
		return err
	}

	id := request.WorkerID
	if id == "" {
		id = *workerID
	}
	if id == "" {
		connectionmanager.SendErrorMessage(conn, defs.CodeNotRegistered, "Register before requesting jobs")
		return nil
	}

	job, err := h.Pool.PullJob(id)
	if err != nil {
		switch {
		case errors.Is(err, pool.ErrNoJobAvailable):
			return connectionmanager.SendMessage(conn, defs.MsgNoJob, nil)
		case errors.Is(err, pool.ErrUnknownWorker):
			connectionmanager.SendErrorMessage(conn, defs.CodeUnknownWorker, "Worker not registered")
			return nil
		default:
			return err
		}
	}

	assign := defs.JobAssignData{
		JobID:        job.ID,
		AttemptCount: job.AttemptCount,
		Proxies:      job.Proxies,
	}
	assignBytes, err := json.Marshal(assign)
	if err != nil {
		return fmt.Errorf("failed to marshal job assignment: %w", err)
	}
	h.Logger.Info("Job assigned", "jobID", job.ID, "workerID", id, "proxies", len(job.Proxies))
	return connectionmanager.SendMessage(conn, defs.MsgJobAssign, assignBytes)
}
