package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/services/pool"
	"gitlab.com/proxygrid.net/internal/tcp/connectionmanager"
	"gitlab.com/proxygrid.net/internal/tcp/defs"
)

var _ primary.MessageHandler = (*WorkerHeartbeatHandler)(nil)

// WorkerHeartbeatHandler handles worker heartbeat messages
type WorkerHeartbeatHandler struct {
	Pool   pool.IJobPoolService
	Logger primary.Logger
}

func (h *WorkerHeartbeatHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte, workerID *string) error {
	var heartbeat defs.WorkerHeartbeatData
	if err := json.Unmarshal(payload, &heartbeat); err != nil {
		h.Logger.Error("Failed to parse heartbeat", "error", err)
		connectionmanager.SendErrorMessage(conn, defs.CodeInvalidPayload, "Invalid heartbeat data")
		return err
	}

	id := heartbeat.WorkerID
	if id == "" {
		id = *workerID
	}

	if err := h.Pool.Heartbeat(id); err != nil {
		if errors.Is(err, pool.ErrUnknownWorker) {
			// Worker was evicted; tell it to re-register. Keep the connection open.
			h.Logger.Warn("Heartbeat from unknown worker", "workerID", id)
			connectionmanager.SendErrorMessage(conn, defs.CodeUnknownWorker, "Worker not registered")
			return nil
		}
		return err
	}

	h.Logger.Debug("Heartbeat received", "workerID", id)
	return connectionmanager.SendAck(conn)
}
