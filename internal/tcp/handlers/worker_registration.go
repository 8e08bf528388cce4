package handlers

import (
	"context"
	"encoding/json"
	"net"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/services/pool"
	"gitlab.com/proxygrid.net/internal/tcp/connectionmanager"
	"gitlab.com/proxygrid.net/internal/tcp/defs"
)

// Implementation of message handlers
// Each handler deals with one specific message type

var _ primary.MessageHandler = (*WorkerRegistrationHandler)(nil)

// WorkerRegistrationHandler handles worker registration messages
type WorkerRegistrationHandler struct {
	Pool          pool.IJobPoolService
	ConnectionMgr *connectionmanager.ConnectionManager
	Logger        primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *WorkerRegistrationHandler) HandleMessage(ctx context.Context, conn net.Conn, payload []byte, workerID *string) error {
	var registerData defs.WorkerRegistrationData
	if err := json.Unmarshal(payload, &registerData); err != nil {
		h.Logger.Error("Failed to parse worker registration", "error", err)
		connectionmanager.SendErrorMessage(conn, defs.CodeInvalidPayload, "Invalid registration data")
		return err
	}
	if registerData.WorkerID == "" {
		connectionmanager.SendErrorMessage(conn, defs.CodeInvalidPayload, "Worker id required")
		return nil
	}
	if registerData.Capacity <= 0 {
		registerData.Capacity = 1
	}

	// Bind worker ID to this connection for the rest of its lifetime
	*workerID = registerData.WorkerID
	h.ConnectionMgr.RegisterWorker(registerData.WorkerID, conn)

	h.Pool.RegisterWorker(registerData.WorkerID, registerData.Capacity, registerData.Hostname, registerData.Version)

	h.Logger.Info(
		"Worker registered",
		"workerID", registerData.WorkerID,
		"hostname", registerData.Hostname,
		"capacity", registerData.Capacity,
	)
	return connectionmanager.SendAck(conn)
}
