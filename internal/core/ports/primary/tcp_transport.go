package primary

import (
	"context"
	"net"
)

// MessageHandler defines an interface for handling different message types
// arriving on a worker connection. workerID is set by the registration
// handler and shared across the connection's lifetime.
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn net.Conn, payload []byte, workerID *string) error
}
