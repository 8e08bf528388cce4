package connectionmanager

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/tcp/defs"
)

// ConnectionManager tracks the live worker connections on the coordinator
type ConnectionManager struct {
	Connections map[string]net.Conn
	ConnMutex   sync.RWMutex
	Logger      primary.Logger
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(logger primary.Logger) *ConnectionManager {
	return &ConnectionManager{
		Connections: make(map[string]net.Conn),
		Logger:      logger,
	}
}

// RegisterWorker registers a worker connection. A reconnecting worker
// replaces its previous connection.
func (cm *ConnectionManager) RegisterWorker(workerID string, conn net.Conn) {
	cm.ConnMutex.Lock()
	defer cm.ConnMutex.Unlock()
	if old, exists := cm.Connections[workerID]; exists && old != conn {
		_ = old.Close()
	}
	cm.Connections[workerID] = conn
}

// RemoveWorker removes a worker when its connection is closed
func (cm *ConnectionManager) RemoveWorker(workerID string) {
	cm.ConnMutex.Lock()
	defer cm.ConnMutex.Unlock()
	delete(cm.Connections, workerID)
}

// CloseAll closes every tracked connection.
func (cm *ConnectionManager) CloseAll() {
	cm.ConnMutex.Lock()
	defer cm.ConnMutex.Unlock()
	for workerID, conn := range cm.Connections {
		if err := conn.Close(); err != nil {
			cm.Logger.Error("Failed to close connection", "workerID", workerID, "error", err)
		}
		delete(cm.Connections, workerID)
	}
}

// SendErrorMessage sends an error frame. Write errors are ignored as the
// connection may already be closing.
func SendErrorMessage(conn net.Conn, code int, message string) {
	errorBytes, err := json.Marshal(defs.ErrorData{Code: code, Message: message})
	if err != nil {
		return
	}
	_ = SendMessage(conn, defs.MsgError, errorBytes)
}

// SendAck sends an acknowledgement frame.
func SendAck(conn net.Conn) error {
	body, err := json.Marshal(defs.AckData{Status: "ok"})
	if err != nil {
		return err
	}
	return SendMessage(conn, defs.MsgAck, body)
}

// SendMessage writes one framed message: an 8-byte header (magic, type,
// version, payload length) followed by the JSON payload.
func SendMessage(conn net.Conn, msgType byte, payload []byte) error {
	header := make([]byte, 8)
	binary.BigEndian.PutUint16(header[0:2], defs.MagicNumber)
	header[2] = msgType
	header[3] = defs.ProtocolVersion
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))

	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("failed to write message header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			return fmt.Errorf("failed to write message payload: %w", err)
		}
	}
	return nil
}

// ReadMessage reads one framed message and validates magic and version.
func ReadMessage(conn net.Conn) (byte, []byte, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(conn, header); err != nil {
		return 0, nil, err
	}

	magic := binary.BigEndian.Uint16(header[0:2])
	msgType := header[2]
	version := header[3]
	payloadLen := binary.BigEndian.Uint32(header[4:8])

	if magic != defs.MagicNumber {
		return 0, nil, fmt.Errorf("invalid magic number: %x", magic)
	}
	if version != defs.ProtocolVersion {
		return 0, nil, fmt.Errorf("unsupported protocol version: %d", version)
	}
	if payloadLen > defs.MaxPayloadBytes {
		return 0, nil, fmt.Errorf("payload too large: %d bytes", payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return 0, nil, err
	}
	return msgType, payload, nil
}
