package tcp

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/services/pool"
	"gitlab.com/proxygrid.net/internal/tcp/connectionmanager"
	"gitlab.com/proxygrid.net/internal/tcp/defs"
	"gitlab.com/proxygrid.net/internal/tcp/handlers"
)

// TCPServer handles TCP connections from workers
type TCPServer struct {
	address       string
	poolService   pool.IJobPoolService
	logger        primary.Logger
	listener      net.Listener
	connectionMgr *connectionmanager.ConnectionManager
	stopCh        chan struct{}
	handlers      map[byte]primary.MessageHandler
}

// TCPServerOption configures a TCPServer
type TCPServerOption func(*TCPServer)

// WithAddress sets the server address
func WithAddress(address string) TCPServerOption {
	return func(s *TCPServer) {
		s.address = address
	}
}

// NewTCPServer creates a new TCP server
func NewTCPServer(poolService pool.IJobPoolService, logger primary.Logger, options ...TCPServerOption) *TCPServer {
	server := &TCPServer{
		address:       ":9000", // Default address
		poolService:   poolService,
		logger:        logger,
		connectionMgr: connectionmanager.NewConnectionManager(logger),
		stopCh:        make(chan struct{}),
	}

	for _, option := range options {
		option(server)
	}

	server.setupMessageHandlers()

	return server
}

// setupMessageHandlers registers all message handlers
func (s *TCPServer) setupMessageHandlers() {
	s.handlers = map[byte]primary.MessageHandler{
		defs.MsgWorkerRegister:  &handlers.WorkerRegistrationHandler{Pool: s.poolService, ConnectionMgr: s.connectionMgr, Logger: s.logger},
		defs.MsgWorkerHeartbeat: &handlers.WorkerHeartbeatHandler{Pool: s.poolService, Logger: s.logger},
		defs.MsgJobRequest:      &handlers.JobRequestHandler{Pool: s.poolService, Logger: s.logger},
		defs.MsgJobResult:       &handlers.JobResultHandler{Pool: s.poolService, Logger: s.logger},
	}
}

// Start starts the TCP server
func (s *TCPServer) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}

	s.logger.Info("TCP server listening", "address", s.address)

	go s.acceptConnections()

	return nil
}

// Stop stops the TCP server
func (s *TCPServer) Stop(ctx context.Context) error {
	close(s.stopCh)

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Error("Failed to close listener", "error", err)
		}
	}

	s.connectionMgr.CloseAll()

	return nil
}

// acceptConnections accepts incoming connections
func (s *TCPServer) acceptConnections() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.stopCh:
					return
				default:
					s.logger.Error("Failed to accept connection", "error", err)
					time.Sleep(defs.ConnectionRetryDelay) // Avoid tight loop on error
					continue
				}
			}

			go s.handleConnection(conn)
		}
	}
}

// handleConnection handles a single worker connection
func (s *TCPServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	// Unregistered connections must send something before the deadline
	conn.SetDeadline(time.Now().Add(defs.InitialRegistrationTimeout))

	var workerID string
	for {
		select {
		case <-s.stopCh:
			return
		default:
			msgType, payload, err := connectionmanager.ReadMessage(conn)
			if err != nil {
				if err != io.EOF {
					s.logger.Error("Failed to read message", "error", err)
				}
				if workerID != "" {
					s.connectionMgr.RemoveWorker(workerID)
					s.logger.Info("Worker disconnected", "workerID", workerID)
				}
				return
			}

			handler, exists := s.handlers[msgType]
			if !exists {
				s.logger.Error("Unknown message type", "type", msgType)
				connectionmanager.SendErrorMessage(conn, defs.CodeUnknownMessage, fmt.Sprintf("Unknown message type: %d", msgType))
				continue
			}

			ctx := context.Background()

			if err := handler.HandleMessage(ctx, conn, payload, &workerID); err != nil {
				s.logger.Error("Error handling message", "type", msgType, "error", err)
				if workerID != "" {
					s.connectionMgr.RemoveWorker(workerID)
					s.logger.Info("Worker disconnected due to error", "workerID", workerID)
				}
				return
			}

			// Registered workers keep the connection open indefinitely
			if msgType == defs.MsgWorkerRegister {
				conn.SetDeadline(time.Time{})
			}
		}
	}
}
