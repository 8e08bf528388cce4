package workeragent

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/services/pool"
	"gitlab.com/proxygrid.net/internal/domain"
	"gitlab.com/proxygrid.net/internal/tcp/connectionmanager"
	"gitlab.com/proxygrid.net/internal/tcp/defs"
)

// ErrReregisterRequired is returned when the coordinator no longer knows
// this worker and a fresh registration is needed.
var ErrReregisterRequired = fmt.Errorf("coordinator requires re-registration")

// Client is the worker side of the coordinator wire protocol. Every call
// sends one request frame and waits for exactly one reply frame, so calls
// are serialized over the single connection.
type Client struct {
	addr   string
	logger primary.Logger

	mu   sync.Mutex
	conn net.Conn
}

func NewClient(addr string, logger primary.Logger) *Client {
	return &Client{addr: addr, logger: logger}
}

// Connect dials the coordinator, replacing any previous connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	conn, err := net.DialTimeout("tcp", c.addr, defs.RequestTimeout)
	if err != nil {
		return fmt.Errorf("failed to dial coordinator at %s: %w", c.addr, err)
	}
	c.conn = conn
	return nil
}

// Close closes the connection to the coordinator.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Register announces this worker to the coordinator.
func (c *Client) Register(workerID string, capacity int, hostname, version string) error {
	payload := defs.WorkerRegistrationData{
		WorkerID: workerID,
		Capacity: capacity,
		Hostname: hostname,
		Version:  version,
	}
	msgType, _, err := c.sendRecv(defs.MsgWorkerRegister, payload)
	if err != nil {
		return err
	}
	if msgType != defs.MsgAck {
		return fmt.Errorf("unexpected reply to registration: type %d", msgType)
	}
	return nil
}

// Heartbeat reports liveness to the coordinator.
func (c *Client) Heartbeat(workerID string) error {
	payload := defs.WorkerHeartbeatData{
		WorkerID:  workerID,
		Timestamp: time.Now().Unix(),
	}
	msgType, _, err := c.sendRecv(defs.MsgWorkerHeartbeat, payload)
	if err != nil {
		return err
	}
	if msgType != defs.MsgAck {
		return fmt.Errorf("unexpected reply to heartbeat: type %d", msgType)
	}
	return nil
}

// PullJob asks the coordinator for the next pending job. Returns
// pool.ErrNoJobAvailable when the queue is empty.
func (c *Client) PullJob(workerID string) (*defs.JobAssignData, error) {
	payload := defs.JobRequestData{WorkerID: workerID}
	msgType, body, err := c.sendRecv(defs.MsgJobRequest, payload)
	if err != nil {
		return nil, err
	}

	switch msgType {
	case defs.MsgJobAssign:
		var assign defs.JobAssignData
		if err := json.Unmarshal(body, &assign); err != nil {
			return nil, fmt.Errorf("failed to parse job assignment: %w", err)
		}
		return &assign, nil
	case defs.MsgNoJob:
		return nil, pool.ErrNoJobAvailable
	default:
		return nil, fmt.Errorf("unexpected reply to job request: type %d", msgType)
	}
}

// SubmitResult sends the outcomes for a completed job. A stale submission
// is reported as pool.ErrStaleSubmission; the outcomes were discarded.
func (c *Client) SubmitResult(jobID uuid.UUID, workerID string, outcomes []domain.Outcome) error {
	payload := defs.JobResultData{
		JobID:    jobID,
		WorkerID: workerID,
		Outcomes: outcomes,
	}
	msgType, _, err := c.sendRecv(defs.MsgJobResult, payload)
	if err != nil {
		return err
	}
	if msgType != defs.MsgAck {
		return fmt.Errorf("unexpected reply to job result: type %d", msgType)
	}
	return nil
}

// sendRecv marshals payload, writes one frame and reads one reply frame.
// MsgError replies are decoded and mapped to sentinel errors here so the
// callers see domain errors instead of wire codes.
func (c *Client) sendRecv(msgType byte, payload any) (byte, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return 0, nil, fmt.Errorf("not connected")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	c.conn.SetDeadline(time.Now().Add(defs.RequestTimeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := connectionmanager.SendMessage(c.conn, msgType, body); err != nil {
		return 0, nil, err
	}

	replyType, replyBody, err := connectionmanager.ReadMessage(c.conn)
	if err != nil {
		return 0, nil, err
	}

	if replyType == defs.MsgError {
		var errData defs.ErrorData
		if err := json.Unmarshal(replyBody, &errData); err != nil {
			return 0, nil, fmt.Errorf("coordinator error with malformed payload")
		}
		return 0, nil, wireError(errData)
	}

	return replyType, replyBody, nil
}

func wireError(errData defs.ErrorData) error {
	switch errData.Code {
	case defs.CodeUnknownWorker, defs.CodeNotRegistered:
		return fmt.Errorf("%w: %s", ErrReregisterRequired, errData.Message)
	case defs.CodeStaleSubmission:
		return fmt.Errorf("%w: %s", pool.ErrStaleSubmission, errData.Message)
	default:
		return fmt.Errorf("coordinator error %d: %s", errData.Code, errData.Message)
	}
}
