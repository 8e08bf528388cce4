package defs

// Protocol data structures
type (
	// WorkerRegistrationData represents the data sent during worker registration
	WorkerRegistrationData struct {
		WorkerID string `json:"worker_id"`
		Capacity int    `json:"capacity"`
		Hostname string `json:"hostname"`
		Version  string `json:"version,omitempty"`
	}

	// WorkerHeartbeatData represents the data sent during worker heartbeat
	WorkerHeartbeatData struct {
		WorkerID  string `json:"worker_id"`
		Timestamp int64  `json:"timestamp"`
	}

	// AckData acknowledges a request
	AckData struct {
		Status string `json:"status"`
	}

	// ErrorData represents data sent with error responses
	ErrorData struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)
