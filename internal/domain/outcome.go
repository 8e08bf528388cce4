package domain

import "time"

// ErrorKind categorizes why a validation attempt failed
type ErrorKind string

const (
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindConnectionRefused ErrorKind = "connection_refused"
	ErrorKindProtocolError     ErrorKind = "protocol_error"
	ErrorKindUnknown           ErrorKind = "unknown"
)

// ProtocolChecked records which protocols the validation task probed
type ProtocolChecked string

const (
	CheckedHTTP  ProtocolChecked = "http"
	CheckedHTTPS ProtocolChecked = "https"
	CheckedBoth  ProtocolChecked = "both"
)

// Outcome is the result of validating one proxy in one job attempt.
// It is produced exactly once by a worker and never mutated afterwards.
type Outcome struct {
	ProxyID         string          `json:"proxy_id"`
	Working         bool            `json:"working"`
	LatencyMs       *int64          `json:"latency_ms,omitempty"`
	Error           string          `json:"error,omitempty"`
	ErrorKind       ErrorKind       `json:"error_kind,omitempty"`
	ProtocolChecked ProtocolChecked `json:"protocol_checked"`
	SupportsHTTPS   bool            `json:"supports_https"`
	CheckedAt       time.Time       `json:"checked_at"`
}
