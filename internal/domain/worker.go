package domain

import "time"

// WorkerInfo is the coordinator's record of a registered worker. The
// worker itself holds no authoritative copy; it is recreated from scratch
// on every re-registration.
type WorkerInfo struct {
	ID               string    `json:"id"`
	Capacity         int       `json:"capacity"`
	Hostname         string    `json:"hostname"`
	Version          string    `json:"version,omitempty"`
	LastHeartbeat    time.Time `json:"last_heartbeat"`
	JobsCompleted    int       `json:"jobs_completed"`
	ProxiesProcessed int       `json:"proxies_processed"`
	IsActive         bool      `json:"is_active"`
}
