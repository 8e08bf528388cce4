package config

import "time"

// WorkerCfg configures a worker agent process.
type WorkerCfg struct {
	CoordinatorAddr string
	WorkerID        string
	Capacity        int
	ValidateTimeout time.Duration
	PollInterval    time.Duration
	HeartbeatEvery  time.Duration
	PrimaryTarget   string
	HTTPSTarget     string
}

func NewWorkerCfg() *WorkerCfg {
	return &WorkerCfg{
		CoordinatorAddr: getEnv("COORDINATOR_ADDR", "localhost:9000"),
		WorkerID:        getEnv("WORKER_ID", ""),
		Capacity:        getIntEnv("WORKER_CAPACITY", 20),
		ValidateTimeout: getDurationEnv("WORKER_VALIDATE_TIMEOUT_SEC", 10),
		PollInterval:    getDurationEnv("WORKER_POLL_INTERVAL_SEC", 5),
		HeartbeatEvery:  getDurationEnv("WORKER_HEARTBEAT_INTERVAL_SEC", 30),
		PrimaryTarget:   getEnv("WORKER_PRIMARY_TARGET", "http://httpbin.org/ip"),
		HTTPSTarget:     getEnv("WORKER_HTTPS_TARGET", "https://api.ipify.org?format=json"),
	}
}
