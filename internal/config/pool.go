package config

import "time"

// PoolCfg holds the coordinator's scheduling knobs. The numeric defaults
// follow the operational values the system ran with historically; all of
// them are overridable through the environment.
type PoolCfg struct {
	BatchSize        int
	MaxRetries       int
	JobTimeout       time.Duration
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration
	EvictInterval    time.Duration
}

func NewPoolCfg() *PoolCfg {
	return &PoolCfg{
		BatchSize:        getIntEnv("POOL_BATCH_SIZE", 50),
		MaxRetries:       getIntEnv("POOL_MAX_RETRIES", 3),
		JobTimeout:       getDurationEnv("POOL_JOB_TIMEOUT_SEC", 300),
		HeartbeatTimeout: getDurationEnv("POOL_HEARTBEAT_TIMEOUT_SEC", 300),
		SweepInterval:    getDurationEnv("POOL_SWEEP_INTERVAL_SEC", 60),
		EvictInterval:    getDurationEnv("POOL_EVICT_INTERVAL_SEC", 60),
	}
}
