package poolengine

import (
	"context"
	"time"

	"gitlab.com/proxygrid.net/internal/config"
	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/services/pool"
)

// Engine runs the coordinator's periodic maintenance: the job timeout
// sweep and stale-worker eviction. Both tick independently of request
// traffic and stop when the context is cancelled.
type Engine struct {
	cfg    *config.PoolCfg
	pool   pool.IJobPoolService
	logger primary.Logger
}

func NewEngine(cfg *config.PoolCfg, jobPool pool.IJobPoolService, logger primary.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		pool:   jobPool,
		logger: logger,
	}
}

// Start launches the sweep and eviction loops plus a drain of the
// abandoned-job event stream for operator visibility. It returns
// immediately.
func (e *Engine) Start(ctx context.Context) {
	go e.loop(ctx, e.cfg.SweepInterval, func() {
		if n := e.pool.SweepTimeouts(); n > 0 {
			e.logger.Warn("Reclaimed timed-out jobs", "count", n)
		}
	})

	go e.loop(ctx, e.cfg.EvictInterval, func() {
		if n := e.pool.EvictStaleWorkers(); n > 0 {
			e.logger.Warn("Evicted silent workers", "count", n)
		}
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-e.pool.Events():
				e.logger.Error("Job abandoned",
					"jobID", ev.JobID,
					"attempts", ev.AttemptCount,
					"proxies", ev.ProxyCount,
					"lastWorker", ev.LastWorker,
				)
			}
		}
	}()
}

func (e *Engine) loop(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
