package workeragent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gitlab.com/proxygrid.net/internal/config"
	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/services/pool"
	"gitlab.com/proxygrid.net/internal/domain"
	"gitlab.com/proxygrid.net/internal/tcp/defs"
	"gitlab.com/proxygrid.net/internal/validate"
)

const agentVersion = "1.0.0"

// Agent is a worker process: it registers with the coordinator, pulls
// jobs, validates the proxies in each job concurrently up to its
// capacity, and reports the outcomes back.
type Agent struct {
	cfg       *config.WorkerCfg
	client    *Client
	validator *validate.Validator
	logger    primary.Logger
	workerID  string
	hostname  string
}

func NewAgent(cfg *config.WorkerCfg, logger primary.Logger) *Agent {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = generateWorkerID(hostname)
	}

	return &Agent{
		cfg:       cfg,
		client:    NewClient(cfg.CoordinatorAddr, logger),
		validator: validate.NewValidator(cfg.ValidateTimeout, cfg.PrimaryTarget, cfg.HTTPSTarget, logger),
		logger:    logger,
		workerID:  workerID,
		hostname:  hostname,
	}
}

// WorkerID returns the identity this agent registers under.
func (a *Agent) WorkerID() string {
	return a.workerID
}

// Run drives the agent until the context is cancelled. Connection loss
// triggers a redial and re-registration with backoff.
func (a *Agent) Run(ctx context.Context) error {
	defer a.client.Close()

	backoff := defs.ConnectionRetryDelay
	for {
		if err := a.connectAndRegister(); err != nil {
			a.logger.Warn("Coordinator unavailable, retrying", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = defs.ConnectionRetryDelay

		err := a.session(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		a.logger.Warn("Session ended, reconnecting", "error", err)
	}
}

func (a *Agent) connectAndRegister() error {
	if err := a.client.Connect(); err != nil {
		return err
	}
	if err := a.client.Register(a.workerID, a.cfg.Capacity, a.hostname, agentVersion); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	a.logger.Info("Registered with coordinator", "workerID", a.workerID, "capacity", a.cfg.Capacity)
	return nil
}

// session runs the heartbeat and pull loop over one connection. It
// returns when the connection breaks or the context is cancelled.
func (a *Agent) session(ctx context.Context) error {
	heartbeat := time.NewTicker(a.cfg.HeartbeatEvery)
	defer heartbeat.Stop()

	poll := time.NewTimer(0)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-heartbeat.C:
			if err := a.client.Heartbeat(a.workerID); err != nil {
				if errors.Is(err, ErrReregisterRequired) {
					// Evicted while idle; register again on the same connection.
					if regErr := a.client.Register(a.workerID, a.cfg.Capacity, a.hostname, agentVersion); regErr != nil {
						return regErr
					}
					continue
				}
				return err
			}

		case <-poll.C:
			job, err := a.client.PullJob(a.workerID)
			switch {
			case errors.Is(err, pool.ErrNoJobAvailable):
				poll.Reset(a.cfg.PollInterval)
				continue
			case errors.Is(err, ErrReregisterRequired):
				if regErr := a.client.Register(a.workerID, a.cfg.Capacity, a.hostname, agentVersion); regErr != nil {
					return regErr
				}
				poll.Reset(0)
				continue
			case err != nil:
				return err
			}

			a.logger.Info("Pulled job", "jobID", job.JobID, "proxies", len(job.Proxies), "attempt", job.AttemptCount)
			outcomes := a.execute(ctx, job.Proxies)

			if err := a.client.SubmitResult(job.JobID, a.workerID, outcomes); err != nil {
				if errors.Is(err, pool.ErrStaleSubmission) {
					// The job was requeued while this worker held it.
					a.logger.Warn("Result rejected as stale", "jobID", job.JobID)
					poll.Reset(0)
					continue
				}
				return err
			}
			a.logger.Info("Submitted results", "jobID", job.JobID, "outcomes", len(outcomes))
			poll.Reset(0)
		}
	}
}

// execute validates all proxies of a job, at most Capacity at a time.
// Order of outcomes mirrors the order of proxies.
func (a *Agent) execute(ctx context.Context, proxies []domain.CandidateProxy) []domain.Outcome {
	sem := make(chan struct{}, a.cfg.Capacity)
	outcomes := make([]domain.Outcome, len(proxies))

	var wg sync.WaitGroup
	for i, p := range proxies {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, p domain.CandidateProxy) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = a.validator.Validate(ctx, p)
		}(i, p)
	}
	wg.Wait()

	return outcomes
}

func generateWorkerID(hostname string) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("worker-%s-%d", hostname, time.Now().UnixNano())
	}
	return fmt.Sprintf("worker-%s-%s", hostname, hex.EncodeToString(buf))
}
