package pool

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/proxygrid.net/internal/config"
	"gitlab.com/proxygrid.net/internal/domain"
	"gitlab.com/proxygrid.net/internal/metrics"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}

type captureSink struct {
	mu   sync.Mutex
	jobs []*domain.Job
}

func (s *captureSink) Enqueue(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func testCfg() *config.PoolCfg {
	return &config.PoolCfg{
		BatchSize:        50,
		MaxRetries:       3,
		JobTimeout:       5 * time.Minute,
		HeartbeatTimeout: 5 * time.Minute,
		SweepInterval:    time.Minute,
		EvictInterval:    time.Minute,
	}
}

func newTestPool(cfg *config.PoolCfg) (*JobPool, *captureSink) {
	sink := &captureSink{}
	return NewJobPool(cfg, sink, metrics.NewCollector(), nopLogger{}), sink
}

func makeCandidates(n int) []domain.CandidateProxy {
	out := make([]domain.CandidateProxy, n)
	for i := range out {
		out[i] = domain.CandidateProxy{
			ID:       uuid.NewString(),
			IP:       fmt.Sprintf("10.0.%d.%d", i/256, i%256),
			Port:     8080,
			Protocol: domain.ProtocolHTTP,
		}
	}
	return out
}

func makeOutcomes(job *domain.Job, workingEvery int) []domain.Outcome {
	outcomes := make([]domain.Outcome, 0, len(job.Proxies))
	for i, p := range job.Proxies {
		working := workingEvery > 0 && i%workingEvery == 0
		o := domain.Outcome{
			ProxyID:         p.ID,
			Working:         working,
			ProtocolChecked: domain.CheckedHTTP,
			CheckedAt:       time.Now(),
		}
		if working {
			lat := int64(120)
			o.LatencyMs = &lat
		} else {
			o.Error = "connect: connection refused"
			o.ErrorKind = domain.ErrorKindConnectionRefused
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func TestSubmitBatchSplitsExactly(t *testing.T) {
	p, _ := newTestPool(testCfg())
	candidates := makeCandidates(230)

	ids, err := p.SubmitBatch(candidates, 50)
	require.NoError(t, err)
	require.Len(t, ids, 5)

	// Pull every job and verify the union of batches is the input set,
	// each candidate exactly once, sizes 4x50 + 1x30.
	p.RegisterWorker("w1", 10, "host1", "")
	seen := make(map[string]int)
	sizes := make([]int, 0, 5)
	for {
		job, err := p.PullJob("w1")
		if err != nil {
			assert.ErrorIs(t, err, ErrNoJobAvailable)
			break
		}
		sizes = append(sizes, len(job.Proxies))
		for _, c := range job.Proxies {
			seen[c.ID]++
		}
	}
	assert.Equal(t, []int{50, 50, 50, 50, 30}, sizes)
	assert.Len(t, seen, 230)
	for id, n := range seen {
		assert.Equalf(t, 1, n, "candidate %s batched %d times", id, n)
	}
}

func TestSubmitBatchRejectsBadSize(t *testing.T) {
	p, _ := newTestPool(testCfg())
	for _, size := range []int{0, -1, -50} {
		_, err := p.SubmitBatch(makeCandidates(3), size)
		assert.ErrorIs(t, err, ErrInvalidBatchSize)
	}
	assert.Equal(t, int64(0), p.Status().Stats.TotalJobsCreated)
}

func TestSubmitBatchSkipsInFlightCandidates(t *testing.T) {
	p, _ := newTestPool(testCfg())
	candidates := makeCandidates(10)

	_, err := p.SubmitBatch(candidates, 10)
	require.NoError(t, err)

	// Same candidates again while the first job is still pending: nothing
	// new may be queued.
	ids, err := p.SubmitBatch(candidates, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 1, p.Status().QueueSize)
}

func TestPullJobFIFOAndStateMachine(t *testing.T) {
	p, _ := newTestPool(testCfg())
	p.RegisterWorker("w1", 5, "host1", "")

	first, err := p.SubmitBatch(makeCandidates(5), 5)
	require.NoError(t, err)
	second, err := p.SubmitBatch(makeCandidates(5), 5)
	require.NoError(t, err)

	job1, err := p.PullJob("w1")
	require.NoError(t, err)
	assert.Equal(t, first[0], job1.ID)
	assert.Equal(t, domain.JobStatusAssigned, job1.Status)
	assert.Equal(t, 1, job1.AttemptCount)
	require.NotNil(t, job1.AssignedWorker)
	assert.Equal(t, "w1", *job1.AssignedWorker)
	assert.NotNil(t, job1.AssignedAt)

	job2, err := p.PullJob("w1")
	require.NoError(t, err)
	assert.Equal(t, second[0], job2.ID)

	_, err = p.PullJob("w1")
	assert.ErrorIs(t, err, ErrNoJobAvailable)
}

func TestPullJobUnknownWorker(t *testing.T) {
	p, _ := newTestPool(testCfg())
	_, err := p.SubmitBatch(makeCandidates(5), 5)
	require.NoError(t, err)

	_, err = p.PullJob("ghost")
	assert.ErrorIs(t, err, ErrUnknownWorker)
}

func TestSubmitResultCompletesJob(t *testing.T) {
	p, sink := newTestPool(testCfg())
	p.RegisterWorker("w1", 5, "host1", "")
	_, err := p.SubmitBatch(makeCandidates(4), 4)
	require.NoError(t, err)

	job, err := p.PullJob("w1")
	require.NoError(t, err)

	outcomes := makeOutcomes(job, 2) // half working
	require.NoError(t, p.SubmitResult(job.ID, "w1", outcomes))

	snap := p.Status()
	assert.Equal(t, int64(1), snap.Stats.TotalJobsCompleted)
	assert.Equal(t, int64(4), snap.Stats.TotalProxiesValidated)
	assert.Equal(t, int64(2), snap.Stats.TotalWorkingProxies)
	assert.Equal(t, 0, snap.ActiveJobs)
	require.Len(t, snap.Workers, 1)
	assert.Equal(t, 1, snap.Workers[0].JobsCompleted)

	require.Equal(t, 1, sink.count())
	assert.Equal(t, domain.JobStatusCompleted, sink.jobs[0].Status)
	assert.Len(t, sink.jobs[0].Results, 4)

	// A second submission for the same job is stale: the job is terminal.
	err = p.SubmitResult(job.ID, "w1", outcomes)
	assert.ErrorIs(t, err, ErrStaleSubmission)
	assert.Equal(t, int64(1), p.Status().Stats.TotalJobsCompleted)
}

func TestSubmitResultWrongWorkerIsStale(t *testing.T) {
	p, sink := newTestPool(testCfg())
	p.RegisterWorker("w1", 5, "host1", "")
	p.RegisterWorker("w2", 5, "host2", "")
	_, err := p.SubmitBatch(makeCandidates(3), 3)
	require.NoError(t, err)

	job, err := p.PullJob("w1")
	require.NoError(t, err)

	err = p.SubmitResult(job.ID, "w2", makeOutcomes(job, 1))
	assert.ErrorIs(t, err, ErrStaleSubmission)
	assert.Equal(t, 0, sink.count())
}

func TestSweepTimeoutsRequeuesAtTail(t *testing.T) {
	cfg := testCfg()
	cfg.JobTimeout = time.Millisecond
	p, _ := newTestPool(cfg)
	p.RegisterWorker("w1", 5, "host1", "")

	stuck, err := p.SubmitBatch(makeCandidates(3), 3)
	require.NoError(t, err)

	job, err := p.PullJob("w1")
	require.NoError(t, err)
	require.Equal(t, stuck[0], job.ID)

	fresh, err := p.SubmitBatch(makeCandidates(3), 3)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, p.SweepTimeouts())

	// The reclaimed job sits behind untried work.
	next, err := p.PullJob("w1")
	require.NoError(t, err)
	assert.Equal(t, fresh[0], next.ID)

	reclaimed, err := p.PullJob("w1")
	require.NoError(t, err)
	assert.Equal(t, stuck[0], reclaimed.ID)
	assert.Equal(t, 2, reclaimed.AttemptCount)
}

func TestSweepThenLateResultIsStale(t *testing.T) {
	cfg := testCfg()
	cfg.JobTimeout = time.Millisecond
	p, sink := newTestPool(cfg)
	p.RegisterWorker("w1", 5, "host1", "")
	p.RegisterWorker("w2", 5, "host2", "")

	_, err := p.SubmitBatch(makeCandidates(3), 3)
	require.NoError(t, err)

	job, err := p.PullJob("w1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, p.SweepTimeouts())

	// Reassigned to another worker; the old owner's late result is
	// discarded and does not touch results or counters.
	reassigned, err := p.PullJob("w2")
	require.NoError(t, err)
	require.Equal(t, job.ID, reassigned.ID)

	err = p.SubmitResult(job.ID, "w1", makeOutcomes(job, 1))
	assert.ErrorIs(t, err, ErrStaleSubmission)
	assert.Equal(t, 0, sink.count())
	assert.Equal(t, int64(0), p.Status().Stats.TotalJobsCompleted)

	// The current owner still completes normally.
	require.NoError(t, p.SubmitResult(job.ID, "w2", makeOutcomes(reassigned, 1)))
	assert.Equal(t, 1, sink.count())
}

func TestRetryBudgetAbandonsAfterMaxRetries(t *testing.T) {
	cfg := testCfg()
	cfg.JobTimeout = time.Millisecond
	cfg.MaxRetries = 3
	p, _ := newTestPool(cfg)
	p.RegisterWorker("w1", 5, "host1", "")

	ids, err := p.SubmitBatch(makeCandidates(2), 2)
	require.NoError(t, err)

	// Exactly MaxRetries assignments, then abandonment on the next sweep.
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		job, err := p.PullJob("w1")
		require.NoError(t, err)
		assert.Equal(t, attempt, job.AttemptCount)
		time.Sleep(5 * time.Millisecond)
		require.Equal(t, 1, p.SweepTimeouts())
	}

	_, err = p.PullJob("w1")
	assert.ErrorIs(t, err, ErrNoJobAvailable)

	snap := p.Status()
	assert.Equal(t, int64(1), snap.Stats.TotalJobsAbandoned)

	select {
	case ev := <-p.Events():
		assert.Equal(t, ids[0].String(), ev.JobID)
		assert.Equal(t, cfg.MaxRetries, ev.AttemptCount)
		assert.Equal(t, 2, ev.ProxyCount)
	default:
		t.Fatal("expected an abandoned event")
	}
}

func TestEvictStaleWorkersReclaimsJobs(t *testing.T) {
	cfg := testCfg()
	cfg.HeartbeatTimeout = time.Millisecond
	p, _ := newTestPool(cfg)
	p.RegisterWorker("w1", 5, "host1", "")

	_, err := p.SubmitBatch(makeCandidates(3), 3)
	require.NoError(t, err)
	job, err := p.PullJob("w1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, p.EvictStaleWorkers())

	// Worker is gone and must re-register.
	assert.ErrorIs(t, p.Heartbeat("w1"), ErrUnknownWorker)

	// Its job went straight back to pending without waiting for the job
	// timeout.
	snap := p.Status()
	assert.Equal(t, 1, snap.QueueSize)
	assert.Equal(t, 0, snap.ActiveJobs)

	p.RegisterWorker("w2", 5, "host2", "")
	requeued, err := p.PullJob("w2")
	require.NoError(t, err)
	assert.Equal(t, job.ID, requeued.ID)
	assert.Equal(t, 2, requeued.AttemptCount)
}

func TestHeartbeatKeepsWorkerAlive(t *testing.T) {
	cfg := testCfg()
	cfg.HeartbeatTimeout = 50 * time.Millisecond
	p, _ := newTestPool(cfg)
	p.RegisterWorker("w1", 5, "host1", "")

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, p.Heartbeat("w1"))
	time.Sleep(30 * time.Millisecond)

	// The refresh above keeps the worker inside the window.
	assert.Equal(t, 0, p.EvictStaleWorkers())
	assert.NoError(t, p.Heartbeat("w1"))
}

func TestCountersAreMonotonic(t *testing.T) {
	cfg := testCfg()
	cfg.JobTimeout = time.Millisecond
	cfg.MaxRetries = 2
	p, _ := newTestPool(cfg)
	p.RegisterWorker("w1", 5, "host1", "")

	prev := p.Status().Stats
	step := func() {
		cur := p.Status().Stats
		assert.GreaterOrEqual(t, cur.TotalJobsCreated, prev.TotalJobsCreated)
		assert.GreaterOrEqual(t, cur.TotalJobsCompleted, prev.TotalJobsCompleted)
		assert.GreaterOrEqual(t, cur.TotalJobsAbandoned, prev.TotalJobsAbandoned)
		assert.GreaterOrEqual(t, cur.TotalProxiesValidated, prev.TotalProxiesValidated)
		assert.GreaterOrEqual(t, cur.TotalWorkingProxies, prev.TotalWorkingProxies)
		prev = cur
	}

	_, err := p.SubmitBatch(makeCandidates(20), 5)
	require.NoError(t, err)
	step()

	job, err := p.PullJob("w1")
	require.NoError(t, err)
	step()

	require.NoError(t, p.SubmitResult(job.ID, "w1", makeOutcomes(job, 1)))
	step()

	for i := 0; i < 4; i++ {
		if _, err := p.PullJob("w1"); err != nil {
			break
		}
		time.Sleep(2 * time.Millisecond)
		p.SweepTimeouts()
		step()
	}
}

func TestStatusDoesNotBlockAssignment(t *testing.T) {
	p, _ := newTestPool(testCfg())
	p.RegisterWorker("w1", 5, "host1", "")
	_, err := p.SubmitBatch(makeCandidates(100), 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			job, err := p.PullJob("w1")
			if err != nil {
				return
			}
			_ = p.SubmitResult(job.ID, "w1", makeOutcomes(job, 1))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			snap := p.Status()
			_ = snap.QueueSize
		}
	}()
	wg.Wait()

	snap := p.Status()
	assert.Equal(t, int64(100), snap.Stats.TotalJobsCompleted)
}

func TestSetStatusRefusesIllegalStep(t *testing.T) {
	p, _ := newTestPool(testCfg())

	job := domain.NewJob(makeCandidates(1))
	assert.True(t, p.setStatusLocked(job, domain.JobStatusAssigned))
	assert.Equal(t, domain.JobStatusAssigned, job.Status)
	assert.True(t, p.setStatusLocked(job, domain.JobStatusCompleted))

	// Terminal states are closed; the job must stay where it is.
	assert.False(t, p.setStatusLocked(job, domain.JobStatusAssigned))
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.False(t, p.setStatusLocked(job, domain.JobStatusPending))
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
}

func TestCompletedJobsLeaveJobTable(t *testing.T) {
	p, sink := newTestPool(testCfg())
	p.RegisterWorker("w1", 5, "host1", "")
	_, err := p.SubmitBatch(makeCandidates(3), 3)
	require.NoError(t, err)

	job, err := p.PullJob("w1")
	require.NoError(t, err)
	require.NoError(t, p.SubmitResult(job.ID, "w1", makeOutcomes(job, 1)))

	// The sink holds the finished record; the pool does not.
	require.Equal(t, 1, sink.count())
	p.mu.Lock()
	_, retained := p.jobs[job.ID]
	tableSize := len(p.jobs)
	p.mu.Unlock()
	assert.False(t, retained)
	assert.Equal(t, 0, tableSize)

	// A duplicate for the pruned job is still rejected as stale.
	err = p.SubmitResult(job.ID, "w1", makeOutcomes(job, 1))
	assert.ErrorIs(t, err, ErrStaleSubmission)
}

func TestAbandonedJobsLeaveJobTable(t *testing.T) {
	cfg := testCfg()
	cfg.JobTimeout = time.Millisecond
	cfg.MaxRetries = 1
	p, _ := newTestPool(cfg)
	p.RegisterWorker("w1", 5, "host1", "")

	_, err := p.SubmitBatch(makeCandidates(2), 2)
	require.NoError(t, err)
	job, err := p.PullJob("w1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, p.SweepTimeouts())
	require.Equal(t, int64(1), p.Status().Stats.TotalJobsAbandoned)

	p.mu.Lock()
	tableSize := len(p.jobs)
	p.mu.Unlock()
	assert.Equal(t, 0, tableSize)

	// A late result for the abandoned job is stale, not a resurrection.
	err = p.SubmitResult(job.ID, "w1", makeOutcomes(job, 1))
	assert.ErrorIs(t, err, ErrStaleSubmission)
}

func TestStateMachineTransitions(t *testing.T) {
	cases := []struct {
		from, to domain.JobStatus
		ok       bool
	}{
		{domain.JobStatusPending, domain.JobStatusAssigned, true},
		{domain.JobStatusPending, domain.JobStatusCompleted, false},
		{domain.JobStatusPending, domain.JobStatusAbandoned, false},
		{domain.JobStatusAssigned, domain.JobStatusPending, true},
		{domain.JobStatusAssigned, domain.JobStatusCompleted, true},
		{domain.JobStatusAssigned, domain.JobStatusAbandoned, true},
		{domain.JobStatusCompleted, domain.JobStatusAssigned, false},
		{domain.JobStatusCompleted, domain.JobStatusPending, false},
		{domain.JobStatusAbandoned, domain.JobStatusPending, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.True(t, domain.JobStatusCompleted.Terminal())
	assert.True(t, domain.JobStatusAbandoned.Terminal())
	assert.False(t, domain.JobStatusPending.Terminal())
}
