// Package scheduler drives the durable job queue: a single cooperative
// poller claims due scheduled jobs and fires their nodes through the
// engine. Durability lives in the scheduled_jobs table; the poller holds
// no state a restart cannot rebuild.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/candelahq/trellis/engine"
	"github.com/candelahq/trellis/flow"
	"github.com/candelahq/trellis/logger"
	"github.com/candelahq/trellis/store"
)

// Config tunes the poller loop
type Config struct {
	// Interval between ticks. Floored at one second.
	Interval time.Duration

	// BatchSize is the maximum number of due jobs claimed per tick
	BatchSize int

	// MaxSendsPerMinute paces node executions so a drained backlog does
	// not burst-fill the outbound messages table faster than the external
	// transport can deliver. Zero means unlimited.
	MaxSendsPerMinute int
}

// DefaultConfig returns the standard poller settings
func DefaultConfig() Config {
	return Config{
		Interval:  1 * time.Second,
		BatchSize: 50,
	}
}

// Poller is the single claimant over the scheduled-jobs table. One
// instance is the deployment model; the conditional claim in the store
// keeps a second instance harmless if one is ever started.
type Poller struct {
	store   *store.Store
	engine  *engine.Engine
	clock   engine.Clock
	config  Config
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger

	mu               sync.Mutex
	lastTickAt       time.Time
	ticksSinceStart  int64
	lastPendingCount int
}

// New creates a poller. The clock is injected so tests drive time.
func New(s *store.Store, e *engine.Engine, clock engine.Clock, cfg Config, log *zap.SugaredLogger) *Poller {
	return NewWithContext(context.Background(), s, e, clock, cfg, log)
}

// NewWithContext creates a poller under a parent context
func NewWithContext(parent context.Context, s *store.Store, e *engine.Engine, clock engine.Clock, cfg Config, log *zap.SugaredLogger) *Poller {
	if cfg.Interval < time.Second {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if log == nil {
		log = logger.ComponentLogger("scheduler")
	}

	var limiter *rate.Limiter
	if cfg.MaxSendsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.MaxSendsPerMinute)/60.0), 1)
	}

	ctx, cancel := context.WithCancel(parent)
	return &Poller{
		store:   s,
		engine:  e,
		clock:   clock,
		config:  cfg,
		limiter: limiter,
		ctx:     ctx,
		cancel:  cancel,
		logger:  log,
	}
}

// Start releases jobs a crashed run left in running, then begins the loop
func (p *Poller) Start() {
	released, err := p.store.ReleaseStaleRunningJobs(p.ctx, p.clock.Now())
	if err != nil {
		p.logger.Warnw("Failed to release stale running jobs", "error", err)
	} else if released > 0 {
		p.logger.Infow("Released interrupted jobs back to pending", logger.FieldCount, released)
	}

	p.wg.Add(1)
	go p.run()
	p.logger.Infow("Scheduler poller started",
		"interval", p.config.Interval,
		logger.FieldBatchSize, p.config.BatchSize)
}

// Stop cancels the loop and waits for the in-flight tick to finish
func (p *Poller) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Infow("Scheduler poller stopped")
}

// SetInterval applies a new tick interval on the next loop iteration.
// Called by the config watcher when the operator edits the poll interval.
func (p *Poller) SetInterval(interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	p.mu.Lock()
	p.config.Interval = interval
	p.mu.Unlock()
	p.logger.Infow("Scheduler interval updated", "interval", interval)
}

// SetMaxSendsPerMinute replaces the send-rate limit; zero removes it
func (p *Poller) SetMaxSendsPerMinute(perMinute int) {
	p.mu.Lock()
	if perMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
	} else {
		p.limiter = nil
	}
	p.config.MaxSendsPerMinute = perMinute
	p.mu.Unlock()
	p.logger.Infow("Scheduler send rate updated", "max_sends_per_minute", perMinute)
}

func (p *Poller) interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config.Interval
}

// sendLimiter snapshots the current limiter. The config watcher swaps the
// pointer under the mutex, so job execution must read it the same way.
func (p *Poller) sendLimiter() *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limiter
}

// run is the poller loop. The ticker is recreated when the interval
// changes so live config edits take effect without a restart.
func (p *Poller) run() {
	defer p.wg.Done()

	interval := p.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if next := p.interval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}

			now := p.clock.Now()
			p.mu.Lock()
			p.lastTickAt = now
			p.ticksSinceStart++
			tick := p.ticksSinceStart
			p.mu.Unlock()

			p.heartbeat(now)

			if err := p.Tick(now); err != nil {
				p.logger.Warnw("Scheduler tick error", "error", err, "tick", tick)
			}
		}
	}
}

// Tick claims and executes one batch of due jobs. Exported so tests step
// the scheduler with a fake clock instead of sleeping.
func (p *Poller) Tick(now time.Time) error {
	due, err := p.store.ListDueJobs(p.ctx, now, p.config.BatchSize)
	if err != nil {
		return err
	}

	for i := range due {
		if err := p.runJob(&due[i]); err != nil {
			// Per-job failure never stops the batch; the job is already
			// released and retried next tick.
			p.logger.Warnw("Job execution failed",
				logger.FieldJobID, due[i].ID,
				logger.FieldNodeID, due[i].NodeID,
				"error", err)
		}
	}
	return nil
}

// runJob claims, executes and completes one job. The claim commits before
// the execution transaction opens, and done/release commits after it, so a
// crash at any point leaves the job in a recoverable state.
func (p *Poller) runJob(job *flow.ScheduledJob) error {
	claimed, err := p.store.ClaimJob(p.ctx, job.ID, p.clock.Now())
	if err != nil {
		return err
	}
	if !claimed {
		// Lost the claim race, or the job was cancelled between the
		// due-list and here. Either way it is not ours.
		return nil
	}

	if limiter := p.sendLimiter(); limiter != nil {
		if err := limiter.Wait(p.ctx); err != nil {
			// Shutting down mid-batch: put the job back for the next run.
			return p.store.ReleaseJob(context.Background(), job.ID, p.clock.Now())
		}
	}

	_, execErr := p.engine.ExecuteNode(p.ctx, job.ParticipantID, job.NodeID)
	if execErr != nil {
		if relErr := p.store.ReleaseJob(p.ctx, job.ID, p.clock.Now()); relErr != nil {
			p.logger.Errorw("Failed to release job after execution error",
				logger.FieldJobID, job.ID, "error", relErr)
		}
		return execErr
	}

	return p.store.MarkJobDone(p.ctx, job.ID, p.clock.Now())
}

// heartbeat logs a status line when the pending population changes:
// next due job, pending count, and process memory.
func (p *Poller) heartbeat(now time.Time) {
	counts, err := p.store.CountJobsByStatus(p.ctx)
	if err != nil {
		p.logger.Warnw("Failed to count jobs", "error", err)
		return
	}
	pending := counts[flow.JobStatusPending]

	p.mu.Lock()
	changed := pending != p.lastPendingCount
	p.lastPendingCount = pending
	p.mu.Unlock()

	if !changed {
		return
	}

	fields := []interface{}{logger.FieldCount, pending}

	next, err := p.store.NextPendingRunAt(p.ctx)
	if err == nil && next != nil {
		until := next.Sub(now)
		if until < 0 {
			until = 0
		}
		fields = append(fields, "next_due_in", until.Round(time.Second))
	}

	if mem, err := GetMemoryStats(); err == nil {
		fields = append(fields, "mem_used_gb", mem.UsedGB, "mem_percent", mem.UsedPercent)
	}

	p.logger.Infow("Scheduler status", fields...)
}
