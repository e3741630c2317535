// Package jobs schedules the recurring maintenance work: status polling,
// token cleanup and embedding backfill.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/metrics"
)

// DefaultJobTimeout bounds a single run.
const DefaultJobTimeout = 5 * time.Minute

// Job is a named unit of scheduled work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Runner executes jobs on their cron schedules. It implements system.Service.
type Runner struct {
	cron    *cron.Cron
	jobs    map[string]Job
	order   []string
	timeout time.Duration
	metrics *metrics.Metrics
	log     *logging.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewRunner creates an empty runner.
func NewRunner(log *logging.Logger, m *metrics.Metrics) *Runner {
	if log == nil {
		log = logging.NewDefault("jobs")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		jobs:    make(map[string]Job),
		timeout: DefaultJobTimeout,
		metrics: m,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add schedules job. The schedule uses standard cron syntax or descriptors such as "@every 5m".
func (r *Runner) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job requires a name and a run function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	if _, err := r.cron.AddFunc(job.Schedule, func() { r.execute(r.ctx, job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Schedule, err)
	}
	r.jobs[job.Name] = job
	r.order = append(r.order, job.Name)
	return nil
}

// Jobs returns the registered job names in registration order.
func (r *Runner) Jobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// RunNow executes the named job synchronously.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	r.mu.Lock()
	job, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return r.execute(ctx, job)
}

// Name implements system.Service.
func (r *Runner) Name() string { return "jobs" }

// Start begins scheduling.
func (r *Runner) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	r.cron.Start()
	r.running = true
	r.log.WithField("jobs", r.order).Info("Job scheduler started")
	return nil
}

// Stop halts scheduling and waits for running jobs until ctx expires, then cancels them.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		r.cancel()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done.Done()
		return ctx.Err()
	}
}

func (r *Runner) execute(ctx context.Context, job Job) (err error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, rec)
		}
		r.metrics.RecordJobRun(job.Name, err)
		entry := r.log.WithField("job", job.Name).WithField("duration_ms", time.Since(start).Milliseconds())
		if err != nil {
			entry.WithError(err).Warn("Job failed")
			return
		}
		entry.Debug("Job completed")
	}()
	return job.Run(ctx)
}
