package encounter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/raidmeter/encounters/internal/metrics"
	"github.com/raidmeter/encounters/pkg/log"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/singleflight"
)

var (
	ErrQueueFull  = errors.New("maintenance queue is full")
	ErrJobKind    = errors.New("unknown maintenance job")
	ErrJobCreate  = errors.New("failed to create maintenance job")
	ErrMaintained = errors.New("maintenance job failed")
)

type JobKind string

const (
	JobVacuum   JobKind = "vacuum"
	JobOptimize JobKind = "optimize"
	JobReindex  JobKind = "reindex"
)

type Job struct {
	ID       uuid.UUID `json:"id"`
	Kind     JobKind   `json:"kind"`
	QueuedOn time.Time `json:"queuedOn"`
}

// Maintainer is the set of long-running store operations the worker performs.
type Maintainer interface {
	Vacuum(ctx context.Context) error
	Optimize(ctx context.Context) error
	RebuildSearchIndex(ctx context.Context) error
}

// Maintenance runs compaction and index maintenance off the request path. Jobs are queued with
// Enqueue and processed one at a time by Start.
type Maintenance struct {
	store   Maintainer
	jobs    chan Job
	limiter ratelimit.Limiter
	group   *singleflight.Group
	metrics metrics.Metrics
}

// NewMaintenance creates a worker with room for queueSize pending jobs. VACUUM runs at most once
// per vacuumInterval.
func NewMaintenance(store Maintainer, queueSize int, vacuumInterval time.Duration, metrics metrics.Metrics) *Maintenance {
	if queueSize <= 0 {
		queueSize = 8
	}

	if vacuumInterval <= 0 {
		vacuumInterval = time.Minute
	}

	return &Maintenance{
		store:   store,
		jobs:    make(chan Job, queueSize),
		limiter: ratelimit.New(1, ratelimit.Per(vacuumInterval), ratelimit.WithoutSlack),
		group:   &singleflight.Group{},
		metrics: metrics,
	}
}

// Enqueue schedules a job without blocking. ErrQueueFull is returned when the worker is saturated.
func (m *Maintenance) Enqueue(kind JobKind) (Job, error) {
	if !kind.valid() {
		return Job{}, ErrJobKind
	}

	jobID, errID := uuid.NewV4()
	if errID != nil {
		return Job{}, errors.Join(errID, ErrJobCreate)
	}

	job := Job{ID: jobID, Kind: kind, QueuedOn: time.Now()}

	select {
	case m.jobs <- job:
		slog.Debug("Queued maintenance job", slog.String("job_id", job.ID.String()), slog.String("kind", string(kind)),
			slog.Int("pending", m.Pending()))

		return job, nil
	default:
		return Job{}, ErrQueueFull
	}
}

// Pending is the number of jobs waiting for the worker.
func (m *Maintenance) Pending() int {
	return len(m.jobs)
}

// Start processes queued jobs until ctx is cancelled.
func (m *Maintenance) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-m.jobs:
			if err := m.Run(ctx, job.Kind); err != nil {
				slog.Error("Maintenance job failed", log.ErrAttr(err),
					slog.String("job_id", job.ID.String()), slog.String("kind", string(job.Kind)))

				continue
			}

			slog.Info("Maintenance job complete",
				slog.String("job_id", job.ID.String()), slog.String("kind", string(job.Kind)),
				slog.Duration("waited", time.Since(job.QueuedOn)))
		}
	}
}

// Run performs a job synchronously. Concurrent calls for the same kind share a single execution.
func (m *Maintenance) Run(ctx context.Context, kind JobKind) error {
	if !kind.valid() {
		return ErrJobKind
	}

	_, err, _ := m.group.Do(string(kind), func() (any, error) {
		started := time.Now()
		errRun := m.run(ctx, kind)
		m.metrics.JobFinished(string(kind), time.Since(started), errRun)

		return nil, errRun
	})
	if err != nil {
		return errors.Join(err, ErrMaintained)
	}

	return nil
}

func (m *Maintenance) run(ctx context.Context, kind JobKind) error {
	switch kind {
	case JobVacuum:
		if err := m.throttle(ctx); err != nil {
			return err
		}

		return m.store.Vacuum(ctx)
	case JobOptimize:
		if err := m.throttle(ctx); err != nil {
			return err
		}

		return m.store.Optimize(ctx)
	case JobReindex:
		return m.store.RebuildSearchIndex(ctx)
	default:
		return ErrJobKind
	}
}

// throttle waits for the rewrite limiter, giving up when ctx is cancelled first. An abandoned wait
// still consumes its slot once the limiter releases it.
func (m *Maintenance) throttle(ctx context.Context) error {
	ready := make(chan struct{})

	go func() {
		m.limiter.Take()
		close(ready)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ready:
		return nil
	}
}

func (k JobKind) valid() bool {
	switch k {
	case JobVacuum, JobOptimize, JobReindex:
		return true
	default:
		return false
	}
}
