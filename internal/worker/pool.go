// Package worker runs training and promotion jobs off the request path.
// A single consumer keeps training sequential; a full queue sheds new jobs
// instead of blocking the caller, and Stop lets queued jobs finish.

package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/courtvision/nba-analysis/internal/logic"
	"github.com/courtvision/nba-analysis/internal/models"
)

// Prometheus metrics
var (
	jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_pipeline_jobs_enqueued_total",
		Help: "Total number of pipeline jobs accepted",
	}, []string{"kind"})

	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_pipeline_jobs_processed_total",
		Help: "Total number of pipeline jobs that succeeded",
	}, []string{"kind"})

	jobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_pipeline_jobs_failed_total",
		Help: "Total number of pipeline jobs that failed",
	}, []string{"kind"})

	jobsLoadShed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_pipeline_jobs_load_shed_total",
		Help: "Total number of pipeline jobs rejected because the queue was full",
	}, []string{"kind"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "courtvision_pipeline_queue_depth",
		Help: "Current depth of the pipeline job queue",
	})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "courtvision_pipeline_job_duration_seconds",
		Help:    "Duration of pipeline jobs",
		Buckets: []float64{1, 5, 15, 30, 60, 300, 600, 1800, 3600},
	}, []string{"kind"})
)

var ErrUnknownJobKind = errors.New("unknown job kind")

// Job is a queued pipeline operation
type Job struct {
	ID      string
	Kind    models.JobKind
	Targets []string
}

// PoolConfig configures the job pool
type PoolConfig struct {
	QueueSize int
	Pipeline  logic.PipelineService
	Logger    *zap.Logger
}

// Pool runs pipeline jobs one at a time and remembers their status
type Pool struct {
	config   PoolConfig
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	stopped bool
	jobs    map[string]*models.JobStatus
	now     func() time.Time
}

// NewPool creates a new job pool
func NewPool(cfg PoolConfig) *Pool {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	return &Pool{
		config:   cfg,
		jobQueue: make(chan Job, cfg.QueueSize),
		logger:   cfg.Logger.Sugar(),
		jobs:     make(map[string]*models.JobStatus),
		now:      time.Now,
	}
}

// Start launches the consumer goroutine. Jobs run under ctx.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.worker()

	go p.reportQueueDepth()

	p.logger.Infow("Pipeline worker started", "queueSize", p.config.QueueSize)
}

// Stop rejects new jobs and waits for queued jobs to finish
func (p *Pool) Stop() {
	p.logger.Info("Stopping pipeline worker...")

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.wg.Wait()
	// nil when Start was never called
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("Pipeline worker stopped")
}

// Enqueue queues a job without blocking. It returns false when the queue is
// full or the pool is stopped.
func (p *Pool) Enqueue(kind models.JobKind, targets []string) (models.JobStatus, bool) {
	job := Job{ID: uuid.NewString(), Kind: kind, Targets: targets}
	status := &models.JobStatus{
		ID:         job.ID,
		Kind:       kind,
		Targets:    targets,
		State:      models.JobQueued,
		EnqueuedAt: p.now().UTC(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		p.logger.Warnw("Pipeline worker stopped, rejecting job", "kind", kind)
		jobsLoadShed.WithLabelValues(string(kind)).Inc()
		return models.JobStatus{}, false
	}

	select {
	case p.jobQueue <- job:
		p.jobs[job.ID] = status
		jobsEnqueued.WithLabelValues(string(kind)).Inc()
		p.logger.Infow("Job enqueued", "job", job.ID, "kind", kind, "targets", targets)
		return *status, true
	default:
		p.logger.Warnw("Pipeline queue full, dropping job", "kind", kind, "depth", len(p.jobQueue))
		jobsLoadShed.WithLabelValues(string(kind)).Inc()
		return models.JobStatus{}, false
	}
}

// Job returns a snapshot of the job's status
func (p *Pool) Job(id string) (models.JobStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	status, ok := p.jobs[id]
	if !ok {
		return models.JobStatus{}, false
	}
	return *status, true
}

// QueueDepth returns current queue size
func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobQueue {
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	started := p.now().UTC()
	p.update(job.ID, func(s *models.JobStatus) {
		s.State = models.JobRunning
		s.StartedAt = &started
	})
	p.logger.Infow("Job started", "job", job.ID, "kind", job.Kind)

	start := time.Now()
	result, err := p.execute(job)
	jobDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())

	finished := p.now().UTC()
	p.update(job.ID, func(s *models.JobStatus) {
		s.FinishedAt = &finished
		s.Result = result
		if err != nil {
			s.State = models.JobFailed
			s.Error = err.Error()
			return
		}
		s.State = models.JobSucceeded
	})

	if err != nil {
		jobsFailed.WithLabelValues(string(job.Kind)).Inc()
		p.logger.Errorw("Job failed", "job", job.ID, "kind", job.Kind, "duration", time.Since(start), "error", err)
		return
	}
	jobsProcessed.WithLabelValues(string(job.Kind)).Inc()
	p.logger.Infow("Job finished", "job", job.ID, "kind", job.Kind, "duration", time.Since(start))
}

// execute returns whatever partial result the operation produced, even on error
func (p *Pool) execute(job Job) (any, error) {
	switch job.Kind {
	case models.JobTrain:
		report, err := p.config.Pipeline.Train(p.ctx, job.Targets)
		if report == nil {
			return nil, err
		}
		return report, err
	case models.JobPromote:
		results, err := p.config.Pipeline.Promote(p.ctx, job.Targets)
		if results == nil {
			return nil, err
		}
		return results, err
	}
	return nil, ErrUnknownJobKind
}

func (p *Pool) update(id string, fn func(*models.JobStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.jobs[id]; ok {
		fn(s)
	}
}

func (p *Pool) reportQueueDepth() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			queueDepth.Set(float64(len(p.jobQueue)))
		case <-p.ctx.Done():
			return
		}
	}
}
