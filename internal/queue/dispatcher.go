package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sync-engine/internal/apperrors"
)

// Mode is the dispatcher's current execution tier.
type Mode string

const (
	ModeCold Mode = "cold"
	ModeHot  Mode = "hot"
)

// Job lifecycle states reported by GetJobProgress.
const (
	StatusQueued    = "queued"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusUnknown   = "unknown"
)

const (
	maxAttempts      = 3
	retryBackoffBase = time.Second

	// Progress estimates when only the connection status is known.
	scanEstimate = 3 * time.Minute
	syncEstimate = 5 * time.Minute
	progressCap  = 0.95
)

// JobProcessor handles one job type. Processors register at startup,
// which keeps this package free of service imports.
type JobProcessor interface {
	Type() JobType
	Process(ctx context.Context, job *Job) error
}

// ConnectionStatusFn resolves a connection's current status string; the
// progress fallback uses it when a job has left the in-memory registry.
type ConnectionStatusFn func(ctx context.Context, connectionID uuid.UUID) (string, error)

// JobProgress is the externally visible view of a job.
type JobProgress struct {
	JobID       string  `json:"jobId"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	Description string  `json:"description,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// Config tunes the adaptive behavior.
type Config struct {
	ThresholdReqPerSec float64
	ScaleDownIdleSecs  int
	HotWorkers         int
}

// Dispatcher routes jobs to a single in-process worker in cold mode and
// to a redis-backed worker pool in hot mode. Mode switches are driven by
// a sliding window of enqueue timestamps.
type Dispatcher struct {
	cfg    Config
	logger *zap.Logger

	cold *coldBackend
	hot  *hotBackend

	window       *slidingWindow
	mu           sync.RWMutex
	mode         Mode
	lastActivity time.Time

	processors map[JobType]JobProcessor
	statusFn   ConnectionStatusFn

	states   sync.Map // job id -> *JobProgress
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewDispatcher creates the dispatcher in cold mode.
func NewDispatcher(rdb *redis.Client, cfg Config, statusFn ConnectionStatusFn, logger *zap.Logger) *Dispatcher {
	if cfg.ThresholdReqPerSec <= 0 {
		cfg.ThresholdReqPerSec = 5
	}
	if cfg.ScaleDownIdleSecs <= 0 {
		cfg.ScaleDownIdleSecs = 60
	}
	d := &Dispatcher{
		cfg:          cfg,
		logger:       logger,
		window:       newSlidingWindow(time.Minute),
		mode:         ModeCold,
		lastActivity: time.Now(),
		processors:   make(map[JobType]JobProcessor),
		statusFn:     statusFn,
	}
	d.cold = newColdBackend(rdb, d.runJob, logger)
	d.hot = newHotBackend(rdb, d.runJob, cfg.HotWorkers, logger)
	return d
}

// Register installs the processor for a job type. Must happen before Start.
func (d *Dispatcher) Register(p JobProcessor) {
	d.processors[p.Type()] = p
}

// Start launches both backends and the idle checker. Only the backend
// matching the current mode receives new jobs, but both drain.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.cold.Start(ctx)
	d.hot.Start(ctx)

	interval := time.Duration(d.cfg.ScaleDownIdleSecs) * time.Second / 2
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.maybeScaleDown()
			}
		}
	}()
}

// Stop drains both backends.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		d.cold.Stop()
		d.hot.Stop()
	})
}

// Mode returns the current execution tier.
func (d *Dispatcher) Mode() Mode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// Enqueue assigns an id if missing, records traffic, and routes the job
// to the backend for the current mode.
func (d *Dispatcher) Enqueue(ctx context.Context, job *Job) (string, error) {
	if _, ok := d.processors[job.Type]; !ok {
		return "", fmt.Errorf("no processor registered for job type %q", job.Type)
	}
	if job.ID == "" {
		job.ID = NewJobID(job.Type, job.ConnectionID)
	}
	job.EnqueuedAt = time.Now()

	d.recordActivity(job.EnqueuedAt)
	d.states.Store(job.ID, &JobProgress{JobID: job.ID, Status: StatusQueued})

	var err error
	if d.Mode() == ModeHot {
		err = d.hot.Enqueue(ctx, job)
	} else {
		err = d.cold.Enqueue(ctx, job)
	}
	if err != nil {
		d.states.Delete(job.ID)
		return "", err
	}
	return job.ID, nil
}

// recordActivity notes traffic and promotes to hot mode when the window
// shows sustained load at or above the threshold.
func (d *Dispatcher) recordActivity(now time.Time) {
	d.window.Record(now)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastActivity = now
	if d.mode == ModeHot {
		return
	}
	total := d.window.Count(now)
	rate := d.window.Rate(now)
	if float64(total) >= d.cfg.ThresholdReqPerSec*60 && rate >= d.cfg.ThresholdReqPerSec {
		d.mode = ModeHot
		d.logger.Info("queue scaling up to hot mode",
			zap.Int("windowTotal", total),
			zap.Float64("ratePerSec", rate))
	}
}

func (d *Dispatcher) maybeScaleDown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode != ModeHot {
		return
	}
	idle := time.Since(d.lastActivity)
	if idle >= time.Duration(d.cfg.ScaleDownIdleSecs)*time.Second {
		d.mode = ModeCold
		// Demotion only changes routing for new jobs; the hot workers
		// keep draining whatever is still on the redis list. The window
		// restarts empty so stale traffic cannot re-promote instantly.
		d.window.Reset()
		d.logger.Info("queue scaling down to cold mode", zap.Duration("idle", idle))
	}
}

// runJob executes a job with the retry policy: transient failures get
// maxAttempts tries with exponential backoff from retryBackoffBase.
func (d *Dispatcher) runJob(ctx context.Context, job *Job) {
	processor, ok := d.processors[job.Type]
	if !ok {
		d.logger.Error("no processor for queued job", zap.String("jobId", job.ID), zap.String("type", string(job.Type)))
		d.setState(job.ID, StatusFailed, 0, "no processor registered")
		return
	}

	d.setState(job.ID, StatusActive, 0, "")

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		job.Attempts = attempt + 1
		err = processor.Process(ctx, job)
		if err == nil {
			d.setState(job.ID, StatusCompleted, 1, "")
			return
		}
		if !apperrors.Retryable(err) {
			break
		}
		backoff := retryBackoffBase << attempt
		d.logger.Warn("job attempt failed, retrying",
			zap.String("jobId", job.ID),
			zap.Int("attempt", job.Attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-ctx.Done():
			d.setState(job.ID, StatusFailed, 0, ctx.Err().Error())
			return
		case <-time.After(backoff):
		}
	}

	d.logger.Error("job failed",
		zap.String("jobId", job.ID),
		zap.Int("attempts", job.Attempts),
		zap.Error(err))
	d.setState(job.ID, StatusFailed, 0, err.Error())
}

func (d *Dispatcher) setState(jobID, status string, progress float64, errMsg string) {
	d.states.Store(jobID, &JobProgress{
		JobID:    jobID,
		Status:   status,
		Progress: progress,
		Error:    errMsg,
	})
}

// GetJobProgress reports job state. Jobs evicted from memory (restart,
// other instance) fall back to inference from the job id: the embedded
// connection's status tells the phase, elapsed time against a per-type
// estimate approximates progress.
func (d *Dispatcher) GetJobProgress(ctx context.Context, jobID string) (*JobProgress, error) {
	if state, ok := d.states.Load(jobID); ok {
		return state.(*JobProgress), nil
	}

	jobType, connID, startedAt, err := ParseJobID(jobID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "unrecognized job id", err)
	}
	if connID == nil || d.statusFn == nil {
		return &JobProgress{JobID: jobID, Status: StatusUnknown}, nil
	}

	status, err := d.statusFn(ctx, *connID)
	if err != nil {
		return nil, err
	}

	progress := &JobProgress{JobID: jobID, Status: StatusUnknown}
	switch status {
	case "needs_review", "active":
		progress.Status = StatusCompleted
		progress.Progress = 1
	case "error":
		progress.Status = StatusFailed
	case "scanning", "syncing", "reconciling":
		progress.Status = StatusActive
		estimate := syncEstimate
		if jobType == JobInitialScan {
			estimate = scanEstimate
		}
		elapsed := time.Since(startedAt)
		frac := elapsed.Seconds() / estimate.Seconds()
		if frac > progressCap {
			frac = progressCap
		}
		progress.Progress = frac
		progress.Description = "inferred from connection status"
	}
	return progress, nil
}
