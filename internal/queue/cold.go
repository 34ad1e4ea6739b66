package queue

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// coldQueueKey is the redis mirror of the in-process queue, kept for
// operational visibility while the engine runs in low-traffic mode.
const coldQueueKey = "ultra-low-queue"

// coldBackend runs jobs on a single in-process worker, strictly FIFO.
// Each job is mirrored to a redis list so queued work is observable and
// not silently lost on restart inspection.
type coldBackend struct {
	jobs    chan *Job
	process processFn
	rdb     *redis.Client
	logger  *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type processFn func(ctx context.Context, job *Job)

func newColdBackend(rdb *redis.Client, process processFn, logger *zap.Logger) *coldBackend {
	return &coldBackend{
		jobs:    make(chan *Job, 1024),
		process: process,
		rdb:     rdb,
		logger:  logger,
	}
}

func (b *coldBackend) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-b.jobs:
				b.process(ctx, job)
				b.unmirror(ctx, job)
			}
		}
	}()
}

func (b *coldBackend) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

func (b *coldBackend) Enqueue(ctx context.Context, job *Job) error {
	b.mirror(ctx, job)
	select {
	case b.jobs <- job:
		return nil
	default:
		b.unmirror(ctx, job)
		return ErrQueueFull
	}
}

// Pending returns the number of jobs waiting in process.
func (b *coldBackend) Pending() int {
	return len(b.jobs)
}

func (b *coldBackend) mirror(ctx context.Context, job *Job) {
	if b.rdb == nil {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := b.rdb.LPush(ctx, coldQueueKey, data).Err(); err != nil {
		b.logger.Debug("failed to mirror job to redis", zap.String("jobId", job.ID), zap.Error(err))
	}
}

func (b *coldBackend) unmirror(ctx context.Context, job *Job) {
	if b.rdb == nil {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := b.rdb.LRem(ctx, coldQueueKey, 1, data).Err(); err != nil {
		b.logger.Debug("failed to remove mirrored job", zap.String("jobId", job.ID), zap.Error(err))
	}
}
