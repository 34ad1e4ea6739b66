package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// hotQueueKey is the redis work list consumed by the hot-mode workers.
const hotQueueKey = "sync-engine:jobs"

// ErrQueueFull is returned when the in-process queue rejects an enqueue.
var ErrQueueFull = errors.New("job queue is full")

// hotBackend distributes jobs over redis to a pool of workers. It is
// engaged when enqueue traffic crosses the dispatcher threshold.
type hotBackend struct {
	rdb     *redis.Client
	process processFn
	workers int
	logger  *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func newHotBackend(rdb *redis.Client, process processFn, workers int, logger *zap.Logger) *hotBackend {
	if workers <= 0 {
		workers = 4
	}
	return &hotBackend{
		rdb:     rdb,
		process: process,
		workers: workers,
		logger:  logger,
	}
}

func (b *hotBackend) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx)
	}
}

func (b *hotBackend) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

func (b *hotBackend) Enqueue(ctx context.Context, job *Job) error {
	if b.rdb == nil {
		return errors.New("hot queue requires redis")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.rdb.LPush(ctx, hotQueueKey, data).Err()
}

func (b *hotBackend) worker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := b.rdb.BRPop(ctx, 2*time.Second, hotQueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			b.logger.Warn("hot queue poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			b.logger.Error("dropping undecodable job", zap.Error(err))
			continue
		}
		b.process(ctx, &job)
	}
}
