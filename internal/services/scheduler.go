package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
	"sync-engine/internal/repository"
)

// Scheduler periodically enqueues reconciliation for every active
// connection. Connections mid-job are skipped by the coordinator's
// compare-and-set, so overlapping ticks are harmless.
type Scheduler struct {
	connections repository.ConnectionStore
	coordinator *Coordinator
	interval    time.Duration
	logger      *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewScheduler wires the periodic reconcile loop
func NewScheduler(connections repository.ConnectionStore, coordinator *Coordinator, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		connections: connections,
		coordinator: coordinator,
		interval:    interval,
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start runs the loop until Stop is called.
func (s *Scheduler) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	conns, err := s.connections.ListActive(ctx)
	if err != nil {
		s.logger.Error("scheduler failed to list active connections", zap.Error(err))
		return
	}
	for _, conn := range conns {
		if s.recentlyAttempted(conn) {
			continue
		}
		if _, err := s.coordinator.RequestReconcile(ctx, conn.UserID, conn.ID); err != nil {
			// Conflict means another job won the connection; not an error.
			if apperrors.Is(err, apperrors.KindConflict) {
				continue
			}
			s.logger.Warn("scheduler failed to enqueue reconcile",
				zap.String("connectionId", conn.ID.String()), zap.Error(err))
			continue
		}
		s.logger.Info("scheduled reconcile",
			zap.String("connectionId", conn.ID.String()),
			zap.String("platform", string(conn.PlatformKind)))
	}
}

// recentlyAttempted reports whether the last attempt is recent enough
// to skip this tick.
func (s *Scheduler) recentlyAttempted(conn models.PlatformConnection) bool {
	return conn.LastSyncAttemptAt != nil && time.Since(*conn.LastSyncAttemptAt) < s.interval
}
