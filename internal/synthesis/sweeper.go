package synthesis

import (
	"context"
	"errors"
	"log"
	"time"

	"docsynth/internal/config"
	"docsynth/internal/models"
	"docsynth/internal/storage"
)

const TimeoutMessage = "synthesis timed out"

// Sweeper fails Running jobs older than maxAge, releasing their claims.
type Sweeper struct {
	store    JobStore
	notifier Notifier
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

func NewSweeper(store JobStore, notifier Notifier, interval, maxAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = config.DefaultSweepInterval
	}
	if maxAge <= 0 {
		maxAge = config.DefaultStaleJobAge
	}
	return &Sweeper{
		store:    store,
		notifier: notifier,
		interval: interval,
		maxAge:   maxAge,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := s.SweepOnce(ctx); err != nil {
		log.Printf("sweeper: %v", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.Printf("sweeper: %v", err)
			}
		}
	}
}

// SweepOnce returns how many jobs were failed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.store.StaleJobs(ctx, now.Add(-s.maxAge))
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range stale {
		job := &stale[i]
		duration := now.Sub(job.StartedAt).Milliseconds()
		if err := s.store.FailJob(ctx, job.ID, TimeoutMessage, now, duration); err != nil {
			if errors.Is(err, storage.ErrNotRunning) {
				continue
			}
			log.Printf("sweeper: fail job %s: %v", job.ID, err)
			continue
		}
		swept++
		log.Printf("sweeper: job %s for %s/%s timed out after %dms", job.ID, job.TenantID, job.DocumentType, duration)
		if s.notifier != nil {
			job.Status = models.JobFailed
			job.ErrorMessage = TimeoutMessage
			job.CompletedAt = &now
			job.DurationMs = &duration
			s.notifier.JobFinished(ctx, job)
		}
	}
	return swept, nil
}
