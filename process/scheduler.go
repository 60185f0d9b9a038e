package process

import (
	"context"
	"log/slog"
	"time"

	"ewintr.nl/vidl/model"
	"ewintr.nl/vidl/storage"
)

const DefaultScheduleInterval = 5 * time.Minute

// Scheduler queues an update for every channel at a fixed interval. The
// updater itself decides whether a channel is due.
type Scheduler struct {
	store    storage.Store
	pool     Enqueuer
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(store storage.Store, pool Enqueuer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultScheduleInterval
	}
	return &Scheduler{
		store:    store,
		pool:     pool,
		interval: interval,
		logger:   logger,
	}
}

// Run requeues downloads that were left queued by a previous run, then
// schedules updates until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.resumeDownloads(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.ScheduleUpdates(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) ScheduleUpdates(ctx context.Context) {
	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		s.logger.Error("could not list channels", slog.String("error", err.Error()))
		return
	}
	if len(channels) == 0 {
		s.logger.Warn("no channels added yet")
		return
	}
	for _, c := range channels {
		if err := s.pool.Enqueue(Update{Channel: c}); err != nil {
			s.logger.Error("could not schedule update", slog.String("channel", c.ExternalID), slog.String("error", err.Error()))
			return
		}
	}
	s.logger.Debug("updates scheduled", slog.Int("channels", len(channels)))
}

func (s *Scheduler) resumeDownloads(ctx context.Context) {
	videos, err := s.store.VideosByStatus(ctx, model.StatusQueued)
	if err != nil {
		s.logger.Error("could not list queued videos", slog.String("error", err.Error()))
		return
	}
	for _, v := range videos {
		if err := s.pool.Enqueue(Download{VideoID: v.ID}); err != nil {
			s.logger.Error("could not requeue download", slog.String("video", v.ID.String()), slog.String("error", err.Error()))
			return
		}
	}
	if len(videos) > 0 {
		s.logger.Info("requeued downloads", slog.Int("count", len(videos)))
	}
}
