package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ewintr.nl/vidl/fetcher"
	"ewintr.nl/vidl/model"
	"ewintr.nl/vidl/storage"
)

const (
	DefaultUpdateInterval = 60 * time.Minute
	DefaultDedupWindow    = 200
)

type UpdateResult struct {
	// Skipped is set when the channel was checked recently enough.
	Skipped bool
	Seen    int
	Added   int
}

// Updater discovers the videos a channel published since it was last
// checked and stores them with status new.
type Updater struct {
	store    storage.Store
	sources  fetcher.Sources
	interval time.Duration
	window   int
	now      func() time.Time
	logger   *slog.Logger
}

func NewUpdater(store storage.Store, sources fetcher.Sources, interval time.Duration, logger *slog.Logger) *Updater {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	return &Updater{
		store:    store,
		sources:  sources,
		interval: interval,
		window:   DefaultDedupWindow,
		now:      time.Now,
		logger:   logger,
	}
}

// Update walks the channel listing newest first. Unless fullUpdate is set,
// the walk stops at the first video that is already among the most recent
// ones in the store. Without force, a channel that was checked less than the
// update interval ago is skipped.
//
// Nothing is stored when the listing fails halfway, so the next run sees
// the same gap again.
func (u *Updater) Update(ctx context.Context, channel model.Channel, force, fullUpdate bool) (UpdateResult, error) {
	logger := u.logger.With(slog.String("channel", channel.ExternalID), slog.String("service", string(channel.Service)))

	if !force {
		last, err := u.store.ChannelLastUpdate(ctx, channel.ID)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("could not get last update: %w", err)
		}
		if last != nil && u.now().Sub(*last) <= u.interval {
			logger.Debug("channel is up to date", slog.Time("last_update", *last))
			return UpdateResult{Skipped: true}, nil
		}
	}

	source, err := u.sources.Get(channel.Service)
	if err != nil {
		logger.Error("skipping channel", slog.String("error", err.Error()))
		return UpdateResult{}, err
	}

	if err := u.store.SetChannelLastUpdate(ctx, channel.ID, u.now()); err != nil {
		return UpdateResult{}, fmt.Errorf("could not mark update: %w", err)
	}

	md, err := source.Metadata(ctx, channel.ExternalID)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("could not fetch metadata: %w", err)
	}
	if err := u.store.UpdateChannelMetadata(ctx, channel.ID, md); err != nil {
		return UpdateResult{}, fmt.Errorf("could not store metadata: %w", err)
	}

	known, err := u.store.RecentVideoURLs(ctx, channel.ID, u.window)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("could not get recent videos: %w", err)
	}

	var (
		res   UpdateResult
		fresh []model.VideoRecord
	)
	for rec, err := range source.Videos(ctx, channel.ExternalID) {
		if err != nil {
			return res, fmt.Errorf("could not list videos: %w", err)
		}
		res.Seen++
		if _, ok := known[rec.URL]; ok {
			if !fullUpdate {
				logger.Debug("reached known video", slog.String("url", rec.URL), slog.Int("seen", res.Seen))
				break
			}
			continue
		}
		fresh = append(fresh, rec)
	}

	// oldest first, so date_added follows publication order
	for i := len(fresh) - 1; i >= 0; i-- {
		rec := fresh[i]
		if _, err := u.store.InsertVideo(ctx, channel.ID, rec); err != nil {
			if errors.Is(err, storage.ErrDuplicateURL) {
				continue
			}
			logger.Error("could not store video", slog.String("url", rec.URL), slog.String("error", err.Error()))
			continue
		}
		res.Added++
	}

	logger.Info("channel updated", slog.Int("seen", res.Seen), slog.Int("added", res.Added), slog.Bool("full", fullUpdate))
	return res, nil
}
