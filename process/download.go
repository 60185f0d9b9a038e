package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ewintr.nl/vidl/model"
	"ewintr.nl/vidl/storage"
	"github.com/google/uuid"
)

// Downloader retrieves a single video. Output of the underlying tool is its
// own business; only success or failure matters here.
type Downloader interface {
	Download(ctx context.Context, video model.VideoRecord) error
}

type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

type Downloads struct {
	store      storage.VideoRepository
	downloader Downloader
	logger     *slog.Logger
}

func NewDownloads(store storage.VideoRepository, downloader Downloader, logger *slog.Logger) *Downloads {
	return &Downloads{
		store:      store,
		downloader: downloader,
		logger:     logger,
	}
}

// Run downloads the video if it is still queued. A video that was picked up
// by another worker, or that is no longer queued, is left alone. A failing
// download ends as grab_error and is not reported as an error.
func (d *Downloads) Run(ctx context.Context, id uuid.UUID) error {
	video, err := d.store.Video(ctx, id)
	if err != nil {
		return err
	}
	logger := d.logger.With(slog.String("video", id.String()), slog.String("url", video.URL))
	if video.Status != model.StatusQueued {
		logger.Info("video is not queued, skipping", slog.String("status", string(video.Status)))
		return nil
	}

	if err := d.store.SetVideoStatusFrom(ctx, id, model.StatusQueued, model.StatusDownloading); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			logger.Info("video was claimed by another worker")
			return nil
		}
		return err
	}

	status := model.StatusGrabbed
	if err := d.downloader.Download(ctx, video.VideoRecord); err != nil {
		dlErr := &DownloadError{URL: video.URL, Err: err}
		logger.Error("download failed", slog.String("error", dlErr.Error()))
		status = model.StatusGrabError
	} else {
		logger.Info("video grabbed", slog.String("title", video.Title))
	}

	if err := d.store.SetVideoStatusFrom(ctx, id, model.StatusDownloading, status); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			logger.Info("video status changed during download, keeping it", slog.String("result", string(status)))
			return nil
		}
		return err
	}

	return nil
}

// QueueDownload marks a new or failed video as queued and hands it to the
// pool.
func QueueDownload(ctx context.Context, store storage.VideoRepository, pool Enqueuer, id uuid.UUID) error {
	if err := store.SetVideoStatus(ctx, id, model.StatusQueued); err != nil {
		return err
	}
	return pool.Enqueue(Download{VideoID: id})
}
