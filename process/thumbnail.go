package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ewintr.nl/vidl/storage"
)

type Thumbnails struct {
	cache  *storage.ThumbnailCache
	client *http.Client
	logger *slog.Logger
}

func NewThumbnails(cache *storage.ThumbnailCache, timeout time.Duration, logger *slog.Logger) *Thumbnails {
	return &Thumbnails{
		cache:  cache,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Fetch adds the image at url to the cache, unless it got there since it
// was queued. A non-2xx response is logged and otherwise ignored.
func (t *Thumbnails) Fetch(ctx context.Context, url string) error {
	if _, ok := t.cache.Get(ctx, url); ok {
		t.logger.Debug("thumbnail already cached", slog.String("url", url))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.logger.Error("could not fetch thumbnail", slog.String("url", url), slog.Int("status", resp.StatusCode))
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read thumbnail: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "image/jpeg"
	}
	t.cache.Add(ctx, url, storage.Image{ContentType: ct, Data: data})

	return nil
}
