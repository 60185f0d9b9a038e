package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"ewintr.nl/vidl/process"
	"ewintr.nl/vidl/storage"
)

// ThumbnailAPI serves cached images. A miss queues the image for fetching,
// so the next request for it can be served.
type ThumbnailAPI struct {
	cache  *storage.ThumbnailCache
	pool   process.Enqueuer
	logger *slog.Logger
}

func NewThumbnailAPI(cache *storage.ThumbnailCache, pool process.Enqueuer, logger *slog.Logger) *ThumbnailAPI {
	return &ThumbnailAPI{
		cache:  cache,
		pool:   pool,
		logger: logger,
	}
}

func (t *ThumbnailAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != "/" {
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the thumbnail api", r.Method, r.URL.Path))
		return
	}
	url := r.URL.Query().Get("url")
	if url == "" {
		Error(w, http.StatusBadRequest, "missing url", errors.New("url parameter is required"))
		return
	}

	img, ok := t.cache.Get(r.Context(), url)
	if !ok {
		if err := t.pool.Enqueue(process.ThumbnailCache{URL: url}); err != nil {
			t.logger.Error("could not queue thumbnail", slog.String("url", url), slog.String("error", err.Error()))
		}
		Message(w, http.StatusNotFound, "thumbnail not cached yet", url)
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}
