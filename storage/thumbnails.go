package storage

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Image struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// ThumbnailCache keeps channel and video thumbnails in memory, optionally
// backed by Redis so they survive a restart. It is safe for concurrent use and
// meant to be shared by pointer.
type ThumbnailCache struct {
	mu         sync.RWMutex
	images     map[string]Image
	order      []string
	maxEntries int
	rdb        *redis.Client
	ttl        time.Duration
	logger     *slog.Logger
}

// NewThumbnailCache creates a cache holding at most maxEntries images in
// memory. redisURL can be empty to disable the Redis tier.
func NewThumbnailCache(maxEntries int, ttl time.Duration, redisURL string, logger *slog.Logger) *ThumbnailCache {
	c := &ThumbnailCache{
		images:     make(map[string]Image),
		maxEntries: maxEntries,
		ttl:        ttl,
		logger:     logger,
	}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Warn("thumbnail cache: invalid redis url, redis disabled", slog.String("error", err.Error()))
			return c
		}
		rdb := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("thumbnail cache: redis unreachable, redis disabled", slog.String("error", err.Error()))
			rdb.Close()
			return c
		}
		c.rdb = rdb
		logger.Info("thumbnail cache: redis connected", slog.String("addr", opts.Addr))
	}

	return c
}

func thumbnailKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return fmt.Sprintf("vidl:thumb:%x", hash[:12])
}

func (c *ThumbnailCache) Get(ctx context.Context, url string) (Image, bool) {
	c.mu.RLock()
	img, ok := c.images[url]
	c.mu.RUnlock()
	if ok || c.rdb == nil {
		return img, ok
	}

	data, err := c.rdb.Get(ctx, thumbnailKey(url)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("thumbnail cache: redis get failed", slog.String("url", url), slog.String("error", err.Error()))
		}
		return Image{}, false
	}
	if err := json.Unmarshal(data, &img); err != nil {
		return Image{}, false
	}
	c.store(url, img)

	return img, true
}

func (c *ThumbnailCache) Add(ctx context.Context, url string, img Image) {
	c.store(url, img)
	if c.rdb == nil {
		return
	}

	data, err := json.Marshal(img)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, thumbnailKey(url), data, c.ttl).Err(); err != nil {
		c.logger.Warn("thumbnail cache: redis set failed", slog.String("url", url), slog.String("error", err.Error()))
	}
}

func (c *ThumbnailCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// store inserts into the memory tier, evicting the oldest entries first.
func (c *ThumbnailCache) store(url string, img Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.images[url]; !ok {
		c.order = append(c.order, url)
	}
	c.images[url] = img
	for c.maxEntries > 0 && len(c.order) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.images, oldest)
	}
}
