package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"ewintr.nl/vidl/model"
	"ewintr.nl/vidl/process"
	"ewintr.nl/vidl/storage"
	"miniflux.app/client"
)

type MinifluxInfo struct {
	Endpoint string
	ApiKey   string
}

type Miniflux struct {
	client *client.Client
}

func NewMiniflux(mflInfo MinifluxInfo) *Miniflux {
	return &Miniflux{
		client: client.New(mflInfo.Endpoint, mflInfo.ApiKey),
	}
}

type Entry struct {
	ID        int64
	ChannelID string
	Title     string
	URL       string
}

// Unread returns the unread entries of YouTube channel feeds. Entries of
// other feeds are left alone.
func (m *Miniflux) Unread() ([]Entry, error) {
	result, err := m.client.Entries(&client.Filter{Status: "unread"})
	if err != nil {
		return []Entry{}, err
	}

	entries := []Entry{}
	for _, e := range result.Entries {
		if e.Feed == nil {
			continue
		}
		channelID := youtubeChannelID(e.Feed.FeedURL)
		if channelID == "" {
			continue
		}
		entries = append(entries, Entry{
			ID:        e.ID,
			ChannelID: channelID,
			Title:     e.Title,
			URL:       e.URL,
		})
	}

	return entries, nil
}

func (m *Miniflux) MarkRead(entryIDs []int64) error {
	if len(entryIDs) == 0 {
		return nil
	}
	return m.client.UpdateEntries(entryIDs, "read")
}

// youtubeChannelID extracts the id from feed urls like
// https://www.youtube.com/feeds/videos.xml?channel_id=UC...
func youtubeChannelID(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || !strings.HasSuffix(u.Hostname(), "youtube.com") {
		return ""
	}
	return u.Query().Get("channel_id")
}

// Trigger turns new feed entries into forced updates of the channels they
// belong to.
type Trigger struct {
	feed   *Miniflux
	store  storage.ChannelRepository
	pool   process.Enqueuer
	logger *slog.Logger
}

func NewTrigger(feed *Miniflux, store storage.ChannelRepository, pool process.Enqueuer, logger *slog.Logger) *Trigger {
	return &Trigger{
		feed:   feed,
		store:  store,
		pool:   pool,
		logger: logger,
	}
}

// Check queues one forced update per channel that has unread entries and
// marks the handled entries as read. Entries for channels that are not
// tracked stay unread.
func (t *Trigger) Check(ctx context.Context) (int, error) {
	entries, err := t.feed.Unread()
	if err != nil {
		return 0, fmt.Errorf("could not get unread entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	channels, err := t.store.ListChannels(ctx)
	if err != nil {
		return 0, err
	}
	byExternalID := make(map[string]model.Channel, len(channels))
	for _, c := range channels {
		if c.Service == model.ServiceYoutube {
			byExternalID[c.ExternalID] = c
		}
	}

	var (
		read   []int64
		queued = map[string]bool{}
	)
	for _, e := range entries {
		c, ok := byExternalID[e.ChannelID]
		if !ok {
			t.logger.Debug("entry for untracked channel", slog.String("channel", e.ChannelID), slog.String("title", e.Title))
			continue
		}
		if !queued[c.ExternalID] {
			if err := t.pool.Enqueue(process.Update{Channel: c, Force: true}); err != nil {
				return len(queued), err
			}
			queued[c.ExternalID] = true
		}
		read = append(read, e.ID)
	}

	if err := t.feed.MarkRead(read); err != nil {
		return len(queued), fmt.Errorf("could not mark entries read: %w", err)
	}
	t.logger.Info("feed checked", slog.Int("entries", len(entries)), slog.Int("updates", len(queued)))

	return len(queued), nil
}

// Run checks the feed every interval until ctx is done.
func (t *Trigger) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := t.Check(ctx); err != nil {
			t.logger.Error("feed check failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
