package fetcher

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"ewintr.nl/vidl/model"
)

type invidiousThumbnail struct {
	Quality string `json:"quality"`
	URL     string `json:"url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

type invidiousVideo struct {
	Title           string               `json:"title"`
	VideoID         string               `json:"videoId"`
	VideoThumbnails []invidiousThumbnail `json:"videoThumbnails"`
	Description     string               `json:"description"`
	LengthSeconds   int                  `json:"lengthSeconds"`
	Published       int64                `json:"published"`
}

type invidiousPage struct {
	Videos       []invidiousVideo `json:"videos"`
	Continuation *string          `json:"continuation"`
}

type invidiousChannel struct {
	Author           string               `json:"author"`
	AuthorID         string               `json:"authorId"`
	Description      string               `json:"description"`
	AuthorThumbnails []invidiousThumbnail `json:"authorThumbnails"`
}

// bestThumbnail picks the "default" quality, falling back to the first one.
func bestThumbnail(thumbs []invidiousThumbnail) string {
	for _, t := range thumbs {
		if t.Quality == "default" {
			return t.URL
		}
	}
	if len(thumbs) > 0 {
		return thumbs[0].URL
	}
	return ""
}

type InvidiousInfo struct {
	Endpoint string
	Timeout  time.Duration
	Retry    RetryConfig
}

// Invidious reads YouTube channels through the JSON API of an Invidious
// instance.
type Invidious struct {
	endpoint string
	client   *jsonClient
	limiter  *RateLimiter
	backoff  struct{ metadata, listing time.Duration }
	logger   *slog.Logger
}

func NewInvidious(info InvidiousInfo, limiter *RateLimiter, logger *slog.Logger) *Invidious {
	inv := &Invidious{
		endpoint: strings.TrimSuffix(info.Endpoint, "/"),
		client:   newJSONClient(info.Timeout, info.Retry, logger),
		limiter:  limiter,
		logger:   logger,
	}
	inv.backoff.metadata = MetadataBackoff
	inv.backoff.listing = ListingBackoff
	return inv
}

func (inv *Invidious) Metadata(ctx context.Context, channelID string) (model.ChannelMetadata, error) {
	u := fmt.Sprintf("%s/api/v1/channels/%s?fields=author,authorId,description,authorThumbnails", inv.endpoint, url.PathEscape(channelID))
	if err := inv.limiter.Wait(ctx, inv.backoff.metadata); err != nil {
		return model.ChannelMetadata{}, err
	}

	var ch invidiousChannel
	if err := inv.client.get(ctx, u, &ch); err != nil {
		return model.ChannelMetadata{}, err
	}

	return model.ChannelMetadata{
		Title:       ch.Author,
		Thumbnail:   bestThumbnail(ch.AuthorThumbnails),
		Description: ch.Description,
	}, nil
}

func (inv *Invidious) Videos(ctx context.Context, channelID string) iter.Seq2[model.VideoRecord, error] {
	return Paginate(ctx, inv.limiter, inv.backoff.listing, func(ctx context.Context, token Token) (Page, error) {
		return inv.page(ctx, channelID, token)
	})
}

func (inv *Invidious) page(ctx context.Context, channelID string, token Token) (Page, error) {
	u := fmt.Sprintf("%s/api/v1/channels/%s/videos", inv.endpoint, url.PathEscape(channelID))
	if !token.IsStart() {
		u += "?continuation=" + url.QueryEscape(token.String())
	}

	var data invidiousPage
	if err := inv.client.get(ctx, u, &data); err != nil {
		return Page{}, err
	}

	page := Page{
		Videos: make([]model.VideoRecord, 0, len(data.Videos)),
		Next:   End,
	}
	if data.Continuation != nil && *data.Continuation != "" {
		page.Next = Value(*data.Continuation)
	}
	for _, d := range data.Videos {
		page.Videos = append(page.Videos, model.VideoRecord{
			ID:           d.VideoID,
			URL:          watchURL(d.VideoID),
			Title:        d.Title,
			Description:  d.Description,
			ThumbnailURL: bestThumbnail(d.VideoThumbnails),
			PublishedAt:  time.Unix(d.Published, 0).UTC(),
			Duration:     d.LengthSeconds,
		})
	}
	inv.logger.Debug("fetched video page", slog.String("channelid", channelID), slog.Int("count", len(page.Videos)), slog.Bool("more", !page.Next.IsEnd()))

	return page, nil
}

// Resolve finds the UC... channel id for a channel id, handle, user or
// custom channel name.
func (inv *Invidious) Resolve(ctx context.Context, name string) (string, error) {
	if strings.HasPrefix(name, "UC") {
		return name, nil
	}

	candidates := []string{
		fmt.Sprintf("https://www.youtube.com/@%s", name),
		fmt.Sprintf("https://www.youtube.com/user/%s", name),
		fmt.Sprintf("https://www.youtube.com/c/%s", name),
	}
	var lastErr error
	for _, c := range candidates {
		if err := inv.limiter.Wait(ctx, inv.backoff.metadata); err != nil {
			return "", err
		}
		var resolved struct {
			UCID string `json:"ucid"`
		}
		u := fmt.Sprintf("%s/api/v1/resolveurl?url=%s", inv.endpoint, url.QueryEscape(c))
		if err := inv.client.get(ctx, u, &resolved); err != nil {
			lastErr = err
			continue
		}
		if resolved.UCID == "" {
			return "", fmt.Errorf("resolve %s: %w", name, ErrChannelNotFound)
		}
		return resolved.UCID, nil
	}

	inv.logger.Debug("could not resolve channel", slog.String("name", name), slog.Any("error", lastErr))
	return "", fmt.Errorf("resolve %s: %w", name, ErrChannelNotFound)
}
