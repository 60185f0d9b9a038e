package fetcher

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ewintr.nl/vidl/model"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"
)

// Youtube reads channels through the YouTube Data API. The uploads playlist
// of a channel is listed newest first, and a second call per page fills in
// the durations.
type Youtube struct {
	Client  *youtube.Service
	limiter *RateLimiter
	retry   RetryConfig
	logger  *slog.Logger
}

func NewYoutube(client *youtube.Service, limiter *RateLimiter, retryCfg RetryConfig, logger *slog.Logger) *Youtube {
	return &Youtube{
		Client:  client,
		limiter: limiter,
		retry:   retryCfg,
		logger:  logger,
	}
}

// classify marks API errors that will not go away on a retry.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return &FetchError{Permanent: true, Err: fmt.Errorf("%w: %v", ErrChannelNotFound, err)}
		case http.StatusBadRequest, http.StatusUnauthorized:
			return &FetchError{Permanent: true, Err: err}
		}
	}
	return err
}

func (y *Youtube) channel(ctx context.Context, channelID string) (*youtube.Channel, error) {
	if err := y.limiter.Wait(ctx, MetadataBackoff); err != nil {
		return nil, err
	}

	var response *youtube.ChannelListResponse
	err := retry(ctx, y.retry, "youtube/v3/channels/"+channelID, func(ctx context.Context) error {
		var err error
		response, err = y.Client.Channels.
			List([]string{"snippet", "contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do()
		return classify(err)
	})
	if err != nil {
		return nil, err
	}
	if len(response.Items) == 0 {
		return nil, &FetchError{URL: "youtube/v3/channels/" + channelID, Attempts: 1, Permanent: true, Err: ErrChannelNotFound}
	}

	return response.Items[0], nil
}

func (y *Youtube) Metadata(ctx context.Context, channelID string) (model.ChannelMetadata, error) {
	ch, err := y.channel(ctx, channelID)
	if err != nil {
		return model.ChannelMetadata{}, err
	}

	md := model.ChannelMetadata{}
	if ch.Snippet != nil {
		md.Title = ch.Snippet.Title
		md.Description = ch.Snippet.Description
		md.Thumbnail = defaultThumbnail(ch.Snippet.Thumbnails)
	}

	return md, nil
}

func (y *Youtube) Videos(ctx context.Context, channelID string) iter.Seq2[model.VideoRecord, error] {
	uploads := ""
	return Paginate(ctx, y.limiter, ListingBackoff, func(ctx context.Context, token Token) (Page, error) {
		if uploads == "" {
			var err error
			if uploads, err = y.uploadsPlaylist(ctx, channelID); err != nil {
				return Page{}, err
			}
		}
		// pages whose items are all unusable are skipped, not taken as the end
		for {
			page, err := y.page(ctx, uploads, token)
			if err != nil || len(page.Videos) > 0 || page.Next.IsEnd() {
				return page, err
			}
			token = page.Next
			if err := y.limiter.Wait(ctx, ListingBackoff); err != nil {
				return Page{}, err
			}
		}
	})
}

// uploadsPlaylist follows the UC -> UU naming convention when it can and asks
// the API otherwise.
func (y *Youtube) uploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	if strings.HasPrefix(channelID, "UC") {
		return "UU" + strings.TrimPrefix(channelID, "UC"), nil
	}
	ch, err := y.channel(ctx, channelID)
	if err != nil {
		return "", err
	}
	if ch.ContentDetails == nil || ch.ContentDetails.RelatedPlaylists == nil || ch.ContentDetails.RelatedPlaylists.Uploads == "" {
		return "", &FetchError{URL: "youtube/v3/channels/" + channelID, Attempts: 1, Permanent: true, Err: errors.New("channel has no uploads playlist")}
	}
	return ch.ContentDetails.RelatedPlaylists.Uploads, nil
}

func (y *Youtube) page(ctx context.Context, playlistID string, token Token) (Page, error) {
	var response *youtube.PlaylistItemListResponse
	err := retry(ctx, y.retry, "youtube/v3/playlistItems/"+playlistID, func(ctx context.Context) error {
		call := y.Client.PlaylistItems.
			List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(50)
		if !token.IsStart() {
			call.PageToken(token.String())
		}
		var err error
		response, err = call.Context(ctx).Do()
		return classify(err)
	})
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Videos: make([]model.VideoRecord, 0, len(response.Items)),
		Next:   End,
	}
	if response.NextPageToken != "" {
		page.Next = Value(response.NextPageToken)
	}

	ids := make([]string, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Snippet == nil || item.ContentDetails == nil {
			continue
		}
		published := item.ContentDetails.VideoPublishedAt
		if published == "" {
			published = item.Snippet.PublishedAt
		}
		publishedAt, err := time.Parse(time.RFC3339, published)
		if err != nil {
			return Page{}, &FetchError{URL: "youtube/v3/playlistItems/" + playlistID, Attempts: 1, Err: fmt.Errorf("video %s: invalid published time: %w", item.ContentDetails.VideoId, err)}
		}

		id := item.ContentDetails.VideoId
		ids = append(ids, id)
		page.Videos = append(page.Videos, model.VideoRecord{
			ID:           id,
			URL:          watchURL(id),
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			ThumbnailURL: defaultThumbnail(item.Snippet.Thumbnails),
			PublishedAt:  publishedAt.UTC(),
		})
	}
	if len(ids) == 0 {
		return page, nil
	}

	durations, err := y.durations(ctx, ids)
	if err != nil {
		return Page{}, err
	}
	for i := range page.Videos {
		page.Videos[i].Duration = durations[page.Videos[i].ID]
	}

	return page, nil
}

func (y *Youtube) durations(ctx context.Context, ids []string) (map[string]int, error) {
	var response *youtube.VideoListResponse
	err := retry(ctx, y.retry, "youtube/v3/videos", func(ctx context.Context) error {
		var err error
		response, err = y.Client.Videos.
			List([]string{"contentDetails"}).
			Id(strings.Join(ids, ",")).
			Context(ctx).
			Do()
		return classify(err)
	})
	if err != nil {
		return nil, err
	}

	durations := make(map[string]int, len(response.Items))
	for _, item := range response.Items {
		if item.ContentDetails == nil {
			continue
		}
		d, err := parseISODuration(item.ContentDetails.Duration)
		if err != nil {
			y.logger.Warn("invalid video duration", slog.String("id", item.Id), slog.String("duration", item.ContentDetails.Duration))
			continue
		}
		durations[item.Id] = d
	}

	return durations, nil
}

func defaultThumbnail(td *youtube.ThumbnailDetails) string {
	if td == nil {
		return ""
	}
	for _, t := range []*youtube.Thumbnail{td.Default, td.Medium, td.High} {
		if t != nil && t.Url != "" {
			return t.Url
		}
	}
	return ""
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseISODuration converts durations like PT1H2M3S to seconds.
func parseISODuration(s string) (int, error) {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	total := 0
	for i, mult := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, err
		}
		total += n * mult
	}
	return total, nil
}
