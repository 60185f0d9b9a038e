package fetcher

import (
	"context"
	"fmt"
	"iter"
	"time"

	"ewintr.nl/vidl/model"
)

// ChannelSource gives access to a remote channel: a collection of related
// videos, like a YouTube channel or a Vimeo user.
type ChannelSource interface {
	Metadata(ctx context.Context, channelID string) (model.ChannelMetadata, error)
	// Videos lists the channel from newest to oldest, loading pages lazily
	// so a caller that stops early does not pay for the rest of the history.
	Videos(ctx context.Context, channelID string) iter.Seq2[model.VideoRecord, error]
}

// Resolver is implemented by sources that can turn a user or channel name
// into the channel id they use.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Token is an opaque continuation cursor. The zero Token asks for the first
// page.
type Token struct {
	value string
	end   bool
}

var End = Token{end: true}

func Value(v string) Token {
	return Token{value: v}
}

func (t Token) IsEnd() bool {
	return t.end
}

func (t Token) IsStart() bool {
	return !t.end && t.value == ""
}

func (t Token) String() string {
	return t.value
}

type Page struct {
	Videos []model.VideoRecord
	Next   Token
}

type PageFunc func(ctx context.Context, token Token) (Page, error)

// Paginate turns fetch into a single-use, newest-first sequence of videos.
//
// One page is requested every time the buffer runs dry, after asking the
// limiter for budget. A failing page yields its error once and ends the
// sequence. An End token or an empty page ends it cleanly. Ranging over the
// sequence a second time yields nothing.
func Paginate(ctx context.Context, limiter *RateLimiter, backoff time.Duration, fetch PageFunc) iter.Seq2[model.VideoRecord, error] {
	used := false
	return func(yield func(model.VideoRecord, error) bool) {
		if used {
			return
		}
		used = true

		var (
			buf   []model.VideoRecord
			token Token
		)
		for {
			if len(buf) == 0 {
				if token.IsEnd() {
					return
				}
				if err := limiter.Wait(ctx, backoff); err != nil {
					yield(model.VideoRecord{}, err)
					return
				}
				page, err := fetch(ctx, token)
				if err != nil {
					yield(model.VideoRecord{}, err)
					return
				}
				if len(page.Videos) == 0 {
					return
				}
				buf = page.Videos
				token = page.Next
				if token.IsStart() {
					// a page without a cursor cannot be followed
					token = End
				}
			}

			video := buf[0]
			buf = buf[1:]
			if !yield(video, nil) {
				return
			}
		}
	}
}

func watchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}
