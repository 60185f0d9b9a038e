package process

import (
	"fmt"

	"ewintr.nl/vidl/model"
	"github.com/google/uuid"
)

// Item is one unit of work for the pool.
type Item interface {
	Kind() string
}

// Update synchronizes a channel. Channel is a snapshot taken at enqueue time.
type Update struct {
	Channel    model.Channel
	Force      bool
	FullUpdate bool
}

func (Update) Kind() string { return "update" }

func (u Update) String() string {
	return fmt.Sprintf("update %s (force: %t, full: %t)", u.Channel.ExternalID, u.Force, u.FullUpdate)
}

// Download runs the downloader for a queued video.
type Download struct {
	VideoID uuid.UUID
}

func (Download) Kind() string { return "download" }

func (d Download) String() string {
	return fmt.Sprintf("download %s", d.VideoID)
}

// ThumbnailCache fetches an image into the thumbnail cache.
type ThumbnailCache struct {
	URL string
}

func (ThumbnailCache) Kind() string { return "thumbnail" }

func (t ThumbnailCache) String() string {
	return fmt.Sprintf("thumbnail %s", t.URL)
}

// Shutdown makes the worker that receives it exit.
type Shutdown struct{}

func (Shutdown) Kind() string { return "shutdown" }

// Enqueuer accepts work. It is implemented by Pool.
type Enqueuer interface {
	Enqueue(item Item) error
}
