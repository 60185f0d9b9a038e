package process

import (
	"context"
	"fmt"
)

// Dispatcher executes pool items with the component that handles their kind.
type Dispatcher struct {
	Updater    *Updater
	Downloads  *Downloads
	Thumbnails *Thumbnails
}

func (d *Dispatcher) Execute(ctx context.Context, item Item) error {
	switch it := item.(type) {
	case Update:
		_, err := d.Updater.Update(ctx, it.Channel, it.Force, it.FullUpdate)
		return err
	case Download:
		return d.Downloads.Run(ctx, it.VideoID)
	case ThumbnailCache:
		if d.Thumbnails == nil {
			return nil
		}
		return d.Thumbnails.Fetch(ctx, it.URL)
	default:
		return fmt.Errorf("unknown work item %T", item)
	}
}
