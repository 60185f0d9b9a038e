package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service string

const (
	ServiceYoutube Service = "youtube"
	ServiceVimeo   Service = "vimeo"
)

func ParseService(s string) (Service, error) {
	switch Service(s) {
	case ServiceYoutube, ServiceVimeo:
		return Service(s), nil
	default:
		return "", fmt.Errorf("unknown service %q", s)
	}
}

// ChannelMetadata is the descriptive part of a channel as reported by its source.
type ChannelMetadata struct {
	Title       string
	Thumbnail   string
	Description string
}

type Channel struct {
	ID          uuid.UUID
	ExternalID  string
	Service     Service
	Title       string
	Thumbnail   string
	Description string
	LastUpdate  *time.Time
}

func (c Channel) String() string {
	return fmt.Sprintf("%s:%s (%s)", c.Service, c.ExternalID, c.Title)
}
