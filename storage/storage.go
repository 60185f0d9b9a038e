package storage

import (
	"context"
	"errors"
	"time"

	"ewintr.nl/vidl/model"
	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateURL  = errors.New("video url already exists")
	ErrConflict      = errors.New("row was changed concurrently")
	ErrChannelExists = errors.New("channel already exists")
)

type ChannelRepository interface {
	AddChannel(ctx context.Context, externalID string, service model.Service, md model.ChannelMetadata) (model.Channel, error)
	Channel(ctx context.Context, id uuid.UUID) (model.Channel, error)
	ListChannels(ctx context.Context) ([]model.Channel, error)
	ChannelLastUpdate(ctx context.Context, id uuid.UUID) (*time.Time, error)
	SetChannelLastUpdate(ctx context.Context, id uuid.UUID, t time.Time) error
	UpdateChannelMetadata(ctx context.Context, id uuid.UUID, md model.ChannelMetadata) error
	DeleteChannel(ctx context.Context, id uuid.UUID) error
}

// VideoFilter narrows a video listing. Zero fields match everything and a
// zero Limit returns all matches.
type VideoFilter struct {
	Statuses      []model.VideoStatus
	ChannelID     uuid.UUID
	TitleContains string
	Limit         int
	Offset        int
}

type VideoRepository interface {
	Video(ctx context.Context, id uuid.UUID) (model.Video, error)
	InsertVideo(ctx context.Context, channelID uuid.UUID, rec model.VideoRecord) (uuid.UUID, error)
	RecentVideoURLs(ctx context.Context, channelID uuid.UUID, limit int) (map[string]struct{}, error)
	SetVideoStatus(ctx context.Context, id uuid.UUID, status model.VideoStatus) error
	SetVideoStatusFrom(ctx context.Context, id uuid.UUID, from, to model.VideoStatus) error
	VideosByStatus(ctx context.Context, statuses ...model.VideoStatus) ([]model.Video, error)
	ListVideos(ctx context.Context, filter VideoFilter) ([]model.Video, error)
}

type Store interface {
	ChannelRepository
	VideoRepository
}
