package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ewintr.nl/vidl/model"
	"ewintr.nl/vidl/process"
	"ewintr.nl/vidl/storage"
	"github.com/google/uuid"
)

type VideoAPI struct {
	store  storage.VideoRepository
	pool   process.Enqueuer
	logger *slog.Logger
}

func NewVideoAPI(store storage.VideoRepository, pool process.Enqueuer, logger *slog.Logger) *VideoAPI {
	return &VideoAPI{
		store:  store,
		pool:   pool,
		logger: logger,
	}
}

func (v *VideoAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	videoID, tail := ShiftPath(r.URL.Path)
	action, _ := ShiftPath(tail)

	switch {
	case r.Method == http.MethodGet && videoID == "":
		v.List(w, r)
	case r.Method == http.MethodPost && videoID != "" && action == "download":
		v.Download(w, r, videoID)
	case r.Method == http.MethodPost && videoID != "" && action == "ignore":
		v.Ignore(w, r, videoID)
	default:
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the video api", r.Method, r.URL.Path))
	}
}

type respVideo struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Thumbnail   string    `json:"thumbnail"`
	PublishedAt time.Time `json:"published_at"`
	Duration    int       `json:"duration"`
	Status      string    `json:"status"`
	DateAdded   time.Time `json:"date_added"`
}

// DefaultPageSize is the number of videos List returns without a limit
// parameter.
const DefaultPageSize = 50

// List returns videos newest first. Optional parameters: status (comma
// separated), channel (id), title (substring), limit and offset.
func (v *VideoAPI) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.VideoFilter{
		TitleContains: q.Get("title"),
		Limit:         DefaultPageSize,
	}
	if param := q.Get("status"); param != "" {
		for _, s := range strings.Split(param, ",") {
			st, err := model.ParseVideoStatus(strings.TrimSpace(s))
			if err != nil {
				Error(w, http.StatusBadRequest, "invalid status", err)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if param := q.Get("channel"); param != "" {
		id, err := uuid.Parse(param)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid channel id", err)
			return
		}
		filter.ChannelID = id
	}
	for param, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		value := q.Get(param)
		if value == "" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "invalid "+param, fmt.Errorf("%s must be a non-negative number, got %q", param, value))
			return
		}
		*dst = n
	}

	videos, err := v.store.ListVideos(r.Context(), filter)
	if err != nil {
		v.returnErr(r.Context(), w, http.StatusInternalServerError, "could not list videos", err)
		return
	}

	resp := make([]respVideo, 0, len(videos))
	for _, vid := range videos {
		resp = append(resp, respVideo{
			ID:          vid.ID.String(),
			ChannelID:   vid.ChannelID.String(),
			URL:         vid.URL,
			Title:       vid.Title,
			Thumbnail:   vid.ThumbnailURL,
			PublishedAt: vid.PublishedAt,
			Duration:    vid.Duration,
			Status:      string(vid.Status),
			DateAdded:   vid.DateAdded,
		})
	}

	if err := JSON(w, http.StatusOK, resp); err != nil {
		v.returnErr(r.Context(), w, http.StatusInternalServerError, "could not marshal response", err)
	}
}

func (v *VideoAPI) Download(w http.ResponseWriter, r *http.Request, videoID string) {
	id, err := uuid.Parse(videoID)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid video id", err)
		return
	}
	if err := process.QueueDownload(r.Context(), v.store, v.pool, id); err != nil {
		v.returnErr(r.Context(), w, statusFor(err), "could not queue download", err)
		return
	}

	Message(w, http.StatusAccepted, "download queued", id.String())
}

func (v *VideoAPI) Ignore(w http.ResponseWriter, r *http.Request, videoID string) {
	id, err := uuid.Parse(videoID)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid video id", err)
		return
	}
	if err := v.store.SetVideoStatus(r.Context(), id, model.StatusIgnore); err != nil {
		v.returnErr(r.Context(), w, statusFor(err), "could not ignore video", err)
		return
	}

	Message(w, http.StatusOK, "video ignored", id.String())
}

func (v *VideoAPI) returnErr(_ context.Context, w http.ResponseWriter, status int, message string, err error, details ...any) {
	v.logger.Error(message, slog.String("err", err.Error()), slog.String("details", fmt.Sprintf("%+v", details)))
	Error(w, status, message, err, details...)
}
