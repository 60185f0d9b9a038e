package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ewintr.nl/vidl/fetcher"
	"ewintr.nl/vidl/model"
	"ewintr.nl/vidl/process"
	"ewintr.nl/vidl/storage"
	"github.com/google/uuid"
)

type ChannelAPI struct {
	store   storage.ChannelRepository
	sources fetcher.Sources
	pool    process.Enqueuer
	logger  *slog.Logger
}

func NewChannelAPI(store storage.ChannelRepository, sources fetcher.Sources, pool process.Enqueuer, logger *slog.Logger) *ChannelAPI {
	return &ChannelAPI{
		store:   store,
		sources: sources,
		pool:    pool,
		logger:  logger,
	}
}

func (c *ChannelAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channelID, tail := ShiftPath(r.URL.Path)
	action, _ := ShiftPath(tail)

	switch {
	case r.Method == http.MethodGet && channelID == "":
		c.List(w, r)
	case r.Method == http.MethodPost && channelID == "":
		c.Add(w, r)
	case r.Method == http.MethodPost && channelID != "" && action == "update":
		c.Update(w, r, channelID)
	case r.Method == http.MethodDelete && channelID != "" && action == "":
		c.Delete(w, r, channelID)
	default:
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the channel api", r.Method, r.URL.Path))
	}
}

type respChannel struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id"`
	Service     string     `json:"service"`
	Title       string     `json:"title"`
	Thumbnail   string     `json:"thumbnail"`
	Description string     `json:"description"`
	LastUpdate  *time.Time `json:"last_update"`
}

func toRespChannel(ch model.Channel) respChannel {
	return respChannel{
		ID:          ch.ID.String(),
		ExternalID:  ch.ExternalID,
		Service:     string(ch.Service),
		Title:       ch.Title,
		Thumbnail:   ch.Thumbnail,
		Description: ch.Description,
		LastUpdate:  ch.LastUpdate,
	}
}

func (c *ChannelAPI) List(w http.ResponseWriter, r *http.Request) {
	channels, err := c.store.ListChannels(r.Context())
	if err != nil {
		c.returnErr(r.Context(), w, http.StatusInternalServerError, "could not list channels", err)
		return
	}

	resp := make([]respChannel, 0, len(channels))
	for _, ch := range channels {
		resp = append(resp, toRespChannel(ch))
	}
	if err := JSON(w, http.StatusOK, resp); err != nil {
		c.returnErr(r.Context(), w, http.StatusInternalServerError, "could not marshal response", err)
	}
}

// Add looks up a channel by id or name, stores it and queues its first
// update.
func (c *ChannelAPI) Add(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Service string `json:"service"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		Error(w, http.StatusBadRequest, "invalid request body", errors.New("name is required"))
		return
	}
	if req.Service == "" {
		req.Service = string(model.ServiceYoutube)
	}
	service, err := model.ParseService(req.Service)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid service", err)
		return
	}
	source, err := c.sources.Get(service)
	if err != nil {
		Error(w, http.StatusBadRequest, "unsupported service", err)
		return
	}

	externalID := req.Name
	if resolver, ok := source.(fetcher.Resolver); ok {
		if externalID, err = resolver.Resolve(r.Context(), req.Name); err != nil {
			c.returnErr(r.Context(), w, http.StatusNotFound, "could not find channel", err)
			return
		}
	}
	md, err := source.Metadata(r.Context(), externalID)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, fetcher.ErrChannelNotFound) {
			status = http.StatusNotFound
		}
		c.returnErr(r.Context(), w, status, "could not fetch channel", err)
		return
	}

	ch, err := c.store.AddChannel(r.Context(), externalID, service, md)
	if err != nil {
		c.returnErr(r.Context(), w, statusFor(err), "could not add channel", err)
		return
	}
	if err := c.pool.Enqueue(process.Update{Channel: ch, Force: true}); err != nil {
		c.logger.Error("could not queue first update", slog.String("channel", ch.ExternalID), slog.String("error", err.Error()))
	}
	c.logger.Info("channel added", slog.String("channel", ch.String()))

	if err := JSON(w, http.StatusCreated, toRespChannel(ch)); err != nil {
		c.returnErr(r.Context(), w, http.StatusInternalServerError, "could not marshal response", err)
	}
}

// Update queues a forced update. With full=true the whole listing is walked.
func (c *ChannelAPI) Update(w http.ResponseWriter, r *http.Request, channelID string) {
	id, err := uuid.Parse(channelID)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid channel id", err)
		return
	}
	ch, err := c.store.Channel(r.Context(), id)
	if err != nil {
		c.returnErr(r.Context(), w, statusFor(err), "could not get channel", err)
		return
	}

	full := r.URL.Query().Get("full") == "true"
	if err := c.pool.Enqueue(process.Update{Channel: ch, Force: true, FullUpdate: full}); err != nil {
		c.returnErr(r.Context(), w, statusFor(err), "could not queue update", err)
		return
	}

	Message(w, http.StatusAccepted, "update queued", ch.ID.String())
}

// Delete removes the channel together with its videos.
func (c *ChannelAPI) Delete(w http.ResponseWriter, r *http.Request, channelID string) {
	id, err := uuid.Parse(channelID)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid channel id", err)
		return
	}
	if err := c.store.DeleteChannel(r.Context(), id); err != nil {
		c.returnErr(r.Context(), w, statusFor(err), "could not delete channel", err)
		return
	}
	c.logger.Info("channel deleted", slog.String("channel", id.String()))

	Message(w, http.StatusOK, "channel deleted", id.String())
}

func (c *ChannelAPI) returnErr(_ context.Context, w http.ResponseWriter, status int, message string, err error, details ...any) {
	c.logger.Error(message, slog.String("err", err.Error()), slog.String("details", fmt.Sprintf("%+v", details)))
	Error(w, status, message, err, details...)
}
