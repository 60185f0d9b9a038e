package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ewintr.nl/vidl/fetcher"
	"ewintr.nl/vidl/model"
	"ewintr.nl/vidl/process"
	"ewintr.nl/vidl/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct{}

func (fakeSource) Metadata(_ context.Context, channelID string) (model.ChannelMetadata, error) {
	if channelID != "UCUBfKCp83QT19JCUekEdxOQ" {
		return model.ChannelMetadata{}, &fetcher.FetchError{URL: channelID, Attempts: 1, Permanent: true, Err: fetcher.ErrChannelNotFound}
	}
	return model.ChannelMetadata{Title: "thegreatsd", Thumbnail: "https://yt3.ggpht.com/a/32.jpg"}, nil
}

func (fakeSource) Videos(context.Context, string) iter.Seq2[model.VideoRecord, error] {
	return func(func(model.VideoRecord, error) bool) {}
}

func (fakeSource) Resolve(_ context.Context, name string) (string, error) {
	if name == "thegreatsd" {
		return "UCUBfKCp83QT19JCUekEdxOQ", nil
	}
	return name, nil
}

type fakeQueue struct {
	items []process.Item
}

func (q *fakeQueue) Enqueue(item process.Item) error {
	q.items = append(q.items, item)
	return nil
}

type testServer struct {
	store  *storage.SQL
	queue  *fakeQueue
	thumbs *storage.ThumbnailCache
	srv    *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := &testServer{
		store:  store,
		queue:  &fakeQueue{},
		thumbs: storage.NewThumbnailCache(10, time.Hour, "", logger),
	}
	ts.srv = NewServer(store, fetcher.Sources{model.ServiceYoutube: fakeSource{}}, ts.queue, ts.thumbs, logger)
	return ts
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func TestShiftPath(t *testing.T) {
	for _, tc := range []struct {
		in      string
		expHead string
		expTail string
	}{
		{in: "", expHead: "", expTail: "/"},
		{in: "/", expHead: "", expTail: "/"},
		{in: "/video", expHead: "video", expTail: "/"},
		{in: "/video/", expHead: "video", expTail: "/"},
		{in: "/video/abc/download", expHead: "video", expTail: "/abc/download"},
		{in: "/a/../b/c", expHead: "b", expTail: "/c"},
	} {
		t.Run(tc.in, func(t *testing.T) {
			head, tail := ShiftPath(tc.in)
			assert.Equal(t, tc.expHead, head)
			assert.Equal(t, tc.expTail, tail)
		})
	}
}

func TestServerRouting(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"vidl index"}`, rec.Body.String())

	rec = ts.do(http.MethodGet, "/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodDelete, "/video", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChannelAPI(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/channel", `{"name": "thegreatsd"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var added respChannel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))
	assert.Equal(t, "UCUBfKCp83QT19JCUekEdxOQ", added.ExternalID)
	assert.Equal(t, "thegreatsd", added.Title)
	assert.Equal(t, "youtube", added.Service)
	require.Len(t, ts.queue.items, 1)
	assert.True(t, ts.queue.items[0].(process.Update).Force)

	rec = ts.do(http.MethodPost, "/channel", `{"name": "thegreatsd"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/channel", `{"name": "UCnobody"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/channel", `{"name": "someone", "service": "vimeo"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/channel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []respChannel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, added.ID, list[0].ID)

	rec = ts.do(http.MethodPost, "/channel/"+added.ID+"/update?full=true", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, ts.queue.items, 2)
	upd := ts.queue.items[1].(process.Update)
	assert.True(t, upd.Force)
	assert.True(t, upd.FullUpdate)

	rec = ts.do(http.MethodPost, "/channel/not-a-uuid/update", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodPost, "/channel/00000000-0000-0000-0000-000000000001/update", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChannelAPIDelete(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	ch, err := ts.store.AddChannel(ctx, "UCUBfKCp83QT19JCUekEdxOQ", model.ServiceYoutube, model.ChannelMetadata{Title: "thegreatsd"})
	require.NoError(t, err)
	_, err = ts.store.InsertVideo(ctx, ch.ID, model.VideoRecord{ID: "a", URL: "https://www.youtube.com/watch?v=a", Title: "A"})
	require.NoError(t, err)

	rec := ts.do(http.MethodDelete, "/channel/"+ch.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	channels, err := ts.store.ListChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)
	videos, err := ts.store.ListVideos(ctx, storage.VideoFilter{})
	require.NoError(t, err)
	assert.Empty(t, videos)

	rec = ts.do(http.MethodDelete, "/channel/"+ch.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(http.MethodDelete, "/channel/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVideoAPI(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	ch, err := ts.store.AddChannel(ctx, "UCUBfKCp83QT19JCUekEdxOQ", model.ServiceYoutube, model.ChannelMetadata{Title: "thegreatsd"})
	require.NoError(t, err)
	first, err := ts.store.InsertVideo(ctx, ch.ID, model.VideoRecord{ID: "a", URL: "https://www.youtube.com/watch?v=a", Title: "A", PublishedAt: time.Unix(1000, 0)})
	require.NoError(t, err)
	second, err := ts.store.InsertVideo(ctx, ch.ID, model.VideoRecord{ID: "b", URL: "https://www.youtube.com/watch?v=b", Title: "B", PublishedAt: time.Unix(2000, 0)})
	require.NoError(t, err)

	rec := ts.do(http.MethodPost, "/video/"+first.String()+"/download", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, []process.Item{process.Download{VideoID: first}}, ts.queue.items)

	rec = ts.do(http.MethodPost, "/video/"+second.String()+"/ignore", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/video/"+second.String()+"/download", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodGet, "/video?status=queued,new", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var videos []respVideo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &videos))
	require.Len(t, videos, 1)
	assert.Equal(t, first.String(), videos[0].ID)
	assert.Equal(t, "queued", videos[0].Status)

	rec = ts.do(http.MethodGet, "/video", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &videos))
	assert.Len(t, videos, 2)

	rec = ts.do(http.MethodGet, "/video?status=watched", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/video/00000000-0000-0000-0000-000000000001/ignore", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVideoAPIFilters(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	ch, err := ts.store.AddChannel(ctx, "UCUBfKCp83QT19JCUekEdxOQ", model.ServiceYoutube, model.ChannelMetadata{Title: "thegreatsd"})
	require.NoError(t, err)
	other, err := ts.store.AddChannel(ctx, "UCother", model.ServiceYoutube, model.ChannelMetadata{Title: "other"})
	require.NoError(t, err)
	for n := 1; n <= 60; n++ {
		_, err := ts.store.InsertVideo(ctx, ch.ID, model.VideoRecord{
			ID:          fmt.Sprintf("v%02d", n),
			URL:         fmt.Sprintf("https://www.youtube.com/watch?v=v%02d", n),
			Title:       fmt.Sprintf("Episode %02d", n),
			PublishedAt: time.Unix(int64(n)*1000, 0),
		})
		require.NoError(t, err)
	}
	_, err = ts.store.InsertVideo(ctx, other.ID, model.VideoRecord{ID: "x", URL: "https://www.youtube.com/watch?v=x", Title: "Trailer", PublishedAt: time.Unix(1, 0)})
	require.NoError(t, err)

	list := func(query string) []respVideo {
		t.Helper()
		rec := ts.do(http.MethodGet, "/video"+query, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var videos []respVideo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &videos))
		return videos
	}

	assert.Len(t, list(""), DefaultPageSize)
	page := list("?channel=" + ch.ID.String() + "&limit=10&offset=10")
	require.Len(t, page, 10)
	assert.Equal(t, "Episode 50", page[0].Title)
	assert.Equal(t, "Episode 41", page[9].Title)
	assert.Len(t, list("?channel="+ch.ID.String()+"&offset=50"), 10)

	found := list("?title=trail")
	require.Len(t, found, 1)
	assert.Equal(t, other.ID.String(), found[0].ChannelID)
	assert.Empty(t, list("?channel="+ch.ID.String()+"&title=trail"))

	for _, query := range []string{"?channel=nope", "?limit=-1", "?offset=many"} {
		rec := ts.do(http.MethodGet, "/video"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestThumbnailAPI(t *testing.T) {
	ts := newTestServer(t)
	url := "https://i.ytimg.com/vi/a/default.jpg"

	rec := ts.do(http.MethodGet, "/thumbnail?url="+url, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []process.Item{process.ThumbnailCache{URL: url}}, ts.queue.items)

	ts.thumbs.Add(context.Background(), url, storage.Image{ContentType: "image/jpeg", Data: []byte("jpeg")})
	rec = ts.do(http.MethodGet, "/thumbnail?url="+url, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg", rec.Body.String())

	rec = ts.do(http.MethodGet, "/thumbnail", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
