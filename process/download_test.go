package process

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ewintr.nl/vidl/model"
	"ewintr.nl/vidl/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (f *fakeDownloader) Download(_ context.Context, video model.VideoRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, video.URL)
	return f.err
}

type fakeQueue struct {
	mu    sync.Mutex
	items []Item
	err   error
}

func (q *fakeQueue) Enqueue(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, item)
	return nil
}

func newVideo(t *testing.T, store storage.Store) uuid.UUID {
	t.Helper()
	ch := addChannel(t, store, model.ServiceYoutube)
	id, err := store.InsertVideo(context.Background(), ch.ID, record(1))
	require.NoError(t, err)
	return id
}

func status(t *testing.T, store storage.Store, id uuid.UUID) model.VideoStatus {
	t.Helper()
	v, err := store.Video(context.Background(), id)
	require.NoError(t, err)
	return v.Status
}

func TestQueueDownload(t *testing.T) {
	store := newTestStore(t)
	id := newVideo(t, store)
	queue := &fakeQueue{}

	require.NoError(t, QueueDownload(context.Background(), store, queue, id))
	assert.Equal(t, model.StatusQueued, status(t, store, id))
	assert.Equal(t, []Item{Download{VideoID: id}}, queue.items)

	queue.err = ErrPoolStopped
	assert.ErrorIs(t, QueueDownload(context.Background(), store, queue, id), ErrPoolStopped)
}

func TestDownloadsRun(t *testing.T) {
	for _, tc := range []struct {
		name      string
		queue     bool
		dlErr     error
		expStatus model.VideoStatus
		expCalls  int
	}{
		{name: "success", queue: true, expStatus: model.StatusGrabbed, expCalls: 1},
		{name: "failure", queue: true, dlErr: errors.New("exit status 1"), expStatus: model.StatusGrabError, expCalls: 1},
		{name: "not queued", queue: false, expStatus: model.StatusNew, expCalls: 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := newTestStore(t)
			id := newVideo(t, store)
			if tc.queue {
				require.NoError(t, store.SetVideoStatus(context.Background(), id, model.StatusQueued))
			}
			dl := &fakeDownloader{err: tc.dlErr}

			err := NewDownloads(store, dl, discardLogger()).Run(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tc.expStatus, status(t, store, id))
			assert.Len(t, dl.urls, tc.expCalls)
		})
	}
}

func TestDownloadsRunTwice(t *testing.T) {
	store := newTestStore(t)
	id := newVideo(t, store)
	queue := &fakeQueue{}
	require.NoError(t, QueueDownload(context.Background(), store, queue, id))
	require.NoError(t, queue.Enqueue(Download{VideoID: id}))

	dl := &fakeDownloader{}
	downloads := NewDownloads(store, dl, discardLogger())
	for _, item := range queue.items {
		require.NoError(t, downloads.Run(context.Background(), item.(Download).VideoID))
	}

	assert.Len(t, dl.urls, 1)
	assert.Equal(t, model.StatusGrabbed, status(t, store, id))
}

func TestDownloadsRequeueAfterError(t *testing.T) {
	store := newTestStore(t)
	id := newVideo(t, store)
	queue := &fakeQueue{}
	dl := &fakeDownloader{err: errors.New("network")}
	downloads := NewDownloads(store, dl, discardLogger())

	require.NoError(t, QueueDownload(context.Background(), store, queue, id))
	require.NoError(t, downloads.Run(context.Background(), id))
	assert.Equal(t, model.StatusGrabError, status(t, store, id))

	dl.err = nil
	require.NoError(t, QueueDownload(context.Background(), store, queue, id))
	require.NoError(t, downloads.Run(context.Background(), id))
	assert.Equal(t, model.StatusGrabbed, status(t, store, id))

	// grabbed videos cannot go back in the queue
	err := QueueDownload(context.Background(), store, queue, id)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Len(t, queue.items, 2)
}

// claimingStore lets another worker claim the video right after Run has
// read it.
type claimingStore struct {
	*storage.SQL
	claimed bool
}

func (s *claimingStore) Video(ctx context.Context, id uuid.UUID) (model.Video, error) {
	v, err := s.SQL.Video(ctx, id)
	if err != nil || s.claimed {
		return v, err
	}
	s.claimed = true
	return v, s.SQL.SetVideoStatusFrom(ctx, id, model.StatusQueued, model.StatusDownloading)
}

func TestDownloadsRunLosesClaim(t *testing.T) {
	store := newTestStore(t)
	id := newVideo(t, store)
	require.NoError(t, store.SetVideoStatus(context.Background(), id, model.StatusQueued))
	dl := &fakeDownloader{}

	err := NewDownloads(&claimingStore{SQL: store}, dl, discardLogger()).Run(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, dl.urls)
	assert.Equal(t, model.StatusDownloading, status(t, store, id))
}

type ignoringDownloader struct {
	store storage.Store
	id    uuid.UUID
}

func (d *ignoringDownloader) Download(ctx context.Context, _ model.VideoRecord) error {
	return d.store.SetVideoStatus(ctx, d.id, model.StatusIgnore)
}

func TestDownloadsRunIgnoredWhileDownloading(t *testing.T) {
	store := newTestStore(t)
	id := newVideo(t, store)
	require.NoError(t, store.SetVideoStatus(context.Background(), id, model.StatusQueued))

	err := NewDownloads(store, &ignoringDownloader{store: store, id: id}, discardLogger()).Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusIgnore, status(t, store, id))
}

func TestDownloadsThroughPool(t *testing.T) {
	store := newTestStore(t)
	ch := addChannel(t, store, model.ServiceYoutube)
	var ids []uuid.UUID
	for i := 1; i <= 5; i++ {
		id, err := store.InsertVideo(context.Background(), ch.ID, record(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	dl := &fakeDownloader{}
	pool := NewPool(3, &Dispatcher{Downloads: NewDownloads(store, dl, discardLogger())}, discardLogger())
	pool.Start(context.Background())
	for _, id := range ids {
		require.NoError(t, QueueDownload(context.Background(), store, pool, id))
		// a second request for the same video must not download it twice
		require.NoError(t, pool.Enqueue(Download{VideoID: id}))
	}
	pool.Stop()

	assert.Len(t, dl.urls, 5)
	for _, id := range ids {
		assert.Equal(t, model.StatusGrabbed, status(t, store, id))
	}
}

func TestThumbnails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png"))
	}))
	defer srv.Close()

	cache := storage.NewThumbnailCache(10, time.Hour, "", discardLogger())
	d := &Dispatcher{Thumbnails: NewThumbnails(cache, 5*time.Second, discardLogger())}
	ctx := context.Background()

	require.NoError(t, d.Execute(ctx, ThumbnailCache{URL: srv.URL + "/a.png"}))
	require.NoError(t, d.Execute(ctx, ThumbnailCache{URL: srv.URL + "/a.png"}))
	assert.Equal(t, int32(1), hits.Load())

	img, ok := cache.Get(ctx, srv.URL+"/a.png")
	require.True(t, ok)
	assert.Equal(t, storage.Image{ContentType: "image/png", Data: []byte("png")}, img)

	require.NoError(t, d.Execute(ctx, ThumbnailCache{URL: srv.URL + "/missing.jpg"}))
	_, ok = cache.Get(ctx, srv.URL+"/missing.jpg")
	assert.False(t, ok)
}

func TestDispatcherUnknownItem(t *testing.T) {
	d := &Dispatcher{}
	assert.Error(t, d.Execute(context.Background(), testItem(1)))
}
