package process

import (
	"context"
	"testing"
	"time"

	"ewintr.nl/vidl/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRun(t *testing.T) {
	store := newTestStore(t)
	ch := addChannel(t, store, model.ServiceYoutube)
	queued, err := store.InsertVideo(context.Background(), ch.ID, record(1))
	require.NoError(t, err)
	_, err = store.InsertVideo(context.Background(), ch.ID, record(2))
	require.NoError(t, err)
	require.NoError(t, store.SetVideoStatus(context.Background(), queued, model.StatusQueued))

	queue := &fakeQueue{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewScheduler(store, queue, time.Hour, discardLogger()).Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.items) >= 2
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	require.Len(t, queue.items, 2)
	assert.Equal(t, Download{VideoID: queued}, queue.items[0])
	upd, ok := queue.items[1].(Update)
	require.True(t, ok)
	assert.Equal(t, ch.ID, upd.Channel.ID)
	assert.False(t, upd.Force)
}

func TestSchedulerNoChannels(t *testing.T) {
	queue := &fakeQueue{}
	NewScheduler(newTestStore(t), queue, 0, discardLogger()).ScheduleUpdates(context.Background())
	assert.Empty(t, queue.items)
}
