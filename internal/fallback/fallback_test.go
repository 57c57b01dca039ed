package fallback

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/logger"
)

type fakeRemote struct {
	mu       sync.Mutex
	failWith error
	inserted []interface{}
}

func (f *fakeRemote) InsertOne(_ context.Context, _ string, document interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.inserted = append(f.inserted, document)
	return nil
}

func (f *fakeRemote) setFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

type doc struct {
	ID      primitive.ObjectID `bson:"_id"`
	Content string             `bson:"content"`
}

func openOutbox(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })
	return o
}

func TestWriterPassesThroughOnSuccess(t *testing.T) {
	remote := &fakeRemote{}
	w := NewWriter(remote, openOutbox(t), logger.Discard())

	queued, err := w.Insert(context.Background(), "forum_messages", doc{ID: primitive.NewObjectID(), Content: "hola"})
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Len(t, remote.inserted, 1)
}

func TestWriterQueuesTransientFailures(t *testing.T) {
	ctx := context.Background()
	outbox := openOutbox(t)
	remote := &fakeRemote{failWith: context.DeadlineExceeded}
	w := NewWriter(remote, outbox, logger.Discard())

	queued, err := w.Insert(ctx, "incidents", doc{ID: primitive.NewObjectID(), Content: "farola rota"})
	require.NoError(t, err)
	assert.True(t, queued)

	stats, err := outbox.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Pending)
	assert.NotNil(t, stats.OldestAt)
}

func TestWriterReturnsPermanentFailures(t *testing.T) {
	outbox := openOutbox(t)
	boom := errors.New("document failed validation")
	w := NewWriter(&fakeRemote{failWith: boom}, outbox, logger.Discard())

	queued, err := w.Insert(context.Background(), "incidents", doc{ID: primitive.NewObjectID()})
	assert.ErrorIs(t, err, boom)
	assert.False(t, queued)

	stats, err := outbox.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

func TestReplayerDrainsInOrder(t *testing.T) {
	ctx := context.Background()
	outbox := openOutbox(t)
	remote := &fakeRemote{failWith: context.DeadlineExceeded}
	w := NewWriter(remote, outbox, logger.Discard())

	first, second := primitive.NewObjectID(), primitive.NewObjectID()
	for _, d := range []doc{{ID: first, Content: "uno"}, {ID: second, Content: "dos"}} {
		queued, err := w.Insert(ctx, "forum_messages", d)
		require.NoError(t, err)
		require.True(t, queued)
	}

	r := NewReplayer(outbox, remote, 10, logger.Discard())

	// still down: nothing replayed, first entry marked as failing
	n, err := r.Drain(ctx)
	assert.Error(t, err)
	assert.Zero(t, n)
	stats, err := outbox.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Pending)
	assert.EqualValues(t, 1, stats.Failing)

	remote.setFailure(nil)
	n, err = r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, remote.inserted, 2)
	gotFirst := remote.inserted[0].(bson.D)
	assert.Equal(t, first, gotFirst.Map()["_id"])
	assert.Equal(t, "dos", remote.inserted[1].(bson.D).Map()["content"])

	stats, err = outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

func TestReplayerRunStopsOnCancel(t *testing.T) {
	r := NewReplayer(openOutbox(t), &fakeRemote{}, 10, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 5*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("replayer did not stop")
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(errors.New("server selection error: context deadline exceeded")))
	assert.False(t, IsTransient(errors.New("bad value")))
	assert.False(t, IsTransient(nil))
}
