package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingStore blocks every Append until release is closed.
type blockingStore struct {
	*MemoryStore
	release chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, entry *Entry) error {
	<-s.release
	return s.MemoryStore.Append(ctx, entry)
}

// failingStore rejects every Append.
type failingStore struct {
	*MemoryStore
}

func (s *failingStore) Append(ctx context.Context, entry *Entry) error {
	return errors.New("disk full")
}

func TestRecorder_WritesEntries(t *testing.T) {
	store := NewMemoryStore(100)
	rec := NewRecorder(store, nil)

	for i := 0; i < 20; i++ {
		require.True(t, rec.Record(NewEntry("login", "user-1", i%2 == 0, 0)))
	}
	require.NoError(t, rec.Close())

	count, err := store.Count(context.Background(), &Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(20), count)

	written, dropped, failed := rec.Stats()
	assert.Equal(t, int64(20), written)
	assert.Zero(t, dropped)
	assert.Zero(t, failed)
	assert.Same(t, store, rec.Store())
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	store := &blockingStore{MemoryStore: NewMemoryStore(100), release: make(chan struct{})}
	rec := NewRecorder(store, &RecorderConfig{AsyncBuffer: 2, WriteTimeout: time.Second})

	accepted := 0
	for i := 0; i < 10; i++ {
		if rec.Record(NewEntry("p", "k", true, 0)) {
			accepted++
		}
	}

	// One entry may be held by the worker, two sit in the buffer.
	assert.LessOrEqual(t, accepted, 3)
	_, dropped, _ := rec.Stats()
	assert.Equal(t, int64(10-accepted), dropped)

	close(store.release)
	require.NoError(t, rec.Close())

	written, _, _ := rec.Stats()
	assert.Equal(t, int64(accepted), written)
}

func TestRecorder_CountsFailures(t *testing.T) {
	rec := NewRecorder(&failingStore{MemoryStore: NewMemoryStore(1)}, nil)

	rec.Record(NewEntry("p", "k", true, 0))
	rec.Record(NewEntry("p", "k", true, 0))
	require.NoError(t, rec.Close())

	written, _, failed := rec.Stats()
	assert.Zero(t, written)
	assert.Equal(t, int64(2), failed)
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	rec := NewRecorder(NewMemoryStore(10), nil)
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	assert.False(t, rec.Record(NewEntry("p", "k", true, 0)))
}

func TestRecorder_ConcurrentRecordAndClose(t *testing.T) {
	store := NewMemoryStore(10000)
	rec := NewRecorder(store, &RecorderConfig{AsyncBuffer: 10000})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rec.Record(NewEntry("p", "k", true, 0))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, rec.Close())

	written, dropped, _ := rec.Stats()
	assert.Equal(t, int64(800), written+dropped)
}
