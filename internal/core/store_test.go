package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(id string, started time.Time) *Session {
	return &Session{
		ID:        id,
		Status:    StatusRunning,
		Records:   records("a", "b"),
		Settings:  DefaultSettings(),
		Stats:     Stats{TotalRows: 2},
		StartedAt: started,
	}
}

func TestMemoryStore_CreateGet(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Create(newSession("s1", time.Now())))

	got, ok := store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, 2, got.Stats.TotalRows)
	assert.NotNil(t, got.Errors, "empty audit trail serializes as []")

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestMemoryStore_CreateRejectsDuplicatesAndMissingID(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Create(newSession("s1", time.Now())))

	assert.ErrorIs(t, store.Create(newSession("s1", time.Now())), ErrSessionExists)
	assert.Error(t, store.Create(&Session{}))
	assert.Error(t, store.Create(nil))
}

func TestMemoryStore_SnapshotsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Create(newSession("s1", time.Now())))

	_, _ = store.Update("s1", func(s *Session) {
		s.Errors = append(s.Errors, ImportError{Row: 2, Error: "boom"})
	})

	snap, _ := store.Get("s1")
	snap.Errors[0].Error = "changed"
	snap.Stats.ProcessedRows = 99
	snap.Status = StatusFailed

	again, _ := store.Get("s1")
	assert.Equal(t, "boom", again.Errors[0].Error)
	assert.Zero(t, again.Stats.ProcessedRows)
	assert.Equal(t, StatusRunning, again.Status)
}

func TestMemoryStore_UpdateKeepsWriteOnceFields(t *testing.T) {
	store := NewMemoryStore()
	started := time.Now().Add(-time.Minute)
	require.NoError(t, store.Create(newSession("s1", started)))

	updated, ok := store.Update("s1", func(s *Session) {
		s.ID = "other"
		s.Records = nil
		s.Settings.DuplicatePolicy = DuplicateUpdate
		s.Stats.TotalRows = 100
		s.StartedAt = time.Time{}
		s.CurrentIndex = 1
		s.Stats.ProcessedRows = 1
	})
	require.True(t, ok)

	assert.Equal(t, "s1", updated.ID)
	assert.Len(t, updated.Records, 2)
	assert.Equal(t, DuplicateSkip, updated.Settings.DuplicatePolicy)
	assert.Equal(t, 2, updated.Stats.TotalRows)
	assert.True(t, started.Equal(updated.StartedAt))
	assert.Equal(t, 1, updated.CurrentIndex)
	assert.Equal(t, 1, updated.Stats.ProcessedRows)
}

func TestMemoryStore_UpdateUnknown(t *testing.T) {
	store := NewMemoryStore()
	called := false
	_, ok := store.Update("missing", func(*Session) { called = true })
	assert.False(t, ok)
	assert.False(t, called)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Create(newSession("s1", time.Now())))

	assert.True(t, store.Delete("s1"))
	assert.False(t, store.Delete("s1"))
	_, ok := store.Get("s1")
	assert.False(t, ok)
}

func TestMemoryStore_ListMostRecentFirst(t *testing.T) {
	store := NewMemoryStore()
	base := time.Now()
	require.NoError(t, store.Create(newSession("old", base.Add(-time.Hour))))
	require.NoError(t, store.Create(newSession("new", base)))
	require.NoError(t, store.Create(newSession("mid", base.Add(-time.Minute))))

	var ids []string
	for _, s := range store.List() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Create(newSession("s1", time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Update("s1", func(s *Session) { s.Stats.ProcessedRows++ })
		}()
		go func() {
			defer wg.Done()
			store.Get("s1")
			store.List()
		}()
	}
	wg.Wait()

	got, _ := store.Get("s1")
	assert.Equal(t, 50, got.Stats.ProcessedRows)
}

func TestSessionPercent(t *testing.T) {
	assert.Equal(t, 0, Session{}.Percent())
	assert.Equal(t, 33, Session{Stats: Stats{TotalRows: 3, ProcessedRows: 1}}.Percent())
	assert.Equal(t, 100, Session{Stats: Stats{TotalRows: 3, ProcessedRows: 3}}.Percent())
}

func TestSessionStatusTerminal(t *testing.T) {
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPaused.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
