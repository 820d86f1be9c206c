package syncqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravnmail/ravncore/internal/model"
)

func item(folderID string, prio Priority, lastSynced *time.Time) Item {
	return Item{
		Folder:       model.Folder{ID: folderID, Name: folderID},
		Priority:     prio,
		LastSyncedAt: lastSynced,
	}
}

func TestPriorityOrdering(t *testing.T) {
	q := New()
	require.True(t, q.Enqueue(item("low", Low, nil)))
	require.True(t, q.Enqueue(item("high", High, nil)))
	require.True(t, q.Enqueue(item("normal", Normal, nil)))

	assert.Equal(t, "high", q.Dequeue().Folder.ID)
	assert.Equal(t, "normal", q.Dequeue().Folder.ID)
	assert.Equal(t, "low", q.Dequeue().Folder.ID)
	assert.Nil(t, q.Dequeue())
}

func TestOlderLastSyncedFirstWithinPriority(t *testing.T) {
	q := New()
	older := time.Now().Add(-time.Hour)
	newer := time.Now().Add(-time.Minute)
	require.True(t, q.Enqueue(item("recent", Normal, &newer)))
	require.True(t, q.Enqueue(item("stale", Normal, &older)))
	// Never-synced sorts before both.
	require.True(t, q.Enqueue(item("never", Normal, nil)))

	assert.Equal(t, "never", q.Dequeue().Folder.ID)
	assert.Equal(t, "stale", q.Dequeue().Folder.ID)
	assert.Equal(t, "recent", q.Dequeue().Folder.ID)
}

func TestEnqueueIdempotentPerFolder(t *testing.T) {
	q := New()
	require.True(t, q.Enqueue(item("f1", Normal, nil)))
	assert.False(t, q.Enqueue(item("f1", Normal, nil)))
	assert.Equal(t, 1, q.Size())

	it := q.Dequeue()
	require.NotNil(t, it)
	assert.True(t, q.IsProcessing("f1"))

	// Still dropped while the folder is in flight.
	assert.False(t, q.Enqueue(item("f1", High, nil)))

	q.MarkDone("f1")
	assert.False(t, q.IsProcessing("f1"))
	assert.True(t, q.Enqueue(item("f1", Normal, nil)))
}

func TestSizeAndActiveCount(t *testing.T) {
	q := New()
	q.Enqueue(item("a", Normal, nil))
	q.Enqueue(item("b", Normal, nil))
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, 0, q.ActiveCount())

	q.Dequeue()
	assert.Equal(t, 1, q.Size())
	assert.Equal(t, 1, q.ActiveCount())

	q.Clear()
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, 1, q.ActiveCount())
}

func TestClampWorkers(t *testing.T) {
	assert.Equal(t, 1, ClampWorkers(0))
	assert.Equal(t, 1, ClampWorkers(-3))
	assert.Equal(t, 4, ClampWorkers(4))
	assert.Equal(t, 100, ClampWorkers(250))
}
