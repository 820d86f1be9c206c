// Package syncqueue is the prioritized folder-sync queue: a max-heap of
// per-folder jobs with in-flight deduplication, drained by a bounded set
// of workers.
package syncqueue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/provider"
)

// Priority orders jobs in the queue; High drains before Normal before Low.
type Priority int

const (
	Low Priority = iota
	Normal
	High
)

// Item is one folder-sync job.
type Item struct {
	Account      model.Account
	Folder       model.Folder
	SyncFolder   provider.SyncFolder
	Priority     Priority
	Full         bool
	LastSyncedAt *time.Time
	EnqueuedAt   time.Time

	index int // heap bookkeeping
}

// less orders the heap: higher priority first; within a priority, older
// last_synced_at first (never-synced sorts oldest), then older
// enqueued_at as the tie-breaker.
func less(a, b *Item) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	at, bt := syncedAt(a), syncedAt(b)
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return a.EnqueuedAt.Before(b.EnqueuedAt)
}

func syncedAt(it *Item) time.Time {
	if it.LastSyncedAt == nil {
		return time.Time{}
	}
	return *it.LastSyncedAt
}

type itemHeap []*Item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *itemHeap) Push(x any)         { it := x.(*Item); it.index = len(*h); *h = append(*h, it) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is the shared folder-sync queue. Enqueue is idempotent per
// folder id: a folder that is already queued or currently being
// processed is not enqueued again.
type Queue struct {
	mu       sync.Mutex
	heap     itemHeap
	queued   map[string]bool // folder ids waiting in the heap
	inFlight map[string]bool // folder ids currently being processed
	log      zerolog.Logger
}

// New returns an empty queue.
func New() *Queue {
	q := &Queue{
		queued:   make(map[string]bool),
		inFlight: make(map[string]bool),
		log:      logging.WithComponent("sync-queue"),
	}
	heap.Init(&q.heap)
	return q
}

// Enqueue adds a job unless the folder is already queued or in flight.
// Returns true when the job was accepted.
func (q *Queue) Enqueue(item Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	fid := item.Folder.ID
	if q.queued[fid] || q.inFlight[fid] {
		q.log.Debug().Str("folder_id", fid).Msg("folder already queued or in flight, dropping enqueue")
		return false
	}
	item.EnqueuedAt = time.Now().UTC()
	q.queued[fid] = true
	heap.Push(&q.heap, &item)
	q.log.Debug().Str("folder", item.Folder.Name).Str("account_id", item.Account.ID).
		Int("priority", int(item.Priority)).Msg("enqueued folder sync")
	return true
}

// Dequeue pops the highest-ordered job and marks its folder in flight,
// or returns nil when the queue is empty.
func (q *Queue) Dequeue() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil
	}
	it := heap.Pop(&q.heap).(*Item)
	delete(q.queued, it.Folder.ID)
	q.inFlight[it.Folder.ID] = true
	return it
}

// MarkDone releases the folder's in-flight slot, allowing re-enqueue.
func (q *Queue) MarkDone(folderID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, folderID)
}

// IsProcessing reports whether a folder is currently in flight.
func (q *Queue) IsProcessing(folderID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight[folderID]
}

// Size returns the number of jobs waiting (not counting in-flight).
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// ActiveCount returns the number of in-flight jobs.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// Clear drops every waiting job. In-flight jobs finish normally.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heap = q.heap[:0]
	q.queued = make(map[string]bool)
}

// ClampWorkers bounds a configured worker count to [1, 100].
func ClampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}
