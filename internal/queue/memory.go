package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ricirt/job-harvester/internal/domain"
)

// MemoryQueue is an in-process Queue. It is not durable across restarts;
// it backs tests and QUEUE_BACKEND=memory.
type MemoryQueue struct {
	mu          sync.RWMutex
	items       map[string]*memEntry
	deadLetters map[string]string
	seq         uint64

	// Optional error overrides: set in tests to simulate storage faults.
	EnqueueErr    error
	DequeueErr    error
	RemoveErr     error
	MarkFailedErr error
}

type memEntry struct {
	item  domain.WorkItem
	order uint64
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		items:       make(map[string]*memEntry),
		deadLetters: make(map[string]string),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, urls []string) (int, error) {
	if q.EnqueueErr != nil {
		return 0, domain.StorageFailure("enqueue", q.EnqueueErr)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	inserted := 0
	for _, u := range Dedupe(urls) {
		if _, ok := q.items[u]; ok {
			continue
		}
		q.seq++
		q.items[u] = &memEntry{
			item:  domain.WorkItem{URL: u, EnqueuedAt: time.Now().UTC()},
			order: q.seq,
		}
		inserted++
	}
	return inserted, nil
}

func (q *MemoryQueue) Dequeue(_ context.Context, limit int) ([]domain.WorkItem, error) {
	if limit <= 0 {
		return nil, domain.ErrInvalidLimit
	}
	if q.DequeueErr != nil {
		return nil, domain.StorageFailure("dequeue", q.DequeueErr)
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	entries := make([]*memEntry, 0, len(q.items))
	for _, e := range q.items {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]domain.WorkItem, len(entries))
	for i, e := range entries {
		out[i] = e.item
	}
	return out, nil
}

func (q *MemoryQueue) Remove(_ context.Context, urls []string) error {
	if q.RemoveErr != nil {
		return domain.StorageFailure("remove", q.RemoveErr)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, u := range urls {
		delete(q.items, u)
	}
	return nil
}

func (q *MemoryQueue) MarkFailed(_ context.Context, url, _ string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.MarkFailedErr != nil {
		return 0, domain.StorageFailure("mark failed", q.MarkFailedErr)
	}
	e, ok := q.items[url]
	if !ok {
		return 0, nil
	}
	q.seq++
	e.order = q.seq
	e.item.Failures++
	return e.item.Failures, nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, url, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.items[url]; !ok {
		return nil
	}
	delete(q.items, url)
	q.deadLetters[url] = reason
	return nil
}

func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items), nil
}

// Has reports whether url is still queued.
func (q *MemoryQueue) Has(url string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.items[url]
	return ok
}

// DeadLetters returns a copy of dead-lettered urls and their reasons.
func (q *MemoryQueue) DeadLetters() map[string]string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make(map[string]string, len(q.deadLetters))
	for k, v := range q.deadLetters {
		out[k] = v
	}
	return out
}

var (
	_ Queue          = (*MemoryQueue)(nil)
	_ FailureTracker = (*MemoryQueue)(nil)
	_ Counter        = (*MemoryQueue)(nil)
)
