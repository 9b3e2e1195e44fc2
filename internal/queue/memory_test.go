package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ricirt/job-harvester/internal/domain"
	"github.com/ricirt/job-harvester/internal/queue"
)

func urls(items []domain.WorkItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.URL
	}
	return out
}

func TestMemoryQueue_EnqueueDequeueOrder(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx := context.Background()

	n, err := q.Enqueue(ctx, []string{"https://x/1", "https://x/2", "https://x/3"})
	if err != nil || n != 3 {
		t.Fatalf("expected 3 inserted, got %d, %v", n, err)
	}

	items, err := q.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := urls(items)
	want := []string{"https://x/1", "https://x/2", "https://x/3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestMemoryQueue_DedupOnEnqueue(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx := context.Background()

	if n, _ := q.Enqueue(ctx, []string{"https://x/1", "https://x/1", ""}); n != 1 {
		t.Fatalf("expected 1 inserted, got %d", n)
	}
	before, _ := q.Dequeue(ctx, 10)

	n, err := q.Enqueue(ctx, []string{"https://x/1"})
	if err != nil {
		t.Fatalf("re-enqueue should not fail: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 inserted on duplicate, got %d", n)
	}

	after, _ := q.Dequeue(ctx, 10)
	if len(before) != 1 || len(after) != 1 || before[0] != after[0] {
		t.Fatalf("duplicate enqueue changed the queue: before=%v after=%v", before, after)
	}
}

func TestMemoryQueue_RemoveIsIdempotent(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, []string{"https://x/1", "https://x/2"})

	for i := 0; i < 2; i++ {
		if err := q.Remove(ctx, []string{"https://x/1"}); err != nil {
			t.Fatalf("remove #%d: unexpected error %v", i+1, err)
		}
		if q.Has("https://x/1") {
			t.Fatalf("remove #%d: url still present", i+1)
		}
	}
	if err := q.Remove(ctx, []string{"https://never/enqueued"}); err != nil {
		t.Fatalf("removing unknown url should be a no-op, got %v", err)
	}
	if !q.Has("https://x/2") {
		t.Fatal("unrelated url was removed")
	}
}

func TestMemoryQueue_DequeueDoesNotRemove(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, []string{"https://x/1"})

	first, _ := q.Dequeue(ctx, 1)
	// Nothing removed the item: a second reader (e.g. after a crash) must see it.
	second, _ := q.Dequeue(ctx, 1)
	if len(first) != 1 || len(second) != 1 || first[0].URL != second[0].URL {
		t.Fatalf("expected the same item to stay visible, got %v then %v", first, second)
	}
}

func TestMemoryQueue_BatchBound(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, _ = q.Enqueue(ctx, []string{fmt.Sprintf("https://x/%d", i)})
	}

	for _, tc := range []struct{ limit, want int }{{1, 1}, {5, 5}, {7, 7}, {50, 7}} {
		items, err := q.Dequeue(ctx, tc.limit)
		if err != nil {
			t.Fatalf("limit %d: %v", tc.limit, err)
		}
		if len(items) != tc.want {
			t.Fatalf("limit %d: expected %d items, got %d", tc.limit, tc.want, len(items))
		}
	}

	if _, err := q.Dequeue(ctx, 0); !errors.Is(err, domain.ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestMemoryQueue_EmptyDequeue(t *testing.T) {
	items, err := queue.NewMemoryQueue().Dequeue(context.Background(), 5)
	if err != nil {
		t.Fatalf("empty queue is not an error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %v", items)
	}
}

func TestMemoryQueue_MarkFailedMovesItemBack(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, []string{"https://x/1", "https://x/2", "https://x/3"})

	n, err := q.MarkFailed(ctx, "https://x/1", "boom")
	if err != nil || n != 1 {
		t.Fatalf("expected failure count 1, got %d, %v", n, err)
	}
	n, _ = q.MarkFailed(ctx, "https://x/1", "boom")
	if n != 2 {
		t.Fatalf("expected failure count 2, got %d", n)
	}

	items, _ := q.Dequeue(ctx, 3)
	if items[2].URL != "https://x/1" || items[2].Failures != 2 {
		t.Fatalf("expected failed item last with 2 failures, got %+v", items)
	}

	if n, _ := q.MarkFailed(ctx, "https://x/unknown", "boom"); n != 0 {
		t.Fatalf("expected 0 for unknown url, got %d", n)
	}
}

func TestMemoryQueue_DeadLetter(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, []string{"https://x/1"})

	if err := q.DeadLetter(ctx, "https://x/1", "gone"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Has("https://x/1") {
		t.Fatal("dead-lettered url still queued")
	}
	if q.DeadLetters()["https://x/1"] != "gone" {
		t.Fatalf("expected dead letter reason, got %v", q.DeadLetters())
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
}

func TestMemoryQueue_StorageErrors(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	q.DequeueErr = errors.New("disk on fire")

	if _, err := q.Dequeue(ctx, 1); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestMemoryQueue_ConcurrentEnqueueKeepsKeysUnique(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				n, _ := q.Enqueue(ctx, []string{fmt.Sprintf("https://x/%d", i)})
				mu.Lock()
				total += n
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if total != 50 {
		t.Fatalf("expected exactly 50 inserts across writers, got %d", total)
	}
	if n, _ := q.Len(ctx); n != 50 {
		t.Fatalf("expected 50 queued urls, got %d", n)
	}
}

func TestDedupe(t *testing.T) {
	got := queue.Dedupe([]string{"b", "a", "b", "", "c", "a"})
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
