package worker_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/job-harvester/internal/domain"
	"github.com/ricirt/job-harvester/internal/queue"
	"github.com/ricirt/job-harvester/internal/retry"
	"github.com/ricirt/job-harvester/internal/sink"
	"github.com/ricirt/job-harvester/internal/worker"
)

// noSleep keeps retry waits out of test time.
func noSleep(context.Context, time.Duration) error { return nil }

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, Sleep: noSleep}
}

// recordingSink remembers record IDs and can be told to fail.
type recordingSink struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(_ context.Context, rec *domain.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.StorageFailure("write", s.err)
	}
	s.ids = append(s.ids, rec.ID)
	return nil
}

// fakeFetcher returns a record per item, failing for urls listed in fail.
type fakeFetcher struct {
	mu     sync.Mutex
	calls  map[string]int
	order  []string
	fail   map[string]error
	before func(item domain.WorkItem)
}

func newFetcher() *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, item domain.WorkItem) (*domain.JobRecord, error) {
	f.mu.Lock()
	f.calls[item.URL]++
	f.order = append(f.order, item.URL)
	err := f.fail[item.URL]
	before := f.before
	f.mu.Unlock()

	if before != nil {
		before(item)
	}
	if err != nil {
		return nil, err
	}
	return &domain.JobRecord{
		ID:        item.ID(),
		SourceURL: item.URL,
		RawHTML:   []byte("<html>" + item.URL + "</html>"),
	}, nil
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func enqueue(t *testing.T, q queue.Queue, urls ...string) {
	t.Helper()
	if _, err := q.Enqueue(context.Background(), urls); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func queueLen(t *testing.T, q *queue.MemoryQueue) int {
	t.Helper()
	n, err := q.Len(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func numbered(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://x/jobs/%d", i+1)
	}
	return urls
}

func newProcessor(q queue.Queue, f *fakeFetcher, s sink.Sink, opts ...func(*worker.Options)) *worker.Processor {
	o := worker.Options{
		Queue:  q,
		Fetch:  f.Fetch,
		Sink:   s,
		Retry:  testPolicy(),
		Logger: zap.NewNop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return worker.NewProcessor(o)
}

func TestProcessAll_EndToEnd(t *testing.T) {
	q := queue.NewMemoryQueue()
	enqueue(t, q, "https://x/1", "https://x/2")

	dir := t.TempDir()
	s := sink.Multi{sink.NewSnapshotSink(dir)}
	p := newProcessor(q, newFetcher(), s)

	sum, err := p.ProcessAll(context.Background(), 5)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if sum.Succeeded != 2 || sum.Failed != 0 || sum.Interrupted {
		t.Errorf("summary = %+v", sum)
	}
	if n := queueLen(t, q); n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
	for _, id := range []string{"1", "2"} {
		if _, err := os.Stat(filepath.Join(dir, id+".html")); err != nil {
			t.Errorf("record %s not written: %v", id, err)
		}
	}
	if p.State() != worker.StateStopped {
		t.Errorf("state = %v, want stopped", p.State())
	}
}

func TestProcessAll_PartialBatchResilience(t *testing.T) {
	q := queue.NewMemoryQueue()
	urls := numbered(5)
	enqueue(t, q, urls...)

	f := newFetcher()
	f.fail[urls[2]] = domain.PermanentFetch(errors.New("HTTP 404"))
	s := &recordingSink{}

	sum, err := newProcessor(q, f, s).ProcessAll(context.Background(), 5)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if sum.Succeeded != 4 || sum.Failed != 1 {
		t.Errorf("summary = %+v, want 4 succeeded / 1 failed", sum)
	}
	if n := queueLen(t, q); n != 1 {
		t.Fatalf("queue length = %d, want 1", n)
	}
	if !q.Has(urls[2]) {
		t.Errorf("%s should remain queued", urls[2])
	}
	if len(s.ids) != 4 {
		t.Errorf("sink received %d records, want 4", len(s.ids))
	}
}

func TestProcessAll_GracefulDrain(t *testing.T) {
	const total, stopAt = 10, 4

	q := queue.NewMemoryQueue()
	urls := numbered(total)
	enqueue(t, q, urls...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFetcher()
	f.before = func(item domain.WorkItem) {
		// The shutdown signal arrives while item stopAt is in flight.
		if item.URL == urls[stopAt-1] {
			cancel()
		}
	}

	var (
		statesMu sync.Mutex
		states   []worker.State
	)
	p := newProcessor(q, f, &recordingSink{}, func(o *worker.Options) {
		o.Hooks.OnState = func(s worker.State) {
			statesMu.Lock()
			states = append(states, s)
			statesMu.Unlock()
		}
	})

	sum, err := p.ProcessAll(ctx, 5)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if !sum.Interrupted {
		t.Error("summary should report the interruption")
	}
	if sum.Succeeded != stopAt {
		t.Errorf("succeeded = %d, want %d", sum.Succeeded, stopAt)
	}
	for i, u := range urls {
		if i < stopAt && q.Has(u) {
			t.Errorf("%s was in flight or earlier and should be removed", u)
		}
		if i >= stopAt {
			if !q.Has(u) {
				t.Errorf("%s should be untouched", u)
			}
			if f.callCount(u) != 0 {
				t.Errorf("%s should never have been fetched", u)
			}
		}
	}

	statesMu.Lock()
	defer statesMu.Unlock()
	if len(states) != 3 || states[0] != worker.StateRunning || states[1] != worker.StateDraining || states[2] != worker.StateStopped {
		t.Errorf("state transitions = %v, want [running draining stopped]", states)
	}
}

func TestProcessAll_CancelledBeforeStart(t *testing.T) {
	q := queue.NewMemoryQueue()
	enqueue(t, q, numbered(3)...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFetcher()
	sum, err := newProcessor(q, f, &recordingSink{}).ProcessAll(ctx, 5)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if !sum.Interrupted || sum.Succeeded != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if n := queueLen(t, q); n != 3 {
		t.Errorf("queue length = %d, want 3", n)
	}
}

func TestProcessAll_TransientFailureUsesAllAttempts(t *testing.T) {
	q := queue.NewMemoryQueue()
	enqueue(t, q, "https://x/1")

	f := newFetcher()
	f.fail["https://x/1"] = domain.TransientFetch(errors.New("HTTP 503"))

	retries := 0
	p := newProcessor(q, f, &recordingSink{}, func(o *worker.Options) {
		o.Hooks.OnRetry = func(int, time.Duration, error) { retries++ }
	})

	sum, err := p.ProcessAll(context.Background(), 5)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if got := f.callCount("https://x/1"); got != 3 {
		t.Errorf("fetch attempts = %d, want 3", got)
	}
	if retries != 2 {
		t.Errorf("retries = %d, want 2", retries)
	}
	if sum.Failed != 1 || !q.Has("https://x/1") {
		t.Errorf("failed item should stay queued; summary = %+v", sum)
	}
}

func TestProcessAll_PermanentFailureAttemptedOnce(t *testing.T) {
	q := queue.NewMemoryQueue()
	enqueue(t, q, "https://x/1")

	f := newFetcher()
	f.fail["https://x/1"] = domain.PermanentFetch(errors.New("HTTP 410"))

	if _, err := newProcessor(q, f, &recordingSink{}).ProcessAll(context.Background(), 5); err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if got := f.callCount("https://x/1"); got != 1 {
		t.Errorf("fetch attempts = %d, want 1", got)
	}
}

func TestProcessAll_SinkFailureKeepsItem(t *testing.T) {
	q := queue.NewMemoryQueue()
	enqueue(t, q, "https://x/1", "https://x/2")

	s := &recordingSink{err: errors.New("disk full")}
	sum, err := newProcessor(q, newFetcher(), s).ProcessAll(context.Background(), 5)
	if err != nil {
		t.Fatalf("sink failures must not abort the run: %v", err)
	}
	if sum.Failed != 2 || sum.Succeeded != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if n := queueLen(t, q); n != 2 {
		t.Errorf("queue length = %d, want 2", n)
	}
}

func TestProcessAll_QueueFaultsAbortRun(t *testing.T) {
	t.Run("dequeue", func(t *testing.T) {
		q := queue.NewMemoryQueue()
		enqueue(t, q, "https://x/1")
		q.DequeueErr = errors.New("connection reset")

		_, err := newProcessor(q, newFetcher(), &recordingSink{}).ProcessAll(context.Background(), 5)
		if !errors.Is(err, domain.ErrStorage) {
			t.Fatalf("err = %v, want ErrStorage", err)
		}
	})

	t.Run("remove", func(t *testing.T) {
		q := queue.NewMemoryQueue()
		enqueue(t, q, "https://x/1", "https://x/2")
		q.RemoveErr = errors.New("read-only transaction")

		f := newFetcher()
		p := newProcessor(q, f, &recordingSink{})
		_, err := p.ProcessAll(context.Background(), 5)
		if !errors.Is(err, domain.ErrStorage) {
			t.Fatalf("err = %v, want ErrStorage", err)
		}
		if f.callCount("https://x/2") != 0 {
			t.Error("run should stop at the first remove failure")
		}
		if !q.Has("https://x/1") {
			t.Error("item must stay queued when remove fails")
		}
		if p.State() != worker.StateStopped {
			t.Errorf("state = %v, want stopped", p.State())
		}
	})
}

func TestProcessAll_FailedItemsDoNotStarveFreshOnes(t *testing.T) {
	q := queue.NewMemoryQueue()
	enqueue(t, q, "https://x/a", "https://x/b", "https://x/c")

	f := newFetcher()
	f.fail["https://x/a"] = domain.PermanentFetch(errors.New("HTTP 404"))
	f.fail["https://x/b"] = domain.PermanentFetch(errors.New("HTTP 404"))

	sum, err := newProcessor(q, f, &recordingSink{}).ProcessAll(context.Background(), 2)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if sum.Succeeded != 1 || sum.Failed != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if q.Has("https://x/c") {
		t.Error("fresh item behind failed ones should have been processed")
	}
	for _, u := range []string{"https://x/a", "https://x/b"} {
		if got := f.callCount(u); got != 1 {
			t.Errorf("%s fetched %d times in one run, want 1", u, got)
		}
	}
}

func TestProcessAll_DeadLetterAfter(t *testing.T) {
	q := queue.NewMemoryQueue()
	enqueue(t, q, "https://x/1", "https://x/2")

	f := newFetcher()
	f.fail["https://x/1"] = domain.PermanentFetch(errors.New("HTTP 404"))

	p := newProcessor(q, f, &recordingSink{}, func(o *worker.Options) { o.DeadLetterAfter = 2 })

	sum, err := p.ProcessAll(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Failed != 1 || sum.DeadLettered != 0 || !q.Has("https://x/1") {
		t.Fatalf("first run: summary = %+v", sum)
	}

	sum, err = p.ProcessAll(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if sum.DeadLettered != 1 {
		t.Errorf("second run: summary = %+v, want one dead-lettered", sum)
	}
	if q.Has("https://x/1") {
		t.Error("dead-lettered item should leave the queue")
	}
	if _, ok := q.DeadLetters()["https://x/1"]; !ok {
		t.Error("dead-letter entry missing")
	}
}

func TestProcessAll_RejectsConcurrentRuns(t *testing.T) {
	q := queue.NewMemoryQueue()
	enqueue(t, q, "https://x/1")

	started := make(chan struct{})
	release := make(chan struct{})
	f := newFetcher()
	f.before = func(domain.WorkItem) {
		close(started)
		<-release
	}
	p := newProcessor(q, f, &recordingSink{})

	done := make(chan error, 1)
	go func() {
		_, err := p.ProcessAll(context.Background(), 5)
		done <- err
	}()

	<-started
	if _, err := p.ProcessAll(context.Background(), 5); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("err = %v, want ErrAlreadyRunning", err)
	}
	if p.State() != worker.StateRunning {
		t.Errorf("state = %v, want running", p.State())
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestProcessAll_InvalidBatchSize(t *testing.T) {
	p := newProcessor(queue.NewMemoryQueue(), newFetcher(), &recordingSink{})
	if _, err := p.ProcessAll(context.Background(), 0); !errors.Is(err, domain.ErrInvalidLimit) {
		t.Fatalf("err = %v, want ErrInvalidLimit", err)
	}
}

func TestProcessAll_ItemHooks(t *testing.T) {
	q := queue.NewMemoryQueue()
	enqueue(t, q, "https://x/1", "https://x/2")

	f := newFetcher()
	f.fail["https://x/2"] = domain.PermanentFetch(errors.New("HTTP 404"))

	outcomes := map[string]int{}
	batches := 0
	p := newProcessor(q, f, &recordingSink{}, func(o *worker.Options) {
		o.Hooks.OnItem = func(outcome string, _ time.Duration) { outcomes[outcome]++ }
		o.Hooks.OnBatch = func(int) { batches++ }
	})

	if _, err := p.ProcessAll(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if outcomes[worker.OutcomeSucceeded] != 1 || outcomes[worker.OutcomeFailed] != 1 {
		t.Errorf("outcomes = %v", outcomes)
	}
	if batches != 1 {
		t.Errorf("batches = %d, want 1", batches)
	}
}

// plainQueue hides everything but queue.Queue, so failed items are never
// moved behind fresh ones.
type plainQueue struct {
	q *queue.MemoryQueue
}

func (p plainQueue) Enqueue(ctx context.Context, urls []string) (int, error) {
	return p.q.Enqueue(ctx, urls)
}

func (p plainQueue) Dequeue(ctx context.Context, limit int) ([]domain.WorkItem, error) {
	return p.q.Dequeue(ctx, limit)
}

func (p plainQueue) Remove(ctx context.Context, urls []string) error {
	return p.q.Remove(ctx, urls)
}

func TestProcessAll_FailedHeadDoesNotHideFreshItems(t *testing.T) {
	tests := []struct {
		name  string
		queue func(*queue.MemoryQueue) queue.Queue
	}{
		{"queue without failure tracking", func(m *queue.MemoryQueue) queue.Queue { return plainQueue{q: m} }},
		{"mark failed errors", func(m *queue.MemoryQueue) queue.Queue {
			m.MarkFailedErr = errors.New("connection reset")
			return m
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := queue.NewMemoryQueue()
			enqueue(t, m, "https://x/a", "https://x/b", "https://x/c", "https://x/d", "https://x/e")

			f := newFetcher()
			f.fail["https://x/a"] = domain.PermanentFetch(errors.New("HTTP 404"))
			f.fail["https://x/b"] = domain.PermanentFetch(errors.New("HTTP 404"))
			f.fail["https://x/d"] = domain.PermanentFetch(errors.New("HTTP 404"))

			sum, err := newProcessor(tt.queue(m), f, &recordingSink{}).ProcessAll(context.Background(), 2)
			if err != nil {
				t.Fatalf("ProcessAll: %v", err)
			}
			if sum.Succeeded != 2 || sum.Failed != 3 {
				t.Errorf("summary = %+v, want 2 succeeded / 3 failed", sum)
			}
			for _, u := range []string{"https://x/c", "https://x/e"} {
				if m.Has(u) {
					t.Errorf("%s should have been processed", u)
				}
			}
			for _, u := range []string{"https://x/a", "https://x/b", "https://x/d"} {
				if got := f.callCount(u); got != 1 {
					t.Errorf("%s fetched %d times in one run, want 1", u, got)
				}
				if !m.Has(u) {
					t.Errorf("failed item %s should stay queued", u)
				}
			}
		})
	}
}

func TestProcessAll_RecordWithoutIDFailsItem(t *testing.T) {
	q := queue.NewMemoryQueue()
	enqueue(t, q, "https://x/jobs/1")

	s := &recordingSink{}
	p := newProcessor(q, newFetcher(), s, func(o *worker.Options) {
		o.Fetch = func(_ context.Context, item domain.WorkItem) (*domain.JobRecord, error) {
			return &domain.JobRecord{SourceURL: item.URL}, nil
		}
	})

	sum, err := p.ProcessAll(context.Background(), 1)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if sum.Failed != 1 || sum.Succeeded != 0 {
		t.Errorf("summary = %+v, want 1 failed", sum)
	}
	if len(s.ids) != 0 {
		t.Errorf("sink received %v, want nothing", s.ids)
	}
	if !q.Has("https://x/jobs/1") {
		t.Error("item should stay queued")
	}
}
