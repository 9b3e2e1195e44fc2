package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ricirt/job-harvester/internal/domain"
	"github.com/ricirt/job-harvester/internal/queue"
)

// MaxBatch is the largest number of urls accepted by one Enqueue or Remove.
const MaxBatch = 1000

// Peek limits.
const (
	DefaultPeekLimit = 50
	MaxPeekLimit     = 1000
)

// Store is the queue surface the service needs.
type Store interface {
	queue.Queue
	queue.Counter
}

// EnqueueResult reports what an Enqueue call did.
type EnqueueResult struct {
	Submitted  int `json:"submitted"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// QueueService validates producer input before it reaches the queue.
// HTTP handlers and the CLI depend on this service, not on the queue.
type QueueService struct {
	store  Store
	logger *zap.Logger
}

func NewQueueService(store Store, logger *zap.Logger) *QueueService {
	return &QueueService{store: store, logger: logger}
}

// Enqueue normalises and enqueues urls. The whole call is rejected when any
// url is invalid, so a partial insert never happens.
func (s *QueueService) Enqueue(ctx context.Context, urls []string) (EnqueueResult, error) {
	normalized, err := normalizeAll(urls)
	if err != nil {
		return EnqueueResult{}, err
	}

	inserted, err := s.store.Enqueue(ctx, normalized)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("enqueue: %w", err)
	}

	res := EnqueueResult{
		Submitted:  len(urls),
		Inserted:   inserted,
		Duplicates: len(urls) - inserted,
	}
	s.logger.Info("work items enqueued",
		zap.Int("submitted", res.Submitted),
		zap.Int("inserted", res.Inserted),
	)
	return res, nil
}

// EnqueueFromText extracts job links from free text (an alert email body, a
// saved page) and enqueues them in chunks of MaxBatch.
func (s *QueueService) EnqueueFromText(ctx context.Context, text string) (EnqueueResult, error) {
	urls := domain.ExtractJobURLs(text)
	if len(urls) == 0 {
		return EnqueueResult{}, domain.ErrBatchEmpty
	}

	var total EnqueueResult
	for start := 0; start < len(urls); start += MaxBatch {
		end := min(start+MaxBatch, len(urls))
		res, err := s.Enqueue(ctx, urls[start:end])
		if err != nil {
			return total, err
		}
		total.Submitted += res.Submitted
		total.Inserted += res.Inserted
		total.Duplicates += res.Duplicates
	}
	return total, nil
}

// Remove deletes urls from the queue. Unknown urls are ignored.
func (s *QueueService) Remove(ctx context.Context, urls []string) error {
	normalized, err := normalizeAll(urls)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, normalized); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	s.logger.Info("work items removed", zap.Int("count", len(normalized)))
	return nil
}

// Peek returns the next items the processor would see, without removing them.
// A non-positive limit means DefaultPeekLimit.
func (s *QueueService) Peek(ctx context.Context, limit int) ([]domain.WorkItem, error) {
	if limit <= 0 {
		limit = DefaultPeekLimit
	}
	if limit > MaxPeekLimit {
		limit = MaxPeekLimit
	}
	return s.store.Dequeue(ctx, limit)
}

// Depth returns the number of queued items.
func (s *QueueService) Depth(ctx context.Context) (int, error) {
	return s.store.Len(ctx)
}

func normalizeAll(urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, domain.ErrBatchEmpty
	}
	if len(urls) > MaxBatch {
		return nil, domain.ErrBatchTooLarge
	}

	out := make([]string, len(urls))
	for i, raw := range urls {
		u, err := domain.NormalizeURL(raw)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = u
	}
	return queue.Dedupe(out), nil
}
