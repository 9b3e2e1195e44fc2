// Package queue defines the durable work queue the batch processor drains.
//
// Backends: repository.PgQueue (PostgreSQL), repository.RedisQueue (Redis sorted
// set) and MemoryQueue (process memory; tests and local runs).
package queue

import (
	"context"

	"github.com/ricirt/job-harvester/internal/domain"
)

// Queue is the single source of truth for remaining work.
//
// Dequeue does not remove anything: an item stays visible until Remove is
// called for its URL, so a crash between the two leaves it in place.
// Implementations report backend faults wrapped with domain.ErrStorage and
// never retry them on their own.
type Queue interface {
	// Enqueue inserts urls that are not present yet and returns how many were
	// new. Re-inserting an existing url is not an error.
	Enqueue(ctx context.Context, urls []string) (int, error)
	// Dequeue returns at most limit items in a stable order. It returns an
	// empty slice when the queue is empty.
	Dequeue(ctx context.Context, limit int) ([]domain.WorkItem, error)
	// Remove deletes urls. Unknown urls are ignored.
	Remove(ctx context.Context, urls []string) error
}

// FailureTracker is implemented by queues that keep per-item failure state.
type FailureTracker interface {
	// MarkFailed records a failed run for url, moves it behind items that have
	// not failed yet and returns its failure count. Unknown urls return 0.
	MarkFailed(ctx context.Context, url, reason string) (int, error)
	// DeadLetter atomically moves url out of the queue into dead-letter storage.
	DeadLetter(ctx context.Context, url, reason string) error
}

// Counter is implemented by queues that can report their depth cheaply.
type Counter interface {
	Len(ctx context.Context) (int, error)
}

// Dedupe drops empty and repeated urls, keeping first-seen order.
func Dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
