// Package sink persists fetched job records. Every configured sink must accept
// a record before its work item is removed from the queue.
package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/ricirt/job-harvester/internal/domain"
)

// Sink persists one record. Writes must be idempotent per record ID: a
// redelivered item overwrites what an earlier attempt wrote.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec *domain.JobRecord) error
}

// Multi runs sinks in order and stops at the first failure.
type Multi []Sink

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, s := range m {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (m Multi) Write(ctx context.Context, rec *domain.JobRecord) error {
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			return fmt.Errorf("sink %s: %w", s.Name(), err)
		}
	}
	return nil
}
