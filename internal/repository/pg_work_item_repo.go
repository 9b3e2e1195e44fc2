package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/job-harvester/internal/domain"
	"github.com/ricirt/job-harvester/internal/queue"
)

// PgQueue is the PostgreSQL-backed work queue. Every operation is a single
// key-based statement, so concurrent processes cannot break the url primary
// key invariant and a crash never leaves partial state behind.
type PgQueue struct {
	pool *pgxpool.Pool
}

// NewPgQueue returns a queue over the work_items table.
func NewPgQueue(pool *pgxpool.Pool) *PgQueue {
	return &PgQueue{pool: pool}
}

func (r *PgQueue) Enqueue(ctx context.Context, urls []string) (int, error) {
	urls = queue.Dedupe(urls)
	if len(urls) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO work_items (url)
		SELECT u FROM unnest($1::text[]) WITH ORDINALITY AS t(u, ord)
		ORDER BY ord
		ON CONFLICT (url) DO NOTHING`, urls)
	if err != nil {
		return 0, domain.StorageFailure("insert work items", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgQueue) Dequeue(ctx context.Context, limit int) ([]domain.WorkItem, error) {
	if limit <= 0 {
		return nil, domain.ErrInvalidLimit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT url, enqueued_at, failures
		FROM work_items
		ORDER BY last_failed_at ASC NULLS FIRST, seq ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, domain.StorageFailure("select work items", err)
	}
	defer rows.Close()

	items := make([]domain.WorkItem, 0, limit)
	for rows.Next() {
		var w domain.WorkItem
		if err := rows.Scan(&w.URL, &w.EnqueuedAt, &w.Failures); err != nil {
			return nil, domain.StorageFailure("scan work item", err)
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure("select work items", err)
	}
	return items, nil
}

func (r *PgQueue) Remove(ctx context.Context, urls []string) error {
	urls = queue.Dedupe(urls)
	if len(urls) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM work_items WHERE url = ANY($1::text[])`, urls); err != nil {
		return domain.StorageFailure("delete work items", err)
	}
	return nil
}

func (r *PgQueue) MarkFailed(ctx context.Context, url, reason string) (int, error) {
	var failures int
	err := r.pool.QueryRow(ctx, `
		UPDATE work_items
		SET failures = failures + 1, last_error = $2, last_failed_at = clock_timestamp()
		WHERE url = $1
		RETURNING failures`, url, reason).Scan(&failures)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.StorageFailure("mark work item failed", err)
	}
	return failures, nil
}

// DeadLetter moves url into dead_letters in one statement; the delete and the
// insert commit together or not at all.
func (r *PgQueue) DeadLetter(ctx context.Context, url, reason string) error {
	_, err := r.pool.Exec(ctx, `
		WITH moved AS (
			DELETE FROM work_items WHERE url = $1
			RETURNING url, enqueued_at, failures
		)
		INSERT INTO dead_letters (url, enqueued_at, failures, reason)
		SELECT url, enqueued_at, failures, $2 FROM moved
		ON CONFLICT (url) DO UPDATE
		SET failures = EXCLUDED.failures,
		    reason = EXCLUDED.reason,
		    dead_lettered_at = NOW()`, url, reason)
	if err != nil {
		return domain.StorageFailure("dead-letter work item", err)
	}
	return nil
}

func (r *PgQueue) Len(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM work_items`).Scan(&n); err != nil {
		return 0, domain.StorageFailure("count work items", err)
	}
	return n, nil
}

var (
	_ queue.Queue          = (*PgQueue)(nil)
	_ queue.FailureTracker = (*PgQueue)(nil)
	_ queue.Counter        = (*PgQueue)(nil)
)
