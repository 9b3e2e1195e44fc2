package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/job-harvester/internal/domain"
)

// PgRecordRepository stores structured job records in job_records. It
// satisfies sink.Sink.
type PgRecordRepository struct {
	pool *pgxpool.Pool
}

func NewPgRecordRepository(pool *pgxpool.Pool) *PgRecordRepository {
	return &PgRecordRepository{pool: pool}
}

func (r *PgRecordRepository) Name() string { return "postgres-records" }

// Write upserts rec by id, so a redelivered item overwrites its earlier row.
func (r *PgRecordRepository) Write(ctx context.Context, rec *domain.JobRecord) error {
	details, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO job_records (id, source_url, title, company, details, fetched_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		ON CONFLICT (id) DO UPDATE
		SET source_url = EXCLUDED.source_url,
		    title      = EXCLUDED.title,
		    company    = EXCLUDED.company,
		    details    = EXCLUDED.details,
		    fetched_at = EXCLUDED.fetched_at,
		    updated_at = NOW()`,
		rec.ID, rec.SourceURL, nullIfEmpty(rec.Title), nullIfEmpty(rec.Company), string(details), rec.FetchedAt)
	if err != nil {
		return domain.StorageFailure("upsert job record", err)
	}
	return nil
}

// Get loads the stored record for id.
func (r *PgRecordRepository) Get(ctx context.Context, id string) (*domain.JobRecord, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT details FROM job_records WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.StorageFailure("select job record", err)
	}
	var rec domain.JobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode job record: %w", err)
	}
	return &rec, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
