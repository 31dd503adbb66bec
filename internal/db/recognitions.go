package db

import (
	"context"
	"fmt"

	"github.com/facturaIA/captcha-ocr-service/internal/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

const schema = `
CREATE TABLE IF NOT EXISTS recognitions (
	id            UUID PRIMARY KEY,
	backend       TEXT NOT NULL,
	source        TEXT NOT NULL,
	text          TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error_kind    TEXT,
	duration_ms   BIGINT NOT NULL,
	sample_object TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS recognitions_created_at_idx ON recognitions (created_at DESC);
`

// EnsureSchema creates the recognitions table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return ErrNoDatabase
	}
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRecognition inserts rec and fills in CreatedAt.
func (s *Store) SaveRecognition(ctx context.Context, rec *models.Recognition) error {
	if s == nil || s.pool == nil {
		return ErrNoDatabase
	}
	query := `
		INSERT INTO recognitions (
			id, backend, source, text, status, error_kind, duration_ms, sample_object
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''))
		RETURNING created_at
	`
	err := s.pool.QueryRow(ctx, query,
		rec.ID, rec.Backend, rec.Source, rec.Text, rec.Status,
		rec.ErrorKind, rec.DurationMS, rec.SampleObject,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save recognition: %w", err)
	}
	return nil
}

// ListRecognitions returns the most recent rows, newest first.
func (s *Store) ListRecognitions(ctx context.Context, limit int) ([]models.Recognition, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNoDatabase
	}
	query := `
		SELECT id::text, backend, source, text, status, COALESCE(error_kind, ''),
		       duration_ms, COALESCE(sample_object, ''), created_at
		FROM recognitions
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list recognitions: %w", err)
	}
	defer rows.Close()

	recs := []models.Recognition{}
	for rows.Next() {
		var r models.Recognition
		if err := rows.Scan(
			&r.ID, &r.Backend, &r.Source, &r.Text, &r.Status, &r.ErrorKind,
			&r.DurationMS, &r.SampleObject, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Stats aggregates the audit log per backend.
func (s *Store) Stats(ctx context.Context) ([]models.BackendStats, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNoDatabase
	}
	query := `
		SELECT
			backend,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'succeeded') AS succeeded,
			COUNT(*) FILTER (WHERE status <> 'succeeded') AS failed,
			COALESCE(AVG(duration_ms), 0)::float8 AS avg_duration_ms
		FROM recognitions
		GROUP BY backend
		ORDER BY backend
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	defer rows.Close()

	stats := []models.BackendStats{}
	for rows.Next() {
		var st models.BackendStats
		if err := rows.Scan(&st.Backend, &st.Total, &st.Succeeded, &st.Failed, &st.AvgDurationMS); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ClampLimit bounds a caller-supplied page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
