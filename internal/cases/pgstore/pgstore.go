// Package pgstore provides a PostgreSQL implementation of cases.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/medtriage/internal/cases"
	"github.com/linnemanlabs/medtriage/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/medtriage/internal/cases/pgstore")

//go:embed schema.sql
var schema string

// Store persists triage cases in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store.
// The pool remains owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const caseColumns = `id, fingerprint, status, clinical_context, model, raw_output,
	record, referrals, created_at, completed_at, duration_s, llm_time_s, tokens_in, tokens_out`

// Get retrieves a case by ID.
//
//nolint:dupl // similar structure to GetByFingerprint is intentional
func (s *Store) Get(ctx context.Context, id string) (*cases.Case, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + caseColumns + ` FROM triage_cases WHERE id = $1`
	c, err := scanCaseRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if c == nil {
		return nil, false, nil
	}
	return c, true, nil
}

// GetByFingerprint retrieves the most recent case for an image fingerprint.
//
//nolint:dupl // similar structure to Get is intentional
func (s *Store) GetByFingerprint(ctx context.Context, fingerprint string) (*cases.Case, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetByFingerprint", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + caseColumns + ` FROM triage_cases WHERE fingerprint = $1 ORDER BY created_at DESC LIMIT 1`
	c, err := scanCaseRow(s.pool.QueryRow(ctx, query, fingerprint))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if c == nil {
		return nil, false, nil
	}
	return c, true, nil
}

// Put inserts or updates a case (upsert on id).
func (s *Store) Put(ctx context.Context, c *cases.Case) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	var recordJSON []byte
	if c.Record != nil {
		var err error
		recordJSON, err = json.Marshal(c.Record)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("marshal record: %w", err)
		}
	}

	var referralsJSON []byte
	if c.Referrals != nil {
		var err error
		referralsJSON, err = json.Marshal(c.Referrals)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("marshal referrals: %w", err)
		}
	}

	var completedAt *time.Time
	if !c.CompletedAt.IsZero() {
		completedAt = &c.CompletedAt
	}

	query := `INSERT INTO triage_cases (
		id, fingerprint, status, clinical_context, model, raw_output,
		record, referrals, created_at, completed_at, duration_s, llm_time_s, tokens_in, tokens_out
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	ON CONFLICT (id) DO UPDATE SET
		fingerprint      = EXCLUDED.fingerprint,
		status           = EXCLUDED.status,
		clinical_context = EXCLUDED.clinical_context,
		model            = EXCLUDED.model,
		raw_output       = EXCLUDED.raw_output,
		record           = EXCLUDED.record,
		referrals        = EXCLUDED.referrals,
		completed_at     = EXCLUDED.completed_at,
		duration_s       = EXCLUDED.duration_s,
		llm_time_s       = EXCLUDED.llm_time_s,
		tokens_in        = EXCLUDED.tokens_in,
		tokens_out       = EXCLUDED.tokens_out`

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.Fingerprint, string(c.Status), c.ClinicalContext, c.Model, c.RawOutput,
		recordJSON, referralsJSON, c.CreatedAt, completedAt, c.Duration, c.LLMTime,
		c.InputTokens, c.OutputTokens,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert case: %w", err)
	}
	return nil
}

// scanCaseRow scans a single row into a cases.Case.
// Returns (nil, nil) when no row is found.
func scanCaseRow(row pgx.Row) (*cases.Case, error) {
	var (
		c             cases.Case
		status        string
		recordJSON    []byte
		referralsJSON []byte
		completedAt   *time.Time
	)

	err := row.Scan(
		&c.ID, &c.Fingerprint, &status, &c.ClinicalContext, &c.Model, &c.RawOutput,
		&recordJSON, &referralsJSON, &c.CreatedAt, &completedAt, &c.Duration, &c.LLMTime,
		&c.InputTokens, &c.OutputTokens,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	c.Status = cases.Status(status)

	if completedAt != nil {
		c.CompletedAt = *completedAt
	}

	if len(recordJSON) > 0 {
		c.Record = &triage.Record{}
		if err := json.Unmarshal(recordJSON, c.Record); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
	}

	if len(referralsJSON) > 0 {
		if err := json.Unmarshal(referralsJSON, &c.Referrals); err != nil {
			return nil, fmt.Errorf("unmarshal referrals: %w", err)
		}
	}

	return &c, nil
}
