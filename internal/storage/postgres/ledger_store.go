package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/creator-discovery/internal/ledger"
)

const eventColumns = `id, idempotency_key, COALESCE(event_id, ''), source, event_type, COALESCE(aggregate_id, ''),
	event_timestamp, payload, processing_status, COALESCE(error, ''), attempts, created_at, processed_at`

const insertEventSQL = `INSERT INTO webhook_events (
	id, idempotency_key, event_id, source, event_type, aggregate_id, event_timestamp,
	payload, processing_status, attempts, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING ` + eventColumns

const selectEventSQL = `SELECT ` + eventColumns + ` FROM webhook_events WHERE idempotency_key = $1`

const reclaimEventSQL = `UPDATE webhook_events
SET processing_status = 'pending', attempts = attempts + 1, error = NULL, processed_at = NULL
WHERE idempotency_key = $1 AND processing_status = 'failed'`

const setEventStatusSQL = `UPDATE webhook_events
SET processing_status = $2, error = $3, processed_at = $4
WHERE idempotency_key = $1`

const intentColumns = `id, idempotency_key, job_type, aggregate_id, payload, status, scheduled_for,
	COALESCE(qstash_message_id, ''), COALESCE(error, ''), created_at, updated_at`

const insertIntentSQL = `INSERT INTO background_jobs (
	id, idempotency_key, job_type, aggregate_id, payload, status, scheduled_for, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING ` + intentColumns

const selectIntentSQL = `SELECT ` + intentColumns + ` FROM background_jobs WHERE idempotency_key = $1`

const setIntentStatusSQL = `UPDATE background_jobs
SET status = $2, qstash_message_id = COALESCE($3, qstash_message_id), error = $4, updated_at = $5
WHERE idempotency_key = $1`

// InsertEvent writes rec unless its key exists, returning the stored row.
func (s *Store) InsertEvent(ctx context.Context, rec ledger.Record) (ledger.Record, bool, error) {
	stored, err := scanEvent(s.pool.QueryRow(ctx, insertEventSQL,
		rec.ID,
		rec.Key,
		nullString(rec.EventID),
		rec.Source,
		rec.Type,
		nullString(rec.AggregateID),
		rec.EventTimestamp,
		[]byte(rec.Payload),
		string(rec.Status),
		rec.Attempts,
		rec.CreatedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ledger.Record{}, false, fmt.Errorf("insert webhook event: %w", err)
	}
	existing, err := scanEvent(s.pool.QueryRow(ctx, selectEventSQL, rec.Key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Record{}, false, ledger.ErrNotFound
		}
		return ledger.Record{}, false, fmt.Errorf("select webhook event: %w", err)
	}
	return existing, false, nil
}

// ReclaimFailedEvent resets a failed event to pending.
func (s *Store) ReclaimFailedEvent(ctx context.Context, key string, _ time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, reclaimEventSQL, key)
	if err != nil {
		return false, fmt.Errorf("reclaim webhook event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetEventStatus records the outcome of processing an event.
func (s *Store) SetEventStatus(ctx context.Context, key string, status ledger.Status, errText string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, setEventStatusSQL, key, string(status), nullString(errText), at)
	if err != nil {
		return fmt.Errorf("set webhook event status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// InsertIntent stores an intent unless its key exists, returning the stored row.
func (s *Store) InsertIntent(ctx context.Context, intent ledger.Intent) (ledger.Intent, bool, error) {
	stored, err := scanIntent(s.pool.QueryRow(ctx, insertIntentSQL,
		intent.ID,
		intent.Key,
		intent.Type,
		intent.AggregateID,
		[]byte(intent.Payload),
		string(intent.Status),
		intent.ScheduledFor,
		intent.CreatedAt,
		intent.UpdatedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ledger.Intent{}, false, fmt.Errorf("insert background job: %w", err)
	}
	existing, err := scanIntent(s.pool.QueryRow(ctx, selectIntentSQL, intent.Key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Intent{}, false, ledger.ErrNotFound
		}
		return ledger.Intent{}, false, fmt.Errorf("select background job: %w", err)
	}
	return existing, false, nil
}

// SetIntentStatus records the scheduling outcome of an intent.
func (s *Store) SetIntentStatus(ctx context.Context, key string, status ledger.Status, messageID, errText string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, setIntentStatusSQL, key, string(status), nullString(messageID), nullString(errText), at)
	if err != nil {
		return fmt.Errorf("set background job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func scanEvent(row pgx.Row) (ledger.Record, error) {
	var (
		rec     ledger.Record
		payload []byte
		status  string
	)
	err := row.Scan(
		&rec.ID, &rec.Key, &rec.EventID, &rec.Source, &rec.Type, &rec.AggregateID,
		&rec.EventTimestamp, &payload, &status, &rec.Error, &rec.Attempts, &rec.CreatedAt, &rec.ProcessedAt,
	)
	if err != nil {
		return ledger.Record{}, err
	}
	rec.Payload = payload
	rec.Status = ledger.Status(status)
	return rec, nil
}

func scanIntent(row pgx.Row) (ledger.Intent, error) {
	var (
		in      ledger.Intent
		payload []byte
		status  string
	)
	err := row.Scan(
		&in.ID, &in.Key, &in.Type, &in.AggregateID, &payload, &status, &in.ScheduledFor,
		&in.MessageID, &in.Error, &in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		return ledger.Intent{}, err
	}
	in.Payload = payload
	in.Status = ledger.Status(status)
	return in, nil
}
