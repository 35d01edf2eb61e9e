// Package ledger deduplicates inbound events and records background-job
// intents. Both rely on a unique idempotency key enforced by the store: the
// first writer of a key wins and later writers observe the existing row.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("ledger record not found")

// Status is the processing state of an event or intent.
type Status string

// Processing states.
const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Reason explains a Decision.
type Reason string

// Decision reasons.
const (
	ReasonFirstDelivery     Reason = "first_delivery"
	ReasonAlreadyProcessed  Reason = "already_processed"
	ReasonInProgress        Reason = "in_progress"
	ReasonRetryAfterFailure Reason = "retry_after_failure"
)

// Event is an inbound delivery to deduplicate.
type Event struct {
	// ID is the provider's delivery id, when it has one.
	ID          string
	Source      string
	AggregateID string
	Type        string
	Timestamp   time.Time
	Payload     json.RawMessage
}

// Record is the stored form of an Event.
type Record struct {
	ID             string
	Key            string
	EventID        string
	Source         string
	Type           string
	AggregateID    string
	EventTimestamp time.Time
	Payload        json.RawMessage
	Status         Status
	Error          string
	Attempts       int
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}

// Decision tells the caller whether to run its side effects.
type Decision struct {
	ShouldProcess bool
	Reason        Reason
	Key           string
}

// Intent is a background job that must be scheduled at most once.
type Intent struct {
	ID           string
	Key          string
	Type         string
	AggregateID  string
	Payload      json.RawMessage
	Status       Status
	ScheduledFor time.Time
	MessageID    string
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store persists ledger rows behind a unique key.
type Store interface {
	// InsertEvent writes rec unless its key exists. It returns the stored row
	// and whether this call created it.
	InsertEvent(ctx context.Context, rec Record) (Record, bool, error)
	// ReclaimFailedEvent moves a failed row back to pending and bumps its
	// attempt count. It returns false if the row was not failed.
	ReclaimFailedEvent(ctx context.Context, key string, at time.Time) (bool, error)
	SetEventStatus(ctx context.Context, key string, status Status, errText string, at time.Time) error
	InsertIntent(ctx context.Context, intent Intent) (Intent, bool, error)
	SetIntentStatus(ctx context.Context, key string, status Status, messageID, errText string, at time.Time) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Ledger is the idempotency service used by webhook handlers.
type Ledger struct {
	store  Store
	clock  Clock
	logger *zap.Logger
}

// New builds a Ledger.
func New(store Store, clock Clock, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, clock: clock, logger: logger.Named("ledger")}
}

// Key derives the idempotency key for an event. A provider delivery id wins;
// otherwise the key is built from source, aggregate, and event type.
func Key(ev Event) string {
	source := strings.ToLower(strings.TrimSpace(ev.Source))
	if id := strings.TrimSpace(ev.ID); id != "" {
		return source + ":" + id
	}
	return strings.Join([]string{source, strings.TrimSpace(ev.AggregateID), strings.TrimSpace(ev.Type)}, ":")
}

// Check claims the event. ShouldProcess is true for the first delivery and for
// a redelivery of an event whose previous attempt failed.
func (l *Ledger) Check(ctx context.Context, ev Event) (Decision, error) {
	if strings.TrimSpace(ev.Source) == "" {
		return Decision{}, fmt.Errorf("event source is required")
	}
	if strings.TrimSpace(ev.ID) == "" && (strings.TrimSpace(ev.AggregateID) == "" || strings.TrimSpace(ev.Type) == "") {
		return Decision{}, fmt.Errorf("event needs an id or an aggregate id and type")
	}
	key := Key(ev)
	now := l.clock.Now()
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = now
	}
	rec := Record{
		ID:             ulid.Make().String(),
		Key:            key,
		EventID:        ev.ID,
		Source:         ev.Source,
		Type:           ev.Type,
		AggregateID:    ev.AggregateID,
		EventTimestamp: ts,
		Payload:        ev.Payload,
		Status:         StatusPending,
		Attempts:       1,
		CreatedAt:      now,
	}
	stored, created, err := l.store.InsertEvent(ctx, rec)
	if err != nil {
		return Decision{}, fmt.Errorf("insert event: %w", err)
	}
	if created {
		return Decision{ShouldProcess: true, Reason: ReasonFirstDelivery, Key: key}, nil
	}

	switch stored.Status {
	case StatusCompleted:
		return Decision{Reason: ReasonAlreadyProcessed, Key: key}, nil
	case StatusFailed:
		reclaimed, err := l.store.ReclaimFailedEvent(ctx, key, now)
		if err != nil {
			return Decision{}, fmt.Errorf("reclaim event: %w", err)
		}
		if reclaimed {
			l.logger.Info("retrying failed event", zap.String("key", key), zap.Int("previous_attempts", stored.Attempts))
			return Decision{ShouldProcess: true, Reason: ReasonRetryAfterFailure, Key: key}, nil
		}
		return Decision{Reason: ReasonInProgress, Key: key}, nil
	default:
		return Decision{Reason: ReasonInProgress, Key: key}, nil
	}
}

// MarkCompleted records a successful run for key.
func (l *Ledger) MarkCompleted(ctx context.Context, key string) error {
	if err := l.store.SetEventStatus(ctx, key, StatusCompleted, "", l.clock.Now()); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed records a failed run so a redelivery can retry it.
func (l *Ledger) MarkFailed(ctx context.Context, key string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if err := l.store.SetEventStatus(ctx, key, StatusFailed, msg, l.clock.Now()); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// IntentKey is the idempotency key of a background job.
func IntentKey(jobType, aggregateID string) string {
	return "intent:" + strings.TrimSpace(jobType) + ":" + strings.TrimSpace(aggregateID)
}

// RecordIntent stores a background job intent once per type and aggregate.
// The returned bool is false when the intent already existed.
func (l *Ledger) RecordIntent(ctx context.Context, jobType, aggregateID string, payload any, scheduledFor time.Time) (Intent, bool, error) {
	if strings.TrimSpace(jobType) == "" || strings.TrimSpace(aggregateID) == "" {
		return Intent{}, false, fmt.Errorf("intent needs a type and aggregate id")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Intent{}, false, fmt.Errorf("marshal intent payload: %w", err)
	}
	now := l.clock.Now()
	intent := Intent{
		ID:           ulid.Make().String(),
		Key:          IntentKey(jobType, aggregateID),
		Type:         jobType,
		AggregateID:  aggregateID,
		Payload:      data,
		Status:       StatusPending,
		ScheduledFor: scheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	stored, created, err := l.store.InsertIntent(ctx, intent)
	if err != nil {
		return Intent{}, false, fmt.Errorf("insert intent: %w", err)
	}
	return stored, created, nil
}

// CompleteIntent marks the intent scheduled, keeping the queue message id.
func (l *Ledger) CompleteIntent(ctx context.Context, key, messageID string) error {
	if err := l.store.SetIntentStatus(ctx, key, StatusCompleted, messageID, "", l.clock.Now()); err != nil {
		return fmt.Errorf("complete intent: %w", err)
	}
	return nil
}

// FailIntent marks the intent as failed to schedule.
func (l *Ledger) FailIntent(ctx context.Context, key string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if err := l.store.SetIntentStatus(ctx, key, StatusFailed, "", msg, l.clock.Now()); err != nil {
		return fmt.Errorf("fail intent: %w", err)
	}
	return nil
}
