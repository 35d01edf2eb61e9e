package memory

import (
	"context"
	"time"

	"github.com/JakeFAU/creator-discovery/internal/ledger"
)

// InsertEvent stores rec unless its key exists.
func (s *Store) InsertEvent(_ context.Context, rec ledger.Record) (ledger.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.events[rec.Key]; ok {
		return existing, false, nil
	}
	s.events[rec.Key] = rec
	return rec, true, nil
}

// ReclaimFailedEvent resets a failed event to pending.
func (s *Store) ReclaimFailedEvent(_ context.Context, key string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.events[key]
	if !ok {
		return false, ledger.ErrNotFound
	}
	if rec.Status != ledger.StatusFailed {
		return false, nil
	}
	rec.Status = ledger.StatusPending
	rec.Attempts++
	rec.Error = ""
	s.events[key] = rec
	return true, nil
}

// SetEventStatus records the outcome of processing an event.
func (s *Store) SetEventStatus(_ context.Context, key string, status ledger.Status, errText string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.events[key]
	if !ok {
		return ledger.ErrNotFound
	}
	rec.Status = status
	rec.Error = errText
	rec.ProcessedAt = pointerTime(at)
	s.events[key] = rec
	return nil
}

// Event returns the stored event for key. Tests use it to inspect the ledger.
func (s *Store) Event(key string) (ledger.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.events[key]
	return rec, ok
}

// InsertIntent stores an intent unless its key exists.
func (s *Store) InsertIntent(_ context.Context, intent ledger.Intent) (ledger.Intent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.intents[intent.Key]; ok {
		return existing, false, nil
	}
	s.intents[intent.Key] = intent
	return intent, true, nil
}

// SetIntentStatus records the scheduling outcome of an intent.
func (s *Store) SetIntentStatus(_ context.Context, key string, status ledger.Status, messageID, errText string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[key]
	if !ok {
		return ledger.ErrNotFound
	}
	intent.Status = status
	if messageID != "" {
		intent.MessageID = messageID
	}
	intent.Error = errText
	intent.UpdatedAt = at
	s.intents[key] = intent
	return nil
}

// Intents returns every stored intent. Tests use it to inspect the ledger.
func (s *Store) Intents() []ledger.Intent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Intent, 0, len(s.intents))
	for _, in := range s.intents {
		out = append(out, in)
	}
	return out
}
