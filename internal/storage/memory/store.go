// Package memory provides mutex-guarded in-memory stores for development and tests.
package memory

import (
	"sync"
	"time"

	"github.com/JakeFAU/creator-discovery/internal/ledger"
	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

// Store implements every storage port in memory. One lock guards all tables
// so usage aggregation sees a consistent snapshot.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]scraping.Job
	results   map[string][]scraping.Result
	campaigns map[string]scraping.Campaign
	users     map[string]scraping.User
	events    map[string]ledger.Record
	intents   map[string]ledger.Intent
	resultSeq int
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		jobs:      make(map[string]scraping.Job),
		results:   make(map[string][]scraping.Result),
		campaigns: make(map[string]scraping.Campaign),
		users:     make(map[string]scraping.User),
		events:    make(map[string]ledger.Record),
		intents:   make(map[string]ledger.Intent),
	}
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
