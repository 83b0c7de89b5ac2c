package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agrogram/search-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	listings    []model.Listing // creation order
	preferences map[string]*model.PreferenceProfile
	predictions map[model.PredictionKey]*model.PredictionRecord
	searchLog   []model.SearchLogEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		preferences: make(map[string]*model.PreferenceProfile),
		predictions: make(map[model.PredictionKey]*model.PredictionRecord),
	}
}

// CreateListing seeds a listing. Listings are written by the marketplace
// CRUD surface in production; this exists for tests and local development.
func (s *MemoryStore) CreateListing(_ context.Context, l *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.listings {
		if existing.ID == l.ID {
			return fmt.Errorf("listing %s already exists", l.ID)
		}
	}
	s.listings = append(s.listings, *l)
	return nil
}

func (s *MemoryStore) ListAvailable(_ context.Context) ([]model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		if l.Status == model.StatusAvailable {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetListing(_ context.Context, id string) (*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.listings {
		if l.ID == id {
			copied := l
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
}

// GetPreferences lazily creates an empty profile on first access.
func (s *MemoryStore) GetPreferences(_ context.Context, buyerID string) (*model.PreferenceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.preferences[buyerID]; ok {
		copied := *p
		return &copied, nil
	}
	now := time.Now().UTC()
	p := &model.PreferenceProfile{BuyerID: buyerID, CreatedAt: now, UpdatedAt: now}
	s.preferences[buyerID] = p
	copied := *p
	return &copied, nil
}

func (s *MemoryStore) UpdatePreferences(_ context.Context, profile *model.PreferenceProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *profile
	copied.UpdatedAt = time.Now().UTC()
	s.preferences[profile.BuyerID] = &copied
	return nil
}

func (s *MemoryStore) GetPrediction(_ context.Context, key model.PredictionKey) (*model.PredictionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.predictions[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *r
	return &copied, nil
}

// PutPrediction overwrites any record under the same key: the cache holds
// at most one record per (crop, region, horizon, day).
func (s *MemoryStore) PutPrediction(_ context.Context, record *model.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *record
	s.predictions[record.Key()] = &copied
	return nil
}

func (s *MemoryStore) LogSearch(_ context.Context, entry *model.SearchLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.searchLog = append(s.searchLog, *entry)
	return nil
}

// SearchLog returns a copy of the logged entries, for test assertions.
func (s *MemoryStore) SearchLog() []model.SearchLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.SearchLogEntry, len(s.searchLog))
	copy(out, s.searchLog)
	return out
}
