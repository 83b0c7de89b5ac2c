package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agrogram/search-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh or invalidate the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) ListAvailable(ctx context.Context) ([]model.Listing, error) {
	data, err := s.rdb.Get(ctx, listingsKey).Bytes()
	if err == nil {
		var listings []model.Listing
		if json.Unmarshal(data, &listings) == nil {
			return listings, nil
		}
	}

	listings, err := s.primary.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(listings); err == nil {
		s.rdb.Set(ctx, listingsKey, data, s.ttl)
	}
	return listings, nil
}

func (s *CachedStore) GetPreferences(ctx context.Context, buyerID string) (*model.PreferenceProfile, error) {
	data, err := s.rdb.Get(ctx, preferencesKey(buyerID)).Bytes()
	if err == nil {
		var p model.PreferenceProfile
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPreferences(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	s.cachePreferences(ctx, p)
	return p, nil
}

func (s *CachedStore) GetPrediction(ctx context.Context, key model.PredictionKey) (*model.PredictionRecord, error) {
	data, err := s.rdb.Get(ctx, predictionKey(key)).Bytes()
	if err == nil {
		var r model.PredictionRecord
		if json.Unmarshal(data, &r) == nil {
			return &r, nil
		}
	}

	r, err := s.primary.GetPrediction(ctx, key)
	if err != nil {
		return nil, err
	}

	s.cachePrediction(ctx, r)
	return r, nil
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) UpdatePreferences(ctx context.Context, profile *model.PreferenceProfile) error {
	if err := s.primary.UpdatePreferences(ctx, profile); err != nil {
		return err
	}
	// Invalidate; next read re-populates with the store's timestamps.
	s.rdb.Del(ctx, preferencesKey(profile.BuyerID))
	return nil
}

func (s *CachedStore) PutPrediction(ctx context.Context, record *model.PredictionRecord) error {
	if err := s.primary.PutPrediction(ctx, record); err != nil {
		return err
	}
	s.cachePrediction(ctx, record)
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	return s.primary.GetListing(ctx, id)
}

func (s *CachedStore) LogSearch(ctx context.Context, entry *model.SearchLogEntry) error {
	return s.primary.LogSearch(ctx, entry)
}

// --- Cache helpers ---

func (s *CachedStore) cachePreferences(ctx context.Context, p *model.PreferenceProfile) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, preferencesKey(p.BuyerID), data, s.ttl)
	}
}

func (s *CachedStore) cachePrediction(ctx context.Context, r *model.PredictionRecord) {
	if data, err := json.Marshal(r); err == nil {
		s.rdb.Set(ctx, predictionKey(r.Key()), data, s.ttl)
	}
}

const listingsKey = "listings:available"

func preferencesKey(buyerID string) string { return fmt.Sprintf("preferences:%s", buyerID) }

func predictionKey(k model.PredictionKey) string {
	return fmt.Sprintf("prediction:%s:%s:%d:%s", k.CropType, k.Region, k.HorizonDays, k.Day)
}
