// Package store defines the persistence interface for the search and
// pricing engine. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache), and in-memory (for testing and development).
package store

import (
	"context"
	"errors"

	"github.com/agrogram/search-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. Listings are read-only from the
// engine's perspective: they are written by the marketplace CRUD surface
// and the analytics job, never by the engine.
type Store interface {
	// --- Listings ---

	// ListAvailable returns every AVAILABLE listing in creation order.
	ListAvailable(ctx context.Context) ([]model.Listing, error)

	// GetListing retrieves one listing by id.
	GetListing(ctx context.Context, id string) (*model.Listing, error)

	// --- Buyer preferences ---

	// GetPreferences returns the buyer's profile, creating an empty one
	// on first access.
	GetPreferences(ctx context.Context, buyerID string) (*model.PreferenceProfile, error)

	// UpdatePreferences persists the buyer's profile.
	UpdatePreferences(ctx context.Context, profile *model.PreferenceProfile) error

	// --- Prediction cache ---

	// GetPrediction returns the record stored under key, or ErrNotFound.
	GetPrediction(ctx context.Context, key model.PredictionKey) (*model.PredictionRecord, error)

	// PutPrediction stores a record under its key, replacing any existing
	// record for the same key (at most one per key per day).
	PutPrediction(ctx context.Context, record *model.PredictionRecord) error

	// --- Search log ---

	// LogSearch appends one analytics entry. Callers treat failures as
	// non-fatal: a search must never abort because logging failed.
	LogSearch(ctx context.Context, entry *model.SearchLogEntry) error
}
