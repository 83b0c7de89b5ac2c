package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/agrogram/search-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// list and map columns are JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const listingColumns = `l.id, l.title, l.description,
       c.id, c.name, c.keywords,
       l.price::TEXT, l.quantity, l.quality_grade, l.location,
       l.demand_score, l.price_trend, l.search_keywords,
       l.status, l.created_at`

func (s *PostgresStore) ListAvailable(ctx context.Context) ([]model.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingColumns+`
		 FROM listings l
		 JOIN categories c ON c.id = l.category_id
		 WHERE l.status = $1
		 ORDER BY l.created_at DESC`, model.StatusAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+`
		 FROM listings l
		 JOIN categories c ON c.id = l.category_id
		 WHERE l.id = $1`, id)

	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	return l, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row rowScanner) (*model.Listing, error) {
	var l model.Listing
	var price string
	var catKeywords, searchKeywords []byte

	if err := row.Scan(&l.ID, &l.Title, &l.Description,
		&l.Category.ID, &l.Category.Name, &catKeywords,
		&price, &l.Quantity, &l.QualityGrade, &l.Location,
		&l.DemandScore, &l.PriceTrend, &searchKeywords,
		&l.Status, &l.CreatedAt); err != nil {
		return nil, err
	}

	l.Price, _ = decimal.NewFromString(price)
	if err := json.Unmarshal(catKeywords, &l.Category.Keywords); err != nil {
		return nil, fmt.Errorf("decode category keywords: %w", err)
	}
	if err := json.Unmarshal(searchKeywords, &l.SearchKeywords); err != nil {
		return nil, fmt.Errorf("decode search keywords: %w", err)
	}
	return &l, nil
}

// GetPreferences lazily creates an empty profile on first access so that a
// buyer's first preference read never 404s.
func (s *PostgresStore) GetPreferences(ctx context.Context, buyerID string) (*model.PreferenceProfile, error) {
	p, err := s.getPreferences(ctx, buyerID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get preferences %s: %w", buyerID, err)
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO buyer_preferences
		   (buyer_id, preferred_categories, quality_preference, preferred_location, created_at, updated_at)
		 VALUES ($1, '[]'::JSONB, '', '', $2, $2)
		 ON CONFLICT (buyer_id) DO NOTHING`, buyerID, now)
	if err != nil {
		return nil, fmt.Errorf("create preferences %s: %w", buyerID, err)
	}
	return s.getPreferences(ctx, buyerID)
}

func (s *PostgresStore) getPreferences(ctx context.Context, buyerID string) (*model.PreferenceProfile, error) {
	var p model.PreferenceProfile
	var categories []byte
	var minS, maxS *string

	err := s.pool.QueryRow(ctx,
		`SELECT buyer_id, preferred_categories, quality_preference,
		        price_range_min::TEXT, price_range_max::TEXT,
		        preferred_location, created_at, updated_at
		 FROM buyer_preferences WHERE buyer_id = $1`, buyerID).
		Scan(&p.BuyerID, &categories, &p.QualityPreference,
			&minS, &maxS,
			&p.PreferredLocation, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(categories, &p.PreferredCategories); err != nil {
		return nil, fmt.Errorf("decode preferred categories: %w", err)
	}
	if minS != nil {
		d, _ := decimal.NewFromString(*minS)
		p.PriceRangeMin = &d
	}
	if maxS != nil {
		d, _ := decimal.NewFromString(*maxS)
		p.PriceRangeMax = &d
	}
	return &p, nil
}

func (s *PostgresStore) UpdatePreferences(ctx context.Context, profile *model.PreferenceProfile) error {
	categories, err := json.Marshal(profile.PreferredCategories)
	if err != nil {
		return fmt.Errorf("encode preferred categories: %w", err)
	}

	var minS, maxS *string
	if profile.PriceRangeMin != nil {
		s := profile.PriceRangeMin.String()
		minS = &s
	}
	if profile.PriceRangeMax != nil {
		s := profile.PriceRangeMax.String()
		maxS = &s
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO buyer_preferences
		   (buyer_id, preferred_categories, quality_preference,
		    price_range_min, price_range_max, preferred_location,
		    created_at, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $7)
		 ON CONFLICT (buyer_id) DO UPDATE SET
		   preferred_categories = EXCLUDED.preferred_categories,
		   quality_preference   = EXCLUDED.quality_preference,
		   price_range_min      = EXCLUDED.price_range_min,
		   price_range_max      = EXCLUDED.price_range_max,
		   preferred_location   = EXCLUDED.preferred_location,
		   updated_at           = EXCLUDED.updated_at`,
		profile.BuyerID, categories, profile.QualityPreference,
		minS, maxS, profile.PreferredLocation,
		time.Now().UTC(),
	)
	return err
}

func (s *PostgresStore) GetPrediction(ctx context.Context, key model.PredictionKey) (*model.PredictionRecord, error) {
	var r model.PredictionRecord
	var price string
	var factors, sources []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, crop_type, region, horizon_days, prediction_date,
		        predicted_price::TEXT, confidence, trend, factors,
		        prediction_type, data_sources, created_at
		 FROM price_predictions
		 WHERE crop_type = $1 AND region = $2 AND horizon_days = $3 AND prediction_date = $4`,
		key.CropType, key.Region, key.HorizonDays, key.Day).
		Scan(&r.ID, &r.CropType, &r.Region, &r.HorizonDays, &r.PredictionDate,
			&price, &r.Confidence, &r.Trend, &factors,
			&r.PredictionType, &sources, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get prediction %s/%s: %w", key.CropType, key.Region, err)
	}

	r.PredictedPrice, _ = decimal.NewFromString(price)
	if err := json.Unmarshal(factors, &r.Factors); err != nil {
		return nil, fmt.Errorf("decode prediction factors: %w", err)
	}
	if err := json.Unmarshal(sources, &r.DataSources); err != nil {
		return nil, fmt.Errorf("decode data sources: %w", err)
	}
	return &r, nil
}

// PutPrediction upserts on the (crop, region, horizon, day) key so at most
// one record exists per key per calendar day. Last writer wins.
func (s *PostgresStore) PutPrediction(ctx context.Context, record *model.PredictionRecord) error {
	factors, err := json.Marshal(record.Factors)
	if err != nil {
		return fmt.Errorf("encode prediction factors: %w", err)
	}
	sources, err := json.Marshal(record.DataSources)
	if err != nil {
		return fmt.Errorf("encode data sources: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO price_predictions
		   (id, crop_type, region, horizon_days, prediction_date,
		    predicted_price, confidence, trend, factors,
		    prediction_type, data_sources, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (crop_type, region, horizon_days, prediction_date) DO UPDATE SET
		   id              = EXCLUDED.id,
		   predicted_price = EXCLUDED.predicted_price,
		   confidence      = EXCLUDED.confidence,
		   trend           = EXCLUDED.trend,
		   factors         = EXCLUDED.factors,
		   prediction_type = EXCLUDED.prediction_type,
		   data_sources    = EXCLUDED.data_sources,
		   created_at      = EXCLUDED.created_at`,
		record.ID, record.CropType, record.Region, record.HorizonDays, record.PredictionDate,
		record.PredictedPrice.String(), record.Confidence, record.Trend, factors,
		record.PredictionType, sources, record.CreatedAt,
	)
	return err
}

func (s *PostgresStore) LogSearch(ctx context.Context, entry *model.SearchLogEntry) error {
	filters, err := json.Marshal(entry.Filters)
	if err != nil {
		return fmt.Errorf("encode search filters: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO search_logs
		   (id, buyer_id, query, filters, results_count, is_successful, duration, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.BuyerID, entry.Query, filters,
		entry.ResultsCount, entry.IsSuccessful, entry.Duration, entry.CreatedAt,
	)
	return err
}
