// Package model defines the core domain types shared across the search
// and pricing engine. All monetary values use shopspring/decimal — never
// float64 for money. Scores, confidences, and model features stay float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing statuses. Only AVAILABLE listings are searchable.
const (
	StatusAvailable = "AVAILABLE"
	StatusSold      = "SOLD"
	StatusExpired   = "EXPIRED"
	StatusPending   = "PENDING"
)

// Quality grades.
const (
	QualityPremium  = "PREMIUM"
	QualityStandard = "STANDARD"
	QualityEconomy  = "ECONOMY"
	QualityOrganic  = "ORGANIC"
)

// ValidQuality reports whether q is a known quality grade.
func ValidQuality(q string) bool {
	switch q {
	case QualityPremium, QualityStandard, QualityEconomy, QualityOrganic:
		return true
	}
	return false
}

// Price band hints derived from query sentiment words.
const (
	PriceBandLow  = "LOW"
	PriceBandHigh = "HIGH"
)

// Category groups listings and carries a stored keyword list used for
// category-hint matching during ranking.
type Category struct {
	ID       int64    `json:"id" db:"id"`
	Name     string   `json:"name" db:"name"`
	Keywords []string `json:"keywords" db:"keywords"`
}

// Listing is one product offer on the marketplace. DemandScore and
// PriceTrend are produced by an external analytics job; the engine reads
// them but never writes them. DemandScore is nil when the job has not yet
// scored the listing.
type Listing struct {
	ID             string          `json:"id" db:"id"`
	Title          string          `json:"title" db:"title"`
	Description    string          `json:"description" db:"description"`
	Category       Category        `json:"category"`
	Price          decimal.Decimal `json:"price" db:"price"`
	Quantity       int             `json:"quantity" db:"quantity"`
	QualityGrade   string          `json:"quality_grade" db:"quality_grade"`
	Location       string          `json:"location" db:"location"`
	DemandScore    *float64        `json:"demand_score" db:"demand_score"` // [0,1], nil when unscored
	PriceTrend     float64         `json:"price_trend" db:"price_trend"`   // signed percent
	SearchKeywords []string        `json:"search_keywords" db:"search_keywords"`
	Status         string          `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Intent is the structured result of parsing a free-text query.
// Produced once per raw query; treated as immutable afterwards.
type Intent struct {
	Keywords      []string `json:"keywords"`
	CategoryHint  string   `json:"category_hint,omitempty"`
	QualityHint   string   `json:"quality_hint,omitempty"`
	PriceBandHint string   `json:"price_band_hint,omitempty"` // LOW or HIGH
	LocationHint  string   `json:"location_hint,omitempty"`
}

// Empty reports whether the intent carries no signal at all.
func (in Intent) Empty() bool {
	return len(in.Keywords) == 0 && in.CategoryHint == "" && in.QualityHint == "" &&
		in.PriceBandHint == "" && in.LocationHint == ""
}

// Sort keys accepted by the ranker.
const (
	SortRecent     = "recent"
	SortDemand     = "demand"
	SortPriceTrend = "price_trend"
	SortPriceLow   = "price_low"
	SortPriceHigh  = "price_high"
)

// Filters are the explicit narrowing filters supplied alongside a query.
// They always take precedence over intent-derived filters (hard AND).
type Filters struct {
	Category string           `json:"category,omitempty"` // numeric id or category name
	MinPrice *decimal.Decimal `json:"price_min,omitempty"`
	MaxPrice *decimal.Decimal `json:"price_max,omitempty"`
	Quality  string           `json:"quality,omitempty"`
	Location string           `json:"location,omitempty"`
	Sort     string           `json:"sort,omitempty"`
	Limit    int              `json:"limit,omitempty"`
}

// Empty reports whether no explicit filter is set (Sort and Limit are
// presentation knobs, not filters).
func (f Filters) Empty() bool {
	return f.Category == "" && f.MinPrice == nil && f.MaxPrice == nil &&
		f.Quality == "" && f.Location == ""
}

// PreferenceProfile holds one buyer's stored search preferences. Created
// lazily on first access; mutated only by the buyer.
type PreferenceProfile struct {
	BuyerID             string           `json:"buyer_id" db:"buyer_id"`
	PreferredCategories []string         `json:"preferred_categories"` // category names
	QualityPreference   string           `json:"quality_preference,omitempty"`
	PriceRangeMin       *decimal.Decimal `json:"price_range_min,omitempty"`
	PriceRangeMax       *decimal.Decimal `json:"price_range_max,omitempty"`
	PreferredLocation   string           `json:"preferred_location,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// HasPricePreference reports whether both price bounds are set.
func (p PreferenceProfile) HasPricePreference() bool {
	return p.PriceRangeMin != nil && p.PriceRangeMax != nil
}

// Empty reports whether the profile restricts nothing (personalization
// becomes a pass-through).
func (p PreferenceProfile) Empty() bool {
	return len(p.PreferredCategories) == 0 && p.QualityPreference == "" &&
		!p.HasPricePreference() && p.PreferredLocation == ""
}

// Prediction trend labels.
const (
	TrendUp       = "UP"
	TrendDown     = "DOWN"
	TrendStable   = "STABLE"
	TrendVolatile = "VOLATILE"
)

// Prediction provenance tags.
const (
	SourceCached = "cached"
	SourceNew    = "new_prediction"

	PredictionStandard = "standard"
	PredictionFallback = "fallback"
)

// PredictionKey identifies one cached prediction record: at most one record
// exists per key per calendar day.
type PredictionKey struct {
	CropType    string
	Region      string
	HorizonDays int
	Day         string // YYYY-MM-DD, UTC
}

// PredictionRecord is one stored price prediction.
type PredictionRecord struct {
	ID             string             `json:"id" db:"id"`
	CropType       string             `json:"crop_type" db:"crop_type"`
	Region         string             `json:"region" db:"region"`
	HorizonDays    int                `json:"horizon_days" db:"horizon_days"`
	PredictionDate string             `json:"prediction_date" db:"prediction_date"` // YYYY-MM-DD
	PredictedPrice decimal.Decimal    `json:"predicted_price" db:"predicted_price"`
	Confidence     float64            `json:"confidence" db:"confidence"` // [0,1]
	Trend          string             `json:"trend" db:"trend"`
	Factors        map[string]float64 `json:"factors" db:"factors"`
	PredictionType string             `json:"prediction_type" db:"prediction_type"` // standard or fallback
	DataSources    []string           `json:"data_sources" db:"data_sources"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
}

// Key returns the cache key this record is stored under.
func (r *PredictionRecord) Key() PredictionKey {
	return PredictionKey{
		CropType:    r.CropType,
		Region:      r.Region,
		HorizonDays: r.HorizonDays,
		Day:         r.PredictionDate,
	}
}

// PeriodDays maps the prediction period presets accepted by the API to
// horizon days.
var PeriodDays = map[string]int{
	"1 Week":   7,
	"1 Month":  30,
	"3 Months": 90,
	"6 Months": 180,
	"1 Year":   365,
}

// SearchLogEntry is one analytics record of a search. Write-only from the
// engine's perspective.
type SearchLogEntry struct {
	ID           string            `json:"id" db:"id"`
	BuyerID      string            `json:"buyer_id,omitempty" db:"buyer_id"`
	Query        string            `json:"query" db:"query"`
	Filters      map[string]string `json:"filters" db:"filters"`
	ResultsCount int               `json:"results_count" db:"results_count"`
	IsSuccessful bool              `json:"is_successful" db:"is_successful"`
	Duration     float64           `json:"duration" db:"duration"` // seconds
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

// Market insight levels.
const (
	DemandHigh    = "HIGH"
	DemandMedium  = "MEDIUM"
	DemandLow     = "LOW"
	DemandUnknown = "UNKNOWN"

	StabilityStable   = "STABLE"
	StabilityModerate = "MODERATE"
	StabilityVolatile = "VOLATILE"

	BuySoon     = "SOON"
	BuyNow      = "NOW"
	BuyFlexible = "FLEXIBLE"

	SupplyHigh     = "HIGH"
	SupplyModerate = "MODERATE"
	SupplyLow      = "LOW"
)

// MarketInsights are the per-listing heuristic signals shown to buyers.
type MarketInsights struct {
	DemandLevel    string `json:"demand_level"`
	PriceStability string `json:"price_stability"`
	BestTimeToBuy  string `json:"best_time_to_buy"`
	SupplyOutlook  string `json:"supply_outlook"`
}

// ListingView is a listing as returned from search, annotated with market
// insights.
type ListingView struct {
	Listing
	MarketInsights MarketInsights `json:"market_insights"`
}
