// Package search provides the HTTP handlers and orchestration for listing
// search: query parsing, ranking, personalization, market insight
// annotation, and best-effort search logging.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agrogram/search-engine/internal/insight"
	"github.com/agrogram/search-engine/internal/metrics"
	"github.com/agrogram/search-engine/internal/model"
	"github.com/agrogram/search-engine/internal/personalize"
	"github.com/agrogram/search-engine/internal/query"
	"github.com/agrogram/search-engine/internal/rank"
	"github.com/agrogram/search-engine/internal/store"
)

// Service handles search and preference operations.
type Service struct {
	store  store.Store
	limits rank.Limits
	now    func() time.Time
}

// NewService creates a new search service with the given result bounds.
// Zero-value limits fall back to the rank package defaults.
func NewService(st store.Store, limits rank.Limits) *Service {
	return &Service{store: st, limits: limits, now: time.Now}
}

// --- Request/Response types ---

// FilterRequest is the explicit filter block of a search request.
type FilterRequest struct {
	Category string           `json:"category,omitempty"`
	PriceMin *decimal.Decimal `json:"price_min,omitempty"`
	PriceMax *decimal.Decimal `json:"price_max,omitempty"`
	Quality  string           `json:"quality,omitempty"`
	Location string           `json:"location,omitempty"`
}

// SearchRequest is the JSON body for POST /api/v1/search.
type SearchRequest struct {
	Query   string        `json:"query,omitempty"`
	Filters FilterRequest `json:"filters,omitempty"`
	Sort    string        `json:"sort,omitempty"`
	Limit   int           `json:"limit,omitempty"`
	BuyerID string        `json:"buyer_id,omitempty"`
}

// SearchResponse is the JSON body returned from the search endpoints.
type SearchResponse struct {
	Results        []model.ListingView `json:"results"`
	TotalCount     int                 `json:"total_count"`
	Query          string              `json:"query"`
	FiltersApplied model.Filters       `json:"filters_applied"`
}

func (r SearchRequest) filters() model.Filters {
	return model.Filters{
		Category: r.Filters.Category,
		MinPrice: r.Filters.PriceMin,
		MaxPrice: r.Filters.PriceMax,
		Quality:  r.Filters.Quality,
		Location: r.Filters.Location,
		Sort:     r.Sort,
		Limit:    r.Limit,
	}
}

// Search runs the pipeline: parse, rank, personalize when a buyer is known,
// annotate with market insights. The search log write is best-effort and
// never fails the search.
func (s *Service) Search(ctx context.Context, raw string, f model.Filters, buyerID string) (*SearchResponse, error) {
	start := s.now()

	if err := rank.ValidateFilters(f); err != nil {
		return nil, err
	}

	intent := query.Parse(raw)

	listings, err := s.store.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}

	ranked := rank.RankLimited(listings, intent, f, s.limits)

	if buyerID != "" {
		prefs, err := s.store.GetPreferences(ctx, buyerID)
		if err != nil {
			slog.Warn("preference load failed, skipping personalization", "buyer", buyerID, "err", err)
		} else {
			ranked = personalize.Apply(ranked, *prefs)
		}
	}

	views := make([]model.ListingView, 0, len(ranked))
	for _, l := range ranked {
		views = append(views, model.ListingView{
			Listing:        l,
			MarketInsights: insight.For(l),
		})
	}

	duration := s.now().Sub(start)
	s.logSearch(ctx, raw, f, buyerID, len(views), duration)

	metrics.SearchesTotal.WithLabelValues(strconv.FormatBool(len(views) > 0)).Inc()
	metrics.SearchDuration.Observe(duration.Seconds())
	metrics.SearchResults.Observe(float64(len(views)))

	return &SearchResponse{
		Results:        views,
		TotalCount:     len(views),
		Query:          raw,
		FiltersApplied: f,
	}, nil
}

// logSearch records the search for analytics. Failures are logged and
// swallowed; an unavailable log sink must never abort a search.
func (s *Service) logSearch(ctx context.Context, raw string, f model.Filters, buyerID string, results int, duration time.Duration) {
	if raw == "" && f.Empty() {
		return
	}

	entry := &model.SearchLogEntry{
		ID:           uuid.New().String(),
		BuyerID:      buyerID,
		Query:        raw,
		Filters:      filterLogMap(f),
		ResultsCount: results,
		IsSuccessful: results > 0,
		Duration:     duration.Seconds(),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.LogSearch(ctx, entry); err != nil {
		slog.Warn("search log write failed", "err", err)
	}
}

func filterLogMap(f model.Filters) map[string]string {
	m := map[string]string{}
	if f.Category != "" {
		m["category"] = f.Category
	}
	if f.MinPrice != nil {
		m["price_min"] = f.MinPrice.String()
	}
	if f.MaxPrice != nil {
		m["price_max"] = f.MaxPrice.String()
	}
	if f.Quality != "" {
		m["quality"] = f.Quality
	}
	if f.Location != "" {
		m["location"] = f.Location
	}
	return m
}

// --- HTTP Handlers ---

// HandleSearch handles GET /api/v1/search with query parameters.
func (s *Service) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := model.Filters{
		Category: q.Get("category"),
		Quality:  q.Get("quality"),
		Location: q.Get("location"),
		Sort:     q.Get("sort"),
	}
	var err error
	if f.MinPrice, err = parsePriceParam(q.Get("price_min")); err != nil {
		writeError(w, "invalid price_min", http.StatusBadRequest)
		return
	}
	if f.MaxPrice, err = parsePriceParam(q.Get("price_max")); err != nil {
		writeError(w, "invalid price_max", http.StatusBadRequest)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	raw := q.Get("q")
	if raw == "" {
		raw = q.Get("query")
	}

	s.serveSearch(w, r, raw, f, q.Get("buyer_id"))
}

// HandleSearchPost handles POST /api/v1/search with a JSON body.
func (s *Service) HandleSearchPost(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.serveSearch(w, r, req.Query, req.filters(), req.BuyerID)
}

func (s *Service) serveSearch(w http.ResponseWriter, r *http.Request, raw string, f model.Filters, buyerID string) {
	resp, err := s.Search(r.Context(), raw, f, buyerID)
	if err != nil {
		switch {
		case errors.Is(err, rank.ErrInvalidPriceBounds),
			errors.Is(err, rank.ErrUnknownQuality),
			errors.Is(err, rank.ErrUnknownSort):
			writeError(w, err.Error(), http.StatusBadRequest)
		default:
			slog.Error("search failed", "err", err)
			writeError(w, "search failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func parsePriceParam(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// HandlePersonalized handles GET /api/v1/listings/personalized/{buyerID}.
// Returns the buyer's preference-matched listings ordered by demand then
// recency.
func (s *Service) HandlePersonalized(w http.ResponseWriter, r *http.Request) {
	buyerID := chi.URLParam(r, "buyerID")
	ctx := r.Context()

	prefs, err := s.store.GetPreferences(ctx, buyerID)
	if err != nil {
		slog.Error("preference load failed", "buyer", buyerID, "err", err)
		writeError(w, "failed to load preferences", http.StatusInternalServerError)
		return
	}

	listings, err := s.store.ListAvailable(ctx)
	if err != nil {
		slog.Error("listing load failed", "err", err)
		writeError(w, "failed to load listings", http.StatusInternalServerError)
		return
	}

	f := model.Filters{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	ranked := personalize.Apply(rank.RankLimited(listings, model.Intent{}, f, s.limits), *prefs)

	views := make([]model.ListingView, 0, len(ranked))
	for _, l := range ranked {
		views = append(views, model.ListingView{
			Listing:        l,
			MarketInsights: insight.For(l),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SearchResponse{
		Results:    views,
		TotalCount: len(views),
	})
}

// PreferenceRequest is the JSON body for POST /api/v1/preferences/{buyerID}.
// Absent fields keep their stored values (partial update).
type PreferenceRequest struct {
	PreferredCategories *[]string        `json:"preferred_categories,omitempty"`
	QualityPreference   *string          `json:"quality_preference,omitempty"`
	PriceRangeMin       *decimal.Decimal `json:"price_range_min,omitempty"`
	PriceRangeMax       *decimal.Decimal `json:"price_range_max,omitempty"`
	PreferredLocation   *string          `json:"preferred_location,omitempty"`
}

// HandleGetPreferences handles GET /api/v1/preferences/{buyerID}. The
// profile is created empty on first read.
func (s *Service) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	buyerID := chi.URLParam(r, "buyerID")

	prefs, err := s.store.GetPreferences(r.Context(), buyerID)
	if err != nil {
		slog.Error("preference load failed", "buyer", buyerID, "err", err)
		writeError(w, "failed to load preferences", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}

// HandleUpdatePreferences handles POST /api/v1/preferences/{buyerID}.
func (s *Service) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	buyerID := chi.URLParam(r, "buyerID")

	var req PreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	prefs, err := s.store.GetPreferences(ctx, buyerID)
	if err != nil {
		slog.Error("preference load failed", "buyer", buyerID, "err", err)
		writeError(w, "failed to load preferences", http.StatusInternalServerError)
		return
	}

	if req.PreferredCategories != nil {
		prefs.PreferredCategories = *req.PreferredCategories
	}
	if req.QualityPreference != nil {
		if *req.QualityPreference != "" && !model.ValidQuality(*req.QualityPreference) {
			writeError(w, "unknown quality grade", http.StatusBadRequest)
			return
		}
		prefs.QualityPreference = *req.QualityPreference
	}
	if req.PriceRangeMin != nil {
		prefs.PriceRangeMin = req.PriceRangeMin
	}
	if req.PriceRangeMax != nil {
		prefs.PriceRangeMax = req.PriceRangeMax
	}
	if req.PreferredLocation != nil {
		prefs.PreferredLocation = *req.PreferredLocation
	}

	if prefs.HasPricePreference() && prefs.PriceRangeMin.GreaterThan(*prefs.PriceRangeMax) {
		writeError(w, "price_range_min exceeds price_range_max", http.StatusBadRequest)
		return
	}

	if err := s.store.UpdatePreferences(ctx, prefs); err != nil {
		slog.Error("preference update failed", "buyer", buyerID, "err", err)
		writeError(w, "failed to update preferences", http.StatusInternalServerError)
		return
	}

	updated, err := s.store.GetPreferences(ctx, buyerID)
	if err != nil {
		updated = prefs
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
