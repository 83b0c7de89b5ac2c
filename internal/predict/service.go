// Package predict implements the crop price prediction engine: regression
// over marketplace features with a day-keyed prediction cache and a
// deterministic fallback heuristic. A prediction request never fails with a
// raw computation error; it degrades to the fallback instead.
package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agrogram/search-engine/internal/metrics"
	"github.com/agrogram/search-engine/internal/model"
	"github.com/agrogram/search-engine/internal/regress"
	"github.com/agrogram/search-engine/internal/store"
)

const dayFormat = "2006-01-02"

// priceEpsilon floors estimator output so a prediction is always strictly
// positive.
const priceEpsilon = 0.1

// Trend label cut points over the short-term trend factor.
const (
	trendVolatileCut = 5.0
	trendStableBand  = 0.5
)

// Horizon bounds accepted by the API.
const (
	minHorizonDays     = 1
	maxHorizonDays     = 365
	defaultHorizonDays = 30
)

const maxBulkPredictions = 20

// Service computes, caches, and serves price predictions. The estimator is
// trained once at startup and read-only afterwards; concurrent requests for
// the same cache key serialize on a per-key lock so the expensive
// computation runs once per key per day.
type Service struct {
	store store.Store
	est   regress.Estimator
	hub   *WSHub // optional, broadcasts new predictions

	defaultHorizon int

	now func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.Mutex
	inflight map[model.PredictionKey]*keyLock
}

// NewService creates a new prediction service. Pass nil for hub if
// WebSocket broadcasting is not needed; a non-positive defaultHorizon
// falls back to the package default.
func NewService(st store.Store, est regress.Estimator, hub *WSHub, defaultHorizon int) *Service {
	if defaultHorizon <= 0 {
		defaultHorizon = defaultHorizonDays
	}
	return &Service{
		store:          st,
		est:            est,
		hub:            hub,
		defaultHorizon: defaultHorizon,
		now:            time.Now,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		inflight:       make(map[model.PredictionKey]*keyLock),
	}
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (s *Service) lockKey(key model.PredictionKey) *keyLock {
	s.mu.Lock()
	l, ok := s.inflight[key]
	if !ok {
		l = &keyLock{}
		s.inflight[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Service) unlockKey(key model.PredictionKey, l *keyLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.inflight, key)
	}
	s.mu.Unlock()
}

// jitter returns a uniform random value in [-scale, scale].
func (s *Service) jitter(scale float64) float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return (s.rng.Float64()*2 - 1) * scale
}

// Predict returns the prediction for (cropType, region, horizonDays),
// computing and caching it if no record exists for today. The returned
// source is "cached" or "new_prediction". Predict never fails: computation
// errors degrade to the fallback heuristic.
func (s *Service) Predict(ctx context.Context, cropType, region string, horizonDays int) (*model.PredictionRecord, string) {
	now := s.now().UTC()
	key := model.PredictionKey{
		CropType:    cropType,
		Region:      region,
		HorizonDays: horizonDays,
		Day:         now.Format(dayFormat),
	}

	l := s.lockKey(key)
	defer s.unlockKey(key, l)

	if r, err := s.store.GetPrediction(ctx, key); err == nil {
		metrics.PredictionsTotal.WithLabelValues(model.SourceCached).Inc()
		return r, model.SourceCached
	} else if !errors.Is(err, store.ErrNotFound) {
		slog.Warn("prediction cache read failed", "crop", cropType, "err", err)
	}

	r, err := s.compute(ctx, cropType, region, horizonDays, now)
	if err != nil {
		slog.Warn("prediction failed, using fallback",
			"crop", cropType, "region", region, "horizon", horizonDays, "err", err)
		metrics.PredictionFallbacks.Inc()
		r = s.fallback(cropType, region, horizonDays, now)
	}

	if err := s.store.PutPrediction(ctx, r); err != nil {
		// Serve the prediction anyway; the next request recomputes.
		slog.Error("prediction store failed", "crop", cropType, "err", err)
	}

	if s.hub != nil {
		s.hub.BroadcastPrediction(r)
	}

	metrics.PredictionsTotal.WithLabelValues(model.SourceNew).Inc()
	slog.Info("prediction computed",
		"crop", cropType,
		"region", region,
		"horizon", horizonDays,
		"price", r.PredictedPrice.String(),
		"type", r.PredictionType,
	)
	return r, model.SourceNew
}

func (s *Service) compute(ctx context.Context, cropType, region string, horizonDays int, now time.Time) (*model.PredictionRecord, error) {
	if s.est == nil {
		return nil, fmt.Errorf("no estimator configured")
	}

	listings, err := s.store.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}

	snap := snapshot(listings, cropType)
	vec := features(snap, now.Month(), region)

	raw, err := s.est.Predict(vec)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}
	if raw < priceEpsilon {
		raw = priceEpsilon
	}

	return &model.PredictionRecord{
		ID:             uuid.New().String(),
		CropType:       cropType,
		Region:         region,
		HorizonDays:    horizonDays,
		PredictionDate: now.Format(dayFormat),
		PredictedPrice: decimal.NewFromFloat(raw).Round(2),
		Confidence:     confidence(horizonDays),
		Trend:          trendLabel(snap.trendFactor),
		Factors:        factorMap(vec),
		PredictionType: model.PredictionStandard,
		DataSources:    []string{"regression_model", "marketplace_listings"},
		CreatedAt:      now,
	}, nil
}

// confidence decreases with horizon: near 0.8 for tomorrow, floored at 0.1.
func confidence(horizonDays int) float64 {
	return math.Max(0.1, 0.8-float64(horizonDays)/100)
}

func trendLabel(trendFactor float64) string {
	switch {
	case math.Abs(trendFactor) > trendVolatileCut:
		return model.TrendVolatile
	case trendFactor > trendStableBand:
		return model.TrendUp
	case trendFactor < -trendStableBand:
		return model.TrendDown
	}
	return model.TrendStable
}

// --- Request/Response types ---

// PredictRequest is the JSON body for POST /api/v1/predictions. Either
// prediction_days or predictionPeriod sets the horizon; both absent means
// the default horizon.
type PredictRequest struct {
	CropType         string `json:"cropType"`
	Region           string `json:"region,omitempty"`
	Market           string `json:"market,omitempty"` // alias for region
	PredictionPeriod string `json:"predictionPeriod,omitempty"`
	PredictionDays   int    `json:"prediction_days,omitempty"`
}

// DailyPoint is one point of the short daily prediction series.
type DailyPoint struct {
	Date           string          `json:"date"`
	PredictedPrice decimal.Decimal `json:"predicted_price"`
}

// PriceRange is the expected price band around the headline prediction.
type PriceRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
	Avg decimal.Decimal `json:"avg"`
}

// PredictResponse is the JSON body returned from POST /api/v1/predictions.
type PredictResponse struct {
	CropType       string          `json:"crop_type"`
	Region         string          `json:"region"`
	HorizonDays    int             `json:"horizon_days"`
	PredictedPrice decimal.Decimal `json:"predicted_price"`
	Confidence     float64         `json:"confidence"`
	Trend          string          `json:"trend"`
	Predictions    []DailyPoint    `json:"predictions"`
	PriceRange     PriceRange      `json:"price_range"`
	PredictionType string          `json:"prediction_type"`
	DataSources    []string        `json:"data_sources"`
	Source         string          `json:"source"`
	Timestamp      time.Time       `json:"timestamp"`
}

// BulkPredictRequest is the JSON body for POST /api/v1/predictions/bulk.
type BulkPredictRequest struct {
	Predictions []PredictRequest `json:"predictions"`
}

// BulkPredictEntry is one entry of a bulk response. Error is set only for
// entries that failed validation; computation failures degrade to the
// fallback like single predictions.
type BulkPredictEntry struct {
	*PredictResponse
	Error string `json:"error,omitempty"`
}

// BulkPredictResponse is the JSON body returned from the bulk endpoint.
type BulkPredictResponse struct {
	Results []BulkPredictEntry `json:"results"`
	Count   int                `json:"count"`
}

func (r PredictRequest) region() string {
	if r.Region != "" {
		return r.Region
	}
	if r.Market != "" {
		return r.Market
	}
	return "Global"
}

func (r PredictRequest) horizon(fallback int) (int, error) {
	if r.PredictionDays != 0 {
		if r.PredictionDays < minHorizonDays || r.PredictionDays > maxHorizonDays {
			return 0, fmt.Errorf("prediction_days must be between %d and %d", minHorizonDays, maxHorizonDays)
		}
		return r.PredictionDays, nil
	}
	if r.PredictionPeriod != "" {
		days, ok := model.PeriodDays[r.PredictionPeriod]
		if !ok {
			return 0, fmt.Errorf("unknown predictionPeriod %q", r.PredictionPeriod)
		}
		return days, nil
	}
	return fallback, nil
}

func (s *Service) buildResponse(r *model.PredictionRecord, source string, now time.Time) *PredictResponse {
	// Short daily series: one point per day up to a week out.
	points := r.HorizonDays
	if points > 7 {
		points = 7
	}
	daily := make([]DailyPoint, 0, points)
	for i := 0; i < points; i++ {
		p := r.PredictedPrice.Mul(decimal.NewFromFloat(1 + s.jitter(0.05))).Round(2)
		daily = append(daily, DailyPoint{
			Date:           now.AddDate(0, 0, i).Format(dayFormat),
			PredictedPrice: p,
		})
	}

	return &PredictResponse{
		CropType:       r.CropType,
		Region:         r.Region,
		HorizonDays:    r.HorizonDays,
		PredictedPrice: r.PredictedPrice,
		Confidence:     r.Confidence,
		Trend:          r.Trend,
		Predictions:    daily,
		PriceRange: PriceRange{
			Min: r.PredictedPrice.Mul(decimal.NewFromFloat(0.85)).Round(2),
			Max: r.PredictedPrice.Mul(decimal.NewFromFloat(1.15)).Round(2),
			Avg: r.PredictedPrice,
		},
		PredictionType: r.PredictionType,
		DataSources:    r.DataSources,
		Source:         source,
		Timestamp:      now,
	}
}

// --- HTTP Handlers ---

// HandlePredict handles POST /api/v1/predictions.
func (s *Service) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.CropType == "" {
		writeError(w, "cropType is required", http.StatusBadRequest)
		return
	}
	horizon, err := req.horizon(s.defaultHorizon)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, source := s.Predict(r.Context(), req.CropType, req.region(), horizon)
	resp := s.buildResponse(record, source, s.now().UTC())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleBulkPredict handles POST /api/v1/predictions/bulk. Each entry is
// processed independently; one bad entry never fails the batch.
func (s *Service) HandleBulkPredict(w http.ResponseWriter, r *http.Request) {
	var req BulkPredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Predictions) == 0 {
		writeError(w, "predictions is required", http.StatusBadRequest)
		return
	}
	if len(req.Predictions) > maxBulkPredictions {
		writeError(w, fmt.Sprintf("at most %d predictions per request", maxBulkPredictions), http.StatusBadRequest)
		return
	}

	now := s.now().UTC()
	results := make([]BulkPredictEntry, 0, len(req.Predictions))
	for _, entry := range req.Predictions {
		if entry.CropType == "" {
			results = append(results, BulkPredictEntry{Error: "cropType is required"})
			continue
		}
		horizon, err := entry.horizon(s.defaultHorizon)
		if err != nil {
			results = append(results, BulkPredictEntry{Error: err.Error()})
			continue
		}
		record, source := s.Predict(r.Context(), entry.CropType, entry.region(), horizon)
		results = append(results, BulkPredictEntry{PredictResponse: s.buildResponse(record, source, now)})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(BulkPredictResponse{Results: results, Count: len(results)})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
