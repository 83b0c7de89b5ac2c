package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/agrogram/search-engine/internal/model"
	"github.com/agrogram/search-engine/internal/store"
)

type stubEstimator struct {
	val float64
	err error
}

func (e stubEstimator) Predict(_ []float64) (float64, error) { return e.val, e.err }

func newTestService(t *testing.T, est stubEstimator) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	s := NewService(st, est, nil, 0)
	s.now = func() time.Time {
		return time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)
	}
	return s, st
}

func TestPredict_SecondCallSameDayIsCached(t *testing.T) {
	s, _ := newTestService(t, stubEstimator{val: 52.30})
	ctx := context.Background()

	first, source := s.Predict(ctx, "Maize", "Central Kenya", 30)
	if source != model.SourceNew {
		t.Fatalf("first call source = %q, want %q", source, model.SourceNew)
	}

	second, source := s.Predict(ctx, "Maize", "Central Kenya", 30)
	if source != model.SourceCached {
		t.Fatalf("second call source = %q, want %q", source, model.SourceCached)
	}
	if !second.PredictedPrice.Equal(first.PredictedPrice) {
		t.Errorf("cached price %s != original %s", second.PredictedPrice, first.PredictedPrice)
	}
}

func TestPredict_DistinctKeysDoNotShareCache(t *testing.T) {
	s, _ := newTestService(t, stubEstimator{val: 52.30})
	ctx := context.Background()

	s.Predict(ctx, "Maize", "Central Kenya", 30)

	if _, source := s.Predict(ctx, "Maize", "Central Kenya", 90); source != model.SourceNew {
		t.Errorf("different horizon should miss the cache, got source %q", source)
	}
	if _, source := s.Predict(ctx, "Rice", "Central Kenya", 30); source != model.SourceNew {
		t.Errorf("different crop should miss the cache, got source %q", source)
	}
}

func TestPredict_NewDayRecomputes(t *testing.T) {
	s, _ := newTestService(t, stubEstimator{val: 52.30})
	ctx := context.Background()

	s.Predict(ctx, "Maize", "Central Kenya", 30)

	s.now = func() time.Time {
		return time.Date(2025, time.March, 16, 10, 0, 0, 0, time.UTC)
	}
	if _, source := s.Predict(ctx, "Maize", "Central Kenya", 30); source != model.SourceNew {
		t.Errorf("next-day call should recompute, got source %q", source)
	}
}

func TestConfidence_MonotoneDecay(t *testing.T) {
	horizons := []int{1, 7, 30, 90, 180, 365}
	prev := 1.0
	for _, h := range horizons {
		c := confidence(h)
		if c > prev {
			t.Errorf("confidence(%d) = %v exceeds confidence at shorter horizon %v", h, c, prev)
		}
		if c < 0.1 || c > 0.8 {
			t.Errorf("confidence(%d) = %v out of [0.1, 0.8]", h, c)
		}
		prev = c
	}
	if got := confidence(30); got != 0.5 {
		t.Errorf("confidence(30) = %v, want 0.5", got)
	}
	if got := confidence(365); got != 0.1 {
		t.Errorf("confidence(365) = %v, want floor 0.1", got)
	}
}

func TestPredict_FallbackOnEstimatorFailure(t *testing.T) {
	s, _ := newTestService(t, stubEstimator{err: errors.New("model unavailable")})

	r, source := s.Predict(context.Background(), "Maize", "Central Kenya", 30)
	if source != model.SourceNew {
		t.Fatalf("source = %q, want %q", source, model.SourceNew)
	}
	if r.PredictionType != model.PredictionFallback {
		t.Errorf("prediction_type = %q, want %q", r.PredictionType, model.PredictionFallback)
	}
	if r.Confidence != fallbackConfidence {
		t.Errorf("fallback confidence = %v, want %v", r.Confidence, fallbackConfidence)
	}
	if len(r.DataSources) != 1 || r.DataSources[0] != "fallback_model" {
		t.Errorf("data_sources = %v, want [fallback_model]", r.DataSources)
	}
	if !r.PredictedPrice.IsPositive() {
		t.Errorf("fallback price %s is not positive", r.PredictedPrice)
	}
}

func TestPredict_FallbackIsCachedToo(t *testing.T) {
	s, _ := newTestService(t, stubEstimator{err: errors.New("model unavailable")})
	ctx := context.Background()

	first, _ := s.Predict(ctx, "Cassava", "Rift Valley", 14)
	second, source := s.Predict(ctx, "Cassava", "Rift Valley", 14)
	if source != model.SourceCached {
		t.Fatalf("second call source = %q, want %q", source, model.SourceCached)
	}
	if !second.PredictedPrice.Equal(first.PredictedPrice) {
		t.Errorf("cached fallback price %s != original %s", second.PredictedPrice, first.PredictedPrice)
	}
}

func TestPredict_PriceAlwaysPositive(t *testing.T) {
	cases := []struct {
		name string
		est  stubEstimator
	}{
		{"negative estimator output", stubEstimator{val: -12.5}},
		{"zero estimator output", stubEstimator{val: 0}},
		{"estimator error", stubEstimator{err: errors.New("boom")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestService(t, tc.est)
			r, _ := s.Predict(context.Background(), "UnknownCrop", "", 30)
			if !r.PredictedPrice.IsPositive() {
				t.Errorf("predicted price %s is not positive", r.PredictedPrice)
			}
		})
	}
}

func TestPredict_UsesListingSnapshot(t *testing.T) {
	s, st := newTestService(t, stubEstimator{val: 47.10})
	demand := 0.9
	st.CreateListing(context.Background(), &model.Listing{
		ID:             "l1",
		Title:          "Fresh Maize",
		Price:          decimal.NewFromFloat(50),
		Quantity:       200,
		QualityGrade:   model.QualityPremium,
		DemandScore:    &demand,
		PriceTrend:     8.2,
		SearchKeywords: []string{"maize"},
		Status:         model.StatusAvailable,
		CreatedAt:      time.Now().UTC(),
	})

	r, _ := s.Predict(context.Background(), "Maize", "Nairobi City", 30)
	if r.Trend != model.TrendVolatile {
		t.Errorf("trend = %q, want %q for |trend factor| above threshold", r.Trend, model.TrendVolatile)
	}
	if got := r.Factors["demand_proxy"]; got != 0.9 {
		t.Errorf("demand_proxy factor = %v, want 0.9", got)
	}
	if got := r.Factors["quality_indicator"]; got != 1.0 {
		t.Errorf("quality_indicator factor = %v, want 1.0", got)
	}
	if got := r.Factors["location_factor"]; got != 1.2 {
		t.Errorf("location_factor = %v, want 1.2 for city region", got)
	}
}

func TestTrendLabel(t *testing.T) {
	cases := []struct {
		factor float64
		want   string
	}{
		{0, model.TrendStable},
		{0.3, model.TrendStable},
		{-0.3, model.TrendStable},
		{1.5, model.TrendUp},
		{-1.5, model.TrendDown},
		{6.0, model.TrendVolatile},
		{-6.0, model.TrendVolatile},
	}
	for _, tc := range cases {
		if got := trendLabel(tc.factor); got != tc.want {
			t.Errorf("trendLabel(%v) = %q, want %q", tc.factor, got, tc.want)
		}
	}
}

func TestFallbackSeasonMultiplier(t *testing.T) {
	cases := []struct {
		month time.Month
		want  float64
	}{
		{time.January, 1.2},
		{time.December, 1.2},
		{time.July, 0.8},
		{time.April, 1.0},
		{time.October, 1.0},
	}
	for _, tc := range cases {
		if got := fallbackSeasonMultiplier(tc.month); got != tc.want {
			t.Errorf("fallbackSeasonMultiplier(%v) = %v, want %v", tc.month, got, tc.want)
		}
	}
}

func TestLocationFactor(t *testing.T) {
	cases := []struct {
		region string
		want   float64
	}{
		{"", 1.0},
		{"Nairobi City", 1.2},
		{"urban district", 1.2},
		{"rural west", 0.9},
		{"Kakamega Village", 0.9},
		{"Central Kenya", 1.0},
	}
	for _, tc := range cases {
		if got := locationFactor(tc.region); got != tc.want {
			t.Errorf("locationFactor(%q) = %v, want %v", tc.region, got, tc.want)
		}
	}
}

func newTestRouter(s *Service) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/v1/predictions", s.HandlePredict)
	r.Post("/api/v1/predictions/bulk", s.HandleBulkPredict)
	return r
}

func TestHandlePredict(t *testing.T) {
	s, _ := newTestService(t, stubEstimator{val: 52.30})
	router := newTestRouter(s)

	body := `{"cropType": "Maize", "region": "Central Kenya", "predictionPeriod": "1 Month"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp PredictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.HorizonDays != 30 {
		t.Errorf("horizon_days = %d, want 30 for period %q", resp.HorizonDays, "1 Month")
	}
	if resp.Source != model.SourceNew {
		t.Errorf("source = %q, want %q", resp.Source, model.SourceNew)
	}
	if resp.PredictionType != model.PredictionStandard {
		t.Errorf("prediction_type = %q, want %q", resp.PredictionType, model.PredictionStandard)
	}
	if len(resp.Predictions) != 7 {
		t.Errorf("daily predictions = %d, want 7", len(resp.Predictions))
	}
	if !resp.PriceRange.Min.LessThan(resp.PriceRange.Max) {
		t.Errorf("price range min %s not below max %s", resp.PriceRange.Min, resp.PriceRange.Max)
	}
	if !resp.PriceRange.Avg.Equal(resp.PredictedPrice) {
		t.Errorf("price range avg %s != predicted price %s", resp.PriceRange.Avg, resp.PredictedPrice)
	}
}

func TestHandlePredict_ShortHorizonSeries(t *testing.T) {
	s, _ := newTestService(t, stubEstimator{val: 52.30})
	router := newTestRouter(s)

	body := `{"cropType": "Beans", "prediction_days": 3}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp PredictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Predictions) != 3 {
		t.Errorf("daily predictions = %d, want 3 for a 3-day horizon", len(resp.Predictions))
	}
}

func TestHandlePredict_ConfiguredDefaultHorizon(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewService(st, stubEstimator{val: 52.30}, nil, 14)
	s.now = func() time.Time {
		return time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)
	}
	router := newTestRouter(s)

	body := `{"cropType": "Maize", "region": "Central Kenya"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp PredictResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.HorizonDays != 14 {
		t.Errorf("horizon = %d, want configured default 14", resp.HorizonDays)
	}

	// Explicit horizons still win over the configured default.
	body = `{"cropType": "Maize", "region": "Central Kenya", "prediction_days": 7}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/predictions", bytes.NewBufferString(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.HorizonDays != 7 {
		t.Errorf("horizon = %d, want explicit 7", resp.HorizonDays)
	}
}

func TestHandlePredict_Validation(t *testing.T) {
	s, _ := newTestService(t, stubEstimator{val: 52.30})
	router := newTestRouter(s)

	cases := []struct {
		name string
		body string
	}{
		{"missing cropType", `{"region": "Central Kenya"}`},
		{"unknown period", `{"cropType": "Maize", "predictionPeriod": "2 Weeks"}`},
		{"horizon too long", `{"cropType": "Maize", "prediction_days": 400}`},
		{"negative horizon", `{"cropType": "Maize", "prediction_days": -5}`},
		{"malformed body", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions", bytes.NewBufferString(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleBulkPredict(t *testing.T) {
	s, _ := newTestService(t, stubEstimator{val: 52.30})
	router := newTestRouter(s)

	body := `{"predictions": [
		{"cropType": "Maize", "region": "Central Kenya"},
		{"region": "missing crop"},
		{"cropType": "Rice", "prediction_days": 7}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions/bulk", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: one bad entry must not fail the batch", rec.Code)
	}

	var resp BulkPredictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 3 {
		t.Fatalf("count = %d, want 3", resp.Count)
	}
	if resp.Results[0].Error != "" || resp.Results[0].PredictResponse == nil {
		t.Errorf("entry 0 should succeed, got error %q", resp.Results[0].Error)
	}
	if resp.Results[1].Error == "" {
		t.Errorf("entry 1 should carry a validation error")
	}
	if resp.Results[2].Error != "" || resp.Results[2].HorizonDays != 7 {
		t.Errorf("entry 2: error %q, horizon %d, want no error and horizon 7",
			resp.Results[2].Error, resp.Results[2].HorizonDays)
	}
}

func TestHandleBulkPredict_EmptyAndOversized(t *testing.T) {
	s, _ := newTestService(t, stubEstimator{val: 52.30})
	router := newTestRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions/bulk",
		bytes.NewBufferString(`{"predictions": []}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty batch: status = %d, want 400", rec.Code)
	}

	var many bytes.Buffer
	many.WriteString(`{"predictions": [`)
	for i := 0; i <= maxBulkPredictions; i++ {
		if i > 0 {
			many.WriteString(",")
		}
		many.WriteString(`{"cropType": "Maize"}`)
	}
	many.WriteString(`]}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/predictions/bulk", &many)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized batch: status = %d, want 400", rec.Code)
	}
}
