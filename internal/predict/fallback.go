package predict

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agrogram/search-engine/internal/model"
)

// fallbackBasePrices are static per-crop reference prices used when the
// regression path fails. Unknown crops map to fallbackDefaultPrice.
var fallbackBasePrices = map[string]float64{
	"Maize":    48.50,
	"Rice":     55.25,
	"Beans":    65.80,
	"Cassava":  32.60,
	"Wheat":    42.75,
	"Tomatoes": 18.90,
	"Potatoes": 22.45,
}

const fallbackDefaultPrice = 40.00

const fallbackConfidence = 0.7

// fallbackSeasonMultiplier is a coarse 3-season adjustment: high season
// around the turn of the year, low season mid-year.
func fallbackSeasonMultiplier(month time.Month) float64 {
	switch month {
	case time.December, time.January, time.February:
		return 1.2
	case time.June, time.July, time.August:
		return 0.8
	}
	return 1.0
}

// fallback produces a deterministic-enough heuristic prediction. It cannot
// fail: every input yields a positive price.
func (s *Service) fallback(cropType, region string, horizonDays int, now time.Time) *model.PredictionRecord {
	base, ok := fallbackBasePrices[cropType]
	if !ok {
		base = fallbackDefaultPrice
	}

	price := base * fallbackSeasonMultiplier(now.Month())
	// Bounded jitter so repeated fallbacks do not look suspiciously flat.
	price *= 1 + s.jitter(0.1)

	return &model.PredictionRecord{
		ID:             uuid.New().String(),
		CropType:       cropType,
		Region:         region,
		HorizonDays:    horizonDays,
		PredictionDate: now.Format(dayFormat),
		PredictedPrice: decimal.NewFromFloat(price).Round(2),
		Confidence:     fallbackConfidence,
		Trend:          model.TrendStable,
		Factors: map[string]float64{
			"base_price":        base,
			"seasonal_factor":   fallbackSeasonMultiplier(now.Month()),
			"horizon_days":      float64(horizonDays),
			"location_factor":   locationFactor(region),
			"market_volatility": marketVolatility,
		},
		PredictionType: model.PredictionFallback,
		DataSources:    []string{"fallback_model"},
		CreatedAt:      now,
	}
}
