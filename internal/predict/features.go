package predict

import (
	"strings"
	"time"

	"github.com/agrogram/search-engine/internal/model"
)

// Feature vector layout fed to the regression estimator. The order is fixed:
// the estimator is trained on vectors in this exact order.
var featureNames = []string{
	"demand_proxy",
	"seasonal_factor",
	"market_volatility",
	"quality_indicator",
	"location_factor",
}

// marketVolatility is a fixed volatility factor pending a real
// volatility feed.
const marketVolatility = 0.1

// seasonalFactors maps calendar month to a price multiplier reflecting
// typical harvest cycles.
var seasonalFactors = map[time.Month]float64{
	time.January: 1.1, time.February: 1.0, time.March: 0.9,
	time.April: 0.8, time.May: 0.9, time.June: 1.0,
	time.July: 1.1, time.August: 1.2, time.September: 1.1,
	time.October: 1.0, time.November: 0.9, time.December: 1.0,
}

func seasonalFactor(month time.Month) float64 {
	if f, ok := seasonalFactors[month]; ok {
		return f
	}
	return 1.0
}

// locationFactor prices urban regions above baseline and rural regions
// below, by substring match on the region name.
func locationFactor(region string) float64 {
	loc := strings.ToLower(region)
	switch {
	case loc == "":
		return 1.0
	case strings.Contains(loc, "urban") || strings.Contains(loc, "city"):
		return 1.2
	case strings.Contains(loc, "rural") || strings.Contains(loc, "village"):
		return 0.9
	}
	return 1.0
}

// marketSnapshot summarizes the available listings for one crop: the
// demand proxy, quality indicator, and short-term trend factor that feed
// the estimator and the trend label.
type marketSnapshot struct {
	demandProxy      float64
	qualityIndicator float64
	trendFactor      float64
}

// snapshot derives the crop's market snapshot from the available listings
// whose title or keywords mention the crop. With no matching listings it
// returns neutral values.
func snapshot(listings []model.Listing, cropType string) marketSnapshot {
	crop := strings.ToLower(cropType)
	snap := marketSnapshot{demandProxy: 0.5}

	var demandSum, trendSum float64
	var demandN, matched int
	for _, l := range listings {
		if !mentionsCrop(l, crop) {
			continue
		}
		matched++
		trendSum += l.PriceTrend
		if l.DemandScore != nil {
			demandSum += *l.DemandScore
			demandN++
		}
		if l.QualityGrade == model.QualityPremium {
			snap.qualityIndicator = 1.0
		}
	}

	if demandN > 0 {
		snap.demandProxy = demandSum / float64(demandN)
	}
	if matched > 0 {
		snap.trendFactor = trendSum / float64(matched)
	}
	return snap
}

func mentionsCrop(l model.Listing, crop string) bool {
	if strings.Contains(strings.ToLower(l.Title), crop) {
		return true
	}
	for _, kw := range l.SearchKeywords {
		if strings.ToLower(kw) == crop {
			return true
		}
	}
	return false
}

// features assembles the estimator input vector for one prediction.
func features(snap marketSnapshot, month time.Month, region string) []float64 {
	return []float64{
		snap.demandProxy,
		seasonalFactor(month),
		marketVolatility,
		snap.qualityIndicator,
		locationFactor(region),
	}
}

// factorMap records the feature values alongside the stored prediction so
// callers can see what drove it.
func factorMap(vec []float64) map[string]float64 {
	m := make(map[string]float64, len(vec))
	for i, name := range featureNames {
		if i < len(vec) {
			m[name] = vec[i]
		}
	}
	return m
}
