// Package insight derives per-listing market signals from stored listing
// fields. Everything here is pure: the same listing always yields the same
// insights, and no external data is consulted.
//
// The cut points are heuristics the marketplace has published to buyers for
// a long time; they are kept exact for compatibility, not refitted.
package insight

import (
	"github.com/agrogram/search-engine/internal/model"
)

const (
	demandHighCut   = 0.7
	demandMediumCut = 0.4

	stabilityStableCut   = 2.0 // |price_trend| percent
	stabilityModerateCut = 5.0

	supplyHighCut     = 100
	supplyModerateCut = 20
)

// For computes the market insights for one listing.
func For(l model.Listing) model.MarketInsights {
	return model.MarketInsights{
		DemandLevel:    demandLevel(l.DemandScore),
		PriceStability: priceStability(l.PriceTrend),
		BestTimeToBuy:  bestTimeToBuy(l.DemandScore, l.PriceTrend),
		SupplyOutlook:  supplyOutlook(l.Quantity),
	}
}

func demandLevel(score *float64) string {
	if score == nil {
		return model.DemandUnknown
	}
	switch {
	case *score > demandHighCut:
		return model.DemandHigh
	case *score > demandMediumCut:
		return model.DemandMedium
	default:
		return model.DemandLow
	}
}

func priceStability(trend float64) string {
	abs := trend
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < stabilityStableCut:
		return model.StabilityStable
	case abs < stabilityModerateCut:
		return model.StabilityModerate
	default:
		return model.StabilityVolatile
	}
}

// bestTimeToBuy: SOON when demand is high and the price is already rising
// (buy before it climbs further); NOW when demand is low and the price is
// falling; FLEXIBLE otherwise.
func bestTimeToBuy(score *float64, trend float64) string {
	level := demandLevel(score)
	switch {
	case level == model.DemandHigh && trend > 0:
		return model.BuySoon
	case level == model.DemandLow && trend < 0:
		return model.BuyNow
	default:
		return model.BuyFlexible
	}
}

func supplyOutlook(quantity int) string {
	switch {
	case quantity > supplyHighCut:
		return model.SupplyHigh
	case quantity > supplyModerateCut:
		return model.SupplyModerate
	default:
		return model.SupplyLow
	}
}
