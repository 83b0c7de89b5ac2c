// Package personalize re-shapes a ranked result set using a buyer's stored
// preference profile. Every active preference is a narrowing filter, not a
// re-ranking weight: a listing outside an active preference is dropped.
package personalize

import (
	"sort"
	"strings"

	"github.com/agrogram/search-engine/internal/model"
)

// Apply narrows the ranked listings to the profile's preferences and orders
// the survivors by descending demand score, then recency. A profile with no
// preferences set passes the input through with its order untouched.
func Apply(ranked []model.Listing, profile model.PreferenceProfile) []model.Listing {
	if profile.Empty() {
		return ranked
	}

	out := make([]model.Listing, 0, len(ranked))
	for _, l := range ranked {
		if !matches(l, profile) {
			continue
		}
		out = append(out, l)
	}

	sort.SliceStable(out, func(i, j int) bool {
		di, dj := demandOf(out[i]), demandOf(out[j])
		if di != dj {
			return di > dj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func matches(l model.Listing, p model.PreferenceProfile) bool {
	if len(p.PreferredCategories) > 0 && !inCategories(l, p.PreferredCategories) {
		return false
	}
	if p.QualityPreference != "" && l.QualityGrade != p.QualityPreference {
		return false
	}
	if p.HasPricePreference() {
		if l.Price.LessThan(*p.PriceRangeMin) || l.Price.GreaterThan(*p.PriceRangeMax) {
			return false
		}
	}
	if p.PreferredLocation != "" &&
		!strings.Contains(strings.ToLower(l.Location), strings.ToLower(p.PreferredLocation)) {
		return false
	}
	return true
}

func inCategories(l model.Listing, categories []string) bool {
	for _, c := range categories {
		if strings.EqualFold(l.Category.Name, c) {
			return true
		}
	}
	return false
}

func demandOf(l model.Listing) float64 {
	if l.DemandScore == nil {
		return 0
	}
	return *l.DemandScore
}
