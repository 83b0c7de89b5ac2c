// Package rank orders and narrows marketplace listings against a parsed
// query intent and a set of explicit filters.
//
// The pipeline is staged: keyword relevance, intent narrows, explicit
// filters, sort, limit. Each stage is independent; a stage whose trigger is
// absent is skipped. All narrowing stages are pure set filters, so they
// commute with each other and with the explicit filter stage.
package rank

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/agrogram/search-engine/internal/model"
)

var (
	// ErrInvalidPriceBounds is returned when price_min exceeds price_max
	// or a bound is negative.
	ErrInvalidPriceBounds = errors.New("rank: invalid price bounds")

	// ErrUnknownQuality is returned for a quality filter outside the
	// known grade enum.
	ErrUnknownQuality = errors.New("rank: unknown quality grade")

	// ErrUnknownSort is returned for an unrecognized sort key.
	ErrUnknownSort = errors.New("rank: unknown sort key")
)

const (
	// DefaultLimit is the result cap when the caller does not set one.
	DefaultLimit = 20

	// MaxLimit bounds caller-supplied limits.
	MaxLimit = 100
)

// Limits bounds result counts. Zero fields fall back to the package
// defaults, so the zero value is usable.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits are the stock result bounds.
var DefaultLimits = Limits{Default: DefaultLimit, Max: MaxLimit}

// Relevance weights for keyword matches. Title matches dominate, stored
// search keywords count more than description prose.
const (
	titleWeight       = 3
	keywordListWeight = 2
	descriptionWeight = 1
)

// ValidateFilters rejects malformed explicit filters before any ranking
// work happens.
func ValidateFilters(f model.Filters) error {
	if f.MinPrice != nil && f.MinPrice.IsNegative() {
		return ErrInvalidPriceBounds
	}
	if f.MaxPrice != nil && f.MaxPrice.IsNegative() {
		return ErrInvalidPriceBounds
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return ErrInvalidPriceBounds
	}
	if f.Quality != "" && !model.ValidQuality(f.Quality) {
		return ErrUnknownQuality
	}
	switch f.Sort {
	case "", model.SortRecent, model.SortDemand, model.SortPriceTrend,
		model.SortPriceLow, model.SortPriceHigh:
	default:
		return ErrUnknownSort
	}
	return nil
}

// Rank applies the full pipeline with the stock result bounds. Callers
// must have validated filters first; Rank assumes they are sane.
func Rank(listings []model.Listing, intent model.Intent, f model.Filters) []model.Listing {
	return RankLimited(listings, intent, f, DefaultLimits)
}

// RankLimited is Rank with caller-configured result bounds.
func RankLimited(listings []model.Listing, intent model.Intent, f model.Filters, lim Limits) []model.Listing {
	working := available(listings)

	byRelevance := false
	if len(intent.Keywords) > 0 {
		working = relevanceRank(working, intent.Keywords)
		byRelevance = true
	}
	if intent.CategoryHint != "" {
		working = filterCategoryHint(working, intent.CategoryHint)
	}
	if intent.QualityHint != "" {
		working = filterQuality(working, intent.QualityHint)
	}
	if intent.LocationHint != "" {
		working = filterLocation(working, intent.LocationHint)
	}

	working = applyExplicit(working, f)

	// Explicit sort keys override relevance order; with neither, most
	// recent listings come first.
	if f.Sort != "" {
		working = sortBy(working, f.Sort)
	} else if !byRelevance {
		working = sortBy(working, model.SortRecent)
	}

	def, max := lim.Default, lim.Max
	if def <= 0 {
		def = DefaultLimit
	}
	if max <= 0 {
		max = MaxLimit
	}

	limit := f.Limit
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if len(working) > limit {
		working = working[:limit]
	}
	return working
}

func available(listings []model.Listing) []model.Listing {
	out := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		if l.Status == model.StatusAvailable {
			out = append(out, l)
		}
	}
	return out
}

// relevanceRank scores each listing against the keywords over title,
// description, and the stored search keyword list, drops non-matches, and
// orders by descending score. Equal scores keep insertion order.
func relevanceRank(listings []model.Listing, keywords []string) []model.Listing {
	type scored struct {
		listing model.Listing
		score   int
	}

	var matched []scored
	for _, l := range listings {
		title := strings.ToLower(l.Title)
		desc := strings.ToLower(l.Description)

		score := 0
		for _, kw := range keywords {
			if strings.Contains(title, kw) {
				score += titleWeight
			}
			if strings.Contains(desc, kw) {
				score += descriptionWeight
			}
			for _, sk := range l.SearchKeywords {
				if strings.EqualFold(sk, kw) {
					score += keywordListWeight
					break
				}
			}
		}
		if score > 0 {
			matched = append(matched, scored{listing: l, score: score})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].score > matched[j].score
	})

	out := make([]model.Listing, len(matched))
	for i, s := range matched {
		out[i] = s.listing
	}
	return out
}

// filterCategoryHint keeps listings whose category name contains the hint
// or whose category keyword list contains it (logical OR).
func filterCategoryHint(listings []model.Listing, hint string) []model.Listing {
	hint = strings.ToLower(hint)
	var out []model.Listing
	for _, l := range listings {
		if strings.Contains(strings.ToLower(l.Category.Name), hint) {
			out = append(out, l)
			continue
		}
		for _, kw := range l.Category.Keywords {
			if strings.EqualFold(kw, hint) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

func filterQuality(listings []model.Listing, grade string) []model.Listing {
	var out []model.Listing
	for _, l := range listings {
		if l.QualityGrade == grade {
			out = append(out, l)
		}
	}
	return out
}

func filterLocation(listings []model.Listing, loc string) []model.Listing {
	loc = strings.ToLower(loc)
	var out []model.Listing
	for _, l := range listings {
		if strings.Contains(strings.ToLower(l.Location), loc) {
			out = append(out, l)
		}
	}
	return out
}

// applyExplicit narrows by the caller's explicit filters. A category is
// matched by numeric id when the value parses as one, by exact name
// otherwise — same contract the thin API layer has always exposed.
func applyExplicit(listings []model.Listing, f model.Filters) []model.Listing {
	out := listings
	if f.Category != "" {
		var filtered []model.Listing
		if id, err := strconv.ParseInt(f.Category, 10, 64); err == nil {
			for _, l := range out {
				if l.Category.ID == id {
					filtered = append(filtered, l)
				}
			}
		} else {
			for _, l := range out {
				if strings.EqualFold(l.Category.Name, f.Category) {
					filtered = append(filtered, l)
				}
			}
		}
		out = filtered
	}
	if f.MinPrice != nil {
		var filtered []model.Listing
		for _, l := range out {
			if l.Price.GreaterThanOrEqual(*f.MinPrice) {
				filtered = append(filtered, l)
			}
		}
		out = filtered
	}
	if f.MaxPrice != nil {
		var filtered []model.Listing
		for _, l := range out {
			if l.Price.LessThanOrEqual(*f.MaxPrice) {
				filtered = append(filtered, l)
			}
		}
		out = filtered
	}
	if f.Quality != "" {
		out = filterQuality(out, f.Quality)
	}
	if f.Location != "" {
		out = filterLocation(out, f.Location)
	}
	return out
}

// sortBy reorders by the given key. Sorts are stable: equal primary keys
// keep insertion (creation) order.
func sortBy(listings []model.Listing, key string) []model.Listing {
	out := make([]model.Listing, len(listings))
	copy(out, listings)

	switch key {
	case model.SortRecent:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	case model.SortDemand:
		sort.SliceStable(out, func(i, j int) bool {
			return demandOf(out[i]) > demandOf(out[j])
		})
	case model.SortPriceTrend:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].PriceTrend > out[j].PriceTrend
		})
	case model.SortPriceLow:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Price.LessThan(out[j].Price)
		})
	case model.SortPriceHigh:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Price.GreaterThan(out[j].Price)
		})
	}
	return out
}

func demandOf(l model.Listing) float64 {
	if l.DemandScore == nil {
		return 0
	}
	return *l.DemandScore
}
