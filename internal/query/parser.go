// Package query turns a raw free-text search query into a structured
// intent: normalized keywords, quality and price-band hints, and a
// location hint. Parsing is pure, deterministic, and does no I/O.
package query

import (
	"strings"

	"github.com/agrogram/search-engine/internal/model"
)

// priceLexicon maps price-sentiment words to a band hint. The scan walks
// the whole lexicon and the LAST matching entry wins, so a query containing
// both "cheap" and "premium" resolves to HIGH. This mirrors the behavior
// the marketplace has always shipped; see the quality scan below for the
// opposite policy.
var priceLexicon = []struct {
	term string
	band string
}{
	{"cheap", model.PriceBandLow},
	{"expensive", model.PriceBandHigh},
	{"affordable", model.PriceBandLow},
	{"budget", model.PriceBandLow},
	{"premium", model.PriceBandHigh},
}

// qualityLexicon maps quality phrases to a grade hint. Unlike the price
// scan, the FIRST matching entry wins and scanning stops. The asymmetry is
// a long-standing behavioral contract, kept as-is.
var qualityLexicon = []struct {
	term  string
	grade string
}{
	{"premium", model.QualityPremium},
	{"organic", model.QualityPremium},
	{"high quality", model.QualityPremium},
	{"standard", model.QualityStandard},
	{"economy", model.QualityEconomy},
	{"budget", model.QualityEconomy},
}

// locativePrepositions mark the token that follows them as a location hint.
var locativePrepositions = map[string]bool{
	"near":  true,
	"in":    true,
	"from":  true,
	"local": true,
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true,
}

// Parse builds a structured intent from a raw query. Empty input yields a
// zero intent. Tokens consumed by a lexicon or location match do not appear
// again in Keywords.
func Parse(raw string) model.Intent {
	q := strings.ToLower(strings.TrimSpace(raw))
	if q == "" {
		return model.Intent{}
	}

	var intent model.Intent
	consumed := map[string]bool{}

	for _, entry := range priceLexicon {
		if strings.Contains(q, entry.term) {
			intent.PriceBandHint = entry.band
			markConsumed(consumed, entry.term)
		}
	}

	for _, entry := range qualityLexicon {
		if strings.Contains(q, entry.term) {
			intent.QualityHint = entry.grade
			markConsumed(consumed, entry.term)
			break
		}
	}

	words := strings.Fields(q)

	locationIdx := -1
	for i, w := range words {
		if locativePrepositions[w] && i+1 < len(words) {
			intent.LocationHint = words[i+1]
			locationIdx = i
			break
		}
	}

	for i, w := range words {
		if locationIdx >= 0 && (i == locationIdx || i == locationIdx+1) {
			continue
		}
		if stopWords[w] || len(w) <= 2 || consumed[w] {
			continue
		}
		intent.Keywords = append(intent.Keywords, w)
	}

	return intent
}

// markConsumed records every token of a matched lexicon term so multi-word
// phrases ("high quality") drop both tokens from the keyword list.
func markConsumed(consumed map[string]bool, term string) {
	for _, t := range strings.Fields(term) {
		consumed[t] = true
	}
}
