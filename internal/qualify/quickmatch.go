package qualify

import (
	"strings"

	"golang.org/x/text/cases"
)

// MatchOutcome is the result class of a quick match.
type MatchOutcome string

const (
	// StrongMatch means all or at least half of the keywords matched.
	StrongMatch MatchOutcome = "strong_match"
	// NoMatch means no keyword matched any stored category.
	NoMatch MatchOutcome = "no_match"
	// Uncertain means some but fewer than half matched, or there was
	// nothing to compare.
	Uncertain MatchOutcome = "uncertain"
)

// MatchResult describes how new search keywords relate to a company's
// stored product categories.
type MatchResult struct {
	Outcome MatchOutcome
	// Matched is nil when the outcome is Uncertain. Callers must not read
	// nil as false.
	Matched         *bool
	Confident       bool
	MatchedKeywords []string
	Total           int
}

// QuickMatch compares search keywords against stored categories without
// calling the classifier. A keyword matches a category when, after case
// folding and trimming, they are equal or either contains the other.
func QuickMatch(keywords, categories []string) MatchResult {
	folder := cases.Fold()
	fold := func(s string) string { return strings.TrimSpace(folder.String(s)) }

	var kws, originals []string
	for _, k := range keywords {
		if f := fold(k); f != "" {
			kws = append(kws, f)
			originals = append(originals, strings.TrimSpace(k))
		}
	}
	var cats []string
	for _, c := range categories {
		if f := fold(c); f != "" {
			cats = append(cats, f)
		}
	}
	if len(kws) == 0 || len(cats) == 0 {
		return MatchResult{Outcome: Uncertain, Total: len(kws)}
	}

	var matched []string
	for i, kw := range kws {
		for _, cat := range cats {
			if kw == cat || strings.Contains(cat, kw) || strings.Contains(kw, cat) {
				matched = append(matched, originals[i])
				break
			}
		}
	}

	res := MatchResult{MatchedKeywords: matched, Total: len(kws)}
	switch {
	case len(matched) == 0:
		res.Outcome = NoMatch
		res.Matched = boolPtr(false)
		res.Confident = true
	case len(matched) == len(kws) || 2*len(matched) >= len(kws):
		res.Outcome = StrongMatch
		res.Matched = boolPtr(true)
		res.Confident = true
	default:
		res.Outcome = Uncertain
	}
	return res
}

func boolPtr(b bool) *bool { return &b }
