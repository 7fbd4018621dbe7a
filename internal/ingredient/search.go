package ingredient

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Rank orders candidates by how well they match query:
// exact code, code prefix, name prefix, word prefix, then substring.
// Candidates that do not match at all are dropped.
func Rank(candidates []Ingredient, query string, limit int) []SearchResult {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	needle := Fold(query)
	if needle == "" {
		return []SearchResult{}
	}
	results := make([]SearchResult, 0, len(candidates))
	for _, ing := range candidates {
		rank, ok := matchRank(needle, Fold(ing.Code), Fold(ing.Name))
		if !ok {
			continue
		}
		results = append(results, SearchResult{Ingredient: ing, Rank: rank})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Rank != results[j].Rank {
			return results[i].Rank < results[j].Rank
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func matchRank(needle, code, name string) (int, bool) {
	switch {
	case code == needle:
		return 0, true
	case strings.HasPrefix(code, needle):
		return 1, true
	case strings.HasPrefix(name, needle):
		return 2, true
	}
	for _, word := range strings.Fields(name) {
		if strings.HasPrefix(word, needle) {
			return 3, true
		}
	}
	if strings.Contains(name, needle) || strings.Contains(code, needle) {
		return 4, true
	}
	return 0, false
}

// Fold lower-cases s and strips combining marks so "Đường Cát" matches "duong cat".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = s
	}
	out = strings.NewReplacer("đ", "d", "Đ", "d").Replace(out)
	return cases.Fold().String(out)
}
