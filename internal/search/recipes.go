// Package search ranks locally cached recipes against a free-text query.
package search

import (
	"sort"
	"strings"

	"github.com/mmcdole/brewsync/internal/domain"
)

// Field names which part of a recipe matched.
type Field string

const (
	FieldName  Field = "name"
	FieldStyle Field = "style"
)

// styleCost ranks a style hit below an equally good name hit.
const styleCost = 25

// Result is one ranked recipe.
type Result struct {
	Recipe domain.CachedEntity[domain.Recipe]
	Field  Field
	Match
}

// Recipes returns the recipes matching query, best first. Name matches
// outrank style matches; ties go to the shorter name.
func Recipes(query string, recipes []domain.CachedEntity[domain.Recipe]) []Result {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	var results []Result
	for _, r := range recipes {
		best, ok := Result{}, false
		if m, hit := MatchText(query, r.Data.Name); hit {
			best, ok = Result{Recipe: r, Field: FieldName, Match: m}, true
		}
		if r.Data.Style != "" {
			if m, hit := MatchText(query, r.Data.Style); hit && (!ok || m.Score+styleCost < best.Score) {
				m.Score += styleCost
				best, ok = Result{Recipe: r, Field: FieldStyle, Match: m}, true
			}
		}
		if ok {
			results = append(results, best)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if len(a.Recipe.Data.Name) != len(b.Recipe.Data.Name) {
			return len(a.Recipe.Data.Name) < len(b.Recipe.Data.Name)
		}
		return a.Recipe.Data.Name < b.Recipe.Data.Name
	})
	return results
}
