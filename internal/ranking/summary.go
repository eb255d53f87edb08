package ranking

import (
	"fmt"
	"strings"

	"reposcout/search-service/internal/model"
)

const (
	maxSummaryLanguages  = 4
	maxSummaryHighlights = 3
)

// Summarize builds the one-sentence description of a result set.
func Summarize(filters model.SearchFilters, projects []model.RankedCandidate) string {
	if len(projects) == 0 {
		return fmt.Sprintf("No projects matched %q with the current filters.", filters.Topic)
	}

	var b strings.Builder
	noun := "projects"
	if len(projects) == 1 {
		noun = "project"
	}
	fmt.Fprintf(&b, "Found %d %s for %q", len(projects), noun, filters.Topic)
	if filters.OnlyMaintained {
		b.WriteString(", actively maintained only")
	}

	if langs := distinct(projects, maxSummaryLanguages, func(p model.RankedCandidate) string {
		return p.Language
	}); len(langs) > 0 {
		fmt.Fprintf(&b, " in %s", strings.Join(langs, ", "))
	}
	b.WriteString(".")

	highlights := distinct(projects, maxSummaryHighlights, func(p model.RankedCandidate) string {
		if len(p.Reasons) == 0 {
			return ""
		}
		return p.Reasons[0]
	})
	if len(highlights) > 0 {
		fmt.Fprintf(&b, " Highlights: %s.", strings.Join(highlights, "; "))
	}
	return b.String()
}

// distinct collects up to max unique non-empty values of key in order.
func distinct(projects []model.RankedCandidate, max int, key func(model.RankedCandidate) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range projects {
		v := key(p)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == max {
			break
		}
	}
	return out
}
