// Package ranking turns raw candidates into scored, explained and ordered
// results. Everything here is a pure function of its inputs; the caller
// supplies the clock.
package ranking

import (
	"fmt"
	"math"
	"sort"
	"time"

	"reposcout/search-service/internal/model"
)

const (
	freshnessCeiling = 3.0
	freshnessDecay   = 120.0 // days per point of freshness lost
)

// freshnessBucket maps an upper day bound (inclusive) to its reason text.
type freshnessBucket struct {
	maxDays float64
	reason  string
}

var freshnessBuckets = []freshnessBucket{
	{7, "updated this week"},
	{30, "updated this month"},
	{90, "updated in the last quarter"},
	{180, "updated in the last six months"},
	{365, "updated in the last year"},
}

const (
	staleReason   = "no recent commits in the last year"
	unknownReason = "unknown activity"
)

// DaysSinceUpdate returns the whole days elapsed between the candidate's
// latest activity and now, or the unknown sentinel when it has none.
func DaysSinceUpdate(c model.Candidate, now time.Time) model.DaysSince {
	last := c.LastActivity()
	if last == nil {
		return model.UnknownDays()
	}
	d := math.Floor(now.Sub(*last).Hours() / 24)
	if d < 0 {
		d = 0 // source clock ahead of ours
	}
	return model.DaysSince(d)
}

// Freshness is the recency bonus: 3 points for today, decaying linearly to
// zero at 360 days. Unknown ages earn nothing.
func Freshness(days model.DaysSince) float64 {
	if !days.Known() {
		return 0
	}
	return math.Max(0, freshnessCeiling-float64(days)/freshnessDecay)
}

// Score computes the ranking score rounded to two decimals. Popularity and
// recency raise it, open issues lower it mildly.
func Score(c model.Candidate, days model.DaysSince) float64 {
	s := 2.5*log1p10(c.Stars) +
		1.5*log1p10(c.Forks) +
		log1p10(c.Watchers) +
		Freshness(days) -
		log1p10(c.OpenIssues)
	return math.Round(s*100) / 100
}

func log1p10(n int) float64 {
	if n < 0 {
		n = 0
	}
	return math.Log10(float64(n) + 1)
}

// FreshnessReason returns the activity bucket text for days.
func FreshnessReason(days model.DaysSince) string {
	if !days.Known() {
		return unknownReason
	}
	for _, b := range freshnessBuckets {
		if float64(days) <= b.maxDays {
			return b.reason
		}
	}
	return staleReason
}

// Reasons lists the justifications that apply to c, in order: stars, forks,
// freshness, license. Zero counts and a missing license are omitted.
func Reasons(c model.Candidate, days model.DaysSince) []string {
	reasons := make([]string, 0, 4)
	if c.Stars > 0 {
		reasons = append(reasons, plural(c.Stars, "star"))
	}
	if c.Forks > 0 {
		reasons = append(reasons, plural(c.Forks, "fork"))
	}
	reasons = append(reasons, FreshnessReason(days))
	if c.License != "" {
		reasons = append(reasons, c.License+" license")
	}
	return reasons
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// Normalize derives the ranked form of c as of now. Calling it twice with the
// same arguments yields identical results.
func Normalize(c model.Candidate, now time.Time) model.RankedCandidate {
	days := DaysSinceUpdate(c, now)
	if len(c.Topics) > 0 {
		c.Topics = append([]string(nil), c.Topics...)
	}
	return model.RankedCandidate{
		Candidate:       c,
		DaysSinceUpdate: days,
		Score:           Score(c, days),
		Reasons:         Reasons(c, days),
	}
}

// Rank normalizes every candidate and orders them by score, highest first.
// Equal scores keep their fetch order.
func Rank(candidates []model.Candidate, now time.Time) []model.RankedCandidate {
	ranked := make([]model.RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, Normalize(c, now))
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
