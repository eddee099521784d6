package analytics

import (
	"fmt"
	"sort"
	"time"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

// trendingMinCount is the floor for a group to count as trending,
// independent of the configured pattern threshold.
const trendingMinCount = 3

// Pattern is a derived aggregation over events sharing (type, code).
// Patterns are recomputed from the window on every call; they are
// never stored.
type Pattern struct {
	ErrorType     string          `json:"error_type"`
	Code          int             `json:"code"`
	Occurrences   int             `json:"occurrences"`
	FirstSeen     time.Time       `json:"first_seen"`
	LastSeen      time.Time       `json:"last_seen"`
	AffectedUsers []string        `json:"affected_users,omitempty"`
	AvgInterval   time.Duration   `json:"avg_interval"`
	Severity      errsys.Severity `json:"severity"`
}

// DetectPatterns groups the window by (type, code) and returns groups
// with at least minOccurrences events, most frequent first. Zero
// falls back to the configured threshold.
func (en *Engine) DetectPatterns(minOccurrences int) []Pattern {
	if minOccurrences <= 0 {
		minOccurrences = en.cfg.PatternThreshold
	}
	return patternsFrom(en.eventsInPeriod(0), minOccurrences)
}

// Trending reruns pattern detection over only the trailing days
// (default 7) with a fixed low floor, surfacing recent spikes that
// all-time counts would bury.
func (en *Engine) Trending(days int) []Pattern {
	if days <= 0 {
		days = 7
	}
	window := time.Duration(days) * 24 * time.Hour
	return patternsFrom(en.eventsInPeriod(window), trendingMinCount)
}

func patternsFrom(events []ErrorEvent, threshold int) []Pattern {
	type group struct {
		pattern Pattern
		users   map[string]bool
	}

	groups := map[string]*group{}
	for _, ev := range events {
		key := fmt.Sprintf("%s|%d", ev.ErrorType, ev.Code)
		g, ok := groups[key]
		if !ok {
			g = &group{
				pattern: Pattern{
					ErrorType: ev.ErrorType,
					Code:      ev.Code,
					FirstSeen: ev.Timestamp,
					LastSeen:  ev.Timestamp,
					Severity:  ev.Severity,
				},
				users: map[string]bool{},
			}
			groups[key] = g
		}

		g.pattern.Occurrences++
		if ev.Timestamp.Before(g.pattern.FirstSeen) {
			g.pattern.FirstSeen = ev.Timestamp
		}
		if ev.Timestamp.After(g.pattern.LastSeen) {
			g.pattern.LastSeen = ev.Timestamp
		}
		if ev.Severity > g.pattern.Severity {
			g.pattern.Severity = ev.Severity
		}
		if ev.UserID != "" {
			g.users[ev.UserID] = true
		}
	}

	patterns := make([]Pattern, 0, len(groups))
	for _, g := range groups {
		if g.pattern.Occurrences < threshold {
			continue
		}

		g.pattern.AvgInterval = g.pattern.LastSeen.Sub(g.pattern.FirstSeen) /
			time.Duration(g.pattern.Occurrences)

		for user := range g.users {
			g.pattern.AffectedUsers = append(g.pattern.AffectedUsers, user)
		}
		sort.Strings(g.pattern.AffectedUsers)

		patterns = append(patterns, g.pattern)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Occurrences != patterns[j].Occurrences {
			return patterns[i].Occurrences > patterns[j].Occurrences
		}
		return patterns[i].ErrorType < patterns[j].ErrorType
	})
	return patterns
}
