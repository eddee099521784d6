package analytics

import (
	"sort"
	"time"
)

// topErrorCount bounds the most-frequent-types list in Statistics.
const topErrorCount = 10

// TypeCount pairs an error type with its occurrence count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Stats aggregates the event window over a period.
type Stats struct {
	TotalErrors   int            `json:"total_errors"`
	ByDomain      map[string]int `json:"by_domain"`
	BySeverity    map[string]int `json:"by_severity"`
	ByCategory    map[string]int `json:"by_category"`
	ByType        map[string]int `json:"by_type"`
	OldestError   time.Time      `json:"oldest_error,omitempty"`
	NewestError   time.Time      `json:"newest_error,omitempty"`
	EventsPerDay  float64        `json:"events_per_day"`
	AffectedUsers int            `json:"affected_users"`
	TopErrors     []TypeCount    `json:"top_errors"`
}

// Statistics aggregates events in the trailing period; zero means
// all-time. Top error types are ordered by descending count, ties
// broken by type name so repeated calls agree.
func (en *Engine) Statistics(period time.Duration) Stats {
	events := en.eventsInPeriod(period)

	stats := Stats{
		ByDomain:   map[string]int{},
		BySeverity: map[string]int{},
		ByCategory: map[string]int{},
		ByType:     map[string]int{},
		TopErrors:  []TypeCount{},
	}
	if len(events) == 0 {
		return stats
	}

	users := map[string]bool{}
	stats.TotalErrors = len(events)
	stats.OldestError = events[0].Timestamp
	stats.NewestError = events[0].Timestamp

	for _, ev := range events {
		stats.ByDomain[string(ev.Domain)]++
		stats.BySeverity[ev.Severity.Label()]++
		stats.ByCategory[ev.Category]++
		stats.ByType[ev.ErrorType]++
		if ev.UserID != "" {
			users[ev.UserID] = true
		}
		if ev.Timestamp.Before(stats.OldestError) {
			stats.OldestError = ev.Timestamp
		}
		if ev.Timestamp.After(stats.NewestError) {
			stats.NewestError = ev.Timestamp
		}
	}

	stats.AffectedUsers = len(users)

	days := stats.NewestError.Sub(stats.OldestError).Hours() / 24
	if days < 1 {
		days = 1
	}
	stats.EventsPerDay = float64(stats.TotalErrors) / days

	for errType, count := range stats.ByType {
		stats.TopErrors = append(stats.TopErrors, TypeCount{Type: errType, Count: count})
	}
	sort.Slice(stats.TopErrors, func(i, j int) bool {
		if stats.TopErrors[i].Count != stats.TopErrors[j].Count {
			return stats.TopErrors[i].Count > stats.TopErrors[j].Count
		}
		return stats.TopErrors[i].Type < stats.TopErrors[j].Type
	})
	if len(stats.TopErrors) > topErrorCount {
		stats.TopErrors = stats.TopErrors[:topErrorCount]
	}

	return stats
}
