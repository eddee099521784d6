package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/armorclaw/diagnostics/internal/bus"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

const (
	// highVolumeThreshold is the error count above which a report flags
	// overall volume.
	highVolumeThreshold = 100
	// affectedUserThreshold is the distinct-user count above which a
	// report flags widespread impact.
	affectedUserThreshold = 10
	// reportPatternCount bounds the pattern summaries in a report.
	reportPatternCount = 10
)

// Report is a point-in-time digest of the event window: statistics,
// the strongest patterns rendered for humans, and rule-based
// recommendations.
type Report struct {
	GeneratedAt     time.Time     `json:"generated_at"`
	Period          time.Duration `json:"period"`
	Stats           Stats         `json:"stats"`
	TopPatterns     []string      `json:"top_patterns"`
	Recommendations []string      `json:"recommendations"`
	Domains         []string      `json:"domains"`
}

// GenerateReport builds a report over the trailing period (zero =
// all-time) and announces it on the event bus.
func (en *Engine) GenerateReport(period time.Duration) Report {
	stats := en.Statistics(period)
	patterns := en.DetectPatterns(0)

	report := Report{
		GeneratedAt:     time.Now(),
		Period:          period,
		Stats:           stats,
		TopPatterns:     []string{},
		Recommendations: []string{},
	}

	for i, p := range patterns {
		if i >= reportPatternCount {
			break
		}
		report.TopPatterns = append(report.TopPatterns, fmt.Sprintf(
			"%s (code %d): %d occurrences, %d users, last seen %s",
			p.ErrorType, p.Code, p.Occurrences, len(p.AffectedUsers),
			p.LastSeen.Format("2006-01-02 15:04")))
	}

	report.Recommendations = recommendations(stats, patterns)

	for domain := range stats.ByDomain {
		report.Domains = append(report.Domains, domain)
	}
	sort.Strings(report.Domains)

	if en.events != nil {
		en.events.Publish(bus.NewReportEvent(stats.TotalErrors, len(report.Recommendations)))
	}

	en.log.Info("report generated",
		"total_errors", stats.TotalErrors,
		"patterns", len(patterns),
		"recommendations", len(report.Recommendations))

	return report
}

// recommendations applies the fixed report heuristics in a stable
// order.
func recommendations(stats Stats, patterns []Pattern) []string {
	recs := []string{}

	if stats.TotalErrors > highVolumeThreshold {
		recs = append(recs, fmt.Sprintf(
			"High error volume: %d errors recorded; review the most frequent types first.",
			stats.TotalErrors))
	}

	if critical := stats.BySeverity[errsys.SeverityCritical.Label()]; critical > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d critical errors recorded; these indicate failures that block core functionality.",
			critical))
	}

	for i, p := range patterns {
		if i >= 5 {
			break
		}
		if p.Severity.AtLeast(errsys.SeverityCritical) {
			recs = append(recs, fmt.Sprintf(
				"Recurring %s pattern %s (code %d) with %d occurrences; investigate as a priority.",
				p.Severity.Label(), p.ErrorType, p.Code, p.Occurrences))
		}
	}

	if stats.AffectedUsers > affectedUserThreshold {
		recs = append(recs, fmt.Sprintf(
			"Errors affect %d distinct users; impact is widespread rather than isolated.",
			stats.AffectedUsers))
	}

	return recs
}
