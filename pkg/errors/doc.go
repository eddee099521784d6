// Package errors defines the diagnostics error taxonomy: a closed set
// of error kinds grouped into seven domains, each carrying a stable
// numeric code, severity, human message, recovery hint, and a static
// retryability flag.
//
// # Overview
//
// The taxonomy is the leaf dependency of the diagnostics pipeline:
//   - Classify maps any Go error onto a kind; the mapping is total,
//     with Unknown as the terminal fallback
//   - FromHTTPStatus maps response statuses (429 and 503 specialize
//     into RateLimited and Maintenance)
//   - the retry engine consults Retryable() to decide whether another
//     attempt can help
//   - the analytics engine groups occurrences by (type, code)
//
// # Quick Start
//
//	if err := fetch(ctx); err != nil {
//	    derr := errors.Classify(err)
//	    if derr.Retryable() {
//	        // schedule another attempt
//	    }
//	    log.Warn("fetch failed", "code", derr.Code(), "hint", derr.RecoveryHint())
//	}
//
// Creating a specific kind directly:
//
//	return errors.E(errors.KindInvalidAmount).
//	    WithDetailf("amount %q", raw).
//	    WithContext(ctx)
//
// # Code Ranges
//
// Codes are namespaced by domain and never renumbered:
//   - 1001-1099 network
//   - 2001-2099 database
//   - 3001-3099 validation
//   - 4001-4099 storage
//   - 5001-5099 export
//   - 6001-6099 permission
//   - 9001-9099 system
//
// # Severity
//
// Severity is an ordered enum (Info < Warning < Error < Critical <
// Fatal) so consumers can filter with a single comparison.
//
// # Retryability
//
// Retryable kinds are exactly: Offline, ConnectionLost, DNSFailure,
// Timeout, ServerError, RateLimited, Maintenance, and Unknown. All
// other kinds are permanent failures; retrying them cannot succeed.
package errors
