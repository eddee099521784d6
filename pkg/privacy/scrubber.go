// Package privacy redacts sensitive substrings and metadata values
// before anything is persisted or reported.
package privacy

import (
	"regexp"
	"strings"
)

// Pattern is one redaction rule. Matches are replaced with Token.
type Pattern struct {
	Name        string
	Regexp      *regexp.Regexp
	Token       string
	Description string
}

// Scrubber applies an ordered set of redaction patterns. It is
// immutable after construction and safe for concurrent use.
type Scrubber struct {
	patterns []*Pattern
}

// Redaction records one applied replacement.
type Redaction struct {
	Type  string
	Start int
	End   int
	Token string
}

// sensitiveKeyParts flags metadata keys whose values are redacted
// wholesale, regardless of content. Matching is case-insensitive
// substring containment.
var sensitiveKeyParts = []string{"password", "token", "secret", "key", "auth"}

// New creates a scrubber with the default patterns.
func New() *Scrubber {
	return NewWithPatterns(DefaultPatterns())
}

// NewWithPatterns creates a scrubber with a custom pattern set. The
// slice is applied in order; earlier patterns shadow later ones on
// overlapping ranges.
func NewWithPatterns(patterns []*Pattern) *Scrubber {
	return &Scrubber{patterns: patterns}
}

// DefaultPatterns returns the standard rules. Order matters: email runs
// first so the digit patterns cannot carve numbers out of an address
// before the email rule sees it; card runs before phone so a 16-digit
// number is never half-eaten as a phone number.
func DefaultPatterns() []*Pattern {
	return []*Pattern{
		{
			Name:        "email",
			Regexp:      regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`),
			Token:       "[EMAIL_REDACTED]",
			Description: "Email addresses",
		},
		{
			Name:        "card",
			Regexp:      regexp.MustCompile(`\b(?:[0-9]{4}[-\s]?){3}[0-9]{4}\b`),
			Token:       "[CARD_REDACTED]",
			Description: "16-digit card numbers with optional separators",
		},
		{
			Name:        "national_id",
			Regexp:      regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`),
			Token:       "[ID_REDACTED]",
			Description: "National ID numbers in 3-2-4 grouping",
		},
		{
			Name:        "phone",
			Regexp:      regexp.MustCompile(`(?:\+[0-9]{1,3}[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`),
			Token:       "[PHONE_REDACTED]",
			Description: "Phone numbers, E.164-like and separated forms",
		},
		{
			Name:        "ip_address",
			Regexp:      regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`),
			Token:       "[IP_REDACTED]",
			Description: "Dotted IPv4 addresses",
		},
	}
}

// Redact replaces every sensitive match in text with its pattern's
// token. Idempotent: tokens contain nothing any pattern can match, so
// redacting twice changes nothing. Empty input passes through.
func (s *Scrubber) Redact(text string) string {
	redacted, _ := s.RedactDetailed(text)
	return redacted
}

// RedactDetailed is Redact plus the list of applied replacements, used
// by callers that count redactions per pattern.
func (s *Scrubber) RedactDetailed(text string) (string, []Redaction) {
	if text == "" {
		return text, nil
	}

	var redactions []Redaction
	replaced := make(map[[2]int]bool)

	for _, p := range s.patterns {
		pos := 0
		for pos < len(text) {
			loc := p.Regexp.FindStringIndex(text[pos:])
			if loc == nil {
				break
			}
			start, end := pos+loc[0], pos+loc[1]

			overlaps := false
			for rng := range replaced {
				if start < rng[1] && end > rng[0] {
					overlaps = true
					break
				}
			}
			if overlaps {
				// Step past the overlap so later occurrences are
				// still scanned.
				pos = start + 1
				continue
			}

			replaced[[2]int{start, end}] = true
			redactions = append(redactions, Redaction{
				Type:  p.Name,
				Start: start,
				End:   end,
				Token: p.Token,
			})
			pos = end
			if end == start {
				pos++
			}
		}
	}

	if len(redactions) == 0 {
		return text, nil
	}

	// Apply from the end backwards so earlier indexes stay valid.
	sortByStartDesc(redactions)
	for _, r := range redactions {
		text = text[:r.Start] + r.Token + text[r.End:]
	}
	return text, redactions
}

// RedactMetadata returns a copy of the map with sensitive values
// removed: any key containing password, token, secret, key, or auth
// (case-insensitive) has its entire value replaced; remaining values
// are pattern-redacted like free text. Nil input returns nil.
func (s *Scrubber) RedactMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		if isSensitiveKey(key) {
			out[key] = "[REDACTED]"
			continue
		}
		out[key] = s.Redact(value)
	}
	return out
}

// RedactMap walks a decoded JSON structure, redacting every string it
// reaches. Sensitive keys blank their value at any nesting depth.
func (s *Scrubber) RedactMap(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		if isSensitiveKey(key) {
			out[key] = "[REDACTED]"
			continue
		}
		out[key] = s.redactValue(value)
	}
	return out
}

func (s *Scrubber) redactValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return s.Redact(v)
	case map[string]interface{}:
		return s.RedactMap(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = s.redactValue(item)
		}
		return out
	default:
		return value
	}
}

// Contains reports whether text holds at least one redactable match.
func (s *Scrubber) Contains(text string) bool {
	for _, p := range s.patterns {
		if p.Regexp.MatchString(text) {
			return true
		}
	}
	return false
}

// PatternNames lists the active patterns in application order.
func (s *Scrubber) PatternNames() []string {
	names := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		names[i] = p.Name
	}
	return names
}

// SensitiveKey reports whether key names a credential-bearing field
// whose value must never be logged.
func SensitiveKey(key string) bool {
	return isSensitiveKey(key)
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

func sortByStartDesc(rs []Redaction) {
	for i := 0; i < len(rs); i++ {
		for j := i + 1; j < len(rs); j++ {
			if rs[i].Start < rs[j].Start {
				rs[i], rs[j] = rs[j], rs[i]
			}
		}
	}
}

// MaskString shows the first visible characters and stars the rest,
// for partial display in UIs.
func MaskString(s string, visible int) string {
	if len(s) <= visible {
		return strings.Repeat("*", len(s))
	}
	return s[:visible] + strings.Repeat("*", len(s)-visible)
}

// MaskEmail keeps the first two characters of the user part and the
// domain name, starring the rest.
func MaskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	user, domain := parts[0], parts[1]
	if len(user) <= 2 {
		user = strings.Repeat("*", 2)
	} else {
		user = user[:2] + strings.Repeat("*", len(user)-2)
	}
	if dot := strings.LastIndexByte(domain, '.'); dot > 0 {
		domain = domain[:dot+1] + "***"
	}
	return user + "@" + domain
}
