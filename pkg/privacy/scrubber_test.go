package privacy

import (
	"strings"
	"testing"
)

func TestRedactEmailAndPhone(t *testing.T) {
	s := New()
	got := s.Redact("Contact me at a@b.com or 555-123-4567")

	if !strings.Contains(got, "[EMAIL_REDACTED]") {
		t.Errorf("Expected email token, got %q", got)
	}
	if !strings.Contains(got, "[PHONE_REDACTED]") {
		t.Errorf("Expected phone token, got %q", got)
	}
	if strings.Contains(got, "a@b.com") || strings.Contains(got, "555-123-4567") {
		t.Errorf("Original sensitive content still present: %q", got)
	}
}

func TestRedactPatterns(t *testing.T) {
	s := New()
	tests := []struct {
		name  string
		in    string
		token string
		gone  string
	}{
		{"email", "user john.doe+test@example.co.uk wrote in", "[EMAIL_REDACTED]", "john.doe"},
		{"card_plain", "paid with 4111111111111111 today", "[CARD_REDACTED]", "4111111111111111"},
		{"card_dashed", "card 4111-1111-1111-1111 on file", "[CARD_REDACTED]", "4111-1111-1111-1111"},
		{"card_spaced", "card 4111 1111 1111 1111 on file", "[CARD_REDACTED]", "1111"},
		{"national_id", "ssn is 123-45-6789 ok", "[ID_REDACTED]", "123-45-6789"},
		{"phone_e164", "call +14155552671 now", "[PHONE_REDACTED]", "4155552671"},
		{"phone_parens", "call (415) 555-2671 now", "[PHONE_REDACTED]", "555-2671"},
		{"ipv4", "request from 192.168.1.100 denied", "[IP_REDACTED]", "192.168.1.100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Redact(tt.in)
			if !strings.Contains(got, tt.token) {
				t.Errorf("Redact(%q) = %q, expected token %s", tt.in, got, tt.token)
			}
			if strings.Contains(got, tt.gone) {
				t.Errorf("Redact(%q) = %q, original content remains", tt.in, got)
			}
		})
	}
}

func TestRedactIdempotent(t *testing.T) {
	s := New()
	inputs := []string{
		"Contact me at a@b.com or 555-123-4567",
		"card 4111111111111111 ssn 123-45-6789 ip 10.0.0.1",
		"already clean text with numbers 42 and 7",
		"",
	}
	for _, in := range inputs {
		once := s.Redact(in)
		twice := s.Redact(once)
		if once != twice {
			t.Errorf("Redact not idempotent:\n once: %q\ntwice: %q", once, twice)
		}
	}
}

func TestRedactNoPatternSurvives(t *testing.T) {
	s := New()
	in := "a@b.com 4111111111111111 123-45-6789 555-123-4567 192.168.1.1"
	got := s.Redact(in)
	if s.Contains(got) {
		t.Errorf("Redacted output still contains a redactable pattern: %q", got)
	}
}

func TestRedactPreservesCleanText(t *testing.T) {
	s := New()
	in := "database write took 42ms, 3 rows affected"
	if got := s.Redact(in); got != in {
		t.Errorf("Clean text changed: %q -> %q", in, got)
	}
}

func TestRedactMetadata(t *testing.T) {
	s := New()
	in := map[string]string{
		"Password":   "hunter2",
		"api_key":    "sk_live_abcdef",
		"auth_url":   "https://id.example.com",
		"AccessToken": "xyz",
		"shared_secret": "s3cret",
		"screen":     "settings",
		"contact":    "a@b.com",
	}
	got := s.RedactMetadata(in)

	for _, key := range []string{"Password", "api_key", "auth_url", "AccessToken", "shared_secret"} {
		if got[key] != "[REDACTED]" {
			t.Errorf("Expected %s value fully redacted, got %q", key, got[key])
		}
	}
	if got["screen"] != "settings" {
		t.Errorf("Expected benign value untouched, got %q", got["screen"])
	}
	if got["contact"] != "[EMAIL_REDACTED]" {
		t.Errorf("Expected pattern redaction on benign key, got %q", got["contact"])
	}
	// Input map must not be mutated.
	if in["Password"] != "hunter2" {
		t.Error("RedactMetadata mutated its input")
	}
}

func TestRedactMetadataNil(t *testing.T) {
	s := New()
	if got := s.RedactMetadata(nil); got != nil {
		t.Errorf("Expected nil for nil input, got %v", got)
	}
}

func TestRedactMapNested(t *testing.T) {
	s := New()
	in := map[string]interface{}{
		"note": "mail a@b.com",
		"nested": map[string]interface{}{
			"password": "x",
			"list":     []interface{}{"call 555-123-4567", 7},
		},
	}
	got := s.RedactMap(in)

	if got["note"] != "mail [EMAIL_REDACTED]" {
		t.Errorf("Top-level string not redacted: %v", got["note"])
	}
	nested := got["nested"].(map[string]interface{})
	if nested["password"] != "[REDACTED]" {
		t.Errorf("Nested sensitive key not redacted: %v", nested["password"])
	}
	list := nested["list"].([]interface{})
	if list[0] != "call [PHONE_REDACTED]" {
		t.Errorf("String in slice not redacted: %v", list[0])
	}
	if list[1] != 7 {
		t.Errorf("Non-string value changed: %v", list[1])
	}
}

func TestRedactDetailedCounts(t *testing.T) {
	s := New()
	_, redactions := s.RedactDetailed("a@b.com and c@d.org from 10.0.0.1")
	byType := map[string]int{}
	for _, r := range redactions {
		byType[r.Type]++
	}
	if byType["email"] != 2 {
		t.Errorf("Expected 2 email redactions, got %d", byType["email"])
	}
	if byType["ip_address"] != 1 {
		t.Errorf("Expected 1 ip redaction, got %d", byType["ip_address"])
	}
}

func TestCardNotDoubleRedactedAsPhone(t *testing.T) {
	s := New()
	got := s.Redact("number 4111-1111-1111-1111 end")
	if strings.Contains(got, "[PHONE_REDACTED]") {
		t.Errorf("Card matched by phone pattern: %q", got)
	}
	if strings.Count(got, "[CARD_REDACTED]") != 1 {
		t.Errorf("Expected exactly one card token: %q", got)
	}
}

func TestPatternOrder(t *testing.T) {
	s := New()
	want := []string{"email", "card", "national_id", "phone", "ip_address"}
	got := s.PatternNames()
	if len(got) != len(want) {
		t.Fatalf("Expected %d patterns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Pattern %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestMaskHelpers(t *testing.T) {
	if got := MaskString("secretvalue", 3); got != "sec********" {
		t.Errorf("MaskString = %q", got)
	}
	if got := MaskString("ab", 4); got != "**" {
		t.Errorf("MaskString short = %q", got)
	}
	if got := MaskEmail("johnny@example.com"); got != "jo****@example.***" {
		t.Errorf("MaskEmail = %q", got)
	}
	if got := MaskEmail("not-an-email"); got != "***@***" {
		t.Errorf("MaskEmail malformed = %q", got)
	}
}
