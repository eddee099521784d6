package errors

import "fmt"

// Severity levels for errors, ordered from least to most severe.
// The ordering is used for filtering ("record Warning and above").
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
	SeverityFatal
)

var severityNames = map[Severity]string{
	SeverityInfo:     "info",
	SeverityWarning:  "warning",
	SeverityError:    "error",
	SeverityCritical: "critical",
	SeverityFatal:    "fatal",
}

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Label returns the uppercase form used in formatted log lines.
func (s Severity) Label() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	case SeverityFatal:
		return "FATAL"
	}
	return "UNKNOWN"
}

// AtLeast reports whether s is at or above the given minimum.
func (s Severity) AtLeast(min Severity) bool {
	return s >= min
}

// ParseSeverity converts a name (case-insensitive on common forms) to a
// Severity. Unrecognized names return SeverityInfo and false.
func ParseSeverity(name string) (Severity, bool) {
	switch name {
	case "info", "INFO", "Info":
		return SeverityInfo, true
	case "warning", "WARNING", "Warning", "warn", "WARN":
		return SeverityWarning, true
	case "error", "ERROR", "Error":
		return SeverityError, true
	case "critical", "CRITICAL", "Critical":
		return SeverityCritical, true
	case "fatal", "FATAL", "Fatal":
		return SeverityFatal, true
	}
	return SeverityInfo, false
}

// MarshalText implements encoding.TextMarshaler so severities render as
// their names in JSON and TOML.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, ok := ParseSeverity(string(text))
	if !ok {
		return fmt.Errorf("unknown severity %q", string(text))
	}
	*s = parsed
	return nil
}
