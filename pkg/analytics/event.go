package analytics

import (
	"time"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

// ErrorEvent is one tracked error occurrence. Events are immutable
// once appended to the window; everything derived from them (patterns,
// statistics, reports) is recomputed on demand.
type ErrorEvent struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	ErrorType  string            `json:"error_type"`
	Code       int               `json:"code"`
	Domain     errsys.Domain     `json:"domain"`
	Severity   errsys.Severity   `json:"severity"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Device     string            `json:"device,omitempty"`
	AppVersion string            `json:"app_version,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
