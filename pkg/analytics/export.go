package analytics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatText = "text"
)

// Export writes the (optionally period-filtered) event list to a file
// in the analytics directory and returns its path. All three formats
// carry every event; an empty selection is an EmptyDataset error, not
// an empty file.
func (en *Engine) Export(format string, period time.Duration) (string, error) {
	events := en.eventsInPeriod(period)
	if len(events) == 0 {
		return "", errsys.E(errsys.KindEmptyDataset)
	}

	var (
		data []byte
		ext  string
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(events, "", "  ")
		if err != nil {
			return "", errsys.Wrap(errsys.KindSerializationFailed, err)
		}
		ext = "json"
	case FormatCSV:
		data = []byte(renderCSV(events))
		ext = "csv"
	case FormatText:
		data = []byte(renderText(events))
		ext = "txt"
	default:
		return "", errsys.E(errsys.KindUnsupportedFormat).WithDetail(format)
	}

	if err := os.MkdirAll(en.cfg.Dir, 0o755); err != nil {
		return "", errsys.Classify(err)
	}

	now := time.Now()
	name := fmt.Sprintf("errors_export_%s-%09d.%s", now.Format("20060102-150405"), now.Nanosecond(), ext)
	path := filepath.Join(en.cfg.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errsys.Classify(err)
	}

	en.log.Info("events exported", "format", format, "events", len(events), "path", path)
	return path, nil
}

// renderCSV emits one header row plus one row per event. The free-text
// message field is always quoted; the remaining fields are
// single-token by construction.
func renderCSV(events []ErrorEvent) string {
	var b strings.Builder
	b.WriteString("id,timestamp,error_type,code,domain,severity,category,message,user_id,session_id\n")
	for _, ev := range events {
		quoted := `"` + strings.ReplaceAll(ev.Message, `"`, `""`) + `"`
		fmt.Fprintf(&b, "%s,%s,%s,%d,%s,%s,%s,%s,%s,%s\n",
			ev.ID,
			ev.Timestamp.Format(time.RFC3339),
			ev.ErrorType,
			ev.Code,
			ev.Domain,
			ev.Severity.Label(),
			ev.Category,
			quoted,
			ev.UserID,
			ev.SessionID)
	}
	return b.String()
}

// renderText emits a human-readable block per event.
func renderText(events []ErrorEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error Export: %d events\n", len(events))
	for i, ev := range events {
		fmt.Fprintf(&b, "\n[%d] %s [%s] %s/%s (code %d)\n",
			i+1,
			ev.Timestamp.Format(time.RFC3339),
			ev.Severity.Label(),
			ev.Domain,
			ev.ErrorType,
			ev.Code)
		fmt.Fprintf(&b, "    %s\n", ev.Message)

		details := []string{"category=" + ev.Category}
		if ev.UserID != "" {
			details = append(details, "user="+ev.UserID)
		}
		if ev.SessionID != "" {
			details = append(details, "session="+ev.SessionID)
		}
		if ev.Device != "" {
			details = append(details, "device="+ev.Device)
		}
		if ev.AppVersion != "" {
			details = append(details, "app="+ev.AppVersion)
		}
		fmt.Fprintf(&b, "    %s\n", strings.Join(details, " "))
	}
	return b.String()
}
