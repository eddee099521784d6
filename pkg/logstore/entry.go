package logstore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Entry is one diagnostic record. Entries are formatted and written
// the moment they are accepted, never mutated afterwards.
type Entry struct {
	Timestamp time.Time
	Severity  errsys.Severity
	Category  string
	Message   string
	Metadata  map[string]string
	File      string
	Line      int
	Function  string
}

// Format renders the entry as a single log line:
//
//	[timestamp] [LEVEL] [category] message | key=value,... (file:line function)
//
// Metadata keys are sorted so the same entry always renders the same
// line.
func (e Entry) Format() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(e.Timestamp.Format(timestampLayout))
	b.WriteString("] [")
	b.WriteString(e.Severity.Label())
	b.WriteString("] [")
	b.WriteString(e.Category)
	b.WriteString("] ")
	b.WriteString(e.Message)

	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+e.Metadata[k])
		}
		b.WriteString(" | ")
		b.WriteString(strings.Join(pairs, ","))
	}

	if e.File != "" {
		fmt.Fprintf(&b, " (%s:%d %s)", e.File, e.Line, e.Function)
	}

	return b.String()
}

// shortFuncName trims a fully qualified function name down to
// package.Function.
func shortFuncName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
