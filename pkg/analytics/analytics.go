// Package analytics ingests classified errors into a bounded event
// window, persists it across restarts, and derives failure patterns,
// statistics and reports from it. The event list is the single source
// of truth; every aggregation is recomputed on demand.
package analytics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/armorclaw/diagnostics/internal/bus"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
	"github.com/armorclaw/diagnostics/pkg/logger"
	"github.com/armorclaw/diagnostics/pkg/privacy"
)

const snapshotFile = "events.json"

// Config holds analytics engine configuration
type Config struct {
	// Dir is the directory for the window snapshot and exports.
	Dir string
	// MaxEventsStored caps the event window; oldest events are evicted
	// first.
	MaxEventsStored int
	// RetentionDays bounds event age, enforced by the daily cleanup.
	RetentionDays int
	// PatternThreshold is the default minimum group size for pattern
	// detection.
	PatternThreshold int
	// AutoCleanup runs the retention sweep once per rolling day.
	AutoCleanup bool
	// TrackUserIDs records the user identifier carried by an error.
	TrackUserIDs bool
	// TrackSessionIDs records the session identifier carried by an error.
	TrackSessionIDs bool
}

// DefaultConfig returns default analytics configuration
func DefaultConfig() Config {
	return Config{
		Dir:              "analytics",
		MaxEventsStored:  100,
		RetentionDays:    30,
		PatternThreshold: 5,
		AutoCleanup:      true,
		TrackUserIDs:     true,
		TrackSessionIDs:  true,
	}
}

// Engine owns the event window. All window mutation is serialized
// behind its lock, so statistics never observe a half-applied append,
// and the snapshot on disk always reflects a complete window.
type Engine struct {
	cfg      Config
	log      *logger.Logger
	scrubber *privacy.Scrubber
	events   *bus.Bus

	device     string
	appVersion string

	mu          sync.Mutex
	window      []ErrorEvent
	lastCleanup time.Time
}

// snapshot is the on-disk envelope for the event window.
type snapshot struct {
	LastCleanup time.Time    `json:"last_cleanup"`
	Events      []ErrorEvent `json:"events"`
}

// New creates the engine and restores the persisted window if one
// exists. Restore is best-effort: an unreadable snapshot is set aside
// and the engine starts empty rather than failing the host.
func New(cfg Config, log *logger.Logger, scrubber *privacy.Scrubber, events *bus.Bus) *Engine {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if cfg.MaxEventsStored <= 0 {
		cfg.MaxEventsStored = DefaultConfig().MaxEventsStored
	}
	if cfg.PatternThreshold <= 0 {
		cfg.PatternThreshold = DefaultConfig().PatternThreshold
	}
	if log == nil {
		log = logger.Discard()
	}

	en := &Engine{
		cfg:      cfg,
		log:      log.WithComponent("analytics"),
		scrubber: scrubber,
		events:   events,
	}
	en.restore()
	return en
}

// WithOrigin sets the device descriptor and app version stamped onto
// events whose error context does not carry its own.
func (en *Engine) WithOrigin(device, appVersion string) *Engine {
	en.device = device
	en.appVersion = appVersion
	return en
}

// Track appends one error occurrence to the window, evicts beyond the
// cap, runs the daily retention sweep when due, and persists the
// result. The returned error is informational; callers in the
// diagnostics path discard it.
func (en *Engine) Track(e *errsys.Error, category string) error {
	_, err := en.TrackEvent(e, category)
	return err
}

// TrackEvent is Track returning the event exactly as recorded, for
// callers that feed downstream sinks (the archive) with the same
// scrubbed values.
func (en *Engine) TrackEvent(e *errsys.Error, category string) (ErrorEvent, error) {
	if e == nil {
		return ErrorEvent{}, nil
	}
	if category == "" {
		category = "general"
	}

	ev := en.buildEvent(e, category)

	en.mu.Lock()
	defer en.mu.Unlock()

	en.window = append(en.window, ev)
	if over := len(en.window) - en.cfg.MaxEventsStored; over > 0 {
		en.window = append(en.window[:0], en.window[over:]...)
	}
	en.maybeCleanupLocked(time.Now())

	return ev, en.persistLocked()
}

func (en *Engine) buildEvent(e *errsys.Error, category string) ErrorEvent {
	ctx := e.Context

	ev := ErrorEvent{
		ID:         uuid.NewString(),
		Timestamp:  ctx.Timestamp,
		ErrorType:  e.Kind.String(),
		Code:       e.Code(),
		Domain:     e.Domain(),
		Severity:   e.Severity(),
		Message:    e.Message(),
		Category:   category,
		Device:     ctx.Device,
		AppVersion: ctx.AppVersion,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Device == "" {
		ev.Device = en.device
	}
	if ev.AppVersion == "" {
		ev.AppVersion = en.appVersion
	}
	if en.cfg.TrackUserIDs {
		ev.UserID = ctx.UserID
	}
	if en.cfg.TrackSessionIDs {
		ev.SessionID = ctx.SessionID
	}
	if len(ctx.Metadata) > 0 {
		ev.Metadata = make(map[string]string, len(ctx.Metadata))
		for k, v := range ctx.Metadata {
			ev.Metadata[k] = v
		}
	}

	if en.scrubber != nil {
		ev.Message = en.scrubber.Redact(ev.Message)
		ev.Metadata = en.scrubber.RedactMetadata(ev.Metadata)
	}
	return ev
}

// Cleanup removes events older than the retention window and persists
// the shrunk window. Returns how many events were removed.
func (en *Engine) Cleanup() (int, error) {
	en.mu.Lock()
	defer en.mu.Unlock()

	before := len(en.window)
	en.sweepLocked(time.Now())
	en.lastCleanup = time.Now()

	removed := before - len(en.window)
	if removed == 0 {
		return 0, nil
	}
	return removed, en.persistLocked()
}

// maybeCleanupLocked runs the retention sweep at most once per rolling
// day. Callers hold en.mu.
func (en *Engine) maybeCleanupLocked(now time.Time) {
	if !en.cfg.AutoCleanup || en.cfg.RetentionDays <= 0 {
		return
	}
	if now.Sub(en.lastCleanup) < 24*time.Hour {
		return
	}
	en.lastCleanup = now
	en.sweepLocked(now)
}

func (en *Engine) sweepLocked(now time.Time) {
	if en.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -en.cfg.RetentionDays)
	kept := en.window[:0]
	for _, ev := range en.window {
		if !ev.Timestamp.Before(cutoff) {
			kept = append(kept, ev)
		}
	}
	en.window = kept
}

// Events returns a copy of the current window, oldest first.
func (en *Engine) Events() []ErrorEvent {
	en.mu.Lock()
	defer en.mu.Unlock()
	out := make([]ErrorEvent, len(en.window))
	copy(out, en.window)
	return out
}

// Count returns the current window size.
func (en *Engine) Count() int {
	en.mu.Lock()
	defer en.mu.Unlock()
	return len(en.window)
}

// eventsInPeriod returns a copy of the window restricted to the
// trailing period; zero means all-time.
func (en *Engine) eventsInPeriod(period time.Duration) []ErrorEvent {
	en.mu.Lock()
	defer en.mu.Unlock()

	if period <= 0 {
		out := make([]ErrorEvent, len(en.window))
		copy(out, en.window)
		return out
	}

	cutoff := time.Now().Add(-period)
	out := make([]ErrorEvent, 0, len(en.window))
	for _, ev := range en.window {
		if !ev.Timestamp.Before(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}

// persistLocked writes the full window atomically: marshal, write to a
// temp file, rename over the snapshot. Callers hold en.mu.
func (en *Engine) persistLocked() error {
	if err := os.MkdirAll(en.cfg.Dir, 0o755); err != nil {
		return errsys.Classify(err)
	}

	data, err := json.MarshalIndent(snapshot{
		LastCleanup: en.lastCleanup,
		Events:      en.window,
	}, "", "  ")
	if err != nil {
		return errsys.Wrap(errsys.KindSerializationFailed, err)
	}

	path := filepath.Join(en.cfg.Dir, snapshotFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errsys.Classify(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errsys.Classify(err)
	}
	return nil
}

// restore loads the snapshot left by a previous run. A corrupt file is
// moved aside so the next persist starts clean.
func (en *Engine) restore() {
	path := filepath.Join(en.cfg.Dir, snapshotFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			en.log.Warn("could not read analytics snapshot", "path", path, "error", err.Error())
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		en.log.Warn("analytics snapshot corrupt, starting empty", "path", path, "error", err.Error())
		_ = os.Rename(path, path+".corrupt")
		return
	}

	en.window = snap.Events
	en.lastCleanup = snap.LastCleanup
	if over := len(en.window) - en.cfg.MaxEventsStored; over > 0 {
		en.window = append(en.window[:0], en.window[over:]...)
	}

	en.log.Info("analytics window restored", "events", len(en.window))
}
