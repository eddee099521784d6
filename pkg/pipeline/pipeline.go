// Package pipeline assembles the diagnostics components into a single
// handle. The embedding application constructs one Pipeline at startup
// and calls its entry points; everything downstream of them (store,
// analytics, archive, bus, metrics) is wired here once and never
// reached for globally.
package pipeline

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/armorclaw/diagnostics/internal/bus"
	"github.com/armorclaw/diagnostics/internal/device"
	"github.com/armorclaw/diagnostics/internal/metrics"
	"github.com/armorclaw/diagnostics/pkg/analytics"
	"github.com/armorclaw/diagnostics/pkg/archive"
	"github.com/armorclaw/diagnostics/pkg/config"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
	"github.com/armorclaw/diagnostics/pkg/logger"
	"github.com/armorclaw/diagnostics/pkg/logstore"
	"github.com/armorclaw/diagnostics/pkg/netmon"
	"github.com/armorclaw/diagnostics/pkg/privacy"
	"github.com/armorclaw/diagnostics/pkg/retry"
)

// archiveTimeout bounds one archive insert so a wedged database file
// cannot stall the reporting path.
const archiveTimeout = 5 * time.Second

// Pipeline owns every diagnostics component for one process. All entry
// points absorb internal failures: observing errors must never raise
// new ones into the host application.
type Pipeline struct {
	cfg      *config.Config
	log      *logger.Logger
	scrubber *privacy.Scrubber
	events   *bus.Bus
	recorder *metrics.Recorder
	store    *logstore.Store
	engine   *analytics.Engine
	monitor  *netmon.Monitor
	vault    *archive.Archive
	policy   retry.Policy

	mu        sync.Mutex
	started   bool
	stopped   bool
	startedAt time.Time
	stopWatch func()
}

// New builds the full component graph from cfg. A nil cfg uses the
// defaults; a nil log discards daemon output. The only construction
// that can fail is opening the archive database, and only when the
// archive is enabled.
func New(cfg *config.Config, log *logger.Logger) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.Discard()
	}

	scrubber := privacy.New()
	events := bus.New(bus.DefaultConfig(), log)
	recorder := metrics.New()

	info := device.Collect()
	engine := analytics.New(cfg.ToAnalyticsConfig(), log, scrubber, events).
		WithOrigin(info.Label(), cfg.AppVersion)

	p := &Pipeline{
		cfg:      cfg,
		log:      log.WithComponent("pipeline"),
		scrubber: scrubber,
		events:   events,
		recorder: recorder,
		store:    logstore.New(cfg.ToLogStoreConfig(), scrubber, events),
		engine:   engine,
		monitor:  netmon.New(cfg.ToMonitorConfig(), log, events),
		policy:   cfg.ToRetryPolicy(),
	}

	if cfg.IsArchiveEnabled() {
		vault, err := archive.New(cfg.ToArchiveConfig(), log)
		if err != nil {
			return nil, err
		}
		p.vault = vault
	}

	return p, nil
}

// Start brings up the background pieces: the connectivity monitor and
// the metrics feed off the bus. Starting a running pipeline is a
// no-op; a stopped one cannot be restarted.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return errsys.E(errsys.KindInternal).WithDetail("pipeline is stopped")
	}
	if p.started {
		return nil
	}

	if err := p.monitor.Start(); err != nil {
		return err
	}
	p.stopWatch = p.recorder.WatchBus(p.events)
	p.recorder.SetWindowSize(p.engine.Count())

	p.started = true
	p.startedAt = time.Now()
	p.log.Info("diagnostics pipeline started",
		"archive", p.vault != nil,
		"restored_events", p.engine.Count())
	return nil
}

// Stop tears the pipeline down in reverse dependency order: status
// producers first, then the metrics feed, then the bus, then the file
// and database handles. It releases resources even when Start was
// never called, and is safe to call more than once.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	p.stopped = true

	if p.started {
		p.started = false
		p.monitor.Stop()
		if p.stopWatch != nil {
			p.stopWatch()
			p.stopWatch = nil
		}
	}
	p.events.Stop()
	if err := p.store.Close(); err != nil {
		p.log.Warn("log store close failed", "error", err)
	}
	if p.vault != nil {
		if err := p.vault.Close(); err != nil {
			p.log.Warn("archive close failed", "error", err)
		}
	}
	p.log.Info("diagnostics pipeline stopped")
}

// Classify resolves any error to its place in the taxonomy. Pure: no
// logging, no tracking.
func (p *Pipeline) Classify(err error) *errsys.Error {
	return errsys.Classify(err)
}

// Log records one diagnostic entry in the rotating store. The source
// location captured is the caller's.
func (p *Pipeline) Log(message string, severity errsys.Severity, category string, metadata map[string]string) {
	p.store.LogSkip(1, p.redactCounted(message), severity, category, metadata)
}

// Track classifies err and records it in the analytics window, the
// archive, and on the bus, without writing a log entry. A nil err is a
// no-op.
func (p *Pipeline) Track(err error, category string) {
	if err == nil {
		return
	}
	p.trackClassified(p.Classify(err), category)
}

// Report runs the full flow for one error: classify, write a log
// entry, then track. It returns the classified error so callers can
// surface the recovery hint. A nil err returns nil and records
// nothing.
func (p *Pipeline) Report(err error, category string) *errsys.Error {
	if err == nil {
		return nil
	}
	e := p.Classify(err)
	p.reportClassified(e, category, 2)
	return e
}

// reportClassified writes the log entry and tracks the error. skip is
// the LogSkip frame count that makes the entry carry the original
// call site.
func (p *Pipeline) reportClassified(e *errsys.Error, category string, skip int) {
	p.store.LogSkip(skip, p.redactCounted(e.Message()), e.Severity(), category, errEntryMetadata(e))
	p.trackClassified(e, category)
}

// trackClassified feeds one classified error to analytics, the bus,
// and the archive. Failures are logged and swallowed.
func (p *Pipeline) trackClassified(e *errsys.Error, category string) {
	if e == nil {
		return
	}

	ev, err := p.engine.TrackEvent(e, category)
	if err != nil {
		p.log.Warn("analytics track failed", "error", err)
	}
	p.recorder.SetWindowSize(p.engine.Count())
	p.events.Publish(bus.NewErrorEvent(e, category))

	if p.vault != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		if err := p.vault.Insert(ctx, ev); err != nil {
			p.log.Warn("archive insert failed", "error", err)
		}
		cancel()
	}
}

// redactCounted redacts text and bumps the per-pattern redaction
// counters. The store redacts again downstream; that second pass is
// idempotent.
func (p *Pipeline) redactCounted(text string) string {
	out, hits := p.scrubber.RedactDetailed(text)
	if len(hits) == 0 {
		return out
	}
	perPattern := make(map[string]int, len(hits))
	for _, r := range hits {
		perPattern[r.Type]++
	}
	for name, n := range perPattern {
		p.recorder.RecordRedactions(name, n)
	}
	return out
}

// errEntryMetadata builds the log metadata for a classified error:
// its context metadata plus the stable code and kind name.
func errEntryMetadata(e *errsys.Error) map[string]string {
	md := make(map[string]string, len(e.Context.Metadata)+2)
	for k, v := range e.Context.Metadata {
		md[k] = v
	}
	md["code"] = strconv.Itoa(e.Code())
	md["type"] = e.Kind.String()
	return md
}

// Status summarizes the pipeline for CLI and dashboard consumers.
func (p *Pipeline) Status() map[string]interface{} {
	p.mu.Lock()
	started, startedAt := p.started, p.startedAt
	p.mu.Unlock()

	st := map[string]interface{}{
		"app_version":     p.cfg.AppVersion,
		"device":          device.Collect(),
		"running":         started,
		"connectivity":    p.monitor.Snapshot(),
		"events_tracked":  p.engine.Count(),
		"counters":        p.recorder.Snapshot(),
		"archive_enabled": p.vault != nil,
	}
	if started {
		st["uptime_seconds"] = int64(time.Since(startedAt).Seconds())
	}
	if size, err := p.store.TotalSize(); err == nil {
		st["log_bytes"] = size
	}
	return st
}

// Events returns the bus for subscribers (dashboard tails, tests).
func (p *Pipeline) Events() *bus.Bus { return p.events }

// Metrics returns the Prometheus recorder.
func (p *Pipeline) Metrics() *metrics.Recorder { return p.recorder }

// Monitor returns the connectivity monitor.
func (p *Pipeline) Monitor() *netmon.Monitor { return p.monitor }

// Engine returns the analytics engine.
func (p *Pipeline) Engine() *analytics.Engine { return p.engine }

// Store returns the rotating log store.
func (p *Pipeline) Store() *logstore.Store { return p.store }

// Archive returns the event archive, or nil when archiving is off.
func (p *Pipeline) Archive() *archive.Archive { return p.vault }

// Policy returns the configured retry policy.
func (p *Pipeline) Policy() retry.Policy { return p.policy }

// Do runs op under the pipeline's retry policy and feeds the terminal
// failure, if any, through the full reporting flow.
func Do[T any](ctx context.Context, p *Pipeline, category string, op retry.Operation[T]) retry.Outcome[T] {
	out := retry.Do(ctx, p.policy, op)
	p.observeOutcome(out.Err, out.Attempts, category)
	return out
}

// DoHTTP is Do for HTTP operations: the connectivity monitor
// short-circuits attempts while the device is offline, and non-2xx
// statuses classify through the taxonomy.
func DoHTTP[T any](ctx context.Context, p *Pipeline, category string, op retry.HTTPOperation[T]) retry.Outcome[T] {
	out := retry.DoHTTP(ctx, p.policy, p.monitor, op)
	p.observeOutcome(out.Err, out.Attempts, category)
	return out
}

// observeOutcome records the retry counter and reports the terminal
// error. Zero attempts means the loop never ran (offline
// short-circuit), which counts as aborted rather than exhausted.
func (p *Pipeline) observeOutcome(e *errsys.Error, attempts int, category string) {
	switch {
	case e == nil:
		p.recorder.RecordRetry(metrics.RetryOutcomeSuccess)
	case e.Retryable() && attempts > 0:
		p.recorder.RecordRetry(metrics.RetryOutcomeExhausted)
	default:
		p.recorder.RecordRetry(metrics.RetryOutcomeAborted)
	}
	if e == nil {
		return
	}
	p.reportClassified(e, category, 3)
}
