// Package bus provides in-process fan-out of diagnostics events.
// Components publish tracked errors, connectivity transitions, and log
// activity; subscribers (dashboard streams, schedulers) receive them
// without polling.
package bus

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
	"github.com/armorclaw/diagnostics/pkg/logger"
)

// Topic tags the kind of activity an event reports.
type Topic string

const (
	TopicError   Topic = "error.tracked"
	TopicStatus  Topic = "status.changed"
	TopicLog     Topic = "log.entry"
	TopicReport  Topic = "report.generated"
	TopicPattern Topic = "pattern.detected"
)

// Event is the value delivered to subscribers. Events cross the bus by
// value; no subscriber shares state with a publisher.
type Event struct {
	ID        string            `json:"id"`
	Topic     Topic             `json:"topic"`
	Domain    errsys.Domain     `json:"domain,omitempty"`
	Severity  errsys.Severity   `json:"severity"`
	Code      int               `json:"code,omitempty"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// NewErrorEvent builds a TopicError event from a classified error.
func NewErrorEvent(e *errsys.Error, category string) Event {
	return Event{
		Topic:    TopicError,
		Domain:   e.Domain(),
		Severity: e.Severity(),
		Code:     e.Code(),
		Message:  e.Message(),
		Fields:   map[string]string{"category": category, "type": e.Kind.String()},
	}
}

// NewStatusEvent builds a TopicStatus event for a connectivity change.
func NewStatusEvent(status, linkType string) Event {
	return Event{
		Topic:    TopicStatus,
		Severity: errsys.SeverityInfo,
		Message:  fmt.Sprintf("connectivity %s (%s)", status, linkType),
		Fields:   map[string]string{"status": status, "link_type": linkType},
	}
}

// NewLogEvent builds a TopicLog event mirroring a formatted store line.
func NewLogEvent(line string, severity errsys.Severity) Event {
	return Event{
		Topic:    TopicLog,
		Severity: severity,
		Message:  line,
	}
}

// NewRotationEvent builds a TopicLog event marking a log file rotation.
// The rotation field distinguishes it from ordinary entries.
func NewRotationEvent(file string) Event {
	return Event{
		Topic:    TopicLog,
		Severity: errsys.SeverityInfo,
		Message:  "log rotated to " + file,
		Fields:   map[string]string{"rotation": file},
	}
}

// NewReportEvent builds a TopicReport event announcing a generated
// diagnostics report.
func NewReportEvent(totalErrors, recommendations int) Event {
	return Event{
		Topic:    TopicReport,
		Severity: errsys.SeverityInfo,
		Message:  fmt.Sprintf("diagnostics report generated: %d errors, %d recommendations", totalErrors, recommendations),
		Fields: map[string]string{
			"total_errors":    strconv.Itoa(totalErrors),
			"recommendations": strconv.Itoa(recommendations),
		},
	}
}

// Filter defines which events a subscriber wants to receive
type Filter struct {
	Topics      []Topic         // Only these topics (empty = all topics)
	Domain      errsys.Domain   // Only this error domain (empty = all)
	MinSeverity errsys.Severity // Drop events below this severity
}

// Subscriber represents a client subscribed to receive events
type Subscriber struct {
	ID            string
	Filter        Filter
	EventChannel  chan Event
	SubscribeTime time.Time

	mu     sync.Mutex
	closed bool // Track if channel is already closed
}

func (s *Subscriber) closeChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.EventChannel)
	}
}

// Config holds bus configuration
type Config struct {
	BufferSize     int // Per-subscriber channel buffer
	MaxSubscribers int // Maximum concurrent subscribers
	RecentSize     int // Events kept for replay to late subscribers
}

// DefaultConfig returns default bus configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:     64,
		MaxSubscribers: 64,
		RecentSize:     100,
	}
}

// Bus manages event distribution to subscribers
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	recent      *ring
	cfg         Config
	log         *logger.Logger
	stopped     bool

	published int64
	dropped   int64
}

// New creates a new bus
func New(cfg Config, log *logger.Logger) *Bus {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.MaxSubscribers < 1 {
		cfg.MaxSubscribers = DefaultConfig().MaxSubscribers
	}
	if cfg.RecentSize < 1 {
		cfg.RecentSize = DefaultConfig().RecentSize
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Bus{
		subscribers: make(map[string]*Subscriber),
		recent:      newRing(cfg.RecentSize),
		cfg:         cfg,
		log:         log.WithComponent("bus"),
	}
}

// Publish delivers an event to every matching subscriber. Slow
// subscribers have the event dropped rather than blocking the
// publisher. A zero ID and timestamp are filled in.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.recent.add(ev)
	b.published++

	for id, sub := range b.subscribers {
		if !matchesFilter(ev, sub.Filter) {
			continue
		}
		select {
		case sub.EventChannel <- ev:
		default:
			// Channel full, subscriber slow - drop and keep going
			b.dropped++
			b.log.Debug("event dropped",
				"subscriber_id", id,
				"topic", string(ev.Topic))
		}
	}
}

// Subscribe creates a new subscription for receiving events
func (b *Bus) Subscribe(filter Filter) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return nil, ErrBusStopped()
	}
	if len(b.subscribers) >= b.cfg.MaxSubscribers {
		return nil, ErrSubscriberLimit(b.cfg.MaxSubscribers)
	}

	sub := &Subscriber{
		ID:            "sub-" + uuid.NewString()[:8],
		Filter:        filter,
		EventChannel:  make(chan Event, b.cfg.BufferSize),
		SubscribeTime: time.Now(),
	}
	b.subscribers[sub.ID] = sub

	b.log.Debug("subscriber created", "subscriber_id", sub.ID)

	return sub, nil
}

// Unsubscribe removes a subscription and closes its channel
func (b *Bus) Unsubscribe(subscriberID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.subscribers[subscriberID]
	if !exists {
		return ErrSubscriberNotFound(subscriberID)
	}

	sub.closeChannel()
	delete(b.subscribers, subscriberID)

	b.log.Debug("subscriber removed", "subscriber_id", subscriberID)

	return nil
}

// Recent returns up to n of the most recently published events in
// chronological order. Used to prime late subscribers.
func (b *Bus) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.recent.snapshot(n)
}

// Stats returns bus statistics
func (b *Bus) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]interface{}{
		"active_subscribers": len(b.subscribers),
		"max_subscribers":    b.cfg.MaxSubscribers,
		"events_published":   b.published,
		"events_dropped":     b.dropped,
		"recent_buffered":    b.recent.len(),
	}
}

// Stop closes every subscriber channel and rejects further publishes
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.stopped = true

	for id, sub := range b.subscribers {
		sub.closeChannel()
		delete(b.subscribers, id)
	}

	b.log.Debug("bus stopped",
		"events_published", b.published,
		"events_dropped", b.dropped)
}

// matchesFilter checks if an event matches a subscriber's filter
func matchesFilter(ev Event, filter Filter) bool {
	if len(filter.Topics) > 0 {
		match := false
		for _, topic := range filter.Topics {
			if ev.Topic == topic {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if filter.Domain != "" && ev.Domain != filter.Domain {
		return false
	}

	return ev.Severity.AtLeast(filter.MinSeverity)
}

// ErrBusStopped reports an operation against a stopped bus.
func ErrBusStopped() *errsys.Error {
	return errsys.E(errsys.KindCancelled).WithDetail("event bus stopped")
}

// ErrSubscriberLimit reports the subscriber cap being reached.
func ErrSubscriberLimit(limit int) *errsys.Error {
	return errsys.E(errsys.KindResourceExhausted).
		WithDetailf("subscriber limit %d reached", limit)
}

// ErrSubscriberNotFound reports an unknown subscriber ID.
func ErrSubscriberNotFound(id string) *errsys.Error {
	return errsys.E(errsys.KindInternal).
		WithDetailf("subscriber %s not registered", id)
}
