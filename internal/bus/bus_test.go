package bus

import (
	"testing"
	"time"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

func receive(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
		return Event{}
	}
}

func TestPublishReachesMatchingSubscriber(t *testing.T) {
	b := New(DefaultConfig(), nil)
	defer b.Stop()

	sub, err := b.Subscribe(Filter{})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	b.Publish(NewErrorEvent(errsys.E(errsys.KindTimeout), "network"))

	ev := receive(t, sub.EventChannel)
	if ev.Topic != TopicError {
		t.Errorf("Expected topic %s, got %s", TopicError, ev.Topic)
	}
	if ev.Code != 1006 {
		t.Errorf("Expected code 1006, got %d", ev.Code)
	}
	if ev.Fields["category"] != "network" {
		t.Errorf("Expected category field, got %v", ev.Fields)
	}
	if ev.ID == "" {
		t.Error("Expected generated event ID")
	}
	if ev.Timestamp.IsZero() {
		t.Error("Expected stamped timestamp")
	}
}

func TestFilterByTopic(t *testing.T) {
	b := New(DefaultConfig(), nil)
	defer b.Stop()

	sub, _ := b.Subscribe(Filter{Topics: []Topic{TopicStatus}})

	b.Publish(NewErrorEvent(errsys.E(errsys.KindOffline), "network"))
	b.Publish(NewStatusEvent("connected", "wifi"))

	ev := receive(t, sub.EventChannel)
	if ev.Topic != TopicStatus {
		t.Errorf("Expected only status events, got %s", ev.Topic)
	}

	select {
	case extra := <-sub.EventChannel:
		t.Errorf("Unexpected extra event: %v", extra.Topic)
	default:
	}
}

func TestFilterByDomainAndSeverity(t *testing.T) {
	b := New(DefaultConfig(), nil)
	defer b.Stop()

	sub, _ := b.Subscribe(Filter{
		Domain:      errsys.DomainDatabase,
		MinSeverity: errsys.SeverityCritical,
	})

	// Wrong domain.
	b.Publish(NewErrorEvent(errsys.E(errsys.KindTimeout), "network"))
	// Right domain, too mild.
	b.Publish(NewErrorEvent(errsys.E(errsys.KindRecordNotFound), "database"))
	// Right domain, critical.
	b.Publish(NewErrorEvent(errsys.E(errsys.KindConnectionFailed), "database"))

	ev := receive(t, sub.EventChannel)
	if ev.Fields["type"] != "ConnectionFailed" {
		t.Errorf("Expected ConnectionFailed to pass the filter, got %s", ev.Fields["type"])
	}

	select {
	case extra := <-sub.EventChannel:
		t.Errorf("Unexpected extra event: %v", extra.Fields)
	default:
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 1
	b := New(cfg, nil)
	defer b.Stop()

	sub, _ := b.Subscribe(Filter{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(NewStatusEvent("connected", "wifi"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}

	stats := b.Stats()
	if stats["events_dropped"].(int64) != 4 {
		t.Errorf("Expected 4 dropped events, got %v", stats["events_dropped"])
	}
	if got := receive(t, sub.EventChannel); got.Topic != TopicStatus {
		t.Errorf("Expected the buffered event, got %v", got.Topic)
	}
}

func TestRecentReplay(t *testing.T) {
	b := New(DefaultConfig(), nil)
	defer b.Stop()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Topic: TopicLog, Message: string(rune('a' + i))})
	}

	recent := b.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("Expected 3 recent events, got %d", len(recent))
	}
	if recent[0].Message != "c" || recent[2].Message != "e" {
		t.Errorf("Expected chronological tail [c..e], got [%s..%s]",
			recent[0].Message, recent[2].Message)
	}
}

func TestRecentWrapsOldestOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecentSize = 3
	b := New(cfg, nil)
	defer b.Stop()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Topic: TopicLog, Message: string(rune('a' + i))})
	}

	recent := b.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("Expected ring capacity 3, got %d", len(recent))
	}
	if recent[0].Message != "c" {
		t.Errorf("Expected oldest surviving event c, got %s", recent[0].Message)
	}
}

func TestSubscriberLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSubscribers = 1
	b := New(cfg, nil)
	defer b.Stop()

	if _, err := b.Subscribe(Filter{}); err != nil {
		t.Fatalf("First Subscribe failed: %v", err)
	}
	_, err := b.Subscribe(Filter{})
	if err == nil {
		t.Fatal("Expected subscriber limit error")
	}
	if !errsys.IsKind(err, errsys.KindResourceExhausted) {
		t.Errorf("Expected KindResourceExhausted, got %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New(DefaultConfig(), nil)
	defer b.Stop()

	sub, _ := b.Subscribe(Filter{})
	if err := b.Unsubscribe(sub.ID); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	if _, ok := <-sub.EventChannel; ok {
		t.Error("Expected channel closed after unsubscribe")
	}

	if err := b.Unsubscribe("sub-missing"); err == nil {
		t.Error("Expected error for unknown subscriber")
	}
}

func TestStopClosesSubscribersAndRejectsNewWork(t *testing.T) {
	b := New(DefaultConfig(), nil)

	sub, _ := b.Subscribe(Filter{})
	b.Stop()

	if _, ok := <-sub.EventChannel; ok {
		t.Error("Expected channel closed after Stop")
	}

	// Publishing after Stop must be a safe no-op.
	b.Publish(NewStatusEvent("disconnected", "unknown"))

	if _, err := b.Subscribe(Filter{}); err == nil {
		t.Error("Expected Subscribe to fail after Stop")
	}

	// Stop twice must not panic.
	b.Stop()
}

func TestErrorEventMapping(t *testing.T) {
	e := errsys.E(errsys.KindDatabaseCorrupted)
	ev := NewErrorEvent(e, "storage")

	if ev.Domain != errsys.DomainDatabase {
		t.Errorf("Expected database domain, got %s", ev.Domain)
	}
	if ev.Severity != errsys.SeverityFatal {
		t.Errorf("Expected fatal severity, got %v", ev.Severity)
	}
	if ev.Fields["type"] != "DatabaseCorrupted" {
		t.Errorf("Expected type field, got %v", ev.Fields["type"])
	}
}
