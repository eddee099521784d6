package logstore

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/armorclaw/diagnostics/internal/bus"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
	"github.com/armorclaw/diagnostics/pkg/privacy"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	return New(cfg, privacy.New(), nil)
}

// allText concatenates every on-disk log file, newest first.
func allText(t *testing.T, s *Store) string {
	t.Helper()
	files, err := s.Files()
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	var b strings.Builder
	for _, f := range files {
		text, err := s.ReadFile(f.Name)
		if err != nil {
			t.Fatalf("ReadFile(%s) failed: %v", f.Name, err)
		}
		b.WriteString(text)
	}
	return b.String()
}

func TestLogWritesFormattedLine(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true})
	defer s.Close()

	s.Log("database opened", errsys.SeverityInfo, "database", map[string]string{"path": "/data/app.db"})

	files, err := s.Files()
	if err != nil || len(files) != 1 {
		t.Fatalf("Expected one log file, got %d (err=%v)", len(files), err)
	}

	text := allText(t, s)
	if !strings.Contains(text, "[INFO] [database] database opened | path=/data/app.db (") {
		t.Errorf("Unexpected line format: %q", text)
	}
	if !strings.Contains(text, "store_test.go:") {
		t.Errorf("Expected caller source location, got %q", text)
	}
	if !strings.HasPrefix(text, "[") {
		t.Errorf("Expected timestamp prefix, got %q", text)
	}
}

func TestBelowLevelIsNoop(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true, MinSeverity: errsys.SeverityError})
	defer s.Close()

	s.Log("routine detail", errsys.SeverityInfo, "general", nil)
	s.Log("heads up", errsys.SeverityWarning, "general", nil)

	files, err := s.Files()
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("Expected no files for filtered entries, got %d", len(files))
	}
}

func TestSeverityBoundaryInclusive(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true, MinSeverity: errsys.SeverityWarning})
	defer s.Close()

	s.Log("at the line", errsys.SeverityWarning, "general", nil)

	if text := allText(t, s); !strings.Contains(text, "[WARNING]") {
		t.Errorf("Expected entry at the configured level to land, got %q", text)
	}
}

func TestRedactionBeforePersist(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true, PrivacyFiltering: true})
	defer s.Close()

	s.Log("login failed for jo@example.com", errsys.SeverityWarning, "auth",
		map[string]string{"password": "hunter2", "screen": "login"})

	text := allText(t, s)
	if !strings.Contains(text, "[EMAIL_REDACTED]") {
		t.Errorf("Expected redacted email, got %q", text)
	}
	if !strings.Contains(text, "password=[REDACTED]") {
		t.Errorf("Expected redacted password value, got %q", text)
	}
	if strings.Contains(text, "hunter2") || strings.Contains(text, "jo@example.com") {
		t.Errorf("Sensitive data leaked into the log: %q", text)
	}
	if !strings.Contains(text, "screen=login") {
		t.Errorf("Expected benign metadata to survive, got %q", text)
	}
}

func TestPrivacyFilteringDisabled(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true, PrivacyFiltering: false})
	defer s.Close()

	s.Log("mail to jo@example.com", errsys.SeverityInfo, "debug", nil)

	if text := allText(t, s); !strings.Contains(text, "jo@example.com") {
		t.Errorf("Expected raw text with filtering off, got %q", text)
	}
}

func TestRotationKeepsFileCountBounded(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true, MaxFileSize: 120, MaxLogFiles: 3})
	defer s.Close()

	for i := 0; i < 40; i++ {
		s.Log("a reasonably sized diagnostic payload for rotation", errsys.SeverityInfo, "rotation", nil)

		files, err := s.Files()
		if err != nil {
			t.Fatalf("Files failed: %v", err)
		}
		if len(files) > 3 {
			t.Fatalf("File count exceeded the cap after write %d: %d files", i, len(files))
		}
	}

	files, _ := s.Files()
	if len(files) != 3 {
		t.Errorf("Expected a full window of 3 files, got %d", len(files))
	}
	for i := 1; i < len(files); i++ {
		if files[i-1].Name <= files[i].Name {
			t.Errorf("Expected newest-first ordering, got %s before %s", files[i-1].Name, files[i].Name)
		}
	}
}

func TestNoWriteDroppedDuringRotation(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true, MaxFileSize: 1, MaxLogFiles: 20})
	defer s.Close()

	for i := 0; i < 10; i++ {
		s.Log("unique-payload-"+string(rune('a'+i)), errsys.SeverityInfo, "rotation", nil)
	}

	text := allText(t, s)
	for i := 0; i < 10; i++ {
		marker := "unique-payload-" + string(rune('a'+i))
		if strings.Count(text, marker) != 1 {
			t.Errorf("Expected exactly one copy of %q across all files", marker)
		}
	}
}

func TestReadFileRejectsForeignNames(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true})
	defer s.Close()

	for _, name := range []string{"../secret.log", "diag-../../etc/passwd.log", "notes.txt"} {
		_, err := s.ReadFile(name)
		if !errsys.IsKind(err, errsys.KindInvalidInput) {
			t.Errorf("Expected InvalidInput for %q, got %v", name, err)
		}
	}
}

func TestTotalSizeAggregates(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true, MaxFileSize: 60, MaxLogFiles: 5})
	defer s.Close()

	s.Log("first entry with some content", errsys.SeverityInfo, "size", nil)
	s.Log("second entry with some content", errsys.SeverityInfo, "size", nil)

	total, err := s.TotalSize()
	if err != nil {
		t.Fatalf("TotalSize failed: %v", err)
	}

	files, _ := s.Files()
	var want int64
	for _, f := range files {
		want += f.Size
	}
	if total != want || total == 0 {
		t.Errorf("Expected aggregate %d bytes, got %d", want, total)
	}
}

func TestClearLeavesStoreWritable(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true})
	defer s.Close()

	s.Log("before clear", errsys.SeverityInfo, "general", nil)

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	files, _ := s.Files()
	if len(files) != 1 || files[0].Size != 0 {
		t.Fatalf("Expected one fresh empty file, got %+v", files)
	}

	s.Log("after clear", errsys.SeverityInfo, "general", nil)
	text := allText(t, s)
	if strings.Contains(text, "before clear") || !strings.Contains(text, "after clear") {
		t.Errorf("Expected only post-clear content, got %q", text)
	}
}

func TestConsoleSink(t *testing.T) {
	s := newTestStore(t, Config{ConsoleEnabled: true, FileEnabled: false})
	var buf bytes.Buffer
	s.console = &buf

	s.Log("to console only", errsys.SeverityInfo, "console", nil)

	if !strings.Contains(buf.String(), "[console] to console only") {
		t.Errorf("Expected console line, got %q", buf.String())
	}
	files, _ := s.Files()
	if len(files) != 0 {
		t.Errorf("Expected no files with file sink disabled, got %d", len(files))
	}
}

func TestMetadataRendersSorted(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true})
	defer s.Close()

	s.Log("meta order", errsys.SeverityInfo, "general",
		map[string]string{"c": "3", "a": "1", "b": "2"})

	if text := allText(t, s); !strings.Contains(text, "| a=1,b=2,c=3 (") {
		t.Errorf("Expected sorted metadata pairs, got %q", text)
	}
}

func TestConcurrentWritesAllLand(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true, MaxFileSize: 4096, MaxLogFiles: 10})
	defer s.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				s.Log("concurrent write", errsys.SeverityInfo, "stress", nil)
			}
		}()
	}
	wg.Wait()

	lines := strings.Count(allText(t, s), "\n")
	if lines != 200 {
		t.Errorf("Expected 200 intact lines, got %d", lines)
	}
}

func TestAcceptedEntriesReachBus(t *testing.T) {
	b := bus.New(bus.DefaultConfig(), nil)
	defer b.Stop()
	sub, err := b.Subscribe(bus.Filter{Topics: []bus.Topic{bus.TopicLog}})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	s := New(Config{Dir: t.TempDir(), FileEnabled: true}, privacy.New(), b)
	defer s.Close()

	s.Log("bus mirror", errsys.SeverityWarning, "general", nil)

	select {
	case ev := <-sub.EventChannel:
		if ev.Severity != errsys.SeverityWarning || !strings.Contains(ev.Message, "bus mirror") {
			t.Errorf("Unexpected bus event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a log event on the bus")
	}
}

func TestRotationAnnouncedOnBus(t *testing.T) {
	b := bus.New(bus.DefaultConfig(), nil)
	defer b.Stop()
	sub, err := b.Subscribe(bus.Filter{Topics: []bus.Topic{bus.TopicLog}})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	s := New(Config{Dir: t.TempDir(), FileEnabled: true, MaxFileSize: 32}, privacy.New(), b)
	defer s.Close()

	s.Log("long enough to cross the rotation threshold", errsys.SeverityInfo, "general", nil)

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-sub.EventChannel:
			if ev.Fields["rotation"] != "" {
				if !strings.Contains(ev.Message, "log rotated to ") {
					t.Errorf("Unexpected rotation message: %q", ev.Message)
				}
				return
			}
		case <-deadline:
			t.Fatal("Expected a rotation event on the bus")
		}
	}
}

func TestCloseThenLogReopens(t *testing.T) {
	s := newTestStore(t, Config{FileEnabled: true})

	s.Log("first life", errsys.SeverityInfo, "general", nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s.Log("second life", errsys.SeverityInfo, "general", nil)
	defer s.Close()

	text := allText(t, s)
	if !strings.Contains(text, "first life") || !strings.Contains(text, "second life") {
		t.Errorf("Expected both entries across handle lifetimes, got %q", text)
	}
}
