// Package logstore persists diagnostic events to a bounded set of
// rotating, privacy-filtered log files. Logging is best-effort by
// contract: sink failures are absorbed here and never reach the
// caller, because this code exists to observe failures elsewhere, not
// to introduce new ones.
package logstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/armorclaw/diagnostics/internal/bus"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
	"github.com/armorclaw/diagnostics/pkg/privacy"
)

// Config holds log store configuration
type Config struct {
	// Dir is the directory holding the rotating log files.
	Dir string
	// MaxFileSize is the rotation threshold in bytes for the active file.
	MaxFileSize int64
	// MaxLogFiles bounds how many files are kept on disk.
	MaxLogFiles int
	// MinSeverity drops entries below this level before any other work.
	MinSeverity errsys.Severity
	// ConsoleEnabled mirrors accepted entries to the console sink.
	ConsoleEnabled bool
	// FileEnabled writes accepted entries to the rotating file sink.
	FileEnabled bool
	// PrivacyFiltering redacts messages and metadata before persisting.
	PrivacyFiltering bool
}

// DefaultConfig returns default log store configuration
func DefaultConfig() Config {
	return Config{
		Dir:              "logs",
		MaxFileSize:      1 << 20,
		MaxLogFiles:      5,
		MinSeverity:      errsys.SeverityInfo,
		ConsoleEnabled:   false,
		FileEnabled:      true,
		PrivacyFiltering: true,
	}
}

// Store is an append-only, size-bounded, rotating log sink. All sink
// state is owned by the store and serialized behind its lock; writes
// land in call order and the rotation check runs synchronously after
// the write that crossed the threshold.
type Store struct {
	cfg      Config
	scrubber *privacy.Scrubber
	events   *bus.Bus
	console  io.Writer

	mu       sync.Mutex
	file     *os.File
	filePath string
	fileSize int64
}

// New creates a log store. The active file opens lazily on the first
// accepted entry, so construction cannot fail; a store whose directory
// turns out to be unusable degrades to the console sink.
func New(cfg Config, scrubber *privacy.Scrubber, events *bus.Bus) *Store {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultConfig().MaxFileSize
	}
	if cfg.MaxLogFiles <= 0 {
		cfg.MaxLogFiles = DefaultConfig().MaxLogFiles
	}

	return &Store{
		cfg:      cfg,
		scrubber: scrubber,
		events:   events,
		console:  os.Stdout,
	}
}

// Log records one diagnostic event. Entries below the configured
// severity are dropped before any redaction or I/O.
func (s *Store) Log(message string, severity errsys.Severity, category string, metadata map[string]string) {
	s.LogSkip(1, message, severity, category, metadata)
}

// LogSkip is Log with the source location lifted skip extra frames up
// the stack, for wrappers that forward application call sites.
func (s *Store) LogSkip(skip int, message string, severity errsys.Severity, category string, metadata map[string]string) {
	if !severity.AtLeast(s.cfg.MinSeverity) {
		return
	}
	if category == "" {
		category = "general"
	}

	if s.cfg.PrivacyFiltering && s.scrubber != nil {
		message = s.scrubber.Redact(message)
		metadata = s.scrubber.RedactMetadata(metadata)
	}

	entry := Entry{
		Timestamp: time.Now(),
		Severity:  severity,
		Category:  category,
		Message:   message,
		Metadata:  metadata,
	}
	if pc, file, line, ok := runtime.Caller(skip + 1); ok {
		entry.File = filepath.Base(file)
		entry.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			entry.Function = shortFuncName(fn.Name())
		}
	}

	line := entry.Format()

	s.mu.Lock()
	if s.cfg.ConsoleEnabled {
		_, _ = fmt.Fprintln(s.console, line)
	}
	if s.cfg.FileEnabled {
		// Sink failures are deliberately discarded: logging never
		// propagates errors to the host application.
		_ = s.writeLine(line)
	}
	s.mu.Unlock()

	if s.events != nil {
		s.events.Publish(bus.NewLogEvent(line, severity))
	}
}

// writeLine appends one line to the active file, opening it first when
// needed, then rotates if the write crossed the size threshold.
// Callers hold s.mu.
func (s *Store) writeLine(line string) error {
	if s.file == nil {
		if err := s.openActive(); err != nil {
			return err
		}
	}

	n, err := s.file.WriteString(line + "\n")
	s.fileSize += int64(n)
	if err != nil {
		return err
	}

	if s.fileSize >= s.cfg.MaxFileSize {
		return s.rotate()
	}
	return nil
}

// rotate closes the active file, prunes the oldest files until the
// count is back under the cap, and opens a fresh file. Callers hold
// s.mu.
func (s *Store) rotate() error {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	files, err := s.list()
	if err != nil {
		return err
	}
	for len(files) >= s.cfg.MaxLogFiles {
		oldest := files[len(files)-1]
		if err := os.Remove(filepath.Join(s.cfg.Dir, oldest.Name)); err != nil {
			return err
		}
		files = files[:len(files)-1]
	}

	if err := s.openActive(); err != nil {
		return err
	}
	if s.events != nil {
		s.events.Publish(bus.NewRotationEvent(filepath.Base(s.filePath)))
	}
	return nil
}

// openActive creates the directory and a uniquely named active file.
// Nanoseconds in the name keep rotation bursts within one second from
// colliding, and make lexical order match creation order. Callers
// hold s.mu.
func (s *Store) openActive() error {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return err
	}

	now := time.Now()
	name := fmt.Sprintf("diag-%s-%09d.log", now.Format("20060102-150405"), now.Nanosecond())
	path := filepath.Join(s.cfg.Dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	s.file = f
	s.filePath = path
	s.fileSize = 0
	return nil
}

// Close releases the active file handle. The store stays usable; the
// next accepted entry reopens a file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
