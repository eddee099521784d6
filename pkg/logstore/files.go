package logstore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

const (
	filePrefix = "diag-"
	fileSuffix = ".log"
)

// LogFile describes one on-disk log file.
type LogFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Files lists the on-disk log files, newest first.
func (s *Store) Files() ([]LogFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

// ReadFile returns the full text of one log file by name. Only names
// produced by this store are accepted.
func (s *Store) ReadFile(name string) (string, error) {
	if name != filepath.Base(name) ||
		!strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", errsys.E(errsys.KindInvalidInput).WithMeta("file", name)
	}

	data, err := os.ReadFile(filepath.Join(s.cfg.Dir, name))
	if err != nil {
		return "", errsys.Classify(err)
	}
	return string(data), nil
}

// TotalSize returns the aggregate size of all log files in bytes.
func (s *Store) TotalSize() (int64, error) {
	files, err := s.Files()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total, nil
}

// Clear deletes every log file and opens a fresh active file, leaving
// the store immediately writable.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	files, err := s.list()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(filepath.Join(s.cfg.Dir, f.Name)); err != nil {
			return errsys.Classify(err)
		}
	}

	return s.openActive()
}

// list reads the directory and returns log files newest first. File
// names embed a nanosecond timestamp, so lexical order is creation
// order. Callers hold s.mu.
func (s *Store) list() ([]LogFile, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errsys.Classify(err)
	}

	files := make([]LogFile, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, LogFile{
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name > files[j].Name
	})
	return files, nil
}
