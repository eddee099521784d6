// Package archive persists error events to a local SQLite database so
// they can be queried beyond the in-memory analytics window. The
// archive is retention-bounded: rows older than the configured horizon
// are pruned, never kept indefinitely.
package archive

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mutecomm/go-sqlcipher/v4"
	_ "modernc.org/sqlite"

	"github.com/armorclaw/diagnostics/pkg/analytics"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
	"github.com/armorclaw/diagnostics/pkg/logger"
)

// Config controls where the archive lives and how long rows are kept.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// RetentionDays bounds how long rows are kept. Cleanup removes
	// rows whose last occurrence is older than this horizon.
	RetentionDays int

	// EncryptionKey, when non-empty, switches to the SQLCipher driver
	// and encrypts the database at rest. The key is a passphrase; the
	// page key is derived from it.
	EncryptionKey string
}

// DefaultConfig returns default archive configuration.
func DefaultConfig() Config {
	return Config{
		Path:          "archive.db",
		RetentionDays: 90,
	}
}

// Archive is a SQLite-backed store of error events. Repeated
// occurrences of the same code within one wall-clock minute collapse
// into a single row with an occurrence counter instead of duplicate
// rows.
type Archive struct {
	cfg Config
	log *logger.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	first_seen INTEGER NOT NULL,
	last_seen INTEGER NOT NULL,
	occurrences INTEGER NOT NULL DEFAULT 1,
	error_type TEXT NOT NULL,
	code INTEGER NOT NULL,
	domain TEXT NOT NULL,
	severity INTEGER NOT NULL,
	category TEXT NOT NULL,
	message TEXT NOT NULL,
	user_id TEXT,
	session_id TEXT,
	device TEXT,
	app_version TEXT,
	metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_last_seen ON events(last_seen);
CREATE INDEX IF NOT EXISTS idx_events_code ON events(code, last_seen);

CREATE TABLE IF NOT EXISTS archive_meta (key TEXT PRIMARY KEY, value TEXT);
`

// New opens (creating if needed) the archive database and prepares its
// schema.
func New(cfg Config, log *logger.Logger) (*Archive, error) {
	def := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = def.RetentionDays
	}
	if log == nil {
		log = logger.Discard()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errsys.Wrap(errsys.KindConnectionFailed, err)
		}
	}

	driver, dsn := cfg.dataSource()
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errsys.Wrap(errsys.KindConnectionFailed, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errsys.Wrap(errsys.KindConnectionFailed, err)
	}

	a := &Archive{
		cfg: cfg,
		log: log.WithComponent("archive"),
		db:  db,
	}
	if err := a.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	a.log.Debug("archive opened",
		"path", cfg.Path,
		"encrypted", cfg.EncryptionKey != "")
	return a, nil
}

// dataSource picks the driver and DSN for the configured mode. The
// plain path uses the pure-Go driver; a non-empty key switches to
// SQLCipher with a page key derived from the passphrase.
func (cfg Config) dataSource() (driver, dsn string) {
	if cfg.EncryptionKey != "" {
		sum := sha256.Sum256([]byte(cfg.EncryptionKey))
		return "sqlite3", fmt.Sprintf("file:%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096",
			cfg.Path, hex.EncodeToString(sum[:]))
	}
	return "sqlite", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", cfg.Path)
}

func (a *Archive) initSchema(ctx context.Context) error {
	// WAL keeps readers from blocking the insert path; the busy
	// timeout covers the remaining write contention.
	if _, err := a.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return errsys.Wrap(errsys.KindMigrationFailed, err)
	}
	if _, err := a.db.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
		return errsys.Wrap(errsys.KindMigrationFailed, err)
	}
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return errsys.Wrap(errsys.KindMigrationFailed, err)
	}
	_, err := a.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO archive_meta (key, value) VALUES ('schema_version', ?)",
		fmt.Sprint(schemaVersion))
	if err != nil {
		return errsys.Wrap(errsys.KindMigrationFailed, err)
	}
	return nil
}

// Insert stores one event. When a row with the same code already
// carries an occurrence in the same wall-clock minute, that row's
// counter is bumped instead of inserting a duplicate.
func (a *Archive) Insert(ctx context.Context, ev analytics.ErrorEvent) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errsys.E(errsys.KindConnectionFailed).WithDetail("archive is closed")
	}
	a.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	minute := ev.Timestamp.Truncate(time.Minute)

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errsys.Wrap(errsys.KindTransactionFailed, err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM events
		WHERE code = ? AND last_seen >= ? AND last_seen < ?
		ORDER BY last_seen DESC
		LIMIT 1`,
		ev.Code, minute.Unix(), minute.Add(time.Minute).Unix(),
	).Scan(&existing)

	switch {
	case err == sql.ErrNoRows:
		var metadata sql.NullString
		if len(ev.Metadata) > 0 {
			raw, merr := json.Marshal(ev.Metadata)
			if merr != nil {
				return errsys.Wrap(errsys.KindSerializationFailed, merr)
			}
			metadata = sql.NullString{String: string(raw), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (
				id, first_seen, last_seen, occurrences, error_type, code,
				domain, severity, category, message, user_id, session_id,
				device, app_version, metadata
			) VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.Timestamp.Unix(), ev.Timestamp.Unix(), ev.ErrorType, ev.Code,
			string(ev.Domain), int(ev.Severity), ev.Category, ev.Message,
			ev.UserID, ev.SessionID, ev.Device, ev.AppVersion, metadata,
		)
		if err != nil {
			return errsys.Wrap(errsys.KindQueryFailed, err)
		}
	case err != nil:
		return errsys.Wrap(errsys.KindQueryFailed, err)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE events SET occurrences = occurrences + 1, last_seen = ? WHERE id = ?",
			ev.Timestamp.Unix(), existing)
		if err != nil {
			return errsys.Wrap(errsys.KindQueryFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errsys.Wrap(errsys.KindTransactionFailed, err)
	}
	return nil
}

// Path returns the database file location.
func (a *Archive) Path() string {
	return a.cfg.Path
}

// Close releases the database handle. Safe to call more than once.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.db.Close(); err != nil {
		return errsys.Classify(err)
	}
	return nil
}
