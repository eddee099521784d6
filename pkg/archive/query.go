package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/armorclaw/diagnostics/pkg/analytics"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

const defaultQueryLimit = 100

// Record is one archived row. Same-minute repeats of a code share a
// row, so FirstSeen/LastSeen bracket the burst and Occurrences counts
// it.
type Record struct {
	ID          string            `json:"id"`
	FirstSeen   time.Time         `json:"first_seen"`
	LastSeen    time.Time         `json:"last_seen"`
	Occurrences int               `json:"occurrences"`
	ErrorType   string            `json:"error_type"`
	Code        int               `json:"code"`
	Domain      errsys.Domain     `json:"domain"`
	Severity    errsys.Severity   `json:"severity"`
	Category    string            `json:"category"`
	Message     string            `json:"message"`
	UserID      string            `json:"user_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Device      string            `json:"device,omitempty"`
	AppVersion  string            `json:"app_version,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	Domain      errsys.Domain
	MinSeverity errsys.Severity
	ErrorType   string
	Code        int
	Category    string
	Since       time.Time
	Until       time.Time
	Limit       int
}

// Stats summarizes the archive contents.
type Stats struct {
	Records     int       `json:"records"`
	Occurrences int       `json:"occurrences"`
	OldestSeen  time.Time `json:"oldest_seen"`
	NewestSeen  time.Time `json:"newest_seen"`
	SizeBytes   int64     `json:"size_bytes"`
}

// Query returns archived rows matching the filter, newest first.
func (a *Archive) Query(ctx context.Context, f Filter) ([]Record, error) {
	if f.Limit <= 0 {
		f.Limit = defaultQueryLimit
	}

	where := []string{"1=1"}
	args := []interface{}{}
	if f.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, string(f.Domain))
	}
	if f.MinSeverity > 0 {
		where = append(where, "severity >= ?")
		args = append(args, int(f.MinSeverity))
	}
	if f.ErrorType != "" {
		where = append(where, "error_type = ?")
		args = append(args, f.ErrorType)
	}
	if f.Code != 0 {
		where = append(where, "code = ?")
		args = append(args, f.Code)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if !f.Since.IsZero() {
		where = append(where, "last_seen >= ?")
		args = append(args, f.Since.Unix())
	}
	if !f.Until.IsZero() {
		where = append(where, "last_seen < ?")
		args = append(args, f.Until.Unix())
	}
	args = append(args, f.Limit)

	query := `
		SELECT id, first_seen, last_seen, occurrences, error_type, code,
		       domain, severity, category, message, user_id, session_id,
		       device, app_version, metadata
		FROM events
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY last_seen DESC
		LIMIT ?`

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errsys.Wrap(errsys.KindQueryFailed, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errsys.Wrap(errsys.KindQueryFailed, err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var firstSeen, lastSeen int64
	var domain string
	var severity int
	var user, session, device, appVersion, metadata sql.NullString
	err := rows.Scan(
		&rec.ID, &firstSeen, &lastSeen, &rec.Occurrences, &rec.ErrorType, &rec.Code,
		&domain, &severity, &rec.Category, &rec.Message, &user, &session,
		&device, &appVersion, &metadata,
	)
	if err != nil {
		return Record{}, errsys.Wrap(errsys.KindQueryFailed, err)
	}
	rec.FirstSeen = time.Unix(firstSeen, 0)
	rec.LastSeen = time.Unix(lastSeen, 0)
	rec.Domain = errsys.Domain(domain)
	rec.Severity = errsys.Severity(severity)
	rec.UserID = user.String
	rec.SessionID = session.String
	rec.Device = device.String
	rec.AppVersion = appVersion.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			return Record{}, errsys.Wrap(errsys.KindDecodingFailed, err)
		}
	}
	return rec, nil
}

// Stats reports row and occurrence totals plus the time span covered.
func (a *Archive) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	var oldest, newest sql.NullInt64
	var records, occurs int
	row := a.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(occurrences), 0), MIN(first_seen), MAX(last_seen)
		FROM events`)
	if err := row.Scan(&records, &occurs, &oldest, &newest); err != nil {
		return Stats{}, errsys.Wrap(errsys.KindQueryFailed, err)
	}
	stats.Records = records
	stats.Occurrences = occurs
	if oldest.Valid {
		stats.OldestSeen = time.Unix(oldest.Int64, 0)
	}
	if newest.Valid {
		stats.NewestSeen = time.Unix(newest.Int64, 0)
	}
	if info, err := os.Stat(a.cfg.Path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

// Cleanup deletes rows whose last occurrence is older than the
// retention horizon. A non-positive retentionDays falls back to the
// configured value. Returns the number of rows removed.
func (a *Archive) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = a.cfg.RetentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := a.db.ExecContext(ctx, "DELETE FROM events WHERE last_seen < ?", cutoff.Unix())
	if err != nil {
		return 0, errsys.Wrap(errsys.KindQueryFailed, err)
	}
	removed, _ := result.RowsAffected()
	if removed > 0 {
		a.log.Info("archive pruned", "removed", removed, "retention_days", retentionDays)
	}
	return int(removed), nil
}

// InsertBatch stores a slice of events, stopping at the first failure.
func (a *Archive) InsertBatch(ctx context.Context, events []analytics.ErrorEvent) (int, error) {
	for i, ev := range events {
		if err := a.Insert(ctx, ev); err != nil {
			return i, err
		}
	}
	return len(events), nil
}
