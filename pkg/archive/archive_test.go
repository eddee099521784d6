package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armorclaw/diagnostics/pkg/analytics"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "archive.db")
	a, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// testEvent builds an event with a second-granular timestamp so stored
// and scanned times compare equal.
func testEvent(kind errsys.Kind, ts time.Time, user string) analytics.ErrorEvent {
	return analytics.ErrorEvent{
		Timestamp: time.Unix(ts.Unix(), 0),
		ErrorType: kind.String(),
		Code:      kind.Code(),
		Domain:    kind.Domain(),
		Severity:  kind.Severity(),
		Message:   kind.Message(),
		Category:  "general",
		UserID:    user,
	}
}

func TestInsertQueryRoundTrip(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	ts := time.Unix(time.Now().Add(-time.Hour).Unix(), 0)
	ev := analytics.ErrorEvent{
		ID:         "ev-1",
		Timestamp:  ts,
		ErrorType:  "Timeout",
		Code:       1006,
		Domain:     errsys.DomainNetwork,
		Severity:   errsys.SeverityWarning,
		Category:   "sync",
		Message:    "request timed out",
		UserID:     "u-1",
		SessionID:  "s-1",
		Device:     "pixel-7",
		AppVersion: "1.4.2",
		Metadata:   map[string]string{"endpoint": "/v1/sync"},
	}
	require.NoError(t, a.Insert(ctx, ev))

	records, err := a.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "ev-1", rec.ID)
	assert.True(t, rec.FirstSeen.Equal(ts))
	assert.True(t, rec.LastSeen.Equal(ts))
	assert.Equal(t, 1, rec.Occurrences)
	assert.Equal(t, "Timeout", rec.ErrorType)
	assert.Equal(t, 1006, rec.Code)
	assert.Equal(t, errsys.DomainNetwork, rec.Domain)
	assert.Equal(t, errsys.SeverityWarning, rec.Severity)
	assert.Equal(t, "sync", rec.Category)
	assert.Equal(t, "u-1", rec.UserID)
	assert.Equal(t, "s-1", rec.SessionID)
	assert.Equal(t, "pixel-7", rec.Device)
	assert.Equal(t, "1.4.2", rec.AppVersion)
	assert.Equal(t, map[string]string{"endpoint": "/v1/sync"}, rec.Metadata)
}

func TestSameMinuteRepeatsCollapse(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	minute := time.Unix(time.Now().Add(-time.Hour).Truncate(time.Minute).Unix(), 0)
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindTimeout, minute.Add(5*time.Second), "u-1")))
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindTimeout, minute.Add(25*time.Second), "u-2")))
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindTimeout, minute.Add(59*time.Second), "u-3")))

	// Same minute, different code: its own row.
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindDNSFailure, minute.Add(30*time.Second), "u-1")))

	// Same code, five minutes on: the burst is over.
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindTimeout, minute.Add(5*time.Minute), "u-1")))

	records, err := a.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first.
	assert.Equal(t, "Timeout", records[0].ErrorType)
	assert.Equal(t, 1, records[0].Occurrences)
	assert.True(t, records[0].LastSeen.Equal(minute.Add(5*time.Minute)))

	var burst Record
	for _, rec := range records {
		if rec.ErrorType == "Timeout" && rec.Occurrences > 1 {
			burst = rec
		}
	}
	assert.Equal(t, 3, burst.Occurrences)
	assert.True(t, burst.FirstSeen.Equal(minute.Add(5*time.Second)))
	assert.True(t, burst.LastSeen.Equal(minute.Add(59*time.Second)))
	// The collapsed row keeps the first event's identity.
	assert.Equal(t, "u-1", burst.UserID)
}

func TestQueryFilters(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	now := time.Unix(time.Now().Unix(), 0)
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindTimeout, now.Add(-3*time.Hour), "u-1")))
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindConnectionFailed, now.Add(-2*time.Hour), "u-2")))
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindRecordNotFound, now.Add(-1*time.Hour), "u-3")))

	byDomain, err := a.Query(ctx, Filter{Domain: errsys.DomainDatabase})
	require.NoError(t, err)
	assert.Len(t, byDomain, 2)

	bySeverity, err := a.Query(ctx, Filter{MinSeverity: errsys.SeverityCritical})
	require.NoError(t, err)
	require.Len(t, bySeverity, 1)
	assert.Equal(t, "ConnectionFailed", bySeverity[0].ErrorType)

	byCode, err := a.Query(ctx, Filter{Code: 1006})
	require.NoError(t, err)
	require.Len(t, byCode, 1)
	assert.Equal(t, "Timeout", byCode[0].ErrorType)

	byType, err := a.Query(ctx, Filter{ErrorType: "RecordNotFound"})
	require.NoError(t, err)
	assert.Len(t, byType, 1)

	windowed, err := a.Query(ctx, Filter{
		Since: now.Add(-150 * time.Minute),
		Until: now.Add(-90 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "ConnectionFailed", windowed[0].ErrorType)

	limited, err := a.Query(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "RecordNotFound", limited[0].ErrorType, "limit keeps the newest row")
}

func TestStatsSummarizes(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	minute := time.Unix(time.Now().Add(-time.Hour).Truncate(time.Minute).Unix(), 0)
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindTimeout, minute, "")))
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindTimeout, minute.Add(10*time.Second), "")))
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindTimeout, minute.Add(20*time.Second), "")))
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindDNSFailure, minute.Add(2*time.Minute), "")))

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 4, stats.Occurrences)
	assert.True(t, stats.OldestSeen.Equal(minute))
	assert.True(t, stats.NewestSeen.Equal(minute.Add(2*time.Minute)))
	assert.Greater(t, stats.SizeBytes, int64(0))
}

func TestStatsEmptyArchive(t *testing.T) {
	a := newTestArchive(t)

	stats, err := a.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Records)
	assert.Equal(t, 0, stats.Occurrences)
	assert.True(t, stats.OldestSeen.IsZero())
	assert.True(t, stats.NewestSeen.IsZero())
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindTimeout, now.AddDate(0, 0, -100), "")))
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindDNSFailure, now.Add(-time.Hour), "")))

	removed, err := a.Cleanup(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	records, err := a.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "DNSFailure", records[0].ErrorType)
}

func TestCleanupDefaultsToConfiguredRetention(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindTimeout, now.AddDate(0, 0, -120), "")))
	require.NoError(t, a.Insert(ctx, testEvent(errsys.KindDNSFailure, now, "")))

	removed, err := a.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "falls back to the 90-day default")
}

func TestInsertBatch(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	now := time.Unix(time.Now().Unix(), 0)
	events := []analytics.ErrorEvent{
		testEvent(errsys.KindTimeout, now.Add(-3*time.Minute), ""),
		testEvent(errsys.KindDNSFailure, now.Add(-2*time.Minute), ""),
		testEvent(errsys.KindServerError, now.Add(-1*time.Minute), ""),
	}
	n, err := a.InsertBatch(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records, err := a.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "archive.db")
	a, err := New(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	insertErr := a.Insert(context.Background(), testEvent(errsys.KindTimeout, time.Now(), ""))
	assert.True(t, errsys.IsKind(insertErr, errsys.KindConnectionFailed))
}

func TestEncryptedArchiveRejectsWrongKey(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(dir, "sealed.db")
	cfg.EncryptionKey = "correct horse battery staple"

	a, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Insert(context.Background(), testEvent(errsys.KindTimeout, time.Now(), "u-1")))
	require.NoError(t, a.Close())

	// Same key reopens and sees the data.
	a2, err := New(cfg, nil)
	require.NoError(t, err)
	records, err := a2.Query(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	require.NoError(t, a2.Close())

	// A different key cannot read the file.
	bad := cfg
	bad.EncryptionKey = "not the key"
	_, err = New(bad, nil)
	assert.Error(t, err)
}
