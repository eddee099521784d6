package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestCanReachAnyResponseCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := newTestMonitor(nil, srv.URL)

	// A 500 still proves the network path works.
	assert.True(t, m.CanReach(context.Background(), srv.URL))
}

func TestCanReachFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead := srv.URL
	srv.Close()

	m := newTestMonitor(nil, dead)

	assert.False(t, m.CanReach(context.Background(), dead))
	assert.False(t, m.CanReach(context.Background(), "http://[::1]:namedport"))
}

func TestCheckInternetFirstSuccessWins(t *testing.T) {
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer first.Close()

	var secondHits atomic.Int32
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHits.Add(1)
	}))
	defer second.Close()

	m := newTestMonitor(nil, first.URL, second.URL)

	assert.True(t, m.CheckInternet(context.Background()))
	assert.Equal(t, int32(0), secondHits.Load())
}

func TestCheckInternetFallsThroughToLaterHosts(t *testing.T) {
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := gone.URL
	gone.Close()

	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer alive.Close()

	m := newTestMonitor(nil, deadURL, alive.URL)

	assert.True(t, m.CheckInternet(context.Background()))
}

func TestCheckInternetAllHostsDown(t *testing.T) {
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := gone.URL
	gone.Close()

	m := newTestMonitor(nil, deadURL)

	assert.False(t, m.CheckInternet(context.Background()))
}

func TestCheckInternetRateLimitReusesLastKnown(t *testing.T) {
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := gone.URL
	gone.Close()

	m := newTestMonitor(nil, deadURL)
	m.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	// Spend the only token on a real probe.
	require.False(t, m.CheckInternet(context.Background()))

	m.mu.Lock()
	m.state.Status = StatusConnected
	m.mu.Unlock()

	// Limiter is drained: the cached state answers, no probe runs.
	assert.True(t, m.CheckInternet(context.Background()))
}

func TestCheckInternetCollapsesConcurrentProbes(t *testing.T) {
	var hits atomic.Int32
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	m := newTestMonitor(nil, slow.URL)

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.CheckInternet(context.Background())
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		assert.True(t, ok, "caller %d", i)
	}
	assert.Less(t, hits.Load(), int32(5), "concurrent checks should share probes")
}
