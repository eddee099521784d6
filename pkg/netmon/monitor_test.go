package netmon

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/armorclaw/diagnostics/internal/bus"
)

func newTestMonitor(events *bus.Bus, hosts ...string) *Monitor {
	m := New(Config{
		CheckInterval: time.Minute,
		ProbeTimeout:  2 * time.Second,
		ProbeHosts:    hosts,
	}, nil, events)
	m.limiter = rate.NewLimiter(rate.Inf, 0)
	return m
}

func waitEvent(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for bus event")
		return bus.Event{}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Second, cfg.CheckInterval)
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout)
	assert.Len(t, cfg.ProbeHosts, 3)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "unknown", StatusUnknown.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "disconnected", StatusDisconnected.String())

	text, err := StatusConnected.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "connected", string(text))
}

func TestUnknownStatusIsNeitherOnlineNorOffline(t *testing.T) {
	m := newTestMonitor(nil, "http://127.0.0.1:1")

	assert.Equal(t, StatusUnknown, m.Status())
	assert.False(t, m.Online())
	assert.False(t, m.Offline())
}

func TestApplyTracksTransitions(t *testing.T) {
	m := newTestMonitor(nil, "http://127.0.0.1:1")

	t1 := time.Now()
	m.apply(update{online: true, link: LinkWifi, at: t1})

	s := m.Snapshot()
	assert.Equal(t, StatusConnected, s.Status)
	assert.Equal(t, LinkWifi, s.Link)
	assert.Equal(t, t1, s.Since)
	assert.Equal(t, t1, s.LastCheck)
	assert.True(t, m.Online())

	// Same status again: Since must not move.
	t2 := t1.Add(30 * time.Second)
	m.apply(update{online: true, link: LinkWired, at: t2})

	s = m.Snapshot()
	assert.Equal(t, t1, s.Since)
	assert.Equal(t, t2, s.LastCheck)
	assert.Equal(t, LinkWired, s.Link)

	t3 := t2.Add(30 * time.Second)
	m.apply(update{online: false, link: LinkWired, at: t3})

	s = m.Snapshot()
	assert.Equal(t, StatusDisconnected, s.Status)
	assert.Equal(t, t3, s.Since)
	assert.False(t, m.Online())
	assert.True(t, m.Offline())
}

func TestMonitorLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b := bus.New(bus.DefaultConfig(), nil)
	defer b.Stop()
	sub, err := b.Subscribe(bus.Filter{Topics: []bus.Topic{bus.TopicStatus}})
	require.NoError(t, err)

	m := newTestMonitor(b, srv.URL)
	require.NoError(t, m.Start())
	require.NoError(t, m.Start())

	ev := waitEvent(t, sub.EventChannel)
	assert.Equal(t, bus.TopicStatus, ev.Topic)
	assert.Equal(t, "connected", ev.Fields["status"])

	require.Eventually(t, m.Online, 3*time.Second, 20*time.Millisecond)
	assert.False(t, m.Snapshot().LastCheck.IsZero())

	stats := m.Stats()
	assert.Equal(t, "connected", stats["status"])
	assert.Equal(t, 1, stats["probe_hosts"])

	m.Stop()
	m.Stop()
}

func TestMonitorFlipsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	b := bus.New(bus.DefaultConfig(), nil)
	defer b.Stop()
	sub, err := b.Subscribe(bus.Filter{Topics: []bus.Topic{bus.TopicStatus}})
	require.NoError(t, err)

	m := newTestMonitor(b, srv.URL)
	require.NoError(t, m.Start())
	defer m.Stop()

	ev := waitEvent(t, sub.EventChannel)
	require.Equal(t, "connected", ev.Fields["status"])

	srv.Close()
	m.Refresh()

	ev = waitEvent(t, sub.EventChannel)
	assert.Equal(t, "disconnected", ev.Fields["status"])
	assert.False(t, m.Online())
}

func TestDetectLinkPrefersWired(t *testing.T) {
	m := newTestMonitor(nil, "http://127.0.0.1:1")
	m.ifaces = func() ([]net.Interface, error) {
		return []net.Interface{
			{Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
			{Name: "wlan0", Flags: net.FlagUp},
			{Name: "eth0", Flags: net.FlagUp},
			{Name: "wwan0", Flags: 0},
		}, nil
	}
	m.ifaceAddrs = func(net.Interface) ([]net.Addr, error) {
		return []net.Addr{&net.IPNet{IP: net.IPv4(192, 168, 1, 10)}}, nil
	}

	assert.Equal(t, LinkWired, m.detectLink())
}

func TestDetectLinkWifiOnly(t *testing.T) {
	m := newTestMonitor(nil, "http://127.0.0.1:1")
	m.ifaces = func() ([]net.Interface, error) {
		return []net.Interface{
			{Name: "wlp3s0", Flags: net.FlagUp},
		}, nil
	}
	m.ifaceAddrs = func(net.Interface) ([]net.Addr, error) {
		return []net.Addr{&net.IPNet{IP: net.IPv4(10, 0, 0, 2)}}, nil
	}

	assert.Equal(t, LinkWifi, m.detectLink())
}

func TestDetectLinkUnknownCases(t *testing.T) {
	m := newTestMonitor(nil, "http://127.0.0.1:1")

	m.ifaces = func() ([]net.Interface, error) {
		return nil, errors.New("netlink broken")
	}
	assert.Equal(t, LinkUnknown, m.detectLink())

	// Up interface without any address does not count.
	m.ifaces = func() ([]net.Interface, error) {
		return []net.Interface{{Name: "eth0", Flags: net.FlagUp}}, nil
	}
	m.ifaceAddrs = func(net.Interface) ([]net.Addr, error) {
		return nil, nil
	}
	assert.Equal(t, LinkUnknown, m.detectLink())
}

func TestClassifyInterface(t *testing.T) {
	tests := []struct {
		name string
		want LinkType
	}{
		{"wlan0", LinkWifi},
		{"wlp2s0", LinkWifi},
		{"eth0", LinkWired},
		{"enp3s0", LinkWired},
		{"eno1", LinkWired},
		{"wwan0", LinkCellular},
		{"ppp0", LinkCellular},
		{"rmnet_data1", LinkCellular},
		{"docker0", LinkUnknown},
		{"veth42ab", LinkUnknown},
		{"tun0", LinkUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyInterface(tt.name), "interface %s", tt.name)
	}
}
