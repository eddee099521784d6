// Package netmon tracks network connectivity for the diagnostics
// pipeline. A background loop owns the path state; probe results are
// marshalled onto it through an internal channel, and transitions are
// published to the event bus.
package netmon

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/armorclaw/diagnostics/internal/bus"
	"github.com/armorclaw/diagnostics/pkg/logger"
)

// Status is the last-known connectivity state.
type Status int

const (
	StatusUnknown Status = iota
	StatusConnected
	StatusDisconnected
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LinkType is the kind of network path currently carrying traffic.
type LinkType string

const (
	LinkWifi     LinkType = "wifi"
	LinkCellular LinkType = "cellular"
	LinkWired    LinkType = "wired"
	LinkUnknown  LinkType = "unknown"
)

// State is a point-in-time snapshot of the monitor.
type State struct {
	Status    Status    `json:"status"`
	Link      LinkType  `json:"link_type"`
	Since     time.Time `json:"since"`
	LastCheck time.Time `json:"last_check"`
}

// Config holds monitor configuration
type Config struct {
	CheckInterval time.Duration // How often to re-probe the path state
	ProbeTimeout  time.Duration // Bound on a single reachability probe
	ProbeHosts    []string      // Tried in order until one answers
}

// DefaultConfig returns default monitor configuration
func DefaultConfig() Config {
	return Config{
		CheckInterval: 30 * time.Second,
		ProbeTimeout:  5 * time.Second,
		ProbeHosts: []string{
			"https://www.google.com",
			"https://www.cloudflare.com",
			"https://www.apple.com",
		},
	}
}

type update struct {
	online bool
	link   LinkType
	at     time.Time
}

// Monitor watches connectivity and answers on-demand probes
type Monitor struct {
	cfg    Config
	log    *logger.Logger
	events *bus.Bus

	mu      sync.RWMutex
	state   State
	started bool
	ctx     context.Context
	cancel  context.CancelFunc

	updates chan update
	wg      sync.WaitGroup

	probes  singleflight.Group
	limiter *rate.Limiter
	client  *http.Client

	// Swapped in tests.
	ifaces     func() ([]net.Interface, error)
	ifaceAddrs func(net.Interface) ([]net.Addr, error)
}

// New creates a new connectivity monitor
func New(cfg Config, log *logger.Logger, events *bus.Bus) *Monitor {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	if len(cfg.ProbeHosts) == 0 {
		cfg.ProbeHosts = DefaultConfig().ProbeHosts
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Monitor{
		cfg:     cfg,
		log:     log.WithComponent("netmon"),
		events:  events,
		updates: make(chan update, 4),
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 3),
		client:  &http.Client{Timeout: cfg.ProbeTimeout},
		ifaces:  net.Interfaces,
		ifaceAddrs: func(iface net.Interface) ([]net.Addr, error) {
			return iface.Addrs()
		},
	}
}

// Start begins watching the network path. Calling Start on a running
// monitor is a no-op.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.run()

	m.log.Info("monitor started",
		"check_interval", m.cfg.CheckInterval.String(),
		"probe_hosts", len(m.cfg.ProbeHosts))

	return nil
}

// Stop tears the monitor down and waits for its goroutines to finish.
// Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.log.Info("monitor stopped")
}

// run owns all state mutation. Probes execute elsewhere and report
// back through the updates channel.
func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	ctx := m.ctx
	m.probeAsync(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAsync(ctx)
		case u := <-m.updates:
			m.apply(u)
		}
	}
}

func (m *Monitor) probeAsync(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.CheckInternet(ctx)
	}()
}

// apply folds a probe result into the owned state and publishes a
// transition when the status flips.
func (m *Monitor) apply(u update) {
	m.mu.Lock()
	prev := m.state.Status
	next := StatusDisconnected
	if u.online {
		next = StatusConnected
	}
	m.state.LastCheck = u.at
	m.state.Link = u.link
	changed := next != prev
	if changed {
		m.state.Status = next
		m.state.Since = u.at
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	m.log.Info("connectivity changed",
		"status", next.String(),
		"link_type", string(u.link))
	if m.events != nil {
		m.events.Publish(bus.NewStatusEvent(next.String(), string(u.link)))
	}
}

// notify hands a probe result to the run loop. Dropped when the loop
// is busy or the monitor is not running.
func (m *Monitor) notify(online bool, link LinkType) {
	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if !started {
		return
	}
	select {
	case m.updates <- update{online: online, link: link, at: time.Now()}:
	default:
	}
}

// Refresh schedules an immediate re-probe without blocking the caller.
func (m *Monitor) Refresh() {
	budget := m.cfg.ProbeTimeout * time.Duration(len(m.cfg.ProbeHosts)+1)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()
		m.CheckInternet(ctx)
	}()
}

// Snapshot returns the current state without blocking on any probe.
func (m *Monitor) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status returns the last-known connectivity status.
func (m *Monitor) Status() Status {
	return m.Snapshot().Status
}

// Link returns the last-known link type.
func (m *Monitor) Link() LinkType {
	return m.Snapshot().Link
}

// Online reports whether the last-known status is connected.
func (m *Monitor) Online() bool {
	return m.Status() == StatusConnected
}

// Offline reports whether the last-known status is disconnected. An
// unprobed monitor reports false so callers do not refuse work before
// the first probe lands.
func (m *Monitor) Offline() bool {
	return m.Status() == StatusDisconnected
}

// Stats returns monitor statistics
func (m *Monitor) Stats() map[string]interface{} {
	s := m.Snapshot()
	return map[string]interface{}{
		"status":         s.Status.String(),
		"link_type":      string(s.Link),
		"since":          s.Since,
		"last_check":     s.LastCheck,
		"check_interval": m.cfg.CheckInterval.String(),
		"probe_hosts":    len(m.cfg.ProbeHosts),
	}
}

// detectLink classifies the active network path by inspecting which
// interfaces are up and addressed. Wired links win over wifi, wifi
// over cellular.
func (m *Monitor) detectLink() LinkType {
	ifaces, err := m.ifaces()
	if err != nil {
		return LinkUnknown
	}

	found := map[LinkType]bool{}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := m.ifaceAddrs(iface)
		if err != nil || len(addrs) == 0 {
			continue
		}
		found[classifyInterface(iface.Name)] = true
	}

	for _, link := range []LinkType{LinkWired, LinkWifi, LinkCellular} {
		if found[link] {
			return link
		}
	}
	return LinkUnknown
}

func classifyInterface(name string) LinkType {
	switch {
	case strings.HasPrefix(name, "wl"):
		return LinkWifi
	case strings.HasPrefix(name, "ww"), strings.HasPrefix(name, "ppp"),
		strings.HasPrefix(name, "rmnet"):
		return LinkCellular
	case strings.HasPrefix(name, "en"), strings.HasPrefix(name, "eth"):
		return LinkWired
	}
	return LinkUnknown
}
