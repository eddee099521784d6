package netmon

import (
	"context"
	"net/http"
	"strings"
)

// CanReach performs a single active probe against host. Any HTTP
// response counts as reachable, including error statuses; only a
// transport failure or timeout counts against the host.
func (m *Monitor) CanReach(ctx context.Context, host string) bool {
	url := host
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// CheckInternet probes the configured hosts in order and reports true
// on the first answer. Concurrent callers share a single probe, and
// calls arriving faster than the limiter refills reuse the last-known
// state instead of hammering the network.
func (m *Monitor) CheckInternet(ctx context.Context) bool {
	if !m.limiter.Allow() {
		return m.Online()
	}

	v, _, _ := m.probes.Do("internet", func() (interface{}, error) {
		online := false
		for _, host := range m.cfg.ProbeHosts {
			if m.CanReach(ctx, host) {
				online = true
				break
			}
		}
		m.notify(online, m.detectLink())
		return online, nil
	})

	online, _ := v.(bool)
	return online
}
