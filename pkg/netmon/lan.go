package netmon

import (
	"context"
	"sort"
	"strings"

	"github.com/hashicorp/mdns"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

// DefaultScanServices are queried when ScanLAN is given no service.
// A populated result from any of them means the local network is up
// even when the WAN probe fails.
var DefaultScanServices = []string{
	"_workstation._tcp",
	"_http._tcp",
	"_smb._tcp",
	"_ipp._tcp",
}

// Device is a host discovered on the local network.
type Device struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Addr string `json:"addr"`
	Port int    `json:"port"`
	Info string `json:"info,omitempty"`
}

// ScanLAN discovers devices advertising the given mDNS service on the
// local network. An empty service browses DefaultScanServices. Results
// are deduplicated and sorted by name.
func (m *Monitor) ScanLAN(ctx context.Context, service string) ([]Device, error) {
	services := []string{service}
	if service == "" {
		services = DefaultScanServices
	}

	entriesCh := make(chan *mdns.ServiceEntry, 16)
	devices := []Device{}
	seen := map[string]bool{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entriesCh {
			dev := deviceFromEntry(entry)
			key := dev.Host + ":" + dev.Addr
			if seen[key] {
				continue
			}
			seen[key] = true
			devices = append(devices, dev)
		}
	}()

	var firstErr error
	for _, svc := range services {
		if ctx.Err() != nil {
			break
		}
		params := &mdns.QueryParam{
			Service:             svc,
			Domain:              "local",
			Timeout:             m.cfg.ProbeTimeout,
			Entries:             entriesCh,
			WantUnicastResponse: false,
			DisableIPv4:         false,
			DisableIPv6:         true,
		}
		if err := mdns.Query(params); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	close(entriesCh)
	<-done

	if firstErr != nil && len(devices) == 0 {
		return nil, errsys.Classify(firstErr)
	}
	if ctx.Err() != nil {
		return devices, ctx.Err()
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Name < devices[j].Name
	})

	m.log.Debug("LAN scan complete", "services", len(services), "devices", len(devices))
	return devices, nil
}

func deviceFromEntry(entry *mdns.ServiceEntry) Device {
	dev := Device{
		Name: strings.TrimSuffix(entry.Name, "."),
		Host: strings.TrimSuffix(entry.Host, "."),
		Port: entry.Port,
		Info: entry.Info,
	}
	if entry.AddrV4 != nil {
		dev.Addr = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		dev.Addr = entry.AddrV6.String()
	}
	return dev
}
