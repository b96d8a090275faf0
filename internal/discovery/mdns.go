package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/machinewatch/internal/logging"
)

const (
	// ServiceType is the mDNS service type a machinewatch server advertises
	ServiceType = "_machinewatch._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."
)

// Server is a machinewatch backend found over mDNS
type Server struct {
	Instance string
	Hostname string
	IP       string
	Port     int
	Metadata map[string]string
}

// BaseURL returns the HTTP base URL of the server
func (s *Server) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.IP, s.Port)
}

// Advertisement publishes this process as a machinewatch server over mDNS
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers the HTTP API under ServiceType. The TXT record
// carries the discovery port and version so clients can tell servers apart.
func Advertise(instance string, httpPort, discoveryPort int, version string) (*Advertisement, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "machinewatch"
		}
		instance = "machinewatch-" + host
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, httpPort,
		advertisementText(discoveryPort, version), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", httpPort),
	)
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

func advertisementText(discoveryPort int, version string) []string {
	return []string{
		"path=/api",
		fmt.Sprintf("discovery_port=%d", discoveryPort),
		"version=" + version,
	}
}

// BrowseServers lists machinewatch servers advertising on the local network
// until the timeout elapses or ctx is cancelled.
func BrowseServers(ctx context.Context, timeout time.Duration) ([]*Server, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu      sync.Mutex
		servers = make([]*Server, 0)
		drained = make(chan struct{})
	)

	go func() {
		defer close(drained)
		for entry := range entries {
			if server := parseServiceEntry(entry); server != nil {
				mu.Lock()
				servers = append(servers, server)
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	select {
	case <-drained:
	case <-time.After(100 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	return servers, nil
}

// parseServiceEntry converts a zeroconf entry to a Server.
// Returns nil if the entry carries no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Server {
	if entry == nil {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" || entry.Port == 0 {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Server{
		Instance: entry.Instance,
		Hostname: entry.HostName,
		IP:       ip,
		Port:     entry.Port,
		Metadata: metadata,
	}
}
