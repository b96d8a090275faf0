package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Driver names
const (
	DatabasePostgres = "postgres"
	DatabaseMemory   = "memory"

	EventsNone  = "none"
	EventsNATS  = "nats"
	EventsKafka = "kafka"
)

// Config is the machinewatch configuration file.
// Durations are written as Go duration strings ("5s", "1m").
type Config struct {
	Version   int             `yaml:"version"`
	LogLevel  string          `yaml:"log_level"`
	HTTP      HTTPConfig      `yaml:"http"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Events    EventsConfig    `yaml:"events"`
	Advertise AdvertiseConfig `yaml:"advertise"`
}

// HTTPConfig is where the API listens
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DiscoveryConfig controls the UDP broadcast scan
type DiscoveryConfig struct {
	Port        int           `yaml:"port"`
	Beacon      string        `yaml:"beacon"`
	Timeout     time.Duration `yaml:"timeout"`
	BroadcastIP string        `yaml:"broadcast_ip,omitempty"` // empty = detect
	// PollInterval > 0 makes serve run discovery periodically
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DatabaseConfig selects and configures the device store
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url,omitempty"`
	MaxConns        int32         `yaml:"max_conns,omitempty"`
	MinConns        int32         `yaml:"min_conns,omitempty"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime,omitempty"`
}

// CacheConfig enables the Redis read-through cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	TTL     time.Duration `yaml:"ttl"`
}

// EventsConfig selects where sightings are published
type EventsConfig struct {
	Driver       string   `yaml:"driver"`
	NATSURL      string   `yaml:"nats_url,omitempty"`
	Subject      string   `yaml:"subject,omitempty"`
	KafkaBrokers []string `yaml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `yaml:"kafka_topic,omitempty"`
}

// AdvertiseConfig controls the mDNS announcement of the API
type AdvertiseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance,omitempty"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Version:  1,
		LogLevel: "info",
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Discovery: DiscoveryConfig{
			Port:    3001,
			Beacon:  "M99999",
			Timeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   DatabaseMemory,
			MaxConns: 10,
		},
		Cache: CacheConfig{
			URL: "redis://localhost:6379/0",
			TTL: 30 * time.Second,
		},
		Events: EventsConfig{
			Driver:  EventsNone,
			NATSURL: "nats://localhost:4222",
		},
		Advertise: AdvertiseConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d (expected 1)", c.Version)
	}
	if err := validPort("http.port", c.HTTP.Port); err != nil {
		return err
	}
	if err := validPort("discovery.port", c.Discovery.Port); err != nil {
		return err
	}
	if c.Discovery.Beacon == "" {
		return fmt.Errorf("discovery.beacon must not be empty")
	}
	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery.timeout must be positive, got %s", c.Discovery.Timeout)
	}
	if c.Discovery.PollInterval < 0 {
		return fmt.Errorf("discovery.poll_interval must not be negative")
	}
	if ip := c.Discovery.BroadcastIP; ip != "" && net.ParseIP(ip).To4() == nil {
		return fmt.Errorf("discovery.broadcast_ip %q is not an IPv4 address", ip)
	}

	switch c.Database.Driver {
	case DatabaseMemory:
	case DatabasePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q (expected %s or %s)",
			c.Database.Driver, DatabasePostgres, DatabaseMemory)
	}

	if c.Cache.Enabled && c.Cache.URL == "" {
		return fmt.Errorf("cache.url is required when the cache is enabled")
	}

	switch c.Events.Driver {
	case EventsNone, "":
	case EventsNATS:
		if c.Events.NATSURL == "" {
			return fmt.Errorf("events.nats_url is required for the nats driver")
		}
	case EventsKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("events.kafka_brokers is required for the kafka driver")
		}
	default:
		return fmt.Errorf("unknown events.driver %q", c.Events.Driver)
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

// splitList parses a comma separated environment value
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
