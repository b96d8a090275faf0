package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "machinewatch"
	configFile = "config.yaml"

	// EnvPrefix prefixes every environment override
	EnvPrefix = "MACHINEWATCH_"
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/machinewatch or $HOME/.config/machinewatch
//   - macOS: $HOME/.config/machinewatch
//   - Windows: %LOCALAPPDATA%\machinewatch
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// GetConfigPath returns the full path to the default configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// Load reads the configuration at path, or the default path if empty.
// A missing file yields Default. Environment overrides are applied and the
// result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path, or the default path if empty.
// Performs an atomic write to prevent corruption on crash.
func (c *Config) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# machinewatch configuration
#
# Every setting can be overridden with a MACHINEWATCH_* environment
# variable, e.g. MACHINEWATCH_DATABASE_URL or MACHINEWATCH_BROADCAST_IP.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// LookupFunc matches os.LookupEnv
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays MACHINEWATCH_* variables onto c
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %q is not a number", EnvPrefix, name, v)
		}
		*dst = n
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("LOG_LEVEL", &c.LogLevel)
	str("HTTP_HOST", &c.HTTP.Host)
	str("BEACON", &c.Discovery.Beacon)
	str("BROADCAST_IP", &c.Discovery.BroadcastIP)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("EVENTS_DRIVER", &c.Events.Driver)
	str("NATS_URL", &c.Events.NATSURL)
	str("KAFKA_TOPIC", &c.Events.KafkaTopic)

	if v, ok := lookup(EnvPrefix + "DATABASE_URL"); ok && v != "" {
		c.Database.URL = v
		if _, set := lookup(EnvPrefix + "DATABASE_DRIVER"); !set {
			c.Database.Driver = DatabasePostgres
		}
	}
	if v, ok := lookup(EnvPrefix + "REDIS_URL"); ok && v != "" {
		c.Cache.URL = v
		c.Cache.Enabled = true
	}
	if v, ok := lookup(EnvPrefix + "KAFKA_BROKERS"); ok && v != "" {
		c.Events.KafkaBrokers = splitList(v)
	}

	for _, err := range []error{
		num("HTTP_PORT", &c.HTTP.Port),
		num("DISCOVERY_PORT", &c.Discovery.Port),
		dur("DISCOVERY_TIMEOUT", &c.Discovery.Timeout),
		dur("POLL_INTERVAL", &c.Discovery.PollInterval),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
