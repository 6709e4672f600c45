// Package config handles configuration for the agent: defaults, then an
// optional JSON file overlay, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	BackendLibnfc  = "libnfc"
	BackendVirtual = "virtual"

	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds runtime settings.
//
// Fields:
//   - Port: HTTP/WebSocket listen port.
//   - DevicePath: libnfc connection string; empty selects the first reader.
//   - Backend: "libnfc" for hardware, "virtual" for the in-memory reader.
//   - RegistryDriver / DatabaseDSN: tag registry storage.
//   - APISecret: enables the session handshake when set.
//   - PollInterval / AdapterRefresh: reader polling and adapter state refresh.
//   - SessionTimeout: idle lifetime of a handshake session.
type Config struct {
	Port           int
	DevicePath     string
	Backend        string
	RegistryDriver string
	DatabaseDSN    string
	APISecret      string
	MDNS           bool
	LogLevel       string
	LogFormat      string
	Lang           string
	PollInterval   time.Duration
	AdapterRefresh time.Duration
	SessionTimeout time.Duration

	// ShowVersion is set by -version and never read from JSON.
	ShowVersion bool
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Port = 18080
	c.DevicePath = ""
	c.Backend = BackendLibnfc
	c.RegistryDriver = DriverSQLite
	c.DatabaseDSN = "umbral-nfc.db"
	c.APISecret = ""
	c.MDNS = true
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.Lang = "en"
	c.PollInterval = 250 * time.Millisecond
	c.AdapterRefresh = 2 * time.Second
	c.SessionTimeout = 5 * time.Minute
}

// Load builds a Config from defaults, the JSON file named by -c or -config,
// and the remaining flags in args (without the program name).
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path := configPath(args); path != "" {
		if err := parseJSON(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Backend {
	case BackendLibnfc, BackendVirtual:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	switch c.RegistryDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, fmt.Errorf("registry %s needs a dsn", c.RegistryDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown registry driver %q", c.RegistryDriver))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.AdapterRefresh <= 0 {
		errs = append(errs, errors.New("adapter refresh must be positive"))
	}
	if c.SessionTimeout <= 0 {
		errs = append(errs, errors.New("session timeout must be positive"))
	}
	return errors.Join(errs...)
}
