package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Duration decodes either a duration string such as "500ms" or integer
// nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// jsonConfig mirrors Config for JSON files. Pointer fields distinguish
// "absent" from zero so a partial file only overrides what it names.
type jsonConfig struct {
	Port           *int      `json:"port"`
	DevicePath     *string   `json:"device"`
	Backend        *string   `json:"backend"`
	RegistryDriver *string   `json:"registry"`
	DatabaseDSN    *string   `json:"dsn"`
	APISecret      *string   `json:"secret"`
	MDNS           *bool     `json:"mdns"`
	LogLevel       *string   `json:"log_level"`
	LogFormat      *string   `json:"log_format"`
	Lang           *string   `json:"lang"`
	PollInterval   *Duration `json:"poll_interval"`
	AdapterRefresh *Duration `json:"adapter_refresh"`
	SessionTimeout *Duration `json:"session_timeout"`
}

// parseJSON overlays the file at path onto config.
func parseJSON(config *Config, path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	c := &jsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	set(&config.Port, c.Port)
	set(&config.DevicePath, c.DevicePath)
	set(&config.Backend, c.Backend)
	set(&config.RegistryDriver, c.RegistryDriver)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.APISecret, c.APISecret)
	set(&config.MDNS, c.MDNS)
	set(&config.LogLevel, c.LogLevel)
	set(&config.LogFormat, c.LogFormat)
	set(&config.Lang, c.Lang)
	setDuration(&config.PollInterval, c.PollInterval)
	setDuration(&config.AdapterRefresh, c.AdapterRefresh)
	setDuration(&config.SessionTimeout, c.SessionTimeout)
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
