// Package libexch is a client library for Microsoft Exchange Web
// Services: device-code authentication, the SOAP transport, and typed
// calendar, availability, mail and contact operations.
package libexch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/exchtools/exch/internal/schedule"
)

// Config is the on-disk configuration, loaded from
// $XDG_CONFIG_HOME/exch/config.toml.
type Config struct {
	Account                string            `mapstructure:"account"`
	Timezone               string            `mapstructure:"timezone"`
	DefaultDurationMinutes int               `mapstructure:"default_duration_minutes"`
	EWSEndpoint            string            `mapstructure:"ews_endpoint"`
	TenantID               string            `mapstructure:"tenant_id"`
	ClientID               string            `mapstructure:"client_id"`
	People                 map[string]string `mapstructure:"people"`

	FreeSlots FreeSlotsConfig `mapstructure:"free_slots"`
	Service   ServiceConfig   `mapstructure:"service"`
	Hours     HoursConfig     `mapstructure:"hours"`
}

// FreeSlotsConfig is the default availability policy.
type FreeSlotsConfig struct {
	StartHour       int  `mapstructure:"start_hour"`
	EndHour         int  `mapstructure:"end_hour"`
	ExcludeWeekends bool `mapstructure:"exclude_weekends"`
}

// ServiceConfig configures the companion caching daemon.
type ServiceConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	CacheTTL       int    `mapstructure:"cache_ttl_seconds"`
	RefreshSeconds int    `mapstructure:"refresh_seconds"`
}

// HoursConfig sets what "morning" and "afternoon" mean to the parser.
type HoursConfig struct {
	Morning   int `mapstructure:"morning"`
	Afternoon int `mapstructure:"afternoon"`
}

// ConfigDir returns the exch configuration directory, creating it if
// needed. $XDG_CONFIG_HOME wins over ~/.config.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	dir := filepath.Join(base, "exch")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}

// LoadConfig reads config.toml from dir, applying defaults for every
// unset key. A missing file yields the pure defaults, not an error.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)

	v.SetDefault("timezone", "Europe/Berlin")
	v.SetDefault("default_duration_minutes", 60)
	v.SetDefault("ews_endpoint", "https://outlook.office365.com/EWS/Exchange.asmx")
	v.SetDefault("tenant_id", "organizations")
	v.SetDefault("free_slots.start_hour", 9)
	v.SetDefault("free_slots.end_hour", 17)
	v.SetDefault("free_slots.exclude_weekends", true)
	v.SetDefault("service.host", "127.0.0.1")
	v.SetDefault("service.port", 8787)
	v.SetDefault("service.cache_ttl_seconds", 300)
	v.SetDefault("service.refresh_seconds", 600)
	v.SetDefault("hours.morning", 9)
	v.SetDefault("hours.afternoon", 14)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DefaultDuration is the event length used when a phrase names none.
func (c *Config) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultDurationMinutes) * time.Minute
}

// Policy converts the free-slots section to an availability policy.
func (c *Config) Policy() schedule.Policy {
	return schedule.Policy{
		StartHour:       c.FreeSlots.StartHour,
		EndHour:         c.FreeSlots.EndHour,
		ExcludeWeekends: c.FreeSlots.ExcludeWeekends,
	}
}

// ResolveAlias maps a [people] alias to an email address. Alias lookup
// is case-insensitive; an address passes through unchanged.
func (c *Config) ResolveAlias(name string) (string, bool) {
	if strings.Contains(name, "@") {
		return name, true
	}
	email, ok := c.People[strings.ToLower(name)]
	return email, ok
}

// ServiceURL is the base URL of the local companion service.
func (c *Config) ServiceURL() string {
	return fmt.Sprintf("http://%s:%d", c.Service.Host, c.Service.Port)
}
