// Package config loads uplink configuration using viper.
//
// Values come from, in increasing priority: built-in defaults, an optional
// YAML file, and SATCOM_* environment variables (dots become underscores,
// e.g. SATCOM_BUS_PORT).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	qerrors "github.com/pzverkov/satcom-uplink/internal/errors"
	"github.com/pzverkov/satcom-uplink/pkg/ccsds"
	"github.com/pzverkov/satcom-uplink/pkg/metrics"
)

// EnvPrefix is the environment variable prefix for overrides.
const EnvPrefix = "SATCOM"

// Config is the top-level configuration.
type Config struct {
	Uplink        UplinkConfig        `mapstructure:"uplink" yaml:"uplink"`
	Bus           BusConfig           `mapstructure:"bus" yaml:"bus"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ─── Uplink ───

// UplinkConfig holds packet and policy settings shared by both ends.
type UplinkConfig struct {
	APID                  int      `mapstructure:"apid" yaml:"apid"`
	GroundStationID       string   `mapstructure:"ground_station_id" yaml:"ground_station_id"`
	AllowedGroundStations []string `mapstructure:"allowed_ground_stations" yaml:"allowed_ground_stations"`
	Digest                string   `mapstructure:"digest" yaml:"digest"`                   // hmac-sha256 | hmac-sha3-256
	SequencePolicy        string   `mapstructure:"sequence_policy" yaml:"sequence_policy"` // exclusive | shared
}

// ─── Bus ───

// BusConfig holds listener settings.
type BusConfig struct {
	Host            string          `mapstructure:"host" yaml:"host"`
	Port            int             `mapstructure:"port" yaml:"port"`
	Workers         int             `mapstructure:"workers" yaml:"workers"`
	MaxDatagramSize int             `mapstructure:"max_datagram_size" yaml:"max_datagram_size"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig holds per-source rate limiting settings. PerSource 0 disables it.
type RateLimitConfig struct {
	PerSource float64 `mapstructure:"per_source" yaml:"per_source"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

// ─── Logging ───

// LogConfig holds telemetry logger settings.
type LogConfig struct {
	Level  string        `mapstructure:"level" yaml:"level"`   // debug | info | warn | error | critical
	Format string        `mapstructure:"format" yaml:"format"` // text | json
	File   LogFileConfig `mapstructure:"file" yaml:"file"`
}

// LogFileConfig controls the rotating telemetry file.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ─── Observability ───

// ObservabilityConfig controls the metrics/health HTTP server and tracing.
type ObservabilityConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"` // empty = disabled
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Tracing   bool   `mapstructure:"tracing" yaml:"tracing"`
}

// ─── Loading ───

// Load reads configuration from path. An empty path loads defaults and
// environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Uplink: UplinkConfig{
			APID:                  constants.DefaultAPID,
			GroundStationID:       constants.DefaultGroundStationID,
			AllowedGroundStations: []string{constants.DefaultGroundStationID},
			Digest:                "hmac-sha256",
			SequencePolicy:        "exclusive",
		},
		Bus: BusConfig{
			Host:            constants.DefaultHost,
			Port:            constants.DefaultPort,
			Workers:         1,
			MaxDatagramSize: constants.MaxDatagramSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File: LogFileConfig{
				Path:       "telemetry.log",
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
				Compress:   true,
			},
		},
		Observability: ObservabilityConfig{
			Namespace: "satcom",
		},
	}
}

// setDefaults registers every key so environment overrides apply even when
// the file omits it.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("uplink.apid", d.Uplink.APID)
	v.SetDefault("uplink.ground_station_id", d.Uplink.GroundStationID)
	v.SetDefault("uplink.allowed_ground_stations", d.Uplink.AllowedGroundStations)
	v.SetDefault("uplink.digest", d.Uplink.Digest)
	v.SetDefault("uplink.sequence_policy", d.Uplink.SequencePolicy)

	v.SetDefault("bus.host", d.Bus.Host)
	v.SetDefault("bus.port", d.Bus.Port)
	v.SetDefault("bus.workers", d.Bus.Workers)
	v.SetDefault("bus.max_datagram_size", d.Bus.MaxDatagramSize)
	v.SetDefault("bus.rate_limit.per_source", d.Bus.RateLimit.PerSource)
	v.SetDefault("bus.rate_limit.burst", d.Bus.RateLimit.Burst)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file.enabled", d.Log.File.Enabled)
	v.SetDefault("log.file.path", d.Log.File.Path)
	v.SetDefault("log.file.max_size_mb", d.Log.File.MaxSizeMB)
	v.SetDefault("log.file.max_backups", d.Log.File.MaxBackups)
	v.SetDefault("log.file.max_age_days", d.Log.File.MaxAgeDays)
	v.SetDefault("log.file.compress", d.Log.File.Compress)

	v.SetDefault("observability.addr", d.Observability.Addr)
	v.SetDefault("observability.namespace", d.Observability.Namespace)
	v.SetDefault("observability.tracing", d.Observability.Tracing)
}

// Validate rejects out-of-range or unknown values.
func (c *Config) Validate() error {
	if c.Uplink.APID < 0 || c.Uplink.APID > constants.MaxAPID {
		return invalid("uplink.apid %d out of range 0..%d", c.Uplink.APID, constants.MaxAPID)
	}
	if c.Uplink.GroundStationID == "" {
		return invalid("uplink.ground_station_id is required")
	}
	if !constants.ParseDigestAlgorithm(c.Uplink.Digest).IsSupported() {
		return invalid("unknown uplink.digest %q (must be hmac-sha256/hmac-sha3-256)", c.Uplink.Digest)
	}
	if _, ok := ccsds.ParseSequencePolicy(c.Uplink.SequencePolicy); !ok {
		return invalid("unknown uplink.sequence_policy %q (must be exclusive/shared)", c.Uplink.SequencePolicy)
	}

	if c.Bus.Port < 1 || c.Bus.Port > 65535 {
		return invalid("bus.port %d out of range 1..65535", c.Bus.Port)
	}
	if c.Bus.Workers < 1 {
		return invalid("bus.workers must be at least 1, got %d", c.Bus.Workers)
	}
	if c.Bus.MaxDatagramSize < constants.MinPacketSize || c.Bus.MaxDatagramSize > constants.MaxPacketSize {
		return invalid("bus.max_datagram_size %d out of range %d..%d",
			c.Bus.MaxDatagramSize, constants.MinPacketSize, constants.MaxPacketSize)
	}
	if c.Bus.RateLimit.PerSource < 0 || c.Bus.RateLimit.Burst < 0 {
		return invalid("bus.rate_limit values must not be negative")
	}

	if _, ok := metrics.LookupLevel(c.Log.Level); !ok {
		return invalid("invalid log.level %q (must be debug/info/warn/error/critical)", c.Log.Level)
	}
	if _, ok := metrics.LookupFormat(c.Log.Format); !ok {
		return invalid("invalid log.format %q (must be text/json)", c.Log.Format)
	}
	if c.Log.File.Enabled && c.Log.File.Path == "" {
		return invalid("log.file.path is required when log.file.enabled=true")
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", qerrors.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// InvalidLog reports an unknown logging setting.
func InvalidLog(key, value string) error {
	return invalid("invalid %s %q", key, value)
}

// DigestAlgorithm returns the configured trailer digest.
func (c *Config) DigestAlgorithm() constants.DigestAlgorithm {
	return constants.ParseDigestAlgorithm(c.Uplink.Digest)
}

// SequencePolicy returns the configured sequence counter policy.
func (c *Config) SequencePolicy() ccsds.SequencePolicy {
	p, _ := ccsds.ParseSequencePolicy(c.Uplink.SequencePolicy)
	return p
}

// YAML renders c as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// DefaultYAML renders the built-in configuration, for `satcom config init`.
func DefaultYAML() ([]byte, error) {
	return Default().YAML()
}
