package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Tilt Logic Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Machine   MachineConfig             `yaml:"machine"`
	Shows     ShowsConfig               `yaml:"shows"`
	Playlists map[string]PlaylistConfig `yaml:"playlists"`
	Database  DatabaseConfig            `yaml:"database"`
	MQTT      MQTTConfig                `yaml:"mqtt"`
	API       APIConfig                 `yaml:"api"`
	Telemetry TelemetryConfig           `yaml:"telemetry"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// MachineConfig contains machine-specific information.
type MachineConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// DevicesFile is the path to the YAML file listing the machine's
	// output devices by class (lights, leds, coils, gi, flashers).
	DevicesFile string `yaml:"devices_file"`
}

// ShowsConfig contains show engine settings.
type ShowsConfig struct {
	// Dir is the directory containing show YAML files.
	Dir string `yaml:"dir"`

	// Version is the show schema version this engine expects.
	// Show files carry a "#show_version=N" marker that must match.
	Version int `yaml:"version"`

	// FrameRate is the control loop tick rate in frames per second.
	FrameRate int `yaml:"frame_rate"`

	// DefaultSyncMS is the default show sync cycle in milliseconds.
	// Shows started with no explicit sync_ms phase-lock to this cycle.
	// Zero means shows start immediately.
	DefaultSyncMS int `yaml:"default_sync_ms"`
}

// PlaylistConfig defines one named playlist. Steps play in list order;
// each step starts its shows together and advances after time_ms or
// when its trigger show completes.
type PlaylistConfig struct {
	Steps []PlaylistStepConfig `yaml:"steps"`
}

// PlaylistStepConfig is one step of a playlist.
type PlaylistStepConfig struct {
	Shows []PlaylistShowConfig `yaml:"shows"`

	// TimeMS advances the step after this many milliseconds. Ignored
	// when trigger_show is set.
	TimeMS int `yaml:"time_ms"`

	// TriggerShow names the show whose completion advances the step.
	TriggerShow string `yaml:"trigger_show"`

	// Hold keeps the step's device values applied when the playlist
	// moves on.
	Hold bool `yaml:"hold"`
}

// PlaylistShowConfig is one show within a playlist step.
type PlaylistShowConfig struct {
	Show   string  `yaml:"show"`
	Loops  int     `yaml:"loops"`
	Speed  float64 `yaml:"speed"`
	Blend  bool    `yaml:"blend"`
	Repeat bool    `yaml:"repeat"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// TelemetryConfig contains InfluxDB telemetry settings.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. A .env file in the working directory, if present
//  3. YAML file values (override defaults)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: TILTLOGIC_SECTION_KEY
// For example: TILTLOGIC_DATABASE_PATH, TILTLOGIC_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// A missing .env is fine; real env vars still apply below.
	_ = godotenv.Load()

	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Machine: MachineConfig{
			ID:   "machine-001",
			Name: "Tilt Logic",
		},
		Shows: ShowsConfig{
			Dir:           "./shows",
			Version:       5,
			FrameRate:     30,
			DefaultSyncMS: 0,
		},
		Database: DatabaseConfig{
			Path:        "./data/tiltlogic.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tiltlogic-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TILTLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TILTLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TILTLOGIC_SHOWS_DIR"); v != "" {
		cfg.Shows.Dir = v
	}
	if v := os.Getenv("TILTLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TILTLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TILTLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("TILTLOGIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("TILTLOGIC_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Machine.ID == "" {
		errs = append(errs, "machine.id is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Shows.Version < 1 {
		errs = append(errs, "shows.version must be at least 1")
	}
	if c.Shows.FrameRate < 1 || c.Shows.FrameRate > 240 {
		errs = append(errs, "shows.frame_rate must be between 1 and 240")
	}
	if c.Shows.DefaultSyncMS < 0 {
		errs = append(errs, "shows.default_sync_ms must not be negative")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.Telemetry.Enabled && c.Telemetry.URL == "" {
		errs = append(errs, "telemetry.url is required when telemetry is enabled")
	}
	for name, pl := range c.Playlists {
		if len(pl.Steps) == 0 {
			errs = append(errs, fmt.Sprintf("playlists.%s must have at least one step", name))
		}
		for i, step := range pl.Steps {
			if len(step.Shows) == 0 {
				errs = append(errs, fmt.Sprintf("playlists.%s step %d has no shows", name, i+1))
			}
			if step.TimeMS < 0 {
				errs = append(errs, fmt.Sprintf("playlists.%s step %d time_ms must not be negative", name, i+1))
			}
			for _, sh := range step.Shows {
				if sh.Show == "" {
					errs = append(errs, fmt.Sprintf("playlists.%s step %d has a show with no name", name, i+1))
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// FrameInterval returns the control loop tick interval.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Shows.FrameRate)
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
