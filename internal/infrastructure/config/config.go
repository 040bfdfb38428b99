package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Solshade Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Covers    CoversConfig    `yaml:"covers"`
	Control   ControlConfig   `yaml:"control"`
	Forecast  ForecastConfig  `yaml:"forecast"`
	History   HistoryConfig   `yaml:"history"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains site-specific information.
// The location and timezone drive every solar calculation, so they are
// validated strictly at load time.
type SiteConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains geographic coordinates for solar position calculations.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// CoversConfig points at the cover group definitions file.
type CoversConfig struct {
	File string `yaml:"file"`
}

// ControlConfig contains control loop settings.
type ControlConfig struct {
	// InstanceID identifies this controller on the MQTT bus (health topic,
	// command source field). Default: "solshade"
	InstanceID string `yaml:"instance_id"`

	// Interval is the periodic recompute interval in seconds. Default: 60
	Interval int `yaml:"interval"`

	// SensorMaxAge is how long a sensor reading stays usable, in seconds.
	// Readings older than this are treated as absent. Default: 1800
	SensorMaxAge int `yaml:"sensor_max_age"`

	// HealthInterval is how often the health heartbeat is published, in seconds.
	// Default: 60
	HealthInterval int `yaml:"health_interval"`
}

// ForecastConfig contains position forecast settings.
type ForecastConfig struct {
	Enabled bool `yaml:"enabled"`

	// Horizon is how far ahead to project, in hours. Default: 24
	Horizon int `yaml:"horizon"`

	// Step is the sampling interval in minutes. Default: 30
	Step int `yaml:"step"`

	// CacheTTL is how long a computed forecast stays fresh, in seconds.
	// Default: 300
	CacheTTL int `yaml:"cache_ttl"`
}

// HistoryConfig contains cycle history retention settings.
type HistoryConfig struct {
	// Retention is how long cycle and command rows are kept, in hours.
	// Default: 720 (30 days)
	Retention int `yaml:"retention"`

	// PruneInterval is how often old rows are pruned, in hours. Default: 24
	PruneInterval int `yaml:"prune_interval"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	APIKeys   APIKeyConfig    `yaml:"api_keys"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"`
}

// APIKeyConfig contains API key settings.
type APIKeyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SOLSHADE_SECTION_KEY
// For example: SOLSHADE_DATABASE_PATH, SOLSHADE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Solshade",
			Timezone: "UTC",
		},
		Covers: CoversConfig{
			File: "./configs/covers.yaml",
		},
		Control: ControlConfig{
			InstanceID:     "solshade",
			Interval:       60,
			SensorMaxAge:   1800,
			HealthInterval: 60,
		},
		Forecast: ForecastConfig{
			Enabled:  true,
			Horizon:  24,
			Step:     30,
			CacheTTL: 300,
		},
		History: HistoryConfig{
			Retention:     720,
			PruneInterval: 24,
		},
		Database: DatabaseConfig{
			Path:        "./data/solshade.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "solshade-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
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
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  15,
				RefreshTokenTTL: 1440,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 100,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SOLSHADE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Covers
	if v := os.Getenv("SOLSHADE_COVERS_FILE"); v != "" {
		cfg.Covers.File = v
	}

	// Database
	if v := os.Getenv("SOLSHADE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SOLSHADE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SOLSHADE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SOLSHADE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SOLSHADE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("SOLSHADE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("SOLSHADE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation. A shading controller without coordinates cannot
	// compute a single sun position, so a missing location is fatal here
	// rather than a degraded-mode condition.
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Location.Latitude == 0 && c.Site.Location.Longitude == 0 {
		errs = append(errs, "site.location.latitude and site.location.longitude are required")
	}
	if c.Site.Location.Latitude < -90 || c.Site.Location.Latitude > 90 {
		errs = append(errs, "site.location.latitude must be between -90 and 90")
	}
	if c.Site.Location.Longitude < -180 || c.Site.Location.Longitude > 180 {
		errs = append(errs, "site.location.longitude must be between -180 and 180")
	}
	if c.Site.Timezone == "" {
		errs = append(errs, "site.timezone is required")
	} else if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA timezone", c.Site.Timezone))
	}

	// Covers validation
	if c.Covers.File == "" {
		errs = append(errs, "covers.file is required")
	}

	// Control validation
	if c.Control.Interval < 1 {
		errs = append(errs, "control.interval must be at least 1 second")
	}
	if c.Control.SensorMaxAge < 0 {
		errs = append(errs, "control.sensor_max_age must not be negative")
	}

	// Forecast validation
	if c.Forecast.Enabled {
		if c.Forecast.Horizon < 1 {
			errs = append(errs, "forecast.horizon must be at least 1 hour")
		}
		if c.Forecast.Step < 1 {
			errs = append(errs, "forecast.step must be at least 1 minute")
		}
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Security validation - JWT secret is REQUIRED
	// The API can reset manual overrides and rewrite cover geometry, so a
	// forged token translates directly into physical actuator movement.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set SOLSHADE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the configured timezone as a *time.Location.
// Validate guarantees the name parses, so errors here only occur on a
// Config that skipped Load.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Site.Timezone)
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

// GetControlInterval returns the control loop interval as a Duration.
func (c *Config) GetControlInterval() time.Duration {
	return time.Duration(c.Control.Interval) * time.Second
}

// GetSensorMaxAge returns the sensor staleness limit as a Duration.
func (c *Config) GetSensorMaxAge() time.Duration {
	return time.Duration(c.Control.SensorMaxAge) * time.Second
}

// GetHealthInterval returns the health heartbeat interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Control.HealthInterval) * time.Second
}

// GetForecastHorizon returns the forecast projection window as a Duration.
func (c *Config) GetForecastHorizon() time.Duration {
	return time.Duration(c.Forecast.Horizon) * time.Hour
}

// GetForecastStep returns the forecast sampling interval as a Duration.
func (c *Config) GetForecastStep() time.Duration {
	return time.Duration(c.Forecast.Step) * time.Minute
}

// GetForecastCacheTTL returns the forecast cache lifetime as a Duration.
func (c *Config) GetForecastCacheTTL() time.Duration {
	return time.Duration(c.Forecast.CacheTTL) * time.Second
}

// GetHistoryRetention returns the cycle history retention period as a Duration.
func (c *Config) GetHistoryRetention() time.Duration {
	return time.Duration(c.History.Retention) * time.Hour
}

// GetHistoryPruneInterval returns the prune cadence as a Duration.
func (c *Config) GetHistoryPruneInterval() time.Duration {
	return time.Duration(c.History.PruneInterval) * time.Hour
}
