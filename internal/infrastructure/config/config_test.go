package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
site:
  id: "test-site"
  timezone: "Europe/London"
  location:
    latitude: 51.5074
    longitude: -0.1278
covers:
  file: "/tmp/covers.yaml"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}

	if cfg.Site.Location.Latitude != 51.5074 {
		t.Errorf("Site.Location.Latitude = %v, want 51.5074", cfg.Site.Location.Latitude)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	// Defaults should fill sections the file omits.
	if cfg.Control.Interval != 60 {
		t.Errorf("Control.Interval = %d, want default 60", cfg.Control.Interval)
	}
	if cfg.Forecast.Horizon != 24 {
		t.Errorf("Forecast.Horizon = %d, want default 24", cfg.Forecast.Horizon)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingLocation(t *testing.T) {
	content := `
site:
  id: "test-site"
  timezone: "UTC"
database:
  path: "/tmp/test.db"
api:
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for missing site.location, got nil")
	}
}

// validConfig returns a configuration that passes Validate. Test cases
// mutate a single field to probe individual rules.
func validConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Timezone: "Europe/London",
			Location: LocationConfig{Latitude: 51.5074, Longitude: -0.1278},
		},
		Covers:   CoversConfig{File: "/etc/solshade/covers.yaml"},
		Control:  ControlConfig{Interval: 60},
		Database: DatabaseConfig{Path: "/data/solshade.db"},
		MQTT:     MQTTConfig{QoS: 1},
		API:      APIConfig{Port: 8080},
		Security: SecurityConfig{
			JWT: JWTConfig{Secret: "test-secret-key-at-least-32-chars!"},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name: "missing location",
			mutate: func(c *Config) {
				c.Site.Location = LocationConfig{}
			},
			wantErr: true,
		},
		{
			name:    "latitude out of range",
			mutate:  func(c *Config) { c.Site.Location.Latitude = 91 },
			wantErr: true,
		},
		{
			name:    "longitude out of range",
			mutate:  func(c *Config) { c.Site.Location.Longitude = -200 },
			wantErr: true,
		},
		{
			name:    "invalid timezone",
			mutate:  func(c *Config) { c.Site.Timezone = "Mars/Olympus_Mons" },
			wantErr: true,
		},
		{
			name:    "missing timezone",
			mutate:  func(c *Config) { c.Site.Timezone = "" },
			wantErr: true,
		},
		{
			name:    "missing covers file",
			mutate:  func(c *Config) { c.Covers.File = "" },
			wantErr: true,
		},
		{
			name:    "control interval zero",
			mutate:  func(c *Config) { c.Control.Interval = 0 },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
		},
		{
			name: "forecast enabled with zero step",
			mutate: func(c *Config) {
				c.Forecast.Enabled = true
				c.Forecast.Horizon = 24
				c.Forecast.Step = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestConfig_GetControlDurations(t *testing.T) {
	cfg := &Config{
		Control: ControlConfig{
			Interval:       90,
			SensorMaxAge:   1800,
			HealthInterval: 30,
		},
		Forecast: ForecastConfig{
			Horizon:  24,
			Step:     30,
			CacheTTL: 300,
		},
		History: HistoryConfig{
			Retention:     720,
			PruneInterval: 24,
		},
	}

	if got := cfg.GetControlInterval().Seconds(); got != 90 {
		t.Errorf("GetControlInterval() = %v, want 90", got)
	}
	if got := cfg.GetSensorMaxAge().Minutes(); got != 30 {
		t.Errorf("GetSensorMaxAge() = %v minutes, want 30", got)
	}
	if got := cfg.GetHealthInterval().Seconds(); got != 30 {
		t.Errorf("GetHealthInterval() = %v, want 30", got)
	}
	if got := cfg.GetForecastHorizon().Hours(); got != 24 {
		t.Errorf("GetForecastHorizon() = %v hours, want 24", got)
	}
	if got := cfg.GetForecastStep().Minutes(); got != 30 {
		t.Errorf("GetForecastStep() = %v minutes, want 30", got)
	}
	if got := cfg.GetForecastCacheTTL().Seconds(); got != 300 {
		t.Errorf("GetForecastCacheTTL() = %v, want 300", got)
	}
	if got := cfg.GetHistoryRetention().Hours(); got != 720 {
		t.Errorf("GetHistoryRetention() = %v hours, want 720", got)
	}
	if got := cfg.GetHistoryPruneInterval().Hours(); got != 24 {
		t.Errorf("GetHistoryPruneInterval() = %v hours, want 24", got)
	}
}

func TestConfig_Location(t *testing.T) {
	cfg := validConfig()

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc.String() != "Europe/London" {
		t.Errorf("Location() = %q, want %q", loc.String(), "Europe/London")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("SOLSHADE_COVERS_FILE", "/custom/covers.yaml")
	t.Setenv("SOLSHADE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SOLSHADE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SOLSHADE_MQTT_USERNAME", "testuser")
	t.Setenv("SOLSHADE_MQTT_PASSWORD", "testpass")
	t.Setenv("SOLSHADE_API_HOST", "192.168.1.1")
	t.Setenv("SOLSHADE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SOLSHADE_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Covers.File != "/custom/covers.yaml" {
		t.Errorf("Covers.File = %q, want %q", cfg.Covers.File, "/custom/covers.yaml")
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}

	if cfg.Control.InstanceID != "solshade" {
		t.Errorf("defaultConfig Control.InstanceID = %q, want %q", cfg.Control.InstanceID, "solshade")
	}
}
