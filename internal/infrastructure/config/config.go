package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix of every environment override.
const envPrefix = "GLSETTINGS_"

// Config is the root configuration structure for the settings daemon and CLI.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Settings SettingsConfig `yaml:"settings"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// NodeConfig identifies this settings node on the transport.
type NodeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// SettingsConfig controls the registry and its surfaces.
type SettingsConfig struct {
	// Schema is the path to the settings declaration file (.yaml, .toml or .json).
	Schema string `yaml:"schema"`

	// DefaultPolicy is "reject" or "overwrite": what happens when a
	// different default is provisioned over an existing one.
	DefaultPolicy string `yaml:"default_policy"`

	// ResponseBuffer is the executor's response buffer size in bytes.
	ResponseBuffer int `yaml:"response_buffer"`

	// QueueDepth is the number of jobs that can wait for the registry worker.
	QueueDepth int `yaml:"queue_depth"`

	// Console enables the operator shell on stdin.
	Console bool `yaml:"console"`

	// CommandTimeout bounds how long a remote command waits for the registry
	// queue, in seconds.
	CommandTimeout int `yaml:"command_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	TLS       TLSConfig        `yaml:"tls"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
	JWT       JWTConfig        `yaml:"jwt"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
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

// WebSocketConfig contains WebSocket settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// JWTConfig contains bearer token settings.
// An empty secret disables authentication.
type JWTConfig struct {
	Secret   string `yaml:"secret"`
	TokenTTL int    `yaml:"token_ttl"` // minutes, used by "glsettings token"
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
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GLSETTINGS_SECTION_KEY
// For example: GLSETTINGS_DATABASE_PATH, GLSETTINGS_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults.
// The CLI uses it as-is when no config file exists.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID:   "node-001",
			Name: "Gray Logic Settings",
		},
		Settings: SettingsConfig{
			Schema:         "./configs/settings.yaml",
			DefaultPolicy:  "reject",
			ResponseBuffer: 256,
			QueueDepth:     64,
			CommandTimeout: 5,
		},
		Database: DatabaseConfig{
			Path:        "./data/settings.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "glsettingsd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
			JWT: JWTConfig{
				TokenTTL: 1440,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GLSETTINGS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Node
	if v := getenv("NODE_ID"); v != "" {
		cfg.Node.ID = v
	}

	// Settings
	if v := getenv("SETTINGS_SCHEMA"); v != "" {
		cfg.Settings.Schema = v
	}
	if v := getenv("SETTINGS_DEFAULT_POLICY"); v != "" {
		cfg.Settings.DefaultPolicy = v
	}
	if v := getenv("SETTINGS_CONSOLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Settings.Console = b
		}
	}

	// Database
	if v := getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := getenv("MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := getenv("MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := getenv("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := getenv("API_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.API.Enabled = b
		}
	}
	if v := getenv("API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := getenv("JWT_SECRET"); v != "" {
		cfg.API.JWT.Secret = v
	}

	// Logging
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Node.ID == "" {
		errs = append(errs, "node.id is required")
	} else if strings.ContainsAny(c.Node.ID, "/+#") {
		errs = append(errs, "node.id must not contain MQTT topic characters (/ + #)")
	}

	if c.Settings.Schema == "" {
		errs = append(errs, "settings.schema is required")
	}
	switch c.Settings.DefaultPolicy {
	case "", "reject", "overwrite":
	default:
		errs = append(errs, "settings.default_policy must be reject or overwrite")
	}
	if c.Settings.ResponseBuffer < minResponseBuffer {
		errs = append(errs, fmt.Sprintf("settings.response_buffer must be at least %d", minResponseBuffer))
	}
	if c.Settings.QueueDepth < 0 {
		errs = append(errs, "settings.queue_depth must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && (c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled {
		errs = append(errs, c.API.validate()...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (a *APIConfig) validate() []string {
	var errs []string
	if a.Port < 1 || a.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if a.TLS.Enabled && (a.TLS.CertFile == "" || a.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when tls is enabled")
	}
	if a.WebSocket.PingInterval <= 0 || a.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "api.websocket.ping_interval and pong_timeout must be positive")
	}
	if a.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, "api.websocket.max_message_size must be positive")
	}
	if a.JWT.Secret != "" && len(a.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.jwt.secret must be at least %d characters", minJWTSecretLength))
	}
	return errs
}

// minJWTSecretLength is the shortest accepted HS256 secret.
const minJWTSecretLength = 32

// minResponseBuffer holds the smallest possible record: id, one-byte key, NUL, type, length.
const minResponseBuffer = 6

// GetTokenTTL returns the lifetime of minted API tokens.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.API.JWT.TokenTTL) * time.Minute
}

// GetCommandTimeout returns the remote command timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Settings.CommandTimeout) * time.Second
}
