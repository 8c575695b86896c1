package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names that are not section overrides.
const (
	// EnvConfigPath names the config file. Default: DefaultPath.
	EnvConfigPath = "MIDEA_BRIDGE_CONFIG"

	// DefaultPath is used when EnvConfigPath is unset.
	DefaultPath = "configs/config.yaml"

	envPrefix = "MIDEA_BRIDGE_"
)

// Config is the root configuration structure for the bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Midea    MideaConfig    `yaml:"midea"`
	Devices  []DeviceConfig `yaml:"devices"`
	OpenHAB  OpenHABConfig  `yaml:"openhab"`
	Sync     SyncConfig     `yaml:"sync"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
	Restart  RestartConfig  `yaml:"restart"`
}

// MideaConfig contains the cloud account settings.
type MideaConfig struct {
	AppKey      string `yaml:"app_key"`
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	HomeGroupID string `yaml:"home_group_id"`
	BaseURL     string `yaml:"base_url"`

	// ForcedLoginDelay is the settling time after a forced login, in seconds.
	ForcedLoginDelay int `yaml:"forced_login_delay"`

	// RequestTimeout bounds each cloud call, in seconds.
	RequestTimeout int `yaml:"request_timeout"`
}

// DeviceConfig identifies one air conditioner.
type DeviceConfig struct {
	// Name is used in item names and must not contain underscores.
	Name string `yaml:"name"`

	// ID is the cloud appliance id.
	ID string `yaml:"id"`

	// IP and Port record the unit's LAN address.
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

// OpenHABConfig contains hub settings.
type OpenHABConfig struct {
	URL            string `yaml:"url"`
	ItemPrefix     string `yaml:"item_prefix"`
	RequestTimeout int    `yaml:"request_timeout"`
}

// SyncConfig contains scheduler settings.
type SyncConfig struct {
	// PollInterval is the maximum age of device values, in seconds.
	PollInterval int `yaml:"poll_interval"`

	// Tick is how often device ages are checked, in milliseconds.
	Tick int `yaml:"tick"`

	// EventBackoff is the wait before resubscribing to hub events, in seconds.
	EventBackoff int `yaml:"event_backoff"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled        bool                `yaml:"enabled"`
	Broker         MQTTBrokerConfig    `yaml:"broker"`
	Auth           MQTTAuthConfig      `yaml:"auth"`
	QoS            int                 `yaml:"qos"`
	TopicPrefix    string              `yaml:"topic_prefix"`
	HealthInterval int                 `yaml:"health_interval"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains status API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// RestartConfig bounds how often the process reruns after a failure.
type RestartConfig struct {
	MaxAttempts int `yaml:"max_attempts"`

	// Cooldown is the wait between runs, in seconds.
	Cooldown int `yaml:"cooldown"`
}

// Path returns the config file path from the environment, or DefaultPath.
func Path() string {
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return DefaultPath
}

// LoadDotEnv loads variables from a .env file into the environment.
// A missing file is not an error; variables already set are kept.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MIDEA_BRIDGE_SECTION_KEY
// For example: MIDEA_BRIDGE_MIDEA_PASSWORD, MIDEA_BRIDGE_OPENHAB_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
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
		Midea: MideaConfig{
			ForcedLoginDelay: 10,
			RequestTimeout:   30,
		},
		OpenHAB: OpenHABConfig{
			ItemPrefix:     "ac",
			RequestTimeout: 30,
		},
		Sync: SyncConfig{
			PollInterval: 60,
			Tick:         1000,
			EventBackoff: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "midea-bridge",
			},
			QoS:            1,
			TopicPrefix:    "midea",
			HealthInterval: 30,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Restart: RestartConfig{
			MaxAttempts: 100,
			Cooldown:    10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MIDEA_BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Midea cloud
	setString(&cfg.Midea.AppKey, "MIDEA_APP_KEY")
	setString(&cfg.Midea.Email, "MIDEA_EMAIL")
	setString(&cfg.Midea.Password, "MIDEA_PASSWORD")
	setString(&cfg.Midea.HomeGroupID, "MIDEA_HOME_GROUP_ID")
	setString(&cfg.Midea.BaseURL, "MIDEA_BASE_URL")

	// openHAB
	setString(&cfg.OpenHAB.URL, "OPENHAB_URL")
	setString(&cfg.OpenHAB.ItemPrefix, "OPENHAB_ITEM_PREFIX")

	// Sync
	setInt(&cfg.Sync.PollInterval, "SYNC_POLL_INTERVAL")

	// MQTT
	setBool(&cfg.MQTT.Enabled, "MQTT_ENABLED")
	setString(&cfg.MQTT.Broker.Host, "MQTT_HOST")
	setInt(&cfg.MQTT.Broker.Port, "MQTT_PORT")
	setString(&cfg.MQTT.Auth.Username, "MQTT_USERNAME")
	setString(&cfg.MQTT.Auth.Password, "MQTT_PASSWORD")

	// InfluxDB
	setBool(&cfg.InfluxDB.Enabled, "INFLUXDB_ENABLED")
	setString(&cfg.InfluxDB.URL, "INFLUXDB_URL")
	setString(&cfg.InfluxDB.Token, "INFLUXDB_TOKEN")

	// API
	setString(&cfg.API.Host, "API_HOST")
	setInt(&cfg.API.Port, "API_PORT")

	// Logging
	setString(&cfg.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

// setInt ignores values that are not integers; Validate reports the
// resulting value if it is out of range.
func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Midea cloud
	if c.Midea.AppKey == "" {
		errs = append(errs, "midea.app_key is required")
	}
	if c.Midea.Email == "" {
		errs = append(errs, "midea.email is required")
	}
	if c.Midea.Password == "" {
		errs = append(errs, "midea.password is required (set MIDEA_BRIDGE_MIDEA_PASSWORD environment variable)")
	}

	// Devices
	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device is required")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		switch {
		case d.Name == "":
			errs = append(errs, fmt.Sprintf("devices[%d].name is required", i))
		case strings.Contains(d.Name, "_"):
			errs = append(errs, fmt.Sprintf("devices[%d].name %q must not contain underscores", i, d.Name))
		case seen[d.Name]:
			errs = append(errs, fmt.Sprintf("devices[%d].name %q is duplicated", i, d.Name))
		}
		seen[d.Name] = true
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
		}
	}

	// openHAB
	if c.OpenHAB.URL == "" {
		errs = append(errs, "openhab.url is required")
	}
	if c.OpenHAB.ItemPrefix == "" || strings.Contains(c.OpenHAB.ItemPrefix, "_") {
		errs = append(errs, "openhab.item_prefix must be non-empty and contain no underscores")
	}

	// Sync
	if c.Sync.PollInterval < 1 {
		errs = append(errs, "sync.poll_interval must be at least 1 second")
	}
	if c.Sync.Tick < 10 {
		errs = append(errs, "sync.tick must be at least 10 ms")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Restart
	if c.Restart.MaxAttempts < 1 {
		errs = append(errs, "restart.max_attempts must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// Seconds converts a whole-second setting to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Milliseconds converts a millisecond setting to a Duration.
func Milliseconds(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
