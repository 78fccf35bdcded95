package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	APIKey         string     `yaml:"api_key"`
	SystemID       string     `yaml:"system_id"`
	DataServiceURL string     `yaml:"data_service_url,omitempty"`
	Timezone       string     `yaml:"timezone,omitempty"`
	DBPath         string     `yaml:"db_path,omitempty"`
	LogLevel       string     `yaml:"log_level,omitempty"`
	MQTT           MQTTConfig `yaml:"mqtt,omitempty"`
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// Load reads the config file, then applies PVOUTPUT_* environment
// overrides.  A .env file in the working directory is loaded first so
// credentials can stay out of the YAML file.
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Missing .env is fine; real environment variables still apply.
	godotenv.Load()

	if v := os.Getenv("PVOUTPUT_APIKEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("PVOUTPUT_SYSTEMID"); v != "" {
		cfg.SystemID = v
	}
	if v := os.Getenv("PVOUTPUT_DATA_SERVICE_URL"); v != "" {
		cfg.DataServiceURL = v
	}
	if v := os.Getenv("PVOUTPUT_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the loaded values.  The data service URL must be a
// *.pvoutput.org host: a typo here would send the API key elsewhere.
func (c *Config) Validate() error {
	if c.DataServiceURL != "" && !strings.HasSuffix(strings.TrimSuffix(c.DataServiceURL, "/"), ".org") {
		return fmt.Errorf("data_service_url %q must end with .org", c.DataServiceURL)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// GetDBPath returns the configured database path with a default of pvharvest.db
func (c *Config) GetDBPath() string {
	if c.DBPath == "" {
		return "pvharvest.db"
	}
	return c.DBPath
}

// GetLogLevel returns the configured log level with a default of info
func (c *Config) GetLogLevel() string {
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

// GetTopicPrefix returns the MQTT topic prefix with a default of pvharvest
func (m *MQTTConfig) GetTopicPrefix() string {
	if m.TopicPrefix == "" {
		return "pvharvest"
	}
	return m.TopicPrefix
}
