package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment overrides, e.g. RELAY_EMAIL.
const EnvPrefix = "relay"

// envOverrides are applied on top of the file.
type envOverrides struct {
	Email    string `envconfig:"EMAIL"`
	Password string `envconfig:"PASSWORD"`
	WSURL    string `envconfig:"WS_URL"`
	LoginURL string `envconfig:"LOGIN_URL"`
	DBPass   string `envconfig:"DB_PASSWORD"`
}

// Load reads a YAML config file and expands environment variables. An
// empty path yields an empty config.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config, applies environment overrides and then
// default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies overrides and defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if env.Email != "" {
		c.Login.Email = env.Email
	}
	if env.Password != "" {
		c.Login.Password = env.Password
	}
	if env.WSURL != "" {
		c.Connection.URL = env.WSURL
	}
	if env.LoginURL != "" {
		c.Login.URL = env.LoginURL
	}
	if env.DBPass != "" {
		c.Archive.Database.Password = env.DBPass
	}
	return nil
}
