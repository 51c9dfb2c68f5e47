// Package config loads server configuration from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/matthewbaird/advisorlens/internal/daterange"
)

// Database drivers accepted in database.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full server configuration.
type Config struct {
	Port      int             `mapstructure:"port"`
	Database  DatabaseConfig  `mapstructure:"database"`
	API       APIConfig       `mapstructure:"api"`
	DateRange DateRangeConfig `mapstructure:"daterange"`
	Views     ViewsConfig     `mapstructure:"views"`
	Seed      bool            `mapstructure:"seed"`
}

// DatabaseConfig selects the feed store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// APIConfig points the explorer at a remote advisor API. An empty BaseURL
// serves feeds from the local store instead.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Remote reports whether feeds are read from a remote API.
func (c APIConfig) Remote() bool { return c.BaseURL != "" }

type DateRangeConfig struct {
	DefaultWindow string `mapstructure:"default_window"`
}

type ViewsConfig struct {
	File string `mapstructure:"file"`
}

// Load reads configuration. file, when set, must exist; otherwise
// advisorlens.yaml is looked up in the working directory and /etc/advisorlens
// and skipped when absent. Environment variables use the ADVISORLENS_ prefix
// with "." replaced by "_"; PORT and DATABASE_URL are honored unprefixed.
func Load(file string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.url", "file:advisorlens.db?_pragma=busy_timeout(5000)")
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("daterange.default_window", string(daterange.DefaultWindow))
	v.SetDefault("views.file", "")
	v.SetDefault("seed", true)

	v.SetEnvPrefix("ADVISORLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("port", "ADVISORLENS_PORT", "PORT"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("database.url", "ADVISORLENS_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, err
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("advisorlens")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/advisorlens")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		} else {
			log.Printf("config: using %s", v.ConfigFileUsed())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if w := daterange.Window(c.DateRange.DefaultWindow); !w.IsPreset() {
		return fmt.Errorf("config: default window %q is not one of %v", c.DateRange.DefaultWindow, daterange.Windows())
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("config: negative api timeout %s", c.API.Timeout)
	}
	return nil
}

// Window returns the configured default window.
func (c *Config) Window() daterange.Window {
	return daterange.Window(c.DateRange.DefaultWindow)
}
