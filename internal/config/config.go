// Package config handles the XDG configuration directory, config.yaml and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// AppName is the application directory name.
	AppName = "atask"

	// ConfigFile is the optional settings file inside the config directory.
	ConfigFile = "config.yaml"

	// GoogleClientFile is the Google OAuth client credentials filename.
	GoogleClientFile = "google_client.json"

	// GoogleTokenFile is the stored Google OAuth token filename.
	GoogleTokenFile = "google_token.json"

	// EnvPrefix prefixes environment overrides, e.g. ATASK_API_URL.
	EnvPrefix = "ATASK"

	DefaultAPIURL         = "http://localhost:3000/api"
	DefaultStorage        = "file"
	DefaultLoadTimeout    = 10 * time.Second
	DefaultRequestTimeout = 15 * time.Second
)

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string `mapstructure:"-"`

	// Debug enables debug logging.
	Debug bool `mapstructure:"-"`

	// Quiet suppresses informational output.
	Quiet bool `mapstructure:"-"`

	APIURL         string        `mapstructure:"api_url"`
	Storage        string        `mapstructure:"storage"`
	SQLitePath     string        `mapstructure:"sqlite_path"`
	RedisURL       string        `mapstructure:"redis_url"`
	LoadTimeout    time.Duration `mapstructure:"load_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// New creates a new Config with the default or specified config directory
// and loads config.yaml and ATASK_* overrides on top of the defaults.
// If configDir is empty, uses XDG_CONFIG_HOME/atask or $HOME/.config/atask.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetDefault("api_url", DefaultAPIURL)
	v.SetDefault("storage", DefaultStorage)
	v.SetDefault("sqlite_path", filepath.Join(dir, "atask.db"))
	v.SetDefault("redis_url", "")
	v.SetDefault("load_timeout", DefaultLoadTimeout)
	v.SetDefault("request_timeout", DefaultRequestTimeout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", ConfigFile, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", ConfigFile, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Dir = dir
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")
	return cfg, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// ConfigPath returns the path to config.yaml.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.Dir, ConfigFile)
}

// GoogleClientPath returns the path to the Google OAuth client credentials.
func (c *Config) GoogleClientPath() string {
	return filepath.Join(c.Dir, GoogleClientFile)
}

// GoogleTokenPath returns the path to the stored Google OAuth token.
func (c *Config) GoogleTokenPath() string {
	return filepath.Join(c.Dir, GoogleTokenFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasGoogleClient checks if the Google OAuth client credentials exist.
func (c *Config) HasGoogleClient() bool {
	_, err := os.Stat(c.GoogleClientPath())
	return err == nil
}

// HasGoogleToken checks if a Google token was saved by login-google.
func (c *Config) HasGoogleToken() bool {
	_, err := os.Stat(c.GoogleTokenPath())
	return err == nil
}

// RemoveGoogleToken deletes the Google token file. A missing file is not an
// error.
func (c *Config) RemoveGoogleToken() error {
	err := os.Remove(c.GoogleTokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
