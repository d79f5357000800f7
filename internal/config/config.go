// Package config handles configuration management for flocksync.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Remote  RemoteConfig  `mapstructure:"remote" yaml:"remote"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Schema  SchemaConfig  `mapstructure:"schema" yaml:"schema"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// RemoteConfig is the tree the sync client talks to.
type RemoteConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// ServerConfig holds the tree server settings.
type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AuthRequired   bool     `mapstructure:"auth_required" yaml:"auth_required"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	RateLimit      int      `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per minute per IP, 0 disables
	TrustProxy     bool     `mapstructure:"trust_proxy" yaml:"trust_proxy"`
}

// StoreConfig is the tree the server serves.
type StoreConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// AuthConfig holds account and token settings for the server.
type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer          string `mapstructure:"issuer" yaml:"issuer"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes" yaml:"token_ttl_minutes"`
	BcryptCost      int    `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost"`
}

// SchemaConfig controls payload validation before writes.
type SchemaConfig struct {
	Validate bool `mapstructure:"validate" yaml:"validate"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Loader reads the configuration and can follow changes to the file.
type Loader struct {
	v *viper.Viper

	mu sync.Mutex
}

// NewLoader reads configPath, or searches the default locations when it is
// empty. A missing file is not an error; defaults and env apply.
func NewLoader(configPath string) (*Loader, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/" + DirName)
		v.AddConfigPath("/etc/flocksync")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return &Loader{v: v}, nil
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	l, err := NewLoader(configPath)
	if err != nil {
		return nil, err
	}
	return l.Config()
}

// Default returns the built-in defaults.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Config decodes and validates the current settings.
func (l *Loader) Config() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	postProcess(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Get returns a raw setting by dotted key.
func (l *Loader) Get(key string) any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v.Get(key)
}

// Watch calls fn after every change to the config file. An invalid file is
// reported through err and the previous settings stay in effect. Watch is a
// no-op without a config file.
func (l *Loader) Watch(fn func(cfg *Config, err error)) bool {
	if l.File() == "" {
		return false
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(l.Config())
	})
	l.v.WatchConfig()
	return true
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.dsn", "memory:")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.auth_required", true)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.trust_proxy", false)

	v.SetDefault("store.dsn", "memory:")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "flocksync")
	v.SetDefault("auth.token_ttl_minutes", DefaultTokenTTLMinutes)
	v.SetDefault("auth.bcrypt_cost", 0)

	v.SetDefault("schema.validate", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

func postProcess(cfg *Config) {
	cfg.Remote.DSN = strings.TrimSpace(cfg.Remote.DSN)
	cfg.Store.DSN = strings.TrimSpace(cfg.Store.DSN)
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteFile writes cfg to path as YAML, creating parent directories.
func WriteFile(path string, cfg *Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(fileHeader), data...), 0o600)
}

// GetConfigDir returns the user config directory for flocksync.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, DirName), nil
}
