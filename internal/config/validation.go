package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

var (
	validLevels  = []string{"trace", "debug", "info", "warn", "error"}
	validFormats = []string{"console", "json"}
	validSchemes = []string{"memory", "mem", "sqlite", "file", "postgres", "postgresql", "ws", "wss"}
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateDSN(cfg.Remote.DSN, "remote.dsn"); err != nil {
		return err
	}
	if err := validateDSN(cfg.Store.DSN, "store.dsn"); err != nil {
		return err
	}
	if scheme := dsnScheme(cfg.Store.DSN); scheme == "ws" || scheme == "wss" {
		return fmt.Errorf("store.dsn cannot point at another server: %s", cfg.Store.DSN)
	}
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	if err := validateAuth(&cfg.Auth); err != nil {
		return err
	}
	return validateLogging(&cfg.Logging)
}

func dsnScheme(dsn string) string {
	scheme, _, ok := strings.Cut(dsn, ":")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

func validateDSN(dsn, field string) error {
	if dsn == "" {
		return nil
	}
	scheme := dsnScheme(dsn)
	if scheme == "" {
		return fmt.Errorf("%s must start with a scheme such as memory:, sqlite:// or ws://", field)
	}
	if !slices.Contains(validSchemes, scheme) {
		return fmt.Errorf("%s has unsupported scheme %q", field, scheme)
	}
	if scheme == "ws" || scheme == "wss" || scheme == "postgres" || scheme == "postgresql" {
		u, err := url.Parse(dsn)
		if err != nil {
			return fmt.Errorf("%s is not a valid URL: %w", field, err)
		}
		if u.Host == "" {
			return fmt.Errorf("%s must include a host", field)
		}
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Host == "" {
		return fmt.Errorf("server.host cannot be empty")
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit cannot be negative")
	}
	for _, origin := range cfg.AllowedOrigins {
		if domain, ok := strings.CutPrefix(origin, "*."); ok && domain != "" && !strings.Contains(domain, "/") {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.allowed_origins has invalid origin: %q", origin)
		}
	}
	return nil
}

func validateAuth(cfg *AuthConfig) error {
	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d characters", MinJWTSecretLength)
	}
	if cfg.TokenTTLMinutes < 1 {
		return fmt.Errorf("auth.token_ttl_minutes must be at least 1")
	}
	if cfg.BcryptCost != 0 && (cfg.BcryptCost < 4 || cfg.BcryptCost > 31) {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31")
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	if !slices.Contains(validLevels, cfg.Level) {
		return fmt.Errorf("logging.level must be one of %s", strings.Join(validLevels, ", "))
	}
	if !slices.Contains(validFormats, cfg.Format) {
		return fmt.Errorf("logging.format must be one of %s", strings.Join(validFormats, ", "))
	}
	return nil
}
