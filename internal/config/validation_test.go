package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 65536 }, "server.port"},
		{"empty host", func(c *Config) { c.Server.Host = "" }, "server.host"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }, "server.rate_limit"},
		{"bad origin", func(c *Config) { c.Server.AllowedOrigins = []string{"flock.example"} }, "allowed_origins"},
		{"wildcard origin", func(c *Config) { c.Server.AllowedOrigins = []string{"*.flock.example"} }, ""},
		{"good origin", func(c *Config) { c.Server.AllowedOrigins = []string{"http://localhost:3000"} }, ""},
		{"dsn without scheme", func(c *Config) { c.Remote.DSN = "/tmp/flock.db" }, "must start with a scheme"},
		{"dsn unknown scheme", func(c *Config) { c.Remote.DSN = "redis://localhost" }, "unsupported scheme"},
		{"ws without host", func(c *Config) { c.Remote.DSN = "ws:///ws" }, "must include a host"},
		{"ws remote", func(c *Config) { c.Remote.DSN = "wss://flock.example/ws" }, ""},
		{"postgres store", func(c *Config) { c.Store.DSN = "postgres://u:p@db:5432/flock" }, ""},
		{"ws store", func(c *Config) { c.Store.DSN = "ws://flock.example/ws" }, "cannot point at another server"},
		{"empty dsn", func(c *Config) { c.Remote.DSN = "" }, ""},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
		{"long secret", func(c *Config) { c.Auth.JWTSecret = strings.Repeat("k", MinJWTSecretLength) }, ""},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTLMinutes = 0 }, "token_ttl_minutes"},
		{"bcrypt too low", func(c *Config) { c.Auth.BcryptCost = 2 }, "bcrypt_cost"},
		{"bcrypt ok", func(c *Config) { c.Auth.BcryptCost = 10 }, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
