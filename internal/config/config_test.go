package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("PORT", "")

	cfg := Load()

	if cfg.Port != 10000 {
		t.Fatalf("got port %d, want 10000", cfg.Port)
	}
	if cfg.StoreDriver != DriverPostgres {
		t.Fatalf("got driver %q, want postgres", cfg.StoreDriver)
	}
	if cfg.BcryptCost != 12 {
		t.Fatalf("got bcrypt cost %d, want 12", cfg.BcryptCost)
	}
	if cfg.StoreTimeout != 3*time.Second {
		t.Fatalf("got store timeout %s, want 3s", cfg.StoreTimeout)
	}
	if cfg.DBURL == "" {
		t.Fatalf("expected a DB url assembled from DB_* defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("PORT", "not-a-number")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := Load()

	if cfg.StoreDriver != DriverSQLite {
		t.Fatalf("got driver %q, want sqlite", cfg.StoreDriver)
	}
	if cfg.StoreTimeout != 750*time.Millisecond {
		t.Fatalf("got timeout %s", cfg.StoreTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.Port != 10000 {
		t.Fatalf("invalid PORT should fall back, got %d", cfg.Port)
	}
	if !cfg.OTelEnabled {
		t.Fatalf("expected OTEL_ENABLED to parse")
	}
}

func TestValidateRejectsWeakAndUnknownSettings(t *testing.T) {
	base := Config{
		Port:           8080,
		StoreDriver:    DriverMemory,
		StoreTimeout:   time.Second,
		PasswordHasher: HasherBcrypt,
		BcryptCost:     12,
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := map[string]func(c *Config){
		"low_cost":       func(c *Config) { c.BcryptCost = 4 },
		"unknown_driver": func(c *Config) { c.StoreDriver = "mongo" },
		"unknown_hasher": func(c *Config) { c.PasswordHasher = "md5" },
		"bad_port":       func(c *Config) { c.Port = 0 },
		"zero_timeout":   func(c *Config) { c.StoreTimeout = 0 },
		"postgres_no_url": func(c *Config) {
			c.StoreDriver = DriverPostgres
			c.DBURL = ""
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)

			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
