package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverMemory   = "memory"

	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

type Config struct {
	Env         string
	Port        int
	ServiceName string

	StoreDriver  string
	StoreTimeout time.Duration

	DBURL            string
	DBMaxConns       int
	DBConnectTimeout time.Duration

	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PasswordHasher string
	BcryptCost     int

	CORSAllowedOrigins []string
	MaxBodyBytes       int64

	OTelEnabled  bool
	OTelEndpoint string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:         getEnv("APP_ENV", "dev"),
		Port:        getEnvInt("PORT", 10000),
		ServiceName: getEnv("SERVICE_NAME", "accountgate"),

		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 3*time.Second),

		DBURL:            getEnv("DATABASE_URL", buildDBURL()),
		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 10),
		DBConnectTimeout: getEnvDuration("DB_CONNECT_TIMEOUT", 5*time.Second),

		SQLitePath: getEnv("SQLITE_PATH", "accountgate.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		PasswordHasher: strings.ToLower(getEnv("PASSWORD_HASHER", HasherBcrypt)),
		BcryptCost:     getEnvInt("BCRYPT_COST", 12),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 10<<20)),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite, DriverRedis, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of postgres, sqlite, redis, memory", c.StoreDriver))
	}

	switch c.PasswordHasher {
	case HasherBcrypt, HasherArgon2id:
	default:
		errs = append(errs, fmt.Errorf("PASSWORD_HASHER %q is not one of bcrypt, argon2id", c.PasswordHasher))
	}

	// below 10 offline brute force of a leaked table stays cheap
	if c.PasswordHasher == HasherBcrypt && (c.BcryptCost < 10 || c.BcryptCost > 31) {
		errs = append(errs, fmt.Errorf("BCRYPT_COST %d must be between 10 and 31", c.BcryptCost))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}

	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}

	if c.StoreDriver == DriverPostgres && c.DBURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
	}

	return errors.Join(errs...)
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "accountgate")
	pass := getEnv("DB_PASSWORD", "accountgate")
	name := getEnv("DB_NAME", "accountgate")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			return fallback
		}

		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			return fallback
		}

		return d
	}
	return fallback
}

// comma separated, blanks dropped
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	out := make([]string, 0)

	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}

	return out
}
