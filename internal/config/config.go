package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               int
	JWTSecret          string
	GinMode            string
	TLSCertFile        string
	TLSKeyFile         string
	TokenExpiry        time.Duration
	LoginRatePerMinute int
	StorageConfig
}

// StorageConfig selects the ticket database. DatabaseURL wins over DBPath.
type StorageConfig struct {
	DBPath      string
	DatabaseURL string
}

// ClientConfig drives the CLI client and its sync loop.
type ClientConfig struct {
	APIURL         string
	LocalStorePath string
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func loadDotEnv() {
	_ = godotenv.Load(".env")
}

func LoadConfig() (Config, error) {
	loadDotEnv()
	return LoadConfigFromEnv(osEnv{})
}

// LoadStorageConfig reads only the database keys, for commands that never
// issue tokens.
func LoadStorageConfig() StorageConfig {
	loadDotEnv()
	return storageFromEnv(osEnv{})
}

func LoadClientConfig() (ClientConfig, error) {
	loadDotEnv()
	return LoadClientConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:               3001,
		GinMode:            "release",
		TokenExpiry:        24 * time.Hour,
		LoginRatePerMinute: 10,
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.JWTSecret = env.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")

	if raw := env.Getenv("TOKEN_EXPIRY_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
		}
		cfg.TokenExpiry = time.Duration(seconds) * time.Second
	}

	cfg.StorageConfig = storageFromEnv(env)

	if raw := env.Getenv("LOGIN_RATE_LIMIT_PER_MIN"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return Config{}, fmt.Errorf("invalid LOGIN_RATE_LIMIT_PER_MIN")
		}
		cfg.LoginRatePerMinute = limit
	}

	return cfg, nil
}

func storageFromEnv(env Env) StorageConfig {
	cfg := StorageConfig{DBPath: "data/support.db"}
	if raw := env.Getenv("DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	cfg.DatabaseURL = env.Getenv("DATABASE_URL")
	return cfg
}

func LoadClientConfigFromEnv(env Env) (ClientConfig, error) {
	cfg := ClientConfig{
		APIURL:         env.Getenv("SUPPORT_API_URL"),
		LocalStorePath: "support_tickets.json",
		PollInterval:   time.Second,
		RequestTimeout: 5 * time.Second,
	}

	if raw := env.Getenv("SUPPORT_LOCAL_STORE"); raw != "" {
		cfg.LocalStorePath = raw
	}

	if raw := env.Getenv("POLL_INTERVAL_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return ClientConfig{}, fmt.Errorf("invalid POLL_INTERVAL_MS")
		}
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}

	if raw := env.Getenv("REQUEST_TIMEOUT_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return ClientConfig{}, fmt.Errorf("invalid REQUEST_TIMEOUT_MS")
		}
		cfg.RequestTimeout = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}
