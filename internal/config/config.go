package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port             int
	MasterKey        string
	DataDir          string
	GinMode          string
	TLSCertFile      string
	TLSKeyFile       string
	TokenExpiry      time.Duration
	SampleInterval   time.Duration
	TelegramBotToken string
	SignalKURL       string
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:           3000,
		DataDir:        "data",
		GinMode:        "release",
		TokenExpiry:    7 * 24 * time.Hour,
		SampleInterval: 2000 * time.Millisecond,
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.MasterKey = env.Getenv("MASTER_KEY")
	if cfg.MasterKey == "" {
		return Config{}, fmt.Errorf("MASTER_KEY is required")
	}

	if raw := env.Getenv("DATA_DIR"); raw != "" {
		cfg.DataDir = raw
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

	if raw := env.Getenv("SAMPLE_INTERVAL_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return Config{}, fmt.Errorf("invalid SAMPLE_INTERVAL_MS")
		}
		cfg.SampleInterval = time.Duration(ms) * time.Millisecond
	}

	// Missing values here disable the bot or the live-data feed, not the process.
	cfg.TelegramBotToken = env.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.SignalKURL = env.Getenv("SIGNALK_WS_URL")

	return cfg, nil
}
