package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Transport struct {
		Kind       string `yaml:"kind"` // memory, ws, redis or nats
		RelayURL   string `yaml:"relay_url"`
		NATSURL    string `yaml:"nats_url"`
		NATSPrefix string `yaml:"nats_prefix"`
	} `yaml:"transport"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Deck struct {
		TTL string `yaml:"ttl"`
	} `yaml:"deck"`
	Game struct {
		TickInterval      string `yaml:"tick_interval"`
		RevealGrace       string `yaml:"reveal_grace"`
		TickWindow        string `yaml:"tick_window"`
		TickEveryFrame    bool   `yaml:"tick_every_frame"`
		RequestStateDelay string `yaml:"request_state_delay"`
		DefaultTimeLimit  int    `yaml:"default_time_limit"`
	} `yaml:"game"`
}

// Default is used when no config file exists.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Log.Level = "info"
	cfg.Transport.Kind = "ws"
	cfg.Transport.RelayURL = "http://localhost:8080"
	cfg.Transport.NATSPrefix = "room"
	cfg.Game.TickInterval = "500ms"
	cfg.Game.RevealGrace = "1s"
	cfg.Game.TickWindow = "5s"
	cfg.Game.RequestStateDelay = "500ms"
	cfg.Game.DefaultTimeLimit = 30
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the environment if present. Existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// TTLDuration parses a cache TTL.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	return Duration(raw, fallback)
}
