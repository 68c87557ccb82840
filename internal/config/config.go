package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Telegram struct {
		Token        string `yaml:"token"`
		PollTimeout  int    `yaml:"poll_timeout"`
		MaxFileBytes int64  `yaml:"max_file_bytes"`
		WebAppURL    string `yaml:"webapp_url"`
		Debug        bool   `yaml:"debug"`
	} `yaml:"telegram"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL         string `yaml:"url"`
		AutoMigrate bool   `yaml:"auto_migrate"`
	} `yaml:"postgres"`
	Session struct {
		Anonymous *bool `yaml:"anonymous"`
	} `yaml:"session"`
	Dispatch struct {
		Interval string `yaml:"interval"`
		Burst    int    `yaml:"burst"`
	} `yaml:"dispatch"`
	Report struct {
		Renderer string `yaml:"renderer"`
		TypstBin string `yaml:"typst_bin"`
		Template string `yaml:"template"`
		WorkDir  string `yaml:"work_dir"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"report"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Telegram.PollTimeout = 60
	cfg.Telegram.MaxFileBytes = 1 << 20
	cfg.Postgres.AutoMigrate = true
	cfg.Dispatch.Burst = 1
	cfg.Report.Renderer = "typst"
	cfg.Report.Timeout = "30s"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load reads YAML config from path on top of Default, then applies the
// environment. A missing file is not an error; .env is loaded if present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Telegram.Token = getEnv("TELEGRAM_BOT_TOKEN", cfg.Telegram.Token)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
	cfg.Postgres.URL = getEnv("POSTGRES_URL", cfg.Postgres.URL)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// AnonymousPolls reports whether polls are sent anonymously. Unset means true.
func (c Config) AnonymousPolls() bool {
	if c.Session.Anonymous == nil {
		return true
	}
	return *c.Session.Anonymous
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
