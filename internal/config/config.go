package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config описывает параметры терминала и транспортов.
type Config struct {
	Agent struct {
		LogLevel string `yaml:"log_level" toml:"log_level"`
	} `yaml:"agent" toml:"agent"`
	Terminal struct {
		Prompt      string `yaml:"prompt" toml:"prompt"`
		HistoryFile string `yaml:"history_file" toml:"history_file"`
		// Render: "plain" или "markdown" (glamour).
		Render string `yaml:"render" toml:"render"`
	} `yaml:"terminal" toml:"terminal"`
	Security struct {
		AuthAllowlist map[string][]string `yaml:"auth_allowlist" toml:"auth_allowlist"`
		RateLimit     int                 `yaml:"rate_limit" toml:"rate_limit"`
		RateWindowMS  int                 `yaml:"rate_window_ms" toml:"rate_window_ms"`
	} `yaml:"security" toml:"security"`
	SQLite struct {
		Enabled bool   `yaml:"enabled" toml:"enabled"`
		Path    string `yaml:"path" toml:"path"`
	} `yaml:"sqlite" toml:"sqlite"`
	Scheduler struct {
		IntervalSeconds int      `yaml:"interval_seconds" toml:"interval_seconds"`
		Commands        []string `yaml:"commands" toml:"commands"`
		TimeoutSeconds  int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
	} `yaml:"scheduler" toml:"scheduler"`
	Telegram struct {
		Enabled bool `yaml:"enabled" toml:"enabled"`
	} `yaml:"telegram" toml:"telegram"`
	Web struct {
		Enabled          bool     `yaml:"enabled" toml:"enabled"`
		ListenAddr       string   `yaml:"listen_addr" toml:"listen_addr"`
		RequestTimeoutMS int      `yaml:"request_timeout_ms" toml:"request_timeout_ms"`
		ShutdownTimeoutS int      `yaml:"shutdown_timeout_s" toml:"shutdown_timeout_s"`
		AllowedOrigins   []string `yaml:"allowed_origins" toml:"allowed_origins"`
		Tokens           []Token  `yaml:"tokens" toml:"tokens"`
	} `yaml:"web" toml:"web"`
	Collector struct {
		TimeoutMS  int `yaml:"timeout_ms" toml:"timeout_ms"`
		MaxResults int `yaml:"max_results" toml:"max_results"`
	} `yaml:"collector" toml:"collector"`
	X struct {
		BaseURL     string `yaml:"base_url" toml:"base_url"`
		BearerToken string `yaml:"bearer_token" toml:"bearer_token"`
	} `yaml:"x" toml:"x"`
}

// Token описывает bearer-токен HTTP транспорта (хранится только sha256).
type Token struct {
	ID          string `yaml:"id" toml:"id"`
	TokenSHA256 string `yaml:"token_sha256" toml:"token_sha256"`
	Subject     string `yaml:"subject" toml:"subject"`
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	var cfg Config
	cfg.Agent.LogLevel = "info"
	cfg.Terminal.Prompt = "intel> "
	cfg.Terminal.Render = "plain"
	cfg.Security.AuthAllowlist = map[string][]string{"telegram": {}, "web": {}}
	cfg.Security.RateLimit = 5
	cfg.Security.RateWindowMS = 1000
	cfg.SQLite.Path = "intelterm.db"
	cfg.Scheduler.IntervalSeconds = 86400
	cfg.Scheduler.Commands = []string{"intel", "agents"}
	cfg.Scheduler.TimeoutSeconds = 60
	cfg.Web.ListenAddr = "127.0.0.1:8080"
	cfg.Web.RequestTimeoutMS = 30000
	cfg.Web.ShutdownTimeoutS = 5
	cfg.Collector.TimeoutMS = 15000
	cfg.Collector.MaxResults = 10
	cfg.X.BaseURL = "https://api.twitter.com"
	return cfg
}

// Load читает конфиг (YAML, или TOML по расширению .toml) поверх значений
// по умолчанию и применяет переменные окружения.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		ApplyEnvOverrides(&cfg)
		return cfg, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- путь к конфигу задается оператором.
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("config file is empty")
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

// ApplyEnvOverrides применяет переменные окружения поверх конфига.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Agent.LogLevel = v
	}
	if v := os.Getenv("INTELTERM_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
		cfg.SQLite.Enabled = true
	}
	if v := os.Getenv("INTELTERM_WEB_ADDR"); v != "" {
		cfg.Web.ListenAddr = v
	}
	if v := os.Getenv("INTELTERM_SCHEDULER_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Scheduler.IntervalSeconds = n
		}
	}
	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		cfg.X.BearerToken = v
	}
	if v := os.Getenv("X_API_BASE_URL"); v != "" {
		cfg.X.BaseURL = v
	}
}
