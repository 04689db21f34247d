package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	BotUsername   string `yaml:"bot_username"`
	WebhookSecret string `yaml:"webhook_secret"`
	DryRun        bool   `yaml:"dry_run"`
}

type AuthConfig struct {
	JWTSecret      string `yaml:"jwt_secret"`
	AccessTTLMin   int    `yaml:"access_ttl_minutes"`
	RefreshTTLDays int    `yaml:"refresh_ttl_days"`
}

type VerificationConfig struct {
	CodeTTLMin       int `yaml:"code_ttl_minutes"`
	MaxSendsPerCycle int `yaml:"max_sends_per_window"`
	SendWindowMin    int `yaml:"send_window_minutes"`
	BindingTTLMin    int `yaml:"binding_ttl_minutes"`
}

type Config struct {
	Server struct {
		Port   int    `yaml:"port"`
		AppURL string `yaml:"app_url"` // базовый URL фронтенда (редирект после callback)
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Auth         AuthConfig         `yaml:"auth"`
	Verification VerificationConfig `yaml:"verification"`
}

func LoadConfig() *Config {
	path := os.Getenv("TULPAR_CONFIG")
	if path == "" {
		path = "config/config.yaml"
	}
	f, err := os.Open(path)
	if err != nil {
		panic("Failed to open config.yaml: " + err.Error())
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		panic("Failed to parse config.yaml: " + err.Error())
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Auth.AccessTTLMin <= 0 {
		cfg.Auth.AccessTTLMin = 15
	}
	if cfg.Auth.RefreshTTLDays <= 0 {
		cfg.Auth.RefreshTTLDays = 30
	}
	if cfg.Verification.CodeTTLMin <= 0 {
		cfg.Verification.CodeTTLMin = 5
	}
	if cfg.Verification.MaxSendsPerCycle <= 0 {
		cfg.Verification.MaxSendsPerCycle = 3
	}
	if cfg.Verification.SendWindowMin <= 0 {
		cfg.Verification.SendWindowMin = 10
	}
	if cfg.Verification.BindingTTLMin <= 0 {
		cfg.Verification.BindingTTLMin = 30
	}
	return &cfg
}

func (c *Config) CodeTTL() time.Duration {
	return time.Duration(c.Verification.CodeTTLMin) * time.Minute
}

func (c *Config) SendWindow() time.Duration {
	return time.Duration(c.Verification.SendWindowMin) * time.Minute
}

func (c *Config) BindingTTL() time.Duration {
	return time.Duration(c.Verification.BindingTTLMin) * time.Minute
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.Auth.AccessTTLMin) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.Auth.RefreshTTLDays) * 24 * time.Hour
}
