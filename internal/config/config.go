package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenMANET configures the auxiliary node poller.
type OpenMANET struct {
	BridgeURL string `yaml:"bridge_url"`
	NodeURL   string `yaml:"node_url"`
	RefreshMs int    `yaml:"refresh_ms"`
	DNSServer string `yaml:"dns_server"`
}

func (o OpenMANET) Refresh() time.Duration {
	return time.Duration(o.RefreshMs) * time.Millisecond
}

// Config is the service configuration: YAML file first, environment
// variables last so deployments can override single values.
type Config struct {
	HTTPAddr    string    `yaml:"http_addr"`
	LogLevel    string    `yaml:"log_level"`
	DatabaseURL string    `yaml:"database_url"`
	RedisAddr   string    `yaml:"redis_addr"`
	RosterPath  string    `yaml:"roster_path"`
	OpenMANET   OpenMANET `yaml:"openmanet"`
}

func defaults() Config {
	return Config{
		HTTPAddr: ":8082",
		LogLevel: "info",
	}
}

// Load reads path (missing file is fine, defaults apply) and then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// defaults + env only
		default:
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = envOr("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = envOr("REDIS_ADDR", cfg.RedisAddr)
	cfg.RosterPath = envOr("ROSTER_PATH", cfg.RosterPath)
	cfg.OpenMANET.BridgeURL = envOr("OPENMANET_BRIDGE_URL", cfg.OpenMANET.BridgeURL)
	cfg.OpenMANET.NodeURL = envOr("OPENMANET_NODE_URL", cfg.OpenMANET.NodeURL)
	cfg.OpenMANET.DNSServer = envOr("OPENMANET_DNS_SERVER", cfg.OpenMANET.DNSServer)
	if v := os.Getenv("OPENMANET_REFRESH_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.OpenMANET.RefreshMs = ms
		}
	}
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
