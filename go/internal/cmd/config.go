package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the repeater's process configuration, loaded from a YAML file and
// overridable per field through environment variables.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Relay struct {
		AckWindowMs int `yaml:"ack_window_ms"`
	} `yaml:"relay"`
	Diagnostics struct {
		Enabled bool   `yaml:"enabled"`
		Sink    string `yaml:"sink"` // "memory" or "nats"
		NATSURL string `yaml:"nats_url"`
		Subject string `yaml:"nats_subject"`
	} `yaml:"diagnostics"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Server.Address = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Relay.AckWindowMs = 5000
	cfg.Diagnostics.Enabled = false
	cfg.Diagnostics.Sink = "memory"
	cfg.Diagnostics.NATSURL = "nats://localhost:4222"
	cfg.Diagnostics.Subject = "shotclock.diagnostics"
	return cfg
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Address = getEnv("REPEATER_ADDRESS", cfg.Server.Address)
	cfg.Server.Port = getEnvAsInt("REPEATER_PORT", cfg.Server.Port)
	cfg.Relay.AckWindowMs = getEnvAsInt("REPEATER_ACK_WINDOW_MS", cfg.Relay.AckWindowMs)
	cfg.Diagnostics.NATSURL = getEnv("NATS_URL", cfg.Diagnostics.NATSURL)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
