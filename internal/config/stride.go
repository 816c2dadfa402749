// Package config loads Stride configuration from YAML with environment
// overrides applied on top.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Stride configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Assistant AssistantConfig `yaml:"assistant"`
	Store     StoreConfig     `yaml:"store"`
	Retry     RetryConfig     `yaml:"retry"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AssistantConfig configures the assistant-service client.
type AssistantConfig struct {
	BaseURL          string `yaml:"base_url"`
	DisplayName      string `yaml:"display_name"`
	SystemPromptData string `yaml:"system_prompt_data"`
	Timeout          string `yaml:"timeout"`
}

// StoreConfig configures the domain-store client.
type StoreConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// RetryConfig bounds the context-request negotiation.
type RetryConfig struct {
	DataBudget       int `yaml:"data_budget"`
	CapabilityBudget int `yaml:"capability_budget"`
}

// HistoryConfig configures conversation persistence.
type HistoryConfig struct {
	Path   string `yaml:"path"`
	Window int    `yaml:"window"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Name:    "stride",
		Version: "0.3.0",
		Assistant: AssistantConfig{
			BaseURL:     "http://localhost:8787",
			DisplayName: "there",
			Timeout:     "5m",
		},
		Store: StoreConfig{
			BaseURL: "http://localhost:8788",
			Timeout: "30s",
		},
		Retry: RetryConfig{
			DataBudget:       2,
			CapabilityBudget: 4,
		},
		History: HistoryConfig{
			Path:   ".stride",
			Window: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, if it exists, over the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STRIDE_ASSISTANT_URL"); v != "" {
		c.Assistant.BaseURL = v
	}
	if v := os.Getenv("STRIDE_STORE_URL"); v != "" {
		c.Store.BaseURL = v
	}
	if v := os.Getenv("STRIDE_DISPLAY_NAME"); v != "" {
		c.Assistant.DisplayName = v
	}
	if v := os.Getenv("STRIDE_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("STRIDE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	if c.Assistant.BaseURL == "" {
		return fmt.Errorf("assistant.base_url is required")
	}
	if c.Store.BaseURL == "" {
		return fmt.Errorf("store.base_url is required")
	}
	if c.Retry.DataBudget < 0 || c.Retry.CapabilityBudget < 0 {
		return fmt.Errorf("retry budgets must not be negative")
	}
	return nil
}

// AssistantTimeout parses the assistant timeout, falling back to 5 minutes.
func (c *Config) AssistantTimeout() time.Duration {
	return parseDuration(c.Assistant.Timeout, 5*time.Minute)
}

// StoreTimeout parses the store timeout, falling back to 30 seconds.
func (c *Config) StoreTimeout() time.Duration {
	return parseDuration(c.Store.Timeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
