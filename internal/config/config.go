// Package config handles MindFlow configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all configuration
type Config struct {
	// Paths
	DataDir string `json:"data_dir"`

	// Server
	Server ServerConfig `json:"server"`

	// Services
	Assist AssistConfig `json:"assist"`

	// Logging
	LogLevel string `json:"log_level"`
}

// ServerConfig for the HTTP server
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// AssistConfig for the generative-text collaborator
type AssistConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// Default returns default configuration
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".mindflow"),
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Assist: AssistConfig{
			APIKey:  assistKeyFromEnv(),
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.5-flash",
		},
		LogLevel: "info",
	}
}

// assistKeyFromEnv resolves the API key from the environment. The
// generic API_KEY name is kept for parity with existing deployments.
func assistKeyFromEnv() string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("API_KEY")
}

// Load loads config from file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Env always wins over the file
	if key := assistKeyFromEnv(); key != "" {
		cfg.Assist.APIKey = key
	}

	return cfg, nil
}

// Save saves config to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
