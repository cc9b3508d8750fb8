package config

import (
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Assist.Model == "" {
		t.Error("default assist model should be set")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default", cfg.Server.Port)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Server.Port = 9191
	cfg.Assist.Model = "gemini-2.5-pro"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server.Port != 9191 {
		t.Errorf("Port = %d, want 9191", loaded.Server.Port)
	}
	if loaded.Assist.Model != "gemini-2.5-pro" {
		t.Errorf("Model = %q, want gemini-2.5-pro", loaded.Assist.Model)
	}
}

func TestLoad_EnvKeyWins(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")

	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Assist.APIKey = "file-key"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Assist.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want the environment to win", loaded.Assist.APIKey)
	}
}
