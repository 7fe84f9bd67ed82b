package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filebox/internal/auth"
	"filebox/internal/config"
)

func TestConfigSetWritesConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FILEBOX_CONFIG_DIR", dir)
	cfg := config.Default()

	if err := runCLI(t, &cfg, "", "config", "set", "storage.compression", "lz4"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".filebox.toml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(data), `compression = "lz4"`) {
		t.Fatalf("expected compression in config, got:\n%s", data)
	}

	if err := runCLI(t, &cfg, "", "config", "set", "storage.compression", "brotli"); err == nil {
		t.Fatal("expected invalid compression to be rejected")
	}
	if err := runCLI(t, &cfg, "", "config", "set", "storage.nope", "1"); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestConfigSetTokenSecretRequiresGlobal(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FILEBOX_CONFIG_DIR", dir)
	cfg := config.Default()
	secret := strings.Repeat("s", auth.MinSecretLength)

	err := runCLI(t, &cfg, "", "config", "set", tokenSecretKey, secret)
	if err == nil || !strings.Contains(err.Error(), "--global") {
		t.Fatalf("expected --global hint, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".filebox.toml")); !os.IsNotExist(err) {
		t.Fatalf("expected no config written, got %v", err)
	}

	if err := runCLI(t, &cfg, "", "config", "set", "--global", tokenSecretKey, secret); err != nil {
		t.Fatalf("config set --global: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, ".filebox.toml"))
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 config holding a secret, got %o", perm)
	}
}

func TestConfigGet(t *testing.T) {
	t.Setenv("FILEBOX_CONFIG_DIR", t.TempDir())
	cfg := config.Default()
	cfg.Auth.TokenSecret = strings.Repeat("s", auth.MinSecretLength)

	if err := runCLI(t, &cfg, "", "config", "get", "storage.backend"); err != nil {
		t.Fatalf("config get: %v", err)
	}
	if err := runCLI(t, &cfg, "", "config", "get"); err != nil {
		t.Fatalf("config get all: %v", err)
	}
	if err := runCLI(t, &cfg, "", "config", "get", "bogus"); err == nil {
		t.Fatal("expected unknown key error")
	}

	values, err := configValues(&cfg, config.AllowedKeys())
	if err != nil {
		t.Fatalf("config values: %v", err)
	}
	if len(values) != len(config.AllowedKeys()) {
		t.Fatalf("expected every key, got %d", len(values))
	}
	if values[tokenSecretKey] == cfg.Auth.TokenSecret {
		t.Fatal("token secret must be redacted")
	}
}

func TestArgValidatorsShowUsage(t *testing.T) {
	cfg := config.Default()

	err := runCLI(t, &cfg, "", "get")
	if err == nil || !strings.Contains(err.Error(), "file id is required") || !strings.Contains(err.Error(), "usage: filebox get <file-id>") {
		t.Fatalf("expected usage error, got %v", err)
	}

	err = runCLI(t, &cfg, "", "get", "  ")
	if err == nil || !strings.Contains(err.Error(), "argument 1 is empty") {
		t.Fatalf("expected blank argument error, got %v", err)
	}
}
