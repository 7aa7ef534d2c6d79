package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.Server.BaseURL = "https://social.example.com"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.Server.BaseURL != "https://social.example.com" {
		t.Errorf("BaseURL = %q", loaded.Server.BaseURL)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadAppliesTunableDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	// A config that only sets one tunable must still get defaults for the rest.
	content := "default_profile = \"main\"\n\n[tunables]\npage_size = 25\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tunables.PageSize != 25 {
		t.Errorf("PageSize = %d, want 25", cfg.Tunables.PageSize)
	}
	if cfg.Tunables.CacheTTLDuration() != 60*time.Second {
		t.Errorf("CacheTTL = %v, want 60s", cfg.Tunables.CacheTTLDuration())
	}
	if cfg.Tunables.PresenceHoldDuration() != 2*time.Second {
		t.Errorf("PresenceHold = %v, want 2s", cfg.Tunables.PresenceHoldDuration())
	}
}

func TestDurationParsing(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	content := "[tunables]\ncache_ttl = \"90s\"\npresence_hold = \"1500ms\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tunables.CacheTTLDuration() != 90*time.Second {
		t.Errorf("CacheTTL = %v, want 90s", cfg.Tunables.CacheTTLDuration())
	}
	if cfg.Tunables.PresenceHoldDuration() != 1500*time.Millisecond {
		t.Errorf("PresenceHold = %v, want 1.5s", cfg.Tunables.PresenceHoldDuration())
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
