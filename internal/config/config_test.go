package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.DataDir != "data" || cfg.Store != "json" || cfg.Addr != ":8080" || cfg.Debug {
		t.Fatalf("defaults=%+v", cfg)
	}
	if len(cfg.AdminIDs) != 0 {
		t.Fatalf("admin ids=%v", cfg.AdminIDs)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ECONOMY_STORE", "bolt")
	t.Setenv("ECONOMY_ADMIN_IDS", "42,43")
	t.Setenv("ECONOMY_DEBUG", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Store != "bolt" || !cfg.Debug {
		t.Fatalf("cfg=%+v", cfg)
	}
	if len(cfg.AdminIDs) != 2 || cfg.AdminIDs[0] != "42" || cfg.AdminIDs[1] != "43" {
		t.Fatalf("admin ids=%v", cfg.AdminIDs)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "economy.env")
	if err := os.WriteFile(path, []byte("ECONOMY_DATA_DIR=/var/lib/economy\nECONOMY_STORE=sqlite\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv.Load sets process variables; register them for cleanup.
	t.Setenv("ECONOMY_DATA_DIR", "")
	os.Unsetenv("ECONOMY_DATA_DIR")
	t.Setenv("ECONOMY_STORE", "")
	os.Unsetenv("ECONOMY_STORE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.DataDir != "/var/lib/economy" || cfg.Store != "sqlite" {
		t.Fatalf("cfg=%+v", cfg)
	}

	if _, err := Load(filepath.Join(dir, "missing.env")); err == nil {
		t.Fatal("want error for missing env file")
	}
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ECONOMY_STORE", "postgres")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "ECONOMY_STORE") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoadNormalizesStore(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ECONOMY_STORE", " SQLite ")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Store != "sqlite" {
		t.Fatalf("store=%q want sqlite", cfg.Store)
	}
}
