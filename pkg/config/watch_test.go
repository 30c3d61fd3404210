package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestWatcher_HandleReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w, err := Watch(path, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	w.v.Set("logging.level", "debug")
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})

	select {
	case cfg := <-reloaded:
		if cfg.Logging.Level != "DEBUG" {
			t.Errorf("Expected reloaded level 'DEBUG', got %q", cfg.Logging.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a reload")
	}
}

func TestWatcher_IgnoresInvalidChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	called := false
	w, err := Watch(path, func(*Config) { called = true })
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	w.v.Set("logging.level", "LOUD")
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Chmod})

	if called {
		t.Error("Expected invalid change to be ignored")
	}
}
