package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Dispatch.PageSize != 50 {
		t.Errorf("Dispatch.PageSize = %d, want 50", cfg.Dispatch.PageSize)
	}
	if cfg.Dispatch.SendDelay != 500*time.Millisecond {
		t.Errorf("Dispatch.SendDelay = %s, want 500ms", cfg.Dispatch.SendDelay)
	}
	if cfg.Kafka.Topic != "campaign.dispatch" {
		t.Errorf("Kafka.Topic = %q", cfg.Kafka.Topic)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("Scheduler.Interval = %s", cfg.Scheduler.Interval)
	}
	if cfg.SMTP.From == "" {
		t.Error("SMTP.From default missing")
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("http:\n  addr: \":9999\"\ndispatch:\n  page_size: 10\n")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTP.Addr != ":9999" {
		t.Errorf("HTTP.Addr = %q, want override :9999", cfg.HTTP.Addr)
	}
	if cfg.Dispatch.PageSize != 10 {
		t.Errorf("Dispatch.PageSize = %d, want override 10", cfg.Dispatch.PageSize)
	}
	// untouched keys keep their defaults
	if cfg.Kafka.Topic != "campaign.dispatch" {
		t.Errorf("Kafka.Topic = %q, want default", cfg.Kafka.Topic)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want defaults", cfg.HTTP.Addr)
	}
}
