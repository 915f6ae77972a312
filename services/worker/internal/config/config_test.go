package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("QUEUE_CONCURRENCY", "7")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "5")
	t.Setenv("REDIS_ADDR", "redis-override:6379")

	cfgPath := writeConfig(t, `
port: "8081"
logLevel: "info"
databaseDSN: "data/documents.db"
redisAddr: "localhost:6379"
queueConcurrency: 5
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.QueueConcurrency != 7 {
		t.Fatalf("queueConcurrency = %d, want 7", cfg.QueueConcurrency)
	}
	if cfg.QueueMaxAttempts != 5 {
		t.Fatalf("queueMaxAttempts = %d, want 5", cfg.QueueMaxAttempts)
	}
	if cfg.RedisAddr != "redis-override:6379" {
		t.Fatalf("redisAddr = %q", cfg.RedisAddr)
	}
	if cfg.StorageDriver != "disk" || cfg.UploadDir != "./uploads" {
		t.Fatalf("expected disk defaults, got %q %q", cfg.StorageDriver, cfg.UploadDir)
	}
	if cfg.QueueName != "document-processing" {
		t.Fatalf("queueName = %q", cfg.QueueName)
	}
	if cfg.QueueGroup != "workers" {
		t.Fatalf("queueGroup = %q, want workers", cfg.QueueGroup)
	}
}

func TestLoadRejectsUnknownQueueDriver(t *testing.T) {
	cfgPath := writeConfig(t, `
port: "8081"
databaseDSN: "data/documents.db"
queueDriver: "kafka"
`)
	if _, err := Load(cfgPath); err == nil {
		t.Fatal("expected unknown queueDriver to be rejected")
	}
}

func TestLoadRequiresRedisAddr(t *testing.T) {
	cfgPath := writeConfig(t, `
port: "8081"
databaseDSN: "data/documents.db"
`)
	if _, err := Load(cfgPath); err == nil {
		t.Fatal("expected missing redisAddr to be rejected")
	}
}
