package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.AccuracyThresholdM != 50 {
		t.Fatalf("expected default accuracy threshold, got %v", cfg.AccuracyThresholdM)
	}
	if cfg.FlushEveryPoints != 20 || cfg.FlushInterval != 30*time.Second {
		t.Fatalf("unexpected flush defaults: %d %v", cfg.FlushEveryPoints, cfg.FlushInterval)
	}
	if cfg.StoreRetryAttempts != 4 || cfg.StoreRetryBaseDelay != 200*time.Millisecond {
		t.Fatalf("unexpected retry defaults")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("ACCURACY_THRESHOLD_M", "25.5")
	t.Setenv("FLUSH_EVERY_POINTS", "5")
	t.Setenv("FLUSH_INTERVAL", "10s")
	t.Setenv("EXPORT_S3_BUCKET", "runs")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.AccuracyThresholdM != 25.5 {
		t.Fatalf("expected override accuracy threshold")
	}
	if cfg.FlushEveryPoints != 5 || cfg.FlushInterval != 10*time.Second {
		t.Fatalf("expected override flush cadence")
	}
	if cfg.ExportS3Bucket != "runs" {
		t.Fatalf("expected override bucket")
	}
}
