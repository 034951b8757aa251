package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.DeadlineWindowDays != 7 || cfg.DeadlineLookbackHours != 24 || cfg.DeadlineIncludeLeader {
		t.Fatalf("unexpected deadline defaults: %+v", cfg)
	}
	if cfg.DeadlineScanInterval != time.Minute || cfg.DeadlineBootstrap != 5*time.Second {
		t.Fatalf("unexpected scanner timing: %v / %v", cfg.DeadlineScanInterval, cfg.DeadlineBootstrap)
	}
	if cfg.DefaultMemberPassword != "12345" {
		t.Fatalf("unexpected default member password %q", cfg.DefaultMemberPassword)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("TEAMDESK_STORE", "memory")
	t.Setenv("DEADLINE_SCAN_INTERVAL", "10m")
	t.Setenv("DEADLINE_WINDOW_DAYS", "3")
	t.Setenv("DEADLINE_INCLUDE_LEADER", "true")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "team@example.com")

	cfg := Load()
	if cfg.Addr != ":9999" || cfg.StoreBackend != "memory" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.DeadlineScanInterval != 10*time.Minute || cfg.DeadlineWindowDays != 3 || !cfg.DeadlineIncludeLeader {
		t.Fatalf("scanner overrides not applied: %+v", cfg)
	}
	if !cfg.MinioUseSSL {
		t.Fatalf("expected MINIO_USE_SSL to be true")
	}
	if cfg.SMTPHost != "smtp.example.com" || cfg.SMTPPort != "587" || cfg.SMTPFrom != "team@example.com" {
		t.Fatalf("smtp settings not applied: %+v", cfg)
	}
}

func TestLoadRejectsNonPositiveWindow(t *testing.T) {
	t.Setenv("DEADLINE_WINDOW_DAYS", "0")
	t.Setenv("DEADLINE_SCAN_INTERVAL", "-1s")

	cfg := Load()
	if cfg.DeadlineWindowDays != 7 || cfg.DeadlineScanInterval != time.Minute {
		t.Fatalf("expected fallbacks, got %d days / %v", cfg.DeadlineWindowDays, cfg.DeadlineScanInterval)
	}
}
