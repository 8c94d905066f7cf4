package config

import (
	"strings"
	"testing"
	"time"
)

func setFileBackend(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "file")
	t.Setenv("STORE_DIR", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	setFileBackend(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}
	if cfg.GetHistoryLimit() != 40 || cfg.GetTurnCeiling() != 8 || cfg.GetMinTurnsFloor() != 1 {
		t.Fatalf("unexpected conversation defaults %+v", cfg)
	}
	if cfg.GetMediaFreshnessWindow() != 90*time.Second || cfg.GetModelTimeout() != 20*time.Second {
		t.Fatalf("unexpected timing defaults %v / %v", cfg.GetMediaFreshnessWindow(), cfg.GetModelTimeout())
	}
	if cfg.GetFollowUpMinIdle() != 3*time.Hour || cfg.GetFollowUpMaxLate() != 22*time.Hour || cfg.GetFollowUpReplyWindow() != 24*time.Hour {
		t.Fatal("unexpected follow-up defaults")
	}
	if !cfg.GetVerifySignatures() {
		t.Fatal("expected signature verification on by default")
	}
	if cfg.IsMinIOEnabled() || cfg.IsSMTPEnabled() {
		t.Fatal("expected optional integrations off by default")
	}
}

func TestLoadReadsChannelSettings(t *testing.T) {
	setFileBackend(t)
	t.Setenv("TELEGRAM_ENABLED", "true")
	t.Setenv("TELEGRAM_ACCESS_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_APP_SECRET", "secret-token")
	t.Setenv("TELEGRAM_OWNER_RECIPIENT", "42")
	t.Setenv("OWNER_CHANNEL", "Telegram")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
	tg := cfg.GetTelegram()
	if !tg.Enabled || tg.AccessToken != "123:abc" || tg.OwnerRecipient != "42" {
		t.Fatalf("unexpected telegram settings %+v", tg)
	}
	if cfg.GetOwnerChannel() != "telegram" {
		t.Fatalf("expected lowercased owner channel, got %q", cfg.GetOwnerChannel())
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "postgres without url",
			env:  map[string]string{"STORE_BACKEND": "postgres", "DATABASE_URL": ""},
			want: "DATABASE_URL",
		},
		{
			name: "unknown backend",
			env:  map[string]string{"STORE_BACKEND": "sqlite"},
			want: "unsupported STORE_BACKEND",
		},
		{
			name: "short admin secret",
			env:  map[string]string{"ADMIN_JWT_SECRET": "short"},
			want: "ADMIN_JWT_SECRET",
		},
		{
			name: "enabled channel without token",
			env:  map[string]string{"MESSENGER_ENABLED": "true"},
			want: "MESSENGER_ACCESS_TOKEN",
		},
		{
			name: "enabled channel without secret",
			env:  map[string]string{"INSTAGRAM_ENABLED": "true", "INSTAGRAM_ACCESS_TOKEN": "t"},
			want: "INSTAGRAM_APP_SECRET",
		},
		{
			name: "follow-up window inverted",
			env:  map[string]string{"FOLLOWUP_MIN_IDLE": "23h", "FOLLOWUP_MAX_LATE": "22h"},
			want: "FOLLOWUP_MIN_IDLE",
		},
		{
			name: "history too short",
			env:  map[string]string{"HISTORY_LIMIT": "1"},
			want: "HISTORY_LIMIT",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setFileBackend(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSignatureBypassAllowsMissingSecret(t *testing.T) {
	setFileBackend(t)
	t.Setenv("WEBHOOK_VERIFY_SIGNATURES", "false")
	t.Setenv("MESSENGER_ENABLED", "true")
	t.Setenv("MESSENGER_ACCESS_TOKEN", "t")

	if _, err := Load(); err != nil {
		t.Fatalf("expected bypass to allow a missing secret, got %v", err)
	}
}
