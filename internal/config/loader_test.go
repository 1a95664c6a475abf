package config

import (
	"errors"
	"strings"
	"testing"

	apperrors "marzban-tg-admin/internal/errors"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_IDS", "42, 43")
	t.Setenv("ADMIN_ID", "")
	t.Setenv("MARZBAN_URL", "https://panel.example.com/")
	t.Setenv("MARZBAN_USERNAME", "admin")
	t.Setenv("MARZBAN_PASSWORD", "secret")
	t.Setenv("DB_PATH", "")
	t.Setenv("BROADCAST_RATE", "")
	t.Setenv("SUPPORT_USERNAME", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
}

func TestLoad_Succeeds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SUPPORT_USERNAME", "@helpdesk")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("unexpected token: %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AdminIDs) != 2 || cfg.Telegram.AdminIDs[0] != 42 || cfg.Telegram.AdminIDs[1] != 43 {
		t.Fatalf("unexpected admin ids: %v", cfg.Telegram.AdminIDs)
	}
	if cfg.Marzban.URL != "https://panel.example.com" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.Marzban.URL)
	}
	if cfg.Telegram.SupportUsername != "helpdesk" {
		t.Fatalf("unexpected support username: %q", cfg.Telegram.SupportUsername)
	}
	if cfg.Database.Path == "" || cfg.Broadcast.Rate <= 0 || cfg.LogLevel == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoad_AdminIDFallback(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADMIN_IDS", "")
	t.Setenv("ADMIN_ID", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Telegram.AdminIDs) != 1 || cfg.Telegram.AdminIDs[0] != 7 {
		t.Fatalf("unexpected admin ids: %v", cfg.Telegram.AdminIDs)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MARZBAN_PASSWORD", "")
	t.Setenv("BOT_TOKEN", "")

	_, err := Load()
	var cfgErr *apperrors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !strings.Contains(cfgErr.Message, "BOT_TOKEN") || !strings.Contains(cfgErr.Message, "MARZBAN_PASSWORD") {
		t.Fatalf("missing variables not reported: %s", cfgErr.Message)
	}
}

func TestLoad_RejectsBadURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MARZBAN_URL", "panel.example.com")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for URL without scheme")
	}
}

func TestParseAdminIDs(t *testing.T) {
	ids, err := ParseAdminIDs(" 1,2 ,,3")
	if err != nil {
		t.Fatalf("ParseAdminIDs: %v", err)
	}
	if len(ids) != 3 || ids[2] != 3 {
		t.Fatalf("unexpected ids: %v", ids)
	}

	for _, raw := range []string{"1,abc", "12abc, 34", "1.5", "-3", "0"} {
		if ids, err := ParseAdminIDs(raw); err == nil {
			t.Fatalf("expected error for %q, got %v", raw, ids)
		}
	}
	if ids, err := ParseAdminIDs(""); err != nil || ids != nil {
		t.Fatalf("expected empty result, got %v %v", ids, err)
	}
}
