package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"marzban-tg-admin/internal/constants"
	apperrors "marzban-tg-admin/internal/errors"
)

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	// Set default values
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_PATH", constants.DefaultDBPath)
	v.SetDefault("BROADCAST_RATE", constants.DefaultBroadcastRate)

	for _, key := range []string{
		"BOT_TOKEN",
		"ADMIN_IDS",
		"ADMIN_ID",
		"MARZBAN_URL",
		"MARZBAN_USERNAME",
		"MARZBAN_PASSWORD",
		"SUPPORT_USERNAME",
		"HTTP_ADDR",
	} {
		_ = v.BindEnv(key)
	}

	cfg := &Config{
		LogLevel: strings.TrimSpace(v.GetString("LOG_LEVEL")),
		HTTPAddr: strings.TrimSpace(v.GetString("HTTP_ADDR")),
		Telegram: TelegramConfig{
			Token:           strings.TrimSpace(v.GetString("BOT_TOKEN")),
			SupportUsername: strings.TrimPrefix(strings.TrimSpace(v.GetString("SUPPORT_USERNAME")), "@"),
		},
		Marzban: MarzbanConfig{
			URL:      strings.TrimRight(strings.TrimSpace(v.GetString("MARZBAN_URL")), "/"),
			Username: strings.TrimSpace(v.GetString("MARZBAN_USERNAME")),
			Password: strings.TrimSpace(v.GetString("MARZBAN_PASSWORD")),
		},
		Database: DatabaseConfig{
			Path: strings.TrimSpace(v.GetString("DB_PATH")),
		},
		Broadcast: BroadcastConfig{
			Rate: v.GetFloat64("BROADCAST_RATE"),
		},
	}

	// ADMIN_ID is the single-admin form of ADMIN_IDS
	adminIDsStr := v.GetString("ADMIN_IDS")
	if adminIDsStr == "" {
		adminIDsStr = v.GetString("ADMIN_ID")
	}
	adminIDs, err := ParseAdminIDs(adminIDsStr)
	if err != nil {
		return nil, err
	}
	cfg.Telegram.AdminIDs = adminIDs

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseAdminIDs parses a comma separated list of Telegram IDs
func ParseAdminIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, &apperrors.ConfigError{Section: "telegram", Message: fmt.Sprintf("invalid admin id %q", part)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	var missing []string

	if cfg.Telegram.Token == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if len(cfg.Telegram.AdminIDs) == 0 {
		missing = append(missing, "ADMIN_IDS")
	}
	if cfg.Marzban.URL == "" {
		missing = append(missing, "MARZBAN_URL")
	}
	if cfg.Marzban.Username == "" {
		missing = append(missing, "MARZBAN_USERNAME")
	}
	if cfg.Marzban.Password == "" {
		missing = append(missing, "MARZBAN_PASSWORD")
	}
	if len(missing) > 0 {
		return &apperrors.ConfigError{
			Section: "environment",
			Message: "missing required variables: " + strings.Join(missing, ", "),
		}
	}

	if !strings.HasPrefix(cfg.Marzban.URL, "http://") && !strings.HasPrefix(cfg.Marzban.URL, "https://") {
		return &apperrors.ConfigError{Section: "marzban", Message: "MARZBAN_URL must start with http:// or https://"}
	}

	if cfg.Broadcast.Rate <= 0 {
		cfg.Broadcast.Rate = constants.DefaultBroadcastRate
	}

	return nil
}
