package config

// Config represents the application configuration
type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Marzban   MarzbanConfig   `mapstructure:"marzban"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	HTTPAddr  string          `mapstructure:"http_addr"`
	LogLevel  string          `mapstructure:"log_level"`
}

// TelegramConfig holds the Telegram bot configuration
type TelegramConfig struct {
	Token           string  `mapstructure:"token"`
	AdminIDs        []int64 `mapstructure:"admin_ids"`
	SupportUsername string  `mapstructure:"support_username"`
}

// MarzbanConfig holds the connection settings of the Marzban panel
type MarzbanConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// DatabaseConfig holds the local store settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// BroadcastConfig holds broadcast pacing
type BroadcastConfig struct {
	Rate float64 `mapstructure:"rate"`
}
