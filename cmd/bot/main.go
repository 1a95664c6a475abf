package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marzban-tg-admin/internal/config"
	"marzban-tg-admin/internal/constants"
	"marzban-tg-admin/internal/handlers"
	"marzban-tg-admin/internal/permissions"
	"marzban-tg-admin/internal/server"
	"marzban-tg-admin/internal/services"
	"marzban-tg-admin/internal/storage"
	"marzban-tg-admin/pkg/marzban"
	"marzban-tg-admin/pkg/telegrambot"
)

func main() {
	logger := setupLogger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: ", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("Invalid log level %q, using %s", cfg.LogLevel, logger.GetLevel())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Local store
	store := storage.New(cfg.Database.Path, logger)
	if err := store.Connect(ctx); err != nil {
		logger.Fatal("Failed to open database: ", err)
	}
	defer store.Close()

	// Panel client
	panel, err := marzban.NewClient(ctx, cfg.Marzban, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Marzban: ", err)
	}

	// Initialize services
	svc := handlers.Services{
		Store:     store,
		Marzban:   services.NewMarzbanService(panel, store, logger),
		Broadcast: services.NewBroadcastService(store, nil, cfg.Broadcast.Rate, logger),
		State:     services.NewUserStateService(logger),
		QR:        services.NewQRService(logger),
	}

	permController := permissions.NewController(cfg.Telegram.AdminIDs, store, logger)

	bot, err := telegrambot.NewBot(cfg, svc, permController, logger)
	if err != nil {
		logger.Fatal("Failed to create bot: ", err)
	}

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	go refreshToken(ctx, panel, logger)

	if cfg.HTTPAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		srv := server.New(cfg.HTTPAddr, store, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Errorf("HTTP server failed: %v", err)
			}
		}()
	}

	logger.Info("Starting Marzban Telegram bot")
	if err := bot.Start(ctx); err != nil {
		logger.Error("Bot failed: ", err)
	}
	logger.Info("Bot stopped")
}

// refreshToken re-authenticates against the panel before the access token expires
func refreshToken(ctx context.Context, panel *marzban.Client, logger *logrus.Logger) {
	ticker := time.NewTicker(constants.TokenRefreshInterval * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := panel.Refresh(ctx); err != nil {
				logger.Errorf("Failed to refresh Marzban token: %v", err)
			}
		}
	}
}

// setupLogger sets up the logger
func setupLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger
}
