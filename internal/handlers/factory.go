package handlers

import (
	"context"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"marzban-tg-admin/internal/config"
	"marzban-tg-admin/internal/permissions"
	"marzban-tg-admin/internal/services"
	"marzban-tg-admin/internal/storage"
)

// MessageHandler defines the interface for handling Telegram messages
type MessageHandler interface {
	Handle(ctx context.Context, c telebot.Context) error
	CanHandle(accessType permissions.AccessType) bool
}

// Services groups the dependencies shared by all handlers
type Services struct {
	Store     *storage.Store
	Marzban   *services.MarzbanService
	Broadcast *services.BroadcastService
	State     *services.UserStateService
	QR        *services.QRService
	Notifier  services.Sender
}

// HandlerFactory creates message handlers
type HandlerFactory struct {
	services Services
	config   *config.Config
	logger   *logrus.Logger
}

// NewHandlerFactory creates a new handler factory
func NewHandlerFactory(svc Services, config *config.Config, logger *logrus.Logger) *HandlerFactory {
	return &HandlerFactory{
		services: svc,
		config:   config,
		logger:   logger,
	}
}

// CreateHandler creates a message handler for the given access type
func (f *HandlerFactory) CreateHandler(accessType permissions.AccessType) MessageHandler {
	switch accessType {
	case permissions.Admin, permissions.Moderator:
		return NewAdminHandler(accessType, f.services, f.config, f.logger)
	case permissions.User:
		return NewUserHandler(f.services, f.config, f.logger)
	case permissions.None:
		return NewGuestHandler(f.services, f.config, f.logger)
	default:
		f.logger.Warnf("Unknown access type: %s", accessType)
		return NewGuestHandler(f.services, f.config, f.logger)
	}
}
