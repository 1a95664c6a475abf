package telegrambot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"

	"marzban-tg-admin/internal/config"
	"marzban-tg-admin/internal/handlers"
	"marzban-tg-admin/internal/permissions"
)

// Bot represents a Telegram bot
type Bot struct {
	// ctx is cancelled on shutdown and scopes every update handler
	ctx      context.Context
	bot      *telebot.Bot
	config   *config.Config
	services handlers.Services
	handlers map[permissions.AccessType]handlers.MessageHandler
	permCtrl *permissions.PermissionController
	logger   *logrus.Logger
}

// Notifier sends plain text messages to arbitrary chats through the bot
type Notifier struct {
	bot    *telebot.Bot
	logger *logrus.Logger
}

// SendText sends text to chatID
func (n *Notifier) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := n.bot.Send(telebot.ChatID(chatID), text, &telebot.SendOptions{DisableWebPagePreview: true})
	if errors.Is(err, telebot.ErrBlockedByUser) {
		n.logger.Debugf("Chat %d blocked the bot", chatID)
	}
	return err
}

// NewBot creates a new Telegram bot
func NewBot(
	cfg *config.Config,
	svc handlers.Services,
	permCtrl *permissions.PermissionController,
	logger *logrus.Logger,
) (*Bot, error) {
	settings := telebot.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			logger.Errorf("Telegram bot error: %v", err)
			if c != nil && c.Sender() != nil {
				if sendErr := c.Send("An error occurred. Please try again later."); sendErr != nil {
					logger.Debugf("Failed to report error: %v", sendErr)
				}
			}
		},
	}

	return newBot(settings, cfg, svc, permCtrl, logger)
}

func newBot(
	settings telebot.Settings,
	cfg *config.Config,
	svc handlers.Services,
	permCtrl *permissions.PermissionController,
	logger *logrus.Logger,
) (*Bot, error) {
	b, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	// Handlers and the broadcast reach other chats through the bot itself
	notifier := &Notifier{bot: b, logger: logger}
	if svc.Notifier == nil {
		svc.Notifier = notifier
	}
	if svc.Broadcast != nil {
		svc.Broadcast.SetSender(notifier)
	}

	factory := handlers.NewHandlerFactory(svc, cfg, logger)

	bot := &Bot{
		ctx:      context.Background(),
		bot:      b,
		config:   cfg,
		services: svc,
		handlers: make(map[permissions.AccessType]handlers.MessageHandler),
		permCtrl: permCtrl,
		logger:   logger,
	}

	// Initialize handlers for different access types
	for _, access := range []permissions.AccessType{permissions.Admin, permissions.Moderator, permissions.User, permissions.None} {
		bot.handlers[access] = factory.CreateHandler(access)
	}

	bot.setupMiddleware()

	return bot, nil
}

// Start starts the bot and blocks until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting Telegram bot")
	b.ctx = ctx

	go func() {
		<-ctx.Done()
		b.Stop()
	}()

	b.bot.Start()
	return nil
}

// Stop stops polling for updates
func (b *Bot) Stop() {
	b.logger.Info("Stopping Telegram bot")
	b.bot.Stop()
}

// setupMiddleware sets up the bot middleware
func (b *Bot) setupMiddleware() {
	b.bot.Use(middleware.Recover())
	b.bot.Use(func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			if c.Sender() == nil {
				return nil
			}
			if cb := c.Callback(); cb != nil {
				b.logger.Debugf("Received callback from %d: %s", c.Sender().ID, cb.Data)
			} else {
				b.logger.Debugf("Received message from %d: %s", c.Sender().ID, c.Text())
			}
			return next(c)
		}
	})

	b.bot.Handle(telebot.OnText, b.handleUpdate)
	b.bot.Handle(telebot.OnCallback, b.handleUpdate)
	b.bot.Handle("/start", b.handleUpdate)
	b.bot.Handle("/cancel", b.handleUpdate)
	b.bot.Handle("/help", b.handleUpdate)
}

// handleUpdate routes an update to the handler of the sender's access type
func (b *Bot) handleUpdate(c telebot.Context) error {
	ctx := b.ctx
	userID := c.Sender().ID

	accessType := b.permCtrl.GetAccessType(ctx, userID)
	if accessType == permissions.Banned {
		return b.handleBanned(ctx, c)
	}

	handler, ok := b.handlers[accessType]
	if !ok {
		b.logger.Warnf("No handler for access type %s", accessType)
		return c.Send("You don't have permission to use this bot.")
	}

	return handler.Handle(ctx, c)
}

// handleBanned tells a banned user why the bot does not answer
func (b *Bot) handleBanned(ctx context.Context, c telebot.Context) error {
	if c.Callback() != nil {
		if err := c.Respond(); err != nil {
			b.logger.Debugf("Failed to answer callback: %v", err)
		}
	}

	text := "🚫 You are banned."
	user, err := b.services.Store.GetUser(ctx, c.Sender().ID)
	if err != nil {
		b.logger.Errorf("Failed to get banned user %d: %v", c.Sender().ID, err)
	} else if user != nil && user.BanReason != nil {
		text = fmt.Sprintf("🚫 You are banned. Reason: %s", html.EscapeString(*user.BanReason))
	}

	return c.Send(text, telebot.ModeHTML)
}
