package handlers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"marzban-tg-admin/internal/commands"
	"marzban-tg-admin/internal/config"
	"marzban-tg-admin/internal/models"
	"marzban-tg-admin/internal/permissions"
)

// GuestHandler handles accounts without a linked subscription
type GuestHandler struct {
	BaseHandler
}

// NewGuestHandler creates a new guest handler
func NewGuestHandler(svc Services, config *config.Config, logger *logrus.Logger) *GuestHandler {
	return &GuestHandler{
		BaseHandler: NewBaseHandler(svc, config, logger),
	}
}

// CanHandle checks if the handler can handle the given access type
func (h *GuestHandler) CanHandle(accessType permissions.AccessType) bool {
	return accessType == permissions.None
}

// Handle handles a message or a button press from Telegram
func (h *GuestHandler) Handle(ctx context.Context, c telebot.Context) error {
	if c.Callback() != nil {
		h.respond(c, "")
		switch callbackData(c) {
		case commands.UserRequest:
			return h.startRequest(c, commands.UserMain)
		case commands.UserSupport:
			return h.showSupport(c, commands.UserMain)
		case commands.UserGuide:
			return h.showGuide(c, commands.UserMain)
		default:
			return h.showWelcome(c)
		}
	}

	switch c.Text() {
	case commands.Start, commands.Cancel, commands.Help:
		return h.showWelcome(c)
	}

	userState, err := h.services.State.GetState(c.Sender().ID)
	if err != nil {
		h.logger.Errorf("Failed to get user state: %v", err)
		return err
	}
	if userState.State == models.AwaitRequestText {
		return h.processRequestText(ctx, c, commands.UserMain)
	}
	return h.showWelcome(c)
}

// showWelcome shows the sender's Telegram ID and what a guest can do
func (h *GuestHandler) showWelcome(c telebot.Context) error {
	if err := h.services.State.ClearState(c.Sender().ID); err != nil {
		h.logger.Errorf("Failed to clear user state: %v", err)
		return err
	}

	text := fmt.Sprintf(
		"👋 <b>Hello!</b>\n\n"+
			"No subscription is linked to your account yet.\n"+
			"Your Telegram ID: <code>%d</code>\n\n"+
			"Send this ID to an admin to get access.",
		c.Sender().ID,
	)
	markup := inlineKeyboard(
		telebot.Row{btn(commands.BtnContactAdmin, commands.UserRequest)},
		telebot.Row{btn(commands.BtnSupport, commands.UserSupport), btn(commands.BtnGuide, commands.UserGuide)},
	)
	return h.reply(c, text, markup)
}
