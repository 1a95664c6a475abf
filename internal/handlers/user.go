package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"marzban-tg-admin/internal/commands"
	"marzban-tg-admin/internal/config"
	apperrors "marzban-tg-admin/internal/errors"
	"marzban-tg-admin/internal/helpers"
	"marzban-tg-admin/internal/models"
	"marzban-tg-admin/internal/permissions"
	"marzban-tg-admin/internal/services"
	"marzban-tg-admin/internal/validation"
)

// UserHandler handles users with a linked subscription
type UserHandler struct {
	BaseHandler
	commandHandlers  map[string]func(context.Context, telebot.Context) error
	callbackHandlers map[string]func(context.Context, telebot.Context) error
}

// NewUserHandler creates a new user handler
func NewUserHandler(svc Services, config *config.Config, logger *logrus.Logger) *UserHandler {
	handler := &UserHandler{
		BaseHandler: NewBaseHandler(svc, config, logger),
	}

	handler.initializeCommands()
	return handler
}

// CanHandle checks if the handler can handle the given access type
func (h *UserHandler) CanHandle(accessType permissions.AccessType) bool {
	return accessType == permissions.User
}

// Handle handles a message or a button press from Telegram
func (h *UserHandler) Handle(ctx context.Context, c telebot.Context) error {
	if c.Callback() != nil {
		h.respond(c, "")
		if handler, ok := h.callbackHandlers[callbackData(c)]; ok {
			return handler(ctx, c)
		}
		return h.showMainMenu(ctx, c)
	}

	if handler, ok := h.commandHandlers[c.Text()]; ok {
		return handler(ctx, c)
	}

	userState, err := h.services.State.GetState(c.Sender().ID)
	if err != nil {
		h.logger.Errorf("Failed to get user state: %v", err)
		return err
	}

	switch userState.State {
	case models.AwaitTransferID:
		return h.processTransferID(ctx, c)
	case models.AwaitRequestText:
		return h.processRequestText(ctx, c, commands.UserMain)
	default:
		return h.showMainMenu(ctx, c)
	}
}

// initializeCommands initializes the command and callback handlers
func (h *UserHandler) initializeCommands() {
	h.commandHandlers = map[string]func(context.Context, telebot.Context) error{
		commands.Start:  h.showMainMenu,
		commands.Cancel: h.showMainMenu,
		commands.Help:   func(_ context.Context, c telebot.Context) error { return h.showGuide(c, commands.UserMain) },
	}

	h.callbackHandlers = map[string]func(context.Context, telebot.Context) error{
		commands.UserMain:         h.showMainMenu,
		commands.UserSubscription: h.showSubscription,
		commands.UserQR:           h.sendSubscriptionQR,
		commands.UserTransfer:     h.startTransfer,
		commands.UserRequest:      func(_ context.Context, c telebot.Context) error { return h.startRequest(c, commands.UserMain) },
		commands.UserSupport:      func(_ context.Context, c telebot.Context) error { return h.showSupport(c, commands.UserMain) },
		commands.UserGuide:        func(_ context.Context, c telebot.Context) error { return h.showGuide(c, commands.UserMain) },
	}
}

// showMainMenu clears the conversation and shows the user menu
func (h *UserHandler) showMainMenu(ctx context.Context, c telebot.Context) error {
	if err := h.services.State.ClearState(c.Sender().ID); err != nil {
		h.logger.Errorf("Failed to clear user state: %v", err)
		return err
	}

	markup := inlineKeyboard(
		telebot.Row{btn(commands.BtnSubscription, commands.UserSubscription)},
		telebot.Row{btn(commands.BtnQRCode, commands.UserQR), btn(commands.BtnTransfer, commands.UserTransfer)},
		telebot.Row{btn(commands.BtnContactAdmin, commands.UserRequest)},
		telebot.Row{btn(commands.BtnSupport, commands.UserSupport), btn(commands.BtnGuide, commands.UserGuide)},
	)
	return h.reply(c, "👋 <b>Welcome!</b>\n\nChoose an action:", markup)
}

// subscription loads the sender's subscription, or shows why it is unavailable
func (h *UserHandler) subscription(ctx context.Context, c telebot.Context) (*models.PanelUser, error) {
	user, err := h.services.Marzban.GetSubscription(ctx, c.Sender().ID)
	if err == nil {
		return user, nil
	}

	var connErr *apperrors.ConnectivityError
	switch {
	case errors.Is(err, services.ErrNoSubscription):
		return nil, h.reply(c, "ℹ️ No subscription is linked to your account.", h.backKeyboard(commands.UserMain))
	case errors.Is(err, services.ErrPanelUserMissing):
		return nil, h.reply(c, "⚠️ Your subscription was not found on the server. Please contact support.", h.backKeyboard(commands.UserMain))
	case errors.As(err, &connErr):
		h.logger.Errorf("Failed to get subscription of %d: %v", c.Sender().ID, err)
		return nil, h.reply(c, "⚠️ The service is temporarily unavailable. Try again later.", h.backKeyboard(commands.UserMain))
	default:
		return nil, h.fail(c, "Failed to get subscription", err, commands.UserMain)
	}
}

// showSubscription shows the sender's subscription
func (h *UserHandler) showSubscription(ctx context.Context, c telebot.Context) error {
	user, err := h.subscription(ctx, c)
	if user == nil {
		return err
	}

	markup := inlineKeyboard(
		telebot.Row{btn(commands.BtnQRCode, commands.UserQR)},
		telebot.Row{btn(commands.BtnBack, commands.UserMain)},
	)
	return h.reply(c, helpers.FormatSubscription(user), markup)
}

// sendSubscriptionQR sends the subscription link as a QR code
func (h *UserHandler) sendSubscriptionQR(ctx context.Context, c telebot.Context) error {
	user, err := h.subscription(ctx, c)
	if user == nil {
		return err
	}
	if user.SubscriptionURL == "" {
		return h.reply(c, "⚠️ Your subscription has no link yet. Please contact support.", h.backKeyboard(commands.UserMain))
	}

	if err := h.sendQRCode(c, user.SubscriptionURL, "Scan this code in your VPN client"); err != nil {
		return h.fail(c, "Failed to send QR code", err, commands.UserMain)
	}
	return nil
}

// startTransfer asks for the Telegram ID of the new owner
func (h *UserHandler) startTransfer(ctx context.Context, c telebot.Context) error {
	username, err := h.services.Store.GetMarzbanUsername(ctx, c.Sender().ID)
	if err != nil {
		return h.fail(c, "Failed to get subscription", err, commands.UserMain)
	}
	if username == nil {
		return h.reply(c, "ℹ️ No subscription is linked to your account.", h.backKeyboard(commands.UserMain))
	}

	if err := h.services.State.SetState(c.Sender().ID, models.UserState{State: models.AwaitTransferID}); err != nil {
		return err
	}

	text := "🔄 Send the Telegram ID of the new owner.\n\n" +
		"The new owner can see their ID by sending /start to this bot. " +
		"After the transfer you lose access to the subscription."
	return h.reply(c, text, h.cancelKeyboard(commands.UserMain))
}

// processTransferID moves the subscription to the sent Telegram ID.
// Invalid input keeps the conversation so the user can retry.
func (h *UserHandler) processTransferID(ctx context.Context, c telebot.Context) error {
	userID := c.Sender().ID

	newOwner, err := validation.ParseTelegramID(c.Text())
	if err != nil {
		return h.sendTextMessage(c, "⚠️ A Telegram ID is a positive number. Try again:", h.cancelKeyboard(commands.UserMain))
	}

	username, err := h.services.Marzban.TransferSubscription(ctx, userID, newOwner)
	if err != nil {
		var vErr *apperrors.ValidationError
		if errors.As(err, &vErr) {
			text := fmt.Sprintf("⚠️ The ID %s. Try again:", html.EscapeString(vErr.Message))
			return h.sendTextMessage(c, text, h.cancelKeyboard(commands.UserMain))
		}

		if clearErr := h.services.State.ClearState(userID); clearErr != nil {
			h.logger.Errorf("Failed to clear user state: %v", clearErr)
		}
		if errors.Is(err, services.ErrNoSubscription) {
			return h.sendTextMessage(c, "ℹ️ No subscription is linked to your account.", h.backKeyboard(commands.UserMain))
		}
		return h.fail(c, "Failed to transfer subscription", err, commands.UserMain)
	}

	if err := h.services.State.ClearState(userID); err != nil {
		h.logger.Errorf("Failed to clear user state: %v", err)
	}

	h.notify(ctx, newOwner, fmt.Sprintf("The subscription %s was transferred to you. Press /start to open it.", username))

	text := fmt.Sprintf("✅ Subscription transferred to <code>%d</code>.", newOwner)
	return h.sendTextMessage(c, text, nil)
}
