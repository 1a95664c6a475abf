package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"marzban-tg-admin/internal/commands"
	"marzban-tg-admin/internal/config"
	apperrors "marzban-tg-admin/internal/errors"
	"marzban-tg-admin/internal/models"
	"marzban-tg-admin/internal/permissions"
	"marzban-tg-admin/internal/validation"
)

const (
	genericErrorText = "⚠️ Something went wrong. Please try again later."
	setupGuideText   = "📖 <b>How to use</b>\n\n" +
		"1. Open <b>My subscription</b> and copy the link or scan the QR code.\n" +
		"2. Install a client: v2rayNG (Android), Streisand or V2Box (iOS), Hiddify or NekoRay (Windows, macOS).\n" +
		"3. Import the subscription link in the client and connect.\n" +
		"4. Refresh the subscription in the client after it was revoked.\n\n" +
		"If something does not work, contact support."
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	services Services
	config   *config.Config
	logger   *logrus.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(svc Services, config *config.Config, logger *logrus.Logger) BaseHandler {
	return BaseHandler{
		services: svc,
		config:   config,
		logger:   logger,
	}
}

// CanHandle checks if the handler can handle the given access type
func (h *BaseHandler) CanHandle(accessType permissions.AccessType) bool {
	// Base handler can't handle any access type directly
	return false
}

func htmlOptions(markup *telebot.ReplyMarkup) *telebot.SendOptions {
	opts := &telebot.SendOptions{
		ParseMode:             telebot.ModeHTML,
		DisableWebPagePreview: true,
	}
	if markup != nil {
		opts.ReplyMarkup = markup
	}
	return opts
}

// sendTextMessage sends a text message with optional markup
func (h *BaseHandler) sendTextMessage(c telebot.Context, text string, markup *telebot.ReplyMarkup) error {
	err := c.Send(text, htmlOptions(markup))
	if err != nil {
		h.logger.Errorf("Failed to send message: %v", err)
	}
	return err
}

// reply edits the message of a pressed button, or sends a new message for text input
func (h *BaseHandler) reply(c telebot.Context, text string, markup *telebot.ReplyMarkup) error {
	if c.Callback() == nil {
		return h.sendTextMessage(c, text, markup)
	}

	err := c.Edit(text, htmlOptions(markup))
	if err == nil || errors.Is(err, telebot.ErrSameMessageContent) || errors.Is(err, telebot.ErrMessageNotModified) {
		return nil
	}

	h.logger.Debugf("Failed to edit message, sending a new one: %v", err)
	return h.sendTextMessage(c, text, markup)
}

// respond answers a callback query, showing text as a toast when set
func (h *BaseHandler) respond(c telebot.Context, text string) {
	if c.Callback() == nil {
		return
	}
	if err := c.Respond(&telebot.CallbackResponse{Text: text}); err != nil {
		h.logger.Debugf("Failed to answer callback: %v", err)
	}
}

// fail logs err and shows the generic error text
func (h *BaseHandler) fail(c telebot.Context, what string, err error, back string) error {
	h.logger.Errorf("%s: %v", what, err)
	return h.reply(c, genericErrorText, h.backKeyboard(back))
}

// sendQRCode sends a QR code for the given URL
func (h *BaseHandler) sendQRCode(c telebot.Context, url, caption string) error {
	qrBytes, err := h.services.QR.GenerateQR(url)
	if err != nil {
		h.logger.Errorf("Failed to generate QR code: %v", err)
		return err
	}

	photo := &telebot.Photo{File: telebot.FromReader(bytes.NewReader(qrBytes)), Caption: caption}
	if err := c.Send(photo); err != nil {
		h.logger.Errorf("Failed to send QR code: %v", err)
		return err
	}
	return nil
}

// notify sends a message to another chat. Failures are logged only.
func (h *BaseHandler) notify(ctx context.Context, chatID int64, text string) {
	if h.services.Notifier == nil {
		return
	}
	if err := h.services.Notifier.SendText(ctx, chatID, text); err != nil {
		h.logger.Warnf("Failed to notify %d: %v", chatID, err)
	}
}

// notifyStaff sends a message to configured admins and to staff recorded in the store
func (h *BaseHandler) notifyStaff(ctx context.Context, text string) {
	seen := make(map[int64]bool)
	for _, id := range h.config.Telegram.AdminIDs {
		seen[id] = true
	}

	users, err := h.services.Store.ListUsers(ctx)
	if err != nil {
		h.logger.Errorf("Failed to list staff: %v", err)
	}
	for i := range users {
		if users[i].IsStaff() && users[i].TelegramID != nil {
			seen[*users[i].TelegramID] = true
		}
	}

	for id := range seen {
		h.notify(ctx, id, text)
	}
}

// btn creates an inline button
func btn(text, data string) telebot.Btn {
	return telebot.Btn{Text: text, Data: data}
}

// inlineKeyboard creates an inline keyboard from rows of buttons
func inlineKeyboard(rows ...telebot.Row) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.Inline(rows...)
	return markup
}

// backKeyboard creates a keyboard with a single back button
func (h *BaseHandler) backKeyboard(back string) *telebot.ReplyMarkup {
	return inlineKeyboard(telebot.Row{btn(commands.BtnBack, back)})
}

// cancelKeyboard creates a keyboard with a single cancel button
func (h *BaseHandler) cancelKeyboard(cancel string) *telebot.ReplyMarkup {
	return inlineKeyboard(telebot.Row{btn(commands.BtnCancel, cancel)})
}

// paginationRow creates prev/next buttons for a paged list, or nil for a single page
func paginationRow(prefix string, page, pages int) telebot.Row {
	var row telebot.Row
	if page > 0 {
		row = append(row, btn(commands.BtnPrev, commands.Data(prefix, page-1)))
	}
	if pages > 1 {
		row = append(row, btn(fmt.Sprintf("%d/%d", page+1, pages), commands.Noop))
	}
	if page < pages-1 {
		row = append(row, btn(commands.BtnNext, commands.Data(prefix, page+1)))
	}
	return row
}

// callbackArg returns the argument of data when it starts with prefix
func callbackArg(data, prefix string) (string, bool) {
	if !strings.HasPrefix(data, prefix+":") {
		return "", false
	}
	return strings.TrimPrefix(data, prefix+":"), true
}

// callbackData returns the data of a pressed button
func callbackData(c telebot.Context) string {
	if cb := c.Callback(); cb != nil {
		return cb.Data
	}
	return ""
}

// showSupport shows the support contact
func (h *BaseHandler) showSupport(c telebot.Context, back string) error {
	text := "📞 <b>Support</b>\n\nSupport contact is not configured yet. Use <b>Contact admins</b> instead."
	if h.config.Telegram.SupportUsername != "" {
		text = fmt.Sprintf("📞 <b>Support</b>\n\nContact us via @%s", html.EscapeString(h.config.Telegram.SupportUsername))
	}
	return h.reply(c, text, h.backKeyboard(back))
}

// showGuide shows the setup guide
func (h *BaseHandler) showGuide(c telebot.Context, back string) error {
	return h.reply(c, setupGuideText, h.backKeyboard(back))
}

// startRequest asks the user for the text of a request to the admins
func (h *BaseHandler) startRequest(c telebot.Context, back string) error {
	if err := h.services.State.SetState(c.Sender().ID, models.UserState{State: models.AwaitRequestText}); err != nil {
		return err
	}
	return h.reply(c, "✉️ Write your message to the admins:", h.cancelKeyboard(back))
}

// processRequestText stores the request, notifies the staff and leaves the conversation
func (h *BaseHandler) processRequestText(ctx context.Context, c telebot.Context, back string) error {
	text, err := validation.ValidateRequestText(c.Text())
	if err != nil {
		var vErr *apperrors.ValidationError
		if errors.As(err, &vErr) {
			return h.reply(c, "⚠️ The message "+vErr.Message+". Try again:", h.cancelKeyboard(back))
		}
		return err
	}

	userID := c.Sender().ID
	id, err := h.services.Store.CreateRequest(ctx, userID, text)
	if err != nil {
		return h.fail(c, "Failed to create request", err, back)
	}
	if err := h.services.State.ClearState(userID); err != nil {
		h.logger.Errorf("Failed to clear user state: %v", err)
	}

	from := fmt.Sprintf("%d", userID)
	if c.Sender().Username != "" {
		from = fmt.Sprintf("@%s (%d)", c.Sender().Username, userID)
	}
	h.notifyStaff(ctx, fmt.Sprintf("📨 New request #%d from %s:\n\n%s", id, from, text))

	return h.reply(c, fmt.Sprintf("✅ Your request #%d was sent to the admins.", id), h.backKeyboard(back))
}
