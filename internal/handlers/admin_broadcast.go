package handlers

import (
	"context"
	"fmt"
	"html"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"marzban-tg-admin/internal/commands"
	"marzban-tg-admin/internal/models"
)

func (h *AdminHandler) confirmBroadcastKeyboard() *telebot.ReplyMarkup {
	return inlineKeyboard(telebot.Row{
		btn(commands.BtnConfirm, commands.ConfirmBroadcast),
		btn(commands.BtnCancel, commands.NavCancel),
	})
}

// startBroadcast asks for the broadcast text
func (h *AdminHandler) startBroadcast(ctx context.Context, c telebot.Context) error {
	if err := h.services.State.SetState(c.Sender().ID, models.UserState{State: models.AwaitBroadcastMessage}); err != nil {
		return err
	}
	return h.reply(c, "📢 Send the text of the broadcast:", h.cancelKeyboard(commands.NavCancel))
}

// processBroadcastText stores the text and asks for confirmation
func (h *AdminHandler) processBroadcastText(ctx context.Context, c telebot.Context) error {
	text := strings.TrimSpace(c.Text())
	if text == "" {
		return h.sendTextMessage(c, "⚠️ The broadcast text is empty. Send the text:", h.cancelKeyboard(commands.NavCancel))
	}

	recipients, err := h.services.Broadcast.Recipients(ctx)
	if err != nil {
		return h.fail(c, "Failed to count recipients", err, commands.NavMain)
	}

	state := models.UserState{State: models.AwaitBroadcastConfirm, Payload: &text}
	if err := h.services.State.SetState(c.Sender().ID, state); err != nil {
		return err
	}

	preview := fmt.Sprintf("📢 <b>Broadcast preview</b>\n\n%s\n\nRecipients: %d. Send it?", html.EscapeString(text), len(recipients))
	return h.sendTextMessage(c, preview, h.confirmBroadcastKeyboard())
}

// confirmBroadcast sends the stored text to every active user
func (h *AdminHandler) confirmBroadcast(ctx context.Context, c telebot.Context) error {
	userID := c.Sender().ID
	state, err := h.services.State.GetState(userID)
	if err != nil {
		return err
	}
	if state.State != models.AwaitBroadcastConfirm || state.Payload == nil {
		return h.reply(c, "ℹ️ Nothing to send.", h.backKeyboard(commands.NavMain))
	}
	if err := h.services.State.ClearState(userID); err != nil {
		h.logger.Errorf("Failed to clear user state: %v", err)
	}

	if err := h.reply(c, "📤 Sending the broadcast...", nil); err != nil {
		h.logger.Warnf("Failed to show broadcast progress: %v", err)
	}

	result, err := h.services.Broadcast.Broadcast(ctx, *state.Payload)
	if result == nil {
		return h.fail(c, "Broadcast failed", err, commands.NavMain)
	}

	text := fmt.Sprintf("✅ Broadcast finished. Delivered: %d/%d.", result.Delivered, result.Total)
	if err != nil {
		h.logger.Warnf("Broadcast interrupted: %v", err)
		text = fmt.Sprintf("⚠️ Broadcast interrupted. Delivered: %d/%d.", result.Delivered, result.Total)
	}
	h.logger.Infof("Broadcast by %d: delivered %d of %d", userID, result.Delivered, result.Total)

	return h.sendTextMessage(c, text, h.backKeyboard(commands.NavMain))
}
