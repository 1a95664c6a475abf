package handlers

import (
	"context"
	"fmt"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"marzban-tg-admin/internal/commands"
	"marzban-tg-admin/internal/constants"
	"marzban-tg-admin/internal/helpers"
	"marzban-tg-admin/internal/models"
)

// showUsers shows a page of locally known users
func (h *AdminHandler) showUsers(ctx context.Context, c telebot.Context, page int) error {
	users, err := h.services.Store.ListUsers(ctx)
	if err != nil {
		return h.fail(c, "Failed to list users", err, commands.NavMain)
	}

	if len(users) == 0 {
		return h.reply(c, "👥 No users yet.", h.backKeyboard(commands.NavMain))
	}

	p := helpers.Paginate(len(users), page, constants.PageSize)
	var rows []telebot.Row
	for _, user := range users[p.Start:p.End] {
		icon := "🟢"
		switch {
		case user.IsBanned:
			icon = "🔴"
		case user.TelegramID == nil:
			icon = "⏳"
		}
		label := fmt.Sprintf("%s %s (%s)", icon, user.MarzbanUsername, user.Role())
		rows = append(rows, telebot.Row{btn(label, commands.Data(commands.UsersDetail, user.MarzbanUsername))})
	}
	if row := paginationRow(commands.UsersPage, p.Number, p.Pages); len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, telebot.Row{btn(commands.BtnBack, commands.NavMain)})

	return h.reply(c, fmt.Sprintf("👥 <b>Users</b> (%d)", len(users)), inlineKeyboard(rows...))
}

// showUserDetail shows a local user with moderation buttons
func (h *AdminHandler) showUserDetail(ctx context.Context, c telebot.Context, username string) error {
	return h.renderUser(ctx, c, username, "")
}

func (h *AdminHandler) renderUser(ctx context.Context, c telebot.Context, username, notice string) error {
	user, err := h.services.Store.GetUserByUsername(ctx, username)
	if err != nil {
		return h.fail(c, "Failed to get user", err, commands.NavUsers)
	}
	if user == nil {
		return h.reply(c, "⚠️ User not found.", h.backKeyboard(commands.NavUsers))
	}

	var rows []telebot.Row
	if user.TelegramID != nil && !h.isProtected(c, *user.TelegramID) {
		if user.IsBanned {
			rows = append(rows, telebot.Row{btn(commands.BtnUnban, commands.Data(commands.UnbanUser, username))})
		} else {
			rows = append(rows, telebot.Row{btn(commands.BtnBan, commands.Data(commands.BanUser, username))})
		}
		if user.IsModerator {
			rows = append(rows, telebot.Row{btn(commands.BtnDemote, commands.Data(commands.DemoteModerator, username))})
		} else {
			rows = append(rows, telebot.Row{btn(commands.BtnPromote, commands.Data(commands.PromoteModerator, username))})
		}
	}
	rows = append(rows,
		telebot.Row{btn(commands.BtnPanelUser, commands.Data(commands.MarzbanUser, username))},
		telebot.Row{btn(commands.BtnBack, commands.NavUsers)},
	)

	text := helpers.FormatLocalUser(user)
	if notice != "" {
		text = notice + "\n\n" + text
	}
	return h.reply(c, text, inlineKeyboard(rows...))
}

// isProtected reports whether moderation actions on telegramID are not allowed
// from the current sender: configured admins and the sender itself.
func (h *AdminHandler) isProtected(c telebot.Context, telegramID int64) bool {
	if telegramID == c.Sender().ID {
		return true
	}
	for _, id := range h.config.Telegram.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// linkedUser loads a user that can be moderated, or shows why it cannot
func (h *AdminHandler) linkedUser(ctx context.Context, c telebot.Context, username string) (*models.User, bool, error) {
	user, err := h.services.Store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, false, h.fail(c, "Failed to get user", err, commands.NavUsers)
	}
	if user == nil || user.TelegramID == nil {
		return nil, false, h.reply(c, "⚠️ User not found or not linked to Telegram.", h.backKeyboard(commands.NavUsers))
	}
	if h.isProtected(c, *user.TelegramID) {
		return nil, false, h.renderUser(ctx, c, username, "⛔ This account cannot be moderated.")
	}
	return user, true, nil
}

// startBan asks for the ban reason
func (h *AdminHandler) startBan(ctx context.Context, c telebot.Context, username string) error {
	_, ok, err := h.linkedUser(ctx, c, username)
	if !ok {
		return err
	}

	state := models.UserState{State: models.AwaitBanReason, Payload: &username}
	if err := h.services.State.SetState(c.Sender().ID, state); err != nil {
		return err
	}

	text := fmt.Sprintf("🚫 Enter the ban reason for <b>%s</b>, or send <code>-</code> to ban without a reason:", username)
	return h.reply(c, text, h.cancelKeyboard(commands.Data(commands.UsersDetail, username)))
}

// processBanReason bans the user stored in the conversation payload
func (h *AdminHandler) processBanReason(ctx context.Context, c telebot.Context, payload *string) error {
	if err := h.services.State.ClearState(c.Sender().ID); err != nil {
		h.logger.Errorf("Failed to clear user state: %v", err)
	}
	if payload == nil {
		return h.showMainMenu(ctx, c)
	}

	username := *payload
	user, ok, err := h.linkedUser(ctx, c, username)
	if !ok {
		return err
	}

	reason := strings.TrimSpace(c.Text())
	if reason == "-" {
		reason = ""
	}

	if err := h.services.Store.BanUser(ctx, *user.TelegramID, reason); err != nil {
		return h.fail(c, "Failed to ban user", err, commands.NavUsers)
	}
	h.logger.Infof("User %s (%d) banned by %d", username, *user.TelegramID, c.Sender().ID)

	notice := "You have been banned."
	if reason != "" {
		notice = fmt.Sprintf("You have been banned. Reason: %s", reason)
	}
	h.notify(ctx, *user.TelegramID, notice)

	return h.renderUser(ctx, c, username, "🚫 User banned.")
}

// unbanUser lifts a ban
func (h *AdminHandler) unbanUser(ctx context.Context, c telebot.Context, username string) error {
	user, ok, err := h.linkedUser(ctx, c, username)
	if !ok {
		return err
	}

	if err := h.services.Store.UnbanUser(ctx, *user.TelegramID); err != nil {
		return h.fail(c, "Failed to unban user", err, commands.NavUsers)
	}
	h.logger.Infof("User %s (%d) unbanned by %d", username, *user.TelegramID, c.Sender().ID)
	h.notify(ctx, *user.TelegramID, "Your ban has been lifted.")

	return h.renderUser(ctx, c, username, "🟢 User unbanned.")
}

func (h *AdminHandler) promoteModerator(ctx context.Context, c telebot.Context, username string) error {
	return h.setModerator(ctx, c, username, true)
}

func (h *AdminHandler) demoteModerator(ctx context.Context, c telebot.Context, username string) error {
	return h.setModerator(ctx, c, username, false)
}

func (h *AdminHandler) setModerator(ctx context.Context, c telebot.Context, username string, moderator bool) error {
	user, ok, err := h.linkedUser(ctx, c, username)
	if !ok {
		return err
	}

	if err := h.services.Store.SetModerator(ctx, *user.TelegramID, moderator); err != nil {
		return h.fail(c, "Failed to change role", err, commands.NavUsers)
	}
	h.logger.Infof("Moderator flag of %s set to %v by %d", username, moderator, c.Sender().ID)

	notice := "🛠 User is now a moderator."
	if !moderator {
		notice = "👤 Moderator rights removed."
	}
	return h.renderUser(ctx, c, username, notice)
}
