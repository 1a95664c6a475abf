package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"

	telebot "gopkg.in/telebot.v3"

	"marzban-tg-admin/internal/commands"
	"marzban-tg-admin/internal/constants"
	apperrors "marzban-tg-admin/internal/errors"
	"marzban-tg-admin/internal/helpers"
	"marzban-tg-admin/internal/models"
	"marzban-tg-admin/internal/services"
	"marzban-tg-admin/internal/validation"
)

const createUserPrompt = "➕ <b>New panel user</b>\n\n" +
	"Send <code>username [days] [GB]</code>, for example <code>alice 30 50</code>.\n" +
	"Omit days or GB, or use 0, for no limit."

// showMarzbanMenu shows the panel submenu
func (h *AdminHandler) showMarzbanMenu(ctx context.Context, c telebot.Context) error {
	if err := h.services.State.ClearState(c.Sender().ID); err != nil {
		h.logger.Errorf("Failed to clear user state: %v", err)
	}

	markup := inlineKeyboard(
		telebot.Row{btn(commands.BtnServerStats, commands.MarzbanStats), btn(commands.BtnNodes, commands.MarzbanNodes)},
		telebot.Row{btn(commands.BtnPanelUsers, commands.MarzbanUsers), btn(commands.BtnCreateUser, commands.MarzbanCreate)},
		telebot.Row{btn(commands.BtnBack, commands.NavMain)},
	)
	return h.reply(c, "👻 <b>Marzban panel</b>", markup)
}

// panelFailure shows a panel error in a way the admin can act on
func (h *AdminHandler) panelFailure(c telebot.Context, what string, err error, back string) error {
	var connErr *apperrors.ConnectivityError
	if errors.As(err, &connErr) {
		h.logger.Errorf("%s: %v", what, err)
		return h.reply(c, "⚠️ The panel is unreachable. Try again later.", h.backKeyboard(back))
	}

	var apiErr *apperrors.PanelAPIError
	if errors.As(err, &apiErr) {
		h.logger.Errorf("%s: %v", what, err)
		text := fmt.Sprintf("⚠️ The panel answered with status %d.", apiErr.Status)
		return h.reply(c, text, h.backKeyboard(back))
	}

	return h.fail(c, what, err, back)
}

// showServerStats shows the panel host statistics
func (h *AdminHandler) showServerStats(ctx context.Context, c telebot.Context) error {
	stats, err := h.services.Marzban.SystemStats(ctx)
	if err != nil {
		return h.panelFailure(c, "Failed to get system stats", err, commands.MarzbanMain)
	}
	return h.reply(c, helpers.FormatSystemStats(stats), h.backKeyboard(commands.MarzbanMain))
}

// showNodes shows the panel nodes
func (h *AdminHandler) showNodes(ctx context.Context, c telebot.Context) error {
	nodes, err := h.services.Marzban.Nodes(ctx)
	if err != nil {
		return h.panelFailure(c, "Failed to get nodes", err, commands.MarzbanMain)
	}
	return h.reply(c, helpers.FormatNodes(nodes), h.backKeyboard(commands.MarzbanMain))
}

// showPanelUsers shows a page of panel users, two per row
func (h *AdminHandler) showPanelUsers(ctx context.Context, c telebot.Context, page int) error {
	if page < 0 {
		page = 0
	}

	result, err := h.services.Marzban.ListUsers(ctx, page*constants.PageSize, constants.PageSize)
	if err != nil {
		return h.panelFailure(c, "Failed to list panel users", err, commands.MarzbanMain)
	}

	p := helpers.Paginate(result.Total, page, constants.PageSize)
	var rows []telebot.Row
	var row telebot.Row
	for _, user := range result.Users {
		label := fmt.Sprintf("%s %s", helpers.StatusIcon(user.Status), user.Username)
		row = append(row, btn(label, commands.Data(commands.MarzbanUser, user.Username)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	if nav := paginationRow(commands.MarzbanUsers, p.Number, p.Pages); len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, telebot.Row{btn(commands.BtnBack, commands.MarzbanMain)})

	return h.reply(c, fmt.Sprintf("👥 <b>Panel users</b> (%d)", result.Total), inlineKeyboard(rows...))
}

// showPanelUser shows a panel user with its usage and actions
func (h *AdminHandler) showPanelUser(ctx context.Context, c telebot.Context, username string) error {
	return h.renderPanelUser(ctx, c, username, "")
}

func (h *AdminHandler) renderPanelUser(ctx context.Context, c telebot.Context, username, notice string) error {
	detail, err := h.services.Marzban.GetUserDetail(ctx, username)
	if err != nil {
		return h.panelFailure(c, "Failed to get panel user", err, commands.MarzbanUsers)
	}
	if detail == nil {
		return h.reply(c, fmt.Sprintf("⚠️ User <b>%s</b> not found on the panel.", html.EscapeString(username)), h.backKeyboard(commands.MarzbanUsers))
	}

	usage, err := h.services.Marzban.UserUsage(ctx, username)
	if err != nil {
		h.logger.Warnf("Failed to get usage of %s: %v", username, err)
		usage = nil
	}

	markup := inlineKeyboard(
		telebot.Row{
			btn(commands.BtnResetTraffic, commands.Data(commands.MarzbanReset, username)),
			btn(commands.BtnRevokeSub, commands.Data(commands.MarzbanRevoke, username)),
		},
		telebot.Row{
			btn(commands.BtnLinkUser, commands.Data(commands.MarzbanLink, username)),
			btn(commands.BtnDeleteUser, commands.Data(commands.MarzbanDelete, username)),
		},
		telebot.Row{btn(commands.BtnBack, commands.MarzbanUsers)},
	)

	text := helpers.FormatPanelUserDetail(detail.User, detail.TelegramID, usage)
	if notice != "" {
		text = notice + "\n\n" + text
	}
	return h.reply(c, text, markup)
}

// resetTraffic resets the used traffic of a panel user
func (h *AdminHandler) resetTraffic(ctx context.Context, c telebot.Context, username string) error {
	if _, err := h.services.Marzban.ResetTraffic(ctx, username); err != nil {
		return h.panelFailure(c, "Failed to reset traffic", err, commands.Data(commands.MarzbanUser, username))
	}
	h.logger.Infof("Traffic of %s reset by %d", username, c.Sender().ID)
	return h.renderPanelUser(ctx, c, username, "♻️ Traffic reset.")
}

// revokeSubscription regenerates the subscription link of a panel user
func (h *AdminHandler) revokeSubscription(ctx context.Context, c telebot.Context, username string) error {
	if _, err := h.services.Marzban.RevokeSubscription(ctx, username); err != nil {
		return h.panelFailure(c, "Failed to revoke subscription", err, commands.Data(commands.MarzbanUser, username))
	}
	h.logger.Infof("Subscription of %s revoked by %d", username, c.Sender().ID)
	return h.renderPanelUser(ctx, c, username, "🔑 Subscription revoked. The user has to import the new link.")
}

// confirmDeletePanelUser asks before deleting a panel user
func (h *AdminHandler) confirmDeletePanelUser(ctx context.Context, c telebot.Context, username string) error {
	markup := inlineKeyboard(telebot.Row{
		btn(commands.BtnConfirm, commands.Data(commands.MarzbanDeleteConfirm, username)),
		btn(commands.BtnCancel, commands.Data(commands.MarzbanUser, username)),
	})
	text := fmt.Sprintf("🗑 Delete <b>%s</b> from the panel? This cannot be undone.", html.EscapeString(username))
	return h.reply(c, text, markup)
}

// deletePanelUser deletes a panel user and its local link
func (h *AdminHandler) deletePanelUser(ctx context.Context, c telebot.Context, username string) error {
	deleted, err := h.services.Marzban.DeleteUser(ctx, username)
	if err != nil {
		h.logger.Errorf("Panel user %s deleted but local link not removed: %v", username, err)
	}
	if !deleted {
		return h.reply(c, fmt.Sprintf("⚠️ Failed to delete <b>%s</b>.", html.EscapeString(username)), h.backKeyboard(commands.Data(commands.MarzbanUser, username)))
	}

	h.logger.Infof("Panel user %s deleted by %d", username, c.Sender().ID)
	return h.reply(c, fmt.Sprintf("🗑 User <b>%s</b> deleted.", html.EscapeString(username)), h.backKeyboard(commands.MarzbanUsers))
}

// startLink asks for the Telegram ID to link a panel user to
func (h *AdminHandler) startLink(ctx context.Context, c telebot.Context, username string) error {
	state := models.UserState{State: models.AwaitLinkTelegramID, Payload: &username}
	if err := h.services.State.SetState(c.Sender().ID, state); err != nil {
		return err
	}

	text := fmt.Sprintf("🔗 Send the Telegram ID to link <b>%s</b> to:", html.EscapeString(username))
	return h.reply(c, text, h.cancelKeyboard(commands.Data(commands.MarzbanUser, username)))
}

// processLinkTelegramID links the panel user stored in the payload to the sent Telegram ID
func (h *AdminHandler) processLinkTelegramID(ctx context.Context, c telebot.Context, payload *string) error {
	if payload == nil {
		return h.showMainMenu(ctx, c)
	}
	username := *payload
	back := commands.Data(commands.MarzbanUser, username)

	telegramID, err := validation.ParseTelegramID(c.Text())
	if err != nil {
		return h.sendTextMessage(c, "⚠️ A Telegram ID is a positive number. Try again:", h.cancelKeyboard(back))
	}

	if err := h.services.State.ClearState(c.Sender().ID); err != nil {
		h.logger.Errorf("Failed to clear user state: %v", err)
	}

	if err := h.services.Marzban.LinkUser(ctx, username, telegramID); err != nil {
		if errors.Is(err, services.ErrPanelUserMissing) {
			return h.sendTextMessage(c, "⚠️ The user no longer exists on the panel.", h.backKeyboard(commands.MarzbanUsers))
		}
		return h.panelFailure(c, "Failed to link user", err, back)
	}

	h.logger.Infof("Panel user %s linked to %d by %d", username, telegramID, c.Sender().ID)
	h.notify(ctx, telegramID, fmt.Sprintf("Your subscription %s is now linked to this account. Press /start to open it.", username))

	return h.renderPanelUser(ctx, c, username, fmt.Sprintf("🔗 Linked to <code>%d</code>.", telegramID))
}

// startCreateUser asks for the new user parameters
func (h *AdminHandler) startCreateUser(ctx context.Context, c telebot.Context) error {
	if err := h.services.State.SetState(c.Sender().ID, models.UserState{State: models.AwaitPanelUsername}); err != nil {
		return err
	}
	return h.reply(c, createUserPrompt, h.cancelKeyboard(commands.MarzbanMain))
}

// processCreateUser creates a panel user from "username [days] [GB]"
func (h *AdminHandler) processCreateUser(ctx context.Context, c telebot.Context) error {
	input, err := validation.ParseNewUserInput(c.Text())
	if err != nil {
		var vErr *apperrors.ValidationError
		if errors.As(err, &vErr) {
			text := fmt.Sprintf("⚠️ Invalid %s: %s. Try again:", vErr.Field, html.EscapeString(vErr.Message))
			return h.sendTextMessage(c, text, h.cancelKeyboard(commands.MarzbanMain))
		}
		return err
	}

	if err := h.services.State.ClearState(c.Sender().ID); err != nil {
		h.logger.Errorf("Failed to clear user state: %v", err)
	}

	user, err := h.services.Marzban.CreateUser(ctx, *input)
	if user == nil {
		var apiErr *apperrors.PanelAPIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			text := fmt.Sprintf("⚠️ User <b>%s</b> already exists.", html.EscapeString(input.Username))
			return h.sendTextMessage(c, text, h.backKeyboard(commands.MarzbanMain))
		}
		return h.panelFailure(c, "Failed to create panel user", err, commands.MarzbanMain)
	}
	if err != nil {
		h.logger.Warnf("User %s created without a local record: %v", input.Username, err)
	}

	h.logger.Infof("Panel user %s created by %d", user.Username, c.Sender().ID)

	markup := inlineKeyboard(
		telebot.Row{btn(commands.BtnLinkUser, commands.Data(commands.MarzbanLink, user.Username))},
		telebot.Row{btn(commands.BtnBack, commands.MarzbanMain)},
	)
	return h.sendTextMessage(c, "✅ User created.\n\n"+helpers.FormatSubscription(user), markup)
}
