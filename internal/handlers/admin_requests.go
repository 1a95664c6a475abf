package handlers

import (
	"context"
	"errors"
	"fmt"

	telebot "gopkg.in/telebot.v3"

	"marzban-tg-admin/internal/commands"
	"marzban-tg-admin/internal/constants"
	"marzban-tg-admin/internal/helpers"
	"marzban-tg-admin/internal/models"
	"marzban-tg-admin/internal/storage"
)

// showRequests shows a page of pending requests
func (h *AdminHandler) showRequests(ctx context.Context, c telebot.Context, page int) error {
	requests, err := h.services.Store.GetRequests(ctx, models.RequestPending)
	if err != nil {
		return h.fail(c, "Failed to get requests", err, commands.NavMain)
	}

	if len(requests) == 0 {
		return h.reply(c, "📭 No pending requests.", h.backKeyboard(commands.NavMain))
	}

	p := helpers.Paginate(len(requests), page, constants.PageSize)
	var rows []telebot.Row
	for _, req := range requests[p.Start:p.End] {
		label := fmt.Sprintf("#%d %s: %s", req.ID, helpers.FormatAccount(req.Username, req.UserID), helpers.Truncate(req.Text, 24))
		rows = append(rows, telebot.Row{btn(label, commands.Data(commands.RequestsDetail, req.ID))})
	}
	if row := paginationRow(commands.RequestsPage, p.Number, p.Pages); len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, telebot.Row{btn(commands.BtnBack, commands.NavMain)})

	text := fmt.Sprintf("📨 <b>Pending requests</b> (%d)", len(requests))
	return h.reply(c, text, inlineKeyboard(rows...))
}

// showRequestDetail shows a single request with decision buttons while it is pending
func (h *AdminHandler) showRequestDetail(ctx context.Context, c telebot.Context, arg string) error {
	id, ok := parseID(arg)
	if !ok {
		return h.reply(c, "⚠️ Invalid request ID.", h.backKeyboard(commands.NavRequests))
	}
	return h.renderRequest(ctx, c, id, "")
}

func (h *AdminHandler) renderRequest(ctx context.Context, c telebot.Context, id int64, notice string) error {
	req, err := h.services.Store.GetRequest(ctx, id)
	if err != nil {
		return h.fail(c, "Failed to get request", err, commands.NavRequests)
	}
	if req == nil {
		return h.reply(c, fmt.Sprintf("⚠️ Request #%d not found.", id), h.backKeyboard(commands.NavRequests))
	}

	var rows []telebot.Row
	if req.Status == models.RequestPending {
		rows = append(rows, telebot.Row{
			btn(commands.BtnApprove, commands.Data(commands.ApproveRequest, req.ID)),
			btn(commands.BtnReject, commands.Data(commands.RejectRequest, req.ID)),
		})
	}
	rows = append(rows, telebot.Row{btn(commands.BtnBack, commands.NavRequests)})

	text := helpers.FormatRequest(req)
	if notice != "" {
		text = notice + "\n\n" + text
	}
	return h.reply(c, text, inlineKeyboard(rows...))
}

func (h *AdminHandler) approveRequest(ctx context.Context, c telebot.Context, arg string) error {
	return h.decideRequest(ctx, c, arg, true)
}

func (h *AdminHandler) rejectRequest(ctx context.Context, c telebot.Context, arg string) error {
	return h.decideRequest(ctx, c, arg, false)
}

// decideRequest moves a pending request to a terminal status and tells its author.
// Only the first decision is applied.
func (h *AdminHandler) decideRequest(ctx context.Context, c telebot.Context, arg string, approve bool) error {
	id, ok := parseID(arg)
	if !ok {
		return h.reply(c, "⚠️ Invalid request ID.", h.backKeyboard(commands.NavRequests))
	}

	decide, verb := h.services.Store.RejectRequest, "rejected"
	if approve {
		decide, verb = h.services.Store.ApproveRequest, "approved"
	}

	changed, err := decide(ctx, id)
	if errors.Is(err, storage.ErrRequestNotFound) {
		return h.reply(c, fmt.Sprintf("⚠️ Request #%d not found.", id), h.backKeyboard(commands.NavRequests))
	}
	if err != nil {
		return h.fail(c, "Failed to process request", err, commands.NavRequests)
	}
	if !changed {
		return h.renderRequest(ctx, c, id, "ℹ️ This request was already processed.")
	}

	h.logger.Infof("Request #%d %s by %d", id, verb, c.Sender().ID)

	req, err := h.services.Store.GetRequest(ctx, id)
	if err != nil {
		h.logger.Errorf("Failed to reload request #%d: %v", id, err)
	} else if req != nil {
		h.notify(ctx, req.UserID, fmt.Sprintf("Your request #%d was %s.", id, verb))
	}

	return h.renderRequest(ctx, c, id, fmt.Sprintf("✅ Request #%d %s.", id, verb))
}
