package handlers

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"marzban-tg-admin/internal/commands"
	"marzban-tg-admin/internal/config"
	"marzban-tg-admin/internal/helpers"
	"marzban-tg-admin/internal/models"
	"marzban-tg-admin/internal/permissions"
)

type callbackFunc func(ctx context.Context, c telebot.Context, arg string) error

// callbackRoute binds callback data, or a callback data prefix, to a handler
type callbackRoute struct {
	data      string
	prefixed  bool
	adminOnly bool
	handle    callbackFunc
}

// AdminHandler handles admin and moderator updates
type AdminHandler struct {
	BaseHandler
	access          permissions.AccessType
	commandHandlers map[string]func(context.Context, telebot.Context) error
	routes          []callbackRoute
}

// NewAdminHandler creates a new staff handler for admins or moderators
func NewAdminHandler(access permissions.AccessType, svc Services, config *config.Config, logger *logrus.Logger) *AdminHandler {
	handler := &AdminHandler{
		BaseHandler: NewBaseHandler(svc, config, logger),
		access:      access,
	}

	handler.initializeCommands()
	return handler
}

// CanHandle checks if the handler can handle the given access type
func (h *AdminHandler) CanHandle(accessType permissions.AccessType) bool {
	return accessType == h.access
}

// Handle handles a message or a button press from Telegram
func (h *AdminHandler) Handle(ctx context.Context, c telebot.Context) error {
	if c.Callback() != nil {
		return h.handleCallback(ctx, c)
	}

	if handler, ok := h.commandHandlers[c.Text()]; ok {
		return handler(ctx, c)
	}

	userID := c.Sender().ID
	userState, err := h.services.State.GetState(userID)
	if err != nil {
		h.logger.Errorf("Failed to get user state: %v", err)
		return err
	}

	switch userState.State {
	case models.Default:
		return h.showMainMenu(ctx, c)
	case models.AwaitBroadcastMessage:
		return h.processBroadcastText(ctx, c)
	case models.AwaitBroadcastConfirm:
		return h.sendTextMessage(c, "Press <b>Confirm</b> to send the broadcast or <b>Cancel</b> to drop it.", h.confirmBroadcastKeyboard())
	case models.AwaitPanelUsername:
		return h.processCreateUser(ctx, c)
	case models.AwaitLinkTelegramID:
		return h.processLinkTelegramID(ctx, c, userState.Payload)
	case models.AwaitBanReason:
		return h.processBanReason(ctx, c, userState.Payload)
	default:
		h.logger.Warnf("Unknown state: %s", userState.State)
		return h.showMainMenu(ctx, c)
	}
}

// initializeCommands initializes the command and callback handlers
func (h *AdminHandler) initializeCommands() {
	h.commandHandlers = map[string]func(context.Context, telebot.Context) error{
		commands.Start:  h.showMainMenu,
		commands.Cancel: h.showMainMenu,
		commands.Help:   h.showMainMenu,
	}

	page := func(show func(context.Context, telebot.Context, int) error) callbackFunc {
		return func(ctx context.Context, c telebot.Context, arg string) error {
			n, _ := strconv.Atoi(arg)
			return show(ctx, c, n)
		}
	}
	first := func(show func(context.Context, telebot.Context, int) error) callbackFunc {
		return func(ctx context.Context, c telebot.Context, _ string) error {
			return show(ctx, c, 0)
		}
	}
	plain := func(fn func(context.Context, telebot.Context) error) callbackFunc {
		return func(ctx context.Context, c telebot.Context, _ string) error {
			return fn(ctx, c)
		}
	}

	h.routes = []callbackRoute{
		{data: commands.NavMain, handle: plain(h.showMainMenu)},
		{data: commands.NavCancel, handle: plain(h.showMainMenu)},
		{data: commands.NavStats, handle: plain(h.showStats)},

		{data: commands.NavRequests, handle: first(h.showRequests)},
		{data: commands.RequestsPage, prefixed: true, handle: page(h.showRequests)},
		{data: commands.RequestsDetail, prefixed: true, handle: h.showRequestDetail},
		{data: commands.ApproveRequest, prefixed: true, handle: h.approveRequest},
		{data: commands.RejectRequest, prefixed: true, handle: h.rejectRequest},

		{data: commands.NavUsers, adminOnly: true, handle: first(h.showUsers)},
		{data: commands.UsersPage, prefixed: true, adminOnly: true, handle: page(h.showUsers)},
		{data: commands.UsersDetail, prefixed: true, adminOnly: true, handle: h.showUserDetail},
		{data: commands.BanUser, prefixed: true, adminOnly: true, handle: h.startBan},
		{data: commands.UnbanUser, prefixed: true, adminOnly: true, handle: h.unbanUser},
		{data: commands.PromoteModerator, prefixed: true, adminOnly: true, handle: h.promoteModerator},
		{data: commands.DemoteModerator, prefixed: true, adminOnly: true, handle: h.demoteModerator},

		{data: commands.NavBroadcast, adminOnly: true, handle: plain(h.startBroadcast)},
		{data: commands.ConfirmBroadcast, adminOnly: true, handle: plain(h.confirmBroadcast)},

		{data: commands.MarzbanMain, adminOnly: true, handle: plain(h.showMarzbanMenu)},
		{data: commands.MarzbanStats, adminOnly: true, handle: plain(h.showServerStats)},
		{data: commands.MarzbanUsers, adminOnly: true, handle: first(h.showPanelUsers)},
		{data: commands.MarzbanUsers, prefixed: true, adminOnly: true, handle: page(h.showPanelUsers)},
		{data: commands.MarzbanUser, prefixed: true, adminOnly: true, handle: h.showPanelUser},
		{data: commands.MarzbanReset, prefixed: true, adminOnly: true, handle: h.resetTraffic},
		{data: commands.MarzbanRevoke, prefixed: true, adminOnly: true, handle: h.revokeSubscription},
		{data: commands.MarzbanDelete, prefixed: true, adminOnly: true, handle: h.confirmDeletePanelUser},
		{data: commands.MarzbanDeleteConfirm, prefixed: true, adminOnly: true, handle: h.deletePanelUser},
		{data: commands.MarzbanLink, prefixed: true, adminOnly: true, handle: h.startLink},
		{data: commands.MarzbanNodes, adminOnly: true, handle: plain(h.showNodes)},
		{data: commands.MarzbanCreate, adminOnly: true, handle: plain(h.startCreateUser)},
	}
}

// handleCallback dispatches a button press
func (h *AdminHandler) handleCallback(ctx context.Context, c telebot.Context) error {
	data := callbackData(c)
	if data == commands.Noop {
		h.respond(c, "")
		return nil
	}

	for _, route := range h.routes {
		arg := ""
		if route.prefixed {
			var ok bool
			if arg, ok = callbackArg(data, route.data); !ok {
				continue
			}
		} else if data != route.data {
			continue
		}

		if route.adminOnly && h.access != permissions.Admin {
			h.logger.Warnf("Moderator %d tried admin action %s", c.Sender().ID, data)
			if err := c.Respond(&telebot.CallbackResponse{Text: "⛔ Admins only", ShowAlert: true}); err != nil {
				h.logger.Debugf("Failed to answer callback: %v", err)
			}
			return nil
		}

		h.respond(c, "")
		return route.handle(ctx, c, arg)
	}

	h.logger.Debugf("Unknown callback %q", data)
	h.respond(c, "")
	return h.showMainMenu(ctx, c)
}

// showMainMenu clears the conversation and shows the staff menu
func (h *AdminHandler) showMainMenu(ctx context.Context, c telebot.Context) error {
	if err := h.services.State.ClearState(c.Sender().ID); err != nil {
		h.logger.Errorf("Failed to clear user state: %v", err)
		return err
	}

	if h.access != permissions.Admin {
		markup := inlineKeyboard(
			telebot.Row{btn(commands.BtnRequests, commands.NavRequests), btn(commands.BtnStats, commands.NavStats)},
		)
		return h.reply(c, "🛠 <b>Moderator panel</b>\n\nAvailable sections:", markup)
	}

	markup := inlineKeyboard(
		telebot.Row{btn(commands.BtnRequests, commands.NavRequests), btn(commands.BtnUsers, commands.NavUsers)},
		telebot.Row{btn(commands.BtnStats, commands.NavStats), btn(commands.BtnBroadcast, commands.NavBroadcast)},
		telebot.Row{btn(commands.BtnMarzban, commands.MarzbanMain)},
	)
	return h.reply(c, "👮 <b>Admin panel</b>\n\nChoose a section:", markup)
}

// showStats shows the local store statistics
func (h *AdminHandler) showStats(ctx context.Context, c telebot.Context) error {
	stats, err := h.services.Store.GetStats(ctx)
	if err != nil {
		return h.fail(c, "Failed to get stats", err, commands.NavMain)
	}
	active, err := h.services.Store.GetActiveUsersCount(ctx)
	if err != nil {
		return h.fail(c, "Failed to count active users", err, commands.NavMain)
	}

	return h.reply(c, helpers.FormatBotStats(stats, active), h.backKeyboard(commands.NavMain))
}

// parseID parses a numeric callback argument
func parseID(arg string) (int64, bool) {
	id, err := strconv.ParseInt(arg, 10, 64)
	return id, err == nil
}
