package helpers

import (
	"fmt"
	"html"
	"strings"
	"time"

	"marzban-tg-admin/internal/constants"
	"marzban-tg-admin/internal/models"
)

var statusIcons = map[models.PanelUserStatus]string{
	models.PanelUserActive:   "🟢",
	models.PanelUserExpired:  "🔴",
	models.PanelUserLimited:  "🟡",
	models.PanelUserDisabled: "⚫",
	models.PanelUserOnHold:   "🔵",
}

// StatusIcon returns the icon shown next to a panel user status
func StatusIcon(status models.PanelUserStatus) string {
	if icon, ok := statusIcons[status]; ok {
		return icon
	}
	return "⚪"
}

// FormatExpiry formats a unix expiry timestamp in local time
func FormatExpiry(expire *int64) string {
	return FormatExpiryIn(expire, time.Local)
}

// FormatExpiryIn formats a unix expiry timestamp in loc. Nil and zero mean no expiry.
func FormatExpiryIn(expire *int64, loc *time.Location) string {
	if expire == nil || *expire == 0 {
		return "Unlimited"
	}
	return time.Unix(*expire, 0).In(loc).Format(constants.ExpiryFormat)
}

// FormatSubscription formats the subscription card shown to a user
func FormatSubscription(user *models.PanelUser) string {
	var sb strings.Builder
	sb.WriteString("📋 <b>Your subscription</b>\n")
	sb.WriteString(fmt.Sprintf("├ Username: <code>%s</code>\n", html.EscapeString(user.Username)))
	sb.WriteString(fmt.Sprintf("├ Status: %s %s\n", StatusIcon(user.Status), user.Status))
	sb.WriteString(fmt.Sprintf("├ Traffic used: %s\n", FormatTraffic(user.UsedTraffic)))
	sb.WriteString(fmt.Sprintf("├ Traffic limit: %s\n", FormatDataLimit(user.DataLimit)))
	sb.WriteString(fmt.Sprintf("└ Expires: %s", FormatExpiry(user.Expire)))

	if user.SubscriptionURL != "" {
		sb.WriteString(fmt.Sprintf("\n\n🔗 <code>%s</code>", html.EscapeString(user.SubscriptionURL)))
	}
	return sb.String()
}

// FormatPanelUserDetail formats a panel user for the admin view
func FormatPanelUserDetail(user *models.PanelUser, telegramID *int64, usage *models.UserUsage) string {
	var sb strings.Builder
	sb.WriteString("🔍 <b>Panel user</b>\n\n")
	sb.WriteString(fmt.Sprintf("<b>Name:</b> %s\n", html.EscapeString(user.Username)))
	sb.WriteString(fmt.Sprintf("<b>Status:</b> %s %s\n", StatusIcon(user.Status), user.Status))
	sb.WriteString(fmt.Sprintf("<b>Limit:</b> %s\n", FormatDataLimit(user.DataLimit)))
	sb.WriteString(fmt.Sprintf("<b>Used:</b> %s\n", FormatUsage(user.UsedTraffic, user.DataLimit)))
	sb.WriteString(fmt.Sprintf("<b>Lifetime:</b> %s\n", FormatTraffic(user.LifetimeUsedTraffic)))
	sb.WriteString(fmt.Sprintf("<b>Expires:</b> %s\n", FormatExpiry(user.Expire)))

	if telegramID != nil {
		sb.WriteString(fmt.Sprintf("<b>Telegram:</b> <code>%d</code>\n", *telegramID))
	} else {
		sb.WriteString("<b>Telegram:</b> not linked\n")
	}
	if user.OnlineAt != nil {
		sb.WriteString(fmt.Sprintf("<b>Online at:</b> %s\n", html.EscapeString(*user.OnlineAt)))
	}
	if user.SubLastUserAgent != nil {
		sb.WriteString(fmt.Sprintf("<b>Last client:</b> %s\n", html.EscapeString(*user.SubLastUserAgent)))
	}
	if user.Note != "" {
		sb.WriteString(fmt.Sprintf("<b>Note:</b> %s\n", html.EscapeString(user.Note)))
	}

	if usage != nil && len(usage.Usages) > 0 {
		sb.WriteString("\n<b>Usage by node:</b>\n")
		for _, u := range usage.Usages {
			sb.WriteString(fmt.Sprintf("• %s: %s\n", html.EscapeString(u.NodeName), FormatTraffic(u.UsedTraffic)))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatSystemStats formats the panel host statistics
func FormatSystemStats(stats *models.SystemStats) string {
	memPct := 0.0
	if stats.MemTotal > 0 {
		memPct = float64(stats.MemUsed) * 100 / float64(stats.MemTotal)
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>Server statistics</b>\n\n")
	sb.WriteString(fmt.Sprintf("<b>Version:</b> %s\n", html.EscapeString(stats.Version)))
	sb.WriteString(fmt.Sprintf("<b>CPU:</b> %.1f%% of %d cores\n", stats.CPUUsage, stats.CPUCores))
	sb.WriteString(fmt.Sprintf("<b>Memory:</b> %.1f%% (%s / %s)\n", memPct, FormatTraffic(stats.MemUsed), FormatTraffic(stats.MemTotal)))
	sb.WriteString(fmt.Sprintf("<b>Users:</b> %d\n", stats.TotalUser))
	sb.WriteString(fmt.Sprintf("<b>Active:</b> %d\n", stats.UsersActive))
	sb.WriteString(fmt.Sprintf("<b>Traffic:</b> ↓ %s ↑ %s", FormatTraffic(stats.IncomingBandwidth), FormatTraffic(stats.OutgoingBandwidth)))
	return sb.String()
}

// FormatNodes formats the node list
func FormatNodes(nodes []models.Node) string {
	if len(nodes) == 0 {
		return "🖧 <b>Nodes</b>\n\nNo nodes configured."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🖧 <b>Nodes (%d)</b>\n", len(nodes)))
	for _, n := range nodes {
		icon := "🔴"
		if n.Status == "connected" {
			icon = "🟢"
		}
		sb.WriteString(fmt.Sprintf("\n%s <b>%s</b> %s:%d (%s)", icon, html.EscapeString(n.Name), html.EscapeString(n.Address), n.Port, n.Status))
		if n.XrayVersion != nil {
			sb.WriteString(fmt.Sprintf(", xray %s", html.EscapeString(*n.XrayVersion)))
		}
		if n.Message != nil && *n.Message != "" {
			sb.WriteString(fmt.Sprintf("\n   %s", html.EscapeString(*n.Message)))
		}
	}
	return sb.String()
}

// FormatBotStats formats the local store statistics
func FormatBotStats(stats *models.Stats, activeUsers int) string {
	return fmt.Sprintf(
		"📊 <b>Bot statistics</b>\n"+
			"┌ Users: %d\n"+
			"├ Active: %d\n"+
			"├ Staff: %d\n"+
			"├ Banned: %d\n"+
			"└ Pending requests: %d",
		stats.TotalUsers, activeUsers, stats.ActiveStaff, stats.BannedUsers, stats.PendingRequests,
	)
}

// FormatRequest formats an admin request
func FormatRequest(req *models.AdminRequest) string {
	processed := "-"
	if req.ProcessedAt != nil {
		processed = req.ProcessedAt.Local().Format(constants.TimestampFormat)
	}

	return fmt.Sprintf(
		"📄 <b>Request #%d</b>\n"+
			"┌ From: %s\n"+
			"├ Status: %s\n"+
			"├ Processed: %s\n"+
			"└ Text: %s",
		req.ID, html.EscapeString(FormatAccount(req.Username, req.UserID)), req.Status, processed, html.EscapeString(req.Text),
	)
}

// FormatLocalUser formats a local user row for the admin view
func FormatLocalUser(user *models.User) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👤 <b>%s</b>\n", html.EscapeString(user.MarzbanUsername)))
	if user.TelegramID != nil {
		sb.WriteString(fmt.Sprintf("┌ Telegram: <code>%d</code>\n", *user.TelegramID))
	} else {
		sb.WriteString("┌ Telegram: not linked\n")
	}
	sb.WriteString(fmt.Sprintf("├ Role: %s\n", user.Role()))
	if user.IsBanned {
		reason := "no reason given"
		if user.BanReason != nil {
			reason = *user.BanReason
		}
		sb.WriteString(fmt.Sprintf("├ Banned: yes (%s)\n", html.EscapeString(reason)))
	} else {
		sb.WriteString("├ Banned: no\n")
	}
	sb.WriteString(fmt.Sprintf("└ Registered: %s", user.CreatedAt.Local().Format(constants.TimestampFormat)))
	return sb.String()
}
