package commands

import "fmt"

// TelegramCommands contains all commands for the Telegram bot
const (
	Start  = "/start"
	Cancel = "/cancel"
	Help   = "/help"
)

// Callback data of inline buttons. Parameterized callbacks are built as
// prefix + ":" + argument, e.g. "nav:requests:detail:12".
const (
	// Staff navigation
	NavMain      = "nav:main"
	NavCancel    = "nav:cancel"
	NavStats     = "nav:stats"
	NavRequests  = "nav:requests"
	NavUsers     = "nav:users"
	NavBroadcast = "nav:broadcast"

	RequestsPage   = "nav:requests:page"
	RequestsDetail = "nav:requests:detail"
	UsersPage      = "nav:users:page"
	UsersDetail    = "nav:users:detail"

	// Staff actions
	ApproveRequest   = "action:requests:approve"
	RejectRequest    = "action:requests:reject"
	BanUser          = "action:users:ban"
	UnbanUser        = "action:users:unban"
	PromoteModerator = "action:users:moder"
	DemoteModerator  = "action:users:unmoder"
	ConfirmBroadcast = "action:broadcast:confirm"

	// Marzban panel submenu
	MarzbanMain          = "marzban:main"
	MarzbanStats         = "marzban:stats"
	MarzbanUsers         = "marzban:users"
	MarzbanUser          = "marzban:user"
	MarzbanReset         = "marzban:reset"
	MarzbanRevoke        = "marzban:revoke"
	MarzbanDelete        = "marzban:delete"
	MarzbanDeleteConfirm = "marzban:delete_confirm"
	MarzbanLink          = "marzban:link"
	MarzbanNodes         = "marzban:nodes"
	MarzbanCreate        = "marzban:create"

	// User menu
	UserMain         = "user:main"
	UserSubscription = "user:subscription"
	UserQR           = "user:qr"
	UserTransfer     = "user:transfer"
	UserRequest      = "user:request"
	UserSupport      = "user:support"
	UserGuide        = "user:guide"

	// Noop is attached to informational buttons
	Noop = "noop"
)

// Button labels
const (
	BtnBack    = "🔙 Back"
	BtnCancel  = "❌ Cancel"
	BtnConfirm = "✅ Confirm"
	BtnPrev    = "⬅️ Prev"
	BtnNext    = "Next ➡️"

	BtnRequests  = "📨 Requests"
	BtnUsers     = "👥 Users"
	BtnStats     = "📊 Statistics"
	BtnBroadcast = "📢 Broadcast"
	BtnMarzban   = "👻 Marzban panel"

	BtnApprove   = "✅ Approve"
	BtnReject    = "❌ Reject"
	BtnBan       = "🚫 Ban"
	BtnUnban     = "🟢 Unban"
	BtnPromote   = "🛠 Make moderator"
	BtnDemote    = "👤 Remove moderator"
	BtnPanelUser = "👻 Panel user"

	BtnServerStats  = "📊 Server stats"
	BtnPanelUsers   = "👥 Proxy users"
	BtnNodes        = "🖧 Nodes"
	BtnCreateUser   = "➕ Create user"
	BtnResetTraffic = "♻️ Reset traffic"
	BtnRevokeSub    = "🔑 Revoke subscription"
	BtnDeleteUser   = "🗑 Delete"
	BtnLinkUser     = "🔗 Link Telegram ID"

	BtnSubscription = "📡 My subscription"
	BtnQRCode       = "🔳 QR code"
	BtnTransfer     = "🔄 Transfer subscription"
	BtnContactAdmin = "✉️ Contact admins"
	BtnSupport      = "🆘 Support"
	BtnGuide        = "❓ How to use"
)

// Data joins a callback prefix with its argument
func Data(prefix string, arg interface{}) string {
	return fmt.Sprintf("%s:%v", prefix, arg)
}
