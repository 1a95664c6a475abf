package models

// ConversationState represents the state of a conversation with a user
type ConversationState int

const (
	// Default is the initial state
	Default ConversationState = iota
	// AwaitBroadcastMessage is the state when an admin is typing a broadcast text
	AwaitBroadcastMessage
	// AwaitBroadcastConfirm is the state when an admin must confirm the broadcast
	AwaitBroadcastConfirm
	// AwaitTransferID is the state when a user is entering the new Telegram ID
	AwaitTransferID
	// AwaitRequestText is the state when a user is writing a request to the admins
	AwaitRequestText
	// AwaitPanelUsername is the state when an admin is entering a username to create
	AwaitPanelUsername
	// AwaitLinkTelegramID is the state when an admin is entering a Telegram ID to link
	AwaitLinkTelegramID
	// AwaitBanReason is the state when an admin is entering the reason of a ban
	AwaitBanReason
)

// String returns the state name for logs
func (s ConversationState) String() string {
	switch s {
	case Default:
		return "default"
	case AwaitBroadcastMessage:
		return "await_broadcast_message"
	case AwaitBroadcastConfirm:
		return "await_broadcast_confirm"
	case AwaitTransferID:
		return "await_transfer_id"
	case AwaitRequestText:
		return "await_request_text"
	case AwaitPanelUsername:
		return "await_panel_username"
	case AwaitLinkTelegramID:
		return "await_link_telegram_id"
	case AwaitBanReason:
		return "await_ban_reason"
	default:
		return "unknown"
	}
}

// UserState represents the state of a user's conversation
type UserState struct {
	State   ConversationState
	Payload *string
}
