package models

import "time"

// Role is the display role derived from a user's flags
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moder"
	RoleUser      Role = "user"
)

// User is the local link between a Telegram account and a Marzban user
type User struct {
	MarzbanUsername string    `db:"marzban_username" json:"marzban_username"`
	TelegramID      *int64    `db:"telegram_id" json:"telegram_id,omitempty"`
	IsAdmin         bool      `db:"is_admin" json:"is_admin"`
	IsModerator     bool      `db:"is_moderator" json:"is_moderator"`
	IsBanned        bool      `db:"is_banned" json:"is_banned"`
	BanReason       *string   `db:"ban_reason" json:"ban_reason,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Role returns the highest role held by the user
func (u *User) Role() Role {
	switch {
	case u.IsAdmin:
		return RoleAdmin
	case u.IsModerator:
		return RoleModerator
	default:
		return RoleUser
	}
}

// IsStaff reports whether the user is an admin or a moderator
func (u *User) IsStaff() bool {
	return u.IsAdmin || u.IsModerator
}

// UserLink is a username/telegram id pair
type UserLink struct {
	MarzbanUsername string `db:"marzban_username"`
	TelegramID      *int64 `db:"telegram_id"`
}

// Stats holds aggregate counts over the local store
type Stats struct {
	TotalUsers      int `db:"total_users" json:"total_users"`
	ActiveStaff     int `db:"active_staff" json:"active_staff"`
	PendingRequests int `db:"pending_requests" json:"pending_requests"`
	BannedUsers     int `db:"banned_users" json:"banned_users"`
}
