package storage

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"marzban-tg-admin/internal/constants"
	apperrors "marzban-tg-admin/internal/errors"
	"marzban-tg-admin/internal/models"
)

const userColumns = `marzban_username, telegram_id, is_admin, is_moderator, is_banned, ban_reason, created_at`

// GetTelegramID returns the Telegram ID linked to a Marzban username, or nil
func (s *Store) GetTelegramID(ctx context.Context, marzbanUsername string) (*int64, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var id *int64
	found, err := s.get(ctx, db, &id, `SELECT telegram_id FROM users WHERE marzban_username = ?`, marzbanUsername)
	if err != nil || !found {
		return nil, err
	}
	return id, nil
}

// GetMarzbanUsername returns the Marzban username linked to a Telegram ID, or nil
func (s *Store) GetMarzbanUsername(ctx context.Context, telegramID int64) (*string, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var username string
	found, err := s.get(ctx, db, &username, `SELECT marzban_username FROM users WHERE telegram_id = ?`, telegramID)
	if err != nil || !found {
		return nil, err
	}
	return &username, nil
}

// UpdateTelegramID links a Marzban username to a Telegram ID, creating the row if
// needed. Roles and the creation time of an existing row are kept. If the Telegram
// ID was linked to another username, that row is left pending (no Telegram ID).
func (s *Store) UpdateTelegramID(ctx context.Context, marzbanUsername string, telegramID int64) error {
	if err := validateUsername(marzbanUsername); err != nil {
		return err
	}

	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.Execute(ctx, tx,
			`UPDATE users SET telegram_id = NULL WHERE telegram_id = ? AND marzban_username <> ?`,
			telegramID, marzbanUsername,
		); err != nil {
			return err
		}

		_, err := s.Execute(ctx, tx, `
			INSERT INTO users (marzban_username, telegram_id)
			VALUES (?, ?)
			ON CONFLICT(marzban_username) DO UPDATE SET telegram_id = excluded.telegram_id`,
			marzbanUsername, telegramID,
		)
		return err
	})
}

// AddPendingUser records a Marzban username that has no Telegram ID yet.
// It does nothing if the username is already known.
func (s *Store) AddPendingUser(ctx context.Context, marzbanUsername string) error {
	if err := validateUsername(marzbanUsername); err != nil {
		return err
	}

	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := s.Execute(ctx, tx,
			`INSERT INTO users (marzban_username) VALUES (?) ON CONFLICT(marzban_username) DO NOTHING`,
			marzbanUsername,
		)
		return err
	})
}

// RemoveUser deletes the local row of a Marzban username
func (s *Store) RemoveUser(ctx context.Context, marzbanUsername string) error {
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := s.Execute(ctx, tx, `DELETE FROM users WHERE marzban_username = ?`, marzbanUsername)
		return err
	})
}

// IsAdmin reports whether the Telegram ID belongs to an admin
func (s *Store) IsAdmin(ctx context.Context, telegramID int64) (bool, error) {
	return s.flag(ctx, "is_admin", telegramID)
}

// IsModerator reports whether the Telegram ID belongs to a moderator
func (s *Store) IsModerator(ctx context.Context, telegramID int64) (bool, error) {
	return s.flag(ctx, "is_moderator", telegramID)
}

// IsBanned reports whether the Telegram ID is banned
func (s *Store) IsBanned(ctx context.Context, telegramID int64) (bool, error) {
	return s.flag(ctx, "is_banned", telegramID)
}

// flag reads one boolean column; unknown users yield false
func (s *Store) flag(ctx context.Context, column string, telegramID int64) (bool, error) {
	db, err := s.handle()
	if err != nil {
		return false, err
	}

	var value bool
	found, err := s.get(ctx, db, &value, `SELECT `+column+` FROM users WHERE telegram_id = ?`, telegramID)
	if err != nil || !found {
		return false, err
	}
	return value, nil
}

// IsTelegramIDExists reports whether any row is linked to the Telegram ID
func (s *Store) IsTelegramIDExists(ctx context.Context, telegramID int64) (bool, error) {
	db, err := s.handle()
	if err != nil {
		return false, err
	}

	var one int
	return s.get(ctx, db, &one, `SELECT 1 FROM users WHERE telegram_id = ?`, telegramID)
}

// SetAdmin grants or revokes admin rights
func (s *Store) SetAdmin(ctx context.Context, telegramID int64, isAdmin bool) error {
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := s.Execute(ctx, tx, `UPDATE users SET is_admin = ? WHERE telegram_id = ?`, isAdmin, telegramID)
		return err
	})
}

// SetModerator grants or revokes moderator rights
func (s *Store) SetModerator(ctx context.Context, telegramID int64, isModerator bool) error {
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := s.Execute(ctx, tx, `UPDATE users SET is_moderator = ? WHERE telegram_id = ?`, isModerator, telegramID)
		return err
	})
}

// BanUser marks the user as banned with the given reason. Banning an already
// banned user only replaces the reason.
func (s *Store) BanUser(ctx context.Context, telegramID int64, reason string) error {
	var banReason *string
	if reason = strings.TrimSpace(reason); reason != "" {
		banReason = &reason
	}

	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := s.Execute(ctx, tx,
			`UPDATE users SET is_banned = TRUE, ban_reason = ? WHERE telegram_id = ?`,
			banReason, telegramID,
		)
		return err
	})
}

// UnbanUser clears the ban flag and reason
func (s *Store) UnbanUser(ctx context.Context, telegramID int64) error {
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := s.Execute(ctx, tx,
			`UPDATE users SET is_banned = FALSE, ban_reason = NULL WHERE telegram_id = ?`,
			telegramID,
		)
		return err
	})
}

// GetUser returns the user linked to the Telegram ID, or nil
func (s *Store) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var user models.User
	found, err := s.get(ctx, db, &user, `SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername returns the local row of a Marzban username, or nil
func (s *Store) GetUserByUsername(ctx context.Context, marzbanUsername string) (*models.User, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var user models.User
	found, err := s.get(ctx, db, &user, `SELECT `+userColumns+` FROM users WHERE marzban_username = ?`, marzbanUsername)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// GetAllUsers returns every username/Telegram ID pair
func (s *Store) GetAllUsers(ctx context.Context) ([]models.UserLink, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var links []models.UserLink
	if err := s.selectRows(ctx, db, &links, `SELECT marzban_username, telegram_id FROM users ORDER BY created_at, marzban_username`); err != nil {
		return nil, err
	}
	return links, nil
}

// ListUsers returns every linked user with its flags
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var users []models.User
	if err := s.selectRows(ctx, db, &users, `
		SELECT `+userColumns+`
		FROM users
		WHERE telegram_id IS NOT NULL
		ORDER BY created_at, marzban_username`,
	); err != nil {
		return nil, err
	}
	return users, nil
}

// GetActiveUsers returns linked users that are not banned
func (s *Store) GetActiveUsers(ctx context.Context) ([]models.UserLink, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var links []models.UserLink
	if err := s.selectRows(ctx, db, &links, `
		SELECT marzban_username, telegram_id
		FROM users
		WHERE is_banned = FALSE AND telegram_id IS NOT NULL
		ORDER BY created_at, marzban_username`,
	); err != nil {
		return nil, err
	}
	return links, nil
}

// GetActiveUsersCount returns the number of linked users that are not banned
func (s *Store) GetActiveUsersCount(ctx context.Context) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	var count int
	if _, err := s.get(ctx, db, &count, `SELECT COUNT(*) FROM users WHERE is_banned = FALSE AND telegram_id IS NOT NULL`); err != nil {
		return 0, err
	}
	return count, nil
}

func validateUsername(username string) error {
	if l := len(username); l < constants.MinUsernameLength || l > constants.MaxUsernameLength {
		return &apperrors.ValidationError{Field: "marzban_username", Message: "length out of range"}
	}
	return nil
}
