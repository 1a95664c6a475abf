package permissions

import (
	"context"

	"github.com/sirupsen/logrus"
)

// AccessType represents the access level of a user
type AccessType int

const (
	// None represents a user without a linked subscription
	None AccessType = iota
	// Banned represents a user blocked by an admin
	Banned
	// User represents a user with a linked subscription
	User
	// Moderator represents moderator access
	Moderator
	// Admin represents admin access
	Admin
)

// String returns the access type name
func (a AccessType) String() string {
	switch a {
	case Banned:
		return "banned"
	case User:
		return "user"
	case Moderator:
		return "moderator"
	case Admin:
		return "admin"
	default:
		return "none"
	}
}

// IsStaff reports whether the access type opens the admin menu
func (a AccessType) IsStaff() bool {
	return a == Admin || a == Moderator
}

// RoleStore exposes the role flags kept in the local store
type RoleStore interface {
	IsAdmin(ctx context.Context, telegramID int64) (bool, error)
	IsModerator(ctx context.Context, telegramID int64) (bool, error)
	IsBanned(ctx context.Context, telegramID int64) (bool, error)
	IsTelegramIDExists(ctx context.Context, telegramID int64) (bool, error)
}

// PermissionController manages user permissions
type PermissionController struct {
	adminIDs map[int64]bool
	store    RoleStore
	logger   *logrus.Logger
}

// NewController creates a new permission controller
func NewController(adminIDs []int64, store RoleStore, logger *logrus.Logger) *PermissionController {
	adminIDMap := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		adminIDMap[id] = true
	}

	logger.Infof("Initialized permission controller with %d admins", len(adminIDs))

	return &PermissionController{
		adminIDs: adminIDMap,
		store:    store,
		logger:   logger,
	}
}

// GetAccessType determines the access type of a user. Configured admins cannot
// be banned. Store failures deny access rather than grant it.
func (p *PermissionController) GetAccessType(ctx context.Context, userID int64) AccessType {
	if p.IsConfiguredAdmin(userID) {
		return Admin
	}

	banned, err := p.store.IsBanned(ctx, userID)
	if err != nil {
		p.logger.Errorf("Failed to check ban of user %d: %v", userID, err)
		return None
	}
	if banned {
		return Banned
	}

	isAdmin, err := p.store.IsAdmin(ctx, userID)
	if err != nil {
		p.logger.Errorf("Failed to check admin flag of user %d: %v", userID, err)
		return None
	}
	if isAdmin {
		return Admin
	}

	isModerator, err := p.store.IsModerator(ctx, userID)
	if err != nil {
		p.logger.Errorf("Failed to check moderator flag of user %d: %v", userID, err)
		return None
	}
	if isModerator {
		return Moderator
	}

	linked, err := p.store.IsTelegramIDExists(ctx, userID)
	if err != nil {
		p.logger.Errorf("Failed to look up user %d: %v", userID, err)
		return None
	}
	if linked {
		return User
	}

	return None
}

// IsConfiguredAdmin checks if a user is listed in the configuration as admin
func (p *PermissionController) IsConfiguredAdmin(userID int64) bool {
	isAdmin := p.adminIDs[userID]
	p.logger.Debugf("Checking if user %d is a configured admin: %v", userID, isAdmin)
	return isAdmin
}

// AdminIDs returns the configured admin IDs
func (p *PermissionController) AdminIDs() []int64 {
	ids := make([]int64, 0, len(p.adminIDs))
	for id := range p.adminIDs {
		ids = append(ids, id)
	}
	return ids
}
