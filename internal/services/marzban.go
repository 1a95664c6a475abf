package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"marzban-tg-admin/internal/constants"
	apperrors "marzban-tg-admin/internal/errors"
	"marzban-tg-admin/internal/models"
	"marzban-tg-admin/internal/validation"
	"marzban-tg-admin/pkg/marzban"
)

var (
	// ErrNoSubscription is returned when a Telegram ID has no linked panel user
	ErrNoSubscription = errors.New("no subscription linked to this account")
	// ErrPanelUserMissing is returned when a linked panel user no longer exists on the panel
	ErrPanelUserMissing = errors.New("linked panel user not found")
)

// PanelAPI is the subset of the Marzban client used by the bot
type PanelAPI interface {
	GetUser(ctx context.Context, username string) (*models.PanelUser, error)
	CreateUser(ctx context.Context, fields map[string]interface{}) (*models.PanelUser, error)
	DeleteUser(ctx context.Context, username string) bool
	ListUsers(ctx context.Context, params marzban.ListUsersParams) (*models.UsersPage, error)
	GetSystemStats(ctx context.Context) (*models.SystemStats, error)
	GetUserUsage(ctx context.Context, username string) (*models.UserUsage, error)
	ResetUserTraffic(ctx context.Context, username string) (*models.PanelUser, error)
	RevokeUserSubscription(ctx context.Context, username string) (*models.PanelUser, error)
	GetNodes(ctx context.Context) ([]models.Node, error)
}

// LinkStore is the subset of the local store that maps Telegram IDs to panel users
type LinkStore interface {
	GetMarzbanUsername(ctx context.Context, telegramID int64) (*string, error)
	GetTelegramID(ctx context.Context, marzbanUsername string) (*int64, error)
	UpdateTelegramID(ctx context.Context, marzbanUsername string, telegramID int64) error
	AddPendingUser(ctx context.Context, marzbanUsername string) error
	RemoveUser(ctx context.Context, marzbanUsername string) error
}

// Subscription is a panel user together with its local link
type Subscription struct {
	User       *models.PanelUser
	TelegramID *int64
}

// MarzbanService combines the panel API with the local links
type MarzbanService struct {
	panel  PanelAPI
	store  LinkStore
	now    func() time.Time
	logger *logrus.Logger
}

// NewMarzbanService creates a new Marzban service
func NewMarzbanService(panel PanelAPI, store LinkStore, logger *logrus.Logger) *MarzbanService {
	return &MarzbanService{
		panel:  panel,
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// GetSubscription returns the panel user linked to a Telegram ID
func (s *MarzbanService) GetSubscription(ctx context.Context, telegramID int64) (*models.PanelUser, error) {
	username, err := s.store.GetMarzbanUsername(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if username == nil {
		return nil, ErrNoSubscription
	}

	user, err := s.panel.GetUser(ctx, *username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.logger.Warnf("User %s is linked to %d but missing on the panel", *username, telegramID)
		return nil, ErrPanelUserMissing
	}
	return user, nil
}

// TransferSubscription moves the subscription of one Telegram account to another
// and returns the panel username that was moved
func (s *MarzbanService) TransferSubscription(ctx context.Context, fromID, toID int64) (string, error) {
	if fromID == toID {
		return "", &apperrors.ValidationError{Field: "telegram_id", Message: "must differ from your own ID"}
	}

	username, err := s.store.GetMarzbanUsername(ctx, fromID)
	if err != nil {
		return "", err
	}
	if username == nil {
		return "", ErrNoSubscription
	}

	if err := s.store.UpdateTelegramID(ctx, *username, toID); err != nil {
		return "", err
	}

	s.logger.Infof("Subscription %s transferred from %d to %d", *username, fromID, toID)
	return *username, nil
}

// GetUserDetail returns a panel user with its local link, or nil when the panel does not know it
func (s *MarzbanService) GetUserDetail(ctx context.Context, username string) (*Subscription, error) {
	user, err := s.panel.GetUser(ctx, username)
	if err != nil || user == nil {
		return nil, err
	}

	telegramID, err := s.store.GetTelegramID(ctx, username)
	if err != nil {
		return nil, err
	}
	return &Subscription{User: user, TelegramID: telegramID}, nil
}

// LinkUser links an existing panel user to a Telegram ID
func (s *MarzbanService) LinkUser(ctx context.Context, username string, telegramID int64) error {
	user, err := s.panel.GetUser(ctx, username)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrPanelUserMissing
	}

	if err := s.store.UpdateTelegramID(ctx, username, telegramID); err != nil {
		return err
	}

	s.logger.Infof("Panel user %s linked to %d", username, telegramID)
	return nil
}

// CreateUser creates a panel user and records it locally as pending a Telegram link
func (s *MarzbanService) CreateUser(ctx context.Context, input validation.NewUserInput) (*models.PanelUser, error) {
	fields := map[string]interface{}{"username": input.Username}
	if input.Days > 0 {
		fields["expire"] = s.now().Add(time.Duration(input.Days) * 24 * time.Hour).Unix()
	}
	if input.DataLimitGB != nil {
		fields["data_limit"] = *input.DataLimitGB * constants.BytesInGB
	}

	user, err := s.panel.CreateUser(ctx, fields)
	if err != nil {
		return nil, err
	}

	if err := s.store.AddPendingUser(ctx, input.Username); err != nil {
		s.logger.Errorf("User %s created on the panel but not recorded locally: %v", input.Username, err)
		return user, err
	}
	return user, nil
}

// DeleteUser deletes a panel user and its local link. The local row is kept when
// the panel refuses the deletion.
func (s *MarzbanService) DeleteUser(ctx context.Context, username string) (bool, error) {
	if !s.panel.DeleteUser(ctx, username) {
		return false, nil
	}
	if err := s.store.RemoveUser(ctx, username); err != nil {
		return true, err
	}
	return true, nil
}

// ListUsers returns a page of panel users
func (s *MarzbanService) ListUsers(ctx context.Context, offset, limit int) (*models.UsersPage, error) {
	return s.panel.ListUsers(ctx, marzban.ListUsersParams{Offset: offset, Limit: limit})
}

// SystemStats returns the panel host statistics
func (s *MarzbanService) SystemStats(ctx context.Context) (*models.SystemStats, error) {
	return s.panel.GetSystemStats(ctx)
}

// UserUsage returns the per-node traffic of a panel user
func (s *MarzbanService) UserUsage(ctx context.Context, username string) (*models.UserUsage, error) {
	return s.panel.GetUserUsage(ctx, username)
}

// ResetTraffic resets the used traffic of a panel user
func (s *MarzbanService) ResetTraffic(ctx context.Context, username string) (*models.PanelUser, error) {
	return s.panel.ResetUserTraffic(ctx, username)
}

// RevokeSubscription regenerates the subscription of a panel user
func (s *MarzbanService) RevokeSubscription(ctx context.Context, username string) (*models.PanelUser, error) {
	return s.panel.RevokeUserSubscription(ctx, username)
}

// Nodes returns the panel nodes
func (s *MarzbanService) Nodes(ctx context.Context) ([]models.Node, error) {
	return s.panel.GetNodes(ctx)
}
