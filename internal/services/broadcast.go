package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"marzban-tg-admin/internal/constants"
	"marzban-tg-admin/internal/models"
)

// Sender delivers a text message to a Telegram chat
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// RecipientStore lists the users a broadcast goes to
type RecipientStore interface {
	GetActiveUsers(ctx context.Context) ([]models.UserLink, error)
}

// BroadcastResult summarizes a finished broadcast
type BroadcastResult struct {
	Total     int
	Delivered int
	Failed    []int64
}

// BroadcastService sends a message to every active linked user
type BroadcastService struct {
	store   RecipientStore
	sender  Sender
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewBroadcastService creates a broadcast service sending at most perSecond messages per second
func NewBroadcastService(store RecipientStore, sender Sender, perSecond float64, logger *logrus.Logger) *BroadcastService {
	if perSecond <= 0 {
		perSecond = constants.DefaultBroadcastRate
	}

	return &BroadcastService{
		store:   store,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger,
	}
}

// SetSender replaces the sender. The bot is created after the services, so the
// sender is wired in late.
func (s *BroadcastService) SetSender(sender Sender) {
	s.sender = sender
}

// Recipients returns the Telegram IDs of all active linked users
func (s *BroadcastService) Recipients(ctx context.Context) ([]int64, error) {
	links, err := s.store.GetActiveUsers(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(links))
	for _, link := range links {
		if link.TelegramID != nil {
			ids = append(ids, *link.TelegramID)
		}
	}
	return ids, nil
}

// Broadcast sends text to every recipient. A failed delivery does not stop the
// broadcast; a cancelled context does, and the partial result is returned with
// the context error.
func (s *BroadcastService) Broadcast(ctx context.Context, text string) (*BroadcastResult, error) {
	recipients, err := s.Recipients(ctx)
	if err != nil {
		return nil, err
	}

	result := &BroadcastResult{Total: len(recipients)}
	s.logger.Infof("Starting broadcast to %d users", result.Total)

	for _, id := range recipients {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Warnf("Broadcast interrupted after %d of %d messages: %v", result.Delivered, result.Total, err)
			return result, err
		}

		if err := s.sender.SendText(ctx, id, text); err != nil {
			s.logger.Errorf("Broadcast error for %d: %v", id, err)
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Delivered++
	}

	s.logger.Infof("Broadcast finished: %d/%d delivered", result.Delivered, result.Total)
	return result, nil
}
