package services

import (
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"marzban-tg-admin/internal/constants"
	apperrors "marzban-tg-admin/internal/errors"
)

// QRService provides QR code generation functionality
type QRService struct {
	logger *logrus.Logger
}

// NewQRService creates a new QR code service
func NewQRService(logger *logrus.Logger) *QRService {
	return &QRService{
		logger: logger,
	}
}

// GenerateQR returns a PNG QR code for a subscription URL
func (s *QRService) GenerateQR(subscriptionURL string) ([]byte, error) {
	if subscriptionURL == "" {
		return nil, &apperrors.ValidationError{Field: "subscription_url", Message: "must not be empty"}
	}

	s.logger.Debugf("Generating QR code for %s", subscriptionURL)

	qr, err := qrcode.Encode(subscriptionURL, qrcode.Medium, constants.QRCodeSize)
	if err != nil {
		s.logger.Errorf("Failed to generate QR code: %v", err)
		return nil, err
	}

	return qr, nil
}
