package validation

import (
	"fmt"
	"strconv"
	"strings"

	"marzban-tg-admin/internal/constants"
	apperrors "marzban-tg-admin/internal/errors"
)

// NewUserInput is the parsed "username [days] [GB]" line an admin sends to create a panel user
type NewUserInput struct {
	Username string
	// Days is 0 for no expiry
	Days int
	// DataLimitGB is nil when the panel default applies and 0 for unlimited
	DataLimitGB *int64
}

// ValidateUsername validates a Marzban username: 3 to 32 lowercase letters,
// digits and underscores, not starting or ending with an underscore
func ValidateUsername(username string) error {
	if len(username) < constants.MinUsernameLength || len(username) > constants.MaxUsernameLength {
		return &apperrors.ValidationError{
			Field:   "username",
			Message: fmt.Sprintf("must be between %d and %d characters", constants.MinUsernameLength, constants.MaxUsernameLength),
		}
	}

	for _, r := range username {
		if !isValidUsernameChar(r) {
			return &apperrors.ValidationError{Field: "username", Message: "can only contain a-z, 0-9 and underscores"}
		}
	}

	if username[0] == '_' || username[len(username)-1] == '_' {
		return &apperrors.ValidationError{Field: "username", Message: "cannot start or end with an underscore"}
	}

	return nil
}

// ParseTelegramID parses a positive numeric Telegram ID
func ParseTelegramID(text string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		return 0, &apperrors.ValidationError{Field: "telegram_id", Message: "must be a positive number"}
	}
	return id, nil
}

// ValidateDuration validates and parses a duration in days
func ValidateDuration(durationStr string) (int, error) {
	days, err := strconv.Atoi(durationStr)
	if err != nil {
		return 0, &apperrors.ValidationError{Field: "duration", Message: "must be a number"}
	}

	if days < 0 {
		return 0, &apperrors.ValidationError{Field: "duration", Message: "cannot be negative"}
	}

	if days > constants.MaxDurationDays {
		return 0, &apperrors.ValidationError{Field: "duration", Message: fmt.Sprintf("cannot exceed %d days", constants.MaxDurationDays)}
	}

	return days, nil
}

// ValidateRequestText trims a request to the admins and checks its length
func ValidateRequestText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &apperrors.ValidationError{Field: "request_text", Message: "must not be empty"}
	}
	if len([]rune(text)) > constants.MaxRequestTextLength {
		return "", &apperrors.ValidationError{
			Field:   "request_text",
			Message: fmt.Sprintf("must be at most %d characters", constants.MaxRequestTextLength),
		}
	}
	return text, nil
}

// ParseNewUserInput parses "username [days] [GB]"
func ParseNewUserInput(text string) (*NewUserInput, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 3 {
		return nil, &apperrors.ValidationError{Field: "input", Message: "expected: username [days] [GB]"}
	}

	input := &NewUserInput{Username: strings.ToLower(fields[0])}
	if err := ValidateUsername(input.Username); err != nil {
		return nil, err
	}

	if len(fields) > 1 {
		days, err := ValidateDuration(fields[1])
		if err != nil {
			return nil, err
		}
		input.Days = days
	}

	if len(fields) > 2 {
		gb, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil || gb < 0 {
			return nil, &apperrors.ValidationError{Field: "data_limit", Message: "must be a non-negative number of GB"}
		}
		input.DataLimitGB = &gb
	}

	return input, nil
}

// isValidUsernameChar checks if a character is valid for usernames
func isValidUsernameChar(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= '0' && r <= '9') ||
		r == '_'
}
