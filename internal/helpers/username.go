package helpers

import (
	"fmt"
	"strings"
)

// FormatAccount renders a panel username with its Telegram ID, e.g. "@alice (123)".
// A nil username renders the ID alone.
func FormatAccount(username *string, telegramID int64) string {
	if username == nil || *username == "" {
		return fmt.Sprintf("%d", telegramID)
	}
	return fmt.Sprintf("@%s (%d)", *username, telegramID)
}

// Truncate shortens s to at most max runes, appending "..." when cut
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return strings.TrimSpace(string(r[:max-3])) + "..."
}
