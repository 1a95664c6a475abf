package helpers

import (
	"fmt"

	"marzban-tg-admin/internal/constants"
)

var trafficUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatTraffic formats a byte count with two decimals in the largest unit that keeps
// the value below 1024, capped at TB
func FormatTraffic(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}

	size := float64(bytes)
	for _, unit := range trafficUnits[:len(trafficUnits)-1] {
		if size < constants.BytesInKB {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= constants.BytesInKB
	}
	return fmt.Sprintf("%.2f %s", size, trafficUnits[len(trafficUnits)-1])
}

// FormatDataLimit formats a panel data limit. Nil and zero mean unlimited.
func FormatDataLimit(limit *int64) string {
	if limit == nil || *limit == 0 {
		return constants.UnlimitedSymbol
	}
	return FormatTraffic(*limit)
}

// UsagePercent returns the share of the data limit already used, or -1 when unlimited
func UsagePercent(used int64, limit *int64) float64 {
	if limit == nil || *limit <= 0 {
		return -1
	}
	return float64(used) * 100 / float64(*limit)
}

// FormatUsage formats "used / limit" with the percentage when a limit is set
func FormatUsage(used int64, limit *int64) string {
	pct := UsagePercent(used, limit)
	if pct < 0 {
		return fmt.Sprintf("%s / %s", FormatTraffic(used), constants.UnlimitedSymbol)
	}
	return fmt.Sprintf("%s / %s (%.0f%%)", FormatTraffic(used), FormatDataLimit(limit), pct)
}
