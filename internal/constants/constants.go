package constants

const (
	// User validation constants
	MinUsernameLength = 3
	MaxUsernameLength = 32

	// Input limits
	MaxDurationDays      = 3650
	MaxRequestTextLength = 1000

	// Traffic constants
	BytesInKB = 1024
	BytesInGB = 1024 * 1024 * 1024

	// Default data limit for newly created panel users
	DefaultDataLimit = BytesInGB

	// Network constants
	DefaultTimeout       = 30 // seconds
	TokenRefreshInterval = 12 // hours

	// Panel listing
	DefaultUsersLimit = 100

	// Local store constants
	DefaultDBPath        = "marzban_bot.db"
	QueryRetryDelay      = 100 // milliseconds
	QueryAttempts        = 2
	BusyTimeout          = 5000 // milliseconds
	MaxLoggedQueryLength = 100

	// Broadcast constants
	DefaultBroadcastRate = 20 // messages per second

	// Cache constants
	CacheExpiration      = 30 // minutes
	CacheCleanupInterval = 10 // minutes

	// Pagination
	PageSize = 8

	// QR constants
	QRCodeSize = 256

	// Formatting constants
	TimestampFormat = "2006-01-02 15:04:05"
	ExpiryFormat    = "02.01.2006 15:04"
	UnlimitedSymbol = "∞"
)
