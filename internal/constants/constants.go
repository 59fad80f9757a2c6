package constants

// Pagination
const (
	MinPageSize     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Roster defaults
const (
	DefaultCadenceDays = 7
	DefaultTimezone    = "Europe/London"
	MaxCadenceDays     = 365
)

// Request headers
const (
	HeaderCronSecret       = "X-Cron-Secret"
	HeaderAdminToken       = "X-Admin-Token"
	HeaderSlackRetryNum    = "X-Slack-Retry-Num"
	HeaderSlackRetryReason = "X-Slack-Retry-Reason"
)

// DeliveryKeyPrefix namespaces delivery cache entries in Redis.
const DeliveryKeyPrefix = "checkin:delivery"
