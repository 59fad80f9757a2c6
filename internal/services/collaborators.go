package services

import (
	"context"
	"time"
)

// Notifier delivers messages to a user over the chat platform.
// Implementations must honour ctx cancellation so dispatch can be bounded.
type Notifier interface {
	// SendPrompt asks the user for a status update.
	SendPrompt(ctx context.Context, externalID string) error

	// Acknowledge tells the user their reply was recorded.
	Acknowledge(ctx context.Context, externalID, correlationToken string) error
}

// DeliveryCache remembers recently handled inbound deliveries.
type DeliveryCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

// UserDefaults are applied to users created on first contact.
type UserDefaults struct {
	CadenceDays int
	Timezone    string
}

func utcNow() time.Time {
	return time.Now().UTC()
}
