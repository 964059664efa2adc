// Package channels holds the registry of connected channel adapters that
// the scheduler and the send_message tool post outbound messages through.
package channels

import "context"

// Sender is the minimal contract an adapter (Slack, Discord, Telegram, the
// gateway's own WebSocket clients, …) must satisfy to receive scheduler
// actions and send_message deliveries.
type Sender interface {
	// Send posts a message to recipient, returning an error if the
	// adapter could not deliver it (recipient unknown, transport failure).
	Send(ctx context.Context, recipient, message string, priority string) error
}
