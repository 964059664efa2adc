package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/skynet-run/skynet/internal/channels"
)

// SendMessage registers send_message: delivers to another connected
// channel by looking up channel_senders[channel] and posting an outbound.
type SendMessage struct {
	registry *channels.Registry
}

func NewSendMessage(registry *channels.Registry) *SendMessage {
	return &SendMessage{registry: registry}
}

func (sm *SendMessage) Register(r *Registry) {
	r.Register("send_message", "Deliver a message to another connected channel", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"channel":   map[string]interface{}{"type": "string", "description": "Target channel name"},
			"recipient": map[string]interface{}{"type": "string", "description": "Recipient on that channel"},
			"message":   map[string]interface{}{"type": "string", "description": "Message body"},
			"priority":  map[string]interface{}{"type": "string", "description": "Delivery priority hint"},
		},
		"required": []string{"channel", "recipient", "message"},
	}, sm.send)
}

func (sm *SendMessage) send(ctx context.Context, args map[string]interface{}) *Result {
	channel, _ := args["channel"].(string)
	recipient, _ := args["recipient"].(string)
	message, _ := args["message"].(string)
	priority, _ := args["priority"].(string)
	if channel == "" || recipient == "" || message == "" {
		return ErrorResult("channel, recipient, and message are all required")
	}

	err := sm.registry.Send(ctx, channel, recipient, message, priority)
	if err != nil {
		if errors.Is(err, channels.ErrChannelOffline) {
			return ErrorResult(fmt.Sprintf("channel %q is not connected", channel))
		}
		return ErrorResult(fmt.Sprintf("failed to deliver message: %v", err))
	}
	return SilentResult(fmt.Sprintf("delivered to %s on %s", recipient, channel))
}
