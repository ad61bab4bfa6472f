package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/notification"
)

const defaultInboxSize = 64

// LiveHub is the in-process live channel: messages reach recipients with an
// active session and wait in a bounded inbox until drained by the chat gateway.
type LiveHub struct {
	registry notification.SessionRegistry
	mu       sync.Mutex
	inbox    map[string][]notification.Message
	size     int
}

func NewLiveHub(registry notification.SessionRegistry) *LiveHub {
	return &LiveHub{
		registry: registry,
		inbox:    make(map[string][]notification.Message),
		size:     defaultInboxSize,
	}
}

func (h *LiveHub) Send(ctx context.Context, channel notification.Channel, recipient notification.Recipient, msg notification.Message) notification.DeliveryResult {
	if channel != notification.ChannelLive {
		return notification.Failed(fmt.Errorf("live hub: unsupported channel %q", channel), false)
	}
	sessions, err := h.registry.Active(ctx, recipient.ID)
	if err != nil {
		return notification.Failed(fmt.Errorf("live hub: sessions: %w", err), false)
	}
	if len(sessions) == 0 {
		return notification.Skipped()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	box := append(h.inbox[recipient.ID], msg)
	if len(box) > h.size {
		box = box[len(box)-h.size:]
	}
	h.inbox[recipient.ID] = box
	return notification.Delivered()
}

// Drain returns and clears the pending messages of recipientID.
func (h *LiveHub) Drain(recipientID string) []notification.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.inbox[recipientID]
	delete(h.inbox, recipientID)
	return out
}
