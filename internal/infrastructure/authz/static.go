// Package authz is a static, configuration-backed stand-in for the external
// RBAC and directory collaborators.
package authz

import (
	"context"
	"slices"
	"strings"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/notification"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

// Grants is the configuration a Static is built from.
type Grants struct {
	// Owners maps store id to its owner.
	Owners map[string]string
	// Admins maps store id to its admins.
	Admins map[string][]string
	// DeliveryBots may confirm delivery in any store.
	DeliveryBots []string
	// DefaultChannels applies to recipients without an override.
	DefaultChannels []notification.Channel
	// ChannelOverrides maps recipient id to its channel set.
	ChannelOverrides map[string][]notification.Channel
}

var adminActions = []domorder.Action{
	domorder.ActionCreate,
	domorder.ActionView,
	domorder.ActionApprove,
	domorder.ActionReject,
	domorder.ActionShip,
	domorder.ActionDeliver,
	domorder.ActionCancel,
	domorder.ActionReadAudit,
}

// Customer actions are open to everyone; the engine checks order ownership itself.
var customerActions = []domorder.Action{
	domorder.ActionCancelOwn,
	domorder.ActionSubmitProof,
}

type Static struct {
	g Grants
}

func NewStatic(g Grants) *Static {
	return &Static{g: g}
}

func (s *Static) CanPerform(ctx context.Context, actorID string, action domorder.Action, storeID string) (bool, error) {
	_ = ctx
	if actorID == "" {
		return false, nil
	}
	if slices.Contains(customerActions, action) {
		return true, nil
	}
	if action == domorder.ActionDeliver && slices.Contains(s.g.DeliveryBots, actorID) {
		return true, nil
	}
	if s.g.Owners[storeID] == actorID {
		return true, nil
	}
	if slices.Contains(s.g.Admins[storeID], actorID) {
		return slices.Contains(adminActions, action), nil
	}
	return false, nil
}

func (s *Static) StoreStaff(ctx context.Context, storeID string) (string, []string, error) {
	_ = ctx
	return s.g.Owners[storeID], slices.Clone(s.g.Admins[storeID]), nil
}

func (s *Static) Channels(ctx context.Context, recipientID string) []notification.Channel {
	_ = ctx
	if chs, ok := s.g.ChannelOverrides[recipientID]; ok {
		return slices.Clone(chs)
	}
	return slices.Clone(s.g.DefaultChannels)
}

// ParseChannels turns "live,messenger" into a channel set, dropping blanks and duplicates.
func ParseChannels(list []string) []notification.Channel {
	out := make([]notification.Channel, 0, len(list))
	for _, raw := range list {
		ch := notification.Channel(strings.TrimSpace(strings.ToLower(raw)))
		if ch == "" || slices.Contains(out, ch) {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// SplitList parses the "a|b" values used for admin lists and channel overrides.
func SplitList(v string) []string {
	parts := strings.Split(v, "|")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
