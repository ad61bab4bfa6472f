package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domnotif "github.com/Zhima-Mochi/minishop-orders/internal/domain/notification"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
)

// Planner turns bus events into typed notification events addressed to
// (recipient, channel) targets.
type Planner struct {
	dir domnotif.Directory
	ids application.IDGenerator
}

func NewPlanner(dir domnotif.Directory, ids application.IDGenerator) *Planner {
	return &Planner{dir: dir, ids: ids}
}

type subject struct {
	orderID    string
	storeID    string
	customerID string
	at         time.Time
}

// Plan reports false when e does not notify anyone.
func (p *Planner) Plan(ctx context.Context, e domoutbox.Event) (domnotif.Event, bool, error) {
	payload, subj, ok := payloadFor(e)
	if !ok {
		return domnotif.Event{}, false, nil
	}
	targets, err := p.targets(ctx, payload.Type(), subj)
	if err != nil {
		return domnotif.Event{}, false, err
	}
	if len(targets) == 0 {
		return domnotif.Event{}, false, nil
	}
	evt, err := domnotif.NewEvent(p.ids.NewID(), subj.orderID, subj.storeID, payload, targets, subj.at)
	if err != nil {
		return domnotif.Event{}, false, err
	}
	return evt, true, nil
}

func payloadFor(e domoutbox.Event) (domnotif.Payload, subject, bool) {
	switch ev := e.(type) {
	case domorder.PlacedEvent:
		return domnotif.OrderPlaced{Total: ev.Total, Currency: ev.Currency, ItemCount: ev.ItemCount},
			subject{ev.OrderID, ev.StoreID, ev.CustomerID, ev.OccurredAt}, true
	case dompay.ProofSubmittedEvent:
		return domnotif.ProofSubmitted{Method: ev.Method, Amount: ev.Amount, Currency: ev.Currency, Replaced: ev.Replaced},
			subject{ev.OrderID, ev.StoreID, ev.CustomerID, ev.OccurredAt}, true
	case domorder.TransitionCommittedEvent:
		subj := subject{ev.OrderID, ev.StoreID, ev.CustomerID, ev.OccurredAt}
		switch ev.To {
		case domorder.StatusPaid:
			return domnotif.PaymentApproved{Total: ev.Total, Currency: ev.Currency}, subj, true
		case domorder.StatusRejected:
			return domnotif.PaymentRejected{Reason: ev.Reason}, subj, true
		case domorder.StatusShipped:
			return domnotif.OrderShipped{TrackingNumber: ev.TrackingNumber}, subj, true
		case domorder.StatusDelivered:
			return domnotif.OrderDelivered{}, subj, true
		case domorder.StatusCancelled:
			return domnotif.OrderCancelled{Reason: ev.Reason, StockRestored: ev.StockRestored}, subj, true
		}
	}
	return nil, subject{}, false
}

// targets crosses the audience of t with each recipient's channel set. A
// person holding two roles is notified once, under the first role listed.
func (p *Planner) targets(ctx context.Context, t domnotif.Type, subj subject) ([]domnotif.Target, error) {
	var recipients []domnotif.Recipient
	seen := make(map[string]struct{})
	add := func(id string, role domnotif.Role) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		recipients = append(recipients, domnotif.Recipient{ID: id, Role: role})
	}

	var (
		owner    string
		admins   []string
		resolved bool
	)
	for _, role := range domnotif.Audience(t) {
		if role == domnotif.RoleCustomer {
			add(subj.customerID, role)
			continue
		}
		if !resolved {
			var err error
			owner, admins, err = p.dir.StoreStaff(ctx, subj.storeID)
			if err != nil {
				return nil, fmt.Errorf("notification: store staff: %w", err)
			}
			resolved = true
		}
		switch role {
		case domnotif.RoleOwner:
			add(owner, role)
		case domnotif.RoleAdmin:
			for _, a := range admins {
				add(a, role)
			}
		}
	}

	var out []domnotif.Target
	for _, r := range recipients {
		for _, ch := range p.dir.Channels(ctx, r.ID) {
			out = append(out, domnotif.Target{Recipient: r, Channel: ch})
		}
	}
	return out, nil
}
