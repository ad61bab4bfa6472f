package audit

import (
	"context"
	"errors"
	"maps"
	"time"
)

var ErrInvalidEntry = errors.New("audit: invalid entry")

// Entry is the immutable record of one committed order transition.
type Entry struct {
	ID        string
	ActorID   string
	Action    string
	OrderID   string
	Before    string
	After     string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Appender writes entries inside the atomic unit of a transition. There is no update or delete.
type Appender interface {
	Append(ctx context.Context, e Entry) error
}

// Reader is the read-only query side used by reporting.
type Reader interface {
	ListByOrder(ctx context.Context, orderID string) ([]Entry, error)
}

func (e Entry) Clone() Entry {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}
