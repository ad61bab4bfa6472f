package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domaudit "github.com/Zhima-Mochi/minishop-orders/internal/domain/audit"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/keylock"
)

// Store keeps orders, stock and the audit trail in process memory. Atomic
// units stage their writes and apply them under one lock on commit.
type Store struct {
	mu          sync.RWMutex
	orders      map[string]*domorder.Order
	idempotency map[string]string
	stock       map[dominv.Key]*dominv.Stock
	audit       map[string][]domaudit.Entry

	stockLocks *keylock.Locker
	now        func() time.Time
}

// NewStore creates an empty store. lockWait bounds how long a unit waits for
// a stock row held by another unit.
func NewStore(lockWait time.Duration) *Store {
	return &Store{
		orders:      make(map[string]*domorder.Order),
		idempotency: make(map[string]string),
		stock:       make(map[dominv.Key]*dominv.Stock),
		audit:       make(map[string][]domaudit.Entry),
		stockLocks:  keylock.New(lockWait),
		now:         time.Now,
	}
}

func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

func (s *Store) Inventory() *InventoryRepository { return &InventoryRepository{s: s} }

func (s *Store) AuditLog() *AuditRepository { return &AuditRepository{s: s} }

// Atomically runs fn against a staged transaction and commits if fn succeeds.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	t := &tx{
		s:        s,
		staged:   make(map[string]*domorder.Order),
		expected: make(map[string]int64),
		deltas:   make(map[dominv.Key]int),
		held:     make(map[dominv.Key]struct{}),
	}
	defer t.releaseLocks()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.commit()
}

func idempotencyIndex(customerID, key string) string {
	return customerID + "\x00" + key
}

type tx struct {
	s        *Store
	staged   map[string]*domorder.Order
	expected map[string]int64
	deltas   map[dominv.Key]int
	entries  []domaudit.Entry
	held     map[dominv.Key]struct{}
	unlocks  []func()
}

func (t *tx) Orders() domorder.TxRepository { return txOrders{t} }
func (t *tx) Stock() dominv.TxRepository    { return txStock{t} }
func (t *tx) Audit() domaudit.Appender      { return txAudit{t} }

func (t *tx) releaseLocks() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
	t.unlocks = nil
}

// lockStock holds key until the unit ends so concurrent decrements of one
// row are serialized.
func (t *tx) lockStock(ctx context.Context, key dominv.Key) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	unlock, err := t.s.stockLocks.Lock(ctx, string(key))
	if err != nil {
		if errors.Is(err, keylock.ErrTimeout) {
			return application.ErrLockTimeout
		}
		return err
	}
	t.held[key] = struct{}{}
	t.unlocks = append(t.unlocks, unlock)
	return nil
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, want := range t.expected {
		cur, ok := s.orders[id]
		if !ok {
			return domorder.ErrNotFound
		}
		if cur.Version != want {
			return domorder.ErrConflict
		}
	}
	for key, delta := range t.deltas {
		st, ok := s.stock[key]
		if !ok {
			return dominv.ErrNotFound
		}
		if st.Quantity+delta < 0 {
			return dominv.ErrInsufficientStock
		}
	}

	now := s.now()
	for key, delta := range t.deltas {
		st := s.stock[key]
		var err error
		switch {
		case delta < 0:
			err = st.Deduct(-delta, now)
		case delta > 0:
			err = st.Restock(delta, now)
		}
		if err != nil {
			return err
		}
	}
	for _, e := range t.entries {
		s.audit[e.OrderID] = append(s.audit[e.OrderID], e.Clone())
	}
	for id, o := range t.staged {
		s.orders[id] = o.Clone()
	}
	return nil
}

type txOrders struct{ t *tx }

func (r txOrders) GetForUpdate(ctx context.Context, id string) (*domorder.Order, error) {
	_ = ctx
	if o, ok := r.t.staged[id]; ok {
		return o.Clone(), nil
	}
	return r.t.s.Orders().Get(ctx, id)
}

func (r txOrders) Update(ctx context.Context, o *domorder.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return errors.New("order repository: id is required")
	}
	if _, staged := r.t.staged[o.ID]; !staged {
		r.t.s.mu.RLock()
		cur, ok := r.t.s.orders[o.ID]
		var version int64
		if ok {
			version = cur.Version
		}
		r.t.s.mu.RUnlock()
		if !ok {
			return domorder.ErrNotFound
		}
		if version != o.Version {
			return domorder.ErrConflict
		}
		r.t.expected[o.ID] = o.Version
	} else if r.t.staged[o.ID].Version != o.Version {
		return domorder.ErrConflict
	}
	o.Version++
	r.t.staged[o.ID] = o.Clone()
	return nil
}

type txStock struct{ t *tx }

func (r txStock) Decrement(ctx context.Context, key dominv.Key, quantity int) error {
	if quantity <= 0 {
		return dominv.ErrInvalidQuantity
	}
	if err := r.t.lockStock(ctx, key); err != nil {
		return err
	}
	available, err := r.available(key)
	if err != nil {
		return err
	}
	if available < quantity {
		return dominv.ErrInsufficientStock
	}
	r.t.deltas[key] -= quantity
	return nil
}

func (r txStock) Increment(ctx context.Context, key dominv.Key, quantity int) error {
	if quantity <= 0 {
		return dominv.ErrInvalidQuantity
	}
	if err := r.t.lockStock(ctx, key); err != nil {
		return err
	}
	if _, err := r.available(key); err != nil {
		return err
	}
	r.t.deltas[key] += quantity
	return nil
}

func (r txStock) available(key dominv.Key) (int, error) {
	r.t.s.mu.RLock()
	st, ok := r.t.s.stock[key]
	var qty int
	if ok {
		qty = st.Quantity
	}
	r.t.s.mu.RUnlock()
	if !ok {
		return 0, dominv.ErrNotFound
	}
	return qty + r.t.deltas[key], nil
}

type txAudit struct{ t *tx }

func (a txAudit) Append(ctx context.Context, e domaudit.Entry) error {
	_ = ctx
	if e.ID == "" || e.OrderID == "" {
		return domaudit.ErrInvalidEntry
	}
	a.t.entries = append(a.t.entries, e.Clone())
	return nil
}
