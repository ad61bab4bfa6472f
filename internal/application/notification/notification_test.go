package notification

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	domnotif "github.com/Zhima-Mochi/minishop-orders/internal/domain/notification"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"

	"github.com/shopspring/decimal"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("n-%d", s.n)
}

type directory struct {
	owner    string
	admins   []string
	channels map[string][]domnotif.Channel
	err      error
}

func (d directory) StoreStaff(context.Context, string) (string, []string, error) {
	return d.owner, d.admins, d.err
}

func (d directory) Channels(_ context.Context, id string) []domnotif.Channel {
	if chs, ok := d.channels[id]; ok {
		return chs
	}
	return []domnotif.Channel{domnotif.ChannelMessenger}
}

type call struct {
	channel   domnotif.Channel
	recipient string
	typ       domnotif.Type
}

// scriptedSender replays results per recipient and then keeps returning the last one.
type scriptedSender struct {
	mu      sync.Mutex
	script  map[string][]domnotif.DeliveryResult
	calls   []call
	perUser map[string]int
}

func newScriptedSender(script map[string][]domnotif.DeliveryResult) *scriptedSender {
	return &scriptedSender{script: script, perUser: make(map[string]int)}
}

func (s *scriptedSender) Send(_ context.Context, ch domnotif.Channel, r domnotif.Recipient, msg domnotif.Message) domnotif.DeliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{ch, r.ID, msg.Type})
	n := s.perUser[r.ID]
	s.perUser[r.ID]++
	steps, ok := s.script[r.ID]
	if !ok || len(steps) == 0 {
		return domnotif.Delivered()
	}
	if n >= len(steps) {
		n = len(steps) - 1
	}
	return steps[n]
}

func (s *scriptedSender) attempts(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perUser[id]
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (m *countingMetrics) Counter(name observability.MetricKey) observability.Counter {
	return countingCounter{m: m, name: string(name)}
}

func (m *countingMetrics) Histogram(observability.MetricKey) observability.Histogram {
	return observability.NopHistogram()
}

func (m *countingMetrics) get(key string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

type countingCounter struct {
	m    *countingMetrics
	name string
}

func (c countingCounter) Add(delta float64, labels ...observability.Label) {
	key := c.name
	for _, l := range labels {
		key += "," + l.Key + "=" + l.Value
	}
	c.m.mu.Lock()
	c.m.counts[key] += delta
	c.m.mu.Unlock()
}

func (c countingCounter) Bind(labels ...observability.Label) observability.BoundCounter {
	return boundCounter{c: c, labels: labels}
}

type boundCounter struct {
	c      countingCounter
	labels []observability.Label
}

func (b boundCounter) Add(delta float64) { b.c.Add(delta, b.labels...) }

type telemetry struct{ metrics *countingMetrics }

func (telemetry) Tracer() observability.Tracer     { return observability.NopTracer() }
func (telemetry) Logger() observability.Logger     { return observability.NopLogger() }
func (t telemetry) Metrics() observability.Metrics { return t.metrics }

func newTelemetry() telemetry {
	return telemetry{metrics: &countingMetrics{counts: make(map[string]float64)}}
}

var at = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func placed() domorder.PlacedEvent {
	return domorder.PlacedEvent{
		OrderID: "o-1", StoreID: "s-1", CustomerID: "c-1",
		ItemCount: 2, Total: decimal.RequireFromString("40"), Currency: "TWD", OccurredAt: at,
	}
}

func transition(to domorder.Status) domorder.TransitionCommittedEvent {
	return domorder.TransitionCommittedEvent{
		OrderID: "o-1", StoreID: "s-1", CustomerID: "c-1", ActorID: "admin-1",
		To: to, Reason: "blurry", Total: decimal.RequireFromString("40"), Currency: "TWD", OccurredAt: at,
	}
}

func recipientsOf(evt domnotif.Event) []string {
	var out []string
	for _, t := range evt.Targets {
		out = append(out, string(t.Recipient.Role)+":"+t.Recipient.ID+"@"+string(t.Channel))
	}
	return out
}

func TestPlannerAudience(t *testing.T) {
	t.Parallel()

	dir := directory{
		owner:  "owner-1",
		admins: []string{"admin-1", "owner-1"},
		channels: map[string][]domnotif.Channel{
			"c-1": {domnotif.ChannelLive, domnotif.ChannelMessenger},
		},
	}
	p := NewPlanner(dir, &seqIDs{})

	cases := []struct {
		name   string
		event  domoutbox.Event
		typ    domnotif.Type
		expect []string
	}{
		{
			name:  "placed reaches everyone once",
			event: placed(),
			typ:   domnotif.TypeOrderPlaced,
			expect: []string{
				"owner:owner-1@messenger",
				"admin:admin-1@messenger",
				"customer:c-1@live",
				"customer:c-1@messenger",
			},
		},
		{
			name: "proof goes to staff only",
			event: dompay.ProofSubmittedEvent{
				OrderID: "o-1", StoreID: "s-1", CustomerID: "c-1", Method: "bank_transfer",
				Amount: decimal.RequireFromString("40"), Currency: "TWD", OccurredAt: at,
			},
			typ:    domnotif.TypeProofSubmitted,
			expect: []string{"owner:owner-1@messenger", "admin:admin-1@messenger"},
		},
		{
			name:   "approval skips admins",
			event:  transition(domorder.StatusPaid),
			typ:    domnotif.TypePaymentApproved,
			expect: []string{"owner:owner-1@messenger", "customer:c-1@live", "customer:c-1@messenger"},
		},
		{
			name:   "rejection reaches the customer",
			event:  transition(domorder.StatusRejected),
			typ:    domnotif.TypePaymentRejected,
			expect: []string{"customer:c-1@live", "customer:c-1@messenger"},
		},
		{
			name:   "shipping reaches the customer",
			event:  transition(domorder.StatusShipped),
			typ:    domnotif.TypeOrderShipped,
			expect: []string{"customer:c-1@live", "customer:c-1@messenger"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evt, ok, err := p.Plan(context.Background(), tc.event)
			if err != nil || !ok {
				t.Fatalf("plan: ok=%v err=%v", ok, err)
			}
			if evt.Type != tc.typ {
				t.Fatalf("type = %s, want %s", evt.Type, tc.typ)
			}
			if got := recipientsOf(evt); !slices.Equal(got, tc.expect) {
				t.Fatalf("targets = %v, want %v", got, tc.expect)
			}
		})
	}
}

func TestPlannerIgnoresUnrelatedEvents(t *testing.T) {
	t.Parallel()

	p := NewPlanner(directory{owner: "owner-1"}, &seqIDs{})
	_, ok, err := p.Plan(context.Background(), transition(domorder.StatusPendingAdmin))
	if err != nil || ok {
		t.Fatalf("plan pending: ok=%v err=%v", ok, err)
	}
}

func TestPlannerDirectoryError(t *testing.T) {
	t.Parallel()

	p := NewPlanner(directory{err: errors.New("down")}, &seqIDs{})
	if _, _, err := p.Plan(context.Background(), placed()); err == nil {
		t.Fatal("expected directory error")
	}
}

func noSleep(sleeps *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
}

func TestRetryingSenderBacksOff(t *testing.T) {
	t.Parallel()

	transient := domnotif.Failed(errors.New("timeout"), true)
	next := newScriptedSender(map[string][]domnotif.DeliveryResult{
		"c-1": {transient, transient, domnotif.Delivered()},
	})
	rs := NewRetryingSender(next, domnotif.RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second})
	var sleeps []time.Duration
	rs.sleep = noSleep(&sleeps)

	res, attempts := rs.SendCounting(context.Background(), domnotif.ChannelMessenger, domnotif.Recipient{ID: "c-1"}, domnotif.Message{})
	if !res.OK || attempts != 3 {
		t.Fatalf("result=%+v attempts=%d", res, attempts)
	}
	if !slices.Equal(sleeps, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}) {
		t.Fatalf("sleeps = %v", sleeps)
	}
}

func TestRetryingSenderStopsOnPermanentFailure(t *testing.T) {
	t.Parallel()

	next := newScriptedSender(map[string][]domnotif.DeliveryResult{
		"c-1": {domnotif.Failed(errors.New("blocked"), false)},
	})
	rs := NewRetryingSender(next, domnotif.DefaultRetryPolicy())
	var sleeps []time.Duration
	rs.sleep = noSleep(&sleeps)

	res, attempts := rs.SendCounting(context.Background(), domnotif.ChannelMessenger, domnotif.Recipient{ID: "c-1"}, domnotif.Message{})
	if res.OK || attempts != 1 || len(sleeps) != 0 {
		t.Fatalf("result=%+v attempts=%d sleeps=%v", res, attempts, sleeps)
	}
}

func TestRetryingSenderHonoursContext(t *testing.T) {
	t.Parallel()

	next := newScriptedSender(map[string][]domnotif.DeliveryResult{
		"c-1": {domnotif.Failed(errors.New("timeout"), true)},
	})
	rs := NewRetryingSender(next, domnotif.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, attempts := rs.SendCounting(ctx, domnotif.ChannelMessenger, domnotif.Recipient{ID: "c-1"}, domnotif.Message{})
	if !errors.Is(res.Err, context.Canceled) || attempts != 1 {
		t.Fatalf("result=%+v attempts=%d", res, attempts)
	}
}

func TestDispatcherIsolatesFailures(t *testing.T) {
	t.Parallel()

	tel := newTelemetry()
	dir := directory{
		owner:  "owner-1",
		admins: []string{"admin-1"},
		channels: map[string][]domnotif.Channel{
			"c-1": {domnotif.ChannelLive, domnotif.ChannelMessenger},
		},
	}
	messenger := newScriptedSender(map[string][]domnotif.DeliveryResult{
		"admin-1": {domnotif.Failed(errors.New("unreachable"), true)},
	})
	live := newScriptedSender(map[string][]domnotif.DeliveryResult{
		"c-1": {domnotif.Skipped()},
	})

	d := NewDispatcher(NewPlanner(dir, &seqIDs{}), map[domnotif.Channel]domnotif.Sender{
		domnotif.ChannelMessenger: messenger,
		domnotif.ChannelLive:      live,
	}, domnotif.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}, tel)

	res, err := d.Execute(context.Background(), placed())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Delivered != 2 || res.Skipped != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := messenger.attempts("admin-1"); got != 3 {
		t.Fatalf("admin attempts = %d, want 3", got)
	}
	if got := live.attempts("c-1"); got != 1 {
		t.Fatalf("live attempts = %d, want 1", got)
	}
	key := "notification_delivery_failed_total,channel=messenger,event=order_placed"
	if got := tel.metrics.get(key); got != 1 {
		t.Fatalf("failure counter = %v, want 1", got)
	}
}

func TestDispatcherLiveFailureIsNotCounted(t *testing.T) {
	t.Parallel()

	tel := newTelemetry()
	dir := directory{channels: map[string][]domnotif.Channel{"c-1": {domnotif.ChannelLive}}}
	live := newScriptedSender(map[string][]domnotif.DeliveryResult{
		"c-1": {domnotif.Failed(errors.New("socket closed"), true)},
	})
	d := NewDispatcher(NewPlanner(dir, &seqIDs{}), map[domnotif.Channel]domnotif.Sender{
		domnotif.ChannelLive: live,
	}, domnotif.DefaultRetryPolicy(), tel)

	res, err := d.Execute(context.Background(), transition(domorder.StatusShipped))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Skipped != 1 || res.Failed != 0 || live.attempts("c-1") != 1 {
		t.Fatalf("result = %+v attempts=%d", res, live.attempts("c-1"))
	}
	if got := tel.metrics.get("notification_delivery_failed_total,channel=live,event=order_shipped"); got != 0 {
		t.Fatalf("live failure counted: %v", got)
	}
}

func TestDispatcherMissingChannel(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(NewPlanner(directory{}, &seqIDs{}), nil, domnotif.DefaultRetryPolicy(), nil)
	res, err := d.Execute(context.Background(), transition(domorder.StatusDelivered))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Delivered != 0 || res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}
}
