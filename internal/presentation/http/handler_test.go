package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	appaudit "github.com/Zhima-Mochi/minishop-orders/internal/application/audit"
	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-orders/internal/application/payment"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/authz"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/apperr"
)

type testServer struct {
	srv      *httptest.Server
	store    *memory.Store
	sessions *memory.SessionRegistry
	metrics  *countingMetrics
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := memory.NewStore(time.Second)
	grants := authz.NewStatic(authz.Grants{
		Owners: map[string]string{"s-1": "owner-1"},
		Admins: map[string][]string{"s-1": {"admin-1"}},
	})
	ids := id.NewUUIDGenerator()
	recorder := appaudit.NewRecorder(ids, store.AuditLog(), nil)
	machine := apporder.NewMachine(apporder.MachineDeps{
		UnitOfWork: store,
		Orders:     store.Orders(),
		Recorder:   recorder,
		Authorizer: grants,
	}, nil)
	create := apporder.NewCreateOrderUseCase(store.Orders(), ids, grants, nil, nil)
	orders := apporder.NewService(create, machine, store.Orders(), recorder, grants, nil)
	payments := apppayment.NewWorkflow(apppayment.NewSubmitProofUseCase(store, machine, grants, nil, nil), machine)

	sessions := memory.NewSessionRegistry()
	metrics := &countingMetrics{counts: make(map[string]float64)}
	h := NewHandler(orders, payments, sessions, opts, telemetry{metrics: metrics})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	stock, err := dominv.NewStock("p-1", "", 5, time.Now())
	if err != nil {
		t.Fatalf("new stock: %v", err)
	}
	if err := store.Inventory().Set(context.Background(), stock); err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	return &testServer{srv: srv, store: store, sessions: sessions, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path, actor string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if actor != "" {
		req.Header.Set(headerActorID, actor)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp, out
}

func (s *testServer) createOrder(t *testing.T, quantity int) string {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/orders", "cust-1", map[string]any{
		"store_id": "s-1",
		"currency": "usd",
		"items": []map[string]any{
			{"product_id": "p-1", "quantity": quantity, "unit_price": "10.50"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %v", resp.StatusCode, body)
	}
	return body["id"].(string)
}

func (s *testServer) submitProof(t *testing.T, orderID string) {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/orders/"+orderID+"/payment-proof", "cust-1", map[string]any{
		"method":         "bank_transfer",
		"transaction_id": "tx-1",
		"amount":         "21.00",
		"currency":       "USD",
		"image_urls":     []string{"https://blob.example/proof.png"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("proof status = %d, body %v", resp.StatusCode, body)
	}
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestCreateOrderReplaysIdempotencyKey(t *testing.T) {
	s := newTestServer(t, Options{})
	payload := map[string]any{
		"store_id": "s-1",
		"currency": "USD",
		"items":    []map[string]any{{"product_id": "p-1", "quantity": 2, "unit_price": "10.50"}},
	}

	first, body := s.do(t, http.MethodPost, "/orders", "cust-1", payload, headerIdempotencyKey, "k-1")
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %v", first.StatusCode, body)
	}
	if body["status"] != "PENDING_ADMIN" || body["total_amount"] != "21" {
		t.Fatalf("unexpected order %v", body)
	}
	if first.Header.Get(headerRequestID) == "" {
		t.Fatal("expected a generated request id")
	}

	second, replay := s.do(t, http.MethodPost, "/orders", "cust-1", payload, headerIdempotencyKey, "k-1")
	if second.StatusCode != http.StatusOK || second.Header.Get(headerReplayed) != "true" {
		t.Fatalf("replay status = %d, header %q", second.StatusCode, second.Header.Get(headerReplayed))
	}
	if replay["id"] != body["id"] {
		t.Fatalf("replay id = %v, want %v", replay["id"], body["id"])
	}
}

func TestRequestsWithoutActorAreRejected(t *testing.T) {
	s := newTestServer(t, Options{})
	resp, body := s.do(t, http.MethodGet, "/orders/o-1", "", nil)
	if resp.StatusCode != http.StatusBadRequest || errorCode(body) != string(apperr.CodeValidation) {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
}

func TestUnknownOrderIsNotFound(t *testing.T) {
	s := newTestServer(t, Options{})
	resp, body := s.do(t, http.MethodGet, "/orders/missing", "cust-1", nil)
	if resp.StatusCode != http.StatusNotFound || errorCode(body) != string(apperr.CodeNotFound) {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	if got := s.metrics.get("http_requests_total,method=GET,route=/orders/{id},status=404"); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestApproveWithoutProofReturnsUnchangedOrder(t *testing.T) {
	s := newTestServer(t, Options{})
	orderID := s.createOrder(t, 2)

	resp, body := s.do(t, http.MethodPost, "/orders/"+orderID+"/confirm-payment", "admin-1", nil)
	if resp.StatusCode != http.StatusBadRequest || errorCode(body) != string(apperr.CodeValidation) {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	order, _ := body["order"].(map[string]any)
	if order == nil || order["status"] != "PENDING_ADMIN" {
		t.Fatalf("expected the unchanged order in the error body, got %v", body["order"])
	}
}

func TestPaymentLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})
	orderID := s.createOrder(t, 2)
	s.submitProof(t, orderID)

	resp, body := s.do(t, http.MethodPost, "/orders/"+orderID+"/confirm-payment", "admin-1", map[string]any{"note": "matched statement"})
	if resp.StatusCode != http.StatusOK || body["status"] != "PAID" {
		t.Fatalf("approve status = %d, body %v", resp.StatusCode, body)
	}
	if body["stock_decremented"] != true {
		t.Fatalf("expected stock to be decremented, got %v", body)
	}
	stock, err := s.store.Inventory().Get(context.Background(), dominv.KeyOf("p-1", ""))
	if err != nil {
		t.Fatalf("stock: %v", err)
	}
	if stock.Quantity != 3 {
		t.Fatalf("stock = %d, want 3", stock.Quantity)
	}

	resp, body = s.do(t, http.MethodPost, "/orders/"+orderID+"/ship", "cust-1", map[string]any{"tracking_number": "TRK-1"})
	if resp.StatusCode != http.StatusForbidden || errorCode(body) != string(apperr.CodePermissionDenied) {
		t.Fatalf("customer ship status = %d, body %v", resp.StatusCode, body)
	}

	resp, body = s.do(t, http.MethodPost, "/orders/"+orderID+"/ship", "owner-1", map[string]any{"tracking_number": "TRK-1"})
	if resp.StatusCode != http.StatusOK || body["status"] != "SHIPPED" || body["tracking_number"] != "TRK-1" {
		t.Fatalf("ship status = %d, body %v", resp.StatusCode, body)
	}

	resp, body = s.do(t, http.MethodPost, "/orders/"+orderID+"/cancel", "owner-1", map[string]any{"reason": "late"})
	if resp.StatusCode != http.StatusConflict || errorCode(body) != string(apperr.CodeInvalidTransition) {
		t.Fatalf("cancel after ship status = %d, body %v", resp.StatusCode, body)
	}

	resp, body = s.do(t, http.MethodGet, "/orders/"+orderID+"/audit", "admin-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit status = %d, body %v", resp.StatusCode, body)
	}
	entries, _ := body["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	first := entries[0].(map[string]any)
	if first["before"] != "PENDING_ADMIN" || first["after"] != "PAID" || first["actor_id"] != "admin-1" {
		t.Fatalf("unexpected first entry %v", first)
	}
}

func TestApproveWithInsufficientStock(t *testing.T) {
	s := newTestServer(t, Options{})
	orderID := s.createOrder(t, 9)
	s.submitProof(t, orderID)

	resp, body := s.do(t, http.MethodPost, "/orders/"+orderID+"/confirm-payment", "admin-1", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity || errorCode(body) != string(apperr.CodeInsufficientStock) {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	order, _ := body["order"].(map[string]any)
	if order == nil || order["status"] != "PENDING_ADMIN" {
		t.Fatalf("expected the unchanged order, got %v", body["order"])
	}
}

func TestRejectRequiresReason(t *testing.T) {
	s := newTestServer(t, Options{})
	orderID := s.createOrder(t, 1)
	s.submitProof(t, orderID)

	resp, body := s.do(t, http.MethodPost, "/orders/"+orderID+"/reject", "admin-1", map[string]any{"reason": " "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	resp, body = s.do(t, http.MethodPost, "/orders/"+orderID+"/reject", "admin-1", map[string]any{"reason": "blurry receipt"})
	if resp.StatusCode != http.StatusOK || body["status"] != "REJECTED" || body["rejection_reason"] != "blurry receipt" {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
}

func TestLiveSessionHeartbeat(t *testing.T) {
	s := newTestServer(t, Options{SessionTTL: time.Minute})
	resp, _ := s.do(t, http.MethodPost, "/live-sessions", "cust-1", map[string]any{"session_id": "sess-1"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	active, err := s.sessions.Active(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0] != "sess-1" {
		t.Fatalf("active = %v", active)
	}

	resp, _ = s.do(t, http.MethodPost, "/live-sessions", "cust-1", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing session id status = %d", resp.StatusCode)
	}
}

func TestHealthReportsStoreFailure(t *testing.T) {
	s := newTestServer(t, Options{Health: func(context.Context) error { return errors.New("db down") }})
	resp, _ := s.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	s := newTestServer(t, Options{})
	resp, body := s.do(t, http.MethodPost, "/orders", "cust-1", map[string]any{"store": "s-1"})
	if resp.StatusCode != http.StatusBadRequest || errorCode(body) != string(apperr.CodeValidation) {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
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
