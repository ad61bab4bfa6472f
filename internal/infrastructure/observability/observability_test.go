package observability

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsExposesEveryKey(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics, err := RegisterMetrics(prometrics.New(reg, ""))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	tel := New(nil, nil, metrics)

	tel.Metrics().Counter(observability.MNotificationFailures).Add(1,
		observability.L("channel", "messenger"),
		observability.L("event", "payment_rejected"),
	)
	tel.Metrics().Histogram(observability.MUsecaseDuration).Observe(0.01, observability.L("use_case", "order.create"))

	if n := testutil.CollectAndCount(reg, string(observability.MNotificationFailures)); n != 1 {
		t.Fatalf("failure series = %d", n)
	}
	if n := testutil.CollectAndCount(reg, string(observability.MUsecaseDuration)); n != 1 {
		t.Fatalf("duration series = %d", n)
	}

	// Unknown keys fall back to no-ops.
	tel.Metrics().Counter("missing_total").Add(1)
	if tel.Logger() == nil || tel.Tracer() == nil {
		t.Fatal("nil ports were not replaced")
	}
}
