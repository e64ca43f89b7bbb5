package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"fieldledger/internal/core"
	"fieldledger/pkg/domain"
)

func TestRecorderCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(reg, "test")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc := core.NewInMemoryService(nil, core.WithMetricsRecorder(rec))
	ctx := context.Background()
	sup, _, err := svc.RecordPurchase(ctx, core.PurchaseInput{Name: "Urea", Unit: domain.UnitKilogram, Quantity: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, _, err := svc.CompleteApplication(ctx, "missing"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := svc.AvailableStock(ctx, sup.ID); err != nil {
		t.Fatalf("available: %v", err)
	}
	rec.Observe(ctx, "complete_application", domain.TransactionConflictError{Attempts: 5}, time.Millisecond)

	cases := []struct {
		op, status string
		want       float64
	}{
		{"record_purchase", "success", 1},
		{"complete_application", "validation", 1},
		{"complete_application", "transaction_conflict", 1},
		{"available_stock", "success", 1},
		{"complete_application", "success", 0},
	}
	for _, tc := range cases {
		if got := testutil.ToFloat64(rec.total.WithLabelValues(tc.op, tc.status)); got != tc.want {
			t.Fatalf("%s/%s: expected %v, got %v", tc.op, tc.status, tc.want, got)
		}
	}
	if n := testutil.CollectAndCount(rec.duration); n != 3 {
		t.Fatalf("expected 3 histogram series, got %d", n)
	}
}

func TestRecorderReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewRecorder(reg, "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NewRecorder(reg, "")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	second.Observe(context.Background(), "edit_supply", nil, time.Millisecond)
	second.Observe(context.Background(), "", nil, time.Millisecond)
	if got := testutil.ToFloat64(first.total.WithLabelValues("edit_supply", "success")); got != 1 {
		t.Fatalf("expected shared counter, got %v", got)
	}
}

func TestHandlerExposesLedgerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(reg, "")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Observe(context.Background(), "delete_supply", domain.ErrNotFound{Entity: domain.EntitySupply, ID: "x"}, 2*time.Millisecond)

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	if !strings.Contains(body, `fieldledger_ledger_operations_total{operation="delete_supply",status="validation"} 1`) {
		t.Fatalf("expected counter in exposition, got:\n%s", body)
	}
}
