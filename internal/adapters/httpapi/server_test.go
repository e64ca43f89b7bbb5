package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"fieldledger/internal/adapters/cashbook"
	"fieldledger/internal/blob"
	"fieldledger/internal/core"
	"fieldledger/internal/infra/metrics"
	"fieldledger/internal/readmodel"
	"fieldledger/pkg/domain"
)

type envelope struct {
	Data       json.RawMessage `json:"data"`
	Violations []violationBody `json:"violations"`
	Error      *errorBody      `json:"error"`
}

type testAPI struct {
	t      *testing.T
	svc    *core.Service
	router *gin.Engine
}

func newTestAPI(t *testing.T, opts ...Option) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := core.NewInMemoryService(nil)
	return &testAPI{t: t, svc: svc, router: New(svc, opts...).Router()}
}

func (a *testAPI) do(method, path string, body any) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			a.t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return out
}

func (a *testAPI) purchase(name, unit, qty, cost string) domain.Supply {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/v1/supplies", map[string]any{
		"name": name, "category": "fertilizer", "unit": unit, "quantity": qty, "cost": cost,
	})
	if code != http.StatusCreated {
		a.t.Fatalf("purchase: status %d error %+v", code, env.Error)
	}
	return decodeData[domain.Supply](a.t, env)
}

func (a *testAPI) planting() domain.Planting {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/v1/plantings", map[string]any{"name": "north corn", "crop": "corn"})
	if code != http.StatusCreated {
		a.t.Fatalf("planting: status %d error %+v", code, env.Error)
	}
	return decodeData[domain.Planting](a.t, env)
}

func TestApplicationLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	urea := api.purchase("urea", "KG", "200", "400")
	field := api.planting()

	code, env := api.do(http.MethodPost, "/api/v1/applications", map[string]any{
		"target":      map[string]string{"kind": "planting", "id": field.ID},
		"product_ids": []string{urea.ID},
		"quantity":    "50",
		"unit":        "kg",
	})
	if code != http.StatusCreated {
		t.Fatalf("schedule: status %d error %+v", code, env.Error)
	}
	app := decodeData[domain.ScheduledApplication](t, env)

	code, env = api.do(http.MethodGet, "/api/v1/supplies/"+urea.ID+"/available", nil)
	if code != http.StatusOK {
		t.Fatalf("available: status %d", code)
	}
	avail := decodeData[map[string]any](t, env)
	if avail["available"] != "150" {
		t.Fatalf("expected 150 available, got %v", avail["available"])
	}

	code, env = api.do(http.MethodPost, "/api/v1/applications/"+app.ID+"/complete", nil)
	if code != http.StatusOK {
		t.Fatalf("complete: status %d error %+v", code, env.Error)
	}
	done := decodeData[domain.ScheduledApplication](t, env)
	if done.Status != domain.StatusCompleted || done.ExpenseTransactionID == "" {
		t.Fatalf("unexpected completed app %+v", done)
	}

	code, env = api.do(http.MethodPost, "/api/v1/applications/"+app.ID+"/complete", nil)
	if code != http.StatusConflict || env.Error == nil || env.Error.Kind != string(domain.KindInvalidTransition) {
		t.Fatalf("second complete: status %d error %+v", code, env.Error)
	}

	code, env = api.do(http.MethodGet, "/api/v1/applications?status=completed", nil)
	if code != http.StatusOK || len(decodeData[[]domain.ScheduledApplication](t, env)) != 1 {
		t.Fatalf("expected one completed application")
	}

	code, env = api.do(http.MethodPost, "/api/v1/applications/"+app.ID+"/refund", nil)
	if code != http.StatusOK || decodeData[domain.ScheduledApplication](t, env).Status != domain.StatusRefunded {
		t.Fatalf("refund: status %d error %+v", code, env.Error)
	}

	code, env = api.do(http.MethodGet, "/api/v1/cash/summary", nil)
	if code != http.StatusOK {
		t.Fatalf("summary: status %d", code)
	}
	sum := decodeData[map[string]any](t, env)
	if sum["balance"] != "-400" {
		t.Fatalf("expected balance -400 after refund, got %v", sum["balance"])
	}
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	urea := api.purchase("urea", "kg", "10", "20")
	field := api.planting()

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   domain.ErrorKind
	}{
		{name: "missing supply", method: http.MethodGet, path: "/api/v1/supplies/nope", status: http.StatusNotFound},
		{name: "missing app", method: http.MethodPost, path: "/api/v1/applications/nope/complete", status: http.StatusNotFound},
		{name: "missing entry", method: http.MethodDelete, path: "/api/v1/plantings/" + field.ID + "/consumptions/nope", status: http.StatusNotFound},
		{name: "malformed json", method: http.MethodPost, path: "/api/v1/supplies", body: "{", status: http.StatusBadRequest, kind: domain.KindValidation},
		{name: "bad unit tag", method: http.MethodPost, path: "/api/v1/supplies", body: map[string]any{"name": "x", "unit": "bushel", "quantity": "1"}, status: http.StatusUnprocessableEntity, kind: domain.KindValidation},
		{name: "service validation", method: http.MethodPost, path: "/api/v1/supplies", body: map[string]any{"name": "x", "unit": "kg", "quantity": "0"}, status: http.StatusUnprocessableEntity, kind: domain.KindValidation},
		{name: "insufficient stock", method: http.MethodPost, path: "/api/v1/applications", body: map[string]any{
			"target": map[string]string{"kind": "planting", "id": field.ID}, "product_ids": []string{urea.ID}, "quantity": "11", "unit": "kg",
		}, status: http.StatusUnprocessableEntity, kind: domain.KindInsufficientStock},
		{name: "bad period", method: http.MethodGet, path: "/api/v1/cash?from=yesterday", status: http.StatusUnprocessableEntity, kind: domain.KindValidation},
		{name: "export off", method: http.MethodPost, path: "/api/v1/cash/export", status: http.StatusNotImplemented, kind: domain.KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := api.do(tc.method, tc.path, tc.body)
			if code != tc.status {
				t.Fatalf("expected %d, got %d (%+v)", tc.status, code, env.Error)
			}
			if env.Error == nil {
				t.Fatalf("expected error body")
			}
			if tc.kind != "" && env.Error.Kind != string(tc.kind) {
				t.Fatalf("expected kind %s, got %s", tc.kind, env.Error.Kind)
			}
		})
	}
}

func TestValidationFieldsUseJSONNames(t *testing.T) {
	api := newTestAPI(t)
	code, env := api.do(http.MethodPost, "/api/v1/cash", map[string]any{"amount": "5", "type": "gift"})
	if code != http.StatusUnprocessableEntity || env.Error == nil {
		t.Fatalf("expected 422, got %d", code)
	}
	if env.Error.Fields["description"] != "required" || env.Error.Fields["type"] != "cash_type" {
		t.Fatalf("unexpected fields %+v", env.Error.Fields)
	}
}

func TestStatusForConflictAndRules(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.TransactionConflictError{Attempts: 3, Err: errors.New("busy")}, http.StatusServiceUnavailable},
		{domain.RuleViolationError{}, http.StatusConflict},
		{domain.InvalidTransitionError{}, http.StatusConflict},
		{domain.ErrNotFound{Entity: domain.EntitySupply, ID: "x"}, http.StatusNotFound},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got, _ := statusFor(tc.err); got != tc.status {
			t.Fatalf("%T: expected %d, got %d", tc.err, tc.status, got)
		}
	}
}

func TestSupplyQueriesUseReadModel(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	cache, err := readmodel.NewSupplyCache(svc.Store(), 16)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	t.Cleanup(cache.Close)
	gin.SetMode(gin.TestMode)
	api := &testAPI{t: t, svc: svc, router: New(svc, WithSupplyCache(cache)).Router()}
	api.purchase("urea", "kg", "200", "400")
	api.purchase("potash", "kg", "5", "40")

	code, env := api.do(http.MethodGet, "/api/v1/supplies?low_stock=10", nil)
	if code != http.StatusOK {
		t.Fatalf("low stock: %d", code)
	}
	low := decodeData[[]domain.Supply](t, env)
	if len(low) != 1 || low[0].Name != "potash" {
		t.Fatalf("unexpected low stock %+v", low)
	}

	code, env = api.do(http.MethodGet, "/api/v1/supplies?q=UR", nil)
	if code != http.StatusOK {
		t.Fatalf("search: %d", code)
	}
	if found := decodeData[[]domain.Supply](t, env); len(found) != 1 || found[0].Name != "urea" {
		t.Fatalf("unexpected search %+v", found)
	}
	if cache.Stats().Hits+cache.Stats().Misses == 0 {
		t.Fatalf("expected the read model to be consulted")
	}
}

func TestCashExportAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg, "")
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	gin.SetMode(gin.TestMode)
	svc := core.NewInMemoryService(nil, core.WithMetricsRecorder(rec))
	store := blob.NewMemory()
	api := &testAPI{t: t, svc: svc, router: New(svc,
		WithExporter(cashbook.NewExporter(svc, store)),
		WithMetricsHandler(metrics.Handler(reg)),
	).Router()}
	api.purchase("urea", "kg", "10", "20")

	code, env := api.do(http.MethodPost, "/api/v1/cash/export?from=2000-01-01", nil)
	if code != http.StatusCreated {
		t.Fatalf("export: status %d error %+v", code, env.Error)
	}
	info := decodeData[blob.Info](t, env)
	if !strings.HasPrefix(info.Key, "cashbook/2000-01-01_now-") {
		t.Fatalf("unexpected export key %s", info.Key)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "fieldledger_ledger_operations_total") {
		t.Fatalf("metrics endpoint missing ledger counters: %d", w.Code)
	}
}
