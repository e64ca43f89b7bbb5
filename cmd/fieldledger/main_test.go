package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"fieldledger/internal/blob"
	"fieldledger/internal/config"
	"fieldledger/internal/core"
	"fieldledger/internal/infra/logging"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	mr := miniredis.RunT(t)
	return config.Config{
		Server:   config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second, GinMode: "test"},
		Ledger:   config.LedgerConfig{Policy: core.ReservationRetain},
		Storage:  core.StorageConfig{Driver: core.StorageMemory, Account: "north"},
		Blob:     blob.Config{Driver: blob.DriverMemory},
		Redis:    config.RedisConfig{Addr: mr.Addr(), LockKey: "fieldledger:ledger", LockTTL: time.Second},
		Tracing:  config.TracingConfig{Enabled: true, Service: "fieldledger-test"},
		CacheLRU: 8,
	}
}

func serve(t *testing.T, a *app, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestNewAppWiresEndpoints(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(context.Background(), cfg, logging.Wrap(nil), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { a.close(context.Background()) })

	if a.svc.Policy() != core.ReservationRetain {
		t.Fatalf("policy not applied: %s", a.svc.Policy())
	}
	if rec := serve(t, a, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	rec := serve(t, a, http.MethodPost, "/api/v1/supplies", `{"name":"urea","unit":"kg","quantity":"10","cost":"25"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("purchase: %d %s", rec.Code, rec.Body.String())
	}
	rec = serve(t, a, http.MethodPost, "/api/v1/cash/export", "")
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"key":"north/cashbook/`) {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}
	rec = serve(t, a, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `operation="record_purchase"`) {
		t.Fatalf("metrics missing purchase: %d", rec.Code)
	}
	rec = serve(t, a, http.MethodGet, "/debug/vars", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"failures_by_kind"`) {
		t.Fatalf("expvar: %d", rec.Code)
	}
}

func TestNewAppFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"
	if _, err := newApp(context.Background(), cfg, logging.Wrap(nil), prometheus.NewRegistry()); err == nil {
		t.Fatalf("expected redis ping failure")
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logging.Wrap(nil)) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
}
