package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fieldledger/internal/core"
	"fieldledger/pkg/domain"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	log := Wrap(zap.New(obs)).Named("ledger")

	log.Warn("supply remaining clamped to zero", "supply_id", "s-1", "lost", "30")
	log.Error("operation failed", "operation", "edit_supply", "error", errors.New("boom"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0]
	if first.Level != zapcore.WarnLevel || first.LoggerName != "ledger" {
		t.Fatalf("unexpected entry %+v", first)
	}
	if got := first.ContextMap()["supply_id"]; got != "s-1" {
		t.Fatalf("expected supply_id field, got %v", got)
	}
	if got := entries[1].ContextMap()["error"]; got != "boom" {
		t.Fatalf("expected error field, got %v", got)
	}
}

func TestLoggerServesLedgerService(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	log := Wrap(zap.New(obs))
	svc := core.NewInMemoryService(nil, core.WithLogger(log), core.WithAuditRecorder(core.LoggerAuditRecorder{Logger: log}))

	_, _, err := svc.Schedule(context.Background(), core.ApplicationInput{
		Target:     core.Target{Kind: domain.TargetPlanting, ID: "missing"},
		ProductIDs: []string{"nope"},
		Quantity:   decimal.NewFromInt(1),
		Unit:       domain.UnitKilogram,
	})
	if err == nil {
		t.Fatalf("expected schedule against missing target to fail")
	}
	if logs.FilterMessage("operation failed").Len() != 1 {
		t.Fatalf("expected failure logged, got %+v", logs.All())
	}
	audit := logs.FilterMessage("audit").All()
	if len(audit) != 1 || audit[0].ContextMap()["status"] != "error" {
		t.Fatalf("expected error audit entry, got %+v", audit)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
	l, err := New(Config{Level: "debug", Format: FormatConsole})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !l.Zap().Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug enabled")
	}
	if Wrap(nil).Zap() == nil {
		t.Fatalf("expected nop logger")
	}
}
