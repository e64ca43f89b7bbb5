package core

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fieldledger/pkg/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s: expected %s, got %s", label, want, got)
	}
}

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func (c *captureLogger) has(call string) bool {
	for _, got := range c.calls {
		if got == call {
			return true
		}
	}
	return false
}

type ledgerFixture struct {
	t   *testing.T
	ctx context.Context
	svc *Service
}

func newFixture(t *testing.T, opts ...ServiceOption) *ledgerFixture {
	t.Helper()
	return &ledgerFixture{t: t, ctx: context.Background(), svc: NewInMemoryService(nil, opts...)}
}

func (f *ledgerFixture) purchase(name string, unit Unit, qty, cost string) Supply {
	f.t.Helper()
	sup, _, err := f.svc.RecordPurchase(f.ctx, PurchaseInput{
		Name:     name,
		Category: domain.CategoryFertilizer,
		Unit:     unit,
		Quantity: dec(qty),
		Cost:     dec(cost),
	})
	if err != nil {
		f.t.Fatalf("record purchase %s: %v", name, err)
	}
	return sup
}

func (f *ledgerFixture) planting(name string) Planting {
	f.t.Helper()
	p, _, err := f.svc.CreatePlanting(f.ctx, PlantingInput{Name: name, Crop: "corn", Field: "north"})
	if err != nil {
		f.t.Fatalf("create planting: %v", err)
	}
	return p
}

func (f *ledgerFixture) schedule(target Target, qty string, unit Unit, products ...string) ScheduledApplication {
	f.t.Helper()
	app, _, err := f.svc.Schedule(f.ctx, ApplicationInput{
		Target:     target,
		ProductIDs: products,
		Quantity:   dec(qty),
		Unit:       unit,
	})
	if err != nil {
		f.t.Fatalf("schedule: %v", err)
	}
	return app
}

func (f *ledgerFixture) supply(id string) Supply {
	f.t.Helper()
	sup, ok := f.svc.GetSupply(id)
	if !ok {
		f.t.Fatalf("supply %s not found", id)
	}
	return sup
}

func (f *ledgerFixture) cashFor(kind domain.CashSourceKind, id string) []CashTransaction {
	var out []CashTransaction
	for _, txn := range f.svc.ListCashTransactions() {
		if txn.Source.Kind == kind && txn.Source.ID == id {
			out = append(out, txn)
		}
	}
	return out
}

func plantingTarget(p Planting) Target {
	return Target{Kind: domain.TargetPlanting, ID: p.ID}
}
