package core

import (
	"errors"
	"testing"

	"fieldledger/pkg/domain"
)

func TestScheduleReservesEveryProduct(t *testing.T) {
	f := newFixture(t)
	urea := f.purchase("Urea", domain.UnitKilogram, "100", "200")
	potash := f.purchase("Potash", domain.UnitSack, "10", "300")
	p := f.planting("Plot A")

	app := f.schedule(plantingTarget(p), "30", domain.UnitKilogram, urea.ID, potash.ID, urea.ID)
	if app.Status != StatusPending || len(app.ProductIDs) != 2 {
		t.Fatalf("expected pending app with deduped products, got %+v", app)
	}
	assertDec(t, "urea reserved", f.supply(urea.ID).Reserved, "30")
	assertDec(t, "potash reserved", f.supply(potash.ID).Reserved, "0.5")
	if r, ok := app.ReservationFor(potash.ID); !ok || r.Unit != domain.UnitSack {
		t.Fatalf("expected reservation in canonical unit, got %+v", app.Reservations)
	}
}

func TestScheduleValidation(t *testing.T) {
	f := newFixture(t)
	sup := f.purchase("Urea", domain.UnitKilogram, "100", "200")
	p := f.planting("Plot A")
	target := plantingTarget(p)
	cases := []struct {
		name string
		in   ApplicationInput
		kind domain.ErrorKind
	}{
		{"no products", ApplicationInput{Target: target, Quantity: dec("1"), Unit: domain.UnitKilogram}, domain.KindValidation},
		{"zero quantity", ApplicationInput{Target: target, ProductIDs: []string{sup.ID}, Quantity: dec("0"), Unit: domain.UnitKilogram}, domain.KindValidation},
		{"bad target", ApplicationInput{Target: Target{Kind: "field"}, ProductIDs: []string{sup.ID}, Quantity: dec("1"), Unit: domain.UnitKilogram}, domain.KindValidation},
		{"missing target", ApplicationInput{Target: Target{Kind: domain.TargetPlanting, ID: "nope"}, ProductIDs: []string{sup.ID}, Quantity: dec("1"), Unit: domain.UnitKilogram}, domain.KindValidation},
		{"missing supply", ApplicationInput{Target: target, ProductIDs: []string{"nope"}, Quantity: dec("1"), Unit: domain.UnitKilogram}, domain.KindValidation},
		{"unit mismatch", ApplicationInput{Target: target, ProductIDs: []string{sup.ID}, Quantity: dec("1"), Unit: domain.UnitLiter}, domain.KindValidation},
		{"too much", ApplicationInput{Target: target, ProductIDs: []string{sup.ID}, Quantity: dec("101"), Unit: domain.UnitKilogram}, domain.KindInsufficientStock},
	}
	for _, tc := range cases {
		if _, _, err := f.svc.Schedule(f.ctx, tc.in); domain.KindOf(err) != tc.kind {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.kind, err)
		}
	}
	if n := len(f.svc.ListApplications()); n != 0 {
		t.Fatalf("expected no applications, got %d", n)
	}
	assertDec(t, "reserved", f.supply(sup.ID).Reserved, "0")
}

func TestScheduleIsAllOrNothingAcrossProducts(t *testing.T) {
	f := newFixture(t)
	plenty := f.purchase("Urea", domain.UnitKilogram, "100", "100")
	scarce := f.purchase("Zinc", domain.UnitKilogram, "5", "100")
	_, _, err := f.svc.Schedule(f.ctx, ApplicationInput{
		Target:     plantingTarget(f.planting("Plot A")),
		ProductIDs: []string{plenty.ID, scarce.ID},
		Quantity:   dec("10"),
		Unit:       domain.UnitKilogram,
	})
	var stock InsufficientStockError
	if !errors.As(err, &stock) || stock.SupplyID != scarce.ID {
		t.Fatalf("expected insufficient stock for zinc, got %v", err)
	}
	assertDec(t, "no partial reservation", f.supply(plenty.ID).Reserved, "0")
}

// Scenarios 1 and 2 under the legacy policy: completion consumes from
// Remaining and leaves Reserved as it was.
func TestRetainPolicyCompletionKeepsReservation(t *testing.T) {
	f := newFixture(t, WithReservationPolicy(ReservationRetain))
	urea := f.purchase("Urea", domain.UnitKilogram, "100", "250")
	target := plantingTarget(f.planting("Plot A"))

	appA := f.schedule(target, "20", domain.UnitKilogram, urea.ID)
	assertDec(t, "reserved after schedule", f.supply(urea.ID).Reserved, "20")

	completed, _, err := f.svc.CompleteApplication(f.ctx, appA.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	sup := f.supply(urea.ID)
	assertDec(t, "remaining", sup.Remaining, "80")
	assertDec(t, "reserved unchanged", sup.Reserved, "20")
	assertDec(t, "actual cost", completed.ActualCost, "50")
	if completed.Status != StatusCompleted || completed.CompletedAt == nil || completed.ReservationReleased {
		t.Fatalf("unexpected completed app %+v", completed)
	}
	expenses := f.cashFor(domain.SourceApplication, appA.ID)
	if len(expenses) != 1 || expenses[0].Type != domain.CashExpense {
		t.Fatalf("expected one expense, got %+v", expenses)
	}
	assertDec(t, "expense", expenses[0].Amount, "50")

	_, _, err = f.svc.Schedule(f.ctx, ApplicationInput{Target: target, ProductIDs: []string{urea.ID}, Quantity: dec("90"), Unit: domain.UnitKilogram})
	var stock InsufficientStockError
	if !errors.As(err, &stock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	assertDec(t, "required", stock.Required, "90")
	assertDec(t, "available", stock.Available, "60")
	sup = f.supply(urea.ID)
	assertDec(t, "remaining untouched", sup.Remaining, "80")
	assertDec(t, "reserved untouched", sup.Reserved, "20")
}

func TestRetainPolicyRefusesDeductionIntoOtherReservations(t *testing.T) {
	f := newFixture(t, WithReservationPolicy(ReservationRetain))
	urea := f.purchase("Urea", domain.UnitKilogram, "100", "100")
	target := plantingTarget(f.planting("Plot A"))
	app := f.schedule(target, "10", domain.UnitKilogram, urea.ID)
	f.schedule(target, "85", domain.UnitKilogram, urea.ID)

	// Shrinking the purchase leaves no slack beyond the two reservations.
	qty := dec("95")
	if _, _, err := f.svc.EditSupply(f.ctx, urea.ID, SupplyEdit{Quantity: &qty}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, _, err := f.svc.CompleteApplication(f.ctx, app.ID); domain.KindOf(err) != domain.KindInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	got, _ := f.svc.GetApplication(app.ID)
	if got.Status != StatusPending {
		t.Fatalf("expected application still pending, got %s", got.Status)
	}
}

func TestFailedCompletionDeductsNothingAcrossProducts(t *testing.T) {
	f := newFixture(t, WithReservationPolicy(ReservationRetain))
	urea := f.purchase("Urea", domain.UnitKilogram, "100", "100")
	potash := f.purchase("Potash", domain.UnitKilogram, "20", "40")
	app := f.schedule(plantingTarget(f.planting("Plot A")), "10", domain.UnitKilogram, urea.ID, potash.ID)

	// Potash keeps its reservation covered but has no slack for the deduction.
	qty := dec("15")
	if _, _, err := f.svc.EditSupply(f.ctx, potash.ID, SupplyEdit{Quantity: &qty}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	_, _, err := f.svc.CompleteApplication(f.ctx, app.ID)
	var stock InsufficientStockError
	if !errors.As(err, &stock) || stock.SupplyID != potash.ID {
		t.Fatalf("expected insufficient potash, got %v", err)
	}

	cases := []struct {
		label               string
		id                  string
		remaining, reserved string
	}{
		{"urea", urea.ID, "100", "10"},
		{"potash", potash.ID, "15", "10"},
	}
	for _, tc := range cases {
		sup := f.supply(tc.id)
		assertDec(t, tc.label+" remaining", sup.Remaining, tc.remaining)
		assertDec(t, tc.label+" reserved", sup.Reserved, tc.reserved)
	}
	got, _ := f.svc.GetApplication(app.ID)
	if got.Status != StatusPending || len(got.Deductions) != 0 || got.CompletedAt != nil {
		t.Fatalf("expected application untouched, got %+v", got)
	}
	if cash := f.cashFor(domain.SourceApplication, app.ID); len(cash) != 0 {
		t.Fatalf("expected no cash entries, got %+v", cash)
	}
	if p, ok := f.svc.GetPlanting(app.Target.ID); !ok || len(p.History) != 0 {
		t.Fatalf("expected no management history, got %+v", p.History)
	}
}

func TestSettlePolicyCompletionConsumesReservation(t *testing.T) {
	f := newFixture(t)
	if f.svc.Policy() != ReservationSettle {
		t.Fatalf("expected settle as default policy")
	}
	urea := f.purchase("Urea", domain.UnitKilogram, "100", "250")
	app := f.schedule(plantingTarget(f.planting("Plot A")), "20", domain.UnitKilogram, urea.ID)

	completed, _, err := f.svc.CompleteApplication(f.ctx, app.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	sup := f.supply(urea.ID)
	assertDec(t, "remaining", sup.Remaining, "80")
	assertDec(t, "reserved released", sup.Reserved, "0")
	if !completed.ReservationReleased {
		t.Fatalf("expected reservation marked released")
	}
	if len(completed.Deductions) != 1 {
		t.Fatalf("expected one deduction, got %+v", completed.Deductions)
	}
	assertDec(t, "deduction", completed.Deductions[0].Quantity, "20")
	assertDec(t, "deduction unit cost", completed.Deductions[0].UnitCost, "2.5")
}

func TestSettlePolicyUsesFrozenReservedAmount(t *testing.T) {
	f := newFixture(t)
	bags := f.purchase("Feed", domain.UnitSack, "10", "600")
	group, _, err := f.svc.CreateAnimalGroup(f.ctx, AnimalGroupInput{Name: "Steers", Species: "cattle", HeadCount: 40})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	app := f.schedule(Target{Kind: domain.TargetAnimalGroup, ID: group.ID}, "120", domain.UnitKilogram, bags.ID)
	assertDec(t, "reserved sacks", f.supply(bags.ID).Reserved, "2")

	completed, _, err := f.svc.CompleteApplication(f.ctx, app.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	sup := f.supply(bags.ID)
	assertDec(t, "remaining", sup.Remaining, "8")
	assertDec(t, "reserved", sup.Reserved, "0")
	assertDec(t, "actual cost", completed.ActualCost, "120")
}

func TestCancelReleasesAndDeletes(t *testing.T) {
	f := newFixture(t)
	urea := f.purchase("Urea", domain.UnitKilogram, "100", "100")
	app := f.schedule(plantingTarget(f.planting("Plot A")), "20", domain.UnitKilogram, urea.ID)

	if _, err := f.svc.CancelApplication(f.ctx, app.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	assertDec(t, "reserved", f.supply(urea.ID).Reserved, "0")
	if _, ok := f.svc.GetApplication(app.ID); ok {
		t.Fatalf("expected application deleted")
	}
	var nf ErrNotFound
	if _, err := f.svc.CancelApplication(f.ctx, app.ID); !errors.As(err, &nf) {
		t.Fatalf("expected not found on second cancel, got %v", err)
	}
}

func TestCancelCompletedSuggestsRefund(t *testing.T) {
	f := newFixture(t)
	urea := f.purchase("Urea", domain.UnitKilogram, "100", "100")
	app := f.schedule(plantingTarget(f.planting("Plot A")), "20", domain.UnitKilogram, urea.ID)
	if _, _, err := f.svc.CompleteApplication(f.ctx, app.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err := f.svc.CancelApplication(f.ctx, app.ID)
	var transition InvalidTransitionError
	if !errors.As(err, &transition) || transition.Hint == "" || transition.Status != StatusCompleted {
		t.Fatalf("expected transition error with hint, got %v", err)
	}
}

func TestTerminalTransitionsAreIdempotent(t *testing.T) {
	for _, policy := range []ReservationPolicy{ReservationSettle, ReservationRetain} {
		t.Run(string(policy), func(t *testing.T) {
			f := newFixture(t, WithReservationPolicy(policy))
			urea := f.purchase("Urea", domain.UnitKilogram, "100", "100")
			app := f.schedule(plantingTarget(f.planting("Plot A")), "20", domain.UnitKilogram, urea.ID)

			if _, _, err := f.svc.CompleteApplication(f.ctx, app.ID); err != nil {
				t.Fatalf("complete: %v", err)
			}
			before := f.supply(urea.ID)
			if _, _, err := f.svc.CompleteApplication(f.ctx, app.ID); domain.KindOf(err) != domain.KindInvalidTransition {
				t.Fatalf("expected invalid transition on second complete, got %v", err)
			}
			if after := f.supply(urea.ID); !after.Remaining.Equal(before.Remaining) || !after.Reserved.Equal(before.Reserved) {
				t.Fatalf("second complete changed stock: %+v -> %+v", before, after)
			}

			if _, _, err := f.svc.RefundApplication(f.ctx, app.ID); err != nil {
				t.Fatalf("refund: %v", err)
			}
			if _, _, err := f.svc.RefundApplication(f.ctx, app.ID); domain.KindOf(err) != domain.KindInvalidTransition {
				t.Fatalf("expected invalid transition on second refund, got %v", err)
			}
			assertDec(t, "remaining after refund", f.supply(urea.ID).Remaining, "100")
			if n := len(f.cashFor(domain.SourceApplication, app.ID)); n != 2 {
				t.Fatalf("expected one expense and one income, got %d entries", n)
			}
		})
	}
}

func TestRefundPendingIsRejected(t *testing.T) {
	f := newFixture(t)
	urea := f.purchase("Urea", domain.UnitKilogram, "100", "100")
	app := f.schedule(plantingTarget(f.planting("Plot A")), "20", domain.UnitKilogram, urea.ID)
	_, _, err := f.svc.RefundApplication(f.ctx, app.ID)
	var transition InvalidTransitionError
	if !errors.As(err, &transition) || transition.Action != "refund" {
		t.Fatalf("expected refund transition error, got %v", err)
	}
}

// Scenario 4 plus the round-trip property.
func TestRefundRestoresStockAndRemovesHistory(t *testing.T) {
	f := newFixture(t)
	urea := f.purchase("Urea", domain.UnitKilogram, "100", "250")
	p := f.planting("Plot A")
	app := f.schedule(plantingTarget(p), "20", domain.UnitKilogram, urea.ID)
	before := f.supply(urea.ID).Remaining

	completed, _, err := f.svc.CompleteApplication(f.ctx, app.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ := f.svc.GetPlanting(p.ID)
	if len(got.History) != 1 || got.History[0].ApplicationID != app.ID {
		t.Fatalf("expected application entry in history, got %+v", got.History)
	}

	refunded, _, err := f.svc.RefundApplication(f.ctx, app.ID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != StatusRefunded || refunded.RefundedAt == nil || refunded.IncomeTransactionID == "" {
		t.Fatalf("unexpected refunded app %+v", refunded)
	}
	if !f.supply(urea.ID).Remaining.Equal(before) {
		t.Fatalf("expected remaining restored to %s, got %s", before, f.supply(urea.ID).Remaining)
	}
	assertDec(t, "reservation not re-created", f.supply(urea.ID).Reserved, "0")
	got, _ = f.svc.GetPlanting(p.ID)
	if len(got.History) != 0 {
		t.Fatalf("expected history entry removed, got %+v", got.History)
	}
	cash := f.cashFor(domain.SourceApplication, app.ID)
	if len(cash) != 2 {
		t.Fatalf("expected expense and income, got %+v", cash)
	}
	for _, txn := range cash {
		if !txn.Amount.Equal(completed.ActualCost) {
			t.Fatalf("expected amounts to match actual cost %s, got %s", completed.ActualCost, txn.Amount)
		}
	}
}

func TestEditApplicationReleasesThenReserves(t *testing.T) {
	f := newFixture(t)
	urea := f.purchase("Urea", domain.UnitKilogram, "100", "100")
	potash := f.purchase("Potash", domain.UnitKilogram, "50", "100")
	target := plantingTarget(f.planting("Plot A"))
	app := f.schedule(target, "60", domain.UnitKilogram, urea.ID)

	edited, _, err := f.svc.EditApplication(f.ctx, app.ID, ApplicationInput{
		Target:     target,
		ProductIDs: []string{urea.ID, potash.ID},
		Quantity:   dec("40"),
		Unit:       domain.UnitKilogram,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	assertDec(t, "urea reserved", f.supply(urea.ID).Reserved, "40")
	assertDec(t, "potash reserved", f.supply(potash.ID).Reserved, "40")
	if len(edited.Reservations) != 2 {
		t.Fatalf("expected two reservations, got %+v", edited.Reservations)
	}

	_, _, err = f.svc.EditApplication(f.ctx, app.ID, ApplicationInput{
		Target:     target,
		ProductIDs: []string{urea.ID, potash.ID},
		Quantity:   dec("90"),
		Unit:       domain.UnitKilogram,
	})
	if domain.KindOf(err) != domain.KindInsufficientStock {
		t.Fatalf("expected insufficient stock for potash, got %v", err)
	}
	assertDec(t, "urea reserved kept", f.supply(urea.ID).Reserved, "40")
	assertDec(t, "potash reserved kept", f.supply(potash.ID).Reserved, "40")
}

func TestEditApplicationRequiresPending(t *testing.T) {
	f := newFixture(t)
	urea := f.purchase("Urea", domain.UnitKilogram, "100", "100")
	target := plantingTarget(f.planting("Plot A"))
	app := f.schedule(target, "10", domain.UnitKilogram, urea.ID)
	if _, _, err := f.svc.CompleteApplication(f.ctx, app.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, _, err := f.svc.EditApplication(f.ctx, app.ID, ApplicationInput{Target: target, ProductIDs: []string{urea.ID}, Quantity: dec("5"), Unit: domain.UnitKilogram})
	if domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestSettleCompletionDrawsOnlyOnItsReservation(t *testing.T) {
	f := newFixture(t)
	urea := f.purchase("Urea", domain.UnitKilogram, "100", "100")
	p := f.planting("Plot A")
	app := f.schedule(plantingTarget(p), "20", domain.UnitKilogram, urea.ID)
	if _, _, err := f.svc.LogConsumption(f.ctx, ConsumptionInput{PlantingID: p.ID, SupplyID: urea.ID, Quantity: dec("80"), Unit: domain.UnitKilogram}); err != nil {
		t.Fatalf("log: %v", err)
	}
	// remaining 20, reserved 20: shrink the purchase so only 10 remain.
	qty := dec("90")
	if _, _, err := f.svc.EditSupply(f.ctx, urea.ID, SupplyEdit{Quantity: &qty}); domain.KindOf(err) != domain.KindInsufficientStock {
		t.Fatalf("expected edit below reserved refused, got %v", err)
	}
	if _, _, err := f.svc.CompleteApplication(f.ctx, app.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	sup := f.supply(urea.ID)
	assertDec(t, "remaining", sup.Remaining, "0")
	assertDec(t, "reserved", sup.Reserved, "0")
}

func TestParseReservationPolicy(t *testing.T) {
	cases := map[string]ReservationPolicy{"": ReservationSettle, "settle": ReservationSettle, " Retain ": ReservationRetain}
	for raw, want := range cases {
		got, err := ParseReservationPolicy(raw)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s (%v)", raw, want, got, err)
		}
	}
	if _, err := ParseReservationPolicy("spend"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
