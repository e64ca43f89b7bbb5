package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fieldledger/pkg/domain"
)

// ReservationPolicy decides what completion does with an application's reservation.
type ReservationPolicy string

const (
	// ReservationSettle consumes the reserved amount and releases the reservation.
	ReservationSettle ReservationPolicy = "settle"
	// ReservationRetain consumes the converted application quantity and leaves
	// Reserved untouched.
	ReservationRetain ReservationPolicy = "retain"
)

// Valid reports whether p is a known policy.
func (p ReservationPolicy) Valid() bool {
	return p == ReservationSettle || p == ReservationRetain
}

// ParseReservationPolicy parses a policy name; empty selects ReservationSettle.
func ParseReservationPolicy(raw string) (ReservationPolicy, error) {
	if raw == "" {
		return ReservationSettle, nil
	}
	p := ReservationPolicy(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown reservation policy %q", raw)
	}
	return p, nil
}

// ApplicationInput describes a scheduled application.
type ApplicationInput struct {
	Target     Target
	ProductIDs []string
	Quantity   decimal.Decimal
	Unit       Unit
	Date       time.Time
	Notes      string
}

func (in ApplicationInput) validate() error {
	if in.Target.Kind != domain.TargetPlanting && in.Target.Kind != domain.TargetAnimalGroup {
		return ValidationError{Field: "target", Message: fmt.Sprintf("unsupported target kind %q", in.Target.Kind)}
	}
	if strings.TrimSpace(in.Target.ID) == "" {
		return ValidationError{Field: "target", Message: "id required"}
	}
	if len(normalizeProducts(in.ProductIDs)) == 0 {
		return ValidationError{Field: "products", Message: "at least one product required"}
	}
	if !in.Quantity.IsPositive() {
		return ValidationError{Field: "quantity", Message: "must be positive"}
	}
	if !in.Unit.Valid() {
		return ValidationError{Field: "unit", Message: fmt.Sprintf("unknown unit %q", in.Unit)}
	}
	return nil
}

func checkTarget(tx Transaction, target Target) error {
	switch target.Kind {
	case domain.TargetPlanting:
		if _, ok := tx.FindPlanting(target.ID); !ok {
			return ErrNotFound{Entity: EntityPlanting, ID: target.ID}
		}
	case domain.TargetAnimalGroup:
		if _, ok := tx.FindAnimalGroup(target.ID); !ok {
			return ErrNotFound{Entity: EntityAnimalGroup, ID: target.ID}
		}
	}
	return nil
}

func findApplication(tx Transaction, id string) (ScheduledApplication, error) {
	app, ok := tx.FindApplication(id)
	if !ok {
		return ScheduledApplication{}, ErrNotFound{Entity: EntityApplication, ID: id}
	}
	return app, nil
}

func transitionError(app ScheduledApplication, action string) InvalidTransitionError {
	err := InvalidTransitionError{ApplicationID: app.ID, Status: app.Status, Action: action}
	switch {
	case app.Status == StatusCompleted && action != "refund":
		err.Hint = "already completed, use refund instead"
	case app.Status == StatusRefunded:
		err.Hint = "already refunded"
	case app.Status == StatusPending && action == "refund":
		err.Hint = "not completed yet"
	}
	return err
}

// Schedule creates a pending application and reserves its quantity of every product.
func (s *Service) Schedule(ctx context.Context, in ApplicationInput) (ScheduledApplication, Result, error) {
	if err := in.validate(); err != nil {
		return ScheduledApplication{}, Result{}, err
	}
	products := normalizeProducts(in.ProductIDs)
	var created ScheduledApplication
	res, err := s.run(ctx, opScheduleApplication, func(tx Transaction) (string, error) {
		if err := checkTarget(tx, in.Target); err != nil {
			return "", err
		}
		reservations, err := reserve(tx, products, in.Quantity, in.Unit)
		if err != nil {
			return "", err
		}
		date := in.Date
		if date.IsZero() {
			date = tx.Now()
		}
		app, err := tx.CreateApplication(ScheduledApplication{
			Target:       in.Target,
			ProductIDs:   products,
			Quantity:     in.Quantity,
			Unit:         in.Unit,
			Date:         date,
			Status:       StatusPending,
			Reservations: reservations,
			Notes:        in.Notes,
		})
		if err != nil {
			return "", err
		}
		created = app
		return app.ID, nil
	})
	if err != nil {
		return ScheduledApplication{}, res, err
	}
	return created, res, nil
}

// EditApplication replaces the fields of a pending application, releasing its
// old reservation and reserving again against current stock.
func (s *Service) EditApplication(ctx context.Context, id string, in ApplicationInput) (ScheduledApplication, Result, error) {
	var updated ScheduledApplication
	res, err := s.run(ctx, opEditApplication, func(tx Transaction) (string, error) {
		app, err := findApplication(tx, id)
		if err != nil {
			return id, err
		}
		if app.Status != StatusPending {
			return id, transitionError(app, "edit")
		}
		if err := in.validate(); err != nil {
			return id, err
		}
		if err := checkTarget(tx, in.Target); err != nil {
			return id, err
		}
		if !app.ReservationReleased {
			if err := release(tx, app.Reservations); err != nil {
				return id, err
			}
		}
		products := normalizeProducts(in.ProductIDs)
		reservations, err := reserve(tx, products, in.Quantity, in.Unit)
		if err != nil {
			return id, err
		}
		updated, err = tx.UpdateApplication(id, func(a *ScheduledApplication) error {
			a.Target = in.Target
			a.ProductIDs = products
			a.Quantity = in.Quantity
			a.Unit = in.Unit
			if !in.Date.IsZero() {
				a.Date = in.Date
			}
			a.Notes = in.Notes
			a.Reservations = reservations
			a.ReservationReleased = false
			return nil
		})
		return id, err
	})
	if err != nil {
		return ScheduledApplication{}, res, err
	}
	return updated, res, nil
}

// CancelApplication releases a pending application's reservation and deletes it.
func (s *Service) CancelApplication(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, opCancelApplication, func(tx Transaction) (string, error) {
		app, err := findApplication(tx, id)
		if err != nil {
			return id, err
		}
		return id, cancelInTx(tx, app)
	})
}

func cancelInTx(tx Transaction, app ScheduledApplication) error {
	if app.Status != StatusPending {
		return transitionError(app, "cancel")
	}
	if !app.ReservationReleased {
		if err := release(tx, app.Reservations); err != nil {
			return err
		}
	}
	return tx.DeleteApplication(app.ID)
}

// CompleteApplication consumes stock for every product of a pending
// application, records the expense, and marks it completed. Under
// ReservationSettle the reserved amount is consumed and the reservation
// released; under ReservationRetain the converted application quantity is
// consumed and Reserved is left as is.
func (s *Service) CompleteApplication(ctx context.Context, id string) (ScheduledApplication, Result, error) {
	var completed ScheduledApplication
	res, err := s.run(ctx, opCompleteApplication, func(tx Transaction) (string, error) {
		app, err := findApplication(tx, id)
		if err != nil {
			return id, err
		}
		completed, err = s.completeInTx(tx, app)
		return id, err
	})
	if err != nil {
		return ScheduledApplication{}, res, err
	}
	return completed, res, nil
}

type plannedDeduction struct {
	supply   Supply
	amount   decimal.Decimal
	released decimal.Decimal
}

func (s *Service) planDeductions(tx Transaction, app ScheduledApplication) ([]plannedDeduction, error) {
	plan := make([]plannedDeduction, 0, len(app.ProductIDs))
	for _, pid := range app.ProductIDs {
		sup, ok := tx.FindSupply(pid)
		if !ok {
			return nil, ErrNotFound{Entity: EntitySupply, ID: pid}
		}
		converted, err := toCanonical(sup, app.Quantity, app.Unit)
		if err != nil {
			return nil, err
		}
		step := plannedDeduction{supply: sup, amount: converted}
		if s.policy == ReservationSettle {
			if r, ok := app.ReservationFor(pid); ok && !app.ReservationReleased {
				step.amount = r.Quantity
				step.released = decimal.Min(r.Quantity, sup.Reserved)
			}
		}
		if sup.Remaining.LessThan(step.amount) {
			return nil, InsufficientStockError{
				SupplyID:   sup.ID,
				SupplyName: sup.Name,
				Required:   step.amount,
				Available:  sup.Remaining,
				Unit:       sup.Unit,
			}
		}
		otherReserved := sup.Reserved.Sub(step.released)
		if left := sup.Remaining.Sub(step.amount); left.LessThan(otherReserved) {
			return nil, InsufficientStockError{
				SupplyID:   sup.ID,
				SupplyName: sup.Name,
				Required:   step.amount,
				Available:  sup.Remaining.Sub(otherReserved),
				Unit:       sup.Unit,
			}
		}
		plan = append(plan, step)
	}
	return plan, nil
}

func (s *Service) completeInTx(tx Transaction, app ScheduledApplication) (ScheduledApplication, error) {
	if app.Status != StatusPending {
		return ScheduledApplication{}, transitionError(app, "complete")
	}
	plan, err := s.planDeductions(tx, app)
	if err != nil {
		return ScheduledApplication{}, err
	}

	now := tx.Now()
	total := decimal.Zero
	deductions := make([]StockDeduction, 0, len(plan))
	names := make([]string, 0, len(plan))
	for _, step := range plan {
		if _, err := tx.UpdateSupply(step.supply.ID, func(sup *Supply) error {
			sup.Remaining = sup.Remaining.Sub(step.amount)
			sup.Reserved = decimal.Max(decimal.Zero, sup.Reserved.Sub(step.released))
			return nil
		}); err != nil {
			return ScheduledApplication{}, err
		}
		total = total.Add(step.amount.Mul(step.supply.UnitCost))
		deductions = append(deductions, StockDeduction{
			SupplyID: step.supply.ID,
			Quantity: step.amount,
			Unit:     step.supply.Unit,
			UnitCost: step.supply.UnitCost,
		})
		names = append(names, step.supply.Name)
	}
	actualCost := roundMoney(total)

	var expenseID string
	if actualCost.IsPositive() {
		expense, err := tx.AppendCashTransaction(CashTransaction{
			Description: "Application: " + strings.Join(names, ", "),
			Amount:      actualCost,
			Type:        domain.CashExpense,
			Category:    CashCategoryApplications,
			Date:        now,
			Source:      CashSource{Kind: domain.SourceApplication, ID: app.ID},
		})
		if err != nil {
			return ScheduledApplication{}, err
		}
		expenseID = expense.ID
	}

	if app.Target.Kind == domain.TargetPlanting {
		if _, err := tx.UpdatePlanting(app.Target.ID, func(p *Planting) error {
			for _, d := range deductions {
				p.History = append(p.History, ManagementEntry{
					ID:            uuid.NewString(),
					SupplyID:      d.SupplyID,
					Quantity:      d.Quantity,
					Unit:          d.Unit,
					Cost:          roundMoney(d.Quantity.Mul(d.UnitCost)),
					Date:          app.Date,
					Description:   "Scheduled application",
					ApplicationID: app.ID,
				})
			}
			return nil
		}); err != nil {
			return ScheduledApplication{}, err
		}
	}

	settled := s.policy == ReservationSettle
	return tx.UpdateApplication(app.ID, func(a *ScheduledApplication) error {
		a.Status = StatusCompleted
		a.CompletedAt = &now
		a.ActualCost = actualCost
		a.Deductions = deductions
		a.ExpenseTransactionID = expenseID
		if settled {
			a.ReservationReleased = true
		}
		return nil
	})
}

// RefundApplication restores the stock a completed application consumed,
// records a reversing income, and marks it refunded. Reservations are not
// re-created.
func (s *Service) RefundApplication(ctx context.Context, id string) (ScheduledApplication, Result, error) {
	var refunded ScheduledApplication
	res, err := s.run(ctx, opRefundApplication, func(tx Transaction) (string, error) {
		app, err := findApplication(tx, id)
		if err != nil {
			return id, err
		}
		refunded, err = refundInTx(tx, app)
		return id, err
	})
	if err != nil {
		return ScheduledApplication{}, res, err
	}
	return refunded, res, nil
}

func refundInTx(tx Transaction, app ScheduledApplication) (ScheduledApplication, error) {
	if app.Status != StatusCompleted {
		return ScheduledApplication{}, transitionError(app, "refund")
	}
	for _, d := range app.Deductions {
		if _, err := tx.UpdateSupply(d.SupplyID, func(sup *Supply) error {
			sup.Remaining = sup.Remaining.Add(d.Quantity)
			return nil
		}); err != nil {
			return ScheduledApplication{}, err
		}
	}

	now := tx.Now()
	var incomeID string
	if app.ActualCost.IsPositive() {
		income, err := tx.AppendCashTransaction(CashTransaction{
			Description: "Refund: application " + app.ID,
			Amount:      app.ActualCost,
			Type:        domain.CashIncome,
			Category:    CashCategoryApplications,
			Date:        now,
			Source:      CashSource{Kind: domain.SourceApplication, ID: app.ID},
		})
		if err != nil {
			return ScheduledApplication{}, err
		}
		incomeID = income.ID
	}

	if app.Target.Kind == domain.TargetPlanting {
		if _, ok := tx.FindPlanting(app.Target.ID); ok {
			if _, err := tx.UpdatePlanting(app.Target.ID, func(p *Planting) error {
				kept := make([]ManagementEntry, 0, len(p.History))
				for _, e := range p.History {
					if e.ApplicationID != app.ID {
						kept = append(kept, e)
					}
				}
				p.History = kept
				return nil
			}); err != nil {
				return ScheduledApplication{}, err
			}
		}
	}

	return tx.UpdateApplication(app.ID, func(a *ScheduledApplication) error {
		a.Status = StatusRefunded
		a.RefundedAt = &now
		a.IncomeTransactionID = incomeID
		return nil
	})
}

// GetApplication returns an application by id.
func (s *Service) GetApplication(id string) (ScheduledApplication, bool) {
	return s.store.GetApplication(id)
}

// ListApplications returns all applications ordered by date.
func (s *Service) ListApplications() []ScheduledApplication {
	return s.store.ListApplications()
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
