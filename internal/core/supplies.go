package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fieldledger/pkg/domain"
)

// Cash-book categories for ledger-derived transactions.
const (
	CashCategorySupplies     = "supplies"
	CashCategoryApplications = "applications"
)

const ruleSupplyRemainingClamped = "supply_remaining_clamped"

// PurchaseInput describes a supply purchase.
type PurchaseInput struct {
	Name        string
	Category    SupplyCategory
	Unit        Unit
	Quantity    decimal.Decimal
	Cost        decimal.Decimal
	PurchasedAt time.Time
	Notes       string
}

func (in PurchaseInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ValidationError{Field: "name", Message: "required"}
	}
	if !in.Unit.Valid() {
		return ValidationError{Field: "unit", Message: fmt.Sprintf("unknown unit %q", in.Unit)}
	}
	if in.Category != "" && !in.Category.Valid() {
		return ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", in.Category)}
	}
	if !in.Quantity.IsPositive() {
		return ValidationError{Field: "quantity", Message: "must be positive"}
	}
	if in.Cost.IsNegative() {
		return ValidationError{Field: "cost", Message: "must not be negative"}
	}
	return nil
}

// RecordPurchase creates a supply with its full quantity on hand and mirrors
// the purchase cost as an expense.
func (s *Service) RecordPurchase(ctx context.Context, in PurchaseInput) (Supply, Result, error) {
	if err := in.validate(); err != nil {
		return Supply{}, Result{}, err
	}
	category := in.Category
	if category == "" {
		category = domain.CategoryOther
	}
	var created Supply
	res, err := s.run(ctx, opRecordPurchase, func(tx Transaction) (string, error) {
		purchasedAt := in.PurchasedAt
		if purchasedAt.IsZero() {
			purchasedAt = tx.Now()
		}
		sup, err := tx.CreateSupply(Supply{
			Name:        strings.TrimSpace(in.Name),
			Category:    category,
			Unit:        in.Unit,
			Quantity:    in.Quantity,
			Cost:        in.Cost,
			UnitCost:    domain.ComputeUnitCost(in.Cost, in.Quantity),
			Remaining:   in.Quantity,
			Reserved:    decimal.Zero,
			PurchasedAt: purchasedAt,
			Notes:       in.Notes,
		})
		if err != nil {
			return "", err
		}
		if in.Cost.IsPositive() {
			if _, err := tx.AppendCashTransaction(CashTransaction{
				Description: "Purchase: " + sup.Name,
				Amount:      in.Cost,
				Type:        domain.CashExpense,
				Category:    CashCategorySupplies,
				Date:        purchasedAt,
				Source:      CashSource{Kind: domain.SourceSupplyPurchase, ID: sup.ID},
			}); err != nil {
				return sup.ID, err
			}
		}
		created = sup
		return sup.ID, nil
	})
	if err != nil {
		return Supply{}, res, err
	}
	return created, res, nil
}

// SupplyEdit lists the supply fields to change; nil fields are kept.
type SupplyEdit struct {
	Name     *string
	Category *SupplyCategory
	Unit     *Unit
	Quantity *decimal.Decimal
	Cost     *decimal.Decimal
	Notes    *string
}

// EditSupply changes a supply. A quantity change moves Remaining by the same
// delta so consumption already recorded is preserved; Remaining is clamped at
// zero and the clamp is reported as a warning in the returned Result. A cost
// change appends one offsetting cash transaction.
func (s *Service) EditSupply(ctx context.Context, id string, edit SupplyEdit) (Supply, Result, error) {
	var (
		updated Supply
		clamped decimal.Decimal
	)
	res, err := s.run(ctx, opEditSupply, func(tx Transaction) (string, error) {
		clamped = decimal.Zero
		current, ok := tx.FindSupply(id)
		if !ok {
			return id, ErrNotFound{Entity: EntitySupply, ID: id}
		}
		next, lost, err := applySupplyEdit(current, edit)
		if err != nil {
			return id, err
		}
		clamped = lost
		sup, err := tx.UpdateSupply(id, func(target *Supply) error {
			*target = next
			return nil
		})
		if err != nil {
			return id, err
		}
		if delta := next.Cost.Sub(current.Cost); !delta.IsZero() {
			typ := domain.CashExpense
			if delta.IsNegative() {
				typ = domain.CashIncome
			}
			if _, err := tx.AppendCashTransaction(CashTransaction{
				Description: "Cost adjustment: " + sup.Name,
				Amount:      delta.Abs(),
				Type:        typ,
				Category:    CashCategorySupplies,
				Source:      CashSource{Kind: domain.SourceSupplyAdjustment, ID: sup.ID},
			}); err != nil {
				return id, err
			}
		}
		updated = sup
		return id, nil
	})
	if err != nil {
		return Supply{}, res, err
	}
	if clamped.IsPositive() {
		s.logger.Warn("supply remaining clamped to zero", "supply_id", id, "lost", clamped.String(), "unit", string(updated.Unit))
		res.Violations = append(res.Violations, Violation{
			Rule:     ruleSupplyRemainingClamped,
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("remaining of %s clamped to zero; %s %s could not be deducted", updated.Name, clamped, updated.Unit),
			Entity:   EntitySupply,
			EntityID: id,
		})
	}
	return updated, res, nil
}

// applySupplyEdit returns the edited supply and the amount lost to clamping.
func applySupplyEdit(current Supply, edit SupplyEdit) (Supply, decimal.Decimal, error) {
	next := current
	if edit.Name != nil {
		name := strings.TrimSpace(*edit.Name)
		if name == "" {
			return Supply{}, decimal.Zero, ValidationError{Field: "name", Message: "required"}
		}
		next.Name = name
	}
	if edit.Category != nil {
		if !edit.Category.Valid() {
			return Supply{}, decimal.Zero, ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", *edit.Category)}
		}
		next.Category = *edit.Category
	}
	if edit.Notes != nil {
		next.Notes = *edit.Notes
	}
	if edit.Quantity != nil {
		if !edit.Quantity.IsPositive() {
			return Supply{}, decimal.Zero, ValidationError{Field: "quantity", Message: "must be positive"}
		}
		next.Quantity = *edit.Quantity
	}
	if edit.Cost != nil {
		if edit.Cost.IsNegative() {
			return Supply{}, decimal.Zero, ValidationError{Field: "cost", Message: "must not be negative"}
		}
		next.Cost = *edit.Cost
	}
	if edit.Unit != nil && *edit.Unit != current.Unit {
		if !edit.Unit.Valid() {
			return Supply{}, decimal.Zero, ValidationError{Field: "unit", Message: fmt.Sprintf("unknown unit %q", *edit.Unit)}
		}
		if !current.Reserved.IsZero() || !current.Remaining.Equal(current.Quantity) {
			return Supply{}, decimal.Zero, ValidationError{Field: "unit", Message: "unit can only change before any stock is reserved or used"}
		}
		next.Unit = *edit.Unit
	}

	lost := decimal.Zero
	next.Remaining = current.Remaining.Add(next.Quantity.Sub(current.Quantity))
	if next.Remaining.IsNegative() {
		lost = next.Remaining.Neg()
		next.Remaining = decimal.Zero
	}
	if next.Remaining.LessThan(next.Reserved) {
		return Supply{}, decimal.Zero, InsufficientStockError{
			SupplyID:   current.ID,
			SupplyName: current.Name,
			Required:   next.Reserved,
			Available:  next.Remaining,
			Unit:       next.Unit,
		}
	}
	next.UnitCost = domain.ComputeUnitCost(next.Cost, next.Quantity)
	return next, lost, nil
}

// AvailableStock returns Remaining minus Reserved for a supply.
func (s *Service) AvailableStock(ctx context.Context, id string) (decimal.Decimal, error) {
	var available decimal.Decimal
	err := s.observe(ctx, opAvailableStock, func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			sup, ok := view.FindSupply(id)
			if !ok {
				return ErrNotFound{Entity: EntitySupply, ID: id}
			}
			available = sup.Available()
			return nil
		})
	})
	return available, err
}

// DeleteSupply removes a supply that nothing references, together with the
// cash transactions its purchase and cost edits produced.
func (s *Service) DeleteSupply(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, opDeleteSupply, func(tx Transaction) (string, error) {
		sup, ok := tx.FindSupply(id)
		if !ok {
			return id, ErrNotFound{Entity: EntitySupply, ID: id}
		}
		if sup.Reserved.IsPositive() {
			return id, ValidationError{Field: "supply", Message: fmt.Sprintf("%s has %s %s reserved by pending applications", sup.Name, sup.Reserved, sup.Unit)}
		}
		if err := tx.DeleteSupply(id); err != nil {
			return id, err
		}
		for _, txn := range tx.Snapshot().ListCashTransactions() {
			if txn.Source.ID != id {
				continue
			}
			if txn.Source.Kind != domain.SourceSupplyPurchase && txn.Source.Kind != domain.SourceSupplyAdjustment {
				continue
			}
			if err := tx.DeleteCashTransaction(txn.ID); err != nil {
				return id, err
			}
		}
		return id, nil
	})
}

// GetSupply returns a supply by id.
func (s *Service) GetSupply(id string) (Supply, bool) {
	return s.store.GetSupply(id)
}

// ListSupplies returns all supplies ordered by name.
func (s *Service) ListSupplies() []Supply {
	return s.store.ListSupplies()
}
