package core

import (
	"strings"

	"github.com/shopspring/decimal"

	"fieldledger/pkg/domain"
)

// normalizeProducts trims ids, drops blanks and duplicates, and keeps order.
func normalizeProducts(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// toCanonical converts qty into the supply's canonical unit.
func toCanonical(sup Supply, qty decimal.Decimal, unit Unit) (decimal.Decimal, error) {
	return domain.Convert(qty, unit, sup.Unit)
}

// reserve earmarks qty of every product. All products are checked against
// their available stock before any supply is written.
func reserve(tx Transaction, productIDs []string, qty decimal.Decimal, unit Unit) ([]StockReservation, error) {
	reservations := make([]StockReservation, 0, len(productIDs))
	for _, id := range productIDs {
		sup, ok := tx.FindSupply(id)
		if !ok {
			return nil, ErrNotFound{Entity: EntitySupply, ID: id}
		}
		amount, err := toCanonical(sup, qty, unit)
		if err != nil {
			return nil, err
		}
		if available := sup.Available(); amount.GreaterThan(available) {
			return nil, InsufficientStockError{
				SupplyID:   sup.ID,
				SupplyName: sup.Name,
				Required:   amount,
				Available:  available,
				Unit:       sup.Unit,
			}
		}
		reservations = append(reservations, StockReservation{SupplyID: sup.ID, Quantity: amount, Unit: sup.Unit})
	}
	for _, r := range reservations {
		if _, err := tx.UpdateSupply(r.SupplyID, func(sup *Supply) error {
			sup.Reserved = sup.Reserved.Add(r.Quantity)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return reservations, nil
}

// release returns reserved stock, never taking Reserved below zero.
func release(tx Transaction, reservations []StockReservation) error {
	for _, r := range reservations {
		if _, err := tx.UpdateSupply(r.SupplyID, func(sup *Supply) error {
			sup.Reserved = decimal.Max(decimal.Zero, sup.Reserved.Sub(r.Quantity))
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
