package core

import (
	"context"
	"fmt"

	"fieldledger/pkg/domain"
)

// NewStockBoundsRule returns the blocking rule that keeps every touched supply
// within its stock bounds.
func NewStockBoundsRule() domain.Rule {
	return stockBoundsRule{}
}

type stockBoundsRule struct{}

func (stockBoundsRule) Name() string { return "stock_bounds" }

func (r stockBoundsRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntitySupply || change.Action == domain.ActionDelete {
			continue
		}
		id := change.EntityID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		supply, ok := view.FindSupply(id)
		if !ok {
			continue
		}
		for _, msg := range stockBoundsProblems(supply) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("supply %s (%s) %s", supply.Name, supply.ID, msg),
				Entity:   domain.EntitySupply,
				EntityID: supply.ID,
			})
		}
	}
	return res, nil
}

func stockBoundsProblems(s domain.Supply) []string {
	var out []string
	if !s.Quantity.IsPositive() {
		out = append(out, fmt.Sprintf("quantity must be positive, got %s", s.Quantity))
	}
	if s.Remaining.IsNegative() {
		out = append(out, fmt.Sprintf("remaining below zero: %s %s", s.Remaining, s.Unit))
	}
	if s.Reserved.IsNegative() {
		out = append(out, fmt.Sprintf("reserved below zero: %s %s", s.Reserved, s.Unit))
	}
	if s.Available().IsNegative() {
		out = append(out, fmt.Sprintf("reserved %s exceeds remaining %s %s", s.Reserved, s.Remaining, s.Unit))
	}
	return out
}
