package core

import (
	"context"
	"fmt"
	"sort"

	"fieldledger/pkg/domain"
)

// NewCashbookMirrorRule blocks commits that would leave an application with
// more than one expense or more than one income in the cash book.
func NewCashbookMirrorRule() domain.Rule {
	return cashbookMirrorRule{}
}

type cashbookMirrorRule struct{}

func (cashbookMirrorRule) Name() string { return "cashbook_mirror" }

func (r cashbookMirrorRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	touched := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityCashTransaction || change.Action != domain.ActionCreate {
			continue
		}
		txn, ok := change.After.(domain.CashTransaction)
		if !ok || txn.Source.Kind != domain.SourceApplication || txn.Source.ID == "" {
			continue
		}
		touched[txn.Source.ID] = struct{}{}
	}
	res := domain.Result{}
	if len(touched) == 0 {
		return res, nil
	}

	counts := make(map[string]map[domain.CashType]int, len(touched))
	for _, txn := range view.ListCashTransactions() {
		if txn.Source.Kind != domain.SourceApplication {
			continue
		}
		if _, ok := touched[txn.Source.ID]; !ok {
			continue
		}
		if counts[txn.Source.ID] == nil {
			counts[txn.Source.ID] = make(map[domain.CashType]int, 2)
		}
		counts[txn.Source.ID][txn.Type]++
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, typ := range []domain.CashType{domain.CashExpense, domain.CashIncome} {
			if n := counts[id][typ]; n > 1 {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("application %s has %d %s transactions", id, n, typ),
					Entity:   domain.EntityApplication,
					EntityID: id,
				})
			}
		}
	}
	return res, nil
}
