package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fieldledger/pkg/domain"
)

// CashInput describes a manual cash-book entry.
type CashInput struct {
	Description string
	Amount      decimal.Decimal
	Type        CashType
	Category    string
	Date        time.Time
}

// RecordCashTransaction appends a manual cash-book entry.
func (s *Service) RecordCashTransaction(ctx context.Context, in CashInput) (CashTransaction, Result, error) {
	if strings.TrimSpace(in.Description) == "" {
		return CashTransaction{}, Result{}, ValidationError{Field: "description", Message: "required"}
	}
	if !in.Amount.IsPositive() {
		return CashTransaction{}, Result{}, ValidationError{Field: "amount", Message: "must be positive"}
	}
	if in.Type != domain.CashExpense && in.Type != domain.CashIncome {
		return CashTransaction{}, Result{}, ValidationError{Field: "type", Message: fmt.Sprintf("unsupported cash type %q", in.Type)}
	}
	var created CashTransaction
	res, err := s.run(ctx, opRecordCashTransaction, func(tx Transaction) (string, error) {
		txn, err := tx.AppendCashTransaction(CashTransaction{
			Description: strings.TrimSpace(in.Description),
			Amount:      in.Amount,
			Type:        in.Type,
			Category:    strings.TrimSpace(in.Category),
			Date:        in.Date,
			Source:      CashSource{Kind: domain.SourceManual},
		})
		if err != nil {
			return "", err
		}
		created = txn
		return txn.ID, nil
	})
	if err != nil {
		return CashTransaction{}, res, err
	}
	return created, res, nil
}

// ListCashTransactions returns the cash book ordered by date.
func (s *Service) ListCashTransactions() []CashTransaction {
	return s.store.ListCashTransactions()
}

// CashPeriod bounds a cash-book query. Zero times are open ends; To is exclusive.
type CashPeriod struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls within the period.
func (p CashPeriod) Contains(t time.Time) bool {
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !t.Before(p.To) {
		return false
	}
	return true
}

// CashSummary totals the cash book.
type CashSummary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
	Count   int
}

// CashBookSummary totals income and expense for the transactions in period.
func (s *Service) CashBookSummary(ctx context.Context, period CashPeriod) (CashSummary, error) {
	var txns []CashTransaction
	err := s.observe(ctx, opCashBookSummary, func(ctx context.Context) error {
		var err error
		txns, err = s.CashTransactionsIn(ctx, period)
		return err
	})
	if err != nil {
		return SummarizeCash(nil), err
	}
	return SummarizeCash(txns), nil
}

// SummarizeCash totals txns. Callers that already hold a period's rows use it
// so the totals cannot drift from the rows they were computed from.
func SummarizeCash(txns []CashTransaction) CashSummary {
	summary := CashSummary{Income: decimal.Zero, Expense: decimal.Zero}
	for _, txn := range txns {
		summary.Count++
		switch txn.Type {
		case domain.CashIncome:
			summary.Income = summary.Income.Add(txn.Amount)
		case domain.CashExpense:
			summary.Expense = summary.Expense.Add(txn.Amount)
		}
	}
	summary.Balance = summary.Income.Sub(summary.Expense)
	return summary
}

// CashTransactionsIn returns the cash-book entries within period.
func (s *Service) CashTransactionsIn(ctx context.Context, period CashPeriod) ([]CashTransaction, error) {
	var out []CashTransaction
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, txn := range view.ListCashTransactions() {
			if period.Contains(txn.Date) {
				out = append(out, txn)
			}
		}
		return nil
	})
	return out, err
}
