// Package cashbook renders the cash book as an XLSX workbook and stores it
// in a blob store.
package cashbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"fieldledger/internal/blob"
	"fieldledger/internal/core"
)

const (
	// ContentType is the media type of exported workbooks.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetTransactions = "Transactions"
	sheetSummary      = "Summary"
	dateLayout        = "2006-01-02"
)

var transactionHeadings = []any{"Date", "Description", "Category", "Type", "Amount", "Signed", "Source", "Source ID"}

// Ledger is the read side of the service the exporter needs.
type Ledger interface {
	CashTransactionsIn(ctx context.Context, period core.CashPeriod) ([]core.CashTransaction, error)
}

// Exporter writes cash-book workbooks to a blob store.
type Exporter struct {
	ledger  Ledger
	store   blob.Store
	account string
	now     func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithAccount prefixes keys and tags blob metadata with the account.
func WithAccount(account string) Option {
	return func(e *Exporter) { e.account = account }
}

// WithClock overrides the time used for generated keys.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExporter returns an exporter over ledger that stores into store.
func NewExporter(ledger Ledger, store blob.Store, opts ...Option) *Exporter {
	e := &Exporter{ledger: ledger, store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export renders the transactions in period and stores the workbook under a
// generated key. The summary sheet is computed from the exported rows. A presigned URL is attached when the driver supports one.
func (e *Exporter) Export(ctx context.Context, period core.CashPeriod) (blob.Info, error) {
	txns, err := e.ledger.CashTransactionsIn(ctx, period)
	if err != nil {
		return blob.Info{}, fmt.Errorf("load cash book: %w", err)
	}
	book, err := Render(txns, core.SummarizeCash(txns), period)
	if err != nil {
		return blob.Info{}, err
	}
	defer func() { _ = book.Close() }()
	buf, err := book.WriteToBuffer()
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode workbook: %w", err)
	}
	meta := map[string]string{"rows": fmt.Sprint(len(txns))}
	if e.account != "" {
		meta["account"] = e.account
	}
	info, err := e.store.Put(ctx, e.key(period), buf, blob.PutOptions{ContentType: ContentType, Metadata: meta})
	if err != nil {
		return blob.Info{}, fmt.Errorf("store workbook: %w", err)
	}
	url, err := e.store.PresignURL(ctx, info.Key, blob.SignedURLOptions{})
	switch {
	case err == nil:
		info.URL = url
	case !errors.Is(err, blob.ErrUnsupported):
		return info, fmt.Errorf("presign workbook: %w", err)
	}
	return info, nil
}

func (e *Exporter) key(period core.CashPeriod) string {
	from, to := "start", "now"
	if !period.From.IsZero() {
		from = period.From.UTC().Format(dateLayout)
	}
	if !period.To.IsZero() {
		to = period.To.UTC().Format(dateLayout)
	}
	key := fmt.Sprintf("cashbook/%s_%s-%d.xlsx", from, to, e.now().UTC().UnixNano())
	if e.account != "" {
		key = e.account + "/" + key
	}
	return key
}

// Render builds the workbook: one row per transaction plus a summary sheet.
func Render(txns []core.CashTransaction, summary core.CashSummary, period core.CashPeriod) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetTransactions); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.SetSheetRow(sheetTransactions, "A1", &transactionHeadings); err != nil {
		_ = f.Close()
		return nil, err
	}
	for i, txn := range txns {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		row := []any{
			txn.Date.UTC().Format(dateLayout),
			txn.Description,
			txn.Category,
			string(txn.Type),
			txn.Amount.InexactFloat64(),
			txn.Signed().InexactFloat64(),
			string(txn.Source.Kind),
			txn.Source.ID,
		}
		if err := f.SetSheetRow(sheetTransactions, cell, &row); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if _, err := f.NewSheet(sheetSummary); err != nil {
		_ = f.Close()
		return nil, err
	}
	rows := [][]any{
		{"From", periodBound(period.From)},
		{"To", periodBound(period.To)},
		{"Income", summary.Income.InexactFloat64()},
		{"Expense", summary.Expense.InexactFloat64()},
		{"Balance", summary.Balance.InexactFloat64()},
		{"Transactions", summary.Count},
	}
	for i, row := range rows {
		if err := f.SetSheetRow(sheetSummary, fmt.Sprintf("A%d", i+1), &row); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func periodBound(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.UTC().Format(dateLayout)
}
