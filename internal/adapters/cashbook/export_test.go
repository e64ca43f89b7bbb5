package cashbook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"fieldledger/internal/blob"
	"fieldledger/internal/core"
	"fieldledger/pkg/domain"
)

func seededService(t *testing.T) *core.Service {
	t.Helper()
	svc := core.NewInMemoryService(nil)
	ctx := context.Background()
	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if _, _, err := svc.RecordPurchase(ctx, core.PurchaseInput{
		Name:        "urea",
		Category:    domain.CategoryFertilizer,
		Unit:        domain.UnitKilogram,
		Quantity:    decimal.NewFromInt(200),
		Cost:        decimal.NewFromInt(400),
		PurchasedAt: jan,
	}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, _, err := svc.RecordCashTransaction(ctx, core.CashInput{
		Description: "corn sale",
		Amount:      decimal.NewFromInt(1000),
		Type:        domain.CashIncome,
		Category:    "sales",
		Date:        jan.AddDate(0, 0, 5),
	}); err != nil {
		t.Fatalf("cash entry: %v", err)
	}
	return svc
}

func readWorkbook(t *testing.T, store blob.Store, key string) *excelize.File {
	t.Helper()
	_, rc, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get workbook: %v", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read workbook: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestExportWritesTransactionsAndSummary(t *testing.T) {
	svc := seededService(t)
	store := blob.NewMemory()
	fixed := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	exp := NewExporter(svc, store, WithAccount("north"), WithClock(func() time.Time { return fixed }))

	info, err := exp.Export(context.Background(), core.CashPeriod{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(info.Key, "north/cashbook/start_now-") || !strings.HasSuffix(info.Key, ".xlsx") {
		t.Fatalf("unexpected key %s", info.Key)
	}
	if info.ContentType != ContentType || info.Metadata["rows"] != "2" || info.Metadata["account"] != "north" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.URL != "" {
		t.Fatalf("memory store cannot presign, got %s", info.URL)
	}

	f := readWorkbook(t, store, info.Key)
	rows, err := f.GetRows(sheetTransactions)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}
	if rows[0][0] != "Date" || rows[0][4] != "Amount" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	var sawExpense, sawIncome bool
	for _, row := range rows[1:] {
		switch row[3] {
		case string(domain.CashExpense):
			sawExpense = row[4] == "400" && row[5] == "-400"
		case string(domain.CashIncome):
			sawIncome = row[1] == "corn sale" && row[5] == "1000"
		}
	}
	if !sawExpense || !sawIncome {
		t.Fatalf("unexpected transaction rows %v", rows[1:])
	}

	balance, err := f.GetCellValue(sheetSummary, "B5")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if balance != "600" {
		t.Fatalf("expected balance 600, got %s", balance)
	}
}

func TestExportHonoursPeriod(t *testing.T) {
	svc := seededService(t)
	store := blob.NewMemory()
	period := core.CashPeriod{From: time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)}
	info, err := NewExporter(svc, store).Export(context.Background(), period)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(info.Key, "cashbook/2024-01-12_now-") {
		t.Fatalf("unexpected key %s", info.Key)
	}
	f := readWorkbook(t, store, info.Key)
	rows, err := f.GetRows(sheetTransactions)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "corn sale" {
		t.Fatalf("expected only the sale, got %v", rows)
	}
	from, _ := f.GetCellValue(sheetSummary, "B1")
	to, _ := f.GetCellValue(sheetSummary, "B2")
	if from != "2024-01-12" || to != "open" {
		t.Fatalf("unexpected bounds %s %s", from, to)
	}
}

type failingLedger struct{}

func (failingLedger) CashTransactionsIn(context.Context, core.CashPeriod) ([]core.CashTransaction, error) {
	return nil, errors.New("store offline")
}

func TestExportPropagatesLedgerErrors(t *testing.T) {
	store := blob.NewMemory()
	if _, err := NewExporter(failingLedger{}, store).Export(context.Background(), core.CashPeriod{}); err == nil {
		t.Fatalf("expected ledger error")
	}
	listed, _ := store.List(context.Background(), "")
	if len(listed) != 0 {
		t.Fatalf("nothing should be stored on failure, got %d", len(listed))
	}
}

// growingLedger gains one income entry every time it is read, standing in for
// a cash book that other writers keep appending to.
type growingLedger struct {
	txns []core.CashTransaction
}

func (g *growingLedger) CashTransactionsIn(context.Context, core.CashPeriod) ([]core.CashTransaction, error) {
	g.txns = append(g.txns, core.CashTransaction{
		Base:        domain.Base{ID: fmt.Sprintf("cash-%d", len(g.txns)+1)},
		Description: "sale",
		Amount:      decimal.NewFromInt(100),
		Type:        domain.CashIncome,
		Date:        time.Date(2024, 1, len(g.txns)+1, 0, 0, 0, 0, time.UTC),
		Source:      core.CashSource{Kind: domain.SourceManual},
	})
	return append([]core.CashTransaction(nil), g.txns...), nil
}

func TestExportSummaryMatchesExportedRows(t *testing.T) {
	ledger := &growingLedger{}
	for i := 0; i < 2; i++ {
		if _, err := ledger.CashTransactionsIn(context.Background(), core.CashPeriod{}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	store := blob.NewMemory()
	info, err := NewExporter(ledger, store).Export(context.Background(), core.CashPeriod{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	f := readWorkbook(t, store, info.Key)
	rows, err := f.GetRows(sheetTransactions)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus three rows, got %d", len(rows))
	}
	cases := []struct {
		cell string
		want string
	}{
		{cell: "B3", want: "300"},
		{cell: "B4", want: "0"},
		{cell: "B5", want: "300"},
		{cell: "B6", want: "3"},
	}
	for _, tc := range cases {
		got, err := f.GetCellValue(sheetSummary, tc.cell)
		if err != nil {
			t.Fatalf("%s: %v", tc.cell, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.cell, tc.want, got)
		}
	}
	if len(ledger.txns) != 3 {
		t.Fatalf("expected the ledger to be read once per export, read %d times", len(ledger.txns)-2)
	}
}
