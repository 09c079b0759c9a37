package report

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"ledgercore/internal/ledger"
	"ledgercore/internal/ledger/store"
)

func TestBalanceSheet_BalancesAfterDeposit(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	dr, cr, err := s.CreateAccountPair(ctx, "u1", "ETH", "0xaddr", "")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}

	tx := ledger.Transaction{
		ID: "tx1", GroupID: "g1", DrAccountID: dr.ID, CrAccountID: cr.ID,
		Currency: "ETH", Value: decimal.RequireFromString("7"), Status: ledger.TxDone,
	}
	group := ledger.TransactionGroup{ID: "g1", Kind: ledger.GroupDeposit, Status: ledger.GroupDone, UserID: "u1", TransactionIDs: []string{"tx1"}}
	if err := s.InsertTransactions(ctx, group, []ledger.Transaction{tx}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	svc := NewService(s)
	sheet, err := svc.BalanceSheet(ctx, BalanceSheetRequest{Currency: "ETH"})
	if err != nil {
		t.Fatalf("balance sheet: %v", err)
	}
	if sheet.DrTotal != "7" || sheet.CrTotal != "7" || sheet.Drift != "0" {
		t.Fatalf("expected dr=cr=7 drift=0, got %+v", sheet)
	}
}

func TestBalanceSheet_RequiresCurrency(t *testing.T) {
	svc := NewService(store.NewMemory())
	if _, err := svc.BalanceSheet(context.Background(), BalanceSheetRequest{}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestBalanceSheets_MultipleCurrencies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	if _, _, err := s.CreateAccountPair(ctx, "u1", "ETH", "0x1", ""); err != nil {
		t.Fatalf("create pair: %v", err)
	}
	if _, _, err := s.CreateAccountPair(ctx, "u1", "BTC", "0x2", ""); err != nil {
		t.Fatalf("create pair: %v", err)
	}

	svc := NewService(s)
	sheets, err := svc.BalanceSheets(ctx, []string{"ETH", "BTC"})
	if err != nil {
		t.Fatalf("balance sheets: %v", err)
	}
	if len(sheets) != 2 {
		t.Fatalf("expected 2 sheets, got %d", len(sheets))
	}
}
