package domain

import (
	"time"

	"vereinskasse/backend/internal/money"
)

const DateLayout = "2006-01-02"

type Product struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	UnitPriceCents money.Cents `json:"unit_price_cents"`
	Active         bool        `json:"active"`
}

type LedgerKind string

const (
	LedgerIncome  LedgerKind = "income"
	LedgerExpense LedgerKind = "expense"
	LedgerTip     LedgerKind = "tip"
)

func (k LedgerKind) Valid() bool {
	switch k {
	case LedgerIncome, LedgerExpense, LedgerTip:
		return true
	default:
		return false
	}
}

// Ledger memos written by the engine itself.
const (
	MemoSalePrefix = "Verkauf"
	MemoSale       = "Verkauf (Deckel)"
	MemoSaleTip    = "Trinkgeld"
	MemoDayClose   = "Tagesabschluss"
	MemoCloseTip   = "Tagesabschluss Trinkgeld"
)

type LedgerEntry struct {
	ID          string      `json:"id"`
	Kind        LedgerKind  `json:"kind"`
	AmountCents money.Cents `json:"amount_cents"`
	Memo        string      `json:"memo"`
	Date        string      `json:"date"`
	CreatedAt   time.Time   `json:"created_at"`
}

type LedgerFilter struct {
	From  string
	To    string
	Kind  LedgerKind
	Limit int
}

type LedgerListResponse struct {
	Entries []LedgerEntry `json:"entries"`
}

type LedgerEntryRequest struct {
	Kind   string `json:"kind" validate:"required,oneof=income expense tip"`
	Amount string `json:"amount" validate:"required"`
	Memo   string `json:"memo" validate:"max=200"`
}

type LedgerBalance struct {
	AsOf         string      `json:"as_of"`
	IncomeCents  money.Cents `json:"income_cents"`
	ExpenseCents money.Cents `json:"expense_cents"`
	TipCents     money.Cents `json:"tip_cents"`
	BalanceCents money.Cents `json:"balance_cents"`
}

type LedgerSum struct {
	Kind       LedgerKind  `json:"kind"`
	From       string      `json:"from,omitempty"`
	To         string      `json:"to,omitempty"`
	TotalCents money.Cents `json:"total_cents"`
}

type Denomination struct {
	Cents money.Cents `json:"cents"`
	Label string      `json:"label"`
}

type DenominationsResponse struct {
	Denominations []Denomination `json:"denominations"`
}

type DailyAggregateRow struct {
	Date         string      `json:"date"`
	ProductID    string      `json:"product_id"`
	Quantity     int64       `json:"quantity"`
	RevenueCents money.Cents `json:"revenue_cents"`
}

type OpenTabRecord struct {
	Date        string      `json:"date"`
	AmountCents money.Cents `json:"amount_cents"`
}

type PaymentSplit struct {
	TotalCents     money.Cents `json:"total_cents"`
	TenderedCents  money.Cents `json:"tendered_cents"`
	OpenTabCents   money.Cents `json:"open_tab_cents"`
	DueInCashCents money.Cents `json:"due_in_cash_cents"`
	TipCents       money.Cents `json:"tip_cents"`
}

// Sale is one committed basket as the repository persists it: every part is
// written together or not at all.
type Sale struct {
	Date         string
	Increments   []DailyAggregateRow
	OpenTabCents money.Cents
	Entries      []LedgerEntry
}

type SaleLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=999"`
}

type SaleRequest struct {
	Lines    []SaleLine `json:"lines" validate:"required,min=1,dive"`
	Tendered string     `json:"tendered"`
	OpenTab  string     `json:"open_tab"`
}

type SaleResponse struct {
	Date    string        `json:"date"`
	Split   PaymentSplit  `json:"split"`
	Entries []LedgerEntry `json:"entries"`
}

type TillCount struct {
	Date       string                `json:"date"`
	Counts     map[money.Cents]int64 `json:"counts"`
	Note       string                `json:"note"`
	TotalCents money.Cents           `json:"total_cents"`
	CountedAt  time.Time             `json:"counted_at"`
}

type TillCountRequest struct {
	Counts map[string]string `json:"counts" validate:"required"`
	Note   string            `json:"note" validate:"max=500"`
}

type DayCloseRequest struct {
	Tip string `json:"tip"`
}

type DayCloseResponse struct {
	Date    string        `json:"date"`
	Entries []LedgerEntry `json:"entries"`
}

type DaySummaryLine struct {
	ProductID    string      `json:"product_id"`
	Name         string      `json:"name"`
	Quantity     int64       `json:"quantity"`
	RevenueCents money.Cents `json:"revenue_cents"`
}

type TillReconciliation struct {
	CountedCents    money.Cents `json:"counted_cents"`
	ExpectedCents   money.Cents `json:"expected_cents"`
	DifferenceCents money.Cents `json:"difference_cents"`
	Note            string      `json:"note,omitempty"`
}

type DaySummary struct {
	Date               string              `json:"date"`
	Lines              []DaySummaryLine    `json:"lines"`
	TotalSoldCents     money.Cents         `json:"total_sold_cents"`
	CashCollectedCents money.Cents         `json:"cash_collected_cents"`
	OpenTabCents       money.Cents         `json:"open_tab_cents"`
	RecordedTabCents   money.Cents         `json:"recorded_tab_cents"`
	TipCents           money.Cents         `json:"tip_cents"`
	Closed             bool                `json:"closed"`
	Till               *TillReconciliation `json:"till,omitempty"`
}
