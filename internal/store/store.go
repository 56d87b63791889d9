package store

import (
	"context"
	"errors"
	"strings"

	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/money"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyClosed      = errors.New("day already closed")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// Repository is the persistence surface of the register. Dates are business
// day keys in domain.DateLayout; an empty from or to in a range is unbounded.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)

	// CommitSale writes every aggregate increment, the open tab increment and
	// the ledger entries of one sale as a single unit.
	CommitSale(ctx context.Context, sale domain.Sale) ([]domain.LedgerEntry, error)
	IncrementDailyAggregate(ctx context.Context, row domain.DailyAggregateRow) error
	ListDailyAggregates(ctx context.Context, date string) ([]domain.DailyAggregateRow, error)
	GetOpenTab(ctx context.Context, date string) (domain.OpenTabRecord, error)

	AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	// AppendCloseEntries books the day close entries together. It fails with
	// ErrAlreadyClosed when the day already carries a domain.MemoDayClose entry.
	AppendCloseEntries(ctx context.Context, date string, entries []domain.LedgerEntry) ([]domain.LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, error)
	SumLedger(ctx context.Context, kind domain.LedgerKind, from string, to string) (money.Cents, error)
	// SumSaleIncome sums the income booked by sales on date, close entries excluded.
	SumSaleIncome(ctx context.Context, date string) (money.Cents, error)
	IsDayClosed(ctx context.Context, date string) (bool, error)

	UpsertTillCount(ctx context.Context, count domain.TillCount) (*domain.TillCount, error)
	GetTillCount(ctx context.Context, date string) (*domain.TillCount, error)
}

// IsSaleIncome reports whether entry is cash taken in by a sale.
func IsSaleIncome(entry domain.LedgerEntry) bool {
	return entry.Kind == domain.LedgerIncome && strings.HasPrefix(entry.Memo, domain.MemoSalePrefix)
}

// ValidateSale checks the parts of a sale before anything is written.
func ValidateSale(sale domain.Sale) error {
	if sale.Date == "" || len(sale.Increments) == 0 || sale.OpenTabCents < 0 {
		return ErrInvalidTransaction
	}
	for _, row := range sale.Increments {
		if row.ProductID == "" || row.Quantity < 1 || row.RevenueCents < 0 {
			return ErrInvalidTransaction
		}
	}
	for _, entry := range sale.Entries {
		if err := ValidateEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

func ValidateEntry(entry domain.LedgerEntry) error {
	if !entry.Kind.Valid() || entry.AmountCents <= 0 || entry.Date == "" {
		return ErrInvalidTransaction
	}
	return nil
}

// ValidateCloseEntries requires every entry to belong to date and exactly one
// of them to carry domain.MemoDayClose.
func ValidateCloseEntries(date string, entries []domain.LedgerEntry) error {
	closing := 0
	for _, entry := range entries {
		if err := ValidateEntry(entry); err != nil {
			return err
		}
		if entry.Date != date {
			return ErrInvalidTransaction
		}
		if entry.Memo == domain.MemoDayClose {
			closing++
		}
	}
	if closing != 1 {
		return ErrInvalidTransaction
	}
	return nil
}
