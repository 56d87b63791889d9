package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/money"
	"vereinskasse/backend/internal/store"
	"vereinskasse/backend/internal/xid"
)

type aggregateKey struct {
	date      string
	productID string
}

// Store keeps everything in process memory. Every write takes the single
// lock, which is what makes increments and sale commits atomic.
type Store struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	aggregates map[aggregateKey]domain.DailyAggregateRow
	openTabs   map[string]money.Cents
	ledger     []domain.LedgerEntry
	tillCounts map[string]domain.TillCount
}

func New(products ...domain.Product) *Store {
	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}
	return &Store{
		products:   productMap,
		aggregates: make(map[aggregateKey]domain.DailyAggregateRow),
		openTabs:   make(map[string]money.Cents),
		ledger:     make([]domain.LedgerEntry, 0, 256),
		tillCounts: make(map[string]domain.TillCount),
	}
}

// NewSeeded returns a store with the drinks and snacks of a typical club
// evening, for local runs without a database.
func NewSeeded() *Store {
	return New(
		domain.Product{ID: "p-bier", Name: "Bier 0,5", UnitPriceCents: 350, Active: true},
		domain.Product{ID: "p-radler", Name: "Radler 0,5", UnitPriceCents: 350, Active: true},
		domain.Product{ID: "p-weissbier", Name: "Weißbier 0,5", UnitPriceCents: 400, Active: true},
		domain.Product{ID: "p-cola", Name: "Cola 0,33", UnitPriceCents: 250, Active: true},
		domain.Product{ID: "p-spezi", Name: "Spezi 0,5", UnitPriceCents: 250, Active: true},
		domain.Product{ID: "p-schorle", Name: "Apfelschorle 0,5", UnitPriceCents: 250, Active: true},
		domain.Product{ID: "p-wasser", Name: "Wasser 0,5", UnitPriceCents: 150, Active: true},
		domain.Product{ID: "p-kaffee", Name: "Kaffee", UnitPriceCents: 200, Active: true},
		domain.Product{ID: "p-schnaps", Name: "Obstler 2cl", UnitPriceCents: 250, Active: true},
		domain.Product{ID: "p-brezel", Name: "Brezel", UnitPriceCents: 200, Active: true},
		domain.Product{ID: "p-wurst", Name: "Bratwurst im Brötchen", UnitPriceCents: 350, Active: true},
		domain.Product{ID: "p-gluehwein", Name: "Glühwein", UnitPriceCents: 300, Active: false},
	)
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

// GetProductsByIDs returns the known products among ids, inactive ones
// included so callers can tell "inactive" from "unknown".
func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CommitSale(_ context.Context, sale domain.Sale) ([]domain.LedgerEntry, error) {
	if err := store.ValidateSale(sale); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range sale.Increments {
		if _, ok := s.products[row.ProductID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	for _, row := range sale.Increments {
		row.Date = sale.Date
		s.incrementLocked(row)
	}
	if sale.OpenTabCents > 0 {
		s.openTabs[sale.Date] += sale.OpenTabCents
	}

	stored := make([]domain.LedgerEntry, 0, len(sale.Entries))
	for _, entry := range sale.Entries {
		stored = append(stored, s.appendLocked(entry))
	}
	return stored, nil
}

func (s *Store) IncrementDailyAggregate(_ context.Context, row domain.DailyAggregateRow) error {
	if row.Date == "" || row.ProductID == "" || row.Quantity < 1 || row.RevenueCents < 0 {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.incrementLocked(row)
	return nil
}

func (s *Store) incrementLocked(row domain.DailyAggregateRow) {
	key := aggregateKey{date: row.Date, productID: row.ProductID}
	current, ok := s.aggregates[key]
	if !ok {
		current = domain.DailyAggregateRow{Date: row.Date, ProductID: row.ProductID}
	}
	current.Quantity += row.Quantity
	current.RevenueCents += row.RevenueCents
	s.aggregates[key] = current
}

func (s *Store) ListDailyAggregates(_ context.Context, date string) ([]domain.DailyAggregateRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.DailyAggregateRow, 0, 16)
	for key, row := range s.aggregates {
		if key.date != date {
			continue
		}
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b domain.DailyAggregateRow) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return rows, nil
}

func (s *Store) GetOpenTab(_ context.Context, date string) (domain.OpenTabRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.OpenTabRecord{Date: date, AmountCents: s.openTabs[date]}, nil
}

func (s *Store) AppendLedgerEntry(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if err := store.ValidateEntry(entry); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Memo == domain.MemoDayClose && s.closedLocked(entry.Date) {
		return nil, store.ErrAlreadyClosed
	}
	stored := s.appendLocked(entry)
	return &stored, nil
}

func (s *Store) AppendCloseEntries(_ context.Context, date string, entries []domain.LedgerEntry) ([]domain.LedgerEntry, error) {
	if err := store.ValidateCloseEntries(date, entries); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closedLocked(date) {
		return nil, store.ErrAlreadyClosed
	}

	stored := make([]domain.LedgerEntry, 0, len(entries))
	for _, entry := range entries {
		stored = append(stored, s.appendLocked(entry))
	}
	return stored, nil
}

func (s *Store) appendLocked(entry domain.LedgerEntry) domain.LedgerEntry {
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.ledger = append(s.ledger, entry)
	return entry
}

func (s *Store) closedLocked(date string) bool {
	for _, entry := range s.ledger {
		if entry.Date == date && entry.Memo == domain.MemoDayClose {
			return true
		}
	}
	return false
}

func (s *Store) ListLedgerEntries(_ context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LedgerEntry, 0, 64)
	for i := len(s.ledger) - 1; i >= 0; i-- {
		entry := s.ledger[i]
		if !inRange(entry.Date, filter.From, filter.To) {
			continue
		}
		if filter.Kind != "" && entry.Kind != filter.Kind {
			continue
		}
		result = append(result, entry)
	}

	// newest first; entries with equal timestamps keep reverse insertion order
	slices.SortStableFunc(result, func(a, b domain.LedgerEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) SumLedger(_ context.Context, kind domain.LedgerKind, from string, to string) (money.Cents, error) {
	if !kind.Valid() {
		return 0, store.ErrInvalidTransaction
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total money.Cents
	for _, entry := range s.ledger {
		if entry.Kind == kind && inRange(entry.Date, from, to) {
			total += entry.AmountCents
		}
	}
	return total, nil
}

func (s *Store) SumSaleIncome(_ context.Context, date string) (money.Cents, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total money.Cents
	for _, entry := range s.ledger {
		if entry.Date == date && store.IsSaleIncome(entry) {
			total += entry.AmountCents
		}
	}
	return total, nil
}

func (s *Store) IsDayClosed(_ context.Context, date string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.closedLocked(date), nil
}

func (s *Store) UpsertTillCount(_ context.Context, count domain.TillCount) (*domain.TillCount, error) {
	if count.Date == "" || count.TotalCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	count = cloneTillCount(count)
	if count.CountedAt.IsZero() {
		count.CountedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.tillCounts[count.Date] = count
	s.mu.Unlock()

	result := cloneTillCount(count)
	return &result, nil
}

func (s *Store) GetTillCount(_ context.Context, date string) (*domain.TillCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count, ok := s.tillCounts[date]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := cloneTillCount(count)
	return &result, nil
}

func inRange(date string, from string, to string) bool {
	if from != "" && date < from {
		return false
	}
	if to != "" && date > to {
		return false
	}
	return true
}

func cloneTillCount(src domain.TillCount) domain.TillCount {
	dst := src
	dst.Counts = make(map[money.Cents]int64, len(src.Counts))
	for denom, n := range src.Counts {
		dst.Counts[denom] = n
	}
	return dst
}
