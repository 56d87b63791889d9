package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/money"
	"vereinskasse/backend/internal/store"
	"vereinskasse/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables and indexes when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit_price_cents, active
		FROM products
		WHERE active = true
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPriceCents, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit_price_cents, active
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPriceCents, &p.Active); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const incrementAggregateSQL = `
	INSERT INTO daily_aggregates (business_date, product_id, quantity, revenue_cents, updated_at)
	VALUES ($1::date, $2, $3, $4, now())
	ON CONFLICT (business_date, product_id)
	DO UPDATE SET
		quantity = daily_aggregates.quantity + EXCLUDED.quantity,
		revenue_cents = daily_aggregates.revenue_cents + EXCLUDED.revenue_cents,
		updated_at = now()
`

const incrementOpenTabSQL = `
	INSERT INTO open_tabs (business_date, amount_cents, updated_at)
	VALUES ($1::date, $2, now())
	ON CONFLICT (business_date)
	DO UPDATE SET amount_cents = open_tabs.amount_cents + EXCLUDED.amount_cents, updated_at = now()
`

const insertEntrySQL = `
	INSERT INTO ledger_entries (id, kind, amount_cents, memo, business_date, created_at)
	VALUES ($1, $2, $3, $4, $5::date, $6)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) CommitSale(ctx context.Context, sale domain.Sale) ([]domain.LedgerEntry, error) {
	if err := store.ValidateSale(sale); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range sale.Increments {
		if _, err := tx.ExecContext(ctx, incrementAggregateSQL, sale.Date, row.ProductID, row.Quantity, int64(row.RevenueCents)); err != nil {
			if isForeignKeyViolation(err) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
	}
	if sale.OpenTabCents > 0 {
		if _, err := tx.ExecContext(ctx, incrementOpenTabSQL, sale.Date, int64(sale.OpenTabCents)); err != nil {
			return nil, err
		}
	}

	stored, err := insertEntries(ctx, tx, sale.Entries)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Store) IncrementDailyAggregate(ctx context.Context, row domain.DailyAggregateRow) error {
	if row.Date == "" || row.ProductID == "" || row.Quantity < 1 || row.RevenueCents < 0 {
		return store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, incrementAggregateSQL, row.Date, row.ProductID, row.Quantity, int64(row.RevenueCents))
	if isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) ListDailyAggregates(ctx context.Context, date string) ([]domain.DailyAggregateRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(business_date, 'YYYY-MM-DD'), product_id, quantity, revenue_cents
		FROM daily_aggregates
		WHERE business_date = $1::date
		ORDER BY product_id
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DailyAggregateRow, 0, 16)
	for rows.Next() {
		var row domain.DailyAggregateRow
		if err := rows.Scan(&row.Date, &row.ProductID, &row.Quantity, &row.RevenueCents); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetOpenTab(ctx context.Context, date string) (domain.OpenTabRecord, error) {
	record := domain.OpenTabRecord{Date: date}
	err := s.db.QueryRowContext(ctx, `
		SELECT amount_cents FROM open_tabs WHERE business_date = $1::date
	`, date).Scan(&record.AmountCents)
	if errors.Is(err, sql.ErrNoRows) {
		return record, nil
	}
	if err != nil {
		return domain.OpenTabRecord{}, err
	}
	return record, nil
}

func (s *Store) AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if err := store.ValidateEntry(entry); err != nil {
		return nil, err
	}
	stored, err := insertEntries(ctx, s.db, []domain.LedgerEntry{entry})
	if err != nil {
		return nil, err
	}
	return &stored[0], nil
}

func (s *Store) AppendCloseEntries(ctx context.Context, date string, entries []domain.LedgerEntry) ([]domain.LedgerEntry, error) {
	if err := store.ValidateCloseEntries(date, entries); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stored, err := insertEntries(ctx, tx, entries)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

func insertEntries(ctx context.Context, db execer, entries []domain.LedgerEntry) ([]domain.LedgerEntry, error) {
	stored := make([]domain.LedgerEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = xid.New("led")
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		_, err := db.ExecContext(ctx, insertEntrySQL,
			entry.ID, string(entry.Kind), int64(entry.AmountCents), entry.Memo, entry.Date, entry.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) && entry.Memo == domain.MemoDayClose {
				return nil, store.ErrAlreadyClosed
			}
			return nil, err
		}
		stored = append(stored, entry)
	}
	return stored, nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.From != "" {
		args = append(args, filter.From)
		where = append(where, "business_date >= $"+strconv.Itoa(len(args))+"::date")
	}
	if filter.To != "" {
		args = append(args, filter.To)
		where = append(where, "business_date <= $"+strconv.Itoa(len(args))+"::date")
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, "kind = $"+strconv.Itoa(len(args)))
	}

	query := `
		SELECT id, kind, amount_cents, memo, to_char(business_date, 'YYYY-MM-DD'), created_at
		FROM ledger_entries`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += "\n\t\tLIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.LedgerEntry, 0, 64)
	for rows.Next() {
		var (
			entry domain.LedgerEntry
			kind  string
		)
		if err := rows.Scan(&entry.ID, &kind, &entry.AmountCents, &entry.Memo, &entry.Date, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Kind = domain.LedgerKind(kind)
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SumLedger(ctx context.Context, kind domain.LedgerKind, from string, to string) (money.Cents, error) {
	if !kind.Valid() {
		return 0, store.ErrInvalidTransaction
	}
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM ledger_entries
		WHERE kind = $1
		  AND ($2 = '' OR business_date >= NULLIF($2, '')::date)
		  AND ($3 = '' OR business_date <= NULLIF($3, '')::date)
	`, string(kind), from, to).Scan(&total)
	if err != nil {
		return 0, err
	}
	return money.Cents(total), nil
}

func (s *Store) SumSaleIncome(ctx context.Context, date string) (money.Cents, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM ledger_entries
		WHERE kind = 'income'
		  AND business_date = $1::date
		  AND memo LIKE $2
	`, date, domain.MemoSalePrefix+"%").Scan(&total)
	if err != nil {
		return 0, err
	}
	return money.Cents(total), nil
}

func (s *Store) IsDayClosed(ctx context.Context, date string) (bool, error) {
	var closed bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ledger_entries
			WHERE business_date = $1::date AND memo = $2
		)
	`, date, domain.MemoDayClose).Scan(&closed)
	if err != nil {
		return false, err
	}
	return closed, nil
}

func (s *Store) UpsertTillCount(ctx context.Context, count domain.TillCount) (*domain.TillCount, error) {
	if count.Date == "" || count.TotalCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if count.Counts == nil {
		count.Counts = map[money.Cents]int64{}
	}
	if count.CountedAt.IsZero() {
		count.CountedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(count.Counts)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO till_counts (business_date, counts, note, total_cents, counted_at)
		VALUES ($1::date, $2::jsonb, $3, $4, $5)
		ON CONFLICT (business_date)
		DO UPDATE SET
			counts = EXCLUDED.counts,
			note = EXCLUDED.note,
			total_cents = EXCLUDED.total_cents,
			counted_at = EXCLUDED.counted_at
	`, count.Date, string(payload), count.Note, int64(count.TotalCents), count.CountedAt)
	if err != nil {
		return nil, err
	}
	saved := count
	return &saved, nil
}

func (s *Store) GetTillCount(ctx context.Context, date string) (*domain.TillCount, error) {
	var (
		count   domain.TillCount
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT to_char(business_date, 'YYYY-MM-DD'), counts, note, total_cents, counted_at
		FROM till_counts
		WHERE business_date = $1::date
	`, date).Scan(&count.Date, &payload, &count.Note, &count.TotalCents, &count.CountedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &count.Counts); err != nil {
		return nil, err
	}
	return &count, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
