package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/money"
	"vereinskasse/backend/internal/store"
)

const day = "2026-05-01"

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestCommitSaleRunsInOneTransaction(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2026, 5, 1, 20, 15, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO daily_aggregates")).
		WithArgs(day, "p-bier", int64(2), int64(700)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO open_tabs")).
		WithArgs(day, int64(200)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WithArgs("led-1", "income", int64(500), domain.MemoSale, day, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	stored, err := s.CommitSale(context.Background(), domain.Sale{
		Date:         day,
		Increments:   []domain.DailyAggregateRow{{ProductID: "p-bier", Quantity: 2, RevenueCents: 700}},
		OpenTabCents: 200,
		Entries: []domain.LedgerEntry{{
			ID: "led-1", Kind: domain.LedgerIncome, AmountCents: 500, Memo: domain.MemoSale, Date: day, CreatedAt: at,
		}},
	})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "led-1", stored[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitSaleRollsBackOnFailure(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO daily_aggregates")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.CommitSale(context.Background(), domain.Sale{
		Date:       day,
		Increments: []domain.DailyAggregateRow{{ProductID: "p-bier", Quantity: 1, RevenueCents: 350}},
		Entries:    []domain.LedgerEntry{{Kind: domain.LedgerIncome, AmountCents: 350, Memo: domain.MemoSale, Date: day}},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitSaleUnknownProductMapsToNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO daily_aggregates")).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	_, err := s.CommitSale(context.Background(), domain.Sale{
		Date:       day,
		Increments: []domain.DailyAggregateRow{{ProductID: "p-ghost", Quantity: 1, RevenueCents: 100}},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendCloseEntriesMapsUniqueViolation(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ledger_entries_day_close_uidx"})
	mock.ExpectRollback()

	_, err := s.AppendCloseEntries(context.Background(), day, []domain.LedgerEntry{
		{Kind: domain.LedgerIncome, AmountCents: 1200, Memo: domain.MemoDayClose, Date: day},
	})
	assert.ErrorIs(t, err, store.ErrAlreadyClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendCloseEntriesRejectsForeignDates(t *testing.T) {
	s, mock := newMock(t)

	_, err := s.AppendCloseEntries(context.Background(), day, []domain.LedgerEntry{
		{Kind: domain.LedgerIncome, AmountCents: 1200, Memo: domain.MemoDayClose, Date: "2026-05-02"},
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListLedgerEntriesBuildsFilter(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "kind", "amount_cents", "memo", "business_date", "created_at"}).
		AddRow("led-2", "expense", int64(1990), "Eis", day, at)
	mock.ExpectQuery(`WHERE business_date >= \$1::date AND business_date <= \$2::date AND kind = \$3\s+ORDER BY created_at DESC, id DESC\s+LIMIT \$4`).
		WithArgs(day, day, "expense", 10).
		WillReturnRows(rows)

	entries, err := s.ListLedgerEntries(context.Background(), domain.LedgerFilter{
		From: day, To: day, Kind: domain.LedgerExpense, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.LedgerExpense, entries[0].Kind)
	assert.Equal(t, money.Cents(1990), entries[0].AmountCents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSumSaleIncomeMatchesSalePrefix(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("memo LIKE $2")).
		WithArgs(day, "Verkauf%").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(4200)))

	total, err := s.SumSaleIncome(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(4200), total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOpenTabDefaultsToZero(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM open_tabs")).
		WithArgs(day).
		WillReturnRows(sqlmock.NewRows([]string{"amount_cents"}))

	record, err := s.GetOpenTab(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, domain.OpenTabRecord{Date: day}, record)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTillCountRoundTripsCountsAsJSON(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2026, 5, 1, 23, 40, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO till_counts")).
		WithArgs(day, `{"10":3,"5000":2}`, "Abend", int64(10030), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := s.UpsertTillCount(context.Background(), domain.TillCount{
		Date: day, Counts: map[money.Cents]int64{5000: 2, 10: 3}, Note: "Abend", TotalCents: 10030, CountedAt: at,
	})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM till_counts")).
		WithArgs(day).
		WillReturnRows(sqlmock.NewRows([]string{"business_date", "counts", "note", "total_cents", "counted_at"}).
			AddRow(day, []byte(`{"10":3,"5000":2}`), "Abend", int64(10030), at))

	got, err := s.GetTillCount(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, map[money.Cents]int64{5000: 2, 10: 3}, got.Counts)
	assert.Equal(t, money.Cents(10030), got.TotalCents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTillCountMissingIsNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM till_counts")).
		WithArgs(day).
		WillReturnRows(sqlmock.NewRows([]string{"business_date", "counts", "note", "total_cents", "counted_at"}))

	_, err := s.GetTillCount(context.Background(), day)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
