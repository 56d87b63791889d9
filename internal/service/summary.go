package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/money"
	"vereinskasse/backend/internal/store"
	"vereinskasse/backend/internal/till"
)

// SaveTillCount replaces the till count of date.
func (s *Service) SaveTillCount(ctx context.Context, date string, req domain.TillCountRequest) (domain.TillCount, error) {
	date, err := s.ResolveDate(date)
	if err != nil {
		return domain.TillCount{}, err
	}
	counts, err := till.ParseCounts(req.Counts, s.denominations)
	if err != nil {
		return domain.TillCount{}, invalidf("%v", err)
	}

	saved, err := s.repo.UpsertTillCount(ctx, domain.TillCount{
		Date:       date,
		Counts:     counts,
		Note:       strings.TrimSpace(req.Note),
		TotalCents: till.CountTotal(counts, s.denominations),
		CountedAt:  s.now().UTC(),
	})
	if err != nil {
		return domain.TillCount{}, persistence("save till count", err)
	}

	s.invalidate(ctx, date)
	s.logger.Info("till counted", zap.String("date", date), zap.Int64("total_cents", int64(saved.TotalCents)))
	return *saved, nil
}

// GetTillCount returns store.ErrNotFound, wrapped, when the day was not counted.
func (s *Service) GetTillCount(ctx context.Context, date string) (domain.TillCount, error) {
	date, err := s.ResolveDate(date)
	if err != nil {
		return domain.TillCount{}, err
	}
	count, err := s.repo.GetTillCount(ctx, date)
	if err != nil {
		return domain.TillCount{}, persistence("get till count", err)
	}
	return *count, nil
}

// ExpectedCash is what the drawer should hold at the end of date according to
// the ledger: income and tips minus expenses, all days up to date included.
func (s *Service) ExpectedCash(ctx context.Context, date string) (money.Cents, error) {
	sums, err := s.sumKinds(ctx, "", date)
	if err != nil {
		return 0, err
	}
	return sums[domain.LedgerIncome] + sums[domain.LedgerTip] - sums[domain.LedgerExpense], nil
}

// DaySummary is the read-only reconciliation of one business day.
func (s *Service) DaySummary(ctx context.Context, date string) (domain.DaySummary, error) {
	date, err := s.ResolveDate(date)
	if err != nil {
		return domain.DaySummary{}, err
	}

	cached, found, err := s.cache.Get(ctx, date)
	if err != nil {
		s.logger.Warn("day summary cache read failed", zap.String("date", date), zap.Error(err))
	}
	if found && cached != nil {
		s.recorder.SummaryCache(true)
		return *cached, nil
	}
	s.recorder.SummaryCache(false)

	generation := s.writes.Load()
	summary, err := s.buildDaySummary(ctx, date)
	if err != nil {
		return domain.DaySummary{}, err
	}

	if err := s.cache.Set(ctx, date, &summary, s.cacheTTL); err != nil {
		s.logger.Warn("day summary cache write failed", zap.String("date", date), zap.Error(err))
	}
	if s.writes.Load() != generation {
		// A write landed while the summary was built; drop what was just stored.
		if err := s.cache.Invalidate(ctx, date); err != nil {
			s.logger.Warn("day summary cache invalidation failed", zap.String("date", date), zap.Error(err))
		}
	}
	return summary, nil
}

func (s *Service) buildDaySummary(ctx context.Context, date string) (domain.DaySummary, error) {
	var (
		rows     []domain.DailyAggregateRow
		products map[string]domain.Product
		cash     money.Cents
		openTab  domain.OpenTabRecord
		tips     money.Cents
		closed   bool
		count    *domain.TillCount
		expected money.Cents
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.repo.ListDailyAggregates(gctx, date)
		if err != nil {
			return persistence("list daily aggregates", err)
		}
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ProductID)
		}
		products, err = s.repo.GetProductsByIDs(gctx, ids)
		return persistence("load products", err)
	})
	g.Go(func() error {
		var err error
		cash, err = s.repo.SumSaleIncome(gctx, date)
		return persistence("sum sale income", err)
	})
	g.Go(func() error {
		var err error
		openTab, err = s.repo.GetOpenTab(gctx, date)
		return persistence("get open tab", err)
	})
	g.Go(func() error {
		var err error
		tips, err = s.repo.SumLedger(gctx, domain.LedgerTip, date, date)
		return persistence("sum tips", err)
	})
	g.Go(func() error {
		var err error
		closed, err = s.repo.IsDayClosed(gctx, date)
		return persistence("check day close", err)
	})
	g.Go(func() error {
		var err error
		count, err = s.repo.GetTillCount(gctx, date)
		if errors.Is(err, store.ErrNotFound) {
			count = nil
			return nil
		}
		return persistence("get till count", err)
	})
	g.Go(func() error {
		var err error
		expected, err = s.ExpectedCash(gctx, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.DaySummary{}, err
	}

	summary := domain.DaySummary{
		Date:               date,
		Lines:              make([]domain.DaySummaryLine, 0, len(rows)),
		CashCollectedCents: cash,
		RecordedTabCents:   openTab.AmountCents,
		TipCents:           tips,
		Closed:             closed,
	}
	for _, row := range rows {
		name := row.ProductID
		if p, ok := products[row.ProductID]; ok {
			name = p.Name
		}
		summary.Lines = append(summary.Lines, domain.DaySummaryLine{
			ProductID:    row.ProductID,
			Name:         name,
			Quantity:     row.Quantity,
			RevenueCents: row.RevenueCents,
		})
		summary.TotalSoldCents += row.RevenueCents
	}
	summary.OpenTabCents = money.Max(0, summary.TotalSoldCents-cash)

	if count != nil {
		summary.Till = &domain.TillReconciliation{
			CountedCents:    count.TotalCents,
			ExpectedCents:   expected,
			DifferenceCents: till.Reconcile(count.TotalCents, expected),
			Note:            count.Note,
		}
	}
	return summary, nil
}
