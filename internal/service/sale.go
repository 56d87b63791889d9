package service

import (
	"context"

	"go.uber.org/zap"

	"vereinskasse/backend/internal/basket"
	"vereinskasse/backend/internal/domain"
)

// BuildBasket fills a basket from request lines using the current catalog
// prices.
func (s *Service) BuildBasket(ctx context.Context, lines []domain.SaleLine) (basket.Basket, error) {
	b := basket.New()
	if len(lines) == 0 {
		return b, ErrEmptyBasket
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return b, persistence("load products", err)
	}

	for _, line := range lines {
		if line.Quantity < 1 {
			return basket.New(), invalidf("quantity for %s must be positive", line.ProductID)
		}
		product, ok := products[line.ProductID]
		if !ok {
			return basket.New(), invalidf("unknown product %s", line.ProductID)
		}
		for i := 0; i < line.Quantity; i++ {
			b, err = b.Add(product)
			if err != nil {
				return basket.New(), invalidf("%s: %v", line.ProductID, err)
			}
		}
	}
	return b, nil
}

// PreviewSale returns the split for a request without writing anything.
func (s *Service) PreviewSale(ctx context.Context, req domain.SaleRequest) (domain.PaymentSplit, error) {
	b, err := s.BuildBasket(ctx, req.Lines)
	if err != nil {
		return domain.PaymentSplit{}, err
	}
	total := b.Total()
	if total <= 0 {
		return domain.PaymentSplit{}, ErrEmptyBasket
	}
	return basket.ComputeSplit(total, req.Tendered, req.OpenTab), nil
}

// CommitSaleRequest is the one-shot form of Commit used by the HTTP API.
func (s *Service) CommitSaleRequest(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	b, err := s.BuildBasket(ctx, req.Lines)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	form := basket.SplitForm{OpenTab: req.OpenTab}.WithTendered(req.Tendered, b.Total())
	_, resp, err := s.Commit(ctx, b, form)
	return resp, err
}

// Commit persists the basket: one aggregate increment per line, the cash
// income, the tip when tips are booked at commit, and the open tab, all in a
// single repository call. On success the returned basket is empty; on
// failure it is the unchanged input.
func (s *Service) Commit(ctx context.Context, b basket.Basket, form basket.SplitForm) (basket.Basket, domain.SaleResponse, error) {
	total := b.Total()
	if total <= 0 {
		return b, domain.SaleResponse{}, ErrEmptyBasket
	}

	split := form.Split(total)
	now := s.now().UTC()
	date := s.BusinessDate(now)

	lines := b.Lines()
	sale := domain.Sale{
		Date:         date,
		Increments:   make([]domain.DailyAggregateRow, 0, len(lines)),
		OpenTabCents: split.OpenTabCents,
		Entries:      make([]domain.LedgerEntry, 0, 2),
	}
	for _, line := range lines {
		sale.Increments = append(sale.Increments, domain.DailyAggregateRow{
			Date:         date,
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			RevenueCents: line.RevenueCents(),
		})
	}
	if split.DueInCashCents > 0 {
		sale.Entries = append(sale.Entries, domain.LedgerEntry{
			Kind:        domain.LedgerIncome,
			AmountCents: split.DueInCashCents,
			Memo:        domain.MemoSale,
			Date:        date,
			CreatedAt:   now,
		})
	}
	if split.TipCents > 0 && s.tipBooking == TipAtCommit {
		sale.Entries = append(sale.Entries, domain.LedgerEntry{
			Kind:        domain.LedgerTip,
			AmountCents: split.TipCents,
			Memo:        domain.MemoSaleTip,
			Date:        date,
			CreatedAt:   now,
		})
	}

	stored, err := s.repo.CommitSale(ctx, sale)
	if err != nil {
		s.logger.Error("commit sale failed",
			zap.String("date", date),
			zap.Int64("total_cents", int64(total)),
			zap.Error(err),
		)
		return b, domain.SaleResponse{}, persistence("commit sale", err)
	}

	for _, entry := range stored {
		s.recorder.LedgerBooked(entry.Kind, entry.AmountCents)
	}
	s.recorder.SaleCommitted(split.TotalCents, split.OpenTabCents, split.TipCents)
	s.invalidate(ctx, date)
	s.logger.Info("sale committed",
		zap.String("date", date),
		zap.Int("lines", len(lines)),
		zap.Int64("total_cents", int64(split.TotalCents)),
		zap.Int64("cash_cents", int64(split.DueInCashCents)),
		zap.Int64("open_tab_cents", int64(split.OpenTabCents)),
		zap.Int64("tip_cents", int64(split.TipCents)),
	)

	return basket.New(), domain.SaleResponse{Date: date, Split: split, Entries: stored}, nil
}
