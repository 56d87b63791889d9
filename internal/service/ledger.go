package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/money"
)

const (
	defaultLedgerLimit = 200
	maxLedgerLimit     = 1000
)

// AppendLedgerEntry books a manual entry dated today. The day close memo is
// reserved for CloseDay.
func (s *Service) AppendLedgerEntry(ctx context.Context, req domain.LedgerEntryRequest) (domain.LedgerEntry, error) {
	kind := domain.LedgerKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if !kind.Valid() {
		return domain.LedgerEntry{}, invalidf("kind %q", req.Kind)
	}
	amount, err := money.Parse(req.Amount)
	if err != nil || amount <= 0 {
		return domain.LedgerEntry{}, invalidf("amount must be greater than zero")
	}
	memo := strings.TrimSpace(req.Memo)
	if memo == domain.MemoDayClose {
		return domain.LedgerEntry{}, invalidf("memo %q is reserved", memo)
	}

	now := s.now().UTC()
	date := s.BusinessDate(now)
	saved, err := s.repo.AppendLedgerEntry(ctx, domain.LedgerEntry{
		Kind:        kind,
		AmountCents: amount,
		Memo:        memo,
		Date:        date,
		CreatedAt:   now,
	})
	if err != nil {
		return domain.LedgerEntry{}, persistence("append ledger entry", err)
	}

	s.recorder.LedgerBooked(saved.Kind, saved.AmountCents)
	s.invalidate(ctx, date)
	s.logger.Info("ledger entry booked",
		zap.String("id", saved.ID),
		zap.String("kind", string(saved.Kind)),
		zap.Int64("amount_cents", int64(saved.AmountCents)),
		zap.String("date", date),
	)
	return *saved, nil
}

// ListLedger returns entries newest first.
func (s *Service) ListLedger(ctx context.Context, filter domain.LedgerFilter) (domain.LedgerListResponse, error) {
	var err error
	if filter.From, err = optionalDate(filter.From); err != nil {
		return domain.LedgerListResponse{}, err
	}
	if filter.To, err = optionalDate(filter.To); err != nil {
		return domain.LedgerListResponse{}, err
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return domain.LedgerListResponse{}, invalidf("kind %q", filter.Kind)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLedgerLimit
	}
	if filter.Limit > maxLedgerLimit {
		filter.Limit = maxLedgerLimit
	}

	entries, err := s.repo.ListLedgerEntries(ctx, filter)
	if err != nil {
		return domain.LedgerListResponse{}, persistence("list ledger", err)
	}
	return domain.LedgerListResponse{Entries: entries}, nil
}

// SumByKind totals one kind over the inclusive date range; empty bounds are
// open.
func (s *Service) SumByKind(ctx context.Context, kind domain.LedgerKind, from string, to string) (money.Cents, error) {
	if !kind.Valid() {
		return 0, invalidf("kind %q", kind)
	}
	var err error
	if from, err = optionalDate(from); err != nil {
		return 0, err
	}
	if to, err = optionalDate(to); err != nil {
		return 0, err
	}

	total, err := s.repo.SumLedger(ctx, kind, from, to)
	if err != nil {
		return 0, persistence("sum ledger", err)
	}
	return total, nil
}

// LedgerBalance is income minus expense up to and including asOf. Tips are
// reported next to it.
func (s *Service) LedgerBalance(ctx context.Context, asOf string) (domain.LedgerBalance, error) {
	date, err := optionalDate(asOf)
	if err != nil {
		return domain.LedgerBalance{}, err
	}

	sums, err := s.sumKinds(ctx, "", date)
	if err != nil {
		return domain.LedgerBalance{}, err
	}
	return domain.LedgerBalance{
		AsOf:         date,
		IncomeCents:  sums[domain.LedgerIncome],
		ExpenseCents: sums[domain.LedgerExpense],
		TipCents:     sums[domain.LedgerTip],
		BalanceCents: sums[domain.LedgerIncome] - sums[domain.LedgerExpense],
	}, nil
}

// CloseDay books what was sold on date but not paid in cash as income, plus
// an optional tip counted at the end of the evening. A day closes once.
func (s *Service) CloseDay(ctx context.Context, date string, manualTipRaw string) (domain.DayCloseResponse, error) {
	date, err := s.ResolveDate(date)
	if err != nil {
		return domain.DayCloseResponse{}, err
	}

	var tip money.Cents
	if strings.TrimSpace(manualTipRaw) != "" {
		tip, err = money.Parse(manualTipRaw)
		if err != nil || tip < 0 {
			return domain.DayCloseResponse{}, invalidf("tip %q", manualTipRaw)
		}
	}

	closed, err := s.repo.IsDayClosed(ctx, date)
	if err != nil {
		return domain.DayCloseResponse{}, persistence("check day close", err)
	}
	if closed {
		s.recorder.DayClosed("already_closed")
		return domain.DayCloseResponse{}, ErrAlreadyClosed
	}

	sold, cash, err := s.soldAndCash(ctx, date)
	if err != nil {
		return domain.DayCloseResponse{}, err
	}
	openAmount := money.Max(0, sold-cash)
	if openAmount == 0 && tip == 0 {
		s.recorder.DayClosed("nothing_to_close")
		return domain.DayCloseResponse{}, ErrNothingToClose
	}

	now := s.now().UTC()
	entries := make([]domain.LedgerEntry, 0, 2)
	tipMemo := domain.MemoDayClose
	if openAmount > 0 {
		entries = append(entries, domain.LedgerEntry{
			Kind:        domain.LedgerIncome,
			AmountCents: openAmount,
			Memo:        domain.MemoDayClose,
			Date:        date,
			CreatedAt:   now,
		})
		tipMemo = domain.MemoCloseTip
	}
	if tip > 0 {
		entries = append(entries, domain.LedgerEntry{
			Kind:        domain.LedgerTip,
			AmountCents: tip,
			Memo:        tipMemo,
			Date:        date,
			CreatedAt:   now,
		})
	}

	stored, err := s.repo.AppendCloseEntries(ctx, date, entries)
	if errors.Is(err, ErrAlreadyClosed) {
		s.recorder.DayClosed("already_closed")
		return domain.DayCloseResponse{}, ErrAlreadyClosed
	}
	if err != nil {
		return domain.DayCloseResponse{}, persistence("close day", err)
	}

	for _, entry := range stored {
		s.recorder.LedgerBooked(entry.Kind, entry.AmountCents)
	}
	s.recorder.DayClosed("closed")
	s.invalidate(ctx, date)
	s.logger.Info("day closed",
		zap.String("date", date),
		zap.Int64("sold_cents", int64(sold)),
		zap.Int64("cash_cents", int64(cash)),
		zap.Int64("open_tab_cents", int64(openAmount)),
		zap.Int64("tip_cents", int64(tip)),
	)
	return domain.DayCloseResponse{Date: date, Entries: stored}, nil
}

func (s *Service) soldAndCash(ctx context.Context, date string) (money.Cents, money.Cents, error) {
	rows, err := s.repo.ListDailyAggregates(ctx, date)
	if err != nil {
		return 0, 0, persistence("list daily aggregates", err)
	}
	var sold money.Cents
	for _, row := range rows {
		sold += row.RevenueCents
	}
	cash, err := s.repo.SumSaleIncome(ctx, date)
	if err != nil {
		return 0, 0, persistence("sum sale income", err)
	}
	return sold, cash, nil
}

func (s *Service) sumKinds(ctx context.Context, from string, to string) (map[domain.LedgerKind]money.Cents, error) {
	sums := make(map[domain.LedgerKind]money.Cents, 3)
	for _, kind := range []domain.LedgerKind{domain.LedgerIncome, domain.LedgerExpense, domain.LedgerTip} {
		total, err := s.repo.SumLedger(ctx, kind, from, to)
		if err != nil {
			return nil, persistence("sum ledger", err)
		}
		sums[kind] = total
	}
	return sums, nil
}

func optionalDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, err := parseDay(raw)
	if err != nil {
		return "", invalidf("date %q", raw)
	}
	return parsed, nil
}
