package service

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"vereinskasse/backend/internal/cache"
	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/money"
	"vereinskasse/backend/internal/store"
	"vereinskasse/backend/internal/till"
)

// TipBooking decides when overpayment is written to the ledger.
type TipBooking string

const (
	TipAtCommit TipBooking = "at_commit"
	TipAtClose  TipBooking = "at_close"
)

func (t TipBooking) Valid() bool {
	return t == TipAtCommit || t == TipAtClose
}

// Recorder receives business events for metrics.
type Recorder interface {
	SaleCommitted(total money.Cents, openTab money.Cents, tip money.Cents)
	LedgerBooked(kind domain.LedgerKind, amount money.Cents)
	DayClosed(outcome string)
	SummaryCache(hit bool)
}

type noopRecorder struct{}

func (noopRecorder) SaleCommitted(money.Cents, money.Cents, money.Cents) {}
func (noopRecorder) LedgerBooked(domain.LedgerKind, money.Cents) {}
func (noopRecorder) DayClosed(string) {}
func (noopRecorder) SummaryCache(bool) {}

type Options struct {
	Location      *time.Location
	TipBooking    TipBooking
	Denominations []money.Cents
	Cache         cache.DaySummaryCache
	CacheTTL      time.Duration
	Logger        *zap.Logger
	Recorder      Recorder
	Now           func() time.Time
}

type Service struct {
	repo          store.Repository
	location      *time.Location
	tipBooking    TipBooking
	denominations []money.Cents
	cache         cache.DaySummaryCache
	cacheTTL      time.Duration
	logger        *zap.Logger
	recorder      Recorder
	now           func() time.Time

	// writes counts cache invalidations so a summary built across a write
	// is not left in the cache.
	writes atomic.Uint64
}

func New(repo store.Repository, opts Options) *Service {
	svc := &Service{
		repo:          repo,
		location:      opts.Location,
		tipBooking:    opts.TipBooking,
		denominations: opts.Denominations,
		cache:         opts.Cache,
		cacheTTL:      opts.CacheTTL,
		logger:        opts.Logger,
		recorder:      opts.Recorder,
		now:           opts.Now,
	}
	if svc.location == nil {
		svc.location = time.UTC
	}
	if !svc.tipBooking.Valid() {
		svc.tipBooking = TipAtCommit
	}
	if len(svc.denominations) == 0 {
		svc.denominations = till.DefaultDenominations
	}
	if svc.cache == nil {
		svc.cache = cache.NoopDaySummaryCache{}
	}
	if svc.cacheTTL <= 0 {
		svc.cacheTTL = 30 * time.Second
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.recorder == nil {
		svc.recorder = noopRecorder{}
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

func (s *Service) TipBooking() TipBooking {
	return s.tipBooking
}

func (s *Service) Denominations() []money.Cents {
	return append([]money.Cents(nil), s.denominations...)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, persistence("list products", err)
	}
	return products, nil
}

// BusinessDate is the calendar day of t at the venue.
func (s *Service) BusinessDate(t time.Time) string {
	return t.In(s.location).Format(domain.DateLayout)
}

func (s *Service) Today() string {
	return s.BusinessDate(s.now())
}

// ResolveDate accepts "", "today", "yesterday" or a YYYY-MM-DD day.
func (s *Service) ResolveDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "today":
		return s.Today(), nil
	case "yesterday":
		return s.BusinessDate(s.now().In(s.location).AddDate(0, 0, -1)), nil
	}
	day, err := parseDay(raw)
	if err != nil {
		return "", invalidf("date %q", raw)
	}
	return day, nil
}

func parseDay(raw string) (string, error) {
	parsed, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return "", err
	}
	return parsed.Format(domain.DateLayout), nil
}

func (s *Service) invalidate(ctx context.Context, dates ...string) {
	dates = append(dates, s.Today())
	s.writes.Add(1)
	if err := s.cache.Invalidate(ctx, dates...); err != nil {
		s.logger.Warn("day summary cache invalidation failed", zap.Strings("dates", dates), zap.Error(err))
	}
}
