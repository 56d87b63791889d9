package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/money"
)

// Metrics owns a private registry with HTTP and register metrics. It also
// satisfies service.Recorder.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	salesTotal      prometheus.Counter
	salesCents      *prometheus.CounterVec
	ledgerCents     *prometheus.CounterVec
	dayCloses       *prometheus.CounterVec
	summaryCache    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vereinskasse_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vereinskasse_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sales := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vereinskasse_sales_total",
		Help: "Committed sales.",
	})
	salesCents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vereinskasse_sales_cents_total",
		Help: "Committed sale amounts in cents by part (total, open_tab, tip).",
	}, []string{"part"})
	ledger := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vereinskasse_ledger_booked_cents_total",
		Help: "Ledger bookings in cents by kind.",
	}, []string{"kind"})
	closes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vereinskasse_day_close_total",
		Help: "Day close attempts by outcome.",
	}, []string{"outcome"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vereinskasse_day_summary_cache_total",
		Help: "Day summary cache lookups by result.",
	}, []string{"result"})
	registry.MustRegister(
		requests, duration, sales, salesCents, ledger, closes, cache,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		salesTotal:      sales,
		salesCents:      salesCents,
		ledgerCents:     ledger,
		dayCloses:       closes,
		summaryCache:    cache,
	}
}

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and duration per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) SaleCommitted(total money.Cents, openTab money.Cents, tip money.Cents) {
	m.salesTotal.Inc()
	m.salesCents.WithLabelValues("total").Add(float64(total))
	m.salesCents.WithLabelValues("open_tab").Add(float64(openTab))
	m.salesCents.WithLabelValues("tip").Add(float64(tip))
}

func (m *Metrics) LedgerBooked(kind domain.LedgerKind, amount money.Cents) {
	if amount <= 0 {
		return
	}
	m.ledgerCents.WithLabelValues(string(kind)).Add(float64(amount))
}

func (m *Metrics) DayClosed(outcome string) {
	m.dayCloses.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SummaryCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.summaryCache.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
