package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/observability"
	"vereinskasse/backend/internal/service"
	"vereinskasse/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type Options struct {
	AllowedOrigin  string
	WriteRateLimit int
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

type API struct {
	service        *service.Service
	allowedOrigin  string
	writeRateLimit int
	logger         *zap.Logger
	metrics        *observability.Metrics
	validate       *validator.Validate
}

func New(svc *service.Service, opts Options) *API {
	api := &API{
		service:        svc,
		allowedOrigin:  opts.AllowedOrigin,
		writeRateLimit: opts.WriteRateLimit,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
	if api.allowedOrigin == "" {
		api.allowedOrigin = "*"
	}
	if api.writeRateLimit < 1 {
		api.writeRateLimit = 120
	}
	if api.logger == nil {
		api.logger = zap.NewNop()
	}
	return api
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}).Handler)
	r.Use(middleware.RequestSize(maxBodyBytes))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(a.metrics.Middleware)
	r.Use(a.accessLog)

	r.MethodNotAllowed(writeMethodNotAllowed)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	})

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	writeLimiter := httprate.Limit(a.writeRateLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many requests"))
		}),
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", a.handleProducts)
		r.Post("/sales/preview", a.handleSalePreview)
		r.Get("/days/{date}/summary", a.handleDaySummary)
		r.Get("/days/{date}/till-count", a.handleGetTillCount)
		r.Get("/ledger", a.handleListLedger)
		r.Get("/ledger/balance", a.handleLedgerBalance)
		r.Get("/ledger/sum", a.handleLedgerSum)
		r.Get("/till/denominations", a.handleDenominations)

		r.Group(func(r chi.Router) {
			r.Use(writeLimiter)
			r.Post("/sales", a.handleCommitSale)
			r.Post("/days/{date}/close", a.handleCloseDay)
			r.Put("/days/{date}/till-count", a.handlePutTillCount)
			r.Post("/ledger", a.handleAppendLedger)
		})
	})
	return r
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"at":          time.Now().UTC().Format(time.RFC3339),
		"today":       a.service.Today(),
		"tip_booking": a.service.TipBooking(),
	})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleSalePreview(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	split, err := a.service.PreviewSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, split)
}

func (a *API) handleCommitSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	resp, err := a.service.CommitSaleRequest(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleDaySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.DaySummary(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleCloseDay accepts an empty body when no tip was counted.
func (a *API) handleCloseDay(w http.ResponseWriter, r *http.Request) {
	var req domain.DayCloseRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.CloseDay(r.Context(), chi.URLParam(r, "date"), req.Tip)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleGetTillCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.service.GetTillCount(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, count)
}

func (a *API) handlePutTillCount(w http.ResponseWriter, r *http.Request) {
	var req domain.TillCountRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	count, err := a.service.SaveTillCount(r.Context(), chi.URLParam(r, "date"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, count)
}

func (a *API) handleListLedger(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.LedgerFilter{
		From:  query.Get("from"),
		To:    query.Get("to"),
		Kind:  domain.LedgerKind(strings.ToLower(strings.TrimSpace(query.Get("kind")))),
		Limit: parsePositiveLimit(query.Get("limit"), 200, 1000),
	}
	resp, err := a.service.ListLedger(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAppendLedger(w http.ResponseWriter, r *http.Request) {
	var req domain.LedgerEntryRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	entry, err := a.service.AppendLedgerEntry(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) handleLedgerBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.service.LedgerBalance(r.Context(), r.URL.Query().Get("as_of"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleLedgerSum(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	kind := domain.LedgerKind(strings.ToLower(strings.TrimSpace(query.Get("kind"))))
	total, err := a.service.SumByKind(r.Context(), kind, query.Get("from"), query.Get("to"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.LedgerSum{
		Kind:       kind,
		From:       strings.TrimSpace(query.Get("from")),
		To:         strings.TrimSpace(query.Get("to")),
		TotalCents: total,
	})
}

func (a *API) handleDenominations(w http.ResponseWriter, _ *http.Request) {
	denoms := a.service.Denominations()
	resp := domain.DenominationsResponse{Denominations: make([]domain.Denomination, 0, len(denoms))}
	for _, d := range denoms {
		resp.Denominations = append(resp.Denominations, domain.Denomination{Cents: d, Label: d.String()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) decodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		writeError(w, http.StatusBadRequest, validationError(err))
		return false
	}
	return true
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fieldErr.Namespace(), fieldErr.Tag()))
	}
	return fmt.Errorf("validation: %s", strings.Join(parts, "; "))
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrEmptyBasket),
		errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyClosed),
		errors.Is(err, service.ErrNothingToClose):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(startedAt)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; details go to the log.
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
