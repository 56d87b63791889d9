package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/observability"
	"vereinskasse/backend/internal/service"
	"vereinskasse/backend/internal/store"
	"vereinskasse/backend/internal/store/memory"
)

var fixedNow = time.Date(2026, 5, 1, 19, 30, 0, 0, time.UTC)

const today = "2026-05-01"

// newTestAPI wires the real service over the seeded in-memory store so
// handler tests exercise the complete request path.
func newTestAPI(t *testing.T, repo store.Repository, opts Options) http.Handler {
	t.Helper()
	if repo == nil {
		repo = memory.NewSeeded()
	}
	svc := service.New(repo, service.Options{
		Now: func() time.Time { return fixedNow },
	})
	return New(svc, opts).Handler()
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (raw: %s)", err, rec.Body.String())
	}
}

var scenarioLines = []domain.SaleLine{
	{ProductID: "p-bier", Quantity: 2},
	{ProductID: "p-brezel", Quantity: 1},
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t, nil, Options{})

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true || body["today"] != today {
		t.Fatalf("unexpected health body %v", body)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers")
	}
}

func TestHandleProducts(t *testing.T) {
	handler := newTestAPI(t, nil, Options{})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Products []domain.Product `json:"products"`
	}
	decodeBody(t, rec, &body)
	found := false
	for _, p := range body.Products {
		if p.ID == "p-bier" && p.UnitPriceCents == 350 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected p-bier in catalog, got %+v", body.Products)
	}
}

func TestSalePreviewDoesNotBook(t *testing.T) {
	repo := memory.NewSeeded()
	handler := newTestAPI(t, repo, Options{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales/preview", domain.SaleRequest{
		Lines:    scenarioLines,
		Tendered: "5",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var split domain.PaymentSplit
	decodeBody(t, rec, &split)
	if split.TotalCents != 900 || split.OpenTabCents != 400 || split.DueInCashCents != 500 || split.TipCents != 0 {
		t.Fatalf("unexpected split %+v", split)
	}

	entries, err := repo.ListLedgerEntries(context.Background(), domain.LedgerFilter{})
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("preview must not book, got %d entries", len(entries))
	}
}

func TestCommitSaleThenSummaryAndClose(t *testing.T) {
	handler := newTestAPI(t, nil, Options{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Lines:    scenarioLines,
		Tendered: "5,00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var sale domain.SaleResponse
	decodeBody(t, rec, &sale)
	if sale.Date != today || sale.Split.OpenTabCents != 400 || len(sale.Entries) != 1 {
		t.Fatalf("unexpected sale response %+v", sale)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/days/"+today+"/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary domain.DaySummary
	decodeBody(t, rec, &summary)
	if summary.TotalSoldCents != 900 || summary.CashCollectedCents != 500 || summary.OpenTabCents != 400 || summary.Closed {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/days/today/close", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on first close, got %d (%s)", rec.Code, rec.Body.String())
	}
	var closed domain.DayCloseResponse
	decodeBody(t, rec, &closed)
	if len(closed.Entries) != 1 || closed.Entries[0].Memo != domain.MemoDayClose || closed.Entries[0].AmountCents != 400 {
		t.Fatalf("unexpected close entries %+v", closed.Entries)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/days/"+today+"/close", domain.DayCloseRequest{Tip: "2"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second close, got %d", rec.Code)
	}
}

func TestCloseDayWithNothingToBook(t *testing.T) {
	handler := newTestAPI(t, nil, Options{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/days/"+today+"/close", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCommitSaleRejectsBadInput(t *testing.T) {
	handler := newTestAPI(t, nil, Options{})

	cases := []struct {
		name string
		body any
	}{
		{name: "empty lines", body: domain.SaleRequest{}},
		{name: "zero quantity", body: domain.SaleRequest{Lines: []domain.SaleLine{{ProductID: "p-bier"}}}},
		{name: "unknown product", body: domain.SaleRequest{Lines: []domain.SaleLine{{ProductID: "p-sekt", Quantity: 1}}}},
		{name: "inactive product", body: domain.SaleRequest{Lines: []domain.SaleLine{{ProductID: "p-gluehwein", Quantity: 1}}}},
		{name: "unknown field", body: map[string]any{"lines": scenarioLines, "discount": 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDaySummaryRejectsBadDate(t *testing.T) {
	handler := newTestAPI(t, nil, Options{})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/days/01.05.2026/summary", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTillCountRoundTrip(t *testing.T) {
	handler := newTestAPI(t, nil, Options{})
	path := "/api/v1/days/" + today + "/till-count"

	rec := doJSON(t, handler, http.MethodGet, path, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before counting, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, path, domain.TillCountRequest{
		Counts: map[string]string{"50": "2", "0,10": "3", "2": "x"},
		Note:   "nach Feierabend",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var count domain.TillCount
	decodeBody(t, rec, &count)
	if count.TotalCents != 10030 || count.Note != "nach Feierabend" {
		t.Fatalf("unexpected till count %+v", count)
	}

	rec = doJSON(t, handler, http.MethodPut, path, domain.TillCountRequest{
		Counts: map[string]string{"3": "1"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown denomination, got %d", rec.Code)
	}
}

func TestLedgerEndpoints(t *testing.T) {
	handler := newTestAPI(t, nil, Options{})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/ledger", domain.LedgerEntryRequest{Kind: "donation", Amount: "5"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/ledger", domain.LedgerEntryRequest{Kind: "expense", Amount: "0"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero amount, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/ledger", domain.LedgerEntryRequest{Kind: "income", Amount: "1", Memo: domain.MemoDayClose})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for reserved memo, got %d", rec.Code)
	}

	for _, req := range []domain.LedgerEntryRequest{
		{Kind: "income", Amount: "100", Memo: "Wechselgeld"},
		{Kind: "expense", Amount: "12,50", Memo: "Eis"},
	} {
		rec = doJSON(t, handler, http.MethodPost, "/api/v1/ledger", req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
		}
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/ledger?kind=expense&from="+today, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list domain.LedgerListResponse
	decodeBody(t, rec, &list)
	if len(list.Entries) != 1 || list.Entries[0].AmountCents != 1250 {
		t.Fatalf("unexpected ledger list %+v", list.Entries)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/ledger/balance?as_of="+today, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var balance domain.LedgerBalance
	decodeBody(t, rec, &balance)
	if balance.IncomeCents != 10000 || balance.ExpenseCents != 1250 || balance.BalanceCents != 8750 {
		t.Fatalf("unexpected balance %+v", balance)
	}
}

func TestLedgerSumByKind(t *testing.T) {
	handler := newTestAPI(t, nil, Options{})

	for _, req := range []domain.LedgerEntryRequest{
		{Kind: "expense", Amount: "12,50", Memo: "Eis"},
		{Kind: "expense", Amount: "7,50", Memo: "Becher"},
		{Kind: "income", Amount: "100", Memo: "Wechselgeld"},
	} {
		if rec := doJSON(t, handler, http.MethodPost, "/api/v1/ledger", req); rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/ledger/sum?kind=Expense&from="+today+"&to="+today, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var sum domain.LedgerSum
	decodeBody(t, rec, &sum)
	if sum.Kind != domain.LedgerExpense || sum.TotalCents != 2000 || sum.From != today {
		t.Fatalf("unexpected sum %+v", sum)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/ledger/sum?kind=expense&to=2026-04-30", nil)
	decodeBody(t, rec, &sum)
	if rec.Code != http.StatusOK || sum.TotalCents != 0 {
		t.Fatalf("expected empty range to sum to zero, got %d %+v", rec.Code, sum)
	}

	for _, path := range []string{
		"/api/v1/ledger/sum",
		"/api/v1/ledger/sum?kind=donation",
		"/api/v1/ledger/sum?kind=tip&from=01.05.2026",
	} {
		if rec := doJSON(t, handler, http.MethodGet, path, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestTillDenominationsForCountForm(t *testing.T) {
	handler := newTestAPI(t, nil, Options{})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/till/denominations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp domain.DenominationsResponse
	decodeBody(t, rec, &resp)
	if len(resp.Denominations) != 11 {
		t.Fatalf("expected 11 denominations, got %+v", resp.Denominations)
	}
	first, last := resp.Denominations[0], resp.Denominations[len(resp.Denominations)-1]
	if first.Cents != 20000 || first.Label != "200.00" || last.Cents != 10 || last.Label != "0.10" {
		t.Fatalf("unexpected denominations %+v", resp.Denominations)
	}
}

func TestWriteRateLimit(t *testing.T) {
	handler := newTestAPI(t, nil, Options{WriteRateLimit: 1})
	body := domain.LedgerEntryRequest{Kind: "income", Amount: "1"}

	if rec := doJSON(t, handler, http.MethodPost, "/api/v1/ledger", body); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPost, "/api/v1/ledger", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodGet, "/api/v1/ledger", nil); rec.Code != http.StatusOK {
		t.Fatalf("reads are not limited, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestAPI(t, nil, Options{})

	rec := doJSON(t, handler, http.MethodDelete, "/api/v1/ledger", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

type brokenCatalog struct {
	*memory.Store
}

func (brokenCatalog) ListProducts(context.Context) ([]domain.Product, error) {
	return nil, errors.New("pq: relation \"products\" does not exist")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	handler := newTestAPI(t, brokenCatalog{Store: memory.NewSeeded()}, Options{})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "relation") {
		t.Fatalf("internal details leaked: %s", rec.Body.String())
	}
}

func TestMetricsEndpointCountsRoutes(t *testing.T) {
	handler := newTestAPI(t, nil, Options{Metrics: observability.NewMetrics()})

	doJSON(t, handler, http.MethodGet, "/api/v1/days/"+today+"/summary", nil)
	rec := doJSON(t, handler, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/api/v1/days/{date}/summary"`) {
		t.Fatalf("expected route pattern label in metrics output")
	}
}
