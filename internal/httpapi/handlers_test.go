package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/payment"
	"kasirinaja/checkout/internal/service"
	"kasirinaja/checkout/internal/settlement"
	"kasirinaja/checkout/internal/store/memory"
)

// newTestAPI wires the seeded memory store, the simulated provider and a real AuthManager,
// so handler tests run the whole request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	logger := zerolog.Nop()
	repo := memory.NewSeeded("main-event", logger)
	svc := service.New(repo, service.Config{
		EventID:  "main-event",
		Provider: payment.NewSimulated(logger),
		Logger:   logger,
	})
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo, logger)

	return New(svc, auth, Options{
		AllowedOrigin: "*",
		Metrics:       promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		Logger:        logger,
	})
}

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// call sends an authenticated request with a fresh CSRF token and decodes the JSON answer into out.
func call(t *testing.T, api *API, token, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s (status %d): %v", method, path, rec.Code, err)
		}
	}
	return rec.Code
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
	if body["event"] != "main-event" {
		t.Fatalf("expected event main-event, got %v", body["event"])
	}
}

func TestMetricsEndpointIsServed(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier", "cashier123")

	actor, err := api.auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if actor.Role != domain.RoleCashier {
		t.Fatalf("expected cashier role, got %s", actor.Role)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(domain.LoginRequest{Username: "cashier", Password: "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCatalogRequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCatalogWithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier", "cashier123")

	var catalog domain.Catalog
	if code := call(t, api, token, http.MethodGet, "/api/v1/catalog", nil, &catalog); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if catalog.Event.ID != "main-event" || len(catalog.Products) == 0 {
		t.Fatalf("unexpected catalog %+v", catalog.Event)
	}
}

func TestCartQuoteAndCheckoutFlow(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier", "cashier123")
	base := "/api/v1/terminals/bar-1"

	var view service.CartView
	code := call(t, api, token, http.MethodPost, base+"/cart/items", cartItemRequest{ProductID: "beer", Qty: 3}, &view)
	if code != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d", code)
	}
	if len(view.Items) != 1 || view.Items[0].Qty != 3 {
		t.Fatalf("unexpected cart %+v", view.Items)
	}

	var quote service.Quote
	if code := call(t, api, token, http.MethodGet, base+"/quote?currency=USD", nil, &quote); code != http.StatusOK {
		t.Fatalf("quote: expected 200, got %d", code)
	}
	if quote.Currency != "USD" || quote.Total.String() != "10.8" {
		t.Fatalf("expected three-for-two total 10.8 USD, got %s %s", quote.Total, quote.Currency)
	}

	var status settlement.Status
	code = call(t, api, token, http.MethodPost, base+"/split", splitRequest{Entries: []domain.SplitEntry{
		{Method: domain.MethodCard, AmountInMain: mustDecimal(t, "6")},
		{Method: domain.MethodCash, AmountInMain: mustDecimal(t, "4")},
	}}, &status)
	if code != http.StatusOK {
		t.Fatalf("split: expected 200, got %d", code)
	}
	if status.State != "awaiting_receipt" || len(status.Captured) != 2 {
		t.Fatalf("expected both entries captured, got state %s captured %d", status.State, len(status.Captured))
	}

	code = call(t, api, token, http.MethodPost, base+"/cart/items", cartItemRequest{ProductID: "beer", Qty: 1}, nil)
	if code != http.StatusConflict {
		t.Fatalf("cart edit during settlement: expected 409, got %d", code)
	}

	code = call(t, api, token, http.MethodPost, base+"/split/decision", settlement.Decision{Action: settlement.ActionReceipt}, &status)
	if code != http.StatusOK {
		t.Fatalf("receipt decision: expected 200, got %d", code)
	}
	if status.State != "done" || status.Transaction == nil {
		t.Fatalf("expected booked transaction, got state %s", status.State)
	}

	var tx domain.Transaction
	if code := call(t, api, token, http.MethodGet, "/api/v1/transactions/"+status.Transaction.ID, nil, &tx); code != http.StatusOK {
		t.Fatalf("get transaction: expected 200, got %d", code)
	}
	if tx.Total.String() != "10" || len(tx.ProviderReferences) != 1 {
		t.Fatalf("unexpected transaction total %s refs %v", tx.Total, tx.ProviderReferences)
	}

	var listed struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if code := call(t, api, token, http.MethodGet, "/api/v1/transactions?terminal_id=bar-1", nil, &listed); code != http.StatusOK {
		t.Fatalf("list transactions: expected 200, got %d", code)
	}
	if len(listed.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(listed.Transactions))
	}
}

func TestSplitImbalanceReturns400WithSettlement(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier", "cashier123")
	base := "/api/v1/terminals/bar-2"

	call(t, api, token, http.MethodPost, base+"/cart/items", cartItemRequest{ProductID: "beer", Qty: 2}, nil)

	var body map[string]any
	code := call(t, api, token, http.MethodPost, base+"/split", splitRequest{Entries: []domain.SplitEntry{
		{Method: domain.MethodCard, AmountInMain: mustDecimal(t, "6")},
		{Method: domain.MethodCash, AmountInMain: mustDecimal(t, "3")},
	}}, &body)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if body["error"] == nil || body["settlement"] == nil {
		t.Fatalf("expected error and settlement in body, got %v", body)
	}

	if code := call(t, api, token, http.MethodGet, base+"/split", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 without a settlement, got %d", code)
	}
}

func TestOverrideNeedsManagerOrPIN(t *testing.T) {
	api := newTestAPI(t)
	cashier := login(t, api, "cashier", "cashier123")
	base := "/api/v1/terminals/bar-3"

	call(t, api, cashier, http.MethodPost, base+"/cart/items", cartItemRequest{ProductID: "burger", Qty: 1}, nil)

	code := call(t, api, cashier, http.MethodPut, base+"/overrides", overrideRequest{Kind: "general", Amount: mustDecimal(t, "5")}, nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier override, got %d", code)
	}

	var view service.CartView
	code = call(t, api, cashier, http.MethodPut, base+"/overrides", overrideRequest{Kind: "general", Amount: mustDecimal(t, "5"), ManagerPIN: "123456"}, &view)
	if code != http.StatusOK {
		t.Fatalf("expected 200 with manager pin, got %d", code)
	}
	if view.OverrideKind != "general" {
		t.Fatalf("expected general override, got %s", view.OverrideKind)
	}

	manager := login(t, api, "manager", "manager123")
	code = call(t, api, manager, http.MethodDelete, base+"/overrides", nil, &view)
	if code != http.StatusOK || view.OverrideKind != "none" {
		t.Fatalf("expected cleared override, got %d %s", code, view.OverrideKind)
	}
}

func TestRatesRefreshIsManagerOnly(t *testing.T) {
	api := newTestAPI(t)
	cashier := login(t, api, "cashier", "cashier123")
	manager := login(t, api, "manager", "manager123")

	if code := call(t, api, cashier, http.MethodPost, "/api/v1/rates/refresh", nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", code)
	}
	if code := call(t, api, manager, http.MethodPost, "/api/v1/rates/refresh", nil, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a rate service, got %d", code)
	}
}

func TestManagerCreatesOperator(t *testing.T) {
	api := newTestAPI(t)
	manager := login(t, api, "manager", "manager123")

	code := call(t, api, manager, http.MethodPost, "/api/v1/users", domain.OperatorCreateRequest{Username: "barista", Password: "pass1234"}, nil)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	token := login(t, api, "barista", "pass1234")
	if token == "" {
		t.Fatalf("expected new operator to log in")
	}
}

func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}
