package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/obs"
	"kasirinaja/checkout/internal/service"
	"kasirinaja/checkout/internal/settlement"
	"kasirinaja/checkout/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
	metrics       http.Handler
	logger        zerolog.Logger
}

type Options struct {
	AllowedOrigin string
	// Metrics serves /metrics; nil uses the default prometheus registry.
	Metrics http.Handler
	Logger  zerolog.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		opts.Logger.Warn().Err(err).Msg("crypto/rand failed, using static csrf secret")
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
		metrics:       metrics,
		logger:        opts.Logger.With().Str("component", "httpapi").Logger(),
	}
}

// csrfTokenForHour is the hex HMAC-SHA256 of an hour bucket in Unix seconds.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	anyRole := []string{domain.RoleCashier, domain.RoleManager}

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.Handle("/metrics", a.metrics)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/catalog", a.requireAuth(a.handleCatalog, anyRole...))
	mux.HandleFunc("/api/v1/terminals/{id}/cart", a.requireAuth(a.handleCart, anyRole...))
	mux.HandleFunc("/api/v1/terminals/{id}/cart/items", a.requireAuth(a.handleCartItems, anyRole...))
	mux.HandleFunc("/api/v1/terminals/{id}/discounts", a.requireAuth(a.handleDiscounts, anyRole...))
	mux.HandleFunc("/api/v1/terminals/{id}/overrides", a.requireAuth(a.handleOverrides, anyRole...))
	mux.HandleFunc("/api/v1/terminals/{id}/quote", a.requireAuth(a.handleQuote, anyRole...))
	mux.HandleFunc("/api/v1/terminals/{id}/checkout", a.requireAuth(a.handleCheckout, anyRole...))
	mux.HandleFunc("/api/v1/terminals/{id}/split", a.requireAuth(a.handleSplit, anyRole...))
	mux.HandleFunc("/api/v1/terminals/{id}/split/decision", a.requireAuth(a.handleSplitDecision, anyRole...))
	mux.HandleFunc("/api/v1/terminals/{id}/split/resume", a.requireAuth(a.handleSplitResume, anyRole...))

	mux.HandleFunc("/api/v1/transactions", a.requireAuth(a.handleTransactions, anyRole...))
	mux.HandleFunc("/api/v1/transactions/{id}", a.requireAuth(a.handleTransaction, anyRole...))
	mux.HandleFunc("/api/v1/rates", a.requireAuth(a.handleRates, anyRole...))
	mux.HandleFunc("/api/v1/rates/refresh", a.requireAuth(a.handleRatesRefresh, domain.RoleManager))
	mux.HandleFunc("/api/v1/users", a.requireAuth(a.handleOperators, domain.RoleManager))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// elevate grants manager rights to a cashier request that carries a valid manager PIN.
// It reports false after writing the error response.
func (a *API) elevate(w http.ResponseWriter, r *http.Request, pin string) (*http.Request, bool) {
	actor, _ := service.ActorFromContext(r.Context())
	if actor.Role == domain.RoleManager || strings.TrimSpace(pin) == "" {
		return r, true
	}
	if !a.pinLimiter.Allow("pin:" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return nil, false
	}
	if !a.auth.ValidateManagerPIN(pin) {
		writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
		return nil, false
	}
	a.logger.Info().Str("actor", actor.Username).Str("path", r.URL.Path).Msg("manager pin approval")
	actor.Role = domain.RoleManager
	return r.WithContext(service.WithActor(r.Context(), actor)), true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"event": a.service.EventID(),
		"at":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken hands out the token mutating requests send in X-CSRF-Token.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	catalog, err := a.service.Catalog(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

type noteRequest struct {
	Note string `json:"note"`
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	terminalID := r.PathValue("id")
	var (
		view service.CartView
		err  error
	)
	switch r.Method {
	case http.MethodGet:
		view, err = a.service.Cart(r.Context(), terminalID)
	case http.MethodPatch:
		var req noteRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err = a.service.SetNote(r.Context(), terminalID, req.Note)
	case http.MethodDelete:
		view, err = a.service.ClearCart(r.Context(), terminalID)
	default:
		writeMethodNotAllowed(w)
		return
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// handleCartItems adds on POST, sets the quantity on PUT and removes on DELETE.
func (a *API) handleCartItems(w http.ResponseWriter, r *http.Request) {
	terminalID := r.PathValue("id")
	var req cartItemRequest
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	case http.MethodDelete:
		req.ProductID = r.URL.Query().Get("product_id")
		req.Qty = parsePositiveLimit(r.URL.Query().Get("qty"), 1, 0)
	default:
		writeMethodNotAllowed(w)
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, errors.New("product_id required"))
		return
	}

	var (
		view service.CartView
		err  error
	)
	switch r.Method {
	case http.MethodPost:
		view, err = a.service.AddItem(r.Context(), terminalID, req.ProductID, req.Qty)
	case http.MethodPut:
		view, err = a.service.SetQuantity(r.Context(), terminalID, req.ProductID, req.Qty)
	default:
		view, err = a.service.RemoveItem(r.Context(), terminalID, req.ProductID, req.Qty)
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type discountRequest struct {
	PromotionID string `json:"promotion_id"`
	Active      bool   `json:"active"`
}

func (a *API) handleDiscounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req discountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.ToggleDiscount(r.Context(), r.PathValue("id"), strings.TrimSpace(req.PromotionID), req.Active)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type overrideRequest struct {
	Kind       string          `json:"kind"`
	CategoryID string          `json:"category_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	ManagerPIN string          `json:"manager_pin,omitempty"`
}

// handleOverrides sets a general or category override on PUT and clears on DELETE.
// Cashiers may send a manager PIN instead of holding the manager role.
func (a *API) handleOverrides(w http.ResponseWriter, r *http.Request) {
	terminalID := r.PathValue("id")
	var (
		view service.CartView
		err  error
	)
	switch r.Method {
	case http.MethodPut:
		var req overrideRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		r, ok := a.elevate(w, r, req.ManagerPIN)
		if !ok {
			return
		}
		switch req.Kind {
		case "general":
			view, err = a.service.SetGeneralOverride(r.Context(), terminalID, req.Amount)
		case "category":
			view, err = a.service.SetCategoryOverride(r.Context(), terminalID, strings.TrimSpace(req.CategoryID), req.Amount)
		default:
			writeError(w, http.StatusBadRequest, errors.New("kind must be general or category"))
			return
		}
	case http.MethodDelete:
		r, ok := a.elevate(w, r, r.Header.Get("X-Manager-PIN"))
		if !ok {
			return
		}
		view, err = a.service.ClearOverrides(r.Context(), terminalID, strings.TrimSpace(r.URL.Query().Get("category_id")))
	default:
		writeMethodNotAllowed(w)
		return
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	quote, err := a.service.Quote(r.Context(), r.PathValue("id"), r.URL.Query().Get("currency"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req service.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	status, err := a.service.Checkout(r.Context(), r.PathValue("id"), req)
	a.writeSettlement(w, status, err)
}

type splitRequest struct {
	Entries []domain.SplitEntry `json:"entries"`
}

// handleSplit starts a split on POST, reports it on GET and cancels it on DELETE.
func (a *API) handleSplit(w http.ResponseWriter, r *http.Request) {
	terminalID := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		status, err := a.service.SplitStatus(r.Context(), terminalID)
		a.writeSettlement(w, status, err)
	case http.MethodPost:
		var req splitRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		status, err := a.service.StartSplit(r.Context(), terminalID, req.Entries)
		a.writeSettlement(w, status, err)
	case http.MethodDelete:
		status, err := a.service.CancelSplit(r.Context(), terminalID)
		a.writeSettlement(w, status, err)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSplitDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req settlement.Decision
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	status, err := a.service.SplitDecision(r.Context(), r.PathValue("id"), req)
	a.writeSettlement(w, status, err)
}

func (a *API) handleSplitResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req splitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	status, err := a.service.ResumeSplit(r.Context(), r.PathValue("id"), req.Entries)
	a.writeSettlement(w, status, err)
}

// writeSettlement sends the status with the error, so the terminal can redraw whatever state it landed in.
func (a *API) writeSettlement(w http.ResponseWriter, status settlement.Status, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, status)
		return
	}
	code := statusForError(err)
	if code >= http.StatusInternalServerError {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, code, map[string]any{
		"error":      err.Error(),
		"settlement": status,
	})
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	txs, err := a.service.ListTransactions(r.Context(), r.URL.Query().Get("terminal_id"), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (a *API) handleTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	tx, err := a.service.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) handleRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	snapshot, err := a.service.LatestRates(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (a *API) handleRatesRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	snapshot, err := a.service.RefreshRates(r.Context())
	if err != nil {
		if !errors.Is(err, service.ErrRatesNotAvailable) && !errors.Is(err, service.ErrManagerRequired) {
			writeError(w, http.StatusBadGateway, errors.New("rate service unavailable"))
			a.logger.Error().Err(err).Msg("manual rate refresh failed")
			return
		}
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (a *API) handleOperators(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListOperators(r.Context())})
	case http.MethodPost:
		var req domain.OperatorCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		operator, err := a.auth.CreateOperator(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": operator})
	default:
		writeMethodNotAllowed(w)
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrManagerRequired):
		return http.StatusForbidden
	case errors.Is(err, service.ErrSettlementActive), errors.Is(err, settlement.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound), errors.Is(err, service.ErrNoSettlement):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRatesNotAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, settlement.ErrBalanceMismatch),
		errors.Is(err, settlement.ErrTooFewEntries),
		errors.Is(err, settlement.ErrInvalidEntry),
		errors.Is(err, service.ErrUnknownCurrency),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).Int("status", status).Msg("internal error")
	}
	writeError(w, status, err)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	secured := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Manager-PIN")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
				r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
			}
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
	return obs.RequestLogger(a.logger, secured)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
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

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the message of 5xx responses; 4xx messages are meant for the operator.
func writeError(w http.ResponseWriter, status int, err error) {
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
