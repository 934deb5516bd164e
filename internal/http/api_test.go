package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-market/internal/alert"
	"mail-market/internal/auth"
	"mail-market/internal/domain"
	"mail-market/internal/events"
	"mail-market/internal/inventory"
	"mail-market/internal/payment"
	"mail-market/internal/ratelimit"
	"mail-market/internal/repository"
	"mail-market/internal/repository/sqlite"
	"mail-market/internal/service"
	"mail-market/internal/storage"
)

const testAdminKey = "admin-secret"

type testServer struct {
	router    *gin.Engine
	users     repository.UserRepository
	inventory *inventory.Fake
	gateway   *payment.Fake
	archive   *storage.MemoryArchive
}

func newTestServer(t *testing.T, limiter ratelimit.Limiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	users := sqlite.NewUserRepository(db)
	deposits := sqlite.NewDepositRepository(db)
	purchases := sqlite.NewPurchaseRepository(db)
	settings := sqlite.NewSettingsRepository(db)
	for _, r := range []interface{ Init(context.Context) error }{users, deposits, purchases, settings} {
		require.NoError(t, r.Init(ctx))
	}

	logger, _ := test.NewNullLogger()
	publisher := &events.Recorder{}
	archive := storage.NewMemoryArchive()
	fake := inventory.NewFake(map[string]int{"outlook": 50})
	gateway := payment.NewFake()

	depositSvc := service.NewDepositService(deposits, users, service.DepositPolicy{
		MinAmount:       decimal.NewFromInt(10),
		ReferenceExempt: []string{domain.DepositMethodAuto},
	}, publisher, logger)

	h := NewHandler(Deps{
		Users: service.NewUserService(users),
		Purchases: service.NewPurchaseService(service.PurchaseDeps{
			Users:     users,
			Purchases: purchases,
			Inventory: fake,
			Prices:    service.PriceList{"outlook": decimal.RequireFromString("1.50")},
			Alerts:    alert.NewNotifier(logger, publisher, archive),
			Events:    publisher,
			Archive:   archive,
			Logger:    logger,
		}),
		Deposits:   depositSvc,
		Payments:   service.NewPaymentService(settings, users, depositSvc, gateway, alert.NewNotifier(logger, publisher, archive), "https://shop.test", logger),
		Tokens:     auth.NewTokenManager("jwt-secret", time.Hour),
		Limiter:    limiter,
		Archive:    archive,
		AdminKey:   testAdminKey,
		CORSOrigin: "https://shop.test",
		Logger:     logger,
	})

	router := gin.New()
	h.RegisterRoutes(router)
	return &testServer{router: router, users: users, inventory: fake, gateway: gateway, archive: archive}
}

type call struct {
	method string
	path   string
	body   any
	token  string
	admin  bool
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.admin {
		req.Header.Set("X-Admin-Key", testAdminKey)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// signup registers a user, credits balance and returns a session token.
func (s *testServer) signup(t *testing.T, name, balance string) (string, int64) {
	t.Helper()
	w := s.do(t, call{method: http.MethodPost, path: "/api/register", body: gin.H{"username": name, "password": "password123"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, call{method: http.MethodPost, path: "/api/login", body: gin.H{"username": name, "password": "password123"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	user := out["user"].(map[string]any)
	id := int64(user["id"].(float64))

	if balance != "" {
		_, err := s.users.AdjustBalance(context.Background(), id, decimal.RequireFromString(balance))
		require.NoError(t, err)
	}
	return out["token"].(string), id
}

func TestHealthAndCORS(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, call{method: http.MethodGet, path: "/api/health"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://shop.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = s.do(t, call{method: http.MethodOptions, path: "/api/mail"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, nil)
	token, _ := s.signup(t, "alice", "")

	w := s.do(t, call{method: http.MethodGet, path: "/api/me", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, "0.00", user["balance"])
	assert.NotContains(t, w.Body.String(), "password")

	w = s.do(t, call{method: http.MethodGet, path: "/api/me"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, call{method: http.MethodGet, path: "/api/me", token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: "/api/register", body: gin.H{"username": "alice", "password": "password123"}})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = s.do(t, call{method: http.MethodPost, path: "/api/register", body: gin.H{"username": "bob", "password": "short"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, call{method: http.MethodPost, path: "/api/login", body: gin.H{"username": "alice", "password": "wrong-one"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPricesAndStock(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, call{method: http.MethodGet, path: "/api/prices"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"prices": {"outlook": "1.50"}}`, w.Body.String())

	w = s.do(t, call{method: http.MethodGet, path: "/api/stock?type=outlook"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(50), decode(t, w)["available"])

	w = s.do(t, call{method: http.MethodGet, path: "/api/stock?type=gmail"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBuyMail(t *testing.T) {
	s := newTestServer(t, nil)
	token, _ := s.signup(t, "alice", "10")

	w := s.do(t, call{method: http.MethodPost, path: "/api/mail", token: token, body: gin.H{"type": "outlook", "quantity": 4}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, "4.00", out["new_balance"])
	assert.Len(t, out["items"], 4)

	w = s.do(t, call{method: http.MethodPost, path: "/api/mail", token: token, body: gin.H{"type": "outlook", "quantity": 5}})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: "/api/mail", token: token, body: gin.H{"type": "yahoo", "quantity": 1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, call{method: http.MethodPost, path: "/api/mail", token: token, body: gin.H{"type": "outlook", "quantity": -1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.inventory.FailAllocate = true
	w = s.do(t, call{method: http.MethodPost, path: "/api/mail", token: token, body: gin.H{"type": "outlook", "quantity": 1}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, call{method: http.MethodGet, path: "/api/me", token: token})
	assert.Equal(t, "4.00", decode(t, w)["user"].(map[string]any)["balance"])

	w = s.do(t, call{method: http.MethodGet, path: "/api/purchase-history", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	var history []PurchaseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "6.00", history[0].TotalCost)
	assert.Len(t, history[0].Items, 4)
}

func TestBuyMailRateLimited(t *testing.T) {
	s := newTestServer(t, ratelimit.NewMemoryLimiter(1))
	token, _ := s.signup(t, "alice", "10")

	w := s.do(t, call{method: http.MethodPost, path: "/api/mail", token: token, body: gin.H{"type": "outlook", "quantity": 1}})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: "/api/mail", token: token, body: gin.H{"type": "outlook", "quantity": 1}})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestDepositAdminFlow(t *testing.T) {
	s := newTestServer(t, nil)
	token, _ := s.signup(t, "alice", "")

	w := s.do(t, call{method: http.MethodPost, path: "/api/deposit/request", token: token, body: gin.H{"amount": "100.00", "reference": "TRX-1", "method": "bkash"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	deposit := decode(t, w)
	assert.Equal(t, "pending", deposit["status"])
	id := int64(deposit["id"].(float64))

	w = s.do(t, call{method: http.MethodPost, path: "/api/deposit/request", token: token, body: gin.H{"amount": 5, "reference": "TRX-2"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, call{method: http.MethodGet, path: "/api/admin/deposits"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, call{method: http.MethodGet, path: "/api/admin/deposits", admin: true})
	require.Equal(t, http.StatusOK, w.Code)
	var pending []DepositResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "alice", pending[0].Username)

	approvePath := "/api/admin/deposits/" + strconv.FormatInt(id, 10) + "/approve"
	w = s.do(t, call{method: http.MethodPost, path: approvePath, admin: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "100.00", decode(t, w)["new_balance"])

	w = s.do(t, call{method: http.MethodPost, path: approvePath, admin: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "already processed")

	w = s.do(t, call{method: http.MethodPost, path: "/api/admin/deposits/abc/cancel", admin: true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, call{method: http.MethodPost, path: "/api/admin/deposits/999/cancel", admin: true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, call{method: http.MethodGet, path: "/api/me", token: token})
	assert.Equal(t, "100.00", decode(t, w)["user"].(map[string]any)["balance"])

	w = s.do(t, call{method: http.MethodGet, path: "/api/deposits", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	var mine []DepositResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "approved", mine[0].Status)
}

func TestPaymentMethodsAdmin(t *testing.T) {
	s := newTestServer(t, nil)
	token, _ := s.signup(t, "alice", "")

	w := s.do(t, call{method: http.MethodPut, path: "/api/admin/payment-methods", admin: true, body: []gin.H{{"method": "bKash", "number": "017"}}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, call{method: http.MethodGet, path: "/api/payment-methods", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	var methods []domain.PaymentMethod
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &methods))
	require.Len(t, methods, 1)
	assert.Equal(t, "bKash", methods[0].Method)
	assert.NotEmpty(t, methods[0].ID)

	w = s.do(t, call{method: http.MethodPut, path: "/api/admin/payment-methods", admin: true, body: []gin.H{{"method": "", "number": "1"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutAndWebhook(t *testing.T) {
	s := newTestServer(t, nil)
	token, _ := s.signup(t, "alice", "")

	w := s.do(t, call{method: http.MethodPost, path: "/api/payment/auto/checkout", token: token, body: gin.H{"amount": 25}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := decode(t, w)
	depositID := int64(session["deposit_id"].(float64))
	assert.NotEmpty(t, session["payment_url"])

	s.gateway.Settle(payment.Verification{TransactionID: "TX-1", Status: payment.StatusCompleted, Amount: decimal.NewFromInt(25), DepositID: depositID})

	w = s.do(t, call{method: http.MethodPost, path: "/api/payment/auto/webhook", body: gin.H{"transaction_id": "TX-1"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "approved", decode(t, w)["status"])

	w = s.do(t, call{method: http.MethodPost, path: "/api/payment/auto/webhook", body: gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, call{method: http.MethodGet, path: "/api/me", token: token})
	assert.Equal(t, "25.00", decode(t, w)["user"].(map[string]any)["balance"])
}

func TestListOrphans(t *testing.T) {
	s := newTestServer(t, nil)
	require.NoError(t, s.archive.PutJSON(context.Background(), storage.OrphanPrefix+"x.json", gin.H{"items": []string{"a"}}))

	w := s.do(t, call{method: http.MethodGet, path: "/api/admin/orphans", admin: true})
	require.Equal(t, http.StatusOK, w.Code)
	var objs []StorageObjectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &objs))
	require.Len(t, objs, 1)
	assert.Equal(t, "memory://orphans/x.json", objs[0].URL)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, call{method: http.MethodGet, path: "/api/health"})
	w := s.do(t, call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mail_market_http_requests_total")
}
