package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"promos/internal/config"
	"promos/internal/handlers"
	"promos/internal/logger"
	"promos/internal/models"
	"promos/internal/queue"
	"promos/internal/repositories"
	"promos/internal/services/ledger"
	"promos/internal/services/lots"
	"promos/internal/services/sweeper"
	"promos/internal/services/wallet"
	"promos/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type testEnv struct {
	app     *fiber.App
	store   *repositories.MemoryStore
	queue   *queue.MemoryQueue
	sweeper *sweeper.Sweeper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.Discard()
	store := repositories.NewMemoryStore()
	wallets := wallet.NewService(store, nil, log)
	lotService := lots.NewService(store, log)
	ledgerService := ledger.NewService(config.LedgerConfig{
		MaxAttempts:        3,
		BaseDelay:          time.Millisecond,
		MaxDelay:           2 * time.Millisecond,
		TimestampRetries:   3,
		MaxTimestampOffset: 99,
	}, store, wallets, lotService, log, nil)
	q := queue.NewMemoryQueue(5 * time.Millisecond)
	sw := sweeper.New(config.SweeperConfig{BatchSize: 10, MaxDeliveries: 3, Workers: 1}, store, ledgerService, lotService, q, log, nil)

	app := fiber.New()
	SetupRoutes(app, Deps{
		JWTSecret: secret,
		Log:       log,
		Wallets:   handlers.NewWalletHandler(ledgerService, wallets, lotService, log),
		Admin:     handlers.NewAdminHandler(sw, q, ledgerService, log),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"database": func(context.Context) error { return nil },
		}),
	})
	return &testEnv{app: app, store: store, queue: q, sweeper: sw}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := utils.GenerateToken(secret, models.UserClaims{
		UserID:      userID,
		Role:        role,
		Permissions: models.GetDefaultPermissions(role),
	}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestWalletRoutes_EarnSpendBalance(t *testing.T) {
	e := newTestEnv(t)
	user := token(t, "u1", models.RoleUser)
	svc := token(t, "promo-engine", models.RoleService)
	validThru := time.Now().Add(time.Hour).UnixMilli()

	status, body := e.do(t, http.MethodPost, "/api/wallets/coins/earn?user_id=u1", svc, map[string]interface{}{
		"amount": 100, "valid_thru": validThru, "configuration_id": "welcome", "timestamp": 1000,
	})
	require.Equal(t, http.StatusCreated, status, body)
	tx := body["transaction"].(map[string]interface{})
	assert.Equal(t, 100.0, tx["wallet_rolling_total"])

	status, body = e.do(t, http.MethodPost, "/api/wallets/coins/spend", svc, map[string]interface{}{"amount": 10})
	assert.Equal(t, http.StatusUnprocessableEntity, status, "service's own wallet is empty")
	assert.Equal(t, "INSUFFICIENT_FUNDS", body["code"])

	status, _ = e.do(t, http.MethodPost, "/api/wallets/coins/spend?user_id=u1", svc, map[string]interface{}{
		"amount": 30, "timestamp": 2000,
	})
	require.Equal(t, http.StatusCreated, status)

	status, body = e.do(t, http.MethodGet, "/api/wallets/coins", user, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 70.0, body["wallet"].(map[string]interface{})["amount"])

	status, body = e.do(t, http.MethodGet, "/api/wallets/coins/lots", user, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["lots"], 1)
}

func TestWalletRoutes_Errors(t *testing.T) {
	e := newTestEnv(t)
	user := token(t, "u1", models.RoleUser)

	status, _ := e.do(t, http.MethodGet, "/api/wallets/coins", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = e.do(t, http.MethodGet, "/api/wallets/coins", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = e.do(t, http.MethodPost, "/api/wallets/coins/earn", user, map[string]interface{}{"amount": 5})
	assert.Equal(t, http.StatusForbidden, status, "users cannot earn")

	status, _ = e.do(t, http.MethodGet, "/api/wallets/coins?user_id=u2", user, nil)
	assert.Equal(t, http.StatusForbidden, status, "users cannot read another wallet")

	svc := token(t, "promo-engine", models.RoleService)
	status, body := e.do(t, http.MethodPost, "/api/wallets/coins/earn?user_id=u1", svc, map[string]interface{}{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["fields"], "amount")

	status, body = e.do(t, http.MethodPost, "/api/wallets/coins/spend?user_id=u1", svc, map[string]interface{}{"amount": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, false, body["retryable"])
}

func TestWalletRoutes_TransactionsArePaginated(t *testing.T) {
	e := newTestEnv(t)
	svc := token(t, "promo-engine", models.RoleService)
	for i := 1; i <= 3; i++ {
		status, _ := e.do(t, http.MethodPost, "/api/wallets/coins/earn?user_id=u1", svc, map[string]interface{}{
			"amount": 10, "timestamp": i * 1000,
		})
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := e.do(t, http.MethodGet, "/api/wallets/coins/transactions?user_id=u1&limit=2&page=2", svc, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
	p := body["pagination"].(map[string]interface{})
	assert.Equal(t, 3.0, p["total"])
	assert.Equal(t, 2.0, p["last_page"])
}

func TestAdminRoutes_SweepAndAudit(t *testing.T) {
	e := newTestEnv(t)
	svc := token(t, "promo-engine", models.RoleService)
	admin := token(t, "ops", models.RoleAdmin)
	validThru := time.Now().Add(time.Hour).UnixMilli()

	status, _ := e.do(t, http.MethodPost, "/api/wallets/coins/earn?user_id=u1", svc, map[string]interface{}{
		"amount": 40, "valid_thru": validThru, "timestamp": 1000,
	})
	require.Equal(t, http.StatusCreated, status)

	status, _ = e.do(t, http.MethodPost, "/admin/sweeps", svc, nil)
	assert.Equal(t, http.StatusForbidden, status, "service tokens cannot sweep")

	status, body := e.do(t, http.MethodPost, fmt.Sprintf("/admin/sweeps?at=%d", validThru+1), admin, nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, 1.0, body["scan"].(map[string]interface{})["lots"])
	assert.Equal(t, 1, e.queue.Len())

	status, body = e.do(t, http.MethodGet, "/admin/queue", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, body["pending"])
	assert.Equal(t, 0.0, body["delayed"])

	status, _ = e.do(t, http.MethodGet, "/admin/cache-stats", svc, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = e.do(t, http.MethodGet, "/admin/cache-stats", admin, nil)
	assert.Equal(t, http.StatusNotImplemented, status)

	status, body = e.do(t, http.MethodGet, "/admin/wallets/u1/coins/audit", svc, nil)
	require.Equal(t, http.StatusOK, status)
	audit := body["audit"].(map[string]interface{})
	assert.Equal(t, true, audit["consistent"])
	assert.Equal(t, 40.0, audit["wallet_amount"])
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	status, body := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}
