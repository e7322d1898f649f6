package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"playbook/internal/auth"
	"playbook/internal/config"
	"playbook/internal/mailer"
	"playbook/internal/models"
	"playbook/internal/quotes"
	"playbook/internal/refresher"
	"playbook/internal/trades"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// countingRunner stands in for the refresher behind the coalescer.
type countingRunner struct {
	cycles atomic.Int64
}

func (c *countingRunner) TryRunCycle(ctx context.Context) bool {
	c.cycles.Add(1)
	return true
}

// stubHistory serves a fixed candle series.
type stubHistory struct {
	candles []quotes.Candle
	err     error
}

func (s *stubHistory) History(ctx context.Context, symbol, market string) ([]quotes.Candle, error) {
	return s.candles, s.err
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	tokens *auth.TokenManager
	runner *countingRunner
}

func setupServer(t *testing.T, mode string) *testEnv {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	err = db.AutoMigrate(&models.User{}, &models.Trade{}, &models.InteractionRecord{}, &models.Comment{})
	assert.NoError(t, err)

	cfg := &config.Config{}
	cfg.Refresher.Mode = mode
	cfg.Refresher.ThrottleWindow = 200 * time.Millisecond
	cfg.Auth.OTPTTL = time.Hour

	log := zap.NewNop()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	runner := &countingRunner{}
	coalescer := refresher.NewCoalescer(cfg.Refresher.ThrottleWindow, runner)

	srv := New(cfg, log, db, tokens, trades.NewService(db, log), coalescer, &stubHistory{}, mailer.NopNotifier{})

	return &testEnv{
		router: srv.Router(),
		db:     db,
		tokens: tokens,
		runner: runner,
	}
}

func (e *testEnv) user(t *testing.T, email, role string) (*models.User, string) {
	hash, err := auth.HashPassword("Str0ng!pass")
	assert.NoError(t, err)

	user := &models.User{
		Username: email, Email: email, PasswordHash: hash,
		Role: role, IsVerified: true,
	}
	assert.NoError(t, e.db.Create(user).Error)

	token, err := e.tokens.Issue(user.ID, user.Role)
	assert.NoError(t, err)
	return user, token
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestFeedRequiresAuth(t *testing.T) {
	env := setupServer(t, "interval")

	w := env.request(t, http.MethodGet, "/api/trades", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFeedEmptyDataset(t *testing.T) {
	env := setupServer(t, "interval")
	_, token := env.user(t, "a@example.com", models.RoleUser)

	w := env.request(t, http.MethodGet, "/api/trades", token, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Empty(t, body["trades"])
	assert.Equal(t, float64(1), body["userCount"])
}

func TestFeedTriggersCoalescedRefresh(t *testing.T) {
	env := setupServer(t, "on-demand")
	_, token := env.user(t, "a@example.com", models.RoleUser)

	// A burst of feed requests inside one throttle window.
	for i := 0; i < 5; i++ {
		w := env.request(t, http.MethodGet, "/api/trades", token, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Eventually(t, func() bool { return env.runner.cycles.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestFeedDoesNotTriggerInIntervalMode(t *testing.T) {
	env := setupServer(t, "interval")
	_, token := env.user(t, "a@example.com", models.RoleUser)

	env.request(t, http.MethodGet, "/api/trades", token, nil)

	assert.Equal(t, int64(0), env.runner.cycles.Load())
}

func TestCreateTradeRequiresAdmin(t *testing.T) {
	env := setupServer(t, "interval")
	_, token := env.user(t, "user@example.com", models.RoleUser)

	w := env.request(t, http.MethodPost, "/api/trades", token, gin.H{
		"symbol": "AAPL", "name": "Apple", "entry": 100,
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateTrade(t *testing.T) {
	env := setupServer(t, "interval")
	_, token := env.user(t, "admin@example.com", models.RoleAdmin)

	w := env.request(t, http.MethodPost, "/api/trades", token, gin.H{
		"symbol": "aapl", "name": "Apple", "market": "NASDAQ", "entry": 100.5,
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "Open", body["status"])

	var count int64
	env.db.Model(&models.Trade{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCloseWithoutExitIsRejected(t *testing.T) {
	env := setupServer(t, "interval")
	_, token := env.user(t, "admin@example.com", models.RoleAdmin)

	trade := &models.Trade{
		Symbol: "AAPL", Name: "Apple", Status: models.StatusOpen,
		Entry: decimal.RequireFromString("100"),
	}
	assert.NoError(t, env.db.Create(trade).Error)

	w := env.request(t, http.MethodPut, fmt.Sprintf("/api/trades/%d", trade.ID), token, gin.H{
		"status": "Closed",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The trade is unmodified.
	var got models.Trade
	assert.NoError(t, env.db.First(&got, trade.ID).Error)
	assert.Equal(t, models.StatusOpen, got.Status)
	assert.Nil(t, got.Exit)
}

func TestCloseTrade(t *testing.T) {
	env := setupServer(t, "interval")
	_, token := env.user(t, "admin@example.com", models.RoleAdmin)

	trade := &models.Trade{
		Symbol: "AAPL", Name: "Apple", Status: models.StatusOpen,
		Entry: decimal.RequireFromString("100"),
	}
	assert.NoError(t, env.db.Create(trade).Error)

	w := env.request(t, http.MethodPut, fmt.Sprintf("/api/trades/%d", trade.ID), token, gin.H{
		"status": "Closed", "exit": 110,
	})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Closed", body["status"])
}

func TestUpdateUnknownTrade(t *testing.T) {
	env := setupServer(t, "interval")
	_, token := env.user(t, "admin@example.com", models.RoleAdmin)

	w := env.request(t, http.MethodPut, "/api/trades/9999", token, gin.H{
		"status": "Closed", "exit": 110,
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInteractToggle(t *testing.T) {
	env := setupServer(t, "interval")
	_, token := env.user(t, "a@example.com", models.RoleUser)

	trade := &models.Trade{
		Symbol: "AAPL", Name: "Apple", Status: models.StatusOpen,
		Entry: decimal.RequireFromString("100"),
	}
	assert.NoError(t, env.db.Create(trade).Error)

	w := env.request(t, http.MethodPost, "/api/trades/interact", token, gin.H{
		"tradeId": trade.ID, "type": "like",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Interaction added", decodeBody(t, w)["message"])

	w = env.request(t, http.MethodPost, "/api/trades/interact", token, gin.H{
		"tradeId": trade.ID, "type": "like",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Interaction removed", decodeBody(t, w)["message"])
}

func TestInteractUnknownTrade(t *testing.T) {
	env := setupServer(t, "interval")
	_, token := env.user(t, "a@example.com", models.RoleUser)

	w := env.request(t, http.MethodPost, "/api/trades/interact", token, gin.H{
		"tradeId": 9999, "type": "like",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommentRoundTrip(t *testing.T) {
	env := setupServer(t, "interval")
	_, token := env.user(t, "a@example.com", models.RoleUser)

	w := env.request(t, http.MethodPost, "/api/trades/comment", token, gin.H{
		"comment": "nice entry",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodGet, "/api/trades/comments/all", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var comments []map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &comments))
	assert.Len(t, comments, 1)
	assert.Equal(t, "nice entry", comments[0]["comment"])
}

func TestSignupVerifyLoginFlow(t *testing.T) {
	env := setupServer(t, "interval")

	// Signup issues an OTP.
	w := env.request(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "Str0ng!pass",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Login before verification is refused.
	w = env.request(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "alice@example.com", "password": "Str0ng!pass",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Verify with the stored code.
	var user models.User
	assert.NoError(t, env.db.Where("email = ?", "alice@example.com").First(&user).Error)
	assert.NotEmpty(t, user.OTP)

	w = env.request(t, http.MethodPost, "/api/auth/verify-signup", "", gin.H{
		"email": "alice@example.com", "otp": user.OTP,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// Login now succeeds and the token opens the feed.
	w = env.request(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "alice@example.com", "password": "Str0ng!pass",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	token, _ := decodeBody(t, w)["token"].(string)
	assert.NotEmpty(t, token)

	w = env.request(t, http.MethodGet, "/api/trades", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerifyWithWrongOTP(t *testing.T) {
	env := setupServer(t, "interval")

	w := env.request(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "Str0ng!pass",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = env.request(t, http.MethodPost, "/api/auth/verify-signup", "", gin.H{
		"email": "alice@example.com", "otp": "000000",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	env := setupServer(t, "interval")

	w := env.request(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "weak",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	env := setupServer(t, "interval")
	_, token := env.user(t, "a@example.com", models.RoleUser)

	w := env.request(t, http.MethodGet, "/api/trades/history/AAPL", token, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var candles []quotes.Candle
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &candles))
	assert.Empty(t, candles)
}
