package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"xfarm/config"
	"xfarm/core"
	"xfarm/core/events"
	"xfarm/core/genesis"
	"xfarm/crypto"
	"xfarm/explorer"
	"xfarm/gateway/middleware"
	"xfarm/storage"
)

const testSecret = "rpc-test-secret"

var (
	admin    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	dev      = common.HexToAddress("0x0000000000000000000000000000000000000de5")
	provider = common.HexToAddress("0x0000000000000000000000000000000000000fee")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000011")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000022")
)

type harness struct {
	t      *testing.T
	node   *core.Node
	index  *explorer.Index
	feed   *events.Feed
	server *Server
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *APIError       `json:"error"`
}

func testSpec(t *testing.T) *genesis.GenesisSpec {
	t.Helper()
	doc := fmt.Sprintf(`startHeight: 100
tokens:
  - symbol: USDT
    decimals: 6
  - symbol: XFIT
    decimals: 18
alloc:
  "%s":
    USDT: "1000"
pairs:
  - tokenA: USDT
    tokenB: XFIT
    provider: "%s"
    amountA: "1000000"
    amountB: "1000000"
    oraclePeriod: 5
pools:
  - input: USDT
    refresh: true
treasury: "50000"
`, alice.Hex(), provider.Hex())
	spec, err := genesis.ParseGenesisSpec([]byte(doc))
	require.NoError(t, err)
	return spec
}

func newHarness(t *testing.T, configure func(*ServerConfig)) *harness {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	index, err := explorer.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	farmCfg := config.FarmConfig{
		RewardToken:    "XFIT",
		RewardPerBlock: "100",
		DevAddress:     dev.Hex(),
		Admin:          admin.Hex(),
	}
	feed := events.NewFeed()
	t.Cleanup(feed.Close)
	node, err := core.NewNode(storage.NewMemDB(), testSpec(t), farmCfg, events.Multi{index, feed}, nil)
	require.NoError(t, err)

	cfg := ServerConfig{Events: index, Stream: feed}
	if configure != nil {
		configure(&cfg)
	}
	return &harness{t: t, node: node, index: index, feed: feed, server: NewServer(node, cfg, nil)}
}

func (h *harness) do(method, path string, body interface{}, token string) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (h *harness) result(env envelope, out interface{}) {
	h.t.Helper()
	require.Nil(h.t, env.Error)
	require.NoError(h.t, json.Unmarshal(env.Result, out))
}

func bech32(addr common.Address) string { return crypto.FromCommon(addr).String() }

func TestReadRoutes(t *testing.T) {
	h := newHarness(t, nil)

	rec, env := h.do(http.MethodGet, "/v1/params", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var params ParamsResult
	h.result(env, &params)
	require.Equal(t, "100", params.RewardPerBlock)
	require.Equal(t, "50000", params.Treasury)
	require.Equal(t, bech32(admin), params.Admin)
	require.Equal(t, uint64(100), params.Height)
	require.False(t, params.Paused)

	rec, env = h.do(http.MethodGet, "/v1/pools", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pools []PoolResult
	h.result(env, &pools)
	require.Len(t, pools, 1)
	require.Equal(t, "0", pools[0].TotalStaked)

	rec, env = h.do(http.MethodGet, "/v1/pools/7", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, codeNotFound, env.Error.Code)
	require.NotEmpty(t, env.Error.RequestID)

	rec, _ = h.do(http.MethodGet, "/v1/pools/abc", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodGet, "/v1/accounts/"+bech32(alice)+"/balances/usdt", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var balance BalanceResult
	h.result(env, &balance)
	require.Equal(t, "1000", balance.Balance)
	require.Equal(t, "0", balance.Allowance)

	rec, _ = h.do(http.MethodGet, "/v1/accounts/"+bech32(alice)+"/balances/DAI", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDepositClaimAndEvents(t *testing.T) {
	h := newHarness(t, nil)
	caller := alice.Hex()

	rec, _ := h.do(http.MethodPost, "/v1/tokens/USDT/approve", map[string]string{"caller": caller, "amount": "1000"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := h.do(http.MethodPost, "/v1/pools/0/deposit", map[string]string{"caller": caller, "amount": "1000"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tx TxResult
	h.result(env, &tx)
	require.NotEqual(t, "0", tx.Shares)

	for i := 0; i < 2; i++ {
		_, err := h.node.AdvanceBlock()
		require.NoError(t, err)
	}

	rec, env = h.do(http.MethodGet, "/v1/pools/0/positions/"+bech32(alice), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pos PositionResult
	h.result(env, &pos)
	require.Equal(t, tx.Shares, pos.Amount)
	require.NotEqual(t, "0", pos.Pending)

	rec, _ = h.do(http.MethodPost, "/v1/pools/0/withdraw", map[string]string{"caller": caller}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(http.MethodGet, "/v1/events?type="+events.TypeFarmDeposit, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var deposits []EventResult
	h.result(env, &deposits)
	require.Len(t, deposits, 1)
	require.Equal(t, bech32(alice), deposits[0].Account)
	require.Contains(t, deposits[0].Summary, "Deposited 1000 into pool 0")

	rec, env = h.do(http.MethodGet, "/v1/events?pool=0&limit=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest []EventResult
	h.result(env, &latest)
	require.Len(t, latest, 1)
	require.Equal(t, events.TypeFarmRewardPaid, latest[0].Type)

	rec, _ = h.do(http.MethodGet, "/v1/events?limit=-1", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteErrors(t *testing.T) {
	h := newHarness(t, nil)

	rec, env := h.do(http.MethodPost, "/v1/pools/0/deposit", map[string]string{"amount": "10"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, codeInvalidParams, env.Error.Code)

	rec, _ = h.do(http.MethodPost, "/v1/pools/0/deposit", map[string]string{"caller": alice.Hex(), "amount": "ten"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(http.MethodPost, "/v1/pools/0/deposit", map[string]string{"caller": alice.Hex(), "amount": "10", "extra": "x"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodPost, "/v1/pools/0/deposit", map[string]string{"caller": alice.Hex(), "amount": "10"}, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, codeRejected, env.Error.Code)

	rec, _ = h.do(http.MethodPost, "/v1/pools/0/withdraw-single", map[string]string{"caller": alice.Hex(), "shares": "5"}, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = h.do(http.MethodPost, "/v1/admin/reserve/withdraw", map[string]string{"caller": bob.Hex(), "amount": "5"}, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = h.do(http.MethodPost, "/v1/admin/params", map[string]string{"caller": admin.Hex(), "param": "bogus", "value": "1"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t, nil)

	rec, env := h.do(http.MethodPost, "/v1/admin/params", map[string]string{"caller": admin.Hex(), "param": "rewardPerBlock", "value": "40"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var params ParamsResult
	h.result(env, &params)
	require.Equal(t, "40", params.RewardPerBlock)

	rec, env = h.do(http.MethodPost, "/v1/admin/reserve/withdraw", map[string]string{"caller": admin.Hex(), "amount": "1000"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = h.do(http.MethodGet, "/v1/params", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	h.result(env, &params)
	require.Equal(t, "49000", params.Treasury)

	rec, env = h.do(http.MethodPost, "/v1/admin/pause", map[string]interface{}{"caller": admin.Hex(), "paused": true}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	h.result(env, &params)
	require.True(t, params.Paused)

	rec, env = h.do(http.MethodPost, "/v1/pools/0/withdraw", map[string]string{"caller": alice.Hex()}, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, codePaused, env.Error.Code)

	rec, _ = h.do(http.MethodPost, "/v1/pools/0/emergency-withdraw", map[string]string{"caller": alice.Hex()}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(http.MethodPost, "/v1/admin/pools", map[string]interface{}{"caller": admin.Hex(), "pair": bech32(provider), "input": "USDT"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code, env.Error)
}

func TestAuthenticatedWrites(t *testing.T) {
	h := newHarness(t, func(cfg *ServerConfig) {
		cfg.Authenticator = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: testSecret,
			Issuer:     "xfarm",
		}, nil)
	})
	sign := func(sub string, scopes ...string) string {
		token, err := middleware.SignToken(testSecret, middleware.TokenClaims{
			Subject: sub,
			Scopes:  scopes,
			Issuer:  "xfarm",
			TTL:     time.Hour,
		}, time.Now())
		require.NoError(t, err)
		return token
	}

	rec, _ := h.do(http.MethodGet, "/v1/pools", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := h.do(http.MethodPost, "/v1/tokens/USDT/approve", map[string]string{"amount": "1000"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	require.Equal(t, codeUnauthorized, env.Error.Code)

	aliceToken := sign(bech32(alice))
	rec, _ = h.do(http.MethodPost, "/v1/tokens/USDT/approve", map[string]string{"amount": "1000"}, aliceToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(http.MethodPost, "/v1/pools/0/deposit", map[string]string{"caller": bob.Hex(), "amount": "1000"}, aliceToken)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = h.do(http.MethodPost, "/v1/pools/0/deposit", map[string]string{"amount": "500"}, aliceToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(http.MethodPost, "/v1/admin/operator-pause", map[string]bool{"paused": true}, aliceToken)
	require.Equal(t, http.StatusForbidden, rec.Code)

	adminToken := sign(admin.Hex(), middleware.ScopeAdmin)
	rec, env = h.do(http.MethodPost, "/v1/admin/operator-pause", map[string]bool{"paused": true}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var params ParamsResult
	h.result(env, &params)
	require.True(t, params.OperatorPaused)
	require.False(t, params.Paused)

	rec, _ = h.do(http.MethodPost, "/v1/pools/0/deposit", map[string]string{"amount": "500"}, aliceToken)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitAndRequestID(t *testing.T) {
	h := newHarness(t, func(cfg *ServerConfig) {
		cfg.RateLimitKey = "farm"
		cfg.RateLimiter = middleware.NewRateLimiter(map[string]middleware.RateLimit{
			"farm": {RequestsPerMinute: 1, Burst: 1},
		}, nil)
		cfg.Observability = middleware.NewObservability(middleware.ObservabilityConfig{Enabled: true}, nil)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
	req.Header.Set(headerRequestID, "req-42")
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "req-42", rec.Header().Get(headerRequestID))

	rec, env := h.do(http.MethodGet, "/v1/pools", nil, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get(headerRequestID))
	require.NotNil(t, env.Error)
	require.Equal(t, middleware.CodeRateLimited, env.Error.Code)
	require.Equal(t, rec.Header().Get(headerRequestID), env.Error.RequestID)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))

	rec, _ = h.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "xfarm_http_requests_total")
}
