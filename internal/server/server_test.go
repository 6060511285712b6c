package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-agent/internal/types"
)

type fakeEngine struct {
	stepErr  error
	executed int

	// when set, ExecutePlan signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (e *fakeEngine) Step(context.Context) (*types.StepResult, error) {
	if e.stepErr != nil {
		return nil, e.stepErr
	}
	return &types.StepResult{CycleID: "c-1", Asset: "WETH", Decision: types.Decision{Action: types.Hold}}, nil
}

func (e *fakeEngine) Rebalance(context.Context) (*types.RebalanceResult, error) {
	return &types.RebalanceResult{CycleID: "r-1", Reason: "portfolio within tolerance of target allocation"}, nil
}

func (e *fakeEngine) AnalyzeAlert(_ context.Context, a types.TradingViewAlert) (*types.AlertPlan, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, types.ErrInvalidAlert)
	}
	return &types.AlertPlan{
		ID:        "plan-" + strings.ToLower(a.Symbol),
		Alert:     a,
		Asset:     "WBTC",
		Decision:  types.Decision{Action: types.Buy, Asset: "WBTC"},
		Status:    types.PlanPending,
		CreatedAt: time.Now(),
	}, nil
}

func (e *fakeEngine) ExecutePlan(_ context.Context, p *types.AlertPlan) (*types.StepResult, error) {
	if p.Status != types.PlanPending {
		return nil, types.ErrPlanNotPending
	}
	if e.entered != nil {
		close(e.entered)
		<-e.release
	}
	e.executed++
	p.Status = types.PlanExecuted
	return &types.StepResult{CycleID: p.ID}, nil
}

func newTestServer(t *testing.T, eng *fakeEngine, opts Options) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return New(eng, opts)
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const alertBody = `{"symbol": "BTCUSDT", "price": 65000, "action": "buy", "strategy": "bb-touch"}`

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, Options{})
	rec := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestWebhookConfirmFlow(t *testing.T) {
	eng := &fakeEngine{}
	s := newTestServer(t, eng, Options{PlanTTL: time.Hour})

	rec := do(s, http.MethodPost, "/webhook/tradingview", alertBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var plan types.AlertPlan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, "plan-btcusdt", plan.ID)
	assert.Equal(t, types.PlanPending, plan.Status)

	rec = do(s, http.MethodGet, "/plans/"+plan.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodPost, "/plans/"+plan.ID+"/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, eng.executed)

	rec = do(s, http.MethodPost, "/plans/"+plan.ID+"/confirm", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(s, http.MethodPost, "/plans/"+plan.ID+"/reject", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, eng.executed)
}

func TestWebhookReject(t *testing.T) {
	eng := &fakeEngine{}
	s := newTestServer(t, eng, Options{})

	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/webhook/tradingview", alertBody).Code)
	rec := do(s, http.MethodPost, "/plans/plan-btcusdt/reject", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"REJECTED"`)

	rec = do(s, http.MethodPost, "/plans/plan-btcusdt/confirm", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, eng.executed)
}

func TestWebhookBadPayload(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, Options{})
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/webhook/tradingview", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/webhook/tradingview", `{"symbol": "BTCUSDT", "action": "hodl"}`).Code)
}

func TestPlanNotFoundAndExpired(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, Options{PlanTTL: time.Minute})
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/plans/nope", "").Code)

	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/webhook/tradingview", alertBody).Code)
	s.plans.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, http.StatusGone, do(s, http.MethodPost, "/plans/plan-btcusdt/confirm", "").Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/plans/plan-btcusdt", "").Code)
}

func TestDecidedPlanOutlivesTTL(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, Options{PlanTTL: time.Minute})
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/webhook/tradingview", alertBody).Code)
	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/plans/plan-btcusdt/confirm", "").Code)

	s.plans.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	rec := do(s, http.MethodGet, "/plans/plan-btcusdt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"EXECUTED"`)

	s.plans.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/plans/plan-btcusdt", "").Code)
}

func TestConfirmInFlightDoesNotBlockPlans(t *testing.T) {
	eng := &fakeEngine{entered: make(chan struct{}), release: make(chan struct{})}
	s := newTestServer(t, eng, Options{PlanTTL: time.Hour})
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/webhook/tradingview", alertBody).Code)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- do(s, http.MethodPost, "/plans/plan-btcusdt/confirm", "") }()
	<-eng.entered

	rec := do(s, http.MethodGet, "/plans/plan-btcusdt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"EXECUTING"`)
	assert.Equal(t, http.StatusConflict, do(s, http.MethodPost, "/plans/plan-btcusdt/confirm", "").Code)
	assert.Equal(t, http.StatusConflict, do(s, http.MethodPost, "/plans/plan-btcusdt/reject", "").Code)
	eth := `{"symbol": "ETHUSDT", "price": 3000, "action": "buy"}`
	assert.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/webhook/tradingview", eth).Code)

	close(eng.release)
	rec = <-done
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"EXECUTED"`)
	assert.Equal(t, 1, eng.executed)
}

func TestCycleAndRebalance(t *testing.T) {
	eng := &fakeEngine{}
	s := newTestServer(t, eng, Options{})

	rec := do(s, http.MethodPost, "/cycle", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cycle_id":"c-1"`)

	rec = do(s, http.MethodPost, "/rebalance", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	eng.stepErr = fmt.Errorf("fetch prices: %w", types.ErrDataUnavailable)
	assert.Equal(t, http.StatusBadGateway, do(s, http.MethodPost, "/cycle", "").Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, Options{RatePerSecond: 0.001, Burst: 2})
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodGet, "/health", "").Code)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, Options{Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("agent_trades_total 0\n"))
	})})
	rec := do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "agent_trades_total")
}
