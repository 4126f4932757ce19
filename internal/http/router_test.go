package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/clock"
	"dispatch/internal/domainerr"
	"dispatch/internal/infra"
	"dispatch/internal/logger"
	"dispatch/internal/modules/alertstate"
	"dispatch/internal/modules/assignment"
	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/health"
	"dispatch/internal/modules/order"
	"dispatch/internal/modules/reporting"
	"dispatch/internal/pagination"
	"dispatch/internal/types"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type tokens map[string]*infra.FirebaseToken

func (m tokens) VerifyIDToken(_ context.Context, raw string) (*infra.FirebaseToken, error) {
	if tok, ok := m[raw]; ok {
		return tok, nil
	}
	return nil, errors.New("token rejected")
}

type testEnv struct {
	orders  *order.MemoryStore
	drivers *driver.MemoryStore
	cache   *alertstate.MemoryCache
	history *alertstate.MemoryHistory
	dbErr   error
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		orders:  order.NewMemoryStore(),
		drivers: driver.NewMemoryStore(),
		cache:   alertstate.NewMemoryCache(),
		history: alertstate.NewMemoryHistory(),
	}
	log := logger.Discard()
	clk := clock.NewFixed(t0)
	orders := order.NewService(env.orders, nil, nil, clk, log)
	assign := assignment.NewService(orders, env.drivers, assignment.NewStaticRadius(5), nil, nil, log)
	checks := map[string]health.Pinger{
		"db":    health.PingFunc(func(context.Context) error { return env.dbErr }),
		"cache": health.PingFunc(func(context.Context) error { return nil }),
	}
	env.router = NewServer(ServerDeps{
		Orders:     orders,
		Drivers:    env.drivers,
		Assignment: assign,
		Reports:    reporting.NewService(env.cache, env.history),
		Health:     health.NewService(checks, "inprocess", clk, log),
		Verifier: tokens{
			"admin-token": {UID: "admin1", Claims: map[string]any{"role": "admin"}},
			"user-token":  {UID: "user1", Claims: map[string]any{"role": "customer"}},
		},
		Pages: pagination.NewParser(20, 100),
		Log:   log,
	}).Routes()
	return env
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (env *testEnv) do(t *testing.T, method, path string, body any) (int, response) {
	t.Helper()
	return env.doAs(t, "admin-token", method, path, body)
}

func (env *testEnv) doAs(t *testing.T, token, method, path string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var out response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func errorCode(t *testing.T, r response) string {
	t.Helper()
	var d struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &d))
	return d.Code
}

func online(id string, lat, lng float64) driver.Driver {
	return driver.Driver{
		ID:           types.ID(id),
		Name:         id,
		IsOnline:     true,
		IsVerified:   true,
		LastLocation: &driver.Location{Point: types.Point{Lat: lat, Lng: lng}, RecordedAt: t0},
	}
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.doAs(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)

	env.dbErr = errors.New("dial tcp 10.0.3.7:5432: connection refused (user=dispatch_rw)")
	code, body = env.doAs(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, body.Success)

	var report health.Report
	require.NoError(t, json.Unmarshal(body.Data, &report))
	assert.Equal(t, "down", report.Components["db"].Status)
	assert.Equal(t, "ok", report.Components["cache"].Status)
	assert.Equal(t, "inprocess", report.Queue)
	assert.NotContains(t, string(body.Data), "10.0.3.7")
	assert.NotContains(t, string(body.Data), "dispatch_rw")
}

func TestAPIRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.doAs(t, "", http.MethodGet, "/api/alerts/summary", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = env.doAs(t, "forged", http.MethodGet, "/api/alerts/summary", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = env.doAs(t, "user-token", http.MethodGet, "/api/alerts/summary", nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = env.do(t, http.MethodGet, "/api/alerts/summary", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	env.orders.Put(order.Order{ID: "o1", Number: "ORD-1", Status: order.StatusPending, CreatedAt: t0.Add(-time.Hour)})

	code, body := env.do(t, http.MethodPost, "/api/order-management/o1/update-status", map[string]string{"status": "paid"})
	require.Equal(t, http.StatusOK, code)
	var o order.Order
	require.NoError(t, json.Unmarshal(body.Data, &o))
	assert.Equal(t, order.StatusPaid, o.Status)
	require.NotNil(t, o.PaidAt)

	code, body = env.do(t, http.MethodPost, "/api/order-management/o1/update-status", map[string]string{"status": "COMPLETED"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, body))

	code, body = env.do(t, http.MethodPost, "/api/order-management/o1/update-status", map[string]string{"status": "LOST"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))

	code, body = env.do(t, http.MethodPost, "/api/order-management/missing/update-status", map[string]string{"status": "PAID"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))

	events := env.orders.Events("o1")
	require.Len(t, events, 1)
	require.NotNil(t, events[0].ActorID)
	assert.Equal(t, types.ID("admin1"), *events[0].ActorID)
}

func TestStoreOutageIsGeneric500(t *testing.T) {
	env := newTestEnv(t)
	env.orders.Err = domainerr.Unavailable("get order", errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	code, body := env.do(t, http.MethodGet, "/api/order-management/o1", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, body.Success)
	assert.Equal(t, "internal error, try again", body.Message)
	assert.Equal(t, "STORE_UNAVAILABLE", errorCode(t, body))
	assert.NotContains(t, string(body.Data), "10.0.0.5")
}

func TestListOrders(t *testing.T) {
	env := newTestEnv(t)
	for i, id := range []string{"o1", "o2", "o3"} {
		env.orders.Put(order.Order{ID: types.ID(id), Number: "ORD-" + id, Status: order.StatusPaid, CreatedAt: t0.Add(time.Duration(i) * time.Minute)})
	}
	env.orders.Put(order.Order{ID: "o4", Number: "ORD-o4", Status: order.StatusCompleted, CreatedAt: t0})

	code, body := env.do(t, http.MethodGet, "/api/order-management?status=PAID&per_page=2&page=1", nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Items      []order.Order   `json:"items"`
		Pagination pagination.Meta `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, types.ID("o3"), page.Items[0].ID)
	assert.EqualValues(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.LastPage)

	code, _ = env.do(t, http.MethodGet, "/api/order-management?page=zero", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, body = env.do(t, http.MethodGet, "/api/order-management?page=9223372036854775807", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))
	code, _ = env.do(t, http.MethodGet, "/api/alerts/history?page=9223372036854775807&per_page=1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = env.do(t, http.MethodGet, "/api/drivers?page=9223372036854775807", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = env.do(t, http.MethodGet, "/api/order-management?status=LOST", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReassignAndHistory(t *testing.T) {
	env := newTestEnv(t)
	a := types.ID("dA")
	env.orders.Put(order.Order{ID: "o1", Number: "ORD-1", Status: order.StatusDispatched, DriverID: &a, CreatedAt: t0})
	env.orders.Put(order.Order{ID: "done", Status: order.StatusCompleted, CreatedAt: t0})
	env.orders.Put(order.Order{ID: "new", Status: order.StatusPending, CreatedAt: t0})
	env.drivers.Put(online("dA", 25.03, 121.56))
	env.drivers.Put(online("dB", 25.04, 121.57))

	code, body := env.do(t, http.MethodPost, "/api/order-management/o1/reassign", map[string]string{"driver_id": "dB", "reason": "vehicle breakdown"})
	require.Equal(t, http.StatusOK, code, string(body.Data))

	code, body = env.do(t, http.MethodPost, "/api/order-management/o1/reassign", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))

	code, body = env.do(t, http.MethodPost, "/api/order-management/o1/reassign", map[string]string{"driver_id": "ghost"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_DRIVER", errorCode(t, body))

	code, body = env.do(t, http.MethodPost, "/api/order-management/done/reassign", map[string]string{"driver_id": "dA"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, body))

	code, body = env.do(t, http.MethodPost, "/api/order-management/new/reassign", map[string]string{"driver_id": "dA"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, body))
	pending, err := env.orders.Get(context.Background(), "new")
	require.NoError(t, err)
	assert.Nil(t, pending.DriverID)

	code, body = env.do(t, http.MethodGet, "/api/order-management/o1/reassignments", nil)
	require.Equal(t, http.StatusOK, code)
	var events []order.ReassignmentEvent
	require.NoError(t, json.Unmarshal(body.Data, &events))
	require.Len(t, events, 1)
	assert.Equal(t, types.ID("dB"), events[0].NewDriverID)
	require.NotNil(t, events[0].OldDriverID)
	assert.Equal(t, a, *events[0].OldDriverID)
	assert.Equal(t, types.ID("admin1"), events[0].ActorID)
}

func TestAutoAssignAndEligible(t *testing.T) {
	env := newTestEnv(t)
	env.orders.Put(order.Order{ID: "o1", Status: order.StatusPaid, Delivery: types.Point{Lat: 25.0330, Lng: 121.5654}, CreatedAt: t0})
	env.drivers.Put(online("near", 25.0340, 121.5660))
	env.drivers.Put(online("far", 25.1500, 121.7500))

	code, body := env.do(t, http.MethodGet, "/api/drivers/eligible?order_id=o1&radius_km=30", nil)
	require.Equal(t, http.StatusOK, code)
	var eligible struct {
		RadiusKm float64            `json:"radius_km"`
		Drivers  []driver.Candidate `json:"drivers"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &eligible))
	assert.Equal(t, 30.0, eligible.RadiusKm)
	require.Len(t, eligible.Drivers, 2)
	assert.Equal(t, types.ID("near"), eligible.Drivers[0].ID)

	code, _ = env.do(t, http.MethodGet, "/api/drivers/eligible?order_id=o1&radius_km=-2", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = env.do(t, http.MethodGet, "/api/drivers/eligible", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/api/order-management/o1/auto-assign", nil)
	require.Equal(t, http.StatusOK, code)
	o, err := env.orders.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDispatched, o.Status)
	assert.Equal(t, types.ID("near"), *o.DriverID)
}

func TestRefundEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.orders.Put(order.Order{ID: "o1", Status: order.StatusCompleted, CreatedAt: t0})
	env.orders.Put(order.Order{ID: "o2", Status: order.StatusCompleted, CreatedAt: t0})

	code, _ := env.do(t, http.MethodPost, "/api/refunds/o1/approve", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/api/order-management/o1/refund-request", map[string]string{"reason": "cold food"})
	require.Equal(t, http.StatusOK, code)

	code, body := env.do(t, http.MethodPost, "/api/refunds/o1/approve", nil)
	require.Equal(t, http.StatusOK, code)
	var o order.Order
	require.NoError(t, json.Unmarshal(body.Data, &o))
	assert.Equal(t, order.StatusRefunded, o.Status)
	assert.Equal(t, order.RefundApproved, o.RefundStatus)

	code, body = env.do(t, http.MethodPost, "/api/refunds/o1/approve", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ALREADY_PROCESSED", errorCode(t, body))

	code, _ = env.do(t, http.MethodPost, "/api/order-management/o2/refund-request", nil)
	require.Equal(t, http.StatusOK, code)
	code, body = env.do(t, http.MethodPost, "/api/refunds/o2/reject", map[string]string{"reason": "outside window"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body.Data, &o))
	assert.Equal(t, order.StatusCompleted, o.Status)
	assert.Equal(t, order.RefundRejected, o.RefundStatus)
}

func TestRadiusSetting(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/api/settings/assignment-radius", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"radius_km":5}`, string(body.Data))

	for _, bad := range []any{map[string]float64{"radius_km": 0}, map[string]float64{"radius_km": 101}, map[string]string{}} {
		code, _ = env.do(t, http.MethodPut, "/api/settings/assignment-radius", bad)
		assert.Equal(t, http.StatusBadRequest, code)
	}

	code, _ = env.do(t, http.MethodPut, "/api/settings/assignment-radius", map[string]float64{"radius_km": 12.5})
	require.Equal(t, http.StatusOK, code)
	_, body = env.do(t, http.MethodGet, "/api/settings/assignment-radius", nil)
	assert.JSONEq(t, `{"radius_km":12.5}`, string(body.Data))
}

func TestAlertEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.cache.Set(ctx, alertstate.Entry{Type: alertstate.TypeStuckOrders, LastRun: t0, LastCount: 3}))
	require.NoError(t, env.cache.Set(ctx, alertstate.Entry{Type: alertstate.TypeNotifications, LastRun: t0.Add(time.Minute), LastRate: 0.12, LastTotal: 100, LastFailed: 12}))
	require.NoError(t, env.history.Append(ctx, alertstate.Run{Type: alertstate.TypeStuckOrders, RanAt: t0, Succeeded: true, Count: 3}))
	require.NoError(t, env.history.Append(ctx, alertstate.Run{Type: alertstate.TypeNotifications, RanAt: t0.Add(time.Minute), Succeeded: true, Rate: 0.12}))

	code, body := env.do(t, http.MethodGet, "/api/alerts/summary", nil)
	require.Equal(t, http.StatusOK, code)
	var s reporting.Summary
	require.NoError(t, json.Unmarshal(body.Data, &s))
	assert.Equal(t, 3, s.StuckOrdersCount)
	assert.Equal(t, 0, s.DriverLocationStaleCount)
	assert.InDelta(t, 0.12, s.NotificationFailureRate, 1e-9)
	require.NotNil(t, s.UpdatedAt)
	assert.True(t, s.UpdatedAt.Equal(t0.Add(time.Minute)))

	code, body = env.do(t, http.MethodGet, "/api/alerts/history?type=stuck_orders", nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Items []alertstate.Run `json:"items"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, alertstate.TypeStuckOrders, page.Items[0].Type)

	code, _ = env.do(t, http.MethodGet, "/api/alerts/history?type=weather", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodGet, "/api/alerts/status", nil)
	assert.Equal(t, http.StatusOK, code)
}
