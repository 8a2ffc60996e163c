package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var apiTestNow = time.Date(2025, time.March, 1, 3, 0, 0, 0, time.UTC)

type apiFixture struct {
	router *gin.Engine
	store  *memstore.Store
}

func newAPIFixture(t *testing.T, amounts ...rewards.Points) apiFixture {
	t.Helper()
	store := memstore.New()
	next := 0
	drawer := rewards.RewardDrawerFunc(func() (rewards.Points, error) {
		amount := amounts[min(next, len(amounts)-1)]
		next++
		return amount, nil
	})
	service, err := rewards.NewService(store, func() time.Time { return apiTestNow },
		rewards.WithDefaultDailyCap(100000),
		rewards.WithRewardDrawer(drawer),
	)
	require.NoError(t, err)
	router := NewRouter(Config{AllowedOrigins: []string{"http://localhost:3000"}, RequestTimeout: time.Second}, service, zap.NewNop())
	return apiFixture{router: router, store: store}
}

func httpDo(router *gin.Engine, method string, path string, body any) *httptest.ResponseRecorder {
	var request *http.Request
	if body != nil {
		encoded, _ := json.Marshal(body)
		request = httptest.NewRequest(method, path, bytes.NewReader(encoded))
		request.Header.Set("Content-Type", "application/json")
	} else {
		request = httptest.NewRequest(method, path, nil)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &value))
	return value
}

func TestHealthz(t *testing.T) {
	fixture := newAPIFixture(t, 100)
	recorder := httpDo(fixture.router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, `{"status":"ok"}`, recorder.Body.String())
}

func TestRouletteFlow(t *testing.T) {
	fixture := newAPIFixture(t, 400)
	user, err := fixture.store.CreateUser(context.Background(), "alice")
	require.NoError(t, err)
	userPath := "/api/users/" + strconv.FormatInt(user.ID.Int64(), 10)

	recorder := httpDo(fixture.router, http.MethodGet, userPath+"/roulette", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	status := decode[rouletteStatusResponse](t, recorder)
	require.False(t, status.HasParticipated)
	require.Equal(t, int64(100000), status.RemainingBudget)
	require.Equal(t, "2025-03-01", status.Date)

	recorder = httpDo(fixture.router, http.MethodPost, userPath+"/roulette", nil)
	require.Equal(t, http.StatusCreated, recorder.Code)
	won := decode[participateResponse](t, recorder)
	require.Equal(t, int64(400), won.WonAmount)
	require.Equal(t, int64(99600), won.RemainingBudget)

	recorder = httpDo(fixture.router, http.MethodPost, userPath+"/roulette", nil)
	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Equal(t, "already_participated", decode[errorEnvelope](t, recorder).Error.Code)

	recorder = httpDo(fixture.router, http.MethodGet, userPath+"/roulette", nil)
	status = decode[rouletteStatusResponse](t, recorder)
	require.True(t, status.HasParticipated)
	require.NotNil(t, status.LastParticipation)
	require.Equal(t, won.ParticipationID, status.LastParticipation.ParticipationID)

	recorder = httpDo(fixture.router, http.MethodGet, userPath+"/points", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	balance := decode[balanceResponse](t, recorder)
	require.Equal(t, int64(400), balance.CurrentPoint)
	require.Len(t, balance.Lots, 1)
	require.Equal(t, "REWARD", balance.Lots[0].SourceType)

	cancelPath := "/api/admin/participations/" + strconv.FormatInt(won.ParticipationID, 10) + "/cancel"
	recorder = httpDo(fixture.router, http.MethodPost, cancelPath, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = httpDo(fixture.router, http.MethodPost, cancelPath, nil)
	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Equal(t, "already_cancelled", decode[errorEnvelope](t, recorder).Error.Code)
}

func TestPurchaseAndCancelOrder(t *testing.T) {
	fixture := newAPIFixture(t, 500)
	ctx := context.Background()
	user, err := fixture.store.CreateUser(ctx, "bob")
	require.NoError(t, err)
	product, err := fixture.store.CreateProduct(ctx, rewards.Product{Name: "Coffee", Price: 300, Stock: 5, Active: true})
	require.NoError(t, err)
	userPath := "/api/users/" + strconv.FormatInt(user.ID.Int64(), 10)

	recorder := httpDo(fixture.router, http.MethodPost, userPath+"/orders", purchaseRequest{ProductID: product.ID.Int64(), Quantity: 1})
	require.Equal(t, http.StatusConflict, recorder.Code)
	envelope := decode[errorEnvelope](t, recorder)
	require.Equal(t, "insufficient_point", envelope.Error.Code)
	require.Equal(t, float64(300), envelope.Error.Details["required"])

	require.Equal(t, http.StatusCreated, httpDo(fixture.router, http.MethodPost, userPath+"/roulette", nil).Code)

	recorder = httpDo(fixture.router, http.MethodPost, userPath+"/orders", purchaseRequest{ProductID: product.ID.Int64(), Quantity: 1})
	require.Equal(t, http.StatusCreated, recorder.Code)
	order := decode[orderPayload](t, recorder)
	require.Equal(t, int64(200), order.BalanceAfter)
	require.Equal(t, "COMPLETED", order.Status)
	require.Equal(t, "Coffee", order.ProductName)

	recorder = httpDo(fixture.router, http.MethodPost, "/api/orders/"+strconv.FormatInt(order.OrderID, 10)+"/cancel", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	cancelled := decode[orderPayload](t, recorder)
	require.Equal(t, "CANCELLED", cancelled.Status)
	require.Equal(t, int64(500), cancelled.BalanceAfter)

	recorder = httpDo(fixture.router, http.MethodGet, userPath+"/points/history?limit=2", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	history := decode[struct {
		Entries []historyPayload `json:"entries"`
	}](t, recorder)
	require.Len(t, history.Entries, 2)
	require.Equal(t, "REFUND", history.Entries[0].TransactionType)
	require.Equal(t, "ORDER", history.Entries[0].ReferenceType)
}

func TestBudgetAdministration(t *testing.T) {
	fixture := newAPIFixture(t, 100)

	recorder := httpDo(fixture.router, http.MethodPost, "/api/admin/budgets", ensureBudgetsRequest{StartDate: "2025-03-01", EndDate: "2025-03-05", DailyCap: 5000})
	require.Equal(t, http.StatusOK, recorder.Code)
	created := decode[struct {
		Budgets []budgetPayload `json:"budgets"`
	}](t, recorder)
	require.Len(t, created.Budgets, 5)
	require.Equal(t, int64(5000), created.Budgets[0].RemainingAmount)

	recorder = httpDo(fixture.router, http.MethodGet, "/api/admin/budgets?start_date=2025-03-01&end_date=2025-03-05&page=1&size=2", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	page := decode[budgetPageResponse](t, recorder)
	require.Equal(t, int64(5), page.TotalItems)
	require.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Budgets, 2)
	require.Equal(t, "2025-03-03", page.Budgets[0].Date)

	recorder = httpDo(fixture.router, http.MethodPost, "/api/admin/budgets", ensureBudgetsRequest{StartDate: "2025-03-05", EndDate: "2025-03-01", DailyCap: 5000})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, "validation", decode[errorEnvelope](t, recorder).Error.Code)
}

func TestRequestValidation(t *testing.T) {
	fixture := newAPIFixture(t, 100)
	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{name: "non numeric user", method: http.MethodGet, path: "/api/users/abc/points", status: http.StatusBadRequest, code: "validation"},
		{name: "zero user", method: http.MethodGet, path: "/api/users/0/points", status: http.StatusBadRequest, code: "validation"},
		{name: "unknown user", method: http.MethodPost, path: "/api/users/42/roulette", status: http.StatusNotFound, code: "not_found"},
		{name: "unknown order", method: http.MethodPost, path: "/api/orders/42/cancel", status: http.StatusNotFound, code: "not_found"},
		{name: "bad history limit", method: http.MethodGet, path: "/api/users/1/points/history?limit=x", status: http.StatusBadRequest, code: "validation"},
		{name: "bad budget date", method: http.MethodGet, path: "/api/admin/budgets?start_date=tomorrow&end_date=2025-03-01", status: http.StatusBadRequest, code: "validation"},
		{name: "bad page size", method: http.MethodGet, path: "/api/admin/budgets?start_date=2025-03-01&end_date=2025-03-01&size=1000", status: http.StatusBadRequest, code: "validation"},
		{name: "missing body", method: http.MethodPost, path: "/api/users/1/orders", status: http.StatusBadRequest, code: errorCodeInvalidPayload},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := httpDo(fixture.router, testCase.method, testCase.path, testCase.body)
			require.Equal(t, testCase.status, recorder.Code)
			require.Equal(t, testCase.code, decode[errorEnvelope](t, recorder).Error.Code)
		})
	}
}

func TestStatusForKind(t *testing.T) {
	require.Equal(t, http.StatusServiceUnavailable, statusForKind(rewards.KindTransientConflict))
	require.Equal(t, http.StatusInternalServerError, statusForKind(rewards.KindInternal))
	require.Equal(t, http.StatusConflict, statusForKind(rewards.KindBudgetExhausted))
}
