package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dormship-backend/api/middleware"
	"github.com/angelmondragon/dormship-backend/internal/orders"
	internalpayments "github.com/angelmondragon/dormship-backend/internal/payments"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/payos"
)

type stubService struct {
	input internalpayments.CreatePaymentInput
	views []internalpayments.PaymentView
}

func (s *stubService) CreatePayment(_ context.Context, input internalpayments.CreatePaymentInput) (*internalpayments.Checkout, error) {
	s.input = input
	amount := int64(30000)
	if input.Amount != nil {
		amount = *input.Amount
	}
	return &internalpayments.Checkout{OrderID: input.OrderID, OrderCode: 42, Amount: amount}, nil
}

func (s *stubService) ListForOrder(context.Context, orders.Actor, uuid.UUID) ([]internalpayments.PaymentView, error) {
	return s.views, nil
}

func (s *stubService) HandleWebhook(context.Context, payos.Webhook) (string, error) {
	return "", nil
}

func newRequest(method, body string, orderID uuid.UUID) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/orders/x/payments", nil)
	} else {
		req = httptest.NewRequest(method, "/orders/x/payments", strings.NewReader(body))
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", orderID.String())
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = middleware.WithIdentity(ctx, uuid.New(), enums.UserRoleStudent)
	return req.WithContext(ctx)
}

func TestCreateWithoutBodyPaysRemaining(t *testing.T) {
	orderID := uuid.New()
	svc := &stubService{}
	rec := httptest.NewRecorder()

	Create(svc, logger.Nop()).ServeHTTP(rec, newRequest(http.MethodPost, "", orderID))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, orderID, svc.input.OrderID)
	require.Nil(t, svc.input.Amount)
}

func TestCreatePartialAmount(t *testing.T) {
	svc := &stubService{}
	rec := httptest.NewRecorder()

	Create(svc, logger.Nop()).ServeHTTP(rec, newRequest(http.MethodPost, `{"amount":10000}`, uuid.New()))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, int64(10000), *svc.input.Amount)

	var body struct {
		Data internalpayments.Checkout `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, int64(10000), body.Data.Amount)
}

func TestCreateRejectsNonPositiveAmount(t *testing.T) {
	rec := httptest.NewRecorder()
	Create(&stubService{}, logger.Nop()).ServeHTTP(rec, newRequest(http.MethodPost, `{"amount":0}`, uuid.New()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestList(t *testing.T) {
	svc := &stubService{views: []internalpayments.PaymentView{{OrderCode: 1, Amount: 500}}}
	rec := httptest.NewRecorder()

	List(svc, logger.Nop()).ServeHTTP(rec, newRequest(http.MethodGet, "", uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"orderCode":1`)
}
