package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmcandela/wholestock-backend/api/middleware"
	"github.com/rmcandela/wholestock-backend/internal/orders"
	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
	"github.com/rmcandela/wholestock-backend/pkg/pagination"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard})
}

func withActor(req *http.Request, userID uuid.UUID, role enums.ActorRole) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), userID.String(), string(role)))
}

func withOrderParam(req *http.Request, orderID string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderID", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

// ordersServiceStub satisfies orders.Service; unset hooks fail loudly so a
// test only exercises the paths it wires.
type ordersServiceStub struct {
	placeOrder      func(context.Context, orders.PlaceOrderInput) (*models.WholesaleOrder, error)
	getOrder        func(context.Context, uuid.UUID) (*models.WholesaleOrder, error)
	listBuyer       func(context.Context, uuid.UUID, pagination.Params, orders.OrderFilters) (*orders.OrderList, error)
	listSeller      func(context.Context, uuid.UUID, pagination.Params, orders.OrderFilters) (*orders.OrderList, error)
	markDepositPaid func(context.Context, uuid.UUID) error
	requestBalance  func(context.Context, uuid.UUID) error
	markBalancePaid func(context.Context, uuid.UUID) error
	markOverdue     func(context.Context, uuid.UUID) error
	startProduction func(context.Context, uuid.UUID) error
	markFulfilled   func(context.Context, uuid.UUID) error
	cancel          func(context.Context, uuid.UUID, string) error
}

var errStubNotWired = pkgerrors.New(pkgerrors.CodeInternal, "stub not wired")

func (s ordersServiceStub) PlaceOrder(ctx context.Context, input orders.PlaceOrderInput) (*models.WholesaleOrder, error) {
	if s.placeOrder == nil {
		return nil, errStubNotWired
	}
	return s.placeOrder(ctx, input)
}

func (s ordersServiceStub) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.WholesaleOrder, error) {
	if s.getOrder == nil {
		return nil, errStubNotWired
	}
	return s.getOrder(ctx, orderID)
}

func (s ordersServiceStub) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters orders.OrderFilters) (*orders.OrderList, error) {
	if s.listBuyer == nil {
		return nil, errStubNotWired
	}
	return s.listBuyer(ctx, buyerID, params, filters)
}

func (s ordersServiceStub) ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters orders.OrderFilters) (*orders.OrderList, error) {
	if s.listSeller == nil {
		return nil, errStubNotWired
	}
	return s.listSeller(ctx, sellerID, params, filters)
}

func (s ordersServiceStub) MarkDepositPaid(ctx context.Context, orderID uuid.UUID) error {
	if s.markDepositPaid == nil {
		return errStubNotWired
	}
	return s.markDepositPaid(ctx, orderID)
}

func (s ordersServiceStub) RequestBalance(ctx context.Context, orderID uuid.UUID) error {
	if s.requestBalance == nil {
		return errStubNotWired
	}
	return s.requestBalance(ctx, orderID)
}

func (s ordersServiceStub) MarkBalancePaid(ctx context.Context, orderID uuid.UUID) error {
	if s.markBalancePaid == nil {
		return errStubNotWired
	}
	return s.markBalancePaid(ctx, orderID)
}

func (s ordersServiceStub) MarkOverdue(ctx context.Context, orderID uuid.UUID) error {
	if s.markOverdue == nil {
		return errStubNotWired
	}
	return s.markOverdue(ctx, orderID)
}

func (s ordersServiceStub) StartProduction(ctx context.Context, orderID uuid.UUID) error {
	if s.startProduction == nil {
		return errStubNotWired
	}
	return s.startProduction(ctx, orderID)
}

func (s ordersServiceStub) MarkFulfilled(ctx context.Context, orderID uuid.UUID) error {
	if s.markFulfilled == nil {
		return errStubNotWired
	}
	return s.markFulfilled(ctx, orderID)
}

func (s ordersServiceStub) Cancel(ctx context.Context, orderID uuid.UUID, reason string) error {
	if s.cancel == nil {
		return errStubNotWired
	}
	return s.cancel(ctx, orderID, reason)
}

// balanceServiceStub satisfies balance.Service for handler tests.
type balanceServiceStub struct {
	resend     func(context.Context, uuid.UUID) (*models.BalanceRequest, error)
	markFailed func(context.Context, uuid.UUID, string) error
}

func (s balanceServiceStub) RequestTx(_ context.Context, _ *gorm.DB, _ *models.WholesaleOrder, _ time.Time) (*models.BalanceRequest, error) {
	return nil, errStubNotWired
}

func (s balanceServiceStub) Resend(ctx context.Context, orderID uuid.UUID) (*models.BalanceRequest, error) {
	if s.resend == nil {
		return nil, errStubNotWired
	}
	return s.resend(ctx, orderID)
}

func (s balanceServiceStub) MarkPaidTx(_ context.Context, _ *gorm.DB, _ uuid.UUID, _ time.Time) error {
	return errStubNotWired
}

func (s balanceServiceStub) MarkFailed(ctx context.Context, orderID uuid.UUID, reason string) error {
	if s.markFailed == nil {
		return errStubNotWired
	}
	return s.markFailed(ctx, orderID, reason)
}

func (s balanceServiceStub) CancelForOrderTx(_ context.Context, _ *gorm.DB, _ uuid.UUID) error {
	return errStubNotWired
}

func (s balanceServiceStub) StatusFor(_ context.Context, _ uuid.UUID) (enums.BalanceRequestStatus, error) {
	return enums.BalanceRequestStatusNone, errStubNotWired
}
