package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rmcandela/wholestock-backend/api/middleware"
	"github.com/rmcandela/wholestock-backend/api/responses"
	"github.com/rmcandela/wholestock-backend/api/validators"
	"github.com/rmcandela/wholestock-backend/internal/balance"
	"github.com/rmcandela/wholestock-backend/internal/orders"
	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
)

// OrderDetail returns one order with its items and balance workflow state.
func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrderList pages through the caller's orders, buyer or seller side
// depending on the authenticated role.
func OrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.PaginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters, err := orderFiltersFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var list *orders.OrderList
		if middleware.RoleFromContext(r.Context()) == string(enums.ActorRoleSeller) {
			list, err = svc.ListSellerOrders(r.Context(), actorID, params, filters)
		} else {
			list, err = svc.ListBuyerOrders(r.Context(), actorID, params, filters)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteList(w, list.Orders, list.NextCursor)
	}
}

// CancelOrder releases the order's holds and parks it in its terminal state.
func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Cancel(r.Context(), orderID, payload.Reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusCancelled)})
	}
}

// RequestBalance opens the balance payment workflow for a deposit-paid order.
func RequestBalance(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycleHandler(svc.RequestBalance, logg)
}

// StartProduction moves a settled order onto the production floor.
func StartProduction(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycleHandler(svc.StartProduction, logg)
}

// FulfillOrder closes out a produced order.
func FulfillOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return lifecycleHandler(svc.MarkFulfilled, logg)
}

// ResendBalance bumps the reminder clock on an open balance request.
func ResendBalance(svc balance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Resend(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newBalanceRequestResponse(request))
	}
}

func lifecycleHandler(op func(ctx context.Context, orderID uuid.UUID) error, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := op(r.Context(), orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func orderFiltersFromQuery(r *http.Request) (orders.OrderFilters, error) {
	var filters orders.OrderFilters
	query := r.URL.Query()

	if raw := query.Get("status"); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return orders.OrderFilters{}, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		filters.Status = &status
	}
	for name, dest := range map[string]**time.Time{"date_from": &filters.DateFrom, "date_to": &filters.DateTo} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return orders.OrderFilters{}, pkgerrors.New(pkgerrors.CodeValidation, name+" must be RFC3339")
		}
		*dest = &parsed
	}
	return filters, nil
}

type orderResponse struct {
	ID             uuid.UUID               `json:"id"`
	BuyerID        uuid.UUID               `json:"buyer_id"`
	SellerID       uuid.UUID               `json:"seller_id"`
	Status         enums.OrderStatus       `json:"status"`
	Currency       string                  `json:"currency"`
	DepositPct     *int                    `json:"deposit_pct,omitempty"`
	TotalCents     int                     `json:"total_cents"`
	DepositCents   int                     `json:"deposit_cents"`
	BalanceCents   int                     `json:"balance_cents"`
	BalanceDueAt   *time.Time              `json:"balance_due_at,omitempty"`
	DepositPaidAt  *time.Time              `json:"deposit_paid_at,omitempty"`
	BalancePaidAt  *time.Time              `json:"balance_paid_at,omitempty"`
	FulfilledAt    *time.Time              `json:"fulfilled_at,omitempty"`
	CancelledAt    *time.Time              `json:"cancelled_at,omitempty"`
	CancelReason   *string                 `json:"cancel_reason,omitempty"`
	Items          []orderItemResponse     `json:"items"`
	BalanceRequest *balanceRequestResponse `json:"balance_request,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

type orderItemResponse struct {
	ItemKey             string `json:"item_key"`
	Qty                 int    `json:"qty"`
	UnitPriceCents      int    `json:"unit_price_cents"`
	DepositPerUnitCents int    `json:"deposit_per_unit_cents"`
	LineTotalCents      int    `json:"line_total_cents"`
	LineDepositCents    int    `json:"line_deposit_cents"`
}

type balanceRequestResponse struct {
	Status          enums.BalanceRequestStatus `json:"status"`
	AmountCents     int                        `json:"amount_cents"`
	RequestedAt     time.Time                  `json:"requested_at"`
	LastRequestedAt time.Time                  `json:"last_requested_at"`
	ResendCount     int                        `json:"resend_count"`
	PaidAt          *time.Time                 `json:"paid_at,omitempty"`
}

func newOrderResponse(order *models.WholesaleOrder) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ItemKey:             item.ItemKey,
			Qty:                 item.Qty,
			UnitPriceCents:      item.UnitPriceCents,
			DepositPerUnitCents: item.DepositPerUnitCents,
			LineTotalCents:      item.LineTotalCents,
			LineDepositCents:    item.LineDepositCents,
		})
	}
	resp := orderResponse{
		ID:            order.ID,
		BuyerID:       order.BuyerID,
		SellerID:      order.SellerID,
		Status:        order.Status,
		Currency:      order.Currency,
		DepositPct:    order.DepositPct,
		TotalCents:    order.TotalCents,
		DepositCents:  order.DepositCents,
		BalanceCents:  order.BalanceCents,
		BalanceDueAt:  order.BalanceDueAt,
		DepositPaidAt: order.DepositPaidAt,
		BalancePaidAt: order.BalancePaidAt,
		FulfilledAt:   order.FulfilledAt,
		CancelledAt:   order.CancelledAt,
		CancelReason:  order.CancelReason,
		Items:         items,
		CreatedAt:     order.CreatedAt,
	}
	if order.BalanceRequest != nil {
		br := newBalanceRequestResponse(order.BalanceRequest)
		resp.BalanceRequest = &br
	}
	return resp
}

func newBalanceRequestResponse(request *models.BalanceRequest) balanceRequestResponse {
	if request == nil {
		return balanceRequestResponse{}
	}
	return balanceRequestResponse{
		Status:          request.Status,
		AmountCents:     request.AmountCents,
		RequestedAt:     request.RequestedAt,
		LastRequestedAt: request.LastRequestedAt,
		ResendCount:     request.ResendCount,
		PaidAt:          request.PaidAt,
	}
}
