package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rmcandela/wholestock-backend/api/middleware"
	"github.com/rmcandela/wholestock-backend/api/responses"
	"github.com/rmcandela/wholestock-backend/api/validators"
	"github.com/rmcandela/wholestock-backend/internal/orders"
	"github.com/rmcandela/wholestock-backend/internal/pricing"
	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
)

// Checkout validates the buyer's selection, prices it, and places the order
// with its stock confirmed, all in one call.
func Checkout(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		buyerID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := make([]orders.OrderLineInput, 0, len(payload.Lines))
		for _, line := range payload.Lines {
			lines = append(lines, orders.OrderLineInput{
				ItemKey:        line.ItemKey,
				Qty:            line.Qty,
				StockQty:       line.StockQty,
				UnitPriceCents: line.UnitPriceCents,
			})
		}

		order, err := svc.PlaceOrder(r.Context(), orders.PlaceOrderInput{
			BuyerID:  buyerID,
			SellerID: payload.SellerID,
			Currency: payload.Currency,
			MOQ:      payload.MOQ,
			Deposit:  payload.Deposit.toPolicy(),
			Lines:    lines,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

type checkoutRequest struct {
	SellerID uuid.UUID             `json:"seller_id" validate:"required"`
	Currency string                `json:"currency" validate:"omitempty,len=3"`
	MOQ      int                   `json:"moq" validate:"min=0"`
	Deposit  *depositPolicyRequest `json:"deposit_policy,omitempty"`
	Lines    []checkoutLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type checkoutLineRequest struct {
	ItemKey        string `json:"item_key" validate:"required"`
	Qty            int    `json:"qty" validate:"required,gt=0"`
	StockQty       int    `json:"stock_qty" validate:"min=0"`
	UnitPriceCents int    `json:"unit_price_cents" validate:"required,gt=0"`
}

type depositPolicyRequest struct {
	Percentage  int `json:"percentage" validate:"min=0,max=100"`
	AmountCents int `json:"amount_cents" validate:"min=0"`
}

func (d *depositPolicyRequest) toPolicy() *pricing.DepositPolicy {
	if d == nil {
		return nil
	}
	return &pricing.DepositPolicy{
		Percentage:  d.Percentage,
		AmountCents: d.AmountCents,
	}
}

// actorUUID resolves the authenticated caller's id.
func actorUUID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "malformed caller identity")
	}
	return id, nil
}
