package controllers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/rmcandela/wholestock-backend/api/responses"
	"github.com/rmcandela/wholestock-backend/api/validators"
	"github.com/rmcandela/wholestock-backend/internal/balance"
	"github.com/rmcandela/wholestock-backend/internal/orders"
	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
	"github.com/rmcandela/wholestock-backend/pkg/outbox/idempotency"
)

const paymentsWebhookConsumer = "payments-webhook"

const (
	webhookEventDepositPaid   = "deposit_paid"
	webhookEventBalancePaid   = "balance_paid"
	webhookEventBalanceFailed = "balance_failed"
)

type paymentsWebhookRequest struct {
	EventID uuid.UUID `json:"event_id" validate:"required"`
	OrderID uuid.UUID `json:"order_id" validate:"required"`
	Event   string    `json:"event" validate:"required,oneof=deposit_paid balance_paid balance_failed"`
	Reason  string    `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// PaymentsWebhook ingests payment provider callbacks. Deliveries are
// deduplicated on event_id so provider retries collapse to one transition;
// a handler failure releases the dedup mark so the provider can redeliver.
func PaymentsWebhook(ordersSvc orders.Service, balanceSvc balance.Service, guard *idempotency.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload paymentsWebhookRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ctx = logg.WithFields(ctx, map[string]any{
			"event_id": payload.EventID.String(),
			"event":    payload.Event,
		})
		ctx = logg.WithOrderID(ctx, payload.OrderID.String())

		alreadyProcessed, err := guard.CheckAndMarkProcessed(ctx, paymentsWebhookConsumer, payload.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if alreadyProcessed {
			logg.Info(ctx, "webhook.duplicate")
			responses.WriteSuccess(w, map[string]bool{"duplicate": true})
			return
		}

		switch payload.Event {
		case webhookEventDepositPaid:
			err = ordersSvc.MarkDepositPaid(ctx, payload.OrderID)
		case webhookEventBalancePaid:
			err = ordersSvc.MarkBalancePaid(ctx, payload.OrderID)
		case webhookEventBalanceFailed:
			reason := payload.Reason
			if reason == "" {
				reason = "payment failed"
			}
			err = balanceSvc.MarkFailed(ctx, payload.OrderID, reason)
		default:
			err = pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported webhook event %q", payload.Event))
		}

		if err != nil {
			// Unmark so the provider's retry can land; idempotent transitions
			// make a second delivery safe.
			if delErr := guard.Delete(ctx, paymentsWebhookConsumer, payload.EventID); delErr != nil {
				logg.Error(ctx, "webhook.dedup_release_failed", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(ctx, "webhook.processed")
		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}
