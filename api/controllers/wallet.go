package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rmcandela/wholestock-backend/api/responses"
	"github.com/rmcandela/wholestock-backend/api/validators"
	"github.com/rmcandela/wholestock-backend/internal/wallet"
	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
)

// WalletCredit records a confirmed top-up as a ledger append for the caller.
func WalletCredit(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload walletCreditRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.Append(r.Context(), wallet.AppendInput{
			OwnerID:     ownerID,
			Type:        enums.WalletEntryTypeCredit,
			AmountCents: payload.AmountCents,
			Source:      payload.Source,
			ReferenceID: payload.ReferenceID,
			Memo:        payload.Memo,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newWalletEntryResponse(entry))
	}
}

// WalletBalance reads the caller's current balance.
func WalletBalance(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.Balance(r.Context(), ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]int64{"balance_cents": balance})
	}
}

// WalletEntries lists the caller's full ledger history, oldest first.
func WalletEntries(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := actorUUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.ListEntries(r.Context(), ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]walletEntryResponse, 0, len(entries))
		for i := range entries {
			out = append(out, newWalletEntryResponse(&entries[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type walletCreditRequest struct {
	AmountCents int64      `json:"amount_cents" validate:"required,gt=0"`
	Source      string     `json:"source" validate:"required,max=100"`
	ReferenceID *uuid.UUID `json:"reference_id,omitempty"`
	Memo        *string    `json:"memo,omitempty" validate:"omitempty,max=500"`
}

type walletEntryResponse struct {
	ID                uuid.UUID             `json:"id"`
	Seq               int64                 `json:"seq"`
	Type              enums.WalletEntryType `json:"type"`
	AmountCents       int64                 `json:"amount_cents"`
	BalanceAfterCents int64                 `json:"balance_after_cents"`
	Source            string                `json:"source"`
	ReferenceID       *uuid.UUID            `json:"reference_id,omitempty"`
	Memo              *string               `json:"memo,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
}

func newWalletEntryResponse(entry *models.WalletEntry) walletEntryResponse {
	if entry == nil {
		return walletEntryResponse{}
	}
	return walletEntryResponse{
		ID:                entry.ID,
		Seq:               entry.Seq,
		Type:              entry.Type,
		AmountCents:       entry.AmountCents,
		BalanceAfterCents: entry.BalanceAfterCents,
		Source:            entry.Source,
		ReferenceID:       entry.ReferenceID,
		Memo:              entry.Memo,
		CreatedAt:         entry.CreatedAt,
	}
}
