package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
	"github.com/rmcandela/wholestock-backend/pkg/outbox"
	"github.com/rmcandela/wholestock-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service tracks the balance-due workflow per order. NONE is represented by
// the absence of a row; the first request creates it. The first-request vs
// resend distinction is load-bearing: a second "request" would double-send
// customer-facing email, so it conflicts instead.
type Service interface {
	RequestTx(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder, dueAt time.Time) (*models.BalanceRequest, error)
	Resend(ctx context.Context, orderID uuid.UUID) (*models.BalanceRequest, error)
	MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paidAt time.Time) error
	MarkFailed(ctx context.Context, orderID uuid.UUID, reason string) error
	CancelForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	StatusFor(ctx context.Context, orderID uuid.UUID) (enums.BalanceRequestStatus, error)
}

type service struct {
	tx     txRunner
	repo   Repository
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires the balance payment tracker.
func NewService(tx txRunner, repo Repository, outboxSvc outboxPublisher, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, repo: repo, outbox: outboxSvc, logg: logg}, nil
}

// RequestTx opens the balance workflow for an order inside the caller's
// transaction. Conflicts when a request already exists, whatever its status.
func (s *service) RequestTx(ctx context.Context, tx *gorm.DB, order *models.WholesaleOrder, dueAt time.Time) (*models.BalanceRequest, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	repo := s.repo.WithTx(tx)

	if _, err := repo.FindByOrderForUpdate(ctx, order.ID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("balance already requested for order %s", order.ID))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance request")
	}

	now := time.Now()
	request := &models.BalanceRequest{
		ID:              uuid.New(),
		OrderID:         order.ID,
		Status:          enums.BalanceRequestStatusRequested,
		AmountCents:     order.BalanceCents,
		DueAt:           dueAt,
		RequestedAt:     now,
		LastRequestedAt: now,
	}
	if err := repo.Create(ctx, request); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create balance request")
	}

	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBalanceRequested,
		AggregateType: enums.AggregateBalanceRequest,
		AggregateID:   request.ID,
		Data: payloads.BalanceRequestedEvent{
			OrderID:          order.ID,
			BalanceRequestID: request.ID,
			AmountCents:      request.AmountCents,
			DueAt:            dueAt,
		},
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// Resend re-sends the reminder for an already-requested balance. It bumps
// LastRequestedAt and the resend counter; RequestedAt never moves.
func (s *service) Resend(ctx context.Context, orderID uuid.UUID) (*models.BalanceRequest, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var request *models.BalanceRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("balance not yet requested for order %s", orderID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance request")
		}
		switch found.Status {
		case enums.BalanceRequestStatusRequested, enums.BalanceRequestStatusFailed:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot resend a %s balance request", found.Status))
		}

		now := time.Now()
		if err := repo.Update(ctx, found.ID, map[string]any{
			"last_requested_at": now,
			"resend_count":      gorm.Expr("resend_count + 1"),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance request")
		}
		found.LastRequestedAt = now
		found.ResendCount++
		request = found

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBalanceResent,
			AggregateType: enums.AggregateBalanceRequest,
			AggregateID:   found.ID,
			Data: payloads.BalanceResentEvent{
				OrderID:          orderID,
				BalanceRequestID: found.ID,
				ResendCount:      found.ResendCount,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	s.logg.Info(logCtx, fmt.Sprintf("balance reminder resent (%d so far)", request.ResendCount))
	return request, nil
}

// MarkPaidTx settles the request. A second delivery of the same payment
// confirmation is a no-op.
func (s *service) MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paidAt time.Time) error {
	repo := s.repo.WithTx(tx)
	request, err := repo.FindByOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("balance not yet requested for order %s", orderID))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance request")
	}
	switch request.Status {
	case enums.BalanceRequestStatusPaid:
		return nil
	case enums.BalanceRequestStatusCancelled:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "balance request already cancelled")
	}
	if err := repo.Update(ctx, request.ID, map[string]any{
		"status":  enums.BalanceRequestStatusPaid,
		"paid_at": paidAt,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark balance paid")
	}
	return nil
}

// MarkFailed records a failed balance payment attempt; the request stays
// resendable.
func (s *service) MarkFailed(ctx context.Context, orderID uuid.UUID, reason string) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.FindByOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("balance not yet requested for order %s", orderID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance request")
		}
		switch request.Status {
		case enums.BalanceRequestStatusPaid, enums.BalanceRequestStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot fail a %s balance request", request.Status))
		}
		return repo.Update(ctx, request.ID, map[string]any{
			"status":         enums.BalanceRequestStatusFailed,
			"failure_reason": reason,
		})
	})
}

// CancelForOrderTx closes the workflow when the order is cancelled. No row or
// an already-cancelled row is a no-op; a paid request is left untouched.
func (s *service) CancelForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	request, err := repo.FindByOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance request")
	}
	switch request.Status {
	case enums.BalanceRequestStatusCancelled, enums.BalanceRequestStatusPaid:
		return nil
	}
	return repo.Update(ctx, request.ID, map[string]any{
		"status": enums.BalanceRequestStatusCancelled,
	})
}

// StatusFor reports the workflow status; NONE when no request exists yet.
func (s *service) StatusFor(ctx context.Context, orderID uuid.UUID) (enums.BalanceRequestStatus, error) {
	request, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return enums.BalanceRequestStatusNone, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance request")
	}
	return request.Status, nil
}
