package reservations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
	"github.com/rmcandela/wholestock-backend/pkg/outbox"
	"github.com/rmcandela/wholestock-backend/pkg/outbox/payloads"
)

const sweepBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	tx         txRunner
	repo       Repository
	outbox     outboxPublisher
	logg       *logger.Logger
	defaultTTL time.Duration
}

// NewService wires the reservation ledger.
func NewService(tx txRunner, repo Repository, outboxSvc outboxPublisher, logg *logger.Logger, defaultTTL time.Duration) (Service, error) {
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
	if defaultTTL <= 0 {
		return nil, fmt.Errorf("default ttl must be positive")
	}
	return &service{
		tx:         tx,
		repo:       repo,
		outbox:     outboxSvc,
		logg:       logg,
		defaultTTL: defaultTTL,
	}, nil
}

// ReserveBatch holds stock for every request or none of them. Items are
// locked in sorted key order so two concurrent checkouts touching the same
// keys cannot deadlock. Expired holds on a key are released inline, under
// the same lock, before availability is computed.
func (s *service) ReserveBatch(ctx context.Context, orderID uuid.UUID, requests []ReserveRequest, ttl time.Duration) ([]models.Reservation, error) {
	var created []models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		held, err := s.ReserveBatchTx(ctx, tx, orderID, requests, ttl)
		if err != nil {
			return err
		}
		created = held
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	s.logg.Info(logCtx, fmt.Sprintf("reserved %d item(s)", len(created)))
	return created, nil
}

// ReserveBatchTx is ReserveBatch running inside the caller's transaction, for
// checkouts that create the order and its holds atomically.
func (s *service) ReserveBatchTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, requests []ReserveRequest, ttl time.Duration) ([]models.Reservation, error) {
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no reservation requests provided")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	merged, keys, err := mergeRequests(requests)
	if err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	expiresAt := time.Now().Add(ttl)
	created := make([]models.Reservation, 0, len(keys))

	for _, key := range keys {
		qty := merged[key]
		item, err := repo.LockItem(ctx, key)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("inventory item %q not found", key))
			}
			return nil, err
		}

		reclaimed, err := s.releaseExpiredLocked(ctx, repo, key, time.Now())
		if err != nil {
			return nil, err
		}
		available := item.AvailableQty() + reclaimed

		if qty > available {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("insufficient stock for %q: requested %d, available %d", key, qty, available)).WithDetails(map[string]any{
				"reason":        "insufficient_stock",
				"item_key":      key,
				"requested_qty": qty,
				"available_qty": available,
			})
		}

		reservation := models.Reservation{
			ID:        uuid.New(),
			OrderID:   orderID,
			ItemKey:   key,
			Qty:       qty,
			Status:    enums.ReservationStatusActive,
			ExpiresAt: expiresAt,
		}
		if err := repo.CreateReservation(ctx, &reservation); err != nil {
			return nil, err
		}
		if err := repo.UpdateItem(ctx, key, map[string]any{
			"reserved_qty": gorm.Expr("reserved_qty + ?", qty),
		}); err != nil {
			return nil, err
		}
		created = append(created, reservation)
	}
	return created, nil
}

func mergeRequests(requests []ReserveRequest) (map[string]int, []string, error) {
	merged := make(map[string]int, len(requests))
	for _, req := range requests {
		if req.Qty <= 0 {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reservation quantity must be positive for %q", req.Key))
		}
		merged[req.Key] += req.Qty
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return merged, keys, nil
}

// releaseExpiredLocked returns expired ACTIVE holds on key to the pool. The
// caller must already hold the item row lock.
func (s *service) releaseExpiredLocked(ctx context.Context, repo Repository, key string, now time.Time) (int, error) {
	expired, err := repo.FindExpiredActive(ctx, now, 0)
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for _, hold := range expired {
		if hold.ItemKey != key {
			continue
		}
		if err := repo.UpdateReservationStatus(ctx, hold.ID, enums.ReservationStatusActive, enums.ReservationStatusReleased); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return 0, err
		}
		reclaimed += hold.Qty
	}
	if reclaimed > 0 {
		if err := repo.UpdateItem(ctx, key, map[string]any{
			"reserved_qty": gorm.Expr("reserved_qty - ?", reclaimed),
		}); err != nil {
			return 0, err
		}
	}
	return reclaimed, nil
}

// Confirm converts a hold into a permanent stock decrement. Confirming an
// already-confirmed reservation is a no-op; confirming a released one is a
// state conflict.
func (s *service) Confirm(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		return s.confirmTx(ctx, repo, id)
	})
}

func (s *service) confirmTx(ctx context.Context, repo Repository, id uuid.UUID) error {
	reservation, err := repo.FindReservation(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("reservation %s not found", id))
		}
		return err
	}

	switch reservation.Status {
	case enums.ReservationStatusConfirmed:
		return nil
	case enums.ReservationStatusReleased:
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("reservation %s already released", id))
	}

	if _, err := repo.LockItem(ctx, reservation.ItemKey); err != nil {
		return err
	}
	if err := repo.UpdateReservationStatus(ctx, id, enums.ReservationStatusActive, enums.ReservationStatusConfirmed); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Status moved under a concurrent call; re-read and re-dispatch.
			return s.confirmTx(ctx, repo, id)
		}
		return err
	}
	return repo.UpdateItem(ctx, reservation.ItemKey, map[string]any{
		"reserved_qty": gorm.Expr("reserved_qty - ?", reservation.Qty),
		"total_qty":    gorm.Expr("total_qty - ?", reservation.Qty),
	})
}

// Release returns the held quantity to the pool. Releasing twice is a no-op;
// releasing a confirmed reservation is a state conflict.
func (s *service) Release(ctx context.Context, id uuid.UUID, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		return s.releaseTx(ctx, tx, repo, id, reason)
	})
}

func (s *service) releaseTx(ctx context.Context, tx *gorm.DB, repo Repository, id uuid.UUID, reason string) error {
	reservation, err := repo.FindReservation(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("reservation %s not found", id))
		}
		return err
	}

	switch reservation.Status {
	case enums.ReservationStatusReleased:
		return nil
	case enums.ReservationStatusConfirmed:
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("reservation %s already confirmed", id))
	}

	if _, err := repo.LockItem(ctx, reservation.ItemKey); err != nil {
		return err
	}
	if err := repo.UpdateReservationStatus(ctx, id, enums.ReservationStatusActive, enums.ReservationStatusReleased); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.releaseTx(ctx, tx, repo, id, reason)
		}
		return err
	}
	if err := repo.UpdateItem(ctx, reservation.ItemKey, map[string]any{
		"reserved_qty": gorm.Expr("reserved_qty - ?", reservation.Qty),
	}); err != nil {
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReservationReleased,
		AggregateType: enums.AggregateReservation,
		AggregateID:   reservation.ID,
		Data: payloads.ReservationReleasedEvent{
			ReservationID: reservation.ID,
			OrderID:       reservation.OrderID,
			ItemKey:       reservation.ItemKey,
			Qty:           reservation.Qty,
			Reason:        reason,
		},
	})
}

// ConfirmByOrder confirms every ACTIVE hold belonging to the order.
func (s *service) ConfirmByOrder(ctx context.Context, orderID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ConfirmByOrderTx(ctx, tx, orderID)
	})
}

// ConfirmByOrderTx confirms the order's ACTIVE holds inside the caller's
// transaction. Order placement uses this so the order row and the stock
// decrement commit together.
func (s *service) ConfirmByOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	holds, err := repo.FindActiveByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, hold := range holds {
		if err := s.confirmTx(ctx, repo, hold.ID); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseByOrder releases every ACTIVE hold belonging to the order. Used by
// cancellation; safe to call when the order has no active holds.
func (s *service) ReleaseByOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ReleaseByOrderTx(ctx, tx, orderID, reason)
	})
}

// ReleaseByOrderTx releases the order's ACTIVE holds inside the caller's
// transaction.
func (s *service) ReleaseByOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error {
	repo := s.repo.WithTx(tx)
	holds, err := repo.FindActiveByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, hold := range holds {
		if err := s.releaseTx(ctx, tx, repo, hold.ID, reason); err != nil {
			return err
		}
	}
	return nil
}

// SweepExpired releases ACTIVE holds past their expiry and verifies each
// touched key's reserved counter against the surviving ACTIVE rows. A
// mismatch is reported as a consistency error, never silently corrected.
func (s *service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	var swept int
	var errs error

	for {
		expired, err := s.repo.FindExpiredActive(ctx, now, sweepBatchSize)
		if err != nil {
			return swept, multierr.Append(errs, err)
		}
		if len(expired) == 0 {
			break
		}

		failed := 0
		touched := map[string]struct{}{}
		for _, hold := range expired {
			err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				repo := s.repo.WithTx(tx)
				if _, err := repo.LockItem(ctx, hold.ItemKey); err != nil {
					return err
				}
				if err := repo.UpdateReservationStatus(ctx, hold.ID, enums.ReservationStatusActive, enums.ReservationStatusReleased); err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						// Someone else confirmed or released it first.
						return nil
					}
					return err
				}
				if err := repo.UpdateItem(ctx, hold.ItemKey, map[string]any{
					"reserved_qty": gorm.Expr("reserved_qty - ?", hold.Qty),
				}); err != nil {
					return err
				}
				swept++
				touched[hold.ItemKey] = struct{}{}
				return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventReservationExpired,
					AggregateType: enums.AggregateReservation,
					AggregateID:   hold.ID,
					Data: payloads.ReservationExpiredEvent{
						ReservationID: hold.ID,
						OrderID:       hold.OrderID,
						ItemKey:       hold.ItemKey,
						Qty:           hold.Qty,
						ExpiredAt:     hold.ExpiresAt,
					},
				})
			})
			if err != nil {
				errs = multierr.Append(errs, err)
				failed++
			}
		}

		for key := range touched {
			if err := s.verifyKey(ctx, key); err != nil {
				errs = multierr.Append(errs, err)
			}
		}

		// A batch where every row errored would come back unchanged from the
		// next fetch; stop instead of spinning on it.
		if failed == len(expired) {
			break
		}
		if len(expired) < sweepBatchSize {
			break
		}
	}

	return swept, errs
}

// verifyKey compares the stored reserved counter with the sum of ACTIVE
// holds. Drift means the ledger was mutated outside the locked paths.
func (s *service) verifyKey(ctx context.Context, key string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.LockItem(ctx, key)
		if err != nil {
			return err
		}
		activeSum, err := repo.SumActiveQty(ctx, key)
		if err != nil {
			return err
		}
		if item.ReservedQty != activeSum {
			err := pkgerrors.New(pkgerrors.CodeConsistency, fmt.Sprintf("reserved counter for %q is %d but active holds sum to %d", key, item.ReservedQty, activeSum))
			s.logg.Error(ctx, "reservation ledger drift detected", err)
			return err
		}
		return nil
	})
}
