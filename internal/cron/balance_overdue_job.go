package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
)

const overdueBatchSize = 200

type overdueOrderReader interface {
	FindAwaitingBalanceDue(ctx context.Context, cutoff time.Time, limit int) ([]models.WholesaleOrder, error)
}

type overdueMarker interface {
	MarkOverdue(ctx context.Context, orderID uuid.UUID) error
}

// BalanceOverdueJobParams configure the overdue-balance scheduler.
type BalanceOverdueJobParams struct {
	Logger *logger.Logger
	Reader overdueOrderReader
	Orders overdueMarker
}

// NewBalanceOverdueJob builds the job that flags awaiting-balance orders
// whose due date has passed. The order stays fillable; the flag only drives
// reminders and reporting.
func NewBalanceOverdueJob(params BalanceOverdueJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	return &balanceOverdueJob{
		logg:   params.Logger,
		reader: params.Reader,
		orders: params.Orders,
		now:    time.Now,
	}, nil
}

type balanceOverdueJob struct {
	logg   *logger.Logger
	reader overdueOrderReader
	orders overdueMarker
	now    func() time.Time
}

func (j *balanceOverdueJob) Name() string { return "balance-overdue" }

func (j *balanceOverdueJob) Run(ctx context.Context) error {
	due, err := j.reader.FindAwaitingBalanceDue(ctx, j.now().UTC(), overdueBatchSize)
	if err != nil {
		return fmt.Errorf("query overdue orders: %w", err)
	}

	marked := 0
	var errs []error
	for _, order := range due {
		if err := j.orders.MarkOverdue(ctx, order.ID); err != nil {
			// The order moved on between the read and the update. Not
			// overdue anymore, nothing to flag.
			if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeStateConflict {
				continue
			}
			errs = append(errs, fmt.Errorf("mark order %s overdue: %w", order.ID, err))
			continue
		}
		marked++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"due": len(due), "marked": marked})
	j.logg.Info(logCtx, "balance overdue scan complete")
	return multierr.Combine(errs...)
}
