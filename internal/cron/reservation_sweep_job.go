package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/rmcandela/wholestock-backend/pkg/logger"
)

type reservationSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// ReservationSweepJobParams configure the expired-hold sweeper.
type ReservationSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper reservationSweeper
}

// NewReservationSweepJob builds the job that returns expired holds to
// available stock.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("reservation sweeper required")
	}
	return &reservationSweepJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		now:     time.Now,
	}, nil
}

type reservationSweepJob struct {
	logg    *logger.Logger
	sweeper reservationSweeper
	now     func() time.Time
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	swept, err := j.sweeper.SweepExpired(ctx, j.now().UTC())
	logCtx := j.logg.WithFields(ctx, map[string]any{"swept": swept})
	if err != nil {
		// Partial progress is fine; the next cycle picks up the rest.
		return fmt.Errorf("sweep expired reservations: %w", err)
	}
	j.logg.Info(logCtx, "reservation sweep complete")
	return nil
}
