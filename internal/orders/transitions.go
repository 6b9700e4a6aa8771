package orders

import (
	"fmt"
	"time"

	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
)

// Operation names a lifecycle transition. Orders are only ever mutated
// through these, never by direct field writes.
type Operation string

const (
	OpMarkDepositPaid Operation = "mark_deposit_paid"
	OpRequestBalance  Operation = "request_balance"
	OpMarkBalancePaid Operation = "mark_balance_paid"
	OpMarkOverdue     Operation = "mark_overdue"
	OpStartProduction Operation = "start_production"
	OpMarkFulfilled   Operation = "mark_fulfilled"
	OpCancel          Operation = "cancel"
)

// transitionTable is the whole lifecycle in one place: operation -> allowed
// source states -> resulting state. Cancel is handled separately because it
// is valid from every non-terminal state.
var transitionTable = map[Operation]map[enums.OrderStatus]enums.OrderStatus{
	OpMarkDepositPaid: {
		enums.OrderStatusPending: enums.OrderStatusDepositPaid,
	},
	OpRequestBalance: {
		enums.OrderStatusDepositPaid: enums.OrderStatusAwaitingBalance,
	},
	OpMarkBalancePaid: {
		enums.OrderStatusAwaitingBalance: enums.OrderStatusReadyToRelease,
		enums.OrderStatusBalanceOverdue:  enums.OrderStatusReadyToRelease,
	},
	OpMarkOverdue: {
		enums.OrderStatusAwaitingBalance: enums.OrderStatusBalanceOverdue,
	},
	OpStartProduction: {
		enums.OrderStatusReadyToRelease: enums.OrderStatusInProduction,
	},
	OpMarkFulfilled: {
		enums.OrderStatusInProduction: enums.OrderStatusFulfilled,
	},
}

// NextStatus resolves the state an operation moves the order into, or a state
// conflict naming both the current state and the attempted operation.
func NextStatus(op Operation, from enums.OrderStatus) (enums.OrderStatus, error) {
	if op == OpCancel {
		if from.IsTerminal() {
			return "", invalidTransition(op, from)
		}
		return enums.OrderStatusCancelled, nil
	}
	targets, ok := transitionTable[op]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order operation %q", op))
	}
	to, ok := targets[from]
	if !ok {
		return "", invalidTransition(op, from)
	}
	return to, nil
}

func invalidTransition(op Operation, from enums.OrderStatus) error {
	sources := make([]string, 0, 2)
	for source := range transitionTable[op] {
		sources = append(sources, source.String())
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot %s an order in state %s", op, from)).WithDetails(map[string]any{
		"operation":     string(op),
		"current_state": from.String(),
		"valid_from":    sources,
	})
}

// IsOverdue reports whether an awaiting-balance order has passed its due
// date. Pure; the overdue cron job owns the clock and the MarkOverdue call.
func IsOverdue(order models.WholesaleOrder, now time.Time) bool {
	if order.Status != enums.OrderStatusAwaitingBalance {
		return false
	}
	if order.BalanceDueAt == nil {
		return false
	}
	return now.After(*order.BalanceDueAt)
}
