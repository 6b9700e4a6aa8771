package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
)

// DepositPolicy is either percentage-based or fixed-amount-based, never both.
// A nil policy means the full line total is due upfront as balance.
type DepositPolicy struct {
	Percentage  int
	AmountCents int
}

// Split is the result of quoting one line. All values are integer cents.
// DepositCents + BalanceCents == LineTotalCents always holds.
type Split struct {
	LineTotalCents      int
	DepositCents        int
	BalanceCents        int
	DepositPerUnitCents int
}

var oneHundred = decimal.NewFromInt(100)

// Quote prices a line and applies the deposit policy. Percentage deposits
// round half up at the unit level before multiplying by quantity, so every
// unit on a multi-unit invoice carries the same deposit.
func Quote(unitPriceCents, qty int, policy *DepositPolicy) (Split, error) {
	if qty <= 0 {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be positive, got %d", qty))
	}
	if unitPriceCents < 0 {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unit price must be non-negative, got %d", unitPriceCents))
	}

	lineTotal := unitPriceCents * qty
	if policy == nil {
		return Split{
			LineTotalCents: lineTotal,
			DepositCents:   0,
			BalanceCents:   lineTotal,
		}, nil
	}

	perUnit, err := depositPerUnit(unitPriceCents, policy)
	if err != nil {
		return Split{}, err
	}

	deposit := perUnit * qty
	return Split{
		LineTotalCents:      lineTotal,
		DepositCents:        deposit,
		BalanceCents:        lineTotal - deposit,
		DepositPerUnitCents: perUnit,
	}, nil
}

func depositPerUnit(unitPriceCents int, policy *DepositPolicy) (int, error) {
	hasPct := policy.Percentage != 0
	hasAmount := policy.AmountCents != 0
	switch {
	case hasPct && hasAmount:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "deposit policy cannot set both percentage and amount")
	case !hasPct && !hasAmount:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "deposit policy must set percentage or amount")
	case hasPct:
		if policy.Percentage < 0 || policy.Percentage > 100 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("deposit percentage out of range: %d", policy.Percentage))
		}
		perUnit := decimal.NewFromInt(int64(unitPriceCents)).
			Mul(decimal.NewFromInt(int64(policy.Percentage))).
			Div(oneHundred).
			Round(0) // round half up at the unit level
		return int(perUnit.IntPart()), nil
	default:
		if policy.AmountCents < 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("deposit amount must be non-negative, got %d", policy.AmountCents))
		}
		perUnit := policy.AmountCents
		if perUnit > unitPriceCents {
			perUnit = unitPriceCents
		}
		return perUnit, nil
	}
}
