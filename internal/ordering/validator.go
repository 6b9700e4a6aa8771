package ordering

import (
	"fmt"

	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
)

// Rejection reasons surfaced in validation error details.
const (
	ReasonBelowMinimumOrderQuantity = "below_minimum_order_quantity"
	ReasonNoQuantitySelected        = "no_quantity_selected"
	ReasonVariantStockExceeded      = "variant_stock_exceeded"
)

// VariantSelection is one requested line of a wholesale selection. StockQty
// of exactly zero means made-to-order: the variant has no stock ceiling.
type VariantSelection struct {
	Key      string
	Qty      int
	StockQty int
}

// StockViolationDetail names the variant whose request exceeds its stock.
type StockViolationDetail struct {
	VariantKey   string `json:"variant_key"`
	AvailableQty int    `json:"available_qty"`
	RequestedQty int    `json:"requested_qty"`
}

// ValidateSelection checks a buyer's quantities against the product MOQ and
// per-variant stock ceilings. It returns the accepted total quantity. The
// function is purely advisory: reservation arithmetic happens later under
// locks, this only rejects requests no reservation attempt could satisfy.
func ValidateSelection(moq int, selections []VariantSelection) (int, error) {
	total := 0
	var violations []StockViolationDetail
	for _, sel := range selections {
		if sel.Qty < 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("negative quantity for variant %q", sel.Key))
		}
		total += sel.Qty
		if sel.StockQty > 0 && sel.Qty > sel.StockQty {
			violations = append(violations, StockViolationDetail{
				VariantKey:   sel.Key,
				AvailableQty: sel.StockQty,
				RequestedQty: sel.Qty,
			})
		}
	}

	if total == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "no quantity selected").WithDetails(map[string]any{
			"reason": ReasonNoQuantitySelected,
		})
	}

	if len(violations) > 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("stock exceeded for %d variant(s)", len(violations))).WithDetails(map[string]any{
			"reason":     ReasonVariantStockExceeded,
			"violations": violations,
		})
	}

	if moq > 0 && total < moq {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("minimum order quantity not met: requested %d of %d", total, moq)).WithDetails(map[string]any{
			"reason":        ReasonBelowMinimumOrderQuantity,
			"required_qty":  moq,
			"requested_qty": total,
			"shortfall":     moq - total,
		})
	}

	return total, nil
}
