package engine

import (
	"reorder/internal/model"

	"github.com/shopspring/decimal"
)

// RequiresApproval decides whether an execution may proceed without human
// sign-off. Manual approval is required when auto-approve is off, or when
// the computed total exceeds the approval threshold regardless of the
// auto-approve flag. The max-order-value ceiling is a hard failure handled
// by the pipeline, not an approval concern.
func RequiresApproval(order *model.RecurringOrder, total decimal.Decimal) bool {
	if !order.AutoApprove {
		return true
	}
	if order.ApprovalThreshold.Valid && total.GreaterThan(order.ApprovalThreshold.Decimal) {
		return true
	}
	return false
}
