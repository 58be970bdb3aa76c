package engine

import (
	"context"
	"fmt"

	"reorder/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// priceTolerance is the relative drift below which a dynamic price is
// considered unchanged and no adjustment is recorded.
var priceTolerance = decimal.NewFromFloat(0.001)

// maxAutoPriceDrift is the relative drift above which an unapproved price
// change escalates to an issue instead of being applied silently.
var maxAutoPriceDrift = decimal.NewFromFloat(0.20)

// Resolution is the outcome of expanding a template into concrete lines.
type Resolution struct {
	Items       []DraftItem
	Adjustments []model.Adjustment
	Issues      []model.Issue
}

// HasIssueType reports whether any recorded issue has the given type.
func (r *Resolution) HasIssueType(issueType string) bool {
	for _, is := range r.Issues {
		if is.Type == issueType {
			return true
		}
	}
	return false
}

// HasAdjustmentType reports whether any recorded adjustment has the given type.
func (r *Resolution) HasAdjustmentType(adjType string) bool {
	for _, a := range r.Adjustments {
		if a.Type == adjType {
			return true
		}
	}
	return false
}

// Resolver expands a stored order template into a concrete draft, applying
// dynamic pricing and inventory availability and recording every deviation
// as an adjustment or an issue.
type Resolver struct {
	pricing   PricingClient
	inventory InventoryClient
	log       zerolog.Logger
}

func NewResolver(pricing PricingClient, inventory InventoryClient, log zerolog.Logger) *Resolver {
	return &Resolver{pricing: pricing, inventory: inventory, log: log}
}

// Resolve walks every template line. Items with no viable resolution are
// excluded with a HIGH inventory or pricing issue; if all items end up
// excluded the whole resolution fails with ErrResolutionFailed.
func (r *Resolver) Resolve(ctx context.Context, order *model.RecurringOrder) (*Resolution, error) {
	res := &Resolution{}

	for _, item := range order.Items {
		line, ok := r.resolveItem(ctx, order, item, res)
		if ok {
			res.Items = append(res.Items, line)
		}
	}

	if len(res.Items) == 0 {
		return res, ErrResolutionFailed
	}
	return res, nil
}

func (r *Resolver) resolveItem(ctx context.Context, order *model.RecurringOrder, item model.TemplateItem, res *Resolution) (DraftItem, bool) {
	quantity := item.Quantity
	price := item.LastKnownPrice

	if item.MaxQuantity > 0 && quantity > item.MaxQuantity {
		res.Adjustments = append(res.Adjustments, model.Adjustment{
			Type:         model.AdjustmentQuantity,
			ProductID:    item.ProductID.String(),
			OldValue:     fmt.Sprintf("%d", quantity),
			NewValue:     fmt.Sprintf("%d", item.MaxQuantity),
			Reason:       "max quantity bound",
			AutoApproved: true,
		})
		quantity = item.MaxQuantity
	}

	if item.UseDynamicPricing {
		current, err := r.pricing.ResolvePrice(ctx, item.ProductID, order.Warehouse)
		if err != nil {
			r.log.Warn().Err(err).Str("product_id", item.ProductID.String()).Msg("pricing lookup failed, excluding item")
			res.Issues = append(res.Issues, model.Issue{
				Type:     model.IssuePricing,
				Severity: model.SeverityHigh,
				Message:  fmt.Sprintf("pricing lookup failed for product %s: %v", item.ProductID, err),
			})
			return DraftItem{}, false
		}
		price = r.applyPrice(order, item, current, res)
	}

	avail, err := r.inventory.CheckInventory(ctx, item.ProductID, order.Warehouse, quantity)
	if err != nil {
		r.log.Warn().Err(err).Str("product_id", item.ProductID.String()).Msg("inventory check failed, excluding item")
		res.Issues = append(res.Issues, model.Issue{
			Type:     model.IssueInventory,
			Severity: model.SeverityHigh,
			Message:  fmt.Sprintf("inventory check failed for product %s: %v", item.ProductID, err),
		})
		return DraftItem{}, false
	}

	if !avail.Available {
		quantity, ok := r.applyShortage(item, quantity, avail, res)
		if !ok {
			return DraftItem{}, false
		}
		return DraftItem{ProductID: item.ProductID, Quantity: quantity, UnitPrice: price}, true
	}

	return DraftItem{ProductID: item.ProductID, Quantity: quantity, UnitPrice: price}, true
}

// applyPrice compares the current dynamic price against the template's last
// known price and either applies it as a PRICE adjustment or escalates.
func (r *Resolver) applyPrice(order *model.RecurringOrder, item model.TemplateItem, current decimal.Decimal, res *Resolution) decimal.Decimal {
	old := item.LastKnownPrice
	if !priceDiffers(old, current) {
		return old
	}

	if !order.AutoPriceAdjust && driftRatio(old, current).GreaterThan(maxAutoPriceDrift) {
		// Too large to apply without sign-off: keep the known price and flag it.
		res.Issues = append(res.Issues, model.Issue{
			Type:     model.IssuePricing,
			Severity: model.SeverityMedium,
			Message: fmt.Sprintf("price for product %s moved from %s to %s, beyond the unapproved adjustment limit",
				item.ProductID, old, current),
		})
		return old
	}

	res.Adjustments = append(res.Adjustments, model.Adjustment{
		Type:         model.AdjustmentPrice,
		ProductID:    item.ProductID.String(),
		OldValue:     old.String(),
		NewValue:     current.String(),
		Reason:       "dynamic pricing",
		AutoApproved: order.AutoPriceAdjust,
	})
	return current
}

// applyShortage resolves an insufficient-inventory result according to the
// item's backorder behavior. Returns the final quantity and whether the item
// stays in the draft.
func (r *Resolver) applyShortage(item model.TemplateItem, quantity int, avail Availability, res *Resolution) (int, bool) {
	switch item.BackorderBehavior {
	case model.BackorderPartial:
		if !item.AllowQuantityAdjustment || avail.MaxAvailable <= 0 || avail.MaxAvailable < item.MinQuantity {
			res.Issues = append(res.Issues, model.Issue{
				Type:     model.IssueInventory,
				Severity: model.SeverityHigh,
				Message: fmt.Sprintf("insufficient inventory for product %s: requested %d, available %d, no viable partial fill",
					item.ProductID, quantity, avail.MaxAvailable),
			})
			return 0, false
		}
		reduced := avail.MaxAvailable
		if reduced > quantity {
			reduced = quantity
		}
		res.Adjustments = append(res.Adjustments, model.Adjustment{
			Type:         model.AdjustmentQuantity,
			ProductID:    item.ProductID.String(),
			OldValue:     fmt.Sprintf("%d", quantity),
			NewValue:     fmt.Sprintf("%d", reduced),
			Reason:       "partial inventory availability",
			AutoApproved: true,
		})
		return reduced, true

	case model.BackorderReject:
		res.Issues = append(res.Issues, model.Issue{
			Type:     model.IssueInventory,
			Severity: model.SeverityHigh,
			Message: fmt.Sprintf("insufficient inventory for product %s: requested %d, available %d, backorders rejected",
				item.ProductID, quantity, avail.MaxAvailable),
		})
		return 0, false

	default: // ALLOW: keep the full quantity and let the warehouse backorder it
		res.Issues = append(res.Issues, model.Issue{
			Type:     model.IssueInventory,
			Severity: model.SeverityMedium,
			Message: fmt.Sprintf("product %s backordered: requested %d, available %d",
				item.ProductID, quantity, avail.MaxAvailable),
		})
		return quantity, true
	}
}

func priceDiffers(old, current decimal.Decimal) bool {
	if old.IsZero() {
		return !current.IsZero()
	}
	return driftRatio(old, current).GreaterThan(priceTolerance)
}

func driftRatio(old, current decimal.Decimal) decimal.Decimal {
	if old.IsZero() {
		return decimal.NewFromInt(1)
	}
	return current.Sub(old).Abs().Div(old.Abs())
}
