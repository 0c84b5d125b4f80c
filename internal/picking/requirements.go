package picking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/safar/warehouse-ops/internal/database"
	"github.com/safar/warehouse-ops/internal/models"
	"github.com/safar/warehouse-ops/internal/store"
	"go.uber.org/zap"
)

// Requirement compares the open demand for a SKU with its stock.
type Requirement struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
	Required  int    `json:"required"`
	Shortfall int    `json:"shortfall"`
}

// demandStatuses are the order states that still need stock.
var demandStatuses = []models.OrderStatus{models.OrderStatusPending, models.OrderStatusPicking}

// StockRequirements sums the demand of orders that still need stock per
// product and returns the products that cannot cover it or are out of stock,
// largest shortfall first. Orders with unknown SKUs are ignored.
func (r *Reconciler) StockRequirements() []Requirement {
	byProduct := make(map[string]*Requirement)
	var order []string

	for _, status := range demandStatuses {
		for _, o := range r.orders.OrdersByStatus(status) {
			if o.SKU == "" {
				continue
			}
			p, ok := r.inventory.ProductBySKU(o.SKU)
			if !ok {
				continue
			}
			req, ok := byProduct[p.ID]
			if !ok {
				req = &Requirement{SKU: p.SKU, Name: p.Name, ProductID: p.ID, Stock: p.Stock}
				byProduct[p.ID] = req
				order = append(order, p.ID)
			}
			req.Required += o.Quantity
		}
	}

	out := make([]Requirement, 0, len(order))
	for _, id := range order {
		req := byProduct[id]
		req.Shortfall = max(0, req.Required-req.Stock)
		if req.Shortfall > 0 || req.Stock <= 0 {
			out = append(out, *req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Shortfall > out[j].Shortfall })
	return out
}

// PurchaseOrder renders requirements as one supplier line per product.
func PurchaseOrder(reqs []Requirement) string {
	var b strings.Builder
	for i, req := range reqs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s (%s): %d units", req.Name, req.SKU, req.Shortfall)
	}
	return b.String()
}

// QuickRestock adds qty units to the product with the given SKU.
func (r *Reconciler) QuickRestock(ctx context.Context, sku string, qty int, user string) (store.StockChange, error) {
	p, ok := r.inventory.ProductBySKU(sku)
	if !ok {
		return store.StockChange{}, fmt.Errorf("restock %s: %w", sku, database.ErrProductNotFound)
	}
	change, err := r.inventory.Restock(ctx, p.ID, qty, user, "Quick restock")
	if err != nil {
		return change, err
	}
	r.logger.Info("quick restock",
		zap.String("sku", p.SKU),
		zap.Int("quantity", qty),
		zap.Int("stock", change.After))
	return change, nil
}
