// Package picking matches order demand against inventory. It is the only
// component that mutates orders and stock together.
package picking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/warehouse-ops/internal/database"
	"github.com/safar/warehouse-ops/internal/logging"
	"github.com/safar/warehouse-ops/internal/metrics"
	"github.com/safar/warehouse-ops/internal/models"
	"github.com/safar/warehouse-ops/internal/store"
	"go.uber.org/zap"
)

// Orders is the part of the order store the reconciler needs.
type Orders interface {
	Order(id string) (models.Order, bool)
	OrdersByStatus(status models.OrderStatus) []models.Order
	AssignPicking(ctx context.Context, id, operator string) (store.StatusResult, error)
	ReleasePicking(ctx context.Context, id string) (store.StatusResult, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (store.StatusResult, error)
	AddAuditLog(ctx context.Context, entry models.AuditLogEntry) (models.AuditLogEntry, error)
}

// Inventory is the part of the inventory store the reconciler needs.
type Inventory interface {
	Product(id string) (models.Product, bool)
	ProductBySKU(sku string) (models.Product, bool)
	AdjustStock(ctx context.Context, id string, delta int, mv models.StockMovement) (store.StockChange, error)
	Restock(ctx context.Context, id string, qty int, user, reason string) (store.StockChange, error)
}

const movementReason = "Order picking"

type LineState string

const (
	LinePending   LineState = "pending"
	LineCollected LineState = "collected"
	LineShort     LineState = "short"
)

// PickLine is the demand for one SKU at one aisle and shelf.
type PickLine struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	Location     models.Location `json:"location"`
	OrderIDs     []string        `json:"order_ids"`
	OrderNumbers []string        `json:"order_numbers"`
	State        LineState       `json:"state"`
	Shortfall    int             `json:"shortfall,omitempty"`
}

func (l PickLine) Resolved() bool {
	return l.State == LineCollected || l.State == LineShort
}

// SkippedOrder is a selected order that contributed no pick line.
type SkippedOrder struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number,omitempty"`
	SKU         string `json:"sku,omitempty"`
	Reason      string `json:"reason"`
}

// PickingOrder is a walking list for one operator. It is owned by the caller;
// the reconciler mutates it in place while scanning.
type PickingOrder struct {
	ID        string         `json:"id"`
	Operator  string         `json:"operator"`
	OrderIDs  []string       `json:"order_ids"`
	Lines     []PickLine     `json:"lines"`
	Skipped   []SkippedOrder `json:"skipped,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Completed bool           `json:"completed"`
}

// Pending returns the number of lines not yet collected or marked short.
func (po *PickingOrder) Pending() int {
	n := 0
	for _, l := range po.Lines {
		if !l.Resolved() {
			n++
		}
	}
	return n
}

type Reconciler struct {
	orders    Orders
	inventory Inventory
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewReconciler(orders Orders, inventory Inventory, logger *zap.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		orders:    orders,
		inventory: inventory,
		logger:    logging.OrNop(logger),
		metrics:   metrics.OrDiscard(m),
		now:       time.Now,
	}
}

type lineKey struct {
	sku, aisle, shelf string
}

// GeneratePickingOrder groups the demand of the selected orders by SKU and
// location, sorts it into walking order and moves every selected order into
// picking under operator. If an assignment or its audit entry fails, the
// orders already assigned are released back to pending and no list is returned.
func (r *Reconciler) GeneratePickingOrder(ctx context.Context, orderIDs []string, operator string) (*PickingOrder, error) {
	operator = strings.TrimSpace(operator)
	ids := dedupe(orderIDs)
	if len(ids) == 0 {
		return nil, database.Invalid("order_ids", "select at least one order")
	}
	if operator == "" {
		return nil, database.Invalid("operator", "assign an operator")
	}

	selected := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		o, ok := r.orders.Order(id)
		if !ok {
			return nil, fmt.Errorf("generate picking order: order %s: %w", id, database.ErrOrderNotFound)
		}
		if !o.Status.CanTransitionTo(models.OrderStatusPicking) {
			return nil, fmt.Errorf("generate picking order: order %s is %s: %w", id, o.Status, database.ErrInvalidTransition)
		}
		selected = append(selected, o)
	}

	po := &PickingOrder{
		ID:        uuid.NewString(),
		Operator:  operator,
		OrderIDs:  ids,
		CreatedAt: r.now(),
	}

	index := make(map[lineKey]int)
	for _, o := range selected {
		if strings.TrimSpace(o.SKU) == "" {
			po.Skipped = append(po.Skipped, SkippedOrder{OrderID: o.ID, OrderNumber: o.OrderNumber, Reason: "order has no sku"})
			continue
		}
		p, ok := r.inventory.ProductBySKU(o.SKU)
		if !ok {
			po.Skipped = append(po.Skipped, SkippedOrder{OrderID: o.ID, OrderNumber: o.OrderNumber, SKU: o.SKU, Reason: "sku not in inventory"})
			continue
		}

		loc := models.UnassignedLocation
		if p.Location != nil {
			loc = *p.Location
		}
		key := lineKey{sku: strings.ToUpper(p.SKU), aisle: loc.Aisle, shelf: loc.Shelf}
		if i, ok := index[key]; ok {
			po.Lines[i].Quantity += o.Quantity
			po.Lines[i].OrderIDs = append(po.Lines[i].OrderIDs, o.ID)
			po.Lines[i].OrderNumbers = append(po.Lines[i].OrderNumbers, o.OrderNumber)
			continue
		}
		index[key] = len(po.Lines)
		po.Lines = append(po.Lines, PickLine{
			SKU:          p.SKU,
			Name:         p.Name,
			ProductID:    p.ID,
			Quantity:     o.Quantity,
			Location:     loc,
			OrderIDs:     []string{o.ID},
			OrderNumbers: []string{o.OrderNumber},
			State:        LinePending,
		})
	}

	sort.SliceStable(po.Lines, func(i, j int) bool {
		a, b := po.Lines[i].Location, po.Lines[j].Location
		if a.Aisle != b.Aisle {
			return a.Aisle < b.Aisle
		}
		if a.Shelf != b.Shelf {
			return a.Shelf < b.Shelf
		}
		return a.Level < b.Level
	})

	assigned := make([]string, 0, len(selected))
	for _, o := range selected {
		if _, err := r.orders.AssignPicking(ctx, o.ID, operator); err != nil {
			return nil, r.release(ctx, assigned, fmt.Errorf("generate picking order: %w", err))
		}
		assigned = append(assigned, o.ID)
		if err := r.audit(ctx, o.ID, "Picking started", operator, models.AuditSuccess,
			"Picking order generated and assigned to "+operator); err != nil {
			return nil, r.release(ctx, assigned, fmt.Errorf("generate picking order: %w", err))
		}
	}

	for _, s := range po.Skipped {
		r.logger.Warn("order skipped from picking list",
			zap.String("order_id", s.OrderID),
			zap.String("sku", s.SKU),
			zap.String("reason", s.Reason))
	}
	r.metrics.PickingOrders.Inc()
	r.logger.Info("picking order generated",
		zap.String("picking_order_id", po.ID),
		zap.String("operator", operator),
		zap.Int("orders", len(ids)),
		zap.Int("lines", len(po.Lines)))

	return po, nil
}

// release puts assigned orders back to pending after a failed generation and
// returns cause joined with any release failures.
func (r *Reconciler) release(ctx context.Context, assigned []string, cause error) error {
	errs := []error{cause}
	for _, id := range assigned {
		if _, err := r.orders.ReleasePicking(ctx, id); err != nil {
			r.logger.Error("release order from picking", zap.String("order_id", id), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ScanResult reports what a scan did to its line.
type ScanResult struct {
	Line      PickLine           `json:"line"`
	Change    *store.StockChange `json:"change,omitempty"`
	Available int                `json:"available"`
}

// ScanProduct confirms line lineIndex with a scanned code. A matching scan
// takes the full quantity from stock when available, and otherwise marks the
// line short without touching stock. A code for another SKU changes nothing.
func (r *Reconciler) ScanProduct(ctx context.Context, po *PickingOrder, lineIndex int, code string) (ScanResult, error) {
	if po == nil {
		return ScanResult{}, database.Invalid("picking_order", "must not be nil")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ScanResult{}, database.Invalid("code", "scan or enter a code")
	}
	if lineIndex < 0 || lineIndex >= len(po.Lines) {
		return ScanResult{}, database.Invalid("line", fmt.Sprintf("index %d out of range", lineIndex))
	}

	line := &po.Lines[lineIndex]
	if line.Resolved() {
		return ScanResult{Line: *line}, fmt.Errorf("line %d (%s): %w", lineIndex, line.SKU, database.ErrLineAlreadyResolved)
	}
	if !strings.EqualFold(code, line.SKU) {
		r.metrics.PickLines.WithLabelValues("mismatch").Inc()
		return ScanResult{Line: *line}, fmt.Errorf("expected %s, scanned %s: %w", line.SKU, code, database.ErrSKUMismatch)
	}

	p, ok := r.inventory.Product(line.ProductID)
	if !ok {
		return ScanResult{Line: *line}, fmt.Errorf("scan %s: %w", line.SKU, database.ErrProductNotFound)
	}

	if p.Stock >= line.Quantity {
		change, err := r.inventory.AdjustStock(ctx, p.ID, -line.Quantity, models.StockMovement{
			Type:      models.MovementOutbound,
			Reason:    movementReason,
			User:      po.Operator,
			Reference: strings.Join(line.OrderNumbers, ", "),
		})
		switch {
		case err == nil:
			line.State = LineCollected
			r.metrics.PickLines.WithLabelValues("collected").Inc()
			r.metrics.UnitsPicked.Add(float64(line.Quantity))
			return ScanResult{Line: *line, Change: &change, Available: p.Stock}, nil
		case errors.Is(err, database.ErrInsufficientStock):
			// stock moved between the read and the decrement
			p, _ = r.inventory.Product(line.ProductID)
		default:
			return ScanResult{Line: *line}, fmt.Errorf("scan %s: %w", line.SKU, err)
		}
	}

	available := max(p.Stock, 0)
	line.State = LineShort
	line.Shortfall = line.Quantity - available
	r.metrics.PickLines.WithLabelValues("short").Inc()
	r.logger.Warn("pick line short",
		zap.String("picking_order_id", po.ID),
		zap.String("sku", line.SKU),
		zap.Int("required", line.Quantity),
		zap.Int("available", available))

	return ScanResult{Line: *line, Available: available}, nil
}

// Completion lists how each selected order was closed.
type Completion struct {
	Packed        []string `json:"packed"`
	WithShortfall []string `json:"with_shortfall"`
	Failed        []string `json:"failed,omitempty"`
}

// CompletePickingOrder closes a fully scanned picking order. Orders whose
// demand was met move to packed. Orders with a short line stay in picking
// with a warning in the audit log. Skipped orders had no line to scan, so
// they are not packed either: they stay in picking with the same warning
// instead of moving to packed as an order with no short line otherwise would.
func (r *Reconciler) CompletePickingOrder(ctx context.Context, po *PickingOrder) (Completion, error) {
	var out Completion
	if po == nil {
		return out, database.Invalid("picking_order", "must not be nil")
	}
	if po.Completed {
		return out, fmt.Errorf("picking order %s already completed: %w", po.ID, database.ErrLineAlreadyResolved)
	}
	if n := po.Pending(); n > 0 {
		return out, fmt.Errorf("picking order %s has %d open lines: %w", po.ID, n, database.ErrPickingIncomplete)
	}

	short := make(map[string]bool)
	for _, l := range po.Lines {
		if l.State == LineShort {
			for _, id := range l.OrderIDs {
				short[id] = true
			}
		}
	}
	for _, s := range po.Skipped {
		short[s.OrderID] = true
	}

	var errs []error
	for _, id := range po.OrderIDs {
		if short[id] {
			if err := r.audit(ctx, id, "Picking completed with shortfall", po.Operator, models.AuditWarning,
				"Order closed with missing products"); err != nil {
				errs = append(errs, err)
			}
			out.WithShortfall = append(out.WithShortfall, id)
			r.metrics.OrdersPacked.WithLabelValues("shortfall").Inc()
			continue
		}

		if _, err := r.orders.UpdateOrderStatus(ctx, id, models.OrderStatusPacked); err != nil {
			r.logger.Error("pack order", zap.String("order_id", id), zap.Error(err))
			out.Failed = append(out.Failed, id)
			errs = append(errs, err)
			continue
		}
		if err := r.audit(ctx, id, "Picking completed", po.Operator, models.AuditSuccess,
			"Order ready for packing"); err != nil {
			errs = append(errs, err)
		}
		out.Packed = append(out.Packed, id)
		r.metrics.OrdersPacked.WithLabelValues("packed").Inc()
	}

	po.Completed = true
	return out, errors.Join(errs...)
}

func (r *Reconciler) audit(ctx context.Context, orderID, action, user string, status models.AuditStatus, details string) error {
	_, err := r.orders.AddAuditLog(ctx, models.AuditLogEntry{
		OrderRef: orderID,
		Action:   action,
		User:     user,
		Duration: "0s",
		Status:   status,
		Details:  details,
	})
	if err != nil {
		return fmt.Errorf("audit %s: %w", orderID, err)
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
