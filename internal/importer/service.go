package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/safar/warehouse-ops/internal/logging"
	"github.com/safar/warehouse-ops/internal/metrics"
	"github.com/safar/warehouse-ops/internal/models"
	"github.com/safar/warehouse-ops/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Orders interface {
	AddOrders(ctx context.Context, batch []models.Order) ([]models.Order, error)
}

type Inventory interface {
	ProductBySKU(sku string) (models.Product, bool)
	AddProduct(ctx context.Context, p models.Product) (models.Product, error)
	DecrementClamped(ctx context.Context, id string, qty int, mv models.StockMovement) (store.StockChange, error)
}

const (
	ImportedCategory = "Imported"
	importedMinStock = 10
	movementReason   = "Order import"
)

// Result summarizes an import. Warnings never block it.
type Result struct {
	Imported        []models.Order   `json:"imported"`
	Warnings        []string         `json:"warnings"`
	CreatedProducts []models.Product `json:"created_products"`
}

type Service struct {
	orders    Orders
	inventory Inventory
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewService(orders Orders, inventory Inventory, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		orders:    orders,
		inventory: inventory,
		logger:    logging.OrNop(logger),
		metrics:   metrics.OrDiscard(m),
	}
}

// Import appends every row as a pending order and takes the ordered units
// from stock. Stock never drops below zero; an order larger than the stock
// takes what is there and yields a warning. Unknown SKUs get a catalog entry
// with zero stock so the shortage shows up in stock alerts.
func (s *Service) Import(ctx context.Context, rows []Row, user string) (Result, error) {
	var res Result
	if len(rows) == 0 {
		return res, nil
	}

	batch := make([]models.Order, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, models.Order{
			OrderNumber: r.OrderNumber,
			Date:        r.Date,
			Customer:    r.Customer,
			Product:     r.Product,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
			Total:       r.Total,
			Status:      models.OrderStatusPending,
			Email:       r.Email,
			Address:     r.Address,
			Phone:       r.Phone,
			SKU:         r.SKU,
		})
	}

	added, err := s.orders.AddOrders(ctx, batch)
	if err != nil {
		return res, fmt.Errorf("import orders: %w", err)
	}
	res.Imported = added
	s.metrics.OrdersImported.Add(float64(len(added)))

	created := make(map[string]bool)
	for i, r := range rows {
		for _, p := range r.Problems {
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: %s", r.Line, p))
		}
		if w, ok := totalMismatch(added[i]); ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: %s", r.Line, w))
		}
		if r.SKU == "" {
			continue
		}

		p, ok := s.inventory.ProductBySKU(r.SKU)
		if !ok {
			key := strings.ToUpper(r.SKU)
			if created[key] {
				continue
			}
			created[key] = true

			np, err := s.inventory.AddProduct(ctx, models.Product{
				SKU:         r.SKU,
				Name:        r.Product,
				Description: "Imported from an order file, stock pending",
				Category:    ImportedCategory,
				Price:       decimal.Zero,
				MinStock:    importedMinStock,
				Supplier:    "To be defined",
			})
			if err != nil {
				return res, fmt.Errorf("create product %s: %w", r.SKU, err)
			}
			res.CreatedProducts = append(res.CreatedProducts, np)
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("%s (%s): product not found, created in inventory with no stock", r.Product, r.SKU))
			s.metrics.ProductsAutoCreated.Inc()
			continue
		}

		change, err := s.inventory.DecrementClamped(ctx, p.ID, r.Quantity, models.StockMovement{
			Type:      models.MovementOutbound,
			Reason:    movementReason,
			User:      user,
			Reference: r.OrderNumber,
		})
		if err != nil {
			return res, fmt.Errorf("update stock for %s: %w", r.SKU, err)
		}
		if change.Shortfall > 0 {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("%s (%s): insufficient stock (available %d, ordered %d)", r.Product, r.SKU, change.Before, r.Quantity))
		}
	}

	s.metrics.ImportWarnings.Add(float64(len(res.Warnings)))
	for _, w := range res.Warnings {
		s.logger.Warn("import warning", zap.String("warning", w))
	}
	s.logger.Info("orders imported",
		zap.Int("orders", len(res.Imported)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Int("created_products", len(res.CreatedProducts)))

	return res, nil
}

// totalMismatch reports totals that differ from quantity x unit price. A zero
// total means the file had none.
func totalMismatch(o models.Order) (string, bool) {
	if o.Total.IsZero() {
		return "", false
	}
	expected := o.ExpectedTotal()
	if o.Total.Equal(expected) {
		return "", false
	}
	return fmt.Sprintf("order %s total %s differs from quantity x unit price %s",
		o.OrderNumber, o.Total.StringFixed(2), expected.StringFixed(2)), true
}
