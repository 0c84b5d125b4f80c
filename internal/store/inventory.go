package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safar/warehouse-ops/internal/database"
	"github.com/safar/warehouse-ops/internal/kv"
	"github.com/safar/warehouse-ops/internal/logging"
	"github.com/safar/warehouse-ops/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductPatch carries the fields to overwrite. Nil fields are left untouched.
type ProductPatch struct {
	SKU         *string          `json:"sku"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	MinStock    *int             `json:"min_stock"`
	Supplier    *string          `json:"supplier"`
	Location    *models.Location `json:"location"`
	Lot         *string          `json:"lot"`
	ExpiresOn   *string          `json:"expires_on"`
}

// StockChange reports the effect of a stock mutation. Shortfall is the part
// of a requested decrement that could not be taken from stock.
type StockChange struct {
	ProductID string `json:"product_id"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
	Shortfall int    `json:"shortfall,omitempty"`
}

// InventoryStore owns the product catalog and the stock movement ledger.
type InventoryStore struct {
	broker

	mu        sync.RWMutex
	kv        kv.Store
	logger    *zap.Logger
	now       func() time.Time
	products  []models.Product
	movements []models.StockMovement
}

func NewInventoryStore(ctx context.Context, s kv.Store, logger *zap.Logger) (*InventoryStore, error) {
	products, err := kv.LoadCollection[models.Product](ctx, s, kv.KeyProducts)
	if err != nil {
		return nil, err
	}
	movements, err := kv.LoadCollection[models.StockMovement](ctx, s, kv.KeyMovements)
	if err != nil {
		return nil, err
	}

	return &InventoryStore{
		kv:        s,
		logger:    logging.OrNop(logger),
		now:       time.Now,
		products:  products,
		movements: movements,
	}, nil
}

func (s *InventoryStore) update(fn func() ([]string, error)) error {
	s.mu.Lock()
	changed, err := fn()
	s.mu.Unlock()

	if len(changed) > 0 {
		s.publish(changed...)
	}
	return err
}

func (s *InventoryStore) saveProducts(ctx context.Context, next []models.Product) error {
	if err := kv.SaveCollection(ctx, s.kv, kv.KeyProducts, next); err != nil {
		s.logger.Error("persist products", zap.Error(err))
		return err
	}
	s.products = next
	return nil
}

func (s *InventoryStore) saveMovements(ctx context.Context, next []models.StockMovement) error {
	if err := kv.SaveCollection(ctx, s.kv, kv.KeyMovements, next); err != nil {
		s.logger.Error("persist stock movements", zap.Error(err))
		return err
	}
	s.movements = next
	return nil
}

func (s *InventoryStore) cloneProducts() []models.Product {
	out := make([]models.Product, len(s.products))
	copy(out, s.products)
	return out
}

func (s *InventoryStore) indexOf(id string) int {
	for i := range s.products {
		if s.products[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *InventoryStore) indexOfSKU(sku string) int {
	for i := range s.products {
		if strings.EqualFold(s.products[i].SKU, sku) {
			return i
		}
	}
	return -1
}

func validateProduct(p models.Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return database.Invalid("sku", "must not be empty")
	}
	if strings.TrimSpace(p.Name) == "" {
		return database.Invalid("name", "must not be empty")
	}
	if p.Stock < 0 {
		return database.Invalid("stock", "must not be negative")
	}
	if p.Price.IsNegative() {
		return database.Invalid("price", "must not be negative")
	}
	return nil
}

// AddProduct stores p under a new id. SKUs are not required to be unique;
// a second product with an existing code is accepted and logged.
func (s *InventoryStore) AddProduct(ctx context.Context, p models.Product) (models.Product, error) {
	if err := validateProduct(p); err != nil {
		return models.Product{}, err
	}

	err := s.update(func() ([]string, error) {
		if s.indexOfSKU(p.SKU) >= 0 {
			s.logger.Warn("product added with an existing sku", zap.String("sku", p.SKU))
		}

		p.ID = uuid.NewString()
		p.UpdatedAt = s.now()

		next := append(s.cloneProducts(), p)
		if err := s.saveProducts(ctx, next); err != nil {
			return nil, fmt.Errorf("add product: %w", err)
		}
		return []string{kv.KeyProducts}, nil
	})
	if err != nil {
		return models.Product{}, err
	}
	return p, nil
}

func (s *InventoryStore) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (models.Product, error) {
	var updated models.Product

	err := s.update(func() ([]string, error) {
		i := s.indexOf(id)
		if i < 0 {
			return nil, fmt.Errorf("product %s: %w", id, database.ErrProductNotFound)
		}

		p := s.products[i]
		applyPatch(&p, patch)
		if err := validateProduct(p); err != nil {
			return nil, err
		}
		p.UpdatedAt = s.now()

		next := s.cloneProducts()
		next[i] = p
		if err := s.saveProducts(ctx, next); err != nil {
			return nil, fmt.Errorf("update product: %w", err)
		}
		updated = p
		return []string{kv.KeyProducts}, nil
	})
	return updated, err
}

func applyPatch(p *models.Product, patch ProductPatch) {
	if patch.SKU != nil {
		p.SKU = *patch.SKU
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.MinStock != nil {
		p.MinStock = *patch.MinStock
	}
	if patch.Supplier != nil {
		p.Supplier = *patch.Supplier
	}
	if patch.Location != nil {
		loc := *patch.Location
		p.Location = &loc
	}
	if patch.Lot != nil {
		p.Lot = *patch.Lot
	}
	if patch.ExpiresOn != nil {
		p.ExpiresOn = *patch.ExpiresOn
	}
}

// DeleteProduct removes the product. Orders and movements that reference it
// are left as they are.
func (s *InventoryStore) DeleteProduct(ctx context.Context, id string) error {
	return s.update(func() ([]string, error) {
		i := s.indexOf(id)
		if i < 0 {
			return nil, fmt.Errorf("product %s: %w", id, database.ErrProductNotFound)
		}

		next := make([]models.Product, 0, len(s.products)-1)
		next = append(next, s.products[:i]...)
		next = append(next, s.products[i+1:]...)
		if err := s.saveProducts(ctx, next); err != nil {
			return nil, fmt.Errorf("delete product: %w", err)
		}
		return []string{kv.KeyProducts}, nil
	})
}

func (s *InventoryStore) Product(id string) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.products[i], true
	}
	return models.Product{}, false
}

// ProductBySKU returns the first product whose code matches sku, ignoring case.
func (s *InventoryStore) ProductBySKU(sku string) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOfSKU(sku); i >= 0 {
		return s.products[i], true
	}
	return models.Product{}, false
}

func (s *InventoryStore) Products() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneProducts()
}

// GetLowStockProducts returns products whose stock is at or below their minimum.
func (s *InventoryStore) GetLowStockProducts() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Product
	for _, p := range s.products {
		if p.IsLowStock() {
			out = append(out, p)
		}
	}
	return out
}

// SKUCollisions lists codes (upper-cased) shared by more than one product,
// mapped to the ids that share them.
func (s *InventoryStore) SKUCollisions() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCode := make(map[string][]string)
	for _, p := range s.products {
		code := strings.ToUpper(p.SKU)
		byCode[code] = append(byCode[code], p.ID)
	}
	for code, ids := range byCode {
		if len(ids) < 2 {
			delete(byCode, code)
		}
	}
	return byCode
}

func (s *InventoryStore) newMovement(m models.StockMovement) models.StockMovement {
	m.ID = uuid.NewString()
	m.CreatedAt = s.now()
	return m
}

func (s *InventoryStore) prependMovement(ctx context.Context, m models.StockMovement) error {
	next := make([]models.StockMovement, 0, len(s.movements)+1)
	next = append(next, m)
	next = append(next, s.movements...)
	return s.saveMovements(ctx, next)
}

// AddMovimiento appends a ledger entry, most recent first.
func (s *InventoryStore) AddMovimiento(ctx context.Context, m models.StockMovement) (models.StockMovement, error) {
	if m.Quantity <= 0 {
		return models.StockMovement{}, database.Invalid("quantity", "must be greater than zero")
	}

	err := s.update(func() ([]string, error) {
		m = s.newMovement(m)
		if err := s.prependMovement(ctx, m); err != nil {
			return nil, fmt.Errorf("add movement: %w", err)
		}
		return []string{kv.KeyMovements}, nil
	})
	return m, err
}

func (s *InventoryStore) GetMovimientosByProduct(productID string) []models.StockMovement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.StockMovement
	for _, m := range s.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out
}

func (s *InventoryStore) Movements() []models.StockMovement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.StockMovement, len(s.movements))
	copy(out, s.movements)
	return out
}

// AdjustStock adds delta to the product's stock and records mv in the ledger.
// A change that would leave stock below zero fails with ErrInsufficientStock
// and changes nothing. Product fields, quantity and, when empty, the movement
// type are filled in from the product and delta.
func (s *InventoryStore) AdjustStock(ctx context.Context, id string, delta int, mv models.StockMovement) (StockChange, error) {
	if delta == 0 {
		return StockChange{}, database.Invalid("delta", "must not be zero")
	}

	var change StockChange
	err := s.update(func() ([]string, error) {
		i := s.indexOf(id)
		if i < 0 {
			return nil, fmt.Errorf("product %s: %w", id, database.ErrProductNotFound)
		}

		p := s.products[i]
		if p.Stock+delta < 0 {
			return nil, fmt.Errorf("product %s has %d, need %d: %w", p.SKU, p.Stock, -delta, database.ErrInsufficientStock)
		}

		change = StockChange{ProductID: id, Before: p.Stock, After: p.Stock + delta}
		changed, err := s.applyStock(ctx, i, change.After, delta, mv)
		if err != nil {
			return changed, fmt.Errorf("adjust stock: %w", err)
		}
		return changed, nil
	})
	return change, err
}

// DecrementClamped takes up to qty units from stock, never going below zero.
// The untaken remainder is reported as Shortfall.
func (s *InventoryStore) DecrementClamped(ctx context.Context, id string, qty int, mv models.StockMovement) (StockChange, error) {
	if qty <= 0 {
		return StockChange{}, database.Invalid("quantity", "must be greater than zero")
	}

	var change StockChange
	err := s.update(func() ([]string, error) {
		i := s.indexOf(id)
		if i < 0 {
			return nil, fmt.Errorf("product %s: %w", id, database.ErrProductNotFound)
		}

		p := s.products[i]
		taken := qty
		if taken > p.Stock {
			taken = max(p.Stock, 0)
		}
		change = StockChange{ProductID: id, Before: p.Stock, After: p.Stock - taken, Shortfall: qty - taken}
		if taken == 0 {
			return nil, nil
		}

		changed, err := s.applyStock(ctx, i, change.After, -taken, mv)
		if err != nil {
			return changed, fmt.Errorf("decrement stock: %w", err)
		}
		return changed, nil
	})
	return change, err
}

// Restock adds qty units and records an inbound movement.
func (s *InventoryStore) Restock(ctx context.Context, id string, qty int, user, reason string) (StockChange, error) {
	if qty <= 0 {
		return StockChange{}, database.Invalid("quantity", "must be greater than zero")
	}
	if reason == "" {
		reason = "Restock"
	}
	return s.AdjustStock(ctx, id, qty, models.StockMovement{
		Type:   models.MovementInbound,
		Reason: reason,
		User:   user,
	})
}

// applyStock persists the new stock for products[i] and then the movement.
// Memory is only updated once both writes succeed; a failed movement write
// puts the previous products back in storage. Callers hold s.mu.
func (s *InventoryStore) applyStock(ctx context.Context, i, newStock, delta int, mv models.StockMovement) ([]string, error) {
	next := s.cloneProducts()
	next[i].Stock = newStock
	next[i].UpdatedAt = s.now()
	if err := kv.SaveCollection(ctx, s.kv, kv.KeyProducts, next); err != nil {
		s.logger.Error("persist products", zap.Error(err))
		return nil, err
	}

	p := next[i]
	mv.ProductID = p.ID
	mv.ProductSKU = p.SKU
	mv.ProductName = p.Name
	mv.Quantity = abs(delta)
	if mv.Type == "" {
		mv.Type = models.MovementOutbound
		if delta > 0 {
			mv.Type = models.MovementInbound
		}
	}

	movements := make([]models.StockMovement, 0, len(s.movements)+1)
	movements = append(movements, s.newMovement(mv))
	movements = append(movements, s.movements...)
	if err := kv.SaveCollection(ctx, s.kv, kv.KeyMovements, movements); err != nil {
		s.logger.Error("persist stock movements", zap.Error(err))
		if rerr := kv.SaveCollection(ctx, s.kv, kv.KeyProducts, s.products); rerr != nil {
			s.logger.Error("restore products after failed movement write",
				zap.String("product_id", p.ID), zap.Error(rerr))
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}

	s.products = next
	s.movements = movements
	return []string{kv.KeyProducts, kv.KeyMovements}, nil
}

// Categories returns the distinct non-empty categories, sorted.
func (s *InventoryStore) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, p := range s.products {
		if p.Category != "" && !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	sort.Strings(out)
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
