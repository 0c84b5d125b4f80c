package store

import (
	"context"
	"errors"
	"testing"

	"github.com/safar/warehouse-ops/internal/database"
	"github.com/safar/warehouse-ops/internal/kv"
	"github.com/safar/warehouse-ops/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInventoryStore(t *testing.T) (*InventoryStore, *kv.Memory) {
	t.Helper()
	mem := kv.NewMemory()
	s, err := NewInventoryStore(context.Background(), mem, nil)
	require.NoError(t, err)
	return s, mem
}

func addProduct(t *testing.T, s *InventoryStore, sku string, stock, min int) models.Product {
	t.Helper()
	p, err := s.AddProduct(context.Background(), models.Product{
		SKU:      sku,
		Name:     "Producto " + sku,
		Price:    decimal.NewFromInt(5),
		Stock:    stock,
		MinStock: min,
	})
	require.NoError(t, err)
	return p
}

func intPtr(n int) *int { return &n }

func TestAddProduct(t *testing.T) {
	s, mem := newInventoryStore(t)
	p := addProduct(t, s, "A1", 10, 2)

	assert.NotEmpty(t, p.ID)
	assert.False(t, p.UpdatedAt.IsZero())

	reloaded, err := NewInventoryStore(context.Background(), mem, nil)
	require.NoError(t, err)
	got, ok := reloaded.Product(p.ID)
	require.True(t, ok)
	assert.Equal(t, 10, got.Stock)
}

func TestAddProductValidation(t *testing.T) {
	s, _ := newInventoryStore(t)

	_, err := s.AddProduct(context.Background(), models.Product{Name: "sin codigo"})
	assert.True(t, errors.Is(err, database.ErrValidation))

	_, err = s.AddProduct(context.Background(), models.Product{SKU: "X", Name: "neg", Stock: -1})
	assert.True(t, errors.Is(err, database.ErrValidation))
}

func TestDuplicateSKUAllowedAndReported(t *testing.T) {
	s, _ := newInventoryStore(t)
	a := addProduct(t, s, "A1", 1, 0)
	b := addProduct(t, s, "a1", 1, 0)
	addProduct(t, s, "B1", 1, 0)

	collisions := s.SKUCollisions()
	require.Len(t, collisions, 1)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, collisions["A1"])
}

func TestProductBySKUCaseInsensitive(t *testing.T) {
	s, _ := newInventoryStore(t)
	p := addProduct(t, s, "Ab-9", 1, 0)

	got, ok := s.ProductBySKU("aB-9")
	require.True(t, ok)
	assert.Equal(t, p.ID, got.ID)

	_, ok = s.ProductBySKU("zz")
	assert.False(t, ok)
}

func TestUpdateProduct(t *testing.T) {
	ctx := context.Background()
	s, _ := newInventoryStore(t)
	p := addProduct(t, s, "A1", 10, 2)

	name := "Nuevo"
	loc := models.Location{Aisle: "A", Shelf: "2", Level: "1", Position: "4"}
	updated, err := s.UpdateProduct(ctx, p.ID, ProductPatch{Name: &name, Stock: intPtr(7), Location: &loc})
	require.NoError(t, err)

	assert.Equal(t, "Nuevo", updated.Name)
	assert.Equal(t, 7, updated.Stock)
	assert.Equal(t, "A1", updated.SKU)
	require.NotNil(t, updated.Location)
	assert.Equal(t, "A", updated.Location.Aisle)
	assert.False(t, updated.UpdatedAt.Before(p.UpdatedAt))

	_, err = s.UpdateProduct(ctx, p.ID, ProductPatch{Stock: intPtr(-3)})
	assert.True(t, errors.Is(err, database.ErrValidation))

	_, err = s.UpdateProduct(ctx, "missing", ProductPatch{Name: &name})
	assert.True(t, errors.Is(err, database.ErrProductNotFound))
}

func TestDeleteProduct(t *testing.T) {
	ctx := context.Background()
	s, _ := newInventoryStore(t)
	p := addProduct(t, s, "A1", 10, 2)
	q := addProduct(t, s, "B1", 10, 2)

	require.NoError(t, s.DeleteProduct(ctx, p.ID))
	assert.True(t, errors.Is(s.DeleteProduct(ctx, p.ID), database.ErrProductNotFound))

	products := s.Products()
	require.Len(t, products, 1)
	assert.Equal(t, q.ID, products[0].ID)
}

func TestGetLowStockProducts(t *testing.T) {
	s, _ := newInventoryStore(t)
	addProduct(t, s, "LOW", 2, 5)
	addProduct(t, s, "EDGE", 5, 5)
	addProduct(t, s, "OK", 6, 5)

	first := s.GetLowStockProducts()
	second := s.GetLowStockProducts()

	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, "LOW", first[0].SKU)
	assert.Equal(t, "EDGE", first[1].SKU)
}

func TestAddMovimientoNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := newInventoryStore(t)
	p := addProduct(t, s, "A1", 10, 2)

	_, err := s.AddMovimiento(ctx, models.StockMovement{Type: models.MovementAdjustment, ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	second, err := s.AddMovimiento(ctx, models.StockMovement{Type: models.MovementInbound, ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = s.AddMovimiento(ctx, models.StockMovement{Type: models.MovementInbound, ProductID: "other", Quantity: 2})
	require.NoError(t, err)

	byProduct := s.GetMovimientosByProduct(p.ID)
	require.Len(t, byProduct, 2)
	assert.Equal(t, second.ID, byProduct[0].ID)

	_, err = s.AddMovimiento(ctx, models.StockMovement{ProductID: p.ID})
	assert.True(t, errors.Is(err, database.ErrValidation))
}

func TestAdjustStock(t *testing.T) {
	ctx := context.Background()
	s, _ := newInventoryStore(t)
	p := addProduct(t, s, "A1", 10, 2)

	change, err := s.AdjustStock(ctx, p.ID, -4, models.StockMovement{Reason: "Picking", User: "Luis", Reference: "A-1, A-2"})
	require.NoError(t, err)
	assert.Equal(t, StockChange{ProductID: p.ID, Before: 10, After: 6}, change)

	movements := s.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, models.MovementOutbound, movements[0].Type)
	assert.Equal(t, 4, movements[0].Quantity)
	assert.Equal(t, "A1", movements[0].ProductSKU)
	assert.Equal(t, "A-1, A-2", movements[0].Reference)

	_, err = s.AdjustStock(ctx, p.ID, -7, models.StockMovement{})
	assert.True(t, errors.Is(err, database.ErrInsufficientStock))
	got, _ := s.Product(p.ID)
	assert.Equal(t, 6, got.Stock)
	assert.Len(t, s.Movements(), 1)

	_, err = s.AdjustStock(ctx, "missing", 1, models.StockMovement{})
	assert.True(t, errors.Is(err, database.ErrProductNotFound))
}

func TestDecrementClamped(t *testing.T) {
	ctx := context.Background()
	s, _ := newInventoryStore(t)
	p := addProduct(t, s, "A1", 3, 2)

	change, err := s.DecrementClamped(ctx, p.ID, 5, models.StockMovement{Reason: "Order import"})
	require.NoError(t, err)
	assert.Equal(t, StockChange{ProductID: p.ID, Before: 3, After: 0, Shortfall: 2}, change)

	change, err = s.DecrementClamped(ctx, p.ID, 1, models.StockMovement{})
	require.NoError(t, err)
	assert.Equal(t, 1, change.Shortfall)

	movements := s.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, 3, movements[0].Quantity)
}

func TestFailedMovementWriteRestoresStock(t *testing.T) {
	ctx := context.Background()
	backing := &failingKV{Memory: kv.NewMemory()}
	s, err := NewInventoryStore(ctx, backing, nil)
	require.NoError(t, err)
	p := addProduct(t, s, "A1", 10, 2)

	backing.failKey = kv.KeyMovements
	_, err = s.AdjustStock(ctx, p.ID, -4, models.StockMovement{Reason: "Picking"})
	require.Error(t, err)
	_, err = s.DecrementClamped(ctx, p.ID, 4, models.StockMovement{Reason: "Order import"})
	require.Error(t, err)

	got, _ := s.Product(p.ID)
	assert.Equal(t, 10, got.Stock)
	assert.Empty(t, s.Movements())

	reloaded, err := NewInventoryStore(ctx, backing, nil)
	require.NoError(t, err)
	persisted, _ := reloaded.Product(p.ID)
	assert.Equal(t, 10, persisted.Stock)

	backing.failKey = ""
	change, err := s.AdjustStock(ctx, p.ID, -4, models.StockMovement{Reason: "Picking"})
	require.NoError(t, err)
	assert.Equal(t, 6, change.After)
	assert.Len(t, s.Movements(), 1)
}

func TestRestock(t *testing.T) {
	ctx := context.Background()
	s, _ := newInventoryStore(t)
	p := addProduct(t, s, "A1", 0, 2)

	change, err := s.Restock(ctx, p.ID, 4, "Ana", "")
	require.NoError(t, err)
	assert.Equal(t, 4, change.After)

	movements := s.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, models.MovementInbound, movements[0].Type)
	assert.Equal(t, "Restock", movements[0].Reason)

	_, err = s.Restock(ctx, p.ID, 0, "Ana", "")
	assert.True(t, errors.Is(err, database.ErrValidation))
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	s, _ := newInventoryStore(t)
	for _, c := range []string{"Ropa", "", "Hogar", "Ropa"} {
		_, err := s.AddProduct(ctx, models.Product{SKU: "S" + c, Name: "n", Category: c})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"Hogar", "Ropa"}, s.Categories())
}
