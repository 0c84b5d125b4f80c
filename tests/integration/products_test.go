package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/safar/warehouse-ops/internal/database"
	"github.com/safar/warehouse-ops/internal/kv"
	"github.com/safar/warehouse-ops/internal/models"
	"github.com/safar/warehouse-ops/internal/picking"
	"github.com/safar/warehouse-ops/internal/store"
	"github.com/shopspring/decimal"
)

func TestConcurrentStockAdjustment(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	inventory, err := store.NewInventoryStore(ctx, kv.NewPostgres(db), nil)
	if err != nil {
		t.Fatalf("Open inventory store: %v", err)
	}

	product, err := inventory.AddProduct(ctx, models.Product{
		SKU: "PG-STK-1", Name: "Pallet wrap", Price: decimal.NewFromInt(12), Stock: 20, MinStock: 5,
	})
	if err != nil {
		t.Fatalf("Add product: %v", err)
	}

	concurrency := 15
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := inventory.AdjustStock(ctx, product.ID, -2, models.StockMovement{
				Type:   models.MovementOutbound,
				Reason: "Order picking",
				User:   "ops",
			})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	insufficientStockCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrInsufficientStock):
			insufficientStockCount++
		default:
			t.Logf("Unexpected error: %v", err)
		}
	}

	if successCount != 10 {
		t.Errorf("Expected 10 successful adjustments, got %d", successCount)
	}
	if insufficientStockCount != 5 {
		t.Errorf("Expected 5 insufficient stock errors, got %d", insufficientStockCount)
	}

	reloaded, err := store.NewInventoryStore(ctx, kv.NewPostgres(db), nil)
	if err != nil {
		t.Fatalf("Reload inventory store: %v", err)
	}
	after, ok := reloaded.Product(product.ID)
	if !ok {
		t.Fatal("Product missing after reload")
	}
	if after.Stock != 0 {
		t.Errorf("Expected final stock 0, got %d", after.Stock)
	}
	if n := len(reloaded.GetMovimientosByProduct(product.ID)); n != successCount {
		t.Errorf("Expected %d movements, got %d", successCount, n)
	}
}

func TestPickingAgainstPostgres(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	backend := kv.NewPostgres(db)

	orders, err := store.NewOrderStore(ctx, backend, nil)
	if err != nil {
		t.Fatalf("Open order store: %v", err)
	}
	inventory, err := store.NewInventoryStore(ctx, backend, nil)
	if err != nil {
		t.Fatalf("Open inventory store: %v", err)
	}

	if _, err := inventory.AddProduct(ctx, models.Product{
		SKU: "PG-PCK-1", Name: "Label roll", Stock: 3, MinStock: 1,
		Location: &models.Location{Aisle: "B", Shelf: "2", Level: "1", Position: "4"},
	}); err != nil {
		t.Fatalf("Add product: %v", err)
	}

	added, err := orders.AddOrders(ctx, []models.Order{
		{OrderNumber: "PG-P1", SKU: "PG-PCK-1", Quantity: 2},
		{OrderNumber: "PG-P2", SKU: "PG-PCK-1", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("Add orders: %v", err)
	}

	r := picking.NewReconciler(orders, inventory, nil, nil)
	po, err := r.GeneratePickingOrder(ctx, []string{added[0].ID, added[1].ID}, "Marta")
	if err != nil {
		t.Fatalf("Generate picking order: %v", err)
	}
	if len(po.Lines) != 1 || po.Lines[0].Quantity != 4 {
		t.Fatalf("Expected one merged line of 4 units, got %+v", po.Lines)
	}

	res, err := r.ScanProduct(ctx, po, 0, "pg-pck-1")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Line.State != picking.LineShort || res.Line.Shortfall != 1 {
		t.Errorf("Expected a short line missing 1 unit, got %+v", res.Line)
	}

	done, err := r.CompletePickingOrder(ctx, po)
	if err != nil {
		t.Fatalf("Complete picking: %v", err)
	}
	if len(done.WithShortfall) != 2 {
		t.Errorf("Expected both orders closed with shortfall, got %+v", done)
	}

	reloaded, err := store.NewOrderStore(ctx, backend, nil)
	if err != nil {
		t.Fatalf("Reload order store: %v", err)
	}
	for _, o := range reloaded.Orders() {
		if o.Status != models.OrderStatusPicking {
			t.Errorf("Expected %s to stay in picking, got %s", o.OrderNumber, o.Status)
		}
		if o.PickingOperator != "Marta" {
			t.Errorf("Expected picking operator Marta on %s, got %q", o.OrderNumber, o.PickingOperator)
		}
	}
}
