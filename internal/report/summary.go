package report

import (
	"sort"
	"strings"
	"time"

	"github.com/safar/warehouse-ops/internal/models"
	"github.com/shopspring/decimal"
)

type ProductSales struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type Summary struct {
	TotalOrders     int                    `json:"total_orders"`
	TodayOrders     int                    `json:"today_orders"`
	Completed       int                    `json:"completed"`
	Problems        int                    `json:"problems"`
	CompletionRate  float64                `json:"completion_rate"`
	TopProducts     []ProductSales         `json:"top_products"`
	InventoryValue  decimal.Decimal        `json:"inventory_value"`
	LowStock        []models.Product       `json:"low_stock"`
	RecentMovements []models.StockMovement `json:"recent_movements"`
	PickingLog      []models.AuditLogEntry `json:"picking_log"`
}

const (
	topProducts     = 10
	recentMovements = 20
	pickingLog      = 10
)

// Summarize computes the dashboard figures. Dispatched and delivered orders
// count as completed; returned and errored ones as problems.
func Summarize(d Dataset, now time.Time) Summary {
	s := Summary{
		TotalOrders:    len(d.Orders),
		InventoryValue: decimal.Zero,
	}

	today := now.Format("2006-01-02")
	sales := make(map[string]*ProductSales)
	var skus []string
	for _, o := range d.Orders {
		if o.Date == today {
			s.TodayOrders++
		}
		switch o.Status {
		case models.OrderStatusDelivered, models.OrderStatusDispatched:
			s.Completed++
		case models.OrderStatusReturned, models.OrderStatusError:
			s.Problems++
		}
		if o.SKU == "" {
			continue
		}
		ps, ok := sales[o.SKU]
		if !ok {
			ps = &ProductSales{SKU: o.SKU, Name: o.Product}
			sales[o.SKU] = ps
			skus = append(skus, o.SKU)
		}
		ps.Quantity += o.Quantity
	}
	if s.TotalOrders > 0 {
		s.CompletionRate = float64(s.Completed) / float64(s.TotalOrders)
	}

	for _, sku := range skus {
		s.TopProducts = append(s.TopProducts, *sales[sku])
	}
	sort.SliceStable(s.TopProducts, func(i, j int) bool {
		return s.TopProducts[i].Quantity > s.TopProducts[j].Quantity
	})
	if len(s.TopProducts) > topProducts {
		s.TopProducts = s.TopProducts[:topProducts]
	}

	for _, p := range d.Products {
		s.InventoryValue = s.InventoryValue.Add(p.StockValue())
		if p.IsLowStock() {
			s.LowStock = append(s.LowStock, p)
		}
	}

	s.RecentMovements = d.Movements
	if len(s.RecentMovements) > recentMovements {
		s.RecentMovements = s.RecentMovements[:recentMovements]
	}

	for _, l := range d.AuditLogs {
		if strings.Contains(strings.ToLower(l.Action), "completed") {
			s.PickingLog = append(s.PickingLog, l)
			if len(s.PickingLog) == pickingLog {
				break
			}
		}
	}

	return s
}
