// Package report projects the stores into export tables and summary figures.
// Nothing produced here is read back.
package report

import (
	"fmt"
	"strings"

	"github.com/safar/warehouse-ops/internal/models"
)

// Table is a sheet of cells. Cells hold strings, ints, decimals or times.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]any
}

type Kind string

const (
	KindOrders    Kind = "orders"
	KindProducts  Kind = "products"
	KindMovements Kind = "movements"
	KindAudit     Kind = "audit"
)

var Kinds = []Kind{KindOrders, KindProducts, KindMovements, KindAudit}

// Dataset is a snapshot of every collection.
type Dataset struct {
	Orders    []models.Order
	AuditLogs []models.AuditLogEntry
	Products  []models.Product
	Movements []models.StockMovement
}

func Build(kind Kind, d Dataset) (Table, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindOrders:
		return Orders(d.Orders), nil
	case KindProducts:
		return Products(d.Products), nil
	case KindMovements:
		return Movements(d.Movements), nil
	case KindAudit:
		return AuditLogs(d.AuditLogs), nil
	}
	return Table{}, fmt.Errorf("unknown report %q", kind)
}

func Orders(orders []models.Order) Table {
	t := Table{
		Name: "Orders",
		Headers: []string{"Order No.", "Date", "Customer", "Email", "SKU", "Product",
			"Quantity", "Unit Price", "Total", "Status", "Carrier", "Tracking No."},
	}
	for _, o := range orders {
		t.Rows = append(t.Rows, []any{
			o.OrderNumber, o.Date, o.Customer, o.Email, o.SKU, o.Product,
			o.Quantity, o.UnitPrice, o.Total, string(o.Status), o.Carrier, o.TrackingNumber,
		})
	}
	return t
}

func Products(products []models.Product) Table {
	t := Table{
		Name: "Inventory",
		Headers: []string{"SKU", "Name", "Description", "Category", "Price", "Stock",
			"Min Stock", "Stock Value", "Supplier", "Location", "Last Updated"},
	}
	for _, p := range products {
		t.Rows = append(t.Rows, []any{
			p.SKU, p.Name, p.Description, p.Category, p.Price, p.Stock,
			p.MinStock, p.StockValue(), p.Supplier, formatLocation(p.Location), p.UpdatedAt,
		})
	}
	return t
}

func Movements(movements []models.StockMovement) Table {
	t := Table{
		Name:    "Movements",
		Headers: []string{"Date", "Type", "Product", "SKU", "Quantity", "Reason", "User", "Reference"},
	}
	for _, m := range movements {
		t.Rows = append(t.Rows, []any{
			m.CreatedAt, string(m.Type), m.ProductName, m.ProductSKU, m.Quantity, m.Reason, m.User, m.Reference,
		})
	}
	return t
}

func AuditLogs(logs []models.AuditLogEntry) Table {
	t := Table{
		Name:    "Audit",
		Headers: []string{"Timestamp", "Order", "Action", "User", "Duration", "Status", "Details"},
	}
	for _, l := range logs {
		t.Rows = append(t.Rows, []any{
			l.Timestamp, l.OrderRef, l.Action, l.User, l.Duration, string(l.Status), l.Details,
		})
	}
	return t
}

func formatLocation(l *models.Location) string {
	if l == nil {
		return models.UnassignedLocation.Aisle
	}
	return fmt.Sprintf("%s-%s-%s-%s", l.Aisle, l.Shelf, l.Level, l.Position)
}
