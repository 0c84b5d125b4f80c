package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPicking    OrderStatus = "en_picking"
	OrderStatusPacked     OrderStatus = "packed"
	OrderStatusDispatched OrderStatus = "dispatched"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusReturned   OrderStatus = "returned"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusError      OrderStatus = "error"
)

// Order is one customer purchase line to be fulfilled.
type Order struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	Date        string          `json:"order_date"`
	Customer    string          `json:"customer"`
	Product     string          `json:"product"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
	Status      OrderStatus     `json:"status"`
	Email       string          `json:"email,omitempty"`
	Address     string          `json:"address,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	SKU         string          `json:"sku,omitempty"`

	Carrier        string     `json:"carrier,omitempty"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	DispatchedAt   *time.Time `json:"dispatched_at,omitempty"`

	PickingOperator string     `json:"picking_operator,omitempty"`
	PickedAt        *time.Time `json:"picked_at,omitempty"`
}

// ExpectedTotal is Quantity x UnitPrice. Imported totals are not forced to match it.
func (o Order) ExpectedTotal() decimal.Decimal {
	return o.UnitPrice.Mul(decimal.NewFromInt(int64(o.Quantity)))
}

type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditError   AuditStatus = "error"
	AuditWarning AuditStatus = "warning"
	AuditRetry   AuditStatus = "retry"
)

// AuditLogEntry is an immutable record of one action taken against an order.
// OrderRef holds whatever reference the caller used (order id or order number).
type AuditLogEntry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	OrderRef  string      `json:"order_ref"`
	Action    string      `json:"action"`
	User      string      `json:"user"`
	Duration  string      `json:"duration"`
	Status    AuditStatus `json:"status"`
	Details   string      `json:"details"`
}

type Location struct {
	Aisle    string `json:"aisle"`
	Shelf    string `json:"shelf"`
	Level    string `json:"level"`
	Position string `json:"position"`
}

// UnassignedLocation is used for products that have no storage location yet.
var UnassignedLocation = Location{Aisle: "Unassigned", Shelf: "-", Level: "-", Position: "-"}

type Product struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	MinStock    int             `json:"min_stock"`
	Supplier    string          `json:"supplier"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Location    *Location       `json:"location,omitempty"`
	Lot         string          `json:"lot,omitempty"`
	ExpiresOn   string          `json:"expires_on,omitempty"`
}

func (p Product) IsLowStock() bool {
	return p.Stock <= p.MinStock
}

func (p Product) IsOutOfStock() bool {
	return p.Stock <= 0
}

// StockValue is Price x Stock.
func (p Product) StockValue() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Stock)))
}

type MovementType string

const (
	MovementInbound    MovementType = "inbound"
	MovementOutbound   MovementType = "outbound"
	MovementAdjustment MovementType = "adjustment"
)

// StockMovement is an append-only ledger entry for one inventory change.
type StockMovement struct {
	ID          string       `json:"id"`
	Type        MovementType `json:"type"`
	ProductID   string       `json:"product_id"`
	ProductSKU  string       `json:"product_sku"`
	ProductName string       `json:"product_name"`
	Quantity    int          `json:"quantity"`
	Reason      string       `json:"reason"`
	User        string       `json:"user"`
	CreatedAt   time.Time    `json:"created_at"`
	Reference   string       `json:"reference,omitempty"`
}

type OrderStats struct {
	Total      int `json:"total"`
	Delivered  int `json:"delivered"`
	Pending    int `json:"pending"`
	Errored    int `json:"errored"`
	InPicking  int `json:"in_picking"`
	Packed     int `json:"packed"`
	Dispatched int `json:"dispatched"`
	Cancelled  int `json:"cancelled"`
	Returned   int `json:"returned"`
}
