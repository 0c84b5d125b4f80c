package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safar/warehouse-ops/internal/database"
	"github.com/safar/warehouse-ops/internal/kv"
	"github.com/safar/warehouse-ops/internal/logging"
	"github.com/safar/warehouse-ops/internal/models"
	"go.uber.org/zap"
)

// StatusResult describes an applied status change.
type StatusResult struct {
	OrderID string             `json:"order_id"`
	From    models.OrderStatus `json:"from"`
	To      models.OrderStatus `json:"to"`
}

// OrderStore owns orders and the audit log. Every mutation rewrites the
// affected collection in the backing kv.Store before it becomes visible.
type OrderStore struct {
	broker

	mu        sync.RWMutex
	kv        kv.Store
	logger    *zap.Logger
	now       func() time.Time
	orders    []models.Order
	auditLogs []models.AuditLogEntry
}

func NewOrderStore(ctx context.Context, s kv.Store, logger *zap.Logger) (*OrderStore, error) {
	orders, err := kv.LoadCollection[models.Order](ctx, s, kv.KeyOrders)
	if err != nil {
		return nil, err
	}
	logs, err := kv.LoadCollection[models.AuditLogEntry](ctx, s, kv.KeyAuditLogs)
	if err != nil {
		return nil, err
	}

	return &OrderStore{
		kv:        s,
		logger:    logging.OrNop(logger),
		now:       time.Now,
		orders:    orders,
		auditLogs: logs,
	}, nil
}

func (s *OrderStore) update(fn func() ([]string, error)) error {
	s.mu.Lock()
	changed, err := fn()
	s.mu.Unlock()

	if len(changed) > 0 {
		s.publish(changed...)
	}
	return err
}

func (s *OrderStore) saveOrders(ctx context.Context, next []models.Order) error {
	if err := kv.SaveCollection(ctx, s.kv, kv.KeyOrders, next); err != nil {
		s.logger.Error("persist orders", zap.Error(err))
		return err
	}
	s.orders = next
	return nil
}

func (s *OrderStore) saveAuditLogs(ctx context.Context, next []models.AuditLogEntry) error {
	if err := kv.SaveCollection(ctx, s.kv, kv.KeyAuditLogs, next); err != nil {
		s.logger.Error("persist audit log", zap.Error(err))
		return err
	}
	s.auditLogs = next
	return nil
}

func (s *OrderStore) indexOf(id string) int {
	for i := range s.orders {
		if s.orders[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *OrderStore) cloneOrders() []models.Order {
	out := make([]models.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// AddOrders appends a batch after the existing orders. Missing ids are
// generated, empty statuses default to pending. Duplicate order numbers are
// accepted; duplicate ids and non-positive quantities reject the whole batch.
func (s *OrderStore) AddOrders(ctx context.Context, batch []models.Order) ([]models.Order, error) {
	var added []models.Order

	err := s.update(func() ([]string, error) {
		seen := make(map[string]bool, len(s.orders)+len(batch))
		for _, o := range s.orders {
			seen[o.ID] = true
		}

		added = make([]models.Order, 0, len(batch))
		for i, o := range batch {
			if o.Quantity <= 0 {
				return nil, database.Invalid(fmt.Sprintf("orders[%d].quantity", i), "must be greater than zero")
			}
			if o.ID == "" {
				o.ID = uuid.NewString()
			}
			if seen[o.ID] {
				return nil, database.Invalid(fmt.Sprintf("orders[%d].id", i), "duplicate id "+o.ID)
			}
			seen[o.ID] = true
			if o.Status == "" {
				o.Status = models.OrderStatusPending
			}
			if !o.Status.Valid() {
				return nil, database.Invalid(fmt.Sprintf("orders[%d].status", i), "unknown status "+string(o.Status))
			}
			added = append(added, o)
		}
		if len(added) == 0 {
			return nil, nil
		}

		next := append(s.cloneOrders(), added...)
		if err := s.saveOrders(ctx, next); err != nil {
			return nil, fmt.Errorf("add orders: %w", err)
		}
		return []string{kv.KeyOrders}, nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (s *OrderStore) transition(ctx context.Context, id string, to models.OrderStatus,
	allowed func(from, to models.OrderStatus) bool, mutate func(*models.Order)) (StatusResult, error) {

	var result StatusResult
	err := s.update(func() ([]string, error) {
		i := s.indexOf(id)
		if i < 0 {
			return nil, fmt.Errorf("order %s: %w", id, database.ErrOrderNotFound)
		}

		from := s.orders[i].Status
		if !allowed(from, to) {
			s.logger.Debug("rejected status transition",
				zap.String("order_id", id),
				zap.String("from", string(from)),
				zap.String("to", string(to)))
			return nil, fmt.Errorf("order %s %s -> %s: %w", id, from, to, database.ErrInvalidTransition)
		}

		next := s.cloneOrders()
		next[i].Status = to
		if mutate != nil {
			mutate(&next[i])
		}
		if err := s.saveOrders(ctx, next); err != nil {
			return nil, fmt.Errorf("update order status: %w", err)
		}

		result = StatusResult{OrderID: id, From: from, To: to}
		return []string{kv.KeyOrders}, nil
	})
	return result, err
}

// UpdateOrderStatus applies a lifecycle transition. Unknown ids yield
// ErrOrderNotFound and transitions outside the lifecycle ErrInvalidTransition.
func (s *OrderStore) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (StatusResult, error) {
	return s.transition(ctx, id, status, models.OrderStatus.CanTransitionTo, nil)
}

// SyncOrderStatus records the outcome reported by the external order system,
// which moves pending orders straight to delivered or error.
func (s *OrderStore) SyncOrderStatus(ctx context.Context, id string, status models.OrderStatus) (StatusResult, error) {
	return s.transition(ctx, id, status, models.OrderStatus.CanSyncTo, nil)
}

// AssignPicking moves an order into picking and records the operator.
func (s *OrderStore) AssignPicking(ctx context.Context, id, operator string) (StatusResult, error) {
	at := s.now()
	return s.transition(ctx, id, models.OrderStatusPicking, models.OrderStatus.CanTransitionTo, func(o *models.Order) {
		o.PickingOperator = operator
		o.PickedAt = &at
	})
}

// ReleasePicking returns an order in picking to pending and clears its
// operator. It undoes an assignment whose picking list was never handed out.
func (s *OrderStore) ReleasePicking(ctx context.Context, id string) (StatusResult, error) {
	allowed := func(from, to models.OrderStatus) bool {
		return from == models.OrderStatusPicking && to == models.OrderStatusPending
	}
	return s.transition(ctx, id, models.OrderStatusPending, allowed, func(o *models.Order) {
		o.PickingOperator = ""
		o.PickedAt = nil
	})
}

// Dispatch hands a packed order to a carrier and logs the shipment.
func (s *OrderStore) Dispatch(ctx context.Context, id, carrier, trackingNumber, user string) (StatusResult, error) {
	carrier = strings.TrimSpace(carrier)
	trackingNumber = strings.TrimSpace(trackingNumber)
	if carrier == "" {
		return StatusResult{}, database.Invalid("carrier", "must not be empty")
	}
	if trackingNumber == "" {
		return StatusResult{}, database.Invalid("tracking_number", "must not be empty")
	}

	at := s.now()
	res, err := s.transition(ctx, id, models.OrderStatusDispatched, models.OrderStatus.CanTransitionTo, func(o *models.Order) {
		o.Carrier = carrier
		o.TrackingNumber = trackingNumber
		o.DispatchedAt = &at
	})
	if err != nil {
		return res, err
	}

	if user == "" {
		user = "System"
	}
	_, err = s.AddAuditLog(ctx, models.AuditLogEntry{
		OrderRef: id,
		Action:   "Order dispatched",
		User:     user,
		Duration: "0s",
		Status:   models.AuditSuccess,
		Details:  fmt.Sprintf("Carrier: %s, tracking: %s", carrier, trackingNumber),
	})
	return res, err
}

// AddAuditLog stamps the entry with an id and timestamp and prepends it, so
// AuditLogs returns the most recent entry first.
func (s *OrderStore) AddAuditLog(ctx context.Context, entry models.AuditLogEntry) (models.AuditLogEntry, error) {
	err := s.update(func() ([]string, error) {
		entry.ID = uuid.NewString()
		entry.Timestamp = s.now()

		next := make([]models.AuditLogEntry, 0, len(s.auditLogs)+1)
		next = append(next, entry)
		next = append(next, s.auditLogs...)
		if err := s.saveAuditLogs(ctx, next); err != nil {
			return nil, fmt.Errorf("add audit log: %w", err)
		}
		return []string{kv.KeyAuditLogs}, nil
	})
	return entry, err
}

// ClearOrders removes every order. The audit log is kept.
func (s *OrderStore) ClearOrders(ctx context.Context) error {
	return s.update(func() ([]string, error) {
		if err := s.saveOrders(ctx, []models.Order{}); err != nil {
			return nil, fmt.Errorf("clear orders: %w", err)
		}
		return []string{kv.KeyOrders}, nil
	})
}

func (s *OrderStore) GetOrderStats() models.OrderStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.OrderStats{Total: len(s.orders)}
	for _, o := range s.orders {
		switch o.Status {
		case models.OrderStatusDelivered:
			stats.Delivered++
		case models.OrderStatusPending:
			stats.Pending++
		case models.OrderStatusError:
			stats.Errored++
		case models.OrderStatusPicking:
			stats.InPicking++
		case models.OrderStatusPacked:
			stats.Packed++
		case models.OrderStatusDispatched:
			stats.Dispatched++
		case models.OrderStatusCancelled:
			stats.Cancelled++
		case models.OrderStatusReturned:
			stats.Returned++
		}
	}
	return stats
}

func (s *OrderStore) Orders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneOrders()
}

func (s *OrderStore) Order(id string) (models.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.orders[i], true
	}
	return models.Order{}, false
}

func (s *OrderStore) OrdersByStatus(status models.OrderStatus) []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Order
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

func (s *OrderStore) AuditLogs() []models.AuditLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.AuditLogEntry, len(s.auditLogs))
	copy(out, s.auditLogs)
	return out
}

func (s *OrderStore) AuditLogsByOrder(ref string) []models.AuditLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.AuditLogEntry
	for _, e := range s.auditLogs {
		if e.OrderRef == ref {
			out = append(out, e)
		}
	}
	return out
}
