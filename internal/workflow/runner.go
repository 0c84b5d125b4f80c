// Package workflow pushes pending orders to the external order system one
// at a time and records each outcome on the order and in the audit log.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/safar/warehouse-ops/internal/config"
	"github.com/safar/warehouse-ops/internal/database"
	"github.com/safar/warehouse-ops/internal/logging"
	"github.com/safar/warehouse-ops/internal/metrics"
	"github.com/safar/warehouse-ops/internal/models"
	"github.com/safar/warehouse-ops/internal/store"
	"go.uber.org/zap"
)

var ErrAlreadyRunning = errors.New("workflow already running")

type Orders interface {
	Order(id string) (models.Order, bool)
	OrdersByStatus(status models.OrderStatus) []models.Order
	SyncOrderStatus(ctx context.Context, id string, status models.OrderStatus) (store.StatusResult, error)
	AddAuditLog(ctx context.Context, entry models.AuditLogEntry) (models.AuditLogEntry, error)
}

// Progress is reported after each order.
type Progress struct {
	Done    int                `json:"done"`
	Total   int                `json:"total"`
	OrderID string             `json:"order_id"`
	Outcome models.OrderStatus `json:"outcome,omitempty"`
}

type Summary struct {
	Processed int  `json:"processed"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Cancelled bool `json:"cancelled"`
}

type Runner struct {
	orders    Orders
	submitter Submitter
	cfg       config.WorkflowConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
	running   atomic.Bool
	wait      func(ctx context.Context, d time.Duration) error
}

func NewRunner(orders Orders, submitter Submitter, cfg config.WorkflowConfig, logger *zap.Logger, m *metrics.Metrics) *Runner {
	if cfg.Operator == "" {
		cfg.Operator = "RPA Bot"
	}
	return &Runner{
		orders:    orders,
		submitter: submitter,
		cfg:       cfg,
		logger:    logging.OrNop(logger),
		metrics:   metrics.OrDiscard(m),
		wait:      sleep,
	}
}

func (r *Runner) Running() bool {
	return r.running.Load()
}

// Run processes the orders that are pending when it starts, waiting the
// configured step delay before each one. Cancelling ctx stops the run before
// the next order; the orders already processed keep their outcome.
func (r *Runner) Run(ctx context.Context, onProgress func(Progress)) (Summary, error) {
	var sum Summary
	if !r.running.CompareAndSwap(false, true) {
		return sum, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	r.metrics.WorkflowRunning.Set(1)
	defer r.metrics.WorkflowRunning.Set(0)

	pending := r.orders.OrdersByStatus(models.OrderStatusPending)
	r.logger.Info("workflow started", zap.Int("orders", len(pending)))

	for i, o := range pending {
		if err := r.wait(ctx, r.cfg.StepDelay); err != nil {
			sum.Cancelled = true
			r.logger.Info("workflow cancelled",
				zap.Int("processed", sum.Processed),
				zap.Int("remaining", len(pending)-i))
			return sum, err
		}

		outcome, err := r.process(ctx, o)
		switch {
		case errors.Is(err, errSkipped):
			sum.Skipped++
		case err != nil && ctx.Err() != nil:
			sum.Cancelled = true
			return sum, ctx.Err()
		case err != nil:
			return sum, err
		default:
			sum.Processed++
			if outcome == models.OrderStatusDelivered {
				sum.Succeeded++
			} else {
				sum.Failed++
			}
		}

		if onProgress != nil {
			onProgress(Progress{Done: i + 1, Total: len(pending), OrderID: o.ID, Outcome: outcome})
		}
	}

	r.logger.Info("workflow finished",
		zap.Int("processed", sum.Processed),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped))
	return sum, nil
}

var errSkipped = errors.New("order no longer pending")

func (r *Runner) process(ctx context.Context, o models.Order) (models.OrderStatus, error) {
	if cur, ok := r.orders.Order(o.ID); !ok || cur.Status != models.OrderStatusPending {
		r.logger.Debug("order left pending before submission", zap.String("order_id", o.ID))
		return "", errSkipped
	}

	var (
		took time.Duration
		err  error
	)
	for attempt := 0; ; attempt++ {
		took, err = r.submitter.Submit(ctx, o)
		r.metrics.WorkflowStepDuration.Observe(took.Seconds())
		if err == nil || attempt >= r.cfg.MaxRetries || ctx.Err() != nil {
			break
		}

		r.metrics.WorkflowSteps.WithLabelValues("retry").Inc()
		r.logger.Warn("submission failed, retrying",
			zap.String("order_id", o.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if aerr := r.audit(ctx, o, models.AuditRetry, "Retrying submission", took,
			fmt.Sprintf("Attempt %d for order %s failed: %v", attempt+1, o.OrderNumber, err)); aerr != nil {
			return "", aerr
		}
		if werr := r.wait(ctx, r.cfg.StepDelay); werr != nil {
			err = werr
			break
		}
	}

	if cerr := ctx.Err(); cerr != nil {
		return "", cerr
	}

	outcome := models.OrderStatusDelivered
	if err != nil {
		outcome = models.OrderStatusError
	}
	if _, serr := r.orders.SyncOrderStatus(ctx, o.ID, outcome); serr != nil {
		if errors.Is(serr, database.ErrInvalidTransition) || errors.Is(serr, database.ErrOrderNotFound) {
			r.logger.Debug("order changed during submission", zap.String("order_id", o.ID), zap.Error(serr))
			return "", errSkipped
		}
		return "", fmt.Errorf("record outcome for %s: %w", o.ID, serr)
	}

	if err != nil {
		r.metrics.WorkflowSteps.WithLabelValues("error").Inc()
		r.logger.Warn("order submission failed", zap.String("order_id", o.ID), zap.Error(err))
		return outcome, r.audit(ctx, o, models.AuditError, "Processing error", took,
			fmt.Sprintf("Error processing order %s", o.OrderNumber))
	}

	r.metrics.WorkflowSteps.WithLabelValues("success").Inc()
	r.logger.Info("order submitted", zap.String("order_id", o.ID), zap.Duration("took", took))
	return outcome, r.audit(ctx, o, models.AuditSuccess, "Processed in SAG", took,
		fmt.Sprintf("Order %s registered in SAG", o.OrderNumber))
}

func (r *Runner) audit(ctx context.Context, o models.Order, status models.AuditStatus, action string, took time.Duration, details string) error {
	_, err := r.orders.AddAuditLog(ctx, models.AuditLogEntry{
		OrderRef: o.ID,
		Action:   action,
		User:     r.cfg.Operator,
		Duration: fmt.Sprintf("%.1fs", took.Seconds()),
		Status:   status,
		Details:  details,
	})
	if err != nil {
		return fmt.Errorf("audit %s: %w", o.ID, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
