// Package app assembles the stores and services shared by the API server and
// the command line tool.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/safar/warehouse-ops/internal/config"
	"github.com/safar/warehouse-ops/internal/importer"
	"github.com/safar/warehouse-ops/internal/kv"
	"github.com/safar/warehouse-ops/internal/logging"
	"github.com/safar/warehouse-ops/internal/metrics"
	"github.com/safar/warehouse-ops/internal/picking"
	"github.com/safar/warehouse-ops/internal/report"
	"github.com/safar/warehouse-ops/internal/store"
	"github.com/safar/warehouse-ops/internal/workflow"
	"go.uber.org/zap"
)

type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Orders     *store.OrderStore
	Inventory  *store.InventoryStore
	Reconciler *picking.Reconciler
	Importer   *importer.Service
	Workflow   *workflow.Runner

	closer io.Closer
	unsubs []func()
}

// Open connects the configured backend and loads every collection.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*App, error) {
	logger = logging.OrNop(logger)
	m = metrics.OrDiscard(m)

	backend, closer, err := kv.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	a, err := New(ctx, cfg, backend, logger, m)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	a.closer = closer

	logger.Info("storage opened", zap.String("backend", cfg.Storage.Backend))
	return a, nil
}

// New builds the services over an already opened backend.
func New(ctx context.Context, cfg *config.Config, backend kv.Store, logger *zap.Logger, m *metrics.Metrics) (*App, error) {
	logger = logging.OrNop(logger)
	m = metrics.OrDiscard(m)

	orders, err := store.NewOrderStore(ctx, backend, logger.Named("orders"))
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	inventory, err := store.NewInventoryStore(ctx, backend, logger.Named("inventory"))
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}

	submitter := workflow.NewSimulatedSubmitter(cfg.Workflow.FailureRate, cfg.Workflow.Seed)

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    m,
		Orders:     orders,
		Inventory:  inventory,
		Reconciler: picking.NewReconciler(orders, inventory, logger.Named("picking"), m),
		Importer:   importer.NewService(orders, inventory, logger.Named("import"), m),
		Workflow:   workflow.NewRunner(orders, submitter, cfg.Workflow, logger.Named("workflow"), m),
	}

	countWrites := func(e store.Event) {
		m.CollectionWrites.WithLabelValues(e.Collection).Inc()
	}
	a.unsubs = append(a.unsubs, orders.Subscribe(countWrites), inventory.Subscribe(countWrites))

	return a, nil
}

// Dataset snapshots every collection for reporting.
func (a *App) Dataset() report.Dataset {
	return report.Dataset{
		Orders:    a.Orders.Orders(),
		AuditLogs: a.Orders.AuditLogs(),
		Products:  a.Inventory.Products(),
		Movements: a.Inventory.Movements(),
	}
}

func (a *App) Summary() report.Summary {
	return report.Summarize(a.Dataset(), time.Now())
}

func (a *App) Close() error {
	for _, unsub := range a.unsubs {
		unsub()
	}
	_ = a.Logger.Sync()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
