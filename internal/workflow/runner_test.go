package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/safar/warehouse-ops/internal/config"
	"github.com/safar/warehouse-ops/internal/kv"
	"github.com/safar/warehouse-ops/internal/metrics"
	"github.com/safar/warehouse-ops/internal/models"
	"github.com/safar/warehouse-ops/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrders(t *testing.T, n int) *store.OrderStore {
	t.Helper()
	s, err := store.NewOrderStore(context.Background(), kv.NewMemory(), nil)
	require.NoError(t, err)

	batch := make([]models.Order, 0, n)
	for i := 1; i <= n; i++ {
		batch = append(batch, models.Order{
			OrderNumber: fmt.Sprintf("P-%d", i),
			Customer:    "Ana",
			Quantity:    1,
			UnitPrice:   decimal.NewFromInt(1),
			Total:       decimal.NewFromInt(1),
		})
	}
	_, err = s.AddOrders(context.Background(), batch)
	require.NoError(t, err)
	return s
}

func testConfig() config.WorkflowConfig {
	return config.WorkflowConfig{Operator: "RPA Bot"}
}

func TestRunTenOrdersWithSimulatedSubmitter(t *testing.T) {
	orders := seedOrders(t, 10)
	r := NewRunner(orders, NewSimulatedSubmitter(0.5, 42), testConfig(), nil, nil)

	var progress []Progress
	sum, err := r.Run(context.Background(), func(p Progress) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Equal(t, 10, sum.Processed)
	assert.Equal(t, 10, sum.Succeeded+sum.Failed)
	assert.False(t, sum.Cancelled)
	require.Len(t, progress, 10)
	assert.Equal(t, 10, progress[9].Done)
	assert.Equal(t, 10, progress[9].Total)

	for _, o := range orders.Orders() {
		assert.Contains(t, []models.OrderStatus{models.OrderStatusDelivered, models.OrderStatusError}, o.Status)
		assert.Len(t, orders.AuditLogsByOrder(o.ID), 1)
	}
	assert.Len(t, orders.AuditLogs(), 10)
}

func TestRunRecordsScriptedOutcomes(t *testing.T) {
	orders := seedOrders(t, 4)
	sub := &StaticSubmitter{Duration: 1500 * time.Millisecond, Failures: map[string]int{"P-2": -1}}
	m := metrics.New(prometheus.NewRegistry())
	r := NewRunner(orders, sub, testConfig(), nil, m)

	sum, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 4, Succeeded: 3, Failed: 1}, sum)
	assert.Equal(t, []string{"P-1", "P-2", "P-3", "P-4"}, sub.Calls())

	for _, o := range orders.Orders() {
		logs := orders.AuditLogsByOrder(o.ID)
		require.Len(t, logs, 1)
		assert.Equal(t, "RPA Bot", logs[0].User)
		assert.Equal(t, "1.5s", logs[0].Duration)

		if o.OrderNumber == "P-2" {
			assert.Equal(t, models.OrderStatusError, o.Status)
			assert.Equal(t, models.AuditError, logs[0].Status)
			continue
		}
		assert.Equal(t, models.OrderStatusDelivered, o.Status)
		assert.Equal(t, models.AuditSuccess, logs[0].Status)
		assert.Equal(t, "Processed in SAG", logs[0].Action)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.WorkflowSteps.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkflowSteps.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.WorkflowRunning))
}

func TestRunRetriesLogRetryEntries(t *testing.T) {
	orders := seedOrders(t, 2)
	sub := &StaticSubmitter{Failures: map[string]int{"P-1": 1, "P-2": -1}}
	cfg := testConfig()
	cfg.MaxRetries = 2
	r := NewRunner(orders, sub, cfg, nil, nil)

	sum, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)

	all := orders.Orders()
	first := orders.AuditLogsByOrder(all[0].ID)
	require.Len(t, first, 2)
	assert.Equal(t, models.AuditSuccess, first[0].Status)
	assert.Equal(t, models.AuditRetry, first[1].Status)

	second := orders.AuditLogsByOrder(all[1].ID)
	require.Len(t, second, 3)
	assert.Equal(t, models.AuditError, second[0].Status)
	assert.Equal(t, models.AuditRetry, second[1].Status)
	assert.Equal(t, models.AuditRetry, second[2].Status)

	assert.Len(t, sub.Calls(), 5)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	orders := seedOrders(t, 10)
	sub := &StaticSubmitter{}
	r := NewRunner(orders, sub, testConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	steps := 0
	r.wait = func(ctx context.Context, _ time.Duration) error {
		steps++
		if steps == 4 {
			cancel()
		}
		return ctx.Err()
	}

	sum, err := r.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, sum.Cancelled)
	assert.Equal(t, 3, sum.Processed)

	stats := orders.GetOrderStats()
	assert.Equal(t, 3, stats.Delivered)
	assert.Equal(t, 7, stats.Pending)
	assert.Len(t, orders.AuditLogs(), 3)
	assert.False(t, r.Running())
}

func TestRunSkipsOrdersThatLeftPending(t *testing.T) {
	ctx := context.Background()
	orders := seedOrders(t, 3)
	second := orders.Orders()[1]

	r := NewRunner(orders, &StaticSubmitter{}, testConfig(), nil, nil)
	r.wait = func(ctx context.Context, _ time.Duration) error {
		_, _ = orders.UpdateOrderStatus(ctx, second.ID, models.OrderStatusCancelled)
		return nil
	}

	sum, err := r.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 1, sum.Skipped)

	got, _ := orders.Order(second.ID)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	assert.Empty(t, orders.AuditLogsByOrder(second.ID))
}

type blockingSubmitter struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSubmitter) Submit(ctx context.Context, o models.Order) (time.Duration, error) {
	b.started <- struct{}{}
	<-b.release
	return 0, nil
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	orders := seedOrders(t, 1)
	sub := &blockingSubmitter{started: make(chan struct{}), release: make(chan struct{})}
	r := NewRunner(orders, sub, testConfig(), nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), nil)
		done <- err
	}()

	<-sub.started
	assert.True(t, r.Running())
	_, err := r.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(sub.release)
	require.NoError(t, <-done)
}

func TestRunWithNoPendingOrders(t *testing.T) {
	orders := seedOrders(t, 0)
	r := NewRunner(orders, &StaticSubmitter{}, testConfig(), nil, nil)

	sum, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
}

func TestSimulatedSubmitterIsDeterministicForSeed(t *testing.T) {
	ctx := context.Background()
	a := NewSimulatedSubmitter(0.3, 7)
	b := NewSimulatedSubmitter(0.3, 7)

	for i := 0; i < 20; i++ {
		o := models.Order{OrderNumber: fmt.Sprintf("P-%d", i)}
		da, ea := a.Submit(ctx, o)
		db, eb := b.Submit(ctx, o)
		assert.Equal(t, da, db)
		assert.Equal(t, ea == nil, eb == nil)
		assert.GreaterOrEqual(t, da, time.Second)
		assert.LessOrEqual(t, da, 3*time.Second)
	}

	never := NewSimulatedSubmitter(0, 1)
	_, err := never.Submit(ctx, models.Order{})
	assert.NoError(t, err)

	always := NewSimulatedSubmitter(1, 1)
	_, err = always.Submit(ctx, models.Order{})
	assert.ErrorIs(t, err, ErrSubmissionFailed)
}
