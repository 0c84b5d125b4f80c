package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	OrdersImported      prometheus.Counter
	ImportWarnings      prometheus.Counter
	ProductsAutoCreated prometheus.Counter

	PickingOrders prometheus.Counter
	PickLines     *prometheus.CounterVec
	UnitsPicked   prometheus.Counter
	OrdersPacked  *prometheus.CounterVec

	WorkflowSteps        *prometheus.CounterVec
	WorkflowStepDuration prometheus.Histogram
	WorkflowRunning      prometheus.Gauge

	CollectionWrites *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		OrdersImported: f.NewCounter(prometheus.CounterOpts{
			Name: "wms_orders_imported_total",
			Help: "Orders appended by file import.",
		}),
		ImportWarnings: f.NewCounter(prometheus.CounterOpts{
			Name: "wms_import_warnings_total",
			Help: "Inventory warnings raised while importing orders.",
		}),
		ProductsAutoCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "wms_products_auto_created_total",
			Help: "Products created for unknown SKUs during import.",
		}),
		PickingOrders: f.NewCounter(prometheus.CounterOpts{
			Name: "wms_picking_orders_total",
			Help: "Picking orders generated.",
		}),
		PickLines: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wms_pick_lines_total",
			Help: "Pick line scans by result.",
		}, []string{"result"}),
		UnitsPicked: f.NewCounter(prometheus.CounterOpts{
			Name: "wms_units_picked_total",
			Help: "Units taken from stock by picking.",
		}),
		OrdersPacked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wms_picking_completed_orders_total",
			Help: "Orders closed by picking completion, by outcome.",
		}, []string{"outcome"}),
		WorkflowSteps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wms_workflow_steps_total",
			Help: "Fulfilment workflow submissions by result.",
		}, []string{"result"}),
		WorkflowStepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wms_workflow_step_duration_seconds",
			Help:    "Time spent submitting one order to the external system.",
			Buckets: []float64{0.1, 0.5, 1, 2, 3, 5},
		}),
		WorkflowRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "wms_workflow_running",
			Help: "1 while a fulfilment run is in progress.",
		}),
		CollectionWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wms_collection_writes_total",
			Help: "Persisted collection rewrites by collection key.",
		}, []string{"collection"}),
	}
}

// OrDiscard returns m, or collectors registered on a private registry when m is nil.
func OrDiscard(m *Metrics) *Metrics {
	if m == nil {
		return New(prometheus.NewRegistry())
	}
	return m
}
