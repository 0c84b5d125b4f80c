// Package api exposes the warehouse services over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safar/warehouse-ops/internal/app"
	"go.uber.org/zap"
)

type Server struct {
	app      *app.App
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	picking  *pickingSessions
	runs     *workflowRuns
}

// New builds the server. Workflow runs started over HTTP outlive their
// request and stop when ctx is cancelled.
func New(ctx context.Context, a *app.App, gatherer prometheus.Gatherer) *Server {
	return &Server{
		app:      a,
		logger:   a.Logger.Named("api"),
		gatherer: gatherer,
		picking:  newPickingSessions(),
		runs:     newWorkflowRuns(ctx),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/orders", s.handleOrders)
	mux.HandleFunc("/orders/{id}", s.handleOrderByID)
	mux.HandleFunc("POST /orders/{id}/status", s.handleOrderStatus)
	mux.HandleFunc("POST /orders/{id}/dispatch", s.handleDispatch)
	mux.HandleFunc("GET /orders/{id}/audit", s.handleOrderAudit)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /audit", s.handleAudit)

	mux.HandleFunc("/products", s.handleProducts)
	mux.HandleFunc("GET /products/low-stock", s.handleLowStock)
	mux.HandleFunc("/products/{id}", s.handleProductByID)
	mux.HandleFunc("POST /products/{id}/restock", s.handleRestock)
	mux.HandleFunc("/movements", s.handleMovements)
	mux.HandleFunc("GET /stock/requirements", s.handleRequirements)
	mux.HandleFunc("POST /stock/restock", s.handleQuickRestock)

	mux.HandleFunc("POST /picking", s.handleGeneratePicking)
	mux.HandleFunc("GET /picking/{id}", s.handlePickingByID)
	mux.HandleFunc("POST /picking/{id}/scan", s.handleScan)
	mux.HandleFunc("POST /picking/{id}/complete", s.handleCompletePicking)

	mux.HandleFunc("/workflow", s.handleWorkflow)

	mux.HandleFunc("POST /import", s.handleImport)
	mux.HandleFunc("GET /export/sag", s.handleSAGExport)
	mux.HandleFunc("GET /export/{kind}", s.handleExport)
	mux.HandleFunc("GET /summary", s.handleSummary)

	return s.logRequests(mux)
}

// Shutdown cancels a running workflow and waits for it to stop.
func (s *Server) Shutdown() {
	s.runs.stop()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}
