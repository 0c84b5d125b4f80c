package api

import (
	"net/http"

	"github.com/safar/warehouse-ops/internal/database"
	"github.com/safar/warehouse-ops/internal/models"
	"github.com/safar/warehouse-ops/internal/store"
)

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		orders := s.app.Orders.Orders()
		if status := r.URL.Query().Get("status"); status != "" {
			orders = s.app.Orders.OrdersByStatus(models.OrderStatus(status))
		}
		page, pageSize := pageParams(r)
		s.respondJSON(w, http.StatusOK, store.Paginate(orders, page, pageSize))

	case http.MethodPost:
		var req struct {
			Orders []models.Order `json:"orders"`
		}
		if err := decode(r, &req); err != nil {
			s.respondErr(w, err)
			return
		}
		added, err := s.app.Orders.AddOrders(ctx, req.Orders)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, added)

	case http.MethodDelete:
		if err := s.app.Orders.ClearOrders(ctx); err != nil {
			s.respondErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleOrderByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	order, ok := s.app.Orders.Order(r.PathValue("id"))
	if !ok {
		s.respondErr(w, database.ErrOrderNotFound)
		return
	}
	s.respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	if !req.Status.Valid() {
		s.respondErr(w, database.Invalid("status", "unknown status "+string(req.Status)))
		return
	}

	res, err := s.app.Orders.UpdateOrderStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Carrier        string `json:"carrier"`
		TrackingNumber string `json:"tracking_number"`
		User           string `json:"user"`
	}
	if err := decode(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}

	res, err := s.app.Orders.Dispatch(r.Context(), r.PathValue("id"), req.Carrier, req.TrackingNumber, req.User)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleOrderAudit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.app.Orders.Order(id); !ok {
		s.respondErr(w, database.ErrOrderNotFound)
		return
	}
	s.respondJSON(w, http.StatusOK, s.app.Orders.AuditLogsByOrder(id))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.app.Orders.GetOrderStats())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	s.respondJSON(w, http.StatusOK, store.Paginate(s.app.Orders.AuditLogs(), page, pageSize))
}
