package api

import (
	"net/http"

	"github.com/safar/warehouse-ops/internal/database"
	"github.com/safar/warehouse-ops/internal/models"
	"github.com/safar/warehouse-ops/internal/picking"
	"github.com/safar/warehouse-ops/internal/store"
)

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products := s.app.Inventory.Products()
		if sku := r.URL.Query().Get("sku"); sku != "" {
			p, ok := s.app.Inventory.ProductBySKU(sku)
			if !ok {
				s.respondErr(w, database.ErrProductNotFound)
				return
			}
			products = []models.Product{p}
		}
		page, pageSize := pageParams(r)
		s.respondJSON(w, http.StatusOK, store.Paginate(products, page, pageSize))

	case http.MethodPost:
		var p models.Product
		if err := decode(r, &p); err != nil {
			s.respondErr(w, err)
			return
		}
		created, err := s.app.Inventory.AddProduct(r.Context(), p)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, created)

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleProductByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		p, ok := s.app.Inventory.Product(id)
		if !ok {
			s.respondErr(w, database.ErrProductNotFound)
			return
		}
		s.respondJSON(w, http.StatusOK, p)

	case http.MethodPatch:
		var patch store.ProductPatch
		if err := decode(r, &patch); err != nil {
			s.respondErr(w, err)
			return
		}
		p, err := s.app.Inventory.UpdateProduct(ctx, id, patch)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, p)

	case http.MethodDelete:
		if err := s.app.Inventory.DeleteProduct(ctx, id); err != nil {
			s.respondErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleLowStock(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.app.Inventory.GetLowStockProducts())
}

func (s *Server) handleRestock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int    `json:"quantity"`
		User     string `json:"user"`
		Reason   string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}

	change, err := s.app.Inventory.Restock(r.Context(), r.PathValue("id"), req.Quantity, req.User, req.Reason)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, change)
}

func (s *Server) handleMovements(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		movements := s.app.Inventory.Movements()
		if pid := r.URL.Query().Get("product_id"); pid != "" {
			movements = s.app.Inventory.GetMovimientosByProduct(pid)
		}
		page, pageSize := pageParams(r)
		s.respondJSON(w, http.StatusOK, store.Paginate(movements, page, pageSize))

	case http.MethodPost:
		var m models.StockMovement
		if err := decode(r, &m); err != nil {
			s.respondErr(w, err)
			return
		}
		created, err := s.app.Inventory.AddMovimiento(r.Context(), m)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, created)

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleRequirements(w http.ResponseWriter, r *http.Request) {
	reqs := s.app.Reconciler.StockRequirements()
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(picking.PurchaseOrder(reqs)))
		return
	}
	s.respondJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleQuickRestock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SKU      string `json:"sku"`
		Quantity int    `json:"quantity"`
		User     string `json:"user"`
	}
	if err := decode(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}

	change, err := s.app.Reconciler.QuickRestock(r.Context(), req.SKU, req.Quantity, req.User)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, change)
}
