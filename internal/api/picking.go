package api

import (
	"errors"
	"net/http"
	"sync"

	"github.com/safar/warehouse-ops/internal/picking"
	"go.uber.org/zap"
)

// pickingSessions keeps the walking lists handed out to operators. Picking
// orders are not persisted; a restart drops them and the orders stay in
// picking until they are regenerated or moved by hand.
type pickingSessions struct {
	mu       sync.RWMutex
	sessions map[string]*pickingSession
}

type pickingSession struct {
	mu sync.Mutex
	po *picking.PickingOrder
}

func newPickingSessions() *pickingSessions {
	return &pickingSessions{sessions: make(map[string]*pickingSession)}
}

func (p *pickingSessions) add(po *picking.PickingOrder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[po.ID] = &pickingSession{po: po}
}

func (p *pickingSessions) get(id string) (*pickingSession, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sess, ok := p.sessions[id]
	return sess, ok
}

var errPickingNotFound = errors.New("picking order not found")

func (s *Server) handleGeneratePicking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderIDs []string `json:"order_ids"`
		Operator string   `json:"operator"`
	}
	if err := decode(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}

	po, err := s.app.Reconciler.GeneratePickingOrder(r.Context(), req.OrderIDs, req.Operator)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.picking.add(po)
	s.respondJSON(w, http.StatusCreated, po)
}

func (s *Server) handlePickingByID(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.picking.get(r.PathValue("id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, errPickingNotFound.Error())
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.respondJSON(w, http.StatusOK, sess.po)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.picking.get(r.PathValue("id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, errPickingNotFound.Error())
		return
	}

	var req struct {
		Line int    `json:"line"`
		Code string `json:"code"`
	}
	if err := decode(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	res, err := s.app.Reconciler.ScanProduct(r.Context(), sess.po, req.Line, req.Code)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleCompletePicking(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.picking.get(r.PathValue("id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, errPickingNotFound.Error())
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	wasCompleted := sess.po.Completed
	done, err := s.app.Reconciler.CompletePickingOrder(r.Context(), sess.po)
	if err != nil && (wasCompleted || !sess.po.Completed) {
		s.respondErr(w, err)
		return
	}
	if err != nil {
		s.logger.Warn("picking completed with failures",
			zap.String("picking_id", sess.po.ID),
			zap.Strings("failed", done.Failed),
			zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, done)
}
