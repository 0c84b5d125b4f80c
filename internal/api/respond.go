package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/safar/warehouse-ops/internal/database"
	"github.com/safar/warehouse-ops/internal/importer"
	"github.com/safar/warehouse-ops/internal/workflow"
	"go.uber.org/zap"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode json response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps domain errors onto HTTP statuses.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrOrderNotFound), errors.Is(err, database.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrInvalidTransition),
		errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrSKUMismatch),
		errors.Is(err, database.ErrPickingIncomplete),
		errors.Is(err, database.ErrLineAlreadyResolved),
		errors.Is(err, workflow.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, importer.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return database.Invalid("body", "invalid request body")
	}
	return nil
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
