package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/safar/warehouse-ops/internal/database"
	"github.com/safar/warehouse-ops/internal/importer"
	"github.com/safar/warehouse-ops/internal/report"
	"go.uber.org/zap"
)

const maxUploadSize = 32 << 20

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.respondErr(w, database.Invalid("file", "expected a multipart upload"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondErr(w, database.Invalid("file", "missing file field"))
		return
	}
	defer file.Close()

	rows, err := importer.ParseFile(header.Filename, file)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	user := r.FormValue("user")
	if user == "" {
		user = "System"
	}
	res, err := s.app.Importer.Import(r.Context(), rows, user)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	table, err := report.Build(report.Kind(r.PathValue("kind")), s.app.Dataset())
	if err != nil {
		s.respondErr(w, database.Invalid("kind", err.Error()))
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	name := fmt.Sprintf("%s_%s.%s", table.Name, time.Now().Format("2006-01-02"), format)

	var write func() error
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		write = func() error { return report.WriteCSV(w, table) }
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		write = func() error { return report.WriteXLSX(w, table) }
	default:
		s.respondErr(w, database.Invalid("format", "use csv or xlsx"))
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := write(); err != nil {
		s.logger.Error("write export", zap.String("kind", table.Name), zap.Error(err))
	}
}

func (s *Server) handleSAGExport(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("SAG_Export_%s.json", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := report.WriteSAGJSON(w, s.app.Orders.Orders()); err != nil {
		s.logger.Error("write sag export", zap.Error(err))
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.app.Summary())
}
