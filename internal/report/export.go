package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/safar/warehouse-ops/internal/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const timeLayout = "2006-01-02 15:04:05"

func csvCell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format(timeLayout)
	case decimal.Decimal:
		return x.StringFixed(2)
	default:
		return fmt.Sprint(x)
	}
}

func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(t.Headers))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = csvCell(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func xlsxCell(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64()
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format(timeLayout)
	default:
		return v
	}
}

// WriteXLSX writes t as the only sheet of a new workbook.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Name
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for r, row := range t.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = xlsxCell(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SAGRecord is the handoff format for packed orders.
type SAGRecord struct {
	OrderNumber    string          `json:"order_number"`
	Date           string          `json:"order_date"`
	Customer       string          `json:"customer"`
	Total          decimal.Decimal `json:"total"`
	Status         string          `json:"status"`
	Carrier        string          `json:"carrier"`
	TrackingNumber string          `json:"tracking_number"`
}

// WriteSAGJSON writes the packed orders as an indented JSON array.
func WriteSAGJSON(w io.Writer, orders []models.Order) error {
	records := make([]SAGRecord, 0)
	for _, o := range orders {
		if o.Status != models.OrderStatusPacked {
			continue
		}
		records = append(records, SAGRecord{
			OrderNumber:    o.OrderNumber,
			Date:           o.Date,
			Customer:       o.Customer,
			Total:          o.Total,
			Status:         string(o.Status),
			Carrier:        o.Carrier,
			TrackingNumber: o.TrackingNumber,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
