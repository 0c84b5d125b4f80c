// Package importer turns order spreadsheets into orders and applies their
// demand to inventory.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/safar/warehouse-ops/internal/database"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	DefaultCustomer = "Unknown customer"
	DefaultProduct  = "Unnamed product"
)

// Row is one parsed order line. Problems lists values that could not be read
// and were replaced by defaults.
type Row struct {
	Line        int
	OrderNumber string
	Date        string
	Customer    string
	Email       string
	Address     string
	Phone       string
	SKU         string
	Product     string
	Quantity    int
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
	Problems    []string
}

type field int

const (
	fieldOrderNumber field = iota
	fieldDate
	fieldCustomer
	fieldEmail
	fieldAddress
	fieldPhone
	fieldSKU
	fieldProduct
	fieldQuantity
	fieldUnitPrice
	fieldTotal
)

// Header names are compared after normalizeHeader.
var headerAliases = map[string]field{
	"id_pedido":        fieldOrderNumber,
	"order_id":         fieldOrderNumber,
	"order_number":     fieldOrderNumber,
	"numero_orden":     fieldOrderNumber,
	"fecha_pedido":     fieldDate,
	"order_date":       fieldDate,
	"date":             fieldDate,
	"nombre_cliente":   fieldCustomer,
	"customer":         fieldCustomer,
	"customer_name":    fieldCustomer,
	"correo_cliente":   fieldEmail,
	"email":            fieldEmail,
	"customer_email":   fieldEmail,
	"direccion_envio":  fieldAddress,
	"address":          fieldAddress,
	"shipping_address": fieldAddress,
	"telefono":         fieldPhone,
	"phone":            fieldPhone,
	"sku":              fieldSKU,
	"codigo":           fieldSKU,
	"nombre_producto":  fieldProduct,
	"product":          fieldProduct,
	"product_name":     fieldProduct,
	"cantidad":         fieldQuantity,
	"quantity":         fieldQuantity,
	"qty":              fieldQuantity,
	"precio_unitario":  fieldUnitPrice,
	"unit_price":       fieldUnitPrice,
	"price":            fieldUnitPrice,
	"valor_total":      fieldTotal,
	"total":            fieldTotal,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

// ParseCSV reads a comma separated file whose first record is the header.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return parseRecords(records, time.Now())
}

// ParseXLSX reads the first sheet of a workbook whose first row is the header.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, database.Invalid("file", "workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return parseRecords(records, time.Now())
}

var ErrUnsupportedFormat = errors.New("unsupported file format")

// ParseFile picks the parser from the file name extension.
func ParseFile(name string, r io.Reader) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ParseCSV(r)
	case ".xlsx", ".xlsm":
		return ParseXLSX(r)
	default:
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
	}
}

func parseRecords(records [][]string, now time.Time) ([]Row, error) {
	if len(records) == 0 {
		return nil, database.Invalid("file", "file is empty")
	}

	columns := make(map[field]int)
	for i, h := range records[0] {
		if f, ok := headerAliases[normalizeHeader(h)]; ok {
			if _, dup := columns[f]; !dup {
				columns[f] = i
			}
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for n, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		rows = append(rows, parseRow(columns, rec, len(rows), n+2, now))
	}
	if len(rows) == 0 {
		return nil, database.Invalid("file", "file has no order rows")
	}
	return rows, nil
}

func parseRow(columns map[field]int, rec []string, index, line int, now time.Time) Row {
	get := func(f field) string {
		i, ok := columns[f]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	or := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}

	row := Row{
		Line:        line,
		OrderNumber: or(get(fieldOrderNumber), fmt.Sprintf("ORD-%d-%d", now.UnixNano(), index)),
		Date:        or(get(fieldDate), now.Format("2006-01-02")),
		Customer:    or(get(fieldCustomer), DefaultCustomer),
		Email:       get(fieldEmail),
		Address:     get(fieldAddress),
		Phone:       get(fieldPhone),
		SKU:         get(fieldSKU),
		Product:     or(get(fieldProduct), DefaultProduct),
		Quantity:    1,
	}

	if v := get(fieldQuantity); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			if d, derr := decimal.NewFromString(v); derr == nil && d.IsInteger() {
				q, err = int(d.IntPart()), nil
			}
		}
		switch {
		case err != nil:
			row.Problems = append(row.Problems, fmt.Sprintf("quantity %q is not a number, using 1", v))
		case q <= 0:
			row.Problems = append(row.Problems, fmt.Sprintf("quantity %d is not positive, using 1", q))
		default:
			row.Quantity = q
		}
	}
	row.UnitPrice = parseMoney(get(fieldUnitPrice), "unit price", &row)
	row.Total = parseMoney(get(fieldTotal), "total", &row)

	return row
}

func parseMoney(v, name string, row *Row) decimal.Decimal {
	if v == "" {
		return decimal.Zero
	}
	clean := strings.TrimSpace(strings.TrimPrefix(v, "$"))
	d, err := decimal.NewFromString(clean)
	if err != nil {
		row.Problems = append(row.Problems, fmt.Sprintf("%s %q is not a number, using 0", name, v))
		return decimal.Zero
	}
	return d
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
