package importfile

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Parser reads product, stock, and sales import files in .xlsx or .csv form.
// The first row of every file is a header and is never treated as data.
type Parser struct{}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{}
}

// CountRecords cheaply counts the data rows in a file without validating any
// cell. Used for the pre-admission record count; the full parse may still
// reject individual rows later.
// Parameters:
//   - fileName: original file name, used to pick the format by extension.
//   - data: raw file bytes.
// Returns:
//   - int: number of non-blank data rows (header excluded).
//   - error: non-nil if the file cannot be read at all.
func (p *Parser) CountRecords(fileName string, data []byte) (int, error) {
	rows, err := p.rows(fileName, data)
	if err != nil {
		return 0, err
	}
	count := 0
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if !isBlank(row) {
			count++
		}
	}
	return count, nil
}

// rows loads the raw cell grid from a .xlsx or .csv file.
func (p *Parser) rows(fileName string, data []byte) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return p.excelRows(data)
	case ".csv", "":
		return p.csvRows(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(fileName))
	}
}

func (p *Parser) excelRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func (p *Parser) csvRows(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return rows, nil
}

// ParseProducts fully parses a products import file.
// Expected columns: sku, name, category, barcode, cost_price, sale_price, min_stock.
func (p *Parser) ParseProducts(fileName string, data []byte) (*ParseResult[ProductRecord], error) {
	rows, err := p.rows(fileName, data)
	if err != nil {
		return nil, err
	}

	result := &ParseResult[ProductRecord]{}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		rowNum := i + 1
		if isBlank(row) {
			result.SkippedCount++
			continue
		}
		result.TotalRecords++

		rec := ProductRecord{Row: rowNum}
		rec.SKU = cell(row, 0)
		rec.Name = cell(row, 1)
		rec.Category = cell(row, 2)
		rec.Barcode = cell(row, 3)

		if rec.SKU == "" {
			result.fail(rowNum, "missing SKU")
			continue
		}
		if rec.Name == "" {
			result.fail(rowNum, "missing product name")
			continue
		}
		if rec.CostPrice, err = parseFloat(cell(row, 4)); err != nil {
			result.fail(rowNum, "invalid cost price %q", cell(row, 4))
			continue
		}
		if rec.SalePrice, err = parseFloat(cell(row, 5)); err != nil {
			result.fail(rowNum, "invalid sale price %q", cell(row, 5))
			continue
		}
		if rec.MinStock, err = parseInt(cell(row, 6)); err != nil {
			result.fail(rowNum, "invalid min stock %q", cell(row, 6))
			continue
		}

		result.SuccessCount++
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// ParseStock fully parses an initial-stock import file.
// Expected columns: sku, quantity.
func (p *Parser) ParseStock(fileName string, data []byte) (*ParseResult[StockRecord], error) {
	rows, err := p.rows(fileName, data)
	if err != nil {
		return nil, err
	}

	result := &ParseResult[StockRecord]{}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		rowNum := i + 1
		if isBlank(row) {
			result.SkippedCount++
			continue
		}
		result.TotalRecords++

		rec := StockRecord{Row: rowNum, SKU: cell(row, 0)}
		if rec.SKU == "" {
			result.fail(rowNum, "missing SKU")
			continue
		}
		if rec.Quantity, err = parseInt(cell(row, 1)); err != nil {
			result.fail(rowNum, "invalid quantity %q", cell(row, 1))
			continue
		}
		if rec.Quantity < 0 {
			result.fail(rowNum, "negative quantity %d", rec.Quantity)
			continue
		}

		result.SuccessCount++
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// ParseSales fully parses a sales import file.
// Expected columns: sku, quantity, unit_price, sold_at, reference.
func (p *Parser) ParseSales(fileName string, data []byte) (*ParseResult[SaleRecord], error) {
	rows, err := p.rows(fileName, data)
	if err != nil {
		return nil, err
	}

	result := &ParseResult[SaleRecord]{}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		rowNum := i + 1
		if isBlank(row) {
			result.SkippedCount++
			continue
		}
		result.TotalRecords++

		rec := SaleRecord{Row: rowNum, SKU: cell(row, 0)}
		if rec.SKU == "" {
			result.fail(rowNum, "missing SKU")
			continue
		}
		if rec.Quantity, err = parseInt(cell(row, 1)); err != nil {
			result.fail(rowNum, "invalid quantity %q", cell(row, 1))
			continue
		}
		if rec.Quantity <= 0 {
			result.fail(rowNum, "quantity must be positive, got %d", rec.Quantity)
			continue
		}
		if rec.UnitPrice, err = parseFloat(cell(row, 2)); err != nil {
			result.fail(rowNum, "invalid unit price %q", cell(row, 2))
			continue
		}
		rec.SoldAt = cell(row, 3)
		rec.Reference = cell(row, 4)

		result.SuccessCount++
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// fail records a row-level parse error.
func (r *ParseResult[T]) fail(rowNum int, format string, args ...interface{}) {
	r.ErrorCount++
	r.Errors = append(r.Errors, fmt.Sprintf("row %d: %s", rowNum, fmt.Sprintf(format, args...)))
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
