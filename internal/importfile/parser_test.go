package importfile

import (
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func csvData(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func xlsxData(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName failed: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cellRef, &row); err != nil {
			t.Fatalf("SetSheetRow failed: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer failed: %v", err)
	}
	return buf.Bytes()
}

// TestCountRecords verifies the cheap pre-admission count: header excluded,
// blank rows excluded, malformed rows still counted.
func TestCountRecords(t *testing.T) {
	p := NewParser()

	testCases := []struct {
		name     string
		fileName string
		data     []byte
		want     int
	}{
		{
			name:     "header only",
			fileName: "p.csv",
			data:     csvData("sku,name"),
			want:     0,
		},
		{
			name:     "three rows",
			fileName: "p.csv",
			data:     csvData("sku,name", "A,x", "B,y", "C,z"),
			want:     3,
		},
		{
			name:     "blank row skipped",
			fileName: "p.csv",
			data:     csvData("sku,name", "A,x", ",", "B,y"),
			want:     2,
		},
		{
			name:     "malformed row still counted",
			fileName: "p.csv",
			data:     csvData("sku,quantity", "A,notanumber"),
			want:     1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.CountRecords(tc.fileName, tc.data)
			if err != nil {
				t.Fatalf("CountRecords failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("CountRecords = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCountRecordsUnsupportedFormat(t *testing.T) {
	p := NewParser()
	if _, err := p.CountRecords("data.pdf", []byte("whatever")); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

// TestParseProducts verifies field mapping, row numbering, and per-row
// rejection without failing the whole file.
func TestParseProducts(t *testing.T) {
	p := NewParser()
	data := csvData(
		"sku,name,category,barcode,cost_price,sale_price,min_stock",
		"SKU-1,Widget,tools,111,2.50,4.99,5",
		",Nameless,tools,,1,2,0",
		"SKU-2,,tools,,1,2,0",
		"SKU-3,Gadget,tools,,abc,2,0",
		"SKU-4,Gizmo,misc,,,,",
	)

	result, err := p.ParseProducts("products.csv", data)
	if err != nil {
		t.Fatalf("ParseProducts failed: %v", err)
	}

	if result.TotalRecords != 5 {
		t.Errorf("TotalRecords = %d, want 5", result.TotalRecords)
	}
	if result.SuccessCount != 2 || result.ErrorCount != 3 {
		t.Errorf("counts = success %d errors %d, want 2/3", result.SuccessCount, result.ErrorCount)
	}
	if len(result.Records) != 2 {
		t.Fatalf("Records = %d, want 2", len(result.Records))
	}

	first := result.Records[0]
	if first.Row != 2 || first.SKU != "SKU-1" || first.CostPrice != 2.5 || first.SalePrice != 4.99 || first.MinStock != 5 {
		t.Errorf("first record = %+v", first)
	}

	// Empty numeric cells default to zero
	last := result.Records[1]
	if last.SKU != "SKU-4" || last.CostPrice != 0 || last.MinStock != 0 {
		t.Errorf("last record = %+v, want zero-valued numerics", last)
	}

	wantErrors := []string{
		"row 3: missing SKU",
		"row 4: missing product name",
		`row 5: invalid cost price "abc"`,
	}
	if len(result.Errors) != len(wantErrors) {
		t.Fatalf("Errors = %v", result.Errors)
	}
	for i, want := range wantErrors {
		if result.Errors[i] != want {
			t.Errorf("Errors[%d] = %q, want %q", i, result.Errors[i], want)
		}
	}
}

// TestParseStock verifies quantity validation including the negative reject.
func TestParseStock(t *testing.T) {
	p := NewParser()
	data := csvData(
		"sku,quantity",
		"SKU-1,10",
		"SKU-2,0",
		"SKU-3,-4",
		"SKU-4,xyz",
	)

	result, err := p.ParseStock("stock.csv", data)
	if err != nil {
		t.Fatalf("ParseStock failed: %v", err)
	}

	if result.SuccessCount != 2 || result.ErrorCount != 2 {
		t.Errorf("counts = success %d errors %d, want 2/2", result.SuccessCount, result.ErrorCount)
	}
	if result.Records[1].Quantity != 0 {
		t.Errorf("zero quantity record = %+v, want accepted", result.Records[1])
	}
	joined := strings.Join(result.Errors, "; ")
	if !strings.Contains(joined, "negative quantity -4") {
		t.Errorf("missing negative quantity error in %q", joined)
	}
}

// TestParseSales verifies the positive-quantity rule and the optional
// sold_at and reference columns.
func TestParseSales(t *testing.T) {
	p := NewParser()
	data := csvData(
		"sku,quantity,unit_price,sold_at,reference",
		"SKU-1,2,4.99,2026-08-01,INV-1",
		"SKU-2,1,1.50,,",
		"SKU-3,0,1.00,,",
	)

	result, err := p.ParseSales("sales.csv", data)
	if err != nil {
		t.Fatalf("ParseSales failed: %v", err)
	}

	if result.SuccessCount != 2 || result.ErrorCount != 1 {
		t.Errorf("counts = success %d errors %d, want 2/1", result.SuccessCount, result.ErrorCount)
	}
	if result.Records[0].SoldAt != "2026-08-01" || result.Records[0].Reference != "INV-1" {
		t.Errorf("first record = %+v", result.Records[0])
	}
	if result.Records[1].SoldAt != "" {
		t.Errorf("empty sold_at parsed as %q, want empty", result.Records[1].SoldAt)
	}
	if !strings.Contains(result.Errors[0], "quantity must be positive") {
		t.Errorf("Errors[0] = %q", result.Errors[0])
	}
}

// TestParseProductsXLSX verifies the spreadsheet path produces the same
// records as CSV.
func TestParseProductsXLSX(t *testing.T) {
	p := NewParser()
	data := xlsxData(t, [][]interface{}{
		{"sku", "name", "category", "barcode", "cost_price", "sale_price", "min_stock"},
		{"SKU-1", "Widget", "tools", "111", 2.5, 4.99, 5},
		{"SKU-2", "Gadget", "tools", "", 1.0, 1.99, 10},
	})

	result, err := p.ParseProducts("products.xlsx", data)
	if err != nil {
		t.Fatalf("ParseProducts failed: %v", err)
	}

	if result.SuccessCount != 2 || result.ErrorCount != 0 {
		t.Fatalf("counts = success %d errors %d (%v)", result.SuccessCount, result.ErrorCount, result.Errors)
	}
	if result.Records[0].SKU != "SKU-1" || result.Records[0].SalePrice != 4.99 {
		t.Errorf("first record = %+v", result.Records[0])
	}

	count, err := p.CountRecords("products.xlsx", data)
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 2 {
		t.Errorf("CountRecords = %d, want 2", count)
	}
}
