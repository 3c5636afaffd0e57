package importfile

// ProductRecord is one parsed row of a products import file.
type ProductRecord struct {
	Row       int // 1-based row number in the source file
	SKU       string
	Name      string
	Category  string
	Barcode   string
	CostPrice float64
	SalePrice float64
	MinStock  int
}

// StockRecord is one parsed row of an initial-stock import file.
type StockRecord struct {
	Row      int
	SKU      string
	Quantity int
}

// SaleRecord is one parsed row of a sales import file.
type SaleRecord struct {
	Row       int
	SKU       string
	Quantity  int
	UnitPrice float64
	SoldAt    string // date string as found in the file; empty means "today"
	Reference string
}

// ParseResult holds the outcome of fully parsing an import file.
// Records contains only rows that parsed cleanly; rows that failed are
// described in Errors and counted in ErrorCount. Blank rows are skipped
// silently and counted in SkippedCount.
type ParseResult[T any] struct {
	TotalRecords int
	SuccessCount int
	ErrorCount   int
	SkippedCount int
	Records      []T
	Errors       []string
	Warnings     []string
}
