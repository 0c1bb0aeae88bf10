package export

import (
	"io"

	"github.com/mmdatafocus/ims_backend/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	ProductSheet = "Products"
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var productHeadings = []string{
	"ID", "SKU", "Name", "Category", "Barcode", "Current Stock",
	"Min Stock Level", "Reorder Quantity", "Unit Cost", "Unit Price", "Updated At",
}

func nullDecimalCell(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return ""
	}
	f, _ := d.Decimal.Float64()
	return f
}

func intPtrCell(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func productRow(p *models.Product) []interface{} {
	return []interface{}{
		p.ID,
		p.Sku,
		p.Name,
		p.Category,
		p.Barcode,
		p.CurrentStock,
		intPtrCell(p.MinStockLevel),
		intPtrCell(p.ReorderQuantity),
		nullDecimalCell(p.UnitCost),
		nullDecimalCell(p.UnitPrice),
		p.UpdatedAt,
	}
}

// ProductWorkbook lays the product list out as one sheet with a heading row.
func ProductWorkbook(products []models.Product) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ProductSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(ProductSheet, "A1", &productHeadings); err != nil {
		return nil, err
	}
	for i := range products {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := productRow(&products[i])
		if err := f.SetSheetRow(ProductSheet, cell, &row); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// WriteProducts streams the product list as an XLSX workbook.
func WriteProducts(w io.Writer, products []models.Product) error {
	f, err := ProductWorkbook(products)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}
