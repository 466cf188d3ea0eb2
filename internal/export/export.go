// Package export renders the sales ledger for spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/majidshakoor42/rozanahisab/internal/domain"
)

const (
	CSVFileName  = "sales_export.csv"
	XLSXFileName = "sales_export.xlsx"
	sheetName    = "Sales"
	dateLayout   = "1/2/2006"
)

var Header = []string{
	"sale_id",
	"customer_id",
	"customer_name",
	"total_amount",
	"paid_amount",
	"due_amount",
	"payment_status",
	"currency",
	"date",
	"updated_date",
}

type Row struct {
	SaleID        string
	CustomerID    string
	CustomerName  string
	TotalAmount   decimal.Decimal
	PaidAmount    decimal.Decimal
	DueAmount     decimal.Decimal
	PaymentStatus string
	Currency      string
	Date          string
	UpdatedDate   string
}

// BuildRows resolves customer names and formats dates in loc. Sales whose
// customer no longer exists are attributed to "Unknown".
func BuildRows(sales []domain.Sale, customers []domain.Customer, loc *time.Location) []Row {
	if loc == nil {
		loc = time.Local
	}
	names := make(map[string]string, len(customers))
	for _, c := range customers {
		names[c.CustomerID] = c.Name
	}

	rows := make([]Row, 0, len(sales))
	for _, sale := range sales {
		name, ok := names[sale.CustomerID]
		if !ok {
			name = domain.UnknownCustomerName
		}
		row := Row{
			SaleID:        sale.SaleID,
			CustomerID:    sale.CustomerID,
			CustomerName:  name,
			TotalAmount:   sale.TotalAmount,
			PaidAmount:    sale.PaidAmount,
			DueAmount:     sale.DueAmount,
			PaymentStatus: string(sale.PaymentStatus),
			Currency:      sale.Currency,
			Date:          sale.Date.In(loc).Format(dateLayout),
		}
		if sale.UpdatedDate != nil {
			row.UpdatedDate = sale.UpdatedDate.In(loc).Format(dateLayout)
		}
		rows = append(rows, row)
	}
	return rows
}

func (r Row) Values() []string {
	return []string{
		r.SaleID,
		r.CustomerID,
		r.CustomerName,
		r.TotalAmount.String(),
		r.PaidAmount.String(),
		r.DueAmount.String(),
		r.PaymentStatus,
		r.Currency,
		r.Date,
		r.UpdatedDate,
	}
}

func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row.Values()); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, header := range Header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6FA"}, Pattern: 1},
	})
	if err == nil {
		_ = f.SetRowStyle(sheetName, 1, 1, headerStyle)
	}

	for rowIndex, row := range rows {
		values := []any{
			row.SaleID,
			row.CustomerID,
			row.CustomerName,
			row.TotalAmount.InexactFloat64(),
			row.PaidAmount.InexactFloat64(),
			row.DueAmount.InexactFloat64(),
			row.PaymentStatus,
			row.Currency,
			row.Date,
			row.UpdatedDate,
		}
		for colIndex, value := range values {
			cell, err := excelize.CoordinatesToCellName(colIndex+1, rowIndex+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(Header))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "A", lastCol, 16); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
