package interfaces

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	dealers "omc-erp/internal/dealers/domain"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(dealers.MoneyPlaces)
}

// BuildStatementPDF renders the dealer settlement statement.
func BuildStatementPDF(s *dealers.Settlement) ([]byte, error) {
	if s == nil {
		return nil, dealers.ErrNilSettlement
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Dealer Settlement Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	for _, line := range []string{
		fmt.Sprintf("Settlement: %s", s.SettlementNumber),
		fmt.Sprintf("Station: %s   Dealer: %s", s.StationID, s.DealerID),
		fmt.Sprintf("Window: %s", s.WindowID),
		fmt.Sprintf("Period: %s to %s", s.PeriodStart.Format("2006-01-02"), s.PeriodEnd.Format("2006-01-02")),
		fmt.Sprintf("Status: %s   Version: %d", s.Status, s.Version),
		fmt.Sprintf("Calculated: %s", s.CalculatedAt.Format(time.RFC3339)),
	} {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}
	if !s.ApprovedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Approved: %s by %s", s.ApprovedAt.Format(time.RFC3339), s.ApprovedBy))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Product", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Litres", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Margin rate", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Margin (GHS)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range s.Lines {
		pdf.CellFormat(40, 6, line.ProductID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, line.Litres.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, line.MarginRate.StringFixed(4), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, money(line.Margin), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(85, 6, "Deduction", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Reference", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Amount (GHS)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, d := range s.Deductions {
		pdf.CellFormat(85, 6, string(d.Kind), "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, d.Reference, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, money(d.Amount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	for _, total := range [][2]string{
		{"Gross dealer margin", money(s.GrossDealerMargin)},
		{"Loan deduction", money(s.LoanDeduction)},
		{"Other deductions", money(s.OtherDeductions)},
		{"Net payable", money(s.NetPayable())},
	} {
		pdf.CellFormat(85, 6, total[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, total[1], "", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	if s.IsNegativeBalance() {
		pdf.Ln(2)
		pdf.Cell(0, 6, "Negative balance carried forward as dealer debt")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders the dealer settlement statement workbook.
func BuildStatementXLSX(s *dealers.Settlement) ([]byte, error) {
	if s == nil {
		return nil, dealers.ErrNilSettlement
	}
	f := excelize.NewFile()
	defer f.Close()
	summary := "summary"
	lines := "lines"
	deductions := "deductions"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return nil, err
	}
	for _, sheet := range []string{lines, deductions} {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}

	rows := [][]any{
		{"Dealer Settlement Statement"},
		{},
		{"Settlement", s.SettlementNumber},
		{"Station", s.StationID},
		{"Dealer", s.DealerID},
		{"Window", s.WindowID},
		{"Period start", s.PeriodStart.Format("2006-01-02")},
		{"Period end", s.PeriodEnd.Format("2006-01-02")},
		{"Status", string(s.Status)},
		{"Version", s.Version},
		{"Total litres", s.TotalLitresSold.InexactFloat64()},
		{"Gross dealer margin", s.GrossDealerMargin.InexactFloat64()},
		{"Loan deduction", s.LoanDeduction.InexactFloat64()},
		{"Other deductions", s.OtherDeductions.InexactFloat64()},
		{"Net payable", s.NetPayable().InexactFloat64()},
	}
	if err := writeRows(f, summary, rows); err != nil {
		return nil, err
	}

	lineRows := [][]any{{"Product", "Litres", "Margin rate", "Margin"}}
	for _, l := range s.Lines {
		lineRows = append(lineRows, []any{l.ProductID, l.Litres.InexactFloat64(), l.MarginRate.InexactFloat64(), l.Margin.InexactFloat64()})
	}
	if err := writeRows(f, lines, lineRows); err != nil {
		return nil, err
	}

	deductionRows := [][]any{{"Kind", "Reference", "Amount"}}
	for _, d := range s.Deductions {
		deductionRows = append(deductionRows, []any{string(d.Kind), d.Reference, d.Amount.InexactFloat64()})
	}
	if err := writeRows(f, deductions, deductionRows); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// ExportStatement renders the statement in the requested format ("pdf" or "xlsx").
func ExportStatement(s *dealers.Settlement, format string) ([]byte, string, error) {
	switch format {
	case "pdf":
		data, err := BuildStatementPDF(s)
		return data, "application/pdf", err
	case "xlsx":
		data, err := BuildStatementXLSX(s)
		return data, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", err
	}
	return nil, "", errors.New("statement export: unsupported format " + format)
}
