package interfaces

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"omc-erp/internal/uppf/application"
	uppf "omc-erp/internal/uppf/domain"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(uppf.MoneyPlaces)
}

// NPADocumentGenerator renders the NPA submission pack.
type NPADocumentGenerator struct {
	// Company is printed on the report headers.
	Company string
}

// Render produces one document of the submission pack.
func (g NPADocumentGenerator) Render(ctx context.Context, docType uppf.DocumentType, sub *uppf.Submission, claims []*uppf.Claim) (application.RenderedDocument, error) {
	if err := ctx.Err(); err != nil {
		return application.RenderedDocument{}, err
	}
	if sub == nil {
		return application.RenderedDocument{}, uppf.ErrNilSubmission
	}
	var (
		data []byte
		err  error
		doc  = application.RenderedDocument{Type: docType}
	)
	switch docType {
	case uppf.DocSummaryReport:
		data, err = g.summaryPDF(sub, claims)
		doc.Format, doc.ContentType, doc.Filename = "pdf", contentTypePDF, "summary-report.pdf"
	case uppf.DocDetailedClaims:
		data, err = detailedClaimsXLSX(sub, claims)
		doc.Format, doc.ContentType, doc.Filename = "xlsx", contentTypeXLSX, "detailed-claims.xlsx"
	case uppf.DocComplianceCertificate:
		data, err = g.compliancePDF(sub, claims)
		doc.Format, doc.ContentType, doc.Filename = "pdf", contentTypePDF, "compliance-certificate.pdf"
	default:
		return doc, fmt.Errorf("npa documents: unsupported type %s", docType)
	}
	if err != nil {
		return doc, err
	}
	doc.Data = data
	return doc, nil
}

func (g NPADocumentGenerator) header(pdf *gofpdf.Fpdf, title string, sub *uppf.Submission) {
	pdf.SetCreationDate(sub.CreatedAt)
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()
	pdf.Cell(0, 8, title)
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	lines := []string{
		fmt.Sprintf("Reference: %s", sub.Reference),
		fmt.Sprintf("Window: %s", sub.WindowID),
		fmt.Sprintf("Prepared: %s", sub.CreatedAt.Format(time.RFC3339)),
	}
	if g.Company != "" {
		lines = append([]string{g.Company}, lines...)
	}
	for _, line := range lines {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}
	pdf.Ln(4)
}

func (g NPADocumentGenerator) summaryPDF(sub *uppf.Submission, claims []*uppf.Claim) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	g.header(pdf, "UPPF Claims Summary Report", sub)

	pdf.SetFont("Arial", "B", 10)
	for _, h := range []struct {
		w     float64
		label string
	}{{45, "Claim"}, {25, "Station"}, {30, "Km beyond"}, {35, "Litres"}, {40, "Amount (GHS)"}} {
		pdf.CellFormat(h.w, 6, h.label, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, c := range claims {
		pdf.CellFormat(45, 6, c.ClaimNumber, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, c.StationID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, c.KmBeyondEqualisation.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, c.LitresMoved.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, money(c.ClaimAmount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	for _, total := range [][2]string{
		{"Claims", fmt.Sprintf("%d", len(sub.ClaimIDs))},
		{"Total litres", sub.TotalLitres.String()},
		{"Total amount (GHS)", money(sub.TotalAmount)},
	} {
		pdf.CellFormat(70, 6, total[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, total[1], "", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	if len(sub.ValidationResults) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "", 9)
		pdf.Cell(0, 6, "Warnings")
		pdf.Ln(5)
		for _, v := range sub.ValidationResults {
			pdf.MultiCell(0, 5, fmt.Sprintf("%s %s: %s", v.Rule, v.Field, v.Message), "", "L", false)
		}
	}
	return output(pdf)
}

func (g NPADocumentGenerator) compliancePDF(sub *uppf.Submission, claims []*uppf.Claim) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	g.header(pdf, "UPPF Compliance Certificate", sub)

	reconciled, validated, evidenced := 0, 0, 0
	for _, c := range claims {
		if c.Reconciliation.Status == uppf.ReconciliationMatched {
			reconciled++
		}
		if c.ValidationPassed() {
			validated++
		}
		if len(c.Evidence) > 0 {
			evidenced++
		}
	}
	statements := []string{
		fmt.Sprintf("%d of %d claims carry supporting delivery evidence.", evidenced, len(claims)),
		fmt.Sprintf("%d of %d claims are reconciled across depot, transporter and station volumes.", reconciled, len(claims)),
		fmt.Sprintf("%d of %d claims passed GPS and route plausibility validation.", validated, len(claims)),
		fmt.Sprintf("Total amount claimed: GHS %s for %s litres.", money(sub.TotalAmount), sub.TotalLitres.String()),
	}
	for _, s := range statements {
		pdf.MultiCell(0, 6, s, "", "L", false)
	}
	pdf.Ln(12)
	pdf.Cell(0, 6, "Authorised signatory: ______________________")
	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func detailedClaimsXLSX(sub *uppf.Submission, claims []*uppf.Claim) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "claims"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	rows := [][]any{{
		"Claim number", "Delivery", "Route", "Depot", "Station", "Km actual", "Km beyond",
		"Litres", "Tariff", "Amount", "GPS km", "Reconciliation", "Variance %", "Evidence",
	}}
	for _, c := range claims {
		gpsKm := 0.0
		if c.Validation != nil {
			gpsKm = c.Validation.GPSKm
		}
		rows = append(rows, []any{
			c.ClaimNumber, c.DeliveryID, c.RouteID, c.DepotID, c.StationID,
			c.KmActual.InexactFloat64(), c.KmBeyondEqualisation.InexactFloat64(),
			c.LitresMoved.InexactFloat64(), c.Tariff.InexactFloat64(), c.ClaimAmount.InexactFloat64(),
			gpsKm, string(c.Reconciliation.Status), c.Reconciliation.VariancePct.InexactFloat64(), len(c.Evidence),
		})
	}
	rows = append(rows, []any{}, []any{"Reference", sub.Reference}, []any{"Total amount", sub.TotalAmount.InexactFloat64()})
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
