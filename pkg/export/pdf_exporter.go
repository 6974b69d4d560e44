package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a generated coursework document into a paginated PDF.
// The document text uses a light markdown subset: "# " and "## " headings,
// "- " list items, and plain paragraphs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates the PDF from the document text.
func (e *PDFExporter) Render(content, footer string) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("pdf requires document content")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "# "):
			pdf.SetFont("Arial", "B", 16)
			pdf.MultiCell(0, 9, strings.TrimPrefix(line, "# "), "", "L", false)
			pdf.Ln(3)
		case strings.HasPrefix(line, "## "):
			pdf.SetFont("Arial", "B", 12)
			pdf.MultiCell(0, 7, strings.TrimPrefix(line, "## "), "", "L", false)
			pdf.Ln(2)
		case strings.HasPrefix(line, "- "):
			pdf.SetFont("Arial", "", 10)
			pdf.MultiCell(0, 6, "  • "+strings.TrimPrefix(line, "- "), "", "L", false)
		case strings.TrimSpace(line) == "---":
			pdf.Ln(2)
			x, y := pdf.GetXY()
			pdf.Line(x, y, 195, y)
			pdf.Ln(2)
		case strings.TrimSpace(line) == "":
			pdf.Ln(2)
		default:
			pdf.SetFont("Arial", "", 10)
			pdf.MultiCell(0, 6, line, "", "L", false)
		}
	}

	if footer != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 5, footer, "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
