package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"carelane/internal/domain"
	contractSvc "carelane/internal/domain/services/contract"
)

// PDFRenderer lays generated contract text out as a letter-format PDF
// with a title, body paragraphs and a signature block. Layout is
// deterministic for identical inputs.
type PDFRenderer struct {
	blobs  BlobStore
	logger *slog.Logger
}

// NewPDFRenderer creates a new PDF render adapter.
func NewPDFRenderer(blobs BlobStore, logger *slog.Logger) contractSvc.Renderer {
	return &PDFRenderer{blobs: blobs, logger: logger}
}

// Render produces the PDF artifact and stores it, returning the blob
// ref. Any failure is a non-retryable RenderError.
func (r *PDFRenderer) Render(ctx context.Context, content, templateID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", &domain.RenderError{TemplateID: templateID, Cause: fmt.Errorf("empty content")}
	}

	data, err := buildPDF(content, templateID)
	if err != nil {
		return "", &domain.RenderError{TemplateID: templateID, Cause: err}
	}

	ref, err := r.blobs.Put(data)
	if err != nil {
		return "", &domain.RenderError{TemplateID: templateID, Cause: err}
	}

	r.logger.Debug("rendered document", "template_id", templateID, "blob_ref", ref, "bytes", len(data))
	return ref, nil
}

func buildPDF(content, templateID string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(zeroTime())
	pdf.SetModificationDate(zeroTime())
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, fmt.Sprintf("Healthcare Contract (%s)", templateID), "", "C", false)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 11)
	for _, paragraph := range strings.Split(content, "\n") {
		if strings.TrimSpace(paragraph) == "" {
			pdf.Ln(4)
			continue
		}
		pdf.MultiCell(0, 5, paragraph, "", "L", false)
	}

	// Signature block
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(50, 8, "Signature:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 8, "__________________________", "", 1, "L", false, 0, "")
	pdf.CellFormat(50, 8, "Date:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 8, "__________________________", "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// zeroTime pins the PDF metadata dates so identical inputs produce
// byte-identical output.
func zeroTime() time.Time {
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
}
