// Package pdfdoc renders certificates as PDF documents with the embedded
// verification payload written as selectable text, plus a QR code carrying
// the same payload for scanner-based verification.
package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jung-kurt/gofpdf"
	fpdi "github.com/jung-kurt/gofpdf/contrib/gofpdi"

	"certledger/internal/document"
)

// US Letter in points, matching the geometry third-party viewers expect.
const (
	pageWidth  = 612.0
	pageHeight = 792.0
	margin     = 60.0
	qrSize     = 150.0
)

// payloadLineWidth splits the wrapped payload into fixed-width lines before
// drawing. Explicit line breaks keep the extracted text identical to the
// drawn text; letting the PDF engine wrap would reflow the JSON and break
// payload extraction.
const payloadLineWidth = 100

// The gofpdi importer keeps package-level state between ImportPageFromStream
// and UseImportedTemplate, so concurrent Augment calls must serialize.
var importMu sync.Mutex

// Renderer implements document.Renderer over PDF.
type Renderer struct{}

func New() *Renderer { return &Renderer{} }

var fieldRows = []struct{ key, label string }{
	{"studentName", "Awarded to"},
	{"role", "Role"},
	{"issuer", "Issued by"},
	{"startDate", "From"},
	{"endDate", "To"},
	{"issuedOn", "Issued on"},
	{"certificateId", "Certificate ID"},
}

func (r *Renderer) Render(_ context.Context, input document.RenderInput) ([]byte, error) {
	pdf := newPage()
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 36, "Certificate of Completion", "", 1, "C", false, 0, "")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	for _, row := range fieldRows {
		v, ok := input.Certificate[row.key]
		if !ok {
			continue
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(120, 18, row.label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 18, fmt.Sprintf("%v", v), "", 1, "L", false, 0, "")
	}
	pdf.Ln(12)

	if err := writeVerificationBlock(pdf, input); err != nil {
		return nil, err
	}
	return output(pdf)
}

// Augment copies every page of the original PDF and appends a verification
// page. The original pages are imported as templates, so their visual
// content is preserved but their text layer is not; re-verification of an
// augmented document relies on the appended page's payload text.
func (r *Renderer) Augment(_ context.Context, original []byte, input document.RenderInput) ([]byte, error) {
	importMu.Lock()
	defer importMu.Unlock()

	pdf := newPage()
	rs := io.ReadSeeker(bytes.NewReader(original))

	tpl := fpdi.ImportPageFromStream(pdf, &rs, 1, "/MediaBox")
	sizes := fpdi.GetPageSizes()
	pages := len(sizes)
	if pages == 0 {
		return nil, fmt.Errorf("augment pdf: source has no pages")
	}
	for page := 1; page <= pages; page++ {
		if page > 1 {
			tpl = fpdi.ImportPageFromStream(pdf, &rs, page, "/MediaBox")
		}
		box := sizes[page]["/MediaBox"]
		w, h := box["w"], box["h"]
		if w == 0 || h == 0 {
			w, h = pageWidth, pageHeight
		}
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})
		fpdi.UseImportedTemplate(pdf, tpl, 0, 0, w, h)
	}

	pdf.AddPageFormat("P", gofpdf.SizeType{Wd: pageWidth, Ht: pageHeight})
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 24, "Certificate Verification", "", 1, "L", false, 0, "")
	pdf.Ln(6)
	if err := writeVerificationBlock(pdf, input); err != nil {
		return nil, err
	}
	return output(pdf)
}

func newPage() *gofpdf.Fpdf {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: pageWidth, Ht: pageHeight},
	})
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	return pdf
}

func writeVerificationBlock(pdf *gofpdf.Fpdf, input document.RenderInput) error {
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 14, "Verify at: "+input.VerificationURL, "", 1, "L", false, 0, "")
	pdf.Ln(6)

	if len(input.QRImagePNG) > 0 {
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("payload-qr", opts, bytes.NewReader(input.QRImagePNG))
		x := (pageWidth - qrSize) / 2
		pdf.ImageOptions("payload-qr", x, pdf.GetY(), qrSize, qrSize, false, opts, 0, "")
		pdf.SetY(pdf.GetY() + qrSize + 12)
	}

	pdf.SetFont("Courier", "", 8)
	for _, line := range splitLines(input.WrappedPayload) {
		pdf.CellFormat(0, 10, line, "", 1, "L", false, 0, "")
	}

	if pdf.Err() {
		return fmt.Errorf("render pdf: %w", pdf.Error())
	}
	return nil
}

// splitLines breaks the payload into fixed-width rows on rune boundaries;
// slicing bytes could cut a multi-byte character in half and make the
// embedded JSON unrecoverable.
func splitLines(wrapped string) []string {
	var out []string
	for _, line := range strings.Split(wrapped, "\n") {
		runes := []rune(line)
		for len(runes) > payloadLineWidth {
			out = append(out, string(runes[:payloadLineWidth]))
			runes = runes[payloadLineWidth:]
		}
		out = append(out, string(runes))
	}
	return out
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
