// Package textdoc renders certificates as plain UTF-8 text. The text form
// round-trips the embedded payload losslessly, which makes it the reliable
// path for automated clients and for end-to-end tests; PDF rendering is the
// human-facing counterpart.
package textdoc

import (
	"context"
	"fmt"
	"strings"

	"certledger/internal/document"
)

// Renderer implements document.Renderer and document.TextExtractor over
// plain text.
type Renderer struct{}

func New() *Renderer { return &Renderer{} }

// fieldOrder fixes the display order of the known certificate fields.
var fieldOrder = []string{"certificateId", "studentName", "role", "issuer", "startDate", "endDate", "issuedOn"}

var fieldLabels = map[string]string{
	"certificateId": "Certificate ID",
	"studentName":   "Student",
	"role":          "Role",
	"issuer":        "Issuer",
	"startDate":     "Start Date",
	"endDate":       "End Date",
	"issuedOn":      "Issued On",
}

func (r *Renderer) Render(_ context.Context, input document.RenderInput) ([]byte, error) {
	var b strings.Builder
	b.WriteString("CERTIFICATE OF COMPLETION\n")
	b.WriteString("=========================\n\n")
	for _, field := range fieldOrder {
		if v, ok := input.Certificate[field]; ok {
			fmt.Fprintf(&b, "%s: %v\n", fieldLabels[field], v)
		}
	}
	b.WriteString("\n")
	r.writeVerificationBlock(&b, input)
	return []byte(b.String()), nil
}

func (r *Renderer) Augment(_ context.Context, original []byte, input document.RenderInput) ([]byte, error) {
	var b strings.Builder
	b.Write(original)
	if len(original) > 0 && original[len(original)-1] != '\n' {
		b.WriteString("\n")
	}
	b.WriteString("\n")
	r.writeVerificationBlock(&b, input)
	return []byte(b.String()), nil
}

func (r *Renderer) Extract(_ context.Context, doc []byte) (string, error) {
	return string(doc), nil
}

func (r *Renderer) writeVerificationBlock(b *strings.Builder, input document.RenderInput) {
	fmt.Fprintf(b, "Verify at: %s\n\n", input.VerificationURL)
	b.WriteString(input.WrappedPayload)
	b.WriteString("\n")
}
