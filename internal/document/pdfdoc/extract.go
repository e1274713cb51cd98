package pdfdoc

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Extractor recovers the text layer of a PDF. It implements
// document.TextExtractor.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

// Extract reads all plain text from the document. The underlying parser
// panics on some malformed files, so the panic is converted to an error and
// the caller's "payload not recoverable" handling takes over.
func (e *Extractor) Extract(_ context.Context, doc []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract pdf text: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
