// Package document renders certificate documents carrying an embedded
// verification payload, and extracts text back out of uploaded documents.
package document

import "context"

// RenderInput is everything a renderer needs to produce a verifiable
// document. WrappedPayload is the sentinel-bracketed JSON that must survive
// a later text extraction byte for byte.
type RenderInput struct {
	Certificate     map[string]any
	CanonicalHash   string
	VerificationURL string
	EncodedPayload  string
	WrappedPayload  string
	QRImagePNG      []byte
}

// Renderer produces certificate documents. Render builds a document from
// scratch; Augment appends the verification material to a caller-supplied
// document without touching its existing content.
type Renderer interface {
	Render(ctx context.Context, input RenderInput) ([]byte, error)
	Augment(ctx context.Context, original []byte, input RenderInput) ([]byte, error)
}

// TextExtractor recovers plain text from a document so the embedded payload
// can be located. Extraction failure is reported as an error; the caller
// treats it as "no payload available", not as proof of tampering.
type TextExtractor interface {
	Extract(ctx context.Context, doc []byte) (string, error)
}
