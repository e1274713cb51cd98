// Package payload encodes the {certificateData, signature} pair carried
// inside issued documents, wraps it in sentinel markers for text embedding,
// and extracts it back out of whatever text a document yields.
//
// Known fragility: if the render/extract round trip reflows or reformats
// the wrapped text, Extract may not find intact sentinels or valid JSON.
// A nil result means "payload not recoverable", never proof of forgery.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	BeginSentinel = "BEGIN_CERTLEDGER_JSON"
	EndSentinel   = "END_CERTLEDGER_JSON"
)

// Payload is the self-contained verification material embedded in a
// document: the certificate data and the issuer's detached signature.
type Payload struct {
	CertificateData map[string]any `json:"certificateData"`
	Signature       string         `json:"signature"`
}

// Encode serializes the pair as a single JSON line.
func Encode(certificateData map[string]any, signature string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Payload{CertificateData: certificateData, Signature: signature}); err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Wrap brackets the encoded payload with the sentinel markers used to
// locate it in extracted document text.
func Wrap(encoded string) string {
	return BeginSentinel + "\n" + encoded + "\n" + EndSentinel
}

// Extract locates the first begin sentinel and the first end sentinel after
// it, then parses the slice between them. Absence of either sentinel, an
// empty slice, or a parse failure returns nil; extraction problems are
// normal, not errors.
func Extract(fullText string) *Payload {
	start := strings.Index(fullText, BeginSentinel)
	if start == -1 {
		return nil
	}
	rest := fullText[start+len(BeginSentinel):]
	end := strings.Index(rest, EndSentinel)
	if end == -1 {
		return nil
	}

	// Rendering may have split the single JSON line into fixed-width rows.
	// Encoded JSON escapes newlines inside strings, so raw newline bytes can
	// only be layout artifacts and are safe to drop.
	raw := strings.TrimSpace(rest[:end])
	raw = strings.ReplaceAll(raw, "\r", "")
	raw = strings.ReplaceAll(raw, "\n", "")
	if raw == "" {
		return nil
	}

	// json.Number keeps metadata numerics byte-identical through the later
	// re-canonicalization; a float64 round trip could change the hash.
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil
	}
	if p.CertificateData == nil && p.Signature == "" {
		return nil
	}
	return &p
}
