package payload

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const qrPixels = 256

// QRImage renders the encoded payload as a PNG QR code. This is the
// redundant scannable channel for manual and third-party verification; the
// server's own re-verification reads the text embedding instead.
func QRImage(encoded string) ([]byte, error) {
	code, err := qr.Encode(encoded, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	code, err = barcode.Scale(code, qrPixels, qrPixels)
	if err != nil {
		return nil, fmt.Errorf("scale qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, fmt.Errorf("render qr png: %w", err)
	}
	return buf.Bytes(), nil
}
